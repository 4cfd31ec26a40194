/* Copyright (c) 2025 Sartthi Labs
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "github.com/gin-gonic/gin"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
    "github.com/rs/zerolog"
    "github.com/sartthi/syncd/internal/config"
)

func NewRouter(cfg config.Config, log zerolog.Logger, h *Handlers, gatherer prometheus.Gatherer) *gin.Engine {
    if cfg.AppEnv != "dev" { gin.SetMode(gin.ReleaseMode) }
    r := gin.New()
    r.Use(gin.Recovery())
    r.Use(func(c *gin.Context){
        c.Next()
        log.Info().Str("m", c.Request.Method).Str("p", c.FullPath()).Int("s", c.Writer.Status()).Msg("http")
    })

    r.GET("/healthz", h.Healthz)
    if cfg.MetricsEnabled && gatherer != nil {
        r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
    }

    api := r.Group("/api", h.RequireUser)
    {
        api.GET("/tracker/:kind/status", h.TrackerStatus)
        api.POST("/workspaces/:ws/tracker/:kind/import", h.ImportIssues)
        api.POST("/workspaces/:ws/tracker/:kind/issues", h.CreateIssue)
        api.GET("/workspaces/:ws/tracker/:kind/issues", h.ListIssues)
        api.PATCH("/tracker/:kind/issues/:key", h.UpdateIssue)
        api.GET("/tracker/:kind/issues/:key/transitions", h.ListTransitions)
        api.POST("/tracker/:kind/issues/:key/comments", h.AddComment)

        api.POST("/workspaces/:ws/events", h.SaveEvent)
        api.PUT("/events/:id", h.UpdateEvent)
        api.DELETE("/events/:id", h.DeleteEvent)
    }

    r.POST("/admin/poll-now", h.PollNow)

    return r
}
