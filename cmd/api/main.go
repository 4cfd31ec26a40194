/* Copyright (c) 2025 Sartthi Labs
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
    "context"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/redis/go-redis/v9"

    "github.com/sartthi/syncd/internal/adapters/jira"
    "github.com/sartthi/syncd/internal/adapters/linear"
    "github.com/sartthi/syncd/internal/config"
    "github.com/sartthi/syncd/internal/domain"
    httpapi "github.com/sartthi/syncd/internal/http"
    "github.com/sartthi/syncd/internal/jobs"
    "github.com/sartthi/syncd/internal/logger"
    "github.com/sartthi/syncd/internal/metrics"
    "github.com/sartthi/syncd/internal/notify"
    "github.com/sartthi/syncd/internal/ratelimit"
    "github.com/sartthi/syncd/internal/repo"
    "github.com/sartthi/syncd/internal/services/credentials"
    "github.com/sartthi/syncd/internal/services/poller"
    "github.com/sartthi/syncd/internal/services/reminder"
    "github.com/sartthi/syncd/internal/services/sync"
    "github.com/sartthi/syncd/internal/tracker"
)

func main() {
    cfg := config.Load()
    log := logger.New(cfg)
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    // DB
    db := repo.MustOpen(ctx, cfg, log)
    defer db.Close()
    repository := repo.NewRepository(db, log)

    // Metrics
    var sink metrics.Sink = metrics.Noop{}
    var gatherer prometheus.Gatherer
    if cfg.MetricsEnabled {
        reg := prometheus.NewRegistry()
        sink = metrics.NewProm(reg)
        gatherer = reg
    }

    // Tracker adapters
    adapters := map[domain.TrackerKind]tracker.Adapter{
        domain.KindJira:   jira.NewClient(cfg, log),
        domain.KindLinear: linear.NewClient(cfg, log),
    }

    // Services
    resolver := credentials.NewResolver(cfg, log, repository)
    engine := sync.NewEngine(log, repository, resolver, adapters, sink)
    pol := poller.New(log, repository, resolver, engine, adapters, sink)
    scheduler := reminder.NewScheduler(log, repository)

    // Notifications
    var limiter ratelimit.Limiter = ratelimit.Noop{}
    if cfg.RedisAddr != "" {
        rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
        limiter = ratelimit.NewRedis(rdb, cfg.MailPerMinute, time.Minute)
    }
    queue := notify.NewQueue(log, cfg.NotifyBuffer)
    mailer := notify.NewMailClient(cfg, log)
    notifyWorker := notify.NewWorker(log, queue, mailer, limiter, sink)
    go notifyWorker.Run(ctx)

    reminderWorker := reminder.NewWorker(log, repository, repository, queue, sink, cfg.ReminderBatch)

    // HTTP
    handlers := httpapi.NewHandlers(cfg, log, engine, repository, scheduler, pol)
    router := httpapi.NewRouter(cfg, log, handlers, gatherer)

    // Background schedules
    cr := jobs.NewCron(cfg, log, pol, reminderWorker, repository)
    cr.Start()
    defer cr.Stop()

    errCh := make(chan error, 1)
    go func() { errCh <- router.Run(cfg.HTTPAddr) }()

    sigCh := make(chan os.Signal, 1)
    signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

    select {
    case <-sigCh:
        log.Info().Msg("shutting down...")
    case err := <-errCh:
        if err != nil { log.Error().Err(err).Msg("http server error") }
    }

    cancel()
    time.Sleep(500 * time.Millisecond)
}
