/* Copyright (c) 2025 Sartthi Labs
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "context"
    "errors"
    "net/http"
    "time"

    "github.com/gin-gonic/gin"
    "github.com/google/uuid"
    "github.com/rs/zerolog"
    "github.com/sartthi/syncd/internal/config"
    "github.com/sartthi/syncd/internal/domain"
    "github.com/sartthi/syncd/internal/services/sync"
    "github.com/sartthi/syncd/internal/tracker"
)

type syncService interface {
    ImportIssues(ctx context.Context, userID, workspaceID string, kind domain.TrackerKind, query string, max int) ([]domain.Issue, error)
    CreateIssue(ctx context.Context, userID, workspaceID string, kind domain.TrackerKind, f tracker.Fields) (*domain.Issue, error)
    UpdateIssue(ctx context.Context, userID string, kind domain.TrackerKind, key string, upd sync.LocalUpdate) (*domain.Issue, error)
    ListTransitions(ctx context.Context, userID string, kind domain.TrackerKind, key string) ([]tracker.Transition, error)
    AddComment(ctx context.Context, userID string, kind domain.TrackerKind, key, text string) error
    Connected(ctx context.Context, userID string, kind domain.TrackerKind) (bool, error)
}

type eventStore interface {
    UpsertEvent(ctx context.Context, ev domain.PlannerEvent) error
    GetEvent(ctx context.Context, id string) (*domain.PlannerEvent, error)
    DeleteEvent(ctx context.Context, id string) error
    IssuesByWorkspace(ctx context.Context, kind domain.TrackerKind, workspaceID string) ([]domain.Issue, error)
}

type reminderService interface {
    ScheduleEventTriggers(ctx context.Context, ev domain.PlannerEvent) error
    ClearTriggers(ctx context.Context, entityType, entityID string) error
}

type pollRunner interface {
    RunOnce(ctx context.Context) error
}

type Handlers struct {
    cfg       config.Config
    log       zerolog.Logger
    svc       syncService
    events    eventStore
    reminders reminderService
    poller    pollRunner
}

func NewHandlers(cfg config.Config, log zerolog.Logger, svc syncService, events eventStore, reminders reminderService, poller pollRunner) *Handlers {
    return &Handlers{cfg: cfg, log: log, svc: svc, events: events, reminders: reminders, poller: poller}
}

func (h *Handlers) Healthz(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{"ok": true})
}

// RequireUser trusts the identity header set by the authenticating
// proxy in front of this service.
func (h *Handlers) RequireUser(c *gin.Context) {
    if c.GetHeader("X-User-ID") == "" {
        c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing user"})
        return
    }
    c.Next()
}

func userID(c *gin.Context) string { return c.GetHeader("X-User-ID") }

func kindParam(c *gin.Context) (domain.TrackerKind, bool) {
    kind, ok := domain.ParseKind(c.Param("kind"))
    if !ok {
        c.JSON(http.StatusBadRequest, gin.H{"error": "unknown tracker kind"})
        return "", false
    }
    return kind, true
}

// writeErr maps classified tracker errors onto HTTP statuses with the
// short user-facing messages; raw upstream bodies never leak through.
func (h *Handlers) writeErr(c *gin.Context, err error) {
    status := http.StatusInternalServerError
    switch {
    case errors.Is(err, tracker.ErrNotConnected), errors.Is(err, tracker.ErrValidation):
        status = http.StatusBadRequest
    case errors.Is(err, tracker.ErrAuthInvalid):
        status = http.StatusUnauthorized
    case errors.Is(err, tracker.ErrPermission):
        status = http.StatusForbidden
    case errors.Is(err, tracker.ErrNotFound):
        status = http.StatusNotFound
    case errors.Is(err, tracker.ErrEndpointRemoved), errors.Is(err, tracker.ErrTransient):
        status = http.StatusBadGateway
    }
    msg := tracker.Message(err)
    if msg == "" { msg = "internal error" }
    if status == http.StatusInternalServerError {
        h.log.Error().Err(err).Str("path", c.FullPath()).Msg("http: unhandled error")
        msg = "internal error"
    }
    c.JSON(status, gin.H{"error": msg})
}

func (h *Handlers) TrackerStatus(c *gin.Context) {
    kind, ok := kindParam(c)
    if !ok { return }
    connected, err := h.svc.Connected(c.Request.Context(), userID(c), kind)
    if err != nil { h.writeErr(c, err); return }
    c.JSON(http.StatusOK, gin.H{"kind": kind, "connected": connected})
}

func (h *Handlers) ImportIssues(c *gin.Context) {
    kind, ok := kindParam(c)
    if !ok { return }
    var req struct {
        Query string `json:"query"`
        Max   int    `json:"max"`
    }
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
        return
    }
    issues, err := h.svc.ImportIssues(c.Request.Context(), userID(c), c.Param("ws"), kind, req.Query, req.Max)
    if err != nil { h.writeErr(c, err); return }
    c.JSON(http.StatusOK, gin.H{"imported": len(issues), "issues": issues})
}

func (h *Handlers) CreateIssue(c *gin.Context) {
    kind, ok := kindParam(c)
    if !ok { return }
    var req struct {
        Title       string     `json:"title"`
        Description string     `json:"description"`
        Priority    string     `json:"priority"`
        ProjectKey  string     `json:"projectKey"`
        IssueType   string     `json:"issueType"`
        DueDate     *time.Time `json:"dueDate"`
        Labels      []string   `json:"labels"`
    }
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
        return
    }
    f := tracker.Fields{Summary: &req.Title, ProjectKey: req.ProjectKey, IssueType: req.IssueType, DueDate: req.DueDate, Labels: req.Labels}
    if req.Description != "" { f.Description = &req.Description }
    if req.Priority != "" {
        p := domain.ParsePriority(req.Priority)
        f.Priority = &p
    }
    iss, err := h.svc.CreateIssue(c.Request.Context(), userID(c), c.Param("ws"), kind, f)
    if err != nil { h.writeErr(c, err); return }
    c.JSON(http.StatusCreated, iss)
}

func (h *Handlers) ListIssues(c *gin.Context) {
    kind, ok := kindParam(c)
    if !ok { return }
    issues, err := h.events.IssuesByWorkspace(c.Request.Context(), kind, c.Param("ws"))
    if err != nil { h.writeErr(c, err); return }
    c.JSON(http.StatusOK, gin.H{"issues": issues})
}

func (h *Handlers) UpdateIssue(c *gin.Context) {
    kind, ok := kindParam(c)
    if !ok { return }
    var req struct {
        Title       *string    `json:"title"`
        Description *string    `json:"description"`
        Status      *string    `json:"status"`
        Priority    *string    `json:"priority"`
        DueDate     *time.Time `json:"dueDate"`
    }
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
        return
    }
    upd := sync.LocalUpdate{Title: req.Title, Description: req.Description, Status: req.Status, Priority: req.Priority, DueDate: req.DueDate}
    iss, err := h.svc.UpdateIssue(c.Request.Context(), userID(c), kind, c.Param("key"), upd)
    if err != nil { h.writeErr(c, err); return }
    c.JSON(http.StatusOK, iss)
}

func (h *Handlers) ListTransitions(c *gin.Context) {
    kind, ok := kindParam(c)
    if !ok { return }
    ts, err := h.svc.ListTransitions(c.Request.Context(), userID(c), kind, c.Param("key"))
    if err != nil { h.writeErr(c, err); return }
    c.JSON(http.StatusOK, gin.H{"transitions": ts})
}

func (h *Handlers) AddComment(c *gin.Context) {
    kind, ok := kindParam(c)
    if !ok { return }
    var req struct {
        Text string `json:"text"`
    }
    if err := c.ShouldBindJSON(&req); err != nil || req.Text == "" {
        c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
        return
    }
    if err := h.svc.AddComment(c.Request.Context(), userID(c), kind, c.Param("key"), req.Text); err != nil {
        h.writeErr(c, err)
        return
    }
    c.JSON(http.StatusCreated, gin.H{"ok": true})
}

type eventRequest struct {
    Title        string               `json:"title"`
    Description  string               `json:"description"`
    Start        time.Time            `json:"start"`
    End          *time.Time           `json:"end"`
    AllDay       bool                 `json:"allDay"`
    Participants []domain.Participant `json:"participants"`
    Reminders    []domain.ReminderRule `json:"reminders"`
}

// SaveEvent creates a planner event and computes its reminder triggers
// in the same request; trigger recomputation is a full replacement.
func (h *Handlers) SaveEvent(c *gin.Context) {
    var req eventRequest
    if err := c.ShouldBindJSON(&req); err != nil || req.Start.IsZero() {
        c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
        return
    }
    ev := domain.PlannerEvent{
        ID:           uuid.NewString(),
        WorkspaceID:  c.Param("ws"),
        Title:        req.Title,
        Description:  req.Description,
        Start:        req.Start,
        End:          req.End,
        AllDay:       req.AllDay,
        CreatedBy:    userID(c),
        Participants: req.Participants,
        Reminders:    req.Reminders,
    }
    if err := h.events.UpsertEvent(c.Request.Context(), ev); err != nil { h.writeErr(c, err); return }
    if err := h.reminders.ScheduleEventTriggers(c.Request.Context(), ev); err != nil {
        h.log.Error().Err(err).Str("event", ev.ID).Msg("http: trigger scheduling failed")
    }
    c.JSON(http.StatusCreated, ev)
}

func (h *Handlers) UpdateEvent(c *gin.Context) {
    existing, err := h.events.GetEvent(c.Request.Context(), c.Param("id"))
    if err != nil { h.writeErr(c, err); return }
    if existing == nil {
        c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
        return
    }
    var req eventRequest
    if err := c.ShouldBindJSON(&req); err != nil || req.Start.IsZero() {
        c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
        return
    }
    ev := *existing
    ev.Title = req.Title
    ev.Description = req.Description
    ev.Start = req.Start
    ev.End = req.End
    ev.AllDay = req.AllDay
    ev.Participants = req.Participants
    ev.Reminders = req.Reminders
    if err := h.events.UpsertEvent(c.Request.Context(), ev); err != nil { h.writeErr(c, err); return }
    if err := h.reminders.ScheduleEventTriggers(c.Request.Context(), ev); err != nil {
        h.log.Error().Err(err).Str("event", ev.ID).Msg("http: trigger scheduling failed")
    }
    c.JSON(http.StatusOK, ev)
}

func (h *Handlers) DeleteEvent(c *gin.Context) {
    id := c.Param("id")
    if err := h.reminders.ClearTriggers(c.Request.Context(), "event", id); err != nil {
        h.log.Error().Err(err).Str("event", id).Msg("http: trigger cleanup failed")
    }
    if err := h.events.DeleteEvent(c.Request.Context(), id); err != nil { h.writeErr(c, err); return }
    c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) PollNow(c *gin.Context) {
    // detach from the request so a slow poll survives the response
    go func(){
        ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute); defer cancel()
        if err := h.poller.RunOnce(ctx); err != nil { h.log.Error().Err(err).Msg("http: manual poll failed") }
    }()
    c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}
