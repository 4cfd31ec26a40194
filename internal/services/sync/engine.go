/* Copyright (c) 2025 Sartthi Labs
 * SPDX-License-Identifier: BSD-3-Clause */

// Package sync keeps local issue records and their external tracker
// counterparts aligned in both directions.
package sync

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/rs/zerolog"
    "github.com/sartthi/syncd/internal/domain"
    "github.com/sartthi/syncd/internal/metrics"
    "github.com/sartthi/syncd/internal/tracker"
)

type Store interface {
    // UpsertIssue fully replaces the record keyed by (kind, issueKey)
    // and returns the stored row.
    UpsertIssue(ctx context.Context, iss domain.Issue) (*domain.Issue, error)
    GetIssue(ctx context.Context, kind domain.TrackerKind, key string) (*domain.Issue, error)
    DeleteIssue(ctx context.Context, kind domain.TrackerKind, key string) error
}

type CredentialSource interface {
    Resolve(ctx context.Context, userID string, kind domain.TrackerKind) (*domain.Credentials, error)
}

// LocalUpdate is the set of fields a local edit may carry outward. Nil
// means untouched.
type LocalUpdate struct {
    Title       *string
    Description *string
    Status      *string
    Priority    *string
    DueDate     *time.Time
}

type Engine struct {
    log      zerolog.Logger
    store    Store
    creds    CredentialSource
    adapters map[domain.TrackerKind]tracker.Adapter
    keys     *keyedMutex
    metrics  metrics.Sink
    clock    func() time.Time
}

func NewEngine(log zerolog.Logger, store Store, creds CredentialSource, adapters map[domain.TrackerKind]tracker.Adapter, m metrics.Sink) *Engine {
    if m == nil { m = metrics.Noop{} }
    return &Engine{log: log, store: store, creds: creds, adapters: adapters, keys: newKeyedMutex(), metrics: m, clock: time.Now}
}

func (e *Engine) adapter(kind domain.TrackerKind) (tracker.Adapter, error) {
    a, ok := e.adapters[kind]
    if !ok { return nil, fmt.Errorf("sync: unsupported tracker kind %q", kind) }
    return a, nil
}

// SyncIssueToLocal persists a normalized remote issue as the local
// record: a full replace keyed by (kind, issueKey), so replaying the
// same remote state is a no-op beyond the sync timestamp.
func (e *Engine) SyncIssueToLocal(ctx context.Context, iss domain.Issue, workspaceID string) (*domain.Issue, error) {
    if iss.IssueKey == "" { return nil, fmt.Errorf("sync: %w: issue without key", tracker.ErrValidation) }
    unlock := e.keys.Lock(string(iss.Kind) + "|" + iss.IssueKey)
    defer unlock()
    iss.WorkspaceID = workspaceID
    iss.LastSyncedAt = e.clock()
    stored, err := e.store.UpsertIssue(ctx, iss)
    if err != nil {
        e.metrics.IssueOutcome(string(iss.Kind), "error")
        return nil, err
    }
    e.metrics.IssueOutcome(string(iss.Kind), "synced")
    return stored, nil
}

// DeleteLocal removes the local record for a remotely deleted issue.
func (e *Engine) DeleteLocal(ctx context.Context, kind domain.TrackerKind, key string) error {
    unlock := e.keys.Lock(string(kind) + "|" + key)
    defer unlock()
    if err := e.store.DeleteIssue(ctx, kind, key); err != nil { return err }
    e.metrics.IssueOutcome(string(kind), "deleted")
    return nil
}

// UpdateIssue applies a local edit. The local write always lands; the
// outward push is best effort and its failure never rolls it back.
func (e *Engine) UpdateIssue(ctx context.Context, userID string, kind domain.TrackerKind, key string, upd LocalUpdate) (*domain.Issue, error) {
    a, err := e.adapter(kind)
    if err != nil { return nil, err }
    unlock := e.keys.Lock(string(kind) + "|" + key)
    local, err := e.store.GetIssue(ctx, kind, key)
    if err != nil { unlock(); return nil, err }
    if local == nil { unlock(); return nil, fmt.Errorf("sync: %w: %s", tracker.ErrNotFound, key) }

    if upd.Title != nil { local.Summary = *upd.Title }
    if upd.Description != nil { local.Description = *upd.Description }
    if upd.Status != nil { local.Status = a.StatusName(domain.ParseStatus(*upd.Status)) }
    if upd.Priority != nil { local.Priority = a.PriorityName(domain.ParsePriority(*upd.Priority)) }
    if upd.DueDate != nil { local.DueDate = upd.DueDate }
    stored, err := e.store.UpsertIssue(ctx, *local)
    unlock()
    if err != nil { return nil, err }

    e.push(ctx, userID, a, key, upd)
    return stored, nil
}

// push mirrors a local edit to the tracker. Every failure path logs and
// counts; nothing propagates.
func (e *Engine) push(ctx context.Context, userID string, a tracker.Adapter, key string, upd LocalUpdate) {
    kind := a.Kind()
    creds, err := e.creds.Resolve(ctx, userID, kind)
    if err != nil || creds == nil {
        if err != nil {
            e.log.Warn().Err(err).Str("issue", key).Msg("sync: push skipped, credentials unavailable")
            e.metrics.PushOutcome(string(kind), "failed")
        }
        return
    }

    f := tracker.Fields{Summary: upd.Title, Description: upd.Description, DueDate: upd.DueDate}
    if upd.Priority != nil {
        p := domain.ParsePriority(*upd.Priority)
        f.Priority = &p
    }
    if f.Summary != nil || f.Description != nil || f.Priority != nil || f.DueDate != nil {
        if err := a.UpdateIssue(ctx, *creds, key, f); err != nil {
            e.log.Warn().Err(err).Str("issue", key).Msg("sync: field push failed")
            e.metrics.PushOutcome(string(kind), "failed")
            return
        }
    }

    if upd.Status != nil {
        if err := e.transitionTo(ctx, *creds, a, key, domain.ParseStatus(*upd.Status)); err != nil {
            e.log.Warn().Err(err).Str("issue", key).Msg("sync: transition push failed")
            e.metrics.PushOutcome(string(kind), "failed")
            return
        }
    }
    e.metrics.PushOutcome(string(kind), "pushed")
}

// transitionTo moves the remote issue into the workflow state whose
// name matches the canonical target. No matching transition is not an
// error: the tracker's workflow simply does not allow the move.
func (e *Engine) transitionTo(ctx context.Context, creds domain.Credentials, a tracker.Adapter, key string, target domain.Status) error {
    ts, err := a.ListTransitions(ctx, creds, key)
    if err != nil { return err }
    want := a.StatusName(target)
    for _, t := range ts {
        if t.To == want {
            return a.Transition(ctx, creds, key, t.ID)
        }
    }
    e.log.Warn().Str("issue", key).Str("target", want).Msg("sync: no transition to target status, skipping")
    e.metrics.PushOutcome(string(a.Kind()), "transition_skipped")
    return nil
}

// ImportIssues runs a search against the user's tracker and syncs every
// hit into the workspace.
func (e *Engine) ImportIssues(ctx context.Context, userID, workspaceID string, kind domain.TrackerKind, query string, max int) ([]domain.Issue, error) {
    a, err := e.adapter(kind)
    if err != nil { return nil, err }
    creds, err := e.creds.Resolve(ctx, userID, kind)
    if err != nil { return nil, err }
    if creds == nil { return nil, fmt.Errorf("sync: %w", tracker.ErrNotConnected) }
    found, err := a.Search(ctx, *creds, query, max)
    if err != nil { return nil, err }
    out := make([]domain.Issue, 0, len(found))
    for _, iss := range found {
        stored, err := e.SyncIssueToLocal(ctx, iss, workspaceID)
        if err != nil {
            e.log.Error().Err(err).Str("issue", iss.IssueKey).Msg("sync: import upsert failed")
            continue
        }
        out = append(out, *stored)
    }
    return out, nil
}

// CreateIssue creates remotely first, then records the returned issue
// locally so the local copy starts from tracker truth.
func (e *Engine) CreateIssue(ctx context.Context, userID, workspaceID string, kind domain.TrackerKind, f tracker.Fields) (*domain.Issue, error) {
    a, err := e.adapter(kind)
    if err != nil { return nil, err }
    creds, err := e.creds.Resolve(ctx, userID, kind)
    if err != nil { return nil, err }
    if creds == nil { return nil, fmt.Errorf("sync: %w", tracker.ErrNotConnected) }
    iss, err := a.CreateIssue(ctx, *creds, f)
    if err != nil { return nil, err }
    return e.SyncIssueToLocal(ctx, *iss, workspaceID)
}

// ListTransitions exposes the remote workflow moves for an issue.
func (e *Engine) ListTransitions(ctx context.Context, userID string, kind domain.TrackerKind, key string) ([]tracker.Transition, error) {
    a, err := e.adapter(kind)
    if err != nil { return nil, err }
    creds, err := e.creds.Resolve(ctx, userID, kind)
    if err != nil { return nil, err }
    if creds == nil { return nil, fmt.Errorf("sync: %w", tracker.ErrNotConnected) }
    return a.ListTransitions(ctx, *creds, key)
}

// AddComment posts a comment to the remote issue.
func (e *Engine) AddComment(ctx context.Context, userID string, kind domain.TrackerKind, key, text string) error {
    a, err := e.adapter(kind)
    if err != nil { return err }
    creds, err := e.creds.Resolve(ctx, userID, kind)
    if err != nil { return err }
    if creds == nil { return fmt.Errorf("sync: %w", tracker.ErrNotConnected) }
    return a.AddComment(ctx, *creds, key, text)
}

// Connected reports whether the user has an account for the kind.
func (e *Engine) Connected(ctx context.Context, userID string, kind domain.TrackerKind) (bool, error) {
    creds, err := e.creds.Resolve(ctx, userID, kind)
    if err != nil && !errors.Is(err, tracker.ErrAuthInvalid) { return false, err }
    return creds != nil, nil
}
