/* Copyright (c) 2025 Sartthi Labs
 * SPDX-License-Identifier: BSD-3-Clause */

// Package poller re-pulls every locally-known tracker issue on a fixed
// interval so remote edits land without webhooks.
package poller

import (
    "context"
    "errors"
    "time"

    "github.com/rs/zerolog"
    "github.com/sartthi/syncd/internal/domain"
    "github.com/sartthi/syncd/internal/metrics"
    "github.com/sartthi/syncd/internal/services/sync"
    "github.com/sartthi/syncd/internal/tracker"
)

type TrackerUser struct {
    UserID string
    Kind   domain.TrackerKind
}

type Store interface {
    // TrackerUsers lists every (user, kind) with an active connected account.
    TrackerUsers(ctx context.Context) ([]TrackerUser, error)
    // WorkspaceIDs lists the user's workspaces holding issues of the kind.
    WorkspaceIDs(ctx context.Context, userID string, kind domain.TrackerKind) ([]string, error)
    IssuesByWorkspace(ctx context.Context, kind domain.TrackerKind, workspaceID string) ([]domain.Issue, error)
}

type CredentialSource interface {
    Resolve(ctx context.Context, userID string, kind domain.TrackerKind) (*domain.Credentials, error)
}

type Poller struct {
    log      zerolog.Logger
    store    Store
    creds    CredentialSource
    engine   *sync.Engine
    adapters map[domain.TrackerKind]tracker.Adapter
    metrics  metrics.Sink
    clock    func() time.Time
}

func New(log zerolog.Logger, store Store, creds CredentialSource, engine *sync.Engine, adapters map[domain.TrackerKind]tracker.Adapter, m metrics.Sink) *Poller {
    if m == nil { m = metrics.Noop{} }
    return &Poller{log: log, store: store, creds: creds, engine: engine, adapters: adapters, metrics: m, clock: time.Now}
}

// RunOnce performs a full poll pass. A failing user, workspace, or
// issue never aborts the rest of the pass.
func (p *Poller) RunOnce(ctx context.Context) error {
    start := p.clock()
    users, err := p.store.TrackerUsers(ctx)
    if err != nil {
        p.metrics.PollRun(p.clock().Sub(start), true)
        return err
    }
    for _, u := range users {
        if ctx.Err() != nil {
            p.metrics.PollRun(p.clock().Sub(start), true)
            return ctx.Err()
        }
        p.pollUser(ctx, u)
    }
    p.metrics.PollRun(p.clock().Sub(start), false)
    return nil
}

func (p *Poller) pollUser(ctx context.Context, u TrackerUser) {
    a, ok := p.adapters[u.Kind]
    if !ok { return }
    creds, err := p.creds.Resolve(ctx, u.UserID, u.Kind)
    if err != nil {
        p.log.Warn().Err(err).Str("user", u.UserID).Str("kind", string(u.Kind)).Msg("poller: credentials unresolved, skipping user")
        return
    }
    if creds == nil { return }
    workspaces, err := p.store.WorkspaceIDs(ctx, u.UserID, u.Kind)
    if err != nil {
        p.log.Error().Err(err).Str("user", u.UserID).Msg("poller: workspace listing failed")
        return
    }
    for _, ws := range workspaces {
        issues, err := p.store.IssuesByWorkspace(ctx, u.Kind, ws)
        if err != nil {
            p.log.Error().Err(err).Str("workspace", ws).Msg("poller: issue listing failed")
            continue
        }
        for _, iss := range issues {
            p.pollIssue(ctx, a, *creds, ws, iss)
        }
    }
}

func (p *Poller) pollIssue(ctx context.Context, a tracker.Adapter, creds domain.Credentials, workspaceID string, local domain.Issue) {
    remote, err := a.GetIssue(ctx, creds, local.IssueKey)
    if err != nil {
        if errors.Is(err, tracker.ErrNotFound) {
            if derr := p.engine.DeleteLocal(ctx, local.Kind, local.IssueKey); derr != nil {
                p.log.Error().Err(derr).Str("issue", local.IssueKey).Msg("poller: delete of vanished issue failed")
            } else {
                p.log.Info().Str("issue", local.IssueKey).Msg("poller: issue gone remotely, local record removed")
            }
            return
        }
        p.log.Warn().Err(err).Str("issue", local.IssueKey).Msg("poller: fetch failed")
        p.metrics.IssueOutcome(string(local.Kind), "error")
        return
    }
    if remote.RemoteUpdated != nil && !remote.RemoteUpdated.After(local.LastSyncedAt) {
        p.metrics.IssueOutcome(string(local.Kind), "skipped")
        return
    }
    if _, err := p.engine.SyncIssueToLocal(ctx, *remote, workspaceID); err != nil {
        p.log.Error().Err(err).Str("issue", local.IssueKey).Msg("poller: upsert failed")
    }
}
