/* Copyright (c) 2025 Sartthi Labs
 * SPDX-License-Identifier: BSD-3-Clause */

// Package tracker defines the uniform contract every external issue
// tracker adapter implements. Raw tracker payloads never cross this
// boundary: adapters hand back canonical domain.Issue values.
package tracker

import (
    "context"
    "time"

    "github.com/sartthi/syncd/internal/domain"
)

// Fields is the outbound update shape. Nil pointers mean "leave unchanged".
type Fields struct {
    Summary     *string
    Description *string
    Priority    *domain.Priority
    DueDate     *time.Time
    Labels      []string
    ProjectKey  string
    IssueType   string
    Status      *domain.Status
}

// Transition is one workflow move offered by the tracker for an issue.
type Transition struct {
    ID   string
    Name string
    To   string
}

type Adapter interface {
    Kind() domain.TrackerKind

    Search(ctx context.Context, creds domain.Credentials, query string, max int) ([]domain.Issue, error)
    GetIssue(ctx context.Context, creds domain.Credentials, key string) (*domain.Issue, error)
    CreateIssue(ctx context.Context, creds domain.Credentials, f Fields) (*domain.Issue, error)
    UpdateIssue(ctx context.Context, creds domain.Credentials, key string, f Fields) error
    ListTransitions(ctx context.Context, creds domain.Credentials, key string) ([]Transition, error)
    Transition(ctx context.Context, creds domain.Credentials, key, transitionID string) error
    AddComment(ctx context.Context, creds domain.Credentials, key, text string) error

    // MapStatus maps a tracker-native status name into the canonical
    // vocabulary. Total: unknown names fall back to To Do.
    MapStatus(native string) domain.Status
    // StatusName is the tracker-side label for a canonical status, used
    // to pick a transition by its target.
    StatusName(s domain.Status) string
    MapPriority(native string) domain.Priority
    PriorityName(p domain.Priority) string
}
