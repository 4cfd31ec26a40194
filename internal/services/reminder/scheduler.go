/* Copyright (c) 2025 Sartthi Labs
 * SPDX-License-Identifier: BSD-3-Clause */

// Package reminder computes notification triggers from planner entities
// and fires the due ones.
package reminder

import (
    "context"
    "fmt"
    "time"

    "github.com/google/uuid"
    "github.com/rs/zerolog"
    "github.com/sartthi/syncd/internal/domain"
)

type Store interface {
    // ReplaceTriggers atomically swaps every trigger of the entity for
    // the given set.
    ReplaceTriggers(ctx context.Context, entityType, entityID string, ts []domain.Trigger) error
    DeleteTriggers(ctx context.Context, entityType, entityID string) error
}

type Scheduler struct {
    log   zerolog.Logger
    store Store
    clock func() time.Time
}

func NewScheduler(log zerolog.Logger, store Store) *Scheduler {
    return &Scheduler{log: log, store: store, clock: time.Now}
}

// ScheduleEventTriggers recomputes the full trigger set for a planner
// event: one pre-deadline trigger per reminder rule plus a single
// deadline trigger at the event's end (start when no end). Times
// already in the past are never materialized.
func (s *Scheduler) ScheduleEventTriggers(ctx context.Context, ev domain.PlannerEvent) error {
    if ev.ID == "" { return fmt.Errorf("reminder: event without id") }
    now := s.clock()
    recipients := ev.Recipients()
    payload := domain.TriggerPayload{
        Title:       ev.Title,
        Description: ev.Description,
        Start:       &ev.Start,
        End:         ev.End,
    }

    var ts []domain.Trigger
    for _, rule := range ev.Reminders {
        at := ev.Start.Add(-time.Duration(rule.MinutesBefore) * time.Minute)
        if !at.After(now) { continue }
        ts = append(ts, domain.Trigger{
            ID:          uuid.New(),
            EntityType:  "event",
            EntityID:    ev.ID,
            WorkspaceID: ev.WorkspaceID,
            UserIDs:     recipients,
            Type:        domain.TriggerPreDeadline,
            TriggerTime: at,
            Payload:     payload,
            CreatedAt:   now,
        })
    }

    deadline := ev.Start
    if ev.End != nil { deadline = *ev.End }
    if deadline.After(now) {
        ts = append(ts, domain.Trigger{
            ID:          uuid.New(),
            EntityType:  "event",
            EntityID:    ev.ID,
            WorkspaceID: ev.WorkspaceID,
            UserIDs:     recipients,
            Type:        domain.TriggerDeadlineReached,
            TriggerTime: deadline,
            Payload:     payload,
            CreatedAt:   now,
        })
    }

    s.log.Debug().Str("event", ev.ID).Int("triggers", len(ts)).Msg("reminder: event triggers recomputed")
    return s.store.ReplaceTriggers(ctx, "event", ev.ID, ts)
}

// ScheduleDeadlineTriggers covers due-date entities such as tasks: one
// heads-up a day ahead and one at the deadline itself.
func (s *Scheduler) ScheduleDeadlineTriggers(ctx context.Context, entityType, entityID, workspaceID, title string, userIDs []string, due time.Time) error {
    now := s.clock()
    payload := domain.TriggerPayload{Title: title, End: &due}
    var ts []domain.Trigger
    if ahead := due.Add(-24 * time.Hour); ahead.After(now) {
        ts = append(ts, domain.Trigger{
            ID: uuid.New(), EntityType: entityType, EntityID: entityID, WorkspaceID: workspaceID,
            UserIDs: userIDs, Type: domain.TriggerPreDeadline, TriggerTime: ahead, Payload: payload, CreatedAt: now,
        })
    }
    if due.After(now) {
        ts = append(ts, domain.Trigger{
            ID: uuid.New(), EntityType: entityType, EntityID: entityID, WorkspaceID: workspaceID,
            UserIDs: userIDs, Type: domain.TriggerDeadlineReached, TriggerTime: due, Payload: payload, CreatedAt: now,
        })
    }
    return s.store.ReplaceTriggers(ctx, entityType, entityID, ts)
}

// ScheduleOverrunTrigger plants a repeating nudge that starts firing
// once a running timer passes the given runtime.
func (s *Scheduler) ScheduleOverrunTrigger(ctx context.Context, entityType, entityID, workspaceID, title string, userIDs []string, startedAt time.Time, after time.Duration, repeatMinutes int) error {
    now := s.clock()
    at := startedAt.Add(after)
    if !at.After(now) { at = now.Add(time.Minute) }
    t := domain.Trigger{
        ID: uuid.New(), EntityType: entityType, EntityID: entityID, WorkspaceID: workspaceID,
        UserIDs: userIDs, Type: domain.TriggerDeadlineReached, TriggerTime: at,
        Payload:       domain.TriggerPayload{Title: title, Message: "Timer still running for: " + title},
        RepeatMinutes: repeatMinutes,
        CreatedAt:     now,
    }
    return s.store.ReplaceTriggers(ctx, entityType, entityID, []domain.Trigger{t})
}

// ClearTriggers drops every trigger of a deleted or completed entity.
func (s *Scheduler) ClearTriggers(ctx context.Context, entityType, entityID string) error {
    return s.store.DeleteTriggers(ctx, entityType, entityID)
}
