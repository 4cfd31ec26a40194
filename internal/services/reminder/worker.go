package reminder

import (
    "context"
    "fmt"
    "strings"
    "time"

    "github.com/google/uuid"
    "github.com/rs/zerolog"
    "github.com/sartthi/syncd/internal/domain"
    "github.com/sartthi/syncd/internal/metrics"
)

type WorkerStore interface {
    // DueTriggers returns up to limit triggers with triggerTime <= now,
    // oldest first.
    DueTriggers(ctx context.Context, now time.Time, limit int) ([]domain.Trigger, error)
    DeleteTrigger(ctx context.Context, id uuid.UUID) error
    RescheduleTrigger(ctx context.Context, id uuid.UUID, next time.Time) error
}

// Directory resolves user IDs to deliverable email addresses. Unknown
// or email-less users are silently absent from the result.
type Directory interface {
    Emails(ctx context.Context, userIDs []string) ([]string, error)
}

type Notifier interface {
    Enqueue(ctx context.Context, n domain.Notification) error
}

type Worker struct {
    log     zerolog.Logger
    store   WorkerStore
    dir     Directory
    notify  Notifier
    metrics metrics.Sink
    clock   func() time.Time
    batch   int
}

func NewWorker(log zerolog.Logger, store WorkerStore, dir Directory, notify Notifier, m metrics.Sink, batch int) *Worker {
    if m == nil { m = metrics.Noop{} }
    if batch <= 0 { batch = 100 }
    return &Worker{log: log, store: store, dir: dir, notify: notify, metrics: m, clock: time.Now, batch: batch}
}

// RunOnce drains one batch of due triggers. A trigger is consumed
// exactly once per due time: dispatch failures are logged and counted
// but never leave the trigger behind to fire again.
func (w *Worker) RunOnce(ctx context.Context) error {
    now := w.clock()
    due, err := w.store.DueTriggers(ctx, now, w.batch)
    if err != nil { return err }
    for _, tr := range due {
        if ctx.Err() != nil { return ctx.Err() }
        w.fire(ctx, now, tr)
    }
    return nil
}

func (w *Worker) fire(ctx context.Context, now time.Time, tr domain.Trigger) {
    emails, err := w.dir.Emails(ctx, tr.UserIDs)
    if err != nil {
        // transient lookup failure: leave the trigger for the next tick
        w.log.Error().Err(err).Str("trigger", tr.ID.String()).Msg("reminder: recipient lookup failed")
        return
    }
    if len(emails) == 0 {
        w.log.Info().Str("trigger", tr.ID.String()).Msg("reminder: no deliverable recipients, discarding")
        w.metrics.TriggerOutcome("discarded")
        w.consume(ctx, now, tr)
        return
    }

    n := domain.Notification{
        ID:         uuid.New(),
        Recipients: emails,
        Subject:    subject(tr),
        Body:       body(tr),
        CreatedAt:  now,
    }
    if err := w.notify.Enqueue(ctx, n); err != nil {
        w.log.Error().Err(err).Str("trigger", tr.ID.String()).Msg("reminder: dispatch failed")
        w.metrics.NotificationOutcome("failed")
    } else {
        w.metrics.TriggerOutcome("fired")
    }
    w.consume(ctx, now, tr)
}

// consume advances the trigger past this fire: repeating triggers move
// forward by their interval, one-shot triggers are deleted.
func (w *Worker) consume(ctx context.Context, now time.Time, tr domain.Trigger) {
    if tr.RepeatMinutes > 0 {
        next := now.Add(time.Duration(tr.RepeatMinutes) * time.Minute)
        if err := w.store.RescheduleTrigger(ctx, tr.ID, next); err != nil {
            w.log.Error().Err(err).Str("trigger", tr.ID.String()).Msg("reminder: reschedule failed")
            return
        }
        w.metrics.TriggerOutcome("rescheduled")
        return
    }
    if err := w.store.DeleteTrigger(ctx, tr.ID); err != nil {
        w.log.Error().Err(err).Str("trigger", tr.ID.String()).Msg("reminder: delete failed")
        return
    }
    w.metrics.TriggerOutcome("consumed")
}

func subject(tr domain.Trigger) string {
    if tr.Payload.Message != "" { return tr.Payload.Message }
    switch tr.Type {
    case domain.TriggerDeadlineReached:
        return "Due now: " + tr.Payload.Title
    default:
        return "Reminder: " + tr.Payload.Title
    }
}

func body(tr domain.Trigger) string {
    var b strings.Builder
    b.WriteString(tr.Payload.Title)
    if tr.Payload.Description != "" {
        b.WriteString("\n\n")
        b.WriteString(tr.Payload.Description)
    }
    if tr.Payload.Start != nil {
        fmt.Fprintf(&b, "\n\nStarts: %s", tr.Payload.Start.Format(time.RFC1123))
    }
    if tr.Payload.End != nil {
        fmt.Fprintf(&b, "\nEnds: %s", tr.Payload.End.Format(time.RFC1123))
    }
    return b.String()
}
