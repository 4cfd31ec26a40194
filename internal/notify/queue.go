/* Copyright (c) 2025 Sartthi Labs
 * SPDX-License-Identifier: BSD-3-Clause */

// Package notify carries rendered notifications from the reminder
// worker to the outbound mail channel.
package notify

import (
    "context"
    "errors"

    "github.com/rs/zerolog"
    "github.com/sartthi/syncd/internal/domain"
    "github.com/sartthi/syncd/internal/metrics"
    "github.com/sartthi/syncd/internal/ratelimit"
)

var ErrQueueFull = errors.New("notify: queue full")

// Queue is a buffered in-process job bus. Enqueue never blocks: a full
// buffer drops the job and reports it.
type Queue struct {
    ch  chan domain.Notification
    log zerolog.Logger
}

func NewQueue(log zerolog.Logger, buffer int) *Queue {
    if buffer <= 0 { buffer = 256 }
    return &Queue{ch: make(chan domain.Notification, buffer), log: log}
}

func (q *Queue) Enqueue(ctx context.Context, n domain.Notification) error {
    select {
    case q.ch <- n:
        return nil
    case <-ctx.Done():
        return ctx.Err()
    default:
        q.log.Warn().Str("id", n.ID.String()).Msg("notify: queue full, dropping")
        return ErrQueueFull
    }
}

func (q *Queue) jobs() <-chan domain.Notification { return q.ch }

type Mailer interface {
    Send(ctx context.Context, to []string, subject, body string) error
}

// Worker consumes the queue, applies the per-recipient rate limit, and
// sends. Run blocks until the context is cancelled.
type Worker struct {
    log     zerolog.Logger
    queue   *Queue
    mailer  Mailer
    limiter ratelimit.Limiter
    metrics metrics.Sink
}

func NewWorker(log zerolog.Logger, q *Queue, mailer Mailer, limiter ratelimit.Limiter, m metrics.Sink) *Worker {
    if limiter == nil { limiter = ratelimit.Noop{} }
    if m == nil { m = metrics.Noop{} }
    return &Worker{log: log, queue: q, mailer: mailer, limiter: limiter, metrics: m}
}

func (w *Worker) Run(ctx context.Context) {
    for {
        select {
        case <-ctx.Done():
            return
        case n := <-w.queue.jobs():
            w.deliver(ctx, n)
        }
    }
}

func (w *Worker) deliver(ctx context.Context, n domain.Notification) {
    allowed := n.Recipients[:0:0]
    for _, rcpt := range n.Recipients {
        ok, err := w.limiter.Allow(ctx, rcpt)
        if err != nil {
            // limiter outage must not block delivery
            w.log.Warn().Err(err).Msg("notify: rate limiter unavailable, allowing")
            ok = true
        }
        if !ok {
            w.log.Info().Str("recipient", rcpt).Msg("notify: rate limited")
            w.metrics.NotificationOutcome("rate_limited")
            continue
        }
        allowed = append(allowed, rcpt)
    }
    if len(allowed) == 0 { return }
    if err := w.mailer.Send(ctx, allowed, n.Subject, n.Body); err != nil {
        w.log.Error().Err(err).Str("id", n.ID.String()).Msg("notify: send failed")
        w.metrics.NotificationOutcome("failed")
        return
    }
    w.metrics.NotificationOutcome("sent")
}
