/* Copyright (c) 2025 Sartthi Labs
 * SPDX-License-Identifier: BSD-3-Clause */

// Package metrics exposes a small sink interface so services record
// outcomes without caring whether Prometheus is wired in.
package metrics

import (
    "time"

    "github.com/prometheus/client_golang/prometheus"
)

type Sink interface {
    PollRun(d time.Duration, failed bool)
    IssueOutcome(kind, outcome string)        // synced | skipped | deleted | error
    PushOutcome(kind, outcome string)         // pushed | transition_skipped | failed
    TriggerOutcome(outcome string)            // fired | rescheduled | consumed | discarded
    NotificationOutcome(outcome string)       // sent | failed | rate_limited | dropped
}

type Noop struct{}

func (Noop) PollRun(time.Duration, bool)       {}
func (Noop) IssueOutcome(string, string)       {}
func (Noop) PushOutcome(string, string)        {}
func (Noop) TriggerOutcome(string)             {}
func (Noop) NotificationOutcome(string)        {}

type Prom struct {
    pollDuration  prometheus.Histogram
    pollFailures  prometheus.Counter
    issueOutcomes *prometheus.CounterVec
    pushOutcomes  *prometheus.CounterVec
    triggers      *prometheus.CounterVec
    notifications *prometheus.CounterVec
}

func NewProm(reg prometheus.Registerer) *Prom {
    p := &Prom{
        pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
            Name:    "syncd_poll_duration_seconds",
            Help:    "Duration of tracker poll runs.",
            Buckets: prometheus.DefBuckets,
        }),
        pollFailures: prometheus.NewCounter(prometheus.CounterOpts{
            Name: "syncd_poll_failures_total",
            Help: "Poll runs that returned an error.",
        }),
        issueOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
            Name: "syncd_issue_sync_total",
            Help: "Issue sync outcomes by tracker kind.",
        }, []string{"kind", "outcome"}),
        pushOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
            Name: "syncd_issue_push_total",
            Help: "Outbound issue push outcomes by tracker kind.",
        }, []string{"kind", "outcome"}),
        triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
            Name: "syncd_reminder_triggers_total",
            Help: "Reminder trigger processing outcomes.",
        }, []string{"outcome"}),
        notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
            Name: "syncd_notifications_total",
            Help: "Outbound notification outcomes.",
        }, []string{"outcome"}),
    }
    reg.MustRegister(p.pollDuration, p.pollFailures, p.issueOutcomes, p.pushOutcomes, p.triggers, p.notifications)
    return p
}

func (p *Prom) PollRun(d time.Duration, failed bool) {
    p.pollDuration.Observe(d.Seconds())
    if failed { p.pollFailures.Inc() }
}

func (p *Prom) IssueOutcome(kind, outcome string) { p.issueOutcomes.WithLabelValues(kind, outcome).Inc() }
func (p *Prom) PushOutcome(kind, outcome string)  { p.pushOutcomes.WithLabelValues(kind, outcome).Inc() }
func (p *Prom) TriggerOutcome(outcome string)     { p.triggers.WithLabelValues(outcome).Inc() }
func (p *Prom) NotificationOutcome(outcome string) { p.notifications.WithLabelValues(outcome).Inc() }
