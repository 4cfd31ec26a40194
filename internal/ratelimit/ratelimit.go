/* Copyright (c) 2025 Sartthi Labs
 * SPDX-License-Identifier: BSD-3-Clause */

// Package ratelimit bounds per-recipient notification volume with a
// Redis fixed-window counter.
package ratelimit

import (
    "context"
    "time"

    "github.com/redis/go-redis/v9"
)

type Limiter interface {
    // Allow reports whether one more action for key fits in the
    // current window.
    Allow(ctx context.Context, key string) (bool, error)
}

type Noop struct{}

func (Noop) Allow(ctx context.Context, key string) (bool, error) { return true, nil }

type Redis struct {
    client *redis.Client
    limit  int
    window time.Duration
    prefix string
}

func NewRedis(client *redis.Client, limit int, window time.Duration) *Redis {
    if limit <= 0 { limit = 30 }
    if window <= 0 { window = time.Minute }
    return &Redis{client: client, limit: limit, window: window, prefix: "rl:notify:"}
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
    pipe := r.client.Pipeline()
    incr := pipe.Incr(ctx, r.prefix+key)
    pipe.Expire(ctx, r.prefix+key, r.window)
    if _, err := pipe.Exec(ctx); err != nil { return false, err }
    return incr.Val() <= int64(r.limit), nil
}
