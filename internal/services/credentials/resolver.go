/* Copyright (c) 2025 Sartthi Labs
 * SPDX-License-Identifier: BSD-3-Clause */

// Package credentials resolves ready-to-use tracker credentials for a
// user, refreshing expired OAuth tokens and healing missing tenant IDs
// along the way.
package credentials

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "strings"
    "sync"
    "time"

    "github.com/rs/zerolog"
    "github.com/sartthi/syncd/internal/config"
    "github.com/sartthi/syncd/internal/domain"
    "github.com/sartthi/syncd/internal/tracker"
)

type Store interface {
    // ActiveAccount returns the single active account for (user, kind),
    // or nil when the user never connected that tracker.
    ActiveAccount(ctx context.Context, userID string, kind domain.TrackerKind) (*domain.ConnectedAccount, error)
    UpdateTokens(ctx context.Context, accountID int64, access, refresh string, expiresAt time.Time) error
    UpdateTenant(ctx context.Context, accountID int64, cloudID string) error
}

type call struct {
    done  chan struct{}
    creds *domain.Credentials
    err   error
}

type Resolver struct {
    cfg   config.Config
    log   zerolog.Logger
    store Store
    http  *http.Client
    clock func() time.Time

    mu       sync.Mutex
    inflight map[string]*call
}

func NewResolver(cfg config.Config, log zerolog.Logger, store Store) *Resolver {
    return &Resolver{
        cfg:      cfg,
        log:      log,
        store:    store,
        http:     &http.Client{Timeout: cfg.HTTPTimeout},
        clock:    time.Now,
        inflight: map[string]*call{},
    }
}

// Resolve returns credentials for the user's active account, or
// (nil, nil) when the tracker was never connected. Concurrent resolves
// for the same (user, kind) coalesce so a single-use refresh token is
// spent at most once.
func (r *Resolver) Resolve(ctx context.Context, userID string, kind domain.TrackerKind) (*domain.Credentials, error) {
    acct, err := r.store.ActiveAccount(ctx, userID, kind)
    if err != nil { return nil, err }
    if acct == nil { return nil, nil }

    now := r.clock()
    if !acct.Expired(now) && !(kind == domain.KindJira && acct.CloudID == "") {
        return r.build(acct), nil
    }

    key := userID + "|" + string(kind)
    r.mu.Lock()
    if c, ok := r.inflight[key]; ok {
        r.mu.Unlock()
        select {
        case <-c.done:
            return c.creds, c.err
        case <-ctx.Done():
            return nil, ctx.Err()
        }
    }
    c := &call{done: make(chan struct{})}
    r.inflight[key] = c
    r.mu.Unlock()

    c.creds, c.err = r.repair(ctx, acct)
    close(c.done)
    r.mu.Lock()
    delete(r.inflight, key)
    r.mu.Unlock()
    return c.creds, c.err
}

func (r *Resolver) repair(ctx context.Context, acct *domain.ConnectedAccount) (*domain.Credentials, error) {
    if acct.Expired(r.clock()) {
        if acct.RefreshToken == "" {
            return nil, fmt.Errorf("credentials: token expired with no refresh token: %w", tracker.ErrAuthInvalid)
        }
        if err := r.refresh(ctx, acct); err != nil { return nil, err }
    }
    if acct.Kind == domain.KindJira && acct.CloudID == "" {
        if err := r.discoverTenant(ctx, acct); err != nil { return nil, err }
    }
    return r.build(acct), nil
}

func (r *Resolver) build(acct *domain.ConnectedAccount) *domain.Credentials {
    creds := &domain.Credentials{
        UserID:      acct.UserID,
        Kind:        acct.Kind,
        AccessToken: acct.AccessToken,
        Email:       acct.AccountEmail,
    }
    switch acct.Kind {
    case domain.KindJira:
        creds.BaseURL = strings.TrimRight(r.cfg.JiraAPIBase, "/") + "/ex/jira/" + acct.CloudID
    case domain.KindLinear:
        creds.BaseURL = r.cfg.LinearAPIURL
    }
    return creds
}

// refresh exchanges the stored refresh token for a new access token and
// persists the rotated pair only after the remote call succeeds. When
// the provider does not rotate the refresh token, the old one is kept.
func (r *Resolver) refresh(ctx context.Context, acct *domain.ConnectedAccount) error {
    tokenURL, clientID, clientSecret := r.oauthConfig(acct.Kind)
    body := map[string]string{
        "grant_type":    "refresh_token",
        "client_id":     clientID,
        "client_secret": clientSecret,
        "refresh_token": acct.RefreshToken,
    }
    b, _ := json.Marshal(body)
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, bytes.NewReader(b))
    if err != nil { return err }
    req.Header.Set("Content-Type", "application/json")
    resp, err := r.http.Do(req)
    if err != nil { return fmt.Errorf("%w: token refresh: %v", tracker.ErrTransient, err) }
    defer resp.Body.Close()
    if resp.StatusCode >= 300 {
        io.Copy(io.Discard, resp.Body)
        if resp.StatusCode >= 500 || resp.StatusCode == 429 {
            return fmt.Errorf("%w: token refresh status=%d", tracker.ErrTransient, resp.StatusCode)
        }
        return fmt.Errorf("credentials: token refresh rejected (status=%d): %w", resp.StatusCode, tracker.ErrAuthInvalid)
    }
    var out struct {
        AccessToken  string `json:"access_token"`
        RefreshToken string `json:"refresh_token"`
        ExpiresIn    int    `json:"expires_in"`
    }
    if err := json.NewDecoder(resp.Body).Decode(&out); err != nil { return err }
    if out.AccessToken == "" { return fmt.Errorf("credentials: empty access token in refresh response: %w", tracker.ErrAuthInvalid) }
    newRefresh := out.RefreshToken
    if newRefresh == "" { newRefresh = acct.RefreshToken }
    expiresAt := r.clock().Add(time.Duration(out.ExpiresIn) * time.Second)
    if err := r.store.UpdateTokens(ctx, acct.ID, out.AccessToken, newRefresh, expiresAt); err != nil { return err }
    acct.AccessToken = out.AccessToken
    acct.RefreshToken = newRefresh
    acct.ExpiresAt = &expiresAt
    r.log.Info().Str("user", acct.UserID).Str("kind", string(acct.Kind)).Msg("credentials: token refreshed")
    return nil
}

// discoverTenant fills a missing Jira cloud ID from the accessible
// resources endpoint (first resource wins) and persists it.
func (r *Resolver) discoverTenant(ctx context.Context, acct *domain.ConnectedAccount) error {
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.JiraResourcesURL, nil)
    if err != nil { return err }
    req.Header.Set("Authorization", "Bearer "+acct.AccessToken)
    req.Header.Set("Accept", "application/json")
    resp, err := r.http.Do(req)
    if err != nil { return fmt.Errorf("%w: resource discovery: %v", tracker.ErrTransient, err) }
    defer resp.Body.Close()
    if resp.StatusCode >= 300 {
        io.Copy(io.Discard, resp.Body)
        return tracker.ClassifyStatus(resp.StatusCode)
    }
    var resources []struct {
        ID   string `json:"id"`
        Name string `json:"name"`
    }
    if err := json.NewDecoder(resp.Body).Decode(&resources); err != nil { return err }
    if len(resources) == 0 || resources[0].ID == "" {
        return fmt.Errorf("credentials: no accessible tracker sites: %w", tracker.ErrPermission)
    }
    if err := r.store.UpdateTenant(ctx, acct.ID, resources[0].ID); err != nil { return err }
    acct.CloudID = resources[0].ID
    r.log.Info().Str("user", acct.UserID).Str("cloud_id", acct.CloudID).Msg("credentials: tenant discovered")
    return nil
}

func (r *Resolver) oauthConfig(kind domain.TrackerKind) (tokenURL, clientID, clientSecret string) {
    if kind == domain.KindLinear {
        return r.cfg.LinearTokenURL, r.cfg.LinearClientID, r.cfg.LinearClientSecret
    }
    return r.cfg.JiraTokenURL, r.cfg.JiraClientID, r.cfg.JiraClientSecret
}
