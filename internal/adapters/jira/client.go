/* Copyright (c) 2025 Sartthi Labs
 * SPDX-License-Identifier: BSD-3-Clause */
package jira

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strings"
    "time"

    "github.com/rs/zerolog"
    "github.com/sartthi/syncd/internal/config"
    "github.com/sartthi/syncd/internal/domain"
    "github.com/sartthi/syncd/internal/tracker"
)

// Client talks to a Jira-compatible REST v3 API. Credentials arrive per
// call because every user hits a different tenant base URL.
type Client struct {
    http *http.Client
    log  zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    return &Client{http: &http.Client{Timeout: cfg.HTTPTimeout}, log: log}
}

func (c *Client) Kind() domain.TrackerKind { return domain.KindJira }

func (c *Client) do(ctx context.Context, creds domain.Credentials, method, path string, q url.Values, body, out any) error {
    if creds.BaseURL == "" { return fmt.Errorf("jira: %w", tracker.ErrNotConnected) }
    u := strings.TrimRight(creds.BaseURL, "/") + path
    if len(q) > 0 { u = u + "?" + q.Encode() }
    var payload []byte
    if body != nil {
        b, err := json.Marshal(body)
        if err != nil { return err }
        payload = b
    }
    var lastErr error
    for attempt := 0; attempt < 3; attempt++ {
        var r io.Reader
        if payload != nil { r = bytes.NewReader(payload) }
        req, err := http.NewRequestWithContext(ctx, method, u, r)
        if err != nil { return err }
        if payload != nil { req.Header.Set("Content-Type", "application/json") }
        req.Header.Set("Accept", "application/json")
        req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
        resp, err := c.http.Do(req)
        if err != nil {
            lastErr = fmt.Errorf("%w: %v", tracker.ErrTransient, err)
        } else {
            if resp.StatusCode < 300 {
                defer resp.Body.Close()
                if out == nil { io.Copy(io.Discard, resp.Body); return nil }
                return json.NewDecoder(resp.Body).Decode(out)
            }
            b, _ := io.ReadAll(resp.Body)
            resp.Body.Close()
            cerr := tracker.ClassifyStatus(resp.StatusCode)
            if !tracker.Retryable(resp.StatusCode) {
                c.log.Debug().Int("status", resp.StatusCode).Str("path", path).Str("body", trim(b)).Msg("jira: request rejected")
                return cerr
            }
            lastErr = cerr
        }
        time.Sleep(time.Duration(300*(1<<attempt)) * time.Millisecond)
    }
    return lastErr
}

func trim(b []byte) string {
    s := strings.TrimSpace(string(b))
    if len(s) > 200 { s = s[:200] }
    return s
}

func (c *Client) Search(ctx context.Context, creds domain.Credentials, query string, max int) ([]domain.Issue, error) {
    if strings.TrimSpace(query) == "" { return nil, fmt.Errorf("jira: %w: empty query", tracker.ErrValidation) }
    if max <= 0 { max = 50 }
    body := map[string]any{"jql": query, "maxResults": max, "fields": searchFields}
    var out struct {
        Issues []issuePayload `json:"issues"`
    }
    if err := c.do(ctx, creds, http.MethodPost, "/rest/api/3/search/jql", nil, body, &out); err != nil { return nil, err }
    issues := make([]domain.Issue, 0, len(out.Issues))
    for i := range out.Issues { issues = append(issues, out.Issues[i].toDomain()) }
    return issues, nil
}

func (c *Client) GetIssue(ctx context.Context, creds domain.Credentials, key string) (*domain.Issue, error) {
    if key == "" { return nil, fmt.Errorf("jira: %w: empty issue key", tracker.ErrValidation) }
    var out issuePayload
    if err := c.do(ctx, creds, http.MethodGet, "/rest/api/3/issue/"+url.PathEscape(key), nil, nil, &out); err != nil { return nil, err }
    iss := out.toDomain()
    return &iss, nil
}

func (c *Client) CreateIssue(ctx context.Context, creds domain.Credentials, f tracker.Fields) (*domain.Issue, error) {
    if f.ProjectKey == "" { return nil, fmt.Errorf("jira: %w: missing project key", tracker.ErrValidation) }
    if f.Summary == nil || *f.Summary == "" { return nil, fmt.Errorf("jira: %w: missing summary", tracker.ErrValidation) }
    fields := map[string]any{
        "project": map[string]string{"key": f.ProjectKey},
        "summary": *f.Summary,
    }
    issueType := f.IssueType
    if issueType == "" { issueType = "Task" }
    fields["issuetype"] = map[string]string{"name": issueType}
    if f.Description != nil { fields["description"] = tracker.WrapText(*f.Description) }
    if f.Priority != nil { fields["priority"] = map[string]string{"name": priorityName(*f.Priority)} }
    if f.DueDate != nil { fields["duedate"] = f.DueDate.Format("2006-01-02") }
    if len(f.Labels) > 0 { fields["labels"] = f.Labels }
    var out struct {
        ID  string `json:"id"`
        Key string `json:"key"`
    }
    if err := c.do(ctx, creds, http.MethodPost, "/rest/api/3/issue", nil, map[string]any{"fields": fields}, &out); err != nil { return nil, err }
    return c.GetIssue(ctx, creds, out.Key)
}

func (c *Client) UpdateIssue(ctx context.Context, creds domain.Credentials, key string, f tracker.Fields) error {
    if key == "" { return fmt.Errorf("jira: %w: empty issue key", tracker.ErrValidation) }
    fields := map[string]any{}
    if f.Summary != nil { fields["summary"] = *f.Summary }
    if f.Description != nil { fields["description"] = tracker.WrapText(*f.Description) }
    if f.Priority != nil { fields["priority"] = map[string]string{"name": priorityName(*f.Priority)} }
    if f.DueDate != nil { fields["duedate"] = f.DueDate.Format("2006-01-02") }
    if f.Labels != nil { fields["labels"] = f.Labels }
    if len(fields) == 0 { return nil }
    return c.do(ctx, creds, http.MethodPut, "/rest/api/3/issue/"+url.PathEscape(key), nil, map[string]any{"fields": fields}, nil)
}

func (c *Client) ListTransitions(ctx context.Context, creds domain.Credentials, key string) ([]tracker.Transition, error) {
    if key == "" { return nil, fmt.Errorf("jira: %w: empty issue key", tracker.ErrValidation) }
    var out struct {
        Transitions []struct {
            ID   string `json:"id"`
            Name string `json:"name"`
            To   struct {
                Name string `json:"name"`
            } `json:"to"`
        } `json:"transitions"`
    }
    if err := c.do(ctx, creds, http.MethodGet, "/rest/api/3/issue/"+url.PathEscape(key)+"/transitions", nil, nil, &out); err != nil { return nil, err }
    ts := make([]tracker.Transition, 0, len(out.Transitions))
    for _, t := range out.Transitions {
        ts = append(ts, tracker.Transition{ID: t.ID, Name: t.Name, To: t.To.Name})
    }
    return ts, nil
}

func (c *Client) Transition(ctx context.Context, creds domain.Credentials, key, transitionID string) error {
    if key == "" || transitionID == "" { return fmt.Errorf("jira: %w: missing key or transition", tracker.ErrValidation) }
    body := map[string]any{"transition": map[string]string{"id": transitionID}}
    return c.do(ctx, creds, http.MethodPost, "/rest/api/3/issue/"+url.PathEscape(key)+"/transitions", nil, body, nil)
}

func (c *Client) AddComment(ctx context.Context, creds domain.Credentials, key, text string) error {
    if key == "" { return fmt.Errorf("jira: %w: empty issue key", tracker.ErrValidation) }
    body := map[string]any{"body": tracker.WrapText(text)}
    return c.do(ctx, creds, http.MethodPost, "/rest/api/3/issue/"+url.PathEscape(key)+"/comment", nil, body, nil)
}
