/* Copyright (c) 2025 Sartthi Labs
 * SPDX-License-Identifier: BSD-3-Clause */
package linear

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "strings"
    "time"

    "github.com/rs/zerolog"
    "github.com/sartthi/syncd/internal/config"
    "github.com/sartthi/syncd/internal/domain"
    "github.com/sartthi/syncd/internal/tracker"
)

// Client talks to a Linear-compatible GraphQL API: one endpoint, every
// operation a query or mutation against it.
type Client struct {
    http *http.Client
    log  zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    return &Client{http: &http.Client{Timeout: cfg.HTTPTimeout}, log: log}
}

func (c *Client) Kind() domain.TrackerKind { return domain.KindLinear }

type gqlError struct {
    Message string `json:"message"`
}

func (c *Client) gql(ctx context.Context, creds domain.Credentials, query string, vars map[string]any, out any) error {
    if creds.BaseURL == "" { return fmt.Errorf("linear: %w", tracker.ErrNotConnected) }
    payload, err := json.Marshal(map[string]any{"query": query, "variables": vars})
    if err != nil { return err }
    var lastErr error
    for attempt := 0; attempt < 3; attempt++ {
        req, err := http.NewRequestWithContext(ctx, http.MethodPost, creds.BaseURL, bytes.NewReader(payload))
        if err != nil { return err }
        req.Header.Set("Content-Type", "application/json")
        req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
        resp, err := c.http.Do(req)
        if err != nil {
            lastErr = fmt.Errorf("%w: %v", tracker.ErrTransient, err)
        } else {
            if resp.StatusCode >= 300 {
                io.Copy(io.Discard, resp.Body)
                resp.Body.Close()
                cerr := tracker.ClassifyStatus(resp.StatusCode)
                if !tracker.Retryable(resp.StatusCode) { return cerr }
                lastErr = cerr
            } else {
                var envelope struct {
                    Data   json.RawMessage `json:"data"`
                    Errors []gqlError      `json:"errors"`
                }
                err := json.NewDecoder(resp.Body).Decode(&envelope)
                resp.Body.Close()
                if err != nil { return err }
                if len(envelope.Errors) > 0 { return classifyGQL(envelope.Errors[0].Message) }
                if out == nil { return nil }
                return json.Unmarshal(envelope.Data, out)
            }
        }
        time.Sleep(time.Duration(300*(1<<attempt)) * time.Millisecond)
    }
    return lastErr
}

func classifyGQL(msg string) error {
    m := strings.ToLower(msg)
    switch {
    case strings.Contains(m, "not found") || strings.Contains(m, "could not find"):
        return fmt.Errorf("%w: %s", tracker.ErrNotFound, msg)
    case strings.Contains(m, "authentication") || strings.Contains(m, "access token"):
        return fmt.Errorf("%w: %s", tracker.ErrAuthInvalid, msg)
    case strings.Contains(m, "permission") || strings.Contains(m, "forbidden"):
        return fmt.Errorf("%w: %s", tracker.ErrPermission, msg)
    default:
        return fmt.Errorf("%w: %s", tracker.ErrValidation, msg)
    }
}

const issueFragment = `
  id
  identifier
  title
  description
  priority
  dueDate
  updatedAt
  state { name type }
  team { key name }
  labels { nodes { name } }
`

func (c *Client) Search(ctx context.Context, creds domain.Credentials, query string, max int) ([]domain.Issue, error) {
    if max <= 0 { max = 50 }
    q := `query($term: String!, $first: Int!) {
      issues(filter: { title: { containsIgnoreCase: $term } }, first: $first) {
        nodes {` + issueFragment + `}
      }
    }`
    var out struct {
        Issues struct {
            Nodes []issueNode `json:"nodes"`
        } `json:"issues"`
    }
    if err := c.gql(ctx, creds, q, map[string]any{"term": query, "first": max}, &out); err != nil { return nil, err }
    issues := make([]domain.Issue, 0, len(out.Issues.Nodes))
    for i := range out.Issues.Nodes { issues = append(issues, out.Issues.Nodes[i].toDomain()) }
    return issues, nil
}

func (c *Client) GetIssue(ctx context.Context, creds domain.Credentials, key string) (*domain.Issue, error) {
    if key == "" { return nil, fmt.Errorf("linear: %w: empty issue key", tracker.ErrValidation) }
    q := `query($id: String!) { issue(id: $id) {` + issueFragment + `} }`
    var out struct {
        Issue *issueNode `json:"issue"`
    }
    if err := c.gql(ctx, creds, q, map[string]any{"id": key}, &out); err != nil { return nil, err }
    if out.Issue == nil { return nil, fmt.Errorf("linear: %w: %s", tracker.ErrNotFound, key) }
    iss := out.Issue.toDomain()
    return &iss, nil
}

func (c *Client) CreateIssue(ctx context.Context, creds domain.Credentials, f tracker.Fields) (*domain.Issue, error) {
    if f.ProjectKey == "" { return nil, fmt.Errorf("linear: %w: missing team", tracker.ErrValidation) }
    if f.Summary == nil || *f.Summary == "" { return nil, fmt.Errorf("linear: %w: missing title", tracker.ErrValidation) }
    input := map[string]any{"teamId": f.ProjectKey, "title": *f.Summary}
    if f.Description != nil { input["description"] = *f.Description }
    if f.Priority != nil { input["priority"] = priorityNumber(*f.Priority) }
    if f.DueDate != nil { input["dueDate"] = f.DueDate.Format("2006-01-02") }
    q := `mutation($input: IssueCreateInput!) {
      issueCreate(input: $input) { success issue {` + issueFragment + `} }
    }`
    var out struct {
        IssueCreate struct {
            Success bool       `json:"success"`
            Issue   *issueNode `json:"issue"`
        } `json:"issueCreate"`
    }
    if err := c.gql(ctx, creds, q, map[string]any{"input": input}, &out); err != nil { return nil, err }
    if !out.IssueCreate.Success || out.IssueCreate.Issue == nil {
        return nil, fmt.Errorf("linear: %w: create rejected", tracker.ErrValidation)
    }
    iss := out.IssueCreate.Issue.toDomain()
    return &iss, nil
}

func (c *Client) UpdateIssue(ctx context.Context, creds domain.Credentials, key string, f tracker.Fields) error {
    if key == "" { return fmt.Errorf("linear: %w: empty issue key", tracker.ErrValidation) }
    input := map[string]any{}
    if f.Summary != nil { input["title"] = *f.Summary }
    if f.Description != nil { input["description"] = *f.Description }
    if f.Priority != nil { input["priority"] = priorityNumber(*f.Priority) }
    if f.DueDate != nil { input["dueDate"] = f.DueDate.Format("2006-01-02") }
    if len(input) == 0 { return nil }
    return c.update(ctx, creds, key, input)
}

func (c *Client) update(ctx context.Context, creds domain.Credentials, key string, input map[string]any) error {
    q := `mutation($id: String!, $input: IssueUpdateInput!) {
      issueUpdate(id: $id, input: $input) { success }
    }`
    var out struct {
        IssueUpdate struct {
            Success bool `json:"success"`
        } `json:"issueUpdate"`
    }
    if err := c.gql(ctx, creds, q, map[string]any{"id": key, "input": input}, &out); err != nil { return err }
    if !out.IssueUpdate.Success { return fmt.Errorf("linear: %w: update rejected", tracker.ErrValidation) }
    return nil
}

// ListTransitions lists the workflow states of the issue's team; moving
// an issue is a state change, so each state is offered as a transition
// targeting itself.
func (c *Client) ListTransitions(ctx context.Context, creds domain.Credentials, key string) ([]tracker.Transition, error) {
    if key == "" { return nil, fmt.Errorf("linear: %w: empty issue key", tracker.ErrValidation) }
    q := `query($id: String!) {
      issue(id: $id) { team { states { nodes { id name type } } } }
    }`
    var out struct {
        Issue *struct {
            Team struct {
                States struct {
                    Nodes []struct {
                        ID   string `json:"id"`
                        Name string `json:"name"`
                        Type string `json:"type"`
                    } `json:"nodes"`
                } `json:"states"`
            } `json:"team"`
        } `json:"issue"`
    }
    if err := c.gql(ctx, creds, q, map[string]any{"id": key}, &out); err != nil { return nil, err }
    if out.Issue == nil { return nil, fmt.Errorf("linear: %w: %s", tracker.ErrNotFound, key) }
    states := out.Issue.Team.States.Nodes
    ts := make([]tracker.Transition, 0, len(states))
    for _, s := range states {
        ts = append(ts, tracker.Transition{ID: s.ID, Name: s.Name, To: s.Name})
    }
    return ts, nil
}

func (c *Client) Transition(ctx context.Context, creds domain.Credentials, key, transitionID string) error {
    if key == "" || transitionID == "" { return fmt.Errorf("linear: %w: missing key or state", tracker.ErrValidation) }
    return c.update(ctx, creds, key, map[string]any{"stateId": transitionID})
}

func (c *Client) AddComment(ctx context.Context, creds domain.Credentials, key, text string) error {
    if key == "" { return fmt.Errorf("linear: %w: empty issue key", tracker.ErrValidation) }
    q := `mutation($input: CommentCreateInput!) {
      commentCreate(input: $input) { success }
    }`
    var out struct {
        CommentCreate struct {
            Success bool `json:"success"`
        } `json:"commentCreate"`
    }
    vars := map[string]any{"input": map[string]any{"issueId": key, "body": text}}
    if err := c.gql(ctx, creds, q, vars, &out); err != nil { return err }
    if !out.CommentCreate.Success { return fmt.Errorf("linear: %w: comment rejected", tracker.ErrValidation) }
    return nil
}
