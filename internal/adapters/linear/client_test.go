package linear

import (
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/rs/zerolog"
    "github.com/sartthi/syncd/internal/config"
    "github.com/sartthi/syncd/internal/domain"
    "github.com/sartthi/syncd/internal/tracker"
)

func testClient() *Client {
    return NewClient(config.Config{HTTPTimeout: 2 * time.Second}, zerolog.Nop())
}

func creds(url string) domain.Credentials {
    return domain.Credentials{UserID: "u1", Kind: domain.KindLinear, AccessToken: "tok", BaseURL: url}
}

func gqlServer(t *testing.T, handler func(query string, vars map[string]any) any) *httptest.Server {
    t.Helper()
    return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        var req struct {
            Query     string         `json:"query"`
            Variables map[string]any `json:"variables"`
        }
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            t.Errorf("bad request body: %v", err)
        }
        json.NewEncoder(w).Encode(map[string]any{"data": handler(req.Query, req.Variables)})
    }))
}

func TestGetIssue_Normalizes(t *testing.T) {
    srv := gqlServer(t, func(query string, vars map[string]any) any {
        return map[string]any{"issue": map[string]any{
            "id": "abc-123", "identifier": "ENG-42", "title": "Ship it",
            "description": "plain markdown", "priority": 1,
            "dueDate": "2026-09-01", "updatedAt": "2026-08-30T12:00:00Z",
            "state": map[string]any{"name": "In Progress", "type": "started"},
            "team":  map[string]any{"key": "ENG", "name": "Engineering"},
            "labels": map[string]any{"nodes": []map[string]any{{"name": "backend"}}},
        }}
    })
    defer srv.Close()
    iss, err := testClient().GetIssue(context.Background(), creds(srv.URL), "ENG-42")
    if err != nil { t.Fatalf("GetIssue: %v", err) }
    if iss.IssueKey != "ENG-42" || iss.Priority != "Urgent" || iss.Status != "In Progress" {
        t.Fatalf("bad normalization: %+v", iss)
    }
    if len(iss.Labels) != 1 || iss.Labels[0] != "backend" { t.Fatalf("labels: %+v", iss.Labels) }
    if iss.RemoteUpdated == nil { t.Fatal("expected updated timestamp") }
}

func TestGetIssue_NotFound(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        json.NewEncoder(w).Encode(map[string]any{
            "errors": []map[string]any{{"message": "Entity not found: Issue"}},
        })
    }))
    defer srv.Close()
    _, err := testClient().GetIssue(context.Background(), creds(srv.URL), "ENG-404")
    if !errors.Is(err, tracker.ErrNotFound) { t.Fatalf("expected not found, got %v", err) }
}

func TestMapStatus_Total(t *testing.T) {
    c := testClient()
    cases := map[string]domain.Status{
        "Backlog":     domain.StatusToDo,
        "Todo":        domain.StatusToDo,
        "In Progress": domain.StatusInProgress,
        "Started":     domain.StatusInProgress,
        "Done":        domain.StatusDone,
        "Canceled":    domain.StatusDone,
        "":            domain.StatusToDo,
        "Triage":      domain.StatusToDo,
    }
    for in, want := range cases {
        if got := c.MapStatus(in); got != want { t.Fatalf("%q: got %q, want %q", in, got, want) }
    }
}

func TestPriorityNumbers(t *testing.T) {
    if priorityNumber(domain.PriorityUrgent) != 1 || priorityNumber(domain.PriorityLow) != 4 {
        t.Fatal("priority numbering broken")
    }
    for _, p := range []domain.Priority{domain.PriorityLow, domain.PriorityMedium, domain.PriorityHigh, domain.PriorityUrgent} {
        if got := testClient().MapPriority(testClient().PriorityName(p)); got != p {
            t.Fatalf("%q: round trip gave %q", p, got)
        }
    }
}

func TestTransition_SendsStateID(t *testing.T) {
    var sawState string
    srv := gqlServer(t, func(query string, vars map[string]any) any {
        if input, ok := vars["input"].(map[string]any); ok {
            sawState, _ = input["stateId"].(string)
        }
        return map[string]any{"issueUpdate": map[string]any{"success": true}}
    })
    defer srv.Close()
    if err := testClient().Transition(context.Background(), creds(srv.URL), "ENG-1", "state-9"); err != nil {
        t.Fatalf("Transition: %v", err)
    }
    if sawState != "state-9" { t.Fatalf("expected stateId sent, got %q", sawState) }
}
