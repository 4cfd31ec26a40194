package sync

import (
    "context"
    "errors"
    gosync "sync"
    "testing"
    "time"

    "github.com/rs/zerolog"
    "github.com/sartthi/syncd/internal/domain"
    "github.com/sartthi/syncd/internal/tracker"
)

type mockStore struct {
    mu      gosync.Mutex
    issues  map[string]domain.Issue
    upserts int
    failKey string
}

func newMockStore() *mockStore { return &mockStore{issues: map[string]domain.Issue{}} }

func (m *mockStore) key(kind domain.TrackerKind, k string) string { return string(kind) + "|" + k }

func (m *mockStore) UpsertIssue(ctx context.Context, iss domain.Issue) (*domain.Issue, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    if iss.IssueKey == m.failKey { return nil, errors.New("db down") }
    m.upserts++
    m.issues[m.key(iss.Kind, iss.IssueKey)] = iss
    cp := iss
    return &cp, nil
}

func (m *mockStore) GetIssue(ctx context.Context, kind domain.TrackerKind, key string) (*domain.Issue, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    iss, ok := m.issues[m.key(kind, key)]
    if !ok { return nil, nil }
    cp := iss
    return &cp, nil
}

func (m *mockStore) DeleteIssue(ctx context.Context, kind domain.TrackerKind, key string) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    delete(m.issues, m.key(kind, key))
    return nil
}

type fakeAdapter struct {
    mu          gosync.Mutex
    transitions []tracker.Transition
    updated     []tracker.Fields
    moved       []string
    updateErr   error
}

func (f *fakeAdapter) Kind() domain.TrackerKind { return domain.KindJira }
func (f *fakeAdapter) Search(ctx context.Context, c domain.Credentials, q string, max int) ([]domain.Issue, error) {
    return []domain.Issue{
        {Kind: domain.KindJira, IssueKey: "PROJ-1", Summary: "one"},
        {Kind: domain.KindJira, IssueKey: "PROJ-2", Summary: "two"},
    }, nil
}
func (f *fakeAdapter) GetIssue(ctx context.Context, c domain.Credentials, key string) (*domain.Issue, error) {
    return &domain.Issue{Kind: domain.KindJira, IssueKey: key}, nil
}
func (f *fakeAdapter) CreateIssue(ctx context.Context, c domain.Credentials, fl tracker.Fields) (*domain.Issue, error) {
    return &domain.Issue{Kind: domain.KindJira, IssueKey: "PROJ-9", Summary: *fl.Summary}, nil
}
func (f *fakeAdapter) UpdateIssue(ctx context.Context, c domain.Credentials, key string, fl tracker.Fields) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    if f.updateErr != nil { return f.updateErr }
    f.updated = append(f.updated, fl)
    return nil
}
func (f *fakeAdapter) ListTransitions(ctx context.Context, c domain.Credentials, key string) ([]tracker.Transition, error) {
    return f.transitions, nil
}
func (f *fakeAdapter) Transition(ctx context.Context, c domain.Credentials, key, id string) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.moved = append(f.moved, id)
    return nil
}
func (f *fakeAdapter) AddComment(ctx context.Context, c domain.Credentials, key, text string) error { return nil }
func (f *fakeAdapter) MapStatus(native string) domain.Status { return domain.ParseStatus(native) }
func (f *fakeAdapter) StatusName(s domain.Status) string     { return string(s) }
func (f *fakeAdapter) MapPriority(n string) domain.Priority  { return domain.ParsePriority(n) }
func (f *fakeAdapter) PriorityName(p domain.Priority) string { return string(p) }

type fakeCreds struct{ connected bool }

func (f fakeCreds) Resolve(ctx context.Context, userID string, kind domain.TrackerKind) (*domain.Credentials, error) {
    if !f.connected { return nil, nil }
    return &domain.Credentials{UserID: userID, Kind: kind, AccessToken: "t", BaseURL: "http://x"}, nil
}

func newEngine(store *mockStore, a *fakeAdapter, connected bool) *Engine {
    return NewEngine(zerolog.Nop(), store, fakeCreds{connected: connected},
        map[domain.TrackerKind]tracker.Adapter{domain.KindJira: a}, nil)
}

func TestSyncIssueToLocal_Idempotent(t *testing.T) {
    store := newMockStore()
    e := newEngine(store, &fakeAdapter{}, true)
    iss := domain.Issue{Kind: domain.KindJira, IssueKey: "PROJ-1", Summary: "hello", Status: "To Do"}

    first, err := e.SyncIssueToLocal(context.Background(), iss, "ws1")
    if err != nil { t.Fatalf("first sync: %v", err) }
    second, err := e.SyncIssueToLocal(context.Background(), iss, "ws1")
    if err != nil { t.Fatalf("second sync: %v", err) }

    if len(store.issues) != 1 { t.Fatalf("expected one record, got %d", len(store.issues)) }
    if second.Summary != first.Summary || second.Status != first.Status || second.WorkspaceID != first.WorkspaceID {
        t.Fatalf("second sync changed content: %+v vs %+v", first, second)
    }
    if second.LastSyncedAt.Before(first.LastSyncedAt) {
        t.Fatal("lastSyncedAt must be monotonic")
    }
}

func TestSyncIssueToLocal_RequiresKey(t *testing.T) {
    e := newEngine(newMockStore(), &fakeAdapter{}, true)
    if _, err := e.SyncIssueToLocal(context.Background(), domain.Issue{Kind: domain.KindJira}, "ws1"); !errors.Is(err, tracker.ErrValidation) {
        t.Fatalf("expected validation error, got %v", err)
    }
}

func TestUpdateIssue_LocalWriteSurvivesPushFailure(t *testing.T) {
    store := newMockStore()
    a := &fakeAdapter{updateErr: errors.New("remote down")}
    e := newEngine(store, a, true)
    store.issues["jira|PROJ-1"] = domain.Issue{Kind: domain.KindJira, IssueKey: "PROJ-1", Summary: "old"}

    title := "new title"
    stored, err := e.UpdateIssue(context.Background(), "u1", domain.KindJira, "PROJ-1", LocalUpdate{Title: &title})
    if err != nil { t.Fatalf("local update must not fail on push error: %v", err) }
    if stored.Summary != "new title" { t.Fatalf("local write lost: %+v", stored) }
    if store.issues["jira|PROJ-1"].Summary != "new title" { t.Fatal("store not updated") }
}

func TestUpdateIssue_SelectsTransitionByTargetStatus(t *testing.T) {
    store := newMockStore()
    a := &fakeAdapter{transitions: []tracker.Transition{
        {ID: "11", Name: "Start", To: "In Progress"},
        {ID: "31", Name: "Finish", To: "Done"},
    }}
    e := newEngine(store, a, true)
    store.issues["jira|PROJ-1"] = domain.Issue{Kind: domain.KindJira, IssueKey: "PROJ-1", Status: "In Progress"}

    status := "completed"
    if _, err := e.UpdateIssue(context.Background(), "u1", domain.KindJira, "PROJ-1", LocalUpdate{Status: &status}); err != nil {
        t.Fatalf("UpdateIssue: %v", err)
    }
    if len(a.moved) != 1 || a.moved[0] != "31" {
        t.Fatalf("expected transition 31 (to Done), got %v", a.moved)
    }
}

func TestUpdateIssue_NoMatchingTransitionSkipsQuietly(t *testing.T) {
    store := newMockStore()
    a := &fakeAdapter{transitions: []tracker.Transition{{ID: "11", Name: "Start", To: "In Progress"}}}
    e := newEngine(store, a, true)
    store.issues["jira|PROJ-1"] = domain.Issue{Kind: domain.KindJira, IssueKey: "PROJ-1", Status: "To Do"}

    status := "completed"
    stored, err := e.UpdateIssue(context.Background(), "u1", domain.KindJira, "PROJ-1", LocalUpdate{Status: &status})
    if err != nil { t.Fatalf("UpdateIssue: %v", err) }
    if len(a.moved) != 0 { t.Fatalf("no transition should fire, got %v", a.moved) }
    if stored.Status != "Done" { t.Fatalf("local status still updates: %q", stored.Status) }
}

func TestUpdateIssue_MissingLocalIsNotFound(t *testing.T) {
    e := newEngine(newMockStore(), &fakeAdapter{}, true)
    title := "x"
    _, err := e.UpdateIssue(context.Background(), "u1", domain.KindJira, "NOPE-1", LocalUpdate{Title: &title})
    if !errors.Is(err, tracker.ErrNotFound) { t.Fatalf("expected not found, got %v", err) }
}

func TestImportIssues_SyncsAllHits(t *testing.T) {
    store := newMockStore()
    e := newEngine(store, &fakeAdapter{}, true)
    out, err := e.ImportIssues(context.Background(), "u1", "ws1", domain.KindJira, "login", 50)
    if err != nil { t.Fatalf("ImportIssues: %v", err) }
    if len(out) != 2 || len(store.issues) != 2 { t.Fatalf("expected 2 synced, got %d/%d", len(out), len(store.issues)) }
}

func TestImportIssues_IsolatesPerIssueFailure(t *testing.T) {
    store := newMockStore()
    store.failKey = "PROJ-1"
    e := newEngine(store, &fakeAdapter{}, true)
    out, err := e.ImportIssues(context.Background(), "u1", "ws1", domain.KindJira, "login", 50)
    if err != nil { t.Fatalf("ImportIssues: %v", err) }
    if len(out) != 1 || out[0].IssueKey != "PROJ-2" { t.Fatalf("expected surviving issue, got %+v", out) }
}

func TestImportIssues_NotConnected(t *testing.T) {
    e := newEngine(newMockStore(), &fakeAdapter{}, false)
    _, err := e.ImportIssues(context.Background(), "u1", "ws1", domain.KindJira, "q", 10)
    if !errors.Is(err, tracker.ErrNotConnected) { t.Fatalf("expected not connected, got %v", err) }
}

func TestKeyedMutex_SerializesSameKeyOnly(t *testing.T) {
    km := newKeyedMutex()
    unlockA := km.Lock("a")
    done := make(chan struct{})
    go func() {
        unlockB := km.Lock("b") // different key, must not block
        unlockB()
        close(done)
    }()
    select {
    case <-done:
    case <-time.After(time.Second):
        t.Fatal("different keys must not contend")
    }

    blocked := make(chan struct{})
    go func() {
        unlock := km.Lock("a")
        unlock()
        close(blocked)
    }()
    select {
    case <-blocked:
        t.Fatal("same key must block until unlocked")
    case <-time.After(50 * time.Millisecond):
    }
    unlockA()
    select {
    case <-blocked:
    case <-time.After(time.Second):
        t.Fatal("unlock must release the waiter")
    }
}
