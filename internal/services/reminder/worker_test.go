package reminder

import (
    "context"
    "errors"
    gosync "sync"
    "testing"
    "time"

    "github.com/google/uuid"
    "github.com/rs/zerolog"
    "github.com/sartthi/syncd/internal/domain"
)

type mockWorkerStore struct {
    mu        gosync.Mutex
    due       []domain.Trigger
    deleted   []uuid.UUID
    next      map[uuid.UUID]time.Time
    lastLimit int
}

func (m *mockWorkerStore) DueTriggers(ctx context.Context, now time.Time, limit int) ([]domain.Trigger, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    m.lastLimit = limit
    if len(m.due) > limit { return m.due[:limit], nil }
    return m.due, nil
}

func (m *mockWorkerStore) DeleteTrigger(ctx context.Context, id uuid.UUID) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    m.deleted = append(m.deleted, id)
    return nil
}

func (m *mockWorkerStore) RescheduleTrigger(ctx context.Context, id uuid.UUID, next time.Time) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    if m.next == nil { m.next = map[uuid.UUID]time.Time{} }
    m.next[id] = next
    return nil
}

type mockDirectory struct {
    emails map[string]string
    err    error
}

func (m mockDirectory) Emails(ctx context.Context, userIDs []string) ([]string, error) {
    if m.err != nil { return nil, m.err }
    var out []string
    for _, id := range userIDs {
        if e, ok := m.emails[id]; ok { out = append(out, e) }
    }
    return out, nil
}

type mockNotifier struct {
    mu   gosync.Mutex
    sent []domain.Notification
    err  error
}

func (m *mockNotifier) Enqueue(ctx context.Context, n domain.Notification) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    if m.err != nil { return m.err }
    m.sent = append(m.sent, n)
    return nil
}

func trig(at time.Time, repeat int, users ...string) domain.Trigger {
    return domain.Trigger{
        ID: uuid.New(), EntityType: "event", EntityID: "ev1", WorkspaceID: "ws1",
        UserIDs: users, Type: domain.TriggerPreDeadline, TriggerTime: at,
        Payload:       domain.TriggerPayload{Title: "Standup"},
        RepeatMinutes: repeat,
    }
}

func newTestWorker(store *mockWorkerStore, dir Directory, n Notifier, batch int, now time.Time) *Worker {
    w := NewWorker(zerolog.Nop(), store, dir, n, nil, batch)
    w.clock = func() time.Time { return now }
    return w
}

func TestRunOnce_FiresAndConsumes(t *testing.T) {
    now := time.Now()
    tr := trig(now.Add(-time.Minute), 0, "alice", "bob")
    store := &mockWorkerStore{due: []domain.Trigger{tr}}
    dir := mockDirectory{emails: map[string]string{"alice": "a@x.io", "bob": "b@x.io"}}
    n := &mockNotifier{}
    w := newTestWorker(store, dir, n, 100, now)

    if err := w.RunOnce(context.Background()); err != nil { t.Fatalf("RunOnce: %v", err) }
    if len(n.sent) != 1 { t.Fatalf("expected one notification, got %d", len(n.sent)) }
    if len(n.sent[0].Recipients) != 2 { t.Fatalf("recipients: %v", n.sent[0].Recipients) }
    if n.sent[0].Subject != "Reminder: Standup" { t.Fatalf("subject: %q", n.sent[0].Subject) }
    if len(store.deleted) != 1 || store.deleted[0] != tr.ID { t.Fatal("one-shot trigger must be deleted after firing") }
}

func TestRunOnce_BatchLimitPassedToStore(t *testing.T) {
    store := &mockWorkerStore{}
    w := newTestWorker(store, mockDirectory{}, &mockNotifier{}, 100, time.Now())
    if err := w.RunOnce(context.Background()); err != nil { t.Fatalf("RunOnce: %v", err) }
    if store.lastLimit != 100 { t.Fatalf("expected batch limit 100, got %d", store.lastLimit) }
}

func TestRunOnce_RecipientlessTriggerDiscarded(t *testing.T) {
    now := time.Now()
    tr := trig(now.Add(-time.Minute), 0, "ghost")
    store := &mockWorkerStore{due: []domain.Trigger{tr}}
    n := &mockNotifier{}
    w := newTestWorker(store, mockDirectory{emails: map[string]string{}}, n, 100, now)

    if err := w.RunOnce(context.Background()); err != nil { t.Fatalf("RunOnce: %v", err) }
    if len(n.sent) != 0 { t.Fatal("nothing should be sent without recipients") }
    if len(store.deleted) != 1 { t.Fatal("recipientless trigger must still be consumed") }
}

func TestRunOnce_DispatchFailureStillConsumes(t *testing.T) {
    now := time.Now()
    tr := trig(now.Add(-time.Minute), 0, "alice")
    store := &mockWorkerStore{due: []domain.Trigger{tr}}
    n := &mockNotifier{err: errors.New("queue full")}
    w := newTestWorker(store, mockDirectory{emails: map[string]string{"alice": "a@x.io"}}, n, 100, now)

    if err := w.RunOnce(context.Background()); err != nil { t.Fatalf("RunOnce: %v", err) }
    if len(store.deleted) != 1 { t.Fatal("dispatch failure must not leave the trigger to re-fire") }
}

func TestRunOnce_RepeatingTriggerReschedules(t *testing.T) {
    now := time.Now()
    tr := trig(now.Add(-time.Minute), 30, "alice")
    store := &mockWorkerStore{due: []domain.Trigger{tr}}
    n := &mockNotifier{}
    w := newTestWorker(store, mockDirectory{emails: map[string]string{"alice": "a@x.io"}}, n, 100, now)

    if err := w.RunOnce(context.Background()); err != nil { t.Fatalf("RunOnce: %v", err) }
    if len(store.deleted) != 0 { t.Fatal("repeating trigger must not be deleted") }
    next, ok := store.next[tr.ID]
    if !ok { t.Fatal("repeating trigger must be rescheduled") }
    if want := now.Add(30 * time.Minute); !next.Equal(want) {
        t.Fatalf("next fire: got %v, want %v", next, want)
    }
    if len(n.sent) != 1 { t.Fatal("repeating trigger still notifies") }
}

func TestRunOnce_DirectoryErrorLeavesTrigger(t *testing.T) {
    now := time.Now()
    tr := trig(now.Add(-time.Minute), 0, "alice")
    store := &mockWorkerStore{due: []domain.Trigger{tr}}
    w := newTestWorker(store, mockDirectory{err: errors.New("db down")}, &mockNotifier{}, 100, now)

    if err := w.RunOnce(context.Background()); err != nil { t.Fatalf("RunOnce: %v", err) }
    if len(store.deleted) != 0 { t.Fatal("lookup failure must leave the trigger for the next tick") }
}

func TestSubject_DeadlineVariant(t *testing.T) {
    tr := trig(time.Now(), 0, "alice")
    tr.Type = domain.TriggerDeadlineReached
    if got := subject(tr); got != "Due now: Standup" { t.Fatalf("subject: %q", got) }
    tr.Payload.Message = "Timer still running for: Standup"
    if got := subject(tr); got != tr.Payload.Message { t.Fatalf("message override: %q", got) }
}
