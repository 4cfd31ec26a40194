package notify

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

type mockMailer struct {
    mu   gosync.Mutex
    sent [][]string
    err  error
}

func (m *mockMailer) Send(ctx context.Context, to []string, subject, body string) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    if m.err != nil { return m.err }
    m.sent = append(m.sent, to)
    return nil
}

type denyLimiter struct{ denied map[string]bool }

func (d denyLimiter) Allow(ctx context.Context, key string) (bool, error) {
    return !d.denied[key], nil
}

func note(to ...string) domain.Notification {
    return domain.Notification{ID: uuid.New(), Recipients: to, Subject: "s", Body: "b", CreatedAt: time.Now()}
}

func TestEnqueue_FullBufferDropsInsteadOfBlocking(t *testing.T) {
    q := NewQueue(zerolog.Nop(), 1)
    if err := q.Enqueue(context.Background(), note("a@x.io")); err != nil { t.Fatalf("first enqueue: %v", err) }
    if err := q.Enqueue(context.Background(), note("b@x.io")); !errors.Is(err, ErrQueueFull) {
        t.Fatalf("expected queue full, got %v", err)
    }
}

func TestWorker_DeliversQueuedNotification(t *testing.T) {
    q := NewQueue(zerolog.Nop(), 4)
    m := &mockMailer{}
    w := NewWorker(zerolog.Nop(), q, m, nil, nil)

    ctx, cancel := context.WithCancel(context.Background())
    done := make(chan struct{})
    go func() { w.Run(ctx); close(done) }()

    if err := q.Enqueue(ctx, note("a@x.io", "b@x.io")); err != nil { t.Fatalf("enqueue: %v", err) }
    waitFor(t, func() bool {
        m.mu.Lock()
        defer m.mu.Unlock()
        return len(m.sent) == 1
    })
    cancel()
    <-done
    if len(m.sent[0]) != 2 { t.Fatalf("recipients: %v", m.sent[0]) }
}

func TestWorker_RateLimitedRecipientDropped(t *testing.T) {
    q := NewQueue(zerolog.Nop(), 4)
    m := &mockMailer{}
    w := NewWorker(zerolog.Nop(), q, m, denyLimiter{denied: map[string]bool{"spam@x.io": true}}, nil)

    ctx, cancel := context.WithCancel(context.Background())
    done := make(chan struct{})
    go func() { w.Run(ctx); close(done) }()

    if err := q.Enqueue(ctx, note("ok@x.io", "spam@x.io")); err != nil { t.Fatalf("enqueue: %v", err) }
    waitFor(t, func() bool {
        m.mu.Lock()
        defer m.mu.Unlock()
        return len(m.sent) == 1
    })
    cancel()
    <-done
    if len(m.sent[0]) != 1 || m.sent[0][0] != "ok@x.io" {
        t.Fatalf("expected limited recipient dropped: %v", m.sent[0])
    }
}

func TestWorker_AllRecipientsLimitedSendsNothing(t *testing.T) {
    q := NewQueue(zerolog.Nop(), 4)
    m := &mockMailer{}
    w := NewWorker(zerolog.Nop(), q, m, denyLimiter{denied: map[string]bool{"a@x.io": true}}, nil)

    ctx, cancel := context.WithCancel(context.Background())
    done := make(chan struct{})
    go func() { w.Run(ctx); close(done) }()

    if err := q.Enqueue(ctx, note("a@x.io")); err != nil { t.Fatalf("enqueue: %v", err) }
    time.Sleep(100 * time.Millisecond)
    cancel()
    <-done
    m.mu.Lock()
    defer m.mu.Unlock()
    if len(m.sent) != 0 { t.Fatalf("nothing should be sent: %v", m.sent) }
}

func waitFor(t *testing.T, cond func() bool) {
    t.Helper()
    deadline := time.Now().Add(2 * time.Second)
    for time.Now().Before(deadline) {
        if cond() { return }
        time.Sleep(10 * time.Millisecond)
    }
    t.Fatal("condition not met in time")
}
