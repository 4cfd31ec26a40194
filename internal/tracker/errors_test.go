package tracker

import (
    "errors"
    "testing"
)

func TestClassifyStatus(t *testing.T) {
    cases := []struct {
        code int
        want error
    }{
        {200, nil},
        {204, nil},
        {400, ErrValidation},
        {401, ErrAuthInvalid},
        {403, ErrPermission},
        {404, ErrNotFound},
        {410, ErrEndpointRemoved},
        {429, ErrTransient},
        {500, ErrTransient},
        {503, ErrTransient},
    }
    for _, c := range cases {
        got := ClassifyStatus(c.code)
        if c.want == nil {
            if got != nil { t.Fatalf("status %d: expected nil, got %v", c.code, got) }
            continue
        }
        if !errors.Is(got, c.want) { t.Fatalf("status %d: expected %v, got %v", c.code, c.want, got) }
    }
}

func TestMessage_NeverEchoesBodies(t *testing.T) {
    for _, code := range []int{401, 403, 404, 410, 500} {
        msg := Message(ClassifyStatus(code))
        if msg == "" { t.Fatalf("status %d: empty message", code) }
        if len(msg) > 80 { t.Fatalf("status %d: message too long: %q", code, msg) }
    }
}

func TestRetryable(t *testing.T) {
    if !Retryable(429) || !Retryable(500) || !Retryable(503) { t.Fatal("429/5xx must be retryable") }
    if Retryable(401) || Retryable(404) || Retryable(200) { t.Fatal("non-transient codes must not be retryable") }
}
