/* Copyright (c) 2025 Sartthi Labs
 * SPDX-License-Identifier: BSD-3-Clause */
package notify

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "time"

    "github.com/rs/zerolog"
    "github.com/sartthi/syncd/internal/config"
)

// MailClient posts messages to an HTTP mail relay.
type MailClient struct {
    url  string
    key  string
    from string
    http *http.Client
    log  zerolog.Logger
}

func NewMailClient(cfg config.Config, log zerolog.Logger) *MailClient {
    return &MailClient{
        url:  cfg.MailAPIURL,
        key:  cfg.MailAPIKey,
        from: cfg.MailFrom,
        http: &http.Client{Timeout: 10 * time.Second},
        log:  log,
    }
}

func (c *MailClient) Send(ctx context.Context, to []string, subject, body string) error {
    if c.url == "" { return fmt.Errorf("mail: relay not configured") }
    if len(to) == 0 { return fmt.Errorf("mail: no recipients") }
    payload := map[string]any{"from": c.from, "to": to, "subject": subject, "text": body}
    b, _ := json.Marshal(payload)
    req, _ := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewReader(b))
    req.Header.Set("Content-Type", "application/json")
    if c.key != "" { req.Header.Set("Authorization", "Bearer "+c.key) }
    resp, err := c.http.Do(req)
    if err != nil { return err }
    defer resp.Body.Close()
    if resp.StatusCode >= 300 {
        var bodyBytes []byte
        bodyBytes, _ = io.ReadAll(resp.Body)
        return fmt.Errorf("mail send status=%d body=%s", resp.StatusCode, string(bodyBytes))
    }
    return nil
}
