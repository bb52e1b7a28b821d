// Package notify informs an external agent runtime that a block's
// committed content changed so it can refresh its working copy. Sync is
// best-effort and eventually consistent: the version store is the source
// of truth, and a failed notification never rolls back a commit —
// callers log the error and move on.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrSyncUnavailable is returned when the runtime could not be reached.
var ErrSyncUnavailable = errors.New("sync unavailable")

// Notifier is the contract the block manager and approval engine call
// after every successful commit.
type Notifier interface {
	Notify(ctx context.Context, userID, label, newBody string) error
}

// --- LogNotifier ---

// logSink is the slice of the logger the notifier needs.
type logSink interface {
	Info(msg string, keysAndValues ...any)
}

// LogNotifier records block changes to the log. It is the default when
// no webhook is configured and never fails.
type LogNotifier struct {
	log logSink
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(log logSink) *LogNotifier {
	return &LogNotifier{log: log}
}

// Notify logs the change.
func (n *LogNotifier) Notify(ctx context.Context, userID, label, newBody string) error {
	n.log.Info("block committed",
		"user_id", userID,
		"block_label", label,
		"body_bytes", len(newBody),
	)
	return nil
}

// --- WebhookNotifier ---

// webhookTimeout bounds a single notification attempt. The caller treats
// failures as non-fatal, so a short timeout keeps commits snappy.
const webhookTimeout = 5 * time.Second

// WebhookNotifier POSTs block changes as JSON to a configured endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a WebhookNotifier for the given URL.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: webhookTimeout},
	}
}

// payload is the wire format of a change notification.
type payload struct {
	UserID     string `json:"user_id"`
	BlockLabel string `json:"block_label"`
	Body       string `json:"body"`
	NotifiedAt string `json:"notified_at"`
}

// Notify delivers the change. Any transport failure or non-2xx response
// maps to ErrSyncUnavailable.
func (n *WebhookNotifier) Notify(ctx context.Context, userID, label, newBody string) error {
	body, err := json.Marshal(payload{
		UserID:     userID,
		BlockLabel: label,
		Body:       newBody,
		NotifiedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("notify: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: %w: %v", ErrSyncUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notify: status %d: %w", resp.StatusCode, ErrSyncUnavailable)
	}
	return nil
}
