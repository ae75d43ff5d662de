package plan

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Notifier delivers a copy of a submission to a secondary endpoint. Its
// outcome never affects the submitter.
type Notifier interface {
	Notify(ctx context.Context, payload []byte) error
}

// WebhookNotifier POSTs the payload as JSON to a fixed URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a notifier for url. timeout bounds each
// delivery.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Notify sends payload and treats any non-2xx reply as a failure.
//
// NOTE: This implements the Notifier interface.
func (w *WebhookNotifier) Notify(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, w.url, bytes.NewReader(payload),
	)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("secondary webhook returned %d", resp.StatusCode)
	}

	return nil
}

var _ Notifier = (*WebhookNotifier)(nil)
