// Package webhook POSTs each stream entry as a JSON document to an HTTP
// endpoint. Receivers can deduplicate redeliveries with the Idempotency-Key
// header, which is stable per feed and seqno.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/pithecene-io/osm/adapter"
	"github.com/pithecene-io/osm/iox"
	"github.com/pithecene-io/osm/retry"
	"github.com/pithecene-io/osm/types"
)

// Defaults applied by New.
const (
	DefaultTimeout = 10 * time.Second
	DefaultRetries = 3
)

// Entry headers set on every request.
const (
	HeaderEvent          = "X-OSM-Event"
	HeaderFeed           = "X-OSM-Feed"
	HeaderSeqno          = "X-OSM-Seqno"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// Config configures the webhook adapter.
type Config struct {
	// URL receives the POSTs (required).
	URL string
	// Headers are added to every request; they may override the defaults.
	Headers map[string]string
	// Timeout bounds each request (default 10s).
	Timeout time.Duration
	// Retries is the number of retries after a failed request.
	Retries int
	// Backoff is the delay before the first retry (default retry.DefaultBackoff).
	Backoff time.Duration
}

// Adapter publishes entry events via HTTP POST.
type Adapter struct {
	url     string
	headers map[string]string
	retry   retry.Policy
	client  *http.Client
}

// New validates cfg and creates the adapter.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook adapter requires a URL")
	}
	policy := retry.Policy{Retries: cfg.Retries, Backoff: cfg.Backoff}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("webhook adapter: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Adapter{
		url:     cfg.URL,
		headers: cfg.Headers,
		retry:   policy,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Publish POSTs the event. Network errors and 5xx/429 responses are retried;
// other 4xx responses fail at once.
func (a *Adapter) Publish(ctx context.Context, event *adapter.EntryEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}
	err = a.retry.Do(ctx, func(ctx context.Context) error {
		return a.post(ctx, event, body)
	})
	if err != nil {
		return fmt.Errorf("webhook: seqno %d: %w", event.Seqno, err)
	}
	return nil
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return "unexpected status " + strconv.Itoa(e.Code)
}

// Temporary reports whether the receiver may accept a retry.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

func (a *Adapter) post(ctx context.Context, event *adapter.EntryEvent, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	h := req.Header
	h.Set("Content-Type", "application/json")
	h.Set("User-Agent", types.UserAgent())
	h.Set(HeaderEvent, event.EventType)
	h.Set(HeaderFeed, event.Feed)
	h.Set(HeaderSeqno, strconv.FormatUint(event.Seqno, 10))
	h.Set(HeaderIdempotencyKey, event.Key())
	for k, v := range a.headers {
		h.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer iox.DiscardClose(resp.Body)
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	statusErr := &StatusError{Code: resp.StatusCode}
	if !statusErr.Temporary() {
		return retry.Permanent(statusErr)
	}
	return statusErr
}

// Close drops idle connections.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
