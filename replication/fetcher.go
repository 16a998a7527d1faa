package replication

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pithecene-io/osm/iox"
	"github.com/pithecene-io/osm/metrics"
	"github.com/pithecene-io/osm/retry"
	"github.com/pithecene-io/osm/types"
)

// Fetcher defaults.
const (
	// DefaultTimeout is the per-request timeout applied by the HTTP client.
	DefaultTimeout = 30 * time.Second
	// DefaultRetries is the number of retry attempts for transient failures.
	DefaultRetries = 2
	// DefaultBackoff is the delay before the first retry; it doubles per attempt.
	DefaultBackoff = retry.DefaultBackoff
)

// ErrNotFound is matched (via errors.Is) by fetch errors for absent files.
// Sparse feeds answer 404 for many seqnos; the resolver relies on telling
// those apart from every other failure.
var ErrNotFound = errors.New("not found")

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Code)
}

// Is reports 404 and 410 responses as ErrNotFound.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && (e.Code == http.StatusNotFound || e.Code == http.StatusGone)
}

// Selector picks which state record to fetch: the feed's current pointer or
// a specific logical seqno.
type Selector struct {
	seqno   uint64
	current bool
}

// Current selects the feed's current state file.
func Current() Selector { return Selector{current: true} }

// At selects the state file of a logical seqno.
func At(seqno uint64) Selector { return Selector{seqno: seqno} }

// IsCurrent reports whether the selector addresses the current state file.
func (s Selector) IsCurrent() bool { return s.current }

// Seqno returns the selected seqno. It is meaningless for Current().
func (s Selector) Seqno() uint64 { return s.seqno }

func (s Selector) String() string {
	if s.current {
		return "current"
	}
	return fmt.Sprintf("seqno %d", s.seqno)
}

// StateSource fetches state records. *Fetcher is the HTTP implementation;
// tests substitute in-memory feeds.
type StateSource interface {
	Fetch(ctx context.Context, ep Endpoint, sel Selector) (State, error)
}

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	// Client overrides the HTTP client. When nil a client with Timeout is built.
	Client *http.Client
	// Timeout is the per-request timeout (default 30s). Ignored when Client is set.
	Timeout time.Duration
	// Retries is the number of retry attempts on transport errors, 429 and 5xx.
	// Not-found and other 4xx responses are never retried.
	Retries int
	// Backoff is the delay before the first retry (default 500ms).
	Backoff time.Duration
	// UserAgent is sent with every request (default types.UserAgent()).
	UserAgent string
	// Logger receives debug narration. Nil disables logging.
	Logger Logger
	// Metrics receives fetch counters. Nil disables collection.
	Metrics *metrics.Collector
}

// Fetcher retrieves replication files over HTTP.
// Requests are issued one at a time by its callers; it holds no per-request state.
type Fetcher struct {
	client    *http.Client
	retries   int
	backoff   time.Duration
	userAgent string
	logger    Logger
	metrics   *metrics.Collector
}

// NewFetcher creates a Fetcher from the given config.
func NewFetcher(cfg FetcherConfig) (*Fetcher, error) {
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = types.UserAgent()
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &Fetcher{
		client:    client,
		retries:   cfg.Retries,
		backoff:   cfg.Backoff,
		userAgent: cfg.UserAgent,
		logger:    loggerOrNop(cfg.Logger),
		metrics:   cfg.Metrics,
	}, nil
}

// Fetch retrieves and decodes one state record.
func (f *Fetcher) Fetch(ctx context.Context, ep Endpoint, sel Selector) (State, error) {
	u := ep.CurrentStateURL()
	if !sel.IsCurrent() {
		u = ep.StateURL(sel.Seqno())
	}

	f.metrics.IncStateFetch()
	f.logger.Debug("fetching state", map[string]any{"feed": ep.Name, "selector": sel.String(), "url": u})

	body, _, err := f.Open(ctx, u)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			f.metrics.IncStateNotFound()
		}
		return State{}, fmt.Errorf("fetch %s state: %w", sel, err)
	}
	defer iox.DiscardClose(body)

	st, err := DecodeState(body, ep.Encoding)
	if err != nil {
		return State{}, fmt.Errorf("%s: %w", u, err)
	}
	return st, nil
}

// Open performs a GET with the fetcher's retry policy and returns the
// response body and its declared length (-1 when unknown).
// The caller must close the body.
func (f *Fetcher) Open(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	policy := retry.Policy{
		Retries: f.retries,
		Backoff: f.backoff,
		OnRetry: func(attempt int, err error) {
			f.metrics.IncFetchRetry()
			f.logger.Debug("retrying request", map[string]any{"url": rawURL, "attempt": attempt, "error": err.Error()})
		},
	}

	var resp *http.Response
	err := policy.Do(ctx, func(ctx context.Context) error {
		r, err := f.do(ctx, rawURL)
		if err != nil && !retriable(ctx, err) {
			return retry.Permanent(err)
		}
		resp = r
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return resp.Body, resp.ContentLength, nil
}

// do performs a single GET and returns the response on 2xx.
func (f *Fetcher) do(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", rawURL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain body to allow connection reuse
		_, _ = io.Copy(io.Discard, resp.Body)
		iox.DiscardClose(resp.Body)
		return nil, &StatusError{Code: resp.StatusCode, URL: rawURL}
	}
	return resp, nil
}

// retriable reports whether a failed attempt may be repeated: transport
// errors, 429 and 5xx are; other statuses and cancellation are not.
func retriable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == http.StatusTooManyRequests || statusErr.Code >= 500
	}
	return true
}
