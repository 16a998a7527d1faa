// Package osmapi retrieves elements and changesets from the OSM API 0.6.
//
// Responses are streamed to a writer as the server sent them, except JSON
// bodies which are re-indented and terminated with a newline.
package osmapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pithecene-io/osm/iox"
	"github.com/pithecene-io/osm/types"
)

// DefaultServer is the public OSM API server.
const DefaultServer = "https://www.openstreetmap.org"

// DefaultTimeout is the per-request timeout applied by the HTTP client.
const DefaultTimeout = 30 * time.Second

// ErrNotFound is matched by errors for absent or deleted objects.
var ErrNotFound = errors.New("not found")

// Format selects the representation requested from the API.
type Format int

const (
	// FormatXML requests application/xml (the API default).
	FormatXML Format = iota
	// FormatJSON requests application/json.
	FormatJSON
)

// ParseFormat parses "xml" or "json". Empty selects XML.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "xml":
		return FormatXML, nil
	case "json":
		return FormatJSON, nil
	default:
		return 0, fmt.Errorf("invalid format %q (must be xml or json)", s)
	}
}

// MimeType returns the Accept header value for the format.
func (f Format) MimeType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "application/xml"
}

func (f Format) String() string {
	if f == FormatJSON {
		return "json"
	}
	return "xml"
}

// ElementType is an OSM primitive.
type ElementType string

// Element types served under /api/0.6/{type}/{id}.
const (
	Node     ElementType = "node"
	Way      ElementType = "way"
	Relation ElementType = "relation"
)

// ParseElementType parses node, way or relation.
func ParseElementType(s string) (ElementType, error) {
	switch t := ElementType(strings.ToLower(s)); t {
	case Node, Way, Relation:
		return t, nil
	default:
		return "", fmt.Errorf("invalid element type %q (must be node, way or relation)", s)
	}
}

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Code)
}

// Is reports 404 and 410 (deleted) responses as ErrNotFound.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && (e.Code == http.StatusNotFound || e.Code == http.StatusGone)
}

// Config configures a Client.
type Config struct {
	// Server is the API base URL (default DefaultServer).
	Server string
	// Client overrides the HTTP client. When nil a client with Timeout is built.
	Client *http.Client
	// Timeout is the per-request timeout (default 30s). Ignored when Client is set.
	Timeout time.Duration
	// UserAgent is sent with every request (default types.UserAgent()).
	UserAgent string
}

// Client issues one-shot GETs against the API.
type Client struct {
	server    string
	client    *http.Client
	userAgent string
}

// New creates a Client from the given config.
func New(cfg Config) (*Client, error) {
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	if !strings.HasPrefix(cfg.Server, "http://") && !strings.HasPrefix(cfg.Server, "https://") {
		return nil, fmt.Errorf("invalid server %q (must be an http or https URL)", cfg.Server)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = types.UserAgent()
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		server:    strings.TrimRight(cfg.Server, "/"),
		client:    client,
		userAgent: cfg.UserAgent,
	}, nil
}

// ElementURL returns the URL of an element, or of its version history.
func (c *Client) ElementURL(typ ElementType, id uint64, history bool) string {
	u := c.server + "/api/0.6/" + string(typ) + "/" + strconv.FormatUint(id, 10)
	if history {
		u += "/history"
	}
	return u
}

// ChangesetURL returns the URL of a changeset's metadata, or of its osmChange
// download when diff is set.
func (c *Client) ChangesetURL(id uint64, diff bool) string {
	u := c.server + "/api/0.6/changeset/" + strconv.FormatUint(id, 10)
	if diff {
		u += "/download"
	}
	return u
}

// Element writes an element (or its history) to w.
func (c *Client) Element(ctx context.Context, w io.Writer, typ ElementType, id uint64, format Format, history bool) error {
	if err := c.get(ctx, w, c.ElementURL(typ, id, history), format); err != nil {
		return fmt.Errorf("%s %d: %w", typ, id, err)
	}
	return nil
}

// Changeset writes a changeset (or its diff) to w.
func (c *Client) Changeset(ctx context.Context, w io.Writer, id uint64, format Format, diff bool) error {
	if err := c.get(ctx, w, c.ChangesetURL(id, diff), format); err != nil {
		return fmt.Errorf("changeset %d: %w", id, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, w io.Writer, rawURL string, format Format) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", format.MimeType())
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer iox.DiscardClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{Code: resp.StatusCode, URL: rawURL}
	}

	if isJSON(resp.Header.Get("Content-Type")) {
		return writeIndented(w, resp.Body)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("copy response: %w", err)
	}
	return nil
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}

// writeIndented pretty-prints a JSON body followed by a newline.
func writeIndented(w io.Writer, r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, bytes.TrimSpace(raw), "", "  "); err != nil {
		return fmt.Errorf("format json response: %w", err)
	}
	buf.WriteByte('\n')
	if _, err := buf.WriteTo(w); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}
