// Package replication resolves and follows OpenStreetMap-style replication feeds.
//
// A feed is an append-only, chronologically ordered sequence of numbered diff
// files. Each diff is accompanied by a small state file carrying its sequence
// number and timestamp, and the feed root holds a "current" state file that
// points at the newest published entry.
//
// The package provides:
//   - State decoding for the two wire encodings (key=value text and YAML)
//   - Endpoint descriptors and URL construction (triplet paths, seqno offsets)
//   - A Fetcher that retrieves state records over HTTP
//   - A Resolver that maps a timestamp to the seqno current at that time
//   - A Stream that emits entries past a starting seqno, optionally forever
//
// All seqnos handled by this package are logical seqnos as reported inside
// state content. Feed-specific renumbering is applied only when URLs are built.
package replication

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// State is one decoded state record.
type State struct {
	Seqno     uint64    `json:"seqno" yaml:"seqno"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// Encoding identifies the wire format of a feed's state files.
type Encoding int

const (
	// EncodingText is the line-oriented key=value format used by minute/hour/day feeds.
	EncodingText Encoding = iota
	// EncodingStructured is the YAML document format used by the changesets feed.
	EncodingStructured
)

// String returns the config-file spelling of the encoding.
func (e Encoding) String() string {
	switch e {
	case EncodingText:
		return "text"
	case EncodingStructured:
		return "yaml"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

// ParseEncoding parses the config-file spelling of an encoding.
// An empty string selects EncodingText.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(s) {
	case "", "text", "txt":
		return EncodingText, nil
	case "yaml", "structured":
		return EncodingStructured, nil
	default:
		return 0, fmt.Errorf("invalid state encoding: %q (must be text or yaml)", s)
	}
}

// DecodeError reports malformed or incomplete state content.
// Decode errors are never retried and never treated as a missing record.
type DecodeError struct {
	Msg string
	Err error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode state: %s: %v", e.Msg, e.Err)
	}
	return "decode state: " + e.Msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// DecodeState decodes a state file body using the given encoding.
func DecodeState(r io.Reader, enc Encoding) (State, error) {
	switch enc {
	case EncodingText:
		return decodeTextState(r)
	case EncodingStructured:
		return decodeStructuredState(r)
	default:
		return State{}, &DecodeError{Msg: fmt.Sprintf("unknown encoding %s", enc)}
	}
}

func decodeTextState(r io.Reader) (State, error) {
	var (
		st           State
		haveSeqno    bool
		haveTimestmp bool
	)

	scanner := bufio.NewScanner(r)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		k, v, ok := strings.Cut(line, "=")
		if !ok {
			return State{}, &DecodeError{Msg: fmt.Sprintf("line %d: expected key=value", lineNo)}
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)

		switch k {
		case "sequenceNumber":
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return State{}, &DecodeError{Msg: fmt.Sprintf("line %d: invalid sequenceNumber %q", lineNo, v), Err: err}
			}
			st.Seqno = n
			haveSeqno = true
		case "timestamp":
			ts, err := parseStateTimestamp(strings.ReplaceAll(v, `\`, ""))
			if err != nil {
				return State{}, &DecodeError{Msg: fmt.Sprintf("line %d: invalid timestamp %q", lineNo, v), Err: err}
			}
			st.Timestamp = ts
			haveTimestmp = true
		}
	}
	if err := scanner.Err(); err != nil {
		return State{}, &DecodeError{Msg: "read body", Err: err}
	}

	if !haveSeqno {
		return State{}, &DecodeError{Msg: "sequenceNumber not found"}
	}
	if !haveTimestmp {
		return State{}, &DecodeError{Msg: "timestamp not found"}
	}
	return st, nil
}

// structuredState mirrors the changesets state.yaml document. Timestamps are
// decoded as strings because the feed writes "2006-01-02 15:04:05.000000000 +00:00",
// which YAML does not resolve as a timestamp.
type structuredState struct {
	Seqno     *uint64 `yaml:"seqno"`
	Sequence  *uint64 `yaml:"sequence"`
	Timestamp string  `yaml:"timestamp"`
	LastRun   string  `yaml:"last_run"`
}

func decodeStructuredState(r io.Reader) (State, error) {
	var doc structuredState
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return State{}, &DecodeError{Msg: "empty document"}
		}
		return State{}, &DecodeError{Msg: "invalid YAML", Err: err}
	}

	var st State
	switch {
	case doc.Seqno != nil:
		st.Seqno = *doc.Seqno
	case doc.Sequence != nil:
		st.Seqno = *doc.Sequence
	default:
		return State{}, &DecodeError{Msg: "seqno/sequence not found"}
	}

	raw := doc.Timestamp
	if raw == "" {
		raw = doc.LastRun
	}
	if raw == "" {
		return State{}, &DecodeError{Msg: "timestamp/last_run not found"}
	}
	ts, err := parseStateTimestamp(raw)
	if err != nil {
		return State{}, &DecodeError{Msg: fmt.Sprintf("invalid timestamp %q", raw), Err: err}
	}
	st.Timestamp = ts
	return st, nil
}

// stateTimestampLayouts are the formats found in state files: RFC 3339 in
// text state and the space-separated form osmdbt writes into YAML state.
// RFC 2822 is tried after these.
var stateTimestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999 -07:00",
	"2006-01-02 15:04:05.999999999 Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
}

func parseStateTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var firstErr error
	for _, layout := range stateTimestampLayouts {
		ts, err := time.Parse(layout, s)
		if err == nil {
			return ts.UTC(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if ts, err := parseRFC2822(s); err == nil {
		return ts, nil
	}
	return time.Time{}, firstErr
}

// RFC 2822 layouts, with and without weekday.
var (
	rfc2822NumericZone = []string{
		time.RFC1123Z,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"2 Jan 2006 15:04:05 -0700",
		time.RFC822Z,
	}
	rfc2822NamedZone = []string{
		time.RFC1123,
		"Mon, 2 Jan 2006 15:04:05 MST",
		"2 Jan 2006 15:04:05 MST",
		time.RFC822,
	}
)

// rfc2822Zones are the zone names RFC 2822 section 4.3 allows, in hours east
// of UTC.
var rfc2822Zones = map[string]int{
	"UT": 0, "UTC": 0, "GMT": 0, "Z": 0,
	"EST": -5, "EDT": -4,
	"CST": -6, "CDT": -5,
	"MST": -7, "MDT": -6,
	"PST": -8, "PDT": -7,
}

// parseRFC2822 parses s in UTC. Named zones outside rfc2822Zones are
// rejected rather than read as UTC.
func parseRFC2822(s string) (time.Time, error) {
	for _, layout := range rfc2822NumericZone {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	for _, layout := range rfc2822NamedZone {
		ts, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		name, _ := ts.Zone()
		hours, ok := rfc2822Zones[strings.ToUpper(name)]
		if !ok {
			return time.Time{}, fmt.Errorf("unknown time zone %q in %q", name, s)
		}
		y, mo, d := ts.Date()
		h, mi, sec := ts.Clock()
		zone := time.FixedZone(name, hours*3600)
		return time.Date(y, mo, d, h, mi, sec, ts.Nanosecond(), zone).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%q is not an RFC 2822 timestamp", s)
}

// ParseTimestamp parses a user-supplied timestamp in RFC 3339 or RFC 2822
// format and returns it in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts.UTC(), nil
	}
	ts, err := parseRFC2822(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: expected RFC 3339 or RFC 2822: %w", s, err)
	}
	return ts, nil
}
