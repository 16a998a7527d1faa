// Package metrics provides per-invocation counters for feed access.
//
// The Collector accumulates counters during a single command. It is a leaf
// package with no internal dependencies so the replication core, adapters and
// mirror can all record into it. A nil *Collector is valid and records nothing.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Dimensions (informational, set at construction)
	Feed      string `json:"feed"`
	SessionID string `json:"session_id"`

	// Fetcher
	StateFetches  int64 `json:"state_fetches"`
	StateNotFound int64 `json:"state_not_found"`
	FetchRetries  int64 `json:"fetch_retries"`

	// Resolver
	Brackets   int64 `json:"brackets"`
	Guesses    int64 `json:"guesses"`
	GuessWalks int64 `json:"guess_walks"`

	// Stream
	EntriesEmitted int64 `json:"entries_emitted"`
	PollRounds     int64 `json:"poll_rounds"`

	// Sinks
	PublishSuccess int64 `json:"publish_success"`
	PublishFailure int64 `json:"publish_failure"`
	MirrorSuccess  int64 `json:"mirror_success"`
	MirrorFailure  int64 `json:"mirror_failure"`
	MirrorBytes    int64 `json:"mirror_bytes"`
}

// Collector accumulates counters during a single command.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex
	s  Snapshot
}

// NewCollector creates a Collector labelled with the feed name and session ID.
func NewCollector(feed, sessionID string) *Collector {
	return &Collector{s: Snapshot{Feed: feed, SessionID: sessionID}}
}

func (c *Collector) add(field func(*Snapshot) *int64, n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	*field(&c.s) += n
	c.mu.Unlock()
}

// --- Fetcher ---

// IncStateFetch records a state file request (current or per-seqno).
func (c *Collector) IncStateFetch() { c.add(func(s *Snapshot) *int64 { return &s.StateFetches }, 1) }

// IncStateNotFound records a state file that the server reported missing.
func (c *Collector) IncStateNotFound() { c.add(func(s *Snapshot) *int64 { return &s.StateNotFound }, 1) }

// IncFetchRetry records a retried HTTP attempt.
func (c *Collector) IncFetchRetry() { c.add(func(s *Snapshot) *int64 { return &s.FetchRetries }, 1) }

// --- Resolver ---

// IncBracket records a bracketing fetch.
func (c *Collector) IncBracket() { c.add(func(s *Snapshot) *int64 { return &s.Brackets }, 1) }

// IncGuess records an interpolation guess.
func (c *Collector) IncGuess() { c.add(func(s *Snapshot) *int64 { return &s.Guesses }, 1) }

// IncGuessWalk records a neighbour fetch around a missing guess.
func (c *Collector) IncGuessWalk() { c.add(func(s *Snapshot) *int64 { return &s.GuessWalks }, 1) }

// --- Stream ---

// IncEntryEmitted records an entry handed out by a stream.
func (c *Collector) IncEntryEmitted() { c.add(func(s *Snapshot) *int64 { return &s.EntriesEmitted }, 1) }

// IncPollRound records a follow-mode poll of the current state.
func (c *Collector) IncPollRound() { c.add(func(s *Snapshot) *int64 { return &s.PollRounds }, 1) }

// --- Sinks ---

// IncPublishSuccess records an adapter publish that succeeded.
func (c *Collector) IncPublishSuccess() { c.add(func(s *Snapshot) *int64 { return &s.PublishSuccess }, 1) }

// IncPublishFailure records an adapter publish that failed after retries.
func (c *Collector) IncPublishFailure() { c.add(func(s *Snapshot) *int64 { return &s.PublishFailure }, 1) }

// IncMirrorSuccess records a mirrored file and its size in bytes.
func (c *Collector) IncMirrorSuccess(bytes int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.s.MirrorSuccess++
	c.s.MirrorBytes += bytes
	c.mu.Unlock()
}

// IncMirrorFailure records a file that could not be mirrored.
func (c *Collector) IncMirrorFailure() { c.add(func(s *Snapshot) *int64 { return &s.MirrorFailure }, 1) }

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all counters.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}
