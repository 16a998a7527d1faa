package replication

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/pithecene-io/osm/metrics"
)

// DefaultPollInterval is how long a following stream waits before
// re-reading the current state once it has caught up.
const DefaultPollInterval = 60 * time.Second

// Entry references one published diff file.
// Timestamp is zero when the stream was opened URLs-only.
type Entry struct {
	Seqno     uint64    `json:"seqno" msgpack:"seqno"`
	Timestamp time.Time `json:"timestamp,omitzero" msgpack:"timestamp"`
	URL       string    `json:"url" msgpack:"url"`
}

// StreamOptions configures a Stream.
type StreamOptions struct {
	// Follow keeps polling for new entries once the frontier is reached.
	Follow bool
	// URLsOnly skips the per-entry state fetch; entries carry no timestamp.
	URLsOnly bool
	// PollInterval is the wait between polls in follow mode (default 60s).
	PollInterval time.Duration
	// Logger receives poll narration. Nil disables logging.
	Logger Logger
	// Metrics receives stream counters. Nil disables collection.
	Metrics *metrics.Collector
}

// Stream yields entries for every seqno after a starting seqno, in strictly
// increasing order with no gaps. It is not safe for concurrent use and cannot
// be restarted; open a new Stream from the last seqno seen instead.
type Stream struct {
	source   StateSource
	ep       Endpoint
	opts     StreamOptions
	logger   Logger
	next     uint64
	frontier uint64
	started  bool
	// done is set once no seqno after the last one emitted exists.
	done bool
	err  error
}

// NewStream creates a stream of entries after start.
func NewStream(source StateSource, ep Endpoint, start uint64, opts StreamOptions) *Stream {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Stream{
		source: source,
		ep:     ep,
		opts:   opts,
		logger: loggerOrNop(opts.Logger),
		next:   start + 1,
		done:   start == math.MaxUint64,
	}
}

// Frontier returns the newest seqno known to the stream.
func (s *Stream) Frontier() uint64 {
	return s.frontier
}

// Next returns the next entry. A non-following stream returns io.EOF once
// the frontier observed on the first call has been emitted. Any fetch error
// or context cancellation ends the stream; later calls return the same error.
func (s *Stream) Next(ctx context.Context) (Entry, error) {
	if s.err != nil {
		return Entry{}, s.err
	}

	if !s.started {
		if err := s.refresh(ctx); err != nil {
			return Entry{}, s.fail(err)
		}
		s.started = true
	}

	for s.done || s.next > s.frontier {
		if !s.opts.Follow {
			return Entry{}, s.fail(io.EOF)
		}

		s.logger.Debug("caught up, waiting for new entries", map[string]any{
			"feed": s.ep.Name, "frontier": s.frontier, "interval": s.opts.PollInterval.String(),
		})
		if err := sleepContext(ctx, s.opts.PollInterval); err != nil {
			return Entry{}, s.fail(err)
		}
		s.opts.Metrics.IncPollRound()
		if err := s.refresh(ctx); err != nil {
			return Entry{}, s.fail(err)
		}
	}

	seqno := s.next
	entry := Entry{Seqno: seqno, URL: s.ep.DataURL(seqno)}
	if !s.opts.URLsOnly {
		st, err := s.source.Fetch(ctx, s.ep, At(seqno))
		if err != nil {
			return Entry{}, s.fail(err)
		}
		entry.Timestamp = st.Timestamp
	}

	if seqno == math.MaxUint64 {
		s.done = true
	} else {
		s.next++
	}
	s.opts.Metrics.IncEntryEmitted()
	return entry, nil
}

func (s *Stream) refresh(ctx context.Context) error {
	cur, err := s.source.Fetch(ctx, s.ep, Current())
	if err != nil {
		return err
	}
	if cur.Seqno > s.frontier {
		s.logger.Debug("frontier advanced", map[string]any{"feed": s.ep.Name, "from": s.frontier, "to": cur.Seqno})
		s.frontier = cur.Seqno
	}
	return nil
}

func (s *Stream) fail(err error) error {
	if err != io.EOF && err != context.Canceled && err != context.DeadlineExceeded {
		err = fmt.Errorf("stream %s: %w", s.ep.Name, err)
	}
	s.err = err
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
