package replication

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/pithecene-io/osm/metrics"
)

// DefaultMaxGuessWalk bounds the fetches spent looking around a missing
// interpolation guess before the resolver gives up.
const DefaultMaxGuessWalk = 16

// ErrGuessNotFound is returned when no state record could be found near an
// interpolated guess within the walk budget.
var ErrGuessNotFound = errors.New("no state record near interpolated guess")

// errBracketEmpty signals that every seqno strictly inside the bracket is missing.
var errBracketEmpty = errors.New("bracket has no interior records")

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	// MaxGuessWalk bounds neighbour fetches around a missing guess (default 16).
	MaxGuessWalk int
	// Logger receives search narration. Nil disables logging.
	Logger Logger
	// Metrics receives bracket/guess counters. Nil disables collection.
	Metrics *metrics.Collector
}

// Resolver maps timestamps to seqnos on a feed.
//
// The search runs in two phases. Bracketing fetches seqno 0 and then halves the
// distance to the current seqno until any record at or before the target is
// found; feeds are sparse, so plain bisection over integers is unsafe.
// Interpolation then estimates the publish rate between the bracket ends and
// jumps to where the target should be, which converges in a few fetches on
// feeds that publish at a near-constant rate.
type Resolver struct {
	source  StateSource
	maxWalk int
	logger  Logger
	metrics *metrics.Collector
}

// NewResolver creates a Resolver reading state records from source.
func NewResolver(source StateSource, opts ResolverOptions) *Resolver {
	if opts.MaxGuessWalk <= 0 {
		opts.MaxGuessWalk = DefaultMaxGuessWalk
	}
	return &Resolver{
		source:  source,
		maxWalk: opts.MaxGuessWalk,
		logger:  loggerOrNop(opts.Logger),
		metrics: opts.Metrics,
	}
}

// Resolve returns the greatest seqno whose state timestamp is at or before
// target. When the feed's current state is not after target, or the feed has
// no history, the current seqno is returned.
func (r *Resolver) Resolve(ctx context.Context, ep Endpoint, target time.Time) (uint64, error) {
	upper, err := r.source.Fetch(ctx, ep, Current())
	if err != nil {
		return 0, fmt.Errorf("resolve: %w", err)
	}

	if !upper.Timestamp.After(target) || upper.Seqno == 0 {
		r.logger.Info("target is at or after current state", map[string]any{
			"feed": ep.Name, "seqno": upper.Seqno, "current_timestamp": upper.Timestamp,
		})
		return upper.Seqno, nil
	}

	r.logger.Info("searching for starting sequence number", map[string]any{
		"feed": ep.Name, "target": target, "current_seqno": upper.Seqno,
	})

	lower, upper, err := r.bracket(ctx, ep, target, upper)
	if err != nil {
		return 0, fmt.Errorf("resolve: %w", err)
	}
	if lower == nil {
		r.logger.Info("no record at or before target is reachable", map[string]any{"feed": ep.Name, "seqno": upper.Seqno})
		return upper.Seqno, nil
	}

	seqno, err := r.interpolate(ctx, ep, target, *lower, upper)
	if err != nil {
		return 0, fmt.Errorf("resolve: %w", err)
	}

	r.logger.Info("resolved sequence number", map[string]any{"feed": ep.Name, "target": target, "seqno": seqno})
	return seqno, nil
}

// bracket fetches seqno 0 and then halves the distance to upper until it finds
// a record at or before target, which it returns as lower. A record found
// after target becomes the new upper and bracketing resumes above the last miss.
// A nil lower means nothing at or before target is reachable; upper is then
// the earliest record seen.
func (r *Resolver) bracket(ctx context.Context, ep Endpoint, target time.Time, upper State) (*State, State, error) {
	var cand, lastMiss uint64
	missed := false
	for {
		r.metrics.IncBracket()
		st, err := r.source.Fetch(ctx, ep, At(cand))
		if err == nil {
			if st.Seqno != cand {
				return nil, upper, fmt.Errorf("state for seqno %d reports seqno %d", cand, st.Seqno)
			}
			if !st.Timestamp.After(target) {
				return &st, upper, nil
			}

			r.logger.Debug("candidate is after target", map[string]any{"seqno": st.Seqno})
			upper = st
			if !missed {
				return nil, upper, nil
			}
			step := (upper.Seqno - lastMiss) / 2
			if step == 0 {
				return nil, upper, nil
			}
			cand = lastMiss + step
			continue
		}

		var decodeErr *DecodeError
		if errors.As(err, &decodeErr) || ctx.Err() != nil {
			return nil, upper, err
		}
		r.logger.Debug("candidate missed", map[string]any{"seqno": cand, "error": err.Error()})
		lastMiss, missed = cand, true

		step := (upper.Seqno - cand) / 2
		if step == 0 {
			return nil, upper, nil
		}
		cand += step
	}
}

// interpolate narrows a bracket with lower at or before target and upper
// after it, and returns lower's seqno once the two are adjacent. A round that
// shrinks the bracket by a single seqno, as happens across a run of records
// sharing one timestamp, is followed by a bisection round.
func (r *Resolver) interpolate(ctx context.Context, ep Endpoint, target time.Time, lower, upper State) (uint64, error) {
	bisect := false
	for lower.Seqno+1 < upper.Seqno {
		width := upper.Seqno - lower.Seqno
		guess := interpolateGuess(lower, upper, target)
		if bisect {
			guess = lower.Seqno + width/2
		}
		r.metrics.IncGuess()
		r.logger.Debug("interpolated guess", map[string]any{
			"lower": lower.Seqno, "upper": upper.Seqno, "guess": guess,
		})

		split, err := r.source.Fetch(ctx, ep, At(guess))
		if errors.Is(err, ErrNotFound) {
			split, err = r.walk(ctx, ep, guess, lower.Seqno, upper.Seqno)
			if errors.Is(err, errBracketEmpty) {
				return lower.Seqno, nil
			}
		}
		if err != nil {
			return 0, err
		}
		if split.Seqno <= lower.Seqno || split.Seqno >= upper.Seqno {
			return 0, fmt.Errorf("state for seqno %d reports seqno %d, outside (%d, %d)",
				guess, split.Seqno, lower.Seqno, upper.Seqno)
		}

		if split.Timestamp.After(target) {
			upper = split
		} else {
			lower = split
		}
		bisect = !bisect && width-(upper.Seqno-lower.Seqno) <= 1
	}
	return lower.Seqno, nil
}

// interpolateGuess estimates the seqno published at target from the rate
// between lower and upper. The result is always strictly inside the bracket.
func interpolateGuess(lower, upper State, target time.Time) uint64 {
	count := upper.Seqno - lower.Seqno
	span := upper.Timestamp.Sub(lower.Timestamp).Seconds()
	if span <= 0 {
		return lower.Seqno + 1
	}

	rate := float64(count) / span
	step := math.Ceil(target.Sub(lower.Timestamp).Seconds() * rate)
	switch {
	case step >= float64(count):
		return upper.Seqno - 1
	case step <= 1:
		return lower.Seqno + 1
	default:
		return lower.Seqno + uint64(step)
	}
}

// walk looks for a record near a missing guess, alternating below and above
// it (g-1, g+1, g-2, g+2, ...) without leaving the open interval (lo, hi).
func (r *Resolver) walk(ctx context.Context, ep Endpoint, guess, lo, hi uint64) (State, error) {
	fetches := 0
	for d := uint64(1); ; d++ {
		var candidates []uint64
		if guess > lo+d {
			candidates = append(candidates, guess-d)
		}
		if guess+d < hi {
			candidates = append(candidates, guess+d)
		}
		if len(candidates) == 0 {
			return State{}, errBracketEmpty
		}

		for _, cand := range candidates {
			if fetches == r.maxWalk {
				return State{}, fmt.Errorf("%w: %d fetches around seqno %d", ErrGuessNotFound, fetches, guess)
			}
			fetches++
			r.metrics.IncGuessWalk()

			st, err := r.source.Fetch(ctx, ep, At(cand))
			if err == nil {
				r.logger.Debug("found record near missing guess", map[string]any{"guess": guess, "seqno": cand})
				return st, nil
			}
			if !errors.Is(err, ErrNotFound) {
				return State{}, err
			}
		}
	}
}
