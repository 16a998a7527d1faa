package metrics

import (
	"sync"
	"testing"
)

func TestCollector_IncrementMethods(t *testing.T) {
	c := NewCollector("minute", "session-001")

	c.IncStateFetch()
	c.IncStateFetch()
	c.IncStateFetch()
	c.IncStateNotFound()
	c.IncFetchRetry()
	c.IncBracket()
	c.IncBracket()
	c.IncGuess()
	c.IncGuessWalk()
	c.IncEntryEmitted()
	c.IncEntryEmitted()
	c.IncPollRound()
	c.IncPublishSuccess()
	c.IncPublishFailure()
	c.IncMirrorSuccess(100)
	c.IncMirrorSuccess(23)
	c.IncMirrorFailure()

	s := c.Snapshot()

	tests := []struct {
		name string
		got  int64
		want int64
	}{
		{"StateFetches", s.StateFetches, 3},
		{"StateNotFound", s.StateNotFound, 1},
		{"FetchRetries", s.FetchRetries, 1},
		{"Brackets", s.Brackets, 2},
		{"Guesses", s.Guesses, 1},
		{"GuessWalks", s.GuessWalks, 1},
		{"EntriesEmitted", s.EntriesEmitted, 2},
		{"PollRounds", s.PollRounds, 1},
		{"PublishSuccess", s.PublishSuccess, 1},
		{"PublishFailure", s.PublishFailure, 1},
		{"MirrorSuccess", s.MirrorSuccess, 2},
		{"MirrorFailure", s.MirrorFailure, 1},
		{"MirrorBytes", s.MirrorBytes, 123},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, tt.got, tt.want)
		}
	}
}

func TestCollector_Dimensions(t *testing.T) {
	c := NewCollector("changesets", "session-7")
	s := c.Snapshot()

	if s.Feed != "changesets" {
		t.Errorf("Feed = %q, want %q", s.Feed, "changesets")
	}
	if s.SessionID != "session-7" {
		t.Errorf("SessionID = %q, want %q", s.SessionID, "session-7")
	}
}

func TestCollector_SnapshotImmutability(t *testing.T) {
	c := NewCollector("minute", "session-001")
	c.IncStateFetch()

	s1 := c.Snapshot()

	c.IncStateFetch()
	c.IncEntryEmitted()

	if s1.StateFetches != 1 {
		t.Errorf("s1.StateFetches = %d, want 1 (snapshot should be frozen)", s1.StateFetches)
	}
	if s1.EntriesEmitted != 0 {
		t.Errorf("s1.EntriesEmitted = %d, want 0 (snapshot should be frozen)", s1.EntriesEmitted)
	}

	s2 := c.Snapshot()
	if s2.StateFetches != 2 {
		t.Errorf("s2.StateFetches = %d, want 2", s2.StateFetches)
	}
}

func TestCollector_NilReceiverSafety(t *testing.T) {
	var c *Collector

	// None of these should panic
	c.IncStateFetch()
	c.IncStateNotFound()
	c.IncFetchRetry()
	c.IncBracket()
	c.IncGuess()
	c.IncGuessWalk()
	c.IncEntryEmitted()
	c.IncPollRound()
	c.IncPublishSuccess()
	c.IncPublishFailure()
	c.IncMirrorSuccess(10)
	c.IncMirrorFailure()

	if s := c.Snapshot(); s != (Snapshot{}) {
		t.Errorf("nil collector snapshot = %+v, want zero", s)
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	c := NewCollector("minute", "session-001")
	const goroutines = 10
	const iterations = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for range goroutines {
		go func() {
			defer wg.Done()
			for range iterations {
				c.IncStateFetch()
				c.IncEntryEmitted()
				c.IncMirrorSuccess(2)
			}
		}()
	}

	wg.Wait()

	s := c.Snapshot()
	want := int64(goroutines * iterations)

	if s.StateFetches != want {
		t.Errorf("StateFetches = %d, want %d", s.StateFetches, want)
	}
	if s.EntriesEmitted != want {
		t.Errorf("EntriesEmitted = %d, want %d", s.EntriesEmitted, want)
	}
	if s.MirrorBytes != 2*want {
		t.Errorf("MirrorBytes = %d, want %d", s.MirrorBytes, 2*want)
	}
}
