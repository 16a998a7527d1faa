// Package adapter defines the event-bus boundary for stream entries.
//
// Adapters publish one notification per replication entry to a downstream
// system, so consumers can react to new diffs without polling the feed.
// The CLI owns adapter lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"strconv"
	"time"

	"github.com/pithecene-io/osm/replication"
	"github.com/pithecene-io/osm/types"
)

// EventTypeEntry is the event_type of every published entry.
const EventTypeEntry = "replication_entry"

// EntryEvent is the payload published for each stream entry.
type EntryEvent struct {
	Version   string `json:"version"`
	EventType string `json:"event_type"` // always "replication_entry"
	Feed      string `json:"feed"`
	Seqno     uint64 `json:"seqno"`
	Timestamp string `json:"timestamp,omitempty"` // RFC 3339; empty for URLs-only streams
	URL       string `json:"url"`
	SessionID string `json:"session_id"`
}

// NewEntryEvent builds the payload for an entry of the named feed.
func NewEntryEvent(feed, sessionID string, e replication.Entry) *EntryEvent {
	ev := &EntryEvent{
		Version:   types.Version,
		EventType: EventTypeEntry,
		Feed:      feed,
		Seqno:     e.Seqno,
		URL:       e.URL,
		SessionID: sessionID,
	}
	if !e.Timestamp.IsZero() {
		ev.Timestamp = e.Timestamp.UTC().Format(time.RFC3339)
	}
	return ev
}

// Key identifies the entry across redeliveries: "<feed>/<seqno>".
func (e *EntryEvent) Key() string {
	return e.Feed + "/" + strconv.FormatUint(e.Seqno, 10)
}

// Adapter publishes entry events to a downstream system.
// Publish is called sequentially, in seqno order, for the life of one stream.
type Adapter interface {
	// Publish sends an entry event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *EntryEvent) error

	// Close releases adapter resources.
	Close() error
}
