package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/osm/adapter"
	"github.com/pithecene-io/osm/types"
)

func changesetEvent() *adapter.EntryEvent {
	return &adapter.EntryEvent{
		Version:   types.Version,
		EventType: adapter.EventTypeEntry,
		Feed:      "changesets",
		Seqno:     5912345,
		Timestamp: "2026-02-07T12:00:00Z",
		URL:       "https://planet.openstreetmap.org/replication/changesets/005/912/345.osm.gz",
		SessionID: "0b8f4d52-3c1e-4a4e-9d0e-5f2b1c7a9e10",
	}
}

// subscribe listens on channel and forwards the first message. miniredis
// delivers pub/sub synchronously, so the reader must be running before
// Publish is called.
func subscribe(t *testing.T, mr *miniredis.Miniredis, channel string) <-chan miniredis.PubsubMessage {
	t.Helper()
	sub := mr.NewSubscriber()
	sub.Subscribe(channel)

	ch := make(chan miniredis.PubsubMessage, 1)
	go func() {
		ch <- <-sub.Messages()
	}()
	return ch
}

func receive(t *testing.T, ch <-chan miniredis.PubsubMessage) miniredis.PubsubMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("no pub/sub message within 5s")
		return miniredis.PubsubMessage{}
	}
}

func TestPublish_Channels(t *testing.T) {
	tests := []struct {
		name        string
		channel     string
		wantChannel string
	}{
		{"default", "", DefaultChannel},
		{"fixed", "planet:diffs", "planet:diffs"},
		{"per feed", "osm:{feed}", "osm:changesets"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr := miniredis.RunT(t)
			a, err := New(Config{URL: "redis://" + mr.Addr(), Channel: tt.channel})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer func() { _ = a.Close() }()

			ch := subscribe(t, mr, tt.wantChannel)
			event := changesetEvent()
			if err := a.Publish(t.Context(), event); err != nil {
				t.Fatalf("Publish: %v", err)
			}

			msg := receive(t, ch)
			if msg.Channel != tt.wantChannel {
				t.Errorf("channel = %q, want %q", msg.Channel, tt.wantChannel)
			}
			var got adapter.EntryEvent
			if err := json.Unmarshal([]byte(msg.Message), &got); err != nil {
				t.Fatalf("decode message: %v", err)
			}
			if got != *event {
				t.Errorf("message = %+v, want %+v", got, *event)
			}
		})
	}
}

func TestPublish_Unreachable(t *testing.T) {
	a, err := New(Config{URL: "redis://127.0.0.1:1", Retries: 2, Timeout: 100 * time.Millisecond, Backoff: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = a.Close() }()

	err = a.Publish(t.Context(), changesetEvent())
	if err == nil {
		t.Fatal("expected error from unreachable server")
	}
}

func TestPublish_ContextCanceled(t *testing.T) {
	a, err := New(Config{URL: "redis://127.0.0.1:1", Retries: 5, Backoff: time.Hour})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	if err := a.Publish(ctx, changesetEvent()); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}

func TestPublish_AfterClose(t *testing.T) {
	mr := miniredis.RunT(t)
	a, err := New(Config{URL: "redis://" + mr.Addr(), Retries: 3, Backoff: time.Hour})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A closed client is not retried, so the hour-long backoff never runs.
	if err := a.Publish(t.Context(), changesetEvent()); !errors.Is(err, goredis.ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"missing url", Config{}, true},
		{"invalid url", Config{URL: "not-a-redis-url"}, true},
		{"negative retries", Config{URL: "redis://localhost:6379", Retries: -1}, true},
		{"defaults", Config{URL: "redis://localhost:6379/2"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer func() { _ = a.Close() }()
			if a.channel != DefaultChannel || a.timeout != DefaultTimeout {
				t.Errorf("defaults = %q, %v", a.channel, a.timeout)
			}
		})
	}
}

func TestAdapter_Channel(t *testing.T) {
	a, err := New(Config{URL: "redis://localhost:6379", Channel: "{feed}:{feed}"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = a.Close() }()
	if got := a.Channel("hour"); got != "hour:hour" {
		t.Errorf("Channel(hour) = %q", got)
	}
}
