// Package redis publishes stream entries on a Redis pub/sub channel.
//
// The channel name may contain the placeholder {feed}, which is replaced by
// the entry's feed name, so subscribers can PSUBSCRIBE to osm:* and split
// traffic per feed.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/osm/adapter"
	"github.com/pithecene-io/osm/retry"
)

// Defaults applied by New.
const (
	DefaultChannel = "osm:replication"
	DefaultTimeout = 5 * time.Second
	DefaultRetries = 3
)

// FeedPlaceholder is expanded to the feed name in Config.Channel.
const FeedPlaceholder = "{feed}"

// Config configures the Redis adapter.
type Config struct {
	// URL is redis://[:password@]host:port[/db] (required).
	URL string
	// Channel is the target channel (default osm:replication).
	Channel string
	// Timeout bounds each PUBLISH (default 5s).
	Timeout time.Duration
	// Retries is the number of retries after a failed PUBLISH.
	Retries int
	// Backoff is the delay before the first retry (default retry.DefaultBackoff).
	Backoff time.Duration
}

// Adapter publishes entry events with PUBLISH.
type Adapter struct {
	channel string
	timeout time.Duration
	retry   retry.Policy
	client  *goredis.Client
}

// New validates cfg and opens a client. No connection is made until the
// first Publish.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}
	policy := retry.Policy{Retries: cfg.Retries, Backoff: cfg.Backoff}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("redis adapter: %w", err)
	}

	a := &Adapter{
		channel: cfg.Channel,
		timeout: cfg.Timeout,
		retry:   policy,
		client:  goredis.NewClient(opts),
	}
	if a.channel == "" {
		a.channel = DefaultChannel
	}
	if a.timeout <= 0 {
		a.timeout = DefaultTimeout
	}
	return a, nil
}

// Channel returns the channel an event of the given feed is published on.
func (a *Adapter) Channel(feed string) string {
	return strings.ReplaceAll(a.channel, FeedPlaceholder, feed)
}

// Publish sends the event as JSON. A closed client fails without retrying.
func (a *Adapter) Publish(ctx context.Context, event *adapter.EntryEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}
	channel := a.Channel(event.Feed)

	err = a.retry.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		err := a.client.Publish(ctx, channel, body).Err()
		if errors.Is(err, goredis.ErrClosed) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("redis: publish %s to %s: %w", event.Key(), channel, err)
	}
	return nil
}

// Close closes the client.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
