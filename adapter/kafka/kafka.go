// Package kafka implements a Kafka topic adapter.
//
// Publishes one JSON message per stream entry, keyed by feed name so that all
// entries of a feed land on the same partition in seqno order.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/pithecene-io/osm/adapter"
	"github.com/pithecene-io/osm/retry"
)

// DefaultTopic is the default topic name.
const DefaultTopic = "osm.replication"

// DefaultTimeout is the default per-publish write timeout.
const DefaultTimeout = 10 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Config configures the Kafka adapter.
type Config struct {
	// Brokers lists bootstrap broker addresses (host:port, required).
	Brokers []string
	// Topic is the destination topic (default: osm.replication).
	Topic string
	// Timeout is the per-publish write timeout (default 10s).
	Timeout time.Duration
	// Retries is the number of retries after a failed write.
	Retries int
	// Backoff is the delay before the first retry (default retry.DefaultBackoff).
	Backoff time.Duration
}

// messageWriter is the subset of *kafka.Writer used by the adapter.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Adapter publishes entry events to a Kafka topic.
type Adapter struct {
	config Config
	retry  retry.Policy
	writer messageWriter
}

// New creates a Kafka adapter from the given config.
// No connection is made until the first Publish.
func New(cfg Config) (*Adapter, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka adapter requires at least one broker")
	}
	for _, b := range cfg.Brokers {
		if b == "" {
			return nil, errors.New("kafka adapter: empty broker address")
		}
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	policy := retry.Policy{Retries: cfg.Retries, Backoff: cfg.Backoff}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("kafka adapter: %w", err)
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  1,
		WriteTimeout: cfg.Timeout,
		// Entries are published one at a time; flush each immediately.
		BatchSize: 1,
	}

	return &Adapter{config: cfg, retry: policy, writer: w}, nil
}

// Publish writes the event as a JSON message keyed by feed. A closed writer
// fails without retrying.
func (a *Adapter) Publish(ctx context.Context, event *adapter.EntryEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka: marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Feed),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "seqno", Value: []byte(strconv.FormatUint(event.Seqno, 10))},
			{Key: "idempotency_key", Value: []byte(event.Key())},
		},
		Time: time.Now(),
	}

	err = a.retry.Do(ctx, func(ctx context.Context) error {
		err := a.writer.WriteMessages(ctx, msg)
		if errors.Is(err, io.ErrClosedPipe) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("kafka: publish to %s: %w", a.config.Topic, err)
	}
	return nil
}

// Close flushes pending messages and releases adapter resources.
func (a *Adapter) Close() error {
	return a.writer.Close()
}

// Verify Adapter implements the adapter interface.
var _ adapter.Adapter = (*Adapter)(nil)
