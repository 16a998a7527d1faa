package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/osm/adapter"
	"github.com/pithecene-io/osm/adapter/kafka"
	"github.com/pithecene-io/osm/adapter/redis"
	"github.com/pithecene-io/osm/adapter/webhook"
	"github.com/pithecene-io/osm/cli/tui"
	"github.com/pithecene-io/osm/iox"
	"github.com/pithecene-io/osm/metrics"
	"github.com/pithecene-io/osm/mirror"
	"github.com/pithecene-io/osm/replication"
	"github.com/pithecene-io/osm/wire"
)

// Output formats of the stream command.
const (
	outputText    = "text"
	outputJSON    = "json"
	outputMsgpack = "msgpack"
)

func streamCommand() *cli.Command {
	return &cli.Command{
		Name:      "stream",
		Usage:     "Print an entry for every seqno after --since or --seqno",
		ArgsUsage: "[FEED]",
		Flags: append(startFlags(),
			&cli.BoolFlag{
				Name:  "follow",
				Usage: "Keep polling for new entries once the frontier is reached",
			},
			&cli.BoolFlag{
				Name:  "urls-only",
				Usage: "Skip per-entry state fetches; entries carry no timestamp",
			},
			&cli.DurationFlag{
				Name:  "poll-interval",
				Usage: "Wait between polls with --follow",
				Value: replication.DefaultPollInterval,
			},
			&cli.StringFlag{
				Name:  "output",
				Usage: "Output format: text, json (one object per line), msgpack (framed)",
				Value: outputText,
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Show a live terminal view instead of printing entries",
			},
			// Adapter flags
			&cli.StringFlag{
				Name:  "adapter",
				Usage: "Publish entries to: webhook, redis, kafka",
			},
			&cli.StringFlag{
				Name:  "adapter-url",
				Usage: "Webhook endpoint or Redis URL",
			},
			&cli.StringSliceFlag{
				Name:  "adapter-header",
				Usage: "Webhook header as KEY=VALUE (repeatable)",
			},
			&cli.StringFlag{
				Name:  "adapter-channel",
				Usage: "Redis pub/sub channel",
			},
			&cli.StringFlag{
				Name:  "adapter-topic",
				Usage: "Kafka topic",
			},
			&cli.StringSliceFlag{
				Name:  "adapter-brokers",
				Usage: "Kafka bootstrap brokers (repeatable)",
			},
			&cli.DurationFlag{
				Name:  "adapter-timeout",
				Usage: "Per-publish timeout",
			},
			&cli.IntFlag{
				Name:  "adapter-retries",
				Usage: "Publish retry attempts",
			},
			// Mirror flags
			&cli.StringFlag{
				Name:  "mirror",
				Usage: "Copy entry files to this directory, or bucket/prefix with --mirror-backend s3",
			},
			&cli.StringFlag{
				Name:  "mirror-backend",
				Usage: "Mirror backend: fs, s3",
			},
			&cli.StringFlag{
				Name:  "mirror-region",
				Usage: "AWS region for the s3 backend",
			},
			&cli.StringFlag{
				Name:  "mirror-endpoint",
				Usage: "Custom S3 endpoint (R2, MinIO)",
			},
			&cli.BoolFlag{
				Name:  "mirror-path-style",
				Usage: "Use path-style S3 addressing",
			},
			&cli.BoolFlag{
				Name:  "mirror-skip-existing",
				Usage: "Leave data files already in the mirror untouched",
			},
		),
		Action: streamAction,
	}
}

func streamAction(c *cli.Context) error {
	selector, err := feedArg(c)
	if err != nil {
		return err
	}
	st, err := parseStart(c)
	if err != nil {
		return err
	}
	output := c.String("output")
	switch output {
	case outputText, outputJSON, outputMsgpack:
	default:
		return usagef("invalid --output %q (expected text, json or msgpack)", output)
	}
	useTUI := c.Bool("tui")
	if useTUI && c.IsSet("output") {
		return usagef("--tui and --output are mutually exclusive")
	}

	sess, err := newSession(c, "replication stream")
	if err != nil {
		return err
	}
	defer sess.close(c)

	ep, err := sess.endpoint(c, selector)
	if err != nil {
		return err
	}
	sess.metrics = metrics.NewCollector(ep.Name, sess.id)
	f, err := sess.fetcher(c)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(c.Context)
	defer cancel()

	pub, err := sess.buildAdapter(c)
	if err != nil {
		return err
	}
	if pub != nil {
		defer iox.DiscardClose(pub)
	}
	mir, err := sess.buildMirror(ctx, c, f, ep)
	if err != nil {
		return err
	}

	seqno, err := sess.resolveStart(ctx, f, ep, st)
	if err != nil {
		return finish(ctx, err)
	}

	pollInterval := c.Duration("poll-interval")
	if !c.IsSet("poll-interval") && sess.cfg.Replication.PollInterval.Duration > 0 {
		pollInterval = sess.cfg.Replication.PollInterval.Duration
	}
	stream := replication.NewStream(f, ep, seqno, replication.StreamOptions{
		Follow:       c.Bool("follow"),
		URLsOnly:     c.Bool("urls-only"),
		PollInterval: pollInterval,
		Logger:       sess.logger,
		Metrics:      sess.metrics,
	})
	sink := &entrySink{
		feed:      ep.Name,
		sessionID: sess.id,
		adapter:   pub,
		mirror:    mir,
		logger:    sess.logger,
		metrics:   sess.metrics,
	}

	if useTUI {
		err := tui.RunWatch(ctx, ep.Name, sess.metrics, func(ctx context.Context, emit func(replication.Entry, uint64)) error {
			return drain(ctx, stream, func(e replication.Entry) error {
				if err := sink.handle(ctx, e); err != nil {
					return err
				}
				emit(e, stream.Frontier())
				return nil
			})
		})
		return finish(ctx, err)
	}

	out := newEntryWriter(c.App.Writer, output, ep.Name, c.Bool("urls-only"))
	err = drain(ctx, stream, func(e replication.Entry) error {
		if err := sink.handle(ctx, e); err != nil {
			return err
		}
		return out.Write(e)
	})
	if err == nil {
		err = out.Close(stream.Frontier())
	}
	return finish(ctx, err)
}

// entrySink runs the side effects of one entry: mirror first, then publish.
// Mirror failures stop the stream; publish failures are logged and counted.
type entrySink struct {
	feed      string
	sessionID string
	adapter   adapter.Adapter
	mirror    *mirror.Mirror
	logger    replication.Logger
	metrics   *metrics.Collector
}

func (s *entrySink) handle(ctx context.Context, e replication.Entry) error {
	if s.mirror != nil {
		if _, err := s.mirror.Entry(ctx, e); err != nil {
			return err
		}
	}
	if s.adapter == nil {
		return nil
	}
	if err := s.adapter.Publish(ctx, adapter.NewEntryEvent(s.feed, s.sessionID, e)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.metrics.IncPublishFailure()
		s.logger.Warn("publish failed", map[string]any{
			"seqno": e.Seqno,
			"error": err.Error(),
		})
		return nil
	}
	s.metrics.IncPublishSuccess()
	return nil
}

// entryWriter prints entries in one of the stream output formats.
// Every entry is flushed as soon as it is written.
type entryWriter struct {
	format   string
	feed     string
	urlsOnly bool
	buf      *bufio.Writer
	enc      *json.Encoder
	frames   *wire.FrameEncoder
	count    int64
}

func newEntryWriter(out io.Writer, format, feed string, urlsOnly bool) *entryWriter {
	buf := bufio.NewWriter(out)
	w := &entryWriter{format: format, feed: feed, urlsOnly: urlsOnly, buf: buf}
	switch format {
	case outputJSON:
		w.enc = json.NewEncoder(buf)
	case outputMsgpack:
		w.frames = wire.NewFrameEncoder(buf)
	}
	return w
}

// jsonEntry is one line of --output json.
type jsonEntry struct {
	Feed string `json:"feed"`
	replication.Entry
}

// Write prints e.
func (w *entryWriter) Write(e replication.Entry) error {
	var err error
	switch w.format {
	case outputJSON:
		err = w.enc.Encode(jsonEntry{Feed: w.feed, Entry: e})
	case outputMsgpack:
		err = w.frames.WriteFrame(wire.NewEntryFrame(w.feed, e))
	default:
		if w.urlsOnly || e.Timestamp.IsZero() {
			_, err = fmt.Fprintln(w.buf, e.URL)
		} else {
			_, err = fmt.Fprintf(w.buf, "%d %s %s\n", e.Seqno, e.Timestamp.UTC().Format(time.RFC3339), e.URL)
		}
	}
	if err != nil {
		return err
	}
	w.count++
	return w.buf.Flush()
}

// Close ends a finite stream. msgpack output gets a terminating end frame.
func (w *entryWriter) Close(frontier uint64) error {
	if w.format == outputMsgpack {
		if err := w.frames.WriteFrame(wire.NewEndFrame(w.feed, frontier, w.count)); err != nil {
			return err
		}
	}
	return w.buf.Flush()
}

// buildAdapter builds the publish adapter from --adapter flags and config.
// It returns nil when no adapter is configured.
func (s *session) buildAdapter(c *cli.Context) (adapter.Adapter, error) {
	ac := s.cfg.Adapter
	typ := resolveString(c, "adapter", ac.Type)
	if typ == "" {
		return nil, nil
	}
	url := resolveString(c, "adapter-url", ac.URL)
	timeout := resolveDuration(c, "adapter-timeout", ac.Timeout)

	var (
		a   adapter.Adapter
		err error
	)
	switch typ {
	case "webhook":
		headers, herr := adapterHeaders(ac.Headers, c.StringSlice("adapter-header"))
		if herr != nil {
			return nil, usageError(herr)
		}
		a, err = webhook.New(webhook.Config{
			URL:     url,
			Headers: headers,
			Timeout: timeout,
			Retries: resolveInt(c, "adapter-retries", ac.Retries, webhook.DefaultRetries),
		})
	case "redis":
		a, err = redis.New(redis.Config{
			URL:     url,
			Channel: resolveString(c, "adapter-channel", ac.Channel),
			Timeout: timeout,
			Retries: resolveInt(c, "adapter-retries", ac.Retries, redis.DefaultRetries),
		})
	case "kafka":
		brokers := ac.Brokers
		if c.IsSet("adapter-brokers") {
			brokers = c.StringSlice("adapter-brokers")
		}
		a, err = kafka.New(kafka.Config{
			Brokers: brokers,
			Topic:   resolveString(c, "adapter-topic", ac.Topic),
			Timeout: timeout,
			Retries: resolveInt(c, "adapter-retries", ac.Retries, kafka.DefaultRetries),
		})
	default:
		return nil, usagef("unknown adapter %q (expected webhook, redis or kafka)", typ)
	}
	if err != nil {
		return nil, usageError(err)
	}
	s.logger.Info("adapter configured", map[string]any{"adapter": typ})
	return a, nil
}

// adapterHeaders merges config headers with KEY=VALUE flag values.
// Flag values win.
func adapterHeaders(base map[string]string, flags []string) (map[string]string, error) {
	headers := make(map[string]string, len(base)+len(flags))
	for k, v := range base {
		headers[k] = v
	}
	for _, kv := range flags {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid --adapter-header %q (expected KEY=VALUE)", kv)
		}
		headers[strings.TrimSpace(k)] = v
	}
	return headers, nil
}

// buildMirror builds the mirror from --mirror flags and config.
// It returns nil when no mirror path is configured.
func (s *session) buildMirror(ctx context.Context, c *cli.Context, f *replication.Fetcher, ep replication.Endpoint) (*mirror.Mirror, error) {
	mc := s.cfg.Mirror
	path := resolveString(c, "mirror", mc.Path)
	if path == "" {
		return nil, nil
	}

	var (
		store mirror.Store
		err   error
	)
	switch backend := resolveString(c, "mirror-backend", mc.Backend); backend {
	case "", "fs":
		store, err = mirror.NewFSStore(path)
		if err != nil {
			return nil, usageError(err)
		}
	case "s3":
		bucket, prefix := mirror.ParseS3Path(path)
		store, err = mirror.NewS3Store(ctx, mirror.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       resolveString(c, "mirror-region", mc.Region),
			Endpoint:     resolveString(c, "mirror-endpoint", mc.Endpoint),
			UsePathStyle: c.Bool("mirror-path-style") || mc.S3PathStyle,
		})
		if err != nil {
			return nil, err
		}
	default:
		return nil, usagef("unknown mirror backend %q (expected fs or s3)", backend)
	}

	return mirror.New(f, store, ep, mirror.Options{
		SkipExisting: c.Bool("mirror-skip-existing"),
		Logger:       s.logger,
		Metrics:      s.metrics,
	}), nil
}
