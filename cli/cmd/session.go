package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/osm/cli/config"
	"github.com/pithecene-io/osm/cli/render"
	"github.com/pithecene-io/osm/iox"
	"github.com/pithecene-io/osm/log"
	"github.com/pithecene-io/osm/metrics"
	"github.com/pithecene-io/osm/replication"
)

// session holds the per-invocation state shared by every command:
// the loaded config, the logger, and the session id tying them together.
type session struct {
	cfg     *config.Config
	id      string
	logger  *log.Logger
	metrics *metrics.Collector
}

// newSession loads --config and builds the logger for command.
// Config and log flag problems are usage errors.
func newSession(c *cli.Context, command string) (*session, error) {
	cfg := &config.Config{}
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, usageError(err)
		}
		cfg = loaded
	}

	format, err := log.ParseFormat(resolveString(c, "log-format", cfg.Log.Format))
	if err != nil {
		return nil, usageError(err)
	}

	id := uuid.NewString()
	logger, err := log.NewLogger(log.Options{
		Level:     resolveString(c, "log-level", cfg.Log.Level),
		Format:    format,
		SessionID: id,
		Command:   command,
	})
	if err != nil {
		return nil, usageError(err)
	}
	if c.App.ErrWriter != nil {
		logger = logger.WithOutput(c.App.ErrWriter)
	}

	return &session{cfg: cfg, id: id, logger: logger}, nil
}

// close flushes the logger and prints --stats.
func (s *session) close(c *cli.Context) {
	defer iox.DiscardErr(s.logger.Sync)

	if !c.Bool("stats") {
		return
	}
	r, err := render.NewRenderer("", c.App.ErrWriter)
	if err != nil {
		return
	}
	if err := r.Render(s.metrics.Snapshot()); err != nil {
		s.logger.Warn("failed to print stats", map[string]any{"error": err.Error()})
	}
}

// endpoint resolves a feed selector: a config-file feed name first, then a
// well-known feed or literal URL. An empty selector falls back to the config
// default and then to minute.
func (s *session) endpoint(c *cli.Context, selector string) (replication.Endpoint, error) {
	if selector == "" {
		selector = s.cfg.Replication.Feed
	}
	if selector == "" {
		selector = "minute"
	}

	if fc, ok := s.cfg.Feeds[selector]; ok {
		ep, err := fc.Endpoint(selector)
		if err != nil {
			return replication.Endpoint{}, usageError(err)
		}
		return ep, nil
	}

	ep, err := replication.ParseFeed(selector, resolveString(c, "replication-server", s.cfg.Server))
	if err != nil {
		return replication.Endpoint{}, usageError(err)
	}
	return ep, nil
}

// fetcher builds the replication fetcher from global flags and config.
func (s *session) fetcher(c *cli.Context) (*replication.Fetcher, error) {
	f, err := replication.NewFetcher(replication.FetcherConfig{
		Timeout:   resolveDuration(c, "timeout", s.cfg.HTTP.Timeout),
		Retries:   resolveInt(c, "retries", s.cfg.HTTP.Retries, replication.DefaultRetries),
		UserAgent: resolveString(c, "user-agent", s.cfg.UserAgent),
		Logger:    s.logger,
		Metrics:   s.metrics,
	})
	if err != nil {
		return nil, usageError(err)
	}
	return f, nil
}

// resolveString returns the flag value when set on the command line,
// otherwise the config value, otherwise the flag default.
func resolveString(c *cli.Context, flag, cfgVal string) string {
	if c.IsSet(flag) || cfgVal == "" {
		return c.String(flag)
	}
	return cfgVal
}

// resolveInt is resolveString for optional integer config values.
func resolveInt(c *cli.Context, flag string, cfgVal *int, def int) int {
	if c.IsSet(flag) {
		return c.Int(flag)
	}
	if cfgVal != nil {
		return *cfgVal
	}
	return def
}

// resolveDuration is resolveString for durations; zero means unset.
func resolveDuration(c *cli.Context, flag string, cfgVal config.Duration) time.Duration {
	if c.IsSet(flag) || cfgVal.Duration == 0 {
		return c.Duration(flag)
	}
	return cfgVal.Duration
}

// usageError marks err as a usage problem (exit code 2).
func usageError(err error) error {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		return err
	}
	return cli.Exit(err.Error(), exitUsage)
}

// usagef formats a usage error.
func usagef(format string, args ...any) error {
	return cli.Exit(fmt.Sprintf(format, args...), exitUsage)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

// finish maps a command result to the CLI error: broken output pipes and
// cancellation by signal are successful exits.
func finish(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case iox.IsBrokenPipe(err):
		return nil
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return nil
	default:
		return err
	}
}
