package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/osm/cli/render"
	"github.com/pithecene-io/osm/metrics"
	"github.com/pithecene-io/osm/replication"
)

// ReplicationCommand returns the replication command with subcommands.
func ReplicationCommand() *cli.Command {
	return &cli.Command{
		Name:  "replication",
		Usage: "Work with replication feeds (minute, hour, day, changesets, config feeds or a URL)",
		Subcommands: []*cli.Command{
			streamCommand(),
			resolveCommand(),
			stateCommand(),
			feedsCommand(),
		},
	}
}

// startFlags select where a stream starts.
func startFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "since",
			Usage: "Start after the seqno current at this time (RFC 2822 or RFC 3339)",
		},
		&cli.Uint64Flag{
			Name:  "seqno",
			Usage: "Start after this seqno",
		},
	}
}

// start is the parsed --since / --seqno choice. Exactly one is set.
type start struct {
	since time.Time
	seqno uint64
	bySeq bool
}

// parseStart validates --since / --seqno before any network activity.
func parseStart(c *cli.Context) (start, error) {
	hasSince, hasSeqno := c.IsSet("since"), c.IsSet("seqno")
	switch {
	case hasSince && hasSeqno:
		return start{}, usagef("--since and --seqno are mutually exclusive")
	case !hasSince && !hasSeqno:
		return start{}, usagef("one of --since or --seqno is required")
	case hasSeqno:
		return start{seqno: c.Uint64("seqno"), bySeq: true}, nil
	}

	t, err := replication.ParseTimestamp(c.String("since"))
	if err != nil {
		return start{}, usagef("invalid --since: %v", err)
	}
	return start{since: t}, nil
}

// resolveStart returns the seqno a stream starts after.
func (s *session) resolveStart(ctx context.Context, src replication.StateSource, ep replication.Endpoint, st start) (uint64, error) {
	if st.bySeq {
		return st.seqno, nil
	}

	r := replication.NewResolver(src, replication.ResolverOptions{
		MaxGuessWalk: s.cfg.Replication.MaxGuessWalk,
		Logger:       s.logger,
		Metrics:      s.metrics,
	})
	seqno, err := r.Resolve(ctx, ep, st.since)
	if err != nil {
		return 0, fmt.Errorf("resolve %s: %w", st.since.Format(time.RFC3339), err)
	}
	s.logger.Info("resolved start", map[string]any{
		"feed":  ep.Name,
		"since": st.since.Format(time.RFC3339),
		"seqno": seqno,
	})
	return seqno, nil
}

// feedArg returns the optional FEED positional argument.
func feedArg(c *cli.Context) (string, error) {
	if c.NArg() > 1 {
		return "", usagef("expected at most one FEED argument, got %d", c.NArg())
	}
	return c.Args().First(), nil
}

func resolveCommand() *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "Print the seqno current at a point in time",
		ArgsUsage: "[FEED]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "since",
				Usage: "Point in time (RFC 2822 or RFC 3339), required",
			},
		},
		Action: resolveAction,
	}
}

func resolveAction(c *cli.Context) error {
	selector, err := feedArg(c)
	if err != nil {
		return err
	}
	if !c.IsSet("since") {
		return usagef("--since is required")
	}
	since, err := replication.ParseTimestamp(c.String("since"))
	if err != nil {
		return usagef("invalid --since: %v", err)
	}

	sess, err := newSession(c, "replication resolve")
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

	seqno, err := sess.resolveStart(ctx, f, ep, start{since: since})
	if err != nil {
		return finish(ctx, err)
	}
	_, err = fmt.Fprintln(c.App.Writer, seqno)
	return finish(ctx, err)
}

// StateView is the rendered form of a state record.
type StateView struct {
	Feed      string    `json:"feed" yaml:"feed"`
	Seqno     uint64    `json:"seqno" yaml:"seqno"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	StateURL  string    `json:"state_url" yaml:"state_url"`
	DataURL   string    `json:"data_url" yaml:"data_url"`
}

func stateCommand() *cli.Command {
	return &cli.Command{
		Name:      "state",
		Usage:     "Show the current state record, or the record of --seqno",
		ArgsUsage: "[FEED]",
		Flags: append(RecordFlags(),
			&cli.Uint64Flag{
				Name:  "seqno",
				Usage: "Seqno to show instead of the current state",
			},
		),
		Action: stateAction,
	}
}

func stateAction(c *cli.Context) error {
	selector, err := feedArg(c)
	if err != nil {
		return err
	}
	r, err := render.NewRenderer(c.String("format"), c.App.Writer)
	if err != nil {
		return usageError(err)
	}

	sess, err := newSession(c, "replication state")
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

	sel := replication.Current()
	if c.IsSet("seqno") {
		sel = replication.At(c.Uint64("seqno"))
	}
	st, err := f.Fetch(ctx, ep, sel)
	if err != nil {
		return finish(ctx, err)
	}

	return finish(ctx, r.Render(StateView{
		Feed:      ep.Name,
		Seqno:     st.Seqno,
		Timestamp: st.Timestamp,
		StateURL:  ep.StateURL(st.Seqno),
		DataURL:   ep.DataURL(st.Seqno),
	}))
}

// FeedView is the rendered form of an endpoint.
type FeedView struct {
	Name       string `json:"name" yaml:"name"`
	Kind       string `json:"kind" yaml:"kind"`
	BaseURL    string `json:"base_url" yaml:"base_url"`
	StatePath  string `json:"state_path" yaml:"state_path"`
	Encoding   string `json:"encoding" yaml:"encoding"`
	DataSuffix string `json:"data_suffix" yaml:"data_suffix"`
	Offset     int    `json:"seqno_offset" yaml:"seqno_offset"`
}

func newFeedView(ep replication.Endpoint) FeedView {
	return FeedView{
		Name:       ep.Name,
		Kind:       ep.Feed.String(),
		BaseURL:    ep.BaseURL,
		StatePath:  ep.CurrentStatePath,
		Encoding:   ep.Encoding.String(),
		DataSuffix: ep.DataSuffix,
		Offset:     int(ep.Offset),
	}
}

func feedsCommand() *cli.Command {
	return &cli.Command{
		Name:   "feeds",
		Usage:  "List the well-known feeds and the feeds defined in --config",
		Flags:  RecordFlags(),
		Action: feedsAction,
	}
}

func feedsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c.String("format"), c.App.Writer)
	if err != nil {
		return usageError(err)
	}

	sess, err := newSession(c, "replication feeds")
	if err != nil {
		return err
	}
	defer sess.close(c)

	server := resolveString(c, "replication-server", sess.cfg.Server)
	if server == "" {
		server = replication.DefaultServer
	}

	var views []FeedView
	for _, ep := range replication.KnownFeeds(server) {
		views = append(views, newFeedView(ep))
	}
	custom, err := sess.cfg.Endpoints()
	if err != nil {
		return usageError(err)
	}
	for _, ep := range custom {
		views = append(views, newFeedView(ep))
	}

	return finish(context.Background(), r.Render(views))
}

// drain reads a stream until it ends, passing every entry to handle.
// A non-following stream ends with io.EOF, which is not an error.
func drain(ctx context.Context, s *replication.Stream, handle func(replication.Entry) error) error {
	for {
		e, err := s.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := handle(e); err != nil {
			return err
		}
	}
}
