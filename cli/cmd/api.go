package cmd

import (
	"context"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/osm/osmapi"
)

// apiFormatFlag selects the API response format.
func apiFormatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Response format: xml, json",
		Value:   "xml",
	}
}

// ElementCommand returns the command fetching one element of kind
// node, way or relation.
func ElementCommand(kind string) *cli.Command {
	return &cli.Command{
		Name:      kind,
		Usage:     "Fetch a " + kind + " from the OSM API",
		ArgsUsage: "ID",
		Flags: []cli.Flag{
			apiFormatFlag(),
			&cli.BoolFlag{
				Name:  "history",
				Usage: "Fetch every version instead of the latest",
			},
		},
		Action: func(c *cli.Context) error {
			typ, err := osmapi.ParseElementType(kind)
			if err != nil {
				return usageError(err)
			}
			id, format, err := parseAPIArgs(c)
			if err != nil {
				return err
			}
			return apiFetch(c, kind, func(ctx context.Context, client *osmapi.Client, sess *session) error {
				sess.logger.Debug("fetching element", map[string]any{
					"url": client.ElementURL(typ, id, c.Bool("history")),
				})
				return client.Element(ctx, c.App.Writer, typ, id, format, c.Bool("history"))
			})
		},
	}
}

// ChangesetCommand returns the command fetching one changeset.
func ChangesetCommand() *cli.Command {
	return &cli.Command{
		Name:      "changeset",
		Usage:     "Fetch a changeset from the OSM API",
		ArgsUsage: "ID",
		Flags: []cli.Flag{
			apiFormatFlag(),
			&cli.BoolFlag{
				Name:  "diff",
				Usage: "Fetch the changeset's osmChange document instead of its metadata",
			},
		},
		Action: func(c *cli.Context) error {
			id, format, err := parseAPIArgs(c)
			if err != nil {
				return err
			}
			return apiFetch(c, "changeset", func(ctx context.Context, client *osmapi.Client, sess *session) error {
				sess.logger.Debug("fetching changeset", map[string]any{
					"url": client.ChangesetURL(id, c.Bool("diff")),
				})
				return client.Changeset(ctx, c.App.Writer, id, format, c.Bool("diff"))
			})
		},
	}
}

// parseAPIArgs validates the ID argument and --format.
func parseAPIArgs(c *cli.Context) (uint64, osmapi.Format, error) {
	if c.NArg() != 1 {
		return 0, 0, usagef("expected exactly one ID argument, got %d", c.NArg())
	}
	id, err := strconv.ParseUint(c.Args().First(), 10, 64)
	if err != nil || id == 0 {
		return 0, 0, usagef("invalid ID %q (expected a positive integer)", c.Args().First())
	}
	format, err := osmapi.ParseFormat(c.String("format"))
	if err != nil {
		return 0, 0, usageError(err)
	}
	return id, format, nil
}

// apiFetch builds a session and API client, then runs fetch.
func apiFetch(c *cli.Context, command string, fetch func(context.Context, *osmapi.Client, *session) error) error {
	sess, err := newSession(c, command)
	if err != nil {
		return err
	}
	defer sess.close(c)

	client, err := osmapi.New(osmapi.Config{
		Server:    resolveString(c, "server", sess.cfg.APIServer),
		Timeout:   resolveDuration(c, "timeout", sess.cfg.HTTP.Timeout),
		UserAgent: resolveString(c, "user-agent", sess.cfg.UserAgent),
	})
	if err != nil {
		return usageError(err)
	}

	ctx, cancel := signalContext(c.Context)
	defer cancel()

	return finish(ctx, fetch(ctx, client, sess))
}
