// Package cmd provides CLI commands for the osm binary.
package cmd

import "github.com/urfave/cli/v2"

// Exit codes.
const (
	exitSuccess = 0
	exitFailure = 1
	exitUsage   = 2
)

// Shared flags for commands that render records.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml (default: table on a terminal, json otherwise)",
	}
)

// RecordFlags returns the shared flags for commands that render records.
func RecordFlags() []cli.Flag {
	return []cli.Flag{FormatFlag}
}

// GlobalFlags returns the flags accepted before any command.
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "Path to osm.yaml config file",
			EnvVars: []string{"OSM_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "server",
			Usage: "OSM API server (default: https://www.openstreetmap.org)",
		},
		&cli.StringFlag{
			Name:  "replication-server",
			Usage: "Replication server hosting the well-known feeds (default: https://planet.openstreetmap.org)",
		},
		&cli.StringFlag{
			Name:  "user-agent",
			Usage: "User-Agent header sent with every request",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Per-request HTTP timeout (default: 30s)",
		},
		&cli.IntFlag{
			Name:  "retries",
			Usage: "Retry attempts for transient replication fetch failures (default: 2)",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level: debug, info, warn, error (default: warn)",
			EnvVars: []string{"OSM_LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "Log format: json, console (default: json)",
		},
		&cli.BoolFlag{
			Name:  "stats",
			Usage: "Print session counters to stderr on exit",
		},
	}
}

// Commands returns every osm command. Flag parse errors in any of them
// exit with the usage code.
func Commands(commit string) []*cli.Command {
	cmds := []*cli.Command{
		ReplicationCommand(),
		ElementCommand("node"),
		ElementCommand("way"),
		ElementCommand("relation"),
		ChangesetCommand(),
		VersionCommand(commit),
	}
	for _, c := range cmds {
		setUsageHandler(c)
	}
	return cmds
}

// OnUsageError reports flag parse errors as usage errors.
func OnUsageError(_ *cli.Context, err error, _ bool) error {
	return usageError(err)
}

func setUsageHandler(c *cli.Command) {
	c.OnUsageError = OnUsageError
	for _, sub := range c.Subcommands {
		setUsageHandler(sub)
	}
}
