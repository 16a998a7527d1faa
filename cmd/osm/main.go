// Package main provides the osm CLI entrypoint.
//
// Usage:
//
//	osm [global options] <command> [subcommand] [options]
//
// Exit codes:
//   - 0: success, including output closed early by the reader
//   - 1: runtime failure (network, server, decode, mirror)
//   - 2: usage error (bad flags, arguments or config)
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/osm/cli/cmd"
	"github.com/pithecene-io/osm/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	// A closed stdout (osm ... | head) surfaces as EPIPE write errors.
	signal.Ignore(syscall.SIGPIPE)

	app := &cli.App{
		Name:           "osm",
		Usage:          "Query and follow OpenStreetMap replication feeds and the OSM API",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		Flags:          cmd.GlobalFlags(),
		Commands:       cmd.Commands(commit),
		OnUsageError:   cmd.OnUsageError,
		ExitErrHandler: exitErrHandler,
		Writer:         os.Stdout,
		ErrWriter:      os.Stderr,
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already exited for every error it saw.
		os.Exit(1)
	}
}

// exitErrHandler prints err and exits with its code.
func exitErrHandler(c *cli.Context, err error) {
	if err == nil {
		return
	}
	var w io.Writer = os.Stderr
	if c != nil && c.App != nil && c.App.ErrWriter != nil {
		w = c.App.ErrWriter
	}
	code, msg := exitStatus(err)
	if msg != "" {
		_, _ = fmt.Fprintln(w, msg)
	}
	os.Exit(code)
}

// exitStatus maps err to a process exit code and the message to print.
// cli.Exit codes pass through; any other error exits 1.
func exitStatus(err error) (int, string) {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		// cli.Exit("", N).Error() returns "exit status N"; skip those.
		if msg == fmt.Sprintf("exit status %d", code) {
			msg = ""
		}
		return code, msg
	}
	return 1, "Error: " + err.Error()
}
