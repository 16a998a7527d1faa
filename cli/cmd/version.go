package cmd

import (
	"runtime"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/osm/cli/render"
	"github.com/pithecene-io/osm/types"
)

// VersionResponse is what `osm version` renders.
type VersionResponse struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	UserAgent string `json:"user_agent"`
	Go        string `json:"go"`
	Platform  string `json:"platform"`
}

// VersionCommand reports build information without contacting any server.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Flags: RecordFlags(),
		Action: func(c *cli.Context) error {
			r, err := render.NewRenderer(c.String("format"), c.App.Writer)
			if err != nil {
				return usageError(err)
			}
			return r.Render(VersionResponse{
				Version:   types.Version,
				Commit:    commit,
				UserAgent: types.UserAgent(),
				Go:        runtime.Version(),
				Platform:  runtime.GOOS + "/" + runtime.GOARCH,
			})
		},
	}
}
