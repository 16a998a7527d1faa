// Package render writes osm records (replication state, feed lists, version,
// --stats counters) as json, yaml or an aligned table.
//
// Without --format, terminals get a table and everything else gets json.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"
)

// Format represents an output format.
type Format string

// Supported formats.
const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

var encoders = map[Format]func(io.Writer, any) error{
	FormatJSON:  writeJSON,
	FormatYAML:  writeYAML,
	FormatTable: writeTable,
}

// ParseFormat parses a --format value case-insensitively. The empty string is
// accepted and leaves the choice to NewRenderer.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(s))
	if _, ok := encoders[f]; ok || f == "" {
		return f, nil
	}
	return "", fmt.Errorf("invalid format: %q (must be json, table, or yaml)", s)
}

// Renderer writes records in one format.
type Renderer struct {
	format Format
	out    io.Writer
}

// NewRenderer parses format and picks the default for out when it is empty.
func NewRenderer(format string, out io.Writer) (*Renderer, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	if f == "" {
		f = defaultFormat(out)
	}
	return &Renderer{format: f, out: out}, nil
}

// NewRendererWithWriter creates a renderer with a fixed format.
func NewRendererWithWriter(format Format, out io.Writer) *Renderer {
	return &Renderer{format: format, out: out}
}

// Format returns the format the renderer writes.
func (r *Renderer) Format() Format {
	return r.format
}

// Render writes data in the renderer's format.
func (r *Renderer) Render(data any) error {
	enc, ok := encoders[r.format]
	if !ok {
		return fmt.Errorf("unknown format: %s", r.format)
	}
	return enc(r.out, data)
}

func defaultFormat(out io.Writer) Format {
	if f, ok := out.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return FormatTable
	}
	return FormatJSON
}

func writeJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func writeYAML(w io.Writer, data any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return err
	}
	return enc.Close()
}
