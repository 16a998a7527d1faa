package render

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type record struct {
	Feed      string    `json:"feed"`
	Seqno     uint64    `json:"seqno"`
	Timestamp time.Time `json:"timestamp"`
	URL       string    `json:"url,omitempty"`
	internal  int
}

func testRecord() record {
	return record{
		Feed:      "minute",
		Seqno:     6000123,
		Timestamp: time.Date(2024, 1, 1, 0, 1, 2, 0, time.UTC),
		URL:       "https://planet.openstreetmap.org/replication/minute/006/000/123.osc.gz",
		internal:  1,
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Format
		wantErr bool
	}{
		{"json lowercase", "json", FormatJSON, false},
		{"json uppercase", "JSON", FormatJSON, false},
		{"table", "table", FormatTable, false},
		{"yaml", "yaml", FormatYAML, false},
		{"empty", "", "", false},
		{"invalid", "xml", "", true},
		{"invalid csv", "csv", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseFormat_InvalidErrorMessage(t *testing.T) {
	_, err := ParseFormat("xml")
	if err == nil {
		t.Fatal("expected error for invalid format")
	}
	if !strings.Contains(err.Error(), "json, table, or yaml") {
		t.Errorf("error message should mention valid formats, got: %v", err)
	}
}

func TestNewRenderer_DefaultsToJSONForNonTTY(t *testing.T) {
	var buf bytes.Buffer
	r, err := NewRenderer("", &buf)
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}
	if r.Format() != FormatJSON {
		t.Errorf("Format() = %v, want json", r.Format())
	}

	// Regular files are not terminals either.
	f, err := os.Create(filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer func() { _ = f.Close() }()
	r, err = NewRenderer("", f)
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}
	if r.Format() != FormatJSON {
		t.Errorf("Format() for file = %v, want json", r.Format())
	}

	r, err = NewRenderer("yaml", &buf)
	if err != nil || r.Format() != FormatYAML {
		t.Errorf("NewRenderer(yaml) = %v, %v", r, err)
	}

	if _, err := NewRenderer("csv", &buf); err == nil {
		t.Error("NewRenderer(csv) expected error")
	}
}

func TestRenderer_JSON(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatJSON, &buf)

	if err := r.Render(testRecord()); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	want := `{
  "feed": "minute",
  "seqno": 6000123,
  "timestamp": "2024-01-01T00:01:02Z",
  "url": "https://planet.openstreetmap.org/replication/minute/006/000/123.osc.gz"
}
`
	if buf.String() != want {
		t.Errorf("JSON output:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestRenderer_YAML(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatYAML, &buf)

	data := map[string]string{"key": "value"}
	if err := r.Render(data); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if got := buf.String(); got != "key: value\n" {
		t.Errorf("YAML output = %q, want %q", got, "key: value\n")
	}
}

func TestRenderer_Table_Struct(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, &buf)

	if err := r.Render(testRecord()); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4 (unexported fields skipped):\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[1], "seqno:") || !strings.HasSuffix(lines[1], "6000123") {
		t.Errorf("seqno line = %q", lines[1])
	}
	if !strings.HasSuffix(lines[2], "2024-01-01T00:01:02Z") {
		t.Errorf("timestamp line = %q, want RFC 3339", lines[2])
	}
}

func TestRenderer_Table_Pointer(t *testing.T) {
	var buf bytes.Buffer
	rec := testRecord()
	if err := NewRendererWithWriter(FormatTable, &buf).Render(&rec); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(buf.String(), "feed:") {
		t.Errorf("pointer to struct should render fields, got: %s", buf.String())
	}
}

func TestRenderer_Table_Slice(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, &buf)

	type feed struct {
		Name    string `json:"name"`
		BaseURL string `json:"base_url"`
	}

	data := []feed{
		{Name: "day", BaseURL: "https://planet.openstreetmap.org/replication/day"},
		{Name: "minute", BaseURL: "https://planet.openstreetmap.org/replication/minute"},
	}

	if err := r.Render(data); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2 rows:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "NAME") || !strings.Contains(lines[0], "BASE_URL") {
		t.Errorf("header = %q", lines[0])
	}
	// Columns are aligned.
	if strings.Index(lines[1], "https") != strings.Index(lines[2], "https") {
		t.Errorf("columns not aligned:\n%s", buf.String())
	}
}

func TestRenderer_Table_MapSorted(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, &buf)

	if err := r.Render(map[string]int{"zeta": 1, "alpha": 2, "mid": 3}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	got := buf.String()
	if !(strings.Index(got, "alpha") < strings.Index(got, "mid") && strings.Index(got, "mid") < strings.Index(got, "zeta")) {
		t.Errorf("map keys not sorted:\n%s", got)
	}
}

func TestRenderer_Table_EmptySlice(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, &buf)

	if err := r.Render([]string{}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if got := buf.String(); got != "(no results)\n" {
		t.Errorf("Empty slice should show '(no results)', got: %q", got)
	}
}

func TestRenderer_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := NewRendererWithWriter(Format("csv"), &buf).Render(1); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestRenderer_Table_NilAndNested(t *testing.T) {
	type stats struct {
		Counters map[string]int `json:"counters"`
		Tags     []string       `json:"tags"`
		Last     *time.Time     `json:"last"`
	}
	var buf bytes.Buffer
	err := NewRendererWithWriter(FormatTable, &buf).Render(stats{Counters: map[string]int{"a": 1, "b": 2}})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	got := buf.String()
	for _, want := range []string{"{2 keys}", "[]"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if !strings.Contains(got, "last:") {
		t.Errorf("nil pointer field should render as an empty value:\n%s", got)
	}
}
