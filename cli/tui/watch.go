package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/osm/metrics"
	"github.com/pithecene-io/osm/replication"
)

// maxEntries bounds the entries kept for display.
const maxEntries = 200

// defaultVisible is the entry list height before the terminal size is known.
const defaultVisible = 10

// Status is the lifecycle state shown in the header.
type Status string

// Stream statuses.
const (
	StatusStreaming Status = "streaming"
	StatusFinished  Status = "finished"
	StatusFailed    Status = "failed"
)

// EntryMsg reports one emitted entry and the stream frontier after it.
type EntryMsg struct {
	Entry    replication.Entry
	Frontier uint64
}

// DoneMsg reports that the stream ended. Err is nil for a clean end.
type DoneMsg struct {
	Err error
}

// WatchModel is a Bubble Tea model for a live replication stream.
type WatchModel struct {
	feed     string
	metrics  *metrics.Collector
	spinner  spinner.Model
	entries  []replication.Entry
	count    int
	frontier uint64
	status   Status
	err      error
	width    int
	height   int
	quitting bool
	now      func() time.Time
}

// NewWatchModel creates a watch model for feed. The collector may be nil.
func NewWatchModel(feed string, c *metrics.Collector) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(caution)
	return WatchModel{
		feed:    feed,
		metrics: c,
		spinner: s,
		status:  StatusStreaming,
		now:     time.Now,
	}
}

// Init implements tea.Model.
func (m WatchModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}

	case EntryMsg:
		m.entries = append(m.entries, msg.Entry)
		if len(m.entries) > maxEntries {
			m.entries = m.entries[len(m.entries)-maxEntries:]
		}
		m.count++
		m.frontier = msg.Frontier
		return m, nil

	case DoneMsg:
		m.err = msg.Err
		m.status = StatusFinished
		if msg.Err != nil {
			m.status = StatusFailed
		}
		return m, nil

	case spinner.TickMsg:
		if m.status != StatusStreaming {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m WatchModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Replication feed: " + m.feed))
	b.WriteString("  ")
	b.WriteString(m.renderStatus())
	b.WriteString("\n\n")

	snap := m.metrics.Snapshot()
	tiles := []string{
		tile("Entries", fmt.Sprintf("%d", m.count), info),
		tile("Frontier", fmt.Sprintf("%d", m.frontier), accent),
		tile("Fetches", fmt.Sprintf("%d", snap.StateFetches), good),
		tile("Retries", fmt.Sprintf("%d", snap.FetchRetries), caution),
	}
	if lag, ok := m.lag(); ok {
		tiles = append(tiles, tile("Lag", lag.String(), lagColor(lag)))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, tiles...))
	b.WriteString("\n\n")

	b.WriteString(m.renderEntries())

	help := footerStyle.Render("Press q or Ctrl+C to quit")
	return b.String() + "\n" + help
}

func (m WatchModel) renderStatus() string {
	style := lipgloss.NewStyle().Foreground(statusColor(m.status))
	switch m.status {
	case StatusStreaming:
		return m.spinner.View() + " " + style.Render(string(m.status))
	case StatusFailed:
		return style.Render(fmt.Sprintf("%s: %v", m.status, m.err))
	default:
		return style.Render(string(m.status))
	}
}

// lag is the age of the newest timestamped entry, rounded to seconds.
func (m WatchModel) lag() (time.Duration, bool) {
	for i := len(m.entries) - 1; i >= 0; i-- {
		if ts := m.entries[i].Timestamp; !ts.IsZero() {
			return max(m.now().Sub(ts), 0).Round(time.Second), true
		}
	}
	return 0, false
}

func (m WatchModel) renderEntries() string {
	if len(m.entries) == 0 {
		return textStyle.Render("waiting for entries...")
	}

	visible := m.visibleRows()
	start := max(len(m.entries)-visible, 0)

	var b strings.Builder
	for _, e := range m.entries[start:] {
		ts := ""
		if !e.Timestamp.IsZero() {
			ts = e.Timestamp.UTC().Format(time.RFC3339)
		}
		b.WriteString(seqnoColumn.Render(fmt.Sprintf("%d", e.Seqno)))
		b.WriteString(timeColumn.Render(ts))
		b.WriteString(textStyle.Render(e.URL))
		b.WriteString("\n")
	}
	return b.String()
}

// visibleRows returns how many entries fit under the header and stat boxes.
func (m WatchModel) visibleRows() int {
	if m.height == 0 {
		return defaultVisible
	}
	return max(m.height-10, 1)
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// Producer drives a stream, calling emit for every entry. It returns nil
// when the stream ends cleanly.
type Producer func(ctx context.Context, emit func(e replication.Entry, frontier uint64)) error

// RunWatch runs the watch view and the producer side by side. The view stays
// open after the producer ends so the final state can be read; quitting the
// view cancels the producer. Returns the producer's error, if any.
func RunWatch(ctx context.Context, feed string, c *metrics.Collector, produce Producer, opts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(NewWatchModel(feed, c), opts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := produce(gctx, func(e replication.Entry, frontier uint64) {
			p.Send(EntryMsg{Entry: e, Frontier: frontier})
		})
		if err != nil && gctx.Err() != nil && errors.Is(err, gctx.Err()) {
			// Cancelled by the view or the caller.
			err = nil
		}
		p.Send(DoneMsg{Err: err})
		return err
	})
	g.Go(func() error {
		defer cancel()
		_, err := p.Run()
		if err != nil && errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	})
	return g.Wait()
}
