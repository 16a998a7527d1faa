// Package mirror copies replication files into a local directory or an S3
// bucket. The copy keeps the feed's triplet layout and maintains its own
// current state file, so a mirror can itself be followed as a feed.
package mirror

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/pithecene-io/osm/iox"
	"github.com/pithecene-io/osm/metrics"
	"github.com/pithecene-io/osm/replication"
)

// maxStateSize bounds the state file bodies held in memory.
const maxStateSize = 64 * 1024

// Opener opens a remote file. *replication.Fetcher implements it.
type Opener interface {
	Open(ctx context.Context, url string) (io.ReadCloser, int64, error)
}

// Options configures a Mirror.
type Options struct {
	// SkipExisting leaves data files already present in the store untouched.
	SkipExisting bool
	// Logger receives per-file narration. Nil disables logging.
	Logger replication.Logger
	// Metrics receives mirror counters. Nil disables collection.
	Metrics *metrics.Collector
}

// Mirror copies the files of stream entries from one feed into a Store.
// Entries must be passed in increasing seqno order.
type Mirror struct {
	src    Opener
	store  Store
	ep     replication.Endpoint
	opts   Options
	logger replication.Logger
}

// New creates a Mirror of ep's files into store.
func New(src Opener, store Store, ep replication.Endpoint, opts Options) *Mirror {
	logger := opts.Logger
	if logger == nil {
		logger = replication.NopLogger{}
	}
	return &Mirror{src: src, store: store, ep: ep, opts: opts, logger: logger}
}

// Entry copies the data and state files of e, then rewrites the mirror's
// current state file to point at e. It returns the number of bytes stored.
func (m *Mirror) Entry(ctx context.Context, e replication.Entry) (int64, error) {
	n, err := m.entry(ctx, e.Seqno)
	if err != nil {
		m.opts.Metrics.IncMirrorFailure()
		return n, fmt.Errorf("mirror seqno %d: %w", e.Seqno, err)
	}
	m.opts.Metrics.IncMirrorSuccess(n)
	return n, nil
}

func (m *Mirror) entry(ctx context.Context, seqno uint64) (int64, error) {
	var total int64

	dataKey := m.ep.Path(seqno, m.ep.DataSuffix)
	skip := false
	if m.opts.SkipExisting {
		exists, err := m.store.Exists(ctx, dataKey)
		if err != nil {
			return 0, err
		}
		skip = exists
	}
	if skip {
		m.logger.Debug("data file already mirrored", map[string]any{"key": dataKey})
	} else {
		n, err := m.copyFile(ctx, m.ep.DataURL(seqno), dataKey)
		if err != nil {
			return 0, err
		}
		total += n
	}

	state, err := m.readState(ctx, m.ep.StateURL(seqno))
	if err != nil {
		return total, err
	}
	for _, key := range []string{m.ep.Path(seqno, m.ep.StateSuffix), m.ep.CurrentStatePath} {
		if err := m.store.Put(ctx, key, bytes.NewReader(state), int64(len(state))); err != nil {
			return total, err
		}
		total += int64(len(state))
	}

	m.logger.Debug("mirrored entry", map[string]any{"feed": m.ep.Name, "seqno": seqno, "bytes": total})
	return total, nil
}

func (m *Mirror) copyFile(ctx context.Context, url, key string) (int64, error) {
	body, size, err := m.src.Open(ctx, url)
	if err != nil {
		return 0, err
	}
	defer iox.DiscardClose(body)

	cr := &countingReader{r: body}
	if err := m.store.Put(ctx, key, cr, size); err != nil {
		return cr.n, err
	}
	if size >= 0 && cr.n != size {
		return cr.n, fmt.Errorf("%s: short body: got %d of %d bytes", url, cr.n, size)
	}
	return cr.n, nil
}

func (m *Mirror) readState(ctx context.Context, url string) ([]byte, error) {
	body, _, err := m.src.Open(ctx, url)
	if err != nil {
		return nil, err
	}
	defer iox.DiscardClose(body)

	data, err := io.ReadAll(io.LimitReader(body, maxStateSize+1))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", url, err)
	}
	if len(data) > maxStateSize {
		return nil, fmt.Errorf("%s: state file exceeds %d bytes", url, maxStateSize)
	}

	// Only state files that decode are published.
	if _, err := replication.DecodeState(bytes.NewReader(data), m.ep.Encoding); err != nil {
		return nil, fmt.Errorf("%s: %w", url, err)
	}
	return data, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
