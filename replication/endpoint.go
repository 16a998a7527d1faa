package replication

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// DefaultServer is the planet server hosting the well-known feeds.
const DefaultServer = "https://planet.openstreetmap.org"

// Feed identifies which replication feed an Endpoint addresses.
type Feed int

const (
	// FeedCustom is a feed addressed by literal URL or config-file entry.
	FeedCustom Feed = iota
	// FeedMinute is the minutely OsmChange feed.
	FeedMinute
	// FeedHour is the hourly OsmChange feed.
	FeedHour
	// FeedDay is the daily OsmChange feed.
	FeedDay
	// FeedChangesets is the changeset metadata feed.
	FeedChangesets
)

// String returns the short name of the feed.
func (f Feed) String() string {
	switch f {
	case FeedMinute:
		return "minute"
	case FeedHour:
		return "hour"
	case FeedDay:
		return "day"
	case FeedChangesets:
		return "changesets"
	default:
		return "custom"
	}
}

// Offset is the seqno renumbering a feed applies to its published file names.
type Offset int

const (
	// OffsetNone publishes seqno n under the file number n.
	OffsetNone Offset = iota
	// OffsetPlusOne publishes seqno n under the file number n+1 (changesets).
	OffsetPlusOne
)

// Apply maps a logical seqno to the number used in URLs.
func (o Offset) Apply(seqno uint64) uint64 {
	if o == OffsetPlusOne {
		return seqno + 1
	}
	return seqno
}

// ParseOffset converts the numeric config-file form (0 or 1) into an Offset.
func ParseOffset(n int) (Offset, error) {
	switch n {
	case 0:
		return OffsetNone, nil
	case 1:
		return OffsetPlusOne, nil
	default:
		return 0, fmt.Errorf("invalid seqno offset %d (must be 0 or 1)", n)
	}
}

// Endpoint describes how to address one replication feed.
// Endpoints are immutable once built and safe to share.
type Endpoint struct {
	Feed             Feed
	Name             string
	BaseURL          string
	CurrentStatePath string
	Encoding         Encoding
	StateSuffix      string
	DataSuffix       string
	Offset           Offset
}

// CurrentStateURL returns the URL of the feed's current state file.
func (e Endpoint) CurrentStateURL() string {
	return e.BaseURL + "/" + e.CurrentStatePath
}

// StateURL returns the URL of the state file for a logical seqno.
func (e Endpoint) StateURL(seqno uint64) string {
	return e.BaseURL + "/" + e.Path(seqno, e.StateSuffix)
}

// DataURL returns the URL of the diff file for a logical seqno.
func (e Endpoint) DataURL(seqno uint64) string {
	return e.BaseURL + "/" + e.Path(seqno, e.DataSuffix)
}

// Path returns the base-relative path "hhh/mmm/lll<suffix>" for a logical
// seqno, after the feed's offset has been applied.
func (e Endpoint) Path(seqno uint64, suffix string) string {
	return TripletPath(e.Offset.Apply(seqno)) + suffix
}

// Triplet splits a file number into its three directory groups.
func Triplet(n uint64) (hi, mid, lo uint64) {
	return n / 1_000_000, (n % 1_000_000) / 1000, n % 1000
}

// FromTriplet is the inverse of Triplet.
func FromTriplet(hi, mid, lo uint64) uint64 {
	return hi*1_000_000 + mid*1000 + lo
}

// TripletPath formats a file number as "hhh/mmm/lll" with zero padding.
func TripletPath(n uint64) string {
	hi, mid, lo := Triplet(n)
	return fmt.Sprintf("%03d/%03d/%03d", hi, mid, lo)
}

// feedTemplate is a row of the well-known feed table.
type feedTemplate struct {
	feed        Feed
	path        string
	statePath   string
	encoding    Encoding
	stateSuffix string
	dataSuffix  string
	offset      Offset
}

var knownFeeds = map[string]feedTemplate{
	"minute": {
		feed: FeedMinute, path: "replication/minute", statePath: "state.txt",
		encoding: EncodingText, stateSuffix: ".state.txt", dataSuffix: ".osc.gz", offset: OffsetNone,
	},
	"hour": {
		feed: FeedHour, path: "replication/hour", statePath: "state.txt",
		encoding: EncodingText, stateSuffix: ".state.txt", dataSuffix: ".osc.gz", offset: OffsetNone,
	},
	"day": {
		feed: FeedDay, path: "replication/day", statePath: "state.txt",
		encoding: EncodingText, stateSuffix: ".state.txt", dataSuffix: ".osc.gz", offset: OffsetNone,
	},
	"changesets": {
		feed: FeedChangesets, path: "replication/changesets", statePath: "state.yaml",
		encoding: EncodingStructured, stateSuffix: ".state.txt", dataSuffix: ".osm.gz", offset: OffsetPlusOne,
	},
}

// KnownFeeds returns the well-known feeds hosted under server, sorted by name.
func KnownFeeds(server string) []Endpoint {
	names := make([]string, 0, len(knownFeeds))
	for name := range knownFeeds {
		names = append(names, name)
	}
	sort.Strings(names)

	eps := make([]Endpoint, 0, len(names))
	for _, name := range names {
		eps = append(eps, knownFeeds[name].endpoint(name, server))
	}
	return eps
}

func (t feedTemplate) endpoint(name, server string) Endpoint {
	return Endpoint{
		Feed:             t.feed,
		Name:             name,
		BaseURL:          strings.TrimRight(server, "/") + "/" + t.path,
		CurrentStatePath: t.statePath,
		Encoding:         t.encoding,
		StateSuffix:      t.stateSuffix,
		DataSuffix:       t.dataSuffix,
		Offset:           t.offset,
	}
}

// ParseFeed builds an Endpoint from a feed selector: one of the well-known
// short names (resolved against server, DefaultServer when empty) or a literal
// http(s) base URL, which gets the minute feed's file layout.
func ParseFeed(selector, server string) (Endpoint, error) {
	if server == "" {
		server = DefaultServer
	}
	if t, ok := knownFeeds[selector]; ok {
		return t.endpoint(selector, server), nil
	}

	u, err := url.Parse(selector)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Endpoint{}, fmt.Errorf("unknown feed %q: expected minute, hour, day, changesets or an http(s) URL", selector)
	}

	return CustomEndpoint(selector, selector, EncodingText, OffsetNone), nil
}

// CustomEndpoint builds a FeedCustom endpoint with the default text layout
// (state.txt, .state.txt, .osc.gz). Callers may override fields on the result.
func CustomEndpoint(name, baseURL string, enc Encoding, offset Offset) Endpoint {
	return Endpoint{
		Feed:             FeedCustom,
		Name:             name,
		BaseURL:          strings.TrimRight(baseURL, "/"),
		CurrentStatePath: "state.txt",
		Encoding:         enc,
		StateSuffix:      ".state.txt",
		DataSuffix:       ".osc.gz",
		Offset:           offset,
	}
}
