package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/pithecene-io/osm/replication"
)

// Config represents an osm.yaml configuration file.
// All values are optional and act as defaults for osm flags.
// CLI flags always override config values.
type Config struct {
	Server      string                `yaml:"server"`
	APIServer   string                `yaml:"api_server"`
	UserAgent   string                `yaml:"user_agent"`
	HTTP        HTTPConfig            `yaml:"http"`
	Replication ReplicationConfig     `yaml:"replication"`
	Feeds       map[string]FeedConfig `yaml:"feeds"`
	Adapter     AdapterConfig         `yaml:"adapter"`
	Mirror      MirrorConfig          `yaml:"mirror"`
	Log         LogConfig             `yaml:"log"`
}

// HTTPConfig holds HTTP client defaults shared by every request.
type HTTPConfig struct {
	Timeout Duration `yaml:"timeout"`
	Retries *int     `yaml:"retries,omitempty"`
}

// ReplicationConfig holds defaults for the replication commands.
type ReplicationConfig struct {
	Feed         string   `yaml:"feed"`
	PollInterval Duration `yaml:"poll_interval"`
	MaxGuessWalk int      `yaml:"max_guess_walk"`
}

// FeedConfig is a named feed definition within the config file.
// Name is derived from the map key, not stored in the struct.
type FeedConfig struct {
	URL         string `yaml:"url"`
	StatePath   string `yaml:"state_path"`
	Encoding    string `yaml:"encoding"`
	StateSuffix string `yaml:"state_suffix"`
	DataSuffix  string `yaml:"data_suffix"`
	SeqnoOffset int    `yaml:"seqno_offset"`
}

// AdapterConfig holds adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Topic   string            `yaml:"topic,omitempty"`
	Brokers []string          `yaml:"brokers,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// MirrorConfig holds mirror storage defaults from the config file.
type MirrorConfig struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// LogConfig holds logging defaults from the config file.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Endpoint converts a feed definition into a replication endpoint.
// Empty layout fields keep the defaults of a literal feed URL.
func (f FeedConfig) Endpoint(name string) (replication.Endpoint, error) {
	if f.URL == "" {
		return replication.Endpoint{}, fmt.Errorf("feed %q: url is required", name)
	}
	enc, err := replication.ParseEncoding(f.Encoding)
	if err != nil {
		return replication.Endpoint{}, fmt.Errorf("feed %q: %w", name, err)
	}
	offset, err := replication.ParseOffset(f.SeqnoOffset)
	if err != nil {
		return replication.Endpoint{}, fmt.Errorf("feed %q: %w", name, err)
	}

	ep := replication.CustomEndpoint(name, f.URL, enc, offset)
	if f.StatePath != "" {
		ep.CurrentStatePath = f.StatePath
	}
	if f.StateSuffix != "" {
		ep.StateSuffix = f.StateSuffix
	}
	if f.DataSuffix != "" {
		ep.DataSuffix = f.DataSuffix
	}
	return ep, nil
}

// Endpoints converts the map-keyed feed config into a sorted slice of
// endpoints. Sorting by name ensures deterministic ordering.
func (c *Config) Endpoints() ([]replication.Endpoint, error) {
	if len(c.Feeds) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(c.Feeds))
	for name := range c.Feeds {
		names = append(names, name)
	}
	sort.Strings(names)

	eps := make([]replication.Endpoint, 0, len(names))
	for _, name := range names {
		ep, err := c.Feeds[name].Endpoint(name)
		if err != nil {
			return nil, err
		}
		eps = append(eps, ep)
	}
	return eps, nil
}
