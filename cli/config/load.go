package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads and parses the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("config file not found: %s", path)
	case err != nil:
		return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
	}
	return Parse(strings.NewReader(string(data)), path)
}

// Parse expands environment references in r and decodes the result.
// Unknown keys and out-of-range values are errors; source names the input
// in messages.
func Parse(r io.Reader, source string) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", source, err)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(ExpandEnv(string(raw))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid YAML in %s: %w", source, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	negative := func(key string, v int64) {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s must be >= 0", key))
		}
	}
	if c.HTTP.Retries != nil {
		negative("http.retries", int64(*c.HTTP.Retries))
	}
	if c.Adapter.Retries != nil {
		negative("adapter.retries", int64(*c.Adapter.Retries))
	}
	negative("http.timeout", int64(c.HTTP.Timeout.Duration))
	negative("adapter.timeout", int64(c.Adapter.Timeout.Duration))
	negative("replication.poll_interval", int64(c.Replication.PollInterval.Duration))
	negative("replication.max_guess_walk", int64(c.Replication.MaxGuessWalk))
	for name, f := range c.Feeds {
		if _, err := f.Endpoint(name); err != nil {
			errs = append(errs, fmt.Errorf("feeds.%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
