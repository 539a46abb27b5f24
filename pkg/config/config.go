// Package config loads the broker's flag-and-environment-backed CLI
// surface into a Config struct via DefaultConfig and Validate.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"
)

// Config is the resolved broker configuration.
type Config struct {
	Host string
	Port string

	AuthBasic  []string
	AuthBearer []string

	LogLevel string

	Graphite          string
	GraphiteStatsRoot string
	GraphiteFreq      time.Duration
}

var validLogLevels = map[string]struct{}{
	"CRITICAL": {}, "ERROR": {}, "WARNING": {}, "INFO": {}, "DEBUG": {}, "NOTSET": {},
}

// DefaultConfig returns the broker's defaults, matching the Python
// original's argparse defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:              "",
		Port:              "8080",
		LogLevel:          "INFO",
		Graphite:          os.Getenv("QUEUE_GRAPHITE"),
		GraphiteStatsRoot: envOr("QUEUE_GRAPHITE_ROOT", "queue"),
		GraphiteFreq:      10 * time.Second,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// repeatableFlag collects every occurrence of a repeatable flag, e.g.
// --auth-basic user:pass --auth-basic other:pass.
type repeatableFlag []string

func (r *repeatableFlag) String() string { return fmt.Sprint([]string(*r)) }
func (r *repeatableFlag) Set(v string) error {
	*r = append(*r, v)
	return nil
}

// ParseFlags parses args against the broker's CLI surface, layering over
// DefaultConfig.
func ParseFlags(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := DefaultConfig()

	var authBasic, authBearer repeatableFlag
	freqSeconds := 10

	fs.StringVar(&cfg.Host, "host", cfg.Host, "queue listen address")
	fs.StringVar(&cfg.Port, "port", cfg.Port, "queue listen port")
	fs.Var(&authBasic, "auth-basic", "authentication credentials (user:pass), repeatable")
	fs.Var(&authBearer, "auth-bearer", "authentication credentials (token), repeatable")
	fs.StringVar(&cfg.LogLevel, "loglevel", cfg.LogLevel, "CRITICAL|ERROR|WARNING|INFO|DEBUG|NOTSET")
	fs.StringVar(&cfg.Graphite, "graphite", cfg.Graphite, "Graphite stats server host")
	fs.StringVar(&cfg.GraphiteStatsRoot, "graphite-stats-root", cfg.GraphiteStatsRoot, "Graphite stats root key")
	fs.IntVar(&freqSeconds, "graphite-freq", freqSeconds, "Graphite metric collection frequency, seconds")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.AuthBasic = authBasic
	cfg.AuthBearer = authBearer
	cfg.GraphiteFreq = time.Duration(freqSeconds) * time.Second

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields ParseFlags cannot validate with flag.Var
// alone.
func (c *Config) Validate() error {
	if _, ok := validLogLevels[c.LogLevel]; !ok {
		return fmt.Errorf("invalid loglevel %q", c.LogLevel)
	}
	if c.GraphiteFreq <= 0 {
		return fmt.Errorf("graphite-freq must be positive, got %s", c.GraphiteFreq)
	}
	return nil
}
