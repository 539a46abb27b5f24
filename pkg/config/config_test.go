package config

import (
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlagsDefaults(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := ParseFlags(fs, nil)
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.GraphiteFreq)
}

func TestParseFlagsRepeatableAuth(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := ParseFlags(fs, []string{
		"--auth-basic", "a:b",
		"--auth-basic", "c:d",
		"--auth-bearer", "tok",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a:b", "c:d"}, cfg.AuthBasic)
	assert.Equal(t, []string{"tok"}, cfg.AuthBearer)
}

func TestParseFlagsInvalidLogLevel(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	_, err := ParseFlags(fs, []string{"--loglevel", "NOPE"})
	assert.Error(t, err)
}

func TestParseFlagsGraphiteFreq(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := ParseFlags(fs, []string{"--graphite-freq", "5"})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.GraphiteFreq)
}
