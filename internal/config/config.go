// Package config holds the small tunable structs used across store,
// listener and channel construction. Channel wiring itself is explicitly
// out of scope for a config-file loader (channels are declared in Go code);
// what's here is defaulting for the handful of durations and sizes every
// component needs, in the style the rest of this codebase uses: a plain
// struct with a resolving constructor that fills in zero values.
package config

import (
	"os"
	"strconv"
	"time"
)

// ListenerDefaults are applied by listener.Config when a field is left at
// its zero value.
type ListenerDefaults struct {
	PollingInterval time.Duration
	RetryInterval   time.Duration
}

// DefaultListener returns the baseline polling/retry cadence.
func DefaultListener() ListenerDefaults {
	return ListenerDefaults{
		PollingInterval: time.Second,
		RetryInterval:   time.Second,
	}
}

// LoggingConfig holds structured logging settings, read from the
// environment so a host process can tune verbosity without a config file.
type LoggingConfig struct {
	Level string // debug, info, warn, error
}

// LoggingFromEnv reads FABRIC_LOG_LEVEL, defaulting to "info".
func LoggingFromEnv() LoggingConfig {
	level := os.Getenv("FABRIC_LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	return LoggingConfig{Level: level}
}

// DurationFromEnv reads a duration from the named environment variable
// (in milliseconds), falling back to def if unset or unparsable.
func DurationFromEnv(name string, def time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

// IntFromEnv reads an integer from the named environment variable, falling
// back to def if unset or unparsable.
func IntFromEnv(name string, def int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
