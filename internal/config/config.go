/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	StateDir    string // Working directory for sockets and local databases
	DBBackend   DatabaseBackend
	DBDSN       string
	TrackDBPath string // Badger directory, or ":memory:"

	// PlaybackFile is the YAML file holding the player table, scratch list and tunables.
	PlaybackFile string

	// Speaker process. Either a command to spawn or a control socket to dial.
	SpeakerCommand      string
	SpeakerSocket       string
	SpeakerStreamSocket string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Event fan-out
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisChannel  string
	NATSURL       string
	NATSSubject   string
	InstanceID    string

	// LegacyEnvWarnings contains non-fatal warnings for deprecated env keys.
	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	stateDir := getEnvAny([]string{"JUKEBOX_STATE_DIR", "GRIMNIR_JUKEBOX_HOME"}, "./state")

	cfg := &Config{
		Environment:  getEnvAny([]string{"JUKEBOX_ENV", "GRIMNIR_ENV"}, "development"),
		HTTPBind:     getEnvAny([]string{"JUKEBOX_HTTP_BIND", "GRIMNIR_HTTP_BIND"}, "127.0.0.1"),
		HTTPPort:     getEnvIntAny([]string{"JUKEBOX_HTTP_PORT", "GRIMNIR_HTTP_PORT"}, 8090),
		StateDir:     stateDir,
		DBBackend:    DatabaseBackend(getEnvAny([]string{"JUKEBOX_DB_BACKEND", "GRIMNIR_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:        getEnvAny([]string{"JUKEBOX_DB_DSN", "GRIMNIR_DB_DSN"}, filepath.Join(stateDir, "queue.db")),
		TrackDBPath:  getEnvAny([]string{"JUKEBOX_TRACKDB_PATH"}, filepath.Join(stateDir, "tracks")),
		PlaybackFile: getEnvAny([]string{"JUKEBOX_PLAYBACK_FILE", "JUKEBOX_CONFIG"}, ""),

		SpeakerCommand:      getEnvAny([]string{"JUKEBOX_SPEAKER_COMMAND"}, ""),
		SpeakerSocket:       getEnvAny([]string{"JUKEBOX_SPEAKER_SOCKET"}, ""),
		SpeakerStreamSocket: getEnvAny([]string{"JUKEBOX_SPEAKER_STREAM_SOCKET"}, filepath.Join(stateDir, "speaker")),

		TracingEnabled:    getEnvBoolAny([]string{"JUKEBOX_TRACING_ENABLED", "GRIMNIR_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"JUKEBOX_OTLP_ENDPOINT", "GRIMNIR_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"JUKEBOX_TRACING_SAMPLE_RATE", "GRIMNIR_TRACING_SAMPLE_RATE"}, 1.0),

		RedisAddr:     getEnvAny([]string{"JUKEBOX_REDIS_ADDR", "GRIMNIR_REDIS_ADDR"}, ""),
		RedisPassword: getEnvAny([]string{"JUKEBOX_REDIS_PASSWORD", "GRIMNIR_REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"JUKEBOX_REDIS_DB", "GRIMNIR_REDIS_DB"}, 0),
		RedisChannel:  getEnvAny([]string{"JUKEBOX_REDIS_CHANNEL"}, "jukebox.events"),
		NATSURL:       getEnvAny([]string{"JUKEBOX_NATS_URL", "GRIMNIR_NATS_URL"}, ""),
		NATSSubject:   getEnvAny([]string{"JUKEBOX_NATS_SUBJECT"}, "jukebox.events"),
		InstanceID:    getEnvAny([]string{"JUKEBOX_INSTANCE_ID", "GRIMNIR_INSTANCE_ID"}, ""),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("JUKEBOX_DB_DSN must be provided")
	}

	if cfg.HTTPPort < 0 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("JUKEBOX_HTTP_PORT out of range: %d", cfg.HTTPPort)
	}

	if cfg.SpeakerCommand != "" && cfg.SpeakerSocket != "" {
		return nil, fmt.Errorf("JUKEBOX_SPEAKER_COMMAND and JUKEBOX_SPEAKER_SOCKET are mutually exclusive")
	}

	if cfg.TracingSampleRate < 0 || cfg.TracingSampleRate > 1 {
		return nil, fmt.Errorf("JUKEBOX_TRACING_SAMPLE_RATE must be between 0 and 1")
	}

	if cfg.InstanceID == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.InstanceID = host
		}
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

// SpeakerArgv splits SpeakerCommand into an argument vector.
func (c *Config) SpeakerArgv() []string {
	return strings.Fields(c.SpeakerCommand)
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"ENVIRONMENT":         "use JUKEBOX_ENV",
		"TRACING_ENABLED":     "use JUKEBOX_TRACING_ENABLED",
		"OTLP_ENDPOINT":       "use JUKEBOX_OTLP_ENDPOINT",
		"TRACING_SAMPLE_RATE": "use JUKEBOX_TRACING_SAMPLE_RATE",
		"DISORDER_CONFIG":     "use JUKEBOX_PLAYBACK_FILE",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// getEnvAny returns the first set environment variable value from keys, or def.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
