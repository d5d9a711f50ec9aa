package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/harunnryd/kioku/internal/pathutil"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Store   StoreConfig   `koanf:"store"`
	Journal JournalConfig `koanf:"journal"`
	Adapter AdapterConfig `koanf:"adapter"`
	Inspect InspectConfig `koanf:"inspect"`
	Vector  VectorConfig  `koanf:"vector"`
}

type ServerConfig struct {
	LogLevel         string `koanf:"log_level"`
	MaxEventsDefault int    `koanf:"max_events_default"`
	MaxEventsCap     int    `koanf:"max_events_cap"`
}

type StoreConfig struct {
	LockBackoffBase   string `koanf:"lock_backoff_base"`
	LockBackoffFactor int    `koanf:"lock_backoff_factor"`
	LockMaxAttempts   int    `koanf:"lock_max_attempts"`
	HashHistoryDepth  int    `koanf:"hash_history_depth"`
}

type JournalConfig struct {
	RotateMaxBytes  int64  `koanf:"rotate_max_bytes"`
	DedupeWindow    string `koanf:"dedupe_window"`
	SummaryMaxChars int    `koanf:"summary_max_chars"`
	CompactAfter    string `koanf:"compact_after"`
	CompactBatch    int    `koanf:"compact_batch"`
}

type AdapterConfig struct {
	PollInterval    string `koanf:"poll_interval"`
	CompactSchedule string `koanf:"compact_schedule"`
}

type InspectConfig struct {
	IgnoreGlobs []string `koanf:"ignore_globs"`
	KeyFiles    []string `koanf:"key_files"`
	MaxEntries  int      `koanf:"max_entries"`
}

type VectorConfig struct {
	Dimensions int    `koanf:"dimensions"`
	Collection string `koanf:"collection"`
}

const (
	HomeEnvVar = "KIOKU_HOME"

	DefaultServerLogLevel         = "info"
	DefaultServerMaxEvents        = 20
	DefaultServerMaxEventsCap     = 100
	DefaultStoreLockBackoffBase   = "25ms"
	DefaultStoreLockBackoffFactor = 2
	DefaultStoreLockMaxAttempts   = 8
	DefaultStoreHashHistoryDepth  = 8
	DefaultJournalRotateMaxBytes  = 10 * 1024 * 1024
	DefaultJournalDedupeWindow    = "20s"
	DefaultJournalSummaryMax      = 500
	DefaultJournalCompactAfter    = "24h"
	DefaultJournalCompactBatch    = 3000
	DefaultAdapterPollInterval    = "2s"
	DefaultAdapterCompactSchedule = "@daily"
	DefaultInspectMaxEntries      = 10000
	DefaultVectorDimensions       = 256
	DefaultVectorCollection       = "decisions"
)

// HomeDir resolves the global kioku home: $KIOKU_HOME override, else ~/.kioku.
func HomeDir() (string, error) {
	if override := strings.TrimSpace(os.Getenv(HomeEnvVar)); override != "" {
		return pathutil.Canonical(override)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".kioku"), nil
}

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	// Hardcoded Defaults
	defaults := map[string]interface{}{
		"server.log_level":          DefaultServerLogLevel,
		"server.max_events_default": DefaultServerMaxEvents,
		"server.max_events_cap":     DefaultServerMaxEventsCap,
		"store.lock_backoff_base":   DefaultStoreLockBackoffBase,
		"store.lock_backoff_factor": DefaultStoreLockBackoffFactor,
		"store.lock_max_attempts":   DefaultStoreLockMaxAttempts,
		"store.hash_history_depth":  DefaultStoreHashHistoryDepth,
		"journal.rotate_max_bytes":  DefaultJournalRotateMaxBytes,
		"journal.dedupe_window":     DefaultJournalDedupeWindow,
		"journal.summary_max_chars": DefaultJournalSummaryMax,
		"journal.compact_after":     DefaultJournalCompactAfter,
		"journal.compact_batch":     DefaultJournalCompactBatch,
		"adapter.poll_interval":     DefaultAdapterPollInterval,
		"adapter.compact_schedule":  DefaultAdapterCompactSchedule,
		"inspect.ignore_globs": []string{
			".git", ".kioku", ".venv", "node_modules", "__pycache__",
			".mypy_cache", ".pytest_cache", ".idea", ".vscode", "*.swp",
		},
		"inspect.key_files": []string{
			"go.mod", "package.json", "pyproject.toml", "Cargo.toml",
			"Makefile", "README.md",
		},
		"inspect.max_entries": DefaultInspectMaxEntries,
		"vector.dimensions":   DefaultVectorDimensions,
		"vector.collection":   DefaultVectorCollection,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	// Config file loading
	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, err
		}
	} else if home, err := HomeDir(); err == nil {
		globalPath := filepath.Join(home, "config.yaml")
		if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
			slog.Debug("Global config not found or invalid", "path", globalPath, "error", err)
		}
	}

	// Environment Variables
	k.Load(env.Provider("KIOKU_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "KIOKU_")), "_", ".", -1)
	}), nil)

	// CLI Flags
	if cmd != nil {
		k.Load(posflag.Provider(cmd.Flags(), ".", k), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
