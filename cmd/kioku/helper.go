package main

import (
	"context"

	"github.com/harunnryd/kioku/internal/config"
	"github.com/harunnryd/kioku/internal/inspect"
	"github.com/harunnryd/kioku/internal/journal"
	"github.com/harunnryd/kioku/internal/registry"
	"github.com/harunnryd/kioku/internal/session"
	"github.com/harunnryd/kioku/internal/store"

	"github.com/spf13/cobra"
)

func lockConfig() *store.FileLockConfig {
	if cfg == nil {
		return store.DefaultFileLockConfig()
	}
	base, _ := config.DurationOrDefault(cfg.Store.LockBackoffBase, config.DefaultStoreLockBackoffBase)
	lc := &store.FileLockConfig{
		BackoffBase:   base,
		BackoffFactor: cfg.Store.LockBackoffFactor,
		MaxAttempts:   cfg.Store.LockMaxAttempts,
	}
	if lc.BackoffFactor <= 0 {
		lc.BackoffFactor = config.DefaultStoreLockBackoffFactor
	}
	if lc.MaxAttempts <= 0 {
		lc.MaxAttempts = config.DefaultStoreLockMaxAttempts
	}
	return lc
}

func registryHandle() *registry.Registry {
	return registry.New(lockConfig())
}

// flagPath reads the conventional --path flag, defaulting to the
// current directory.
func flagPath(cmd *cobra.Command) string {
	if flag := cmd.Flags().Lookup("path"); flag != nil && flag.Value.String() != "" {
		return flag.Value.String()
	}
	return "."
}

// registerProject resolves (and on first use registers) the project at
// path. Commands that must not create memory as a side effect use
// findProject instead.
func registerProject(ctx context.Context, path string, reactivate bool) (registry.Entry, error) {
	return registryHandle().Resolve(ctx, path, reactivate)
}

// findProject looks a project up without registering anything.
func findProject(ctx context.Context, ref string) (registry.Entry, error) {
	return registryHandle().Find(ctx, ref)
}

func openProject(entry registry.Entry) (*store.ProjectStore, error) {
	rotate := int64(0)
	if cfg != nil {
		rotate = cfg.Journal.RotateMaxBytes
	}
	return store.Open(entry.CanonicalPath, store.Options{
		ProjectID:      entry.ID,
		CanonicalPath:  entry.CanonicalPath,
		Lock:           lockConfig(),
		RotateMaxBytes: rotate,
	})
}

func journalConfig() journal.Config {
	if cfg == nil {
		return journal.Config{}
	}
	window, _ := config.DurationOrDefault(cfg.Journal.DedupeWindow, config.DefaultJournalDedupeWindow)
	return journal.Config{
		DedupeWindow:    window,
		SummaryMaxChars: cfg.Journal.SummaryMaxChars,
	}
}

func compactConfig() journal.CompactConfig {
	if cfg == nil {
		return journal.CompactConfig{}
	}
	olderThan, _ := config.DurationOrDefault(cfg.Journal.CompactAfter, config.DefaultJournalCompactAfter)
	return journal.CompactConfig{OlderThan: olderThan, Batch: cfg.Journal.CompactBatch}
}

func buildJournal(ps *store.ProjectStore) *journal.Journal {
	return journal.New(ps, journalConfig())
}

func buildManager(ps *store.ProjectStore, j *journal.Journal) (*session.Manager, error) {
	inspectCfg := config.InspectConfig{MaxEntries: config.DefaultInspectMaxEntries}
	hashDepth := config.DefaultStoreHashHistoryDepth
	if cfg != nil {
		inspectCfg = cfg.Inspect
		if cfg.Store.HashHistoryDepth > 0 {
			hashDepth = cfg.Store.HashHistoryDepth
		}
	}
	inspector, err := inspect.New(inspectCfg)
	if err != nil {
		return nil, err
	}
	return session.NewManager(ps, j, inspector, hashDepth), nil
}
