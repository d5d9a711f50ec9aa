// Package registry maintains the host-global map from canonical project
// paths to project identities. It is the single point of truth for
// project existence; everything else a project owns lives in its own
// per-project store.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	kerr "github.com/harunnryd/kioku/internal/errors"
	"github.com/harunnryd/kioku/internal/pathutil"
	"github.com/harunnryd/kioku/internal/store"

	"github.com/natefinch/atomic"
	"github.com/oklog/ulid/v2"
)

// Project statuses.
const (
	StatusActive      = "active"
	StatusSoftDeleted = "soft_deleted"
)

// Entry is one registered project.
type Entry struct {
	ID            string            `json:"id"`
	CanonicalPath string            `json:"canonical_path"`
	DisplayName   string            `json:"display_name,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	Status        string            `json:"status"`
	AdapterLogs   map[string]string `json:"adapter_logs,omitempty"` // tool -> log path
	VectorEnabled bool              `json:"vector_enabled,omitempty"`
}

type registryFile struct {
	Projects map[string]*Entry `json:"projects"` // keyed by canonical path
}

// Registry reads and writes the global registry file. Like the project
// store, handles are cheap: each operation takes the registry lock,
// reads, mutates, and writes back atomically.
type Registry struct {
	lockCfg *store.FileLockConfig
}

func New(lock *store.FileLockConfig) *Registry {
	if lock == nil {
		lock = store.DefaultFileLockConfig()
	}
	return &Registry{lockCfg: lock}
}

// Resolve maps a filesystem path to its project entry, registering the
// path on first use. A soft-deleted project is refused unless
// reactivate is set, in which case it is restored to active.
func (r *Registry) Resolve(ctx context.Context, path string, reactivate bool) (Entry, error) {
	canonical, err := pathutil.Canonical(path)
	if err != nil {
		return Entry{}, kerr.Validation(fmt.Sprintf("resolve project path %q: %v", path, err))
	}

	var resolved Entry
	err = r.update(ctx, func(f *registryFile) error {
		if entry, ok := f.Projects[canonical]; ok {
			if entry.Status == StatusSoftDeleted {
				if !reactivate {
					return kerr.Wrap(kerr.ErrProjectSoftDeleted, canonical)
				}
				entry.Status = StatusActive
				entry.UpdatedAt = time.Now().UTC()
			}
			resolved = *entry
			return nil
		}

		now := time.Now().UTC()
		entry := &Entry{
			ID:            ulid.Make().String(),
			CanonicalPath: canonical,
			DisplayName:   filepath.Base(canonical),
			CreatedAt:     now,
			UpdatedAt:     now,
			Status:        StatusActive,
		}
		f.Projects[canonical] = entry
		resolved = *entry
		return nil
	})
	return resolved, err
}

// Get returns the entry with the given project id.
func (r *Registry) Get(ctx context.Context, id string) (Entry, error) {
	var found Entry
	err := r.view(ctx, func(f *registryFile) error {
		for _, entry := range f.Projects {
			if entry.ID == id {
				found = *entry
				return nil
			}
		}
		return kerr.ProjectNotFound(id)
	})
	return found, err
}

// Find resolves a loose reference: project id, display name, or path.
// Soft-deleted projects are found too; callers decide what that means.
func (r *Registry) Find(ctx context.Context, ref string) (Entry, error) {
	var found Entry
	err := r.view(ctx, func(f *registryFile) error {
		for _, entry := range f.Projects {
			if entry.ID == ref || entry.DisplayName == ref {
				found = *entry
				return nil
			}
		}
		canonical, cerr := pathutil.Canonical(ref)
		if cerr == nil {
			if entry, ok := f.Projects[canonical]; ok {
				found = *entry
				return nil
			}
		}
		return kerr.ProjectNotFound(ref)
	})
	return found, err
}

// MarkSoftDeleted hides a project without touching its memory. The
// per-project store keeps every row; Resolve with reactivation brings
// it back.
func (r *Registry) MarkSoftDeleted(ctx context.Context, id string) error {
	return r.mutateEntry(ctx, id, func(entry *Entry) error {
		entry.Status = StatusSoftDeleted
		entry.UpdatedAt = time.Now().UTC()
		return nil
	})
}

// Purge removes a project's registry entry. It refuses to run without
// the confirmation flag; callers are expected to remove the project's
// memory directory in the same breath (see store.Purge). Returns the
// removed entry so the caller knows which path to clear.
func (r *Registry) Purge(ctx context.Context, id string, confirm bool) (Entry, error) {
	if !confirm {
		return Entry{}, kerr.Validation("purge is irreversible and requires explicit confirmation")
	}
	var removed Entry
	err := r.update(ctx, func(f *registryFile) error {
		for path, entry := range f.Projects {
			if entry.ID == id {
				removed = *entry
				delete(f.Projects, path)
				return nil
			}
		}
		return kerr.ProjectNotFound(id)
	})
	return removed, err
}

// ListActive returns active projects ordered by canonical path.
func (r *Registry) ListActive(ctx context.Context) ([]Entry, error) {
	return r.list(ctx, false)
}

// List returns all projects, soft-deleted included, ordered by
// canonical path.
func (r *Registry) List(ctx context.Context) ([]Entry, error) {
	return r.list(ctx, true)
}

func (r *Registry) list(ctx context.Context, includeDeleted bool) ([]Entry, error) {
	var entries []Entry
	err := r.view(ctx, func(f *registryFile) error {
		for _, entry := range f.Projects {
			if !includeDeleted && entry.Status != StatusActive {
				continue
			}
			entries = append(entries, *entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CanonicalPath < entries[j].CanonicalPath
	})
	return entries, nil
}

// SetAdapterLog records which external log file the named tool's
// adapter should tail for this project.
func (r *Registry) SetAdapterLog(ctx context.Context, id, tool, logPath string) error {
	tool = strings.TrimSpace(tool)
	if tool == "" {
		return kerr.Validation("adapter tool name is required")
	}
	expanded, err := pathutil.Expand(logPath)
	if err != nil {
		return kerr.Validation(fmt.Sprintf("adapter log path %q: %v", logPath, err))
	}
	return r.mutateEntry(ctx, id, func(entry *Entry) error {
		if entry.AdapterLogs == nil {
			entry.AdapterLogs = make(map[string]string)
		}
		entry.AdapterLogs[tool] = expanded
		entry.UpdatedAt = time.Now().UTC()
		return nil
	})
}

// SetDisplayName renames a project in listings. Identity stays the
// canonical path; the name is presentation only.
func (r *Registry) SetDisplayName(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return kerr.Validation("display name must not be empty")
	}
	return r.mutateEntry(ctx, id, func(entry *Entry) error {
		entry.DisplayName = name
		entry.UpdatedAt = time.Now().UTC()
		return nil
	})
}

// SetVectorEnabled flips semantic indexing for a project.
func (r *Registry) SetVectorEnabled(ctx context.Context, id string, enabled bool) error {
	return r.mutateEntry(ctx, id, func(entry *Entry) error {
		entry.VectorEnabled = enabled
		entry.UpdatedAt = time.Now().UTC()
		return nil
	})
}

func (r *Registry) mutateEntry(ctx context.Context, id string, fn func(*Entry) error) error {
	return r.update(ctx, func(f *registryFile) error {
		for _, entry := range f.Projects {
			if entry.ID == id {
				return fn(entry)
			}
		}
		return kerr.ProjectNotFound(id)
	})
}

func (r *Registry) update(ctx context.Context, fn func(*registryFile) error) error {
	lockPath, err := store.RegistryLockPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	lock, err := store.AcquireFileLock(ctx, lockPath, r.lockCfg)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	f, err := load()
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		return err
	}
	return save(f)
}

func (r *Registry) view(ctx context.Context, fn func(*registryFile) error) error {
	lockPath, err := store.RegistryLockPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	lock, err := store.AcquireSharedFileLock(ctx, lockPath, r.lockCfg)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	f, err := load()
	if err != nil {
		return err
	}
	return fn(f)
}

func load() (*registryFile, error) {
	path, err := store.RegistryPath()
	if err != nil {
		return nil, err
	}
	f := &registryFile{Projects: make(map[string]*Entry)}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	if err := json.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	if f.Projects == nil {
		f.Projects = make(map[string]*Entry)
	}
	return f, nil
}

func save(f *registryFile) error {
	path, err := store.RegistryPath()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	if err := atomic.WriteFile(path, strings.NewReader(string(data)+"\n")); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	return nil
}
