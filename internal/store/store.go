package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/harunnryd/kioku/internal/config"

	"github.com/natefinch/atomic"
	"github.com/oklog/ulid/v2"
)

// Options configures a ProjectStore handle. Handles are cheap: every
// transaction re-acquires the lock and re-reads state, so any number of
// processes can hold handles to the same project concurrently.
type Options struct {
	ProjectID      string
	CanonicalPath  string
	Lock           *FileLockConfig
	RotateMaxBytes int64
}

type ProjectStore struct {
	projectPath    string
	projectID      string
	lockCfg        *FileLockConfig
	rotateMaxBytes int64
}

// Tx is one atomic transaction: mutate State, stage journal lines.
// Staged lines are flushed to the journal before the state write; a
// crash in between is healed by reconcile on the next transaction.
type Tx struct {
	State   *State
	Now     time.Time
	ps      *ProjectStore
	pending [][]byte
	rewrite [][]byte
	replace bool
}

// AppendJournal stages one encoded journal line for this transaction.
func (tx *Tx) AppendJournal(line []byte) {
	tx.pending = append(tx.pending, line)
}

// ReplaceJournal stages a full journal rewrite: rotated segments are
// dropped and the active file is rebuilt from lines. Used by
// compaction only.
func (tx *Tx) ReplaceJournal(lines [][]byte) {
	tx.replace = true
	tx.rewrite = lines
}

// ScanJournal replays journal lines inside this transaction. The
// exclusive lock is already held, so the scan sees a stable journal.
func (tx *Tx) ScanJournal(fn func(line []byte) bool) error {
	return tx.ps.scanJournal(fn)
}

// Open prepares a store handle for a project, creating the memory
// directory layout if needed.
func Open(projectPath string, opts Options) (*ProjectStore, error) {
	for _, dir := range []string{MemoryDir(projectPath), JournalDir(projectPath)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	if opts.Lock == nil {
		opts.Lock = DefaultFileLockConfig()
	}
	if opts.RotateMaxBytes <= 0 {
		opts.RotateMaxBytes = config.DefaultJournalRotateMaxBytes
	}
	if opts.ProjectID == "" {
		opts.ProjectID = ulid.Make().String()
	}
	if opts.CanonicalPath == "" {
		opts.CanonicalPath = projectPath
	}

	return &ProjectStore{
		projectPath:    projectPath,
		projectID:      opts.ProjectID,
		lockCfg:        opts.Lock,
		rotateMaxBytes: opts.RotateMaxBytes,
	}, nil
}

// Exists reports whether a memory state file is present for the path.
func Exists(projectPath string) bool {
	_, err := os.Stat(StatePath(projectPath))
	return err == nil
}

// ProjectPath returns the project root this store belongs to.
func (ps *ProjectStore) ProjectPath() string {
	return ps.projectPath
}

// Update runs fn as a single atomic transaction under the cross-process
// lock. State mutations and staged journal lines land together or, on
// error, not at all.
func (ps *ProjectStore) Update(ctx context.Context, fn func(tx *Tx) error) error {
	lock, err := AcquireFileLock(ctx, LockPath(ps.projectPath), ps.lockCfg)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	state, err := ps.loadState()
	if err != nil {
		return err
	}
	ps.reconcile(state)

	tx := &Tx{State: state, Now: time.Now().UTC(), ps: ps}
	if err := fn(tx); err != nil {
		return err
	}

	if tx.replace {
		if err := ps.replaceJournal(tx.rewrite); err != nil {
			return err
		}
	}
	if len(tx.pending) > 0 {
		if err := ps.appendJournal(tx.pending); err != nil {
			return err
		}
	}
	state.Project.UpdatedAt = tx.Now
	return ps.saveState(state)
}

// View runs fn with a read snapshot under a shared lock.
func (ps *ProjectStore) View(ctx context.Context, fn func(state *State) error) error {
	lock, err := AcquireSharedFileLock(ctx, LockPath(ps.projectPath), ps.lockCfg)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	state, err := ps.loadState()
	if err != nil {
		return err
	}
	ps.reconcile(state)
	return fn(state)
}

// Purge removes the entire memory directory under the lock. Single
// directory removal keeps the operation all-or-nothing across every
// table the project owns.
func (ps *ProjectStore) Purge(ctx context.Context) error {
	lock, err := AcquireFileLock(ctx, LockPath(ps.projectPath), ps.lockCfg)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	if err := os.RemoveAll(MemoryDir(ps.projectPath)); err != nil {
		return fmt.Errorf("purge memory dir: %w", err)
	}
	return nil
}

func (ps *ProjectStore) loadState() (*State, error) {
	data, err := os.ReadFile(StatePath(ps.projectPath))
	if os.IsNotExist(err) {
		return newState(ps.projectID, ps.projectPath, time.Now().UTC()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	state.normalize()
	return &state, nil
}

func (ps *ProjectStore) saveState(state *State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(StatePath(ps.projectPath), bytes.NewReader(data))
}

// reconcile heals the crash window between a journal flush and the
// state write: if the journal tail carries an id beyond the counter,
// the counter is bumped forward so ids are never reused. Idempotent.
func (ps *ProjectStore) reconcile(state *State) {
	tailID, ok := lastJournalID(JournalPath(ps.projectPath))
	if ok && tailID > state.LastEventID {
		slog.Warn("Journal ahead of state, advancing event counter",
			"state_id", state.LastEventID, "journal_id", tailID)
		state.LastEventID = tailID
	}
}

func (ps *ProjectStore) appendJournal(lines [][]byte) error {
	path := JournalPath(ps.projectPath)
	if err := ps.checkAndRotate(path); err != nil {
		slog.Warn("Failed to rotate journal", "error", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, line := range lines {
		if _, err := f.Write(line); err != nil {
			return err
		}
		if _, err := f.WriteString("\n"); err != nil {
			return err
		}
	}
	return f.Sync()
}

func (ps *ProjectStore) checkAndRotate(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() < ps.rotateMaxBytes {
		return nil
	}

	// ULID segment names sort chronologically.
	rotated := filepath.Join(JournalDir(ps.projectPath),
		fmt.Sprintf("events-%s.jsonl", ulid.Make().String()))
	return os.Rename(path, rotated)
}

func (ps *ProjectStore) replaceJournal(lines [][]byte) error {
	var buf bytes.Buffer
	for _, line := range lines {
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if err := atomic.WriteFile(JournalPath(ps.projectPath), &buf); err != nil {
		return err
	}

	entries, err := os.ReadDir(JournalDir(ps.projectPath))
	if err != nil {
		return err
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "events-") && strings.HasSuffix(name, ".jsonl") {
			if err := os.Remove(filepath.Join(JournalDir(ps.projectPath), name)); err != nil {
				return err
			}
		}
	}
	return nil
}

// ScanJournal iterates every journal line oldest-first across rotated
// segments and the active file, under the shared lock so a concurrent
// compaction cannot swap files out mid-read. fn returning false stops
// the scan.
func (ps *ProjectStore) ScanJournal(ctx context.Context, fn func(line []byte) bool) error {
	lock, err := AcquireSharedFileLock(ctx, LockPath(ps.projectPath), ps.lockCfg)
	if err != nil {
		return err
	}
	defer lock.Unlock()
	return ps.scanJournal(fn)
}

func (ps *ProjectStore) scanJournal(fn func(line []byte) bool) error {
	dir := JournalDir(ps.projectPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var segments []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "events-") && strings.HasSuffix(name, ".jsonl") {
			segments = append(segments, name)
		}
	}
	sort.Strings(segments)
	segments = append(segments, "events.jsonl")

	for _, name := range segments {
		stop, err := scanFile(filepath.Join(dir, name), fn)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	return nil
}

func scanFile(path string, fn func(line []byte) bool) (bool, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if !fn(line) {
			return true, nil
		}
	}
	return false, scanner.Err()
}

// lastJournalID reads the id of the last complete line of the active
// journal segment.
func lastJournalID(path string) (int64, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.Size() == 0 {
		return 0, false
	}

	const window = 64 * 1024
	offset := info.Size() - window
	if offset < 0 {
		offset = 0
	}
	buf := make([]byte, info.Size()-offset)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return 0, false
	}

	lines := bytes.Split(bytes.TrimRight(buf, "\n"), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		var peek struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(lines[i], &peek); err == nil && peek.ID > 0 {
			return peek.ID, true
		}
	}
	return 0, false
}
