// Package gitwatch turns the project's git working tree into an event
// source: dirty-set changes become code-change events, and a tree
// returning to clean after edits becomes a revert event. It shells out
// to the git binary and degrades gracefully when the project is not a
// repository.
package gitwatch

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/harunnryd/kioku/internal/journal"
	"github.com/harunnryd/kioku/internal/store"
)

// Source is the attribution tag for git-derived events.
const Source = "git"

// State feature keys carrying the previous capture across processes.
const (
	headFeature  = "git_last_head"
	dirtyFeature = "git_last_status"
)

const maxSummaryFiles = 5

// Snapshot is one capture of the working tree: the commit HEAD points
// at and the porcelain dirty set.
type Snapshot struct {
	Head  string
	Dirty []string
}

func (s Snapshot) fingerprint() string {
	return s.Head + "\x00" + strings.Join(s.Dirty, "\x00")
}

// Capture reads the working tree under root. ok is false when root is
// not inside a git work tree (or git itself is missing), which callers
// surface as the source being unavailable rather than an error.
func Capture(ctx context.Context, root string) (Snapshot, bool) {
	if _, err := runGit(ctx, root, "rev-parse", "--is-inside-work-tree"); err != nil {
		return Snapshot{}, false
	}

	var snap Snapshot
	if head, err := runGit(ctx, root, "rev-parse", "HEAD"); err == nil {
		snap.Head = head
	} else {
		snap.Head = "NO_HEAD" // fresh repository without commits
	}

	status, err := runGit(ctx, root, "status", "--porcelain")
	if err != nil {
		return Snapshot{}, false
	}
	for _, line := range strings.Split(status, "\n") {
		// Porcelain format: two status letters, a space, then the path.
		if len(line) <= 3 {
			continue
		}
		path := strings.TrimSpace(line[3:])
		// The memory directory grows on every event; counting it would
		// keep the tree permanently dirty.
		if path == store.MemoryDirName || strings.HasPrefix(path, store.MemoryDirName+"/") {
			continue
		}
		snap.Dirty = append(snap.Dirty, path)
	}
	return snap, true
}

// Record compares snap against the previous capture persisted in the
// transaction's state and appends the events the difference warrants.
// The first capture only primes the stored snapshot. Returns how many
// events were written.
func Record(tx *store.Tx, sessionID int64, snap Snapshot, cfg journal.Config) (int, error) {
	tx.State.SetSource(Source, "available", "head="+shortHead(snap.Head), tx.Now)

	prevHead, primed := tx.State.Features[headFeature]
	prevDirty := tx.State.Features[dirtyFeature]
	tx.State.Features[headFeature] = snap.Head
	tx.State.Features[dirtyFeature] = strings.Join(snap.Dirty, "\x00")

	if !primed {
		return 0, nil
	}
	if snap.fingerprint() == (Snapshot{Head: prevHead, Dirty: splitDirty(prevDirty)}).fingerprint() {
		return 0, nil
	}

	if len(snap.Dirty) > 0 {
		_, err := journal.AppendTx(tx, sessionID, journal.Draft{
			Type:         journal.TypeCodeChange,
			Source:       Source,
			Summary:      dirtySummary(snap.Dirty),
			FilesTouched: snap.Dirty,
		}, cfg)
		if err != nil {
			return 0, err
		}
		return 1, nil
	}

	if prevDirty != "" {
		_, err := journal.AppendTx(tx, sessionID, journal.Draft{
			Type:    journal.TypeRevert,
			Source:  Source,
			Summary: "Git working tree reverted to a clean state.",
		}, cfg)
		if err != nil {
			return 0, err
		}
		return 1, nil
	}
	return 0, nil
}

func dirtySummary(files []string) string {
	preview := files
	suffix := ""
	if len(preview) > maxSummaryFiles {
		preview = preview[:maxSummaryFiles]
		suffix = "..."
	}
	return fmt.Sprintf("Git change detected in %d file(s): %s%s.",
		len(files), strings.Join(preview, ", "), suffix)
}

func shortHead(head string) string {
	if len(head) > 12 {
		return head[:12]
	}
	return head
}

func splitDirty(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, "\x00")
}

func runGit(ctx context.Context, root string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", root}, args...)...)
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(out), "\n"), nil
}
