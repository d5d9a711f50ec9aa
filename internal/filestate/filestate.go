// Package filestate tracks per-path content hashes and detects reverts:
// a file returning to content it held before at least one intervening
// change. Detection is content-addressed, so renames and external edits
// that restore earlier bytes are still caught.
package filestate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/harunnryd/kioku/internal/config"
	"github.com/harunnryd/kioku/internal/journal"
	"github.com/harunnryd/kioku/internal/store"
)

// DeletedHash is the sentinel recorded when a tracked path disappears.
// It participates in the history ring like any content hash, so
// delete-then-restore is detected as a revert.
const DeletedHash = "deleted"

// Hash returns the content address for a blob.
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Observation is the outcome of feeding one file sighting into the
// tracker.
type Observation struct {
	Path      string
	Hash      string
	FirstSeen bool
	Repeat    bool // identical to the immediately preceding hash
	Revert    bool
	Depth     int // how many hashes back the match occurred, when Revert
	RevertSeq int // per-path revert counter, when Revert
}

// Observe feeds one content sighting for path into state and reports
// what it meant. The history ring holds up to depth hashes (newest
// last); depth <= 0 uses the default. A hash equal to the immediately
// preceding one is a no-op repeat; a hash matching an entry at least
// two positions back is a revert; anything else is novel. The caller
// owns turning a revert observation into an event (see Record).
func Observe(state *store.State, path string, content []byte, now time.Time, depth int) Observation {
	return ObserveHash(state, path, Hash(content), now, depth)
}

// ObserveRemoved records that a tracked path no longer exists.
func ObserveRemoved(state *store.State, path string, now time.Time, depth int) Observation {
	return ObserveHash(state, path, DeletedHash, now, depth)
}

// ObserveHash is Observe for callers that hashed the content
// themselves, such as a tree scan that must not hold every file in
// memory at once.
func ObserveHash(state *store.State, path, hash string, now time.Time, depth int) Observation {
	if depth <= 0 {
		depth = config.DefaultStoreHashHistoryDepth
	}
	obs := Observation{Path: path, Hash: hash}

	row := state.Files[path]
	if row == nil {
		fresh := FileRow(path, hash, now)
		state.Files[path] = &fresh
		obs.FirstSeen = true
		return obs
	}

	if hash == row.LastHash {
		row.LastSeenAt = now
		obs.Repeat = true
		return obs
	}

	// Most recent match wins; position len-1 is the immediate
	// predecessor and was handled above.
	for i := len(row.RecentHashes) - 2; i >= 0; i-- {
		if row.RecentHashes[i] == hash {
			obs.Revert = true
			obs.Depth = len(row.RecentHashes) - i
			break
		}
	}

	row.RecentHashes = append(row.RecentHashes, hash)
	if len(row.RecentHashes) > depth {
		row.RecentHashes = row.RecentHashes[len(row.RecentHashes)-depth:]
	}
	row.LastHash = hash
	row.LastSeenAt = now
	row.Clean = hash == row.BaselineHash
	if obs.Revert {
		row.RevertCount++
		obs.RevertSeq = row.RevertCount
	}
	return obs
}

// FileRow builds the initial tracking row for a path. The first
// observed hash becomes the baseline the path is judged clean against.
func FileRow(path, hash string, now time.Time) store.FileStateRow {
	return store.FileStateRow{
		Path:         path,
		LastHash:     hash,
		BaselineHash: hash,
		RecentHashes: []string{hash},
		LastSeenAt:   now,
		Clean:        true,
	}
}

// Record observes path content inside an open transaction and appends
// the event the transition warrants in the same transaction: a
// file-change event for novel content, a revert event when the content
// matches an earlier ring entry. First sightings and repeats are
// silent. Returns the observation and the event id (zero when no event
// was written).
func Record(tx *store.Tx, sessionID int64, source, path string, content []byte, depth int, cfg journal.Config) (Observation, int64, error) {
	return RecordHash(tx, sessionID, source, path, Hash(content), depth, cfg)
}

// RecordRemoved is Record for a tracked path that disappeared. The
// deletion participates in the ring, so delete-then-restore still
// surfaces as a revert.
func RecordRemoved(tx *store.Tx, sessionID int64, source, path string, depth int, cfg journal.Config) (Observation, int64, error) {
	return RecordHash(tx, sessionID, source, path, DeletedHash, depth, cfg)
}

// RecordHash is Record for pre-hashed content.
func RecordHash(tx *store.Tx, sessionID int64, source, path, hash string, depth int, cfg journal.Config) (Observation, int64, error) {
	obs := ObserveHash(tx.State, path, hash, tx.Now, depth)
	if obs.FirstSeen || obs.Repeat {
		return obs, 0, nil
	}

	draft := changeDraft(obs, source)
	if obs.Revert {
		draft = RevertDraft(obs, source)
	}
	id, err := journal.AppendTx(tx, sessionID, draft, cfg)
	if err != nil {
		return obs, 0, err
	}
	tx.State.Files[path].LastEventID = id
	return obs, id, nil
}

func changeDraft(obs Observation, source string) journal.Draft {
	summary := fmt.Sprintf("File changed: %s.", obs.Path)
	if obs.Hash == DeletedHash {
		summary = fmt.Sprintf("File deleted: %s.", obs.Path)
	}
	return journal.Draft{
		Type:         journal.TypeCodeChange,
		Source:       source,
		Summary:      summary,
		FilesTouched: []string{obs.Path},
	}
}

// RevertDraft renders a revert observation as an event draft. The
// summary carries the per-path revert sequence number so rapid
// back-and-forth edits stay distinct writes.
func RevertDraft(obs Observation, source string) journal.Draft {
	return journal.Draft{
		Type:         journal.TypeRevert,
		Source:       source,
		Summary:      fmt.Sprintf("%s reverted to content from %d changes back (revert #%d)", obs.Path, obs.Depth, obs.RevertSeq),
		FilesTouched: []string{obs.Path},
	}
}

// UnresolvedSince counts distinct paths observed after since whose
// content has drifted from baseline and not returned.
func UnresolvedSince(state *store.State, since time.Time) int {
	n := 0
	for _, row := range state.Files {
		if !row.Clean && row.LastSeenAt.After(since) {
			n++
		}
	}
	return n
}
