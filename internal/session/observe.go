package session

import (
	"context"
	"log/slog"
	"sort"

	kerr "github.com/harunnryd/kioku/internal/errors"
	"github.com/harunnryd/kioku/internal/filestate"
	"github.com/harunnryd/kioku/internal/gitwatch"
	"github.com/harunnryd/kioku/internal/logger"
	"github.com/harunnryd/kioku/internal/store"
)

// FilesystemSource tags events produced by the tree scan.
const FilesystemSource = "filesystem"

// ObserveReport summarizes one observation pass.
type ObserveReport struct {
	Scanned   int // regular files hashed this pass
	Changes   int // change events written (filesystem and git)
	Reverts   int // revert events written
	Recording bool
}

// Observe runs one pass over the project's passive sources: a
// content-hash scan of the tree and a git working-tree capture. Both
// reads happen before the store lock is taken; the resulting
// transitions land in a single transaction attributed to the active
// recording session. Without a recording session the pass only marks
// the sources idle and writes nothing, so observation never creates
// events under a stopped session.
func (m *Manager) Observe(ctx context.Context) (ObserveReport, error) {
	root := m.store.ProjectPath()

	// A quick read first: an idle project gets no scan at all. The
	// transaction below re-checks, so a stop racing in between still
	// cannot attribute writes to a stopped session.
	recording := false
	err := m.store.View(ctx, func(state *store.State) error {
		recording = state.ActiveRecording() != nil
		return nil
	})
	if err != nil {
		return ObserveReport{}, err
	}
	if !recording {
		return ObserveReport{}, nil
	}

	hashes := make(map[string]string)
	err = m.inspector.Scan(ctx, root, func(rel string, content []byte) error {
		hashes[rel] = filestate.Hash(content)
		return nil
	})
	if err != nil {
		return ObserveReport{}, kerr.Wrap(err, "scan project tree")
	}
	gitSnap, gitOK := gitwatch.Capture(ctx, root)

	var rep ObserveReport
	err = m.store.Update(ctx, func(tx *store.Tx) error {
		active := tx.State.ActiveRecording()
		if active == nil {
			tx.State.SetSource(FilesystemSource, "degraded", "no recording session", tx.Now)
			if gitOK {
				tx.State.SetSource(gitwatch.Source, "degraded", "no recording session", tx.Now)
			}
			return nil
		}
		rep.Recording = true
		rep.Scanned = len(hashes)

		cfg := m.journal.Config()
		for _, path := range sortedPaths(hashes) {
			obs, id, err := filestate.RecordHash(tx, active.ID, FilesystemSource, path, hashes[path], m.hashDepth, cfg)
			if err != nil {
				return err
			}
			rep.count(obs.Revert, id)
		}
		for _, path := range trackedMissing(tx.State, hashes) {
			obs, id, err := filestate.RecordRemoved(tx, active.ID, FilesystemSource, path, m.hashDepth, cfg)
			if err != nil {
				return err
			}
			rep.count(obs.Revert, id)
		}
		tx.State.SetSource(FilesystemSource, "available", "scan ok", tx.Now)

		if gitOK {
			n, err := gitwatch.Record(tx, active.ID, gitSnap, cfg)
			if err != nil {
				return err
			}
			rep.Changes += n
		} else {
			tx.State.SetSource(gitwatch.Source, "unavailable", "not a git repository", tx.Now)
		}
		return nil
	})
	if err != nil {
		return ObserveReport{}, err
	}

	if rep.Reverts > 0 {
		slog.Info("Revert detected on disk",
			"project_id", logger.GetProjectID(ctx), "reverts", rep.Reverts)
	}
	return rep, nil
}

func (r *ObserveReport) count(revert bool, eventID int64) {
	if eventID == 0 {
		return
	}
	if revert {
		r.Reverts++
	} else {
		r.Changes++
	}
}

func sortedPaths(hashes map[string]string) []string {
	paths := make([]string, 0, len(hashes))
	for path := range hashes {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// trackedMissing lists tracked paths that vanished from the tree and
// are not already marked deleted.
func trackedMissing(state *store.State, hashes map[string]string) []string {
	var missing []string
	for path, row := range state.Files {
		if _, ok := hashes[path]; ok {
			continue
		}
		if row.LastHash == filestate.DeletedHash {
			continue
		}
		missing = append(missing, path)
	}
	sort.Strings(missing)
	return missing
}
