// Package session drives a project's recording lifecycle: the
// NEW -> RECORDING -> STOPPED machine, resumption chains, chat
// sub-sessions opened by protocol clients, and the composed status
// view. At most one recording session exists per project at any time;
// every transition and its journal events land in one transaction.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	kerr "github.com/harunnryd/kioku/internal/errors"
	"github.com/harunnryd/kioku/internal/filestate"
	"github.com/harunnryd/kioku/internal/inspect"
	"github.com/harunnryd/kioku/internal/journal"
	"github.com/harunnryd/kioku/internal/logger"
	"github.com/harunnryd/kioku/internal/store"
)

// Manager owns session transitions for one project.
type Manager struct {
	store     *store.ProjectStore
	journal   *journal.Journal
	inspector *inspect.Inspector
	hashDepth int
}

func NewManager(ps *store.ProjectStore, j *journal.Journal, in *inspect.Inspector, hashDepth int) *Manager {
	return &Manager{store: ps, journal: j, inspector: in, hashDepth: hashDepth}
}

// StartOptions shape a new recording session.
type StartOptions struct {
	AgentKind string // resolved via ResolveAgentKind before storing
	Source    string // attribution tag for the snapshot event
}

// Start begins recording. If a recording session already exists the
// call is an idempotent no-op returning it; otherwise a new session row
// is created and a snapshot event capturing the repository shape is
// appended in the same transaction. Returns the session and whether it
// was created by this call.
func (m *Manager) Start(ctx context.Context, opts StartOptions) (store.SessionRow, bool, error) {
	root := m.store.ProjectPath()
	agent, err := ResolveAgentKind(opts.AgentKind, root)
	if err != nil {
		return store.SessionRow{}, false, err
	}
	source := opts.Source
	if source == "" {
		source = "cli"
	}

	// Inspect the tree before taking the store lock; holding the
	// transaction open across a filesystem walk would starve other
	// processes.
	snap, err := m.inspector.Snapshot(root)
	if err != nil {
		return store.SessionRow{}, false, kerr.Wrap(err, "snapshot repository")
	}
	baselines := m.readKeyFiles(root)

	var (
		sess    store.SessionRow
		created bool
	)
	err = m.store.Update(ctx, func(tx *store.Tx) error {
		if active := tx.State.ActiveRecording(); active != nil {
			sess = *active
			return nil
		}

		row := store.SessionRow{
			ID:            tx.State.NextSessionID(),
			StartedAt:     tx.Now,
			Status:        store.SessionRecording,
			Kind:          store.SessionKindRecording,
			AgentKind:     agent,
			LastUpdatedAt: tx.Now,
		}
		tx.State.Sessions = append(tx.State.Sessions, row)

		if _, err := journal.AppendTx(tx, row.ID, journal.Draft{
			Type:    journal.TypeSnapshot,
			Source:  source,
			Summary: snap.Summary(),
		}, journal.Config{}); err != nil {
			return err
		}

		for path, content := range baselines {
			filestate.Observe(tx.State, path, content, tx.Now, m.hashDepth)
		}

		sess = row
		created = true
		return nil
	})
	if err != nil {
		return store.SessionRow{}, false, err
	}
	if created {
		slog.Info("Recording session started",
			"session_id", sess.ID, "agent_kind", sess.AgentKind,
			"project_id", logger.GetProjectID(ctx))
	}
	return sess, created, nil
}

// Stop ends the active recording session. Fails with NoActiveSession
// when nothing is recording; already-durable writes are untouched.
func (m *Manager) Stop(ctx context.Context) (store.SessionRow, error) {
	var sess store.SessionRow
	err := m.store.Update(ctx, func(tx *store.Tx) error {
		active := tx.State.ActiveRecording()
		if active == nil {
			return kerr.Wrap(kerr.ErrNoActiveSession, "stop")
		}
		ended := tx.Now
		active.Status = store.SessionStopped
		active.EndedAt = &ended
		active.LastUpdatedAt = tx.Now
		sess = *active
		return nil
	})
	return sess, err
}

// Resume creates a new recording session chained to a stopped one.
// With sessionID zero the most recently stopped recording session is
// used. The predecessor's events stay attributed to it; the new session
// records independently.
func (m *Manager) Resume(ctx context.Context, sessionID int64, agentKind string) (store.SessionRow, error) {
	root := m.store.ProjectPath()
	agent, err := ResolveAgentKind(agentKind, root)
	if err != nil {
		return store.SessionRow{}, err
	}

	var sess store.SessionRow
	err = m.store.Update(ctx, func(tx *store.Tx) error {
		if active := tx.State.ActiveRecording(); active != nil {
			return kerr.Validation(fmt.Sprintf("session %d is still recording; stop it before resuming", active.ID))
		}

		var predecessor *store.SessionRow
		if sessionID == 0 {
			predecessor = tx.State.LastStoppedRecording()
			if predecessor == nil {
				return kerr.SessionNotFound("no stopped session to resume")
			}
		} else {
			predecessor = tx.State.FindSession(sessionID)
			if predecessor == nil || predecessor.Kind != store.SessionKindRecording {
				return kerr.SessionNotFound(fmt.Sprintf("session %d", sessionID))
			}
			if predecessor.Status != store.SessionStopped {
				return kerr.Validation(fmt.Sprintf("session %d is not stopped", sessionID))
			}
		}

		row := store.SessionRow{
			ID:            tx.State.NextSessionID(),
			StartedAt:     tx.Now,
			Status:        store.SessionRecording,
			Kind:          store.SessionKindRecording,
			AgentKind:     agent,
			PredecessorID: predecessor.ID,
			LastUpdatedAt: tx.Now,
		}
		tx.State.Sessions = append(tx.State.Sessions, row)
		sess = row
		return nil
	})
	return sess, err
}

// Delete hides one session's summary from listings. Rows and events are
// retained; this is session-level soft delete, distinct from hiding the
// whole project.
func (m *Manager) Delete(ctx context.Context, sessionID int64) error {
	return m.store.Update(ctx, func(tx *store.Tx) error {
		sess := tx.State.FindSession(sessionID)
		if sess == nil {
			return kerr.SessionNotFound(fmt.Sprintf("session %d", sessionID))
		}
		sess.Hidden = true
		sess.LastUpdatedAt = tx.Now
		return nil
	})
}

// StartChat opens a chat sub-session for a protocol client. Chat
// sessions sit outside the at-most-one-recording invariant; any number
// of clients may hold one concurrently.
func (m *Manager) StartChat(ctx context.Context, client string) (store.SessionRow, error) {
	if client == "" {
		return store.SessionRow{}, kerr.Validation("client tag is required to open a chat session")
	}
	agent := client
	if !agentKinds[agent] {
		agent = detectAgentKind(m.store.ProjectPath())
	}

	var sess store.SessionRow
	err := m.store.Update(ctx, func(tx *store.Tx) error {
		row := store.SessionRow{
			ID:            tx.State.NextSessionID(),
			StartedAt:     tx.Now,
			Status:        store.SessionRecording,
			Kind:          store.SessionKindChat,
			AgentKind:     agent,
			ExternalRef:   client,
			LastUpdatedAt: tx.Now,
		}
		tx.State.Sessions = append(tx.State.Sessions, row)
		sess = row
		return nil
	})
	return sess, err
}

// StopChat ends a chat sub-session.
func (m *Manager) StopChat(ctx context.Context, sessionID int64) error {
	return m.store.Update(ctx, func(tx *store.Tx) error {
		sess := tx.State.FindSession(sessionID)
		if sess == nil || sess.Kind != store.SessionKindChat {
			return kerr.SessionNotFound(fmt.Sprintf("chat session %d", sessionID))
		}
		if sess.Status == store.SessionStopped {
			return nil // stopping twice is harmless
		}
		ended := tx.Now
		sess.Status = store.SessionStopped
		sess.EndedAt = &ended
		sess.LastUpdatedAt = tx.Now
		return nil
	})
}

// Status is the composed view the status query returns.
type Status struct {
	Project         store.ProjectRow  `json:"project"`
	Active          *store.SessionRow `json:"active_session,omitempty"`
	SessionCount    int               `json:"session_count"`
	UnresolvedFiles int               `json:"unresolved_files"`
	LastRevertAt    *time.Time        `json:"last_revert_at,omitempty"`
	LastEventID     int64             `json:"last_event_id"`
}

// Status reports the current session state, how many distinct files
// carry unresolved (non-reverted) changes since the active session
// started, and when the last revert happened. While a session is
// recording, an observation pass runs first so the answer reflects the
// tree as it sits on disk, not as of the last write.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	if _, err := m.Observe(ctx); err != nil {
		return Status{}, err
	}

	var st Status
	err := m.store.View(ctx, func(state *store.State) error {
		st.Project = state.Project
		st.LastEventID = state.LastEventID
		for i := range state.Sessions {
			sess := state.Sessions[i]
			if sess.Kind != store.SessionKindRecording || sess.Hidden {
				continue
			}
			st.SessionCount++
			if sess.Status == store.SessionRecording {
				copied := sess
				st.Active = &copied
			}
		}
		since := time.Time{}
		if st.Active != nil {
			since = st.Active.StartedAt
		}
		st.UnresolvedFiles = filestate.UnresolvedSince(state, since)
		return nil
	})
	if err != nil {
		return Status{}, err
	}

	revert, err := m.journal.LastRevert(ctx)
	if err != nil {
		return Status{}, err
	}
	if revert != nil {
		st.LastRevertAt = &revert.CreatedAt
	}
	return st, nil
}

// Sessions lists recording sessions, oldest first. Hidden sessions are
// excluded unless asked for.
func (m *Manager) Sessions(ctx context.Context, includeHidden bool) ([]store.SessionRow, error) {
	var out []store.SessionRow
	err := m.store.View(ctx, func(state *store.State) error {
		for _, sess := range state.Sessions {
			if sess.Kind != store.SessionKindRecording {
				continue
			}
			if sess.Hidden && !includeHidden {
				continue
			}
			out = append(out, sess)
		}
		return nil
	})
	return out, err
}

func (m *Manager) readKeyFiles(root string) map[string][]byte {
	baselines := make(map[string][]byte)
	for _, rel := range m.inspector.KeyFilePaths(root) {
		content, err := os.ReadFile(filepath.Join(root, rel))
		if err != nil {
			continue
		}
		baselines[filepath.ToSlash(rel)] = content
	}
	return baselines
}
