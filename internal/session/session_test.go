package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harunnryd/kioku/internal/config"
	kerr "github.com/harunnryd/kioku/internal/errors"
	"github.com/harunnryd/kioku/internal/filestate"
	"github.com/harunnryd/kioku/internal/inspect"
	"github.com/harunnryd/kioku/internal/journal"
	"github.com/harunnryd/kioku/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager(t *testing.T) (*Manager, *journal.Journal) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/p\n"), 0644))

	ps, err := store.Open(root, store.Options{})
	require.NoError(t, err)
	j := journal.New(ps, journal.Config{DedupeWindow: time.Millisecond})
	in, err := inspect.New(config.InspectConfig{
		IgnoreGlobs: []string{".git", ".kioku"},
		KeyFiles:    []string{"go.mod"},
		MaxEntries:  100,
	})
	require.NoError(t, err)
	return NewManager(ps, j, in, 8), j
}

func TestStartCreatesSessionAndSnapshot(t *testing.T) {
	m, j := testManager(t)
	ctx := context.Background()

	sess, created, err := m.Start(ctx, StartOptions{AgentKind: AgentClaude})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, store.SessionRecording, sess.Status)
	assert.Equal(t, AgentClaude, sess.AgentKind)

	events, err := j.Query(ctx, journal.Filter{Types: []string{journal.TypeSnapshot}})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, sess.ID, events[0].SessionID)
	assert.Contains(t, events[0].Summary, "go.mod")
}

func TestStartIsIdempotent(t *testing.T) {
	m, j := testManager(t)
	ctx := context.Background()

	first, _, err := m.Start(ctx, StartOptions{AgentKind: AgentClaude})
	require.NoError(t, err)
	second, created, err := m.Start(ctx, StartOptions{AgentKind: AgentCursor})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, AgentClaude, second.AgentKind, "the running session wins")

	events, err := j.Query(ctx, journal.Filter{Types: []string{journal.TypeSnapshot}})
	require.NoError(t, err)
	assert.Len(t, events, 1, "no second snapshot for a no-op start")
}

func TestStopWithoutActiveSession(t *testing.T) {
	m, _ := testManager(t)

	_, err := m.Stop(context.Background())
	require.Error(t, err)
	assert.True(t, kerr.IsCategory(err, kerr.ErrNoActiveSession))
}

func TestStopEndsRecording(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	started, _, err := m.Start(ctx, StartOptions{AgentKind: AgentClaude})
	require.NoError(t, err)

	stopped, err := m.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, started.ID, stopped.ID)
	assert.Equal(t, store.SessionStopped, stopped.Status)
	require.NotNil(t, stopped.EndedAt)
}

func TestResumeChainsPredecessor(t *testing.T) {
	m, j := testManager(t)
	ctx := context.Background()

	s1, _, err := m.Start(ctx, StartOptions{AgentKind: AgentClaude})
	require.NoError(t, err)
	_, err = j.Append(ctx, s1.ID, journal.Draft{Type: journal.TypeUserIntent, Source: "cli", Summary: "first goal"})
	require.NoError(t, err)
	_, err = m.Stop(ctx)
	require.NoError(t, err)

	s2, err := m.Resume(ctx, s1.ID, AgentClaude)
	require.NoError(t, err)
	assert.Equal(t, s1.ID, s2.PredecessorID)
	assert.NotEqual(t, s1.ID, s2.ID)

	_, err = j.Append(ctx, s2.ID, journal.Draft{Type: journal.TypeTaskStatus, Source: "cli", Summary: "resumed work"})
	require.NoError(t, err)

	// The predecessor's event stream is untouched by the new session.
	original, err := j.Query(ctx, journal.Filter{SessionID: s1.ID, MaxEvents: 50})
	require.NoError(t, err)
	require.Len(t, original, 2) // snapshot + user_intent
	for _, ev := range original {
		assert.Equal(t, s1.ID, ev.SessionID)
	}
}

func TestResumeDefaultsToLastStopped(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	s1, _, err := m.Start(ctx, StartOptions{AgentKind: AgentClaude})
	require.NoError(t, err)
	_, err = m.Stop(ctx)
	require.NoError(t, err)

	s2, err := m.Resume(ctx, 0, AgentClaude)
	require.NoError(t, err)
	assert.Equal(t, s1.ID, s2.PredecessorID)
}

func TestResumeErrors(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	_, err := m.Resume(ctx, 0, AgentClaude)
	assert.True(t, kerr.IsCategory(err, kerr.ErrSessionNotFound), "nothing to resume yet")

	_, err = m.Resume(ctx, 99, AgentClaude)
	assert.True(t, kerr.IsCategory(err, kerr.ErrSessionNotFound))

	_, _, err = m.Start(ctx, StartOptions{AgentKind: AgentClaude})
	require.NoError(t, err)
	_, err = m.Resume(ctx, 0, AgentClaude)
	assert.True(t, kerr.IsCategory(err, kerr.ErrValidation), "cannot resume while recording")
}

func TestAtMostOneRecordingSession(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := m.Start(ctx, StartOptions{AgentKind: AgentClaude})
		require.NoError(t, err)
		if i < 2 {
			_, err = m.Stop(ctx)
			require.NoError(t, err)
		}
	}

	sessions, err := m.Sessions(ctx, true)
	require.NoError(t, err)
	recording := 0
	for _, sess := range sessions {
		if sess.Status == store.SessionRecording {
			recording++
		}
	}
	assert.Equal(t, 1, recording)
}

func TestChatSessionsCoexistWithRecording(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	rec, _, err := m.Start(ctx, StartOptions{AgentKind: AgentClaude})
	require.NoError(t, err)

	chat1, err := m.StartChat(ctx, "cursor")
	require.NoError(t, err)
	chat2, err := m.StartChat(ctx, "mcp:claude")
	require.NoError(t, err)
	assert.Equal(t, store.SessionKindChat, chat1.Kind)
	assert.NotEqual(t, chat1.ID, chat2.ID)

	// Chat sessions never show up in the recording listing.
	sessions, err := m.Sessions(ctx, true)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, rec.ID, sessions[0].ID)

	require.NoError(t, m.StopChat(ctx, chat1.ID))
	require.NoError(t, m.StopChat(ctx, chat1.ID), "stopping twice is a no-op")

	err = m.StopChat(ctx, rec.ID)
	assert.True(t, kerr.IsCategory(err, kerr.ErrSessionNotFound), "recording sessions are not chat sessions")

	_, err = m.StartChat(ctx, "")
	assert.True(t, kerr.IsCategory(err, kerr.ErrValidation))
}

func TestDeleteHidesSession(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	sess, _, err := m.Start(ctx, StartOptions{AgentKind: AgentClaude})
	require.NoError(t, err)
	_, err = m.Stop(ctx)
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, sess.ID))

	visible, err := m.Sessions(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, visible)

	all, err := m.Sessions(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 1, "rows are retained")

	assert.True(t, kerr.IsCategory(m.Delete(ctx, 42), kerr.ErrSessionNotFound))
}

func TestStatusComposition(t *testing.T) {
	m, j := testManager(t)
	ctx := context.Background()

	s1, _, err := m.Start(ctx, StartOptions{AgentKind: AgentClaude})
	require.NoError(t, err)

	// a.txt goes A -> B -> A: exactly one revert, path ends clean.
	// b.txt drifts and stays drifted.
	require.NoError(t, j.Store().Update(ctx, func(tx *store.Tx) error {
		for _, content := range []string{"A", "B", "A"} {
			if _, _, err := filestate.Record(tx, s1.ID, "cli", "a.txt", []byte(content), 8, journal.Config{}); err != nil {
				return err
			}
		}
		for _, content := range []string{"X", "Y"} {
			if _, _, err := filestate.Record(tx, s1.ID, "cli", "b.txt", []byte(content), 8, journal.Config{}); err != nil {
				return err
			}
		}
		return nil
	}))

	_, err = m.Stop(ctx)
	require.NoError(t, err)
	_, err = m.Resume(ctx, s1.ID, AgentClaude)
	require.NoError(t, err)

	st, err := m.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.SessionCount)
	require.NotNil(t, st.Active)
	assert.NotNil(t, st.LastRevertAt)

	reverts, err := j.Query(ctx, journal.Filter{Types: []string{journal.TypeRevert}})
	require.NoError(t, err)
	assert.Len(t, reverts, 1)
}

func TestResolveAgentKind(t *testing.T) {
	root := t.TempDir()

	kind, err := ResolveAgentKind(AgentCodex, root)
	require.NoError(t, err)
	assert.Equal(t, AgentCodex, kind)

	_, err = ResolveAgentKind("vim", root)
	assert.True(t, kerr.IsCategory(err, kerr.ErrValidation))

	kind, err = ResolveAgentKind(AgentAuto, root)
	require.NoError(t, err)
	assert.Equal(t, AgentClaude, kind, "no markers falls back to claude")

	require.NoError(t, os.WriteFile(filepath.Join(root, "AGENTS.md"), []byte("# agents\n"), 0644))
	kind, err = ResolveAgentKind(AgentAuto, root)
	require.NoError(t, err)
	assert.Equal(t, AgentCodex, kind)

	require.NoError(t, os.MkdirAll(filepath.Join(root, ".cursor"), 0755))
	kind, err = ResolveAgentKind("", root)
	require.NoError(t, err)
	assert.Equal(t, AgentCursor, kind)
}
