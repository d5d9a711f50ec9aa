package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/harunnryd/kioku/internal/journal"
	"github.com/harunnryd/kioku/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProjectFile(t *testing.T, m *Manager, rel, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(m.store.ProjectPath(), rel), []byte(content), 0644))
}

func TestObserveDetectsOnDiskRevert(t *testing.T) {
	m, j := testManager(t)
	ctx := context.Background()

	_, _, err := m.Start(ctx, StartOptions{AgentKind: AgentClaude})
	require.NoError(t, err)

	// go.mod was baselined at start; drift it and bring it back.
	writeProjectFile(t, m, "go.mod", "module example.com/p\n\nrequire x v1\n")
	rep, err := m.Observe(ctx)
	require.NoError(t, err)
	assert.True(t, rep.Recording)
	assert.Equal(t, 1, rep.Changes)
	assert.Zero(t, rep.Reverts)

	writeProjectFile(t, m, "go.mod", "module example.com/p\n")
	rep, err = m.Observe(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Reverts)

	reverts, err := j.Query(ctx, journal.Filter{Types: []string{journal.TypeRevert}})
	require.NoError(t, err)
	require.Len(t, reverts, 1)
	assert.Contains(t, reverts[0].Summary, "go.mod")
	assert.Equal(t, FilesystemSource, reverts[0].Source)

	changes, err := j.Query(ctx, journal.Filter{Types: []string{journal.TypeCodeChange}})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, []string{"go.mod"}, changes[0].FilesTouched)
}

func TestStatusReflectsOnDiskRevert(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	_, _, err := m.Start(ctx, StartOptions{AgentKind: AgentClaude})
	require.NoError(t, err)

	writeProjectFile(t, m, "go.mod", "module example.com/p\n// drifted\n")
	st, err := m.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.UnresolvedFiles)
	assert.Nil(t, st.LastRevertAt)

	writeProjectFile(t, m, "go.mod", "module example.com/p\n")
	st, err = m.Status(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.UnresolvedFiles, "returning to baseline resolves the drift")
	assert.NotNil(t, st.LastRevertAt)
}

func TestObserveDeleteThenRestore(t *testing.T) {
	m, j := testManager(t)
	ctx := context.Background()

	writeProjectFile(t, m, "notes.txt", "keep me\n")
	_, _, err := m.Start(ctx, StartOptions{AgentKind: AgentClaude})
	require.NoError(t, err)

	// First pass only baselines the tree.
	rep, err := m.Observe(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.Changes)

	require.NoError(t, os.Remove(filepath.Join(m.store.ProjectPath(), "notes.txt")))
	rep, err = m.Observe(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Changes)

	writeProjectFile(t, m, "notes.txt", "keep me\n")
	rep, err = m.Observe(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Reverts)

	events, err := j.Query(ctx, journal.Filter{Types: []string{journal.TypeCodeChange}})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Summary, "deleted")
}

func TestObserveIdleProjectWritesNothing(t *testing.T) {
	m, j := testManager(t)
	ctx := context.Background()

	writeProjectFile(t, m, "go.mod", "module example.com/p\n// drifted\n")
	rep, err := m.Observe(ctx)
	require.NoError(t, err)
	assert.False(t, rep.Recording)
	assert.Zero(t, rep.Scanned)

	events, err := j.Query(ctx, journal.Filter{})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestObserveMarksSourceStatus(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	_, _, err := m.Start(ctx, StartOptions{AgentKind: AgentClaude})
	require.NoError(t, err)
	_, err = m.Observe(ctx)
	require.NoError(t, err)

	require.NoError(t, m.store.View(ctx, func(state *store.State) error {
		fs, ok := state.Sources[FilesystemSource]
		require.True(t, ok)
		assert.Equal(t, "available", fs.Status)

		git, ok := state.Sources["git"]
		require.True(t, ok)
		assert.Equal(t, "unavailable", git.Status, "temp dir is not a git repository")
		return nil
	}))
}

func TestObserveFollowsStoppedSessionRule(t *testing.T) {
	m, j := testManager(t)
	ctx := context.Background()

	_, _, err := m.Start(ctx, StartOptions{AgentKind: AgentClaude})
	require.NoError(t, err)
	_, err = m.Observe(ctx)
	require.NoError(t, err)
	_, err = m.Stop(ctx)
	require.NoError(t, err)

	writeProjectFile(t, m, "go.mod", "module example.com/p\n// drifted\n")
	rep, err := m.Observe(ctx)
	require.NoError(t, err)
	assert.False(t, rep.Recording)

	events, err := j.Query(ctx, journal.Filter{Types: []string{journal.TypeCodeChange}})
	require.NoError(t, err)
	assert.Empty(t, events, "no writes under a stopped session")
}
