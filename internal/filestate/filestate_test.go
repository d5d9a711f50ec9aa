package filestate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/harunnryd/kioku/internal/journal"
	"github.com/harunnryd/kioku/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freshState(t *testing.T) *store.State {
	t.Helper()
	ps, err := store.Open(t.TempDir(), store.Options{})
	require.NoError(t, err)
	var state *store.State
	require.NoError(t, ps.Update(context.Background(), func(tx *store.Tx) error {
		state = tx.State
		return nil
	}))
	return state
}

func TestObserveFirstSighting(t *testing.T) {
	state := freshState(t)
	now := time.Now()

	obs := Observe(state, "a.txt", []byte("alpha"), now, 0)
	assert.True(t, obs.FirstSeen)
	assert.False(t, obs.Revert)

	row := state.Files["a.txt"]
	require.NotNil(t, row)
	assert.Equal(t, row.LastHash, row.BaselineHash)
	assert.True(t, row.Clean)
}

func TestObserveImmediateRepeatIsNoop(t *testing.T) {
	state := freshState(t)
	now := time.Now()

	Observe(state, "a.txt", []byte("alpha"), now, 0)
	obs := Observe(state, "a.txt", []byte("alpha"), now.Add(time.Second), 0)
	assert.True(t, obs.Repeat)
	assert.False(t, obs.Revert)
	assert.Len(t, state.Files["a.txt"].RecentHashes, 1, "repeats are not pushed")
}

func TestObserveDetectsRevert(t *testing.T) {
	state := freshState(t)
	now := time.Now()

	Observe(state, "a.txt", []byte("A"), now, 0)
	Observe(state, "a.txt", []byte("B"), now, 0)
	obs := Observe(state, "a.txt", []byte("A"), now, 0)

	assert.True(t, obs.Revert)
	assert.Equal(t, 2, obs.Depth)
	assert.Equal(t, 1, obs.RevertSeq)

	row := state.Files["a.txt"]
	assert.Equal(t, 1, row.RevertCount)
	assert.True(t, row.Clean, "returning to the baseline marks the path clean")
}

func TestObserveNovelHashNoRevert(t *testing.T) {
	state := freshState(t)
	now := time.Now()

	Observe(state, "a.txt", []byte("A"), now, 0)
	Observe(state, "a.txt", []byte("B"), now, 0)
	obs := Observe(state, "a.txt", []byte("C"), now, 0)

	assert.False(t, obs.Revert)
	row := state.Files["a.txt"]
	assert.Zero(t, row.RevertCount)
	assert.False(t, row.Clean)
}

func TestObserveRingIsBounded(t *testing.T) {
	state := freshState(t)
	now := time.Now()

	for i := 0; i < 10; i++ {
		Observe(state, "a.txt", []byte(fmt.Sprintf("v%d", i)), now, 4)
	}
	row := state.Files["a.txt"]
	assert.Len(t, row.RecentHashes, 4)

	// v0 fell out of the ring, so returning to it is novel, not a revert.
	obs := Observe(state, "a.txt", []byte("v0"), now, 4)
	assert.False(t, obs.Revert)

	// v8 is still in the ring.
	obs = Observe(state, "a.txt", []byte("v8"), now, 4)
	assert.True(t, obs.Revert)
}

func TestObserveDeleteThenRestore(t *testing.T) {
	state := freshState(t)
	now := time.Now()

	Observe(state, "a.txt", []byte("A"), now, 0)
	gone := ObserveRemoved(state, "a.txt", now, 0)
	assert.False(t, gone.Revert)
	assert.Equal(t, DeletedHash, state.Files["a.txt"].LastHash)

	back := Observe(state, "a.txt", []byte("A"), now, 0)
	assert.True(t, back.Revert, "restoring deleted content is a revert")
}

func TestHashSequenceProperty(t *testing.T) {
	// Reverts fire exactly when h_t matches some h_j at j <= t-2 and
	// h_t differs from h_{t-1}.
	seq := []string{"A", "B", "A", "A", "C", "B"}
	wantRevert := []bool{false, false, true, false, false, true}

	state := freshState(t)
	now := time.Now()
	for i, h := range seq {
		obs := Observe(state, "f", []byte(h), now, 0)
		assert.Equalf(t, wantRevert[i], obs.Revert, "step %d (%s)", i, h)
	}
}

func TestRecordAppendsRevertEvent(t *testing.T) {
	ps, err := store.Open(t.TempDir(), store.Options{})
	require.NoError(t, err)
	ctx := context.Background()

	var sid int64
	require.NoError(t, ps.Update(ctx, func(tx *store.Tx) error {
		sid = tx.State.NextSessionID()
		tx.State.Sessions = append(tx.State.Sessions, store.SessionRow{
			ID:        sid,
			StartedAt: tx.Now,
			Status:    store.SessionRecording,
			Kind:      store.SessionKindRecording,
		})
		return nil
	}))

	var eventID int64
	require.NoError(t, ps.Update(ctx, func(tx *store.Tx) error {
		for _, content := range []string{"A", "B", "A"} {
			_, id, err := Record(tx, sid, "cli", "main.go", []byte(content), 0, journal.Config{})
			if err != nil {
				return err
			}
			if id != 0 {
				eventID = id
			}
		}
		return nil
	}))
	require.NotZero(t, eventID)

	j := journal.New(ps, journal.Config{})
	events, err := j.Query(ctx, journal.Filter{Types: []string{journal.TypeRevert}})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Summary, "main.go")
	assert.Contains(t, events[0].Summary, "2 changes back")
	assert.Equal(t, []string{"main.go"}, events[0].FilesTouched)

	require.NoError(t, ps.View(ctx, func(state *store.State) error {
		assert.Equal(t, eventID, state.Files["main.go"].LastEventID)
		return nil
	}))
}

func TestUnresolvedSince(t *testing.T) {
	state := freshState(t)
	start := time.Now()

	Observe(state, "a.txt", []byte("A"), start.Add(time.Second), 0)
	Observe(state, "a.txt", []byte("B"), start.Add(2*time.Second), 0)
	Observe(state, "b.txt", []byte("X"), start.Add(time.Second), 0)
	Observe(state, "c.txt", []byte("old"), start.Add(-time.Hour), 0)
	Observe(state, "c.txt", []byte("older"), start.Add(-time.Hour), 0)

	// a.txt drifted after start; b.txt is clean; c.txt drifted before.
	assert.Equal(t, 1, UnresolvedSince(state, start))
}

func TestRecordEmitsChangeEvents(t *testing.T) {
	ps, err := store.Open(t.TempDir(), store.Options{})
	require.NoError(t, err)
	ctx := context.Background()

	var sid int64
	require.NoError(t, ps.Update(ctx, func(tx *store.Tx) error {
		sid = tx.State.NextSessionID()
		tx.State.Sessions = append(tx.State.Sessions, store.SessionRow{
			ID:        sid,
			StartedAt: tx.Now,
			Status:    store.SessionRecording,
			Kind:      store.SessionKindRecording,
		})
		return nil
	}))

	require.NoError(t, ps.Update(ctx, func(tx *store.Tx) error {
		obs, id, err := Record(tx, sid, "filesystem", "main.go", []byte("A"), 0, journal.Config{})
		require.NoError(t, err)
		assert.True(t, obs.FirstSeen)
		assert.Zero(t, id, "baselines are silent")

		obs, id, err = Record(tx, sid, "filesystem", "main.go", []byte("B"), 0, journal.Config{})
		require.NoError(t, err)
		assert.False(t, obs.Revert)
		assert.NotZero(t, id)

		obs, id, err = RecordRemoved(tx, sid, "filesystem", "main.go", 0, journal.Config{})
		require.NoError(t, err)
		assert.False(t, obs.Revert)
		assert.NotZero(t, id)
		return nil
	}))

	j := journal.New(ps, journal.Config{})
	changes, err := j.Query(ctx, journal.Filter{Types: []string{journal.TypeCodeChange}, Ascending: true})
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, "File changed: main.go.", changes[0].Summary)
	assert.Equal(t, "File deleted: main.go.", changes[1].Summary)
	assert.Equal(t, []string{"main.go"}, changes[0].FilesTouched)
}
