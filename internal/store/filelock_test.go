package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	kerr "github.com/harunnryd/kioku/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireFileLock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "project.lock")

	lock, err := AcquireFileLock(context.Background(), lockPath, shortLockConfig())
	require.NoError(t, err)
	require.NotNil(t, lock)

	assert.GreaterOrEqual(t, lock.HeldDuration(), time.Duration(0))
	lock.Unlock()
}

func TestAcquireFileLockContention(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "project.lock")
	ctx := context.Background()

	first, err := AcquireFileLock(ctx, lockPath, shortLockConfig())
	require.NoError(t, err)
	defer first.Unlock()

	start := time.Now()
	_, err = AcquireFileLock(ctx, lockPath, shortLockConfig())
	require.Error(t, err)
	assert.True(t, kerr.IsCategory(err, kerr.ErrStoreBusy))
	// Backoff 2ms, 4ms, 8ms between four attempts.
	assert.GreaterOrEqual(t, time.Since(start), 14*time.Millisecond)
}

func TestAcquireSharedFileLockAllowsReaders(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "project.lock")
	ctx := context.Background()

	first, err := AcquireSharedFileLock(ctx, lockPath, shortLockConfig())
	require.NoError(t, err)
	defer first.Unlock()

	second, err := AcquireSharedFileLock(ctx, lockPath, shortLockConfig())
	require.NoError(t, err)
	second.Unlock()
}

func TestAcquireFileLockCancelled(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "project.lock")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := AcquireFileLock(ctx, lockPath, shortLockConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoubleUnlock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "project.lock")

	lock, err := AcquireFileLock(context.Background(), lockPath, shortLockConfig())
	require.NoError(t, err)

	lock.Unlock()
	lock.Unlock() // must be a no-op
}
