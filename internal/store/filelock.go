package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/harunnryd/kioku/internal/config"
	kerr "github.com/harunnryd/kioku/internal/errors"

	"github.com/gofrs/flock"
)

// FileLockConfig bounds the retry loop: attempt, sleep, double, repeat.
type FileLockConfig struct {
	BackoffBase   time.Duration
	BackoffFactor int
	MaxAttempts   int
}

func DefaultFileLockConfig() *FileLockConfig {
	base, _ := config.DurationOrDefault(config.DefaultStoreLockBackoffBase, config.DefaultStoreLockBackoffBase)
	return &FileLockConfig{
		BackoffBase:   base,
		BackoffFactor: config.DefaultStoreLockBackoffFactor,
		MaxAttempts:   config.DefaultStoreLockMaxAttempts,
	}
}

// FileLock guards one store directory against concurrent processes.
// Unlike a daemon-held workspace lock, it is acquired per transaction
// and released as soon as the state write lands.
type FileLock struct {
	fileLock   *flock.Flock
	lockPath   string
	acquiredAt time.Time
}

// AcquireFileLock takes an exclusive lock with bounded exponential
// backoff. Exhausting the attempts yields ErrStoreBusy.
func AcquireFileLock(ctx context.Context, lockPath string, cfg *FileLockConfig) (*FileLock, error) {
	return acquire(ctx, lockPath, cfg, false)
}

// AcquireSharedFileLock takes a shared (read) lock with the same
// backoff policy.
func AcquireSharedFileLock(ctx context.Context, lockPath string, cfg *FileLockConfig) (*FileLock, error) {
	return acquire(ctx, lockPath, cfg, true)
}

func acquire(ctx context.Context, lockPath string, cfg *FileLockConfig, shared bool) (*FileLock, error) {
	if cfg == nil {
		cfg = DefaultFileLockConfig()
	}

	fl := flock.New(lockPath)
	try := fl.TryLock
	if shared {
		try = fl.TryRLock
	}

	delay := cfg.BackoffBase
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, kerr.Wrap(ctx.Err(), "lock acquisition cancelled")
		default:
		}

		locked, err := try()
		if err != nil {
			return nil, kerr.Wrap(err, "attempt lock")
		}
		if locked {
			return &FileLock{fileLock: fl, lockPath: lockPath, acquiredAt: time.Now()}, nil
		}

		if attempt < cfg.MaxAttempts-1 {
			time.Sleep(delay)
			delay *= time.Duration(cfg.BackoffFactor)
		}
	}

	return nil, kerr.StoreBusy("lock " + lockPath + " held by another process")
}

func (fl *FileLock) Unlock() {
	if fl.fileLock == nil {
		return
	}
	if err := fl.fileLock.Unlock(); err != nil {
		slog.Error("Failed to release store lock", "path", fl.lockPath, "error", err)
	}
	fl.fileLock = nil
}

// HeldDuration reports how long the lock has been held.
func (fl *FileLock) HeldDuration() time.Duration {
	if fl.acquiredAt.IsZero() {
		return 0
	}
	return time.Since(fl.acquiredAt)
}
