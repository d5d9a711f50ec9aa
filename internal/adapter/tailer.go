// Package adapter ingests external tool logs as journal events. It is
// the fallback path for integrations that cannot speak the protocol:
// a poller tails the tool's log file from a persisted byte offset and
// forwards whatever parses into the journal.
package adapter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"syscall"

	kerr "github.com/harunnryd/kioku/internal/errors"
	"github.com/harunnryd/kioku/internal/journal"
	"github.com/harunnryd/kioku/internal/store"
)

// maxReadBytes bounds how much log one poll ingests; the rest waits for
// the next tick so the store transaction stays short.
const maxReadBytes = 1 << 20

// Tailer reads one external log incrementally and turns its lines into
// events. The byte offset and file identity live in the project state,
// so restarts resume where the last process left off.
type Tailer struct {
	tool      string
	logPath   string
	source    string
	journal   *journal.Journal
	malformed int
}

func NewTailer(j *journal.Journal, tool, logPath string) *Tailer {
	return &Tailer{
		tool:    tool,
		logPath: logPath,
		source:  "adapter:" + tool,
		journal: j,
	}
}

// MalformedCount reports how many lines were skipped as unparseable
// over the tailer's lifetime.
func (t *Tailer) MalformedCount() int {
	return t.malformed
}

// Poll ingests any new complete lines and returns how many events were
// appended. The log is read entirely outside the store transaction; the
// offset only advances past lines that were durably appended, and never
// past an unterminated trailing line. Read failures are AdapterIO
// errors: callers log them and try again next tick.
func (t *Tailer) Poll(ctx context.Context) (int, error) {
	var offset store.AdapterOffset
	err := t.journal.Store().View(ctx, func(state *store.State) error {
		offset = state.Offsets[t.tool]
		return nil
	})
	if err != nil {
		return 0, err
	}

	lines, newOffset, identity, err := t.readNewLines(offset)
	if err != nil {
		t.markSource(ctx, "unavailable", err.Error())
		return 0, err
	}
	if len(lines) == 0 {
		return 0, nil
	}

	drafts := make([]journal.Draft, 0, len(lines))
	for _, line := range lines {
		draft, ok := ParseLine(line, t.source)
		if !ok {
			t.malformed++
			continue
		}
		drafts = append(drafts, draft)
	}

	appended := 0
	err = t.journal.Store().Update(ctx, func(tx *store.Tx) error {
		active := tx.State.ActiveRecording()
		if active == nil {
			// Leave the offset alone: the lines are ingested once
			// recording resumes.
			tx.State.SetSource(t.source, "degraded", "no active recording session", tx.Now)
			return nil
		}
		for _, draft := range drafts {
			if _, err := journal.AppendTx(tx, active.ID, draft, journal.Config{}); err != nil {
				return err
			}
			appended++
		}
		tx.State.Offsets[t.tool] = store.AdapterOffset{
			Tool:       t.tool,
			LogPath:    t.logPath,
			ByteOffset: newOffset,
			FileID:     identity,
			UpdatedAt:  tx.Now,
		}
		tx.State.SetSource(t.source, "available", fmt.Sprintf("tailing %s", t.logPath), tx.Now)
		return nil
	})
	if err != nil {
		return appended, err
	}
	return appended, nil
}

// readNewLines returns complete lines appended since the offset, the
// offset after them, and the current file identity.
func (t *Tailer) readNewLines(prev store.AdapterOffset) ([]string, int64, string, error) {
	f, err := os.Open(t.logPath)
	if err != nil {
		return nil, 0, "", kerr.AdapterIO(fmt.Sprintf("open log %s: %v", t.logPath, err))
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, "", kerr.AdapterIO(fmt.Sprintf("stat log %s: %v", t.logPath, err))
	}
	identity := fileIdentity(info)

	start := prev.ByteOffset
	switch {
	case prev.FileID != "" && identity != "" && identity != prev.FileID:
		slog.Info("Log rotated, restarting from the top", "tool", t.tool, "path", t.logPath)
		start = 0
	case info.Size() < start:
		slog.Info("Log truncated, restarting from the top", "tool", t.tool, "path", t.logPath)
		start = 0
	}

	if info.Size() == start {
		return nil, start, identity, nil
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return nil, 0, "", kerr.AdapterIO(fmt.Sprintf("seek log %s: %v", t.logPath, err))
	}

	buf := make([]byte, maxReadBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, 0, "", kerr.AdapterIO(fmt.Sprintf("read log %s: %v", t.logPath, err))
	}
	chunk := buf[:n]

	// A trailing line without its terminator stays unread until the
	// writer finishes it.
	end := strings.LastIndexByte(string(chunk), '\n')
	if end < 0 {
		return nil, start, identity, nil
	}
	lines := strings.Split(string(chunk[:end]), "\n")
	return lines, start + int64(end) + 1, identity, nil
}

func (t *Tailer) markSource(ctx context.Context, status, detail string) {
	err := t.journal.Store().Update(ctx, func(tx *store.Tx) error {
		tx.State.SetSource(t.source, status, detail, tx.Now)
		return nil
	})
	if err != nil {
		slog.Warn("Failed to record adapter source status", "tool", t.tool, "error", err)
	}
}

// fileIdentity fingerprints the inode so rotation is detected even when
// the rotated file is larger than the old offset.
func fileIdentity(info os.FileInfo) string {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return fmt.Sprintf("%d:%d", st.Dev, st.Ino)
	}
	return ""
}
