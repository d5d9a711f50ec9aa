package journal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/harunnryd/kioku/internal/config"
	kerr "github.com/harunnryd/kioku/internal/errors"
	"github.com/harunnryd/kioku/internal/store"
)

// Config bounds journal writes. Zero values fall back to defaults.
type Config struct {
	DedupeWindow    time.Duration
	SummaryMaxChars int
}

func (c Config) withDefaults() Config {
	if c.DedupeWindow <= 0 {
		c.DedupeWindow, _ = config.DurationOrDefault("", config.DefaultJournalDedupeWindow)
	}
	if c.SummaryMaxChars <= 0 {
		c.SummaryMaxChars = config.DefaultJournalSummaryMax
	}
	return c
}

// Journal is the single write path into a project's event stream.
type Journal struct {
	store *store.ProjectStore
	cfg   Config
}

func New(ps *store.ProjectStore, cfg Config) *Journal {
	return &Journal{store: ps, cfg: cfg.withDefaults()}
}

// Config exposes the journal's effective write configuration so
// callers composing AppendTx into their own transactions use the same
// dedupe and summary limits.
func (j *Journal) Config() Config {
	return j.cfg
}

// Store exposes the underlying project store for composed transactions.
func (j *Journal) Store() *store.ProjectStore {
	return j.store
}

// Append validates and writes one event in its own transaction.
func (j *Journal) Append(ctx context.Context, sessionID int64, d Draft) (int64, error) {
	var id int64
	err := j.store.Update(ctx, func(tx *store.Tx) error {
		var err error
		id, err = AppendTx(tx, sessionID, d, j.cfg)
		return err
	})
	return id, err
}

// AppendTx writes one event inside an already-open transaction, so
// callers can compose session transitions, file-state updates and the
// event write atomically. Returns the assigned (or deduped) event id.
func AppendTx(tx *store.Tx, sessionID int64, d Draft, cfg Config) (int64, error) {
	cfg = cfg.withDefaults()

	if strings.TrimSpace(d.Source) == "" {
		return 0, kerr.Validation("event source is required; every write must be attributable")
	}
	summary := normalizeSummary(d.Summary, cfg.SummaryMaxChars)
	if summary == "" {
		return 0, kerr.Validation("event summary is required")
	}

	sess := tx.State.FindSession(sessionID)
	if sess == nil {
		return 0, kerr.SessionNotFound("unknown session id")
	}
	if sess.Status == store.SessionStopped {
		return 0, kerr.Wrap(kerr.ErrNoActiveSession, "session is stopped; resume before writing")
	}

	files := sanitizeFiles(d.FilesTouched, tx.State.Project.CanonicalPath)
	eventType := SanitizeType(d.Type)

	// Identical writes inside the window collapse onto the original.
	fp := fingerprint(eventType, summary, files, d.RevertedEventID)
	pruneDedupe(tx.State, tx.Now, cfg.DedupeWindow)
	if entry, ok := tx.State.Dedupe[fp]; ok && entry.SessionID == sessionID &&
		tx.Now.Sub(entry.CreatedAt) <= cfg.DedupeWindow {
		sess.LastUpdatedAt = tx.Now
		return entry.EventID, nil
	}

	ev := Event{
		ID:              tx.State.NextEventID(),
		SessionID:       sessionID,
		CreatedAt:       tx.Now,
		Type:            eventType,
		Source:          d.Source,
		Summary:         summary,
		FilesTouched:    files,
		RevertedEventID: d.RevertedEventID,
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return 0, err
	}
	tx.AppendJournal(line)

	if d.ToolName != "" {
		tx.State.ToolUsage = append(tx.State.ToolUsage, store.ToolUsageRow{
			ID:        ev.ID,
			EventID:   ev.ID,
			SessionID: sessionID,
			CreatedAt: tx.Now,
			ToolName:  d.ToolName,
			Purpose:   d.ToolPurpose,
			Result:    d.ToolResult,
		})
	}
	if eventType == TypeDecisionMade || d.DecisionSummary != "" {
		decision := d.DecisionSummary
		if decision == "" {
			decision = summary
		}
		tx.State.Decisions = append(tx.State.Decisions, store.DecisionRow{
			ID:        ev.ID,
			EventID:   ev.ID,
			SessionID: sessionID,
			CreatedAt: tx.Now,
			Summary:   decision,
		})
	}

	tx.State.Dedupe[fp] = store.DedupeEntry{EventID: ev.ID, SessionID: sessionID, CreatedAt: tx.Now}
	sess.LastUpdatedAt = tx.Now
	return ev.ID, nil
}

// AppendToolUsage records a structured tool call as a tool_use event
// plus its side-table row.
func (j *Journal) AppendToolUsage(ctx context.Context, sessionID int64, source, toolName, purpose, result string) (int64, error) {
	summary := "Used tool " + toolName
	if purpose != "" {
		summary += ": " + purpose
	}
	return j.Append(ctx, sessionID, Draft{
		Type:        TypeToolUse,
		Summary:     summary,
		Source:      source,
		ToolName:    toolName,
		ToolPurpose: purpose,
		ToolResult:  result,
	})
}

// AppendDecision records a durable decision as a decision_made event
// plus its side-table row.
func (j *Journal) AppendDecision(ctx context.Context, sessionID int64, source, summary string) (int64, error) {
	return j.Append(ctx, sessionID, Draft{
		Type:            TypeDecisionMade,
		Summary:         summary,
		Source:          source,
		DecisionSummary: summary,
	})
}

func fingerprint(eventType, summary string, files []string, revertedID int64) string {
	basis := eventType + "|" + strings.ToLower(summary) + "|" + strings.Join(files, ",")
	if revertedID != 0 {
		basis += "|" + strconv.FormatInt(revertedID, 10)
	}
	sum := sha256.Sum256([]byte(basis))
	return hex.EncodeToString(sum[:])
}

func pruneDedupe(state *store.State, now time.Time, window time.Duration) {
	for fp, entry := range state.Dedupe {
		if now.Sub(entry.CreatedAt) > window {
			delete(state.Dedupe, fp)
		}
	}
}

func normalizeSummary(summary string, maxChars int) string {
	clean := strings.Join(strings.Fields(summary), " ")
	if maxChars > 0 {
		if runes := []rune(clean); len(runes) > maxChars {
			clean = string(runes[:maxChars-1]) + "…"
		}
	}
	return clean
}

func sanitizeFiles(files []string, projectPath string) []string {
	if len(files) == 0 {
		return nil
	}
	seen := make(map[string]bool)
	for _, raw := range files {
		item := strings.TrimSpace(raw)
		if item == "" {
			continue
		}
		item = filepath.ToSlash(item)
		if filepath.IsAbs(item) {
			if rel, err := filepath.Rel(projectPath, item); err == nil && !strings.HasPrefix(rel, "..") {
				item = filepath.ToSlash(rel)
			}
		}
		seen[filepath.ToSlash(filepath.Clean(item))] = true
	}

	sanitized := make([]string, 0, len(seen))
	for item := range seen {
		sanitized = append(sanitized, item)
	}
	sort.Strings(sanitized)
	return sanitized
}
