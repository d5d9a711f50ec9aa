package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/harunnryd/kioku/internal/config"
	"github.com/harunnryd/kioku/internal/store"
)

// CompactConfig bounds one compaction pass.
type CompactConfig struct {
	OlderThan time.Duration
	Batch     int
}

func (c CompactConfig) withDefaults() CompactConfig {
	if c.OlderThan <= 0 {
		c.OlderThan, _ = config.DurationOrDefault("", config.DefaultJournalCompactAfter)
	}
	if c.Batch <= 0 {
		c.Batch = config.DefaultJournalCompactBatch
	}
	return c
}

// Compact folds old low-value events into a rollup row and rewrites
// the journal without them. High-value types (decisions, reverts,
// handoffs, snapshots, user intent) are never removed.
func (j *Journal) Compact(ctx context.Context, cfg CompactConfig) (int, error) {
	cfg = cfg.withDefaults()

	var compacted int
	err := j.store.Update(ctx, func(tx *store.Tx) error {
		threshold := tx.Now.Add(-cfg.OlderThan)

		var keep [][]byte
		var dropped []Event
		scanErr := tx.ScanJournal(func(line []byte) bool {
			var ev Event
			if err := json.Unmarshal(line, &ev); err != nil || ev.ID == 0 {
				return true // drop lines we cannot read back
			}
			if !highValueTypes[ev.Type] && ev.CreatedAt.Before(threshold) && len(dropped) < cfg.Batch {
				dropped = append(dropped, ev)
				return true
			}
			cp := make([]byte, len(line))
			copy(cp, line)
			keep = append(keep, cp)
			return true
		})
		if scanErr != nil {
			return scanErr
		}
		if len(dropped) == 0 {
			return nil
		}

		counts := make(map[string]int)
		for _, ev := range dropped {
			counts[ev.Type]++
		}
		types := make([]string, 0, len(counts))
		for t := range counts {
			types = append(types, t)
		}
		sort.Strings(types)
		summary := fmt.Sprintf("Compacted %d low-value events (", len(dropped))
		for i, t := range types {
			if i > 0 {
				summary += ", "
			}
			summary += fmt.Sprintf("%s:%d", t, counts[t])
		}
		summary += ")."

		tx.State.LastRollupID++
		tx.State.Rollups = append(tx.State.Rollups, store.RollupRow{
			ID:          tx.State.LastRollupID,
			PeriodStart: dropped[0].CreatedAt,
			PeriodEnd:   dropped[len(dropped)-1].CreatedAt,
			Summary:     summary,
			CreatedAt:   tx.Now,
		})
		tx.ReplaceJournal(keep)
		compacted = len(dropped)
		return nil
	})
	return compacted, err
}
