package journal

import (
	"context"
	"encoding/json"
)

// Filter narrows a journal query. Zero values mean "no constraint",
// except MaxEvents which defaults to 20.
type Filter struct {
	Types     []string
	SessionID int64
	SinceID   int64
	MaxEvents int
	Ascending bool // default newest-first
}

// Query returns events matching the filter, newest-first unless
// Ascending is set. Hidden sessions are the caller's concern: the
// journal itself never filters them out.
func (j *Journal) Query(ctx context.Context, f Filter) ([]Event, error) {
	if f.MaxEvents <= 0 {
		f.MaxEvents = 20
	}
	typeSet := make(map[string]bool, len(f.Types))
	for _, t := range f.Types {
		typeSet[t] = true
	}

	var matched []Event
	err := j.store.ScanJournal(ctx, func(line []byte) bool {
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return true // tolerate a corrupt line, keep scanning
		}
		if ev.ID == 0 {
			return true // skip anything unrecognizable
		}
		if len(typeSet) > 0 && !typeSet[ev.Type] {
			return true
		}
		if f.SessionID != 0 && ev.SessionID != f.SessionID {
			return true
		}
		if f.SinceID != 0 && ev.ID <= f.SinceID {
			return true
		}
		matched = append(matched, ev)
		return true
	})
	if err != nil {
		return nil, err
	}

	if !f.Ascending {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}
	if len(matched) > f.MaxEvents {
		matched = matched[:f.MaxEvents]
	}
	return matched, nil
}

// LastRevert returns the most recent revert event, or nil.
func (j *Journal) LastRevert(ctx context.Context) (*Event, error) {
	events, err := j.Query(ctx, Filter{Types: []string{TypeRevert}, MaxEvents: 1})
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}
