package config

import (
	"fmt"
	"strings"
	"time"
)

// DurationOrDefault parses a user-supplied duration string, falling
// back to the built-in default when the value is blank. Interval keys
// (journal.dedupe_window, adapter.poll_interval, the lock backoff)
// funnel through here so a bad value names itself in the error.
func DurationOrDefault(value string, fallback string) (time.Duration, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		s = strings.TrimSpace(fallback)
	}
	if s == "" {
		return 0, fmt.Errorf("no duration given and no default to fall back to")
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}
