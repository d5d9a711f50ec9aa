package adapter

import (
	"encoding/json"
	"strings"

	"github.com/harunnryd/kioku/internal/journal"
)

// logRecord is the loose shape adapters accept from external tool logs.
// Different tools name the text field differently; the first non-empty
// of summary/message/content/text wins.
type logRecord struct {
	EventType string   `json:"event_type"`
	Summary   string   `json:"summary"`
	Message   string   `json:"message"`
	Content   string   `json:"content"`
	Text      string   `json:"text"`
	Files     []string `json:"files"`
	Role      string   `json:"role"`
}

// ParseLine turns one raw log line into an event draft. Returns false
// for lines that carry nothing ingestible; those are counted by the
// tailer, never fatal.
func ParseLine(line string, source string) (journal.Draft, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return journal.Draft{}, false
	}

	if strings.HasPrefix(trimmed, "{") {
		var rec logRecord
		if err := json.Unmarshal([]byte(trimmed), &rec); err != nil {
			return journal.Draft{}, false
		}
		summary := firstNonEmpty(rec.Summary, rec.Message, rec.Content, rec.Text)
		if summary == "" {
			return journal.Draft{}, false
		}
		eventType := rec.EventType
		if eventType == "" && rec.Role == "user" {
			eventType = journal.TypeUserIntent
		}
		return journal.Draft{
			Type:         journal.SanitizeType(eventType),
			Source:       source,
			Summary:      summary,
			FilesTouched: rec.Files,
		}, true
	}

	// Plain transcript-style lines: role prefixes decide the type.
	switch {
	case strings.HasPrefix(trimmed, "user:"):
		return journal.Draft{
			Type:    journal.TypeUserIntent,
			Source:  source,
			Summary: strings.TrimSpace(strings.TrimPrefix(trimmed, "user:")),
		}, true
	case strings.HasPrefix(trimmed, "assistant:"):
		return journal.Draft{
			Type:    journal.TypeTaskStatus,
			Source:  source,
			Summary: strings.TrimSpace(strings.TrimPrefix(trimmed, "assistant:")),
		}, true
	default:
		return journal.Draft{}, false
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
