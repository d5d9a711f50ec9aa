package journal

import "time"

// Event types. The set is closed: unknown types coming in from
// adapters or protocol clients are coerced to task_status.
const (
	TypeUserIntent   = "user_intent"
	TypeTaskStatus   = "task_status"
	TypeToolUse      = "tool_use"
	TypeDecisionMade = "decision_made"
	TypeTestResult   = "test_result"
	TypeErrorSeen    = "error_seen"
	TypeHandoff      = "handoff"
	TypeCodeChange   = "code_change"
	TypeRevert       = "revert"
	TypeSnapshot     = "snapshot"
)

var eventTypes = map[string]bool{
	TypeUserIntent:   true,
	TypeTaskStatus:   true,
	TypeToolUse:      true,
	TypeDecisionMade: true,
	TypeTestResult:   true,
	TypeErrorSeen:    true,
	TypeHandoff:      true,
	TypeCodeChange:   true,
	TypeRevert:       true,
	TypeSnapshot:     true,
}

// highValueTypes survive compaction: losing them would lose durable
// memory rather than chatter.
var highValueTypes = map[string]bool{
	TypeUserIntent:   true,
	TypeDecisionMade: true,
	TypeHandoff:      true,
	TypeRevert:       true,
	TypeSnapshot:     true,
}

// ValidType reports whether t is a known event type.
func ValidType(t string) bool {
	return eventTypes[t]
}

// SanitizeType coerces unknown types onto task_status.
func SanitizeType(t string) string {
	if eventTypes[t] {
		return t
	}
	return TypeTaskStatus
}

// Event is one journal line. Summaries are short derived text, never
// raw transcript.
type Event struct {
	ID              int64     `json:"id"`
	SessionID       int64     `json:"session_id"`
	CreatedAt       time.Time `json:"created_at"`
	Type            string    `json:"event_type"`
	Source          string    `json:"source"`
	Summary         string    `json:"summary"`
	FilesTouched    []string  `json:"files_touched,omitempty"`
	RevertedEventID int64     `json:"reverted_event_id,omitempty"`
}

// Draft is the caller-supplied portion of an event before the journal
// assigns identity and ordering.
type Draft struct {
	Type            string
	Summary         string
	Source          string
	FilesTouched    []string
	RevertedEventID int64

	// Optional side-table rows written with the parent event.
	ToolName        string
	ToolPurpose     string
	ToolResult      string
	DecisionSummary string
}
