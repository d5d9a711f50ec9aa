package store

import "time"

// Session lifecycle states.
const (
	SessionRecording = "recording"
	SessionStopped   = "stopped"
)

// Session kinds. Chat sessions are thin sub-sessions opened by protocol
// clients; the at-most-one-recording invariant applies to kind
// "recording" only.
const (
	SessionKindRecording = "recording"
	SessionKindChat      = "chat"
)

type ProjectRow struct {
	ID            string    `json:"id"`
	CanonicalPath string    `json:"canonical_path"`
	DisplayName   string    `json:"display_name,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Status        string    `json:"status"` // "active", "soft_deleted"
}

type SessionRow struct {
	ID            int64      `json:"id"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	Status        string     `json:"status"` // "recording", "stopped"
	Kind          string     `json:"kind"`   // "recording", "chat"
	AgentKind     string     `json:"agent_kind"`
	PredecessorID int64      `json:"predecessor_session_id,omitempty"`
	ExternalRef   string     `json:"external_ref,omitempty"`
	Hidden        bool       `json:"hidden,omitempty"` // session-level soft delete
	LastUpdatedAt time.Time  `json:"last_updated_at"`
}

type ToolUsageRow struct {
	ID        int64     `json:"id"`
	EventID   int64     `json:"event_id"`
	SessionID int64     `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	ToolName  string    `json:"tool_name"`
	Purpose   string    `json:"purpose,omitempty"`
	Result    string    `json:"result,omitempty"`
}

type DecisionRow struct {
	ID        int64     `json:"id"`
	EventID   int64     `json:"event_id"`
	SessionID int64     `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	Summary   string    `json:"summary"`
}

// FileStateRow tracks the observed content history of one path.
// RecentHashes is a bounded ring, newest last; it must hold enough
// history to tell an immediate repeat from a return to an older state.
type FileStateRow struct {
	Path         string    `json:"path"`
	LastHash     string    `json:"last_hash"`
	BaselineHash string    `json:"baseline_hash,omitempty"`
	RecentHashes []string  `json:"recent_hashes"`
	LastSeenAt   time.Time `json:"last_seen_at"`
	LastEventID  int64     `json:"last_event_id,omitempty"`
	RevertCount  int       `json:"revert_count"`
	Clean        bool      `json:"clean"`
}

// RollupRow summarizes a span of compacted low-value events.
type RollupRow struct {
	ID          int64     `json:"id"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Summary     string    `json:"summary"`
	CreatedAt   time.Time `json:"created_at"`
}

// AdapterOffset persists how far a tailer has read an external log.
type AdapterOffset struct {
	Tool       string    `json:"tool"`
	LogPath    string    `json:"log_path"`
	ByteOffset int64     `json:"byte_offset"`
	FileID     string    `json:"file_id,omitempty"` // identity of the file last read, for rotation detection
	UpdatedAt  time.Time `json:"updated_at"`
}

// SourceStatus records per-source liveness (heartbeats, adapter health).
type SourceStatus struct {
	Source    string    `json:"source"`
	Status    string    `json:"status"` // "available", "degraded", "unavailable", "unknown"
	Detail    string    `json:"detail,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DedupeEntry remembers a recent event fingerprint so identical writes
// inside the window collapse onto the original event.
type DedupeEntry struct {
	EventID   int64     `json:"event_id"`
	SessionID int64     `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

// State is the whole per-project store except journal lines. One Update
// rewrites it atomically, which is what makes multi-table operations
// (purge included) all-or-nothing.
type State struct {
	Project       ProjectRow               `json:"project"`
	Sessions      []SessionRow             `json:"sessions"`
	ToolUsage     []ToolUsageRow           `json:"tool_usage"`
	Decisions     []DecisionRow            `json:"decisions"`
	Files         map[string]*FileStateRow `json:"files"`
	Rollups       []RollupRow              `json:"rollups"`
	Offsets       map[string]AdapterOffset `json:"adapter_offsets"`
	Sources       map[string]SourceStatus  `json:"source_status"`
	Features      map[string]string        `json:"features"`
	Dedupe        map[string]DedupeEntry   `json:"dedupe"`
	LastEventID   int64                    `json:"last_event_id"`
	LastSessionID int64                    `json:"last_session_id"`
	LastRollupID  int64                    `json:"last_rollup_id"`
}

func newState(projectID, canonicalPath string, now time.Time) *State {
	return &State{
		Project: ProjectRow{
			ID:            projectID,
			CanonicalPath: canonicalPath,
			CreatedAt:     now,
			UpdatedAt:     now,
			Status:        "active",
		},
		Files:    make(map[string]*FileStateRow),
		Offsets:  make(map[string]AdapterOffset),
		Sources:  make(map[string]SourceStatus),
		Features: make(map[string]string),
		Dedupe:   make(map[string]DedupeEntry),
	}
}

func (s *State) normalize() {
	if s.Files == nil {
		s.Files = make(map[string]*FileStateRow)
	}
	if s.Offsets == nil {
		s.Offsets = make(map[string]AdapterOffset)
	}
	if s.Sources == nil {
		s.Sources = make(map[string]SourceStatus)
	}
	if s.Features == nil {
		s.Features = make(map[string]string)
	}
	if s.Dedupe == nil {
		s.Dedupe = make(map[string]DedupeEntry)
	}
}

// NextEventID advances the journal counter.
func (s *State) NextEventID() int64 {
	s.LastEventID++
	return s.LastEventID
}

// NextSessionID advances the session counter.
func (s *State) NextSessionID() int64 {
	s.LastSessionID++
	return s.LastSessionID
}

// ActiveRecording returns the recording-kind session currently in
// status recording, or nil.
func (s *State) ActiveRecording() *SessionRow {
	for i := range s.Sessions {
		sess := &s.Sessions[i]
		if sess.Kind == SessionKindRecording && sess.Status == SessionRecording {
			return sess
		}
	}
	return nil
}

// FindSession returns the session with the given id, or nil.
func (s *State) FindSession(id int64) *SessionRow {
	for i := range s.Sessions {
		if s.Sessions[i].ID == id {
			return &s.Sessions[i]
		}
	}
	return nil
}

// LastStoppedRecording returns the most recently stopped recording
// session, or nil.
func (s *State) LastStoppedRecording() *SessionRow {
	var found *SessionRow
	for i := range s.Sessions {
		sess := &s.Sessions[i]
		if sess.Kind != SessionKindRecording || sess.Status != SessionStopped {
			continue
		}
		if found == nil || sess.ID > found.ID {
			found = sess
		}
	}
	return found
}

// SetSource upserts a source status row.
func (s *State) SetSource(source, status, detail string, now time.Time) {
	s.Sources[source] = SourceStatus{
		Source:    source,
		Status:    status,
		Detail:    detail,
		UpdatedAt: now,
	}
}
