// Package types provides the core data types for the stratuscode server.
package types

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	StatusIdle    SessionStatus = "idle"
	StatusRunning SessionStatus = "running"
)

// Session represents one agent conversation thread.
type Session struct {
	ID              string        `json:"id"`
	Status          SessionStatus `json:"status"`
	CancelRequested bool          `json:"cancelRequested"`
	// RunID identifies the in-flight turn. A driver whose runID no longer
	// matches has been orphaned by a newer PrepareTurn.
	RunID          string     `json:"runID,omitempty"`
	Tokens         TokenUsage `json:"tokens"`
	LastMessage    string     `json:"lastMessage,omitempty"`
	Title          string     `json:"title"`
	TitleGenerated bool       `json:"titleGenerated"`
	AgentMode      string     `json:"agentMode,omitempty"`
	ErrorNote      string     `json:"errorNote,omitempty"`
	CreatedAt      int64      `json:"createdAt"`
	UpdatedAt      int64      `json:"updatedAt"`
}

// TokenUsage tracks token counters for a session. Counters only increment.
type TokenUsage struct {
	Input   int64         `json:"input"`
	Output  int64         `json:"output"`
	Context *ContextUsage `json:"context,omitempty"`
}

// ContextUsage reports how much of the model context window is consumed.
type ContextUsage struct {
	Used    int64 `json:"used"`
	Limit   int64 `json:"limit"`
	Percent int64 `json:"percent"`
}

// Stage is an advisory UI hint for the current phase of a turn.
type Stage string

const (
	StageWaiting   Stage = "waiting"
	StageBooting   Stage = "booting"
	StageRunning   Stage = "running"
	StageFinishing Stage = "finishing"
)

// StreamingState is the live transcript for the current turn of a session.
// There is at most one per session; PrepareTurn replaces it wholesale.
type StreamingState struct {
	SessionID       string `json:"sessionID"`
	RunID           string `json:"runID"`
	Parts           []Part `json:"parts"`
	Stage           Stage  `json:"stage"`
	PendingQuestion string `json:"pendingQuestion,omitempty"`
	PendingAnswer   string `json:"pendingAnswer,omitempty"`
	IsStreaming     bool   `json:"isStreaming"`
	// UpdatedAt is the liveness heartbeat consumed by staleness recovery.
	// Every mutation must advance it.
	UpdatedAt int64 `json:"updatedAt"`
}
