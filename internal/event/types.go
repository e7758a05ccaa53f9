package event

import "github.com/stratuscode/stratuscode/pkg/types"

// SessionUpdatedData is the payload for session.updated.
type SessionUpdatedData struct {
	Session *types.Session `json:"session"`
}

// SessionRecoveredData is the payload for session.recovered.
type SessionRecoveredData struct {
	SessionID string `json:"sessionID"`
	RunID     string `json:"runID,omitempty"`
	// ElapsedMs is how long the heartbeat had been frozen when the
	// sweeper force-reset the session.
	ElapsedMs int64 `json:"elapsedMs"`
}

// StreamUpdatedData is the payload for stream.updated.
type StreamUpdatedData struct {
	SessionID string      `json:"sessionID"`
	Stage     types.Stage `json:"stage"`
	// PartCount lets a renderer decide whether to refetch without
	// shipping the whole transcript over the bus.
	PartCount   int  `json:"partCount"`
	IsStreaming bool `json:"isStreaming"`
}

// PermissionRequiredData is the payload for permission.required.
type PermissionRequiredData struct {
	SessionID string   `json:"sessionID"`
	Tool      string   `json:"tool"`
	Prompt    string   `json:"prompt"`
	Patterns  []string `json:"patterns,omitempty"`
}

// PermissionResolvedData is the payload for permission.resolved.
type PermissionResolvedData struct {
	SessionID string `json:"sessionID"`
	Tool      string `json:"tool"`
	Granted   bool   `json:"granted"`
}
