package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/stratuscode/stratuscode/internal/event"
	"github.com/stratuscode/stratuscode/internal/logging"
)

// SSEHeartbeatInterval is how often an idle SSE connection gets a comment
// frame to keep intermediaries from closing it.
const SSEHeartbeatInterval = 30 * time.Second

// sseWriter wraps http.ResponseWriter for SSE.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	return &sseWriter{w: w, flusher: flusher, rc: http.NewResponseController(w)}, nil
}

func (s *sseWriter) writeEvent(e event.Event) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", e.Type, data); err != nil {
		return err
	}

	if err := s.rc.Flush(); err != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *sseWriter) writeHeartbeat() {
	fmt.Fprintf(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// events streams bus events to the client, optionally filtered to one
// session via ?sessionID=.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionID")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	// Flush headers before any event arrives so the client sees the
	// stream open immediately.
	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	events := make(chan event.Event, 16)
	unsub := event.SubscribeAll(func(e event.Event) {
		if sessionID != "" && !eventBelongsToSession(e, sessionID) {
			return
		}
		select {
		case events <- e:
		default:
			logging.Warn().
				Str("event_type", string(e.Type)).
				Msg("sse event dropped: channel full")
		}
	})
	defer unsub()

	ticker := time.NewTicker(SSEHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-events:
			if err := sse.writeEvent(e); err != nil {
				return
			}
		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}

// eventBelongsToSession checks whether an event concerns the session.
func eventBelongsToSession(e event.Event, sessionID string) bool {
	switch data := e.Data.(type) {
	case event.SessionUpdatedData:
		return data.Session != nil && data.Session.ID == sessionID
	case event.SessionRecoveredData:
		return data.SessionID == sessionID
	case event.StreamUpdatedData:
		return data.SessionID == sessionID
	case event.PermissionRequiredData:
		return data.SessionID == sessionID
	case event.PermissionResolvedData:
		return data.SessionID == sessionID
	}
	return false
}
