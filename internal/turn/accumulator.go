package turn

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stratuscode/stratuscode/internal/logging"
	"github.com/stratuscode/stratuscode/internal/store"
	"github.com/stratuscode/stratuscode/pkg/types"
)

// ErrStream wraps an upstream stream fault so the driver can distinguish
// it from store failures and decide retry vs terminate.
type ErrStream struct {
	Message string
}

func (e *ErrStream) Error() string {
	return fmt.Sprintf("stream error: %s", e.Message)
}

// Accumulator folds the normalized event stream of one turn into the
// session's ordered transcript. It owns the in-memory parts slice and
// writes it through to the store after every mutation, which is also what
// keeps the heartbeat alive for the recovery sweep.
//
// One accumulator serves exactly one turn; it is not safe for concurrent
// Apply calls, matching the strictly ordered delivery of the upstream
// stream.
type Accumulator struct {
	store     *store.Store
	sessionID string
	parts     []types.Part
	seq       int
	log       zerolog.Logger
}

// NewAccumulator creates an accumulator for a freshly prepared turn.
func NewAccumulator(s *store.Store, sessionID string) *Accumulator {
	return &Accumulator{
		store:     s,
		sessionID: sessionID,
		log:       logging.Component("turn").With().Str("session_id", sessionID).Logger(),
	}
}

// Parts returns the current transcript in delivery order.
func (a *Accumulator) Parts() []types.Part {
	return a.parts
}

// Apply folds one event into the transcript and persists the result.
// Stream errors are returned wrapped in ErrStream without finishing the
// turn; Done finalizes the streaming state.
func (a *Accumulator) Apply(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case TextDelta:
		a.appendText(e.Text)
	case ReasoningDelta:
		a.appendReasoning(e.Text)
	case ToolCallStart:
		a.toolCallStart(e)
	case ToolCallDelta:
		a.toolCallDelta(e)
	case ToolCallDone:
		if !a.toolCallDone(e) {
			// Start has not landed yet; it will create the part.
			a.log.Debug().Str("tool_call_id", e.ID).Msg("dropping done for unseen tool call")
			return nil
		}
	case ToolResult:
		a.toolResult(e)
	case SubagentStart:
		a.subagentStart(e)
	case SubagentStatus:
		if !a.subagentStatus(e) {
			a.log.Debug().Str("agent", e.AgentName).Msg("status for unknown subagent")
			return nil
		}
	case SubagentEnd:
		a.subagentEnd(e)
	case ResponseMeta:
		return a.responseMeta(ctx, e)
	case StreamError:
		a.log.Warn().Str("message", e.Message).Msg("upstream stream error")
		return &ErrStream{Message: e.Message}
	case Done:
		return a.store.Finish(ctx, a.sessionID)
	default:
		return fmt.Errorf("unknown event kind %q", ev.eventKind())
	}

	return a.store.SaveParts(ctx, a.sessionID, a.parts)
}

func (a *Accumulator) appendText(text string) {
	if n := len(a.parts); n > 0 {
		if last, ok := a.parts[n-1].(*types.TextPart); ok {
			last.Content += text
			return
		}
	}
	a.parts = append(a.parts, &types.TextPart{
		ID:      a.nextID("text"),
		Type:    "text",
		Content: text,
	})
}

func (a *Accumulator) appendReasoning(text string) {
	if n := len(a.parts); n > 0 {
		if last, ok := a.parts[n-1].(*types.ReasoningPart); ok {
			last.Content += text
			return
		}
	}
	a.parts = append(a.parts, &types.ReasoningPart{
		ID:      a.nextID("reasoning"),
		Type:    "reasoning",
		Content: text,
	})
}

func (a *Accumulator) toolCallStart(e ToolCallStart) {
	// Start and result can race on independent channels; if the result
	// already synthesized the part, just patch the name.
	if part := a.findToolCall(e.ID); part != nil {
		part.Name = e.Name
		return
	}
	a.parts = append(a.parts, &types.ToolCallPart{
		ID:     e.ID,
		Type:   "tool_call",
		Name:   e.Name,
		Status: types.ToolRunning,
	})
}

func (a *Accumulator) toolCallDelta(e ToolCallDelta) {
	if part := a.findToolCall(e.ID); part != nil {
		part.Args += e.Delta
	}
}

func (a *Accumulator) toolCallDone(e ToolCallDone) bool {
	part := a.findToolCall(e.ID)
	if part == nil {
		return false
	}
	part.Name = e.Name
	part.Args = e.Args
	return true
}

func (a *Accumulator) toolResult(e ToolResult) {
	if part := a.findToolCall(e.ID); part != nil {
		part.Status = types.ToolCompleted
		part.Result = e.Result
		return
	}
	// Result before start: synthesize rather than drop data.
	a.parts = append(a.parts, &types.ToolCallPart{
		ID:     e.ID,
		Type:   "tool_call",
		Name:   e.Name,
		Args:   e.Args,
		Status: types.ToolCompleted,
		Result: e.Result,
	})
}

func (a *Accumulator) subagentStart(e SubagentStart) {
	a.parts = append(a.parts, &types.SubagentStartPart{
		ID:         a.nextID("subagent"),
		Type:       "subagent_start",
		SubagentID: e.SubagentID,
		AgentName:  e.AgentName,
		Task:       e.Task,
		StatusText: e.StatusText,
	})
}

func (a *Accumulator) subagentStatus(e SubagentStatus) bool {
	part := a.findSubagent(e.SubagentID, e.AgentName)
	if part == nil {
		return false
	}
	part.StatusText = e.StatusText
	return true
}

func (a *Accumulator) subagentEnd(e SubagentEnd) {
	a.parts = append(a.parts, &types.SubagentEndPart{
		ID:         a.nextID("subagent_end"),
		Type:       "subagent_end",
		SubagentID: e.SubagentID,
		AgentName:  e.AgentName,
		Result:     e.Result,
	})
}

func (a *Accumulator) responseMeta(ctx context.Context, e ResponseMeta) error {
	if e.InputTokens > 0 || e.OutputTokens > 0 {
		if err := a.store.AddTokenUsage(ctx, a.sessionID, e.InputTokens, e.OutputTokens); err != nil {
			return err
		}
	}
	if e.ContextLimit > 0 {
		return a.store.SetContextUsage(ctx, a.sessionID, e.ContextUsed, e.ContextLimit)
	}
	return nil
}

func (a *Accumulator) findToolCall(id string) *types.ToolCallPart {
	for i := len(a.parts) - 1; i >= 0; i-- {
		if part, ok := a.parts[i].(*types.ToolCallPart); ok && part.ID == id {
			return part
		}
	}
	return nil
}

// findSubagent scans backward for the most recent start matching the
// subagent id, falling back to the agent name when the id is absent.
func (a *Accumulator) findSubagent(subagentID, agentName string) *types.SubagentStartPart {
	for i := len(a.parts) - 1; i >= 0; i-- {
		part, ok := a.parts[i].(*types.SubagentStartPart)
		if !ok {
			continue
		}
		if subagentID != "" && part.SubagentID == subagentID {
			return part
		}
		if subagentID == "" && part.AgentName == agentName {
			return part
		}
	}
	return nil
}

func (a *Accumulator) nextID(prefix string) string {
	a.seq++
	return fmt.Sprintf("%s_%d", prefix, a.seq)
}
