package turn

// Event is one normalized item from the upstream agent stream. Provider
// adapters translate their native formats into these before anything in
// this package sees them; the union here is the whole contract.
type Event interface {
	eventKind() string
}

// TextDelta carries a chunk of assistant-visible text.
type TextDelta struct {
	Text string
}

// ReasoningDelta carries a chunk of the model's thinking output.
type ReasoningDelta struct {
	Text string
}

// ToolCallStart announces a tool invocation before its arguments have
// finished streaming.
type ToolCallStart struct {
	ID   string
	Name string
}

// ToolCallDelta carries a chunk of the streamed tool arguments.
type ToolCallDelta struct {
	ID    string
	Delta string
}

// ToolCallDone carries the final name and complete argument payload.
type ToolCallDone struct {
	ID   string
	Name string
	Args string
}

// ToolResult carries the outcome of an executed tool call. It may arrive
// before the corresponding start when start and result travel on
// independent channels.
type ToolResult struct {
	ID     string
	Name   string
	Args   string
	Result string
}

// SubagentStart marks a delegated task beginning.
type SubagentStart struct {
	SubagentID string
	AgentName  string
	Task       string
	StatusText string
}

// SubagentStatus updates the status line of a running subagent.
type SubagentStatus struct {
	SubagentID string
	AgentName  string
	StatusText string
}

// SubagentEnd marks a delegated task finishing.
type SubagentEnd struct {
	SubagentID string
	AgentName  string
	Result     string
}

// ResponseMeta carries token accounting for the turn so far.
type ResponseMeta struct {
	InputTokens  int64
	OutputTokens int64
	ContextUsed  int64
	ContextLimit int64
}

// StreamError is a fault reported by the upstream stream. It does not end
// the turn on its own; the driver decides between retry and finish.
type StreamError struct {
	Message string
}

// Done marks the end of the turn's event stream.
type Done struct{}

func (TextDelta) eventKind() string      { return "text_delta" }
func (ReasoningDelta) eventKind() string { return "reasoning_delta" }
func (ToolCallStart) eventKind() string  { return "tool_call_start" }
func (ToolCallDelta) eventKind() string  { return "tool_call_delta" }
func (ToolCallDone) eventKind() string   { return "tool_call_done" }
func (ToolResult) eventKind() string     { return "tool_result" }
func (SubagentStart) eventKind() string  { return "subagent_start" }
func (SubagentStatus) eventKind() string { return "subagent_status" }
func (SubagentEnd) eventKind() string    { return "subagent_end" }
func (ResponseMeta) eventKind() string   { return "response_meta" }
func (StreamError) eventKind() string    { return "error" }
func (Done) eventKind() string           { return "done" }
