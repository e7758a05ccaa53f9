package types

import (
	"encoding/json"
	"fmt"
)

// Part represents one typed unit of the ordered turn transcript.
type Part interface {
	PartType() string
	PartID() string
}

// ToolStatus is the execution state of a tool call part.
type ToolStatus string

const (
	ToolRunning   ToolStatus = "running"
	ToolCompleted ToolStatus = "completed"
)

// TextPart holds streamed assistant text. Consecutive text deltas coalesce
// into the trailing text part.
type TextPart struct {
	ID      string `json:"id"`
	Type    string `json:"type"` // always "text"
	Content string `json:"content"`
}

func (p *TextPart) PartType() string { return "text" }
func (p *TextPart) PartID() string   { return p.ID }

// ReasoningPart holds streamed extended-thinking text.
type ReasoningPart struct {
	ID      string `json:"id"`
	Type    string `json:"type"` // always "reasoning"
	Content string `json:"content"`
}

func (p *ReasoningPart) PartType() string { return "reasoning" }
func (p *ReasoningPart) PartID() string   { return p.ID }

// ToolCallPart represents a tool call and, once attached, its result.
// The ID is the provider's tool call ID and is what later events patch by.
type ToolCallPart struct {
	ID     string     `json:"id"`
	Type   string     `json:"type"` // always "tool_call"
	Name   string     `json:"name"`
	Args   string     `json:"args"`
	Status ToolStatus `json:"status"`
	Result string     `json:"result,omitempty"`
}

func (p *ToolCallPart) PartType() string { return "tool_call" }
func (p *ToolCallPart) PartID() string   { return p.ID }

// SubagentStartPart marks a subagent being dispatched.
type SubagentStartPart struct {
	ID         string `json:"id"`
	Type       string `json:"type"` // always "subagent_start"
	SubagentID string `json:"subagentID,omitempty"`
	AgentName  string `json:"agentName"`
	Task       string `json:"task"`
	StatusText string `json:"statusText,omitempty"`
}

func (p *SubagentStartPart) PartType() string { return "subagent_start" }
func (p *SubagentStartPart) PartID() string   { return p.ID }

// SubagentEndPart marks a subagent finishing with its result.
type SubagentEndPart struct {
	ID         string `json:"id"`
	Type       string `json:"type"` // always "subagent_end"
	SubagentID string `json:"subagentID,omitempty"`
	AgentName  string `json:"agentName"`
	Result     string `json:"result,omitempty"`
}

func (p *SubagentEndPart) PartType() string { return "subagent_end" }
func (p *SubagentEndPart) PartID() string   { return p.ID }

// rawPart is used to sniff the type tag during unmarshaling.
type rawPart struct {
	Type string `json:"type"`
}

// UnmarshalPart decodes a JSON part into its concrete type.
func UnmarshalPart(data []byte) (Part, error) {
	var raw rawPart
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	switch raw.Type {
	case "text":
		var p TextPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "reasoning":
		var p ReasoningPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "tool_call":
		var p ToolCallPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "subagent_start":
		var p SubagentStartPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "subagent_end":
		var p SubagentEndPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	default:
		return nil, fmt.Errorf("unknown part type %q", raw.Type)
	}
}

// UnmarshalParts decodes an ordered JSON array of parts, preserving order.
func UnmarshalParts(data []byte) ([]Part, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, err
	}

	parts := make([]Part, 0, len(raws))
	for _, r := range raws {
		part, err := UnmarshalPart(r)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return parts, nil
}

// UnmarshalJSON lets a StreamingState round-trip its typed parts.
func (s *StreamingState) UnmarshalJSON(data []byte) error {
	type alias StreamingState
	aux := struct {
		Parts []json.RawMessage `json:"parts"`
		*alias
	}{alias: (*alias)(s)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	s.Parts = make([]Part, 0, len(aux.Parts))
	for _, r := range aux.Parts {
		part, err := UnmarshalPart(r)
		if err != nil {
			return err
		}
		s.Parts = append(s.Parts, part)
	}
	return nil
}
