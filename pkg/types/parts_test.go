package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalPart(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantType string
	}{
		{
			name:     "text part",
			input:    `{"id":"p1","type":"text","content":"hello"}`,
			wantType: "text",
		},
		{
			name:     "reasoning part",
			input:    `{"id":"p2","type":"reasoning","content":"thinking"}`,
			wantType: "reasoning",
		},
		{
			name:     "tool call part",
			input:    `{"id":"call_1","type":"tool_call","name":"bash","args":"{}","status":"running"}`,
			wantType: "tool_call",
		},
		{
			name:     "subagent start part",
			input:    `{"id":"p3","type":"subagent_start","agentName":"explore","task":"find usages"}`,
			wantType: "subagent_start",
		},
		{
			name:     "subagent end part",
			input:    `{"id":"p4","type":"subagent_end","agentName":"explore","result":"done"}`,
			wantType: "subagent_end",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			part, err := UnmarshalPart([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, part.PartType())
		})
	}
}

func TestUnmarshalPart_UnknownType(t *testing.T) {
	_, err := UnmarshalPart([]byte(`{"id":"x","type":"banana"}`))
	assert.Error(t, err)
}

func TestPartsRoundTrip(t *testing.T) {
	result := "3 files changed"
	parts := []Part{
		&ReasoningPart{ID: "r1", Type: "reasoning", Content: "plan the edit"},
		&TextPart{ID: "t1", Type: "text", Content: "Editing now."},
		&ToolCallPart{ID: "call_1", Type: "tool_call", Name: "edit", Args: `{"filePath":"main.go"}`, Status: ToolCompleted, Result: result},
		&SubagentStartPart{ID: "s1", Type: "subagent_start", AgentName: "explore", Task: "scan", StatusText: "searching"},
		&SubagentEndPart{ID: "s2", Type: "subagent_end", AgentName: "explore", Result: "found 2 hits"},
	}

	data, err := json.Marshal(parts)
	require.NoError(t, err)

	decoded, err := UnmarshalParts(data)
	require.NoError(t, err)
	require.Len(t, decoded, len(parts))

	// Order and in-place mutations must survive the round trip.
	for i := range parts {
		assert.Equal(t, parts[i].PartType(), decoded[i].PartType())
		assert.Equal(t, parts[i].PartID(), decoded[i].PartID())
	}

	tool, ok := decoded[2].(*ToolCallPart)
	require.True(t, ok)
	assert.Equal(t, ToolCompleted, tool.Status)
	assert.Equal(t, result, tool.Result)
}

func TestStreamingStateRoundTrip(t *testing.T) {
	state := &StreamingState{
		SessionID:   "ses_1",
		RunID:       "run_1",
		Stage:       StageRunning,
		IsStreaming: true,
		UpdatedAt:   1700000000000,
		Parts: []Part{
			&TextPart{ID: "t1", Type: "text", Content: "hello"},
			&ToolCallPart{ID: "call_1", Type: "tool_call", Name: "bash", Args: `{"command":"ls"}`, Status: ToolRunning},
		},
	}

	data, err := json.Marshal(state)
	require.NoError(t, err)

	var decoded StreamingState
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, state.SessionID, decoded.SessionID)
	assert.Equal(t, state.Stage, decoded.Stage)
	assert.True(t, decoded.IsStreaming)
	require.Len(t, decoded.Parts, 2)
	assert.Equal(t, "text", decoded.Parts[0].PartType())
	assert.Equal(t, "tool_call", decoded.Parts[1].PartType())
}
