package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEventVariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		typ     EventType
		payload Payload
	}{
		{
			name:    "user message",
			input:   `{"type":"user","content":"fix the bug"}`,
			typ:     EventUser,
			payload: Message{Role: EventUser, Text: "fix the bug"},
		},
		{
			name:    "system message falls back to message field",
			input:   `{"type":"system","message":"starting"}`,
			typ:     EventSystem,
			payload: Message{Role: EventSystem, Text: "starting"},
		},
		{
			name:    "flat step",
			input:   `{"type":"step","step_number":1,"state":"thinking"}`,
			typ:     EventStep,
			payload: Step{Number: 1, State: "thinking"},
		},
		{
			name:    "nested step",
			input:   `{"type":"step","content":{"step_number":2,"state":"running","content":"ls -la"}}`,
			typ:     EventStep,
			payload: Step{Number: 2, State: "running", Content: "ls -la"},
		},
		{
			name:    "result with timing",
			input:   `{"type":"result","content":"done","success":true,"executionTime":1.5}`,
			typ:     EventResult,
			payload: Result{Text: "done", Success: true, ExecutionTime: 1500 * time.Millisecond},
		},
		{
			name:    "result without flag",
			input:   `{"type":"result","content":"ok"}`,
			typ:     EventResult,
			payload: Result{Text: "ok", Success: true},
		},
		{
			name:    "failed result",
			input:   `{"type":"result","content":"nope","success":false}`,
			typ:     EventResult,
			payload: Result{Text: "nope", Success: false},
		},
		{
			name:    "error",
			input:   `{"type":"error","content":"rate limited"}`,
			typ:     EventError,
			payload: Failure{Text: "rate limited"},
		},
		{
			name:    "unknown type kept",
			input:   `{"type":"tool_call","name":"shell"}`,
			typ:     EventType("tool_call"),
			payload: Unknown{Type: "tool_call"},
		},
		{
			name:  "terminal",
			input: `{"type":"session_complete"}`,
			typ:   EventSessionComplete,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ, payload, err := decodeEvent([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.typ, typ)
			assert.Equal(t, tt.payload, payload)
		})
	}
}

func TestDecodeStepKeepsExtraFields(t *testing.T) {
	_, payload, err := decodeEvent([]byte(`{"type":"step","step_number":3,"state":"acting","tool":"editor","args":{"path":"a.py"}}`))
	require.NoError(t, err)

	step, ok := payload.(Step)
	require.True(t, ok)
	assert.Equal(t, 3, step.Number)
	require.Len(t, step.Extra, 2)
	assert.JSONEq(t, `"editor"`, string(step.Extra["tool"]))
	assert.JSONEq(t, `{"path":"a.py"}`, string(step.Extra["args"]))
}

func TestDecodeStepKeepsNonStringState(t *testing.T) {
	_, payload, err := decodeEvent([]byte(`{"type":"step","content":{"step_number":4,"state":{"phase":2},"content":"edit"}}`))
	require.NoError(t, err)

	step, ok := payload.(Step)
	require.True(t, ok)
	assert.Equal(t, 4, step.Number)
	assert.Empty(t, step.State)
	assert.Equal(t, "edit", step.Content)
	require.Len(t, step.Extra, 1)
	assert.JSONEq(t, `{"phase":2}`, string(step.Extra["state"]))
}

func TestDecodeEventRejectsMalformed(t *testing.T) {
	for _, input := range []string{`not json`, `{"content":"no type"}`, `[]`, `{"type":"step","step_number":"one"}`} {
		_, _, err := decodeEvent([]byte(input))
		assert.Error(t, err, input)
	}
}

func TestEventText(t *testing.T) {
	assert.Equal(t, "thinking", Event{Payload: Step{State: "thinking"}}.Text())
	assert.Equal(t, "ls", Event{Payload: Step{State: "acting", Content: "ls"}}.Text())
	assert.Equal(t, "boom", Event{Payload: Failure{Text: "boom"}}.Text())
	assert.Equal(t, `{"type":"x"}`, Event{Payload: Unknown{Type: "x"}, Raw: []byte(`{"type":"x"}`)}.Text())
}
