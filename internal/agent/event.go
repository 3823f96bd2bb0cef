package agent

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventType discriminates pushed session updates.
type EventType string

const (
	EventUser            EventType = "user"
	EventAgent           EventType = "agent"
	EventSystem          EventType = "system"
	EventStep            EventType = "step"
	EventResult          EventType = "result"
	EventError           EventType = "error"
	EventSessionComplete EventType = "session_complete"
)

// Terminal reports whether the type ends a session stream.
func (t EventType) Terminal() bool {
	return t == EventSessionComplete
}

// Payload is the type-specific body of an Event. The concrete types are
// Message, Step, Result, Failure and Unknown.
type Payload interface {
	payload()
}

// Message is plain text authored by the user, the agent or the system.
type Message struct {
	Role EventType
	Text string
}

// Step is one agent step update.
type Step struct {
	Number  int
	State   string
	Content string
	// Extra holds fields of the step object beyond number, state and content.
	Extra map[string]json.RawMessage
}

// Result is the final outcome reported by the agent.
type Result struct {
	Text          string
	Success       bool
	ExecutionTime time.Duration
}

// Failure is an error reported by the backend inside the stream.
type Failure struct {
	Text string
}

// Unknown carries an event type this client does not model.
type Unknown struct {
	Type EventType
}

func (Message) payload() {}
func (Step) payload()    {}
func (Result) payload()  {}
func (Failure) payload() {}
func (Unknown) payload() {}

// Event is one entry of a session log. Events are never modified after
// they are appended.
type Event struct {
	// ID is generated locally on arrival.
	ID   string
	Type EventType
	// Timestamp is the local arrival time, not server time.
	Timestamp time.Time
	Payload   Payload
	// Raw is the payload as received.
	Raw json.RawMessage
}

// Text returns a one-line human readable summary of the payload.
func (e Event) Text() string {
	switch p := e.Payload.(type) {
	case Message:
		return p.Text
	case Step:
		if p.Content != "" {
			return p.Content
		}
		return p.State
	case Result:
		return p.Text
	case Failure:
		return p.Text
	default:
		return string(e.Raw)
	}
}

var errMissingType = errors.New("event has no type")

// wireEvent is the union of fields the backends put on the wire.
type wireEvent struct {
	Type          EventType       `json:"type"`
	Content       json.RawMessage `json:"content"`
	Message       string          `json:"message"`
	Success       *bool           `json:"success"`
	ExecutionTime *float64        `json:"executionTime"`
}

// decodeEvent parses a pushed payload into its type and Payload.
func decodeEvent(data []byte) (EventType, Payload, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return "", nil, err
	}
	if w.Type == "" {
		return "", nil, errMissingType
	}

	text := rawText(w.Content)
	if text == "" {
		text = w.Message
	}

	switch w.Type {
	case EventSessionComplete:
		return w.Type, nil, nil
	case EventUser, EventAgent, EventSystem:
		return w.Type, Message{Role: w.Type, Text: text}, nil
	case EventStep:
		step, err := decodeStep(data, w.Content)
		if err != nil {
			return "", nil, err
		}
		return w.Type, step, nil
	case EventResult:
		// a result without an explicit flag is a successful one
		r := Result{Text: text, Success: w.Success == nil || *w.Success}
		if w.ExecutionTime != nil {
			r.ExecutionTime = time.Duration(*w.ExecutionTime * float64(time.Second))
		}
		return w.Type, r, nil
	case EventError:
		return w.Type, Failure{Text: text}, nil
	default:
		return w.Type, Unknown{Type: w.Type}, nil
	}
}

// decodeStep accepts both {"type":"step","content":{"step_number":..}} and
// the flat {"type":"step","step_number":..}.
func decodeStep(data, content json.RawMessage) (Step, error) {
	obj := data
	nested := isObject(content)
	if nested {
		obj = content
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(obj, &fields); err != nil {
		return Step{}, fmt.Errorf("decode step: %w", err)
	}

	var step Step
	if raw, ok := fields["step_number"]; ok {
		if err := json.Unmarshal(raw, &step.Number); err != nil {
			return Step{}, fmt.Errorf("decode step_number: %w", err)
		}
	}
	if raw, ok := fields["state"]; ok && json.Unmarshal(raw, &step.State) == nil {
		delete(fields, "state")
	}
	if nested {
		step.Content = rawText(fields["content"])
	} else {
		step.Content = rawText(content)
	}

	for _, known := range []string{"type", "step_number", "content"} {
		delete(fields, known)
	}
	if len(fields) > 0 {
		step.Extra = fields
	}
	return step, nil
}

// rawText renders a JSON value as text: strings are unquoted, null is empty,
// anything else is returned verbatim.
func rawText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if raw[0] == '"' && json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}
