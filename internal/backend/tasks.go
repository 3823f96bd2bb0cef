package backend

import (
	"encoding/json"
	"sync"
)

// Status values of a task session, as reported on the wire.
const (
	StatusStarting  = "starting"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusError     = "error"
)

func terminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusError:
		return true
	}
	return false
}

// TaskSession is the backend record of one task execution. Messages are
// append-only; the index of a message plus one is its SSE id.
type TaskSession struct {
	ID        string
	Task      string
	Workspace string

	mu       sync.Mutex
	status   string
	messages []json.RawMessage
	changed  chan struct{}
}

func newTaskSession(id, task, workspace string) *TaskSession {
	return &TaskSession{
		ID:        id,
		Task:      task,
		Workspace: workspace,
		status:    StatusStarting,
		changed:   make(chan struct{}),
	}
}

// Emit appends one message. Messages after a terminal status are dropped.
func (t *TaskSession) Emit(msg any) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if terminal(t.status) {
		return nil
	}
	t.messages = append(t.messages, raw)
	t.notifyLocked()
	return nil
}

// SetStatus moves the session forward. Terminal statuses are final.
func (t *TaskSession) SetStatus(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if terminal(t.status) || t.status == status {
		return
	}
	t.status = status
	t.notifyLocked()
}

// Status returns the current status.
func (t *TaskSession) Status() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Since returns the messages from index from onwards, the status at the
// time of the read, and a channel closed on the next change.
func (t *TaskSession) Since(from int) ([]json.RawMessage, string, <-chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if from < 0 {
		from = 0
	}
	var out []json.RawMessage
	if from < len(t.messages) {
		out = append(out, t.messages[from:]...)
	}
	return out, t.status, t.changed
}

func (t *TaskSession) notifyLocked() {
	close(t.changed)
	t.changed = make(chan struct{})
}

// taskRegistry holds task sessions by id.
type taskRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*TaskSession
}

func newTaskRegistry() *taskRegistry {
	return &taskRegistry{sessions: make(map[string]*TaskSession)}
}

func (r *taskRegistry) add(s *TaskSession) {
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
}

func (r *taskRegistry) get(id string) (*TaskSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}
