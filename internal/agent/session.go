package agent

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusStarting  Status = "starting"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusError     Status = "error"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusError:
		return true
	default:
		return false
	}
}

// Session is the handle of one remote task execution. It is safe for
// concurrent use; exactly one goroutine feeds it.
type Session struct {
	id string

	mu      sync.RWMutex
	status  Status
	events  []Event
	result  *Result
	failed  bool
	err     error
	lastID  string

	done       chan struct{}
	finishOnce sync.Once

	cancel  context.CancelFunc
	stopped chan struct{}

	now      func() time.Time
	onEvent  func(*Session, Event)
	onFinish func(*Session)
}

func newSession(id string) *Session {
	return &Session{
		id:      id,
		status:  StatusStarting,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		now:     time.Now,
	}
}

// ID returns the backend issued session id.
func (s *Session) ID() string { return s.id }

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Events returns a snapshot of the log.
func (s *Session) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Len returns the number of logged events.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Result returns the last result event, if any.
func (s *Session) Result() (Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.result == nil {
		return Result{}, false
	}
	return *s.result, true
}

// Err returns the cause of an error status.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Executing reports whether the session has not reached a terminal status.
func (s *Session) Executing() bool {
	return !s.Status().Terminal()
}

// Done is closed once the session reaches a terminal status.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the session finishes or ctx is done.
func (s *Session) Wait(ctx context.Context) (Status, error) {
	select {
	case <-s.done:
		return s.Status(), s.Err()
	case <-ctx.Done():
		return s.Status(), ctx.Err()
	}
}

// Cancel stops the stream feeding the session and waits for it to exit.
// A session that is still executing ends in StatusError with
// context.Canceled as its cause. It must not be called from an OnEvent
// callback.
func (s *Session) Cancel() {
	s.fail(context.Canceled)
	s.mu.RLock()
	cancel := s.cancel
	s.mu.RUnlock()
	if cancel == nil {
		return
	}
	cancel()
	<-s.stopped
}

// LastEventID returns the most recent SSE id seen on the stream.
func (s *Session) LastEventID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastID
}

// attach binds the feeding goroutine's cancel func.
func (s *Session) attach(cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
}

// detach releases the stream context and marks the feeding goroutine as
// exited.
func (s *Session) detach() {
	s.mu.RLock()
	cancel := s.cancel
	s.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	close(s.stopped)
}

// append adds one event, returning false once the session is terminal.
func (s *Session) append(typ EventType, payload Payload, raw []byte) (Event, bool) {
	s.mu.Lock()
	if s.status.Terminal() {
		s.mu.Unlock()
		return Event{}, false
	}
	ev := Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Timestamp: s.now(),
		Payload:   payload,
		Raw:       append([]byte(nil), raw...),
	}
	s.events = append(s.events, ev)
	if s.status == StatusStarting {
		s.status = StatusRunning
	}
	switch p := payload.(type) {
	case Result:
		s.result = &p
		s.failed = s.failed || !p.Success
	case Failure:
		s.failed = true
	}
	onEvent := s.onEvent
	s.mu.Unlock()

	if onEvent != nil {
		onEvent(s, ev)
	}
	return ev, true
}

// outcome derives the status implied by the events seen so far.
func (s *Session) outcome() Status {
	if s.failed {
		return StatusFailed
	}
	return StatusCompleted
}

// concluded reports whether a result or error event has been logged.
func (s *Session) concluded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failed || s.result != nil
}

// complete finishes the session with the status derived from its events.
func (s *Session) complete() bool {
	return s.finish(func() (Status, error) { return s.outcome(), nil })
}

// fail finishes the session in StatusError.
func (s *Session) fail(cause error) bool {
	return s.finish(func() (Status, error) { return StatusError, cause })
}

// finish runs at most once. decide is called under the session lock.
func (s *Session) finish(decide func() (Status, error)) bool {
	finished := false
	s.finishOnce.Do(func() {
		s.mu.Lock()
		s.status, s.err = decide()
		onFinish := s.onFinish
		s.mu.Unlock()
		close(s.done)
		finished = true
		if onFinish != nil {
			onFinish(s)
		}
	})
	return finished
}

// setLastID records the stream position for resumption.
func (s *Session) setLastID(id string) {
	s.mu.Lock()
	s.lastID = id
	s.mu.Unlock()
}
