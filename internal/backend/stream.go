package backend

import (
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/codefionn/agentweb/internal/sse"
)

var (
	completeFrame = []byte(`{"type":"session_complete"}`)
	notFoundFrame = []byte(`{"type":"error","message":"Session not found"}`)
)

// handleStream replays the session log from Last-Event-ID and follows it
// until the session is terminal, then sends session_complete once.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	out := sse.NewWriter(w)
	w.WriteHeader(http.StatusOK)
	out.Flush()

	session, ok := s.tasks.get(ps.ByName("id"))
	if !ok {
		_ = out.Write(sse.Message{Data: notFoundFrame})
		_ = out.Write(sse.Message{Data: completeFrame})
		return
	}

	s.metrics.streamClients.Inc()
	defer s.metrics.streamClients.Dec()

	next := resumeIndex(r.Header.Get("Last-Event-ID"))
	keepAlive := time.NewTicker(s.opts.KeepAlive)
	defer keepAlive.Stop()

	for {
		msgs, status, changed := session.Since(next)
		for _, msg := range msgs {
			next++
			if err := out.Write(sse.Message{ID: strconv.Itoa(next), Data: msg}); err != nil {
				s.log.Debug("Stream for %s closed: %v", session.ID, err)
				return
			}
			s.metrics.eventsStreamed.Inc()
		}
		if terminal(status) {
			_ = out.Write(sse.Message{Data: completeFrame})
			return
		}

		select {
		case <-changed:
		case <-keepAlive.C:
			if err := out.Comment("keep-alive"); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

// resumeIndex converts a Last-Event-ID into the index of the next message.
func resumeIndex(lastID string) int {
	n, err := strconv.Atoi(lastID)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
