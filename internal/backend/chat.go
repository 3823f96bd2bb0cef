package backend

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/codefionn/agentweb/internal/api"
	"github.com/codefionn/agentweb/internal/secretdetect"
)

const (
	chatWriteWait   = 10 * time.Second
	chatPongWait    = 60 * time.Second
	chatPingPeriod  = (chatPongWait * 9) / 10
	maxChatFrameLen = 64 << 10
)

// handleChat sends the stored history, then answers each inbound text frame
// with a user_message echo and a placeholder agent_message.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.metrics.streamClients.Inc()
	defer s.metrics.streamClients.Dec()

	ctx := r.Context()
	if err := s.chat.EnsureSession(ctx, id); err != nil {
		s.log.Error("%v", err)
		return
	}
	history, err := s.chat.Messages(ctx, id)
	if err != nil {
		s.log.Error("%v", err)
		return
	}

	// all writes happen on this goroutine except pings, which use WriteControl
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(chatPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(chatWriteWait)); err != nil {
					return
				}
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-stop:
				return
			}
		}
	}()

	if err := s.sendFrame(conn, api.FrameHistory, history); err != nil {
		return
	}

	conn.SetReadLimit(maxChatFrameLen)
	_ = conn.SetReadDeadline(time.Now().Add(chatPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(chatPongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("WebSocket error in session %s: %v", id, err)
			} else {
				s.log.Debug("Client disconnected from session %s", id)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(chatPongWait))
		text := string(data)

		if err := s.chat.AddMessage(ctx, id, api.RoleUser, text); err != nil {
			s.log.Error("%v", err)
			return
		}
		s.metrics.chatMessages.WithLabelValues(api.RoleUser).Inc()
		s.log.Debug("Chat %s user: %s", id, secretdetect.Preview(text, 80))
		if err := s.sendFrame(conn, api.FrameUserMessage, text); err != nil {
			return
		}

		reply := "This is a placeholder response to: " + text
		if err := s.chat.AddMessage(ctx, id, api.RoleAgent, reply); err != nil {
			s.log.Error("%v", err)
			return
		}
		s.metrics.chatMessages.WithLabelValues(api.RoleAgent).Inc()
		if err := s.sendFrame(conn, api.FrameAgentMessage, reply); err != nil {
			return
		}
	}
}

func (s *Server) sendFrame(conn *websocket.Conn, typ string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(api.ChatFrame{Type: typ, Data: raw})
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(chatWriteWait))
	return conn.WriteMessage(websocket.TextMessage, frame)
}
