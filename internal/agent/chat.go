package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/codefionn/agentweb/internal/api"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// Send pings with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxFrameSize = 1 << 20
)

var errChatEnded = errors.New("chat ended")

// Chat is a bidirectional session over a WebSocket. Incoming frames feed
// the same Session type as the event stream.
type Chat struct {
	client  *Client
	session *Session
	conn    *websocket.Conn
	send    chan []byte

	closeOnce sync.Once
}

// NewChatSession asks the backend for a fresh chat session id.
func (c *Client) NewChatSession(ctx context.Context) (string, error) {
	var out api.NewChatSessionResponse
	if err := c.do(ctx, http.MethodPost, api.PathNewChatSession, nil, &out); err != nil {
		return "", fmt.Errorf("create chat session: %w", err)
	}
	if out.SessionID == "" {
		return "", ErrNoSessionID
	}
	return out.SessionID, nil
}

// DialChat connects to the chat endpoint of sessionID. The first frame from
// the backend replays the history into the session log.
func (c *Client) DialChat(ctx context.Context, sessionID string) (*Chat, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}

	path := api.ChatPath(sessionID)
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.timeout,
	}
	conn, resp, err := dialer.DialContext(ctx, c.wsEndpoint(path), nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("dial chat: %w", &HTTPError{Method: http.MethodGet, Path: path, StatusCode: resp.StatusCode})
		}
		return nil, fmt.Errorf("dial chat: %w", err)
	}

	s := c.newSession(sessionID)
	sctx, prev, err := c.track(s)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if prev != nil {
		conn.Close()
		return nil, fmt.Errorf("session %s is already connected", sessionID)
	}

	ch := &Chat{
		client:  c,
		session: s,
		conn:    conn,
		send:    make(chan []byte, 16),
	}
	go ch.run(sctx)

	c.log.Info("Chat connected to session %s", sessionID)
	return ch, nil
}

// Session returns the handle the chat feeds.
func (ch *Chat) Session() *Session { return ch.session }

// Send queues text as a raw text frame.
func (ch *Chat) Send(ctx context.Context, text string) error {
	if !ch.session.Executing() {
		return ErrClosed
	}
	select {
	case ch.send <- []byte(text):
		return nil
	case <-ch.session.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the chat and waits for its pumps to exit.
func (ch *Chat) Close() error {
	ch.session.Cancel()
	return nil
}

func (ch *Chat) run(ctx context.Context) {
	defer ch.client.wg.Done()
	defer ch.session.detach()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(ch.readPump)
	g.Go(func() error { return ch.writePump(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		ch.closeConn()
		return nil
	})

	err := g.Wait()
	switch {
	case errors.Is(err, errChatEnded):
		ch.session.complete()
	case ctx.Err() != nil:
		ch.session.fail(context.Canceled)
	default:
		ch.client.log.Error("Chat connection error for session %s: %v", ch.session.ID(), err)
		ch.session.fail(err)
	}
}

func (ch *Chat) closeConn() {
	ch.closeOnce.Do(func() {
		_ = ch.conn.Close()
	})
}

func (ch *Chat) readPump() error {
	ch.conn.SetReadLimit(maxFrameSize)
	_ = ch.conn.SetReadDeadline(time.Now().Add(pongWait))
	ch.conn.SetPongHandler(func(string) error {
		return ch.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ch.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errChatEnded
			}
			return err
		}
		_ = ch.conn.SetReadDeadline(time.Now().Add(pongWait))

		if ended := ch.handleFrame(data); ended {
			return errChatEnded
		}
	}
}

// handleFrame applies one inbound frame and reports whether the chat is over.
func (ch *Chat) handleFrame(data []byte) bool {
	var frame api.ChatFrame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Type == "" {
		ch.client.log.Warn("Skipping malformed chat frame for session %s", ch.session.ID())
		return false
	}

	switch frame.Type {
	case api.FrameHistory:
		var history []api.ChatMessage
		if err := json.Unmarshal(frame.Data, &history); err != nil {
			ch.client.log.Warn("Skipping malformed history for session %s: %v", ch.session.ID(), err)
			return false
		}
		return !ch.replay(history)
	case api.FrameUserMessage:
		_, ok := ch.session.append(EventUser, Message{Role: EventUser, Text: rawText(frame.Data)}, data)
		return !ok
	case api.FrameAgentMessage:
		_, ok := ch.session.append(EventAgent, Message{Role: EventAgent, Text: rawText(frame.Data)}, data)
		return !ok
	}

	typ, payload, err := decodeEvent(data)
	if err != nil {
		ch.client.log.Warn("Skipping malformed chat frame for session %s: %v", ch.session.ID(), err)
		return false
	}
	if typ.Terminal() {
		ch.session.complete()
		return true
	}
	_, ok := ch.session.append(typ, payload, data)
	return !ok
}

// replay appends history entries beyond the current log length, so a
// repeated history frame never duplicates or rewrites entries.
func (ch *Chat) replay(history []api.ChatMessage) bool {
	for i := ch.session.Len(); i < len(history); i++ {
		m := history[i]
		role := EventType(m.Role)
		if role != EventUser && role != EventSystem {
			role = EventAgent
		}
		raw, _ := json.Marshal(m)
		if _, ok := ch.session.append(role, Message{Role: role, Text: m.Content}, raw); !ok {
			return false
		}
	}
	return true
}

func (ch *Chat) writePump(ctx context.Context) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = ch.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return nil
		case text := <-ch.send:
			_ = ch.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ch.conn.WriteMessage(websocket.TextMessage, text); err != nil {
				return fmt.Errorf("write chat message: %w", err)
			}
		case <-ticker.C:
			_ = ch.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ch.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("write ping: %w", err)
			}
		}
	}
}

// wsEndpoint maps the http(s) base to ws(s).
func (c *Client) wsEndpoint(path string) string {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return strings.TrimRight(u.String(), "/") + path
}
