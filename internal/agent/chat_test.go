package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/agentweb/internal/api"
)

var testUpgrader = websocket.Upgrader{}

func frame(t *testing.T, typ string, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	out, err := json.Marshal(api.ChatFrame{Type: typ, Data: raw})
	require.NoError(t, err)
	return out
}

func TestNewChatSession(t *testing.T) {
	b := newTestBackend(t)
	b.mux.HandleFunc("POST "+api.PathNewChatSession, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(api.NewChatSessionResponse{SessionID: "chat-1"})
	})
	c := newTestClient(t, b)

	id, err := c.NewChatSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "chat-1", id)
}

func TestChatHistoryAndIncrementalMessages(t *testing.T) {
	b := newTestBackend(t)
	history := []api.ChatMessage{
		{Role: "user", Content: "hello"},
		{Role: "agent", Content: "hi there"},
	}
	received := make(chan string, 1)

	b.mux.HandleFunc("GET "+api.ChatPath("c1"), func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()

		_ = conn.WriteMessage(websocket.TextMessage, frame(t, api.FrameHistory, history))

		_, msg, err := conn.ReadMessage()
		if !assert.NoError(t, err) {
			return
		}
		received <- string(msg)

		_ = conn.WriteMessage(websocket.TextMessage, frame(t, api.FrameUserMessage, string(msg)))
		_ = conn.WriteMessage(websocket.TextMessage, frame(t, api.FrameAgentMessage, "Agent is processing: "+string(msg)))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))

		// a repeated history frame only contributes entries beyond the log
		full := append(append([]api.ChatMessage(nil), history...),
			api.ChatMessage{Role: "user", Content: string(msg)},
			api.ChatMessage{Role: "agent", Content: "Agent is processing: " + string(msg)},
			api.ChatMessage{Role: "agent", Content: "follow-up"},
		)
		_ = conn.WriteMessage(websocket.TextMessage, frame(t, api.FrameHistory, full))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		_, _, _ = conn.ReadMessage()
	})

	c := newTestClient(t, b)
	chat, err := c.DialChat(context.Background(), "c1")
	require.NoError(t, err)
	s := chat.Session()

	require.Eventually(t, func() bool { return s.Len() == 2 }, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, chat.Send(context.Background(), "list files"))
	assert.Equal(t, "list files", <-received)

	waitDone(t, s)
	assert.Equal(t, StatusCompleted, s.Status())

	var got []string
	for _, ev := range s.Events() {
		got = append(got, string(ev.Type)+":"+ev.Text())
	}
	assert.Equal(t, []string{
		"user:hello",
		"agent:hi there",
		"user:list files",
		"agent:Agent is processing: list files",
		"agent:follow-up",
	}, got)

	assert.ErrorIs(t, chat.Send(context.Background(), "late"), ErrClosed)
}

func TestChatCloseCancelsSession(t *testing.T) {
	b := newTestBackend(t)
	b.mux.HandleFunc("GET "+api.ChatPath("c2"), func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, frame(t, api.FrameHistory, []api.ChatMessage{}))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	c := newTestClient(t, b)
	chat, err := c.DialChat(context.Background(), "c2")
	require.NoError(t, err)

	require.NoError(t, chat.Close())
	assert.Equal(t, StatusError, chat.Session().Status())
	assert.ErrorIs(t, chat.Session().Err(), context.Canceled)
	assert.False(t, c.Executing())
}

func TestDialChatRejected(t *testing.T) {
	b := newTestBackend(t)
	b.mux.HandleFunc("GET "+api.ChatPath("nope"), func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	})
	c := newTestClient(t, b)

	_, err := c.DialChat(context.Background(), "nope")
	assert.True(t, IsHTTPStatus(err, http.StatusForbidden))
}

func TestWSEndpointScheme(t *testing.T) {
	c, err := NewClient(ClientConfig{BaseURL: "https://agent.example.com/base/"})
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, "wss://agent.example.com/base/ws/abc", c.wsEndpoint(api.ChatPath("abc")))
	assert.Equal(t, "https://agent.example.com/base/health", c.endpoint(api.PathHealth))
}
