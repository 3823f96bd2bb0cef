package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/agentweb/internal/api"
	"github.com/codefionn/agentweb/internal/logger"
	"github.com/codefionn/agentweb/internal/sse"
)

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	if opts.WorkspaceRoot == "" {
		opts.WorkspaceRoot = t.TempDir()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewWithWriter(logger.LevelDebug, io.Discard, "backend")
	}
	s, err := New(opts)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = s.Close()
	})
	return s, ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func startTask(t *testing.T, base, task string) string {
	t.Helper()
	resp := postJSON(t, base+api.PathExecuteTask, api.ExecuteRequest{
		Task: task, Provider: "anthropic", Model: "claude-sonnet-4-20250514", APIKey: "sk-ant-0123456789", MaxSteps: 20,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeBody[api.ExecuteResponse](t, resp)
	require.NotEmpty(t, out.SessionID)
	assert.Equal(t, "started", out.Status)
	return out.SessionID
}

// readStream collects every SSE message until the server closes the stream.
func readStream(t *testing.T, url, lastID string) []sse.Message {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if lastID != "" {
		req.Header.Set("Last-Event-ID", lastID)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, sse.ContentType, resp.Header.Get("Content-Type"))

	var out []sse.Message
	dec := sse.NewDecoder(resp.Body)
	for {
		msg, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, msg)
	}
}

func TestStreamTerminalFrameCarriesNoID(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	id := startTask(t, ts.URL, "write hello world")

	resp, err := http.Get(ts.URL + api.StreamPath(id))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var frames []string
	for _, f := range strings.Split(string(body), "\n\n") {
		if f = strings.TrimSpace(f); f != "" && !strings.HasPrefix(f, ":") {
			frames = append(frames, f)
		}
	}
	require.Len(t, frames, 8)
	assert.True(t, strings.HasPrefix(frames[6], "id: 7\n"), frames[6])
	last := frames[7]
	assert.Contains(t, last, "session_complete")
	assert.NotContains(t, last, "id:")
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	resp, err := http.Get(ts.URL + api.PathHealth)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", decodeBody[api.Health](t, resp).Status)
}

func TestValidateConfigEndpoint(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	tests := []struct {
		name  string
		req   api.ValidateRequest
		valid bool
		msg   string
	}{
		{"valid", api.ValidateRequest{Provider: "openai", Model: "gpt-4o", APIKey: "sk-0123456789ab", MaxSteps: 20}, true, "basic validation"},
		{"short key", api.ValidateRequest{Provider: "openai", Model: "gpt-4o", APIKey: "  short  ", MaxSteps: 20}, false, "too short"},
		{"unknown model", api.ValidateRequest{Provider: "openai", Model: "claude-3-5-haiku-20241022", APIKey: "sk-0123456789ab", MaxSteps: 20}, false, "not available"},
		{"steps out of range", api.ValidateRequest{Provider: "openai", Model: "gpt-4o", APIKey: "sk-0123456789ab", MaxSteps: 500}, false, "between 1 and 100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodeBody[api.Validation](t, postJSON(t, ts.URL+api.PathValidateConfig, tt.req))
			assert.Equal(t, tt.valid, got.Valid)
			assert.Contains(t, got.Message, tt.msg)
		})
	}
}

func TestExecuteTaskRejectsBadInput(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	resp := postJSON(t, ts.URL+api.PathExecuteTask, api.ExecuteRequest{Task: "   "})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err := http.Post(ts.URL+api.PathExecuteTask, "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSimulatedSessionStream(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	id := startTask(t, ts.URL, "write hello world")

	msgs := readStream(t, ts.URL+api.StreamPath(id), "")
	require.Len(t, msgs, 8)

	var types []string
	for i, m := range msgs[:7] {
		assert.Equal(t, strconv.Itoa(i+1), m.ID)
		var head struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(m.Data, &head))
		types = append(types, head.Type)
	}
	assert.Equal(t, []string{"system", "step", "step", "step", "step", "step", "result"}, types)
	assert.JSONEq(t, `{"type":"session_complete"}`, string(msgs[7].Data))
	// the decoder carries the last id forward
	assert.Equal(t, "7", msgs[7].ID)

	var step struct {
		Content struct {
			StepNumber int    `json:"step_number"`
			State      string `json:"state"`
			Content    string `json:"content"`
		} `json:"content"`
	}
	require.NoError(t, json.Unmarshal(msgs[1].Data, &step))
	assert.Equal(t, 1, step.Content.StepNumber)
	assert.Equal(t, "Analyzing the task...", step.Content.Content)
}

func TestStreamResumesFromLastEventID(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	id := startTask(t, ts.URL, "task")
	readStream(t, ts.URL+api.StreamPath(id), "")

	msgs := readStream(t, ts.URL+api.StreamPath(id), "5")
	require.Len(t, msgs, 3)
	assert.Equal(t, "6", msgs[0].ID)
	assert.Equal(t, "7", msgs[1].ID)
	assert.JSONEq(t, `{"type":"session_complete"}`, string(msgs[2].Data))

	garbage := readStream(t, ts.URL+api.StreamPath(id), "not-a-number")
	assert.Len(t, garbage, 8)
}

func TestStreamUnknownSession(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	msgs := readStream(t, ts.URL+api.StreamPath("nope"), "")
	require.Len(t, msgs, 2)
	assert.JSONEq(t, `{"type":"error","message":"Session not found"}`, string(msgs[0].Data))
	assert.JSONEq(t, `{"type":"session_complete"}`, string(msgs[1].Data))
}

func TestStreamFollowsLiveSession(t *testing.T) {
	release := make(chan struct{})
	runner := RunnerFunc(func(ctx context.Context, task Task, emit Emitter) (string, error) {
		_ = emit.Emit(map[string]any{"type": "step", "step_number": 1})
		<-release
		_ = emit.Emit(map[string]any{"type": "error", "content": "model refused"})
		return StatusFailed, nil
	})
	s, ts := newTestServer(t, Options{Runner: runner, KeepAlive: 5 * time.Millisecond})
	id := startTask(t, ts.URL, "task")

	go func() {
		time.Sleep(30 * time.Millisecond)
		close(release)
	}()
	msgs := readStream(t, ts.URL+api.StreamPath(id), "")
	require.Len(t, msgs, 3)
	assert.Contains(t, string(msgs[1].Data), "model refused")

	session, ok := s.tasks.get(id)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, session.Status())
}

func TestRunnerErrorEndsSessionInError(t *testing.T) {
	runner := RunnerFunc(func(ctx context.Context, task Task, emit Emitter) (string, error) {
		return "", errors.New("sandbox unavailable")
	})
	_, ts := newTestServer(t, Options{Runner: runner})
	id := startTask(t, ts.URL, "task")

	msgs := readStream(t, ts.URL+api.StreamPath(id), "")
	require.Len(t, msgs, 2)
	assert.JSONEq(t, `{"type":"error","content":"Error: sandbox unavailable"}`, string(msgs[0].Data))
}

func TestWorkspaceEndpoints(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	id := startTask(t, ts.URL, "task")
	readStream(t, ts.URL+api.StreamPath(id), "")

	resp, err := http.Get(ts.URL + api.FilesPath(id))
	require.NoError(t, err)
	list := decodeBody[api.FileList](t, resp)
	require.Len(t, list.Files, 1)
	assert.Equal(t, "hello.py", list.Files[0].Path)
	assert.Equal(t, int64(len("print(\"Hello, World!\")\n")), list.Files[0].Size)
	assert.WithinDuration(t, time.Now(), list.Files[0].ModTime(), time.Minute)

	resp, err = http.Get(ts.URL + api.FilePath(id, "hello.py"))
	require.NoError(t, err)
	etag := resp.Header.Get("ETag")
	content := decodeBody[api.FileContent](t, resp)
	assert.Equal(t, api.FileContent{Content: "print(\"Hello, World!\")\n", Type: "text"}, content)
	require.NotEmpty(t, etag)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+api.FilePath(id, "hello.py"), nil)
	req.Header.Set("If-None-Match", etag)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotModified, resp.StatusCode)

	for path, status := range map[string]int{
		"missing.py":       http.StatusNotFound,
		"../../etc/passwd": http.StatusForbidden,
	} {
		resp, err := http.Get(ts.URL + api.FilePath(id, path))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, status, resp.StatusCode, path)
	}

	resp, err = http.Get(ts.URL + api.FilesPath("unknown"))
	require.NoError(t, err)
	assert.Empty(t, decodeBody[api.FileList](t, resp).Files)

	resp, err = http.Get(ts.URL + api.FilePath("unknown", "hello.py"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestChatWebSocket(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	resp := postJSON(t, ts.URL+api.PathNewChatSession, nil)
	id := decodeBody[api.NewChatSessionResponse](t, resp).SessionID
	require.NotEmpty(t, id)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + api.ChatPath(id)
	readFrame := func(conn *websocket.Conn) api.ChatFrame {
		var f api.ChatFrame
		require.NoError(t, conn.ReadJSON(&f))
		return f
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	history := readFrame(conn)
	assert.Equal(t, api.FrameHistory, history.Type)
	assert.JSONEq(t, `[]`, string(history.Data))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
	user := readFrame(conn)
	agent := readFrame(conn)
	assert.Equal(t, api.FrameUserMessage, user.Type)
	assert.JSONEq(t, `"hello"`, string(user.Data))
	assert.Equal(t, api.FrameAgentMessage, agent.Type)
	assert.JSONEq(t, `"This is a placeholder response to: hello"`, string(agent.Data))
	conn.Close()

	conn, _, err = websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	history = readFrame(conn)
	var msgs []api.ChatMessage
	require.NoError(t, json.Unmarshal(history.Data, &msgs))
	assert.Equal(t, []api.ChatMessage{
		{Role: "user", Content: "hello"},
		{Role: "agent", Content: "This is a placeholder response to: hello"},
	}, msgs)
}

func TestChatRejectsForeignOrigin(t *testing.T) {
	_, ts := newTestServer(t, Options{AllowedOrigins: []string{"http://localhost:5173"}})
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + api.ChatPath("x")

	header := http.Header{"Origin": {"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "http://localhost:5173")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	conn.Close()
}

func TestCORSPreflight(t *testing.T) {
	_, ts := newTestServer(t, Options{AllowedOrigins: []string{"http://localhost:5173/"}})

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+api.PathExecuteTask, nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
	assert.True(t, strings.EqualFold("content-type", resp.Header.Get("Access-Control-Allow-Headers")))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), http.MethodPost)

	req, _ = http.NewRequest(http.MethodOptions, ts.URL+api.PathExecuteTask, nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Methods"))

	req, _ = http.NewRequest(http.MethodGet, ts.URL+api.PathHealth, nil)
	req.Header.Set("Origin", "http://evil.example")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	id := startTask(t, ts.URL, "task")
	readStream(t, ts.URL+api.StreamPath(id), "")

	resp, err := http.Get(ts.URL + api.PathMetrics)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `agentd_sessions_total{status="completed"} 1`)
	assert.Contains(t, string(body), "agentd_events_streamed_total 7")
}
