package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/codefionn/agentweb/internal/api"
	"github.com/codefionn/agentweb/internal/logger"
	"github.com/codefionn/agentweb/internal/secretdetect"
)

// ErrSessionNotFound is returned by Client.Session for unknown ids.
var ErrSessionNotFound = errors.New("session not found")

// ReconnectPolicy controls stream resumption after transport errors.
// The zero value disables reconnects.
type ReconnectPolicy struct {
	Enabled         bool
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// BaseURL is the backend address, e.g. http://localhost:8000.
	BaseURL string
	// HTTPClient must not set Timeout, since it also carries streams.
	// Defaults to a fresh client.
	HTTPClient *http.Client
	// RequestTimeout bounds every non-streaming request. Zero means 30s.
	RequestTimeout time.Duration
	// RecentSessions is the capacity of the finished-session cache.
	RecentSessions int
	Reconnect      ReconnectPolicy
	Logger         *logger.Logger

	// OnEvent runs on the feeding goroutine after each append.
	OnEvent func(*Session, Event)
	// OnFinish runs once per session on its own goroutine after the
	// session's stream has stopped. It may call Session.Cancel or Close.
	OnFinish func(*Session)
}

const (
	defaultRequestTimeout = 30 * time.Second
	defaultRecentSessions = 16
)

// Client talks to one agent backend. Several sessions may be streamed at
// the same time; each is tracked by id until it finishes.
type Client struct {
	base      *url.URL
	http      *http.Client
	timeout   time.Duration
	reconnect ReconnectPolicy
	log       *logger.Logger
	onEvent   func(*Session, Event)
	onFinish  func(*Session)
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	recent   *lru.Cache[string, *Session]
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient validates cfg and returns a ready client.
func NewClient(cfg ClientConfig) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("backend url must be http(s) with a host, got %q", cfg.BaseURL)
	}

	size := cfg.RecentSessions
	if size <= 0 {
		size = defaultRecentSessions
	}
	recent, err := lru.New[string, *Session](size)
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}

	c := &Client{
		base:      base,
		http:      cfg.HTTPClient,
		timeout:   cfg.RequestTimeout,
		reconnect: cfg.Reconnect,
		log:       cfg.Logger,
		onEvent:   cfg.OnEvent,
		onFinish:  cfg.OnFinish,
		now:       time.Now,
		sessions:  make(map[string]*Session),
		recent:    recent,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = defaultRequestTimeout
	}
	if c.log == nil {
		c.log = logger.Component("agent")
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c, nil
}

// BaseURL returns the backend address.
func (c *Client) BaseURL() string { return c.base.String() }

// ExecuteTask submits task and starts streaming its updates. On any failure
// no session is created. ctx bounds only the submission call; use
// Session.Cancel or Close to stop the stream.
func (c *Client) ExecuteTask(ctx context.Context, task string, cfg Config) (*Session, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return nil, ErrEmptyTask
	}
	if c.isClosed() {
		return nil, ErrClosed
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var (
		body    []byte
		bodyErr error
	)
	cfg.APIKey.WithValue(func(key string) {
		body, bodyErr = json.Marshal(api.ExecuteRequest{
			Task:     task,
			Provider: cfg.Provider,
			Model:    cfg.Model,
			APIKey:   key,
			MaxSteps: cfg.MaxSteps,
		})
	})
	if bodyErr != nil {
		return nil, fmt.Errorf("encode task: %w", bodyErr)
	}

	var resp api.ExecuteResponse
	if err := c.do(ctx, http.MethodPost, api.PathExecuteTask, body, &resp); err != nil {
		c.log.Error("Failed to start task execution: %v", err)
		return nil, fmt.Errorf("execute task: %w", err)
	}
	if resp.SessionID == "" {
		c.log.Error("Failed to start task execution: %v", ErrNoSessionID)
		return nil, ErrNoSessionID
	}

	c.log.Info("Task accepted, session %s: %s", resp.SessionID, secretdetect.Preview(task, 80))
	return c.StreamSessionUpdates(resp.SessionID), nil
}

// StreamSessionUpdates opens the event stream of an existing backend
// session. If the session is already being streamed, its handle is returned.
func (c *Client) StreamSessionUpdates(sessionID string) *Session {
	s := c.newSession(sessionID)
	ctx, prev, err := c.track(s)
	if err != nil {
		s.fail(err)
		s.detach()
		return s
	}
	if prev != nil {
		return prev
	}

	go func() {
		defer c.wg.Done()
		defer s.detach()
		c.consume(ctx, s)
	}()
	return s
}

func (c *Client) newSession(id string) *Session {
	s := newSession(id)
	s.now = c.now
	s.onEvent = c.onEvent
	s.onFinish = c.finished
	return s
}

// finished moves s from the active set to the recent cache.
func (c *Client) finished(s *Session) {
	c.mu.Lock()
	if cur, ok := c.sessions[s.ID()]; ok && cur == s {
		delete(c.sessions, s.ID())
	}
	c.mu.Unlock()
	c.recent.Add(s.ID(), s)

	c.log.Info("Session %s finished: %s", s.ID(), s.Status())
	if c.onFinish != nil {
		go func() {
			<-s.stopped
			c.onFinish(s)
		}()
	}
}

// Session returns an active or recently finished session.
func (c *Client) Session(id string) (*Session, error) {
	c.mu.Lock()
	s, ok := c.sessions[id]
	c.mu.Unlock()
	if ok {
		return s, nil
	}
	if s, ok := c.recent.Get(id); ok {
		return s, nil
	}
	return nil, ErrSessionNotFound
}

// Recent returns recently finished sessions, oldest first.
func (c *Client) Recent() []*Session {
	return c.recent.Values()
}

// Executing reports whether any session is still running.
func (c *Client) Executing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.sessions {
		if s.Executing() {
			return true
		}
	}
	return false
}

// Close cancels every open stream and waits for the readers to exit.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// track registers s and binds a stream context to it. The caller must start
// the feeding goroutine and call c.wg.Done and s.detach when it exits. If a
// session with the same id is active, it is returned instead.
func (c *Client) track(s *Session) (context.Context, *Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, nil, ErrClosed
	}
	if prev, ok := c.sessions[s.ID()]; ok {
		return nil, prev, nil
	}
	ctx, cancel := context.WithCancel(c.ctx)
	s.attach(cancel)
	c.sessions[s.ID()] = s
	c.wg.Add(1)
	return ctx, nil, nil
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.base.String(), "/") + path
}

// do sends a JSON request and decodes a JSON response into out.
// Non-2xx statuses return an *HTTPError.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return &HTTPError{Method: method, Path: path, StatusCode: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
