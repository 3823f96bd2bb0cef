// Package api defines the HTTP/SSE/WebSocket contract between the agent
// client and the backend.
package api

import (
	"encoding/json"
	"math"
	"net/url"
	"time"
)

// Endpoint paths. Dynamic segments are path-escaped by the helpers below.
const (
	PathHealth         = "/health"
	PathExecuteTask    = "/api/execute-task"
	PathValidateConfig = "/api/validate-config"
	PathNewChatSession = "/sessions/new"
	PathMetrics        = "/metrics"
)

// StreamPath is the SSE endpoint of a session.
func StreamPath(sessionID string) string {
	return "/api/session/" + url.PathEscape(sessionID) + "/stream"
}

// FilesPath lists a session workspace.
func FilesPath(sessionID string) string {
	return "/api/workspace/" + url.PathEscape(sessionID) + "/files"
}

// FilePath reads one workspace file. The whole relative path is a single
// escaped segment, so "/" becomes %2F.
func FilePath(sessionID, path string) string {
	return "/api/workspace/" + url.PathEscape(sessionID) + "/file/" + url.PathEscape(path)
}

// ChatPath is the WebSocket endpoint of a chat session.
func ChatPath(sessionID string) string {
	return "/ws/" + url.PathEscape(sessionID)
}

// ExecuteRequest starts a task.
type ExecuteRequest struct {
	Task     string `json:"task"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	APIKey   string `json:"api_key"`
	MaxSteps int    `json:"max_steps"`
}

// ExecuteResponse carries the new session id.
type ExecuteResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status,omitempty"`
}

// ValidateRequest is the config as sent by the configuration form.
type ValidateRequest struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	APIKey   string `json:"apiKey"`
	MaxSteps int    `json:"maxSteps"`
}

// Validation is the outcome of a config check.
type Validation struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// Health is the liveness probe body.
type Health struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// FileItem describes one workspace file.
type FileItem struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
	// Modified is the modification time in (fractional) Unix seconds.
	Modified float64 `json:"modified"`
	Type     string  `json:"type"`
}

// ModTime converts Modified to a time.Time.
func (f FileItem) ModTime() time.Time {
	sec, frac := math.Modf(f.Modified)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// FileList is the workspace listing.
type FileList struct {
	Files []FileItem `json:"files"`
}

// Content types of FileContent.
const (
	ContentText  = "text"
	ContentError = "error"
)

// FileContent is one file body.
type FileContent struct {
	Content string `json:"content"`
	Type    string `json:"type,omitempty"`
}

// NewChatSessionResponse carries the id of a new chat session.
type NewChatSessionResponse struct {
	SessionID string `json:"session_id"`
}

// Chat frame types.
const (
	FrameHistory      = "history"
	FrameUserMessage  = "user_message"
	FrameAgentMessage = "agent_message"
)

// ChatFrame is a server-to-client WebSocket frame. Data is a []ChatMessage for
// history frames and a string otherwise.
type ChatFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ChatMessage is one persisted chat entry.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat roles.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)
