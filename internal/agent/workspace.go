package agent

import (
	"context"
	"errors"
	"net/http"

	"github.com/codefionn/agentweb/internal/api"
)

type (
	FileItem    = api.FileItem
	FileList    = api.FileList
	FileContent = api.FileContent
)

// Placeholder contents returned when a file cannot be read.
const (
	ContentNotFound     = "File not found"
	ContentLoadingError = "Error loading file"
)

// WorkspaceFiles lists the files of a session workspace. Failures are logged
// and yield an empty list.
func (c *Client) WorkspaceFiles(ctx context.Context, sessionID string) FileList {
	var out FileList
	if err := c.do(ctx, http.MethodGet, api.FilesPath(sessionID), nil, &out); err != nil {
		c.log.Warn("Failed to load files for session %s: %v", sessionID, err)
		return FileList{Files: []FileItem{}}
	}
	if out.Files == nil {
		out.Files = []FileItem{}
	}
	return out
}

// FileContent reads one workspace file. A non-2xx response yields a
// "File not found" placeholder and any other failure an "Error loading
// file" placeholder, both with type "error".
func (c *Client) FileContent(ctx context.Context, sessionID, path string) FileContent {
	var out FileContent
	err := c.do(ctx, http.MethodGet, api.FilePath(sessionID, path), nil, &out)
	var httpErr *HTTPError
	switch {
	case err == nil:
		if out.Type == "" {
			out.Type = api.ContentText
		}
		return out
	case errors.As(err, &httpErr):
		c.log.Debug("File %s in session %s: %v", path, sessionID, err)
		return FileContent{Content: ContentNotFound, Type: api.ContentError}
	default:
		c.log.Warn("Failed to load file content %s in session %s: %v", path, sessionID, err)
		return FileContent{Content: ContentLoadingError, Type: api.ContentError}
	}
}
