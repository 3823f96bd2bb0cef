package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/agentweb/internal/api"
)

func TestWorkspaceFiles(t *testing.T) {
	b := newTestBackend(t)
	b.mux.HandleFunc("GET "+api.FilesPath("s1"), func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(api.FileList{Files: []api.FileItem{
			{Name: "hello.py", Path: "hello.py", Size: 22, Modified: 1700000000.5, Type: "file"},
		}})
	})
	c := newTestClient(t, b)

	list := c.WorkspaceFiles(context.Background(), "s1")
	require.Len(t, list.Files, 1)
	f := list.Files[0]
	assert.Equal(t, "hello.py", f.Name)
	assert.Equal(t, int64(22), f.Size)
	assert.Equal(t, int64(1700000000), f.ModTime().Unix())
	assert.Equal(t, 500, f.ModTime().Nanosecond()/1e6)
}

func TestWorkspaceFilesDegradesToEmpty(t *testing.T) {
	b := newTestBackend(t)
	b.mux.HandleFunc("GET "+api.FilesPath("bad"), func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	b.mux.HandleFunc("GET "+api.FilesPath("garbled"), func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"files":`))
	})
	c := newTestClient(t, b)

	for _, id := range []string{"bad", "garbled"} {
		list := c.WorkspaceFiles(context.Background(), id)
		assert.NotNil(t, list.Files, id)
		assert.Empty(t, list.Files, id)
	}

	b.srv.Close()
	list := c.WorkspaceFiles(context.Background(), "bad")
	assert.NotNil(t, list.Files)
	assert.Empty(t, list.Files)
}

func TestFileContentEscapesPath(t *testing.T) {
	b := newTestBackend(t)
	paths := make(chan string, 1)
	b.mux.HandleFunc("GET /api/workspace/s1/file/{path}", func(w http.ResponseWriter, r *http.Request) {
		paths <- r.PathValue("path")
		_ = json.NewEncoder(w).Encode(api.FileContent{Content: "print('hi')"})
	})
	c := newTestClient(t, b)

	got := c.FileContent(context.Background(), "s1", "src/main file.py")
	assert.Equal(t, FileContent{Content: "print('hi')", Type: api.ContentText}, got)
	assert.Equal(t, "src/main file.py", <-paths)
}

func TestFileContentPlaceholders(t *testing.T) {
	b := newTestBackend(t)
	b.mux.HandleFunc("GET /api/workspace/s1/file/{path}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("path") == "garbled" {
			_, _ = w.Write([]byte(`nope`))
			return
		}
		http.NotFound(w, r)
	})
	c := newTestClient(t, b)

	assert.Equal(t, FileContent{Content: "File not found", Type: "error"},
		c.FileContent(context.Background(), "s1", "missing.txt"))
	assert.Equal(t, FileContent{Content: "Error loading file", Type: "error"},
		c.FileContent(context.Background(), "s1", "garbled"))

	b.srv.Close()
	assert.Equal(t, FileContent{Content: "Error loading file", Type: "error"},
		c.FileContent(context.Background(), "s1", "missing.txt"))
}
