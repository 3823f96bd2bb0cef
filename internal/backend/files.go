package backend

import (
	"errors"
	"io/fs"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/codefionn/agentweb/internal/api"
)

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	session, ok := s.tasks.get(ps.ByName("id"))
	if !ok {
		writeJSON(w, http.StatusOK, api.FileList{Files: []api.FileItem{}})
		return
	}
	files, err := s.workspaces.List(session.ID)
	if err != nil {
		s.log.Error("Error getting workspace files: %v", err)
		files = []api.FileItem{}
	}
	writeJSON(w, http.StatusOK, api.FileList{Files: files})
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	session, ok := s.tasks.get(ps.ByName("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	rel := strings.TrimPrefix(ps.ByName("path"), "/")
	file, err := s.workspaces.Read(session.ID, rel)
	switch {
	case err == nil:
	case errors.Is(err, errOutsideWorkspace):
		s.log.Warn("Rejected path %q in session %s", rel, session.ID)
		writeError(w, http.StatusForbidden, "Path outside workspace")
		return
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, errNotAFile):
		writeError(w, http.StatusNotFound, "File not found")
		return
	case errors.Is(err, errFileTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "File too large")
		return
	default:
		s.log.Error("Error reading file: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to read file")
		return
	}

	w.Header().Set("ETag", file.ETag)
	w.Header().Set("Cache-Control", "no-cache")
	if etagMatches(r.Header.Get("If-None-Match"), file.ETag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, api.FileContent{Content: file.Content, Type: api.ContentText})
}

func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == etag || candidate == "*" {
			return true
		}
	}
	return false
}
