package server

import (
	"net/http"
	"path"
)

// --- Project source files ---

type sourceRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Dir     bool   `json:"dir,omitempty"`
}

func (s *Server) handleReadSource(w http.ResponseWriter, r *http.Request) {
	content, err := s.backend.Projects.ReadSource(r.PathValue("id"), r.URL.Query().Get("path"))
	if err != nil {
		s.errorResponse(w, 0, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"content": content})
}

func (s *Server) handleSaveSource(w http.ResponseWriter, r *http.Request) {
	var req sourceRequest
	if err := decodeBody(r, &req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	if err := s.backend.Projects.SaveSource(r.PathValue("id"), req.Path, req.Content); err != nil {
		s.errorResponse(w, 0, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCreateSource creates a new file, or a folder when dir is set.
// Existing entries are never overwritten.
func (s *Server) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	var req sourceRequest
	if err := decodeBody(r, &req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	id := r.PathValue("id")
	var err error
	if req.Dir {
		err = s.backend.Projects.CreateFolder(id, req.Path)
	} else {
		err = s.backend.Projects.CreateFile(id, req.Path, req.Content)
	}
	if err != nil {
		s.errorResponse(w, 0, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.Projects.DeleteEntry(r.PathValue("id"), r.URL.Query().Get("path")); err != nil {
		s.errorResponse(w, 0, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMoveSource renames an entry in place, or moves it elsewhere in the
// tree when the target lives in another directory.
func (s *Server) handleMoveSource(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	id := r.PathValue("id")
	var err error
	if sameDir(req.From, req.To) {
		err = s.backend.Projects.Rename(id, req.From, req.To)
	} else {
		err = s.backend.Projects.Move(id, req.From, req.To)
	}
	if err != nil {
		s.errorResponse(w, 0, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func sameDir(a, b string) bool {
	return path.Dir(path.Clean(a)) == path.Dir(path.Clean(b))
}

// --- Agent server workspace ---

func (s *Server) handleRemoteFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.backend.RemoteFiles(r.Context(), r.URL.Query().Get("path"))
	if err != nil {
		s.errorResponse(w, 0, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, files)
}

func (s *Server) handleRemoteFile(w http.ResponseWriter, r *http.Request) {
	content, err := s.backend.RemoteFile(r.Context(), r.URL.Query().Get("path"))
	if err != nil {
		s.errorResponse(w, 0, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"content": content})
}
