package server

import (
	"net/http"
	"strconv"

	"github.com/ChamsBouzaiene/sensei/internal/config"
)

// --- Projects ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.backend.Projects.List()
	if err != nil {
		s.errorResponse(w, 0, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, projects)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		RootPath    string `json:"root_path"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	p, err := s.backend.Projects.Create(req.Name, req.Description, req.RootPath)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, p)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.backend.Projects.Get(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, 0, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.DeleteProject(r.PathValue("id")); err != nil {
		s.errorResponse(w, 0, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProjectFiles(w http.ResponseWriter, r *http.Request) {
	tree, err := s.backend.ProjectFiles(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, 0, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, tree)
}

func (s *Server) handleReadDocument(w http.ResponseWriter, r *http.Request) {
	content, err := s.backend.Projects.ReadDocument(r.PathValue("id"), r.PathValue("kind"))
	if err != nil {
		s.errorResponse(w, 0, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"content": content})
}

func (s *Server) handleWriteDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	if err := s.backend.Projects.WriteDocument(r.PathValue("id"), r.PathValue("kind"), req.Content); err != nil {
		s.errorResponse(w, 0, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	k, _ := strconv.Atoi(r.URL.Query().Get("k"))
	hits, err := s.backend.SearchProject(r.Context(), r.PathValue("id"), r.URL.Query().Get("q"), k)
	if err != nil {
		s.errorResponse(w, 0, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, hits)
}

// --- Agent sagas ---

type agentRequest struct {
	Input string `json:"input"`
}

func (s *Server) decodeAgentRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req agentRequest
	if err := decodeBody(r, &req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return "", false
	}
	if req.Input == "" {
		s.jsonResponse(w, http.StatusBadRequest, map[string]string{"error": "input is required", "kind": "invalid_request"})
		return "", false
	}
	return req.Input, true
}

func isAsync(r *http.Request) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get("async"))
	return v
}

func (s *Server) handleRequirement(w http.ResponseWriter, r *http.Request) {
	input, ok := s.decodeAgentRequest(w, r)
	if !ok {
		return
	}
	result, err := s.backend.RunUpdateRequirement(r.Context(), r.PathValue("id"), input, isAsync(r))
	if err != nil {
		s.errorResponse(w, 0, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, result)
}

func (s *Server) handleFinishRequirement(w http.ResponseWriter, r *http.Request) {
	resp, err := s.backend.Agent.FinishRequirement(r.Context(), r.PathValue("id"), r.PathValue("session"))
	if err != nil {
		s.errorResponse(w, 0, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	input, ok := s.decodeAgentRequest(w, r)
	if !ok {
		return
	}
	result, err := s.backend.RunGenerateCode(r.Context(), r.PathValue("id"), input, isAsync(r))
	if err != nil {
		s.errorResponse(w, 0, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, result)
}

func (s *Server) handleFinishCodegen(w http.ResponseWriter, r *http.Request) {
	resp, err := s.backend.Agent.FinishCodegen(r.Context(), r.PathValue("id"), r.PathValue("session"))
	if err != nil {
		s.errorResponse(w, 0, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleSessionMessages(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	messages, err := s.backend.Agent.SessionMessages(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		s.errorResponse(w, 0, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, messages)
}

// --- Config ---

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.backend.Config.Get().Redacted())
}

func (s *Server) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	var req config.Remote
	if err := decodeBody(r, &req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	saved, err := s.backend.SaveConfig(req)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, saved.Redacted())
}

// optionalRemote decodes a config from the body, if any.
func (s *Server) optionalRemote(r *http.Request) (*config.Remote, error) {
	if r.ContentLength == 0 {
		return nil, nil
	}
	var remote config.Remote
	if err := decodeBody(r, &remote); err != nil {
		return nil, err
	}
	return &remote, nil
}

func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	remote, err := s.optionalRemote(r)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	health, err := s.backend.TestConnection(r.Context(), remote)
	if err != nil {
		s.errorResponse(w, 0, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, health)
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := s.backend.Providers(r.Context(), nil)
	if err != nil {
		s.errorResponse(w, 0, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, providers)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.backend.Runs.List(r.Context(), limit)
	if err != nil {
		s.errorResponse(w, 0, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, runs)
}
