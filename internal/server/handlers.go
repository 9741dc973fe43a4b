// Package server exposes the session orchestration engine over HTTP.
package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/thebtf/conductor/internal/engine"
	"github.com/thebtf/conductor/pkg/models"
)

type createSessionRequest struct {
	SessionType models.SessionType `json:"session_type"`
	Mode        models.SessionMode `json:"mode"`
	ProjectPath string             `json:"project_path"`
	Config      models.JSONMap     `json:"config,omitempty"`
}

type pauseRequest struct {
	Reason string `json:"reason,omitempty"`
}

type resumeRequest struct {
	CheckpointID string `json:"checkpoint_id,omitempty"`
}

type executeRequest struct {
	Inputs models.JSONMap `json:"inputs,omitempty"`
}

// pageParams reads page/per_page from the query string. Absent values
// take the defaults; values that fail to parse as integers are
// rejected the same way out-of-range ones are.
func pageParams(r *http.Request) (int, int, error) {
	page, perPage := 1, models.DefaultPerPage
	if raw := r.URL.Query().Get("page"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, models.InvalidArgumentf("page must be an integer, got %q", raw)
		}
		page = v
	}
	if raw := r.URL.Query().Get("per_page"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, models.InvalidArgumentf("per_page must be an integer, got %q", raw)
		}
		perPage = v
	}
	return page, perPage, nil
}

func (s *Service) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	session, err := s.manager.Create(r.Context(), engine.CreateRequest{
		SessionType: req.SessionType,
		Mode:        req.Mode,
		ProjectPath: req.ProjectPath,
		Config:      req.Config,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Service) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.manager.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Service) handleListSessions(w http.ResponseWriter, r *http.Request) {
	page, perPage, err := pageParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	q := r.URL.Query()
	sessions, pagination, err := s.manager.List(r.Context(), engine.ListFilter{
		Status:      models.SessionStatus(q.Get("status")),
		SessionType: models.SessionType(q.Get("session_type")),
		Page:        page,
		PerPage:     perPage,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listBody{Items: sessions, Pagination: pagination})
}

func (s *Service) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Delete(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleStartSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.manager.Start(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Service) handlePauseSession(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	checkpoint, err := s.manager.Pause(r.Context(), chi.URLParam(r, "sessionID"), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, checkpoint)
}

func (s *Service) handleResumeSession(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	session, err := s.manager.Resume(r.Context(), chi.URLParam(r, "sessionID"), req.CheckpointID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Service) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.manager.Cancel(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Service) handleListSteps(w http.ResponseWriter, r *http.Request) {
	page, perPage, err := pageParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	steps, pagination, err := s.manager.Steps(r.Context(), chi.URLParam(r, "sessionID"), page, perPage)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listBody{Items: steps, Pagination: pagination})
}

// handleExecuteStep runs a step. Synchronous execution responds 200
// with the settled step; background execution responds 202 with the
// step still in_progress.
func (s *Service) handleExecuteStep(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	step, err := s.manager.ExecuteStep(r.Context(),
		chi.URLParam(r, "sessionID"), chi.URLParam(r, "stepCode"), req.Inputs)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if s.config.BackgroundExecution {
		status = http.StatusAccepted
	}
	writeJSON(w, status, step)
}

func (s *Service) handleListEvents(w http.ResponseWriter, r *http.Request) {
	page, perPage, err := pageParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	q := r.URL.Query()
	events, pagination, err := s.manager.Events(r.Context(), chi.URLParam(r, "sessionID"), engine.EventQuery{
		Since:     q.Get("since"),
		EventType: q.Get("event_type"),
		Page:      page,
		PerPage:   perPage,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listBody{Items: events, Pagination: pagination})
}

// handleStreamEvents serves the SSE stream of a session's event log.
func (s *Service) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := s.manager.Get(r.Context(), sessionID); err != nil {
		writeError(w, err)
		return
	}
	s.broadcaster.Stream(w, r, sessionID)
}

func (s *Service) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	page, perPage, err := pageParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	artifacts, pagination, err := s.manager.Artifacts(r.Context(),
		chi.URLParam(r, "sessionID"),
		models.ArtifactType(r.URL.Query().Get("artifact_type")),
		page, perPage)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listBody{Items: artifacts, Pagination: pagination})
}
