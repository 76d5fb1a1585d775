package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shaharia-lab/taskrunner/internal/storage"
)

type createTaskRequest struct {
	Name     string         `json:"name"`
	Function string         `json:"function"`
	Args     map[string]any `json:"args"`
	storage.ScheduleFields
}

type taskIDResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tasks": s.tasks.List()})
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var body createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidJSONBody)
		return
	}

	created, err := s.tasks.Create(body.Name, body.Function, body.Args, body.ScheduleFields)
	if err != nil {
		httpErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, taskIDResponse{ID: created.ID, Status: "created"})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := s.tasks.Get(id)
	if err != nil {
		httpErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidJSONBody)
		return
	}

	updated, err := s.tasks.Update(id, body.Name, body.Function, body.Args, body.ScheduleFields)
	if err != nil {
		httpErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	affected, err := s.tasks.Delete(id)
	if err != nil {
		httpErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "affected_groups": affected})
}

func (s *Server) handleArmTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var override storage.ScheduleFields
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&override); err != nil {
			writeError(w, http.StatusBadRequest, errInvalidJSONBody)
			return
		}
	}

	if err := s.tasks.Arm(id, override); err != nil {
		httpErr(w, err)
		return
	}

	t, err := s.tasks.Get(id)
	if err != nil {
		httpErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDisarmTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.tasks.Disarm(id); err != nil {
		httpErr(w, err)
		return
	}

	t, err := s.tasks.Get(id)
	if err != nil {
		httpErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleExecuteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := s.tasks.Execute(id)
	if err != nil {
		httpErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "executed", "result": result})
}

func (s *Server) handleListFunctions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"functions": s.tasks.Callables()})
}
