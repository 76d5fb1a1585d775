package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shaharia-lab/taskrunner/internal/storage"
)

type createGroupRequest struct {
	Name    string   `json:"name"`
	TaskIDs []string `json:"task_ids"`
	storage.ScheduleFields
}

type groupMemberRequest struct {
	TaskID string `json:"task_id"`
}

type reorderRequest struct {
	TaskIDs []string `json:"task_ids"`
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"task_groups": s.groups.List()})
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var body createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidJSONBody)
		return
	}

	created, err := s.groups.Create(body.Name, body.TaskIDs, body.ScheduleFields)
	if err != nil {
		httpErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, created)
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	g, err := s.groups.Get(id)
	if err != nil {
		httpErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidJSONBody)
		return
	}

	updated, err := s.groups.Update(id, body.Name, body.ScheduleFields)
	if err != nil {
		httpErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.groups.Delete(id); err != nil {
		httpErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleAddGroupMember(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body groupMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidJSONBody)
		return
	}

	g, err := s.groups.AddMember(id, body.TaskID)
	if err != nil {
		httpErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleRemoveGroupMember(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body groupMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidJSONBody)
		return
	}

	g, err := s.groups.RemoveMember(id, body.TaskID)
	if err != nil {
		httpErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleReorderGroup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidJSONBody)
		return
	}

	g, err := s.groups.Reorder(id, body.TaskIDs)
	if err != nil {
		httpErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleArmGroup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var override storage.ScheduleFields
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&override); err != nil {
			writeError(w, http.StatusBadRequest, errInvalidJSONBody)
			return
		}
	}

	if err := s.groups.Arm(id, override); err != nil {
		httpErr(w, err)
		return
	}

	g, err := s.groups.Get(id)
	if err != nil {
		httpErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleDisarmGroup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.groups.Disarm(id); err != nil {
		httpErr(w, err)
		return
	}

	g, err := s.groups.Get(id)
	if err != nil {
		httpErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleExecuteGroup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	g, err := s.groups.ExecuteNow(id)
	if err != nil {
		httpErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "executing", "task_group": g})
}
