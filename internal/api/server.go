// Package api wires the control-plane services onto an HTTP router.
// Grounded on the teacher's api.Server (one struct holding every service,
// a Mount method registering chi routes, shared writeJSON/writeError/httpErr
// helpers), generalized from agento's domain to tasks and task groups.
package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/shaharia-lab/taskrunner/internal/service"
)

// Route pattern constants to avoid duplication.
const (
	routeTaskByID      = "/tasks/{id}"
	routeGroupByID     = "/task-groups/{id}"
	routeLogsByID      = "/logs/{id}"
	errInvalidJSONBody = "invalid JSON body"
)

// Server holds the control-plane services backing the REST API.
type Server struct {
	tasks  *service.TaskService
	groups *service.GroupService
	logs   *service.LogService
}

// New returns a Server backed by the given services.
func New(tasks *service.TaskService, groups *service.GroupService, logs *service.LogService) *Server {
	return &Server{tasks: tasks, groups: groups, logs: logs}
}

// Mount registers every control-plane route, with a permissive CORS policy
// suited to a locally-served single-page control panel, under r.
func (s *Server) Mount(r chi.Router) {
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/tasks", s.handleListTasks)
		r.Post("/tasks", s.handleCreateTask)
		r.Get(routeTaskByID, s.handleGetTask)
		r.Put(routeTaskByID, s.handleUpdateTask)
		r.Delete(routeTaskByID, s.handleDeleteTask)
		r.Post(routeTaskByID+"/start", s.handleArmTask)
		r.Post(routeTaskByID+"/stop", s.handleDisarmTask)
		r.Post(routeTaskByID+"/execute", s.handleExecuteTask)

		r.Get("/functions", s.handleListFunctions)

		r.Get("/task-groups", s.handleListGroups)
		r.Post("/task-groups", s.handleCreateGroup)
		r.Get(routeGroupByID, s.handleGetGroup)
		r.Put(routeGroupByID, s.handleUpdateGroup)
		r.Delete(routeGroupByID, s.handleDeleteGroup)
		r.Post(routeGroupByID+"/start", s.handleArmGroup)
		r.Post(routeGroupByID+"/stop", s.handleDisarmGroup)
		r.Post(routeGroupByID+"/execute", s.handleExecuteGroup)
		r.Post(routeGroupByID+"/tasks", s.handleAddGroupMember)
		r.Delete(routeGroupByID+"/tasks", s.handleRemoveGroupMember)
		r.Post(routeGroupByID+"/reorder", s.handleReorderGroup)

		r.Get("/logs", s.handleGetLogs)
		r.Get(routeLogsByID, s.handleGetLogs)
		r.Delete("/logs", s.handleClearLogs)
		r.Delete(routeLogsByID, s.handleClearLogs)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON: failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// httpErr translates a service-layer error into the matching HTTP status.
func httpErr(w http.ResponseWriter, err error) {
	switch e := err.(type) {
	case *service.NotFoundError:
		writeError(w, http.StatusNotFound, e.Error())
	case *service.ValidationError:
		writeError(w, http.StatusBadRequest, e.Error())
	case *service.ConflictError:
		writeError(w, http.StatusConflict, e.Error())
	case *service.UpstreamFailureError:
		writeError(w, http.StatusBadGateway, e.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
