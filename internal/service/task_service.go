// Package service implements the control-plane business logic: task and
// task-group CRUD, arm/disarm against the scheduler, and the error
// taxonomy translated to HTTP status by the api package. Grounded on the
// teacher's service layer (one struct per aggregate, explicit
// NotFoundError/ConflictError/ValidationError), generalized from the
// agento task-scheduling domain to this one.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaharia-lab/taskrunner/internal/registry"
	"github.com/shaharia-lab/taskrunner/internal/scheduler"
	"github.com/shaharia-lab/taskrunner/internal/storage"
	"github.com/shaharia-lab/taskrunner/internal/trigger"
)

func taskJobID(id string) string { return "task:" + id }

// TaskService implements the control-plane operations for standalone
// tasks: CRUD, arm/disarm, and execute-now.
type TaskService struct {
	store     *storage.Store
	registry  *registry.Registry
	scheduler *scheduler.Engine
	logger    *slog.Logger

	mu      sync.Mutex
	running map[string]bool
}

// NewTaskService returns a TaskService.
func NewTaskService(store *storage.Store, reg *registry.Registry, sched *scheduler.Engine, logger *slog.Logger) *TaskService {
	return &TaskService{store: store, registry: reg, scheduler: sched, logger: logger, running: make(map[string]bool)}
}

// List returns every task, oldest first.
func (s *TaskService) List() []*storage.Task {
	return s.store.ListTasks()
}

// Get returns one task by id.
func (s *TaskService) Get(id string) (*storage.Task, error) {
	t := s.store.GetTask(id)
	if t == nil {
		return nil, &NotFoundError{Resource: "task", ID: id}
	}
	return t, nil
}

// Create validates and stores a new task. function must name a registered
// callable; the schedule is stored as given and only parsed into a trigger
// when the task is armed.
func (s *TaskService) Create(name, function string, args map[string]any, sched storage.ScheduleFields) (*storage.Task, error) {
	if err := s.validate(function, sched); err != nil {
		return nil, err
	}

	t := &storage.Task{
		ID:             uuid.NewString(),
		Name:           name,
		Function:       function,
		Args:           args,
		Status:         storage.TaskCreated,
		CreatedAt:      time.Now().UTC(),
		ScheduleFields: sched,
	}
	s.store.CreateTask(t)
	s.logger.Info("task created", "task_id", t.ID, "name", name, "function", function)
	return t, nil
}

// Update replaces a task's name, function, args, and schedule in place.
// Live-armed tasks keep running against the new definition: the firing
// closure re-reads the task from the store on every invocation.
func (s *TaskService) Update(id, name, function string, args map[string]any, sched storage.ScheduleFields) (*storage.Task, error) {
	if err := s.validate(function, sched); err != nil {
		return nil, err
	}

	t := s.store.MutateTask(id, func(t *storage.Task) {
		t.Name = name
		t.Function = function
		t.Args = args
		t.ScheduleFields = sched
	})
	if t == nil {
		return nil, &NotFoundError{Resource: "task", ID: id}
	}
	s.logger.Info("task updated", "task_id", id)
	return t, nil
}

// Delete removes a task, disarming it first if armed, and cascades the
// removal into any task group that referenced it.
func (s *TaskService) Delete(id string) ([]string, error) {
	t := s.store.GetTask(id)
	if t == nil {
		return nil, &NotFoundError{Resource: "task", ID: id}
	}
	if t.Status == storage.TaskRunning {
		s.scheduler.Disarm(taskJobID(id))
	}
	affected := s.store.DeleteTask(id)
	s.logger.Info("task deleted", "task_id", id, "affected_groups", affected)
	return affected, nil
}

// Arm schedules the task against its trigger. A caller may supply a
// schedule override (the request body of POST .../start); any field set
// there replaces the task's stored schedule before arming. Arming an
// already-armed task is a conflict.
func (s *TaskService) Arm(id string, override storage.ScheduleFields) error {
	t := s.store.GetTask(id)
	if t == nil {
		return &NotFoundError{Resource: "task", ID: id}
	}
	if t.Status == storage.TaskRunning {
		return &ConflictError{Resource: "task", ID: id, Reason: "already armed"}
	}

	sched := t.ScheduleFields
	if hasOverride(override) {
		sched = override
	}

	trig, err := trigger.Parse(trigger.Spec{
		Interval:  derefInt(sched.Interval),
		Cron:      derefStr(sched.Cron),
		StartTime: sched.StartTime,
		EndTime:   sched.EndTime,
	})
	if err != nil {
		return &ValidationError{Field: "schedule", Message: err.Error()}
	}

	jobID := taskJobID(id)
	if err := s.scheduler.Arm(jobID, trig, func(ctx context.Context) { s.fire(ctx, id) }); err != nil {
		return &ConflictError{Resource: "task", ID: id, Reason: err.Error()}
	}

	s.store.MutateTask(id, func(t *storage.Task) {
		t.Status = storage.TaskRunning
		t.JobID = jobID
		t.ScheduleFields = sched
		if next, ok := s.scheduler.Inspect(jobID); ok {
			t.NextRun = &next
		}
	})
	return nil
}

func hasOverride(s storage.ScheduleFields) bool {
	return s.Interval != nil || s.Cron != nil || s.StartTime != nil || s.EndTime != nil
}

// Disarm cancels a task's future firings. Disarming a task that is not
// currently armed is a conflict, per the idempotent-by-outcome contract:
// issuing it twice always reports the same thing.
func (s *TaskService) Disarm(id string) error {
	t := s.store.GetTask(id)
	if t == nil {
		return &NotFoundError{Resource: "task", ID: id}
	}
	if t.Status != storage.TaskRunning {
		return &ConflictError{Resource: "task", ID: id, Reason: "not currently running"}
	}

	s.scheduler.Disarm(t.JobID)
	s.store.MutateTask(id, func(t *storage.Task) {
		t.Status = storage.TaskStopped
		t.JobID = ""
		t.NextRun = nil
	})
	return nil
}

// Execute runs the task inline, independent of arm state, and returns its
// stringified result. It rejects if the task is already executing.
func (s *TaskService) Execute(id string) (string, error) {
	if s.store.GetTask(id) == nil {
		return "", &NotFoundError{Resource: "task", ID: id}
	}
	if !s.tryMarkRunning(id) {
		return "", &ConflictError{Resource: "task", ID: id, Reason: "already running"}
	}
	defer s.markNotRunning(id)

	result, err := s.invoke(context.Background(), id)
	if err != nil {
		return "", &UpstreamFailureError{Message: fmt.Sprintf("task %q execution failed: %v", id, err)}
	}
	return fmt.Sprintf("%v", result), nil
}

// Callables lists every callable registered for use as a task function.
func (s *TaskService) Callables() []registry.Descriptor {
	return s.registry.List()
}

// validate checks the callable name. Schedule fields are stored as given
// and only validated as a trigger when the task is armed: a task may be
// created before its schedule is finalized, or never armed at all.
func (s *TaskService) validate(function string, _ storage.ScheduleFields) error {
	if function == "" {
		return &ValidationError{Field: "function", Message: "function is required"}
	}
	if _, _, ok := s.registry.Resolve(function); !ok {
		return &ValidationError{Field: "function", Message: fmt.Sprintf("unknown callable %q", function)}
	}
	return nil
}

// fire is the scheduler's on_fire callback: guarded against overlapping
// with another in-flight invocation of the same task, scheduled or manual.
func (s *TaskService) fire(ctx context.Context, id string) {
	if !s.tryMarkRunning(id) {
		s.logger.Warn("task: firing skipped, already running", "task_id", id)
		return
	}
	defer s.markNotRunning(id)
	s.invoke(ctx, id)
}

// invoke resolves and calls the task's callable, recording last_run and
// run_count before the call. Caller must hold the running guard for id.
func (s *TaskService) invoke(ctx context.Context, id string) (any, error) {
	t := s.store.GetTask(id)
	if t == nil {
		return nil, fmt.Errorf("task %q vanished before invocation", id)
	}

	fn, _, ok := s.registry.Resolve(t.Function)
	if !ok {
		return nil, fmt.Errorf("unknown callable %q", t.Function)
	}

	now := time.Now().UTC()
	s.store.MutateTask(id, func(t *storage.Task) {
		t.LastRun = &now
		t.RunCount++
	})

	args := t.Args
	if t.Function == registry.ReservedHTTPRequest {
		args = make(map[string]any, len(t.Args)+1)
		for k, v := range t.Args {
			args[k] = v
		}
		args["task_id"] = t.ID
	}

	result, err := fn(ctx, args)
	if err != nil {
		s.logger.Error("task: invocation failed", "task_id", id, "function", t.Function, "error", err)
	} else {
		s.logger.Info("task: invocation completed", "task_id", id, "function", t.Function)
	}

	if t.JobID != "" {
		if next, ok := s.scheduler.Inspect(t.JobID); ok {
			s.store.MutateTask(id, func(t *storage.Task) { t.NextRun = &next })
		}
	}

	return result, err
}

func (s *TaskService) tryMarkRunning(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[id] {
		return false
	}
	s.running[id] = true
	return true
}

func (s *TaskService) markNotRunning(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, id)
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func derefStr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
