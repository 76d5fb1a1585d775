package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shaharia-lab/taskrunner/internal/pipeline"
	"github.com/shaharia-lab/taskrunner/internal/scheduler"
	"github.com/shaharia-lab/taskrunner/internal/storage"
	"github.com/shaharia-lab/taskrunner/internal/trigger"
)

func groupJobID(id string) string { return "group:" + id }

// GroupService implements the control-plane operations for task groups:
// CRUD, membership, reorder, arm/disarm, and execute-now. Execution itself
// is delegated to a pipeline.Executor.
type GroupService struct {
	store     *storage.Store
	scheduler *scheduler.Engine
	executor  *pipeline.Executor
	logger    *slog.Logger
}

// NewGroupService returns a GroupService.
func NewGroupService(store *storage.Store, sched *scheduler.Engine, exec *pipeline.Executor, logger *slog.Logger) *GroupService {
	return &GroupService{store: store, scheduler: sched, executor: exec, logger: logger}
}

// List returns every task group, oldest first, with context values
// summarized for display.
func (s *GroupService) List() []*storage.TaskGroup {
	groups := s.store.ListGroups()
	for _, g := range groups {
		summarizeGroupContext(g)
	}
	return groups
}

// Get returns one task group by id, with context values summarized for
// display.
func (s *GroupService) Get(id string) (*storage.TaskGroup, error) {
	g := s.store.GetGroup(id)
	if g == nil {
		return nil, &NotFoundError{Resource: "task_group", ID: id}
	}
	summarizeGroupContext(g)
	return g, nil
}

// Create validates member task ids and stores a new group.
func (s *GroupService) Create(name string, taskIDs []string, sched storage.ScheduleFields) (*storage.TaskGroup, error) {
	if err := s.validateMembers(taskIDs); err != nil {
		return nil, err
	}

	g := &storage.TaskGroup{
		ID:             uuid.NewString(),
		Name:           name,
		CreatedAt:      time.Now().UTC(),
		Status:         storage.GroupCreated,
		TaskIDs:        append([]string{}, taskIDs...),
		ScheduleFields: sched,
	}
	s.store.CreateGroup(g)
	s.logger.Info("task group created", "group_id", g.ID, "name", name, "members", len(taskIDs))
	summarizeGroupContext(g)
	return g, nil
}

// Update replaces a group's name and schedule in place. Membership is
// changed through AddMember/RemoveMember/Reorder, not here.
func (s *GroupService) Update(id, name string, sched storage.ScheduleFields) (*storage.TaskGroup, error) {
	g := s.store.MutateGroup(id, func(g *storage.TaskGroup) {
		g.Name = name
		g.ScheduleFields = sched
	})
	if g == nil {
		return nil, &NotFoundError{Resource: "task_group", ID: id}
	}
	summarizeGroupContext(g)
	return g, nil
}

// Delete removes a group, disarming it first if armed.
func (s *GroupService) Delete(id string) error {
	g := s.store.GetGroup(id)
	if g == nil {
		return &NotFoundError{Resource: "task_group", ID: id}
	}
	if g.JobID != "" {
		s.scheduler.Disarm(g.JobID)
	}
	s.store.DeleteGroup(id)
	s.logger.Info("task group deleted", "group_id", id)
	return nil
}

// AddMember appends taskID to the group's ordered member list.
func (s *GroupService) AddMember(groupID, taskID string) (*storage.TaskGroup, error) {
	if !s.store.TaskExists(taskID) {
		return nil, &ValidationError{Field: "task_id", Message: fmt.Sprintf("references unknown task id %q", taskID)}
	}
	g := s.store.MutateGroup(groupID, func(g *storage.TaskGroup) {
		g.TaskIDs = append(g.TaskIDs, taskID)
	})
	if g == nil {
		return nil, &NotFoundError{Resource: "task_group", ID: groupID}
	}
	summarizeGroupContext(g)
	return g, nil
}

// RemoveMember removes every occurrence of taskID from the group's member
// list, shifting CurrentTaskIndex back if it now points past the list end.
func (s *GroupService) RemoveMember(groupID, taskID string) (*storage.TaskGroup, error) {
	g := s.store.MutateGroup(groupID, func(g *storage.TaskGroup) {
		kept := g.TaskIDs[:0]
		for _, id := range g.TaskIDs {
			if id != taskID {
				kept = append(kept, id)
			}
		}
		g.TaskIDs = kept
		if g.CurrentTaskIndex > len(g.TaskIDs) {
			g.CurrentTaskIndex = len(g.TaskIDs)
		}
	})
	if g == nil {
		return nil, &NotFoundError{Resource: "task_group", ID: groupID}
	}
	summarizeGroupContext(g)
	return g, nil
}

// Reorder replaces the group's task order. order must be a permutation of
// the group's current task ids; anything else is an invalid_argument.
func (s *GroupService) Reorder(groupID string, order []string) (*storage.TaskGroup, error) {
	existing := s.store.GetGroup(groupID)
	if existing == nil {
		return nil, &NotFoundError{Resource: "task_group", ID: groupID}
	}
	if !isPermutation(existing.TaskIDs, order) {
		return nil, &ValidationError{Field: "task_ids", Message: "reorder must be a permutation of the current task ids"}
	}

	g := s.store.MutateGroup(groupID, func(g *storage.TaskGroup) {
		g.TaskIDs = append([]string{}, order...)
	})
	summarizeGroupContext(g)
	return g, nil
}

// Arm schedules the group's pipeline against its trigger. A caller may
// supply a schedule override (the request body of POST .../start); any
// field set there replaces the group's stored schedule before arming.
func (s *GroupService) Arm(id string, override storage.ScheduleFields) error {
	g := s.store.GetGroup(id)
	if g == nil {
		return &NotFoundError{Resource: "task_group", ID: id}
	}
	if g.JobID != "" {
		return &ConflictError{Resource: "task_group", ID: id, Reason: "already armed"}
	}

	sched := g.ScheduleFields
	if hasOverride(override) {
		sched = override
	}

	trig, err := parseSchedule(sched)
	if err != nil {
		return &ValidationError{Field: "schedule", Message: err.Error()}
	}

	jobID := groupJobID(id)
	if err := s.scheduler.Arm(jobID, trig, func(ctx context.Context) { s.executor.Run(ctx, id) }); err != nil {
		return &ConflictError{Resource: "task_group", ID: id, Reason: err.Error()}
	}

	s.store.MutateGroup(id, func(g *storage.TaskGroup) {
		g.JobID = jobID
		g.ScheduleFields = sched
		if next, ok := s.scheduler.Inspect(jobID); ok {
			g.NextRun = &next
		}
	})
	return nil
}

// Disarm cancels a group's future firings.
func (s *GroupService) Disarm(id string) error {
	g := s.store.GetGroup(id)
	if g == nil {
		return &NotFoundError{Resource: "task_group", ID: id}
	}
	if g.JobID == "" {
		return &ConflictError{Resource: "task_group", ID: id, Reason: "not currently running"}
	}

	s.scheduler.Disarm(g.JobID)
	s.store.MutateGroup(id, func(g *storage.TaskGroup) {
		g.JobID = ""
		g.NextRun = nil
		g.Status = storage.GroupStopped
	})
	return nil
}

// ExecuteNow starts a pipeline run on a detached worker and returns
// immediately with the group's state at dispatch time. It rejects if the
// group is already running.
func (s *GroupService) ExecuteNow(id string) (*storage.TaskGroup, error) {
	if s.store.GetGroup(id) == nil {
		return nil, &NotFoundError{Resource: "task_group", ID: id}
	}
	if err := s.executor.ExecuteNow(id); err != nil {
		if errors.Is(err, pipeline.ErrAlreadyRunning) {
			return nil, &ConflictError{Resource: "task_group", ID: id, Reason: "already running"}
		}
		return nil, &InternalError{Message: "failed to execute task group", Cause: err}
	}
	g := s.store.GetGroup(id)
	summarizeGroupContext(g)
	return g, nil
}

func (s *GroupService) validateMembers(taskIDs []string) error {
	for _, id := range taskIDs {
		if !s.store.TaskExists(id) {
			return &ValidationError{Field: "task_ids", Message: fmt.Sprintf("references unknown task id %q", id)}
		}
	}
	return nil
}

func parseSchedule(sched storage.ScheduleFields) (trigger.Trigger, error) {
	return trigger.Parse(trigger.Spec{
		Interval:  derefInt(sched.Interval),
		Cron:      derefStr(sched.Cron),
		StartTime: sched.StartTime,
		EndTime:   sched.EndTime,
	})
}

// summarizeGroupContext replaces g.Context's values with short, display-safe
// summaries in place, so API responses never ship an HTTP response body or a
// large JSON blob verbatim. g is always a store-owned clone (GetGroup,
// ListGroups, and MutateGroup all return Clone()), so mutating it here never
// touches live state. Grounded on the original task runner's
// TaskGroup.to_dict, which applies the same per-suffix rules before handing
// context back to a caller.
func summarizeGroupContext(g *storage.TaskGroup) {
	if g == nil || len(g.Context) == 0 {
		return
	}
	for k, v := range g.Context {
		g.Context[k] = summarizeContextValue(k, v)
	}
}

func summarizeContextValue(key string, value any) any {
	switch {
	case strings.HasSuffix(key, "_json"):
		if m, ok := value.(map[string]any); ok {
			keys := make([]string, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			return fmt.Sprintf("JSON object with %d field(s): %s", len(m), strings.Join(keys, ", "))
		}
	case strings.HasSuffix(key, "_content"):
		if s, ok := value.(string); ok && len(s) > 100 {
			return s[:100] + "..."
		}
	case strings.HasSuffix(key, "_result"):
		if m, ok := value.(map[string]any); ok {
			if status, ok := m["status_code"]; ok {
				return fmt.Sprintf("HTTP response, status code: %v", status)
			}
			return fmt.Sprintf("result object with %d field(s)", len(m))
		}
	}
	return fmt.Sprintf("%v", value)
}

func isPermutation(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string{}, a...)
	sb := append([]string{}, b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}
