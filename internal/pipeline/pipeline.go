// Package pipeline implements the sequential TaskGroup step runner: the
// per-run context, the template resolver hookup, and the
// running/completed/error terminal states. Grounded on the original task
// runner's _execute_next_task_in_group / execute_task_group_now, expressed
// as an explicit loop since Go has no tail-call elimination to rely on for
// an unbounded recursive step chain.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaharia-lab/taskrunner/internal/registry"
	"github.com/shaharia-lab/taskrunner/internal/storage"
	"github.com/shaharia-lab/taskrunner/internal/template"
)

// ErrAlreadyRunning is returned by ExecuteNow when the group is already mid-run.
var ErrAlreadyRunning = errors.New("conflict: task group is already running")

// Executor runs TaskGroups against a Store and Registry.
type Executor struct {
	store    *storage.Store
	registry *registry.Registry
	resolver *template.Resolver
	logger   *slog.Logger

	mu      sync.Mutex
	running map[string]bool

	// OnComplete, when set, is notified with every run's terminal status;
	// used by callers that want pipeline outcome counts without the
	// pipeline package importing a metrics package directly.
	OnComplete func(status storage.GroupStatus)
}

// New returns an Executor.
func New(store *storage.Store, reg *registry.Registry, resolver *template.Resolver, logger *slog.Logger) *Executor {
	return &Executor{
		store:    store,
		registry: reg,
		resolver: resolver,
		logger:   logger,
		running:  make(map[string]bool),
	}
}

// Run executes groupID's pipeline exactly once, synchronously. It is the
// entry point for scheduled firings, called from a scheduler worker.
func (e *Executor) Run(ctx context.Context, groupID string) {
	if !e.tryMarkRunning(groupID) {
		e.logger.Warn("pipeline: group already running, skipping firing", "group_id", groupID)
		return
	}
	defer e.markNotRunning(groupID)

	group := e.beginRun(groupID)
	if group == nil {
		e.logger.Error("pipeline: group vanished before run start", "group_id", groupID)
		return
	}
	e.runLoop(ctx, groupID, group)
}

// beginRun marks groupID running and resets its per-run bookkeeping. It is
// split out from Run so ExecuteNow can flip the status synchronously,
// before the caller's request returns, and run the steps themselves on a
// detached worker.
func (e *Executor) beginRun(groupID string) *storage.TaskGroup {
	now := time.Now().UTC()
	return e.store.MutateGroup(groupID, func(g *storage.TaskGroup) {
		g.LastRun = &now
		g.RunCount++
		g.CurrentTaskIndex = 0
		g.Context = map[string]any{}
		g.Status = storage.GroupRunning
	})
}

func (e *Executor) runLoop(ctx context.Context, groupID string, group *storage.TaskGroup) {
	runCtx := map[string]any{}
	for i, taskID := range group.TaskIDs {
		if !e.runStep(ctx, groupID, i, taskID, runCtx) {
			e.store.MutateGroup(groupID, func(g *storage.TaskGroup) {
				g.Status = storage.GroupError
				g.CurrentTaskIndex = i
				g.Context = map[string]any{}
			})
			e.onRunComplete(storage.GroupError)
			return
		}
		e.store.MutateGroup(groupID, func(g *storage.TaskGroup) {
			g.CurrentTaskIndex = i + 1
		})
		e.store.MergeContext(groupID, runCtx)
	}

	e.store.MutateGroup(groupID, func(g *storage.TaskGroup) {
		g.Status = storage.GroupCompleted
		g.Context = map[string]any{}
	})
	e.onRunComplete(storage.GroupCompleted)
}

func (e *Executor) onRunComplete(status storage.GroupStatus) {
	if e.OnComplete != nil {
		e.OnComplete(status)
	}
}

// ExecuteNow marks groupID running synchronously, so the caller's response
// reflects it immediately, then runs the steps on a detached worker. It
// rejects if the group is already running.
func (e *Executor) ExecuteNow(groupID string) error {
	if !e.tryMarkRunning(groupID) {
		return ErrAlreadyRunning
	}

	group := e.beginRun(groupID)
	if group == nil {
		e.markNotRunning(groupID)
		return fmt.Errorf("task group %q vanished before run start", groupID)
	}

	go func() {
		defer e.markNotRunning(groupID)
		e.runLoop(context.Background(), groupID, group)
	}()
	return nil
}

func (e *Executor) tryMarkRunning(groupID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running[groupID] {
		return false
	}
	e.running[groupID] = true
	return true
}

func (e *Executor) markNotRunning(groupID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, groupID)
}

// runStep executes one pipeline step, writing its result into runCtx.
// Returns false on any terminal failure (missing task, missing callable,
// invocation error).
func (e *Executor) runStep(ctx context.Context, groupID string, index int, taskID string, runCtx map[string]any) bool {
	task := e.store.GetTask(taskID)
	if task == nil {
		e.logger.Error("pipeline: step references missing task", "group_id", groupID, "index", index, "task_id", taskID)
		return false
	}

	fn, _, ok := e.registry.Resolve(task.Function)
	if !ok {
		e.logger.Error("pipeline: step references unknown callable",
			"group_id", groupID, "task_id", taskID, "function", task.Function)
		return false
	}

	args := e.prepareArgs(task, runCtx)

	result, err := fn(ctx, args)
	if err != nil {
		e.logger.Error("pipeline: step invocation failed",
			"group_id", groupID, "task_id", taskID, "function", task.Function, "error", err)
		return false
	}

	runCtx["last_result"] = result
	runCtx[fmt.Sprintf("task_%s_result", taskID)] = result

	if task.Function == registry.ReservedHTTPRequest {
		recordHTTPResult(runCtx, taskID, result)
	}

	e.logger.Info("pipeline: step completed",
		"group_id", groupID, "task_id", taskID, "function", task.Function)
	return true
}

func (e *Executor) prepareArgs(task *storage.Task, runCtx map[string]any) map[string]any {
	if task.Function == registry.ReservedHTTPRequest {
		args := e.resolver.ResolveHTTPArgs(task.Args, runCtx)
		args["task_id"] = task.ID
		return args
	}

	resolved := e.resolver.Resolve(map[string]any(task.Args), runCtx)
	m, _ := resolved.(map[string]any)
	if m == nil {
		m = map[string]any{}
	}
	return m
}

// recordHTTPResult attempts to parse the http_request result's content as
// JSON; on success it records last_json/task_<id>_json, on failure it
// records last_content/task_<id>_content, per the pipeline's step 2.f rule.
func recordHTTPResult(runCtx map[string]any, taskID string, result any) {
	m, ok := result.(map[string]any)
	if !ok {
		return
	}
	content, _ := m["content"].(string)

	var parsed any
	if content != "" && json.Unmarshal([]byte(content), &parsed) == nil {
		runCtx["last_json"] = parsed
		runCtx[fmt.Sprintf("task_%s_json", taskID)] = parsed
		return
	}
	runCtx["last_content"] = content
	runCtx[fmt.Sprintf("task_%s_content", taskID)] = content
}
