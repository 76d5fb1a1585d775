package service_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/taskrunner/internal/registry"
	"github.com/shaharia-lab/taskrunner/internal/scheduler"
	"github.com/shaharia-lab/taskrunner/internal/service"
	"github.com/shaharia-lab/taskrunner/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTaskService(t *testing.T) (*service.TaskService, *storage.Store, *registry.Registry, *scheduler.Engine) {
	t.Helper()
	store := storage.New()
	reg := registry.New()
	sched := scheduler.New(testLogger(), 4)
	t.Cleanup(sched.Stop)
	return service.NewTaskService(store, reg, sched, testLogger()), store, reg, sched
}

func intp(i int) *int { return &i }

func TestTaskService_Create_RejectsUnknownFunction(t *testing.T) {
	svc, _, _, _ := newTaskService(t)
	_, err := svc.Create("t1", "does_not_exist", nil, storage.ScheduleFields{})
	var verr *service.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestTaskService_CreateGetList(t *testing.T) {
	svc, _, reg, _ := newTaskService(t)
	reg.Register("noop", "", nil, func(context.Context, map[string]any) (any, error) { return nil, nil })

	created, err := svc.Create("t1", "noop", map[string]any{"a": 1}, storage.ScheduleFields{})
	require.NoError(t, err)
	assert.Equal(t, storage.TaskCreated, created.Status)

	got, err := svc.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "t1", got.Name)

	assert.Len(t, svc.List(), 1)

	_, err = svc.Get("missing")
	var nferr *service.NotFoundError
	require.ErrorAs(t, err, &nferr)
}

func TestTaskService_ArmAndDisarm(t *testing.T) {
	svc, _, reg, _ := newTaskService(t)
	reg.Register("noop", "", nil, func(context.Context, map[string]any) (any, error) { return nil, nil })

	created, err := svc.Create("t1", "noop", nil, storage.ScheduleFields{Interval: intp(3600)})
	require.NoError(t, err)

	require.NoError(t, svc.Arm(created.ID, storage.ScheduleFields{}))

	got, err := svc.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.TaskRunning, got.Status)
	assert.NotEmpty(t, got.JobID)

	err = svc.Arm(created.ID, storage.ScheduleFields{})
	var cerr *service.ConflictError
	require.ErrorAs(t, err, &cerr)

	require.NoError(t, svc.Disarm(created.ID))
	got, err = svc.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.TaskStopped, got.Status)

	err = svc.Disarm(created.ID)
	require.ErrorAs(t, err, &cerr)
}

func TestTaskService_Arm_InvalidTrigger(t *testing.T) {
	svc, _, reg, _ := newTaskService(t)
	reg.Register("noop", "", nil, func(context.Context, map[string]any) (any, error) { return nil, nil })

	created, err := svc.Create("t1", "noop", nil, storage.ScheduleFields{})
	require.NoError(t, err)

	err = svc.Arm(created.ID, storage.ScheduleFields{})
	var verr *service.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestTaskService_Arm_AcceptsScheduleOverride(t *testing.T) {
	svc, _, reg, _ := newTaskService(t)
	reg.Register("noop", "", nil, func(context.Context, map[string]any) (any, error) { return nil, nil })

	created, err := svc.Create("t1", "noop", nil, storage.ScheduleFields{})
	require.NoError(t, err)

	require.NoError(t, svc.Arm(created.ID, storage.ScheduleFields{Interval: intp(3600)}))

	got, err := svc.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.TaskRunning, got.Status)
	require.NotNil(t, got.Interval)
	assert.Equal(t, 3600, *got.Interval)
}

func TestTaskService_Execute_RunsAndRejectsOverlap(t *testing.T) {
	svc, _, reg, _ := newTaskService(t)
	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	reg.Register("slow", "", nil, func(context.Context, map[string]any) (any, error) {
		close(started)
		<-release
		return "ok", nil
	})

	created, err := svc.Create("t1", "slow", nil, storage.ScheduleFields{})
	require.NoError(t, err)

	go func() {
		_, execErr := svc.Execute(created.ID)
		done <- execErr
	}()
	<-started

	_, err = svc.Execute(created.ID)
	var cerr *service.ConflictError
	require.ErrorAs(t, err, &cerr)

	close(release)
	require.NoError(t, <-done)
}

func TestTaskService_Execute_ReturnsStringifiedResult(t *testing.T) {
	svc, _, reg, _ := newTaskService(t)
	reg.Register("greet", "", nil, func(context.Context, map[string]any) (any, error) { return 42, nil })

	created, err := svc.Create("t1", "greet", nil, storage.ScheduleFields{})
	require.NoError(t, err)

	result, err := svc.Execute(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "42", result)
}

func TestTaskService_Execute_WrapsCallableFailure(t *testing.T) {
	svc, _, reg, _ := newTaskService(t)
	reg.Register("boom", "", nil, func(context.Context, map[string]any) (any, error) {
		return nil, assert.AnError
	})

	created, err := svc.Create("t1", "boom", nil, storage.ScheduleFields{})
	require.NoError(t, err)

	_, err = svc.Execute(created.ID)
	var uerr *service.UpstreamFailureError
	require.ErrorAs(t, err, &uerr)
}

func TestTaskService_Delete_CascadesAndDisarms(t *testing.T) {
	svc, store, reg, _ := newTaskService(t)
	reg.Register("noop", "", nil, func(context.Context, map[string]any) (any, error) { return nil, nil })

	created, err := svc.Create("t1", "noop", nil, storage.ScheduleFields{Interval: intp(3600)})
	require.NoError(t, err)
	require.NoError(t, svc.Arm(created.ID, storage.ScheduleFields{}))

	store.CreateGroup(&storage.TaskGroup{ID: "g1", Name: "g1", TaskIDs: []string{created.ID}, CreatedAt: time.Now()})

	affected, err := svc.Delete(created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"g1"}, affected)

	g := store.GetGroup("g1")
	require.NotNil(t, g)
	assert.Empty(t, g.TaskIDs)

	_, err = svc.Get(created.ID)
	var nferr *service.NotFoundError
	require.ErrorAs(t, err, &nferr)
}

func TestTaskService_Execute_InjectsTaskIDForHTTPRequest(t *testing.T) {
	svc, _, reg, _ := newTaskService(t)
	var seenArgs map[string]any
	reg.Register(registry.ReservedHTTPRequest, "", nil, func(_ context.Context, args map[string]any) (any, error) {
		seenArgs = args
		return nil, nil
	})

	created, err := svc.Create("t1", registry.ReservedHTTPRequest, map[string]any{"url": "http://example.com"}, storage.ScheduleFields{})
	require.NoError(t, err)

	_, err = svc.Execute(created.ID)
	require.NoError(t, err)

	require.NotNil(t, seenArgs)
	assert.Equal(t, created.ID, seenArgs["task_id"], "standalone http_request tasks must carry task_id for log correlation")
	assert.Equal(t, "http://example.com", seenArgs["url"], "original args must be preserved")
}

func TestTaskService_Callables(t *testing.T) {
	svc, _, reg, _ := newTaskService(t)
	reg.Register("a", "", nil, func(context.Context, map[string]any) (any, error) { return nil, nil })
	reg.Register("b", "", nil, func(context.Context, map[string]any) (any, error) { return nil, nil })

	descs := svc.Callables()
	require.Len(t, descs, 2)
	assert.Equal(t, "a", descs[0].Name)
}
