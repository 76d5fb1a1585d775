package storage_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/taskrunner/internal/storage"
)

func newTask(id string) *storage.Task {
	return &storage.Task{
		ID:        id,
		Name:      "t-" + id,
		Function:  "hello_world",
		Args:      map[string]any{"name": "world"},
		Status:    storage.TaskCreated,
		CreatedAt: time.Now(),
	}
}

func TestStore_CreateGetTask_ReturnsSnapshot(t *testing.T) {
	s := storage.New()
	s.CreateTask(newTask("t1"))

	got := s.GetTask("t1")
	require.NotNil(t, got)

	got.Name = "mutated"
	again := s.GetTask("t1")
	assert.Equal(t, "t-t1", again.Name, "caller mutation must not leak into the store")
}

func TestStore_GetTask_Missing(t *testing.T) {
	s := storage.New()
	assert.Nil(t, s.GetTask("nope"))
}

func TestStore_ListTasks_OrderedByCreation(t *testing.T) {
	s := storage.New()
	a := newTask("a")
	a.CreatedAt = time.Now()
	s.CreateTask(a)
	b := newTask("b")
	b.CreatedAt = a.CreatedAt.Add(time.Second)
	s.CreateTask(b)

	tasks := s.ListTasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, "a", tasks[0].ID)
	assert.Equal(t, "b", tasks[1].ID)
}

func TestStore_MutateTask_AppliesUnderLock(t *testing.T) {
	s := storage.New()
	s.CreateTask(newTask("t1"))

	updated := s.MutateTask("t1", func(t *storage.Task) {
		t.RunCount++
		t.Status = storage.TaskRunning
	})
	require.NotNil(t, updated)
	assert.Equal(t, 1, updated.RunCount)
	assert.Equal(t, storage.TaskRunning, updated.Status)
}

func TestStore_MutateTask_Missing(t *testing.T) {
	s := storage.New()
	assert.Nil(t, s.MutateTask("nope", func(*storage.Task) {}))
}

func TestStore_DeleteTask_CascadesIntoGroups(t *testing.T) {
	s := storage.New()
	s.CreateTask(newTask("a"))
	s.CreateTask(newTask("b"))
	s.CreateGroup(&storage.TaskGroup{ID: "g1", Name: "g1", TaskIDs: []string{"a", "b"}})
	s.CreateGroup(&storage.TaskGroup{ID: "g2", Name: "g2", TaskIDs: []string{"a"}, CurrentTaskIndex: 1})
	s.CreateGroup(&storage.TaskGroup{ID: "g3", Name: "g3", TaskIDs: []string{"b"}})

	affected := s.DeleteTask("a")
	assert.Equal(t, []string{"g1", "g2"}, affected)

	g1 := s.GetGroup("g1")
	assert.Equal(t, []string{"b"}, g1.TaskIDs)

	g2 := s.GetGroup("g2")
	assert.Empty(t, g2.TaskIDs)
	assert.Equal(t, 0, g2.CurrentTaskIndex, "cursor past the removed step must shift back")

	g3 := s.GetGroup("g3")
	assert.Equal(t, []string{"b"}, g3.TaskIDs, "unrelated group is untouched")

	assert.Nil(t, s.GetTask("a"))
}

func TestStore_DeleteTask_Missing(t *testing.T) {
	s := storage.New()
	assert.Nil(t, s.DeleteTask("nope"))
}

func TestStore_GroupLifecycle(t *testing.T) {
	s := storage.New()
	s.CreateGroup(&storage.TaskGroup{ID: "g1", Name: "g1"})

	require.NotNil(t, s.GetGroup("g1"))

	updated := s.MutateGroup("g1", func(g *storage.TaskGroup) {
		g.Status = storage.GroupRunning
	})
	require.NotNil(t, updated)
	assert.Equal(t, storage.GroupRunning, updated.Status)

	assert.True(t, s.DeleteGroup("g1"))
	assert.False(t, s.DeleteGroup("g1"))
	assert.Nil(t, s.GetGroup("g1"))
}

func TestStore_TaskExists(t *testing.T) {
	s := storage.New()
	s.CreateTask(newTask("a"))
	assert.True(t, s.TaskExists("a"))
	assert.False(t, s.TaskExists("b"))
}

func TestStore_GetContext_Missing(t *testing.T) {
	s := storage.New()
	assert.Nil(t, s.GetContext("nope"))
}

func TestStore_MergeContext_AccumulatesAndIsObservable(t *testing.T) {
	s := storage.New()
	s.CreateGroup(&storage.TaskGroup{ID: "g1", Name: "g1"})

	s.MergeContext("g1", map[string]any{"last_result": "one"})
	s.MergeContext("g1", map[string]any{"last_content": "two"})

	ctx := s.GetContext("g1")
	require.NotNil(t, ctx)
	assert.Equal(t, "one", ctx["last_result"])
	assert.Equal(t, "two", ctx["last_content"])

	ctx["last_result"] = "mutated"
	again := s.GetContext("g1")
	assert.Equal(t, "one", again["last_result"], "caller mutation must not leak into the store")
}

func TestStore_ClearContext_Empties(t *testing.T) {
	s := storage.New()
	s.CreateGroup(&storage.TaskGroup{ID: "g1", Name: "g1"})
	s.MergeContext("g1", map[string]any{"last_result": "one"})

	g := s.ClearContext("g1")
	require.NotNil(t, g)
	assert.Empty(t, s.GetContext("g1"))
}
