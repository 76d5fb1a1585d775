package service

import (
	"github.com/shaharia-lab/taskrunner/internal/logfilter"
	"github.com/shaharia-lab/taskrunner/internal/storage"
)

// LogService projects the rolling task log for the API layer: the whole
// log, one task's view, or one group's view (its own tagged lines plus
// every member task's lines, unioned and sorted).
type LogService struct {
	reader *logfilter.Reader
	store  *storage.Store
}

// NewLogService returns a LogService that reads the task log through reader
// and resolves group membership through store.
func NewLogService(reader *logfilter.Reader, store *storage.Store) *LogService {
	return &LogService{reader: reader, store: store}
}

// Get returns the log entries for id (a task or group id), or every entry
// if id is empty.
func (s *LogService) Get(id string, lines, days int) ([]logfilter.Entry, error) {
	if id == "" {
		return s.reader.All(lines, days)
	}

	if t := s.store.GetTask(id); t != nil {
		return s.reader.ForTask(id, t.Name, lines, days)
	}

	if g := s.store.GetGroup(id); g != nil {
		names := make(map[string]string, len(g.TaskIDs))
		for _, taskID := range g.TaskIDs {
			if t := s.store.GetTask(taskID); t != nil {
				names[taskID] = t.Name
			}
		}
		return s.reader.ForGroup(id, g.Name, g.TaskIDs, names, lines, days)
	}

	return nil, &NotFoundError{Resource: "task_or_group", ID: id}
}

// Clear truncates the log, scoped to id when provided.
func (s *LogService) Clear(id string, days int) error {
	if id == "" {
		return s.reader.Clear(days)
	}
	if s.store.GetTask(id) == nil && s.store.GetGroup(id) == nil {
		return &NotFoundError{Resource: "task_or_group", ID: id}
	}
	return s.reader.ClearTagged(id, days)
}
