package download

import (
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/osa030/saavnbox/internal/domain/track"
)

// ErrUnknownTask is returned for task IDs that were never issued.
var ErrUnknownTask = errors.New("unknown download task")

// Status is the state of a download task.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Task is a snapshot of a download.
type Task struct {
	ID         string    `json:"id"`
	TrackID    string    `json:"trackId"`
	Title      string    `json:"title"`
	URI        string    `json:"uri"`
	Path       string    `json:"path,omitempty"`
	Status     Status    `json:"status"`
	Bytes      int64     `json:"bytes"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}

// Done reports whether the task has finished.
func (t Task) Done() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// TaskRegistry tracks download tasks with thread-safe access.
type TaskRegistry struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

// NewTaskRegistry creates a new task registry.
func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{
		tasks: make(map[string]*Task),
	}
}

// Create registers a queued task for the track and returns its ID.
func (r *TaskRegistry) Create(t track.Track, now time.Time) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.New().String()
	r.tasks[id] = &Task{
		ID:        id,
		TrackID:   t.ID,
		Title:     t.Title,
		URI:       t.PlaybackURI,
		Status:    StatusQueued,
		CreatedAt: now,
	}
	return id
}

// Get retrieves a task snapshot by ID.
func (r *TaskRegistry) Get(id string) (Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[id]
	if !ok {
		return Task{}, ErrUnknownTask
	}
	return *task, nil
}

// Update applies fn to the task under the registry lock.
func (r *TaskRegistry) Update(id string, fn func(t *Task)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return ErrUnknownTask
	}
	fn(task)
	return nil
}

// List returns all tasks, oldest first.
func (r *TaskRegistry) List() []Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tasks := make([]Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		tasks = append(tasks, *t)
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks
}

// Prune removes finished tasks that ended before cutoff and returns how many were removed.
func (r *TaskRegistry) Prune(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, t := range r.tasks {
		if t.Done() && t.FinishedAt.Before(cutoff) {
			delete(r.tasks, id)
			removed++
		}
	}
	return removed
}
