package tasks

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a background task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusTimeout   Status = "timeout"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimeout:
		return true
	}
	return false
}

// Error captures a structured task failure: a message plus optional
// diagnostic detail such as a stack trace.
type Error struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Task tracks one background job from submission to its terminal state.
// All state transitions happen under the task's own mutex; a task leaves a
// non-terminal state exactly once.
type Task struct {
	id          string
	name        string
	description string
	userID      string

	mu              sync.Mutex
	status          Status
	createdAt       time.Time
	startedAt       time.Time
	completedAt     time.Time
	progress        float64
	progressMessage string
	result          interface{}
	err             *Error

	cancel context.CancelFunc
	done   chan struct{}
}

func newTask(name, description, userID string) *Task {
	if name == "" {
		name = "background_task"
	}
	if description == "" {
		description = "Background task"
	}
	return &Task{
		id:          uuid.NewString(),
		name:        name,
		description: description,
		userID:      userID,
		status:      StatusPending,
		createdAt:   time.Now(),
		done:        make(chan struct{}),
	}
}

// ID returns the task's globally unique identifier.
func (t *Task) ID() string { return t.id }

// Name returns the task name given at submission.
func (t *Task) Name() string { return t.name }

// Description returns the task description given at submission.
func (t *Task) Description() string { return t.description }

// UserID returns the owning user id, or the empty string.
func (t *Task) UserID() string { return t.userID }

// Status returns the task's current status.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Done returns a channel that is closed when the task reaches a terminal
// state.
func (t *Task) Done() <-chan struct{} { return t.done }

// ReportProgress records incremental progress from within the executing
// work. Progress is clamped to [0, 100].
func (t *Task) ReportProgress(progress float64, message string) {
	progress = math.Min(math.Max(progress, 0), 100)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress = progress
	t.progressMessage = message
}

// start transitions Pending -> Running and records the start time. It
// returns false when the task already left Pending, e.g. it was cancelled
// while still queued.
func (t *Task) start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusPending {
		return false
	}
	t.status = StatusRunning
	t.startedAt = time.Now()
	return true
}

// finish moves the task into the given terminal status, recording the
// result or error and the completion time exactly once. It returns false
// when the task is already terminal, making racing terminal transitions
// (completion vs timeout vs cancel) first-wins.
func (t *Task) finish(status Status, result interface{}, taskErr *Error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status.Terminal() {
		return false
	}
	t.status = status
	t.completedAt = time.Now()
	if status == StatusCompleted {
		t.result = result
	}
	if status == StatusFailed || status == StatusTimeout {
		t.err = taskErr
	}
	close(t.done)
	return true
}

// cancelWork cancels the context passed to the work function. Cooperative
// only: work that never checks the context keeps running.
func (t *Task) cancelWork() {
	if t.cancel != nil {
		t.cancel()
	}
}

// View is the externally visible snapshot of a task, shaped for JSON
// responses. Result is present only for completed tasks, Error only for
// failed or timed-out ones.
type View struct {
	TaskID          string      `json:"task_id"`
	Name            string      `json:"name"`
	Description     string      `json:"description"`
	Status          Status      `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
	StartedAt       *time.Time  `json:"started_at"`
	CompletedAt     *time.Time  `json:"completed_at"`
	Progress        float64     `json:"progress"`
	ProgressMessage string      `json:"progress_message,omitempty"`
	Result          interface{} `json:"result,omitempty"`
	Error           *Error      `json:"error,omitempty"`
	UserID          string      `json:"user_id,omitempty"`
}

// View returns a consistent snapshot of the task.
func (t *Task) View() View {
	t.mu.Lock()
	defer t.mu.Unlock()

	v := View{
		TaskID:      t.id,
		Name:        t.name,
		Description: t.description,
		Status:      t.status,
		CreatedAt:   t.createdAt,
		Progress:    math.Round(t.progress*100) / 100,
		UserID:      t.userID,
	}
	v.ProgressMessage = t.progressMessage
	if !t.startedAt.IsZero() {
		started := t.startedAt
		v.StartedAt = &started
	}
	if !t.completedAt.IsZero() {
		completed := t.completedAt
		v.CompletedAt = &completed
	}
	if t.status == StatusCompleted {
		v.Result = t.result
	}
	if t.status == StatusFailed || t.status == StatusTimeout {
		v.Error = t.err
	}
	return v
}
