package tasks

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"GlassRain/backend/go/pkg/logger"
)

const (
	defaultWorkers   = 2
	defaultQueueSize = 128
	defaultListLimit = 20
)

// Work is the function executed in the background. The task handle is
// passed explicitly so the work can report its own progress; the context is
// cancelled on shutdown, timeout or best-effort cancellation.
type Work func(ctx context.Context, task *Task) (interface{}, error)

// Recorder receives a snapshot of every task that reaches a terminal
// state, e.g. to mirror task history into durable storage. Implementations
// must be safe for concurrent use and must swallow their own errors.
type Recorder interface {
	RecordTask(v View)
}

// SubmitOptions describe one submission.
type SubmitOptions struct {
	Name        string
	Description string
	Timeout     time.Duration // zero means no timeout
	UserID      string        // optional, for filtering
}

// run bundles a registered task with its work and execution context while
// it waits in the queue.
type run struct {
	task *Task
	work Work
	ctx  context.Context
}

// Executor runs submitted work on a bounded worker pool and keeps a
// registry of every task it has seen until the aging sweep removes it.
type Executor struct {
	mu       sync.Mutex
	registry map[string]*Task

	queue   chan *run
	workers int
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	recorder Recorder
	log      *logger.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithWorkers sets the number of pool workers.
func WithWorkers(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithQueueSize sets the capacity of the FIFO submission queue.
func WithQueueSize(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.queue = make(chan *run, n)
		}
	}
}

// WithRecorder sets the terminal-snapshot recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Executor) {
		e.recorder = r
	}
}

// New creates an Executor. Call Start before submitting work.
func New(log *logger.Logger, opts ...Option) *Executor {
	if log == nil {
		log = logger.New("task_executor", "", "")
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Executor{
		registry: make(map[string]*Task),
		queue:    make(chan *run, defaultQueueSize),
		workers:  defaultWorkers,
		ctx:      ctx,
		cancel:   cancel,
		log:      log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches the worker pool.
func (e *Executor) Start() {
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for {
				select {
				case <-e.ctx.Done():
					return
				case r := <-e.queue:
					e.execute(r)
				}
			}
		}()
	}
	e.log.WithField("workers", e.workers).Info("task executor started")
}

// Shutdown stops accepting work, cancels the contexts of everything in
// flight and waits for the workers to drain, up to the context deadline.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit creates a task, registers it and hands the work to the pool. It
// returns the task handle immediately; the caller polls Get for
// completion. Submissions beyond pool capacity queue in FIFO order.
func (e *Executor) Submit(work Work, opts SubmitOptions) *Task {
	t := newTask(opts.Name, opts.Description, opts.UserID)

	workCtx, cancelWork := context.WithCancel(e.ctx)
	t.cancel = cancelWork

	e.mu.Lock()
	e.registry[t.id] = t
	e.mu.Unlock()

	r := &run{task: t, work: work, ctx: workCtx}
	select {
	case e.queue <- r:
	case <-e.ctx.Done():
		if t.finish(StatusCancelled, nil, nil) {
			e.record(t)
		}
		return t
	}

	if opts.Timeout > 0 {
		go e.watchTimeout(t, opts.Timeout)
	}

	e.log.WithPayload(map[string]interface{}{
		"task_id": t.id,
		"name":    t.name,
	}).Info("submitted background task")
	return t
}

// execute runs one dequeued task through the lifecycle wrapper.
func (e *Executor) execute(r *run) {
	t := r.task
	if !t.start() {
		// Cancelled while queued.
		return
	}

	result, err := e.invoke(r)
	if err != nil {
		taskErr := &Error{Message: err.Error()}
		if pe, ok := err.(*panicError); ok {
			taskErr.Message = fmt.Sprintf("panic: %v", pe.value)
			taskErr.Detail = pe.stack
		}
		if t.finish(StatusFailed, nil, taskErr) {
			e.log.WithPayload(map[string]interface{}{
				"task_id": t.id,
				"name":    t.name,
			}).WithField("error", taskErr.Message).Error("background task failed")
			e.record(t)
		}
		return
	}

	if t.finish(StatusCompleted, result, nil) {
		e.record(t)
	}
}

// panicError carries a recovered panic out of the work invocation so one
// task's panic never takes down a pool worker.
type panicError struct {
	value interface{}
	stack string
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

func (e *Executor) invoke(r *run) (result interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &panicError{value: rec, stack: string(debug.Stack())}
		}
	}()
	return r.work(r.ctx, r.task)
}

// watchTimeout marks the task as timed out if it does not finish within
// the given duration. Whichever terminal transition happens first wins;
// the loser is a no-op.
func (e *Executor) watchTimeout(t *Task, timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-t.Done():
	case <-timer.C:
		msg := fmt.Sprintf("task timed out after %s", timeout)
		if t.finish(StatusTimeout, nil, &Error{Message: msg}) {
			t.cancelWork()
			e.log.WithField("task_id", t.id).Warn(msg)
			e.record(t)
		}
	}
}

// Get returns the task with the given id, or nil if it is unknown or has
// already been swept.
func (e *Executor) Get(taskID string) *Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry[taskID]
}

// ReportProgress updates the progress of the task with the given id. It is
// a no-op, not an error, when the id is unknown.
func (e *Executor) ReportProgress(taskID string, progress float64, message string) {
	if t := e.Get(taskID); t != nil {
		t.ReportProgress(progress, message)
	}
}

// List returns task snapshots ordered newest-first by creation time,
// optionally filtered by user id and status, truncated to limit. A
// non-positive limit falls back to 20.
func (e *Executor) List(userID string, status Status, limit int) []View {
	if limit <= 0 {
		limit = defaultListLimit
	}

	e.mu.Lock()
	views := make([]View, 0, len(e.registry))
	for _, t := range e.registry {
		views = append(views, t.View())
	}
	e.mu.Unlock()

	filtered := views[:0]
	for _, v := range views {
		if userID != "" && v.UserID != userID {
			continue
		}
		if status != "" && v.Status != status {
			continue
		}
		filtered = append(filtered, v)
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered
}

// Cancel attempts a best-effort cancellation. Tasks that have not started
// are cancelled outright; running tasks are marked cancelled and their work
// context is cancelled, which stops the work only if it cooperates. It
// returns false when the task is unknown or already terminal.
func (e *Executor) Cancel(taskID string) bool {
	t := e.Get(taskID)
	if t == nil {
		return false
	}
	if !t.finish(StatusCancelled, nil, nil) {
		return false
	}
	t.cancelWork()
	e.log.WithField("task_id", t.id).Info("background task cancelled")
	e.record(t)
	return true
}

// Sweep removes terminal tasks whose completion time is older than maxAge.
// Pending and running tasks are never removed, regardless of creation age.
// It returns the number of tasks removed.
func (e *Executor) Sweep(maxAge time.Duration) int {
	now := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	for id, t := range e.registry {
		v := t.View()
		if !v.Status.Terminal() || v.CompletedAt == nil {
			continue
		}
		if now.Sub(*v.CompletedAt) > maxAge {
			delete(e.registry, id)
			removed++
		}
	}
	return removed
}

// StartJanitor starts a goroutine that sweeps aged-out terminal tasks
// every interval until the context is cancelled.
func (e *Executor) StartJanitor(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.Sweep(maxAge)
			}
		}
	}()
}

// record forwards a terminal snapshot to the recorder, if any. It runs on
// its own goroutine so slow storage never blocks a pool worker.
func (e *Executor) record(t *Task) {
	if e.recorder == nil {
		return
	}
	v := t.View()
	go e.recorder.RecordTask(v)
}
