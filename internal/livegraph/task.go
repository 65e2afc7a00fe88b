package livegraph

import (
	"sync"

	"brooklyn/pkg/graph"
)

// Task is a settable asynchronous result, usable as a config value.
type Task struct {
	mu   sync.Mutex
	done bool
	val  any
	err  error
	ch   chan struct{}
}

var _ graph.Task = (*Task)(nil)

// NewTask returns a pending task.
func NewTask() *Task {
	return &Task{ch: make(chan struct{})}
}

// Resolved returns a task already completed with v.
func Resolved(v any) *Task {
	t := NewTask()
	t.Complete(v)
	return t
}

// Complete finishes the task with v. Later calls are ignored.
func (t *Task) Complete(v any) { t.finish(v, nil) }

// Fail finishes the task with err. Later calls are ignored.
func (t *Task) Fail(err error) { t.finish(nil, err) }

func (t *Task) finish(v any, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	t.done, t.val, t.err = true, v, err
	close(t.ch)
}

func (t *Task) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Result returns the outcome of a finished task, or nil values while pending.
func (t *Task) Result() (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.val, t.err
}

// Wait returns a channel closed when the task finishes.
func (t *Task) Wait() <-chan struct{} { return t.ch }
