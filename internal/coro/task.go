package coro

import (
	"context"
)

// TaskID uniquely identifies a task for its lifetime.
type TaskID uint64

// State is the execution state of a task.
type State int

const (
	StateReady State = iota
	StateRunning
	StateSuspended
	StateFinished
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "Ready"
	case StateRunning:
		return "Running"
	case StateSuspended:
		return "Suspended"
	case StateFinished:
		return "Finished"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Task represents one schedulable unit of cooperative work. The scheduler
// owns every task it has accepted; callers only ever hold a Handle.
type Task struct {
	id       TaskID
	name     string
	work     func()
	detached bool
	state    State
	lastMsg  string // diagnostic from the most recent Yield
	cancel   bool   // cancellation requested, delivered at the next suspension point
	cont     *continuation
	done     chan struct{} // closed on Finished/Failed (non-detached only)
	err      error         // terminal failure, valid once done is closed
}

// Handle lets the owner of a non-detached task await or cancel it.
type Handle struct {
	s *Scheduler
	t *Task
}

// TaskID returns the identity of the task this handle refers to.
func (h *Handle) TaskID() TaskID { return h.t.id }

// Join blocks until the task reaches Finished or Failed and returns the
// task's failure, if any.
func (h *Handle) Join(ctx context.Context) error {
	select {
	case <-h.t.done:
		return h.t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel requests cooperative cancellation. A task that has not started is
// retired immediately; a suspended task is unwound at its next resumption.
// Canceling a running task takes effect at its next suspension point.
func (h *Handle) Cancel() {
	h.s.cancelTask(h.t)
}
