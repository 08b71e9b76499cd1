package coro

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSchedulerClosed is returned by Schedule once the scheduler has begun
	// irreversible shutdown.
	ErrSchedulerClosed = errors.New("coro: scheduler closed")

	// ErrTaskCanceled is the terminal error of a task canceled before it
	// finished its work.
	ErrTaskCanceled = errors.New("coro: task canceled")

	// ErrInvalidYield is the panic value when Yield is called outside a
	// running task body. This is a programming error, not a recoverable
	// condition.
	ErrInvalidYield = errors.New("coro: yield called outside a running task")
)

// TaskError wraps the value recovered from a panicking task body. It is
// attached to that task's outcome only and never stops the scheduler.
type TaskError struct {
	Recovered any
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("coro: task panicked: %v", e.Recovered)
}

func (e *TaskError) Unwrap() error {
	if err, ok := e.Recovered.(error); ok {
		return err
	}
	return nil
}

// Waiter is one stuck task in a deadlock report.
type Waiter struct {
	ID   TaskID
	Name string
	Msg  string // last diagnostic passed to Yield, verbatim
}

// DeadlockError reports that every live task suspended across one full
// scheduling pass with no progress. It enumerates every stuck task so the
// whole wait cycle is visible at once.
type DeadlockError struct {
	Pass    uint64
	Waiters []Waiter
}

func (e *DeadlockError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "coro: deadlock after pass %d: %d task(s) suspended with no progress", e.Pass, len(e.Waiters))
	for _, w := range e.Waiters {
		fmt.Fprintf(&b, "\n  task %d (%s): %s", w.ID, w.Name, w.Msg)
	}
	return b.String()
}
