// internal/coro/scheduler.go

package coro

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Scheduler owns a set of cooperative tasks, runs them one at a time, and
// streams state changes. Selection is round-robin in registration order, so a
// fixed set of tasks with a fixed yield pattern replays deterministically.
//
// Only one task body executes at any instant; the run loop and the current
// task hand control back and forth through the task's continuation. The
// registry and progress generation are the only shared mutable state, and the
// mutex exists solely for callers outside the run loop (Schedule, Cancel,
// MarkProgress from a host thread).
type Scheduler struct {
	mu       sync.Mutex         // protects the scheduler state
	runID    string             // correlates log lines and trace rows of one instance
	registry *linkedhashmap.Map // TaskID -> *Task, registration order
	nextID   TaskID
	closed   bool  // no further Schedule calls accepted
	chClosed bool  // statusCh has been closed
	running  *Task // task currently executing a body, nil between dispatches
	pass     uint64
	progress atomic.Uint64 // generation counter; unchanged across a fully-suspended pass = deadlock

	log      logrus.FieldLogger
	statusCh chan StatusEvent

	trace *csvTrace
}

// New creates a scheduler. A nil logger falls back to the logrus standard
// logger.
func New(log logrus.FieldLogger) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	runID := uuid.New().String()
	return &Scheduler{
		runID:    runID,
		registry: linkedhashmap.New(),
		log:      log.WithField("run_id", runID),
		statusCh: make(chan StatusEvent, 256), // buffered channel for status events
	}
}

// RunID returns the unique identifier of this scheduler instance.
func (s *Scheduler) RunID() string { return s.runID }

// StatusChannel exposes a read-only stream of scheduling events (optional
// consumers). The channel is closed when Run returns.
func (s *Scheduler) StatusChannel() <-chan StatusEvent { return s.statusCh }

// Live returns the number of tasks that can still run.
func (s *Scheduler) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Size()
}

// Schedule registers work as a new task in state Ready and returns without
// running it; execution happens under Run. When detach is true the scheduler
// reclaims the task on completion and the returned handle is nil; otherwise
// the handle can be used to Join or Cancel the task.
func (s *Scheduler) Schedule(detach bool, work func()) (*Handle, error) {
	return s.ScheduleNamed("", detach, work)
}

// ScheduleNamed is Schedule with an explicit task name for diagnostics.
func (s *Scheduler) ScheduleNamed(name string, detach bool, work func()) (*Handle, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSchedulerClosed
	}
	s.nextID++
	if name == "" {
		name = fmt.Sprintf("task-%d", s.nextID)
	}
	t := &Task{
		id:       s.nextID,
		name:     name,
		work:     work,
		detached: detach,
		state:    StateReady,
	}
	if !detach {
		t.done = make(chan struct{})
	}
	s.registry.Put(t.id, t)
	s.mu.Unlock()

	// A freshly runnable task is progress for the current pass.
	s.progress.Add(1)

	s.emit(StatusEvent{Time: time.Now(), Kind: StatusEnqueue, TaskID: t.id, Name: t.name})
	if detach {
		return nil, nil
	}
	return &Handle{s: s, t: t}, nil
}

// Yield suspends the calling task, recording msg as the diagnostic for what
// it is waiting on. The call returns normally once the scheduler resumes the
// task. Calling Yield outside a task body panics with ErrInvalidYield.
func (s *Scheduler) Yield(msg string) {
	s.mu.Lock()
	t := s.running
	s.mu.Unlock()
	if t == nil {
		panic(ErrInvalidYield)
	}
	t.cont.suspend(msg)
}

// MarkProgress records externally observable progress (e.g. a channel between
// tasks changed state) so the current pass is not declared deadlocked.
// Collaborators call this; the core itself bumps the generation on task
// registration and on every terminal transition.
func (s *Scheduler) MarkProgress() {
	s.progress.Add(1)
}

// Close begins irreversible shutdown: any later Schedule call fails with
// ErrSchedulerClosed. Tasks already accepted still run.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Run drives scheduled tasks until quiescence, a deadlock, or ctx
// cancellation. It returns nil once no live task remains, a *DeadlockError
// when every live task is suspended with no progress across one full pass,
// and ctx.Err() on cancellation. Run is one-shot: when it returns the
// scheduler is closed.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.shutdown()

	for {
		if err := ctx.Err(); err != nil {
			s.unwindLive()
			return err
		}

		live := s.liveTasks()
		if len(live) == 0 {
			return nil // quiescence
		}

		s.mu.Lock()
		s.pass++
		s.mu.Unlock()

		before := s.progress.Load()
		allSuspended := true
		for _, t := range live {
			if err := ctx.Err(); err != nil {
				s.unwindLive()
				return err
			}
			if !s.step(t) {
				allSuspended = false
			}
		}

		if allSuspended && s.progress.Load() == before {
			derr := s.deadlockError()
			s.emit(StatusEvent{Time: time.Now(), Kind: StatusDeadlock, Pass: derr.Pass, Msg: derr.Error()})
			s.unwindLive()
			return derr
		}
	}
}

// step resumes one task and applies its outcome. It reports whether the task
// ended the step suspended.
func (s *Scheduler) step(t *Task) (suspended bool) {
	s.mu.Lock()
	switch t.state {
	case StateReady, StateSuspended:
	default:
		// Retired between snapshot and dispatch (e.g. canceled before start).
		s.mu.Unlock()
		return false
	}
	d := directiveRun
	if t.cancel {
		d = directiveCancel
	}
	if t.cont == nil {
		t.cont = newContinuation(t.work)
	}
	t.state = StateRunning
	s.running = t
	pass := s.pass
	s.mu.Unlock()

	s.emit(StatusEvent{Time: time.Now(), Kind: StatusDispatch, Pass: pass, TaskID: t.id, Name: t.name})

	out := t.cont.resume(d)
	for out.kind == outcomeSuspended {
		s.mu.Lock()
		deliverCancel := t.cancel
		s.mu.Unlock()
		if !deliverCancel {
			break
		}
		// Cancellation requested while the task was running; deliver it at
		// this suspension point instead of parking the task again.
		out = t.cont.resume(directiveCancel)
	}

	s.mu.Lock()
	s.running = nil
	switch out.kind {
	case outcomeSuspended:
		t.state = StateSuspended
		t.lastMsg = out.msg
		s.mu.Unlock()
		s.emit(StatusEvent{Time: time.Now(), Kind: StatusSuspend, Pass: pass, TaskID: t.id, Name: t.name, Msg: out.msg})
		return true

	case outcomeFinished:
		s.retireLocked(t, StateFinished, nil)
		s.mu.Unlock()
		s.emit(StatusEvent{Time: time.Now(), Kind: StatusFinish, Pass: pass, TaskID: t.id, Name: t.name})
		return false

	default: // outcomeFailed
		s.retireLocked(t, StateFailed, out.err)
		detached := t.detached
		s.mu.Unlock()
		kind := StatusFail
		if errors.Is(out.err, ErrTaskCanceled) {
			kind = StatusCancel
		}
		s.emit(StatusEvent{Time: time.Now(), Kind: kind, Pass: pass, TaskID: t.id, Name: t.name, Msg: out.err.Error()})
		if detached && kind == StatusFail {
			// Nobody joins a detached task; its failure must not vanish.
			s.log.WithField("task", t.name).WithError(out.err).Error("detached task failed")
		}
		return false
	}
}

// retireLocked moves a task to its terminal state, removes it from the
// registry, and signals any joiner. Callers hold s.mu.
func (s *Scheduler) retireLocked(t *Task, st State, err error) {
	t.state = st
	t.err = err
	s.registry.Remove(t.id)
	s.progress.Add(1) // a terminal transition is progress
	if t.done != nil {
		close(t.done)
	}
}

// cancelTask implements Handle.Cancel.
func (s *Scheduler) cancelTask(t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch t.state {
	case StateReady:
		if t.cont == nil {
			// Never started; retire without spawning its goroutine.
			s.retireLocked(t, StateFailed, ErrTaskCanceled)
			return
		}
		t.cancel = true
	case StateRunning, StateSuspended:
		t.cancel = true
	default:
		// Already terminal.
	}
}

// liveTasks snapshots the registry in registration order. Tasks scheduled
// mid-pass join the next pass.
func (s *Scheduler) liveTasks() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks := make([]*Task, 0, s.registry.Size())
	for _, v := range s.registry.Values() {
		tasks = append(tasks, v.(*Task))
	}
	return tasks
}

func (s *Scheduler) deadlockError() *DeadlockError {
	s.mu.Lock()
	defer s.mu.Unlock()
	derr := &DeadlockError{Pass: s.pass}
	for _, v := range s.registry.Values() {
		t := v.(*Task)
		derr.Waiters = append(derr.Waiters, Waiter{ID: t.id, Name: t.name, Msg: t.lastMsg})
	}
	return derr
}

// unwindLive cancels every remaining task so their goroutines exit and any
// joiner unblocks with ErrTaskCanceled. Called before Run returns with live
// tasks still registered (deadlock or ctx cancellation).
func (s *Scheduler) unwindLive() {
	for _, t := range s.liveTasks() {
		s.mu.Lock()
		cont := t.cont
		state := t.state
		s.mu.Unlock()

		if state == StateSuspended && cont != nil {
			out := cont.resume(directiveCancel)
			s.mu.Lock()
			s.retireLocked(t, StateFailed, out.err)
			s.mu.Unlock()
			continue
		}
		s.mu.Lock()
		if t.state == StateReady && t.cont == nil {
			s.retireLocked(t, StateFailed, ErrTaskCanceled)
		}
		s.mu.Unlock()
	}
}

// shutdown closes the scheduler, the event stream, and the trace writer.
func (s *Scheduler) shutdown() {
	s.mu.Lock()
	s.closed = true
	if !s.chClosed {
		s.chClosed = true
		close(s.statusCh)
	}
	s.mu.Unlock()
	s.closeTrace()
}

// emit publishes an event to the trace writer, the debug log, and the status
// channel. Sends never block; a slow or absent consumer just misses events.
func (s *Scheduler) emit(ev StatusEvent) {
	s.writeTrace(ev)
	s.log.WithFields(logrus.Fields{
		"pass": ev.Pass,
		"task": ev.Name,
		"msg":  ev.Msg,
	}).Debug(ev.Kind.String())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chClosed {
		return
	}
	select {
	case s.statusCh <- ev:
	default:
	}
}
