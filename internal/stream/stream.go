// Package stream provides the bounded FIFO that simulated tasks communicate
// over. Blocking reads and writes are implemented with Scheduler.Yield, so
// every method except New must be called from inside a scheduled task body.
//
// No locking: only one task body runs at any instant under a single
// scheduler, which serializes all access to a stream shared by its tasks.
package stream

import (
	"errors"
	"fmt"

	"github.com/emirpasic/gods/queues/linkedlistqueue"

	"tasksim/internal/coro"
)

// ErrClosedStream is the panic value for a write after Close.
var ErrClosedStream = errors.New("stream: write on closed stream")

// Stream is a bounded point-to-point FIFO between two cooperative tasks.
type Stream struct {
	sched  *coro.Scheduler
	name   string
	depth  int
	buf    *linkedlistqueue.Queue
	closed bool
}

// New creates a stream holding at most depth values. Depth is clamped to a
// minimum of 1 so every stream can hold at least one in-flight value.
func New(sched *coro.Scheduler, name string, depth int) *Stream {
	if depth < 1 {
		depth = 1
	}
	return &Stream{
		sched: sched,
		name:  name,
		depth: depth,
		buf:   linkedlistqueue.New(),
	}
}

// Name returns the stream's name as used in diagnostics.
func (s *Stream) Name() string { return s.name }

// Len returns the number of buffered values.
func (s *Stream) Len() int { return s.buf.Size() }

// Read pops the oldest value, suspending the calling task while the stream
// is empty. ok is false once the stream is closed and fully drained.
func (s *Stream) Read() (v any, ok bool) {
	for s.buf.Empty() {
		if s.closed {
			return nil, false
		}
		s.sched.Yield(fmt.Sprintf("fifo %s: waiting for data", s.name))
	}
	v, _ = s.buf.Dequeue()
	s.sched.MarkProgress()
	return v, true
}

// Write appends a value, suspending the calling task while the stream is at
// depth. Writing to a closed stream panics with ErrClosedStream.
func (s *Stream) Write(v any) {
	if s.closed {
		panic(ErrClosedStream)
	}
	for s.buf.Size() >= s.depth {
		s.sched.Yield(fmt.Sprintf("fifo %s: waiting for space", s.name))
	}
	s.buf.Enqueue(v)
	s.sched.MarkProgress()
}

// Close marks end of stream. Buffered values stay readable; Read reports
// ok=false once they are drained.
func (s *Stream) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.sched.MarkProgress()
}
