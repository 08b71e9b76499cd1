// internal/coro/continuation.go

package coro

// outcomeKind classifies what a task did with the control it was given.
type outcomeKind int

const (
	outcomeSuspended outcomeKind = iota
	outcomeFinished
	outcomeFailed
)

// outcome is the value a continuation hands back to the run loop after each
// resume. The run loop is a plain state machine over these values.
type outcome struct {
	kind outcomeKind
	msg  string // suspension diagnostic
	err  error  // terminal failure
}

// directive tells a suspended task how to proceed when resumed.
type directive int

const (
	directiveRun directive = iota
	directiveCancel
)

// canceledUnwind is the sentinel panic value used to unwind a task goroutine
// when cancellation is delivered at a suspension point.
type canceledUnwind struct{}

// continuation is the suspended execution point of a task body. It pairs a
// dedicated goroutine with two unbuffered channels; exactly one side runs at
// any instant while the other is blocked on its channel, so control transfers
// are synchronous handoffs.
type continuation struct {
	resumeCh  chan directive
	outcomeCh chan outcome
}

// newContinuation spawns the task goroutine. The goroutine does not start
// executing work until the first resume.
func newContinuation(work func()) *continuation {
	c := &continuation{
		resumeCh:  make(chan directive),
		outcomeCh: make(chan outcome),
	}
	go c.body(work)
	return c
}

func (c *continuation) body(work func()) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(canceledUnwind); ok {
				c.outcomeCh <- outcome{kind: outcomeFailed, err: ErrTaskCanceled}
				return
			}
			c.outcomeCh <- outcome{kind: outcomeFailed, err: &TaskError{Recovered: r}}
		}
	}()

	if d := <-c.resumeCh; d == directiveCancel {
		panic(canceledUnwind{})
	}
	work()
	c.outcomeCh <- outcome{kind: outcomeFinished}
}

// resume transfers control into the task until it suspends or terminates.
// Only the run loop calls resume, and never twice without an intervening
// suspension; a terminal outcome means the goroutine has exited.
func (c *continuation) resume(d directive) outcome {
	c.resumeCh <- d
	return <-c.outcomeCh
}

// suspend runs on the task's goroutine. It hands a suspension outcome to the
// run loop and blocks until the next resume, at which point the caller of
// Yield continues exactly where it stopped.
func (c *continuation) suspend(msg string) {
	c.outcomeCh <- outcome{kind: outcomeSuspended, msg: msg}
	if d := <-c.resumeCh; d == directiveCancel {
		panic(canceledUnwind{})
	}
}
