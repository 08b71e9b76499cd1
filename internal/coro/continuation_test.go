package coro

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContinuationSuspendResumeFinish(t *testing.T) {
	var c *continuation
	c = newContinuation(func() {
		c.suspend("first stop")
		c.suspend("second stop")
	})

	out := c.resume(directiveRun)
	require.Equal(t, outcomeSuspended, out.kind)
	assert.Equal(t, "first stop", out.msg)

	out = c.resume(directiveRun)
	require.Equal(t, outcomeSuspended, out.kind)
	assert.Equal(t, "second stop", out.msg)

	out = c.resume(directiveRun)
	assert.Equal(t, outcomeFinished, out.kind)
}

func TestContinuationCancelUnwindsAtSuspension(t *testing.T) {
	cleaned := false
	var c *continuation
	c = newContinuation(func() {
		defer func() { cleaned = true }()
		c.suspend("parked")
	})

	out := c.resume(directiveRun)
	require.Equal(t, outcomeSuspended, out.kind)

	out = c.resume(directiveCancel)
	require.Equal(t, outcomeFailed, out.kind)
	assert.ErrorIs(t, out.err, ErrTaskCanceled)
	assert.True(t, cleaned, "deferred cleanup runs during unwinding")
}

func TestContinuationCancelBeforeFirstRun(t *testing.T) {
	started := false
	c := newContinuation(func() { started = true })

	out := c.resume(directiveCancel)
	require.Equal(t, outcomeFailed, out.kind)
	assert.ErrorIs(t, out.err, ErrTaskCanceled)
	assert.False(t, started)
}

func TestContinuationRecoversPanic(t *testing.T) {
	c := newContinuation(func() { panic("kaput") })

	out := c.resume(directiveRun)
	require.Equal(t, outcomeFailed, out.kind)
	var terr *TaskError
	require.ErrorAs(t, out.err, &terr)
	assert.Equal(t, "kaput", terr.Recovered)
}
