package stream_test

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasksim/internal/coro"
	"tasksim/internal/stream"
)

func newTestScheduler() *coro.Scheduler {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return coro.New(logger)
}

func TestProducerConsumerDeliversInOrder(t *testing.T) {
	s := newTestScheduler()
	st := stream.New(s, "pipe", 2)

	_, err := s.ScheduleNamed("producer", false, func() {
		for i := 0; i < 5; i++ {
			st.Write(i)
		}
		st.Close()
	})
	require.NoError(t, err)

	var got []any
	_, err = s.ScheduleNamed("consumer", false, func() {
		for {
			v, ok := st.Read()
			if !ok {
				return
			}
			got = append(got, v)
		}
	})
	require.NoError(t, err)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []any{0, 1, 2, 3, 4}, got)
}

func TestWriteBlocksAtDepthOne(t *testing.T) {
	s := newTestScheduler()
	st := stream.New(s, "narrow", 1)

	var trace []string
	_, err := s.ScheduleNamed("producer", false, func() {
		for i := 0; i < 3; i++ {
			st.Write(i)
			trace = append(trace, fmt.Sprintf("w%d", i))
		}
		st.Close()
	})
	require.NoError(t, err)
	_, err = s.ScheduleNamed("consumer", false, func() {
		for {
			v, ok := st.Read()
			if !ok {
				return
			}
			trace = append(trace, fmt.Sprintf("r%d", v))
		}
	})
	require.NoError(t, err)

	require.NoError(t, s.Run(context.Background()))
	// Depth 1 forces strict alternation under round-robin scheduling.
	assert.Equal(t, []string{"w0", "r0", "w1", "r1", "w2", "r2"}, trace)
}

func TestEmptyCycleDeadlocks(t *testing.T) {
	s := newTestScheduler()
	x := stream.New(s, "x", 1)
	y := stream.New(s, "y", 1)

	_, err := s.ScheduleNamed("A", false, func() {
		v, _ := x.Read()
		y.Write(v)
	})
	require.NoError(t, err)
	_, err = s.ScheduleNamed("B", false, func() {
		v, _ := y.Read()
		x.Write(v)
	})
	require.NoError(t, err)

	runErr := s.Run(context.Background())
	var derr *coro.DeadlockError
	require.ErrorAs(t, runErr, &derr)
	require.Len(t, derr.Waiters, 2)
	assert.Equal(t, "fifo x: waiting for data", derr.Waiters[0].Msg)
	assert.Equal(t, "fifo y: waiting for data", derr.Waiters[1].Msg)
}

func TestReadDrainsBufferAfterClose(t *testing.T) {
	s := newTestScheduler()
	st := stream.New(s, "drain", 2)

	var got []any
	var eof bool
	_, err := s.Schedule(false, func() {
		st.Write("a")
		st.Write("b")
		st.Close()
		for {
			v, ok := st.Read()
			if !ok {
				eof = true
				return
			}
			got = append(got, v)
		}
	})
	require.NoError(t, err)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []any{"a", "b"}, got)
	assert.True(t, eof)
}

func TestWriteAfterClosePanics(t *testing.T) {
	s := newTestScheduler()
	st := stream.New(s, "dead", 1)

	var recovered any
	_, err := s.Schedule(false, func() {
		defer func() { recovered = recover() }()
		st.Close()
		st.Write(1)
	})
	require.NoError(t, err)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, stream.ErrClosedStream, recovered)
}

func TestDepthClampedToOne(t *testing.T) {
	s := newTestScheduler()
	st := stream.New(s, "clamped", 0)

	_, err := s.Schedule(false, func() {
		st.Write(42)
		v, ok := st.Read()
		if !ok || v != 42 {
			t.Errorf("got %v (ok=%v), want 42", v, ok)
		}
	})
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))
}
