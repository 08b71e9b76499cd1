package graph

import (
	"fmt"

	"tasksim/internal/coro"
	"tasksim/internal/stream"
)

// Instance is a graph wired onto a scheduler. Results are filled in by sink
// bodies while the scheduler runs and must only be read after Run returns.
type Instance struct {
	Graph   *Graph
	Streams map[string]*stream.Stream
	Handles map[string]*coro.Handle // relays and sinks; sources run detached
	Results map[string][]any        // per-sink values, in arrival order
}

// Build instantiates one stream per fifo and schedules one task per stage.
// Sources are scheduled detached (fire and forget); relays and sinks are
// joinable through Handles.
func Build(sched *coro.Scheduler, g *Graph) (*Instance, error) {
	inst := &Instance{
		Graph:   g,
		Streams: make(map[string]*stream.Stream, len(g.Fifos)),
		Handles: make(map[string]*coro.Handle),
		Results: make(map[string][]any),
	}
	for _, f := range g.Fifos {
		inst.Streams[f.Name] = stream.New(sched, f.Name, f.Depth)
	}

	for _, t := range g.Tasks {
		t := t
		reads := inst.pick(t.Reads)
		writes := inst.pick(t.Writes)

		var body func()
		detach := false
		switch t.Kind {
		case KindSource:
			detach = true
			body = func() { runSource(t.Count, writes) }
		case KindRelay:
			body = func() { runRelay(reads, writes) }
		case KindSink:
			body = func() { inst.Results[t.Name] = runSink(reads) }
		}

		h, err := sched.ScheduleNamed(t.Name, detach, body)
		if err != nil {
			return nil, fmt.Errorf("graph: schedule %q: %w", t.Name, err)
		}
		if h != nil {
			inst.Handles[t.Name] = h
		}
	}
	return inst, nil
}

func (inst *Instance) pick(names []string) []*stream.Stream {
	picked := make([]*stream.Stream, len(names))
	for i, name := range names {
		picked[i] = inst.Streams[name]
	}
	return picked
}

// runSource emits count sequential tokens to every output, then closes them.
func runSource(count int, outs []*stream.Stream) {
	for i := 0; i < count; i++ {
		for _, out := range outs {
			out.Write(i)
		}
	}
	for _, out := range outs {
		out.Close()
	}
}

// runRelay reads one value from each input per iteration and broadcasts each
// value to every output. End of stream on any input ends the stage.
func runRelay(ins, outs []*stream.Stream) {
	for {
		for _, in := range ins {
			v, ok := in.Read()
			if !ok {
				for _, out := range outs {
					out.Close()
				}
				return
			}
			for _, out := range outs {
				out.Write(v)
			}
		}
	}
}

// runSink drains every input until all report end of stream.
func runSink(ins []*stream.Stream) []any {
	var got []any
	open := append([]*stream.Stream(nil), ins...)
	for len(open) > 0 {
		next := open[:0]
		for _, in := range open {
			v, ok := in.Read()
			if !ok {
				continue
			}
			got = append(got, v)
			next = append(next, in)
		}
		open = next
	}
	return got
}
