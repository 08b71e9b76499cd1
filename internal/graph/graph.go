package graph

import (
	"fmt"
	"os"

	yaml "github.com/goccy/go-yaml"
)

// Defaults applied to description values that are missing or out of range.
const (
	DefaultDepth = 2  // fifo depth
	DefaultCount = 16 // tokens emitted by a source
)

// TaskKind selects the built-in stage body for a task.
type TaskKind string

const (
	KindSource TaskKind = "source" // emits Count tokens, then closes its outputs
	KindRelay  TaskKind = "relay"  // forwards values from inputs to outputs
	KindSink   TaskKind = "sink"   // drains its inputs until end of stream
)

// FifoSpec describes one bounded fifo of the simulated graph.
type FifoSpec struct {
	Name  string `yaml:"name"`
	Depth int    `yaml:"depth"`
}

// TaskSpec describes one task of the simulated graph and the fifos it is
// wired to.
type TaskSpec struct {
	Name   string   `yaml:"name"`
	Kind   TaskKind `yaml:"kind"`
	Reads  []string `yaml:"reads"`
	Writes []string `yaml:"writes"`
	Count  int      `yaml:"count"` // sources only
}

// Graph is a simulated task graph: named tasks communicating over named
// point-to-point fifos.
type Graph struct {
	Name  string     `yaml:"name"`
	Fifos []FifoSpec `yaml:"fifos"`
	Tasks []TaskSpec `yaml:"tasks"`
}

// Load reads a YAML graph description from path.
func Load(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a YAML graph description, applies defaults, and validates it.
func Parse(data []byte) (*Graph, error) {
	var g Graph
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("graph: decode: %w", err)
	}
	g.applyDefaults()
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// applyDefaults clamps numeric values into their legal range.
func (g *Graph) applyDefaults() {
	for i := range g.Fifos {
		if g.Fifos[i].Depth <= 0 {
			g.Fifos[i].Depth = DefaultDepth
		}
	}
	for i := range g.Tasks {
		if g.Tasks[i].Kind == KindSource && g.Tasks[i].Count <= 0 {
			g.Tasks[i].Count = DefaultCount
		}
	}
}

// Validate checks structural rules: unique names, known fifo references,
// kind-appropriate wiring, and exactly one writer and one reader per fifo.
func (g *Graph) Validate() error {
	fifos := make(map[string]bool, len(g.Fifos))
	for _, f := range g.Fifos {
		if f.Name == "" {
			return fmt.Errorf("graph: fifo with empty name")
		}
		if fifos[f.Name] {
			return fmt.Errorf("graph: duplicate fifo %q", f.Name)
		}
		fifos[f.Name] = true
	}

	writers := make(map[string]string) // fifo -> task
	readers := make(map[string]string)
	tasks := make(map[string]bool, len(g.Tasks))
	for _, t := range g.Tasks {
		if t.Name == "" {
			return fmt.Errorf("graph: task with empty name")
		}
		if tasks[t.Name] {
			return fmt.Errorf("graph: duplicate task %q", t.Name)
		}
		tasks[t.Name] = true

		switch t.Kind {
		case KindSource:
			if len(t.Reads) != 0 {
				return fmt.Errorf("graph: source %q must not read", t.Name)
			}
			if len(t.Writes) == 0 {
				return fmt.Errorf("graph: source %q must write at least one fifo", t.Name)
			}
		case KindRelay:
			if len(t.Reads) == 0 || len(t.Writes) == 0 {
				return fmt.Errorf("graph: relay %q must both read and write", t.Name)
			}
		case KindSink:
			if len(t.Reads) == 0 {
				return fmt.Errorf("graph: sink %q must read at least one fifo", t.Name)
			}
			if len(t.Writes) != 0 {
				return fmt.Errorf("graph: sink %q must not write", t.Name)
			}
		default:
			return fmt.Errorf("graph: task %q has unknown kind %q", t.Name, t.Kind)
		}

		for _, name := range t.Reads {
			if !fifos[name] {
				return fmt.Errorf("graph: task %q reads unknown fifo %q", t.Name, name)
			}
			if prev, dup := readers[name]; dup {
				return fmt.Errorf("graph: fifo %q read by both %q and %q", name, prev, t.Name)
			}
			readers[name] = t.Name
		}
		for _, name := range t.Writes {
			if !fifos[name] {
				return fmt.Errorf("graph: task %q writes unknown fifo %q", t.Name, name)
			}
			if prev, dup := writers[name]; dup {
				return fmt.Errorf("graph: fifo %q written by both %q and %q", name, prev, t.Name)
			}
			writers[name] = t.Name
		}
	}

	for _, f := range g.Fifos {
		if writers[f.Name] == "" {
			return fmt.Errorf("graph: fifo %q has no writer", f.Name)
		}
		if readers[f.Name] == "" {
			return fmt.Errorf("graph: fifo %q has no reader", f.Name)
		}
	}
	return nil
}
