// internal/coro/trace.go

package coro

import (
	"encoding/csv"
	"os"
	"strconv"
	"sync"
	"time"
)

// csvTrace persists every scheduling event as one CSV row.
type csvTrace struct {
	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
}

// EnableCSVLogging opens the given file path for CSV logging of events.
// Must be called before Run().
func (s *Scheduler) EnableCSVLogging(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)

	// write header
	w.Write([]string{"timestamp", "run_id", "pass", "event", "task_id", "task_name", "message"})
	w.Flush()

	s.mu.Lock()
	s.trace = &csvTrace{file: f, w: w}
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) writeTrace(ev StatusEvent) {
	s.mu.Lock()
	tr := s.trace
	s.mu.Unlock()
	if tr == nil {
		return
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.w.Write([]string{
		ev.Time.Format(time.RFC3339Nano),
		s.runID,
		strconv.FormatUint(ev.Pass, 10),
		ev.Kind.String(),
		strconv.FormatUint(uint64(ev.TaskID), 10),
		ev.Name,
		ev.Msg,
	})
	tr.w.Flush()
}

func (s *Scheduler) closeTrace() {
	s.mu.Lock()
	tr := s.trace
	s.trace = nil
	s.mu.Unlock()
	if tr == nil {
		return
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.w.Flush()
	tr.file.Close()
}
