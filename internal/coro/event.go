// internal/coro/event.go

package coro

import (
	"time"
)

// StatusKind represents the type of scheduler event
type StatusKind int

const (
	StatusEnqueue StatusKind = iota
	StatusDispatch
	StatusSuspend
	StatusFinish
	StatusFail
	StatusCancel
	StatusDeadlock
)

// StatusEvent is emitted on every scheduling action. The stream is advisory:
// when no consumer keeps up, events are dropped rather than stalling the run
// loop.
type StatusEvent struct {
	Time   time.Time
	Kind   StatusKind
	Pass   uint64
	TaskID TaskID
	Name   string
	Msg    string // suspension diagnostic or failure text
}

func (sk StatusKind) String() string {
	switch sk {
	case StatusEnqueue:
		return "Enqueued"
	case StatusDispatch:
		return "Dispatch"
	case StatusSuspend:
		return "Suspend"
	case StatusFinish:
		return "Finish"
	case StatusFail:
		return "Fail"
	case StatusCancel:
		return "Cancel"
	case StatusDeadlock:
		return "Deadlock"
	default:
		return "Unknown"
	}
}
