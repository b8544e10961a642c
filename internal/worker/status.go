package worker

import "sync/atomic"

// State is the consumer lifecycle: Stopped → Starting → Running → Stopped.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	default:
		return "stopped"
	}
}

// Status is the handle shared between the consumer goroutine and the HTTP
// handlers. Only the consumer writes it.
type Status struct {
	state atomic.Int32
}

func NewStatus() *Status { return &Status{} }

func (s *Status) State() State { return State(s.state.Load()) }

// Running reports whether the consumer is attached to the queue.
func (s *Status) Running() bool { return s.State() == StateRunning }

func (s *Status) set(st State) { s.state.Store(int32(st)) }
