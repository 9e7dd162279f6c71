package pipe

import (
	"fmt"

	"pipelined.dev/player/sound"
)

// State of a pipeline.
type State int

// Pipeline states. Opening is internal and is not exposed to players.
const (
	StateNone State = iota
	StateOpening
	StateRunning
	StatePaused
	StateStopped
	StateFinished
	StateError
)

var states = map[State]string{
	StateNone:     "none",
	StateOpening:  "opening",
	StateRunning:  "running",
	StatePaused:   "paused",
	StateStopped:  "stopped",
	StateFinished: "finished",
	StateError:    "error",
}

func (s State) String() string {
	if n, ok := states[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether the state ends a run.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateFinished || s == StateError
}

// EventType identifies the kind of pipeline event.
type EventType int

const (
	// ChangeState is sent on every pipeline state transition.
	ChangeState EventType = iota
	// ReportInfo is sent when an element discovers the stream description.
	ReportInfo
)

// Event is delivered to the pipeline event handler on the worker goroutine.
type Event struct {
	Type  EventType
	From  string
	State State
	Err   error // Cause of StateError.
	Info  sound.Info
}

// EventFunc handles pipeline events. It must not block and must not stop
// the pipeline synchronously.
type EventFunc func(Event)
