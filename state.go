package player

import (
	"fmt"

	"pipelined.dev/player/pipe"
	"pipelined.dev/player/sound"
)

// State of the player.
type State int

// Player states. Only StateNone may become StateRunning, Running and Paused
// alternate until one of the terminal states is reached.
const (
	StateNone State = iota
	StateRunning
	StatePaused
	StateStopped
	StateFinished
	StateError
)

var stateNames = map[State]string{
	StateNone:     "none",
	StateRunning:  "running",
	StatePaused:   "paused",
	StateStopped:  "stopped",
	StateFinished: "finished",
	StateError:    "error",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Active reports whether a run is in progress.
func (s State) Active() bool {
	return s == StateRunning || s == StatePaused
}

// Terminal reports whether the state ends a run.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateFinished || s == StateError
}

// stateOf maps pipeline state. Opening has no player counterpart.
func stateOf(s pipe.State) (State, bool) {
	switch s {
	case pipe.StateRunning:
		return StateRunning, true
	case pipe.StatePaused:
		return StatePaused, true
	case pipe.StateStopped:
		return StateStopped, true
	case pipe.StateFinished:
		return StateFinished, true
	case pipe.StateError:
		return StateError, true
	}
	return StateNone, false
}

// EventType identifies the kind of player event.
type EventType int

const (
	// EventState carries a new player state.
	EventState EventType = iota
	// EventMusicInfo carries the stream description found by the decoder.
	EventMusicInfo
)

func (t EventType) String() string {
	if t == EventMusicInfo {
		return "music info"
	}
	return "state"
}

// Event is delivered to the player event handler.
type Event struct {
	Type  EventType
	State State
	// Err is the cause of StateError.
	Err  error
	Info sound.Info
}

// EventFunc handles player events. It is called on the worker goroutine,
// so it must not block and must not call Run, RunToEnd, Stop or Destroy.
type EventFunc func(Event)
