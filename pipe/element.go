package pipe

import (
	"context"
	"fmt"

	"pipelined.dev/player/port"
	"pipelined.dev/player/sound"
)

// Result of a single job iteration.
type Result int

const (
	// OK means job produced output and consumed its input.
	OK Result = iota
	// Done means job has emitted its last block.
	Done
	// Retry means transient condition was handled and job must be called
	// again immediately.
	Retry
	// Continue means job needs more input and produced nothing.
	Continue
	// Truncate means job produced output, but still holds input.
	Truncate
)

var results = map[Result]string{
	OK:       "ok",
	Done:     "done",
	Retry:    "retry",
	Continue: "continue",
	Truncate: "truncate",
}

func (r Result) String() string {
	if s, ok := results[r]; ok {
		return s
	}
	return fmt.Sprintf("result(%d)", int(r))
}

// Job is a unit of work executed by a Task. Any returned error fails the
// task.
type Job interface {
	Name() string
	Process(ctx context.Context) (Result, error)
}

// Ports is what an element is connected to when opened.
type Ports struct {
	In  port.Reader
	Out port.Writer
	// Report announces a change of the element output description.
	Report func(sound.Info)
}

// Element is a processing stage of the pipeline.
type Element interface {
	Job
	Open(ctx context.Context, p Ports) error
	Close() error
}
