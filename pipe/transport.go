package pipe

import (
	"context"
	"fmt"
	"sync"

	"pipelined.dev/player/port"
	"pipelined.dev/player/sound"
)

// Direction of a transport.
type Direction int

const (
	// Read transports are pipeline sources.
	Read Direction = iota
	// Write transports are pipeline sinks.
	Write
)

func (d Direction) String() string {
	if d == Write {
		return "writer"
	}
	return "reader"
}

// Descriptor holds the position of a transport within its stream.
type Descriptor struct {
	URI  string
	Pos  int64
	Size int64 // 0 if unknown.
}

// Transport moves bytes between a pipeline and the outside world.
// Implementations are opened on the worker goroutine.
type Transport interface {
	Name() string
	Direction() Direction
	Descriptor() Descriptor
	SetURI(string)
	// SetPos sets position used by the next Open to resume the stream.
	SetPos(int64)
	Open(ctx context.Context) error
	// Seek moves the transport to pos. It fails with ErrOutOfRange if pos
	// exceeds the known size.
	Seek(pos int64) error
	// Close releases the medium and resets position to zero. Closing a
	// closed transport is a no-op.
	Close() error
}

// Source is a transport which provides pipeline input.
type Source interface {
	Transport
	port.Reader
}

// Sink is a transport which consumes pipeline output.
type Sink interface {
	Transport
	port.Writer
}

// Optional transport and element hooks.
type (
	// Resetter is called when a pipeline is reused for a new stream.
	Resetter interface {
		Reset() error
	}

	// Aborter is called when a pipeline is stopped to unblock parked
	// operations.
	Aborter interface {
		Abort()
	}

	// InfoApplier receives the stream description from upstream and
	// returns the description of its own output.
	InfoApplier interface {
		ApplyInfo(sound.Info) sound.Info
	}
)

// IOBase implements the descriptor part of Transport. Transports embed it
// and initialize Kind and Dir.
type IOBase struct {
	Kind string
	Dir  Direction

	mu     sync.Mutex
	desc   Descriptor
	opened bool
}

// Name returns registered transport name.
func (b *IOBase) Name() string {
	return b.Kind
}

// Direction of the transport.
func (b *IOBase) Direction() Direction {
	return b.Dir
}

// Descriptor returns a snapshot of the stream position.
func (b *IOBase) Descriptor() Descriptor {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.desc
}

// URI returns current stream URI.
func (b *IOBase) URI() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.desc.URI
}

// SetURI sets stream URI.
func (b *IOBase) SetURI(uri string) {
	b.mu.Lock()
	b.desc.URI = uri
	b.mu.Unlock()
}

// Pos returns current position.
func (b *IOBase) Pos() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.desc.Pos
}

// SetPos sets current position.
func (b *IOBase) SetPos(pos int64) {
	b.mu.Lock()
	b.desc.Pos = pos
	b.mu.Unlock()
}

// Advance moves position forward by n bytes.
func (b *IOBase) Advance(n int) {
	b.mu.Lock()
	b.desc.Pos += int64(n)
	b.mu.Unlock()
}

// Size returns total size of the stream, 0 if unknown.
func (b *IOBase) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.desc.Size
}

// SetSize sets total size of the stream.
func (b *IOBase) SetSize(size int64) {
	b.mu.Lock()
	b.desc.Size = size
	b.mu.Unlock()
}

// CheckSeek returns ErrOutOfRange if pos is beyond the known size.
func (b *IOBase) CheckSeek(pos int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pos < 0 || (b.desc.Size > 0 && pos > b.desc.Size) {
		return fmt.Errorf("%s: seek to %d of %d: %w", b.Kind, pos, b.desc.Size, ErrOutOfRange)
	}
	return nil
}

// Opened reports if transport is open.
func (b *IOBase) Opened() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened
}

// SetOpened marks transport open or closed. Closing resets position.
func (b *IOBase) SetOpened(opened bool) {
	b.mu.Lock()
	b.opened = opened
	if !opened {
		b.desc.Pos = 0
	}
	b.mu.Unlock()
}
