// Package port provides the data buses that connect transports and
// processing elements. A bus has exactly one reader and one writer. Each
// side acquires a block, works on it and releases it before acquiring the
// next one.
//
// Blocking calls take a context: its deadline is the acquire timeout and
// context.Background waits forever.
package port

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrAbort is returned to every parked or future caller after Abort.
	ErrAbort = errors.New("port: aborted")
	// ErrFail is returned after the producing side failed with an I/O error.
	ErrFail = errors.New("port: failed")
	// ErrTimeout is returned when the context deadline expires while waiting.
	ErrTimeout = errors.New("port: timeout")
	// ErrDone is returned when a write is acquired after the end of data.
	ErrDone = errors.New("port: done")
	// ErrNotAcquired is returned when a block is released without acquire.
	ErrNotAcquired = errors.New("port: release without acquire")
	// ErrAcquired is returned when a side acquires twice without release.
	ErrAcquired = errors.New("port: block already acquired")
)

// Block is a unit of data exchanged over a bus.
type Block struct {
	Buf   []byte // Storage, its length is the usable capacity.
	Valid int    // Number of meaningful bytes in Buf.
	Last  bool   // No data follows this block.
}

// Bytes returns the valid part of the block.
func (b *Block) Bytes() []byte {
	return b.Buf[:b.Valid]
}

// Reader is the consuming side of a bus.
type Reader interface {
	AcquireRead(ctx context.Context, wanted int) (*Block, error)
	ReleaseRead(ctx context.Context, b *Block) error
}

// Writer is the producing side of a bus.
type Writer interface {
	AcquireWrite(ctx context.Context, wanted int) (*Block, error)
	ReleaseWrite(ctx context.Context, b *Block) error
}

// Bus connects one Writer with one Reader.
type Bus interface {
	Reader
	Writer
	// Done marks the end of data.
	Done()
	// Abort unblocks both sides with ErrAbort.
	Abort()
	// Fail unblocks both sides with an error that matches ErrFail.
	Fail(error)
	// Reset restores the bus to its initial empty state.
	Reset()
}

// notifier broadcasts state changes to goroutines parked on a bus. It must
// be used under the bus mutex.
type notifier struct {
	ch chan struct{}
}

func (n *notifier) wait() <-chan struct{} {
	if n.ch == nil {
		n.ch = make(chan struct{})
	}
	return n.ch
}

func (n *notifier) broadcast() {
	if n.ch != nil {
		close(n.ch)
		n.ch = nil
	}
}

// park blocks until ch is closed or ctx is done.
func park(ctx context.Context, ch <-chan struct{}) error {
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return fmt.Errorf("%w: %w", ErrAbort, ctx.Err())
	}
}

func failure(err error) error {
	switch {
	case err == nil:
		return ErrFail
	case errors.Is(err, ErrFail):
		return err
	}
	return fmt.Errorf("%w: %w", ErrFail, err)
}

func grow(buf []byte, size int) []byte {
	if cap(buf) >= size {
		return buf[:size]
	}
	return make([]byte, size)
}

var (
	_ Bus = (*ByteBus)(nil)
	_ Bus = (*BlockBus)(nil)
)
