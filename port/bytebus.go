package port

import (
	"context"
	"sync"
)

// ByteBus is a ring buffer bus. Readers and writers see byte streams: any
// wanted size is served by copying in or out of the ring.
type ByteBus struct {
	mu     sync.Mutex
	ring   []byte
	head   int
	filled int
	done   bool
	err    error
	notify notifier

	rd, wr     *Block
	rblk, wblk Block
}

// NewByteBus returns a ring buffer bus of given capacity.
func NewByteBus(capacity int) *ByteBus {
	if capacity <= 0 {
		capacity = 1
	}
	return &ByteBus{ring: make([]byte, capacity)}
}

// Cap returns capacity of the ring.
func (b *ByteBus) Cap() int {
	return len(b.ring)
}

func (b *ByteBus) clamp(wanted int) int {
	if wanted <= 0 {
		return 1
	}
	if wanted > len(b.ring) {
		return len(b.ring)
	}
	return wanted
}

// AcquireRead waits until wanted bytes are buffered or the end of data is
// reached. The returned block holds at most wanted bytes. Once all data is
// consumed after Done, it returns an empty block with Last set.
func (b *ByteBus) AcquireRead(ctx context.Context, wanted int) (*Block, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rd != nil {
		return nil, ErrAcquired
	}
	wanted = b.clamp(wanted)
	for {
		if b.err != nil {
			return nil, b.err
		}
		if b.filled >= wanted || b.done {
			break
		}
		ch := b.notify.wait()
		b.mu.Unlock()
		err := park(ctx, ch)
		b.mu.Lock()
		if err != nil {
			return nil, err
		}
	}
	n := wanted
	if b.filled < n {
		n = b.filled
	}
	b.rblk.Buf = grow(b.rblk.Buf, wanted)
	first := copy(b.rblk.Buf[:n], b.ring[b.head:])
	copy(b.rblk.Buf[first:n], b.ring)
	b.rblk.Valid = n
	b.rblk.Last = b.done && n == b.filled
	b.rd = &b.rblk
	return b.rd, nil
}

// ReleaseRead consumes Valid bytes of the block. Reader may lower Valid to
// consume only a part of it.
func (b *ByteBus) ReleaseRead(_ context.Context, blk *Block) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rd == nil || blk != b.rd {
		return ErrNotAcquired
	}
	b.rd = nil
	if b.err != nil {
		return b.err
	}
	n := blk.Valid
	if n > b.filled {
		n = b.filled
	}
	if n > 0 {
		b.head = (b.head + n) % len(b.ring)
		b.filled -= n
		b.notify.broadcast()
	}
	return nil
}

// AcquireWrite waits until wanted bytes of free space are available.
func (b *ByteBus) AcquireWrite(ctx context.Context, wanted int) (*Block, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.wr != nil {
		return nil, ErrAcquired
	}
	wanted = b.clamp(wanted)
	for {
		if b.err != nil {
			return nil, b.err
		}
		if b.done {
			return nil, ErrDone
		}
		if len(b.ring)-b.filled >= wanted {
			break
		}
		ch := b.notify.wait()
		b.mu.Unlock()
		err := park(ctx, ch)
		b.mu.Lock()
		if err != nil {
			return nil, err
		}
	}
	b.wblk.Buf = grow(b.wblk.Buf, wanted)
	b.wblk.Valid = 0
	b.wblk.Last = false
	b.wr = &b.wblk
	return b.wr, nil
}

// ReleaseWrite commits Valid bytes of the block into the ring.
func (b *ByteBus) ReleaseWrite(_ context.Context, blk *Block) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.wr == nil || blk != b.wr {
		return ErrNotAcquired
	}
	b.wr = nil
	if b.err != nil {
		return b.err
	}
	n := blk.Valid
	if n > len(blk.Buf) {
		n = len(blk.Buf)
	}
	if free := len(b.ring) - b.filled; n > free {
		n = free
	}
	tail := (b.head + b.filled) % len(b.ring)
	first := copy(b.ring[tail:], blk.Buf[:n])
	copy(b.ring, blk.Buf[first:n])
	b.filled += n
	if blk.Last {
		b.done = true
	}
	b.notify.broadcast()
	return nil
}

// Done marks the end of data.
func (b *ByteBus) Done() {
	b.mu.Lock()
	b.done = true
	b.notify.broadcast()
	b.mu.Unlock()
}

// Abort unblocks both sides with ErrAbort.
func (b *ByteBus) Abort() {
	b.mu.Lock()
	if b.err == nil {
		b.err = ErrAbort
	}
	b.notify.broadcast()
	b.mu.Unlock()
}

// Fail unblocks both sides with err wrapped into ErrFail.
func (b *ByteBus) Fail(err error) {
	b.mu.Lock()
	if b.err == nil {
		b.err = failure(err)
	}
	b.notify.broadcast()
	b.mu.Unlock()
}

// Reset drops buffered data and terminal state.
func (b *ByteBus) Reset() {
	b.mu.Lock()
	b.head, b.filled = 0, 0
	b.done = false
	b.err = nil
	b.rd, b.wr = nil, nil
	b.notify.broadcast()
	b.mu.Unlock()
}
