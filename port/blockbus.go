package port

import (
	"context"
	"sync"
)

// BlockBus hands over whole blocks from writer to reader without copying.
// A read returns the next filled block regardless of the wanted size.
type BlockBus struct {
	mu     sync.Mutex
	all    []*Block
	free   []*Block
	filled []*Block
	done   bool
	err    error
	notify notifier

	rd, wr *Block
	last   Block
}

// NewBlockBus returns a bus of n blocks, each with size bytes.
func NewBlockBus(n, size int) *BlockBus {
	if n <= 0 {
		n = 1
	}
	b := BlockBus{
		all:  make([]*Block, n),
		last: Block{Last: true},
	}
	for i := range b.all {
		b.all[i] = &Block{Buf: make([]byte, size)}
	}
	b.free = append(make([]*Block, 0, n), b.all...)
	return &b
}

// AcquireRead waits for the next filled block. After Done and once all
// blocks are consumed, it returns an empty block with Last set.
func (b *BlockBus) AcquireRead(ctx context.Context, _ int) (*Block, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rd != nil {
		return nil, ErrAcquired
	}
	for {
		if b.err != nil {
			return nil, b.err
		}
		if len(b.filled) > 0 {
			b.rd = b.filled[0]
			b.filled = b.filled[1:]
			return b.rd, nil
		}
		if b.done {
			b.last.Valid = 0
			b.rd = &b.last
			return b.rd, nil
		}
		ch := b.notify.wait()
		b.mu.Unlock()
		err := park(ctx, ch)
		b.mu.Lock()
		if err != nil {
			return nil, err
		}
	}
}

// ReleaseRead returns the block to the writer.
func (b *BlockBus) ReleaseRead(_ context.Context, blk *Block) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rd == nil || blk != b.rd {
		return ErrNotAcquired
	}
	b.rd = nil
	if blk != &b.last {
		b.free = append(b.free, blk)
		b.notify.broadcast()
	}
	return b.err
}

// AcquireWrite waits for a free block. The block is grown if wanted exceeds
// its size.
func (b *BlockBus) AcquireWrite(ctx context.Context, wanted int) (*Block, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.wr != nil {
		return nil, ErrAcquired
	}
	for {
		if b.err != nil {
			return nil, b.err
		}
		if b.done {
			return nil, ErrDone
		}
		if len(b.free) > 0 {
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
	blk := b.free[len(b.free)-1]
	b.free = b.free[:len(b.free)-1]
	if wanted > len(blk.Buf) {
		blk.Buf = grow(blk.Buf, wanted)
	}
	blk.Valid = 0
	blk.Last = false
	b.wr = blk
	return blk, nil
}

// ReleaseWrite queues the block for the reader.
func (b *BlockBus) ReleaseWrite(_ context.Context, blk *Block) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.wr == nil || blk != b.wr {
		return ErrNotAcquired
	}
	b.wr = nil
	if b.err != nil {
		b.free = append(b.free, blk)
		return b.err
	}
	if blk.Valid > len(blk.Buf) {
		blk.Valid = len(blk.Buf)
	}
	b.filled = append(b.filled, blk)
	if blk.Last {
		b.done = true
	}
	b.notify.broadcast()
	return nil
}

// Done marks the end of data.
func (b *BlockBus) Done() {
	b.mu.Lock()
	b.done = true
	b.notify.broadcast()
	b.mu.Unlock()
}

// Abort unblocks both sides with ErrAbort.
func (b *BlockBus) Abort() {
	b.mu.Lock()
	if b.err == nil {
		b.err = ErrAbort
	}
	b.notify.broadcast()
	b.mu.Unlock()
}

// Fail unblocks both sides with err wrapped into ErrFail.
func (b *BlockBus) Fail(err error) {
	b.mu.Lock()
	if b.err == nil {
		b.err = failure(err)
	}
	b.notify.broadcast()
	b.mu.Unlock()
}

// Reset returns all blocks to the free list and clears terminal state.
func (b *BlockBus) Reset() {
	b.mu.Lock()
	b.free = append(b.free[:0], b.all...)
	b.filled = b.filled[:0]
	b.done = false
	b.err = nil
	b.rd, b.wr = nil, nil
	b.notify.broadcast()
	b.mu.Unlock()
}
