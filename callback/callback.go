// Package callback provides transports over user functions. Reader pulls
// bytes from a user source, Writer pushes PCM into a user sink.
package callback

import (
	"context"
	"errors"
	"fmt"
	"io"

	"pipelined.dev/player/pipe"
	"pipelined.dev/player/port"
	"pipelined.dev/player/sound"
)

// Name of callback transports in pools.
const Name = "io_callback"

// DataFunc moves bytes between pipeline and user. Readers fill p and
// writers consume it.
type DataFunc func(p []byte) (int, error)

// InfoFunc receives description of the stream written to a Writer.
type InfoFunc func(sound.Info)

type base struct {
	pipe.IOBase
	fn       DataFunc
	blk      port.Block
	acquired bool
}

func (b *base) open() error {
	if b.fn == nil {
		return fmt.Errorf("%s: no callback: %w", Name, pipe.ErrInvalidArg)
	}
	b.acquired = false
	b.SetOpened(true)
	return nil
}

func (b *base) acquire(wanted int) (*port.Block, error) {
	if !b.Opened() {
		return nil, fmt.Errorf("%s: %v: %w", Name, b.Dir, pipe.ErrInvalidState)
	}
	if b.acquired {
		return nil, port.ErrAcquired
	}
	if cap(b.blk.Buf) < wanted {
		b.blk.Buf = make([]byte, wanted)
	}
	b.blk.Buf = b.blk.Buf[:wanted]
	b.blk.Valid, b.blk.Last = 0, false
	b.acquired = true
	return &b.blk, nil
}

func (b *base) release(blk *port.Block) error {
	if !b.acquired || blk != &b.blk {
		return port.ErrNotAcquired
	}
	b.acquired = false
	return nil
}

// Seek is not supported by user functions.
func (b *base) Seek(int64) error {
	return fmt.Errorf("%s: seek: %w", Name, pipe.ErrNotSupported)
}

// Close implements pipe.Transport.
func (b *base) Close() error {
	b.acquired = false
	b.SetOpened(false)
	return nil
}

// Reader is a pipeline source over user function.
type Reader struct {
	base
}

// NewReader returns source calling fn for data. A short read or io.EOF
// ends the stream.
func NewReader(fn DataFunc) *Reader {
	return &Reader{base{IOBase: pipe.IOBase{Kind: Name, Dir: pipe.Read}, fn: fn}}
}

// Open implements pipe.Transport.
func (r *Reader) Open(context.Context) error {
	return r.open()
}

// AcquireRead calls user function to fill the block.
func (r *Reader) AcquireRead(_ context.Context, wanted int) (*port.Block, error) {
	b, err := r.acquire(wanted)
	if err != nil {
		return nil, err
	}
	n, err := r.fn(b.Buf)
	b.Valid = max(0, min(n, len(b.Buf)))
	switch {
	case err == nil:
		b.Last = b.Valid < wanted
	case errors.Is(err, io.EOF):
		b.Last = true
	default:
		r.acquired = false
		return nil, fmt.Errorf("%s: %w: %w", Name, pipe.ErrFail, err)
	}
	return b, nil
}

// ReleaseRead implements port.Reader.
func (r *Reader) ReleaseRead(_ context.Context, b *port.Block) error {
	if err := r.release(b); err != nil {
		return err
	}
	r.Advance(b.Valid)
	return nil
}

// Writer is a pipeline sink over user function.
type Writer struct {
	base
	info InfoFunc
}

// NewWriter returns sink passing every block to fn. Info function is
// optional.
func NewWriter(fn DataFunc, info InfoFunc) *Writer {
	return &Writer{
		base: base{IOBase: pipe.IOBase{Kind: Name, Dir: pipe.Write}, fn: fn},
		info: info,
	}
}

// Open implements pipe.Transport.
func (w *Writer) Open(context.Context) error {
	return w.open()
}

// ApplyInfo forwards stream description to the user.
func (w *Writer) ApplyInfo(info sound.Info) sound.Info {
	if w.info != nil {
		w.info(info)
	}
	return info
}

// AcquireWrite implements port.Writer.
func (w *Writer) AcquireWrite(_ context.Context, wanted int) (*port.Block, error) {
	return w.acquire(wanted)
}

// ReleaseWrite passes valid bytes to user function.
func (w *Writer) ReleaseWrite(_ context.Context, b *port.Block) error {
	if err := w.release(b); err != nil {
		return err
	}
	if b.Valid == 0 {
		return nil
	}
	n, err := w.fn(b.Bytes())
	w.Advance(n)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", Name, pipe.ErrFail, err)
	}
	if n < b.Valid {
		return fmt.Errorf("%s: short write %d of %d: %w", Name, n, b.Valid, pipe.ErrFail)
	}
	return nil
}
