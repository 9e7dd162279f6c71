// Package decoder provides the audio decoder element. It selects a codec
// from the codec registry by the configured format and reports the decoded
// stream description downstream.
package decoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"pipelined.dev/player/codec"
	"pipelined.dev/player/pipe"
	"pipelined.dev/player/port"
	"pipelined.dev/player/sound"
)

// Name of the decoder element in pools.
const Name = "aud_dec"

const (
	defaultInSize  = 1024
	defaultOutSize = 2048
)

// Option configures the decoder.
type Option func(*Decoder)

// WithBlockSizes sets input read size and output block size.
func WithBlockSizes(in, out int) Option {
	return func(d *Decoder) {
		if in > 0 {
			d.inSize = in
		}
		if out > 0 {
			d.outSize = out
		}
	}
}

// Decoder is the decoding element.
type Decoder struct {
	inSize  int
	outSize int

	mu     sync.Mutex
	info   sound.Info
	opened bool

	ports    pipe.Ports
	src      *Reader
	dec      codec.Decoder
	reported *sound.Info
	done     bool
}

// New returns decoder configured with the default stream description.
func New(options ...Option) *Decoder {
	d := &Decoder{
		inSize:  defaultInSize,
		outSize: defaultOutSize,
		info:    sound.Default,
	}
	for _, option := range options {
		option(d)
	}
	return d
}

// Factory returns pool factory of decoders.
func Factory(options ...Option) pipe.ElementFactory {
	return func() (pipe.Element, error) {
		return New(options...), nil
	}
}

// Name implements pipe.Element.
func (d *Decoder) Name() string {
	return Name
}

// Reconfigure sets format and stream description used by the next run.
func (d *Decoder) Reconfigure(info sound.Info) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.opened {
		return fmt.Errorf("%s: reconfigure while running: %w", Name, pipe.ErrInvalidState)
	}
	d.info = info
	return nil
}

// Info returns configured stream description.
func (d *Decoder) Info() sound.Info {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.info
}

// Open implements pipe.Element.
func (d *Decoder) Open(ctx context.Context, p pipe.Ports) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.info.Format == sound.None {
		return fmt.Errorf("%s: no format: %w", Name, pipe.ErrNotSupported)
	}
	d.ports = p
	d.src = NewReader(ctx, p.In, d.inSize)
	d.dec = nil
	d.reported = nil
	d.done = false
	d.opened = true
	return nil
}

// Process decodes one output block.
func (d *Decoder) Process(ctx context.Context) (pipe.Result, error) {
	if d.done {
		return pipe.Done, nil
	}
	if d.dec == nil {
		dec, err := codec.NewDecoder(d.info.Format, d.src, d.info)
		if err != nil {
			return pipe.OK, err
		}
		d.dec = dec
	}
	if info := d.dec.Info(); d.reported == nil || *d.reported != info {
		d.reported = &info
		d.ports.Report(info)
	}

	out, err := d.ports.Out.AcquireWrite(ctx, d.outSize)
	if err != nil {
		return pipe.OK, err
	}
	n, err := io.ReadFull(d.dec, out.Buf)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		out.Last = true
	default:
		out.Valid = 0
		d.ports.Out.ReleaseWrite(ctx, out)
		return pipe.OK, err
	}
	out.Valid = n
	if err := d.ports.Out.ReleaseWrite(ctx, out); err != nil {
		return pipe.OK, err
	}
	if out.Last {
		d.done = true
		return pipe.Done, nil
	}
	return pipe.OK, nil
}

// Close implements pipe.Element.
func (d *Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = false
	var err error
	if d.dec != nil {
		err = d.dec.Close()
		d.dec = nil
	}
	if d.src != nil {
		d.src.release()
	}
	return err
}

// Reset implements pipe.Resetter.
func (d *Decoder) Reset() error {
	d.mu.Lock()
	d.reported = nil
	d.mu.Unlock()
	return nil
}

// Reader adapts port reader to io.Reader. It fills the whole buffer unless
// the stream ends.
type Reader struct {
	ctx    context.Context
	in     port.Reader
	wanted int
	blk    *port.Block
	off    int
	eof    bool
}

// NewReader returns reader which acquires up to wanted bytes at once.
func NewReader(ctx context.Context, in port.Reader, wanted int) *Reader {
	return &Reader{ctx: ctx, in: in, wanted: wanted}
}

func (r *Reader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if r.eof {
			break
		}
		if r.blk == nil {
			wanted := len(p) - n
			if wanted < r.wanted {
				wanted = r.wanted
			}
			blk, err := r.in.AcquireRead(r.ctx, wanted)
			if err != nil {
				return n, err
			}
			r.blk, r.off = blk, 0
		}
		c := copy(p[n:], r.blk.Bytes()[r.off:])
		n += c
		r.off += c
		if r.off == r.blk.Valid {
			last := r.blk.Last
			err := r.in.ReleaseRead(r.ctx, r.blk)
			r.blk = nil
			if err != nil {
				return n, err
			}
			r.eof = last
		}
	}
	if n == 0 && r.eof && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (r *Reader) release() {
	if r.blk != nil {
		r.in.ReleaseRead(r.ctx, r.blk)
		r.blk = nil
	}
}
