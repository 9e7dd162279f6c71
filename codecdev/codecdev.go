// Package codecdev provides transport over audio codec devices. Playback
// devices are written, capture devices are read.
package codecdev

import (
	"context"
	"errors"
	"fmt"
	"io"

	"pipelined.dev/player/pipe"
	"pipelined.dev/player/port"
	"pipelined.dev/player/sound"
)

type (
	// Device is an audio codec device. It reads and writes interleaved
	// little-endian PCM.
	Device interface {
		io.ReadWriter
	}

	// Configurer is implemented by devices which change clocking to
	// match the stream.
	Configurer interface {
		Configure(sound.Info) error
	}

	// Stopper is implemented by devices which release resources when
	// transport is closed.
	Stopper interface {
		Stop() error
	}
)

// Dev is codec device transport.
type Dev struct {
	pipe.IOBase
	dev Device

	info     sound.Info
	err      error
	blk      port.Block
	acquired bool
}

// New returns transport over device.
func New(dir pipe.Direction, dev Device) *Dev {
	return &Dev{
		IOBase: pipe.IOBase{Kind: pipe.IOCodecDev, Dir: dir},
		dev:    dev,
	}
}

// Factory returns pool factory of transports over the same device.
func Factory(dev Device) pipe.IOFactory {
	return func(dir pipe.Direction) (pipe.Transport, error) {
		return New(dir, dev), nil
	}
}

// Open implements pipe.Transport. Known stream description is applied to
// the device.
func (d *Dev) Open(context.Context) error {
	if d.dev == nil {
		return fmt.Errorf("%s: no device: %w", pipe.IOCodecDev, pipe.ErrFail)
	}
	d.err = nil
	d.acquired = false
	if d.info.Bits != 0 {
		if err := d.configure(); err != nil {
			return err
		}
	}
	d.SetOpened(true)
	return nil
}

func (d *Dev) configure() error {
	c, ok := d.dev.(Configurer)
	if !ok {
		return nil
	}
	if err := c.Configure(d.info); err != nil {
		return fmt.Errorf("%s: configure %v: %w", pipe.IOCodecDev, d.info, err)
	}
	return nil
}

// ApplyInfo reconfigures device of an open transport. Failure is returned
// by the next write.
func (d *Dev) ApplyInfo(info sound.Info) sound.Info {
	if d.info == info {
		return info
	}
	d.info = info
	if d.Opened() {
		d.err = d.configure()
	}
	return info
}

// AcquireRead captures up to wanted bytes.
func (d *Dev) AcquireRead(_ context.Context, wanted int) (*port.Block, error) {
	if err := d.acquire(pipe.Read, wanted); err != nil {
		return nil, err
	}
	n, err := d.dev.Read(d.blk.Buf)
	d.blk.Valid = n
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		d.blk.Last = true
	default:
		d.acquired = false
		return nil, fmt.Errorf("%s: %w: %w", pipe.IOCodecDev, pipe.ErrFail, err)
	}
	return &d.blk, nil
}

// ReleaseRead implements port.Reader.
func (d *Dev) ReleaseRead(_ context.Context, b *port.Block) error {
	if !d.acquired || b != &d.blk {
		return port.ErrNotAcquired
	}
	d.acquired = false
	d.Advance(b.Valid)
	return nil
}

// AcquireWrite implements port.Writer.
func (d *Dev) AcquireWrite(_ context.Context, wanted int) (*port.Block, error) {
	if err := d.acquire(pipe.Write, wanted); err != nil {
		return nil, err
	}
	return &d.blk, nil
}

// ReleaseWrite plays valid bytes.
func (d *Dev) ReleaseWrite(_ context.Context, b *port.Block) error {
	if !d.acquired || b != &d.blk {
		return port.ErrNotAcquired
	}
	d.acquired = false
	if d.err != nil {
		return d.err
	}
	n, err := d.dev.Write(b.Bytes())
	d.Advance(n)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", pipe.IOCodecDev, pipe.ErrFail, err)
	}
	return nil
}

func (d *Dev) acquire(dir pipe.Direction, wanted int) error {
	if !d.Opened() || d.Dir != dir {
		return fmt.Errorf("%s: %v: %w", pipe.IOCodecDev, dir, pipe.ErrInvalidState)
	}
	if d.acquired {
		return port.ErrAcquired
	}
	if cap(d.blk.Buf) < wanted {
		d.blk.Buf = make([]byte, wanted)
	}
	d.blk.Buf = d.blk.Buf[:wanted]
	d.blk.Valid, d.blk.Last = 0, false
	d.acquired = true
	return nil
}

// Seek is a no-op, devices have no position.
func (d *Dev) Seek(int64) error {
	return nil
}

// Close implements pipe.Transport.
func (d *Dev) Close() error {
	if !d.Opened() {
		return nil
	}
	d.SetOpened(false)
	d.acquired = false
	if s, ok := d.dev.(Stopper); ok {
		if err := s.Stop(); err != nil {
			return fmt.Errorf("%s: stop: %w", pipe.IOCodecDev, err)
		}
	}
	return nil
}
