// Package encoder provides element that encodes PCM with registered codec
// encoders.
package encoder

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"pipelined.dev/player/codec"
	"pipelined.dev/player/pipe"
	"pipelined.dev/player/sound"
)

// Name of element in pools.
const Name = "aud_enc"

// DefaultBitrate in kbps.
const DefaultBitrate = 128

const readSize = 4096

// Config of encoder element.
type Config struct {
	Format sound.Format
	// Bitrate in kbps.
	Bitrate int
}

// Encoder is an encoding element. PCM description comes from upstream or
// sound.Default when upstream never reports.
type Encoder struct {
	mu   sync.Mutex
	cfg  Config
	in   sound.Info
	info bool

	ports pipe.Ports
	enc   codec.Encoder
	buf   bytes.Buffer
	done  bool
}

// New returns encoder element.
func New(cfg Config) *Encoder {
	if cfg.Bitrate <= 0 {
		cfg.Bitrate = DefaultBitrate
	}
	return &Encoder{cfg: cfg, in: sound.Default}
}

// Factory returns pool factory of encoder elements.
func Factory(cfg Config) pipe.ElementFactory {
	return func() (pipe.Element, error) {
		return New(cfg), nil
	}
}

// Name implements pipe.Element.
func (e *Encoder) Name() string {
	return Name
}

// ApplyInfo implements pipe.InfoApplier.
func (e *Encoder) ApplyInfo(in sound.Info) sound.Info {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.in = in
	e.info = true
	out := in
	out.Format = e.cfg.Format
	out.Bitrate = e.cfg.Bitrate * 1000
	return out
}

// Open implements pipe.Element.
func (e *Encoder) Open(_ context.Context, p pipe.Ports) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cfg.Format == sound.None {
		return fmt.Errorf("%s: no format: %w", Name, pipe.ErrNotSupported)
	}
	e.ports = p
	e.buf.Reset()
	e.done = false
	return nil
}

// Process encodes one input block.
func (e *Encoder) Process(ctx context.Context) (pipe.Result, error) {
	if e.done {
		return pipe.Done, nil
	}
	if e.enc == nil {
		e.mu.Lock()
		enc, err := codec.NewEncoder(e.cfg.Format, &e.buf, e.in, e.cfg.Bitrate)
		e.mu.Unlock()
		if err != nil {
			return pipe.OK, err
		}
		e.enc = enc
	}
	in, err := e.ports.In.AcquireRead(ctx, readSize)
	if err != nil {
		return pipe.OK, err
	}
	last := in.Last
	if _, err := e.enc.Write(in.Bytes()); err != nil {
		e.ports.In.ReleaseRead(ctx, in)
		return pipe.OK, err
	}
	if err := e.ports.In.ReleaseRead(ctx, in); err != nil {
		return pipe.OK, err
	}
	if last {
		err := e.enc.Close()
		e.enc = nil
		if err != nil {
			return pipe.OK, err
		}
	}

	out, err := e.ports.Out.AcquireWrite(ctx, e.buf.Len())
	if err != nil {
		return pipe.OK, err
	}
	out.Valid, _ = e.buf.Read(out.Buf)
	out.Last = last
	if err := e.ports.Out.ReleaseWrite(ctx, out); err != nil {
		return pipe.OK, err
	}
	if last {
		e.done = true
		return pipe.Done, nil
	}
	return pipe.OK, nil
}

// Close implements pipe.Element.
func (e *Encoder) Close() error {
	if e.enc == nil {
		return nil
	}
	err := e.enc.Close()
	e.enc = nil
	return err
}

// Reset implements pipe.Resetter.
func (e *Encoder) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.in = sound.Default
	e.info = false
	return nil
}
