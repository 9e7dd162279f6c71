// Package pdm provides transport which plays PCM through a PDM transmit
// channel. Close waits until the channel reports the queued audio has been
// sent.
package pdm

import (
	"context"
	"fmt"
	"time"

	"pipelined.dev/player/pipe"
	"pipelined.dev/player/port"
	"pipelined.dev/player/sound"
)

// DefaultDrainTimeout is used when Config has no timeout.
const DefaultDrainTimeout = time.Second

// Channel is a PDM transmit channel.
type Channel interface {
	// Enable starts the channel clocked for info.
	Enable(info sound.Info) error
	// Write queues PCM for transmission.
	Write(p []byte) (int, error)
	// OnSent registers function called every time queued data has been
	// transmitted. Nil removes it.
	OnSent(fn func())
	Disable() error
}

// Config of PDM transport.
type Config struct {
	// DrainTimeout bounds how long Close waits for transmission.
	DrainTimeout time.Duration
}

// PDM is write-only transport over a channel.
type PDM struct {
	pipe.IOBase
	ch  Channel
	cfg Config

	info     sound.Info
	err      error
	sent     chan struct{}
	queued   bool
	blk      port.Block
	acquired bool
}

// New returns PDM transport.
func New(ch Channel, cfg Config) *PDM {
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	return &PDM{
		IOBase: pipe.IOBase{Kind: pipe.IOPDM, Dir: pipe.Write},
		ch:     ch,
		cfg:    cfg,
		info:   sound.Default,
		sent:   make(chan struct{}, 1),
	}
}

// Factory returns pool factory of PDM transports. Readers are not
// supported.
func Factory(ch Channel, cfg Config) pipe.IOFactory {
	return func(dir pipe.Direction) (pipe.Transport, error) {
		if dir != pipe.Write {
			return nil, fmt.Errorf("%s: %v: %w", pipe.IOPDM, dir, pipe.ErrNotSupported)
		}
		return New(ch, cfg), nil
	}
}

func (p *PDM) notify() {
	select {
	case p.sent <- struct{}{}:
	default:
	}
}

// rearm drops notifications of data queued earlier.
func (p *PDM) rearm() {
	select {
	case <-p.sent:
	default:
	}
}

// Open registers sent notification and enables the channel.
func (p *PDM) Open(context.Context) error {
	if p.ch == nil {
		return fmt.Errorf("%s: no channel: %w", pipe.IOPDM, pipe.ErrFail)
	}
	p.rearm()
	p.ch.OnSent(p.notify)
	if err := p.ch.Enable(p.info); err != nil {
		p.ch.OnSent(nil)
		return fmt.Errorf("%s: enable %v: %w", pipe.IOPDM, p.info, err)
	}
	p.err = nil
	p.queued = false
	p.acquired = false
	p.SetOpened(true)
	return nil
}

// ApplyInfo reclocks enabled channel. Failure is returned by the next
// write.
func (p *PDM) ApplyInfo(info sound.Info) sound.Info {
	if p.info.SamePCM(info) {
		return info
	}
	p.info = info
	if p.Opened() {
		if err := p.ch.Enable(info); err != nil {
			p.err = fmt.Errorf("%s: enable %v: %w", pipe.IOPDM, info, err)
		}
	}
	return info
}

// AcquireWrite implements port.Writer.
func (p *PDM) AcquireWrite(_ context.Context, wanted int) (*port.Block, error) {
	if !p.Opened() {
		return nil, fmt.Errorf("%s: write: %w", pipe.IOPDM, pipe.ErrInvalidState)
	}
	if p.acquired {
		return nil, port.ErrAcquired
	}
	if cap(p.blk.Buf) < wanted {
		p.blk.Buf = make([]byte, wanted)
	}
	p.blk.Buf = p.blk.Buf[:wanted]
	p.blk.Valid, p.blk.Last = 0, false
	p.acquired = true
	return &p.blk, nil
}

// ReleaseWrite queues valid bytes. Every write re-arms sent notification,
// a pending one belongs to the newest queued data.
func (p *PDM) ReleaseWrite(_ context.Context, b *port.Block) error {
	if !p.acquired || b != &p.blk {
		return port.ErrNotAcquired
	}
	p.acquired = false
	if p.err != nil {
		return p.err
	}
	if b.Valid == 0 {
		return nil
	}
	p.rearm()
	n, err := p.ch.Write(b.Bytes())
	p.Advance(n)
	p.queued = true
	if err != nil {
		return fmt.Errorf("%s: %w: %w", pipe.IOPDM, pipe.ErrFail, err)
	}
	return nil
}

// Seek is a no-op.
func (p *PDM) Seek(int64) error {
	return nil
}

// Close waits for queued audio and disables the channel.
func (p *PDM) Close() error {
	if !p.Opened() {
		return nil
	}
	var err error
	if p.queued {
		select {
		case <-p.sent:
		case <-time.After(p.cfg.DrainTimeout):
			err = fmt.Errorf("%s: not sent in %v: %w", pipe.IOPDM, p.cfg.DrainTimeout, pipe.ErrFail)
		}
	}
	p.ch.OnSent(nil)
	if derr := p.ch.Disable(); derr != nil && err == nil {
		err = fmt.Errorf("%s: disable: %w", pipe.IOPDM, derr)
	}
	p.SetOpened(false)
	return err
}
