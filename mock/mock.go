// Package mock provides transports, elements and codecs for tests.
package mock

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"pipelined.dev/player/pipe"
	"pipelined.dev/player/port"
	"pipelined.dev/player/sound"
)

const defaultBlockSize = 512

// ErrMock is returned by components configured to fail.
var ErrMock = errors.New("mock error")

// counter counts blocks and bytes.
type counter struct {
	mu       sync.Mutex
	messages int64
	bytes    int64
}

func (c *counter) advance(n int) {
	c.mu.Lock()
	c.messages++
	c.bytes += int64(n)
	c.mu.Unlock()
}

func (c *counter) reset() {
	c.mu.Lock()
	c.messages, c.bytes = 0, 0
	c.mu.Unlock()
}

// Count returns number of blocks and bytes passed.
func (c *counter) Count() (int64, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages, c.bytes
}

// Source produces Limit blocks of BlockSize bytes filled with Value.
type Source struct {
	pipe.IOBase
	counter
	Limit     int
	BlockSize int
	Value     byte
	// Interval delays every block.
	Interval time.Duration
	// Data overrides generated content when set.
	Data []byte

	ErrorOnOpen error
	ErrorOnRead error
	// Hold blocks reads until context is done or transport aborted.
	Hold bool

	opens   int
	sent    int
	aborted bool
	abort   chan struct{}
	blk     port.Block
}

// NewSource returns source transport registered as name.
func NewSource(name string) *Source {
	return &Source{IOBase: pipe.IOBase{Kind: name, Dir: pipe.Read}}
}

// Factory returns pool factory of mock sources.
func (s *Source) Factory() pipe.IOFactory {
	return func(pipe.Direction) (pipe.Transport, error) {
		return s, nil
	}
}

// Opens returns number of Open calls.
func (s *Source) Opens() int {
	s.counter.mu.Lock()
	defer s.counter.mu.Unlock()
	return s.opens
}

// Open implements pipe.Transport.
func (s *Source) Open(context.Context) error {
	s.counter.mu.Lock()
	s.opens++
	s.counter.mu.Unlock()
	if s.ErrorOnOpen != nil {
		return s.ErrorOnOpen
	}
	s.sent = 0
	s.counter.reset()
	s.SetOpened(true)
	return nil
}

// AcquireRead implements port.Reader.
func (s *Source) AcquireRead(ctx context.Context, wanted int) (*port.Block, error) {
	if s.Hold {
		select {
		case <-ctx.Done():
		case <-s.aborts():
		}
		return nil, port.ErrAbort
	}
	if s.ErrorOnRead != nil {
		return nil, s.ErrorOnRead
	}
	if s.Interval > 0 {
		time.Sleep(s.Interval)
	}
	size := s.BlockSize
	if size == 0 {
		size = defaultBlockSize
	}
	if s.Data != nil {
		pos := int(s.Pos())
		end := pos + wanted
		if end > len(s.Data) {
			end = len(s.Data)
		}
		s.blk.Buf = append(s.blk.Buf[:0], s.Data[pos:end]...)
		s.blk.Valid = end - pos
		s.blk.Last = end == len(s.Data)
		return &s.blk, nil
	}
	if s.sent >= s.Limit {
		s.blk.Buf, s.blk.Valid, s.blk.Last = s.blk.Buf[:0], 0, true
		return &s.blk, nil
	}
	s.blk.Buf = append(s.blk.Buf[:0], bytes.Repeat([]byte{s.Value}, size)...)
	s.blk.Valid = size
	s.blk.Last = s.sent == s.Limit-1
	return &s.blk, nil
}

// ReleaseRead implements port.Reader.
func (s *Source) ReleaseRead(_ context.Context, b *port.Block) error {
	if b.Valid > 0 {
		s.sent++
		s.Advance(b.Valid)
		s.advance(b.Valid)
	}
	return nil
}

// Seek implements pipe.Transport.
func (s *Source) Seek(pos int64) error {
	if err := s.CheckSeek(pos); err != nil {
		return err
	}
	s.SetPos(pos)
	return nil
}

func (s *Source) aborts() chan struct{} {
	s.counter.mu.Lock()
	defer s.counter.mu.Unlock()
	if s.abort == nil {
		s.abort = make(chan struct{})
	}
	return s.abort
}

// Abort implements pipe.Aborter.
func (s *Source) Abort() {
	ch := s.aborts()
	s.counter.mu.Lock()
	defer s.counter.mu.Unlock()
	if !s.aborted {
		s.aborted = true
		close(ch)
	}
}

// Close implements pipe.Transport.
func (s *Source) Close() error {
	s.SetOpened(false)
	return nil
}

// Sink collects all written data.
type Sink struct {
	pipe.IOBase
	counter
	ErrorOnOpen  error
	ErrorOnWrite error

	mu     sync.Mutex
	buf    bytes.Buffer
	info   sound.Info
	last   bool
	closes int
	blk    port.Block
}

// NewSink returns sink transport registered as name.
func NewSink(name string) *Sink {
	return &Sink{IOBase: pipe.IOBase{Kind: name, Dir: pipe.Write}}
}

// Factory returns pool factory of mock sinks.
func (s *Sink) Factory() pipe.IOFactory {
	return func(pipe.Direction) (pipe.Transport, error) {
		return s, nil
	}
}

// Open implements pipe.Transport.
func (s *Sink) Open(context.Context) error {
	if s.ErrorOnOpen != nil {
		return s.ErrorOnOpen
	}
	s.mu.Lock()
	s.buf.Reset()
	s.last = false
	s.mu.Unlock()
	s.counter.reset()
	s.SetOpened(true)
	return nil
}

// AcquireWrite implements port.Writer.
func (s *Sink) AcquireWrite(_ context.Context, wanted int) (*port.Block, error) {
	if cap(s.blk.Buf) < wanted {
		s.blk.Buf = make([]byte, wanted)
	}
	s.blk.Buf = s.blk.Buf[:wanted]
	s.blk.Valid, s.blk.Last = 0, false
	return &s.blk, nil
}

// ReleaseWrite implements port.Writer.
func (s *Sink) ReleaseWrite(_ context.Context, b *port.Block) error {
	if s.ErrorOnWrite != nil {
		return s.ErrorOnWrite
	}
	s.mu.Lock()
	s.buf.Write(b.Bytes())
	if b.Last {
		s.last = true
	}
	s.mu.Unlock()
	s.Advance(b.Valid)
	s.advance(b.Valid)
	return nil
}

// Seek implements pipe.Transport.
func (s *Sink) Seek(int64) error {
	return nil
}

// Close implements pipe.Transport.
func (s *Sink) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	s.SetOpened(false)
	return nil
}

// ApplyInfo implements pipe.InfoApplier.
func (s *Sink) ApplyInfo(info sound.Info) sound.Info {
	s.mu.Lock()
	s.info = info
	s.mu.Unlock()
	return info
}

// Bytes returns collected data.
func (s *Sink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.buf.Bytes()...)
}

// Info returns last applied stream description.
func (s *Sink) Info() sound.Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Last reports if the terminal block was written.
func (s *Sink) Last() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Closes returns number of Close calls.
func (s *Sink) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// Element passes blocks through. It reports Info on first block if set.
type Element struct {
	counter
	ElementName    string
	Info           *sound.Info
	ErrorOnOpen    error
	ErrorOnProcess error
	// Gain is added to every byte.
	Gain byte

	mu      sync.Mutex
	ports   pipe.Ports
	applied sound.Info
	started bool
	resets  int
}

// Factory returns pool factory which creates new elements from template.
func (e *Element) Factory() pipe.ElementFactory {
	return func() (pipe.Element, error) {
		return e, nil
	}
}

// Name implements pipe.Element.
func (e *Element) Name() string {
	return e.ElementName
}

// Open implements pipe.Element.
func (e *Element) Open(_ context.Context, p pipe.Ports) error {
	if e.ErrorOnOpen != nil {
		return e.ErrorOnOpen
	}
	e.ports = p
	e.started = false
	e.counter.reset()
	return nil
}

// Process implements pipe.Element.
func (e *Element) Process(ctx context.Context) (pipe.Result, error) {
	if e.ErrorOnProcess != nil {
		return pipe.OK, e.ErrorOnProcess
	}
	in, err := e.ports.In.AcquireRead(ctx, defaultBlockSize)
	if err != nil {
		return pipe.OK, err
	}
	if !e.started && e.Info != nil {
		e.started = true
		e.ports.Report(*e.Info)
	}
	out, err := e.ports.Out.AcquireWrite(ctx, in.Valid)
	if err != nil {
		e.ports.In.ReleaseRead(ctx, in)
		return pipe.OK, err
	}
	out.Valid = copy(out.Buf, in.Bytes())
	for i := range out.Buf[:out.Valid] {
		out.Buf[i] += e.Gain
	}
	out.Last = in.Last
	last := in.Last
	e.advance(in.Valid)
	if err := e.ports.Out.ReleaseWrite(ctx, out); err != nil {
		e.ports.In.ReleaseRead(ctx, in)
		return pipe.OK, err
	}
	if err := e.ports.In.ReleaseRead(ctx, in); err != nil {
		return pipe.OK, err
	}
	if last {
		return pipe.Done, nil
	}
	return pipe.OK, nil
}

// Close implements pipe.Element.
func (e *Element) Close() error {
	return nil
}

// Reset implements pipe.Resetter.
func (e *Element) Reset() error {
	e.mu.Lock()
	e.resets++
	e.mu.Unlock()
	return nil
}

// Resets returns number of Reset calls.
func (e *Element) Resets() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resets
}

// ApplyInfo implements pipe.InfoApplier.
func (e *Element) ApplyInfo(info sound.Info) sound.Info {
	e.mu.Lock()
	e.applied = info
	e.mu.Unlock()
	return info
}

// Applied returns last stream description received from upstream.
func (e *Element) Applied() sound.Info {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applied
}
