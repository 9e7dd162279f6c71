// Package file provides local file transport.
package file

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"pipelined.dev/player/pipe"
	"pipelined.dev/player/port"
)

// Alignment of cache size in bytes. Cache sizes up to Alignment disable
// caching.
const Alignment = 512

// DefaultCacheSize is used by DefaultConfig.
const DefaultCacheSize = 4 * Alignment

// Config of file transport.
type Config struct {
	// CacheSize is rounded up to a multiple of Alignment.
	CacheSize int
}

// DefaultConfig returns config with cache enabled.
func DefaultConfig() Config {
	return Config{CacheSize: DefaultCacheSize}
}

func (c Config) cache() int {
	if c.CacheSize <= Alignment {
		return 0
	}
	return (c.CacheSize + Alignment - 1) / Alignment * Alignment
}

// File is a transport over local file. Readers open existing files,
// writers create or truncate them.
type File struct {
	pipe.IOBase
	cfg Config

	f  *os.File
	r  io.Reader
	br *bufio.Reader
	bw *bufio.Writer

	blk      port.Block
	acquired bool
}

// New returns file transport of given direction.
func New(dir pipe.Direction, cfg Config) *File {
	return &File{
		IOBase: pipe.IOBase{Kind: pipe.IOFile, Dir: dir},
		cfg:    cfg,
	}
}

// Factory returns pool factory of file transports.
func Factory(cfg Config) pipe.IOFactory {
	return func(dir pipe.Direction) (pipe.Transport, error) {
		return New(dir, cfg), nil
	}
}

// Path returns file system path of current URI.
func (t *File) Path() string {
	return pipe.MountPath(t.URI())
}

// Open implements pipe.Transport. Non-zero position resumes the stream.
func (t *File) Open(context.Context) error {
	if t.Opened() {
		return fmt.Errorf("%s: already open: %w", pipe.IOFile, pipe.ErrInvalidState)
	}
	if t.URI() == "" {
		return fmt.Errorf("%s: no uri: %w", pipe.IOFile, pipe.ErrInvalidArg)
	}
	var err error
	if t.Dir == pipe.Read {
		err = t.openReader()
	} else {
		err = t.openWriter()
	}
	if err != nil {
		if t.f != nil {
			t.f.Close()
			t.f = nil
		}
		return err
	}
	t.SetOpened(true)
	t.acquired = false
	return nil
}

func (t *File) openReader() error {
	f, err := os.Open(t.Path())
	if err != nil {
		return fmt.Errorf("%s: %w: %w", pipe.IOFile, pipe.ErrFail, err)
	}
	t.f = f
	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%s: %w: %w", pipe.IOFile, pipe.ErrFail, err)
	}
	t.SetSize(st.Size())
	if pos := t.Pos(); pos > 0 {
		if err := t.CheckSeek(pos); err != nil {
			return err
		}
		if _, err := f.Seek(pos, io.SeekStart); err != nil {
			return fmt.Errorf("%s: %w: %w", pipe.IOFile, pipe.ErrFail, err)
		}
	}
	t.r = f
	if size := t.cfg.cache(); size > 0 {
		t.br = bufio.NewReaderSize(f, size)
		t.r = t.br
	}
	return nil
}

func (t *File) openWriter() error {
	flag := os.O_WRONLY | os.O_CREATE
	pos := t.Pos()
	if pos == 0 {
		flag |= os.O_TRUNC
	}
	f, err := os.OpenFile(t.Path(), flag, 0o644)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", pipe.IOFile, pipe.ErrFail, err)
	}
	t.f = f
	if pos > 0 {
		if _, err := f.Seek(pos, io.SeekStart); err != nil {
			return fmt.Errorf("%s: %w: %w", pipe.IOFile, pipe.ErrFail, err)
		}
	}
	t.SetSize(0)
	if size := t.cfg.cache(); size > 0 {
		t.bw = bufio.NewWriterSize(f, size)
	}
	return nil
}

// AcquireRead reads up to wanted bytes. End of file sets Last.
func (t *File) AcquireRead(_ context.Context, wanted int) (*port.Block, error) {
	if !t.Opened() || t.Dir != pipe.Read {
		return nil, fmt.Errorf("%s: read: %w", pipe.IOFile, pipe.ErrInvalidState)
	}
	if t.acquired {
		return nil, port.ErrAcquired
	}
	if cap(t.blk.Buf) < wanted {
		t.blk.Buf = make([]byte, wanted)
	}
	t.blk.Buf = t.blk.Buf[:wanted]
	n, err := io.ReadFull(t.r, t.blk.Buf)
	t.blk.Valid, t.blk.Last = n, false
	switch {
	case err == nil:
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		t.blk.Last = true
	default:
		return nil, fmt.Errorf("%s: %w: %w", pipe.IOFile, pipe.ErrFail, err)
	}
	if size := t.Size(); size > 0 && t.Pos()+int64(n) >= size {
		t.blk.Last = true
	}
	t.acquired = true
	return &t.blk, nil
}

// ReleaseRead advances position by consumed bytes.
func (t *File) ReleaseRead(_ context.Context, b *port.Block) error {
	if !t.acquired || b != &t.blk {
		return port.ErrNotAcquired
	}
	t.acquired = false
	t.Advance(b.Valid)
	return nil
}

// AcquireWrite returns block of wanted bytes.
func (t *File) AcquireWrite(_ context.Context, wanted int) (*port.Block, error) {
	if !t.Opened() || t.Dir != pipe.Write {
		return nil, fmt.Errorf("%s: write: %w", pipe.IOFile, pipe.ErrInvalidState)
	}
	if t.acquired {
		return nil, port.ErrAcquired
	}
	if cap(t.blk.Buf) < wanted {
		t.blk.Buf = make([]byte, wanted)
	}
	t.blk.Buf = t.blk.Buf[:wanted]
	t.blk.Valid, t.blk.Last = 0, false
	t.acquired = true
	return &t.blk, nil
}

// ReleaseWrite writes valid bytes. Last block flushes the cache.
func (t *File) ReleaseWrite(_ context.Context, b *port.Block) error {
	if !t.acquired || b != &t.blk {
		return port.ErrNotAcquired
	}
	t.acquired = false
	var w io.Writer = t.f
	if t.bw != nil {
		w = t.bw
	}
	n, err := w.Write(b.Bytes())
	t.Advance(n)
	if t.Pos() > t.Size() {
		t.SetSize(t.Pos())
	}
	if err != nil {
		return fmt.Errorf("%s: %w: %w", pipe.IOFile, pipe.ErrFail, err)
	}
	if b.Last {
		return t.flush()
	}
	return nil
}

func (t *File) flush() error {
	if t.bw == nil {
		return nil
	}
	if err := t.bw.Flush(); err != nil {
		return fmt.Errorf("%s: %w: %w", pipe.IOFile, pipe.ErrFail, err)
	}
	return nil
}

// Seek implements pipe.Transport. Position of a closed file is used on
// next open.
func (t *File) Seek(pos int64) error {
	if err := t.CheckSeek(pos); err != nil {
		return err
	}
	if t.Opened() {
		if err := t.flush(); err != nil {
			return err
		}
		if _, err := t.f.Seek(pos, io.SeekStart); err != nil {
			return fmt.Errorf("%s: %w: %w", pipe.IOFile, pipe.ErrFail, err)
		}
		if t.br != nil {
			t.br.Reset(t.f)
		}
	}
	t.SetPos(pos)
	return nil
}

// Close flushes and closes the file.
func (t *File) Close() error {
	if !t.Opened() {
		return nil
	}
	err := t.flush()
	if cerr := t.f.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("%s: %w: %w", pipe.IOFile, pipe.ErrFail, cerr)
	}
	t.f, t.r, t.br, t.bw = nil, nil, nil, nil
	t.acquired = false
	t.SetOpened(false)
	return err
}

// Reset implements pipe.Resetter.
func (t *File) Reset() error {
	t.SetPos(0)
	return nil
}
