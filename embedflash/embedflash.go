// Package embedflash provides transport over resources embedded into the
// binary. URI embed://tone/<index>_<name> selects item by index, other
// paths are looked up in optional file system.
package embedflash

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strconv"
	"strings"

	"pipelined.dev/player/pipe"
	"pipelined.dev/player/port"
)

// Item is an embedded resource.
type Item struct {
	Name string
	Data []byte
}

// Flash is read-only transport over embedded items.
type Flash struct {
	pipe.IOBase
	items []Item
	fsys  fs.FS

	data     []byte
	blk      port.Block
	acquired bool
}

// New returns transport over items. Fsys may be nil.
func New(items []Item, fsys fs.FS) *Flash {
	return &Flash{
		IOBase: pipe.IOBase{Kind: pipe.IOEmbedFlash, Dir: pipe.Read},
		items:  items,
		fsys:   fsys,
	}
}

// Factory returns pool factory of embedded transports. Writers are not
// supported.
func Factory(items []Item, fsys fs.FS) pipe.IOFactory {
	return func(dir pipe.Direction) (pipe.Transport, error) {
		if dir != pipe.Read {
			return nil, fmt.Errorf("%s: %v: %w", pipe.IOEmbedFlash, dir, pipe.ErrNotSupported)
		}
		return New(items, fsys), nil
	}
}

// Index parses item index from the last segment of uri path.
func Index(uri string) (int, error) {
	seg := path.Base(uri)
	if i := strings.IndexByte(seg, '_'); i >= 0 {
		seg = seg[:i]
	}
	if i := strings.IndexByte(seg, '.'); i >= 0 {
		seg = seg[:i]
	}
	n, err := strconv.Atoi(seg)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s: no index in %q: %w", pipe.IOEmbedFlash, uri, pipe.ErrInvalidURI)
	}
	return n, nil
}

func (f *Flash) lookup(uri string) ([]byte, error) {
	u, err := pipe.ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if n, err := Index(u.Path); err == nil && u.Host == "tone" {
		if n >= len(f.items) {
			return nil, fmt.Errorf("%s: item %d of %d: %w", pipe.IOEmbedFlash, n, len(f.items), pipe.ErrOutOfRange)
		}
		return f.items[n].Data, nil
	}
	if f.fsys == nil {
		return nil, fmt.Errorf("%s: %q: %w", pipe.IOEmbedFlash, uri, pipe.ErrInvalidURI)
	}
	name := strings.TrimPrefix(path.Join(u.Host, u.Path), "/")
	data, err := fs.ReadFile(f.fsys, name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", pipe.IOEmbedFlash, pipe.ErrFail, err)
	}
	return data, nil
}

// Open implements pipe.Transport. Non-zero position resumes the item.
func (f *Flash) Open(context.Context) error {
	data, err := f.lookup(f.URI())
	if err != nil {
		return err
	}
	f.data = data
	f.SetSize(int64(len(data)))
	if err := f.CheckSeek(f.Pos()); err != nil {
		return err
	}
	f.acquired = false
	f.SetOpened(true)
	return nil
}

// AcquireRead returns up to wanted bytes without copying.
func (f *Flash) AcquireRead(_ context.Context, wanted int) (*port.Block, error) {
	if !f.Opened() {
		return nil, fmt.Errorf("%s: read: %w", pipe.IOEmbedFlash, pipe.ErrInvalidState)
	}
	if f.acquired {
		return nil, port.ErrAcquired
	}
	pos := int(f.Pos())
	end := min(pos+wanted, len(f.data))
	f.blk.Buf = f.data[pos:end:end]
	f.blk.Valid = end - pos
	f.blk.Last = end == len(f.data)
	f.acquired = true
	return &f.blk, nil
}

// ReleaseRead implements port.Reader.
func (f *Flash) ReleaseRead(_ context.Context, b *port.Block) error {
	if !f.acquired || b != &f.blk {
		return port.ErrNotAcquired
	}
	f.acquired = false
	f.Advance(b.Valid)
	return nil
}

// Seek implements pipe.Transport.
func (f *Flash) Seek(pos int64) error {
	if err := f.CheckSeek(pos); err != nil {
		return err
	}
	f.SetPos(pos)
	return nil
}

// Close implements pipe.Transport.
func (f *Flash) Close() error {
	f.data = nil
	f.acquired = false
	f.SetOpened(false)
	return nil
}
