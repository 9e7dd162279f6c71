package httpstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/sync/errgroup"

	"pipelined.dev/player/pipe"
	"pipelined.dev/player/port"
)

var errUnfinished = errors.New("upload closed before last block")

// openWriter starts chunked POST request fed by released blocks.
func (s *Stream) openWriter() error {
	pr, pw := io.Pipe()
	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, s.URI(), pr)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", pipe.IOHTTP, pipe.ErrInvalidURI, err)
	}
	req.ContentLength = -1
	req.Header.Set("Content-Type", "application/octet-stream")
	if s.cfg.Request != nil {
		if err := s.cfg.Request(req); err != nil {
			return err
		}
	}
	var g errgroup.Group
	g.Go(func() error {
		defer pr.Close()
		resp, err := s.client.Do(req)
		if err != nil {
			pr.CloseWithError(err)
			return fmt.Errorf("%s: upload: %w: %w", pipe.IOHTTP, pipe.ErrFail, err)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)
		if resp.StatusCode/100 != 2 {
			return fmt.Errorf("%s: upload status %q: %w", pipe.IOHTTP, resp.Status, pipe.ErrFail)
		}
		return nil
	})
	s.pw, s.upload = pw, &g
	s.acquired = false
	s.SetSize(0)
	return nil
}

// AcquireWrite returns block of wanted bytes.
func (s *Stream) AcquireWrite(_ context.Context, wanted int) (*port.Block, error) {
	if !s.Opened() || s.Dir != pipe.Write {
		return nil, fmt.Errorf("%s: write: %w", pipe.IOHTTP, pipe.ErrInvalidState)
	}
	if s.acquired {
		return nil, port.ErrAcquired
	}
	if cap(s.blk.Buf) < wanted {
		s.blk.Buf = make([]byte, wanted)
	}
	s.blk.Buf = s.blk.Buf[:wanted]
	s.blk.Valid, s.blk.Last = 0, false
	s.acquired = true
	return &s.blk, nil
}

// ReleaseWrite sends valid bytes. Last block completes the request.
func (s *Stream) ReleaseWrite(_ context.Context, b *port.Block) error {
	if !s.acquired || b != &s.blk {
		return port.ErrNotAcquired
	}
	s.acquired = false
	if s.upload == nil {
		return fmt.Errorf("%s: write after last block: %w", pipe.IOHTTP, port.ErrDone)
	}
	n, err := s.pw.Write(b.Bytes())
	s.Advance(n)
	if err != nil {
		s.pw.CloseWithError(err)
		werr := s.upload.Wait()
		s.upload = nil
		return errors.Join(fmt.Errorf("%s: %w: %w", pipe.IOHTTP, pipe.ErrFail, err), werr)
	}
	if !b.Last {
		return nil
	}
	s.pw.Close()
	err = s.upload.Wait()
	s.upload = nil
	return err
}

func (s *Stream) closeWriter() error {
	if s.upload == nil {
		return nil
	}
	s.pw.CloseWithError(errUnfinished)
	s.upload.Wait()
	s.upload = nil
	return nil
}
