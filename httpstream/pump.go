package httpstream

import (
	"context"
	"errors"
	"fmt"
	"io"

	"pipelined.dev/player/pipe"
)

// pump moves response body into the bus.
type pump struct {
	s *Stream
}

func (pump) Name() string {
	return pipe.IOHTTP + "_pump"
}

func (p pump) Process(ctx context.Context) (pipe.Result, error) {
	s := p.s
	s.mu.Lock()
	body := s.body
	s.mu.Unlock()
	if body == nil {
		return s.reconnect(s.lastErr)
	}

	blk, err := s.bus.AcquireWrite(ctx, s.cfg.BlockSize)
	if err != nil {
		return pipe.OK, err
	}
	n, rerr := body.Read(blk.Buf)
	blk.Valid = n
	s.fetched += int64(n)
	if errors.Is(rerr, io.EOF) {
		blk.Last = true
	}
	if err := s.bus.ReleaseWrite(ctx, blk); err != nil {
		return pipe.OK, err
	}
	switch {
	case blk.Last:
		s.entry().Debug(fmt.Sprintf("received %d bytes", s.fetched))
		return pipe.Done, nil
	case rerr != nil:
		if err := s.ctx.Err(); err != nil {
			return pipe.OK, err
		}
		s.closeBody()
		return s.reconnect(rerr)
	}
	if n > 0 {
		s.reconnects = 0
	}
	return pipe.OK, nil
}

// reconnect requests the rest of the stream. Failed attempts count too.
// When budget is exhausted the bus fails and reader receives the cause.
func (s *Stream) reconnect(cause error) (pipe.Result, error) {
	if s.gzip || s.reconnects >= s.cfg.MaxReconnects {
		err := fmt.Errorf("%s: after %d reconnects: %w", pipe.IOHTTP, s.reconnects, cause)
		s.bus.Fail(err)
		return pipe.OK, err
	}
	s.reconnects++
	s.entry().Warn(fmt.Sprintf("reconnect %d/%d at %d: %v", s.reconnects, s.cfg.MaxReconnects, s.fetched, cause))
	if _, err := s.connect(s.fetched); err != nil {
		if cerr := s.ctx.Err(); cerr != nil {
			return pipe.OK, cerr
		}
		s.lastErr = err
	}
	return pipe.Retry, nil
}
