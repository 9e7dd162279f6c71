// Package httpstream provides HTTP(S) transport.
//
// Readers download the stream on their own worker task into a block or
// ring bus. Read errors trigger reconnects at the last fetched position.
// Writers upload the stream with a chunked POST request.
package httpstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"pipelined.dev/player/log"
	"pipelined.dev/player/pipe"
	"pipelined.dev/player/port"
)

// Option provides a way to set functional parameters to stream.
type Option func(*Stream) error

// WithLogger sets logger of the stream.
func WithLogger(l pipe.Logger) Option {
	return func(s *Stream) error {
		if l == nil {
			return fmt.Errorf("nil logger: %w", pipe.ErrInvalidArg)
		}
		s.log = l
		return nil
	}
}

// Stream is HTTP transport.
type Stream struct {
	pipe.IOBase
	cfg    Config
	client *http.Client
	log    pipe.Logger

	// mu guards ctx, cancel and bus against Abort called by the goroutine
	// which stops the pipeline.
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc

	// reader
	body       io.ReadCloser
	conn       context.CancelFunc
	gzip       bool
	fetched    int64
	reconnects int
	lastErr    error
	bus        port.Bus
	task       *pipe.Task

	// writer
	pw       *io.PipeWriter
	upload   *errgroup.Group
	blk      port.Block
	acquired bool
}

// New returns HTTP transport of given direction.
func New(dir pipe.Direction, cfg Config, options ...Option) (*Stream, error) {
	cfg = cfg.withDefaults()
	s := &Stream{
		IOBase: pipe.IOBase{Kind: pipe.IOHTTP, Dir: dir},
		cfg:    cfg,
		client: cfg.client(),
		log:    log.Discard(),
		task:   pipe.NewTask(cfg.Task),
	}
	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}
	s.task.SetLogger(s.log)
	return s, nil
}

// Factory returns pool factory of HTTP transports.
func Factory(cfg Config, options ...Option) pipe.IOFactory {
	return func(dir pipe.Direction) (pipe.Transport, error) {
		return New(dir, cfg, options...)
	}
}

func (s *Stream) entry() pipe.Logger {
	if l, ok := s.log.(logrus.FieldLogger); ok {
		return l.WithField("uri", s.URI())
	}
	return s.log
}

// Playlist reports whether uri points to m3u playlist.
func Playlist(uri string) bool {
	u, err := url.Parse(uri)
	if err != nil {
		return false
	}
	return strings.HasPrefix(strings.ToLower(path.Ext(u.Path)), ".m3u")
}

// Open connects to the server. Non-zero position resumes the stream with
// Range request.
func (s *Stream) Open(ctx context.Context) error {
	if s.Opened() {
		return fmt.Errorf("%s: already open: %w", pipe.IOHTTP, pipe.ErrInvalidState)
	}
	uri := s.URI()
	u, err := url.Parse(uri)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%s: %q: %w", pipe.IOHTTP, uri, pipe.ErrInvalidURI)
	}
	if Playlist(uri) {
		return fmt.Errorf("%s: playlist %q: %w", pipe.IOHTTP, uri, pipe.ErrNotSupported)
	}
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	cancel := s.cancel
	s.mu.Unlock()
	if s.Dir == pipe.Read {
		err = s.openReader()
	} else {
		err = s.openWriter()
	}
	if err != nil {
		cancel()
		return err
	}
	s.SetOpened(true)
	return nil
}

func (s *Stream) openReader() error {
	pos := s.Pos()
	resp, err := s.connect(pos)
	if err != nil {
		return err
	}
	s.SetSize(size(resp, s.gzip))
	s.mu.Lock()
	if s.bus == nil {
		s.bus = s.cfg.bus()
	} else {
		s.bus.Reset()
	}
	s.mu.Unlock()
	s.fetched = pos
	s.reconnects = 0
	s.lastErr = nil
	return s.start()
}

func (s *Stream) start() error {
	return s.task.Run(pipe.Plan{
		Jobs:   []pipe.Job{pump{s}},
		Abort:  s.abortPump,
		Report: s.report,
	})
}

func (s *Stream) report(st pipe.State, err error) {
	if err != nil {
		s.entry().Warn(fmt.Sprintf("pump is %v: %v", st, err))
		return
	}
	s.entry().Debug(fmt.Sprintf("pump is %v", st))
}

// connect requests stream from pos following redirects. Response body is
// ready to read when it returns.
func (s *Stream) connect(pos int64) (*http.Response, error) {
	uri := s.URI()
	visited := make(map[string]bool)
	for hop := 0; ; hop++ {
		if visited[uri] {
			return nil, fmt.Errorf("%s: redirect loop at %q: %w", pipe.IOHTTP, uri, pipe.ErrFail)
		}
		if hop > MaxRedirects {
			return nil, fmt.Errorf("%s: %d redirects: %w", pipe.IOHTTP, hop, pipe.ErrFail)
		}
		visited[uri] = true

		ctx, cancel := context.WithCancel(s.context())
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("%s: %w: %w", pipe.IOHTTP, pipe.ErrInvalidURI, err)
		}
		if pos > 0 {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-", pos))
		}
		if s.cfg.Request != nil {
			if err := s.cfg.Request(req); err != nil {
				cancel()
				return nil, err
			}
		}
		s.entry().Debug(fmt.Sprintf("request %s from %d", uri, pos))
		resp, err := s.client.Do(req)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("%s: %w: %w", pipe.IOHTTP, pipe.ErrFail, err)
		}
		switch resp.StatusCode {
		case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
			http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
			loc, err := resp.Location()
			resp.Body.Close()
			cancel()
			if err != nil {
				return nil, fmt.Errorf("%s: redirect: %w: %w", pipe.IOHTTP, pipe.ErrFail, err)
			}
			uri = loc.String()
			continue
		case http.StatusOK, http.StatusPartialContent:
		default:
			resp.Body.Close()
			cancel()
			return nil, fmt.Errorf("%s: status %q: %w", pipe.IOHTTP, resp.Status, pipe.ErrFail)
		}
		if err := s.attach(resp, pos, cancel); err != nil {
			resp.Body.Close()
			cancel()
			return nil, err
		}
		return resp, nil
	}
}

// attach makes response body the current pump source.
func (s *Stream) attach(resp *http.Response, pos int64, cancel context.CancelFunc) error {
	var body io.ReadCloser = resp.Body
	s.gzip = false
	switch enc := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))); enc {
	case "", "identity":
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return fmt.Errorf("%s: gzip: %w: %w", pipe.IOHTTP, pipe.ErrFail, err)
		}
		body = gzipBody{Reader: gz, body: resp.Body}
		s.gzip = true
	default:
		return fmt.Errorf("%s: encoding %q: %w", pipe.IOHTTP, enc, pipe.ErrNotSupported)
	}
	if pos > 0 && resp.StatusCode == http.StatusOK {
		if _, err := io.CopyN(io.Discard, body, pos); err != nil {
			return fmt.Errorf("%s: skip to %d: %w: %w", pipe.IOHTTP, pos, pipe.ErrFail, err)
		}
	}
	s.mu.Lock()
	s.body, s.conn = body, cancel
	s.mu.Unlock()
	return nil
}

type gzipBody struct {
	*gzip.Reader
	body io.Closer
}

func (b gzipBody) Close() error {
	return errors.Join(b.Reader.Close(), b.body.Close())
}

// size returns total size of the stream from response headers.
func size(resp *http.Response, compressed bool) int64 {
	if compressed {
		return 0
	}
	if resp.StatusCode == http.StatusPartialContent {
		cr := resp.Header.Get("Content-Range")
		i := strings.LastIndexByte(cr, '/')
		if i < 0 {
			return 0
		}
		total, err := strconv.ParseInt(cr[i+1:], 10, 64)
		if err != nil {
			return 0
		}
		return total
	}
	return max(resp.ContentLength, 0)
}

func (s *Stream) closeBody() {
	s.mu.Lock()
	body, conn := s.body, s.conn
	s.body, s.conn = nil, nil
	s.mu.Unlock()
	if conn != nil {
		conn()
	}
	if body != nil {
		body.Close()
	}
}

func (s *Stream) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// abortPump unblocks pump parked on the connection or the bus.
func (s *Stream) abortPump() {
	s.mu.Lock()
	conn, bus := s.conn, s.bus
	s.mu.Unlock()
	if conn != nil {
		conn()
	}
	if bus != nil {
		bus.Abort()
	}
}

func (s *Stream) stopPump() {
	if err := s.task.Stop(); err != nil && !errors.Is(err, pipe.ErrInvalidState) {
		s.entry().Warn(err)
	}
	s.task.Wait()
}

// AcquireRead returns next downloaded block.
func (s *Stream) AcquireRead(ctx context.Context, wanted int) (*port.Block, error) {
	if !s.Opened() || s.Dir != pipe.Read {
		return nil, fmt.Errorf("%s: read: %w", pipe.IOHTTP, pipe.ErrInvalidState)
	}
	return s.bus.AcquireRead(ctx, wanted)
}

// ReleaseRead advances position by consumed bytes.
func (s *Stream) ReleaseRead(ctx context.Context, b *port.Block) error {
	if !s.Opened() || s.Dir != pipe.Read {
		return port.ErrNotAcquired
	}
	valid := b.Valid
	err := s.bus.ReleaseRead(ctx, b)
	if errors.Is(err, port.ErrNotAcquired) {
		return err
	}
	s.Advance(valid)
	return err
}

// Seek reconnects reader at pos. Writers cannot seek.
func (s *Stream) Seek(pos int64) error {
	if err := s.CheckSeek(pos); err != nil {
		return err
	}
	if !s.Opened() {
		s.SetPos(pos)
		return nil
	}
	if s.Dir == pipe.Write {
		return fmt.Errorf("%s: seek writer: %w", pipe.IOHTTP, pipe.ErrNotSupported)
	}
	s.stopPump()
	s.closeBody()
	s.bus.Reset()
	if _, err := s.connect(pos); err != nil {
		return err
	}
	s.SetPos(pos)
	s.fetched = pos
	s.reconnects = 0
	return s.start()
}

// Abort implements pipe.Aborter. It's safe to call while the stream is
// opening.
func (s *Stream) Abort() {
	s.mu.Lock()
	cancel, bus := s.cancel, s.bus
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if bus != nil {
		bus.Abort()
	}
}

// Close stops the pump and releases the connection.
func (s *Stream) Close() error {
	if !s.Opened() {
		return nil
	}
	var err error
	if s.Dir == pipe.Read {
		s.stopPump()
		s.closeBody()
	} else {
		err = s.closeWriter()
	}
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	cancel()
	s.SetOpened(false)
	return err
}

// Reset implements pipe.Resetter.
func (s *Stream) Reset() error {
	s.SetPos(0)
	s.SetSize(0)
	s.mu.Lock()
	bus := s.bus
	s.mu.Unlock()
	if bus != nil {
		bus.Reset()
	}
	return nil
}
