package player

import (
	"context"
	"fmt"
	"io/fs"
	"sync"

	"pipelined.dev/player/callback"
	"pipelined.dev/player/codec"
	"pipelined.dev/player/convert"
	"pipelined.dev/player/decoder"
	"pipelined.dev/player/embedflash"
	"pipelined.dev/player/file"
	"pipelined.dev/player/httpstream"
	"pipelined.dev/player/log"
	"pipelined.dev/player/pipe"
	"pipelined.dev/player/sound"
)

// taskName is used when Config.Task has no name.
const taskName = "player"

// reconfigurer is implemented by decoders which accept a stream
// description before run.
type reconfigurer interface {
	Reconfigure(sound.Info) error
}

// outcome of a run.
type outcome struct {
	run   uint64
	state State
	err   error
}

// Player plays one URI at a time through a pipeline assembled from its
// pool. Control methods are safe for concurrent use.
type Player struct {
	cfg     Config
	log     pipe.Logger
	metered bool
	sink    pipe.Sink
	http    httpstream.Config
	file    file.Config
	items   []embedflash.Item
	fsys    fs.FS

	pool *pipe.Pool
	task *pipe.Task

	// ctl serializes control calls.
	ctl       sync.Mutex
	destroyed bool

	mu       sync.Mutex
	run      uint64 // number of started runs.
	state    State
	handler  EventFunc
	pipeline *pipe.Pipeline
	// terminal has a single writer: the event handler of the running
	// pipeline.
	terminal chan outcome
}

// New creates a player and registers default transports and elements.
func New(cfg Config, options ...Option) (*Player, error) {
	p := &Player{
		cfg:      cfg,
		log:      log.GetLogger(),
		http:     httpstream.DefaultConfig(),
		file:     file.DefaultConfig(),
		terminal: make(chan outcome, 1),
	}
	for _, option := range options {
		if err := option(p); err != nil {
			return nil, err
		}
	}
	if p.sink == nil {
		if cfg.Out == nil {
			return nil, fmt.Errorf("no output: %w", pipe.ErrInvalidArg)
		}
		p.sink = callback.NewWriter(cfg.Out, cfg.OutInfo)
	}
	if cfg.Task.Name == "" {
		cfg.Task.Name = taskName
	}
	p.task = pipe.NewTask(cfg.Task)
	p.task.SetLogger(p.log)
	p.pool = pipe.NewPool()
	p.pool.SetLogger(p.log)
	if err := p.registerDefaults(); err != nil {
		return nil, err
	}
	codec.Retain()
	return p, nil
}

func (p *Player) registerDefaults() error {
	ios := []struct {
		name string
		fn   pipe.IOFactory
	}{
		{pipe.IOFile, file.Factory(p.file)},
		{pipe.IOHTTP, httpstream.Factory(p.http, httpstream.WithLogger(p.log))},
		{pipe.IOEmbedFlash, embedflash.Factory(p.items, p.fsys)},
	}
	for _, io := range ios {
		if err := p.pool.RegisterIO(io.name, io.fn); err != nil {
			return err
		}
	}
	if err := p.pool.RegisterElement(decoder.Name, decoder.Factory()); err != nil {
		return err
	}
	elements := []struct {
		name  string
		value int
		fn    func(int) pipe.ElementFactory
	}{
		{convert.RateName, p.cfg.ResampleRate, convert.RateFactory},
		{convert.ChannelsName, p.cfg.Channels, convert.ChannelsFactory},
		{convert.BitsName, p.cfg.Bits, convert.BitsFactory},
	}
	for _, e := range elements {
		if e.value <= 0 {
			continue
		}
		if err := p.pool.RegisterElement(e.name, e.fn(e.value)); err != nil {
			return err
		}
	}
	return nil
}

// elements returns default chain: decoder followed by enabled converters.
func (p *Player) elements() []string {
	names := []string{decoder.Name}
	if p.cfg.ResampleRate > 0 {
		names = append(names, convert.RateName)
	}
	if p.cfg.Channels > 0 {
		names = append(names, convert.ChannelsName)
	}
	if p.cfg.Bits > 0 {
		names = append(names, convert.BitsName)
	}
	return names
}

// SetEvent sets player event handler.
func (p *Player) SetEvent(fn EventFunc) {
	p.mu.Lock()
	p.handler = fn
	p.mu.Unlock()
}

// State returns current player state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Pipeline returns current pipeline. It's nil until the first run or
// SetPipeline call.
func (p *Player) Pipeline() *pipe.Pipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pipeline
}

// RegisterIO adds transport factory to the player pool.
func (p *Player) RegisterIO(name string, fn pipe.IOFactory) error {
	return p.pool.RegisterIO(name, fn)
}

// RegisterElement adds element factory to the player pool.
func (p *Player) RegisterElement(name string, fn pipe.ElementFactory) error {
	return p.pool.RegisterElement(name, fn)
}

// SetPipeline replaces the default chain. Empty in selects the input from
// the URI of the next run, empty out uses the player output.
func (p *Player) SetPipeline(in string, elements []string, out string) error {
	p.ctl.Lock()
	defer p.ctl.Unlock()
	if err := p.idle("set pipeline"); err != nil {
		return err
	}
	pl, err := p.pool.NewPipeline(in, elements, out, p.pipelineOptions()...)
	if err != nil {
		return err
	}
	if out == "" {
		if err := pl.SetOut(p.sink); err != nil {
			return err
		}
	}
	if err := pl.BindTask(p.task); err != nil {
		return err
	}
	p.mu.Lock()
	old := p.pipeline
	p.pipeline = pl
	p.mu.Unlock()
	if old != nil {
		old.SetEvent(nil)
	}
	return nil
}

func (p *Player) pipelineOptions() []pipe.Option {
	options := []pipe.Option{pipe.WithLogger(p.log), pipe.WithName(taskName)}
	if p.metered {
		options = append(options, pipe.WithMetric())
	}
	return options
}

// idle returns ErrInvalidState if player is destroyed or running. A task
// which has already reached a terminal state is waited for. It must be
// called with ctl held.
func (p *Player) idle(op string) error {
	if p.destroyed {
		return fmt.Errorf("%s: player destroyed: %w", op, pipe.ErrInvalidState)
	}
	s := p.State()
	if s.Terminal() {
		p.task.Wait()
	}
	if s.Active() || p.task.Active() {
		return fmt.Errorf("%s: player is %v: %w", op, s, pipe.ErrInvalidState)
	}
	return nil
}

// Run starts playback of uri and returns immediately. Info describes the
// stream for formats without a header, nil selects sound.Default.
func (p *Player) Run(uri string, info *sound.Info) error {
	p.ctl.Lock()
	defer p.ctl.Unlock()
	if _, err := p.start(uri, info); err != nil {
		p.log.Error(fmt.Sprintf("run %q: %v", uri, err))
		return err
	}
	return nil
}

// RunToEnd plays uri and blocks until playback is finished, stopped or
// failed. It returns an error matching pipe.ErrFail only if the run
// failed. Cancelling ctx stops playback, ctx.Err() is returned then.
func (p *Player) RunToEnd(ctx context.Context, uri string, info *sound.Info) error {
	p.ctl.Lock()
	run, err := p.start(uri, info)
	p.ctl.Unlock()
	if err != nil {
		p.log.Error(fmt.Sprintf("run to end %q: %v", uri, err))
		return err
	}

	o, ok := p.wait(ctx, run)
	if ok {
		p.task.Wait()
		return o.result(uri)
	}
	if err := p.Stop(); err != nil {
		return err
	}
	if o, _ = p.wait(context.Background(), run); o.state == StateError {
		return o.result(uri)
	}
	return ctx.Err()
}

// wait returns outcome of the run. Outcomes of earlier runs are dropped.
func (p *Player) wait(ctx context.Context, run uint64) (outcome, bool) {
	for {
		select {
		case o := <-p.terminal:
			if o.run == run {
				return o, true
			}
		case <-ctx.Done():
			return outcome{}, false
		}
	}
}

func (o outcome) result(uri string) error {
	if o.state != StateError {
		return nil
	}
	return fmt.Errorf("play %q: %w: %w", uri, pipe.ErrFail, o.err)
}

// start sets the pipeline up and runs it. It returns the number of the
// run and must be called with ctl held.
func (p *Player) start(uri string, info *sound.Info) (uint64, error) {
	if err := p.idle("run"); err != nil {
		return 0, err
	}
	pl, err := p.setup(uri, info)
	if err != nil {
		return 0, err
	}
	if p.cfg.Prev != nil {
		if err := p.cfg.Prev(p); err != nil {
			return 0, fmt.Errorf("prev hook: %w", err)
		}
	}
	p.mu.Lock()
	p.run++
	run := p.run
	p.state = StateNone
	p.mu.Unlock()
	select {
	case <-p.terminal:
	default:
	}
	pl.SetEvent(func(e pipe.Event) {
		p.event(run, e)
	})
	return run, pl.Run()
}

// setup builds the pipeline on the first call. Later calls reset it and
// replace only the input transport when the URI needs another one.
func (p *Player) setup(uri string, info *sound.Info) (*pipe.Pipeline, error) {
	u, err := pipe.ParseURI(uri)
	if err != nil {
		return nil, err
	}
	in, err := pipe.TransportName(u)
	if err != nil {
		return nil, err
	}
	if u.IsRaw() && p.cfg.In == nil {
		return nil, fmt.Errorf("%q: no raw input: %w", uri, pipe.ErrNotSupported)
	}
	format, err := sound.FormatOf(uri)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, pipe.ErrNotSupported)
	}

	pl := p.Pipeline()
	if pl == nil {
		if pl, err = p.pool.NewPipeline("", p.elements(), "", p.pipelineOptions()...); err != nil {
			return nil, err
		}
		if err := pl.SetOut(p.sink); err != nil {
			return nil, err
		}
		if err := pl.BindTask(p.task); err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.pipeline = pl
		p.mu.Unlock()
	} else if err := pl.Reset(); err != nil {
		return nil, err
	}

	if err := p.attachIn(pl, in); err != nil {
		return nil, err
	}
	e, ok := pl.ElementByName(decoder.Name)
	if !ok {
		return nil, fmt.Errorf("no %s in pipeline: %w", decoder.Name, pipe.ErrNotSupported)
	}
	dec, ok := e.(reconfigurer)
	if !ok {
		return nil, fmt.Errorf("%s cannot be reconfigured: %w", decoder.Name, pipe.ErrNotSupported)
	}
	hint := sound.Default
	if info != nil {
		hint = *info
		p.log.Info(fmt.Sprintf("reconfigure decoder by music info: %v", hint))
	}
	hint.Format = format
	if err := dec.Reconfigure(hint); err != nil {
		return nil, err
	}
	pl.In().SetURI(uri)
	return pl, nil
}

// attachIn makes sure the head transport is the one named in. Empty name
// selects the raw user input.
func (p *Player) attachIn(pl *pipe.Pipeline, in string) error {
	want := in
	if want == "" {
		want = callback.Name
	}
	if cur := pl.In(); cur != nil && cur.Name() == want {
		return nil
	}
	var (
		src pipe.Source
		err error
	)
	if in == "" {
		src = callback.NewReader(p.cfg.In)
	} else if src, err = p.pool.NewSource(in); err != nil {
		return err
	}
	return pl.ReplaceIn(src)
}

// event translates pipeline events of the run. It's called on the worker
// goroutine.
func (p *Player) event(run uint64, e pipe.Event) {
	p.mu.Lock()
	h := p.handler
	current := run == p.run
	p.mu.Unlock()
	if !current {
		return
	}
	switch e.Type {
	case pipe.ChangeState:
		s, ok := stateOf(e.State)
		if !ok {
			return
		}
		p.mu.Lock()
		p.state = s
		p.mu.Unlock()
		if s.Terminal() {
			p.finish(outcome{run: run, state: s, err: e.Err})
		}
		if h != nil {
			h(Event{Type: EventState, State: s, Err: e.Err})
		}
	case pipe.ReportInfo:
		if h != nil {
			h(Event{Type: EventMusicInfo, Info: e.Info})
		}
	}
}

// finish passes outcome to RunToEnd. An outcome nobody has received is
// replaced.
func (p *Player) finish(o outcome) {
	for {
		select {
		case p.terminal <- o:
			return
		default:
		}
		select {
		case <-p.terminal:
		default:
		}
	}
}

// Pause suspends playback.
func (p *Player) Pause() error {
	pl := p.Pipeline()
	if pl == nil {
		return fmt.Errorf("pause: no pipeline: %w", pipe.ErrInvalidState)
	}
	return pl.Pause()
}

// Resume continues paused playback.
func (p *Player) Resume() error {
	pl := p.Pipeline()
	if pl == nil {
		return fmt.Errorf("resume: no pipeline: %w", pipe.ErrInvalidState)
	}
	return pl.Resume()
}

// Stop aborts playback and waits for the terminal event. Stopping an idle
// player is a no-op once a pipeline exists.
func (p *Player) Stop() error {
	pl := p.Pipeline()
	if pl == nil {
		return fmt.Errorf("stop: no pipeline: %w", pipe.ErrInvalidState)
	}
	return pl.Stop()
}

// Destroy stops playback and releases the pipeline. Player cannot be used
// after Destroy.
func (p *Player) Destroy() error {
	p.ctl.Lock()
	defer p.ctl.Unlock()
	if p.destroyed {
		return nil
	}
	p.destroyed = true
	defer codec.Release()

	p.mu.Lock()
	pl := p.pipeline
	p.pipeline = nil
	p.mu.Unlock()
	if pl == nil {
		return nil
	}
	err := pl.Destroy()
	pl.SetEvent(nil)
	return err
}
