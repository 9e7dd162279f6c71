package pipe

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pipelined.dev/player/log"
	"pipelined.dev/player/metric"
	"pipelined.dev/player/port"
	"pipelined.dev/player/sound"
)

// copySize is the block size of pipelines without elements.
const copySize = 4096

// Logger is a global interface for pipe loggers.
type Logger = log.Logger

var defaultLogger Logger = log.Discard()

// Option provides a way to set functional parameters to pipeline.
type Option func(*Pipeline) error

// WithLogger sets logger to pipeline. If this option is not provided,
// logger of the pool is used.
func WithLogger(logger Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			return fmt.Errorf("nil logger: %w", ErrInvalidArg)
		}
		p.log = logger
		return nil
	}
}

// WithName sets name of the pipeline. It's used as event origin.
func WithName(name string) Option {
	return func(p *Pipeline) error {
		p.name = name
		return nil
	}
}

// WithMetric enables expvar counters for every element output.
func WithMetric() Option {
	return func(p *Pipeline) error {
		p.metered = true
		return nil
	}
}

// Pipeline is an ordered chain of elements between a source and a sink.
type Pipeline struct {
	uid     string
	name    string
	pool    *Pool
	log     Logger
	metered bool

	in       Source
	elements []Element
	meters   []metric.ResetFunc // per element, if metered.
	out      Sink
	links    []port.Bus
	opened   int // number of opened elements.
	task     *Task

	mu      sync.Mutex
	handler EventFunc
	state   State
}

func (p *Pipeline) String() string {
	if p.name != "" {
		return fmt.Sprintf("pipeline %s[%s]", p.name, p.uid)
	}
	return fmt.Sprintf("pipeline %s", p.uid)
}

// In returns head transport.
func (p *Pipeline) In() Source {
	return p.in
}

// Out returns tail transport.
func (p *Pipeline) Out() Sink {
	return p.out
}

// Elements returns processing elements in chain order.
func (p *Pipeline) Elements() []Element {
	return p.elements
}

// ElementByName returns the first element registered under name.
func (p *Pipeline) ElementByName(name string) (Element, bool) {
	for _, e := range p.elements {
		if e.Name() == name {
			return e, true
		}
	}
	return nil, false
}

// SetEvent sets pipeline event handler.
func (p *Pipeline) SetEvent(fn EventFunc) {
	p.mu.Lock()
	p.handler = fn
	p.mu.Unlock()
}

// State returns last reported state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// BindTask attaches the worker task.
func (p *Pipeline) BindTask(t *Task) error {
	if err := p.idle("bind task"); err != nil {
		return err
	}
	p.task = t
	return nil
}

// Task returns bound worker task.
func (p *Pipeline) Task() *Task {
	return p.task
}

// ReplaceIn swaps the head transport. Elements are re-bound on next run.
func (p *Pipeline) ReplaceIn(s Source) error {
	if s == nil {
		return fmt.Errorf("replace in: %w", ErrInvalidArg)
	}
	if err := p.idle("replace in"); err != nil {
		return err
	}
	p.log.Debug(fmt.Sprintf("%v replaces in %v with %v", p, name(p.in), s.Name()))
	p.in = s
	return nil
}

// SetOut sets the tail transport.
func (p *Pipeline) SetOut(s Sink) error {
	if s == nil {
		return fmt.Errorf("set out: %w", ErrInvalidArg)
	}
	if err := p.idle("set out"); err != nil {
		return err
	}
	p.out = s
	return nil
}

// Reset prepares pipeline for a new stream without reassembling it.
func (p *Pipeline) Reset() error {
	if err := p.idle("reset"); err != nil {
		return err
	}
	var errs closeErrors
	if p.in != nil {
		p.in.SetPos(0)
		errs = appendReset(errs, p.in)
	}
	for _, e := range p.elements {
		errs = appendReset(errs, e)
	}
	if p.out != nil {
		errs = appendReset(errs, p.out)
	}
	for _, l := range p.links {
		l.Reset()
	}
	p.mu.Lock()
	p.state = StateNone
	p.mu.Unlock()
	return errs.ret()
}

func appendReset(errs closeErrors, c interface{}) closeErrors {
	if r, ok := c.(Resetter); ok {
		if err := r.Reset(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (p *Pipeline) idle(op string) error {
	if p.task != nil && p.task.Active() {
		return fmt.Errorf("%v: %s: %w", p, op, ErrInvalidState)
	}
	return nil
}

// Run starts the pipeline on its task. Transports and elements are opened
// on the worker goroutine, failures are reported with StateError.
func (p *Pipeline) Run() error {
	if p.task == nil {
		return fmt.Errorf("%v: no task: %w", p, ErrInvalidState)
	}
	if err := p.idle("run"); err != nil {
		return err
	}
	if p.in == nil || p.out == nil {
		return fmt.Errorf("%v: missing in or out: %w", p, ErrInvalidArg)
	}
	if len(p.links) != len(p.elements)-1 && len(p.elements) > 0 {
		p.links = make([]port.Bus, len(p.elements)-1)
		for i := range p.links {
			p.links[i] = port.NewBlockBus(1, 0)
		}
	} else {
		for _, l := range p.links {
			l.Reset()
		}
	}
	jobs := make([]Job, 0, len(p.elements))
	for _, e := range p.elements {
		jobs = append(jobs, e)
	}
	if len(jobs) == 0 {
		jobs = append(jobs, copyJob{in: p.in, out: p.out})
	}
	return p.task.Run(Plan{
		Open:   p.open,
		Jobs:   jobs,
		Close:  p.close,
		Abort:  p.abort,
		Report: p.reportState,
	})
}

// Pause suspends running pipeline.
func (p *Pipeline) Pause() error {
	if p.task == nil {
		return fmt.Errorf("%v: pause: %w", p, ErrInvalidState)
	}
	return p.task.Pause()
}

// Resume continues paused pipeline.
func (p *Pipeline) Resume() error {
	if p.task == nil {
		return fmt.Errorf("%v: resume: %w", p, ErrInvalidState)
	}
	return p.task.Resume()
}

// Stop aborts running pipeline and waits for its task to exit. Stopping an
// idle pipeline is a no-op.
func (p *Pipeline) Stop() error {
	if p.task == nil {
		return fmt.Errorf("%v: stop: %w", p, ErrInvalidState)
	}
	if err := p.task.Stop(); err != nil && !errors.Is(err, ErrInvalidState) {
		return err
	}
	return nil
}

// Wait blocks until the task of the last run exits.
func (p *Pipeline) Wait() {
	if p.task != nil {
		p.task.Wait()
	}
}

// Destroy stops the pipeline and detaches its task.
func (p *Pipeline) Destroy() error {
	if p.task == nil {
		return nil
	}
	err := p.Stop()
	p.task.Wait()
	p.task = nil
	return err
}

func (p *Pipeline) open(ctx context.Context) error {
	p.opened = 0
	if err := p.in.Open(ctx); err != nil {
		return fmt.Errorf("open %s: %w", p.in.Name(), err)
	}
	if err := p.out.Open(ctx); err != nil {
		return fmt.Errorf("open %s: %w", p.out.Name(), err)
	}
	for i, e := range p.elements {
		if err := e.Open(ctx, p.ports(i)); err != nil {
			return fmt.Errorf("open %s: %w", e.Name(), err)
		}
		p.opened = i + 1
	}
	return nil
}

func (p *Pipeline) ports(i int) Ports {
	var (
		in  port.Reader = p.in
		out port.Writer = p.out
	)
	if i > 0 {
		in = p.links[i-1]
	}
	if i < len(p.elements)-1 {
		out = p.links[i]
	}
	if p.metered {
		out = meteredWriter{Writer: out, measure: p.meters[i]()}
	}
	return Ports{
		In:  in,
		Out: out,
		Report: func(info sound.Info) {
			p.reportInfo(i, info)
		},
	}
}

func (p *Pipeline) close() error {
	var errs closeErrors
	for i := p.opened - 1; i >= 0; i-- {
		if err := p.elements[i].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", p.elements[i].Name(), err))
		}
	}
	p.opened = 0
	if err := p.in.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close %s: %w", p.in.Name(), err))
	}
	if err := p.out.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close %s: %w", p.out.Name(), err))
	}
	return errs.ret()
}

func (p *Pipeline) abort() {
	for _, l := range p.links {
		l.Abort()
	}
	if a, ok := p.in.(Aborter); ok {
		a.Abort()
	}
	if a, ok := p.out.(Aborter); ok {
		a.Abort()
	}
}

// reportInfo propagates stream description from element i downstream and
// notifies the handler.
func (p *Pipeline) reportInfo(i int, info sound.Info) {
	downstream := info
	for _, e := range p.elements[i+1:] {
		if a, ok := e.(InfoApplier); ok {
			downstream = a.ApplyInfo(downstream)
		}
	}
	if a, ok := p.out.(InfoApplier); ok {
		a.ApplyInfo(downstream)
	}
	p.log.Debug(fmt.Sprintf("%v: %s reports %v", p, p.elements[i].Name(), info))
	p.emit(Event{Type: ReportInfo, From: p.elements[i].Name(), Info: info})
}

func (p *Pipeline) reportState(s State, err error) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	if err != nil {
		p.log.Error(fmt.Sprintf("%v: %v", p, err))
	}
	p.emit(Event{Type: ChangeState, From: p.name, State: s, Err: err})
}

func (p *Pipeline) emit(e Event) {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h != nil {
		h(e)
	}
}

func name(t Transport) string {
	if t == nil {
		return "<nil>"
	}
	return t.Name()
}

// meteredWriter measures every released block.
type meteredWriter struct {
	port.Writer
	measure metric.MeasureFunc
}

func (w meteredWriter) ReleaseWrite(ctx context.Context, b *port.Block) error {
	n := b.Valid
	if err := w.Writer.ReleaseWrite(ctx, b); err != nil {
		return err
	}
	w.measure(int64(n))
	return nil
}

// copyJob moves data from source to sink in pipelines without elements.
type copyJob struct {
	in  port.Reader
	out port.Writer
}

func (copyJob) Name() string {
	return "copy"
}

func (j copyJob) Process(ctx context.Context) (Result, error) {
	src, err := j.in.AcquireRead(ctx, copySize)
	if err != nil {
		return OK, err
	}
	dst, err := j.out.AcquireWrite(ctx, src.Valid)
	if err != nil {
		j.in.ReleaseRead(ctx, src)
		return OK, err
	}
	dst.Valid = copy(dst.Buf, src.Bytes())
	dst.Last = src.Last
	if err := j.out.ReleaseWrite(ctx, dst); err != nil {
		j.in.ReleaseRead(ctx, src)
		return OK, err
	}
	last := src.Last
	if err := j.in.ReleaseRead(ctx, src); err != nil {
		return OK, err
	}
	if last {
		return Done, nil
	}
	return OK, nil
}
