package pipe

import (
	"fmt"
	"sort"
	"sync"

	"pipelined.dev/player/metric"
)

type (
	// IOFactory creates a transport of requested direction.
	IOFactory func(Direction) (Transport, error)
	// ElementFactory creates a processing element.
	ElementFactory func() (Element, error)
)

// Pool is a catalog of named transport and element factories. It outlives
// pipelines created from it.
type Pool struct {
	mu       sync.Mutex
	ios      map[string]IOFactory
	elements map[string]ElementFactory
	log      Logger
}

// NewPool returns an empty pool.
func NewPool() *Pool {
	return &Pool{
		ios:      make(map[string]IOFactory),
		elements: make(map[string]ElementFactory),
		log:      defaultLogger,
	}
}

// SetLogger sets logger used by pool and pipelines created from it.
func (p *Pool) SetLogger(l Logger) {
	p.log = l
}

// RegisterIO adds transport factory. Names must be unique.
func (p *Pool) RegisterIO(name string, fn IOFactory) error {
	if name == "" || fn == nil {
		return fmt.Errorf("register io %q: %w", name, ErrInvalidArg)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.ios[name]; ok {
		return fmt.Errorf("io %q already registered: %w", name, ErrInvalidArg)
	}
	p.ios[name] = fn
	return nil
}

// RegisterElement adds element factory. Names must be unique.
func (p *Pool) RegisterElement(name string, fn ElementFactory) error {
	if name == "" || fn == nil {
		return fmt.Errorf("register element %q: %w", name, ErrInvalidArg)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.elements[name]; ok {
		return fmt.Errorf("element %q already registered: %w", name, ErrInvalidArg)
	}
	p.elements[name] = fn
	return nil
}

// IOs returns sorted names of registered transports.
func (p *Pool) IOs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.ios))
	for name := range p.ios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewSource creates a reader transport registered under name.
func (p *Pool) NewSource(name string) (Source, error) {
	t, err := p.newIO(name, Read)
	if err != nil {
		return nil, err
	}
	s, ok := t.(Source)
	if !ok {
		return nil, fmt.Errorf("io %q cannot read: %w", name, ErrNotSupported)
	}
	return s, nil
}

// NewSink creates a writer transport registered under name.
func (p *Pool) NewSink(name string) (Sink, error) {
	t, err := p.newIO(name, Write)
	if err != nil {
		return nil, err
	}
	s, ok := t.(Sink)
	if !ok {
		return nil, fmt.Errorf("io %q cannot write: %w", name, ErrNotSupported)
	}
	return s, nil
}

func (p *Pool) newIO(name string, dir Direction) (Transport, error) {
	p.mu.Lock()
	fn, ok := p.ios[name]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("io %q: %w", name, ErrNotSupported)
	}
	t, err := fn(dir)
	if err != nil {
		return nil, fmt.Errorf("io %q: %w", name, err)
	}
	return t, nil
}

// NewElement creates an element registered under name.
func (p *Pool) NewElement(name string) (Element, error) {
	p.mu.Lock()
	fn, ok := p.elements[name]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("element %q: %w", name, ErrNotSupported)
	}
	e, err := fn()
	if err != nil {
		return nil, fmt.Errorf("element %q: %w", name, err)
	}
	return e, nil
}

// NewPipeline assembles a pipeline. Empty in or out leave the head or tail
// transport unset, it must be provided with ReplaceIn or SetOut before run.
func (p *Pool) NewPipeline(in string, elements []string, out string, options ...Option) (*Pipeline, error) {
	pl := &Pipeline{
		uid:  newUID(),
		pool: p,
		log:  p.log,
	}
	for _, option := range options {
		if err := option(pl); err != nil {
			return nil, err
		}
	}
	if in != "" {
		src, err := p.NewSource(in)
		if err != nil {
			return nil, err
		}
		pl.in = src
	}
	for _, name := range elements {
		e, err := p.NewElement(name)
		if err != nil {
			return nil, err
		}
		pl.elements = append(pl.elements, e)
		if pl.metered {
			pl.meters = append(pl.meters, metric.Meter(e.Name()))
		}
	}
	if out != "" {
		sink, err := p.NewSink(out)
		if err != nil {
			return nil, err
		}
		pl.out = sink
	}
	pl.log.Debug(fmt.Sprintf("%v assembled: %q -> %v -> %q", pl, in, elements, out))
	return pl, nil
}
