// Package fade provides fade-in and fade-out element.
package fade

import (
	"math"
	"sync"
	"time"

	"pipelined.dev/player/convert"
	"pipelined.dev/player/pipe"
	"pipelined.dev/player/sound"
)

// Name of element in pools.
const Name = "aud_fade"

// Mode is a fade direction.
type Mode int

// Fade directions.
const (
	In Mode = iota
	Out
)

// Curve maps fade progress to gain.
type Curve int

// Fade curves.
const (
	Linear Curve = iota
	Quad
	Sqrt
)

// DefaultDuration is used when Config has no duration.
const DefaultDuration = 500 * time.Millisecond

// Config of fade element.
type Config struct {
	Mode     Mode
	Curve    Curve
	Duration time.Duration
}

// Fade is a fade element.
type Fade struct {
	*convert.Converter
	w *weight
}

// New returns fade element.
func New(cfg Config) *Fade {
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultDuration
	}
	w := &weight{cfg: cfg}
	w.Reset()
	return &Fade{
		Converter: convert.NewEffect(Name, w),
		w:         w,
	}
}

// Factory returns pool factory of fade elements.
func Factory(cfg Config) pipe.ElementFactory {
	return func() (pipe.Element, error) {
		return New(cfg), nil
	}
}

// SetMode changes direction. Fade continues from current gain.
func (f *Fade) SetMode(m Mode) {
	f.w.mu.Lock()
	f.w.cfg.Mode = m
	f.w.mu.Unlock()
}

// Mode returns current direction.
func (f *Fade) Mode() Mode {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	return f.w.cfg.Mode
}

// ResetWeight restarts fade of current direction.
func (f *Fade) ResetWeight() {
	f.w.Reset()
}

// Gain returns gain applied to next frame.
func (f *Fade) Gain() float64 {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	return f.w.gain()
}

type weight struct {
	mu  sync.Mutex
	cfg Config
	pos float64
}

func (w *weight) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cfg.Mode == In {
		w.pos = 0
	} else {
		w.pos = 1
	}
}

func (w *weight) gain() float64 {
	switch w.cfg.Curve {
	case Quad:
		return w.pos * w.pos
	case Sqrt:
		return math.Sqrt(w.pos)
	}
	return w.pos
}

func (w *weight) Apply(info sound.Info, samples []int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if info.Channels <= 0 || info.SampleRate <= 0 {
		return
	}
	step := 1 / (w.cfg.Duration.Seconds() * float64(info.SampleRate))
	if w.cfg.Mode == Out {
		step = -step
	}
	for f := 0; f+info.Channels <= len(samples); f += info.Channels {
		g := w.gain()
		for c := f; c < f+info.Channels; c++ {
			samples[c] = int(math.Round(float64(samples[c]) * g))
		}
		w.pos = max(0, min(1, w.pos+step))
	}
}
