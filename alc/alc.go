// Package alc provides level control element. Gain is set in decibels per
// channel and applied with beep volume effect.
package alc

import (
	"fmt"
	"math"
	"sync"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"

	"pipelined.dev/player/convert"
	"pipelined.dev/player/pipe"
	"pipelined.dev/player/sound"
)

// Name of element in pools.
const Name = "aud_alc"

// All addresses every channel in SetGain.
const All = -1

// Gain limits in dB. MinGain mutes the channel.
const (
	MinGain = -64
	MaxGain = 63
)

// Alc is a level control element.
type Alc struct {
	*convert.Converter
	g *gain
}

// New returns level control element with initial gain for all channels.
func New(db int) *Alc {
	g := &gain{all: clamp(db), channels: map[int]int{}}
	return &Alc{
		Converter: convert.NewEffect(Name, g),
		g:         g,
	}
}

// Factory returns pool factory of level control elements.
func Factory(db int) pipe.ElementFactory {
	return func() (pipe.Element, error) {
		return New(db), nil
	}
}

// SetGain sets gain in dB of channel idx. Takes effect from next block.
func (a *Alc) SetGain(idx, db int) error {
	if db < MinGain || db > MaxGain {
		return fmt.Errorf("gain %d dB: %w", db, pipe.ErrOutOfRange)
	}
	if idx < All {
		return fmt.Errorf("channel %d: %w", idx, pipe.ErrInvalidArg)
	}
	a.g.mu.Lock()
	defer a.g.mu.Unlock()
	if idx == All {
		a.g.all = db
		clear(a.g.channels)
		return nil
	}
	a.g.channels[idx] = db
	return nil
}

// Gain returns gain in dB of channel idx.
func (a *Alc) Gain(idx int) int {
	a.g.mu.Lock()
	defer a.g.mu.Unlock()
	return a.g.of(idx)
}

type gain struct {
	mu       sync.Mutex
	all      int
	channels map[int]int
	pairs    [][2]float64
}

func clamp(db int) int {
	return max(MinGain, min(MaxGain, db))
}

func (g *gain) of(idx int) int {
	if db, ok := g.channels[idx]; ok {
		return db
	}
	return g.all
}

// Reset keeps gains across runs.
func (g *gain) Reset() {}

// Apply scales samples of each channel. Samples of a channel are packed in
// pairs to feed the stereo streamer.
func (g *gain) Apply(info sound.Info, samples []int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch := info.Channels
	if ch <= 0 || info.Bits == 0 {
		return
	}
	frames := len(samples) / ch
	scale := float64(int(1) << (info.Bits - 1))
	for c := 0; c < ch; c++ {
		db := g.of(c)
		if db == 0 {
			continue
		}
		g.pairs = g.pairs[:0]
		for f := 0; f < frames; f += 2 {
			p := [2]float64{float64(samples[f*ch+c]) / scale}
			if f+1 < frames {
				p[1] = float64(samples[(f+1)*ch+c]) / scale
			}
			g.pairs = append(g.pairs, p)
		}
		vol := effects.Volume{
			Streamer: beep.StreamerFunc(func(s [][2]float64) (int, bool) {
				return len(s), true
			}),
			Base:   10,
			Volume: float64(db) / 20,
			Silent: db <= MinGain,
		}
		vol.Stream(g.pairs)
		for i, p := range g.pairs {
			samples[2*i*ch+c] = saturate(p[0], scale)
			if f := 2*i + 1; f < frames {
				samples[f*ch+c] = saturate(p[1], scale)
			}
		}
	}
}

func saturate(v, scale float64) int {
	s := math.Round(v * scale)
	return int(max(-scale, min(scale-1, s)))
}
