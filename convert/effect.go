package convert

import (
	"github.com/go-audio/audio"

	"pipelined.dev/player/sound"
)

// Effect modifies samples in place without changing stream layout.
type Effect interface {
	Apply(info sound.Info, samples []int)
	Reset()
}

type effect struct {
	fx   Effect
	info sound.Info
}

// NewEffect returns element that applies fx to every block.
func NewEffect(name string, fx Effect) *Converter {
	c := newConverter(name, &effect{fx: fx})
	c.inplace = true
	return c
}

func (e *effect) output(in sound.Info) sound.Info {
	e.info = in
	return in
}

func (e *effect) reset() {
	e.fx.Reset()
}

func (e *effect) convert(dst, src *audio.IntBuffer) {
	dst.Data = append(dst.Data[:0], src.Data...)
	e.fx.Apply(e.info, dst.Data)
}
