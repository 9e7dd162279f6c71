package convert

import (
	"math"

	"github.com/go-audio/audio"

	"pipelined.dev/player/pipe"
	"pipelined.dev/player/sound"
)

// rate resamples with linear interpolation. The last frame of a block is
// kept to interpolate across block boundary.
type rate struct {
	dest int
	step float64
	pos  float64
	prev []int
}

// NewRate returns sample rate converter to dest Hz.
func NewRate(dest int) *Converter {
	return newConverter(RateName, &rate{dest: dest})
}

// RateFactory returns pool factory of rate converters.
func RateFactory(dest int) pipe.ElementFactory {
	return func() (pipe.Element, error) {
		return NewRate(dest), nil
	}
}

func (r *rate) output(in sound.Info) sound.Info {
	r.step = float64(in.SampleRate) / float64(r.dest)
	in.SampleRate = r.dest
	return in
}

func (r *rate) reset() {
	r.pos = 0
	r.prev = r.prev[:0]
}

func (r *rate) convert(dst, src *audio.IntBuffer) {
	ch := src.Format.NumChannels
	frames := src.NumFrames()
	dst.Data = dst.Data[:0]
	if frames == 0 {
		return
	}
	sample := func(i, c int) int {
		if i < 0 {
			if len(r.prev) == ch {
				return r.prev[c]
			}
			i = 0
		}
		return src.Data[i*ch+c]
	}
	for {
		i := int(math.Floor(r.pos))
		if i+1 >= frames {
			break
		}
		frac := r.pos - float64(i)
		for c := 0; c < ch; c++ {
			a, b := sample(i, c), sample(i+1, c)
			dst.Data = append(dst.Data, a+int(math.Round(float64(b-a)*frac)))
		}
		r.pos += r.step
	}
	r.pos -= float64(frames)
	r.prev = append(r.prev[:0], src.Data[(frames-1)*ch:frames*ch]...)
}
