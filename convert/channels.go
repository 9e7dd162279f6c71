package convert

import (
	"github.com/go-audio/audio"

	"pipelined.dev/player/pipe"
	"pipelined.dev/player/sound"
)

// channels duplicates channels when upmixing and averages them when
// downmixing.
type channels struct {
	dest int
}

// NewChannels returns channel converter to dest channels.
func NewChannels(dest int) *Converter {
	return newConverter(ChannelsName, &channels{dest: dest})
}

// ChannelsFactory returns pool factory of channel converters.
func ChannelsFactory(dest int) pipe.ElementFactory {
	return func() (pipe.Element, error) {
		return NewChannels(dest), nil
	}
}

func (ch *channels) output(in sound.Info) sound.Info {
	in.Channels = ch.dest
	return in
}

func (*channels) reset() {}

func (ch *channels) convert(dst, src *audio.IntBuffer) {
	in := src.Format.NumChannels
	frames := src.NumFrames()
	if cap(dst.Data) < frames*ch.dest {
		dst.Data = make([]int, frames*ch.dest)
	}
	dst.Data = dst.Data[:frames*ch.dest]
	for f := 0; f < frames; f++ {
		frame := src.Data[f*in : (f+1)*in]
		for c := 0; c < ch.dest; c++ {
			if ch.dest > in {
				dst.Data[f*ch.dest+c] = frame[c%in]
				continue
			}
			sum, n := 0, 0
			for k := c; k < in; k += ch.dest {
				sum += frame[k]
				n++
			}
			dst.Data[f*ch.dest+c] = sum / n
		}
	}
}
