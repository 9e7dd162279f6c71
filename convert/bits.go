package convert

import (
	"github.com/go-audio/audio"

	"pipelined.dev/player/pipe"
	"pipelined.dev/player/sound"
)

// bits changes sample depth by shifting.
type bits struct {
	dest  int
	shift int
}

// NewBits returns bit depth converter to dest bits.
func NewBits(dest int) *Converter {
	return newConverter(BitsName, &bits{dest: dest})
}

// BitsFactory returns pool factory of bit depth converters.
func BitsFactory(dest int) pipe.ElementFactory {
	return func() (pipe.Element, error) {
		return NewBits(dest), nil
	}
}

func (b *bits) output(in sound.Info) sound.Info {
	b.shift = b.dest - in.Bits
	in.Bits = b.dest
	return in
}

func (*bits) reset() {}

func (b *bits) convert(dst, src *audio.IntBuffer) {
	if cap(dst.Data) < len(src.Data) {
		dst.Data = make([]int, len(src.Data))
	}
	dst.Data = dst.Data[:len(src.Data)]
	for i, v := range src.Data {
		if b.shift >= 0 {
			dst.Data[i] = v << b.shift
		} else {
			dst.Data[i] = v >> -b.shift
		}
	}
}
