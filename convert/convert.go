// Package convert provides PCM converter elements: sample rate, channel
// count and bit depth. Converters learn input description from upstream
// and pass data through unchanged until they do.
package convert

import (
	"context"

	"github.com/go-audio/audio"

	"pipelined.dev/player/codec"
	"pipelined.dev/player/pipe"
	"pipelined.dev/player/sound"
)

// Element names in pools.
const (
	RateName     = "aud_rate_cvt"
	ChannelsName = "aud_ch_cvt"
	BitsName     = "aud_bit_cvt"
)

const readSize = 2048

// transform converts interleaved samples.
type transform interface {
	// output returns description of converted stream.
	output(in sound.Info) sound.Info
	// convert writes converted src samples into dst.
	convert(dst, src *audio.IntBuffer)
	reset()
}

// Converter is a PCM converter element.
type Converter struct {
	name    string
	t       transform
	inplace bool

	ports pipe.Ports
	in    sound.Info
	out   sound.Info
	carry []byte
	src   audio.IntBuffer
	dst   audio.IntBuffer
	done  bool
}

func newConverter(name string, t transform) *Converter {
	return &Converter{name: name, t: t}
}

// Name implements pipe.Element.
func (c *Converter) Name() string {
	return c.name
}

// usable reports whether stream can be converted. Other streams pass
// through unchanged.
func usable(in sound.Info) bool {
	return in.SampleRate > 0 && in.FrameSize() > 0
}

// ApplyInfo implements pipe.InfoApplier.
func (c *Converter) ApplyInfo(in sound.Info) sound.Info {
	c.in = in
	c.out = in
	if usable(in) {
		c.out = c.t.output(in)
	}
	c.t.reset()
	c.carry = c.carry[:0]
	return c.out
}

// Open implements pipe.Element.
func (c *Converter) Open(_ context.Context, p pipe.Ports) error {
	c.ports = p
	c.done = false
	c.carry = c.carry[:0]
	c.t.reset()
	return nil
}

// Process converts one block.
func (c *Converter) Process(ctx context.Context) (pipe.Result, error) {
	if c.done {
		return pipe.Done, nil
	}
	in, err := c.ports.In.AcquireRead(ctx, readSize)
	if err != nil {
		return pipe.OK, err
	}
	data := in.Bytes()
	passthrough := !usable(c.in) || (!c.inplace && c.in.SamePCM(c.out))
	var frames int
	if !passthrough {
		c.carry = append(c.carry, data...)
		size := c.in.FrameSize()
		frames = len(c.carry) / size
		c.src.Format = &audio.Format{NumChannels: c.in.Channels, SampleRate: c.in.SampleRate}
		c.src.SourceBitDepth = c.in.Bits
		c.src.Data = codec.Ints(c.src.Data, c.carry[:frames*size], c.in.Bits)
		c.carry = append(c.carry[:0], c.carry[frames*size:]...)
		c.dst.Format = &audio.Format{NumChannels: c.out.Channels, SampleRate: c.out.SampleRate}
		c.dst.SourceBitDepth = c.out.Bits
		c.t.convert(&c.dst, &c.src)
	}

	wanted := len(data)
	if !passthrough {
		wanted = len(c.dst.Data) * c.out.Bits / 8
	}
	out, err := c.ports.Out.AcquireWrite(ctx, wanted)
	if err != nil {
		c.ports.In.ReleaseRead(ctx, in)
		return pipe.OK, err
	}
	if passthrough {
		out.Valid = copy(out.Buf, data)
	} else {
		out.Valid = codec.PutInts(out.Buf, c.dst.Data, c.out.Bits)
	}
	out.Last = in.Last
	c.done = in.Last
	if err := c.ports.Out.ReleaseWrite(ctx, out); err != nil {
		c.ports.In.ReleaseRead(ctx, in)
		return pipe.OK, err
	}
	if err := c.ports.In.ReleaseRead(ctx, in); err != nil {
		return pipe.OK, err
	}
	if c.done {
		return pipe.Done, nil
	}
	return pipe.OK, nil
}

// Close implements pipe.Element.
func (c *Converter) Close() error {
	return nil
}

// Reset implements pipe.Resetter.
func (c *Converter) Reset() error {
	c.in, c.out = sound.Info{}, sound.Info{}
	c.carry = c.carry[:0]
	c.t.reset()
	return nil
}
