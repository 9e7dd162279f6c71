package codec

import (
	"encoding/binary"
	"fmt"
	"io"

	"pipelined.dev/player/pipe"
	"pipelined.dev/player/sound"
)

// pcm passes raw stream through and trusts the hint.
type pcm struct {
	r    io.Reader
	info sound.Info
}

// NewPCM returns decoder of raw PCM described by hint.
func NewPCM(r io.Reader, hint sound.Info) (Decoder, error) {
	if hint.SampleRate <= 0 || hint.Channels <= 0 {
		return nil, fmt.Errorf("pcm %v: %w", hint, pipe.ErrInvalidArg)
	}
	if err := checkBits(hint.Bits); err != nil {
		return nil, err
	}
	hint.Format = sound.PCM
	hint.Bitrate = hint.SampleRate * hint.Channels * hint.Bits
	return &pcm{r: r, info: hint}, nil
}

func (d *pcm) Read(p []byte) (int, error) {
	return d.r.Read(p)
}

func (d *pcm) Info() sound.Info {
	return d.info
}

func (d *pcm) Close() error {
	return nil
}

// pcmEncoder writes PCM as is.
type pcmEncoder struct {
	w io.Writer
}

// NewPCMEncoder returns encoder of raw PCM streams.
func NewPCMEncoder(w io.Writer, info sound.Info, _ int) (Encoder, error) {
	if err := checkBits(info.Bits); err != nil {
		return nil, err
	}
	return pcmEncoder{w: w}, nil
}

func (e pcmEncoder) Write(p []byte) (int, error) {
	return e.w.Write(p)
}

func (pcmEncoder) Close() error {
	return nil
}

func checkBits(bits int) error {
	switch bits {
	case 8, 16, 24, 32:
		return nil
	}
	return fmt.Errorf("%d bits: %w", bits, pipe.ErrNotSupported)
}

// Ints decodes little-endian PCM samples of given depth into dst. Depth 8
// is unsigned as in wav files.
func Ints(dst []int, data []byte, bits int) []int {
	size := bits / 8
	n := len(data) / size
	if cap(dst) < n {
		dst = make([]int, n)
	}
	dst = dst[:n]
	for i := range dst {
		s := data[i*size:]
		switch bits {
		case 8:
			dst[i] = int(s[0]) - 128
		case 16:
			dst[i] = int(int16(binary.LittleEndian.Uint16(s)))
		case 24:
			v := int32(uint32(s[0]) | uint32(s[1])<<8 | uint32(s[2])<<16)
			dst[i] = int(v<<8) >> 8
		case 32:
			dst[i] = int(int32(binary.LittleEndian.Uint32(s)))
		}
	}
	return dst
}

// PutInts encodes samples into dst as little-endian PCM of given depth and
// returns number of bytes written.
func PutInts(dst []byte, src []int, bits int) int {
	size := bits / 8
	n := 0
	for _, v := range src {
		if n+size > len(dst) {
			break
		}
		d := dst[n:]
		switch bits {
		case 8:
			d[0] = byte(v + 128)
		case 16:
			binary.LittleEndian.PutUint16(d, uint16(int16(v)))
		case 24:
			d[0], d[1], d[2] = byte(v), byte(v>>8), byte(v>>16)
		case 32:
			binary.LittleEndian.PutUint32(d, uint32(int32(v)))
		}
		n += size
	}
	return n
}
