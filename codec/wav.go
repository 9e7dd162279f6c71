package codec

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"pipelined.dev/player/pipe"
	"pipelined.dev/player/sound"
)

// errBackward is returned when wav decoder tries to seek back in a stream.
var errBackward = errors.New("backward seek on stream")

type wavDecoder struct {
	d    *wav.Decoder
	buf  *audio.IntBuffer
	info sound.Info
}

// NewWAV returns decoder of wav stream. The stream is read forward only,
// so chunks must precede the data chunk in canonical order.
func NewWAV(r io.Reader, _ sound.Info) (Decoder, error) {
	d := wav.NewDecoder(&forward{r: r})
	if err := d.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("wav: %v: %w", err, pipe.ErrFail)
	}
	if d.WavAudioFormat != 1 {
		return nil, fmt.Errorf("wav audio format %d: %w", d.WavAudioFormat, pipe.ErrNotSupported)
	}
	if err := checkBits(int(d.BitDepth)); err != nil {
		return nil, err
	}
	info := sound.Info{
		Format:     sound.WAV,
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		Bits:       int(d.BitDepth),
	}
	info.Bitrate = info.SampleRate * info.Channels * info.Bits
	return &wavDecoder{
		d: d,
		buf: &audio.IntBuffer{
			Format:         d.Format(),
			SourceBitDepth: int(d.BitDepth),
		},
		info: info,
	}, nil
}

func (w *wavDecoder) Read(p []byte) (int, error) {
	size := w.info.Bits / 8
	samples := len(p) / size
	if samples == 0 {
		return 0, io.ErrShortBuffer
	}
	if cap(w.buf.Data) < samples {
		w.buf.Data = make([]int, samples)
	}
	w.buf.Data = w.buf.Data[:samples]
	n, err := w.d.PCMBuffer(w.buf)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	if w.info.Bits == 8 {
		// wav stores 8 bit samples unsigned and decoder keeps them as is.
		for i, v := range w.buf.Data[:n] {
			p[i] = byte(v)
		}
		return n, nil
	}
	return PutInts(p, w.buf.Data[:n], w.info.Bits), nil
}

func (w *wavDecoder) Info() sound.Info {
	return w.info
}

func (w *wavDecoder) Close() error {
	return nil
}

// forward adapts stream to io.ReadSeeker for decoders which only skip
// forward.
type forward struct {
	r   io.Reader
	pos int64
}

func (f *forward) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	f.pos += int64(n)
	return n, err
}

func (f *forward) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		offset -= f.pos
	case io.SeekCurrent:
	default:
		return f.pos, fmt.Errorf("seek whence %d: %w", whence, errBackward)
	}
	if offset < 0 {
		return f.pos, errBackward
	}
	n, err := io.CopyN(io.Discard, f.r, offset)
	f.pos += n
	return f.pos, err
}
