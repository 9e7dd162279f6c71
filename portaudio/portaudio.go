// Package portaudio provides codec device backed by the default portaudio
// device.
package portaudio

import (
	"fmt"
	"sync"

	pa "github.com/gordonklaus/portaudio"

	"pipelined.dev/player/codec"
	"pipelined.dev/player/pipe"
	"pipelined.dev/player/sound"
)

// DefaultFrames is the number of frames per device buffer.
const DefaultFrames = 512

// Device is a blocking portaudio stream. Playback devices are written,
// capture devices are read. The stream is opened by Configure.
type Device struct {
	dir    pipe.Direction
	frames int

	mu      sync.Mutex
	info    sound.Info
	stream  *pa.Stream
	buf     []float32
	samples []int
	pending []byte
}

// New returns device of given direction. Non-positive frames use
// DefaultFrames.
func New(dir pipe.Direction, frames int) *Device {
	if frames <= 0 {
		frames = DefaultFrames
	}
	return &Device{dir: dir, frames: frames}
}

// Configure opens default stream with info layout. Open stream is closed
// first.
func (d *Device) Configure(info sound.Info) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream != nil && d.info.SamePCM(info) {
		return nil
	}
	if err := d.stop(); err != nil {
		return err
	}
	if err := pa.Initialize(); err != nil {
		return err
	}
	d.buf = make([]float32, d.frames*info.Channels)
	in, out := 0, info.Channels
	if d.dir == pipe.Read {
		in, out = out, in
	}
	stream, err := pa.OpenDefaultStream(in, out, float64(info.SampleRate), d.frames, &d.buf)
	if err != nil {
		pa.Terminate()
		return err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		pa.Terminate()
		return err
	}
	d.stream, d.info = stream, info
	d.pending = d.pending[:0]
	return nil
}

// Write plays PCM. Bytes which do not fill device buffer are kept until
// the next write.
func (d *Device) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return 0, fmt.Errorf("portaudio: write: %w", pipe.ErrInvalidState)
	}
	d.pending = append(d.pending, p...)
	size := len(d.buf) * d.info.Bits / 8
	for len(d.pending) >= size {
		d.samples = codec.Ints(d.samples, d.pending[:size], d.info.Bits)
		scale := float32(int(1) << (d.info.Bits - 1))
		for i, v := range d.samples {
			d.buf[i] = float32(v) / scale
		}
		if err := d.stream.Write(); err != nil {
			return len(p), err
		}
		d.pending = append(d.pending[:0], d.pending[size:]...)
	}
	return len(p), nil
}

// Read captures PCM.
func (d *Device) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return 0, fmt.Errorf("portaudio: read: %w", pipe.ErrInvalidState)
	}
	if len(d.pending) == 0 {
		if err := d.stream.Read(); err != nil {
			return 0, err
		}
		scale := float32(int(1)<<(d.info.Bits-1)) - 1
		d.samples = d.samples[:0]
		for _, v := range d.buf {
			d.samples = append(d.samples, int(v*scale))
		}
		size := len(d.buf) * d.info.Bits / 8
		if cap(d.pending) < size {
			d.pending = make([]byte, size)
		}
		d.pending = d.pending[:codec.PutInts(d.pending[:size], d.samples, d.info.Bits)]
	}
	n := copy(p, d.pending)
	d.pending = d.pending[n:]
	return n, nil
}

// Stop closes the stream. Bytes which do not fill device buffer are
// dropped.
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stop()
}

func (d *Device) stop() error {
	if d.stream == nil {
		return nil
	}
	stream := d.stream
	d.stream = nil
	if err := stream.Stop(); err != nil {
		return err
	}
	if err := stream.Close(); err != nil {
		return err
	}
	return pa.Terminate()
}
