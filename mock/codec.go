package mock

import (
	"io"

	"pipelined.dev/player/codec"
	"pipelined.dev/player/sound"
)

// DecoderInfo is reported by decoders created with NewDecoder.
var DecoderInfo = sound.Info{SampleRate: 44100, Channels: 2, Bits: 16, Bitrate: 128000}

// Decoder passes encoded stream through as PCM.
type Decoder struct {
	r    io.Reader
	info sound.Info
}

// NewDecoder is a codec.DecoderFunc of pass-through decoders.
func NewDecoder(r io.Reader, hint sound.Info) (codec.Decoder, error) {
	info := DecoderInfo
	info.Format = hint.Format
	return &Decoder{r: r, info: info}, nil
}

// Read implements io.Reader.
func (d *Decoder) Read(p []byte) (int, error) {
	return d.r.Read(p)
}

// Info implements codec.Decoder.
func (d *Decoder) Info() sound.Info {
	return d.info
}

// Close implements codec.Decoder.
func (d *Decoder) Close() error {
	return nil
}

// Encoder writes PCM through unchanged.
type Encoder struct {
	w      io.Writer
	Closed bool
}

// NewEncoder is a codec.EncoderFunc of pass-through encoders.
func NewEncoder(w io.Writer, _ sound.Info, _ int) (codec.Encoder, error) {
	return &Encoder{w: w}, nil
}

// Write implements io.Writer.
func (e *Encoder) Write(p []byte) (int, error) {
	return e.w.Write(p)
}

// Close implements codec.Encoder.
func (e *Encoder) Close() error {
	e.Closed = true
	return nil
}
