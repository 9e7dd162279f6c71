// Package codec is a process wide registry of decoders and encoders.
//
// Default implementations are registered when the first user calls Retain
// and removed when the last one calls Release. Registrations made with
// Register take precedence over defaults and survive Release.
package codec

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"pipelined.dev/player/pipe"
	"pipelined.dev/player/sound"
)

type (
	// Decoder produces interleaved little-endian PCM from an encoded stream.
	Decoder interface {
		io.Reader
		// Info describes decoded PCM. It is valid after construction.
		Info() sound.Info
		Close() error
	}

	// DecoderFunc creates decoder reading from r. Hint is the stream
	// description provided by user, raw formats rely on it.
	DecoderFunc func(r io.Reader, hint sound.Info) (Decoder, error)

	// Encoder consumes interleaved little-endian PCM and writes encoded
	// stream into the writer it was created with.
	Encoder interface {
		io.Writer
		Close() error
	}

	// EncoderFunc creates encoder writing into w. Bitrate is in kbps.
	EncoderFunc func(w io.Writer, info sound.Info, bitrate int) (Encoder, error)
)

var registry = struct {
	sync.Mutex
	refs     int
	defaults map[sound.Format]DecoderFunc
	custom   map[sound.Format]DecoderFunc
	encoders map[sound.Format]EncoderFunc
}{
	defaults: make(map[sound.Format]DecoderFunc),
	custom:   make(map[sound.Format]DecoderFunc),
	encoders: make(map[sound.Format]EncoderFunc),
}

// Retain registers default codecs on first call.
func Retain() {
	registry.Lock()
	defer registry.Unlock()
	registry.refs++
	if registry.refs == 1 {
		registry.defaults[sound.WAV] = NewWAV
		registry.defaults[sound.MP3] = NewMP3
		registry.defaults[sound.PCM] = NewPCM
		registry.encoders[sound.MP3] = NewLAME
		registry.encoders[sound.PCM] = NewPCMEncoder
	}
}

// Release unregisters default codecs when the last user is gone.
func Release() {
	registry.Lock()
	defer registry.Unlock()
	if registry.refs == 0 {
		return
	}
	registry.refs--
	if registry.refs == 0 {
		registry.defaults = make(map[sound.Format]DecoderFunc)
		delete(registry.encoders, sound.MP3)
		delete(registry.encoders, sound.PCM)
	}
}

// Refs returns number of active users.
func Refs() int {
	registry.Lock()
	defer registry.Unlock()
	return registry.refs
}

// Register adds decoder for format. It overrides the default one.
func Register(f sound.Format, fn DecoderFunc) {
	registry.Lock()
	registry.custom[f] = fn
	registry.Unlock()
}

// Unregister removes decoder added with Register.
func Unregister(f sound.Format) {
	registry.Lock()
	delete(registry.custom, f)
	registry.Unlock()
}

// RegisterEncoder adds encoder for format.
func RegisterEncoder(f sound.Format, fn EncoderFunc) {
	registry.Lock()
	registry.encoders[f] = fn
	registry.Unlock()
}

// NewDecoder creates decoder for format.
func NewDecoder(f sound.Format, r io.Reader, hint sound.Info) (Decoder, error) {
	registry.Lock()
	fn, ok := registry.custom[f]
	if !ok {
		fn, ok = registry.defaults[f]
	}
	registry.Unlock()
	if !ok {
		return nil, fmt.Errorf("decoder %v: %w", f, pipe.ErrNotSupported)
	}
	return fn(r, hint)
}

// NewEncoder creates encoder for format.
func NewEncoder(f sound.Format, w io.Writer, info sound.Info, bitrate int) (Encoder, error) {
	registry.Lock()
	fn, ok := registry.encoders[f]
	registry.Unlock()
	if !ok {
		return nil, fmt.Errorf("encoder %v: %w", f, pipe.ErrNotSupported)
	}
	return fn(w, info, bitrate)
}

// Decoders returns formats which can be decoded.
func Decoders() []sound.Format {
	registry.Lock()
	defer registry.Unlock()
	set := make(map[sound.Format]struct{})
	for f := range registry.defaults {
		set[f] = struct{}{}
	}
	for f := range registry.custom {
		set[f] = struct{}{}
	}
	fs := make([]sound.Format, 0, len(set))
	for f := range set {
		fs = append(fs, f)
	}
	sort.Slice(fs, func(i, j int) bool { return fs[i] < fs[j] })
	return fs
}

// Encoders returns formats which can be encoded.
func Encoders() []sound.Format {
	registry.Lock()
	defer registry.Unlock()
	fs := make([]sound.Format, 0, len(registry.encoders))
	for f := range registry.encoders {
		fs = append(fs, f)
	}
	sort.Slice(fs, func(i, j int) bool { return fs[i] < fs[j] })
	return fs
}
