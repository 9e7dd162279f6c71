// Package sound describes the audio stream flowing through a pipeline: its
// codec format and PCM parameters.
package sound

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrUnknownFormat is returned when a file extension maps to no codec.
var ErrUnknownFormat = errors.New("unknown format")

// Format identifies an encoded audio format.
type Format int

// Supported formats.
const (
	None Format = iota
	AAC
	G711A
	G711U
	AMRNB
	AMRWB
	ALAC
	PCM
	OPUS
	ADPCM
	SBC
	LC3
	MP3
	M4A
	WAV
	TS
	FLAC
)

// Extensions are probed in order with a case-insensitive prefix match, so
// "amr" wins over "awb" and "m4a" over "mp3" exactly as listed.
var extensions = []struct {
	ext    string
	format Format
}{
	{"aac", AAC},
	{"g711a", G711A},
	{"g711u", G711U},
	{"amr", AMRNB},
	{"awb", AMRWB},
	{"alac", ALAC},
	{"pcm", PCM},
	{"opus", OPUS},
	{"adpcm", ADPCM},
	{"sbc", SBC},
	{"lc3", LC3},
	{"mp3", MP3},
	{"m4a", M4A},
	{"wav", WAV},
	{"ts", TS},
	{"flac", FLAC},
}

var names = map[Format]string{
	None:  "none",
	AAC:   "aac",
	G711A: "g711a",
	G711U: "g711u",
	AMRNB: "amrnb",
	AMRWB: "amrwb",
	ALAC:  "alac",
	PCM:   "pcm",
	OPUS:  "opus",
	ADPCM: "adpcm",
	SBC:   "sbc",
	LC3:   "lc3",
	MP3:   "mp3",
	M4A:   "m4a",
	WAV:   "wav",
	TS:    "ts",
	FLAC:  "flac",
}

func (f Format) String() string {
	if n, ok := names[f]; ok {
		return n
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// FormatOf returns the format for the extension of uri. Query strings and
// fragments are ignored.
func FormatOf(uri string) (Format, error) {
	if i := strings.IndexAny(uri, "?#"); i >= 0 {
		uri = uri[:i]
	}
	ext := path.Ext(uri)
	if ext == "" {
		return None, fmt.Errorf("%q: %w", uri, ErrUnknownFormat)
	}
	ext = strings.ToLower(ext[1:])
	for _, e := range extensions {
		if strings.HasPrefix(ext, e.ext) {
			return e.format, nil
		}
	}
	return None, fmt.Errorf("%q: %w", uri, ErrUnknownFormat)
}

// Formats returns all known formats in probing order.
func Formats() []Format {
	fs := make([]Format, 0, len(extensions))
	for _, e := range extensions {
		fs = append(fs, e.format)
	}
	return fs
}

// Info is the PCM description of a stream.
type Info struct {
	Format     Format
	SampleRate int
	Channels   int
	Bits       int
	Bitrate    int
}

// Default is used when the caller gives no stream description.
var Default = Info{
	SampleRate: 16000,
	Channels:   1,
	Bits:       16,
}

// FrameSize returns number of bytes per PCM frame.
func (i Info) FrameSize() int {
	return i.Channels * i.Bits / 8
}

// SamePCM reports whether two infos describe identical PCM layouts.
func (i Info) SamePCM(o Info) bool {
	return i.SampleRate == o.SampleRate && i.Channels == o.Channels && i.Bits == o.Bits
}

func (i Info) String() string {
	return fmt.Sprintf("%v %dHz %dch %dbit %dbps", i.Format, i.SampleRate, i.Channels, i.Bits, i.Bitrate)
}
