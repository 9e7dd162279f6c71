// Package test contains helper functions useful for testing player packages.
package test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"pipelined.dev/player/codec"
	"pipelined.dev/player/sound"
)

// Tone returns interleaved samples of a sine wave with given number of
// frames. Amplitude is half of the full scale of info.Bits.
func Tone(info sound.Info, frames int, freq float64) []int {
	amp := float64(int(1)<<(info.Bits-1)-1) / 2
	samples := make([]int, 0, frames*info.Channels)
	for i := 0; i < frames; i++ {
		v := int(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(info.SampleRate)))
		for c := 0; c < info.Channels; c++ {
			samples = append(samples, v)
		}
	}
	return samples
}

// PCM encodes samples as little-endian PCM of info.Bits depth.
func PCM(info sound.Info, samples []int) []byte {
	b := make([]byte, len(samples)*info.Bits/8)
	codec.PutInts(b, samples, info.Bits)
	return b
}

// WAV returns content of a wav file with provided samples.
func WAV(t testing.TB, info sound.Info, samples []int) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	e := wav.NewEncoder(f, info.SampleRate, info.Bits, info.Channels, 1)
	err = e.Write(&audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: info.Channels,
			SampleRate:  info.SampleRate,
		},
		Data:           samples,
		SourceBitDepth: info.Bits,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
