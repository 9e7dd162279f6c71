package codec_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/player/codec"
	"pipelined.dev/player/mock"
	"pipelined.dev/player/pipe"
	"pipelined.dev/player/sound"
	"pipelined.dev/player/test"
)

func TestRegistry(t *testing.T) {
	assert.Equal(t, 0, codec.Refs())
	_, err := codec.NewDecoder(sound.WAV, nil, sound.Info{})
	assert.ErrorIs(t, err, pipe.ErrNotSupported)

	codec.Retain()
	codec.Retain()
	assert.Equal(t, 2, codec.Refs())
	assert.Equal(t, []sound.Format{sound.PCM, sound.MP3, sound.WAV}, codec.Decoders())
	assert.Equal(t, []sound.Format{sound.PCM, sound.MP3}, codec.Encoders())

	codec.Release()
	assert.Equal(t, []sound.Format{sound.PCM, sound.MP3, sound.WAV}, codec.Decoders())

	codec.Register(sound.AAC, mock.NewDecoder)
	codec.Release()
	assert.Equal(t, 0, codec.Refs())
	assert.Equal(t, []sound.Format{sound.AAC}, codec.Decoders())
	codec.Release()
	assert.Equal(t, 0, codec.Refs())

	codec.Unregister(sound.AAC)
	assert.Empty(t, codec.Decoders())
	assert.Empty(t, codec.Encoders())
	_, err = codec.NewEncoder(sound.MP3, io.Discard, sound.Default, 128)
	assert.ErrorIs(t, err, pipe.ErrNotSupported)
}

func TestPCM(t *testing.T) {
	info := sound.Info{SampleRate: 8000, Channels: 1, Bits: 16}
	data := test.PCM(info, test.Tone(info, 100, 440))
	d, err := codec.NewPCM(bytes.NewReader(data), info)
	require.NoError(t, err)
	assert.Equal(t, sound.PCM, d.Info().Format)
	assert.Equal(t, 8000*16, d.Info().Bitrate)
	out, err := io.ReadAll(d)
	require.NoError(t, err)
	assert.Equal(t, data, out)
	assert.NoError(t, d.Close())

	_, err = codec.NewPCM(nil, sound.Info{SampleRate: 8000, Channels: 1, Bits: 12})
	assert.ErrorIs(t, err, pipe.ErrNotSupported)
	_, err = codec.NewPCM(nil, sound.Info{})
	assert.ErrorIs(t, err, pipe.ErrInvalidArg)
}

func TestPCMEncoder(t *testing.T) {
	info := sound.Info{SampleRate: 8000, Channels: 1, Bits: 16}
	data := test.PCM(info, test.Tone(info, 100, 440))
	var buf bytes.Buffer
	e, err := codec.NewPCMEncoder(&buf, info, 0)
	require.NoError(t, err)
	_, err = e.Write(data)
	require.NoError(t, err)
	require.NoError(t, e.Close())
	assert.Equal(t, data, buf.Bytes())

	_, err = codec.NewPCMEncoder(&buf, sound.Info{Bits: 12}, 0)
	assert.ErrorIs(t, err, pipe.ErrNotSupported)
}

func TestWAV(t *testing.T) {
	tests := []sound.Info{
		{SampleRate: 44100, Channels: 2, Bits: 16},
		{SampleRate: 16000, Channels: 1, Bits: 16},
		{SampleRate: 48000, Channels: 1, Bits: 32},
	}
	for _, info := range tests {
		t.Run(info.String(), func(t *testing.T) {
			samples := test.Tone(info, 1000, 440)
			d, err := codec.NewWAV(bytes.NewBuffer(test.WAV(t, info, samples)), sound.Info{})
			require.NoError(t, err)
			got := d.Info()
			assert.Equal(t, sound.WAV, got.Format)
			assert.True(t, info.SamePCM(got))

			out, err := io.ReadAll(d)
			require.NoError(t, err)
			assert.Equal(t, test.PCM(info, samples), out)
		})
	}
}

func TestWAVInvalid(t *testing.T) {
	_, err := codec.NewWAV(bytes.NewBufferString("definitely not a riff stream"), sound.Info{})
	assert.Error(t, err)
}

func TestInts(t *testing.T) {
	tests := []struct {
		bits    int
		samples []int
	}{
		{bits: 8, samples: []int{-128, -1, 0, 1, 127}},
		{bits: 16, samples: []int{-32768, -1, 0, 1, 32767}},
		{bits: 24, samples: []int{-8388608, -1, 0, 1, 8388607}},
		{bits: 32, samples: []int{-2147483648, -1, 0, 1, 2147483647}},
	}
	for _, test := range tests {
		b := make([]byte, len(test.samples)*test.bits/8)
		n := codec.PutInts(b, test.samples, test.bits)
		assert.Equal(t, len(b), n)
		assert.Equal(t, test.samples, codec.Ints(nil, b, test.bits))
	}
	// short destination
	assert.Equal(t, 2, codec.PutInts(make([]byte, 3), []int{1, 2}, 16))
}
