package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/player/sound"
	"pipelined.dev/player/test"
)

func TestInit(t *testing.T) {
	// check if commands are registered
	assert.Equal(t, len(commands), 3)
}

func TestRun(t *testing.T) {
	tests := []struct {
		args []string
		code int
	}{
		{args: []string{"player"}, code: errorExitCode},
		{args: []string{"player", "unknown"}, code: errorExitCode},
		{args: []string{"player", "formats"}, code: successExitCode},
		{args: []string{"player", "transcode"}, code: errorExitCode},
		{args: []string{"player", "transcode", "-in", "/a.wav", "-out", "/b.pcm", "-gain", "100"}, code: errorExitCode},
		{args: []string{"player", "play"}, code: errorExitCode},
		{args: []string{"player", "play", "-device", "speaker", "/a.wav"}, code: errorExitCode},
	}
	for _, test := range tests {
		c := config{args: test.args}
		assert.Equal(t, test.code, c.run(context.Background()), test.args)
	}
}

func TestTranscode(t *testing.T) {
	info := sound.Info{SampleRate: 16000, Channels: 1, Bits: 16}
	samples := test.Tone(info, 4000, 440)
	dir := t.TempDir()
	in := filepath.Join(dir, "tone.wav")
	out := filepath.Join(dir, "tone.pcm")
	require.NoError(t, os.WriteFile(in, test.WAV(t, info, samples), 0o644))

	c := config{args: []string{"player", "transcode", "-in", in, "-out", out}}
	require.Equal(t, successExitCode, c.run(context.Background()))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, test.PCM(info, samples), data)

	c = config{args: []string{"player", "transcode", "-in", in, "-out", filepath.Join(dir, "tone.flac")}}
	assert.Equal(t, errorExitCode, c.run(context.Background()))
}

func TestEnv(t *testing.T) {
	t.Setenv(envPrefix+"RATE", "48000")
	t.Setenv(envPrefix+"DEVICE", "oto")
	t.Setenv(envPrefix+"INTERACTIVE", "nope")
	assert.Equal(t, 48000, envInt("RATE", 0))
	assert.Equal(t, 2, envInt("CHANNELS", 2))
	assert.Equal(t, "oto", envString("DEVICE", "portaudio"))
	assert.True(t, envBool("INTERACTIVE", true))

	cmd := &playCommand{}
	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	cmd.Register(fs)
	require.NoError(t, fs.Parse([]string{"-rate", "8000", "/a.mp3"}))
	assert.Equal(t, 8000, cmd.pcm.rate)
	assert.Equal(t, "oto", cmd.device)
	assert.Equal(t, []string{"/a.mp3"}, fs.Args())
}
