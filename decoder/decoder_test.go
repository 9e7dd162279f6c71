package decoder_test

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/player/codec"
	"pipelined.dev/player/decoder"
	"pipelined.dev/player/mock"
	"pipelined.dev/player/pipe"
	"pipelined.dev/player/port"
	"pipelined.dev/player/sound"
	"pipelined.dev/player/test"
)

func run(t *testing.T, data []byte, dec *decoder.Decoder) (*mock.Sink, []pipe.Event) {
	t.Helper()
	src := mock.NewSource("io_mock")
	src.Data = data
	sink := mock.NewSink("io_sink")
	pool := pipe.NewPool()
	require.NoError(t, pool.RegisterIO("io_mock", src.Factory()))
	require.NoError(t, pool.RegisterIO("io_sink", sink.Factory()))
	require.NoError(t, pool.RegisterElement(decoder.Name, func() (pipe.Element, error) { return dec, nil }))
	p, err := pool.NewPipeline("io_mock", []string{decoder.Name}, "io_sink")
	require.NoError(t, err)
	require.NoError(t, p.BindTask(pipe.NewTask(pipe.TaskConfig{})))
	events := make(chan pipe.Event, 64)
	p.SetEvent(func(e pipe.Event) { events <- e })
	require.NoError(t, p.Run())

	var received []pipe.Event
	for {
		select {
		case e := <-events:
			received = append(received, e)
			if e.Type == pipe.ChangeState && e.State.Terminal() {
				p.Wait()
				return sink, received
			}
		case <-time.After(2 * time.Second):
			t.Fatal("pipeline did not finish")
		}
	}
}

func TestDecodeWAV(t *testing.T) {
	defer goleak.VerifyNone(t)
	codec.Retain()
	defer codec.Release()

	info := sound.Info{SampleRate: 22050, Channels: 2, Bits: 16}
	samples := test.Tone(info, 3000, 1000)
	dec := decoder.New(decoder.WithBlockSizes(100, 1000))
	require.NoError(t, dec.Reconfigure(sound.Info{Format: sound.WAV}))

	sink, events := run(t, test.WAV(t, info, samples), dec)
	last := events[len(events)-1]
	require.Equal(t, pipe.StateFinished, last.State, "%v", last.Err)
	assert.Equal(t, test.PCM(info, samples), sink.Bytes())

	var reports []sound.Info
	for _, e := range events {
		if e.Type == pipe.ReportInfo {
			assert.Equal(t, decoder.Name, e.From)
			reports = append(reports, e.Info)
		}
	}
	require.Len(t, reports, 1)
	assert.True(t, info.SamePCM(reports[0]))
	assert.True(t, info.SamePCM(sink.Info()))
}

func TestDecodeRegistered(t *testing.T) {
	defer goleak.VerifyNone(t)
	codec.Register(sound.AAC, mock.NewDecoder)
	defer codec.Unregister(sound.AAC)

	payload := bytes.Repeat([]byte("aac frame "), 500)
	dec := decoder.New()
	require.NoError(t, dec.Reconfigure(sound.Info{Format: sound.AAC, SampleRate: 16000, Channels: 1, Bits: 16}))
	sink, events := run(t, payload, dec)
	assert.Equal(t, pipe.StateFinished, events[len(events)-1].State)
	assert.Equal(t, payload, sink.Bytes())
	assert.Equal(t, mock.DecoderInfo.SampleRate, sink.Info().SampleRate)
}

func TestDecodeErrors(t *testing.T) {
	defer goleak.VerifyNone(t)
	tests := []struct {
		name string
		info sound.Info
		err  error
	}{
		{name: "no format", info: sound.Info{}, err: pipe.ErrNotSupported},
		{name: "no codec", info: sound.Info{Format: sound.FLAC}, err: pipe.ErrNotSupported},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			dec := decoder.New()
			require.NoError(t, dec.Reconfigure(test.info))
			_, events := run(t, []byte("data"), dec)
			last := events[len(events)-1]
			assert.Equal(t, pipe.StateError, last.State)
			assert.ErrorIs(t, last.Err, test.err)
		})
	}
}

func TestReconfigure(t *testing.T) {
	dec := decoder.New()
	assert.Equal(t, sound.Default, dec.Info())
	require.NoError(t, dec.Reconfigure(sound.Info{Format: sound.MP3}))
	require.NoError(t, dec.Open(context.Background(), pipe.Ports{In: port.NewBlockBus(1, 1), Out: port.NewBlockBus(1, 1)}))
	assert.ErrorIs(t, dec.Reconfigure(sound.Default), pipe.ErrInvalidState)
	require.NoError(t, dec.Close())
	assert.NoError(t, dec.Reconfigure(sound.Default))
}

func TestReader(t *testing.T) {
	ctx := context.Background()
	bus := port.NewBlockBus(4, 4)
	for _, chunk := range []string{"abc", "", "defg", "h"} {
		blk, err := bus.AcquireWrite(ctx, 4)
		require.NoError(t, err)
		blk.Valid = copy(blk.Buf, chunk)
		blk.Last = chunk == "h"
		require.NoError(t, bus.ReleaseWrite(ctx, blk))
	}
	r := decoder.NewReader(ctx, bus, 2)
	p := make([]byte, 5)
	n, err := r.Read(p)
	require.NoError(t, err)
	assert.Equal(t, "abcde", string(p[:n]))
	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "fgh", string(rest))
	n, err = r.Read(p)
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)
}
