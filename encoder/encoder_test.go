package encoder_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/player/codec"
	"pipelined.dev/player/encoder"
	"pipelined.dev/player/mock"
	"pipelined.dev/player/pipe"
	"pipelined.dev/player/sound"
)

func run(t *testing.T, data []byte, enc *encoder.Encoder) (*mock.Sink, pipe.Event) {
	t.Helper()
	src := mock.NewSource("io_mock")
	src.Data = data
	sink := mock.NewSink("io_sink")
	pool := pipe.NewPool()
	require.NoError(t, pool.RegisterIO("io_mock", src.Factory()))
	require.NoError(t, pool.RegisterIO("io_sink", sink.Factory()))
	require.NoError(t, pool.RegisterElement(encoder.Name, func() (pipe.Element, error) { return enc, nil }))
	p, err := pool.NewPipeline("io_mock", []string{encoder.Name}, "io_sink")
	require.NoError(t, err)
	require.NoError(t, p.BindTask(pipe.NewTask(pipe.TaskConfig{})))
	events := make(chan pipe.Event, 64)
	p.SetEvent(func(e pipe.Event) { events <- e })
	require.NoError(t, p.Run())
	for {
		select {
		case e := <-events:
			if e.Type == pipe.ChangeState && e.State.Terminal() {
				p.Wait()
				return sink, e
			}
		case <-time.After(2 * time.Second):
			t.Fatal("pipeline did not finish")
		}
	}
}

func TestEncode(t *testing.T) {
	defer goleak.VerifyNone(t)
	codec.RegisterEncoder(sound.AAC, mock.NewEncoder)

	enc := encoder.New(encoder.Config{Format: sound.AAC})
	assert.Equal(t, encoder.Name, enc.Name())
	out := enc.ApplyInfo(sound.Info{SampleRate: 8000, Channels: 1, Bits: 16})
	assert.Equal(t, sound.Info{Format: sound.AAC, SampleRate: 8000, Channels: 1, Bits: 16, Bitrate: 128000}, out)

	data := bytes.Repeat([]byte{1, 2, 3, 4, 5}, 3000)
	sink, last := run(t, data, enc)
	require.Equal(t, pipe.StateFinished, last.State, "%v", last.Err)
	assert.Equal(t, data, sink.Bytes())
	assert.True(t, sink.Last())
	require.NoError(t, enc.Reset())
}

func TestEncodeErrors(t *testing.T) {
	defer goleak.VerifyNone(t)
	tests := []struct {
		name string
		cfg  encoder.Config
	}{
		{
			name: "no format",
		},
		{
			name: "no encoder",
			cfg:  encoder.Config{Format: sound.FLAC},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, last := run(t, []byte{1, 2}, encoder.New(tt.cfg))
			assert.Equal(t, pipe.StateError, last.State)
			assert.ErrorIs(t, last.Err, pipe.ErrNotSupported)
		})
	}
}
