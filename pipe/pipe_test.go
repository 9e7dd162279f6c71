package pipe_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/player/log"
	"pipelined.dev/player/metric"
	"pipelined.dev/player/mock"
	"pipelined.dev/player/pipe"
	"pipelined.dev/player/sound"
)

type events chan pipe.Event

func (e events) handle(ev pipe.Event) {
	e <- ev
}

// terminal waits for terminal state and returns all received events.
func (e events) terminal(t *testing.T) []pipe.Event {
	t.Helper()
	var received []pipe.Event
	for {
		select {
		case ev := <-e:
			received = append(received, ev)
			if ev.Type == pipe.ChangeState && ev.State.Terminal() {
				return received
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("no terminal event, got %v", received)
			return nil
		}
	}
}

func newPool(t *testing.T, src *mock.Source, sink *mock.Sink, elements ...*mock.Element) *pipe.Pool {
	t.Helper()
	pool := pipe.NewPool()
	require.NoError(t, pool.RegisterIO(src.Name(), src.Factory()))
	require.NoError(t, pool.RegisterIO(sink.Name(), sink.Factory()))
	for _, e := range elements {
		require.NoError(t, pool.RegisterElement(e.Name(), e.Factory()))
	}
	return pool
}

func TestPipeline(t *testing.T) {
	defer goleak.VerifyNone(t)
	tests := []struct {
		name     string
		limit    int
		elements []*mock.Element
		expected byte
	}{
		{
			name:  "no elements",
			limit: 3,
		},
		{
			name:     "single element",
			limit:    10,
			elements: []*mock.Element{{ElementName: "a", Gain: 1}},
			expected: 1,
		},
		{
			name:  "three elements",
			limit: 5,
			elements: []*mock.Element{
				{ElementName: "a", Gain: 1},
				{ElementName: "b", Gain: 2},
				{ElementName: "c", Gain: 3},
			},
			expected: 6,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			src := mock.NewSource("io_mock")
			src.Limit = test.limit
			src.BlockSize = 64
			sink := mock.NewSink("io_sink")
			pool := newPool(t, src, sink, test.elements...)
			names := make([]string, 0, len(test.elements))
			for _, e := range test.elements {
				names = append(names, e.Name())
			}
			p, err := pool.NewPipeline("io_mock", names, "io_sink", pipe.WithName(test.name), pipe.WithMetric(), pipe.WithLogger(log.GetLogger()))
			require.NoError(t, err)
			require.NoError(t, p.BindTask(pipe.NewTask(pipe.TaskConfig{})))
			ev := make(events, 64)
			p.SetEvent(ev.handle)

			require.NoError(t, p.Run())
			received := ev.terminal(t)
			p.Wait()

			assert.Equal(t, pipe.StateFinished, p.State())
			assert.Equal(t, pipe.StateFinished, received[len(received)-1].State)
			assert.Equal(t, test.name, received[len(received)-1].From)
			assert.Equal(t, bytes.Repeat([]byte{test.expected}, test.limit*64), sink.Bytes())
			assert.True(t, sink.Last())
			for _, e := range test.elements {
				messages, size := e.Count()
				assert.Equal(t, int64(test.limit*64), size)
				assert.Equal(t, int64(test.limit), messages)
				assert.NotEmpty(t, metric.Get(e.Name())[metric.ByteCounter])
			}
			assert.False(t, src.Opened())
			assert.False(t, sink.Opened())
		})
	}
}

func TestPipelineInfo(t *testing.T) {
	defer goleak.VerifyNone(t)
	info := sound.Info{Format: sound.MP3, SampleRate: 44100, Channels: 2, Bits: 16}
	src := mock.NewSource("io_mock")
	src.Limit = 2
	sink := mock.NewSink("io_sink")
	dec := &mock.Element{ElementName: "dec", Info: &info}
	cvt := &mock.Element{ElementName: "cvt"}
	pool := newPool(t, src, sink, dec, cvt)
	p, err := pool.NewPipeline("io_mock", []string{"dec", "cvt"}, "io_sink")
	require.NoError(t, err)
	require.NoError(t, p.BindTask(pipe.NewTask(pipe.TaskConfig{})))
	ev := make(events, 64)
	p.SetEvent(ev.handle)
	require.NoError(t, p.Run())
	received := ev.terminal(t)
	p.Wait()

	var reports []pipe.Event
	for _, e := range received {
		if e.Type == pipe.ReportInfo {
			reports = append(reports, e)
		}
	}
	require.Len(t, reports, 1)
	assert.Equal(t, "dec", reports[0].From)
	assert.Equal(t, info, reports[0].Info)
	assert.Equal(t, info, cvt.Applied())
	assert.Equal(t, info, sink.Info())
	e, ok := p.ElementByName("cvt")
	assert.True(t, ok)
	assert.Equal(t, cvt, e)
	_, ok = p.ElementByName("none")
	assert.False(t, ok)
}

func TestPipelineErrors(t *testing.T) {
	defer goleak.VerifyNone(t)
	tests := []struct {
		name      string
		configure func(*mock.Source, *mock.Sink, *mock.Element)
	}{
		{
			name:      "source open",
			configure: func(s *mock.Source, _ *mock.Sink, _ *mock.Element) { s.ErrorOnOpen = mock.ErrMock },
		},
		{
			name:      "sink open",
			configure: func(_ *mock.Source, s *mock.Sink, _ *mock.Element) { s.ErrorOnOpen = mock.ErrMock },
		},
		{
			name:      "element open",
			configure: func(_ *mock.Source, _ *mock.Sink, e *mock.Element) { e.ErrorOnOpen = mock.ErrMock },
		},
		{
			name:      "read",
			configure: func(s *mock.Source, _ *mock.Sink, _ *mock.Element) { s.ErrorOnRead = mock.ErrMock },
		},
		{
			name:      "write",
			configure: func(_ *mock.Source, s *mock.Sink, _ *mock.Element) { s.ErrorOnWrite = mock.ErrMock },
		},
		{
			name:      "process",
			configure: func(_ *mock.Source, _ *mock.Sink, e *mock.Element) { e.ErrorOnProcess = mock.ErrMock },
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			src := mock.NewSource("io_mock")
			src.Limit = 3
			sink := mock.NewSink("io_sink")
			e := &mock.Element{ElementName: "e"}
			test.configure(src, sink, e)
			pool := newPool(t, src, sink, e)
			p, err := pool.NewPipeline("io_mock", []string{"e"}, "io_sink")
			require.NoError(t, err)
			require.NoError(t, p.BindTask(pipe.NewTask(pipe.TaskConfig{})))
			ev := make(events, 64)
			p.SetEvent(ev.handle)
			require.NoError(t, p.Run())
			received := ev.terminal(t)
			p.Wait()
			last := received[len(received)-1]
			assert.Equal(t, pipe.StateError, last.State)
			assert.ErrorIs(t, last.Err, mock.ErrMock)
			assert.Equal(t, 1, sink.Closes())
		})
	}
}

func TestPipelineStop(t *testing.T) {
	defer goleak.VerifyNone(t)
	src := mock.NewSource("io_mock")
	src.Hold = true
	sink := mock.NewSink("io_sink")
	e := &mock.Element{ElementName: "e"}
	pool := newPool(t, src, sink, e)
	p, err := pool.NewPipeline("io_mock", []string{"e"}, "io_sink")
	require.NoError(t, err)
	require.NoError(t, p.BindTask(pipe.NewTask(pipe.TaskConfig{})))
	ev := make(events, 64)
	p.SetEvent(ev.handle)

	require.NoError(t, p.Run())
	assert.ErrorIs(t, p.Run(), pipe.ErrInvalidState)
	assert.ErrorIs(t, p.Reset(), pipe.ErrInvalidState)
	require.NoError(t, p.Stop())
	received := ev.terminal(t)
	assert.Equal(t, pipe.StateStopped, received[len(received)-1].State)
	// idempotent
	assert.NoError(t, p.Stop())
	assert.NoError(t, p.Destroy())
	assert.Nil(t, p.Task())
}

func TestPipelineReuse(t *testing.T) {
	defer goleak.VerifyNone(t)
	src := mock.NewSource("io_mock")
	src.Limit = 2
	sink := mock.NewSink("io_sink")
	e := &mock.Element{ElementName: "e"}
	pool := newPool(t, src, sink, e)
	p, err := pool.NewPipeline("io_mock", []string{"e"}, "io_sink")
	require.NoError(t, err)
	require.NoError(t, p.BindTask(pipe.NewTask(pipe.TaskConfig{})))
	ev := make(events, 64)
	p.SetEvent(ev.handle)

	require.NoError(t, p.Run())
	ev.terminal(t)
	p.Wait()

	require.NoError(t, p.Reset())
	assert.Equal(t, 1, e.Resets())
	other := mock.NewSource("io_other")
	other.Data = []byte("replaced input")
	require.NoError(t, p.ReplaceIn(other))
	assert.Equal(t, other, p.In())
	require.NoError(t, p.Run())
	received := ev.terminal(t)
	p.Wait()
	assert.Equal(t, pipe.StateFinished, received[len(received)-1].State)
	assert.Equal(t, []byte("replaced input"), sink.Bytes())
	assert.Equal(t, 1, src.Opens())
	assert.Equal(t, 1, other.Opens())
}

func TestPipelineMetric(t *testing.T) {
	defer goleak.VerifyNone(t)
	src := mock.NewSource("io_mock")
	src.Limit = 2
	sink := mock.NewSink("io_sink")
	e := &mock.Element{ElementName: "metered"}
	pool := newPool(t, src, sink, e)
	p, err := pool.NewPipeline("io_mock", []string{"metered"}, "io_sink", pipe.WithMetric())
	require.NoError(t, err)
	require.NoError(t, p.BindTask(pipe.NewTask(pipe.TaskConfig{})))

	for i := 0; i < 3; i++ {
		in := mock.NewSource("io_mock")
		in.Limit = 2
		require.NoError(t, p.ReplaceIn(in))
		require.NoError(t, p.Run())
		p.Wait()
		require.NoError(t, p.Reset())
	}
	values := metric.Get("metered")
	assert.Equal(t, "1", values[metric.ComponentCounter])
	assert.NotEqual(t, "0", values[metric.MessageCounter])
}

func TestPool(t *testing.T) {
	pool := pipe.NewPool()
	src := mock.NewSource("io_mock")
	sink := mock.NewSink("io_sink")
	require.NoError(t, pool.RegisterIO("io_mock", src.Factory()))
	require.NoError(t, pool.RegisterIO("io_sink", sink.Factory()))
	assert.ErrorIs(t, pool.RegisterIO("io_mock", src.Factory()), pipe.ErrInvalidArg)
	assert.ErrorIs(t, pool.RegisterIO("", src.Factory()), pipe.ErrInvalidArg)
	assert.ErrorIs(t, pool.RegisterElement("e", nil), pipe.ErrInvalidArg)
	assert.Equal(t, []string{"io_mock", "io_sink"}, pool.IOs())

	_, err := pool.NewSource("io_none")
	assert.ErrorIs(t, err, pipe.ErrNotSupported)
	_, err = pool.NewSink("io_mock")
	assert.ErrorIs(t, err, pipe.ErrNotSupported)
	_, err = pool.NewElement("none")
	assert.ErrorIs(t, err, pipe.ErrNotSupported)
	_, err = pool.NewPipeline("io_mock", []string{"none"}, "io_sink")
	assert.ErrorIs(t, err, pipe.ErrNotSupported)

	failing := errors.New("factory failed")
	require.NoError(t, pool.RegisterElement("failing", func() (pipe.Element, error) { return nil, failing }))
	_, err = pool.NewElement("failing")
	assert.ErrorIs(t, err, failing)

	p, err := pool.NewPipeline("", nil, "")
	require.NoError(t, err)
	assert.ErrorIs(t, p.Run(), pipe.ErrInvalidState)
	require.NoError(t, p.BindTask(pipe.NewTask(pipe.TaskConfig{})))
	assert.ErrorIs(t, p.Run(), pipe.ErrInvalidArg)
	assert.ErrorIs(t, p.Pause(), pipe.ErrInvalidState)
	assert.ErrorIs(t, p.ReplaceIn(nil), pipe.ErrInvalidArg)
}
