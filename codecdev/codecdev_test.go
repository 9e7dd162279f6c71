package codecdev_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/player/codecdev"
	"pipelined.dev/player/pipe"
	"pipelined.dev/player/port"
	"pipelined.dev/player/sound"
)

type device struct {
	bytes.Buffer
	configured []sound.Info
	configErr  error
	stops      int
}

func (d *device) Configure(info sound.Info) error {
	d.configured = append(d.configured, info)
	return d.configErr
}

func (d *device) Stop() error {
	d.stops++
	return nil
}

func TestWrite(t *testing.T) {
	ctx := context.Background()
	dev := &device{}
	d := codecdev.New(pipe.Write, dev)
	assert.Equal(t, pipe.IOCodecDev, d.Name())
	require.NoError(t, d.Open(ctx))

	info := sound.Info{SampleRate: 48000, Channels: 2, Bits: 16}
	assert.Equal(t, info, d.ApplyInfo(info))
	d.ApplyInfo(info)
	assert.Equal(t, []sound.Info{info}, dev.configured)

	b, err := d.AcquireWrite(ctx, 4)
	require.NoError(t, err)
	b.Valid = copy(b.Buf, "abcd")
	require.NoError(t, d.ReleaseWrite(ctx, b))
	assert.Equal(t, "abcd", dev.String())
	assert.Equal(t, int64(4), d.Pos())
	assert.NoError(t, d.Seek(100))

	require.NoError(t, d.Close())
	assert.Equal(t, 1, dev.stops)
	assert.Zero(t, d.Pos())

	require.NoError(t, d.Open(ctx))
	assert.Len(t, dev.configured, 2)
	require.NoError(t, d.Close())
}

func TestConfigureError(t *testing.T) {
	ctx := context.Background()
	dev := &device{configErr: errors.New("unsupported rate")}
	d := codecdev.New(pipe.Write, dev)
	require.NoError(t, d.Open(ctx))
	d.ApplyInfo(sound.Info{SampleRate: 11025, Channels: 1, Bits: 16})
	b, err := d.AcquireWrite(ctx, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, d.ReleaseWrite(ctx, b), dev.configErr)
	require.NoError(t, d.Close())
	assert.ErrorIs(t, d.Open(ctx), dev.configErr)
}

func TestRead(t *testing.T) {
	ctx := context.Background()
	dev := &device{}
	dev.WriteString("0123456789")
	d := codecdev.New(pipe.Read, dev)
	require.NoError(t, d.Open(ctx))
	_, err := d.AcquireWrite(ctx, 1)
	assert.ErrorIs(t, err, pipe.ErrInvalidState)

	var result []byte
	for {
		b, err := d.AcquireRead(ctx, 4)
		require.NoError(t, err)
		result = append(result, b.Bytes()...)
		last := b.Last
		require.NoError(t, d.ReleaseRead(ctx, b))
		if last {
			break
		}
	}
	assert.Equal(t, "0123456789", string(result))
	assert.ErrorIs(t, d.ReleaseRead(ctx, &port.Block{}), port.ErrNotAcquired)
	require.NoError(t, d.Close())
}

func TestNoDevice(t *testing.T) {
	d := codecdev.New(pipe.Write, nil)
	assert.ErrorIs(t, d.Open(context.Background()), pipe.ErrFail)
	assert.False(t, d.Opened())
}

var _ io.ReadWriter = (*device)(nil)
