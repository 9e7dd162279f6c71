package file_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/player/file"
	"pipelined.dev/player/pipe"
	"pipelined.dev/player/port"
)

func content(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func write(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.pcm")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func readAll(t *testing.T, f *file.File, wanted int) []byte {
	t.Helper()
	ctx := context.Background()
	var result []byte
	for {
		b, err := f.AcquireRead(ctx, wanted)
		require.NoError(t, err)
		result = append(result, b.Bytes()...)
		last := b.Last
		require.NoError(t, f.ReleaseRead(ctx, b))
		if last {
			return result
		}
	}
}

func TestRead(t *testing.T) {
	data := content(3000)
	path := write(t, data)
	tests := []struct {
		name  string
		uri   string
		cache int
	}{
		{name: "bare path", uri: path, cache: 0},
		{name: "scheme", uri: "file://" + path, cache: 100},
		{name: "cache", uri: "file://" + path, cache: 700},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := file.New(pipe.Read, file.Config{CacheSize: tt.cache})
			f.SetURI(tt.uri)
			require.NoError(t, f.Open(context.Background()))
			assert.Equal(t, int64(3000), f.Size())
			assert.Equal(t, data, readAll(t, f, 256))
			assert.Equal(t, int64(3000), f.Pos())

			b, err := f.AcquireRead(context.Background(), 10)
			require.NoError(t, err)
			assert.True(t, b.Last)
			assert.Zero(t, b.Valid)
			require.NoError(t, f.ReleaseRead(context.Background(), b))

			require.NoError(t, f.Close())
			assert.Zero(t, f.Pos())
			require.NoError(t, f.Close())
		})
	}
}

func TestResume(t *testing.T) {
	data := content(1000)
	f := file.New(pipe.Read, file.DefaultConfig())
	f.SetURI(write(t, data))
	f.SetPos(600)
	require.NoError(t, f.Open(context.Background()))
	assert.Equal(t, data[600:], readAll(t, f, 128))
	require.NoError(t, f.Close())
}

func TestSeek(t *testing.T) {
	ctx := context.Background()
	data := content(1000)
	f := file.New(pipe.Read, file.DefaultConfig())
	f.SetURI(write(t, data))
	require.NoError(t, f.Open(ctx))
	b, err := f.AcquireRead(ctx, 100)
	require.NoError(t, err)
	require.NoError(t, f.ReleaseRead(ctx, b))

	assert.ErrorIs(t, f.Seek(1001), pipe.ErrOutOfRange)
	assert.Equal(t, int64(100), f.Pos())
	require.NoError(t, f.Seek(900))
	assert.Equal(t, data[900:], readAll(t, f, 64))
	require.NoError(t, f.Seek(1000))
	require.NoError(t, f.Close())
}

func TestOrder(t *testing.T) {
	ctx := context.Background()
	f := file.New(pipe.Read, file.Config{})
	f.SetURI(write(t, content(10)))
	_, err := f.AcquireRead(ctx, 1)
	assert.ErrorIs(t, err, pipe.ErrInvalidState)
	require.NoError(t, f.Open(ctx))
	assert.ErrorIs(t, f.ReleaseRead(ctx, &port.Block{}), port.ErrNotAcquired)
	_, err = f.AcquireRead(ctx, 1)
	require.NoError(t, err)
	_, err = f.AcquireRead(ctx, 1)
	assert.ErrorIs(t, err, port.ErrAcquired)
	require.NoError(t, f.Close())
}

func TestOpenMissing(t *testing.T) {
	f := file.New(pipe.Read, file.Config{})
	f.SetURI(filepath.Join(t.TempDir(), "missing.mp3"))
	assert.ErrorIs(t, f.Open(context.Background()), pipe.ErrFail)
	assert.False(t, f.Opened())

	f = file.New(pipe.Read, file.Config{})
	assert.ErrorIs(t, f.Open(context.Background()), pipe.ErrInvalidArg)
}

func TestWrite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out.pcm")
	for _, cache := range []int{0, 1024} {
		f := file.New(pipe.Write, file.Config{CacheSize: cache})
		f.SetURI("file://" + path)
		require.NoError(t, f.Open(ctx))
		var expected []byte
		for i := 0; i < 5; i++ {
			chunk := bytes.Repeat([]byte{byte(i)}, 300)
			expected = append(expected, chunk...)
			b, err := f.AcquireWrite(ctx, len(chunk))
			require.NoError(t, err)
			b.Valid = copy(b.Buf, chunk)
			b.Last = i == 4
			require.NoError(t, f.ReleaseWrite(ctx, b))
		}
		assert.Equal(t, int64(1500), f.Pos())

		got, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, expected, got)
		require.NoError(t, f.Close())
	}
}
