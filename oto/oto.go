// Package oto provides playback codec device backed by oto. Oto allows one
// context per process, so every device shares the layout of the first
// configured one.
package oto

import (
	"fmt"
	"io"
	"sync"
	"time"

	otolib "github.com/ebitengine/oto/v3"

	"pipelined.dev/player/pipe"
	"pipelined.dev/player/sound"
)

// DrainTimeout bounds how long Stop waits for buffered audio.
const DrainTimeout = 5 * time.Second

var shared struct {
	sync.Mutex
	ctx  *otolib.Context
	info sound.Info
}

func sharedContext(info sound.Info, buffer time.Duration) (*otolib.Context, error) {
	shared.Lock()
	defer shared.Unlock()
	if shared.ctx != nil {
		if !shared.info.SamePCM(info) {
			return nil, fmt.Errorf("oto: context is %v, requested %v: %w", shared.info, info, pipe.ErrNotSupported)
		}
		return shared.ctx, nil
	}
	ctx, ready, err := otolib.NewContext(&otolib.NewContextOptions{
		SampleRate:   info.SampleRate,
		ChannelCount: info.Channels,
		Format:       otolib.FormatSignedInt16LE,
		BufferSize:   buffer,
	})
	if err != nil {
		return nil, err
	}
	<-ready
	shared.ctx, shared.info = ctx, info
	return ctx, nil
}

// Device plays 16 bit PCM. Writes block while oto buffer is full.
type Device struct {
	buffer time.Duration

	mu     sync.Mutex
	player *otolib.Player
	pw     *io.PipeWriter
}

// New returns playback device. Zero buffer uses oto default.
func New(buffer time.Duration) *Device {
	return &Device{buffer: buffer}
}

// Configure starts new player fed by the device writes.
func (d *Device) Configure(info sound.Info) error {
	if info.Bits != 16 {
		return fmt.Errorf("oto: %d bits: %w", info.Bits, pipe.ErrNotSupported)
	}
	ctx, err := sharedContext(info, d.buffer)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stop()
	pr, pw := io.Pipe()
	d.player = ctx.NewPlayer(pr)
	d.pw = pw
	d.player.Play()
	return nil
}

// Write queues PCM for playback.
func (d *Device) Write(p []byte) (int, error) {
	d.mu.Lock()
	pw := d.pw
	d.mu.Unlock()
	if pw == nil {
		return 0, fmt.Errorf("oto: write: %w", pipe.ErrInvalidState)
	}
	return pw.Write(p)
}

// Read is not supported, oto has no capture.
func (d *Device) Read([]byte) (int, error) {
	return 0, fmt.Errorf("oto: read: %w", pipe.ErrNotSupported)
}

// Stop waits for queued audio to play and closes the player.
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stop()
}

func (d *Device) stop() error {
	if d.player == nil {
		return nil
	}
	d.pw.Close()
	deadline := time.Now().Add(DrainTimeout)
	for d.player.IsPlaying() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	err := d.player.Close()
	d.player, d.pw = nil, nil
	return err
}
