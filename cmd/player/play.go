package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"pipelined.dev/player"
	"pipelined.dev/player/codecdev"
	"pipelined.dev/player/httpstream"
	"pipelined.dev/player/log"
	"pipelined.dev/player/oto"
	"pipelined.dev/player/pipe"
	"pipelined.dev/player/portaudio"
)

// errQuit is returned by controls when user quits.
var errQuit = errors.New("quit")

// pcmFlags configure optional converters.
type pcmFlags struct {
	rate     int
	channels int
	bits     int
}

func (f *pcmFlags) register(fs *flag.FlagSet, bits int) {
	fs.IntVar(&f.rate, "rate", envInt("RATE", 0), "resample to rate, 0 keeps source rate")
	fs.IntVar(&f.channels, "channels", envInt("CHANNELS", 0), "convert to number of channels, 0 keeps source layout")
	fs.IntVar(&f.bits, "bits", envInt("BITS", bits), "convert to bit depth, 0 keeps source depth")
}

func (f *pcmFlags) config() player.Config {
	return player.Config{
		ResampleRate: f.rate,
		Channels:     f.channels,
		Bits:         f.bits,
	}
}

type playCommand struct {
	flags       *flag.FlagSet
	pcm         pcmFlags
	device      string
	buffer      time.Duration
	timeout     time.Duration
	interactive bool
}

func (cmd *playCommand) Name() string {
	return "play"
}

func (cmd *playCommand) Help() string {
	return "Play listed URIs on audio device"
}

func (cmd *playCommand) Register(fs *flag.FlagSet) {
	cmd.flags = fs
	cmd.pcm.register(fs, 16)
	fs.StringVar(&cmd.device, "device", envString("DEVICE", "portaudio"), "output device: portaudio or oto")
	fs.DurationVar(&cmd.buffer, "buffer", envDuration("BUFFER", 0), "device buffer duration, 0 uses device default")
	fs.DurationVar(&cmd.timeout, "timeout", envDuration("HTTP_TIMEOUT", httpstream.DefaultTimeout), "http connect timeout")
	fs.BoolVar(&cmd.interactive, "i", envBool("INTERACTIVE", true), "read controls from terminal: space pauses, n skips, q quits")
}

func openDevice(name string, buffer time.Duration) (codecdev.Device, error) {
	switch name {
	case "portaudio":
		frames := 0
		if buffer > 0 {
			frames = int(buffer.Seconds() * 44100)
		}
		return portaudio.New(pipe.Write, frames), nil
	case "oto":
		return oto.New(buffer), nil
	}
	return nil, fmt.Errorf("device %q: %w", name, pipe.ErrNotSupported)
}

func (cmd *playCommand) Run(ctx context.Context) error {
	uris := cmd.flags.Args()
	if len(uris) == 0 {
		return fmt.Errorf("missing uri")
	}
	dev, err := openDevice(cmd.device, cmd.buffer)
	if err != nil {
		return err
	}
	logger := log.GetLogger()
	httpCfg := httpstream.DefaultConfig()
	httpCfg.Timeout = cmd.timeout
	cfg := cmd.pcm.config()
	cfg.Task = pipe.TaskConfig{Name: "play", LockOSThread: true}
	p, err := player.New(cfg,
		player.WithLogger(logger),
		player.WithSink(codecdev.New(pipe.Write, dev)),
		player.WithHTTP(httpCfg),
	)
	if err != nil {
		return err
	}
	defer p.Destroy()
	p.SetEvent(printEvent(logger))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	keys := make(chan byte)
	if cmd.interactive && term.IsTerminal(int(os.Stdin.Fd())) {
		restore, err := rawTerminal()
		if err != nil {
			return err
		}
		defer restore()
		go readKeys(os.Stdin, keys)
	}
	g.Go(func() error {
		defer cancel()
		return playlist(ctx, p, uris)
	})
	g.Go(func() error {
		return controls(ctx, p, keys)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, errQuit) && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// playlist plays uris one by one. Failed URIs are logged and skipped.
func playlist(ctx context.Context, p *player.Player, uris []string) error {
	for _, uri := range uris {
		err := p.RunToEnd(ctx, uri, nil)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, pipe.ErrFail):
			fmt.Fprintf(os.Stderr, "%s: %v\r\n", uri, err)
		case err != nil:
			return err
		}
	}
	return nil
}

// controls handles terminal keys until ctx is done. Stopping the current
// URI makes playlist continue with the next one.
func controls(ctx context.Context, p *player.Player, keys <-chan byte) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case k := <-keys:
			var err error
			switch k {
			case ' ':
				if p.State() == player.StatePaused {
					err = p.Resume()
				} else {
					err = p.Pause()
				}
			case 'n':
				err = p.Stop()
			case 'q', 3:
				return errQuit
			}
			if err != nil && !errors.Is(err, pipe.ErrInvalidState) {
				return err
			}
		}
	}
}

func rawTerminal() (func(), error) {
	fd := int(os.Stdin.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("terminal raw mode: %w", err)
	}
	return func() {
		_ = term.Restore(fd, state)
	}, nil
}

// readKeys sends every byte read from r until it fails.
func readKeys(r io.Reader, keys chan<- byte) {
	buf := make([]byte, 1)
	for {
		if _, err := r.Read(buf); err != nil {
			return
		}
		keys <- buf[0]
	}
}

func printEvent(logger *logrus.Logger) player.EventFunc {
	return func(e player.Event) {
		switch e.Type {
		case player.EventMusicInfo:
			logger.WithFields(logrus.Fields{
				"rate":     e.Info.SampleRate,
				"channels": e.Info.Channels,
				"bits":     e.Info.Bits,
				"bitrate":  e.Info.Bitrate,
			}).Info("music info")
		case player.EventState:
			entry := logger.WithField("state", e.State)
			if e.Err != nil {
				entry = entry.WithError(e.Err)
			}
			entry.Info("state changed")
		}
	}
}
