package player

import (
	"fmt"
	"io/fs"

	"pipelined.dev/player/callback"
	"pipelined.dev/player/embedflash"
	"pipelined.dev/player/file"
	"pipelined.dev/player/httpstream"
	"pipelined.dev/player/pipe"
)

// Config of a player.
type Config struct {
	// Out receives decoded PCM. It is mandatory unless WithSink is used.
	Out callback.DataFunc
	// OutInfo receives the description of PCM passed to Out.
	OutInfo callback.InfoFunc
	// In provides bytes for raw URIs like "raw://stream.mp3".
	In callback.DataFunc
	// Task configures the worker goroutine.
	Task pipe.TaskConfig
	// Prev is called after the pipeline is set up and before it runs.
	// It must not call Run, RunToEnd, Stop or Destroy.
	Prev func(*Player) error

	// Optional converters. Zero value leaves the element out of the
	// pipeline.
	ResampleRate int
	Channels     int
	Bits         int
}

// Option provides a way to set functional parameters to player.
type Option func(*Player) error

// WithLogger sets logger to player and its pipelines.
func WithLogger(logger pipe.Logger) Option {
	return func(p *Player) error {
		if logger == nil {
			return fmt.Errorf("nil logger: %w", pipe.ErrInvalidArg)
		}
		p.log = logger
		return nil
	}
}

// WithMetric enables expvar counters of pipeline elements.
func WithMetric() Option {
	return func(p *Player) error {
		p.metered = true
		return nil
	}
}

// WithSink replaces Config.Out with a transport, for example a codec
// device.
func WithSink(s pipe.Sink) Option {
	return func(p *Player) error {
		if s == nil {
			return fmt.Errorf("nil sink: %w", pipe.ErrInvalidArg)
		}
		if s.Direction() != pipe.Write {
			return fmt.Errorf("sink %s is a %v: %w", s.Name(), s.Direction(), pipe.ErrInvalidArg)
		}
		p.sink = s
		return nil
	}
}

// WithHTTP sets configuration of http transports.
func WithHTTP(cfg httpstream.Config) Option {
	return func(p *Player) error {
		p.http = cfg
		return nil
	}
}

// WithFile sets configuration of file transports.
func WithFile(cfg file.Config) Option {
	return func(p *Player) error {
		p.file = cfg
		return nil
	}
}

// WithEmbedded registers embedded resources served by embed:// URIs.
// Items are addressed as embed://tone/<index>_<name>, other paths are
// looked up in fsys.
func WithEmbedded(items []embedflash.Item, fsys fs.FS) Option {
	return func(p *Player) error {
		p.items = items
		p.fsys = fsys
		return nil
	}
}
