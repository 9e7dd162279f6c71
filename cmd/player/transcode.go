package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"pipelined.dev/player"
	"pipelined.dev/player/alc"
	"pipelined.dev/player/convert"
	"pipelined.dev/player/decoder"
	"pipelined.dev/player/encoder"
	"pipelined.dev/player/fade"
	"pipelined.dev/player/file"
	"pipelined.dev/player/log"
	"pipelined.dev/player/pipe"
	"pipelined.dev/player/sound"
)

type transcodeCommand struct {
	in      string
	out     string
	pcm     pcmFlags
	bitrate int
	gain    int
	fadeIn  time.Duration
}

func (cmd *transcodeCommand) Name() string {
	return "transcode"
}

func (cmd *transcodeCommand) Help() string {
	return "Decode URI and encode it into a file"
}

func (cmd *transcodeCommand) Register(fs *flag.FlagSet) {
	cmd.pcm.register(fs, 0)
	fs.StringVar(&cmd.in, "in", "", "input URI (required)")
	fs.StringVar(&cmd.out, "out", "", "output file, extension selects encoder (required)")
	fs.IntVar(&cmd.bitrate, "bitrate", envInt("BITRATE", encoder.DefaultBitrate), "encoder bitrate in kbps")
	fs.IntVar(&cmd.gain, "gain", 0, fmt.Sprintf("gain in dB [%d, %d]", alc.MinGain, alc.MaxGain))
	fs.DurationVar(&cmd.fadeIn, "fade-in", 0, "fade in duration")
}

// Validate checks required flags.
func (cmd *transcodeCommand) Validate() error {
	var message string
	if cmd.in == "" {
		message += "Missing -in required flag\n"
	}
	if cmd.out == "" {
		message += "Missing -out required flag\n"
	}
	if cmd.gain < alc.MinGain || cmd.gain > alc.MaxGain {
		message += fmt.Sprintf("Gain %d is out of range\n", cmd.gain)
	}
	if message != "" {
		return fmt.Errorf("%s%w", message, pipe.ErrInvalidArg)
	}
	return nil
}

// elements returns names of the transcoding chain and registers the
// elements which player does not provide.
func (cmd *transcodeCommand) elements(p *player.Player, format sound.Format) ([]string, error) {
	names := []string{decoder.Name}
	if cmd.pcm.rate > 0 {
		names = append(names, convert.RateName)
	}
	if cmd.pcm.channels > 0 {
		names = append(names, convert.ChannelsName)
	}
	if cmd.pcm.bits > 0 {
		names = append(names, convert.BitsName)
	}
	if cmd.gain != 0 {
		if err := p.RegisterElement(alc.Name, alc.Factory(cmd.gain)); err != nil {
			return nil, err
		}
		names = append(names, alc.Name)
	}
	if cmd.fadeIn > 0 {
		cfg := fade.Config{Mode: fade.In, Curve: fade.Quad, Duration: cmd.fadeIn}
		if err := p.RegisterElement(fade.Name, fade.Factory(cfg)); err != nil {
			return nil, err
		}
		names = append(names, fade.Name)
	}
	cfg := encoder.Config{Format: format, Bitrate: cmd.bitrate}
	if err := p.RegisterElement(encoder.Name, encoder.Factory(cfg)); err != nil {
		return nil, err
	}
	return append(names, encoder.Name), nil
}

func (cmd *transcodeCommand) Run(ctx context.Context) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	format, err := sound.FormatOf(cmd.out)
	if err != nil {
		return fmt.Errorf("%v: %w", err, pipe.ErrNotSupported)
	}
	logger := log.GetLogger()
	sink := file.New(pipe.Write, file.DefaultConfig())
	sink.SetURI(cmd.out)
	p, err := player.New(cmd.pcm.config(), player.WithLogger(logger), player.WithSink(sink))
	if err != nil {
		return err
	}
	defer p.Destroy()
	p.SetEvent(printEvent(logger))

	names, err := cmd.elements(p, format)
	if err != nil {
		return err
	}
	if err := p.SetPipeline("", names, ""); err != nil {
		return err
	}
	logger.WithField("elements", names).Debug("transcode pipeline")
	if err := p.RunToEnd(ctx, cmd.in, nil); err != nil {
		return err
	}
	fmt.Printf("Transcoded %s to %s\n", cmd.in, cmd.out)
	return nil
}
