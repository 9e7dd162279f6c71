package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"pipelined.dev/player/codec"
	"pipelined.dev/player/sound"
)

type formatsCommand struct{}

func (cmd *formatsCommand) Name() string {
	return "formats"
}

func (cmd *formatsCommand) Help() string {
	return "Show known formats and available codecs"
}

func (cmd *formatsCommand) Register(*flag.FlagSet) {}

func (cmd *formatsCommand) Run(context.Context) error {
	codec.Retain()
	defer codec.Release()
	fmt.Printf("Known formats:\n %s\n", join(sound.Formats()))
	fmt.Printf("Decoders:\n %s\n", join(codec.Decoders()))
	fmt.Printf("Encoders:\n %s\n", join(codec.Encoders()))
	return nil
}

func join(formats []sound.Format) string {
	names := make([]string, 0, len(formats))
	for _, f := range formats {
		names = append(names, f.String())
	}
	return strings.Join(names, " ")
}
