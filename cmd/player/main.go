package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
)

type config struct {
	args []string
}

type command interface {
	Name() string
	Help() string
	Run(context.Context) error
	Register(*flag.FlagSet)
}

func (config *config) run(ctx context.Context) int {
	cmdName, args := parseArgs(config.args)
	if cmdName == "" {
		printUsage()
		return errorExitCode
	}

	for _, cmd := range commands {
		if cmd.Name() != cmdName {
			continue
		}
		flags := flag.NewFlagSet(cmdName, flag.ContinueOnError)
		cmd.Register(flags)
		if err := flags.Parse(args); err != nil {
			return errorExitCode
		}
		if err := cmd.Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Command failed: %v\n", err)
			return errorExitCode
		}
		return successExitCode
	}
	fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmdName)
	printUsage()
	return errorExitCode
}

var (
	successExitCode = 0
	errorExitCode   = 1
	commands        = []command{
		&playCommand{},
		&transcodeCommand{},
		&formatsCommand{},
	}
)

func main() {
	// .env is optional, variables set in environment take precedence.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		os.Exit(errorExitCode)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	c := config{
		args: os.Args,
	}
	code := c.run(ctx)
	stop()
	os.Exit(code)
}

func parseArgs(args []string) (string, []string) {
	if len(args) < 2 {
		return "", nil
	}
	return args[1], args[2:]
}

func printUsage() {
	fmt.Println("Player is a CLI media player")
	fmt.Println()
	fmt.Println("Usage: player <command> [flags] [uri...]")
	fmt.Println()
	fmt.Println("Commands:")
	for _, cmd := range commands {
		fmt.Printf("\t%s\t%s\n", cmd.Name(), cmd.Help())
	}
	fmt.Println()
	fmt.Printf("Flag defaults are read from %s* environment variables and .env file.\n", envPrefix)
}
