//go:build linux

// Binary gbmtool inspects and exercises buffer allocation backends.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/vkngwrapper/bufalloc/internal/config"
	"golang.org/x/exp/slog"
)

var (
	configPath = flag.String("config", "", "TOML configuration file.")
	backend    = flag.String("backend", "", "Backend to allocate with (memfd, dumb, vc4), overriding the configuration.")
	device     = flag.String("device", "", "DRM node kernel backends open, overriding the configuration.")
	logLevel   = flag.String("log-level", "", "Log level (debug, info, warn, error), overriding the configuration.")
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&Formats{}, "")
	subcommands.Register(&Layout{}, "")
	subcommands.Register(&Alloc{}, "")
	subcommands.Register(&Stats{}, "")

	flag.Parse()

	os.Exit(int(subcommands.Execute(context.Background())))
}

// loadConfig reads the configuration file, if any, and applies the command line overrides
func loadConfig() (*config.Config, error) {
	c := config.Default()
	if *configPath != "" {
		var err error
		c, err = config.Load(*configPath)
		if err != nil {
			return nil, err
		}
	}

	if *backend != "" {
		c.Backend = *backend
	}
	if *device != "" {
		c.Device = *device
	}
	if *logLevel != "" {
		c.LogLevel = *logLevel
	}

	return c, c.Validate()
}

func newLogger(c *config.Config) *slog.Logger {
	level, _ := c.Level()
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// failure prints an error and returns the failure status
func failure(format string, args ...any) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	return subcommands.ExitFailure
}
