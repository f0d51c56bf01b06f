//go:build linux

package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/google/subcommands"
	"github.com/vkngwrapper/bufalloc/gbm"
)

// Stats implements subcommands.Command for the "stats" command.
type Stats struct {
	buffer   bufferFlags
	count    uint
	mapped   bool
	detailed bool
}

// Name implements subcommands.Command.Name.
func (*Stats) Name() string {
	return "stats"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Stats) Synopsis() string {
	return "Allocate buffers and print the device statistics."
}

// Usage implements subcommands.Command.Usage.
func (*Stats) Usage() string {
	return `stats [options] - Allocate a number of buffers and print the device statistics as JSON.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Stats) SetFlags(fs *flag.FlagSet) {
	s.buffer.register(fs)
	fs.UintVar(&s.count, "count", 4, "Number of buffers to allocate.")
	fs.BoolVar(&s.mapped, "mapped", false, "Keep the first plane of every buffer mapped while printing.")
	fs.BoolVar(&s.detailed, "detailed", false, "Include mappings and the capability table.")
}

// Execute implements subcommands.Command.Execute.
func (s *Stats) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	device, _, err := openDevice()
	if err != nil {
		return failure("%v", err)
	}

	err = s.run(device)
	err = errors.CombineErrors(err, device.Destroy())
	if err != nil {
		return failure("%+v", err)
	}

	return subcommands.ExitSuccess
}

func (s *Stats) run(device *gbm.Device) error {
	var buffers []*gbm.BufferObject
	var mappings []*gbm.Mapping
	var err error

	for i := uint(0); i < s.count; i++ {
		bo, createErr := s.buffer.create(device)
		if createErr != nil {
			err = createErr
			break
		}
		buffers = append(buffers, bo)

		if s.mapped {
			mapping, mapErr := bo.Map(0, gbm.MapRead)
			if mapErr != nil {
				err = mapErr
				break
			}
			mappings = append(mappings, mapping)
		}
	}

	if err == nil {
		fmt.Println(device.BuildStatsString(s.detailed))
	}

	for i, mapping := range mappings {
		err = errors.CombineErrors(err, buffers[i].Unmap(mapping))
	}
	for _, bo := range buffers {
		err = errors.CombineErrors(err, bo.Destroy())
	}

	return err
}
