//go:build linux

package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/subcommands"
	"github.com/vkngwrapper/bufalloc/caps"
	"github.com/vkngwrapper/bufalloc/format"
	"github.com/vkngwrapper/bufalloc/gbm"
	"github.com/vkngwrapper/bufalloc/share"
	"golang.org/x/exp/slog"
	"golang.org/x/sys/unix"
)

// bufferFlags are the flags shared by commands that allocate buffers
type bufferFlags struct {
	format    string
	width     uint
	height    uint
	use       string
	modifiers string
}

func (b *bufferFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&b.format, "format", "XR24", "Fourcc of the buffer.")
	fs.UintVar(&b.width, "width", 64, "Width in pixels.")
	fs.UintVar(&b.height, "height", 64, "Height in pixels.")
	fs.StringVar(&b.use, "use", "Rendering|SWWriteOften", "Use flags separated by '|'.")
	fs.StringVar(&b.modifiers, "modifiers", "", "Comma separated modifiers to choose from instead of use flags.")
}

func (b *bufferFlags) create(device *gbm.Device) (*gbm.BufferObject, error) {
	f, err := format.ParseFourCC(b.format)
	if err != nil {
		return nil, err
	}

	if b.modifiers != "" {
		var modifiers []uint64
		for _, str := range strings.Split(b.modifiers, ",") {
			modifier, err := caps.ParseModifier(strings.TrimSpace(str))
			if err != nil {
				return nil, err
			}
			modifiers = append(modifiers, modifier)
		}
		return device.CreateBufferWithModifiers(uint32(b.width), uint32(b.height), f, modifiers)
	}

	use, err := caps.ParseUseFlags(b.use)
	if err != nil {
		return nil, err
	}
	return device.CreateBuffer(uint32(b.width), uint32(b.height), f, use)
}

// Alloc implements subcommands.Command for the "alloc" command.
type Alloc struct {
	buffer bufferFlags
	fill   uint
}

// Name implements subcommands.Command.Name.
func (*Alloc) Name() string {
	return "alloc"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Alloc) Synopsis() string {
	return "Allocate, map and export a buffer."
}

// Usage implements subcommands.Command.Usage.
func (*Alloc) Usage() string {
	return `alloc [options] - Allocate a buffer, fill every plane through a CPU mapping and print
the descriptor another process would import it with.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (a *Alloc) SetFlags(fs *flag.FlagSet) {
	a.buffer.register(fs)
	fs.UintVar(&a.fill, "fill", 0x80, "Byte to fill the planes with.")
}

// Execute implements subcommands.Command.Execute.
func (a *Alloc) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	device, logger, err := openDevice()
	if err != nil {
		return failure("%v", err)
	}

	err = a.run(device, logger)
	err = errors.CombineErrors(err, device.Destroy())
	if err != nil {
		return failure("%+v", err)
	}

	return subcommands.ExitSuccess
}

func (a *Alloc) run(device *gbm.Device, logger *slog.Logger) (err error) {
	bo, err := a.buffer.create(device)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.CombineErrors(err, bo.Destroy())
	}()

	logger.Info("allocated buffer",
		slog.String("format", bo.Format().String()),
		slog.String("modifier", caps.ModifierString(bo.Modifier())),
		slog.Int("planes", bo.NumPlanes()),
		slog.Int("handles", bo.NumBuffers()),
		slog.Uint64("size", bo.TotalSize()))

	for plane := 0; plane < bo.NumPlanes(); plane++ {
		mapping, err := bo.Map(plane, gbm.MapWrite)
		if err != nil {
			return err
		}

		data := mapping.Data()
		for i := range data {
			data[i] = byte(a.fill)
		}

		err = bo.Unmap(mapping)
		if err != nil {
			return err
		}
	}

	exported, err := bo.Export()
	if err != nil {
		return err
	}
	defer func() {
		for plane := 0; plane < share.NumPlanes(&exported); plane++ {
			_ = unix.Close(exported.FDs[plane])
		}
	}()

	doc, err := share.Encode(exported)
	if err != nil {
		return err
	}

	fmt.Println(string(doc))
	return nil
}
