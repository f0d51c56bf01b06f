//go:build linux

package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"

	"github.com/google/subcommands"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/bufalloc/format"
)

// Layout implements subcommands.Command for the "layout" command.
type Layout struct {
	stride    uint
	dumb32bpp bool
	json      bool
}

// Name implements subcommands.Command.Name.
func (*Layout) Name() string {
	return "layout"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Layout) Synopsis() string {
	return "Compute the plane geometry of a buffer."
}

// Usage implements subcommands.Command.Usage.
func (*Layout) Usage() string {
	return `layout [options] <fourcc> <width> <height> - Print the strides, offsets and sizes of a single allocation buffer.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (l *Layout) SetFlags(fs *flag.FlagSet) {
	fs.UintVar(&l.stride, "stride", 0, "Stride of the first plane. Derived from the width when zero.")
	fs.BoolVar(&l.dumb32bpp, "dumb32bpp", false, "Also print the dimensions a 32bpp-only dumb buffer ioctl would receive.")
	fs.BoolVar(&l.json, "json", false, "Print JSON.")
}

// Execute implements subcommands.Command.Execute.
func (l *Layout) Execute(_ context.Context, fs *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if fs.NArg() != 3 {
		fs.Usage()
		return subcommands.ExitUsageError
	}

	f, err := format.ParseFourCC(fs.Arg(0))
	if err != nil {
		return failure("%v", err)
	}
	width, err := strconv.ParseUint(fs.Arg(1), 10, 32)
	if err != nil {
		return failure("invalid width: %v", err)
	}
	height, err := strconv.ParseUint(fs.Arg(2), 10, 32)
	if err != nil {
		return failure("invalid height: %v", err)
	}
	if format.NumPlanes(f) == 0 {
		return failure("format %s has no layout", f)
	}

	quirks := format.QuirkNone
	if l.dumb32bpp {
		quirks = format.QuirkDumb32bpp
	}
	dims, err := format.AlignDimensions(f, uint32(width), uint32(height), quirks)
	if err != nil {
		return failure("%v", err)
	}

	stride := uint32(l.stride)
	if stride == 0 {
		unquirked, err := format.AlignDimensions(f, uint32(width), uint32(height), format.QuirkNone)
		if err != nil {
			return failure("%v", err)
		}
		stride, err = format.StrideFromFormat(f, unquirked.Width, 0)
		if err != nil {
			return failure("%v", err)
		}
	}

	layout, err := format.ComputeLayoutForHeight(f, stride, dims.LayoutHeight, uint32(height), [format.MaxPlanes]uint32{})
	if err != nil {
		return failure("%v", err)
	}

	if l.json {
		fmt.Println(layoutJSON(f, dims, &layout))
		return subcommands.ExitSuccess
	}

	fmt.Printf("%s %dx%d: allocate %dx%d at %d bpp\n", f, width, height, dims.Width, dims.Height, dims.BitsPerPixel)
	for plane := 0; plane < layout.NumPlanes; plane++ {
		fmt.Printf("  plane %d: stride %d offset %d size %d\n", plane, layout.Strides[plane], layout.Offsets[plane], layout.Sizes[plane])
	}
	fmt.Printf("  total %d\n", layout.TotalSize)
	return subcommands.ExitSuccess
}

func layoutJSON(f format.FourCC, dims format.AllocationDimensions, layout *format.BufferLayout) string {
	writer := jwriter.NewWriter()
	obj := writer.Object()

	obj.Name("Format").String(f.String())

	allocObj := obj.Name("Allocation").Object()
	allocObj.Name("Width").Int(int(dims.Width))
	allocObj.Name("Height").Int(int(dims.Height))
	allocObj.Name("BitsPerPixel").Int(int(dims.BitsPerPixel))
	allocObj.End()

	planes := obj.Name("Planes").Array()
	for plane := 0; plane < layout.NumPlanes; plane++ {
		planeObj := planes.Object()
		planeObj.Name("Stride").Int(int(layout.Strides[plane]))
		planeObj.Name("Offset").Int(int(layout.Offsets[plane]))
		planeObj.Name("Size").Int(int(layout.Sizes[plane]))
		planeObj.End()
	}
	planes.End()

	obj.Name("TotalSize").Int(int(layout.TotalSize))
	obj.End()

	return string(writer.Bytes())
}
