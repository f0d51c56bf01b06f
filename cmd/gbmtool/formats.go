//go:build linux

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"
	"github.com/vkngwrapper/bufalloc/caps"
	"github.com/vkngwrapper/bufalloc/format"
)

// Formats implements subcommands.Command for the "formats" command.
type Formats struct {
	format string
}

// Name implements subcommands.Command.Name.
func (*Formats) Name() string {
	return "formats"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Formats) Synopsis() string {
	return "Print the combinations the backend supports."
}

// Usage implements subcommands.Command.Usage.
func (*Formats) Usage() string {
	return `formats [-format <fourcc>] - Print the capability table of the configured backend.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (f *Formats) SetFlags(fs *flag.FlagSet) {
	fs.StringVar(&f.format, "format", "", "Only print combinations of this fourcc.")
}

// Execute implements subcommands.Command.Execute.
func (f *Formats) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	var only format.FourCC
	if f.format != "" {
		var err error
		only, err = format.ParseFourCC(f.format)
		if err != nil {
			return failure("%v", err)
		}
	}

	device, _, err := openDevice()
	if err != nil {
		return failure("%v", err)
	}
	defer device.Destroy()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "FORMAT\tMODIFIER\tPRIORITY\tUSE\n")
	for _, combo := range device.Table().Combinations() {
		if only != 0 && combo.Format != only {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", combo.Format, caps.ModifierString(combo.Metadata.Modifier), combo.Metadata.Priority, combo.Use)
	}
	if err := w.Flush(); err != nil {
		return failure("%v", err)
	}

	return subcommands.ExitSuccess
}
