// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"flag"
	"io"

	"github.com/aibor/mkinitramfs/internal/initramfs"
)

type initramfsFlags struct {
	config           string
	confDir          string
	modulesDir       string
	ucode            string
	encoder          initramfs.Encoder
	output           string
	skipDefaultPaths bool
	debug            bool

	flagSet *flag.FlagSet
}

func newInitramfsFlags(name string, output io.Writer) *initramfsFlags {
	flags := &initramfsFlags{
		encoder: initramfs.EncoderGzip,
	}

	fs := flag.NewFlagSet(name+" initramfs [flags...]", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(
		&flags.config,
		"config",
		flags.config,
		"path to the configuration file",
	)

	fs.StringVar(
		&flags.confDir,
		"confdir",
		flags.confDir,
		"directory with configuration fragments to merge",
	)

	fs.StringVar(
		&flags.modulesDir,
		"modules",
		flags.modulesDir,
		"kernel modules directory (e.g. /lib/modules/$(uname -r))",
	)

	fs.StringVar(
		&flags.ucode,
		"ucode",
		flags.ucode,
		"pre-built microcode bundle to prepend to the output",
	)

	fs.TextVar(
		&flags.encoder,
		"encoder",
		flags.encoder,
		"compression codec: none, gzip, zstd",
	)

	fs.StringVar(
		&flags.output,
		"output",
		flags.output,
		"output file, \"-\" for stdout",
	)

	fs.BoolVar(
		&flags.skipDefaultPaths,
		"skip-default-paths",
		flags.skipDefaultPaths,
		"do not search the default library paths",
	)

	fs.BoolVar(
		&flags.debug,
		"debug",
		flags.debug,
		"enable debug output",
	)

	flags.flagSet = fs

	return flags
}

func (f *initramfsFlags) parseArgs(args []string) error {
	if err := f.flagSet.Parse(args); err != nil {
		return &ParseArgsError{msg: "flag parse", err: err}
	}

	if f.output == "" {
		return f.fail("no output given (use -output)")
	}

	return nil
}

// fail fails like flag does. It prints the error first and then usage.
func (f *initramfsFlags) fail(msg string) error {
	err := &ParseArgsError{msg: msg}
	_, _ = io.WriteString(f.flagSet.Output(), err.Error()+"\n")

	f.flagSet.Usage()

	return err
}

type microcodeFlags struct {
	config  string
	encoder initramfs.Encoder
	output  string
	debug   bool

	flagSet *flag.FlagSet
}

func newMicrocodeFlags(name string, output io.Writer) *microcodeFlags {
	flags := &microcodeFlags{
		encoder: initramfs.EncoderNone,
	}

	fs := flag.NewFlagSet(name+" microcode [flags...]", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(
		&flags.config,
		"config",
		flags.config,
		"path to the configuration file",
	)

	fs.TextVar(
		&flags.encoder,
		"encoder",
		flags.encoder,
		"compression codec: none, gzip, zstd. Early loading requires none.",
	)

	fs.StringVar(
		&flags.output,
		"output",
		flags.output,
		"output file, \"-\" for stdout",
	)

	fs.BoolVar(
		&flags.debug,
		"debug",
		flags.debug,
		"enable debug output",
	)

	flags.flagSet = fs

	return flags
}

func (f *microcodeFlags) parseArgs(args []string) error {
	if err := f.flagSet.Parse(args); err != nil {
		return &ParseArgsError{msg: "flag parse", err: err}
	}

	if f.config == "" {
		return f.fail("no config given (use -config)")
	}

	if f.output == "" {
		return f.fail("no output given (use -output)")
	}

	return nil
}

func (f *microcodeFlags) fail(msg string) error {
	err := &ParseArgsError{msg: msg}
	_, _ = io.WriteString(f.flagSet.Output(), err.Error()+"\n")

	f.flagSet.Usage()

	return err
}
