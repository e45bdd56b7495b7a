// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/aibor/mkinitramfs/internal/config"
	"github.com/aibor/mkinitramfs/internal/initramfs"
	"github.com/aibor/mkinitramfs/internal/vfs"
)

const usage = `Usage: mkinitramfs <command> [flags...]

Commands:
  initramfs    build an initramfs archive
  microcode    build an early microcode bundle

Run "mkinitramfs <command> -h" for the flags of a command.
`

// Run executes the command line given in args, which is expected to be
// shaped like os.Args. It returns the process exit code.
func Run(args []string, stdout, stderr io.Writer) int {
	err := run(args, stdout, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}

		// Parse errors are already printed along with the usage.
		if !errors.Is(err, &ParseArgsError{}) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}

		return 1
	}

	return 0
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) < 2 {
		_, _ = io.WriteString(stderr, usage)
		return &ParseArgsError{msg: "no command given"}
	}

	name := filepath.Base(args[0])

	switch args[1] {
	case "initramfs":
		return runInitramfs(name, args[2:], stdout, stderr)
	case "microcode":
		return runMicrocode(name, args[2:], stdout, stderr)
	case "help", "-h", "-help", "--help":
		_, _ = io.WriteString(stderr, usage)
		return nil
	default:
		_, _ = io.WriteString(stderr, usage)
		return fmt.Errorf("%w: %s", ErrUnknownCommand, args[1])
	}
}

func runInitramfs(name string, args []string, stdout, stderr io.Writer) error {
	flags := newInitramfsFlags(name, stderr)
	if err := flags.parseArgs(args); err != nil {
		return err
	}

	setupLogging(stderr, flags.debug)

	cfg, err := loadConfig(flags.config, flags.confDir)
	if err != nil {
		return err
	}

	// The dynamic linker consumes LD_LIBRARY_PATH, so honor it for
	// resolution as well.
	searchPaths := filepath.SplitList(os.Getenv("LD_LIBRARY_PATH"))
	searchPaths = slices.DeleteFunc(searchPaths, func(dir string) bool {
		return dir == ""
	})

	tree, err := initramfs.Build(cfg.Initramfs, initramfs.Options{
		ModulesDir:       flags.modulesDir,
		SearchPaths:      searchPaths,
		SkipDefaultPaths: flags.skipDefaultPaths,
	})
	if err != nil {
		return err
	}

	return writeOutput(flags.output, stdout, func(w io.Writer) error {
		if flags.ucode != "" {
			if err := prependBundle(w, flags.ucode); err != nil {
				return err
			}
		}

		return writeCompressed(w, tree, flags.encoder)
	})
}

func runMicrocode(name string, args []string, stdout, stderr io.Writer) error {
	flags := newMicrocodeFlags(name, stderr)
	if err := flags.parseArgs(args); err != nil {
		return err
	}

	setupLogging(stderr, flags.debug)

	cfg, err := config.Load(flags.config)
	if err != nil {
		return err
	}

	if cfg.Microcode == nil {
		return fmt.Errorf("%w: missing microcode section",
			config.ErrInvalidValue)
	}

	tree, err := initramfs.BuildMicrocode(cfg.Microcode)
	if err != nil {
		return err
	}

	return writeOutput(flags.output, stdout, func(w io.Writer) error {
		return writeCompressed(w, tree, flags.encoder)
	})
}

func loadConfig(configPath, confDir string) (*config.Config, error) {
	cfg := &config.Config{}

	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}

		cfg = loaded
	}

	if confDir != "" {
		if err := config.LoadDir(cfg, confDir); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// writeOutput runs the write function against the output file, or stdout
// for "-". A partially written output file is removed on error.
func writeOutput(
	output string,
	stdout io.Writer,
	write func(io.Writer) error,
) error {
	if output == "-" {
		return write(stdout)
	}

	file, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}

	if err := write(file); err != nil {
		_ = file.Close()
		_ = os.Remove(output)

		return err
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(output)

		return fmt.Errorf("close output: %w", err)
	}

	return nil
}

// writeCompressed encodes the staging tree through the chosen codec. The
// codec is finalized exactly once at end of stream.
func writeCompressed(
	w io.Writer,
	tree *vfs.Tree,
	encoder initramfs.Encoder,
) error {
	sink, err := encoder.Wrap(w)
	if err != nil {
		return err
	}

	if err := initramfs.WriteArchive(sink, tree); err != nil {
		_ = sink.Close()

		return err
	}

	if err := sink.Close(); err != nil {
		return fmt.Errorf("finalize codec: %w", err)
	}

	return nil
}

// prependBundle copies the pre-built microcode bundle in front of the
// compressed stream. The kernel requires the embedded bundle to be
// aligned to four bytes, so it is zero padded.
func prependBundle(w io.Writer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open microcode bundle: %w", err)
	}
	defer file.Close()

	copied, err := io.Copy(w, file)
	if err != nil {
		return fmt.Errorf("copy microcode bundle: %w", err)
	}

	if padding := copied % 4; padding != 0 {
		_, err := w.Write(make([]byte, 4-padding))
		if err != nil {
			return fmt.Errorf("pad microcode bundle: %w", err)
		}
	}

	return nil
}
