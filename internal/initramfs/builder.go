// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package initramfs

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/aibor/mkinitramfs/internal/config"
	"github.com/aibor/mkinitramfs/internal/kmod"
	"github.com/aibor/mkinitramfs/internal/ldso"
	"github.com/aibor/mkinitramfs/internal/vfs"
)

// permMask are the mode bits preserved from host files, including setuid,
// setgid and sticky bits.
const permMask = 0o7777

// Options are the host side parameters of a build.
type Options struct {
	// ModulesDir is the kernel modules directory, usually
	// /lib/modules/<release>. Required only if modules are configured.
	ModulesDir string
	// SearchPaths are additional shared object search directories.
	SearchPaths []string
	// SkipDefaultPaths disables the default shared object search paths.
	SkipDefaultPaths bool
}

// Build populates a staging tree from the configuration.
//
// The categories are processed in a fixed order: binaries, libraries,
// kernel modules, trees, device nodes, symlinks, init. Conflicting
// entries return a [ConflictError] naming both contributors.
func Build(cfg *config.Initramfs, opts Options) (*vfs.Tree, error) {
	b := &builder{
		tree:    vfs.New(),
		origins: make(map[string]string),
		resolver: &ldso.Resolver{
			SearchPaths:      opts.SearchPaths,
			SkipDefaultPaths: opts.SkipDefaultPaths,
		},
		opts: opts,
	}

	if cfg == nil {
		return b.tree, nil
	}

	if err := b.addELFFiles(cfg.Bin, "bin"); err != nil {
		return nil, err
	}

	if err := b.addELFFiles(cfg.Lib, "lib"); err != nil {
		return nil, err
	}

	if err := b.addModules(cfg.Module); err != nil {
		return nil, err
	}

	if err := b.addTrees(cfg.Tree); err != nil {
		return nil, err
	}

	if err := b.addNodes(cfg.Node); err != nil {
		return nil, err
	}

	if err := b.addSymlinks(cfg.Symlink); err != nil {
		return nil, err
	}

	if err := b.addInit(cfg); err != nil {
		return nil, err
	}

	return b.tree, nil
}

type builder struct {
	tree     *vfs.Tree
	origins  map[string]string
	resolver *ldso.Resolver
	opts     Options
}

// insert runs the insert function and promotes tree conflicts to a
// [ConflictError] naming both contributing entries.
func (b *builder) insert(origin, path string, fn func() error) error {
	err := fn()

	var conflict *vfs.ConflictError
	if errors.As(err, &conflict) {
		return &ConflictError{
			Path:   conflict.Path,
			First:  b.origins[conflict.Path],
			Second: origin,
		}
	}

	if err != nil {
		return err
	}

	if _, exists := b.origins[path]; !exists {
		b.origins[path] = origin
	}

	return nil
}

// addHostFile inserts the regular file source at dest, preserving the
// host mode and mtime.
func (b *builder) addHostFile(origin, dest, source string) error {
	var stat unix.Stat_t

	if err := unix.Stat(source, &stat); err != nil {
		return &os.PathError{Op: "stat", Path: source, Err: err}
	}

	if stat.Mode&unix.S_IFMT != unix.S_IFREG {
		return fmt.Errorf("%w: %s", ErrNotRegularFile, source)
	}

	return b.insert(origin, dest, func() error {
		return b.tree.InsertFile(dest, source, stat.Mode&permMask,
			stat.Mtim.Sec)
	})
}

// addELFFiles adds the configured binaries or libraries along with their
// resolved shared object dependencies.
func (b *builder) addELFFiles(items []config.FileItem, category string) error {
	for _, item := range items {
		origin := category + " " + item.Path

		slog.Debug("Adding ELF file", "category", category,
			"path", item.Path)

		err := b.addHostFile(origin, item.Destination(), item.Path)
		if err != nil {
			return err
		}

		result, err := b.resolver.Resolve(item.Path)
		if err != nil {
			return err
		}

		for _, lib := range result.Libs {
			err := b.addHostFile("library "+lib+" (via "+origin+")",
				lib, lib)
			if err != nil {
				return err
			}
		}

		for _, soname := range result.Unresolved {
			slog.Warn("Unresolved soname", "soname", soname,
				"file", item.Path)
		}
	}

	return nil
}

// addModules adds the transitive closure of the requested kernel modules
// and the modprobe metadata files.
func (b *builder) addModules(names []string) error {
	if len(names) == 0 {
		return nil
	}

	if b.opts.ModulesDir == "" {
		return ErrNoModulesDir
	}

	resolver, err := kmod.NewResolver(b.opts.ModulesDir)
	if err != nil {
		return err
	}

	modules, err := resolver.Resolve(names...)
	if err != nil {
		return err
	}

	for _, module := range append(modules, resolver.MetadataFiles()...) {
		slog.Debug("Adding kernel module file", "path", module.Path)

		err := b.addHostFile("module "+module.Path, module.ArchivePath,
			module.Path)
		if err != nil {
			return err
		}
	}

	return nil
}

// addTrees copies the configured source paths into their destination
// directories. Directories copy recursively, symbolic links are preserved
// as links and their targets are not followed.
func (b *builder) addTrees(items []config.TreeItem) error {
	for _, item := range items {
		origin := "tree " + item.Path

		err := b.insert(origin, item.Path, func() error {
			return b.tree.InsertDir(item.Path, vfs.DirMode)
		})
		if err != nil {
			return err
		}

		for _, source := range item.Copy {
			if err := b.copyInto(origin, item.Path, source); err != nil {
				return err
			}
		}
	}

	return nil
}

func (b *builder) copyInto(origin, destDir, source string) error {
	var stat unix.Stat_t

	if err := unix.Lstat(source, &stat); err != nil {
		return &os.PathError{Op: "lstat", Path: source, Err: err}
	}

	if stat.Mode&unix.S_IFMT != unix.S_IFDIR {
		dest := path.Join(destDir, filepath.Base(source))
		return b.copyEntry(origin, dest, source, &stat)
	}

	// Directory contents are copied into the destination, preserving the
	// relative layout.
	return filepath.WalkDir(source, func(
		hostPath string,
		_ fs.DirEntry,
		err error,
	) error {
		if err != nil {
			return err
		}

		if hostPath == source {
			return nil
		}

		relPath, err := filepath.Rel(source, hostPath)
		if err != nil {
			return err
		}

		var stat unix.Stat_t

		if err := unix.Lstat(hostPath, &stat); err != nil {
			return &os.PathError{Op: "lstat", Path: hostPath, Err: err}
		}

		return b.copyEntry(origin, path.Join(destDir, relPath), hostPath,
			&stat)
	})
}

func (b *builder) copyEntry(
	origin, dest, source string,
	stat *unix.Stat_t,
) error {
	mode := stat.Mode & permMask

	switch stat.Mode & unix.S_IFMT {
	case unix.S_IFDIR:
		return b.insert(origin, dest, func() error {
			return b.tree.InsertDir(dest, mode)
		})
	case unix.S_IFREG:
		return b.insert(origin, dest, func() error {
			return b.tree.InsertFile(dest, source, mode, stat.Mtim.Sec)
		})
	case unix.S_IFLNK:
		target, err := os.Readlink(source)
		if err != nil {
			return &os.PathError{Op: "readlink", Path: source, Err: err}
		}

		return b.insert(origin, dest, func() error {
			return b.tree.InsertSymlink(dest, target)
		})
	case unix.S_IFCHR:
		return b.insert(origin, dest, func() error {
			return b.tree.InsertNode(dest, vfs.KindCharDevice,
				unix.Major(uint64(stat.Rdev)),
				unix.Minor(uint64(stat.Rdev)), mode)
		})
	case unix.S_IFBLK:
		return b.insert(origin, dest, func() error {
			return b.tree.InsertNode(dest, vfs.KindBlockDevice,
				unix.Major(uint64(stat.Rdev)),
				unix.Minor(uint64(stat.Rdev)), mode)
		})
	default:
		// Sockets and FIFOs have no representation in the archive.
		slog.Debug("Skipping special file", "path", source)
		return nil
	}
}

// nodeMode is the default mode for configured device nodes.
const nodeMode = 0o600

func (b *builder) addNodes(items []config.NodeItem) error {
	for _, item := range items {
		kind := vfs.KindCharDevice
		if item.Kind == "block" {
			kind = vfs.KindBlockDevice
		}

		err := b.insert("node "+item.Path, item.Path, func() error {
			return b.tree.InsertNode(item.Path, kind, item.Major,
				item.Minor, nodeMode)
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (b *builder) addSymlinks(items []config.SymlinkItem) error {
	for _, item := range items {
		origin := "symlink " + item.Path + " -> " + item.Target

		err := b.insert(origin, item.Path, func() error {
			return b.tree.InsertSymlink(item.Path, item.Target)
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// initMode is the mode of the /init entry point.
const initMode = 0o755

// addInit places the init program at /init: either an inline script body
// or a host file copied in.
func (b *builder) addInit(cfg *config.Initramfs) error {
	if cfg.Init == "" {
		return nil
	}

	if cfg.IsScript() {
		return b.insert("init script", "/init", func() error {
			return b.tree.InsertData("/init", []byte(cfg.Init), initMode)
		})
	}

	var stat unix.Stat_t

	if err := unix.Stat(cfg.Init, &stat); err != nil {
		return &os.PathError{Op: "stat", Path: cfg.Init, Err: err}
	}

	if stat.Mode&unix.S_IFMT != unix.S_IFREG {
		return fmt.Errorf("%w: %s", ErrNotRegularFile, cfg.Init)
	}

	return b.insert("init "+cfg.Init, "/init", func() error {
		return b.tree.InsertFile("/init", cfg.Init, initMode,
			stat.Mtim.Sec)
	})
}
