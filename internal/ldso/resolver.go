// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package ldso

import (
	"debug/elf"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultSearchPaths are the standard directories the dynamic linker
// searches shared objects in.
var DefaultSearchPaths = []string{"/lib64", "/usr/lib64", "/lib", "/usr/lib"}

// Resolver resolves the transitive shared object dependencies of ELF
// files.
type Resolver struct {
	// SearchPaths are additional directories searched before the default
	// ones. Same semantics as LD_LIBRARY_PATH.
	SearchPaths []string
	// SkipDefaultPaths disables [DefaultSearchPaths], so only DT_RPATH,
	// DT_RUNPATH and SearchPaths apply.
	SkipDefaultPaths bool
}

// Result is the outcome of a resolution.
type Result struct {
	// Libs are the resolved shared objects as absolute paths in
	// insertion order.
	Libs []string
	// Unresolved are the sonames no candidate file was found for.
	Unresolved []string
}

// Resolve walks the DT_NEEDED tags of the ELF file with the given path
// recursively.
//
// For each soname the directories are searched in the order DT_RPATH
// (only if the requesting file has no DT_RUNPATH), [Resolver.SearchPaths],
// the default paths, DT_RUNPATH. The first candidate whose ELF class and
// machine match the given file is taken. Files without dynamic section
// resolve to an empty result.
//
// It returns a [NotELFError] if the file is not an ELF file.
func (r *Resolver) Resolve(path string) (*Result, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}

	file, err := openELF(absPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	walk := &walker{
		resolver:   r,
		class:      file.Class,
		machine:    file.Machine,
		visited:    make(map[string]bool),
		unresolved: make(map[string]bool),
		result:     &Result{},
	}

	if err := walk.walk(absPath, file); err != nil {
		return nil, err
	}

	return walk.result, nil
}

type walker struct {
	resolver   *Resolver
	class      elf.Class
	machine    elf.Machine
	visited    map[string]bool
	unresolved map[string]bool
	result     *Result
}

func (w *walker) walk(path string, file *elf.File) error {
	needed, err := file.ImportedLibraries()
	if err != nil {
		return fmt.Errorf("read DT_NEEDED of %s: %w", path, err)
	}

	origin := filepath.Dir(path)
	rpath := searchDirs(file, elf.DT_RPATH, origin)
	runpath := searchDirs(file, elf.DT_RUNPATH, origin)

	for _, soname := range needed {
		candidate := w.search(soname, rpath, runpath)
		if candidate == "" {
			if !w.unresolved[soname] {
				w.unresolved[soname] = true
				w.result.Unresolved = append(w.result.Unresolved, soname)
			}

			continue
		}

		// Shared object graphs can be cyclic, so track visited files by
		// their canonical path.
		canonical, err := filepath.EvalSymlinks(candidate)
		if err != nil {
			return fmt.Errorf("resolve symlinks: %w", err)
		}

		if w.visited[canonical] {
			continue
		}

		w.visited[canonical] = true
		w.result.Libs = append(w.result.Libs, candidate)

		next, err := openELF(candidate)
		if err != nil {
			return err
		}

		err = w.walk(candidate, next)
		_ = next.Close()

		if err != nil {
			return err
		}
	}

	return nil
}

// search returns the first matching candidate path for the soname, or
// empty string if none is found.
func (w *walker) search(soname string, rpath, runpath []string) string {
	var dirs []string

	// DT_RPATH is consulted only if the object has no DT_RUNPATH.
	if len(runpath) == 0 {
		dirs = append(dirs, rpath...)
	}

	dirs = append(dirs, w.resolver.SearchPaths...)

	if !w.resolver.SkipDefaultPaths {
		dirs = append(dirs, DefaultSearchPaths...)
	}

	dirs = append(dirs, runpath...)

	for _, dir := range dirs {
		candidate := filepath.Join(dir, soname)

		file, err := elf.Open(candidate)
		if err != nil {
			continue
		}

		matches := file.Class == w.class && file.Machine == w.machine
		_ = file.Close()

		if matches {
			return candidate
		}
	}

	return ""
}

// searchDirs reads the colon separated directory list for the given
// dynamic tag and substitutes $ORIGIN with the directory of the file.
func searchDirs(file *elf.File, tag elf.DynTag, origin string) []string {
	values, err := file.DynString(tag)
	if err != nil {
		return nil
	}

	var dirs []string

	for _, value := range values {
		for _, dir := range strings.Split(value, ":") {
			if dir == "" {
				continue
			}

			dirs = append(dirs, strings.ReplaceAll(dir, "$ORIGIN", origin))
		}
	}

	return dirs
}

func openELF(path string) (*elf.File, error) {
	file, err := elf.Open(path)
	if err != nil {
		// Files shorter than the ELF identifier fail before the magic
		// number is checked, but cannot be ELF files either.
		info, statErr := os.Stat(path)
		tooShort := statErr == nil && info.Mode().IsRegular() &&
			info.Size() < elf.EI_NIDENT

		if tooShort || strings.Contains(err.Error(), "bad magic number") {
			return nil, &NotELFError{Path: path}
		}

		return nil, fmt.Errorf("open ELF %s: %w", path, err)
	}

	return file, nil
}
