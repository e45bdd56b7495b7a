// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package kmod

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// metadataFiles are the depmod outputs copied alongside the modules so
// modprobe works inside the unpacked archive. Only files present in the
// modules directory are copied.
var metadataFiles = []string{
	"modules.dep",
	"modules.alias",
	"modules.builtin",
	"modules.order",
	"modules.softdep",
}

// compressSuffixes are the compression suffixes module files may carry.
// Compressed modules are passed through unchanged, since the kernel
// decompresses them at load time.
var compressSuffixes = []string{".gz", ".xz", ".zst"}

// Module is a resolved kernel module file.
type Module struct {
	// Path is the absolute path of the file in the modules directory.
	Path string
	// ArchivePath is the absolute destination path, mirroring
	// /lib/modules/<release>.
	ArchivePath string
}

// Resolver resolves module names and aliases against a modules directory
// like /lib/modules/6.6.0.
//
// Create a new instance with [NewResolver], which reads all metadata
// files once.
type Resolver struct {
	dir     string
	release string

	deps     map[string][]string
	byName   map[string]string
	aliases  []alias
	builtin  map[string]bool
	softdeps map[string]softdep
}

type alias struct {
	pattern string
	module  string
}

type softdep struct {
	pre  []string
	post []string
}

// NewResolver creates a [Resolver] for the given modules directory.
func NewResolver(dir string) (*Resolver, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}

	resolver := &Resolver{
		dir:      absDir,
		release:  filepath.Base(absDir),
		deps:     make(map[string][]string),
		byName:   make(map[string]string),
		builtin:  make(map[string]bool),
		softdeps: make(map[string]softdep),
	}

	err = resolver.readDep()
	if err != nil {
		return nil, err
	}

	err = resolver.readAliases()
	if err != nil {
		return nil, err
	}

	err = resolver.readBuiltin()
	if err != nil {
		return nil, err
	}

	err = resolver.readSoftdep()
	if err != nil {
		return nil, err
	}

	return resolver, nil
}

// Dir returns the modules directory the resolver reads from.
func (r *Resolver) Dir() string {
	return r.dir
}

// Release returns the kernel release the modules directory is for.
func (r *Resolver) Release() string {
	return r.release
}

// Resolve expands the requested names or aliases into the transitive
// closure of module files in load order, dependencies first. Requests
// satisfied by builtin modules produce no file. Requests matching nothing
// return an [UnknownModuleError].
func (r *Resolver) Resolve(names ...string) ([]Module, error) {
	state := &resolution{
		resolver: r,
		seen:     make(map[string]bool),
	}

	for _, name := range names {
		if err := state.request(name); err != nil {
			return nil, err
		}
	}

	return state.modules, nil
}

// MetadataFiles returns the metadata files present in the modules
// directory, with their archive destinations.
func (r *Resolver) MetadataFiles() []Module {
	var modules []Module

	for _, name := range metadataFiles {
		hostPath := filepath.Join(r.dir, name)

		if _, err := os.Stat(hostPath); err != nil {
			continue
		}

		modules = append(modules, Module{
			Path:        hostPath,
			ArchivePath: r.archivePath(name),
		})
	}

	return modules
}

func (r *Resolver) archivePath(relPath string) string {
	return path.Join("/lib/modules", r.release, relPath)
}

type resolution struct {
	resolver *Resolver
	seen     map[string]bool
	modules  []Module
}

// request satisfies one requested name: alias expansion first, then the
// module name index, then the builtin list.
func (s *resolution) request(requested string) error {
	matched := false

	for _, alias := range s.resolver.aliases {
		ok, err := path.Match(alias.pattern, requested)
		if err != nil || !ok {
			continue
		}

		matched = true

		if err := s.addName(alias.module); err != nil {
			return err
		}
	}

	if matched {
		return nil
	}

	name := normalizeName(requested)

	if _, exists := s.resolver.byName[name]; exists {
		return s.addName(name)
	}

	if s.resolver.builtin[name] {
		return nil
	}

	return &UnknownModuleError{Name: requested}
}

func (s *resolution) addName(name string) error {
	name = normalizeName(name)

	relPath, exists := s.resolver.byName[name]
	if !exists {
		if s.resolver.builtin[name] {
			return nil
		}

		return &UnknownModuleError{Name: name}
	}

	return s.add(relPath)
}

// add emits the module at relPath after its dependencies.
func (s *resolution) add(relPath string) error {
	if s.seen[relPath] {
		return nil
	}

	s.seen[relPath] = true

	name := moduleName(relPath)

	for _, pre := range s.resolver.softdeps[name].pre {
		if err := s.addName(pre); err != nil {
			return err
		}
	}

	for _, dep := range s.resolver.deps[relPath] {
		if err := s.add(dep); err != nil {
			return err
		}
	}

	s.modules = append(s.modules, Module{
		Path:        filepath.Join(s.resolver.dir, relPath),
		ArchivePath: s.resolver.archivePath(relPath),
	})

	for _, post := range s.resolver.softdeps[name].post {
		if err := s.addName(post); err != nil {
			return err
		}
	}

	return nil
}

func (r *Resolver) readDep() error {
	err := readLines(filepath.Join(r.dir, "modules.dep"), func(line string) {
		relPath, depList, found := strings.Cut(line, ":")
		if !found {
			return
		}

		relPath = strings.TrimSpace(relPath)

		var deps []string
		for _, dep := range strings.Fields(depList) {
			deps = append(deps, dep)
		}

		r.deps[relPath] = deps
		r.byName[moduleName(relPath)] = relPath
	})
	if err != nil {
		return fmt.Errorf("read modules.dep: %w", err)
	}

	return nil
}

func (r *Resolver) readAliases() error {
	err := readLines(filepath.Join(r.dir, "modules.alias"), func(line string) {
		fields := strings.Fields(line)
		if len(fields) != 3 || fields[0] != "alias" {
			return
		}

		r.aliases = append(r.aliases, alias{
			pattern: fields[1],
			module:  fields[2],
		})
	})
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read modules.alias: %w", err)
	}

	return nil
}

func (r *Resolver) readBuiltin() error {
	err := readLines(filepath.Join(r.dir, "modules.builtin"), func(line string) {
		r.builtin[moduleName(strings.TrimSpace(line))] = true
	})
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read modules.builtin: %w", err)
	}

	return nil
}

func (r *Resolver) readSoftdep() error {
	err := readLines(filepath.Join(r.dir, "modules.softdep"), func(line string) {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != "softdep" {
			return
		}

		name := normalizeName(fields[1])
		dep := r.softdeps[name]

		var section *[]string

		for _, field := range fields[2:] {
			switch field {
			case "pre:":
				section = &dep.pre
			case "post:":
				section = &dep.post
			default:
				if section != nil {
					*section = append(*section, field)
				}
			}
		}

		r.softdeps[name] = dep
	})
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read modules.softdep: %w", err)
	}

	return nil
}

func readLines(path string, fn func(line string)) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fn(line)
	}

	return scanner.Err()
}

// moduleName derives the module name from a file path: the base name
// without compression suffix and .ko extension, with dashes normalized.
func moduleName(relPath string) string {
	name := path.Base(relPath)

	for _, suffix := range compressSuffixes {
		name = strings.TrimSuffix(name, suffix)
	}

	name = strings.TrimSuffix(name, ".ko")

	return normalizeName(name)
}

// normalizeName makes dashes and underscores interchangeable, like
// modprobe does.
func normalizeName(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}
