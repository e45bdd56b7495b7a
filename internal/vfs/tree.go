// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package vfs

import (
	"slices"
	"strings"
)

// DirMode is the mode implicitly created parent directories get.
const DirMode = 0o755

// Tree is a staging tree keyed by absolute path.
//
// Create a new instance with [New]. Populate it with the Insert methods
// and consume it with [Tree.Walk].
type Tree struct {
	entries map[string]*Entry
}

// New creates a new [Tree] containing only the root directory.
func New() *Tree {
	return &Tree{
		entries: map[string]*Entry{
			"/": {Kind: KindDirectory, Mode: DirMode},
		},
	}
}

// splitPath validates the given path and returns its components. The root
// path returns nil components and no error.
func splitPath(path string) ([]string, error) {
	if path == "" || path[0] != '/' {
		return nil, &InvalidPathError{Path: path}
	}

	if path == "/" {
		return nil, nil
	}

	components := strings.Split(path[1:], "/")
	for _, component := range components {
		switch component {
		case "", ".", "..":
			return nil, &InvalidPathError{Path: path}
		}
	}

	return components, nil
}

// insert adds the entry at the given path. Missing parent directories are
// created with [DirMode]. Inserting an entry that is byte-identical to the
// present one is a no-op. Any other collision returns a [ConflictError].
func (t *Tree) insert(path string, entry *Entry) error {
	components, err := splitPath(path)
	if err != nil {
		return err
	}

	if components == nil {
		// The root directory exists and cannot be replaced.
		return &InvalidPathError{Path: path}
	}

	for idx := 1; idx < len(components); idx++ {
		dir := "/" + strings.Join(components[:idx], "/")

		existing, exists := t.entries[dir]
		if !exists {
			t.entries[dir] = &Entry{Kind: KindDirectory, Mode: DirMode}
			continue
		}

		if !existing.IsDir() {
			return &ConflictError{Path: dir}
		}
	}

	if existing, exists := t.entries[path]; exists {
		if existing.equal(entry) {
			return nil
		}

		return &ConflictError{Path: path}
	}

	t.entries[path] = entry

	return nil
}

// InsertDir adds a directory entry.
func (t *Tree) InsertDir(path string, mode uint32) error {
	return t.insert(path, &Entry{
		Kind: KindDirectory,
		Mode: mode,
	})
}

// InsertFile adds a regular file backed by the host file source. The
// content is not read until the tree is encoded.
func (t *Tree) InsertFile(path, source string, mode uint32, mtime int64) error {
	return t.insert(path, &Entry{
		Kind:   KindRegular,
		Mode:   mode,
		MTime:  mtime,
		Source: source,
	})
}

// InsertData adds a regular file owning the given content.
func (t *Tree) InsertData(path string, data []byte, mode uint32) error {
	return t.insert(path, &Entry{
		Kind: KindRegular,
		Mode: mode,
		Body: data,
	})
}

// InsertSymlink adds a symbolic link. The target is stored verbatim and
// not resolved.
func (t *Tree) InsertSymlink(path, target string) error {
	return t.insert(path, &Entry{
		Kind:   KindSymlink,
		Mode:   0o777,
		Target: target,
	})
}

// InsertNode adds a device node. Kind must be [KindCharDevice] or
// [KindBlockDevice].
func (t *Tree) InsertNode(path string, kind Kind, major, minor, mode uint32) error {
	if kind != KindCharDevice && kind != KindBlockDevice {
		return &InvalidPathError{Path: path}
	}

	return t.insert(path, &Entry{
		Kind:  kind,
		Mode:  mode,
		Major: major,
		Minor: minor,
	})
}

// InsertHardlink adds a hard link to a regular file present in the tree.
func (t *Tree) InsertHardlink(path, target string) error {
	existing, exists := t.entries[target]
	if !exists || existing.Kind != KindRegular {
		return &InvalidPathError{Path: target}
	}

	return t.insert(path, &Entry{
		Kind:   KindHardlink,
		Mode:   existing.Mode,
		Target: target,
	})
}

// Contains returns true if an entry exists at the given path.
func (t *Tree) Contains(path string) bool {
	_, exists := t.entries[path]
	return exists
}

// Get returns the entry at the given path.
func (t *Tree) Get(path string) (*Entry, bool) {
	entry, exists := t.entries[path]
	return entry, exists
}

// Len returns the number of entries excluding the root directory.
func (t *Tree) Len() int {
	return len(t.entries) - 1
}

// WalkFunc is called with the absolute path and the entry for it.
type WalkFunc func(path string, entry *Entry) error

// Walk visits all entries except the root directory in depth-first order.
// Directories precede their children and siblings are visited sorted
// byte-wise by name. The order is part of the archive contract, so it must
// not change.
//
// If fn returns an error, the walk terminates immediately and returns it.
func (t *Tree) Walk(fn WalkFunc) error {
	children := make(map[string][]string, len(t.entries))

	for path := range t.entries {
		if path == "/" {
			continue
		}

		parent := path[:strings.LastIndexByte(path, '/')]
		if parent == "" {
			parent = "/"
		}

		children[parent] = append(children[parent], path)
	}

	for _, names := range children {
		slices.Sort(names)
	}

	return t.walk("/", children, fn)
}

func (t *Tree) walk(dir string, children map[string][]string, fn WalkFunc) error {
	for _, path := range children[dir] {
		entry := t.entries[path]

		if err := fn(path, entry); err != nil {
			return err
		}

		if entry.IsDir() {
			if err := t.walk(path, children, fn); err != nil {
				return err
			}
		}
	}

	return nil
}
