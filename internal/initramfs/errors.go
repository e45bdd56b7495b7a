// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package initramfs

import (
	"errors"

	"github.com/aibor/mkinitramfs/internal/vfs"
)

var (
	// ErrNoModulesDir is returned if modules are configured but no
	// modules directory is given.
	ErrNoModulesDir = errors.New("no modules directory given")

	// ErrNotRegularFile is returned if a configured file is not a
	// regular file.
	ErrNotRegularFile = errors.New("not a regular file")

	// ErrUnknownEncoder is returned for unknown compression codec names.
	ErrUnknownEncoder = errors.New("unknown encoder")
)

// ConflictError describes two configuration entries claiming the same
// archive path with different content.
type ConflictError struct {
	Path   string
	First  string
	Second string
}

func (e *ConflictError) Error() string {
	first := e.First
	if first == "" {
		first = "existing entry"
	}

	return "conflicting entries for " + e.Path + ": " + first +
		", " + e.Second
}

func (e *ConflictError) Is(other error) bool {
	return other == vfs.ErrConflict
}
