// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package vfs

import "errors"

var (
	// ErrConflict is returned if two different entries claim the same
	// path.
	ErrConflict = errors.New("conflicting entries")

	// ErrInvalidPath is returned for paths that are not absolute or
	// contain empty, "." or ".." components.
	ErrInvalidPath = errors.New("invalid path")
)

// ConflictError wraps [ErrConflict] with the contested path.
type ConflictError struct {
	Path string
}

func (e *ConflictError) Error() string {
	return ErrConflict.Error() + " for " + e.Path
}

func (e *ConflictError) Is(other error) bool {
	return other == ErrConflict
}

// InvalidPathError wraps [ErrInvalidPath] with the rejected path.
type InvalidPathError struct {
	Path string
}

func (e *InvalidPathError) Error() string {
	return ErrInvalidPath.Error() + ": " + e.Path
}

func (e *InvalidPathError) Is(other error) bool {
	return other == ErrInvalidPath
}
