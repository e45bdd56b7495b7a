// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import "errors"

var (
	// ErrInvalidValue is returned for well-formed YAML with values out
	// of range.
	ErrInvalidValue = errors.New("invalid configuration value")

	// ErrDuplicateValue is returned if fragments set the same scalar
	// value more than once.
	ErrDuplicateValue = errors.New("value set more than once")
)

// FileError carries the file a configuration error originates from. YAML
// parse errors already carry line context.
type FileError struct {
	File string
	err  error
}

func (e *FileError) Error() string {
	return e.File + ": " + e.err.Error()
}

func (e *FileError) Unwrap() error {
	return e.err
}
