// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package newc

import "errors"

var (
	// ErrPayloadTooLarge is returned if a payload exceeds the 32 bit
	// file size field of the format.
	ErrPayloadTooLarge = errors.New("payload exceeds format limit")

	// ErrNameTooLong is returned if a name including the trailing NUL
	// exceeds the name size limit.
	ErrNameTooLong = errors.New("name exceeds format limit")

	// ErrWriterClosed is returned on writes after [Writer.Close].
	ErrWriterClosed = errors.New("writer is closed")

	// ErrLinkTargetNotWritten is returned if a hard link references a
	// name that has not been written as a regular file before.
	ErrLinkTargetNotWritten = errors.New("hard link target not written")
)
