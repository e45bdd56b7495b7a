// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package vfs provides the in-memory staging tree an archive is assembled
// in before it is encoded.
//
// The tree maps absolute paths to entries. Paths are compared byte-wise.
// Parent directories are created implicitly on insert. Inserting the same
// path twice succeeds only if both entries are byte-identical; anything
// else is a conflict. Entries are never mutated once inserted.
//
// For memory efficiency regular files copied from the host are not read
// into the tree. Instead, their source path is recorded and the content is
// streamed when the tree is encoded.
package vfs
