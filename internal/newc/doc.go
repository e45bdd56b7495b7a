// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package newc encodes the SVR4 "newc" CPIO format (magic 070701), the
// only archive format the Linux kernel's initramfs unpacker accepts.
//
// Each entry is a 110 byte ASCII header, the NUL terminated name padded
// to a multiple of four bytes, and the payload padded the same way. The
// writer allocates inode numbers monotonically in emission order and
// terminates the stream with the TRAILER!!! entry on [Writer.Close].
package newc
