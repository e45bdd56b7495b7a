// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package initramfs assembles initramfs archives and early microcode
// bundles from a configuration.
//
// The assembler interprets the configuration categories in a fixed order,
// drives the shared object and kernel module resolvers and populates a
// staging tree, which is then encoded as a newc stream through an
// optionally compressing sink.
package initramfs
