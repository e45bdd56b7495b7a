// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package kmod resolves kernel modules from the metadata files depmod
// writes into a modules directory (modules.dep, modules.alias,
// modules.builtin, modules.softdep).
//
// Requested names or aliases expand into the transitive closure of module
// files in load order, dependencies first. Modules built into the kernel
// are satisfied without producing a file.
package kmod
