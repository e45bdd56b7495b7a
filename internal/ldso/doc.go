// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package ldso resolves the dynamically linked shared objects of ELF
// files by walking their DT_NEEDED tags across the usual search paths,
// the same way the dynamic linker would at load time.
//
// Sonames that cannot be found are collected instead of failing the
// resolution, since some of them (the program interpreter, for one) are
// commonly supplied by configuration.
package ldso
