// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"os"

	"github.com/aibor/mkinitramfs/internal/cmd"
)

func main() {
	os.Exit(cmd.Run(os.Args, os.Stdout, os.Stderr))
}
