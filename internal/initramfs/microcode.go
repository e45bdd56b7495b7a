// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package initramfs

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/aibor/mkinitramfs/internal/config"
	"github.com/aibor/mkinitramfs/internal/vfs"
)

// The fixed location the kernel scans for early microcode updates. The
// per-vendor blob names are dictated by the CPU vendor string.
const (
	ucodeDir       = "/kernel/x86/microcode"
	amdUCodeName   = "AuthenticAMD.bin"
	intelUCodeName = "GenuineIntel.bin"

	ucodeFileMode = 0o644
)

// BuildMicrocode assembles the staging tree of a microcode bundle.
//
// Every regular file of a configured vendor directory is concatenated in
// lexicographic order into the vendor's blob. The resulting archive must
// be left uncompressed to be usable for early loading.
func BuildMicrocode(cfg *config.Microcode) (*vfs.Tree, error) {
	tree := vfs.New()

	if err := tree.InsertDir(ucodeDir, vfs.DirMode); err != nil {
		return nil, err
	}

	var amdBlob, intelBlob []byte

	// The vendor directories are independent, so read them concurrently.
	var group errgroup.Group

	if cfg.AMD != "" {
		group.Go(func() error {
			var err error
			amdBlob, err = bundleFirmware(cfg.AMD)

			return err
		})
	}

	if cfg.Intel != "" {
		group.Go(func() error {
			var err error
			intelBlob, err = bundleFirmware(cfg.Intel)

			return err
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	if amdBlob != nil {
		path := ucodeDir + "/" + amdUCodeName
		if err := tree.InsertData(path, amdBlob, ucodeFileMode); err != nil {
			return nil, err
		}
	}

	if intelBlob != nil {
		path := ucodeDir + "/" + intelUCodeName
		if err := tree.InsertData(path, intelBlob, ucodeFileMode); err != nil {
			return nil, err
		}
	}

	return tree, nil
}

// bundleFirmware concatenates all regular files of the directory in
// lexicographic order.
func bundleFirmware(dir string) ([]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read firmware dir: %w", err)
	}

	blob := []byte{}

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read firmware blob: %w", err)
		}

		blob = append(blob, data...)
	}

	return blob, nil
}
