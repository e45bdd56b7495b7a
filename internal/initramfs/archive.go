// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package initramfs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aibor/mkinitramfs/internal/newc"
	"github.com/aibor/mkinitramfs/internal/vfs"
)

// WriteArchive encodes the staging tree as newc stream into w.
//
// Entries are emitted in the tree's deterministic walk order. Host backed
// file content is opened lazily per entry and streamed, so large binaries
// are never held in memory.
func WriteArchive(w io.Writer, tree *vfs.Tree) error {
	writer := newc.NewWriter(w)

	links := linkCounts(tree)

	err := tree.Walk(func(path string, entry *vfs.Entry) error {
		name := strings.TrimPrefix(path, "/")

		hdr := newc.Header{
			Mode:  entry.Mode,
			UID:   entry.UID,
			GID:   entry.GID,
			MTime: entry.MTime,
		}

		switch entry.Kind {
		case vfs.KindDirectory:
			return writer.WriteDirectory(name, hdr)
		case vfs.KindRegular:
			if count := links[path]; count > 0 {
				hdr.Links = count + 1
			}

			return writeRegular(writer, name, entry, hdr)
		case vfs.KindSymlink:
			return writer.WriteSymlink(name, entry.Target, hdr)
		case vfs.KindCharDevice, vfs.KindBlockDevice:
			hdr.RDevMajor = entry.Major
			hdr.RDevMinor = entry.Minor

			block := entry.Kind == vfs.KindBlockDevice

			return writer.WriteNode(name, block, hdr)
		case vfs.KindHardlink:
			hdr.Links = links[entry.Target] + 1
			target := strings.TrimPrefix(entry.Target, "/")

			return writer.WriteHardlink(name, target, hdr)
		default:
			return fmt.Errorf("unknown entry kind %d", entry.Kind)
		}
	})
	if err != nil {
		return err
	}

	return writer.Close()
}

func writeRegular(
	writer *newc.Writer,
	name string,
	entry *vfs.Entry,
	hdr newc.Header,
) error {
	if entry.Source == "" {
		return writer.WriteRegular(name, bytes.NewReader(entry.Body),
			int64(len(entry.Body)), hdr)
	}

	file, err := os.Open(entry.Source)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("stat source: %w", err)
	}

	err = writer.WriteRegular(name, file, info.Size(), hdr)

	return errors.Join(err, file.Close())
}

// linkCounts returns the number of hard links per target path.
func linkCounts(tree *vfs.Tree) map[string]uint32 {
	links := make(map[string]uint32)

	_ = tree.Walk(func(_ string, entry *vfs.Entry) error {
		if entry.Kind == vfs.KindHardlink {
			links[entry.Target]++
		}

		return nil
	})

	return links
}
