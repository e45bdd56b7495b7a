// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package initramfs_test

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/cavaliergopher/cpio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aibor/mkinitramfs/internal/initramfs"
	"github.com/aibor/mkinitramfs/internal/vfs"
)

type archiveEntry struct {
	name string
	mode cpio.FileMode
	body string
	link string
}

func readArchive(t *testing.T, r io.Reader) []archiveEntry {
	t.Helper()

	reader := cpio.NewReader(r)

	var entries []archiveEntry

	for {
		hdr, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		require.NoError(t, err)

		body, err := io.ReadAll(reader)
		require.NoError(t, err)

		entries = append(entries, archiveEntry{
			name: hdr.Name,
			mode: hdr.Mode,
			body: string(body),
			link: hdr.Linkname,
		})
	}

	return entries
}

func TestWriteArchiveEmptyTree(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, initramfs.WriteArchive(&buf, vfs.New()))

	// A zero file tree encodes as the trailer alone.
	assert.Equal(t, 124, buf.Len())
	assert.Empty(t, readArchive(t, &buf))
}

func TestWriteArchiveRoundTrip(t *testing.T) {
	source := filepath.Join(t.TempDir(), "hosted")
	require.NoError(t, os.WriteFile(source, []byte("host bytes"), 0o644))

	tree := vfs.New()
	require.NoError(t, tree.InsertDir("/etc", 0o755))
	require.NoError(t, tree.InsertData("/etc/motd", []byte("hello"), 0o644))
	require.NoError(t, tree.InsertFile("/etc/hosted", source, 0o600, 7))
	require.NoError(t, tree.InsertSymlink("/lib", "usr/lib"))
	require.NoError(t,
		tree.InsertNode("/dev/console", vfs.KindCharDevice, 5, 1, 0o600))

	var buf bytes.Buffer

	require.NoError(t, initramfs.WriteArchive(&buf, tree))
	assert.Zero(t, buf.Len()%4, "length is a multiple of 4")

	expected := []archiveEntry{
		{"dev", cpio.TypeDir | 0o755, "", ""},
		{"dev/console", cpio.TypeChar | 0o600, "", ""},
		{"etc", cpio.TypeDir | 0o755, "", ""},
		{"etc/hosted", cpio.TypeReg | 0o600, "host bytes", ""},
		{"etc/motd", cpio.TypeReg | 0o644, "hello", ""},
		{"lib", cpio.TypeSymlink | 0o777, "", "usr/lib"},
	}
	assert.Equal(t, expected, readArchive(t, &buf))
}

func TestWriteArchiveDeterministic(t *testing.T) {
	makeTree := func(flip bool) *vfs.Tree {
		tree := vfs.New()

		entries := []string{"/b", "/a", "/c"}
		if flip {
			entries = []string{"/c", "/b", "/a"}
		}

		for _, path := range entries {
			require.NoError(t,
				tree.InsertData(path, []byte(path), 0o644))
		}

		return tree
	}

	var first, second bytes.Buffer

	require.NoError(t, initramfs.WriteArchive(&first, makeTree(false)))
	require.NoError(t, initramfs.WriteArchive(&second, makeTree(true)))

	// The encoding is a pure function of the tree content, not of the
	// insertion order.
	assert.Equal(t, first.Bytes(), second.Bytes())
}

func TestWriteArchiveHardlink(t *testing.T) {
	tree := vfs.New()
	require.NoError(t, tree.InsertData("/bin/gzip", []byte("elf"), 0o755))
	// The link name must sort after its target, since the stream assigns
	// inodes in emission order.
	require.NoError(t, tree.InsertHardlink("/bin/zcat", "/bin/gzip"))

	var buf bytes.Buffer

	require.NoError(t, initramfs.WriteArchive(&buf, tree))

	reader := cpio.NewReader(bytes.NewReader(buf.Bytes()))

	inodes := make(map[string]int64)

	for {
		hdr, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		require.NoError(t, err)
		inodes[hdr.Name] = hdr.Inode
	}

	require.Contains(t, inodes, "bin/gzip")
	require.Contains(t, inodes, "bin/zcat")
	assert.Equal(t, inodes["bin/gzip"], inodes["bin/zcat"],
		"hard links share the inode")
	assert.NotEqual(t, inodes["bin"], inodes["bin/gzip"])
}

func TestWriteArchiveMissingSource(t *testing.T) {
	tree := vfs.New()
	require.NoError(t, tree.InsertFile("/gone",
		filepath.Join(t.TempDir(), "gone"), 0o644, 0))

	err := initramfs.WriteArchive(io.Discard, tree)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
