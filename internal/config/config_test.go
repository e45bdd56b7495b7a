// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aibor/mkinitramfs/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
initramfs:
  init: /sbin/init
  bin:
    - /bin/busybox
    - path: /usr/bin/fsck.ext4
      dest: /bin/fsck
  lib:
    - /lib64/ld-linux-x86-64.so.2
  module:
    - btrfs
  tree:
    - path: /etc
      copy:
        - /etc/localtime
  node:
    - path: /dev/console
      kind: char
      major: 5
      minor: 1
  symlink:
    - path: /bin/sh
      target: busybox
microcode:
  amd: /lib/firmware/amd-ucode
  intel: /lib/firmware/intel-ucode
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Initramfs)
	require.NotNil(t, cfg.Microcode)

	assert.Equal(t, "/sbin/init", cfg.Initramfs.Init)
	assert.False(t, cfg.Initramfs.IsScript())

	require.Len(t, cfg.Initramfs.Bin, 2)
	assert.Equal(t, "/bin/busybox", cfg.Initramfs.Bin[0].Path)
	assert.Equal(t, "/bin/busybox", cfg.Initramfs.Bin[0].Destination())
	assert.Equal(t, "/usr/bin/fsck.ext4", cfg.Initramfs.Bin[1].Path)
	assert.Equal(t, "/bin/fsck", cfg.Initramfs.Bin[1].Destination())

	assert.Equal(t, []string{"btrfs"}, cfg.Initramfs.Module)

	require.Len(t, cfg.Initramfs.Tree, 1)
	assert.Equal(t, "/etc", cfg.Initramfs.Tree[0].Path)
	assert.Equal(t, []string{"/etc/localtime"}, cfg.Initramfs.Tree[0].Copy)

	require.Len(t, cfg.Initramfs.Node, 1)
	assert.Equal(t, "char", cfg.Initramfs.Node[0].Kind)
	assert.EqualValues(t, 5, cfg.Initramfs.Node[0].Major)

	assert.Equal(t, "/lib/firmware/amd-ucode", cfg.Microcode.AMD)
}

func TestLoadInitScript(t *testing.T) {
	path := writeConfig(t, `
initramfs:
  init: |
    #!/bin/sh
    exec /bin/busybox init
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Initramfs)
	assert.True(t, cfg.Initramfs.IsScript())
}

func TestLoadEmpty(t *testing.T) {
	path := writeConfig(t, `{}`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Nil(t, cfg.Initramfs)
	assert.Nil(t, cfg.Microcode)
}

func TestLoadUnknownKey(t *testing.T) {
	path := writeConfig(t, `
initramfs:
  binaries:
    - /bin/busybox
`)

	_, err := config.Load(path)
	require.Error(t, err)

	var fileErr *config.FileError
	assert.ErrorAs(t, err, &fileErr)
}

func TestLoadInvalidNodeKind(t *testing.T) {
	path := writeConfig(t, `
initramfs:
  node:
    - path: /dev/weird
      kind: fifo
      major: 1
      minor: 2
`)

	_, err := config.Load(path)
	assert.ErrorIs(t, err, config.ErrInvalidValue)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()

	fragments := map[string]string{
		"10-base.yaml": `
initramfs:
  init: /sbin/init
  bin:
    - /bin/busybox
`,
		"20-storage.yml": `
initramfs:
  bin:
    - /usr/bin/fsck.ext4
  module:
    - ext4
`,
		"ignored.conf": `not yaml`,
	}

	for name, content := range fragments {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	cfg := &config.Config{}
	require.NoError(t, config.LoadDir(cfg, dir))
	require.NotNil(t, cfg.Initramfs)

	assert.Equal(t, "/sbin/init", cfg.Initramfs.Init)

	// Fragments merge in file name order.
	require.Len(t, cfg.Initramfs.Bin, 2)
	assert.Equal(t, "/bin/busybox", cfg.Initramfs.Bin[0].Path)
	assert.Equal(t, "/usr/bin/fsck.ext4", cfg.Initramfs.Bin[1].Path)
	assert.Equal(t, []string{"ext4"}, cfg.Initramfs.Module)
}

func TestLoadDirDuplicateScalar(t *testing.T) {
	dir := t.TempDir()

	fragments := map[string]string{
		"10-a.yaml": "initramfs:\n  init: /sbin/init\n",
		"20-b.yaml": "initramfs:\n  init: /bin/init\n",
	}

	for name, content := range fragments {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	cfg := &config.Config{}
	err := config.LoadDir(cfg, dir)
	assert.ErrorIs(t, err, config.ErrDuplicateValue)
}
