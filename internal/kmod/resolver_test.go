// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package kmod_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aibor/mkinitramfs/internal/kmod"
)

// writeModulesDir creates a fake modules directory for the release
// "6.6.0-test" with a small dependency graph:
//
//	btrfs needs raid6_pq and xor, raid6_pq needs nothing, xor needs
//	nothing. ext4 is compressed. loop has no dependencies. efivarfs is
//	builtin.
func writeModulesDir(t *testing.T) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "6.6.0-test")

	files := map[string]string{
		"modules.dep": `kernel/fs/btrfs/btrfs.ko: kernel/lib/raid6/raid6_pq.ko kernel/crypto/xor.ko
kernel/lib/raid6/raid6_pq.ko:
kernel/crypto/xor.ko:
kernel/fs/ext4/ext4.ko.zst:
kernel/drivers/block/loop.ko:
kernel/drivers/net/dummy-net.ko:
`,
		"modules.alias": `# aliases extracted from modules
alias fs-btrfs btrfs
alias pci:v000080EEd*sv*sd*bc*sc*i* loop
`,
		"modules.builtin": `kernel/fs/efivarfs/efivarfs.ko
`,
		"modules.softdep": `softdep ext4 pre: loop
`,
		"modules.order": `kernel/fs/btrfs/btrfs.ko
`,
	}

	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	return dir
}

func archivePaths(modules []kmod.Module) []string {
	paths := make([]string, 0, len(modules))
	for _, module := range modules {
		paths = append(paths, module.ArchivePath)
	}

	return paths
}

func TestResolverClosureOrder(t *testing.T) {
	resolver, err := kmod.NewResolver(writeModulesDir(t))
	require.NoError(t, err)

	modules, err := resolver.Resolve("btrfs")
	require.NoError(t, err)

	expected := []string{
		"/lib/modules/6.6.0-test/kernel/lib/raid6/raid6_pq.ko",
		"/lib/modules/6.6.0-test/kernel/crypto/xor.ko",
		"/lib/modules/6.6.0-test/kernel/fs/btrfs/btrfs.ko",
	}
	assert.Equal(t, expected, archivePaths(modules))
}

func TestResolverDeduplicates(t *testing.T) {
	resolver, err := kmod.NewResolver(writeModulesDir(t))
	require.NoError(t, err)

	modules, err := resolver.Resolve("xor", "btrfs", "btrfs")
	require.NoError(t, err)

	expected := []string{
		"/lib/modules/6.6.0-test/kernel/crypto/xor.ko",
		"/lib/modules/6.6.0-test/kernel/lib/raid6/raid6_pq.ko",
		"/lib/modules/6.6.0-test/kernel/fs/btrfs/btrfs.ko",
	}
	assert.Equal(t, expected, archivePaths(modules))
}

func TestResolverAlias(t *testing.T) {
	resolver, err := kmod.NewResolver(writeModulesDir(t))
	require.NoError(t, err)

	tests := []struct {
		name     string
		request  string
		expected string
	}{
		{
			name:     "literal alias",
			request:  "fs-btrfs",
			expected: "kernel/fs/btrfs/btrfs.ko",
		},
		{
			name:     "glob alias",
			request:  "pci:v000080EEd0000CAFEsv00sd00bc01sc02i00",
			expected: "kernel/drivers/block/loop.ko",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			modules, err := resolver.Resolve(tt.request)
			require.NoError(t, err)
			require.NotEmpty(t, modules)

			last := modules[len(modules)-1]
			assert.Equal(t,
				"/lib/modules/6.6.0-test/"+tt.expected,
				last.ArchivePath)
		})
	}
}

func TestResolverBuiltinSkipped(t *testing.T) {
	resolver, err := kmod.NewResolver(writeModulesDir(t))
	require.NoError(t, err)

	modules, err := resolver.Resolve("efivarfs")
	require.NoError(t, err)
	assert.Empty(t, modules)
}

func TestResolverUnknown(t *testing.T) {
	resolver, err := kmod.NewResolver(writeModulesDir(t))
	require.NoError(t, err)

	_, err = resolver.Resolve("nosuchmodule")
	assert.ErrorIs(t, err, kmod.ErrUnknownModule)
}

func TestResolverCompressedModule(t *testing.T) {
	dir := writeModulesDir(t)

	resolver, err := kmod.NewResolver(dir)
	require.NoError(t, err)

	// The compressed file name is kept, so modprobe finds what
	// modules.dep names.
	modules, err := resolver.Resolve("ext4")
	require.NoError(t, err)

	expected := []string{
		"/lib/modules/6.6.0-test/kernel/drivers/block/loop.ko",
		"/lib/modules/6.6.0-test/kernel/fs/ext4/ext4.ko.zst",
	}
	assert.Equal(t, expected, archivePaths(modules))

	assert.Equal(t, filepath.Join(dir, "kernel/fs/ext4/ext4.ko.zst"),
		modules[1].Path)
}

func TestResolverNameNormalization(t *testing.T) {
	resolver, err := kmod.NewResolver(writeModulesDir(t))
	require.NoError(t, err)

	// Dashes and underscores are interchangeable.
	modules, err := resolver.Resolve("dummy_net")
	require.NoError(t, err)
	require.Len(t, modules, 1)
	assert.Equal(t,
		"/lib/modules/6.6.0-test/kernel/drivers/net/dummy-net.ko",
		modules[0].ArchivePath)
}

func TestResolverMetadataFiles(t *testing.T) {
	resolver, err := kmod.NewResolver(writeModulesDir(t))
	require.NoError(t, err)

	expected := []string{
		"/lib/modules/6.6.0-test/modules.dep",
		"/lib/modules/6.6.0-test/modules.alias",
		"/lib/modules/6.6.0-test/modules.builtin",
		"/lib/modules/6.6.0-test/modules.order",
		"/lib/modules/6.6.0-test/modules.softdep",
	}
	assert.Equal(t, expected, archivePaths(resolver.MetadataFiles()))
}

func TestResolverMissingModulesDep(t *testing.T) {
	_, err := kmod.NewResolver(t.TempDir())
	assert.Error(t, err)
}
