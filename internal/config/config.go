// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package config loads the declarative YAML configuration describing an
// initramfs archive or a microcode bundle. A configuration may be split
// into fragments in a directory; sequence categories of all fragments are
// appended in file name order, scalar values may be set only once.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Initramfs *Initramfs `yaml:"initramfs"`
	Microcode *Microcode `yaml:"microcode"`
}

// Initramfs describes the content of an initramfs archive.
type Initramfs struct {
	// Init is either an absolute path copied in as /init, or an inline
	// script body (leading "#!") written as /init.
	Init string `yaml:"init"`

	Bin     []FileItem    `yaml:"bin"`
	Lib     []FileItem    `yaml:"lib"`
	Tree    []TreeItem    `yaml:"tree"`
	Module  []string      `yaml:"module"`
	Node    []NodeItem    `yaml:"node"`
	Symlink []SymlinkItem `yaml:"symlink"`
}

// Microcode names the per-vendor firmware directories microcode blobs
// are collected from.
type Microcode struct {
	AMD   string `yaml:"amd"`
	Intel string `yaml:"intel"`
}

// FileItem is a binary or library to add. In YAML it is either a plain
// string path or a mapping with path and an optional destination.
type FileItem struct {
	Path string `yaml:"path"`
	// Dest is the destination path in the archive. Defaults to Path.
	Dest string `yaml:"dest"`
}

// UnmarshalYAML accepts both the scalar and the mapping form.
func (f *FileItem) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&f.Path)
	}

	type plain FileItem

	return node.Decode((*plain)(f))
}

// Destination returns the archive path of the item.
func (f *FileItem) Destination() string {
	if f.Dest != "" {
		return f.Dest
	}

	return f.Path
}

// TreeItem copies the given sources into the destination directory.
type TreeItem struct {
	Path string   `yaml:"path"`
	Copy []string `yaml:"copy"`
}

// NodeItem is a device node. Kind is "char" or "block".
type NodeItem struct {
	Path  string `yaml:"path"`
	Kind  string `yaml:"kind"`
	Major uint32 `yaml:"major"`
	Minor uint32 `yaml:"minor"`
}

// SymlinkItem creates a symbolic link at Path pointing to Target.
type SymlinkItem struct {
	Path   string `yaml:"path"`
	Target string `yaml:"target"`
}

// Load reads the configuration file with the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := parse(data)
	if err != nil {
		return nil, &FileError{File: path, err: err}
	}

	return cfg, nil
}

// LoadDir reads all .yaml and .yml fragments in the given directory in
// lexicographic order and merges them into cfg.
func LoadDir(cfg *Config, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read config dir: %w", err)
	}

	var names []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		switch filepath.Ext(entry.Name()) {
		case ".yaml", ".yml":
			names = append(names, entry.Name())
		}
	}

	slices.Sort(names)

	for _, name := range names {
		path := filepath.Join(dir, name)

		fragment, err := Load(path)
		if err != nil {
			return err
		}

		if err := cfg.merge(fragment); err != nil {
			return &FileError{File: path, err: err}
		}
	}

	return nil
}

func parse(data []byte) (*Config, error) {
	var cfg Config

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Initramfs == nil {
		return nil
	}

	for _, node := range c.Initramfs.Node {
		switch node.Kind {
		case "char", "block":
		default:
			return fmt.Errorf("%w: node %s: kind %q",
				ErrInvalidValue, node.Path, node.Kind)
		}
	}

	return nil
}

// merge appends the other configuration's sequences and adopts its
// scalar values. A scalar set in both configurations is an error.
func (c *Config) merge(other *Config) error {
	if other.Initramfs != nil {
		if c.Initramfs == nil {
			c.Initramfs = &Initramfs{}
		}

		if err := c.Initramfs.merge(other.Initramfs); err != nil {
			return err
		}
	}

	if other.Microcode != nil {
		if c.Microcode == nil {
			c.Microcode = &Microcode{}
		}

		if err := c.Microcode.merge(other.Microcode); err != nil {
			return err
		}
	}

	return nil
}

func (i *Initramfs) merge(other *Initramfs) error {
	if other.Init != "" {
		if i.Init != "" {
			return fmt.Errorf("%w: init", ErrDuplicateValue)
		}

		i.Init = other.Init
	}

	i.Bin = append(i.Bin, other.Bin...)
	i.Lib = append(i.Lib, other.Lib...)
	i.Tree = append(i.Tree, other.Tree...)
	i.Module = append(i.Module, other.Module...)
	i.Node = append(i.Node, other.Node...)
	i.Symlink = append(i.Symlink, other.Symlink...)

	return nil
}

func (m *Microcode) merge(other *Microcode) error {
	if other.AMD != "" {
		if m.AMD != "" {
			return fmt.Errorf("%w: microcode amd", ErrDuplicateValue)
		}

		m.AMD = other.AMD
	}

	if other.Intel != "" {
		if m.Intel != "" {
			return fmt.Errorf("%w: microcode intel", ErrDuplicateValue)
		}

		m.Intel = other.Intel
	}

	return nil
}

// IsScript returns true if the init value is an inline script body
// instead of a path.
func (i *Initramfs) IsScript() bool {
	return strings.HasPrefix(i.Init, "#!")
}
