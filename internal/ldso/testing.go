// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package ldso

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
)

// TestELF describes a minimal ELF file for tests. It consists of just the
// sections the resolver reads: the dynamic section and its string table.
type TestELF struct {
	// Machine defaults to [elf.EM_X86_64].
	Machine elf.Machine
	// Static omits the dynamic section entirely.
	Static bool
	// Needed are the DT_NEEDED sonames.
	Needed []string
	// RPath and RunPath are written as colon separated DT_RPATH and
	// DT_RUNPATH values.
	RPath   string
	RunPath string
}

// WriteTestELF writes the described ELF file to the given path.
func WriteTestELF(path string, spec TestELF) error {
	machine := spec.Machine
	if machine == elf.EM_NONE {
		machine = elf.EM_X86_64
	}

	var body bytes.Buffer

	hdr := elf.Header64{
		Ident: [elf.EI_NIDENT]byte{
			0x7f, 'E', 'L', 'F',
			byte(elf.ELFCLASS64),
			byte(elf.ELFDATA2LSB),
			byte(elf.EV_CURRENT),
		},
		Type:      uint16(elf.ET_DYN),
		Machine:   uint16(machine),
		Version:   uint32(elf.EV_CURRENT),
		Ehsize:    64,
		Shentsize: 64,
	}

	if spec.Static {
		return writeStaticTestELF(path, hdr)
	}

	strtab := []byte{0}
	stringOffset := func(s string) uint64 {
		offset := uint64(len(strtab))
		strtab = append(strtab, s...)
		strtab = append(strtab, 0)

		return offset
	}

	var dyns []elf.Dyn64

	for _, soname := range spec.Needed {
		dyns = append(dyns, elf.Dyn64{
			Tag: int64(elf.DT_NEEDED),
			Val: stringOffset(soname),
		})
	}

	if spec.RPath != "" {
		dyns = append(dyns, elf.Dyn64{
			Tag: int64(elf.DT_RPATH),
			Val: stringOffset(spec.RPath),
		})
	}

	if spec.RunPath != "" {
		dyns = append(dyns, elf.Dyn64{
			Tag: int64(elf.DT_RUNPATH),
			Val: stringOffset(spec.RunPath),
		})
	}

	dyns = append(dyns, elf.Dyn64{}) // DT_NULL terminator.

	shstrtab := []byte("\x00.dynamic\x00.dynstr\x00.shstrtab\x00")

	dynOffset := uint64(64)
	dynSize := uint64(16 * len(dyns))
	strOffset := dynOffset + dynSize
	strSize := uint64(len(strtab))
	shstrOffset := strOffset + strSize
	shstrSize := uint64(len(shstrtab))

	shOffset := shstrOffset + shstrSize
	for shOffset%8 != 0 {
		shOffset++
	}

	hdr.Shoff = shOffset
	hdr.Shnum = 4
	hdr.Shstrndx = 3

	sections := []elf.Section64{
		{},
		{
			Name:      1, // .dynamic
			Type:      uint32(elf.SHT_DYNAMIC),
			Off:       dynOffset,
			Size:      dynSize,
			Link:      2,
			Addralign: 8,
			Entsize:   16,
		},
		{
			Name:      10, // .dynstr
			Type:      uint32(elf.SHT_STRTAB),
			Off:       strOffset,
			Size:      strSize,
			Addralign: 1,
		},
		{
			Name:      18, // .shstrtab
			Type:      uint32(elf.SHT_STRTAB),
			Off:       shstrOffset,
			Size:      shstrSize,
			Addralign: 1,
		},
	}

	if err := binary.Write(&body, binary.LittleEndian, hdr); err != nil {
		return err
	}

	if err := binary.Write(&body, binary.LittleEndian, dyns); err != nil {
		return err
	}

	body.Write(strtab)
	body.Write(shstrtab)

	for uint64(body.Len()) < shOffset {
		body.WriteByte(0)
	}

	if err := binary.Write(&body, binary.LittleEndian, sections); err != nil {
		return err
	}

	return os.WriteFile(path, body.Bytes(), 0o755)
}

func writeStaticTestELF(path string, hdr elf.Header64) error {
	var body bytes.Buffer

	shstrtab := []byte("\x00.shstrtab\x00")

	shstrOffset := uint64(64)
	shstrSize := uint64(len(shstrtab))

	shOffset := shstrOffset + shstrSize
	for shOffset%8 != 0 {
		shOffset++
	}

	hdr.Shoff = shOffset
	hdr.Shnum = 2
	hdr.Shstrndx = 1

	sections := []elf.Section64{
		{},
		{
			Name:      1, // .shstrtab
			Type:      uint32(elf.SHT_STRTAB),
			Off:       shstrOffset,
			Size:      shstrSize,
			Addralign: 1,
		},
	}

	if err := binary.Write(&body, binary.LittleEndian, hdr); err != nil {
		return err
	}

	body.Write(shstrtab)

	for uint64(body.Len()) < shOffset {
		body.WriteByte(0)
	}

	if err := binary.Write(&body, binary.LittleEndian, sections); err != nil {
		return err
	}

	return os.WriteFile(path, body.Bytes(), 0o755)
}
