// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package newc

import (
	"fmt"
	"io"
	"math"
	"strings"
)

const (
	magic = "070701"

	// TrailerName is the name of the entry terminating an archive.
	TrailerName = "TRAILER!!!"

	headerLen = 110

	// maxPayload is the largest payload the 32 bit file size field can
	// frame.
	maxPayload = math.MaxUint32

	// maxName is the largest name size including the trailing NUL.
	maxName = 0xffff

	// File type bits as used in st_mode.
	modeDir     = 0o040000
	modeRegular = 0o100000
	modeSymlink = 0o120000
	modeChar    = 0o020000
	modeBlock   = 0o060000
)

// Header carries the attributes shared by all entry kinds. The mode must
// contain the permission bits only. File type bits are set by the write
// methods.
type Header struct {
	Mode      uint32
	UID       uint32
	GID       uint32
	MTime     int64
	RDevMajor uint32
	RDevMinor uint32
	// Links overrides the link count if non-zero. Used for entries that
	// are part of a hard link group.
	Links uint32
}

// Writer encodes entries into a newc stream.
//
// Create a new instance with [NewWriter], add entries with the Write
// methods and finalize the archive with [Writer.Close].
type Writer struct {
	w      io.Writer
	offset int64
	ino    uint32
	inodes map[string]uint32
	closed bool
}

// NewWriter creates a new [Writer] writing to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w:      w,
		inodes: make(map[string]uint32),
	}
}

// WriteDirectory adds a directory entry for the given name.
func (w *Writer) WriteDirectory(name string, hdr Header) error {
	return w.writeEntry(name, w.nextIno(), linksOr(hdr, 2), modeDir|hdr.Mode,
		hdr, 0, nil)
}

// WriteRegular adds a regular file entry with size bytes read from body.
func (w *Writer) WriteRegular(
	name string,
	body io.Reader,
	size int64,
	hdr Header,
) error {
	if size > maxPayload {
		return &FormatError{Name: name, err: ErrPayloadTooLarge}
	}

	ino := w.nextIno()
	w.inodes[name] = ino

	return w.writeEntry(name, ino, linksOr(hdr, 1), modeRegular|hdr.Mode,
		hdr, size, body)
}

// WriteSymlink adds a symbolic link entry. The target is the payload.
func (w *Writer) WriteSymlink(name, target string, hdr Header) error {
	return w.writeEntry(name, w.nextIno(), linksOr(hdr, 1),
		modeSymlink|hdr.Mode, hdr, int64(len(target)),
		strings.NewReader(target))
}

// WriteNode adds a device node entry. The device numbers are carried in
// the rdev fields of hdr.
func (w *Writer) WriteNode(name string, block bool, hdr Header) error {
	mode := uint32(modeChar)
	if block {
		mode = modeBlock
	}

	return w.writeEntry(name, w.nextIno(), linksOr(hdr, 1), mode|hdr.Mode,
		hdr, 0, nil)
}

// WriteHardlink adds an entry sharing the inode number of the regular
// file written before under target. The payload stays with the target
// entry; callers set Links on both headers to the size of the link group.
func (w *Writer) WriteHardlink(name, target string, hdr Header) error {
	ino, exists := w.inodes[target]
	if !exists {
		return &FormatError{Name: name, err: ErrLinkTargetNotWritten}
	}

	return w.writeEntry(name, ino, linksOr(hdr, 2), modeRegular|hdr.Mode,
		hdr, 0, nil)
}

// Close terminates the archive with the trailer entry. The underlying
// writer is not closed. Subsequent calls return [ErrWriterClosed].
func (w *Writer) Close() error {
	if w.closed {
		return ErrWriterClosed
	}

	err := w.writeEntry(TrailerName, 0, 1, 0, Header{}, 0, nil)
	if err != nil {
		return err
	}

	w.closed = true

	return nil
}

// nextIno allocates the next inode number, starting at 1.
func (w *Writer) nextIno() uint32 {
	w.ino++
	return w.ino
}

func linksOr(hdr Header, fallback uint32) uint32 {
	if hdr.Links != 0 {
		return hdr.Links
	}

	return fallback
}

func (w *Writer) writeEntry(
	name string,
	ino uint32,
	nlink uint32,
	mode uint32,
	hdr Header,
	size int64,
	body io.Reader,
) error {
	if w.closed {
		return ErrWriterClosed
	}

	nameSize := len(name) + 1
	if nameSize > maxName {
		return &FormatError{Name: name, err: ErrNameTooLong}
	}

	mtime := hdr.MTime
	if mtime < 0 || mtime > maxPayload {
		mtime = 0
	}

	buf := make([]byte, 0, headerLen+nameSize+3)
	buf = append(buf, magic...)
	buf = appendHex(buf, ino)
	buf = appendHex(buf, mode)
	buf = appendHex(buf, hdr.UID)
	buf = appendHex(buf, hdr.GID)
	buf = appendHex(buf, nlink)
	buf = appendHex(buf, uint32(mtime))
	buf = appendHex(buf, uint32(size))
	buf = appendHex(buf, 0) // devmajor
	buf = appendHex(buf, 0) // devminor
	buf = appendHex(buf, hdr.RDevMajor)
	buf = appendHex(buf, hdr.RDevMinor)
	buf = appendHex(buf, uint32(nameSize))
	buf = appendHex(buf, 0) // check, always zero for newc
	buf = append(buf, name...)
	buf = append(buf, 0)
	buf = pad(buf, w.offset)

	if err := w.write(buf); err != nil {
		return fmt.Errorf("write header for %s: %w", name, err)
	}

	if body == nil || size == 0 {
		return nil
	}

	written, err := io.CopyN(w.w, body, size)
	w.offset += written

	if err != nil {
		return fmt.Errorf("write body for %s: %w", name, err)
	}

	if err := w.write(pad(nil, w.offset)); err != nil {
		return fmt.Errorf("write padding for %s: %w", name, err)
	}

	return nil
}

func (w *Writer) write(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}

	written, err := w.w.Write(buf)
	w.offset += int64(written)

	return err
}

// appendHex appends the value as eight uppercase hex digits.
func appendHex(buf []byte, value uint32) []byte {
	const digits = "0123456789ABCDEF"

	for shift := 28; shift >= 0; shift -= 4 {
		buf = append(buf, digits[(value>>shift)&0xf])
	}

	return buf
}

// pad appends NUL bytes so the stream offset after buf is a multiple of
// four.
func pad(buf []byte, offset int64) []byte {
	for (offset+int64(len(buf)))%4 != 0 {
		buf = append(buf, 0)
	}

	return buf
}

// FormatError describes an entry that cannot be framed in newc.
type FormatError struct {
	Name string
	err  error
}

func (e *FormatError) Error() string {
	return e.err.Error() + ": " + e.Name
}

func (e *FormatError) Is(other error) bool {
	return other == e.err
}

func (e *FormatError) Unwrap() error {
	return e.err
}
