// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package initramfs

import (
	"fmt"
	"io"
	"runtime"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Encoder selects the compression codec the archive stream is wrapped
// with.
type Encoder string

const (
	EncoderNone Encoder = "none"
	EncoderGzip Encoder = "gzip"
	EncoderZstd Encoder = "zstd"
)

// String implements [fmt.Stringer].
func (e Encoder) String() string {
	return string(e)
}

// MarshalText implements [encoding.TextMarshaler].
func (e Encoder) MarshalText() ([]byte, error) {
	return []byte(e), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler] for use as CLI
// flag.
func (e *Encoder) UnmarshalText(text []byte) error {
	encoder := Encoder(text)

	switch encoder {
	case EncoderNone, EncoderGzip, EncoderZstd:
		*e = encoder
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownEncoder, text)
	}
}

// Wrap wraps the output sink with the codec. The returned writer must be
// closed exactly once to finalize the stream. Closing it does not close
// the underlying sink.
func (e Encoder) Wrap(w io.Writer) (io.WriteCloser, error) {
	switch e {
	case EncoderNone, "":
		return nopWriteCloser{w}, nil
	case EncoderGzip:
		return gzip.NewWriter(w), nil
	case EncoderZstd:
		writer, err := zstd.NewWriter(w,
			zstd.WithEncoderConcurrency(runtime.NumCPU()))
		if err != nil {
			return nil, fmt.Errorf("create zstd writer: %w", err)
		}

		return writer, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEncoder, e)
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
