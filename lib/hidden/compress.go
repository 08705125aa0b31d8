// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hidden

import (
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how an envelope's plaintext was compressed.
// Values are stored in envelopes and must not change.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	}
	return fmt.Sprintf("unknown(%d)", uint8(c))
}

// ParseCompression parses the String form.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	}
	return 0, fmt.Errorf("hidden: unknown compression %q", name)
}

// Encoder and decoder are safe for concurrent use and shared.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("hidden: zstd encoder: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("hidden: zstd decoder: " + err.Error())
	}
}

var errIncompressible = errors.New("hidden: record does not compress")

// SelectCompression picks zstd for text-like media types and LZ4
// otherwise.
func SelectCompression(mediaType string) Compression {
	base, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		base = strings.ToLower(strings.TrimSpace(mediaType))
	}
	switch {
	case strings.HasPrefix(base, "text/"),
		base == "application/json",
		base == "application/xml",
		base == "application/yaml",
		strings.HasSuffix(base, "+json"),
		strings.HasSuffix(base, "+xml"):
		return CompressionZstd
	}
	return CompressionLZ4
}

// compress returns the compressed record and the compression actually
// applied, falling back to CompressionNone for incompressible input.
func compress(data []byte, preferred Compression) ([]byte, Compression, error) {
	var (
		out []byte
		err error
	)
	switch preferred {
	case CompressionNone:
		return data, CompressionNone, nil
	case CompressionLZ4:
		out, err = compressLZ4(data)
	case CompressionZstd:
		out, err = compressZstd(data)
	default:
		return nil, 0, fmt.Errorf("hidden: unsupported compression %s", preferred)
	}
	if errors.Is(err, errIncompressible) {
		return data, CompressionNone, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return out, preferred, nil
}

func decompress(data []byte, compression Compression, size int) ([]byte, error) {
	switch compression {
	case CompressionNone:
		if len(data) != size {
			return nil, fmt.Errorf("hidden: record is %d bytes, envelope declares %d", len(data), size)
		}
		return data, nil
	case CompressionLZ4:
		out := make([]byte, size)
		read, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, fmt.Errorf("hidden: lz4: %w", err)
		}
		if read != size {
			return nil, fmt.Errorf("hidden: lz4 produced %d bytes, envelope declares %d", read, size)
		}
		return out, nil
	case CompressionZstd:
		out, err := zstdDecoder.DecodeAll(data, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("hidden: zstd: %w", err)
		}
		if len(out) != size {
			return nil, fmt.Errorf("hidden: zstd produced %d bytes, envelope declares %d", len(out), size)
		}
		return out, nil
	}
	return nil, fmt.Errorf("hidden: unsupported compression %s", compression)
}

func compressLZ4(data []byte) ([]byte, error) {
	out := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, out, nil)
	if err != nil {
		return nil, fmt.Errorf("hidden: lz4: %w", err)
	}
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return out[:written], nil
}

func compressZstd(data []byte) ([]byte, error) {
	out := zstdEncoder.EncodeAll(data, nil)
	if len(out) >= len(data) {
		return nil, errIncompressible
	}
	return out, nil
}
