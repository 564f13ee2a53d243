// Package compression compresses individual value records before they are
// written to a segment's values file.
//
// A segment picks one compression Type for the whole segment (recorded in
// its footer) and applies it independently to each value's payload, so that
// Segment.ReadValue can still seek directly to a record's offset and decode
// just that record — compressing the values file as a single block would
// break random-offset reads.
package compression

import (
	"fmt"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type identifies the compression algorithm applied to a segment's values.
type Type uint8

const (
	// NoCompression stores value bytes as-is.
	NoCompression Type = 0x0
	// SnappyCompression uses Google Snappy.
	SnappyCompression Type = 0x1
	// LZ4Compression uses LZ4 block format (fast compression).
	LZ4Compression Type = 0x2
	// ZstdCompression uses Zstandard.
	ZstdCompression Type = 0x3
)

// String returns the human-readable name of the compression type.
func (t Type) String() string {
	switch t {
	case NoCompression:
		return "NoCompression"
	case SnappyCompression:
		return "Snappy"
	case LZ4Compression:
		return "LZ4"
	case ZstdCompression:
		return "ZSTD"
	default:
		return fmt.Sprintf("Unknown(%d)", t)
	}
}

// IsSupported returns true if the compression type is recognized.
func (t Type) IsSupported() bool {
	switch t {
	case NoCompression, SnappyCompression, LZ4Compression, ZstdCompression:
		return true
	default:
		return false
	}
}

// Compress compresses a single value's bytes.
func Compress(t Type, data []byte) ([]byte, error) {
	switch t {
	case NoCompression:
		return data, nil
	case SnappyCompression:
		return snappy.Encode(nil, data), nil
	case LZ4Compression:
		return compressLZ4(data)
	case ZstdCompression:
		return compressZstd(data)
	default:
		return nil, fmt.Errorf("unsupported compression type: %s", t)
	}
}

// Decompress decompresses a single value's bytes previously produced by
// Compress with the same Type. expectedSize, if known, speeds up LZ4
// decompression by avoiding buffer growth retries; pass 0 if unknown.
func Decompress(t Type, data []byte, expectedSize int) ([]byte, error) {
	switch t {
	case NoCompression:
		return data, nil
	case SnappyCompression:
		return snappy.Decode(nil, data)
	case LZ4Compression:
		return decompressLZ4(data, expectedSize)
	case ZstdCompression:
		return decompressZstd(data)
	default:
		return nil, fmt.Errorf("unsupported compression type: %s", t)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	var ht [1 << 16]int
	n, err := lz4.CompressBlock(data, dst, ht[:])
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if n == 0 && len(data) > 0 {
		// lz4 signals "not worth compressing" by returning 0. Callers fall
		// back to storing the value raw for this record.
		return nil, ErrIncompressible
	}
	return dst[:n], nil
}

// ErrIncompressible is returned by Compress when the chosen algorithm
// declines to compress a given value (e.g. LZ4 on tiny or high-entropy
// input). Callers should store that single record's bytes uncompressed.
var ErrIncompressible = fmt.Errorf("compression: value not worth compressing")

func decompressLZ4(data []byte, expectedSize int) ([]byte, error) {
	bufSize := expectedSize
	if bufSize <= 0 {
		bufSize = max(len(data)*4, 256)
	}
	for range 10 {
		dst := make([]byte, bufSize)
		n, err := lz4.UncompressBlock(data, dst)
		if err == nil {
			return dst[:n], nil
		}
		bufSize *= 2
	}
	return nil, fmt.Errorf("lz4 decompress: buffer too small after retries")
}

func compressZstd(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	defer encoder.Close()
	return encoder.EncodeAll(data, nil), nil
}

func decompressZstd(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	defer decoder.Close()
	return decoder.DecodeAll(data, nil)
}
