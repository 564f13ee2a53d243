// Package checksum provides the checksum algorithms used to guard segment
// footers and values files against silent corruption.
//
// CRC32C (Castagnoli) covers small fixed-size footers; XXH3 covers whole
// values files, where its throughput on multi-KB buffers matters more than
// CRC32C's simplicity.
package checksum

import (
	"hash/crc32"
)

// crc32cTable is the Castagnoli polynomial table used for CRC32C.
var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// maskDelta is added during masking so that a CRC embedded in the data it
// covers doesn't trivially reproduce itself.
const maskDelta = 0xa282ead8

// Value computes the CRC32C checksum of data.
func Value(data []byte) uint32 {
	return crc32.Checksum(data, crc32cTable)
}

// Mask returns a masked representation of crc, safe to store alongside the
// data it was computed over.
func Mask(crc uint32) uint32 {
	return ((crc >> 15) | (crc << 17)) + maskDelta
}

// Unmask returns the crc whose masked representation is maskedCRC.
func Unmask(maskedCRC uint32) uint32 {
	rot := maskedCRC - maskDelta
	return (rot >> 17) | (rot << 15)
}

// MaskedValue computes the CRC32C of data and masks it in one call.
func MaskedValue(data []byte) uint32 {
	return Mask(Value(data))
}
