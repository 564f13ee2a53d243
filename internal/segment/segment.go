// Package segment implements the immutable on-disk unit of the FST engine:
// an ordered FST map from byte key to a values-file offset, plus the values
// file itself.
//
// A builder seals an ordered stream into an immutable file; a reader
// opens it back up for point and range access, memory-mapping the FST
// half and reading the values file at arbitrary offsets.
package segment

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/blevesearch/vellum"

	"github.com/chaindex/fstkv/internal/checksum"
	"github.com/chaindex/fstkv/internal/compression"
)

// footerSize is the fixed trailer appended to every values file after its
// records: 1 byte compression tag, 8 bytes XXH3 of the records region,
// 4 bytes CRC32C (masked) of the preceding 9 bytes.
const footerSize = 1 + 8 + 4

// Meta identifies a segment's files on disk without holding them open.
// It is what's handed to the merger and what Column.SnapshotForMerge
// captures under its write lock.
type Meta struct {
	ID         uint64
	FSTPath    string
	ValuesPath string
}

// Paths returns the canonical FST and values file paths for column col,
// segment id, under dir. Zero-padding to 20 digits keeps lexicographic and
// numeric order identical.
func Paths(dir string, col uint8, id uint64) (fstPath, valuesPath string) {
	name := fmt.Sprintf("col%d_seg%020d", col, id)
	return filepath.Join(dir, name+".fst"), filepath.Join(dir, name+".val")
}

// Segment is an immutable (FST map, values file) pair. The FST is
// memory-mapped by vellum on Open; the values file is opened for seeked
// reads, never mapped.
type Segment struct {
	ID          uint64
	Meta        Meta
	fst         *vellum.FST
	compression compression.Type
	valuesSize  int64
}

// Open loads a previously-sealed segment from disk, memory-mapping its FST
// file and validating the values file's footer checksum.
func Open(meta Meta) (*Segment, error) {
	fst, err := vellum.Open(meta.FSTPath)
	if err != nil {
		return nil, fmt.Errorf("segment %d: open fst: %w", meta.ID, err)
	}

	f, err := os.Open(meta.ValuesPath)
	if err != nil {
		_ = fst.Close()
		return nil, fmt.Errorf("segment %d: open values: %w", meta.ID, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		_ = fst.Close()
		return nil, fmt.Errorf("segment %d: stat values: %w", meta.ID, err)
	}

	ctype := compression.NoCompression
	recordsSize := info.Size()
	if info.Size() >= footerSize {
		footer := make([]byte, footerSize)
		if _, err := f.ReadAt(footer, info.Size()-footerSize); err != nil {
			_ = fst.Close()
			return nil, fmt.Errorf("segment %d: read footer: %w", meta.ID, err)
		}
		gotFooterCRC := checksum.MaskedValue(footer[:9])
		wantFooterCRC := binary.LittleEndian.Uint32(footer[9:13])
		if gotFooterCRC == wantFooterCRC {
			ctype = compression.Type(footer[0])
			wantXXH3 := binary.LittleEndian.Uint64(footer[1:9])
			recordsSize = info.Size() - footerSize
			records := make([]byte, recordsSize)
			if _, err := f.ReadAt(records, 0); err != nil {
				_ = fst.Close()
				return nil, fmt.Errorf("segment %d: read records: %w", meta.ID, err)
			}
			if got := checksum.XXH3(records); got != wantXXH3 {
				_ = fst.Close()
				return nil, fmt.Errorf("segment %d: values checksum mismatch", meta.ID)
			}
		}
		// A footer that fails its own CRC is treated as "no footer" (an
		// older or foreign values file with no trailer); the segment is
		// still usable, just without the integrity check.
	}

	return &Segment{
		ID:          meta.ID,
		Meta:        meta,
		fst:         fst,
		compression: ctype,
		valuesSize:  recordsSize,
	}, nil
}

// Close releases the segment's mmap.
func (s *Segment) Close() error {
	return s.fst.Close()
}

// Len returns the number of keys in the segment.
func (s *Segment) Len() int {
	return int(s.fst.Len())
}

// Get returns the values-file offset for key, if present.
func (s *Segment) Get(key []byte) (uint64, bool, error) {
	offset, found, err := s.fst.Get(key)
	if err != nil {
		return 0, false, fmt.Errorf("segment %d: fst get: %w", s.ID, err)
	}
	return offset, found, nil
}

// ReadValue reads and decompresses the value record at offset. offset
// must fall within the records region established at Open; an offset an
// FST lookup could never legitimately produce (a corrupt or foreign FST)
// is rejected before the seek rather than handed to the OS.
func (s *Segment) ReadValue(offset uint64) ([]byte, error) {
	if offset >= uint64(s.valuesSize) {
		return nil, fmt.Errorf("segment %d: value offset %d out of range (records region is %d bytes)", s.ID, offset, s.valuesSize)
	}
	f, err := os.Open(s.Meta.ValuesPath)
	if err != nil {
		return nil, fmt.Errorf("segment %d: open values: %w", s.ID, err)
	}
	defer func() { _ = f.Close() }()
	return readValueRecord(f, offset, s.compression)
}

// Iterate calls visit for every (key, offset) pair with key in
// [lo, hi) (hi == nil means unbounded), in ascending key order. visit's
// return value controls whether iteration continues.
func (s *Segment) Iterate(lo, hi []byte, visit func(key []byte, offset uint64) bool) error {
	it, err := s.fst.Iterator(lo, hi)
	if errors.Is(err, vellum.ErrIteratorDone) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("segment %d: iterator: %w", s.ID, err)
	}
	defer func() { _ = it.Close() }()

	for {
		key, val := it.Current()
		if !visit(key, val) {
			return nil
		}
		if err := it.Next(); err != nil {
			if errors.Is(err, vellum.ErrIteratorDone) {
				return nil
			}
			return fmt.Errorf("segment %d: iterator next: %w", s.ID, err)
		}
	}
}

// valueWriter writes a segment's values file: one length-prefixed record
// per value, optionally compressing each value, then the footer. The FST
// half is built separately by Seal.
type valueWriter struct {
	valuesFile  *os.File
	offset      uint64
	compression compression.Type
	hashState   []byte // accumulated records region, hashed on Finish
}

func newValueWriter(path string, ctype compression.Type) (*valueWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &valueWriter{valuesFile: f, compression: ctype}, nil
}

// Append writes one value record and returns its offset.
func (w *valueWriter) Append(value []byte) (uint64, error) {
	body, err := encodeValueRecord(value, w.compression)
	if err != nil {
		return 0, err
	}

	var lenBuf [4]byte
	if len(body) > math.MaxUint32 {
		return 0, fmt.Errorf("value record exceeds u32 length")
	}
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(body)))

	offset := w.offset
	next := offset + 4 + uint64(len(body))
	if next < offset {
		return 0, fmt.Errorf("value offsets exceeded u64")
	}

	if _, err := w.valuesFile.Write(lenBuf[:]); err != nil {
		return 0, err
	}
	if _, err := w.valuesFile.Write(body); err != nil {
		return 0, err
	}
	w.hashState = append(w.hashState, lenBuf[:]...)
	w.hashState = append(w.hashState, body...)
	w.offset = next
	return offset, nil
}

// Finish writes the footer and closes the values file.
func (w *valueWriter) Finish() error {
	footer := make([]byte, footerSize)
	footer[0] = byte(w.compression)
	binary.LittleEndian.PutUint64(footer[1:9], checksum.XXH3(w.hashState))
	binary.LittleEndian.PutUint32(footer[9:13], checksum.MaskedValue(footer[:9]))
	if _, err := w.valuesFile.Write(footer); err != nil {
		return err
	}
	if err := w.valuesFile.Sync(); err != nil {
		return err
	}
	return w.valuesFile.Close()
}

func encodeValueRecord(value []byte, ctype compression.Type) ([]byte, error) {
	if len(value) == 0 || ctype == compression.NoCompression {
		body := make([]byte, 1+len(value))
		copy(body[1:], value)
		return body, nil
	}
	compressed, err := compression.Compress(ctype, value)
	if errors.Is(err, compression.ErrIncompressible) {
		body := make([]byte, 1+len(value))
		copy(body[1:], value)
		return body, nil
	}
	if err != nil {
		return nil, err
	}
	body := make([]byte, 1+len(compressed))
	body[0] = 1
	copy(body[1:], compressed)
	return body, nil
}

func readValueRecord(r io.ReaderAt, offset uint64, ctype compression.Type) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := r.ReadAt(lenBuf[:], int64(offset)); err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint32(lenBuf[:])
	body := make([]byte, length)
	if length > 0 {
		if _, err := r.ReadAt(body, int64(offset)+4); err != nil {
			return nil, err
		}
	}
	if len(body) == 0 {
		return nil, nil
	}
	flag := body[0]
	payload := body[1:]
	if flag == 0 {
		return payload, nil
	}
	return compression.Decompress(ctype, payload, 0)
}

// Cursor is a pull-style iterator over one segment's (key, offset) pairs,
// used by the merger to drive several segments' streams in lockstep
// through a min-heap.
type Cursor struct {
	it    *vellum.FSTIterator
	done  bool
	key   []byte
	value uint64
}

// NewCursor opens a cursor over all of s's keys in ascending order,
// already positioned at the first entry (if any).
func NewCursor(s *Segment) (*Cursor, error) {
	it, err := s.fst.Iterator(nil, nil)
	if errors.Is(err, vellum.ErrIteratorDone) {
		return &Cursor{done: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("segment %d: iterator: %w", s.ID, err)
	}
	c := &Cursor{it: it}
	c.load()
	return c, nil
}

func (c *Cursor) load() {
	if c.done {
		return
	}
	key, val := c.it.Current()
	c.key = append([]byte(nil), key...)
	c.value = val
}

// Valid reports whether the cursor is positioned at an entry.
func (c *Cursor) Valid() bool { return !c.done }

// Key and Offset return the entry at the cursor's current position.
// REQUIRES Valid().
func (c *Cursor) Key() []byte    { return c.key }
func (c *Cursor) Offset() uint64 { return c.value }

// Next advances to the next entry, returning whether one exists.
func (c *Cursor) Next() (bool, error) {
	if c.done {
		return false, nil
	}
	if err := c.it.Next(); err != nil {
		if errors.Is(err, vellum.ErrIteratorDone) {
			c.done = true
			return false, nil
		}
		return false, fmt.Errorf("cursor next: %w", err)
	}
	c.load()
	return true, nil
}

// Close releases the cursor's underlying iterator.
func (c *Cursor) Close() error {
	if c.it == nil {
		return nil
	}
	return c.it.Close()
}

// PrefixUpperBound returns the smallest byte sequence strictly greater than
// every sequence starting with prefix, or nil if no such bound exists
// (prefix is empty, or every byte is 0xFF).
func PrefixUpperBound(prefix []byte) []byte {
	if len(prefix) == 0 {
		return nil
	}
	out := append([]byte(nil), prefix...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xFF {
			out[i]++
			return out[:i+1]
		}
	}
	return nil
}
