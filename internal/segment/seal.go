package segment

import (
	"fmt"
	"os"

	"github.com/blevesearch/vellum"

	"github.com/chaindex/fstkv/internal/compression"
)

// Source yields the next (key, value) pair in strictly ascending key order.
// ok is false once the source is exhausted.
type Source func() (key, value []byte, ok bool, err error)

// Seal writes source's entries into a new segment (col, id) under dir and
// opens the result. Both Column.Flush (sealing a memtable) and the merger
// (sealing a merge output) go through this single write path: finalize
// the FST builder, then flush the values file.
func Seal(dir string, col uint8, id uint64, ctype compression.Type, source Source) (*Segment, error) {
	fstPath, valuesPath := Paths(dir, col, id)

	fstFile, err := os.Create(fstPath)
	if err != nil {
		return nil, fmt.Errorf("seal segment %d: create fst file: %w", id, err)
	}
	builder, err := vellum.New(fstFile, nil)
	if err != nil {
		_ = fstFile.Close()
		return nil, fmt.Errorf("seal segment %d: new fst builder: %w", id, err)
	}

	vw, err := newValueWriter(valuesPath, ctype)
	if err != nil {
		_ = fstFile.Close()
		return nil, fmt.Errorf("seal segment %d: create values file: %w", id, err)
	}

	for {
		key, value, ok, err := source()
		if err != nil {
			_ = fstFile.Close()
			_ = vw.valuesFile.Close()
			return nil, err
		}
		if !ok {
			break
		}
		offset, err := vw.Append(value)
		if err != nil {
			_ = fstFile.Close()
			_ = vw.valuesFile.Close()
			return nil, fmt.Errorf("seal segment %d: append value: %w", id, err)
		}
		if err := builder.Insert(key, offset); err != nil {
			_ = fstFile.Close()
			_ = vw.valuesFile.Close()
			return nil, fmt.Errorf("seal segment %d: fst insert: %w", id, err)
		}
	}

	if err := builder.Close(); err != nil {
		_ = fstFile.Close()
		_ = vw.valuesFile.Close()
		return nil, fmt.Errorf("seal segment %d: finish fst builder: %w", id, err)
	}
	if err := fstFile.Sync(); err != nil {
		_ = fstFile.Close()
		_ = vw.valuesFile.Close()
		return nil, fmt.Errorf("seal segment %d: sync fst file: %w", id, err)
	}
	if err := fstFile.Close(); err != nil {
		_ = vw.valuesFile.Close()
		return nil, fmt.Errorf("seal segment %d: close fst file: %w", id, err)
	}
	if err := vw.Finish(); err != nil {
		return nil, fmt.Errorf("seal segment %d: finish values file: %w", id, err)
	}

	return Open(Meta{ID: id, FSTPath: fstPath, ValuesPath: valuesPath})
}
