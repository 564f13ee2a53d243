package store

import (
	"github.com/chaindex/fstkv/internal/compression"
	"github.com/chaindex/fstkv/internal/sizing"
)

// StoreOptions configures a Store at Open.
type StoreOptions struct {
	// SegmentSize is the row count at which a column's memtable seals
	// into a new segment. Must be > 0.
	SegmentSize uint64

	// Compression selects the algorithm applied to each segment's values
	// file. Defaults to compression.NoCompression.
	Compression compression.Type

	// MergeThreshold is the minimum segment count a column must reach
	// before the compactor will merge it. 0 selects the package default
	// (compactor.MergeThreshold).
	MergeThreshold int
}

// DefaultStoreOptions returns options with SegmentSize set to the sizing
// package's floor and no compression.
func DefaultStoreOptions() StoreOptions {
	return StoreOptions{SegmentSize: sizing.MinSegmentRows}
}

// FromEstimates derives SegmentSize from an estimated row count, average
// key+value size, and memtable byte budget.
func FromEstimates(approxRows, avgKVBytes, memBudgetBytes uint64) StoreOptions {
	return StoreOptions{SegmentSize: sizing.FromEstimates(approxRows, avgKVBytes, memBudgetBytes)}
}

func (o StoreOptions) validate() error {
	if o.SegmentSize == 0 {
		return newErr(InvalidInput, "open", errInvalidOption("segment_size must be > 0"))
	}
	return nil
}

type errInvalidOption string

func (e errInvalidOption) Error() string { return string(e) }
