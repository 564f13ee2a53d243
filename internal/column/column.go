// Package column implements a single logical ordered map: a memtable
// backed by a generation-ordered list of immutable segments, with the
// locking discipline that lets reads, writes, and background compaction
// interleave safely.
//
// A mutable buffer sits in front of an ordered sequence of immutable
// on-disk runs, generalized from a version-set/LSM-tree model down to
// this engine's single always-flat segment list per column (no levels).
package column

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/chaindex/fstkv/internal/compression"
	"github.com/chaindex/fstkv/internal/logging"
	"github.com/chaindex/fstkv/internal/memtable"
	"github.com/chaindex/fstkv/internal/merge"
	"github.com/chaindex/fstkv/internal/segment"
)

// Column holds one column's full state: its in-memory buffer, its ordered
// segment list (ascending id, oldest first), and the bookkeeping needed
// to seal, merge, and recover it.
type Column struct {
	Index uint8

	dir         string
	segmentSize int
	compression compression.Type
	log         logging.Logger

	mu            sync.RWMutex
	memtable      *memtable.Memtable
	segments      []*segment.Segment // ascending by ID; segments[len-1] is newest
	nextSegmentID uint64
	merging       bool
}

// Open recovers a column's segment list from dir and returns a
// ready-to-use Column with an empty memtable.
func Open(dir string, index uint8, segmentSize int, ctype compression.Type, log logging.Logger) (*Column, error) {
	if segmentSize <= 0 {
		return nil, fmt.Errorf("column %d: segment_size must be > 0", index)
	}
	log = logging.OrDefault(log)

	metas, err := segment.Discover(dir, index)
	if err != nil {
		return nil, fmt.Errorf("column %d: discover segments: %w", index, err)
	}

	segs := make([]*segment.Segment, 0, len(metas))
	for _, meta := range metas {
		s, err := segment.Open(meta)
		if err != nil {
			for _, opened := range segs {
				_ = opened.Close()
			}
			return nil, fmt.Errorf("column %d: open segment %d: %w", index, meta.ID, err)
		}
		segs = append(segs, s)
	}

	var nextID uint64
	if len(segs) > 0 {
		nextID = segs[len(segs)-1].ID + 1
	}

	log.Infof(logging.NSColumn+"column %d: recovered %d segment(s), next id %d", index, len(segs), nextID)

	return &Column{
		Index:         index,
		dir:           dir,
		segmentSize:   segmentSize,
		compression:   ctype,
		log:           log,
		memtable:      memtable.New(nil),
		segments:      segs,
		nextSegmentID: nextID,
	}, nil
}

// Insert places (key, value) into the memtable, overwriting any prior
// entry for key, and seals a new segment if the memtable has reached its
// configured size. flushed reports whether a seal happened — the signal
// the caller uses to notify the compactor.
func (c *Column) Insert(key, value []byte) (flushed bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.memtable.Put(key, value)
	if c.memtable.Len() < c.segmentSize {
		return false, nil
	}
	if err := c.flushLocked(); err != nil {
		return false, err
	}
	return true, nil
}

// Flush seals the memtable into a new segment if it holds any entries;
// a no-op otherwise.
func (c *Column) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked()
}

func (c *Column) flushLocked() error {
	if c.memtable.Len() == 0 {
		return nil
	}
	id := c.nextSegmentID
	s, err := c.sealMemtableLocked(id)
	if err != nil {
		return fmt.Errorf("column %d: flush: %w", c.Index, err)
	}
	c.nextSegmentID++
	c.segments = append(c.segments, s)
	c.memtable = memtable.New(nil)
	c.log.Infof(logging.NSFlush+"column %d: sealed segment %d (%d rows)", c.Index, id, s.Len())
	return nil
}

func (c *Column) sealMemtableLocked(id uint64) (*segment.Segment, error) {
	type kv struct{ key, value []byte }
	pairs := make([]kv, 0, c.memtable.Len())
	c.memtable.All(func(key, value []byte) {
		pairs = append(pairs, kv{key: key, value: value})
	})
	i := 0
	source := func() ([]byte, []byte, bool, error) {
		if i >= len(pairs) {
			return nil, nil, false, nil
		}
		p := pairs[i]
		i++
		return p.key, p.value, true, nil
	}
	return segment.Seal(c.dir, c.Index, id, c.compression, source)
}

// Get returns the value for key, checking the memtable first and then
// segments newest-to-oldest, returning the first match.
func (c *Column) Get(key []byte) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if v, ok := c.memtable.Get(key); ok {
		return v, true, nil
	}
	for i := len(c.segments) - 1; i >= 0; i-- {
		s := c.segments[i]
		offset, found, err := s.Get(key)
		if err != nil {
			return nil, false, fmt.Errorf("column %d: get from segment %d: %w", c.Index, s.ID, err)
		}
		if !found {
			continue
		}
		value, err := s.ReadValue(offset)
		if err != nil {
			return nil, false, fmt.Errorf("column %d: read value from segment %d: %w", c.Index, s.ID, err)
		}
		return value, true, nil
	}
	return nil, false, nil
}

// KeysWithPrefix returns the sorted, deduplicated set of keys starting
// with prefix, resolved across the memtable and every segment.
func (c *Column) KeysWithPrefix(prefix []byte) ([][]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	upper := segment.PrefixUpperBound(prefix)
	seen := make(map[string]struct{})
	var result [][]byte

	add := func(key []byte) {
		if !bytes.HasPrefix(key, prefix) {
			return
		}
		k := string(key)
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		result = append(result, append([]byte(nil), key...))
	}

	c.memtable.Range(prefix, upper, func(key, _ []byte) bool {
		if upper == nil && !bytes.HasPrefix(key, prefix) {
			return false
		}
		add(key)
		return true
	})

	for i := len(c.segments) - 1; i >= 0; i-- {
		s := c.segments[i]
		err := s.Iterate(prefix, upper, func(key []byte, _ uint64) bool {
			if upper == nil && !bytes.HasPrefix(key, prefix) {
				return false
			}
			add(key)
			return true
		})
		if err != nil {
			return nil, fmt.Errorf("column %d: prefix scan segment %d: %w", c.Index, s.ID, err)
		}
	}

	sort.Slice(result, func(i, j int) bool { return bytes.Compare(result[i], result[j]) < 0 })
	return result, nil
}

// Snapshot is the frozen input set captured by SnapshotForMerge: a reserved
// output segment id and the ordered input segments to merge.
type Snapshot struct {
	OutputID uint64
	Inputs   []segment.Meta
}

// SnapshotForMerge flushes the memtable, reserves the next segment id as
// the merge output, and captures the current segment list, all under the
// write lock, then marks the column as mid-merge. Returns ok == false if
// a merge is already in flight or there are fewer than threshold segments.
func (c *Column) SnapshotForMerge(threshold int) (Snapshot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.merging || len(c.segments) < threshold {
		return Snapshot{}, false, nil
	}
	if err := c.flushLocked(); err != nil {
		return Snapshot{}, false, err
	}

	outputID := c.nextSegmentID
	c.nextSegmentID++

	inputs := make([]segment.Meta, len(c.segments))
	for i, s := range c.segments {
		inputs[i] = s.Meta
	}
	c.merging = true
	return Snapshot{OutputID: outputID, Inputs: inputs}, true, nil
}

// AbortMerge clears the merging flag after a failed merge attempt, leaving
// the segment list untouched so the next compaction request can retry.
func (c *Column) AbortMerge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.merging = false
}

// FinishMerge removes the segments named by snap.Inputs from the column's
// list, appends merged in their place, clears the merging flag, then
// best-effort deletes the superseded files.
func (c *Column) FinishMerge(snap Snapshot, merged *segment.Segment) {
	c.mu.Lock()

	superseded := make(map[uint64]struct{}, len(snap.Inputs))
	for _, m := range snap.Inputs {
		superseded[m.ID] = struct{}{}
	}

	kept := c.segments[:0:0]
	var toClose []*segment.Segment
	for _, s := range c.segments {
		if _, ok := superseded[s.ID]; ok {
			toClose = append(toClose, s)
			continue
		}
		kept = append(kept, s)
	}
	kept = append(kept, merged)
	sort.Slice(kept, func(i, j int) bool { return kept[i].ID < kept[j].ID })
	c.segments = kept
	c.merging = false

	c.mu.Unlock()

	for _, s := range toClose {
		meta := s.Meta
		if err := s.Close(); err != nil {
			c.log.Warnf(logging.NSMerge+"column %d: close superseded segment %d: %v", c.Index, meta.ID, err)
		}
		if fstErr, valErr := segment.Delete(meta); fstErr != nil || valErr != nil {
			c.log.Warnf(logging.NSMerge+"column %d: delete superseded segment %d: fst=%v val=%v", c.Index, meta.ID, fstErr, valErr)
		}
	}
}

// Merge runs a full synchronous multi-way merge of the given snapshot's
// inputs outside of any lock, then installs the result via FinishMerge. On
// failure, the merging flag is cleared and the existing segment list is
// left untouched.
func (c *Column) Merge(snap Snapshot) error {
	merged, err := merge.Segments(c.dir, c.Index, snap.OutputID, c.compression, snap.Inputs)
	if err != nil {
		c.AbortMerge()
		return fmt.Errorf("column %d: merge: %w", c.Index, err)
	}
	c.FinishMerge(snap, merged)
	return nil
}

// SegmentCount returns the number of sealed segments currently held.
func (c *Column) SegmentCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.segments)
}

// Close releases every segment's memory map. The memtable, if non-empty,
// is not flushed — callers that need durability must Flush first (
// "Unflushed memtable on crash").
func (c *Column) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for _, s := range c.segments {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
