// Package store is the public layout orchestrator: it composes 1-4
// columns to realize the Plain, UniqueIndex, Range, and Dictionary
// layouts, routes reads and writes through them, and drives background
// compaction.
//
// The top-level handle wraps independently-lockable internal units,
// generalized from a column-family model down to this engine's fixed,
// layout-determined column count.
package store

import (
	"fmt"
	"sync"

	"github.com/chaindex/fstkv/internal/column"
	"github.com/chaindex/fstkv/internal/compactor"
	"github.com/chaindex/fstkv/internal/logging"
	"github.com/chaindex/fstkv/internal/progress"
)

// Entry is one byte-level key/value pair passed to Commit.
type Entry struct {
	Key   []byte
	Value []byte
}

// Store composes the columns needed by its Layout and routes every public
// operation in it through them.
type Store struct {
	path    string
	layout  Layout
	opts    StoreOptions
	log     logging.Logger
	columns []*column.Column
	compact *compactor.Compactor

	progressMu sync.Mutex
	tracker    *progress.Tracker

	dictMu sync.Mutex // serializes Dictionary birth-key decisions across concurrent commits
}

// Open creates path if absent, recovers every column's segment list, and
// starts the background compactor (open).
func Open(path string, layout Layout, opts StoreOptions, log logging.Logger) (*Store, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	log = logging.OrDefault(log)

	if err := ensureDir(path); err != nil {
		return nil, newErr(Io, "open", err)
	}

	n := layout.columnCount()
	cols := make([]*column.Column, n)
	for i := range n {
		col, err := column.Open(path, uint8(i), int(opts.SegmentSize), opts.Compression, log)
		if err != nil {
			for _, opened := range cols {
				if opened != nil {
					_ = opened.Close()
				}
			}
			return nil, newErr(corruptOrIo(err), "open", err)
		}
		cols[i] = col
	}

	s := &Store{
		path:    path,
		layout:  layout,
		opts:    opts,
		log:     log,
		columns: cols,
	}
	s.compact = compactor.New(s.columnByIndex, opts.MergeThreshold, log)
	return s, nil
}

func (s *Store) columnByIndex(index uint8) *column.Column {
	if int(index) >= len(s.columns) {
		return nil
	}
	return s.columns[index]
}

func corruptOrIo(err error) Kind {
	if isOrphanErr(err) {
		return CorruptSegment
	}
	return Io
}

// Commit inserts a batch of (K, V) pairs, fanning each one out to the
// columns its Layout requires. Duplicate keys within the
// same batch are resolved in insertion order, later wins, because each
// is applied to the memtable in order.
func (s *Store) Commit(items []Entry) error {
	var logged uint64
	defer func() {
		if logged > 0 {
			s.recordProgress(logged)
		}
	}()

	switch s.layout.Kind {
	case Plain:
		for _, e := range items {
			if err := s.insert(s.layout.kvCol, e.Key, e.Value); err != nil {
				return err
			}
			logged++
		}
	case UniqueIndex:
		for _, e := range items {
			if err := s.insert(s.layout.kvCol, e.Key, e.Value); err != nil {
				return err
			}
			if err := s.insert(s.layout.vkCol, e.Value, e.Key); err != nil {
				return err
			}
			logged += 2
		}
	case Range:
		for _, e := range items {
			if err := s.insert(s.layout.kvCol, e.Key, e.Value); err != nil {
				return err
			}
			btreeKey := append(append([]byte(nil), e.Value...), e.Key...)
			if err := s.insert(s.layout.vkBTreeCol, btreeKey, nil); err != nil {
				return err
			}
			logged += 2
		}
	case Dictionary:
		s.dictMu.Lock()
		defer s.dictMu.Unlock()
		cache := make(map[string][]byte)
		for _, e := range items {
			n, err := s.commitDictionaryEntry(e, cache)
			if err != nil {
				return err
			}
			logged += n
		}
	default:
		return newErr(InvalidInput, "commit", fmt.Errorf("unknown layout kind %v", s.layout.Kind))
	}
	return nil
}

// commitDictionaryEntry interns e.Value under a birth key, consulting the
// per-commit cache before the on-disk v2pk column so that repeated values
// within one batch never mint two distinct birth keys.
func (s *Store) commitDictionaryEntry(e Entry, cache map[string][]byte) (uint64, error) {
	isNew := false
	pk, ok := cache[string(e.Value)]
	if !ok {
		var err error
		pk, ok, err = s.get(s.layout.v2pkCol, e.Value)
		if err != nil {
			return 0, err
		}
	}
	if !ok {
		pk = e.Key
		isNew = true
		cache[string(e.Value)] = pk
		if err := s.insert(s.layout.v2pkCol, e.Value, pk); err != nil {
			return 0, err
		}
		if err := s.insert(s.layout.pk2vCol, pk, e.Value); err != nil {
			return 0, err
		}
	} else {
		cache[string(e.Value)] = pk
	}

	if err := s.insert(s.layout.k2pkCol, e.Key, pk); err != nil {
		return 0, err
	}
	btreeKey := append(append([]byte(nil), pk...), e.Key...)
	if err := s.insert(s.layout.pkKBTreeCol, btreeKey, nil); err != nil {
		return 0, err
	}

	if isNew {
		return 4, nil
	}
	return 2, nil
}

func (s *Store) insert(col uint8, key, value []byte) error {
	flushed, err := s.columns[col].Insert(key, value)
	if err != nil {
		return newErr(Io, "commit", err)
	}
	if flushed {
		s.compact.Request(col)
	}
	return nil
}

func (s *Store) get(col uint8, key []byte) ([]byte, bool, error) {
	v, ok, err := s.columns[col].Get(key)
	if err != nil {
		return nil, false, newErr(Io, "get", err)
	}
	return v, ok, nil
}

// Flush seals every column's memtable into a segment if non-empty
// (flush).
func (s *Store) Flush() error {
	for i, col := range s.columns {
		if err := col.Flush(); err != nil {
			return newErr(Io, "flush", fmt.Errorf("column %d: %w", i, err))
		}
	}
	return nil
}

// GetValue looks up key's current value.
func (s *Store) GetValue(key []byte) ([]byte, bool, error) {
	switch s.layout.Kind {
	case Plain, UniqueIndex, Range:
		return s.get(s.layout.kvCol, key)
	case Dictionary:
		pk, ok, err := s.get(s.layout.k2pkCol, key)
		if err != nil || !ok {
			return nil, false, err
		}
		return s.get(s.layout.pk2vCol, pk)
	default:
		return nil, false, newErr(InvalidInput, "get_value", fmt.Errorf("unknown layout kind %v", s.layout.Kind))
	}
}

// GetKeyForValue returns the key bound to value. Only meaningful under
// UniqueIndex; any other layout returns InvalidInput.
func (s *Store) GetKeyForValue(value []byte) ([]byte, bool, error) {
	if s.layout.Kind != UniqueIndex {
		return nil, false, newErr(InvalidInput, "get_key_for_value", fmt.Errorf("layout %v does not support get_key_for_value", s.layout.Kind))
	}
	return s.get(s.layout.vkCol, value)
}

// GetKeysForValue returns every key currently bound to value, sorted
// ascending. Only meaningful under Range and Dictionary layouts.
func (s *Store) GetKeysForValue(value []byte) ([][]byte, error) {
	switch s.layout.Kind {
	case Range:
		keys, err := s.columns[s.layout.vkBTreeCol].KeysWithPrefix(value)
		if err != nil {
			return nil, newErr(Io, "get_keys_for_value", err)
		}
		return stripPrefix(keys, len(value)), nil
	case Dictionary:
		pk, ok, err := s.get(s.layout.v2pkCol, value)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		keys, err := s.columns[s.layout.pkKBTreeCol].KeysWithPrefix(pk)
		if err != nil {
			return nil, newErr(Io, "get_keys_for_value", err)
		}
		return stripPrefix(keys, len(pk)), nil
	default:
		return nil, newErr(InvalidInput, "get_keys_for_value", fmt.Errorf("layout %v does not support get_keys_for_value", s.layout.Kind))
	}
}

func stripPrefix(keys [][]byte, n int) [][]byte {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = k[n:]
	}
	return out
}

// MultiWayMerge forces synchronous full compaction of every column down
// to a single segment (multi_way_merge).
func (s *Store) MultiWayMerge() error {
	for i := range s.columns {
		if err := s.compact.Drive(uint8(i), 1); err != nil {
			return newErr(Io, "multi_way_merge", err)
		}
	}
	return nil
}

// SetProgress installs a progress tracker; Commit records the logical
// per-layout entry count against it.
func (s *Store) SetProgress(label string, total uint64) {
	s.progressMu.Lock()
	defer s.progressMu.Unlock()
	s.tracker = progress.New(label, total, s.log)
}

func (s *Store) recordProgress(n uint64) {
	s.progressMu.Lock()
	t := s.tracker
	s.progressMu.Unlock()
	if t != nil {
		t.Record(n)
	}
}

// FinishProgress logs the installed tracker's final summary line,
// regardless of the rate limit. A no-op if SetProgress was never called.
func (s *Store) FinishProgress() {
	s.progressMu.Lock()
	t := s.tracker
	s.progressMu.Unlock()
	if t != nil {
		t.Finish()
	}
}

// Close stops the compactor (closing its request channel and joining its
// goroutine) and releases every column's segment mmaps. It does not flush
// memtables (Cancellation and shutdown). If a progress tracker is
// installed, its final summary line is logged before shutdown.
func (s *Store) Close() error {
	s.FinishProgress()
	_ = s.compact.Close()
	var firstErr error
	for _, col := range s.columns {
		if err := col.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return newErr(Io, "close", firstErr)
	}
	return nil
}
