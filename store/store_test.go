package store

import (
	"testing"

	"github.com/chaindex/fstkv/internal/logging"
)

func open(t *testing.T, layout Layout, segmentSize uint64) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir, layout, StoreOptions{SegmentSize: segmentSize}, logging.Discard)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func reopen(t *testing.T, dir string, layout Layout, segmentSize uint64) *Store {
	t.Helper()
	s, err := Open(dir, layout, StoreOptions{SegmentSize: segmentSize}, logging.Discard)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustGetValue(t *testing.T, s *Store, key string, want string) {
	t.Helper()
	v, ok, err := s.GetValue([]byte(key))
	if err != nil {
		t.Fatalf("get_value(%q): %v", key, err)
	}
	if !ok {
		t.Fatalf("get_value(%q): not found, want %q", key, want)
	}
	if string(v) != want {
		t.Fatalf("get_value(%q) = %q, want %q", key, v, want)
	}
}

// Scenario 1: memtable-only read.
func TestMemtableOnlyRead(t *testing.T) {
	s := open(t, NewPlainLayout(), 10)
	if err := s.Commit([]Entry{{Key: []byte("key"), Value: []byte("value")}}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	mustGetValue(t, s, "key", "value")
}

// Scenario 2: flush and reopen.
func TestFlushAndReopen(t *testing.T) {
	dir := t.TempDir()
	layout := NewPlainLayout()

	s, err := Open(dir, layout, StoreOptions{SegmentSize: 2}, logging.Discard)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Commit([]Entry{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2 := reopen(t, dir, layout, 2)
	mustGetValue(t, s2, "a", "1")
	mustGetValue(t, s2, "b", "2")
}

// Scenario 3: newer-wins across segments.
func TestNewerWinsAcrossSegments(t *testing.T) {
	s := open(t, NewPlainLayout(), 1)
	if err := s.Commit([]Entry{{Key: []byte("k"), Value: []byte("old")}}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := s.Commit([]Entry{{Key: []byte("k"), Value: []byte("new")}}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	mustGetValue(t, s, "k", "new")
	if err := s.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	mustGetValue(t, s, "k", "new")
}

// Scenario 4: Range dedup across generations.
func TestRangeDedupAcrossGenerations(t *testing.T) {
	s := open(t, NewRangeLayout(), 2)
	if err := s.Commit([]Entry{
		{Key: []byte("k1"), Value: []byte("v1")},
		{Key: []byte("k2"), Value: []byte("v1")},
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := s.Commit([]Entry{{Key: []byte("k3"), Value: []byte("v1")}}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	keys, err := s.GetKeysForValue([]byte("v1"))
	if err != nil {
		t.Fatalf("get_keys_for_value: %v", err)
	}
	got := make([]string, len(keys))
	for i, k := range keys {
		got[i] = string(k)
	}
	want := []string{"k1", "k2", "k3"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

// Scenario 5: multi-way merge preserves newest.
func TestMultiWayMergePreservesNewest(t *testing.T) {
	s := open(t, NewPlainLayout(), 1)
	if err := s.Commit([]Entry{{Key: []byte("k"), Value: []byte("old")}}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := s.Commit([]Entry{{Key: []byte("k"), Value: []byte("new")}}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if n := s.columns[0].SegmentCount(); n < 2 {
		t.Fatalf("expected >= 2 segments before merge, got %d", n)
	}
	if err := s.MultiWayMerge(); err != nil {
		t.Fatalf("multi_way_merge: %v", err)
	}
	if n := s.columns[0].SegmentCount(); n != 1 {
		t.Fatalf("expected exactly 1 segment after merge, got %d", n)
	}
	mustGetValue(t, s, "k", "new")
}

// Scenario 6: Dictionary interning.
func TestDictionaryInterning(t *testing.T) {
	s := open(t, NewDictionaryLayout(), 10)
	if err := s.Commit([]Entry{
		{Key: []byte("k1"), Value: []byte("v")},
		{Key: []byte("k2"), Value: []byte("v")},
		{Key: []byte("k3"), Value: []byte("v")},
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	pk, ok, err := s.get(s.layout.v2pkCol, []byte("v"))
	if err != nil {
		t.Fatalf("lookup birth key: %v", err)
	}
	if !ok || string(pk) != "k1" {
		t.Fatalf("birth key = %q, ok=%v, want k1", pk, ok)
	}

	keys, err := s.GetKeysForValue([]byte("v"))
	if err != nil {
		t.Fatalf("get_keys_for_value: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("got %d keys, want 3", len(keys))
	}
	want := []string{"k1", "k2", "k3"}
	for i, k := range keys {
		if string(k) != want[i] {
			t.Fatalf("keys[%d] = %q, want %q", i, k, want[i])
		}
	}

	for _, k := range want {
		mustGetValue(t, s, k, "v")
	}
}

func TestUniqueIndexReverseLookup(t *testing.T) {
	s := open(t, NewUniqueIndexLayout(), 10)
	if err := s.Commit([]Entry{{Key: []byte("k"), Value: []byte("v")}}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	k, ok, err := s.GetKeyForValue([]byte("v"))
	if err != nil {
		t.Fatalf("get_key_for_value: %v", err)
	}
	if !ok || string(k) != "k" {
		t.Fatalf("get_key_for_value = %q, ok=%v, want k", k, ok)
	}
}

func TestGetKeyForValueInvalidOnPlain(t *testing.T) {
	s := open(t, NewPlainLayout(), 10)
	_, _, err := s.GetKeyForValue([]byte("v"))
	if err == nil {
		t.Fatal("expected InvalidInput error on Plain layout")
	}
	var serr *StoreError
	if !asStoreError(err, &serr) || serr.Kind != InvalidInput {
		t.Fatalf("got %v, want InvalidInput StoreError", err)
	}
}

func TestOpenRejectsZeroSegmentSize(t *testing.T) {
	_, err := Open(t.TempDir(), NewPlainLayout(), StoreOptions{SegmentSize: 0}, logging.Discard)
	if err == nil {
		t.Fatal("expected error for segment_size == 0")
	}
}

func asStoreError(err error, target **StoreError) bool {
	se, ok := err.(*StoreError)
	if !ok {
		return false
	}
	*target = se
	return true
}
