package column

import (
	"testing"

	"github.com/chaindex/fstkv/internal/compression"
	"github.com/chaindex/fstkv/internal/logging"
)

func openColumn(t *testing.T, segmentSize int) *Column {
	t.Helper()
	dir := t.TempDir()
	c, err := Open(dir, 0, segmentSize, compression.NoCompression, logging.Discard)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestInsertAndGetFromMemtable(t *testing.T) {
	c := openColumn(t, 10)
	if _, err := c.Insert([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	v, ok, err := c.Get([]byte("k"))
	if err != nil || !ok || string(v) != "v" {
		t.Fatalf("get = %q, ok=%v, err=%v", v, ok, err)
	}
}

func TestInsertTriggersFlushAtThreshold(t *testing.T) {
	c := openColumn(t, 2)
	flushed, err := c.Insert([]byte("a"), []byte("1"))
	if err != nil || flushed {
		t.Fatalf("first insert: flushed=%v err=%v", flushed, err)
	}
	flushed, err = c.Insert([]byte("b"), []byte("2"))
	if err != nil || !flushed {
		t.Fatalf("second insert: flushed=%v err=%v, want true", flushed, err)
	}
	if c.SegmentCount() != 1 {
		t.Fatalf("segment count = %d, want 1", c.SegmentCount())
	}
}

func TestGetPrefersNewestSegment(t *testing.T) {
	c := openColumn(t, 1)
	if _, err := c.Insert([]byte("k"), []byte("old")); err != nil {
		t.Fatalf("insert old: %v", err)
	}
	if _, err := c.Insert([]byte("k"), []byte("new")); err != nil {
		t.Fatalf("insert new: %v", err)
	}
	v, ok, err := c.Get([]byte("k"))
	if err != nil || !ok || string(v) != "new" {
		t.Fatalf("get = %q, ok=%v, err=%v, want new", v, ok, err)
	}
}

func TestKeysWithPrefixDedupsAcrossGenerations(t *testing.T) {
	c := openColumn(t, 1)
	if _, err := c.Insert([]byte("apple"), []byte("1")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := c.Insert([]byte("apricot"), []byte("2")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := c.Insert([]byte("apple"), []byte("3")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	keys, err := c.KeysWithPrefix([]byte("ap"))
	if err != nil {
		t.Fatalf("keys with prefix: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("got %d keys, want 2: %v", len(keys), keys)
	}
	if string(keys[0]) != "apple" || string(keys[1]) != "apricot" {
		t.Fatalf("got %v, want [apple apricot]", keys)
	}
}

func TestSnapshotForMergeRespectsThresholdAndMergingFlag(t *testing.T) {
	c := openColumn(t, 1)
	if _, err := c.Insert([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	_, ok, err := c.SnapshotForMerge(2)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if ok {
		t.Fatal("expected snapshot to decline below threshold")
	}

	if _, err := c.Insert([]byte("b"), []byte("2")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	snap, ok, err := c.SnapshotForMerge(2)
	if err != nil || !ok {
		t.Fatalf("snapshot: ok=%v err=%v", ok, err)
	}
	if len(snap.Inputs) != 2 {
		t.Fatalf("snapshot inputs = %d, want 2", len(snap.Inputs))
	}

	if _, ok, err := c.SnapshotForMerge(2); err != nil || ok {
		t.Fatalf("expected second snapshot to decline while merging: ok=%v err=%v", ok, err)
	}

	if err := c.Merge(snap); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if c.SegmentCount() != 1 {
		t.Fatalf("segment count after merge = %d, want 1", c.SegmentCount())
	}
	v, ok, err := c.Get([]byte("a"))
	if err != nil || !ok || string(v) != "1" {
		t.Fatalf("get(a) after merge = %q, ok=%v, err=%v", v, ok, err)
	}
}

func TestRecoversSegmentsOnReopen(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir, 0, 1, compression.NoCompression, logging.Discard)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := c.Insert([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	c2, err := Open(dir, 0, 1, compression.NoCompression, logging.Discard)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c2.Close()

	if c2.SegmentCount() != 1 {
		t.Fatalf("segment count after reopen = %d, want 1", c2.SegmentCount())
	}
	v, ok, err := c2.Get([]byte("a"))
	if err != nil || !ok || string(v) != "1" {
		t.Fatalf("get(a) after reopen = %q, ok=%v, err=%v", v, ok, err)
	}
}
