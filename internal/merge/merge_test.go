package merge

import (
	"testing"

	"github.com/chaindex/fstkv/internal/compression"
	"github.com/chaindex/fstkv/internal/segment"
)

func seal(t *testing.T, dir string, id uint64, pairs [][2]string) segment.Meta {
	t.Helper()
	i := 0
	source := func() ([]byte, []byte, bool, error) {
		if i >= len(pairs) {
			return nil, nil, false, nil
		}
		p := pairs[i]
		i++
		return []byte(p[0]), []byte(p[1]), true, nil
	}
	s, err := segment.Seal(dir, 0, id, compression.NoCompression, source)
	if err != nil {
		t.Fatalf("seal segment %d: %v", id, err)
	}
	meta := s.Meta
	if err := s.Close(); err != nil {
		t.Fatalf("close segment %d: %v", id, err)
	}
	return meta
}

func TestMergeNewerWins(t *testing.T) {
	dir := t.TempDir()
	older := seal(t, dir, 0, [][2]string{{"k", "old"}})
	newer := seal(t, dir, 1, [][2]string{{"k", "new"}})

	merged, err := Segments(dir, 0, 2, compression.NoCompression, []segment.Meta{older, newer})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	defer merged.Close()

	if merged.Len() != 1 {
		t.Fatalf("merged.Len() = %d, want 1", merged.Len())
	}
	offset, found, err := merged.Get([]byte("k"))
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	v, err := merged.ReadValue(offset)
	if err != nil || string(v) != "new" {
		t.Fatalf("value = %q, err=%v, want new", v, err)
	}
}

func TestMergeUnionOfDisjointKeys(t *testing.T) {
	dir := t.TempDir()
	a := seal(t, dir, 0, [][2]string{{"a", "1"}, {"c", "3"}})
	b := seal(t, dir, 1, [][2]string{{"b", "2"}, {"d", "4"}})

	merged, err := Segments(dir, 0, 2, compression.NoCompression, []segment.Meta{a, b})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	defer merged.Close()

	if merged.Len() != 4 {
		t.Fatalf("merged.Len() = %d, want 4", merged.Len())
	}
	for _, tc := range []struct{ key, want string }{
		{"a", "1"}, {"b", "2"}, {"c", "3"}, {"d", "4"},
	} {
		offset, found, err := merged.Get([]byte(tc.key))
		if err != nil || !found {
			t.Fatalf("get(%q): found=%v err=%v", tc.key, found, err)
		}
		v, err := merged.ReadValue(offset)
		if err != nil || string(v) != tc.want {
			t.Fatalf("get(%q) = %q, want %q", tc.key, v, tc.want)
		}
	}
}

func TestMergeIdempotentOnSingleSegment(t *testing.T) {
	dir := t.TempDir()
	only := seal(t, dir, 0, [][2]string{{"a", "1"}, {"b", "2"}})

	merged, err := Segments(dir, 0, 1, compression.NoCompression, []segment.Meta{only})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	defer merged.Close()

	if merged.Len() != 2 {
		t.Fatalf("merged.Len() = %d, want 2", merged.Len())
	}
}

func TestMergeThreeWayNewestWins(t *testing.T) {
	dir := t.TempDir()
	s0 := seal(t, dir, 0, [][2]string{{"k", "v0"}})
	s1 := seal(t, dir, 1, [][2]string{{"k", "v1"}})
	s2 := seal(t, dir, 2, [][2]string{{"k", "v2"}})

	merged, err := Segments(dir, 0, 3, compression.NoCompression, []segment.Meta{s0, s1, s2})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	defer merged.Close()

	offset, found, err := merged.Get([]byte("k"))
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	v, err := merged.ReadValue(offset)
	if err != nil || string(v) != "v2" {
		t.Fatalf("value = %q, want v2", v)
	}
}
