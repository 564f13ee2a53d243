package memtable

import "testing"

func TestPutGetOverwrite(t *testing.T) {
	m := New(nil)
	m.Put([]byte("k"), []byte("1"))
	m.Put([]byte("k"), []byte("2"))

	v, ok := m.Get([]byte("k"))
	if !ok || string(v) != "2" {
		t.Fatalf("got %q, ok=%v, want 2", v, ok)
	}
	if m.Len() != 1 {
		t.Fatalf("len = %d, want 1", m.Len())
	}
}

func TestGetMissing(t *testing.T) {
	m := New(nil)
	_, ok := m.Get([]byte("missing"))
	if ok {
		t.Fatal("expected not found")
	}
}

func TestAllAscendingOrder(t *testing.T) {
	m := New(nil)
	for _, k := range []string{"c", "a", "b"} {
		m.Put([]byte(k), []byte(k))
	}
	var got []string
	m.All(func(key, _ []byte) { got = append(got, string(key)) })
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestRangeHalfOpen(t *testing.T) {
	m := New(nil)
	for _, k := range []string{"a", "b", "c", "d"} {
		m.Put([]byte(k), []byte(k))
	}
	var got []string
	m.Range([]byte("b"), []byte("d"), func(key, _ []byte) bool {
		got = append(got, string(key))
		return true
	})
	want := []string{"b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestRangeUnboundedHi(t *testing.T) {
	m := New(nil)
	for _, k := range []string{"a", "b", "c"} {
		m.Put([]byte(k), []byte(k))
	}
	var got []string
	m.Range([]byte("b"), nil, func(key, _ []byte) bool {
		got = append(got, string(key))
		return true
	})
	want := []string{"b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestRangeEarlyStop(t *testing.T) {
	m := New(nil)
	for _, k := range []string{"a", "b", "c", "d"} {
		m.Put([]byte(k), []byte(k))
	}
	var got []string
	m.Range([]byte("a"), nil, func(key, _ []byte) bool {
		got = append(got, string(key))
		return len(got) < 2
	})
	if len(got) != 2 {
		t.Fatalf("got %v, want 2 entries", got)
	}
}
