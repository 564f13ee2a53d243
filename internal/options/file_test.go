package options

import (
	"strings"
	"testing"
)

func TestReadFileParsesKnownKeys(t *testing.T) {
	input := `
# a comment
segment_size = 500000
compression=zstd
merge_threshold = 4

approx_rows=10000000
avg_kv_bytes=64
mem_budget_bytes=2147483648
`
	got, err := ReadFile(strings.NewReader(input))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if got.SegmentSize != 500000 || got.Compression != "zstd" || got.MergeThreshold != 4 {
		t.Fatalf("got %+v", got)
	}
	if got.ApproxRows != 10000000 || got.AvgKVBytes != 64 || got.MemBudgetBytes != 2147483648 {
		t.Fatalf("got %+v", got)
	}
}

func TestReadFileRejectsUnknownKey(t *testing.T) {
	_, err := ReadFile(strings.NewReader("bogus_key=1"))
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestReadFileRejectsMalformedLine(t *testing.T) {
	_, err := ReadFile(strings.NewReader("not a key value line"))
	if err == nil {
		t.Fatal("expected error for malformed line")
	}
}
