package compression

import "testing"

func TestRoundTripAllTypes(t *testing.T) {
	var data []byte
	for range 64 {
		data = append(data, []byte("the quick brown fox jumps over the lazy dog. ")...)
	}
	for _, ctype := range []Type{NoCompression, SnappyCompression, LZ4Compression, ZstdCompression} {
		t.Run(ctype.String(), func(t *testing.T) {
			compressed, err := Compress(ctype, data)
			if err != nil {
				t.Fatalf("compress: %v", err)
			}
			got, err := Decompress(ctype, compressed, len(data))
			if err != nil {
				t.Fatalf("decompress: %v", err)
			}
			if string(got) != string(data) {
				t.Fatalf("round trip mismatch: got %q, want %q", got, data)
			}
		})
	}
}

func TestIsSupported(t *testing.T) {
	for _, ctype := range []Type{NoCompression, SnappyCompression, LZ4Compression, ZstdCompression} {
		if !ctype.IsSupported() {
			t.Fatalf("%s should be supported", ctype)
		}
	}
	if Type(0xFF).IsSupported() {
		t.Fatal("unknown type should not be supported")
	}
}
