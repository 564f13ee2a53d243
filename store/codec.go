package store

import "encoding/binary"

// Codec lifts a Go type to and from the byte-level engine. Decode must
// return an error classifiable as InvalidInput on malformed input; both
// methods must be pure and stateless.
type Codec[T any] interface {
	Encode(T) []byte
	Decode([]byte) (T, error)
}

// BytesCodec is the identity codec: Encode/Decode perform no conversion.
type BytesCodec struct{}

func (BytesCodec) Encode(v []byte) []byte { return v }
func (BytesCodec) Decode(b []byte) ([]byte, error) {
	return append([]byte(nil), b...), nil
}

// StringCodec encodes strings as their UTF-8 bytes.
type StringCodec struct{}

func (StringCodec) Encode(v string) []byte { return []byte(v) }
func (StringCodec) Decode(b []byte) (string, error) {
	return string(b), nil
}

// Uint64Codec encodes uint64 values big-endian, so that byte-order
// comparison (used by Range and Dictionary prefix scans) agrees with
// numeric order.
type Uint64Codec struct{}

func (Uint64Codec) Encode(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func (Uint64Codec) Decode(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, newErr(InvalidInput, "decode", errInvalidOption("uint64 codec requires 8 bytes"))
	}
	return binary.BigEndian.Uint64(b), nil
}

// KV is one typed key/value pair for a batched TypedStore.Commit.
type KV[K, V any] struct {
	Key   K
	Value V
}

// TypedStore wraps a byte-level Store with a Codec pair, giving callers
// a generic Store[K,V] surface over Commit/GetValue/GetKeyForValue/
// GetKeysForValue instead of raw []byte keys and values.
type TypedStore[K, V any] struct {
	inner *Store
	kc    Codec[K]
	vc    Codec[V]
}

// NewTypedStore wraps inner with codecs kc and vc.
func NewTypedStore[K, V any](inner *Store, kc Codec[K], vc Codec[V]) *TypedStore[K, V] {
	return &TypedStore[K, V]{inner: inner, kc: kc, vc: vc}
}

// Commit encodes and writes every pair in items.
func (t *TypedStore[K, V]) Commit(items []KV[K, V]) error {
	entries := make([]Entry, len(items))
	for i, item := range items {
		entries[i] = Entry{Key: t.kc.Encode(item.Key), Value: t.vc.Encode(item.Value)}
	}
	return t.inner.Commit(entries)
}

// GetValue decodes and returns the value bound to key.
func (t *TypedStore[K, V]) GetValue(key K) (V, bool, error) {
	var zero V
	raw, ok, err := t.inner.GetValue(t.kc.Encode(key))
	if err != nil || !ok {
		return zero, ok, err
	}
	v, err := t.vc.Decode(raw)
	if err != nil {
		return zero, false, newErr(InvalidInput, "get_value", err)
	}
	return v, true, nil
}

// GetKeyForValue decodes and returns the key bound to value (UniqueIndex only).
func (t *TypedStore[K, V]) GetKeyForValue(value V) (K, bool, error) {
	var zero K
	raw, ok, err := t.inner.GetKeyForValue(t.vc.Encode(value))
	if err != nil || !ok {
		return zero, ok, err
	}
	k, err := t.kc.Decode(raw)
	if err != nil {
		return zero, false, newErr(InvalidInput, "get_key_for_value", err)
	}
	return k, true, nil
}

// GetKeysForValue decodes and returns every key bound to value (Range,
// Dictionary only).
func (t *TypedStore[K, V]) GetKeysForValue(value V) ([]K, error) {
	raws, err := t.inner.GetKeysForValue(t.vc.Encode(value))
	if err != nil {
		return nil, err
	}
	keys := make([]K, len(raws))
	for i, raw := range raws {
		k, err := t.kc.Decode(raw)
		if err != nil {
			return nil, newErr(InvalidInput, "get_keys_for_value", err)
		}
		keys[i] = k
	}
	return keys, nil
}

// Flush delegates to the underlying Store.
func (t *TypedStore[K, V]) Flush() error { return t.inner.Flush() }

// MultiWayMerge delegates to the underlying Store.
func (t *TypedStore[K, V]) MultiWayMerge() error { return t.inner.MultiWayMerge() }

// SetProgress delegates to the underlying Store.
func (t *TypedStore[K, V]) SetProgress(label string, total uint64) { t.inner.SetProgress(label, total) }

// Close delegates to the underlying Store.
func (t *TypedStore[K, V]) Close() error { return t.inner.Close() }
