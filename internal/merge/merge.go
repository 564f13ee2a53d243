// Package merge implements the multi-way merge of a column's segments into
// one, preserving newer-wins semantics.
//
// A compaction job picks inputs, runs them through a min-heap keyed on
// (key, reverse(segment id)) so that, among duplicate keys, the newest
// segment's entry is always popped first, and produces one output.
package merge

import (
	"bytes"
	"container/heap"
	"fmt"

	"github.com/chaindex/fstkv/internal/compression"
	"github.com/chaindex/fstkv/internal/segment"
)

// Segments merges the ordered (oldest-to-newest) input segments into one
// new segment with id newID under dir for column col, then returns it.
// The merger is pure: it does not touch the column's in-memory state, and
// it never deletes the input files — that is the caller's job, after it has
// safely swapped the merged segment into the column.
func Segments(dir string, col uint8, newID uint64, ctype compression.Type, inputs []segment.Meta) (*segment.Segment, error) {
	opened := make([]*segment.Segment, 0, len(inputs))
	defer func() {
		for _, s := range opened {
			_ = s.Close()
		}
	}()
	for _, meta := range inputs {
		s, err := segment.Open(meta)
		if err != nil {
			return nil, fmt.Errorf("merge: open input segment %d: %w", meta.ID, err)
		}
		opened = append(opened, s)
	}

	cursors := make([]*segment.Cursor, len(opened))
	h := &mergeHeap{}
	heap.Init(h)
	for idx, s := range opened {
		c, err := segment.NewCursor(s)
		if err != nil {
			return nil, fmt.Errorf("merge: cursor for segment %d: %w", s.ID, err)
		}
		cursors[idx] = c
		if c.Valid() {
			heap.Push(h, &heapItem{key: c.Key(), offset: c.Offset(), segID: s.ID, srcIdx: idx})
		}
	}
	defer func() {
		for _, c := range cursors {
			_ = c.Close()
		}
	}()

	var lastEmitted []byte
	haveLast := false

	source := func() ([]byte, []byte, bool, error) {
		for h.Len() > 0 {
			item := heap.Pop(h).(*heapItem)
			c := cursors[item.srcIdx]
			dup := haveLast && bytes.Equal(item.key, lastEmitted)

			var value []byte
			var err error
			if !dup {
				value, err = opened[item.srcIdx].ReadValue(item.offset)
				if err != nil {
					return nil, nil, false, fmt.Errorf("merge: read value from segment %d: %w", opened[item.srcIdx].ID, err)
				}
			}

			more, err := c.Next()
			if err != nil {
				return nil, nil, false, fmt.Errorf("merge: advance segment %d: %w", opened[item.srcIdx].ID, err)
			}
			if more {
				heap.Push(h, &heapItem{key: c.Key(), offset: c.Offset(), segID: opened[item.srcIdx].ID, srcIdx: item.srcIdx})
			}

			if dup {
				continue
			}
			lastEmitted = item.key
			haveLast = true
			return item.key, value, true, nil
		}
		return nil, nil, false, nil
	}

	return segment.Seal(dir, col, newID, ctype, source)
}

// heapItem is one (key, source) candidate in the merge frontier.
type heapItem struct {
	key    []byte
	offset uint64
	segID  uint64
	srcIdx int
}

// mergeHeap is a min-heap ordered by key ascending, then by segment id
// descending — so that among equal keys the newest segment's entry sorts
// first and is popped before any older duplicate.
type mergeHeap []*heapItem

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	if c := bytes.Compare(h[i].key, h[j].key); c != 0 {
		return c < 0
	}
	return h[i].segID > h[j].segID
}
func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)   { *h = append(*h, x.(*heapItem)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
