// Package memtable implements the sorted in-memory buffer behind a column:
// a byte-key to byte-value map where insertion overwrites, iteration is
// ascending, and range scans are bounded by a half-open byte interval.
//
// The backing structure is a skip list: lock-free reads, writes require
// external synchronization (the column's write lock already provides
// this — see column.Column).
package memtable

import (
	"bytes"
	"math/rand"
	"sync/atomic"
)

const (
	// DefaultMaxHeight is the default maximum height for skip list nodes.
	DefaultMaxHeight = 12

	// DefaultBranchingFactor is the default branching factor.
	// On average, 1/branchingFactor nodes will be promoted to the next level.
	DefaultBranchingFactor = 4
)

// Comparator compares two keys and returns negative/zero/positive the way
// bytes.Compare does.
type Comparator func(a, b []byte) int

// BytewiseComparator is the default comparator using bytes.Compare.
func BytewiseComparator(a, b []byte) int {
	return bytes.Compare(a, b)
}

// skipNode represents a node in the skip list, holding one key/value pair.
type skipNode struct {
	key   []byte
	value atomic.Pointer[[]byte]
	next  []*atomic.Pointer[skipNode]
}

func newSkipNode(key []byte, value []byte, height int) *skipNode {
	node := &skipNode{
		key:  key,
		next: make([]*atomic.Pointer[skipNode], height),
	}
	node.value.Store(&value)
	for i := range node.next {
		node.next[i] = &atomic.Pointer[skipNode]{}
	}
	return node
}

func (n *skipNode) getNext(level int) *skipNode {
	return n.next[level].Load()
}

func (n *skipNode) setNext(level int, node *skipNode) {
	n.next[level].Store(node)
}

// Memtable is a lock-free-for-reads skip list mapping byte keys to byte
// values, with insertion-replaces semantics.
type Memtable struct {
	head      *skipNode
	maxHeight int32
	compare   Comparator
	rng       *rand.Rand

	kMaxHeight  int
	kScaledInvB uint32

	count int64
}

// New creates an empty Memtable using cmp, or BytewiseComparator if cmp is nil.
func New(cmp Comparator) *Memtable {
	if cmp == nil {
		cmp = BytewiseComparator
	}
	return &Memtable{
		head:        newSkipNode(nil, nil, DefaultMaxHeight),
		maxHeight:   1,
		compare:     cmp,
		rng:         rand.New(rand.NewSource(0xDEADBEEF)),
		kMaxHeight:  DefaultMaxHeight,
		kScaledInvB: uint32(0xFFFFFFFF) / uint32(DefaultBranchingFactor),
	}
}

// Put inserts or overwrites the value for key.
// REQUIRES external synchronization with any concurrent Put.
func (m *Memtable) Put(key, value []byte) {
	prev := make([]*skipNode, m.kMaxHeight)
	x := m.findGreaterOrEqual(key, prev)
	if x != nil && m.compare(key, x.key) == 0 {
		x.value.Store(&value)
		return
	}

	height := m.randomHeight()
	maxH := int(atomic.LoadInt32(&m.maxHeight))
	if height > maxH {
		for i := maxH; i < height; i++ {
			prev[i] = m.head
		}
		atomic.StoreInt32(&m.maxHeight, int32(height))
	}

	node := newSkipNode(key, value, height)
	for i := range height {
		node.setNext(i, prev[i].getNext(i))
		prev[i].setNext(i, node)
	}
	atomic.AddInt64(&m.count, 1)
}

// Get returns the value for key and whether it was present.
func (m *Memtable) Get(key []byte) ([]byte, bool) {
	x := m.findGreaterOrEqual(key, nil)
	if x != nil && m.compare(key, x.key) == 0 {
		v := x.value.Load()
		return *v, true
	}
	return nil, false
}

// Len returns the number of distinct keys currently stored.
func (m *Memtable) Len() int {
	return int(atomic.LoadInt64(&m.count))
}

// All visits every key/value pair in ascending key order.
func (m *Memtable) All(visit func(key, value []byte)) {
	for n := m.head.getNext(0); n != nil; n = n.getNext(0) {
		v := n.value.Load()
		visit(n.key, *v)
	}
}

// Range visits key/value pairs with key >= lo and (key < hi, or all
// remaining keys if hi is nil), in ascending order, stopping early if
// visit returns false.
func (m *Memtable) Range(lo, hi []byte, visit func(key, value []byte) bool) {
	n := m.findGreaterOrEqual(lo, nil)
	for n != nil {
		if hi != nil && m.compare(n.key, hi) >= 0 {
			return
		}
		v := n.value.Load()
		if !visit(n.key, *v) {
			return
		}
		n = n.getNext(0)
	}
}

func (m *Memtable) findGreaterOrEqual(key []byte, prev []*skipNode) *skipNode {
	x := m.head
	level := int(atomic.LoadInt32(&m.maxHeight)) - 1
	for {
		next := x.getNext(level)
		if next != nil && m.compare(key, next.key) > 0 {
			x = next
		} else {
			if prev != nil {
				prev[level] = x
			}
			if level == 0 {
				return next
			}
			level--
		}
	}
}

func (m *Memtable) randomHeight() int {
	height := 1
	for height < m.kMaxHeight {
		if m.rng.Uint32() < m.kScaledInvB {
			height++
		} else {
			break
		}
	}
	return height
}
