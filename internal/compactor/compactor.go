// Package compactor runs compaction in the background: a single dedicated
// goroutine drains a mailbox of column-index requests, and for each one
// asks that column to snapshot itself for merge, runs the merge outside
// any lock, and swaps the result back in.
//
// A single loop ranges over the work-request channel, request sends are
// non-blocking so a busy mailbox never stalls the caller, and shutdown
// closes the channel and joins the loop through a WaitGroup.
package compactor

import (
	"fmt"
	"sync"
	"time"

	"github.com/chaindex/fstkv/internal/column"
	"github.com/chaindex/fstkv/internal/logging"
)

// MergeThreshold is the minimum segment count a column must reach before
// a compaction request actually triggers a merge (
// "Snapshot-for-merge").
const MergeThreshold = 4

// Compactor owns the background compaction goroutine for a Store's columns.
type Compactor struct {
	columns   func(index uint8) *column.Column
	threshold int
	log       logging.Logger

	requests chan uint8
	done     sync.WaitGroup
}

// New starts the compaction goroutine. columns resolves a column index to
// its *column.Column (the Store supplies this so the compactor need not
// import the store package). threshold overrides MergeThreshold if
// positive.
func New(columns func(index uint8) *column.Column, threshold int, log logging.Logger) *Compactor {
	if threshold <= 0 {
		threshold = MergeThreshold
	}
	c := &Compactor{
		columns:   columns,
		threshold: threshold,
		log:       logging.OrDefault(log),
		requests:  make(chan uint8, 64),
	}
	c.done.Add(1)
	go c.loop()
	return c
}

// Request asks the compactor to consider column index for merging. The
// send is best-effort: a full mailbox drops the request, which is safe
// because Column.SnapshotForMerge is idempotent (a collapsed duplicate
// request just finds merging already in flight or the threshold already
// handled).
func (c *Compactor) Request(index uint8) {
	select {
	case c.requests <- index:
	default:
	}
}

func (c *Compactor) loop() {
	defer c.done.Done()
	for index := range c.requests {
		c.run(index)
	}
}

func (c *Compactor) run(index uint8) {
	col := c.columns(index)
	if col == nil {
		return
	}

	snap, ok, err := col.SnapshotForMerge(c.threshold)
	if err != nil {
		c.log.Errorf(logging.NSCompact+"column %d: snapshot for merge: %v", index, err)
		return
	}
	if !ok {
		return
	}

	start := time.Now()
	before := len(snap.Inputs)
	if err := col.Merge(snap); err != nil {
		c.log.Errorf(logging.NSCompact+"column %d: merge failed: %v", index, err)
		return
	}
	elapsed := time.Since(start)
	after := col.SegmentCount()
	c.log.Infof(logging.NSCompact+"compaction col %d: segs %d->%d in %s", index, before, after, elapsed)
}

// Close stops accepting requests and waits for the worker to finish
// before returning: requests already queued in the mailbox are still
// processed, and any in-flight merge completes.
func (c *Compactor) Close() error {
	close(c.requests)
	c.done.Wait()
	return nil
}

// Drive runs compaction synchronously for column index, bypassing the
// mailbox — used by Store.MultiWayMerge to force a full compaction pass.
func (c *Compactor) Drive(index uint8, threshold int) error {
	col := c.columns(index)
	if col == nil {
		return fmt.Errorf("compactor: unknown column %d", index)
	}
	for {
		snap, ok, err := col.SnapshotForMerge(threshold)
		if err != nil {
			return fmt.Errorf("column %d: snapshot for merge: %w", index, err)
		}
		if !ok {
			// Declined either because the column is below threshold or
			// because a background merge holds it; wait out the latter.
			if n := col.SegmentCount(); n <= 1 || n < threshold {
				return nil
			}
			time.Sleep(time.Millisecond)
			continue
		}
		if err := col.Merge(snap); err != nil {
			return fmt.Errorf("column %d: merge: %w", index, err)
		}
		if col.SegmentCount() <= 1 {
			return nil
		}
	}
}
