// Package progress reports ingestion throughput for long-running loads,
// rate-limited so it doesn't flood output on fast hardware: track a
// running count against a known total, and only log when at least 5
// seconds have passed since the last log line.
package progress

import (
	"time"

	"github.com/chaindex/fstkv/internal/logging"
)

const reportInterval = 5 * time.Second

// Tracker accumulates an inserted-row count against a known total and logs
// throughput at most once per reportInterval.
type Tracker struct {
	label     string
	total     uint64
	log       logging.Logger
	inserted  uint64
	start     time.Time
	lastSince time.Time
}

// New returns a Tracker for a run labeled label expected to insert total
// rows, logging through log (use logging.Discard to silence it).
func New(label string, total uint64, log logging.Logger) *Tracker {
	now := time.Now()
	return &Tracker{
		label:     label,
		total:     total,
		log:       logging.OrDefault(log),
		start:     now,
		lastSince: now,
	}
}

// Record advances the tracker by n inserted rows and logs a progress line
// if enough time has elapsed since the last one.
func (t *Tracker) Record(n uint64) {
	t.inserted += n
	now := time.Now()
	if now.Sub(t.lastSince) < reportInterval {
		return
	}
	t.lastSince = now
	t.log.Infof(logging.NSStore+"%s: progress %d/%d (~%.1f rows/s)",
		t.label, t.inserted, t.total, t.rate(now))
}

// Finish logs a final summary line regardless of the rate limit.
func (t *Tracker) Finish() {
	now := time.Now()
	t.log.Infof(logging.NSStore+"%s: done %d/%d (~%.1f rows/s)",
		t.label, t.inserted, t.total, t.rate(now))
}

func (t *Tracker) rate(now time.Time) float64 {
	elapsed := now.Sub(t.start).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(t.inserted) / elapsed
}
