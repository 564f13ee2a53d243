// Command fstbench drives the four FST-engine layouts (Plain, UniqueIndex,
// Range, Dictionary) with synthetic values (counters, random hashes, and
// for Dictionary a stream of address-like values), batching commits and
// reporting throughput per layout.
//
// Usage:
//
//	fstbench --dir=<path> --total=N [--mem-mb=M] [--benches=fst] [--config=PATH]
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chaindex/fstkv/internal/compression"
	"github.com/chaindex/fstkv/internal/logging"
	"github.com/chaindex/fstkv/internal/options"
	"github.com/chaindex/fstkv/store"
)

const batchSize = 20_000

var (
	dirFlag     = flag.String("dir", "", "Base directory for benchmark stores (required)")
	totalFlag   = flag.Uint64("total", 1_000_000, "Number of rows to commit per layout")
	memMBFlag   = flag.Uint64("mem-mb", 256, "Memtable budget in MiB, used to derive segment size")
	benchesFlag = flag.String("benches", "fst", "Comma-separated backend list; only 'fst' is implemented here")
	configFlag  = flag.String("config", "", "Optional key=value config file overriding --total/--mem-mb derived sizing")
	verbose     = flag.Bool("v", false, "Verbose logging")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fstbench:", err)
		os.Exit(1)
	}
}

func run() error {
	if *dirFlag == "" {
		return fmt.Errorf("--dir is required")
	}
	if err := checkBenches(*benchesFlag); err != nil {
		return err
	}

	level := logging.LevelInfo
	if *verbose {
		level = logging.LevelDebug
	}
	log := logging.NewDefaultLogger(level)

	opts, err := loadOptions(*configFlag, *totalFlag, *memMBFlag)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	for _, layout := range []struct {
		name   string
		layout store.Layout
		run    func(*store.Store, uint64, string) error
	}{
		{"plain", store.NewPlainLayout(), runPlain},
		{"unique_index", store.NewUniqueIndexLayout(), runUniqueIndex},
		{"range", store.NewRangeLayout(), runRange},
		{"dictionary", store.NewDictionaryLayout(), runDictionary},
	} {
		path := filepath.Join(*dirFlag, layout.name)
		s, err := store.Open(path, layout.layout, opts, log)
		if err != nil {
			return fmt.Errorf("%s: open: %w", layout.name, err)
		}
		s.SetProgress(layout.name, *totalFlag)

		start := time.Now()
		if err := layout.run(s, *totalFlag, layout.name); err != nil {
			_ = s.Close()
			return fmt.Errorf("%s: %w", layout.name, err)
		}
		if err := s.Flush(); err != nil {
			_ = s.Close()
			return fmt.Errorf("%s: flush: %w", layout.name, err)
		}
		elapsed := time.Since(start)
		if err := s.Close(); err != nil {
			return fmt.Errorf("%s: close: %w", layout.name, err)
		}
		log.Infof(logging.NSStore+"%s: %d rows in %s (~%.1f rows/s)",
			layout.name, *totalFlag, elapsed, float64(*totalFlag)/elapsed.Seconds())
	}
	return nil
}

// loadOptions derives a Store's options from --total/--mem-mb, then, if
// configPath is set, overrides them with whatever the config file sets.
// Estimate fields (approx_rows, avg_kv_bytes, mem_budget_bytes) feed
// FromEstimates; segment_size, compression, and merge_threshold override
// the result directly when present.
func loadOptions(configPath string, total, memMB uint64) (store.StoreOptions, error) {
	if configPath == "" {
		return store.FromEstimates(total, 64, memMB*1024*1024), nil
	}

	f, err := os.Open(configPath)
	if err != nil {
		return store.StoreOptions{}, err
	}
	defer func() { _ = f.Close() }()

	parsed, err := options.ReadFile(f)
	if err != nil {
		return store.StoreOptions{}, fmt.Errorf("parse %s: %w", configPath, err)
	}

	approxRows := parsed.ApproxRows
	if approxRows == 0 {
		approxRows = total
	}
	avgKVBytes := parsed.AvgKVBytes
	if avgKVBytes == 0 {
		avgKVBytes = 64
	}
	memBudgetBytes := parsed.MemBudgetBytes
	if memBudgetBytes == 0 {
		memBudgetBytes = memMB * 1024 * 1024
	}

	opts := store.FromEstimates(approxRows, avgKVBytes, memBudgetBytes)
	if parsed.SegmentSize > 0 {
		opts.SegmentSize = parsed.SegmentSize
	}
	if parsed.MergeThreshold > 0 {
		opts.MergeThreshold = parsed.MergeThreshold
	}
	if parsed.Compression != "" {
		ctype, err := parseCompression(parsed.Compression)
		if err != nil {
			return store.StoreOptions{}, err
		}
		opts.Compression = ctype
	}
	return opts, nil
}

func parseCompression(name string) (compression.Type, error) {
	switch strings.ToLower(name) {
	case "none":
		return compression.NoCompression, nil
	case "snappy":
		return compression.SnappyCompression, nil
	case "lz4":
		return compression.LZ4Compression, nil
	case "zstd":
		return compression.ZstdCompression, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

func checkBenches(csv string) error {
	for _, name := range splitCSV(csv) {
		if name != "fst" {
			fmt.Fprintf(os.Stderr, "fstbench: backend %q is not part of this build, skipping\n", name)
		}
	}
	return nil
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func makeKey(i uint64) []byte {
	b := make([]byte, 8)
	for j := 7; j >= 0; j-- {
		b[j] = byte(i)
		i >>= 8
	}
	return b
}

// randomAddress returns a 20-byte pseudo-address, standing in for a
// base58/bech32-encoded address stream.
func randomAddress(rng *rand.Rand) []byte {
	b := make([]byte, 20)
	_, _ = rng.Read(b)
	return b
}

func runPlain(s *store.Store, total uint64, label string) error {
	batch := make([]store.Entry, 0, batchSize)
	for i := uint64(0); i < total; i++ {
		v := make([]byte, 8)
		n := i
		for j := 7; j >= 0; j-- {
			v[j] = byte(n)
			n >>= 8
		}
		batch = append(batch, store.Entry{Key: makeKey(i), Value: v})
		if len(batch) >= batchSize {
			if err := s.Commit(batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		return s.Commit(batch)
	}
	return nil
}

func runUniqueIndex(s *store.Store, total uint64, label string) error {
	rng := rand.New(rand.NewSource(1))
	batch := make([]store.Entry, 0, batchSize)
	for i := uint64(0); i < total; i++ {
		h := make([]byte, 32)
		_, _ = rng.Read(h)
		batch = append(batch, store.Entry{Key: makeKey(i), Value: h})
		if len(batch) >= batchSize {
			if err := s.Commit(batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		return s.Commit(batch)
	}
	return nil
}

func runRange(s *store.Store, total uint64, label string) error {
	batch := make([]store.Entry, 0, batchSize)
	for i := uint64(0); i < total; i++ {
		ts := make([]byte, 8)
		n := i
		for j := 7; j >= 0; j-- {
			ts[j] = byte(n)
			n >>= 8
		}
		batch = append(batch, store.Entry{Key: makeKey(i), Value: ts})
		if len(batch) >= batchSize {
			if err := s.Commit(batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		return s.Commit(batch)
	}
	return nil
}

func runDictionary(s *store.Store, total uint64, label string) error {
	rng := rand.New(rand.NewSource(2))
	batch := make([]store.Entry, 0, batchSize)
	var sampled []byte
	for i := uint64(0); i < total; i++ {
		addr := randomAddress(rng)
		if i%5 == 0 {
			sampled = addr
		}
		batch = append(batch, store.Entry{Key: makeKey(i), Value: addr})
		if len(batch) >= batchSize {
			if err := s.Commit(batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := s.Commit(batch); err != nil {
			return err
		}
	}
	if sampled != nil {
		if _, err := s.GetKeysForValue(sampled); err != nil {
			return err
		}
	}
	return nil
}
