// Package options parses the flat key=value config file cmd/fstbench and
// other callers may use to configure a Store, in place of passing every
// knob as a flag.
package options

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ParsedOptions holds the scalar knobs a Store or cmd/fstbench may read
// from a config file. Zero values mean "not set"; callers apply their own
// defaults.
type ParsedOptions struct {
	SegmentSize    uint64
	Compression    string
	MergeThreshold int
	ApproxRows     uint64
	AvgKVBytes     uint64
	MemBudgetBytes uint64
}

// ReadFile reads and parses a config file from r.
func ReadFile(r io.Reader) (*ParsedOptions, error) {
	out := &ParsedOptions{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("options: line %d: missing '=': %q", lineNo, line)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		var err error
		switch key {
		case "segment_size":
			out.SegmentSize, err = parseUint(value)
		case "compression":
			out.Compression = value
		case "merge_threshold":
			var n uint64
			n, err = parseUint(value)
			out.MergeThreshold = int(n)
		case "approx_rows":
			out.ApproxRows, err = parseUint(value)
		case "avg_kv_bytes":
			out.AvgKVBytes, err = parseUint(value)
		case "mem_budget_bytes":
			out.MemBudgetBytes, err = parseUint(value)
		default:
			return nil, fmt.Errorf("options: line %d: unknown key %q", lineNo, key)
		}
		if err != nil {
			return nil, fmt.Errorf("options: line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func parseUint(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}
