package segment

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ErrOrphan is wrapped into the error returned by Discover when a .fst file
// has no matching .val file.
type ErrOrphan struct {
	FileName string
}

func (e *ErrOrphan) Error() string {
	return fmt.Sprintf("missing values file for %s", e.FileName)
}

// Discover enumerates col{col}_seg*.fst files under dir, parses their
// segment ids, verifies each has a matching .val file, and returns their
// Meta sorted by id ascending.
func Discover(dir string, col uint8) ([]Meta, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	prefix := fmt.Sprintf("col%d_seg", col)
	var metas []Meta
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".fst") {
			continue
		}
		idPart := name[len(prefix) : len(name)-len(".fst")]
		id, err := strconv.ParseUint(idPart, 10, 64)
		if err != nil {
			continue
		}
		fstPath := filepath.Join(dir, name)
		valuesPath := filepath.Join(dir, fmt.Sprintf("%s%s.val", prefix, idPart))
		if _, err := os.Stat(valuesPath); err != nil {
			return nil, &ErrOrphan{FileName: name}
		}
		metas = append(metas, Meta{ID: id, FSTPath: fstPath, ValuesPath: valuesPath})
	}

	sort.Slice(metas, func(i, j int) bool { return metas[i].ID < metas[j].ID })
	return metas, nil
}

// Delete removes a segment's files. Deletions are best-effort: the caller
// logs failures but does not treat them as fatal.
func Delete(meta Meta) (fstErr, valErr error) {
	fstErr = os.Remove(meta.FSTPath)
	valErr = os.Remove(meta.ValuesPath)
	return
}
