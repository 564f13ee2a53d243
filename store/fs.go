package store

import (
	"errors"
	"os"

	"github.com/chaindex/fstkv/internal/segment"
)

func ensureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

func isOrphanErr(err error) bool {
	var orphan *segment.ErrOrphan
	return errors.As(err, &orphan)
}
