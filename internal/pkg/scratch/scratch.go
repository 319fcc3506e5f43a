// Package scratch manages a per-worker scratch directory for temporary run
// files. Filenames embed the worker's rank and a monotonically increasing
// counter, so they are unique without locking.
package scratch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Dir is one worker's scratch directory. All run files the worker creates
// live inside it; Cleanup removes the directory and everything in it.
type Dir struct {
	rank    int
	path    string
	counter uint64
}

// New creates a scratch directory under root for the given rank. The path
// embeds the rank and a random component so that repeated jobs sharing a
// scratch root never collide. An empty root means the current directory.
func New(root string, rank int) (*Dir, error) {
	if root == "" {
		root = "."
	}
	path := filepath.Join(root, fmt.Sprintf("sortscratch_%d_%s", rank, uuid.NewString()[:8]))
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, errors.Wrapf(err, "create scratch directory %s", path)
	}
	return &Dir{rank: rank, path: path}, nil
}

// Path returns the scratch directory path.
func (d *Dir) Path() string {
	return d.path
}

// NextRunPath mints a fresh unique path for a temporary run file.
func (d *Dir) NextRunPath() string {
	id := atomic.AddUint64(&d.counter, 1)
	return filepath.Join(d.path, fmt.Sprintf("run_%d_%d.tmp", d.rank, id))
}

// Cleanup deletes the scratch directory and all files in it. Best effort:
// failures are logged, not returned.
func (d *Dir) Cleanup() {
	if err := os.RemoveAll(d.path); err != nil {
		log.Warnf("Failed to remove scratch directory %s: %v", d.path, err)
	}
}
