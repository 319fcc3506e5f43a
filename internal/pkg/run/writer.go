// Package run reads and writes run files: record sequences whose keys are
// non-decreasing. Runs use the same on-disk format as the input file.
package run

import (
	"bufio"
	"os"

	"github.com/pkg/errors"

	"github.com/SalimTag/SPM-Distributed-MergeSort/internal/pkg/record"
)

const writerBufferSize = 1 << 20

// WriteDescriptors serializes a sorted descriptor slice to a new run file at
// path, reading payload bytes through the descriptors' mapped view. The file
// is flushed and synced before close so that a subsequent merge step can read
// it. Returns the number of bytes written.
func WriteDescriptors(path string, descs []record.Descriptor) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, errors.Wrapf(err, "create run %s", path)
	}
	w := bufio.NewWriterSize(f, writerBufferSize)
	var written int64
	for _, d := range descs {
		if err := record.WriteDescriptor(w, d); err != nil {
			f.Close()
			return written, errors.Wrapf(err, "spill run %s", path)
		}
		written += d.Size()
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return written, errors.Wrapf(err, "flush run %s", path)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return written, errors.Wrapf(err, "sync run %s", path)
	}
	return written, errors.Wrapf(f.Close(), "close run %s", path)
}
