// Package chunk indexes a record-aligned byte range of a memory-mapped input
// file into descriptor slices without copying payloads.
package chunk

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// View is a read-only memory-mapped view of an input file. Descriptors built
// from a View alias its mapping and must not outlive Close.
type View struct {
	f    *os.File
	data []byte
}

// OpenView maps the whole file at path read-only and hints the kernel that
// access will be sequential. A zero-length file yields a valid empty view.
func OpenView(path string) (*View, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s for mapping", path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	if info.Size() == 0 {
		return &View{f: f}, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "mmap %s", path)
	}
	// The advice is a hint; ignore failures.
	_ = unix.Madvise(data, unix.MADV_SEQUENTIAL)
	return &View{f: f, data: data}, nil
}

// Bytes returns the mapped contents.
func (v *View) Bytes() []byte {
	return v.data
}

// Size returns the length of the mapping in bytes.
func (v *View) Size() int64 {
	return int64(len(v.data))
}

// Close releases the mapping and the underlying file. All descriptors built
// from this view are invalid afterwards.
func (v *View) Close() error {
	var merr error
	if v.data != nil {
		merr = unix.Munmap(v.data)
		v.data = nil
	}
	if err := v.f.Close(); err != nil && merr == nil {
		merr = err
	}
	return errors.Wrap(merr, "release mapped view")
}
