package run

import (
	"io"

	"github.com/pkg/errors"
)

// Validate walks the file at path and checks that it is a well-formed record
// sequence with non-decreasing keys. It returns the record count. Unlike the
// scanner, the validator rejects a file with an invalid-length or truncated
// tail rather than accepting the prefix.
//
// The optional progress callback is invoked with the running record count
// every million records.
func Validate(path string, progress func(count uint64)) (uint64, error) {
	r, err := Open(path)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	var (
		count   uint64
		prevKey uint64
	)
	for {
		key, _, err := r.Next()
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return count, errors.Wrapf(err, "record %d", count)
		}
		if count > 0 && key < prevKey {
			return count, errors.Errorf("order violation at record %d: key %d after %d", count, key, prevKey)
		}
		prevKey = key
		count++
		if progress != nil && count%1000000 == 0 {
			progress(count)
		}
	}
}
