// Package gen produces synthetic record files for benchmarks and tests.
package gen

import (
	"bufio"
	"math/rand"
	"os"

	"github.com/pkg/errors"

	"github.com/SalimTag/SPM-Distributed-MergeSort/internal/pkg/record"
)

// Seed fixes the generator's random stream so that repeated runs produce
// identical files.
const Seed = 42

// Options control generation. A zero PayloadSize means lengths uniform in
// [record.PayloadMin, record.PayloadMax]; a nonzero value must lie in that
// range. A zero Seed falls back to the package default.
type Options struct {
	Records     int64
	PayloadSize int
	Seed        int64
	Progress    func(records int64)
}

// Generate writes opts.Records synthetic records to path: uniform uint64
// keys, payloads of random bytes. Returns the number of bytes written.
func Generate(path string, opts Options) (int64, error) {
	if opts.PayloadSize != 0 &&
		(opts.PayloadSize < record.PayloadMin || opts.PayloadSize > record.PayloadMax) {
		return 0, errors.Wrapf(record.ErrInvalidLength,
			"fixed payload size %d", opts.PayloadSize)
	}
	seed := opts.Seed
	if seed == 0 {
		seed = Seed
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, errors.Wrapf(err, "create %s", path)
	}
	w := bufio.NewWriterSize(f, 1<<20)
	rng := rand.New(rand.NewSource(seed))
	payload := make([]byte, record.PayloadMax)

	var written int64
	for i := int64(0); i < opts.Records; i++ {
		length := opts.PayloadSize
		if length == 0 {
			length = record.PayloadMin + rng.Intn(record.PayloadMax-record.PayloadMin+1)
		}
		rng.Read(payload[:length])
		if err := record.Write(w, rng.Uint64(), payload[:length]); err != nil {
			f.Close()
			return written, err
		}
		written += record.HeaderSize + int64(length)
		if opts.Progress != nil {
			opts.Progress(i + 1)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return written, errors.Wrapf(err, "flush %s", path)
	}
	return written, errors.Wrapf(f.Close(), "close %s", path)
}
