package run

import (
	"bufio"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/SalimTag/SPM-Distributed-MergeSort/internal/pkg/record"
)

const readerBufferSize = 1 << 20

// Reader decodes records sequentially from a run file. Each call to Next
// returns freshly owned record bytes, so callers may hold records across
// calls (the merge heap does).
type Reader struct {
	f  *os.File
	br *bufio.Reader
}

// Open opens a run file for sequential decoding.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open run %s", path)
	}
	return &Reader{f: f, br: bufio.NewReaderSize(f, readerBufferSize)}, nil
}

// Next decodes one record and returns its key together with the full on-disk
// bytes (header + payload). At a clean end of file it returns io.EOF. A
// partial header or payload yields record.ErrUnexpectedEOF; a bad length
// yields record.ErrInvalidLength.
func (r *Reader) Next() (uint64, []byte, error) {
	var hdr [record.HeaderSize]byte
	if _, err := io.ReadFull(r.br, hdr[:]); err != nil {
		if err == io.EOF {
			return 0, nil, io.EOF
		}
		return 0, nil, errors.Wrap(record.ErrUnexpectedEOF, "record header")
	}
	key, length, err := record.DecodeHeader(hdr[:])
	if err != nil {
		return key, nil, err
	}
	raw := make([]byte, record.HeaderSize+int(length))
	copy(raw, hdr[:])
	if _, err := io.ReadFull(r.br, raw[record.HeaderSize:]); err != nil {
		return key, nil, errors.Wrapf(record.ErrUnexpectedEOF, "payload of %d bytes", length)
	}
	return key, raw, nil
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	return r.f.Close()
}
