// Package record implements the on-disk record format: an 8-byte
// little-endian key, a 4-byte little-endian payload length and the payload
// bytes. Records are self-delimiting; the next record starts exactly
// HeaderSize+len bytes after the current one.
package record

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

const (
	// HeaderSize is the fixed prefix of every record: key + length.
	HeaderSize = 12

	// PayloadMin and PayloadMax bound the declared payload length of a
	// valid record.
	PayloadMin = 8
	PayloadMax = 4096
)

var (
	// ErrInvalidLength reports a declared payload length outside
	// [PayloadMin, PayloadMax].
	ErrInvalidLength = errors.New("record: invalid payload length")

	// ErrUnexpectedEOF reports a payload shorter than its declared length.
	ErrUnexpectedEOF = errors.New("record: unexpected end of file inside record")
)

// Descriptor references a record stored elsewhere, typically a memory-mapped
// view of the input file. The payload slice aliases that storage and is valid
// only while the view is held.
type Descriptor struct {
	Key     uint64
	Payload []byte
}

// Size returns the number of bytes the described record occupies on disk.
func (d Descriptor) Size() int64 {
	return HeaderSize + int64(len(d.Payload))
}

// DecodeHeader decodes a record header from b. The source may be unaligned;
// decoding is byte-wise. Returns ErrInvalidLength if the declared payload
// length is out of range.
func DecodeHeader(b []byte) (key uint64, length uint32, err error) {
	if len(b) < HeaderSize {
		return 0, 0, errors.Wrapf(ErrUnexpectedEOF, "%d byte header", len(b))
	}
	key = binary.LittleEndian.Uint64(b)
	length = binary.LittleEndian.Uint32(b[8:])
	if length < PayloadMin || length > PayloadMax {
		return key, length, errors.Wrapf(ErrInvalidLength, "length %d", length)
	}
	return key, length, nil
}

// Write encodes one record to w: 12-byte header followed by the payload.
func Write(w io.Writer, key uint64, payload []byte) error {
	var hdr [HeaderSize]byte
	binary.LittleEndian.PutUint64(hdr[:], key)
	binary.LittleEndian.PutUint32(hdr[8:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return errors.Wrap(err, "write record header")
	}
	if _, err := w.Write(payload); err != nil {
		return errors.Wrap(err, "write record payload")
	}
	return nil
}

// WriteDescriptor streams the record referenced by d to w.
func WriteDescriptor(w io.Writer, d Descriptor) error {
	return Write(w, d.Key, d.Payload)
}
