package chunk

import (
	"github.com/pkg/errors"

	"github.com/SalimTag/SPM-Distributed-MergeSort/internal/pkg/record"
)

// Walker walks a record-aligned byte range [start, end) of a mapped view and
// produces descriptor slices. A memory budget limits how many record bytes a
// single call indexes (a call stops once the budget is reached, so it can
// exceed it by at most one record), so an arbitrarily large range can be
// consumed as a sequence of in-memory chunks.
type Walker struct {
	view   *View
	offset int64
	end    int64
}

// NewWalker positions a walker at start. Both start and end must lie on
// record boundaries; end is clamped to the view size.
func NewWalker(v *View, start, end int64) *Walker {
	if end > v.Size() {
		end = v.Size()
	}
	return &Walker{view: v, offset: start, end: end}
}

// Offset returns the byte offset the walker will decode next.
func (w *Walker) Offset() int64 {
	return w.offset
}

// Done reports whether the walker has consumed its range.
func (w *Walker) Done() bool {
	return w.offset >= w.end
}

// Next indexes records until budget bytes have been covered or the range is
// exhausted. Descriptors alias the mapped view.
//
// On an invalid-length header or a record that runs past the mapping, Next
// returns the descriptors indexed so far together with the error; the walker
// stops at the offending record and Done reports true afterwards. The caller
// decides whether a truncated prefix is still worth sorting.
func (w *Walker) Next(budget int64) ([]record.Descriptor, error) {
	if w.Done() {
		return nil, nil
	}
	data := w.view.Bytes()
	descs := make([]record.Descriptor, 0, 1024)
	var used int64
	for w.offset < w.end && used < budget {
		if w.offset+record.HeaderSize > w.view.Size() {
			w.end = w.offset
			return descs, errors.Wrapf(record.ErrUnexpectedEOF, "header at offset %d", w.offset)
		}
		key, length, err := record.DecodeHeader(data[w.offset:])
		if err != nil {
			w.end = w.offset
			return descs, errors.Wrapf(err, "offset %d", w.offset)
		}
		next := w.offset + record.HeaderSize + int64(length)
		if next > w.view.Size() {
			w.end = w.offset
			return descs, errors.Wrapf(record.ErrUnexpectedEOF, "payload at offset %d", w.offset)
		}
		descs = append(descs, record.Descriptor{
			Key:     key,
			Payload: data[w.offset+record.HeaderSize : next],
		})
		used += next - w.offset
		w.offset = next
	}
	return descs, nil
}
