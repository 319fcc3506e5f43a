// Package merge implements the streaming k-way merge of sorted run files and
// the bounded fan-in hierarchical merge built on top of it.
package merge

import (
	"bufio"
	"container/heap"
	"io"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/SalimTag/SPM-Distributed-MergeSort/internal/pkg/run"
)

const outputBufferSize = 1 << 20

// cursor is one in-flight record from one input run. The cursor owns its
// record bytes fully; the merge loop pops it from the heap and writes the
// bytes verbatim.
type cursor struct {
	key uint64
	raw []byte
	src *run.Reader
}

type cursorHeap []*cursor

func (h cursorHeap) Len() int            { return len(h) }
func (h cursorHeap) Less(i, j int) bool  { return h[i].key < h[j].key }
func (h cursorHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *cursorHeap) Push(x interface{}) { *h = append(*h, x.(*cursor)) }
func (h *cursorHeap) Pop() interface{} {
	old := *h
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return c
}

// KWay merges the sorted runs at inputs into a single sorted file at output.
// Zero inputs produce an empty output; one input is copied through. An input
// whose first read hits end of file is simply dropped. A mid-file decode
// failure that is not end of file terminates that input with a logged error;
// the remaining inputs still merge. Returns the number of bytes written.
func KWay(inputs []string, output string) (int64, error) {
	switch len(inputs) {
	case 0:
		f, err := os.Create(output)
		if err != nil {
			return 0, errors.Wrapf(err, "create merge output %s", output)
		}
		return 0, errors.Wrap(f.Close(), "close empty merge output")
	case 1:
		return copyFile(inputs[0], output)
	}

	readers := make([]*run.Reader, 0, len(inputs))
	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()

	h := make(cursorHeap, 0, len(inputs))
	for _, path := range inputs {
		r, err := run.Open(path)
		if err != nil {
			return 0, err
		}
		readers = append(readers, r)
		key, raw, err := r.Next()
		if err == io.EOF {
			continue
		}
		if err != nil {
			log.Errorf("Dropping unreadable merge input %s: %v", path, err)
			continue
		}
		h = append(h, &cursor{key: key, raw: raw, src: r})
	}
	heap.Init(&h)

	f, err := os.Create(output)
	if err != nil {
		return 0, errors.Wrapf(err, "create merge output %s", output)
	}
	w := bufio.NewWriterSize(f, outputBufferSize)

	var written int64
	for h.Len() > 0 {
		c := heap.Pop(&h).(*cursor)
		if _, err := w.Write(c.raw); err != nil {
			f.Close()
			return written, errors.Wrapf(err, "write merge output %s", output)
		}
		written += int64(len(c.raw))

		key, raw, err := c.src.Next()
		switch {
		case err == io.EOF:
		case err != nil:
			log.Errorf("Merge input ended early: %v", err)
		default:
			c.key, c.raw = key, raw
			heap.Push(&h, c)
		}
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return written, errors.Wrapf(err, "flush merge output %s", output)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return written, errors.Wrapf(err, "sync merge output %s", output)
	}
	return written, errors.Wrapf(f.Close(), "close merge output %s", output)
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, errors.Wrapf(err, "open merge input %s", src)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return 0, errors.Wrapf(err, "create merge output %s", dst)
	}
	n, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		return n, errors.Wrapf(err, "copy %s to %s", src, dst)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return n, errors.Wrapf(err, "sync %s", dst)
	}
	return n, errors.Wrapf(out.Close(), "close %s", dst)
}
