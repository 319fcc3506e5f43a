// Package plan discovers record boundaries in the input file and assigns
// contiguous, record-aligned byte ranges to workers.
package plan

import (
	"bufio"
	"io"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/SalimTag/SPM-Distributed-MergeSort/internal/pkg/record"
)

const scanBufferSize = 4 << 20

// OffsetTable is the global record-offset table: Offsets[i] is the byte
// offset of record i, and FileSize closes the final record's range.
type OffsetTable struct {
	Offsets  []int64
	FileSize int64
}

// Records returns the total record count n.
func (t *OffsetTable) Records() int64 {
	return int64(len(t.Offsets))
}

// Scan walks the input once from offset 0, reading record headers and
// advancing by header+length, and returns the offset table. It stops cleanly
// at end of file. On an invalid-length header or a payload running past end
// of file it logs, truncates the table at the offending record and returns
// the valid prefix; sorting proceeds on what could be decoded.
func Scan(path string) (*OffsetTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s for boundary scan", path)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "stat %s", path)
	}

	table := &OffsetTable{FileSize: info.Size()}
	br := bufio.NewReaderSize(f, scanBufferSize)

	var offset int64
	var hdr [record.HeaderSize]byte
	for offset < info.Size() {
		if _, err := io.ReadFull(br, hdr[:]); err != nil {
			if err == io.EOF {
				break
			}
			log.Warnf("Truncated header at offset %d, stopping scan: %v", offset, err)
			table.FileSize = offset
			break
		}
		_, length, err := record.DecodeHeader(hdr[:])
		if err != nil {
			log.Warnf("Stopping scan at offset %d: %v", offset, err)
			table.FileSize = offset
			break
		}
		next := offset + record.HeaderSize + int64(length)
		if next > info.Size() {
			log.Warnf("Record at offset %d runs past end of file, stopping scan", offset)
			table.FileSize = offset
			break
		}
		if _, err := br.Discard(int(length)); err != nil {
			return nil, errors.Wrapf(err, "skip payload at offset %d", offset)
		}
		table.Offsets = append(table.Offsets, offset)
		offset = next
	}
	return table, nil
}
