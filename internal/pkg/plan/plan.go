package plan

// ScatterThreshold is the record count above which the coordinator scatters
// only per-rank boundary offsets instead of broadcasting the full offset
// table, to bound non-root memory.
const ScatterThreshold = 100000000

// Range is one worker's assignment: the half-open record-index range
// [StartRecord, EndRecord) and the matching record-aligned byte range
// [StartByte, EndByte).
type Range struct {
	StartRecord int64
	EndRecord   int64
	StartByte   int64
	EndByte     int64
}

// Records returns how many records the range covers.
func (r Range) Records() int64 {
	return r.EndRecord - r.StartRecord
}

// Empty reports whether the range covers no records.
func (r Range) Empty() bool {
	return r.EndRecord <= r.StartRecord
}

// RecordSpan computes worker w's record-index range among world workers:
// each worker gets n/world records, and the first n%world workers get one
// extra.
func RecordSpan(n int64, world, w int) (start, end int64) {
	per := n / int64(world)
	rem := n % int64(world)
	start = int64(w) * per
	if int64(w) < rem {
		start += int64(w)
	} else {
		start += rem
	}
	end = start + per
	if int64(w) < rem {
		end++
	}
	return start, end
}

// Assign maps worker w's record span onto the offset table, yielding a
// contiguous record-aligned byte range. The ranges of all workers are
// disjoint and cover [0, FileSize).
func Assign(table *OffsetTable, world, w int) Range {
	n := table.Records()
	start, end := RecordSpan(n, world, w)
	return Range{
		StartRecord: start,
		EndRecord:   end,
		StartByte:   byteOffset(table, start),
		EndByte:     byteOffset(table, end),
	}
}

func byteOffset(table *OffsetTable, rec int64) int64 {
	if rec >= table.Records() {
		return table.FileSize
	}
	return table.Offsets[rec]
}
