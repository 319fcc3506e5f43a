package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableFixture(sizes []int64) *OffsetTable {
	table := &OffsetTable{}
	var offset int64
	for _, size := range sizes {
		table.Offsets = append(table.Offsets, offset)
		offset += size
	}
	table.FileSize = offset
	return table
}

func TestRecordSpanBalance(t *testing.T) {
	// n = 10, W = 4: workers get 3, 3, 2, 2 records.
	wantCounts := []int64{3, 3, 2, 2}
	var prevEnd int64
	for w := 0; w < 4; w++ {
		start, end := RecordSpan(10, 4, w)
		assert.Equal(t, prevEnd, start, "worker %d", w)
		assert.Equal(t, wantCounts[w], end-start, "worker %d", w)
		prevEnd = end
	}
	assert.Equal(t, int64(10), prevEnd)
}

func TestRecordSpanMoreWorkersThanRecords(t *testing.T) {
	var total int64
	for w := 0; w < 8; w++ {
		start, end := RecordSpan(3, 8, w)
		require.LessOrEqual(t, start, end)
		total += end - start
	}
	assert.Equal(t, int64(3), total)
}

func TestAssignCoverage(t *testing.T) {
	// Variable record sizes; ranges must be contiguous, disjoint,
	// record-aligned and cover [0, FileSize).
	table := tableFixture([]int64{20, 20, 4108, 20, 1000, 20, 20})
	world := 3
	var prevEnd int64
	for w := 0; w < world; w++ {
		r := Assign(table, world, w)
		assert.Equal(t, prevEnd, r.StartByte, "worker %d", w)
		if !r.Empty() {
			assert.Equal(t, table.Offsets[r.StartRecord], r.StartByte)
		}
		prevEnd = r.EndByte
	}
	assert.Equal(t, table.FileSize, prevEnd)
}

func TestAssignEmptyTable(t *testing.T) {
	table := &OffsetTable{}
	for w := 0; w < 4; w++ {
		r := Assign(table, 4, w)
		assert.True(t, r.Empty())
		assert.Zero(t, r.StartByte)
		assert.Zero(t, r.EndByte)
	}
}
