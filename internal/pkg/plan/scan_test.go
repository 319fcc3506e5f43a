package plan

import (
	"bufio"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SalimTag/SPM-Distributed-MergeSort/internal/pkg/record"
)

func writeRecords(t *testing.T, path string, lengths []int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	w := bufio.NewWriter(f)
	for i, length := range lengths {
		require.NoError(t, record.Write(w, uint64(i), make([]byte, length)))
	}
	require.NoError(t, w.Flush())
	require.NoError(t, f.Close())
}

func TestScanOffsets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.bin")
	lengths := []int{8, 4096, 100}
	writeRecords(t, path, lengths)

	table, err := Scan(path)
	require.NoError(t, err)
	assert.Equal(t, int64(3), table.Records())
	assert.Equal(t, []int64{0, 20, 20 + record.HeaderSize + 4096}, table.Offsets)
	assert.Equal(t, int64(20+4108+112), table.FileSize)
}

func TestScanEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.bin")
	require.NoError(t, os.WriteFile(path, nil, 0644))
	table, err := Scan(path)
	require.NoError(t, err)
	assert.Zero(t, table.Records())
	assert.Zero(t, table.FileSize)
}

func TestScanTruncatesAtZeroLength(t *testing.T) {
	// A valid prefix followed by a header whose length field is 0: the
	// scanner keeps the prefix and stops.
	path := filepath.Join(t.TempDir(), "corrupt.bin")
	writeRecords(t, path, []int{8, 8})
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	bad := make([]byte, record.HeaderSize)
	binary.LittleEndian.PutUint64(bad, 123)
	binary.LittleEndian.PutUint32(bad[8:], 0)
	_, err = f.Write(bad)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	table, err := Scan(path)
	require.NoError(t, err)
	assert.Equal(t, int64(2), table.Records())
	// The truncated table's file size excludes the corrupt tail.
	assert.Equal(t, int64(40), table.FileSize)
}

func TestScanTruncatesAtPartialRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.bin")
	writeRecords(t, path, []int{8})
	// Header promising 64 payload bytes, followed by only 3.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	bad := make([]byte, record.HeaderSize+3)
	binary.LittleEndian.PutUint64(bad, 5)
	binary.LittleEndian.PutUint32(bad[8:], 64)
	_, err = f.Write(bad)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	table, err := Scan(path)
	require.NoError(t, err)
	assert.Equal(t, int64(1), table.Records())
	assert.Equal(t, int64(20), table.FileSize)
}
