package gen

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SalimTag/SPM-Distributed-MergeSort/internal/pkg/record"
)

func TestGenerateDeterministic(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.bin")
	b := filepath.Join(dir, "b.bin")
	_, err := Generate(a, Options{Records: 500})
	require.NoError(t, err)
	_, err = Generate(b, Options{Records: 500})
	require.NoError(t, err)

	rawA, err := os.ReadFile(a)
	require.NoError(t, err)
	rawB, err := os.ReadFile(b)
	require.NoError(t, err)
	assert.Equal(t, rawA, rawB)
}

func TestGenerateLengthsInRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.bin")
	written, err := Generate(path, Options{Records: 200})
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, written, int64(len(raw)))

	var offset int64
	var count int
	for offset < int64(len(raw)) {
		_, length, err := record.DecodeHeader(raw[offset:])
		require.NoError(t, err)
		offset += record.HeaderSize + int64(length)
		count++
	}
	assert.Equal(t, 200, count)
	assert.Equal(t, int64(len(raw)), offset)
}

func TestGenerateFixedPayloadSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixed.bin")
	written, err := Generate(path, Options{Records: 10, PayloadSize: 64})
	require.NoError(t, err)
	assert.Equal(t, int64(10*(record.HeaderSize+64)), written)
}

func TestGenerateRejectsBadPayloadSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.bin")
	for _, size := range []int{1, 7, 4097} {
		_, err := Generate(path, Options{Records: 1, PayloadSize: size})
		assert.True(t, errors.Is(err, record.ErrInvalidLength), "size %d", size)
	}
}

func TestGenerateZeroRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zero.bin")
	written, err := Generate(path, Options{Records: 0})
	require.NoError(t, err)
	assert.Zero(t, written)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}
