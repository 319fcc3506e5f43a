package merge

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SalimTag/SPM-Distributed-MergeSort/internal/pkg/record"
	"github.com/SalimTag/SPM-Distributed-MergeSort/internal/pkg/run"
)

// writeRun writes a run with the given keys, payload filled with the key's
// low byte.
func writeRun(t *testing.T, path string, keys []uint64) {
	t.Helper()
	descs := make([]record.Descriptor, len(keys))
	for i, key := range keys {
		payload := make([]byte, record.PayloadMin)
		for j := range payload {
			payload[j] = byte(key)
		}
		descs[i] = record.Descriptor{Key: key, Payload: payload}
	}
	_, err := run.WriteDescriptors(path, descs)
	require.NoError(t, err)
}

func readKeys(t *testing.T, path string) []uint64 {
	t.Helper()
	r, err := run.Open(path)
	require.NoError(t, err)
	defer r.Close()
	var keys []uint64
	for {
		key, _, err := r.Next()
		if err == io.EOF {
			return keys
		}
		require.NoError(t, err)
		keys = append(keys, key)
	}
}

func TestKWayZeroInputs(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.tmp")
	written, err := KWay(nil, out)
	require.NoError(t, err)
	assert.Zero(t, written)
	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestKWaySingleInputCopies(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.tmp")
	out := filepath.Join(dir, "out.tmp")
	writeRun(t, in, []uint64{1, 2, 3})
	_, err := KWay([]string{in}, out)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, readKeys(t, out))
}

func TestKWayMergesThreeRuns(t *testing.T) {
	dir := t.TempDir()
	inputs := []string{
		filepath.Join(dir, "a.tmp"),
		filepath.Join(dir, "b.tmp"),
		filepath.Join(dir, "c.tmp"),
	}
	writeRun(t, inputs[0], []uint64{1, 4, 9})
	writeRun(t, inputs[1], []uint64{2, 2, 8})
	writeRun(t, inputs[2], []uint64{3})

	out := filepath.Join(dir, "out.tmp")
	_, err := KWay(inputs, out)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 2, 3, 4, 8, 9}, readKeys(t, out))
	_, err = run.Validate(out, nil)
	assert.NoError(t, err)
}

func TestKWayDropsEmptyInput(t *testing.T) {
	dir := t.TempDir()
	inputs := []string{filepath.Join(dir, "a.tmp"), filepath.Join(dir, "b.tmp")}
	writeRun(t, inputs[0], []uint64{5, 6})
	writeRun(t, inputs[1], nil)

	out := filepath.Join(dir, "out.tmp")
	_, err := KWay(inputs, out)
	require.NoError(t, err)
	assert.Equal(t, []uint64{5, 6}, readKeys(t, out))
}

func TestHierarchicalManyRuns(t *testing.T) {
	dir := t.TempDir()
	rng := rand.New(rand.NewSource(42))

	var all []uint64
	inputs := make([]string, 25)
	for i := range inputs {
		keys := make([]uint64, 40)
		for j := range keys {
			keys[j] = uint64(rng.Intn(100000))
		}
		sort.Slice(keys, func(a, b int) bool { return keys[a] < keys[b] })
		all = append(all, keys...)
		inputs[i] = filepath.Join(dir, fmt.Sprintf("run_%d.tmp", i))
		writeRun(t, inputs[i], keys)
	}
	sort.Slice(all, func(a, b int) bool { return all[a] < all[b] })

	tmpID := 0
	nextName := func() string {
		tmpID++
		return filepath.Join(dir, fmt.Sprintf("im_%d.tmp", tmpID))
	}
	out := filepath.Join(dir, "out.tmp")
	require.NoError(t, Hierarchical(inputs, out, 4, 2, nextName))

	assert.Equal(t, all, readKeys(t, out))

	// Consumed inputs and intermediates are gone; only the output remains.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "out.tmp", entries[0].Name())
}

func TestHierarchicalSingleRunRenames(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "only.tmp")
	writeRun(t, in, []uint64{2, 4})
	out := filepath.Join(dir, "out.tmp")
	require.NoError(t, Hierarchical([]string{in}, out, 10, 2, nil))
	assert.Equal(t, []uint64{2, 4}, readKeys(t, out))
	_, err := os.Stat(in)
	assert.True(t, os.IsNotExist(err))
}
