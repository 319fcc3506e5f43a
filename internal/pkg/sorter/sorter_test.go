package sorter

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SalimTag/SPM-Distributed-MergeSort/internal/pkg/record"
)

func randomDescriptors(n int, rng *rand.Rand) []record.Descriptor {
	descs := make([]record.Descriptor, n)
	for i := range descs {
		descs[i] = record.Descriptor{Key: rng.Uint64()}
	}
	return descs
}

func assertSorted(t *testing.T, descs []record.Descriptor) {
	t.Helper()
	for i := 1; i < len(descs); i++ {
		require.LessOrEqual(t, descs[i-1].Key, descs[i].Key, "index %d", i)
	}
}

func TestSortLarge(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	descs := randomDescriptors(100000, rng)

	want := make([]uint64, len(descs))
	for i, d := range descs {
		want[i] = d.Key
	}
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })

	New(4).Sort(descs)

	assertSorted(t, descs)
	got := make([]uint64, len(descs))
	for i, d := range descs {
		got[i] = d.Key
	}
	assert.Equal(t, want, got)
}

func TestSortSmallArrays(t *testing.T) {
	s := New(4)
	rng := rand.New(rand.NewSource(1))
	for _, n := range []int{0, 1, 2, 999, 1000} {
		descs := randomDescriptors(n, rng)
		s.Sort(descs)
		assertSorted(t, descs)
	}
}

func TestSortEqualKeys(t *testing.T) {
	descs := make([]record.Descriptor, 10000)
	payloads := make([][]byte, len(descs))
	for i := range descs {
		payloads[i] = []byte{byte(i), byte(i >> 8)}
		descs[i] = record.Descriptor{Key: 7, Payload: payloads[i]}
	}
	New(4).Sort(descs)
	assertSorted(t, descs)

	// Equal keys may land anywhere, but every payload survives.
	seen := make(map[[2]byte]bool, len(descs))
	for _, d := range descs {
		seen[[2]byte{d.Payload[0], d.Payload[1]}] = true
	}
	assert.Len(t, seen, len(descs))
}

func TestSortSingleThread(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	descs := randomDescriptors(50000, rng)
	New(1).Sort(descs)
	assertSorted(t, descs)
}

func TestSortAlreadySorted(t *testing.T) {
	// Last-element pivots degrade on sorted input; the sort must still
	// terminate correctly on the worst case.
	descs := make([]record.Descriptor, 20000)
	for i := range descs {
		descs[i] = record.Descriptor{Key: uint64(i)}
	}
	New(4).Sort(descs)
	assertSorted(t, descs)
}
