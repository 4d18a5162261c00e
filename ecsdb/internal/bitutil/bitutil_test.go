package bitutil_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecsforge/ecsdb/internal/bitutil"
)

func TestNextRun_SingleBit(t *testing.T) {
	t.Parallel()

	start, length, rest, ok := bitutil.NextRun(1 << 5)
	require.True(t, ok)
	assert.Equal(t, 5, start)
	assert.Equal(t, 1, length)
	assert.Equal(t, uint64(0), rest)
}

func TestNextRun_ContiguousRunThenGap(t *testing.T) {
	t.Parallel()

	mask := uint64(0b0111_0110) // bits 1,2; 4,5,6

	start, length, rest, ok := bitutil.NextRun(mask)
	require.True(t, ok)
	assert.Equal(t, 1, start)
	assert.Equal(t, 2, length)

	start, length, rest, ok = bitutil.NextRun(rest)
	require.True(t, ok)
	assert.Equal(t, 4, start)
	assert.Equal(t, 3, length)
	assert.Equal(t, uint64(0), rest)
}

func TestNextRun_AllOnes(t *testing.T) {
	t.Parallel()

	start, length, rest, ok := bitutil.NextRun(^uint64(0))
	require.True(t, ok)
	assert.Equal(t, 0, start)
	assert.Equal(t, 64, length)
	assert.Equal(t, uint64(0), rest)
}

func TestNextRun_ZeroMaskNotOK(t *testing.T) {
	t.Parallel()

	_, _, _, ok := bitutil.NextRun(0)
	assert.False(t, ok)
}

func TestForEachBit_VisitsInAscendingOrder(t *testing.T) {
	t.Parallel()

	mask := uint64(0b1011_0101)

	var got []int

	bitutil.ForEachBit(mask, func(bit int) {
		got = append(got, bit)
	})

	want := []int{0, 2, 4, 5, 7}

	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("ForEachBit order mismatch (-want +got):\n%s", diff)
	}
}

func TestForEachBit_EmptyMaskVisitsNothing(t *testing.T) {
	t.Parallel()

	var got []int

	bitutil.ForEachBit(0, func(bit int) {
		got = append(got, bit)
	})

	assert.Empty(t, got)
}

func TestPopCount(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, bitutil.PopCount(0))
	assert.Equal(t, 64, bitutil.PopCount(^uint64(0)))
	assert.Equal(t, 4, bitutil.PopCount(0b1010_0101))
}

func TestFirstZero(t *testing.T) {
	t.Parallel()

	idx, ok := bitutil.FirstZero(0)
	require.True(t, ok)
	assert.Equal(t, 0, idx)

	idx, ok = bitutil.FirstZero(0b0000_0111)
	require.True(t, ok)
	assert.Equal(t, 3, idx)

	_, ok = bitutil.FirstZero(^uint64(0))
	assert.False(t, ok)
}
