package schedule_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecsforge/ecsdb/schedule"
)

const (
	compPosition = "Position"
)

func indexOfWave(t *testing.T, waves schedule.Wavefronts[string], id string) int {
	t.Helper()

	for i, wave := range waves {
		for _, sid := range wave {
			if sid == id {
				return i
			}
		}
	}

	t.Fatalf("system %q not found in any wavefront", id)

	return -1
}

// TestBuild_S6_TwoWritersOneReader mirrors scenario S6: two writers and
// one reader of the same component type must land with both writers in
// distinct wavefronts and the reader strictly after both.
func TestBuild_S6_TwoWritersOneReader(t *testing.T) {
	t.Parallel()

	systems := []schedule.System[string, string]{
		{ID: "W1", Writes: []string{compPosition}},
		{ID: "W2", Writes: []string{compPosition}},
		{ID: "R", Reads: []string{compPosition}},
	}

	waves, diag := schedule.Build(systems, nil)

	require.False(t, diag.HadCycle)

	w1Wave := indexOfWave(t, waves, "W1")
	w2Wave := indexOfWave(t, waves, "W2")
	rWave := indexOfWave(t, waves, "R")

	assert.NotEqual(t, w1Wave, w2Wave, "writers of the same type must be serialized into different wavefronts")
	assert.Greater(t, rWave, w1Wave)
	assert.Greater(t, rWave, w2Wave)
}

func TestBuild_NoConflictRunsInOneWavefront(t *testing.T) {
	t.Parallel()

	systems := []schedule.System[string, string]{
		{ID: "A", Writes: []string{"Position"}},
		{ID: "B", Writes: []string{"Velocity"}},
	}

	waves, diag := schedule.Build(systems, nil)
	require.False(t, diag.HadCycle)
	require.Len(t, waves, 1)
	assert.ElementsMatch(t, []string{"A", "B"}, waves[0])
}

func TestBuild_SystemLevelBeforeAfter(t *testing.T) {
	t.Parallel()

	systems := []schedule.System[string, string]{
		{ID: "A", Writes: []string{"Position"}, Before: []string{"B"}},
		{ID: "B", Writes: []string{"Position"}},
	}

	waves, diag := schedule.Build(systems, nil)
	require.False(t, diag.HadCycle)

	assert.Less(t, indexOfWave(t, waves, "A"), indexOfWave(t, waves, "B"))
}

func TestBuild_GroupEdgeAgreesWithWriterReaderDirection(t *testing.T) {
	t.Parallel()

	// W writes Position and R reads it, so the writer-reader rule alone
	// puts W before R. GroupA.Before=[GroupB], with W in GroupA and R in
	// GroupB, orders them the same way: the build must yield W before R
	// without reporting a cycle.
	groups := []schedule.Group[string]{
		{ID: "GroupA", Before: []string{"GroupB"}},
		{ID: "GroupB"},
	}

	systems := []schedule.System[string, string]{
		{ID: "W", Writes: []string{"Position"}, Group: "GroupA", HasGroup: true},
		{ID: "R", Reads: []string{"Position"}, Group: "GroupB", HasGroup: true},
	}

	waves, diag := schedule.Build(systems, groups)
	require.False(t, diag.HadCycle)

	assert.Less(t, indexOfWave(t, waves, "W"), indexOfWave(t, waves, "R"),
		"GroupA.Before=[GroupB] forces W before R, same direction as the writer-reader edge here")
}

func TestBuild_GroupEdgeReversesWriterReaderDirection(t *testing.T) {
	t.Parallel()

	// R reads Position, W writes it. The plain writer-reader rule would
	// put W before R. But R's group is declared Before W's group, which
	// must take precedence and suppress the writer-reader edge.
	groups := []schedule.Group[string]{
		{ID: "ReaderGroup", Before: []string{"WriterGroup"}},
		{ID: "WriterGroup"},
	}

	systems := []schedule.System[string, string]{
		{ID: "R", Reads: []string{"Position"}, Group: "ReaderGroup", HasGroup: true},
		{ID: "W", Writes: []string{"Position"}, Group: "WriterGroup", HasGroup: true},
	}

	waves, diag := schedule.Build(systems, groups)
	require.False(t, diag.HadCycle)

	assert.Less(t, indexOfWave(t, waves, "R"), indexOfWave(t, waves, "W"))
}

func TestBuild_CyclicRemainderEmittedAsTerminalWavefront(t *testing.T) {
	t.Parallel()

	systems := []schedule.System[string, string]{
		{ID: "A", Writes: []string{"Position"}, Before: []string{"B"}},
		{ID: "B", Writes: []string{"Position"}, Before: []string{"A"}},
	}

	waves, diag := schedule.Build(systems, nil)

	require.True(t, diag.HadCycle)
	require.NotEmpty(t, waves)
	assert.ElementsMatch(t, []string{"A", "B"}, waves[len(waves)-1])
}
