package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTotal(t *testing.T) {
	assert.Equal(t, 0.0, Total(nil))
	assert.Equal(t, 0.0, Total([]float64{}))
	assert.InDelta(t, 37.5, Total([]float64{10, 20, 7.5}), 1e-9)
}

func TestCumulative(t *testing.T) {
	durations := []float64{10, 20, 30}
	assert.Equal(t, 0.0, Cumulative(durations, 0, 0))
	assert.Equal(t, 5.0, Cumulative(durations, 0, 5))
	assert.Equal(t, 10.0, Cumulative(durations, 1, 0))
	assert.Equal(t, 45.0, Cumulative(durations, 2, 15))
	assert.Equal(t, 60.0, Cumulative(durations, 2, 30))
}

func TestLocate(t *testing.T) {
	durations := []float64{10, 20, 30}

	cases := []struct {
		target    float64
		wantIndex int
		wantLocal float64
	}{
		{0, 0, 0},
		{5, 0, 5},
		{9.999, 0, 9.999},
		{10, 1, 0}, // boundary belongs to the next segment
		{29.5, 1, 19.5},
		{30, 2, 0},
		{59.9, 2, 29.9},
		{60, 2, 30}, // at the total, clamp to the end of the last segment
		{999, 2, 30},
		{-5, 0, 0},
	}
	for _, tc := range cases {
		index, local := Locate(durations, tc.target)
		assert.Equal(t, tc.wantIndex, index, "target %f", tc.target)
		assert.InDelta(t, tc.wantLocal, local, 1e-9, "target %f", tc.target)
	}
}

func TestLocateEmptyTable(t *testing.T) {
	index, local := Locate(nil, 12)
	assert.Equal(t, 0, index)
	assert.Equal(t, 0.0, local)
}

// Locate and Cumulative are inverses for every target inside the timeline.
func TestRoundTrip(t *testing.T) {
	durations := []float64{12.7, 0.5, 300, 9.2, 45}
	total := Total(durations)

	for target := 0.0; target < total; target += 0.37 {
		index, local := Locate(durations, target)
		require.InDelta(t, target, Cumulative(durations, index, local), 1e-9,
			"round trip broke at target %f (index %d, local %f)", target, index, local)
	}
}

func TestRoundTripAfterCorrection(t *testing.T) {
	durations := []float64{10, 20, 30}
	// A duration correction shifts every later segment's cumulative range.
	durations[0] = 12.7

	index, local := Locate(durations, 15)
	assert.Equal(t, 1, index)
	assert.InDelta(t, 2.3, local, 1e-9)
	assert.InDelta(t, 15.0, Cumulative(durations, index, local), 1e-9)
	assert.InDelta(t, 62.7, Total(durations), 1e-9)
}
