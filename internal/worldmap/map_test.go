package worldmap

import (
	"errors"
	"math"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/robosim/internal/simerr"
)

func wallAtColumn5(t *testing.T, opts ...Option) *Map {
	t.Helper()
	m, err := Build([]Segment{{X0: 5, Y0: 0, X1: 5, Y1: 9}}, 10, 10, 1.0, opts...)
	require.NoError(t, err)
	return m
}

func sortedCells(m *Map) []GridPoint {
	cells := m.OccupiedCells()
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].X != cells[j].X {
			return cells[i].X < cells[j].X
		}
		return cells[i].Y < cells[j].Y
	})
	return cells
}

func TestBuild_RejectsMalformedMaps(t *testing.T) {
	tests := []struct {
		name       string
		w, h       int
		resolution float64
		segments   []Segment
	}{
		{"zero width", 0, 10, 1, nil},
		{"negative height", 10, -1, 1, nil},
		{"zero resolution", 10, 10, 0, nil},
		{"nan resolution", 10, 10, math.NaN(), nil},
		{"nan segment", 10, 10, 1, []Segment{{X0: math.NaN(), Y1: 3}}},
		{"inf segment", 10, 10, 1, []Segment{{X0: 1, Y1: math.Inf(1)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.segments, tt.w, tt.h, tt.resolution)
			require.Error(t, err)
			assert.True(t, errors.Is(err, simerr.ErrConfiguration))
			assert.True(t, simerr.IsFatal(err))
		})
	}
}

func TestBuild_UnknownWalker(t *testing.T) {
	_, err := Build(nil, 4, 4, 1, WithWalker(Walker(42)))
	assert.True(t, errors.Is(err, simerr.ErrConfiguration))
}

func TestBuild_AxisAlignedWallIsFilled(t *testing.T) {
	m := wallAtColumn5(t)

	for y := 0; y < 10; y++ {
		assert.Equal(t, Occupied, m.Query(5, y), "cell (5,%d)", y)
		assert.Equal(t, Free, m.Query(4, y), "cell (4,%d)", y)
		assert.Equal(t, Free, m.Query(6, y), "cell (6,%d)", y)
	}
	assert.Len(t, m.OccupiedCells(), 10)
}

func TestBuild_HorizontalWallReversedEndpoints(t *testing.T) {
	m, err := Build([]Segment{{X0: 7.9, Y0: 2.2, X1: 1.1, Y1: 2.7}}, 10, 10, 1.0)
	require.NoError(t, err)

	want := []GridPoint{{1, 2}, {2, 2}, {3, 2}, {4, 2}, {5, 2}, {6, 2}, {7, 2}}
	if diff := cmp.Diff(want, sortedCells(m)); diff != "" {
		t.Errorf("occupied cells mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_ClampsEndpointsIntoGrid(t *testing.T) {
	m, err := Build([]Segment{{X0: -3, Y0: 4, X1: 25, Y1: 4}}, 10, 10, 1.0)
	require.NoError(t, err)

	for x := 0; x < 10; x++ {
		assert.Equal(t, Occupied, m.Query(x, 4))
	}
	assert.Len(t, m.OccupiedCells(), 10)
}

func TestBuild_ResolutionScalesCoordinates(t *testing.T) {
	m, err := Build([]Segment{{X0: 1.0, Y0: 0, X1: 1.0, Y1: 1.9}}, 20, 20, 0.5)
	require.NoError(t, err)

	want := []GridPoint{{2, 0}, {2, 1}, {2, 2}, {2, 3}}
	if diff := cmp.Diff(want, sortedCells(m)); diff != "" {
		t.Errorf("occupied cells mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_DiagonalWalkers(t *testing.T) {
	seg := []Segment{{X0: 0, Y0: 0, X1: 1, Y1: 3}}

	step, err := Build(seg, 10, 10, 1.0)
	require.NoError(t, err)
	bres, err := Build(seg, 10, 10, 1.0, WithWalker(BresenhamWalk))
	require.NoError(t, err)

	wantStep := []GridPoint{{0, 0}, {0, 1}, {0, 2}, {1, 3}}
	wantBres := []GridPoint{{0, 0}, {0, 1}, {1, 2}, {1, 3}}

	if diff := cmp.Diff(wantStep, sortedCells(step)); diff != "" {
		t.Errorf("step walk mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantBres, sortedCells(bres)); diff != "" {
		t.Errorf("bresenham walk mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_FortyFiveDegreeStepWalk(t *testing.T) {
	m, err := Build([]Segment{{X0: 0, Y0: 0, X1: 3, Y1: 3}}, 10, 10, 1.0)
	require.NoError(t, err)

	want := []GridPoint{{0, 0}, {1, 1}, {2, 2}, {3, 3}}
	if diff := cmp.Diff(want, sortedCells(m)); diff != "" {
		t.Errorf("occupied cells mismatch (-want +got):\n%s", diff)
	}
}

func TestQuery_OutOfBounds(t *testing.T) {
	m := wallAtColumn5(t)

	assert.Equal(t, OutOfBounds, m.Query(-1, 0))
	assert.Equal(t, OutOfBounds, m.Query(0, -1))
	assert.Equal(t, OutOfBounds, m.Query(10, 0))
	assert.Equal(t, OutOfBounds, m.Query(0, 10))
}

func TestContainsAndCell(t *testing.T) {
	m, err := Build(nil, 10, 4, 0.5)
	require.NoError(t, err)

	w, h := m.Extent()
	assert.Equal(t, 5.0, w)
	assert.Equal(t, 2.0, h)

	assert.True(t, m.Contains(0, 0))
	assert.True(t, m.Contains(4.99, 1.99))
	assert.False(t, m.Contains(5.0, 1.0))
	assert.False(t, m.Contains(1.0, 2.0))
	assert.False(t, m.Contains(-0.01, 1.0))

	assert.Equal(t, GridPoint{3, 1}, m.Cell(1.7, 0.5))
	assert.Equal(t, GridPoint{-1, 0}, m.Cell(-0.2, 0.1))
}

func TestWalkLine_StopsEarly(t *testing.T) {
	m, err := Build(nil, 10, 10, 1.0)
	require.NoError(t, err)

	var visited []GridPoint
	done := m.WalkLine(GridPoint{0, 0}, GridPoint{9, 0}, func(p GridPoint) bool {
		visited = append(visited, p)
		return p.X < 3
	})

	assert.False(t, done)
	assert.Equal(t, []GridPoint{{0, 0}, {1, 0}, {2, 0}, {3, 0}}, visited)
}

func TestCastRay(t *testing.T) {
	for _, walker := range []Walker{StepWalk, BresenhamWalk} {
		t.Run(walker.String(), func(t *testing.T) {
			m := wallAtColumn5(t, WithWalker(walker))

			dist, hit := m.CastRay(0, 0, 0, 10)
			assert.True(t, hit)
			assert.InDelta(t, 5.0, dist, 1.0)

			// facing away from the wall the ray leaves the grid after one cell
			dist, hit = m.CastRay(0.5, 0.5, math.Pi, 10)
			assert.True(t, hit)
			assert.InDelta(t, 1.0, dist, 1.0)
		})
	}
}

func TestCastRay_RangeExhausted(t *testing.T) {
	m, err := Build(nil, 20, 20, 1.0)
	require.NoError(t, err)

	dist, hit := m.CastRay(1, 1, 0, 3)
	assert.False(t, hit)
	assert.Equal(t, 3.0, dist)
}

func TestParseWalker(t *testing.T) {
	for name, want := range map[string]Walker{"": StepWalk, "step": StepWalk, " Bresenham ": BresenhamWalk, "dda": BresenhamWalk} {
		got, err := ParseWalker(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := ParseWalker("spline")
	assert.Error(t, err)
}
