// Package worldmap owns the rasterized occupancy grid the robot drives in.
//
// A Map is built once from obstacle segments given in metres and is
// immutable afterwards, so it can be shared by the motion loop and every
// device goroutine without locking.
package worldmap

import (
	"math"

	"github.com/banshee-data/robosim/internal/simerr"
)

// Cell is the state of one grid cell.
type Cell uint8

const (
	Free Cell = iota
	Occupied
	OutOfBounds
)

func (c Cell) String() string {
	switch c {
	case Free:
		return "free"
	case Occupied:
		return "occupied"
	default:
		return "out_of_bounds"
	}
}

// Segment is an obstacle line in world coordinates (metres).
type Segment struct {
	X0, Y0, X1, Y1 float64
}

// GridPoint addresses a cell by column and row.
type GridPoint struct {
	X, Y int
}

// Map is an occupancy grid of Width×Height cells, each Resolution metres
// square.
type Map struct {
	resolution float64
	width      int
	height     int
	walker     Walker
	cells      []Cell // column-major: x*height + y
}

// Option configures Build.
type Option func(*Map)

// WithWalker selects the line walker used to bake obstacles, check paths and
// cast rays. The default is StepWalk.
func WithWalker(w Walker) Option {
	return func(m *Map) { m.walker = w }
}

// Build rasterizes segments into a new width×height grid.
func Build(segments []Segment, width, height int, resolution float64, opts ...Option) (*Map, error) {
	if width <= 0 || height <= 0 {
		return nil, simerr.Configf("worldmap", "Build", "map size must be positive, got %dx%d", width, height)
	}
	if !(resolution > 0) || math.IsInf(resolution, 0) {
		return nil, simerr.Configf("worldmap", "Build", "resolution must be a positive number, got %v", resolution)
	}

	m := &Map{
		resolution: resolution,
		width:      width,
		height:     height,
		cells:      make([]Cell, width*height),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.walker != StepWalk && m.walker != BresenhamWalk {
		return nil, simerr.Configf("worldmap", "Build", "unknown line walker %d", m.walker)
	}

	for i, s := range segments {
		if !finite(s.X0, s.Y0, s.X1, s.Y1) {
			return nil, simerr.Configf("worldmap", "Build", "segment %d has non-finite coordinates %+v", i, s)
		}
		a := m.clampedCell(s.X0, s.Y0)
		b := m.clampedCell(s.X1, s.Y1)
		m.WalkLine(a, b, func(p GridPoint) bool {
			m.set(p, Occupied)
			return true
		})
	}
	return m, nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (m *Map) clampedCell(x, y float64) GridPoint {
	p := m.Cell(x, y)
	p.X = clamp(p.X, 0, m.width-1)
	p.Y = clamp(p.Y, 0, m.height-1)
	return p
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (m *Map) inBounds(p GridPoint) bool {
	return p.X >= 0 && p.X < m.width && p.Y >= 0 && p.Y < m.height
}

func (m *Map) set(p GridPoint, c Cell) {
	if m.inBounds(p) {
		m.cells[p.X*m.height+p.Y] = c
	}
}

// Query returns the state of cell (cx, cy), or OutOfBounds.
func (m *Map) Query(cx, cy int) Cell {
	p := GridPoint{cx, cy}
	if !m.inBounds(p) {
		return OutOfBounds
	}
	return m.cells[cx*m.height+cy]
}

// Cell converts a world position in metres to the cell containing it. The
// result is not clamped and may lie outside the grid.
func (m *Map) Cell(x, y float64) GridPoint {
	return GridPoint{
		X: int(math.Floor(x / m.resolution)),
		Y: int(math.Floor(y / m.resolution)),
	}
}

// Contains reports whether (x, y) in metres lies inside
// [0, Width·Resolution) × [0, Height·Resolution).
func (m *Map) Contains(x, y float64) bool {
	w, h := m.Extent()
	return x >= 0 && y >= 0 && x < w && y < h
}

// Extent returns the map size in metres.
func (m *Map) Extent() (width, height float64) {
	return float64(m.width) * m.resolution, float64(m.height) * m.resolution
}

func (m *Map) Width() int          { return m.width }
func (m *Map) Height() int         { return m.height }
func (m *Map) Resolution() float64 { return m.resolution }
func (m *Map) Walker() Walker      { return m.walker }

// OccupiedCells lists every occupied cell in column-major order.
func (m *Map) OccupiedCells() []GridPoint {
	var out []GridPoint
	for i, c := range m.cells {
		if c == Occupied {
			out = append(out, GridPoint{X: i / m.height, Y: i % m.height})
		}
	}
	return out
}
