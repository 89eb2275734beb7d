package worldmap

import (
	"fmt"
	"math"
	"strings"
)

// Walker selects how a line between two cells is rasterized.
type Walker int

const (
	// StepWalk advances one grid unit at a time along the segment angle for
	// ceil(length)+1 steps, marking the floor of each position. It is cheap
	// and coarse: near-diagonal or long segments can leave holes where a
	// step skips over a cell corner.
	StepWalk Walker = iota
	// BresenhamWalk visits an 8-connected, gap-free run of cells.
	BresenhamWalk
)

func (w Walker) String() string {
	switch w {
	case StepWalk:
		return "step"
	case BresenhamWalk:
		return "bresenham"
	default:
		return fmt.Sprintf("walker(%d)", int(w))
	}
}

// ParseWalker maps a config name to a Walker. The empty string selects
// StepWalk.
func ParseWalker(name string) (Walker, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "step":
		return StepWalk, nil
	case "bresenham", "dda":
		return BresenhamWalk, nil
	default:
		return 0, fmt.Errorf("unknown line walk %q: expected step or bresenham", name)
	}
}

// WalkLine visits the cells between a and b, inclusive of both ends when the
// walker reaches them. Cells outside the grid are skipped. Axis-aligned
// lines always visit every cell between the endpoints. visit returns false to
// stop early, in which case WalkLine returns false.
func (m *Map) WalkLine(a, b GridPoint, visit func(GridPoint) bool) bool {
	emit := func(p GridPoint) bool {
		if !m.inBounds(p) {
			return true
		}
		return visit(p)
	}

	if a.X == b.X || a.Y == b.Y {
		return walkAxis(a, b, emit)
	}
	if m.walker == BresenhamWalk {
		return walkBresenham(a, b, emit)
	}
	return walkSteps(a, b, emit)
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func walkAxis(a, b GridPoint, visit func(GridPoint) bool) bool {
	sx, sy := sign(b.X-a.X), sign(b.Y-a.Y)
	p := a
	for {
		if !visit(p) {
			return false
		}
		if p == b {
			return true
		}
		p.X += sx
		p.Y += sy
	}
}

func walkSteps(a, b GridPoint, visit func(GridPoint) bool) bool {
	dx, dy := float64(b.X-a.X), float64(b.Y-a.Y)
	angle := math.Atan2(dy, dx)
	cos, sin := math.Cos(angle), math.Sin(angle)
	steps := int(math.Ceil(math.Hypot(dx, dy))) + 1

	for i := 0; i < steps; i++ {
		p := GridPoint{
			X: int(math.Floor(float64(a.X) + float64(i)*cos)),
			Y: int(math.Floor(float64(a.Y) + float64(i)*sin)),
		}
		if !visit(p) {
			return false
		}
	}
	return true
}

func walkBresenham(a, b GridPoint, visit func(GridPoint) bool) bool {
	dx := b.X - a.X
	if dx < 0 {
		dx = -dx
	}
	dy := b.Y - a.Y
	if dy > 0 {
		dy = -dy
	}
	sx, sy := sign(b.X-a.X), sign(b.Y-a.Y)
	e := dx + dy

	p := a
	for {
		if !visit(p) {
			return false
		}
		if p == b {
			return true
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			p.X += sx
		}
		if e2 <= dx {
			e += dx
			p.Y += sy
		}
	}
}

// CastRay steps from (x, y) in metres along theta until it meets an occupied
// cell or the map edge, or until maxRange is exhausted. It returns the
// distance travelled in metres and whether something was hit. The result is
// quantized to whole cells.
func (m *Map) CastRay(x, y, theta, maxRange float64) (float64, bool) {
	maxSteps := int(maxRange / m.resolution)
	if maxSteps < 0 {
		maxSteps = 0
	}
	sx, sy := x/m.resolution, y/m.resolution
	cos, sin := math.Cos(theta), math.Sin(theta)

	if m.walker == BresenhamWalk {
		start := GridPoint{int(math.Floor(sx)), int(math.Floor(sy))}
		end := GridPoint{
			X: int(math.Floor(sx + float64(maxSteps)*cos)),
			Y: int(math.Floor(sy + float64(maxSteps)*sin)),
		}
		dist, hit := float64(maxSteps)*m.resolution, false
		walk := walkBresenham
		if start.X == end.X || start.Y == end.Y {
			walk = walkAxis
		}
		walk(start, end, func(p GridPoint) bool {
			if m.Query(p.X, p.Y) == Free {
				return true
			}
			d := math.Hypot(float64(p.X-start.X), float64(p.Y-start.Y)) * m.resolution
			dist, hit = math.Min(d, dist), true
			return false
		})
		return dist, hit
	}

	for i := 0; i <= maxSteps; i++ {
		cx := int(math.Floor(sx + float64(i)*cos))
		cy := int(math.Floor(sy + float64(i)*sin))
		if m.Query(cx, cy) != Free {
			return float64(i) * m.resolution, true
		}
	}
	return float64(maxSteps) * m.resolution, false
}
