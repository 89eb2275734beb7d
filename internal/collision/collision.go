// Package collision validates a proposed pose transition against a world map.
package collision

import (
	"fmt"
	"math"

	"github.com/banshee-data/robosim/internal/kinematics"
	"github.com/banshee-data/robosim/internal/simerr"
	"github.com/banshee-data/robosim/internal/worldmap"
)

// Status is the outcome of a Check.
type Status int

const (
	OK Status = iota
	OutOfBounds
	Blocked
)

func (s Status) String() string {
	switch s {
	case OK:
		return "ok"
	case OutOfBounds:
		return "out_of_bounds"
	case Blocked:
		return "blocked"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result carries the status of a Check and, when rejected, a human-readable
// reason suitable for logs and telemetry.
type Result struct {
	Status Status
	Reason string
	// Cell is the first occupied cell met on the path when Status is Blocked.
	Cell worldmap.GridPoint
}

// OK reports whether the transition is allowed.
func (r Result) OK() bool { return r.Status == OK }

// Err returns the recoverable error matching the status, or nil.
func (r Result) Err() error {
	switch r.Status {
	case OutOfBounds:
		return simerr.Recoverablef(simerr.ErrOutOfBounds, "collision", "Check", "%s", r.Reason)
	case Blocked:
		return simerr.Recoverablef(simerr.ErrCollision, "collision", "Check", "%s", r.Reason)
	default:
		return nil
	}
}

// Check decides whether the robot may move from prev to candidate. The
// candidate must lie inside the map, and no occupied cell may lie on the
// line between the two poses as rasterized by the map's walker.
func Check(m *worldmap.Map, prev, candidate kinematics.Pose) Result {
	if !m.Contains(candidate.X, candidate.Y) {
		w, h := m.Extent()
		return Result{
			Status: OutOfBounds,
			Reason: fmt.Sprintf("position (%.3f, %.3f) outside map [0, %.3f) x [0, %.3f)", candidate.X, candidate.Y, w, h),
		}
	}

	if prev.X == candidate.X && prev.Y == candidate.Y {
		return Result{Status: OK}
	}

	res := m.Resolution()
	from := worldmap.GridPoint{
		X: pathCell(prev.X/res, candidate.X/res),
		Y: pathCell(prev.Y/res, candidate.Y/res),
	}
	to := worldmap.GridPoint{
		X: pathCell(candidate.X/res, prev.X/res),
		Y: pathCell(candidate.Y/res, prev.Y/res),
	}

	var hit worldmap.GridPoint
	clear := m.WalkLine(from, to, func(p worldmap.GridPoint) bool {
		if m.Query(p.X, p.Y) == worldmap.Occupied {
			hit = p
			return false
		}
		return true
	})
	if !clear {
		return Result{
			Status: Blocked,
			Reason: fmt.Sprintf("obstacle at cell (%d, %d) between %v and %v", hit.X, hit.Y, prev, candidate),
			Cell:   hit,
		}
	}
	return Result{Status: OK}
}

// A pose lying exactly on a cell boundary touches both neighbours. The path
// only counts the neighbour facing the other end of the move, so a robot can
// come to rest against an obstacle face and back away from it again.
func pathCell(u, other float64) int {
	c := math.Floor(u)
	if c == u && other < u {
		return int(c) - 1
	}
	return int(c)
}
