// Package kinematics integrates the unicycle model of a differential-drive
// robot. Distances are in metres, angles in radians and time in seconds.
package kinematics

import (
	"fmt"
	"math"
)

// Pose is a planar position and heading. Theta is not normalized.
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

func (p Pose) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f rad)", p.X, p.Y, p.Theta)
}

// Step advances pose under constant linear velocity v and angular velocity w
// for dt seconds.
//
// With w == 0 the robot moves in a straight line. Otherwise the result is the
// exact circular arc of radius v/w, so constant-velocity turns carry no
// per-tick discretization error regardless of dt.
func Step(pose Pose, v, w, dt float64) Pose {
	if w == 0 {
		return Pose{
			X:     pose.X + v*dt*math.Cos(pose.Theta),
			Y:     pose.Y + v*dt*math.Sin(pose.Theta),
			Theta: pose.Theta,
		}
	}

	arc := v / w
	theta := pose.Theta + w*dt
	return Pose{
		X:     pose.X - arc*math.Sin(pose.Theta) + arc*math.Sin(theta),
		Y:     pose.Y - (-arc*math.Cos(pose.Theta) + arc*math.Cos(theta)),
		Theta: theta,
	}
}

// Distance returns the Euclidean distance between the positions of a and b.
func Distance(a, b Pose) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}
