package kinematics

import (
	"math"
	"testing"
)

const tolerance = 1e-9

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestStep_StraightLine(t *testing.T) {
	tests := []struct {
		name  string
		start Pose
		v, dt float64
		want  Pose
	}{
		{"east", Pose{0, 5, 0}, 1, 1, Pose{1, 5, 0}},
		{"north", Pose{2, 2, math.Pi / 2}, 2, 0.5, Pose{2, 3, math.Pi / 2}},
		{"reverse", Pose{3, 3, 0}, -1, 2, Pose{1, 3, 0}},
		{"diagonal", Pose{0, 0, math.Pi / 4}, math.Sqrt2, 1, Pose{1, 1, math.Pi / 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Step(tt.start, tt.v, 0, tt.dt)
			if !near(got.X, tt.want.X, tolerance) || !near(got.Y, tt.want.Y, tolerance) || got.Theta != tt.want.Theta {
				t.Errorf("Step() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStep_ArcApproachesStraightLine(t *testing.T) {
	start := Pose{1, 2, 0.3}
	straight := Step(start, 1.5, 0, 0.8)

	prevErr := math.Inf(1)
	for _, w := range []float64{1e-1, 1e-3, 1e-5, 1e-7} {
		arc := Step(start, 1.5, w, 0.8)
		err := Distance(arc, straight)
		if err >= prevErr {
			t.Errorf("w=%g: error %g did not shrink (previous %g)", w, err, prevErr)
		}
		prevErr = err
	}
	if prevErr > 1e-6 {
		t.Errorf("arc did not converge to straight line, residual %g", prevErr)
	}
}

func TestStep_QuarterCircle(t *testing.T) {
	// radius 1, quarter turn anticlockwise from the origin facing +x
	got := Step(Pose{0, 0, 0}, math.Pi/2, math.Pi/2, 1)

	if !near(got.X, 1, tolerance) || !near(got.Y, 1, tolerance) || !near(got.Theta, math.Pi/2, tolerance) {
		t.Errorf("Step() = %v, want (1, 1, pi/2)", got)
	}
}

func TestStep_SpinInPlace(t *testing.T) {
	got := Step(Pose{4, 4, 0}, 0, 1, math.Pi)

	if !near(got.X, 4, tolerance) || !near(got.Y, 4, tolerance) || !near(got.Theta, math.Pi, tolerance) {
		t.Errorf("Step() = %v, want (4, 4, pi)", got)
	}
}

func TestStep_ZeroCommandIsIdempotent(t *testing.T) {
	start := Pose{3.25, 7.5, 1.1}
	pose := start
	for i := 0; i < 1000; i++ {
		pose = Step(pose, 0, 0, 0.05)
	}
	if pose != start {
		t.Errorf("pose drifted under zero command: got %v, want %v", pose, start)
	}
}

func TestStep_FullCircleReturnsHome(t *testing.T) {
	start := Pose{5, 5, 0}
	pose := start
	// 100 ticks of a full circle split evenly
	for i := 0; i < 100; i++ {
		pose = Step(pose, 1, 2*math.Pi/10, 0.1)
	}
	if Distance(pose, start) > 1e-9 {
		t.Errorf("expected to return to start, ended at %v", pose)
	}
}
