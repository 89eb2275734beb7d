package version

import "testing"

func TestString(t *testing.T) {
	old := Version
	defer func() { Version = old }()

	Version = "v1.2.3"
	if got, want := String(), "robosim v1.2.3 (git unknown, built unknown)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
