// Package actor models the static entities sensors can perceive: people,
// sound sources, markers, tags and hazards. Actors never collide with the
// robot; they exist only to be found by proximity and field-of-view queries.
package actor

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"
)

// Kind identifies what an actor represents.
type Kind string

const (
	Human   Kind = "human"
	Sound   Kind = "sound"
	QR      Kind = "qr"
	Barcode Kind = "barcode"
	Color   Kind = "color"
	Text    Kind = "text"
	RFID    Kind = "rfid"
	Fire    Kind = "fire"
	Water   Kind = "water"
)

var knownKinds = map[Kind]bool{
	Human: true, Sound: true, QR: true, Barcode: true, Color: true,
	Text: true, RFID: true, Fire: true, Water: true,
}

// ParseKind validates a kind name from configuration.
func ParseKind(name string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(name)))
	if !knownKinds[k] {
		return "", fmt.Errorf("unknown actor kind %q", name)
	}
	return k, nil
}

// Actor is a single perceivable entity.
type Actor struct {
	ID       string `json:"id"`
	Kind     Kind   `json:"kind"`
	Position r2.Vec `json:"position"`
	// Payload is the kind-specific content: QR/barcode/text contents, a
	// colour name, an RFID tag id, a speech line for a sound actor.
	Payload string `json:"payload,omitempty"`
	// Intensity is a kind-specific magnitude: sound level in dB, fire heat
	// in degrees above ambient, water humidity contribution in percent.
	Intensity float64 `json:"intensity,omitempty"`
}

// Sighting is an actor seen from an observer, with range and relative
// bearing.
type Sighting struct {
	Actor
	Distance float64 `json:"distance"`
	// Bearing is the angle to the actor relative to the observer heading,
	// normalized to (-pi, pi].
	Bearing float64 `json:"bearing"`
}

// Set is an immutable collection of actors. The zero value is empty and
// usable.
type Set struct {
	actors []Actor
}

// NewSet copies actors into a Set. IDs must be unique.
func NewSet(actors ...Actor) (*Set, error) {
	seen := make(map[string]bool, len(actors))
	for _, a := range actors {
		if a.ID == "" {
			return nil, fmt.Errorf("actor with kind %q has no id", a.Kind)
		}
		if seen[a.ID] {
			return nil, fmt.Errorf("duplicate actor id %q", a.ID)
		}
		if !knownKinds[a.Kind] {
			return nil, fmt.Errorf("actor %q: unknown kind %q", a.ID, a.Kind)
		}
		seen[a.ID] = true
	}
	return &Set{actors: append([]Actor(nil), actors...)}, nil
}

// All returns a copy of every actor.
func (s *Set) All() []Actor {
	if s == nil {
		return nil
	}
	return append([]Actor(nil), s.actors...)
}

// Len returns the number of actors.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.actors)
}

func matches(k Kind, kinds []Kind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, want := range kinds {
		if k == want {
			return true
		}
	}
	return false
}

// Within returns the actors of the given kinds (all kinds if none are given)
// no further than radius from pos, nearest first. Bearings are relative to
// heading.
func (s *Set) Within(pos r2.Vec, heading, radius float64, kinds ...Kind) []Sighting {
	return s.query(pos, heading, radius, math.Inf(1), kinds)
}

// InFieldOfView is Within restricted to actors whose bearing lies inside a
// cone of total angle fov centred on heading.
func (s *Set) InFieldOfView(pos r2.Vec, heading, fov, radius float64, kinds ...Kind) []Sighting {
	return s.query(pos, heading, radius, fov/2, kinds)
}

func (s *Set) query(pos r2.Vec, heading, radius, halfFOV float64, kinds []Kind) []Sighting {
	if s == nil {
		return nil
	}
	var out []Sighting
	for _, a := range s.actors {
		if !matches(a.Kind, kinds) {
			continue
		}
		d := r2.Sub(a.Position, pos)
		dist := r2.Norm(d)
		if dist > radius {
			continue
		}
		bearing := 0.0
		if dist > 0 {
			bearing = NormalizeAngle(math.Atan2(d.Y, d.X) - heading)
		}
		if math.Abs(bearing) > halfFOV {
			continue
		}
		out = append(out, Sighting{Actor: a, Distance: dist, Bearing: bearing})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out
}

// NormalizeAngle maps theta into (-pi, pi].
func NormalizeAngle(theta float64) float64 {
	theta = math.Mod(theta, 2*math.Pi)
	if theta <= -math.Pi {
		theta += 2 * math.Pi
	} else if theta > math.Pi {
		theta -= 2 * math.Pi
	}
	return theta
}
