// Package geometry maps accelerometer samples reported by a die to the face
// that is pointing up. Each supported die type carries a table of reference
// vectors, one per face, measured by the die firmware.
package geometry

import "fmt"

// Axis is a signed 3-axis accelerometer sample as sent by the die.
type Axis struct {
	X, Y, Z int8
}

// Die describes one supported die type.
type Die struct {
	Name string
	// MaxFace is the value used to select this geometry (6 for a D6,
	// 100 for the percentile D10X).
	MaxFace int
	// Faces holds the reference vectors; index i is face i+1.
	Faces []Axis
	// Transform maps the raw 1-based index to the reported value.
	// Nil means identity.
	Transform func(raw int) int
}

// Percentile maps a raw D10 face (1..10) to the tens value it prints:
// 1..9 become 10..90 and 10 becomes 0.
func Percentile(raw int) int {
	return (raw % 10) * 10
}

var (
	d4Faces = []Axis{
		{0, -35, -52}, {-45, 31, -26}, {0, 31, 52}, {45, 31, -26},
	}
	d6Faces = []Axis{
		{0, 63, 0}, {0, 0, 63}, {-63, 0, 0}, {63, 0, 0}, {0, 0, -63}, {0, -63, 0},
	}
	d8Faces = []Axis{
		{0, -63, 0}, {45, 0, -45}, {0, 0, -63}, {-45, 0, -45},
		{-45, 0, 45}, {0, 0, 63}, {45, 0, 45}, {0, 63, 0},
	}
	d10Faces = []Axis{
		{0, 61, -20}, {58, 19, -20}, {36, -50, -20}, {-36, -50, -20},
		{-58, 19, -20}, {-58, -19, 20}, {-36, 50, 20}, {36, 50, 20},
		{58, -19, 20}, {0, -61, 20},
	}
	d12Faces = []Axis{
		{0, -33, -54}, {0, -33, 54}, {-47, -33, -16}, {-47, -33, 16},
		{-29, 54, -16}, {-29, 54, 16}, {29, 54, 16}, {29, 54, -16},
		{47, -33, 16}, {47, -33, -16}, {0, 54, -33}, {0, -54, 33},
	}
	d20Faces = []Axis{
		{0, 55, 30}, {0, 55, -30}, {52, 17, 30}, {-52, 17, 30},
		{32, -45, 30}, {-32, -45, 30}, {0, -55, -30}, {52, 17, -30},
		{32, -45, -30}, {-52, 17, -30}, {-32, -45, -30}, {0, -55, 30},
		{32, 45, 30}, {-32, 45, 30}, {0, 55, 30}, {-52, -17, 30},
		{52, -17, 30}, {32, 45, -30}, {-32, 45, -30}, {52, -17, -30},
	}
)

// table is read-only after package init.
var table = []Die{
	{Name: "d6", MaxFace: 6, Faces: d6Faces},
	{Name: "d20", MaxFace: 20, Faces: d20Faces},
	{Name: "d4", MaxFace: 4, Faces: d4Faces},
	{Name: "d8", MaxFace: 8, Faces: d8Faces},
	{Name: "d10", MaxFace: 10, Faces: d10Faces},
	{Name: "d10x", MaxFace: 100, Faces: d10Faces, Transform: Percentile},
	{Name: "d12", MaxFace: 12, Faces: d12Faces},
}

// Lookup returns the geometry whose MaxFace equals maxFace.
func Lookup(maxFace int) (Die, bool) {
	for _, d := range table {
		if d.MaxFace == maxFace {
			return d, true
		}
	}
	return Die{}, false
}

// ByName returns the geometry registered under name ("d6", "d10x", ...).
func ByName(name string) (Die, error) {
	for _, d := range table {
		if d.Name == name {
			return d, nil
		}
	}
	return Die{}, fmt.Errorf("geometry: unknown die type %q", name)
}

// Names lists the registered die type names in table order.
func Names() []string {
	names := make([]string, len(table))
	for i, d := range table {
		names[i] = d.Name
	}
	return names
}

// Nearest returns the 1-based index of the reference vector closest to
// sample by squared Euclidean distance. Ties go to the lowest index.
// Every sample maps to some face; there is no reject outcome.
func Nearest(faces []Axis, sample Axis) int {
	best := 0
	bestDist := -1
	for i, f := range faces {
		dx := int(f.X) - int(sample.X)
		dy := int(f.Y) - int(sample.Y)
		dz := int(f.Z) - int(sample.Z)
		dist := dx*dx + dy*dy + dz*dz
		if bestDist < 0 || dist < bestDist {
			best = i
			bestDist = dist
		}
	}
	return best + 1
}

// Classify returns the face value for sample on this die, with the
// die's transform applied.
func (d Die) Classify(sample Axis) int {
	raw := Nearest(d.Faces, sample)
	if d.Transform != nil {
		return d.Transform(raw)
	}
	return raw
}
