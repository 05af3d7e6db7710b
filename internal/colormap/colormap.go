// Package colormap maps normalized intensity values onto RGB colors by
// linear interpolation between ordered color stops. The three built-in
// palettes match the matplotlib perceptual maps commonly used for
// spectrogram displays.
package colormap

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidStops is returned for stop lists that are not strictly
// ascending from t=0 to t=1.
var ErrInvalidStops = errors.New("invalid color stops")

// Stop is one color anchor at position T in [0, 1].
type Stop struct {
	T       float64
	R, G, B uint8
}

// Map is an ordered list of color stops, strictly ascending in T, with
// the first stop at 0 and the last at 1. The zero value is not usable;
// construct via New, Parse or one of the built-ins.
type Map struct {
	Name  string
	Stops []Stop
}

// Built-in palettes. Nine stops each, low intensity first.
var (
	Viridis = Map{Name: "viridis", Stops: []Stop{
		{0.0, 68, 1, 84},
		{0.13, 71, 44, 122},
		{0.25, 59, 81, 139},
		{0.38, 44, 113, 142},
		{0.5, 33, 144, 140},
		{0.63, 39, 173, 129},
		{0.75, 92, 200, 99},
		{0.88, 170, 220, 50},
		{1.0, 253, 231, 37},
	}}

	Inferno = Map{Name: "inferno", Stops: []Stop{
		{0.0, 0, 0, 4},
		{0.13, 31, 12, 72},
		{0.25, 85, 15, 109},
		{0.38, 136, 19, 97},
		{0.5, 186, 25, 51},
		{0.63, 219, 51, 28},
		{0.75, 232, 113, 32},
		{0.88, 236, 173, 55},
		{1.0, 252, 255, 164},
	}}

	Plasma = Map{Name: "plasma", Stops: []Stop{
		{0.0, 13, 8, 135},
		{0.13, 84, 2, 163},
		{0.25, 139, 10, 165},
		{0.38, 185, 50, 137},
		{0.5, 219, 92, 104},
		{0.63, 244, 136, 73},
		{0.75, 254, 188, 43},
		{0.88, 240, 249, 33},
		{1.0, 240, 249, 33},
	}}
)

// New builds a custom Map after validating the stop list: at least two
// stops, strictly ascending in T, first at 0 and last at 1.
func New(name string, stops []Stop) (Map, error) {
	if len(stops) < 2 {
		return Map{}, fmt.Errorf("%w: need at least 2 stops, got %d", ErrInvalidStops, len(stops))
	}
	if stops[0].T != 0 {
		return Map{}, fmt.Errorf("%w: first stop at t=%g, must be 0", ErrInvalidStops, stops[0].T)
	}
	if stops[len(stops)-1].T != 1 {
		return Map{}, fmt.Errorf("%w: last stop at t=%g, must be 1", ErrInvalidStops, stops[len(stops)-1].T)
	}
	for i := 1; i < len(stops); i++ {
		if stops[i].T <= stops[i-1].T {
			return Map{}, fmt.Errorf("%w: stops not strictly ascending at index %d", ErrInvalidStops, i)
		}
	}

	owned := make([]Stop, len(stops))
	copy(owned, stops)
	return Map{Name: name, Stops: owned}, nil
}

// Parse converts a palette name (case-insensitive) to its built-in
// Map, returning Viridis and an error if the name is unknown.
func Parse(name string) (Map, error) {
	switch strings.ToLower(name) {
	case "viridis":
		return Viridis, nil
	case "inferno":
		return Inferno, nil
	case "plasma":
		return Plasma, nil
	default:
		return Viridis, fmt.Errorf("unknown color map name: '%s'", name)
	}
}

// Interpolate maps a normalized value to an RGB triple. The value is
// clamped to [0, 1]; exactly 0 and exactly 1 reproduce the first and
// last stop's color with no rounding drift.
func (m Map) Interpolate(value float64) (r, g, b uint8) {
	stops := m.Stops
	if value <= 0 || len(stops) == 1 {
		s := stops[0]
		return s.R, s.G, s.B
	}
	if value >= 1 {
		s := stops[len(stops)-1]
		return s.R, s.G, s.B
	}

	// Smallest i with stops[i].T >= value; value is strictly inside
	// (0, 1) here so i >= 1 and a left neighbor always exists.
	i := 1
	for i < len(stops)-1 && stops[i].T < value {
		i++
	}

	lo, hi := stops[i-1], stops[i]
	factor := (value - lo.T) / (hi.T - lo.T)

	r = uint8(math.Round(float64(lo.R) + factor*(float64(hi.R)-float64(lo.R))))
	g = uint8(math.Round(float64(lo.G) + factor*(float64(hi.G)-float64(lo.G))))
	b = uint8(math.Round(float64(lo.B) + factor*(float64(hi.B)-float64(lo.B))))
	return r, g, b
}
