// Package color converts caller-facing RGB values into the hue/saturation/
// brightness triple the bulb expects.
package color

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// RGB is a color with 8-bit channels. Values outside [0,255] are not
// clamped; callers are responsible for staying in range.
type RGB struct {
	R int `json:"red"`
	G int `json:"green"`
	B int `json:"blue"`
}

// HSB is the bulb's native color representation.
type HSB struct {
	Hue        int // 0 to 359
	Saturation int // 0 to 100
	Brightness int // 0 to 100
}

func (c RGB) String() string {
	return fmt.Sprintf("rgb(%d,%d,%d)", c.R, c.G, c.B)
}

// Valid reports whether every channel is within [0,255].
func (c RGB) Valid() bool {
	for _, v := range [...]int{c.R, c.G, c.B} {
		if v < 0 || v > 255 {
			return false
		}
	}
	return true
}

func (c HSB) String() string {
	return fmt.Sprintf("hsb(%d,%d,%d)", c.Hue, c.Saturation, c.Brightness)
}

// RGBToHSB converts c to HSB using a hexcone model.
func RGBToHSB(c RGB) HSB {
	r := float64(c.R) / 255
	g := float64(c.G) / 255
	b := float64(c.B) / 255

	v := math.Max(r, math.Max(g, b))
	n := v - math.Min(r, math.Min(g, b))

	var h float64
	switch {
	case n == 0:
		h = 0
	case v == r:
		h = (g - b) / n
	case v == g:
		h = 2 + (b-r)/n
	default:
		h = 4 + (r-g)/n
	}
	if h < 0 {
		h += 6
	}

	var s float64
	if v != 0 {
		s = n / v * 100
	}

	return HSB{
		// hues just below red round up to 360
		Hue:        int(math.Round(60*h)) % 360,
		Saturation: int(math.Round(s)),
		Brightness: int(math.Round(v * 100)),
	}
}

// ParseHex parses "#rrggbb" or "rrggbb".
func ParseHex(s string) (RGB, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return RGB{}, fmt.Errorf("invalid hex color %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return RGB{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return RGB{
		R: int(v >> 16 & 0xff),
		G: int(v >> 8 & 0xff),
		B: int(v & 0xff),
	}, nil
}
