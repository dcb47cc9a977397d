package color

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRGBToHSB(t *testing.T) {
	tests := []struct {
		name string
		in   RGB
		want HSB
	}{
		{name: "black", in: RGB{0, 0, 0}, want: HSB{0, 0, 0}},
		{name: "white", in: RGB{255, 255, 255}, want: HSB{0, 0, 100}},
		{name: "red", in: RGB{255, 0, 0}, want: HSB{0, 100, 100}},
		{name: "green", in: RGB{0, 255, 0}, want: HSB{120, 100, 100}},
		{name: "blue", in: RGB{0, 0, 255}, want: HSB{240, 100, 100}},
		{name: "yellow", in: RGB{255, 255, 0}, want: HSB{60, 100, 100}},
		{name: "cyan", in: RGB{0, 255, 255}, want: HSB{180, 100, 100}},
		{name: "magenta", in: RGB{255, 0, 255}, want: HSB{300, 100, 100}},
		{name: "grey", in: RGB{128, 128, 128}, want: HSB{0, 0, 50}},
		{name: "orange", in: RGB{255, 136, 0}, want: HSB{32, 100, 100}},
		{name: "dim rose", in: RGB{100, 50, 75}, want: HSB{330, 50, 39}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RGBToHSB(tt.in))
		})
	}
}

func TestRGBToHSB_NegativeHueWraps(t *testing.T) {
	// red is the max channel and blue > green, so the raw hue fraction is negative
	inputs := []RGB{
		{255, 0, 1},
		{255, 0, 128},
		{200, 10, 20},
		{255, 254, 255},
	}
	for _, in := range inputs {
		got := RGBToHSB(in)
		assert.GreaterOrEqual(t, got.Hue, 0, "hue for %v", in)
		assert.Less(t, got.Hue, 360, "hue for %v", in)
	}

	assert.Equal(t, 0, RGBToHSB(RGB{255, 0, 1}).Hue, "hue rounding to 360 folds to 0")
	assert.Equal(t, 330, RGBToHSB(RGB{255, 0, 128}).Hue)
}

func TestRGBToHSB_Ranges(t *testing.T) {
	for r := 0; r <= 255; r += 51 {
		for g := 0; g <= 255; g += 17 {
			for b := 0; b <= 255; b += 85 {
				got := RGBToHSB(RGB{r, g, b})
				require.True(t, got.Hue >= 0 && got.Hue < 360, "hue %d for %d,%d,%d", got.Hue, r, g, b)
				require.True(t, got.Saturation >= 0 && got.Saturation <= 100)
				require.True(t, got.Brightness >= 0 && got.Brightness <= 100)
			}
		}
	}
}

func TestParseHex(t *testing.T) {
	c, err := ParseHex("#ff8800")
	require.NoError(t, err)
	assert.Equal(t, RGB{255, 136, 0}, c)

	c, err = ParseHex("0a0B0c")
	require.NoError(t, err)
	assert.Equal(t, RGB{10, 11, 12}, c)

	_, err = ParseHex("#fff")
	assert.Error(t, err)

	_, err = ParseHex("zzzzzz")
	assert.Error(t, err)
}

func TestRGB_Valid(t *testing.T) {
	assert.True(t, RGB{0, 128, 255}.Valid())
	assert.False(t, RGB{-1, 0, 0}.Valid())
	assert.False(t, RGB{0, 256, 0}.Valid())
}
