package legend

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Color is an RGBA value. A zero alpha is treated as opaque by the renderers.
type Color struct {
	R, G, B, A uint8
}

func RGB(r, g, b uint8) Color { return Color{R: r, G: g, B: b, A: 255} }

var (
	Black = RGB(0, 0, 0)
	Red   = RGB(255, 0, 0)
	Gray  = RGB(128, 128, 128)
	White = RGB(255, 255, 255)
)

// Hex renders #rrggbb, with an alpha suffix when not opaque.
func (c Color) Hex() string {
	if c.A != 0 && c.A != 255 {
		return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
	}
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// ParseHex reads #rgb, #rrggbb or #rrggbbaa.
func ParseHex(s string) (Color, error) {
	s = strings.TrimSpace(s)
	if len(s) == 9 {
		var c Color
		if _, err := fmt.Sscanf(s, "#%02x%02x%02x%02x", &c.R, &c.G, &c.B, &c.A); err != nil {
			return Color{}, fmt.Errorf("color %q: %w", s, err)
		}
		return c, nil
	}
	cc, err := colorful.Hex(s)
	if err != nil {
		return Color{}, fmt.Errorf("color %q: %w", s, err)
	}
	r, g, b := cc.RGB255()
	return RGB(r, g, b), nil
}

func (c Color) MarshalText() ([]byte, error) { return []byte(c.Hex()), nil }

func (c *Color) UnmarshalText(b []byte) error {
	v, err := ParseHex(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

func fromColorful(c colorful.Color) Color {
	r, g, b := c.Clamped().RGB255()
	return RGB(r, g, b)
}

// Rainbow returns n colors ramped from blue through green to red.
func Rainbow(n int) []Color {
	out := make([]Color, n)
	for i := range out {
		h := 240.0
		if n > 1 {
			h = 240.0 * (1 - float64(i)/float64(n-1))
		}
		out[i] = fromColorful(colorful.Hsv(h, 0.85, 0.95))
	}
	return out
}

// RandomColors returns n reproducible colors for the given seed.
func RandomColors(n int, seed uint64) []Color {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]Color, n)
	for i := range out {
		out[i] = fromColorful(colorful.Hsv(r.Float64()*360, 0.45+0.5*r.Float64(), 0.6+0.4*r.Float64()))
	}
	return out
}
