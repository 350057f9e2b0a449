package grid

import (
	"errors"
	"fmt"
	"image/color"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// ErrInvalidColor is returned when a color string is not a hex color.
var ErrInvalidColor = errors.New("invalid color")

// Color is a cell color in normalized lowercase "#rrggbb" form.
type Color string

const (
	White Color = "#ffffff"
	Black Color = "#000000"
)

// ParseColor accepts "#rgb" or "#rrggbb" in any case and returns the
// normalized form.
func ParseColor(s string) (Color, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "#") {
		return "", fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	return Color(c.Hex()), nil
}

// RGBA converts the color to an opaque image/color value. Colors that
// fail to parse render as black.
func (c Color) RGBA() color.NRGBA {
	parsed, err := colorful.Hex(string(c))
	if err != nil {
		return color.NRGBA{A: 0xff}
	}
	r, g, b := parsed.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 0xff}
}

func (c Color) String() string {
	return string(c)
}
