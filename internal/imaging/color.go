package imaging

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// ParseColor parses an overlay colour given as "#RRGGBB" or "#RGB".
//
// The leading '#' is optional. The returned colour is always fully opaque.
func ParseColor(hex string) (color.NRGBA, error) {
	s := strings.TrimSpace(hex)
	if s == "" {
		return color.NRGBA{}, fmt.Errorf("empty color string")
	}
	if s[0] != '#' {
		s = "#" + s
	}
	if len(s) != 4 && len(s) != 7 {
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q: want #RGB or #RRGGBB", hex)
	}

	c, err := colorful.Hex(strings.ToLower(s))
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q: %w", hex, err)
	}

	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}, nil
}

// ColorHex formats c as "#RRGGBB", ignoring alpha.
func ColorHex(c color.Color) string {
	cc, _ := colorful.MakeColor(c)
	return strings.ToUpper(cc.Hex())
}
