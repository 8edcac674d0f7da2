// Package color turns free-form viewer text into an RGB light color.
package color

import (
	"fmt"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/colornames"
)

// Color is an 8-bit RGB triple. It carries no name once resolved.
type Color struct {
	R uint8
	G uint8
	B uint8
}

var (
	White = Color{R: 255, G: 255, B: 255}
	Black = Color{}
)

// Hex returns the color as "#rrggbb".
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// RGB returns the channels in the order Home Assistant expects for rgb_color.
func (c Color) RGB() [3]uint8 {
	return [3]uint8{c.R, c.G, c.B}
}

// Brightness is the arithmetic mean of the three channels, rounded to the
// nearest integer. It is not a perceptual luminance.
func (c Color) Brightness() uint8 {
	sum := int(c.R) + int(c.G) + int(c.B)
	return uint8((sum + 1) / 3)
}

func (c Color) String() string {
	return c.Hex()
}

// basicNames are the sixteen HTML 4 color keywords.
var basicNames = map[string]struct{}{
	"black": {}, "silver": {}, "gray": {}, "white": {},
	"maroon": {}, "red": {}, "purple": {}, "fuchsia": {},
	"green": {}, "lime": {}, "olive": {}, "yellow": {},
	"navy": {}, "blue": {}, "teal": {}, "aqua": {},
}

// ParseSimple accepts "#rrggbb", "#rgb" or one of the HTML 4 basic color
// keywords. Input must already be lower-cased.
func ParseSimple(s string) (Color, bool) {
	if strings.HasPrefix(s, "#") {
		return parseHex(s)
	}
	if _, ok := basicNames[s]; ok {
		return ParseNamed(s)
	}
	return Color{}, false
}

// ParseNamed looks s up in the CSS/SVG extended color keyword table.
func ParseNamed(s string) (Color, bool) {
	rgba, ok := colornames.Map[s]
	if !ok {
		return Color{}, false
	}
	return Color{R: rgba.R, G: rgba.G, B: rgba.B}, true
}

func parseHex(s string) (Color, bool) {
	if len(s) != 4 && len(s) != 7 {
		return Color{}, false
	}
	for _, r := range s[1:] {
		if !isHexDigit(r) {
			return Color{}, false
		}
	}

	c, err := colorful.Hex(s)
	if err != nil {
		return Color{}, false
	}
	r, g, b := c.RGB255()
	return Color{R: r, G: g, B: b}, true
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}
