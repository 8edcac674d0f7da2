package color

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Resolve maps arbitrary text to a color and never fails.
//
// The whole text (lower-cased, whitespace removed) is tried first, then each
// word left to right. When nothing matches, the color is derived from the
// xxHash64 of the normalized text, so the same input always gives the same
// color, across runs and machines.
func Resolve(text string) Color {
	normalized := Normalize(text)
	if c, ok := parse(normalized); ok {
		return c
	}

	for _, word := range strings.Fields(text) {
		if c, ok := parse(strings.ToLower(word)); ok {
			return c
		}
	}

	return Fallback(normalized)
}

// Fallback derives a pseudo-random color from the normalized text.
func Fallback(normalized string) Color {
	h := xxhash.Sum64String(normalized)
	return Color{
		R: uint8(h & 0xFF),
		G: uint8((h >> 8) & 0xFF),
		B: uint8((h >> 16) & 0xFF),
	}
}

// Normalize lower-cases s and removes all whitespace.
func Normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

func parse(s string) (Color, bool) {
	if s == "" {
		return Color{}, false
	}
	if c, ok := ParseSimple(s); ok {
		return c, true
	}
	return ParseNamed(s)
}
