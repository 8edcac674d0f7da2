package color

// Pattern is an ordered sequence of colors played one after another.
type Pattern []Color

// Patterns are the named multi-color fades. Keys are normalized names.
var Patterns = map[string]Pattern{
	"trans": {
		{R: 91, G: 206, B: 250},
		{R: 245, G: 169, B: 184},
		{R: 255, G: 255, B: 255},
	},
}

// LookupPattern finds a pattern by name, ignoring case and whitespace.
// The returned pattern is a copy.
func LookupPattern(name string) (Pattern, bool) {
	p, ok := Patterns[Normalize(name)]
	if !ok {
		return nil, false
	}
	return append(Pattern(nil), p...), true
}
