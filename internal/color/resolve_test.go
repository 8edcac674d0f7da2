package color

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_KnownColors(t *testing.T) {
	tests := []struct {
		input string
		want  Color
	}{
		{"red", Color{R: 255}},
		{"RED", Color{R: 255}},
		{"  Blue  ", Color{B: 255}},
		{"green", Color{G: 128}},
		{"lime", Color{G: 255}},
		{"#ff8800", Color{R: 255, G: 136}},
		{"#FF8800", Color{R: 255, G: 136}},
		{"#0f0", Color{G: 255}},
		{"#abc", Color{R: 0xaa, G: 0xbb, B: 0xcc}},
		{"mediumvioletred", Color{R: 199, G: 21, B: 133}},
		{"Medium Violet Red", Color{R: 199, G: 21, B: 133}},
		{"light  sea green", Color{R: 32, G: 178, B: 170}},
		{"CornflowerBlue", Color{R: 100, G: 149, B: 237}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.input))
		})
	}
}

func TestResolve_FirstWordWins(t *testing.T) {
	assert.Equal(t, Color{R: 255}, Resolve("please go Red now"))
	assert.Equal(t, Color{G: 128}, Resolve("turn green please"))
	assert.Equal(t, Color{B: 255}, Resolve("blue then red"))
	assert.Equal(t, Color{R: 255, G: 255}, Resolve("make it #ff0 or blue"))
}

func TestResolve_WholeStringBeatsWords(t *testing.T) {
	// "dark red" joined is "darkred", which wins over the word "red".
	assert.Equal(t, Color{R: 139}, Resolve("dark red"))
}

func TestResolve_EmptyInputUsesFallback(t *testing.T) {
	empty := Resolve("")
	blank := Resolve("   \t\n ")

	assert.Equal(t, empty, blank)
	assert.Equal(t, Fallback(""), empty)
	assert.Equal(t, empty, Resolve(""))
}

func TestResolve_FallbackIsDeterministic(t *testing.T) {
	a := Resolve("not a color at all")
	b := Resolve("NOT a   color AT all")

	assert.Equal(t, a, b)
	assert.Equal(t, Fallback("notacoloratall"), a)
}

func TestResolve_NeverPanics(t *testing.T) {
	inputs := []string{
		"", "!!!", "#", "##", "#gg0000", "#12345", "#1234567", "赤", "🌈 rainbow",
		"\x00\xff", "- + #-1-1-1", "#+1+1+1",
	}
	for _, in := range inputs {
		require.NotPanics(t, func() { Resolve(in) }, "input %q", in)
	}
}

func TestResolve_UnicodeWithColorWord(t *testing.T) {
	assert.Equal(t, Color{B: 255}, Resolve("色は blue で"))
}

func TestParseSimple(t *testing.T) {
	c, ok := ParseSimple("#102030")
	require.True(t, ok)
	assert.Equal(t, Color{R: 0x10, G: 0x20, B: 0x30}, c)

	_, ok = ParseSimple("#10203")
	assert.False(t, ok)

	_, ok = ParseSimple("#zzzzzz")
	assert.False(t, ok)

	// extended names are not simple colors
	_, ok = ParseSimple("tomato")
	assert.False(t, ok)

	c, ok = ParseSimple("teal")
	require.True(t, ok)
	assert.Equal(t, Color{G: 128, B: 128}, c)
}

func TestParseNamed(t *testing.T) {
	c, ok := ParseNamed("tomato")
	require.True(t, ok)
	assert.Equal(t, Color{R: 255, G: 99, B: 71}, c)

	_, ok = ParseNamed("notacolor")
	assert.False(t, ok)
}

func TestColor_Brightness(t *testing.T) {
	assert.Equal(t, uint8(255), White.Brightness())
	assert.Equal(t, uint8(0), Black.Brightness())
	assert.Equal(t, uint8(85), Color{R: 255}.Brightness())
	assert.Equal(t, uint8(1), Color{R: 1, G: 1}.Brightness())
	assert.Equal(t, uint8(0), Color{R: 1}.Brightness())
}

func TestColor_Hex(t *testing.T) {
	assert.Equal(t, "#0a0b0c", Color{R: 10, G: 11, B: 12}.Hex())
}

func TestLookupPattern(t *testing.T) {
	p, ok := LookupPattern(" TRANS ")
	require.True(t, ok)
	require.Len(t, p, 3)
	assert.Equal(t, Color{R: 91, G: 206, B: 250}, p[0])

	p[0] = Black
	again, _ := LookupPattern("trans")
	assert.Equal(t, Color{R: 91, G: 206, B: 250}, again[0], "lookup must return a copy")

	_, ok = LookupPattern("nope")
	assert.False(t, ok)
}
