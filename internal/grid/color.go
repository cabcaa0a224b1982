package grid

import (
	"fmt"
	"strconv"
	"strings"
)

// Color is a 24-bit RGB value packed as R<<16 | G<<8 | B.
type Color uint32

// Mask keeps the low 24 bits of a color.
const Mask = 0xFFFFFF

// Placeholder checkerboard tones.
const (
	CheckerLight Color = 0x141414
	CheckerDark  Color = 0x101010
)

// Normalize truncates v to its low 24 bits. It is total and idempotent.
func Normalize(v int64) Color {
	return Color(uint64(v) & Mask)
}

// RGB splits c into its channels.
func (c Color) RGB() (r, g, b uint8) {
	return uint8(c >> 16), uint8(c >> 8), uint8(c)
}

// Hex renders c as #rrggbb.
func (c Color) Hex() string {
	return fmt.Sprintf("#%06x", uint32(c)&Mask)
}

func (c Color) String() string { return c.Hex() }

// ParseHex accepts "#rrggbb", "rrggbb" or "0xrrggbb".
func ParseHex(s string) (Color, error) {
	t := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "#"), "0x")
	if len(t) != 6 {
		return 0, fmt.Errorf("color %q: want 6 hex digits", s)
	}
	v, err := strconv.ParseUint(t, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("color %q: %w", s, err)
	}
	return Normalize(int64(v)), nil
}

// Random band: each channel is drawn from [bandLow, bandLow+bandWidth).
// It keeps random colors away from near-black and near-white.
const (
	bandLow   = 0x60
	bandWidth = 0x90
)

// Source is the randomness Random draws from. *rand.Rand from
// math/rand/v2 satisfies it.
type Source interface {
	IntN(n int) int
}

// Random packs three independent channels from the band into a color.
func Random(src Source) Color {
	r := bandLow + src.IntN(bandWidth)
	g := bandLow + src.IntN(bandWidth)
	b := bandLow + src.IntN(bandWidth)
	return Color(r<<16 | g<<8 | b)
}
