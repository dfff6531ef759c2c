package display

import "lcdvnc/vncos/fonts"

// renderGlyph expands a packed glyph into dst (Width*Height pixels).
// Bits are consumed MSB-first; a row ends after Width pixels and the
// remaining bits of that byte are padding.
func renderGlyph(dst []uint16, f *fonts.Font, code byte, bg, fg uint16) {
	for i := range dst {
		dst[i] = bg
	}

	ox, oy := 0, 0
	for _, b := range f.Glyph(code) {
		for mask := byte(0x80); mask != 0; mask >>= 1 {
			if b&mask != 0 {
				dst[oy*f.Width+ox] = fg
			}
			ox++
			if ox == f.Width {
				ox = 0
				oy++
				break
			}
		}
	}
}
