package fonts

// Font is a fixed-cell bitmap font.
//
// Glyphs cover codes First..First+Count-1 in order. Each glyph is Height
// rows of BytesPerRow bytes, bits MSB-first, left pixel first.
type Font struct {
	Name   string
	Width  int
	Height int
	First  byte
	Count  int
	Table  []byte
}

// BytesPerRow is ceil(Width/8).
func (f *Font) BytesPerRow() int {
	return (f.Width + 7) / 8
}

// GlyphSize is the number of table bytes per glyph.
func (f *Font) GlyphSize() int {
	return f.Height * f.BytesPerRow()
}

// Has reports whether code has a glyph in the table.
func (f *Font) Has(code byte) bool {
	if f == nil || code < f.First {
		return false
	}
	idx := int(code - f.First)
	if idx >= f.Count {
		return false
	}
	end := (idx + 1) * f.GlyphSize()
	return end <= len(f.Table)
}

// Glyph returns the packed rows for code. Unknown codes fall back to '?',
// and to nil when the font has no '?' either.
func (f *Font) Glyph(code byte) []byte {
	if !f.Has(code) {
		if code == '?' || !f.Has('?') {
			return nil
		}
		code = '?'
	}
	size := f.GlyphSize()
	off := int(code-f.First) * size
	return f.Table[off : off+size]
}
