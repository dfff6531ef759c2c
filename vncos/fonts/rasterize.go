package fonts

import (
	"errors"
	"fmt"
	"image/color"

	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont"
)

const (
	firstPrintable = ' '
	lastPrintable  = '~'
)

// Metrics is the fixed cell derived from a proportional font.
type Metrics struct {
	Width  int
	Height int
	// Ascent is the baseline offset from the top of the cell.
	Ascent int
}

// ComputeMetrics scans the printable ASCII glyphs of src and returns the
// smallest cell that holds all of them.
func ComputeMetrics(src tinyfont.Fonter) (Metrics, error) {
	if src == nil {
		return Metrics{}, errors.New("nil font")
	}

	width := 0
	minY, maxY := 0, 0
	first := true
	for r := rune(firstPrintable); r <= lastPrintable; r++ {
		info := src.GetGlyph(r).Info()
		if adv := int(info.XAdvance); adv > width {
			width = adv
		}
		if right := int(info.XOffset) + int(info.Width); right > width {
			width = right
		}
		top := int(info.YOffset)
		bottom := top + int(info.Height)
		if first {
			minY, maxY = top, bottom
			first = false
			continue
		}
		if top < minY {
			minY = top
		}
		if bottom > maxY {
			maxY = bottom
		}
	}

	m := Metrics{Width: width, Height: maxY - minY, Ascent: -minY}
	if m.Width <= 0 || m.Height <= 0 || m.Ascent < 0 {
		return Metrics{}, fmt.Errorf("invalid metrics: width=%d height=%d ascent=%d", m.Width, m.Height, m.Ascent)
	}
	return m, nil
}

// FromFonter rasterizes the printable ASCII range of src into a packed
// fixed-cell Font.
func FromFonter(name string, src tinyfont.Fonter) (*Font, error) {
	m, err := ComputeMetrics(src)
	if err != nil {
		return nil, fmt.Errorf("fonts: %s: %w", name, err)
	}

	f := &Font{
		Name:   name,
		Width:  m.Width,
		Height: m.Height,
		First:  firstPrintable,
		Count:  lastPrintable - firstPrintable + 1,
	}
	size := f.GlyphSize()
	f.Table = make([]byte, f.Count*size)

	on := color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
	for i := 0; i < f.Count; i++ {
		c := &cell{
			width:  f.Width,
			height: f.Height,
			stride: f.BytesPerRow(),
			bits:   f.Table[i*size : (i+1)*size],
		}
		src.GetGlyph(rune(f.First)+rune(i)).Draw(c, 0, int16(m.Ascent), on)
	}
	return f, nil
}

// cell is a one-bit drivers.Displayer backed by a packed glyph slot.
type cell struct {
	width, height int
	stride        int
	bits          []byte
}

var _ drivers.Displayer = (*cell)(nil)

func (c *cell) Size() (int16, int16) {
	return int16(c.width), int16(c.height)
}

func (c *cell) SetPixel(x, y int16, col color.RGBA) {
	if x < 0 || y < 0 || int(x) >= c.width || int(y) >= c.height {
		return
	}
	mask := byte(0x80) >> (uint(x) & 7)
	idx := int(y)*c.stride + int(x)/8
	if col.A == 0 && col.R == 0 && col.G == 0 && col.B == 0 {
		c.bits[idx] &^= mask
		return
	}
	c.bits[idx] |= mask
}

func (c *cell) Display() error { return nil }
