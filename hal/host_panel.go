//go:build !tinygo

package hal

import (
	"fmt"
	"image"
	"sync"
)

// hostPanel simulates a write-only SPI panel with a bounded transfer size.
type hostPanel struct {
	mu        sync.Mutex
	width     int
	height    int
	maxPixels int
	pix       []uint16
	transfers uint64
}

func newHostPanel(width, height, maxPixels int) *hostPanel {
	return &hostPanel{
		width:     width,
		height:    height,
		maxPixels: maxPixels,
		pix:       make([]uint16, width*height),
	}
}

func (p *hostPanel) Info() PanelInfo {
	return PanelInfo{
		Name:              "host-sim",
		Width:             p.width,
		Height:            p.height,
		MaxTransferPixels: p.maxPixels,
	}
}

func (p *hostPanel) DrawBitmap(x, y, w, h int16, pixels []uint16) error {
	if w <= 0 || h <= 0 {
		return nil
	}
	n := int(w) * int(h)
	if p.maxPixels > 0 && n > p.maxPixels {
		return fmt.Errorf("host panel: %d pixels: %w", n, ErrTransferTooLarge)
	}
	if len(pixels) < n {
		return fmt.Errorf("host panel: short pixel buffer %d < %d", len(pixels), n)
	}
	if x < 0 || y < 0 || int(x)+int(w) > p.width || int(y)+int(h) > p.height {
		return fmt.Errorf("host panel: rect %d,%d %dx%d: %w", x, y, w, h, ErrOutOfBounds)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for row := 0; row < int(h); row++ {
		dst := (int(y)+row)*p.width + int(x)
		copy(p.pix[dst:dst+int(w)], pixels[row*int(w):(row+1)*int(w)])
	}
	p.transfers++
	return nil
}

func (p *hostPanel) snapshotRGB565(dst []uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	copy(dst, p.pix)
}

// image converts the current panel contents for display or PNG export.
func (p *hostPanel) image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, p.width, p.height))
	p.fillRGBA(img.Pix, make([]uint16, len(p.pix)))
	return img
}

func (p *hostPanel) fillRGBA(dst []byte, scratch []uint16) {
	p.snapshotRGB565(scratch)
	for i, px := range scratch {
		j := i * 4
		if j+3 >= len(dst) {
			return
		}
		r, g, b := rgb888From565(px)
		dst[j+0] = r
		dst[j+1] = g
		dst[j+2] = b
		dst[j+3] = 0xFF
	}
}
