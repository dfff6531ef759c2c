package display

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"lcdvnc/hal"
	"lcdvnc/vncos/fonts"

	"golang.org/x/sync/semaphore"
)

// DefaultLockTimeout bounds how long a draw waits for the panel.
const DefaultLockTimeout = time.Second

var (
	ErrLockTimeout = errors.New("display: lock timeout")
	ErrOutOfBounds = errors.New("display: out of bounds")
	ErrShortBuffer = errors.New("display: short pixel buffer")
	ErrNoFont      = errors.New("display: no font")
)

// RGB565 colors.
const (
	Black   uint16 = 0x0000
	White   uint16 = 0xFFFF
	Red     uint16 = 0xF800
	Green   uint16 = 0x07E0
	Blue    uint16 = 0x001F
	Yellow  uint16 = 0xFFE0
	Cyan    uint16 = 0x07FF
	Magenta uint16 = 0xF81F
)

type Config struct {
	LockTimeout time.Duration
}

// Stats counts serializer activity since start.
type Stats struct {
	Draws     uint64
	Transfers uint64
	Dropped   uint64
	Errors    uint64
}

// Serializer is the only path to the panel. Every operation holds an
// exclusive lock for its whole hardware sequence, so at most one panel
// write is in flight at any time.
type Serializer struct {
	panel hal.Panel
	log   hal.Logger

	sem     *semaphore.Weighted
	timeout time.Duration

	width     int
	height    int
	maxPixels int

	draws     atomic.Uint64
	transfers atomic.Uint64
	dropped   atomic.Uint64
	errs      atomic.Uint64
}

func New(panel hal.Panel, log hal.Logger, cfg Config) *Serializer {
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}
	info := panel.Info()
	return &Serializer{
		panel:     panel,
		log:       log,
		sem:       semaphore.NewWeighted(1),
		timeout:   cfg.LockTimeout,
		width:     info.Width,
		height:    info.Height,
		maxPixels: info.MaxTransferPixels,
	}
}

// Size returns the panel dimensions in pixels.
func (s *Serializer) Size() (int, int) { return s.width, s.height }

func (s *Serializer) Stats() Stats {
	return Stats{
		Draws:     s.draws.Load(),
		Transfers: s.transfers.Load(),
		Dropped:   s.dropped.Load(),
		Errors:    s.errs.Load(),
	}
}

func (s *Serializer) logf(format string, args ...any) {
	if s.log == nil {
		return
	}
	s.log.WriteLineString("display: " + fmt.Sprintf(format, args...))
}

func (s *Serializer) lock() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.dropped.Add(1)
		s.logf("lock not acquired within %s, frame dropped", s.timeout)
		return ErrLockTimeout
	}
	return nil
}

func (s *Serializer) unlock() { s.sem.Release(1) }

func (s *Serializer) checkRect(x, y, w, h int) error {
	if x < 0 || y < 0 || x+w > s.width || y+h > s.height {
		return fmt.Errorf("%w: %d,%d %dx%d on %dx%d", ErrOutOfBounds, x, y, w, h, s.width, s.height)
	}
	return nil
}

// Blit draws a w*h block of RGB565 pixels, row-major.
func (s *Serializer) Blit(x, y, w, h int, pixels []uint16) error {
	if w <= 0 || h <= 0 {
		return nil
	}
	if err := s.checkRect(x, y, w, h); err != nil {
		return err
	}
	if len(pixels) < w*h {
		return fmt.Errorf("%w: %d < %d", ErrShortBuffer, len(pixels), w*h)
	}

	if err := s.lock(); err != nil {
		return err
	}
	defer s.unlock()

	s.draws.Add(1)
	return s.writeLocked(x, y, w, h, pixels)
}

// writeLocked issues the block in one transfer when it fits, otherwise one
// transfer per scanline, with over-wide scanlines split into segments.
func (s *Serializer) writeLocked(x, y, w, h int, pixels []uint16) error {
	if s.maxPixels <= 0 || w*h <= s.maxPixels {
		return s.transfer(x, y, w, h, pixels[:w*h])
	}

	seg := w
	if seg > s.maxPixels {
		seg = s.maxPixels
	}
	for row := 0; row < h; row++ {
		line := pixels[row*w : (row+1)*w]
		for off := 0; off < w; off += seg {
			n := min(seg, w-off)
			if err := s.transfer(x+off, y+row, n, 1, line[off:off+n]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Serializer) transfer(x, y, w, h int, pixels []uint16) error {
	s.transfers.Add(1)
	if err := s.panel.DrawBitmap(int16(x), int16(y), int16(w), int16(h), pixels); err != nil {
		s.errs.Add(1)
		s.logf("draw %d,%d %dx%d: %v", x, y, w, h, err)
		return fmt.Errorf("display: draw %d,%d %dx%d: %w", x, y, w, h, err)
	}
	return nil
}

// FillRect paints a solid rectangle.
func (s *Serializer) FillRect(x, y, w, h int, color uint16) error {
	if w <= 0 || h <= 0 {
		return nil
	}
	if err := s.checkRect(x, y, w, h); err != nil {
		return err
	}

	rows := h
	if s.maxPixels > 0 && w*rows > s.maxPixels {
		rows = max(s.maxPixels/w, 1)
	}
	buf := make([]uint16, w*rows)
	for i := range buf {
		buf[i] = color
	}

	if err := s.lock(); err != nil {
		return err
	}
	defer s.unlock()

	s.draws.Add(1)
	for done := 0; done < h; done += rows {
		n := min(rows, h-done)
		if err := s.writeLocked(x, y+done, w, n, buf[:w*n]); err != nil {
			return err
		}
	}
	return nil
}

// FillLines paints count full-width scanlines starting at start.
func (s *Serializer) FillLines(start, count int, color uint16) error {
	return s.FillRect(0, start, s.width, count, color)
}

// Clear paints the whole panel.
func (s *Serializer) Clear(color uint16) error {
	return s.FillRect(0, 0, s.width, s.height, color)
}

// DrawGlyph renders one character cell with its top-left corner at x,y.
func (s *Serializer) DrawGlyph(x, y int, code byte, f *fonts.Font, bg, fg uint16) error {
	if f == nil || f.Width <= 0 || f.Height <= 0 {
		return ErrNoFont
	}
	scratch := make([]uint16, f.Width*f.Height)
	renderGlyph(scratch, f, code, bg, fg)
	return s.Blit(x, y, f.Width, f.Height, scratch)
}

// DrawString draws text left to right from x, stopping at the right edge.
func (s *Serializer) DrawString(x, y int, text string, f *fonts.Font, bg, fg uint16) error {
	if f == nil || f.Width <= 0 {
		return ErrNoFont
	}
	for i := 0; i < len(text); i++ {
		cx := x + i*f.Width
		if cx < 0 {
			continue
		}
		if cx+f.Width > s.width {
			break
		}
		if err := s.DrawGlyph(cx, y, text[i], f, bg, fg); err != nil {
			return err
		}
	}
	return nil
}

// DrawStringCentered draws text centred horizontally on x.
func (s *Serializer) DrawStringCentered(x, y int, text string, f *fonts.Font, bg, fg uint16) error {
	if f == nil || f.Width <= 0 {
		return ErrNoFont
	}
	return s.DrawString(x-(len(text)*f.Width)/2, y, text, f, bg, fg)
}
