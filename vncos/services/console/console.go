package console

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"lcdvnc/hal"
	"lcdvnc/vncos/fonts"
	"lcdvnc/vncos/services/display"
)

const (
	hSpacing = 2
	vSpacing = 2

	// DefaultPeriod is the render interval of the console task.
	DefaultPeriod = 80 * time.Millisecond

	blinkEvery = 4

	maxPending = 4096
)

var ErrNotInitialized = errors.New("console: not initialized")

// Surface is the part of the display serializer the console draws through.
type Surface interface {
	Size() (int, int)
	DrawGlyph(x, y int, code byte, f *fonts.Font, bg, fg uint16) error
	FillRect(x, y, w, h int, color uint16) error
	Clear(color uint16) error
}

type Config struct {
	Period time.Duration
	FG, BG uint16
}

// Console is a character grid rendered through a Surface.
//
// current holds what should be on screen and shadow what was last drawn;
// a render pass draws only the cells where they differ.
type Console struct {
	surface Surface
	log     hal.Logger
	period  time.Duration

	mu          sync.Mutex
	font        *fonts.Font
	ox, oy      int
	lines, cols int
	current     [][]byte
	shadow      [][]byte
	curLine     int
	curCol      int
	forceRedraw bool
	scrolled    bool
	cursorOn    bool
	cursorAt    [2]int // cell holding the drawn cursor block
	fg, bg      uint16
	pending     []byte
	iter        int

	// renderMu is held for every render or blink pass so Enable(false)
	// can wait out a pass already in flight.
	renderMu sync.Mutex
	enabled  atomic.Bool
	wake     chan struct{}
}

func New(surface Surface, log hal.Logger, cfg Config) *Console {
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.FG == 0 && cfg.BG == 0 {
		cfg.FG = display.White
		cfg.BG = display.Black
	}
	return &Console{
		surface: surface,
		log:     log,
		period:  cfg.Period,
		fg:      cfg.FG,
		bg:      cfg.BG,
		wake:    make(chan struct{}, 1),
	}
}

// Init sizes the grid for font and replays text printed before Init.
// Nonzero forceLines/forceCols override the computed size.
func (c *Console) Init(font *fonts.Font, originX, originY, forceLines, forceCols int) error {
	if font == nil || font.Width <= 0 || font.Height <= 0 {
		return display.ErrNoFont
	}
	w, h := c.surface.Size()
	cols := w / (font.Width + hSpacing)
	lines := h / (font.Height + vSpacing)
	if forceCols > 0 {
		cols = forceCols
	}
	if forceLines > 0 {
		lines = forceLines
	}
	if cols <= 0 || lines <= 0 {
		return fmt.Errorf("console: %dx%d surface too small for %dx%d font", w, h, font.Width, font.Height)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.font = font
	c.ox, c.oy = originX, originY
	c.lines, c.cols = lines, cols
	c.current = newGrid(lines, cols, ' ')
	c.shadow = newGrid(lines, cols, 0)
	c.curLine, c.curCol = 0, 0
	c.cursorOn = false
	c.forceRedraw = true
	pending := c.pending
	c.pending = nil
	for _, ch := range pending {
		c.putLocked(ch)
	}
	return nil
}

func newGrid(lines, cols int, fill byte) [][]byte {
	cells := make([]byte, lines*cols)
	for i := range cells {
		cells[i] = fill
	}
	g := make([][]byte, lines)
	for l := range g {
		g[l] = cells[l*cols : (l+1)*cols]
	}
	return g
}

// Size returns the grid dimensions.
func (c *Console) Size() (lines, cols int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lines, c.cols
}

// Cursor returns the cursor position.
func (c *Console) Cursor() (line, col int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.curLine, c.curCol
}

// Line returns the current content of one grid line.
func (c *Console) Line(l int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l < 0 || l >= c.lines {
		return ""
	}
	return string(c.current[l])
}

// SetCursor moves the cursor, clamping it into the grid. It does nothing
// before Init.
func (c *Console) SetCursor(line, col int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return
	}
	c.curLine = min(max(line, 0), c.lines-1)
	c.curCol = min(max(col, 0), c.cols-1)
}

func (c *Console) SetColors(fg, bg uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fg, c.bg = fg, bg
	c.forceRedraw = true
}

// PrintString appends text to the grid. It never draws.
func (c *Console) PrintString(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		c.pending = append(c.pending, text...)
		if over := len(c.pending) - maxPending; over > 0 {
			c.pending = c.pending[over:]
		}
		return
	}
	for i := 0; i < len(text); i++ {
		c.putLocked(text[i])
	}
}

func (c *Console) Printf(format string, args ...any) {
	c.PrintString(fmt.Sprintf(format, args...))
}

func (c *Console) putLocked(ch byte) {
	switch ch {
	case '\n':
		c.curCol = 0
		c.newlineLocked()
	case '\r':
		c.curCol = 0
	default:
		c.current[c.curLine][c.curCol] = ch
		c.curCol++
		if c.curCol >= c.cols {
			c.curCol = 0
			c.newlineLocked()
		}
	}
}

func (c *Console) newlineLocked() {
	c.curLine++
	if c.curLine >= c.lines {
		c.scrollLocked()
		c.curLine = c.lines - 1
	}
}

// scrollLocked moves every line up by one, blanks the last line and
// marks every cell dirty.
func (c *Console) scrollLocked() {
	for l := 0; l < c.lines-1; l++ {
		copy(c.current[l], c.current[l+1])
	}
	last := c.current[c.lines-1]
	for i := range last {
		last[i] = ' '
	}
	for l := range c.shadow {
		clear(c.shadow[l])
	}
	c.scrolled = true
}

func (c *Console) cursorCellLocked() [2]int {
	return [2]int{c.curLine, min(c.curCol, c.cols-1)}
}

func (c *Console) redrawPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.forceRedraw || c.scrolled
}

func (c *Console) cellOrigin(line, col int) (int, int) {
	return c.ox + col*(c.font.Width+hSpacing), c.oy + line*(c.font.Height+vSpacing)
}

type dirtyCell struct {
	line, col int
	ch        byte
}

// Render draws every cell whose current content differs from the shadow,
// or every cell when a full redraw is pending. It is a no-op while the
// console is disabled.
func (c *Console) Render() error {
	c.renderMu.Lock()
	defer c.renderMu.Unlock()
	if !c.enabled.Load() {
		return nil
	}

	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return ErrNotInitialized
	}
	if c.cursorOn && c.cursorAt != c.cursorCellLocked() {
		// The cursor moved off a drawn block; repaint the cell under it.
		c.shadow[c.cursorAt[0]][c.cursorAt[1]] = 0
		c.cursorOn = false
	}
	var dirty []dirtyCell
	for l := 0; l < c.lines; l++ {
		for col := 0; col < c.cols; col++ {
			ch := c.current[l][col]
			if c.forceRedraw || ch != c.shadow[l][col] {
				dirty = append(dirty, dirtyCell{line: l, col: col, ch: ch})
				c.shadow[l][col] = ch
			}
		}
	}
	c.forceRedraw = false
	c.scrolled = false
	font, fg, bg := c.font, c.fg, c.bg
	c.mu.Unlock()

	var firstErr error
	for _, d := range dirty {
		ch := d.ch
		if ch < ' ' || ch > '~' {
			ch = ' '
		}
		c.mu.Lock()
		x, y := c.cellOrigin(d.line, d.col)
		c.mu.Unlock()
		if err := c.surface.DrawGlyph(x, y, ch, font, bg, fg); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			// Leave the cell dirty so the next pass retries it.
			c.mu.Lock()
			c.shadow[d.line][d.col] = 0
			c.mu.Unlock()
		}
	}
	return firstErr
}

// BlinkCursor toggles the cursor and redraws only the cursor cell.
func (c *Console) BlinkCursor() error {
	c.renderMu.Lock()
	defer c.renderMu.Unlock()
	if !c.enabled.Load() {
		return nil
	}

	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return ErrNotInitialized
	}
	c.cursorOn = !c.cursorOn
	on := c.cursorOn
	at := c.cursorCellLocked()
	c.cursorAt = at
	line, col := at[0], at[1]
	ch := c.current[line][col]
	x, y := c.cellOrigin(line, col)
	font, fg, bg := c.font, c.fg, c.bg
	c.mu.Unlock()

	if on {
		return c.surface.FillRect(x, y, font.Width, font.Height, fg)
	}
	if ch < ' ' || ch > '~' {
		ch = ' '
	}
	return c.surface.DrawGlyph(x, y, ch, font, bg, fg)
}
