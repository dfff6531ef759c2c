package fbtest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"lcdvnc/hal"
	"lcdvnc/vncos/fonts"
	"lcdvnc/vncos/kernel"
	"lcdvnc/vncos/services/display"
)

// DefaultPeriod is the redraw interval of the pattern.
const DefaultPeriod = 100 * time.Millisecond

const bands = 5

var bandColors = [bands]uint16{display.Red, display.Green, display.Blue, display.Yellow, display.White}

// counterBand is the band the frame counter is drawn in.
const counterBand = 2

// Surface is the part of the display serializer the pattern draws with.
type Surface interface {
	Size() (int, int)
	FillLines(start, count int, color uint16) error
	Clear(color uint16) error
	DrawStringCentered(x, y int, text string, f *fonts.Font, bg, fg uint16) error
}

type Config struct {
	Period time.Duration
}

// Task is the display test pattern: five colour bands and a frame
// counter, redrawn while it owns the screen.
type Task struct {
	surface Surface
	font    *fonts.Font
	log     hal.Logger
	period  time.Duration

	// drawMu is held for every frame so Deactivate can wait one out.
	drawMu sync.Mutex
	active atomic.Bool
	frame  atomic.Uint32
	wake   chan struct{}
}

func New(surface Surface, font *fonts.Font, log hal.Logger, cfg Config) *Task {
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	return &Task{
		surface: surface,
		font:    font,
		log:     log,
		period:  cfg.Period,
		wake:    make(chan struct{}, 1),
	}
}

func (t *Task) logf(format string, args ...any) {
	if t.log == nil {
		return
	}
	t.log.WriteLineString("fbtest: " + fmt.Sprintf(format, args...))
}

// Activate clears the screen and starts the pattern from frame zero.
func (t *Task) Activate() {
	t.drawMu.Lock()
	if err := t.surface.Clear(display.Black); err != nil {
		t.logf("clear: %v", err)
	}
	t.frame.Store(0)
	t.active.Store(true)
	t.drawMu.Unlock()

	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Deactivate stops drawing and returns once no frame is in flight.
func (t *Task) Deactivate() {
	t.active.Store(false)
	t.drawMu.Lock()
	t.drawMu.Unlock()
}

func (t *Task) Active() bool { return t.active.Load() }

// Frame returns the number of frames drawn since the last Activate.
func (t *Task) Frame() uint32 { return t.frame.Load() }

// Draw renders one frame. It is a no-op while inactive.
func (t *Task) Draw() error {
	t.drawMu.Lock()
	defer t.drawMu.Unlock()
	if !t.active.Load() {
		return nil
	}

	w, h := t.surface.Size()
	band := h / bands
	n := t.frame.Load()

	var errs []error
	for i, c := range bandColors {
		if err := t.surface.FillLines(i*band, band, c); err != nil {
			errs = append(errs, err)
		}
		if i != counterBand || t.font == nil {
			continue
		}
		y := i*band + (band-t.font.Height)/2
		if err := t.surface.DrawStringCentered(w/2, y, strconv.FormatUint(uint64(n), 10), t.font, display.Blue, display.White); err != nil {
			errs = append(errs, err)
		}
	}
	t.frame.Add(1)
	return errors.Join(errs...)
}

// Run is the pattern task. It parks while another mode owns the screen.
func (t *Task) Run(ctx context.Context) error {
	for {
		if !t.active.Load() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.wake:
			}
			continue
		}
		if err := t.Draw(); err != nil {
			t.logf("draw: %v", err)
		}
		if err := kernel.Sleep(ctx, t.period); err != nil {
			return err
		}
	}
}
