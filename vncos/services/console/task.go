package console

import (
	"context"
	"errors"
	"time"

	"lcdvnc/vncos/kernel"
)

// repaintDelay is the pause between passes while a repaint is pending.
const repaintDelay = 10 * time.Millisecond

// Enable controls whether the console may draw. clearFirst clears the
// surface and forces a full redraw. draw=false suspends drawing and
// returns only once no console pass is in flight.
func (c *Console) Enable(draw, clearFirst bool) {
	if clearFirst {
		c.enabled.Store(false)
		c.renderMu.Lock()
		c.mu.Lock()
		bg := c.bg
		c.forceRedraw = true
		c.cursorOn = false
		c.mu.Unlock()
		if err := c.surface.Clear(bg); err != nil && c.log != nil {
			c.log.WriteLineString("console: clear: " + err.Error())
		}
		c.renderMu.Unlock()
	}

	if !draw {
		c.enabled.Store(false)
		c.renderMu.Lock()
		c.renderMu.Unlock()
		return
	}

	c.mu.Lock()
	c.forceRedraw = true
	c.mu.Unlock()
	c.enabled.Store(true)
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Console) Enabled() bool { return c.enabled.Load() }

// Activate takes over the screen: clear, full redraw, resume.
func (c *Console) Activate() { c.Enable(true, true) }

// Deactivate suspends drawing so another owner can use the screen.
func (c *Console) Deactivate() { c.Enable(false, false) }

// Step runs one iteration of the console task: a render pass and, every
// fourth iteration, a cursor blink unless a repaint was pending.
func (c *Console) Step() error {
	pending := c.redrawPending()
	err := c.Render()

	c.mu.Lock()
	c.iter++
	blink := c.iter%blinkEvery == 0
	c.mu.Unlock()

	if blink && !pending {
		if berr := c.BlinkCursor(); err == nil {
			err = berr
		}
	}
	return err
}

// Run is the console task. It parks while the console is disabled.
func (c *Console) Run(ctx context.Context) error {
	for {
		if !c.enabled.Load() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.wake:
			}
			continue
		}

		if err := c.Step(); errors.Is(err, ErrNotInitialized) {
			return err
		}

		d := c.period
		if c.redrawPending() {
			d = repaintDelay
		}
		if err := kernel.Sleep(ctx, d); err != nil {
			return err
		}
	}
}
