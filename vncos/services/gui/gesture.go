package gui

import (
	"time"

	"lcdvnc/hal"
)

// DefaultHold is how long a corner must be held to switch modes.
const DefaultHold = 2 * time.Second

// Corner is the result of a completed hold gesture.
type Corner uint8

const (
	CornerNone Corner = iota
	CornerBottomLeft
	CornerBottomRight
)

func (c Corner) String() string {
	switch c {
	case CornerBottomLeft:
		return "bottom-left"
	case CornerBottomRight:
		return "bottom-right"
	default:
		return "none"
	}
}

// HoldDetector recognises a press held in the bottom band of the screen.
//
// Held time accumulates between in-band samples for as long as the panel
// reports a press; a release resets it. In-band time is measured from the
// previous in-band sample, so a press that wanders out of the band and
// back keeps its count.
type HoldDetector struct {
	width, height int
	hold          time.Duration
	now           func() time.Time

	held time.Duration
	last time.Time
}

func NewHoldDetector(width, height int, hold time.Duration, now func() time.Time) *HoldDetector {
	if hold <= 0 {
		hold = DefaultHold
	}
	if now == nil {
		now = time.Now
	}
	return &HoldDetector{width: width, height: height, hold: hold, now: now}
}

// Held returns the accumulated hold time.
func (d *HoldDetector) Held() time.Duration { return d.held }

func (d *HoldDetector) Reset() {
	d.held = 0
	d.last = time.Time{}
}

// Sample feeds one touch reading and returns the corner once the hold
// threshold is passed. The detector then starts over.
func (d *HoldDetector) Sample(p hal.TouchPoint) Corner {
	if p.Event != hal.TouchPress {
		d.Reset()
		return CornerNone
	}

	if p.Y*8 <= d.height*7 {
		return CornerNone
	}
	t := d.now()
	if d.last.IsZero() {
		d.held = 0
	} else {
		d.held += t.Sub(d.last)
	}
	d.last = t
	if d.held <= d.hold {
		return CornerNone
	}

	d.Reset()
	switch {
	case p.X*6 < d.width:
		return CornerBottomLeft
	case p.X*6 > d.width*5:
		return CornerBottomRight
	default:
		return CornerNone
	}
}
