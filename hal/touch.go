package hal

import (
	"sync"

	"tinygo.org/x/drivers/touch"
)

// TouchCalibration maps raw controller coordinates onto panel pixels.
//
// A zero raw range passes coordinates through unchanged.
type TouchCalibration struct {
	RawMinX, RawMaxX int
	RawMinY, RawMaxY int

	Width, Height int
	SwapXY        bool
}

func (c TouchCalibration) apply(x, y int) (int, int) {
	if c.SwapXY {
		x, y = y, x
	}
	x = scaleAxis(x, c.RawMinX, c.RawMaxX, c.Width)
	y = scaleAxis(y, c.RawMinY, c.RawMaxY, c.Height)
	return x, y
}

func scaleAxis(v, lo, hi, size int) int {
	if hi > lo && size > 0 {
		v = (v - lo) * size / (hi - lo)
	}
	if size > 0 {
		if v < 0 {
			v = 0
		}
		if v >= size {
			v = size - 1
		}
	}
	return v
}

// pointerTouch adapts a drivers touch.Pointer. A sample with Z > 0 is a
// press; otherwise a release at the last pressed position.
type pointerTouch struct {
	mu   sync.Mutex
	p    touch.Pointer
	cal  TouchCalibration
	x, y int
}

// NewPointerTouch wraps a touch.Pointer as a Touch.
func NewPointerTouch(p touch.Pointer, cal TouchCalibration) Touch {
	return &pointerTouch{p: p, cal: cal}
}

func (t *pointerTouch) ReadPoint() TouchPoint {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.p == nil {
		return TouchPoint{}
	}
	pt := t.p.ReadTouchPoint()
	if pt.Z <= 0 {
		return TouchPoint{X: t.x, Y: t.y, Event: TouchRelease}
	}
	t.x, t.y = t.cal.apply(pt.X, pt.Y)
	return TouchPoint{X: t.x, Y: t.y, Event: TouchPress}
}
