//go:build !tinygo

package hal

import (
	"sync"

	"tinygo.org/x/drivers/touch"
)

// hostMouse feeds the window's mouse into the touch pipeline as a
// touch.Pointer, so host and device share the same adapter.
type hostMouse struct {
	mu      sync.Mutex
	x, y    int
	pressed bool
}

func (m *hostMouse) set(x, y int, pressed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.x, m.y, m.pressed = x, y, pressed
}

func (m *hostMouse) ReadTouchPoint() touch.Point {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.pressed {
		return touch.Point{}
	}
	return touch.Point{X: m.x, Y: m.y, Z: 1}
}
