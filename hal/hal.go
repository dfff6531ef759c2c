package hal

import (
	"context"
	"errors"
	"net"
)

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}

var (
	ErrNotImplemented = errors.New("not implemented")

	// ErrTransferTooLarge is returned by a Panel when a single DrawBitmap
	// exceeds PanelInfo.MaxTransferPixels.
	ErrTransferTooLarge = errors.New("transfer too large")

	// ErrOutOfBounds is returned by a Panel for writes outside the panel.
	ErrOutOfBounds = errors.New("out of bounds")
)

// PanelInfo describes an initialized display panel.
type PanelInfo struct {
	Name   string
	Width  int
	Height int

	// MaxTransferPixels caps the pixels moved by one DrawBitmap call.
	MaxTransferPixels int
}

// Panel is a write-only RGB565 display.
//
// There is no readback and no frame buffer on the device side of this
// interface; every call goes straight to the controller.
type Panel interface {
	Info() PanelInfo
	DrawBitmap(x, y, w, h int16, pixels []uint16) error
}

// TouchEvent classifies a touch sample.
type TouchEvent uint8

const (
	TouchNone TouchEvent = iota
	TouchPress
	TouchRelease
)

func (e TouchEvent) String() string {
	switch e {
	case TouchPress:
		return "press"
	case TouchRelease:
		return "release"
	default:
		return "none"
	}
}

// TouchPoint is the most recent sample of the touch panel, in panel pixels.
type TouchPoint struct {
	X, Y  int
	Event TouchEvent
}

// Touch provides touch samples (best-effort on each platform).
type Touch interface {
	ReadPoint() TouchPoint
}

// Dialer opens stream connections.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// HAL provides the only contact point between the system and the outside world.
type HAL interface {
	Logger() Logger
	Panel() Panel
	Touch() Touch
	Dialer() Dialer
}
