//go:build !tinygo

package hal

import (
	"fmt"
	"os"
	"sync"
)

// HostConfig sizes the simulated panel.
type HostConfig struct {
	Width             int
	Height            int
	MaxTransferPixels int
	Scale             int
}

func (c HostConfig) withDefaults() HostConfig {
	if c.Width <= 0 {
		c.Width = 240
	}
	if c.Height <= 0 {
		c.Height = 320
	}
	if c.MaxTransferPixels <= 0 {
		c.MaxTransferPixels = 2048
	}
	if c.Scale <= 0 {
		c.Scale = 2
	}
	return c
}

type hostHAL struct {
	logger *hostLogger
	panel  *hostPanel
	mouse  *hostMouse
	touch  Touch
	dialer Dialer
}

// New returns a host HAL implementation with a 240x320 panel.
func New() HAL {
	return newHostHAL(HostConfig{})
}

func newHostHAL(cfg HostConfig) *hostHAL {
	cfg = cfg.withDefaults()
	logger := &hostLogger{w: os.Stdout}
	mouse := &hostMouse{}
	return &hostHAL{
		logger: logger,
		panel:  newHostPanel(cfg.Width, cfg.Height, cfg.MaxTransferPixels),
		mouse:  mouse,
		touch:  NewPointerTouch(mouse, TouchCalibration{Width: cfg.Width, Height: cfg.Height}),
		dialer: newNetDialer(),
	}
}

func (h *hostHAL) Logger() Logger { return h.logger }
func (h *hostHAL) Panel() Panel   { return h.panel }
func (h *hostHAL) Touch() Touch   { return h.touch }
func (h *hostHAL) Dialer() Dialer { return h.dialer }

type hostLogger struct {
	mu sync.Mutex
	w  *os.File
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}
