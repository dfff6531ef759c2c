package rfb

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lcdvnc/hal"
)

type blitCall struct {
	x, y, w, h int
	pixels     []uint16
}

type fakeSurface struct {
	w, h int

	mu    sync.Mutex
	blits []blitCall
	err   error
}

func (s *fakeSurface) Size() (int, int) { return s.w, s.h }

func (s *fakeSurface) Blit(x, y, w, h int, pixels []uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.blits = append(s.blits, blitCall{x: x, y: y, w: w, h: h, pixels: append([]uint16(nil), pixels...)})
	return nil
}

func (s *fakeSurface) calls() []blitCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]blitCall(nil), s.blits...)
}

type enableCall struct{ draw, clearFirst bool }

type fakeConsole struct {
	mu      sync.Mutex
	text    strings.Builder
	enables []enableCall
}

func (c *fakeConsole) PrintString(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text.WriteString(s)
}

func (c *fakeConsole) Enable(draw, clearFirst bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enables = append(c.enables, enableCall{draw, clearFirst})
}

func (c *fakeConsole) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text.String()
}

func (c *fakeConsole) enableCalls() []enableCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]enableCall(nil), c.enables...)
}

type testLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *testLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, s)
}

func (l *testLogger) WriteLineBytes(b []byte) { l.WriteLineString(string(b)) }

func (l *testLogger) contains(sub string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.lines {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// pipeDialer hands the client one end of a net.Pipe per dial and the test
// the other end.
type pipeDialer struct {
	servers chan net.Conn
	err     error

	mu    sync.Mutex
	addrs []string
}

func newPipeDialer() *pipeDialer {
	return &pipeDialer{servers: make(chan net.Conn, 4)}
}

func (d *pipeDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.mu.Lock()
	d.addrs = append(d.addrs, address)
	d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	client, server := net.Pipe()
	d.servers <- server
	return client, nil
}

type scriptedTouch struct {
	mu     sync.Mutex
	points []hal.TouchPoint
}

func (t *scriptedTouch) ReadPoint() hal.TouchPoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.points) == 0 {
		return hal.TouchPoint{}
	}
	p := t.points[0]
	if len(t.points) > 1 {
		t.points = t.points[1:]
	}
	return p
}

// recordingConn captures writes; only Write and Close are used.
type recordingConn struct {
	net.Conn

	mu     sync.Mutex
	writes [][]byte
	closes atomic.Int32
}

func (c *recordingConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, append([]byte(nil), b...))
	return len(b), nil
}

func (c *recordingConn) Close() error {
	c.closes.Add(1)
	return nil
}

func (c *recordingConn) messages() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.writes...)
}

type sleepRecorder struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.slept = append(s.slept, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) durations() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.slept...)
}

type harness struct {
	client  *Client
	dialer  *pipeDialer
	surface *fakeSurface
	console *fakeConsole
	log     *testLogger
	sleeps  *sleepRecorder
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		dialer:  newPipeDialer(),
		surface: &fakeSurface{w: 240, h: 320},
		console: &fakeConsole{},
		log:     &testLogger{},
		sleeps:  &sleepRecorder{},
	}
	if cfg.DrainWindow == 0 {
		cfg.DrainWindow = 20 * time.Millisecond
	}
	h.client = New(cfg, h.surface, h.console, h.dialer, nil, h.log)
	h.client.sleep = h.sleeps.sleep
	return h
}

// rgb565Init is a ServerInit for a big-endian RGB565 framebuffer.
func rgb565Init(w, h uint16, bpp uint8, name string) []byte {
	b := make([]byte, serverInitHeaderLen, serverInitHeaderLen+len(name))
	binary.BigEndian.PutUint16(b[0:], w)
	binary.BigEndian.PutUint16(b[2:], h)
	b[4] = bpp
	b[5] = 16
	b[6] = 1
	b[7] = 1
	binary.BigEndian.PutUint16(b[8:], 31)
	binary.BigEndian.PutUint16(b[10:], 63)
	binary.BigEndian.PutUint16(b[12:], 31)
	b[14], b[15], b[16] = 11, 5, 0
	binary.BigEndian.PutUint32(b[20:], uint32(len(name)))
	return append(b, name...)
}

func rectHeader(x, y, w, h uint16, enc int32) []byte {
	b := make([]byte, 0, rectHeaderLen)
	b = binary.BigEndian.AppendUint16(b, x)
	b = binary.BigEndian.AppendUint16(b, y)
	b = binary.BigEndian.AppendUint16(b, w)
	b = binary.BigEndian.AppendUint16(b, h)
	return binary.BigEndian.AppendUint32(b, uint32(enc))
}

func updateHeader(count uint16) []byte {
	return binary.BigEndian.AppendUint16([]byte{msgFramebufferUpdate, 0}, count)
}

func expect(r io.Reader, want []byte) error {
	got := make([]byte, len(want))
	if _, err := io.ReadFull(r, got); err != nil {
		return err
	}
	if !bytes.Equal(got, want) {
		return fmt.Errorf("got % x, want % x", got, want)
	}
	return nil
}

func serve(script func() error) <-chan error {
	done := make(chan error, 1)
	go func() { done <- script() }()
	return done
}

func wait(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for server script")
	}
}

// serverHandshake plays the server side up to and including ServerInit.
func serverHandshake(srv net.Conn, init []byte) error {
	if _, err := srv.Write([]byte("RFB 003.008\n")); err != nil {
		return err
	}
	if err := expect(srv, []byte(ProtocolVersion)); err != nil {
		return fmt.Errorf("version: %w", err)
	}
	if _, err := srv.Write([]byte{1, securityNone}); err != nil {
		return err
	}
	if err := expect(srv, []byte{securityNone}); err != nil {
		return fmt.Errorf("security type: %w", err)
	}
	if _, err := srv.Write([]byte{0, 0, 0, 0}); err != nil {
		return err
	}
	if err := expect(srv, []byte{1}); err != nil {
		return fmt.Errorf("client init: %w", err)
	}
	_, err := srv.Write(init)
	return err
}

func (h *harness) dial(t *testing.T) net.Conn {
	t.Helper()
	h.client.Connect("vnc.test", 1)
	if err := h.client.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if s := h.client.State(); s != StateExpectingGreeting {
		t.Fatalf("state after dial = %s", s)
	}
	select {
	case srv := <-h.dialer.servers:
		t.Cleanup(func() { srv.Close() })
		return srv
	default:
		t.Fatal("no connection dialed")
		return nil
	}
}

func (h *harness) steps(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := h.client.Step(context.Background()); err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
	}
}

// mainLoop connects an active client to a matching server.
func (h *harness) mainLoop(t *testing.T) net.Conn {
	t.Helper()
	h.client.Activate()
	srv := h.dial(t)
	done := serve(func() error {
		if err := serverHandshake(srv, rgb565Init(240, 320, 16, "desk")); err != nil {
			return err
		}
		_, err := io.ReadFull(srv, make([]byte, 8+10))
		return err
	})
	h.steps(t, 4)
	wait(t, done)
	if s := h.client.State(); s != StateMainLoop {
		t.Fatalf("state = %s, want %s", s, StateMainLoop)
	}
	return srv
}
