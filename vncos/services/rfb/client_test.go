package rfb

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"lcdvnc/hal"
)

func TestHandshakeReachesMainLoop(t *testing.T) {
	h := newHarness(t, Config{})
	h.client.Activate()
	srv := h.dial(t)

	if got := h.dialer.addrs[0]; got != "vnc.test:5901" {
		t.Fatalf("dialed %q, want vnc.test:5901", got)
	}

	var tail []byte
	done := serve(func() error {
		if err := serverHandshake(srv, rgb565Init(240, 320, 16, "desk")); err != nil {
			return err
		}
		tail = make([]byte, 18)
		_, err := io.ReadFull(srv, tail)
		return err
	})
	h.steps(t, 4)
	wait(t, done)

	if s := h.client.State(); s != StateMainLoop {
		t.Fatalf("state = %s, want %s", s, StateMainLoop)
	}
	if want := []byte{2, 0, 0, 1, 0, 0, 0, 0}; !bytes.Equal(tail[:8], want) {
		t.Fatalf("SetEncodings = % x, want % x", tail[:8], want)
	}
	if want := []byte{3, 0, 0, 0, 0, 0, 0, 0xF0, 0x01, 0x40}; !bytes.Equal(tail[8:], want) {
		t.Fatalf("FramebufferUpdateRequest = % x, want % x", tail[8:], want)
	}
	if si := h.client.Server(); si.Name != "desk" || si.Width != 240 || si.Height != 320 {
		t.Fatalf("server = %+v", si)
	}

	want := []enableCall{{true, true}, {false, false}}
	got := h.console.enableCalls()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("console enables = %v, want %v", got, want)
	}
}

func TestGeometryMismatchWaitsCooldown(t *testing.T) {
	h := newHarness(t, Config{})
	srv := h.dial(t)
	done := serve(func() error {
		return serverHandshake(srv, rgb565Init(320, 240, 16, "wide"))
	})
	h.steps(t, 4)
	wait(t, done)

	if s := h.client.State(); s != StateMismatch {
		t.Fatalf("state = %s, want %s", s, StateMismatch)
	}
	if out := h.console.String(); !strings.Contains(out, "320x240") || !strings.Contains(out, "240x320") {
		t.Fatalf("console = %q, want both geometries", out)
	}
	if _, err := srv.Read(make([]byte, 1)); err == nil {
		t.Fatal("server side still open after mismatch")
	}

	h.steps(t, 1)
	if s := h.client.State(); s != StateNotConnected {
		t.Fatalf("state after cooldown = %s, want %s", s, StateNotConnected)
	}
	if d := h.sleeps.durations(); len(d) != 1 || d[0] != DefaultMismatchCooldown {
		t.Fatalf("sleeps = %v, want [%s]", d, DefaultMismatchCooldown)
	}
}

func TestMismatchOnDepth(t *testing.T) {
	h := newHarness(t, Config{})
	srv := h.dial(t)
	done := serve(func() error {
		return serverHandshake(srv, rgb565Init(240, 320, 32, "deep"))
	})
	h.steps(t, 4)
	wait(t, done)
	if s := h.client.State(); s != StateMismatch {
		t.Fatalf("state = %s, want %s", s, StateMismatch)
	}
}

func TestHandshakeFailures(t *testing.T) {
	tests := []struct {
		name    string
		script  func(srv io.ReadWriter) error
		steps   int
		console string
	}{
		{
			name: "bad magic",
			script: func(srv io.ReadWriter) error {
				_, err := srv.Write([]byte("XFB 003.008\n"))
				return err
			},
			steps: 1,
		},
		{
			name: "old version",
			script: func(srv io.ReadWriter) error {
				_, err := srv.Write([]byte("RFB 003.003\n"))
				return err
			},
			steps: 1,
		},
		{
			name: "no None security",
			script: func(srv io.ReadWriter) error {
				if _, err := srv.Write([]byte("RFB 003.008\n")); err != nil {
					return err
				}
				if err := expect(srv, []byte(ProtocolVersion)); err != nil {
					return err
				}
				_, err := srv.Write([]byte{2, 2, 16})
				return err
			},
			steps:   2,
			console: "authentication",
		},
		{
			name: "refused with reason",
			script: func(srv io.ReadWriter) error {
				if _, err := srv.Write([]byte("RFB 003.008\n")); err != nil {
					return err
				}
				if err := expect(srv, []byte(ProtocolVersion)); err != nil {
					return err
				}
				msg := binary.BigEndian.AppendUint32([]byte{0}, 6)
				_, err := srv.Write(append(msg, "denied"...))
				return err
			},
			steps:   2,
			console: "denied",
		},
		{
			name: "refusal reason past int32",
			script: func(srv io.ReadWriter) error {
				if _, err := srv.Write([]byte("RFB 003.008\n")); err != nil {
					return err
				}
				if err := expect(srv, []byte(ProtocolVersion)); err != nil {
					return err
				}
				_, err := srv.Write(binary.BigEndian.AppendUint32([]byte{0}, 0x80000000))
				return err
			},
			steps: 2,
		},
		{
			name: "security result failure",
			script: func(srv io.ReadWriter) error {
				if _, err := srv.Write([]byte("RFB 003.008\n")); err != nil {
					return err
				}
				if err := expect(srv, []byte(ProtocolVersion)); err != nil {
					return err
				}
				if _, err := srv.Write([]byte{1, securityNone}); err != nil {
					return err
				}
				if err := expect(srv, []byte{securityNone}); err != nil {
					return err
				}
				msg := binary.BigEndian.AppendUint32([]byte{0, 0, 0, 1}, 8)
				_, err := srv.Write(append(msg, "too many"...))
				return err
			},
			steps:   3,
			console: "too many",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{})
			srv := h.dial(t)
			done := serve(func() error { return tt.script(srv) })
			h.steps(t, tt.steps)
			wait(t, done)

			if s := h.client.State(); s != StateNotConnected {
				t.Fatalf("state = %s, want %s", s, StateNotConnected)
			}
			if tt.console != "" && !strings.Contains(h.console.String(), tt.console) {
				t.Fatalf("console = %q, want %q", h.console.String(), tt.console)
			}
		})
	}
}

func TestHugeDesktopNameAborts(t *testing.T) {
	for _, n := range []uint32{0x80000000, 0xFFFFFFFF, maxStringLen + 1} {
		h := newHarness(t, Config{})
		srv := h.dial(t)
		si := rgb565Init(240, 320, 16, "")
		binary.BigEndian.PutUint32(si[20:], n)
		done := serve(func() error { return serverHandshake(srv, si) })
		h.steps(t, 4)
		wait(t, done)

		if s := h.client.State(); s != StateNotConnected {
			t.Fatalf("name length %#x: state = %s, want %s", n, s, StateNotConnected)
		}
		if !h.log.contains("desktop name") {
			t.Fatalf("name length %#x: no log line for the desktop name", n)
		}
	}
}

func TestLongDesktopNameIsTruncated(t *testing.T) {
	h := newHarness(t, Config{})
	srv := h.dial(t)
	name := strings.Repeat("n", maxNameLen+40)
	done := serve(func() error {
		if err := serverHandshake(srv, rgb565Init(240, 320, 16, name)); err != nil {
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
	if got := h.client.Server().Name; got != name[:maxNameLen] {
		t.Fatalf("name has %d bytes, want %d", len(got), maxNameLen)
	}
}

func TestFramebufferUpdateBlitsScanlines(t *testing.T) {
	h := newHarness(t, Config{})
	srv := h.mainLoop(t)

	origins := [][2]uint16{{0, 0}, {100, 50}, {230, 310}}
	var msg []byte
	msg = append(msg, updateHeader(3)...)
	for _, o := range origins {
		msg = append(msg, rectHeader(o[0], o[1], 10, 10, EncodingRaw)...)
		for i := 0; i < 100; i++ {
			msg = append(msg, 0xF8, 0x00)
		}
	}
	done := serve(func() error {
		_, err := srv.Write(msg)
		return err
	})
	h.steps(t, 1)
	wait(t, done)

	calls := h.surface.calls()
	if len(calls) != 30 {
		t.Fatalf("blits = %d, want 30", len(calls))
	}
	for i, c := range calls {
		o := origins[i/10]
		if c.x != int(o[0]) || c.y != int(o[1])+i%10 || c.w != 10 || c.h != 1 {
			t.Fatalf("blit %d = %d,%d %dx%d", i, c.x, c.y, c.w, c.h)
		}
		if c.pixels[0] != 0xF800 {
			t.Fatalf("blit %d pixel = %#04x, want %#04x", i, c.pixels[0], 0xF800)
		}
	}
	if st := h.client.Stats(); st.Rects != 3 || st.Scanlines != 30 || st.Updates != 1 {
		t.Fatalf("stats = %+v", st)
	}
	if h.client.Busy() {
		t.Fatal("busy after update")
	}
}

func TestOversizedUpdateDrains(t *testing.T) {
	h := newHarness(t, Config{})
	srv := h.mainLoop(t)

	junk := bytes.Repeat([]byte{0xAA}, 300)
	done := serve(func() error {
		_, err := srv.Write(append(updateHeader(5000), junk...))
		return err
	})
	h.steps(t, 1)
	wait(t, done)

	st := h.client.Stats()
	if st.Drains != 1 || st.Rects != 0 {
		t.Fatalf("stats = %+v, want one drain and no rectangles", st)
	}
	if st.DrainedBytes != uint64(len(junk)) {
		t.Fatalf("drained %d bytes, want %d", st.DrainedBytes, len(junk))
	}
	if s := h.client.State(); s != StateMainLoop {
		t.Fatalf("state = %s, want %s", s, StateMainLoop)
	}
}

func TestOutOfBoundsRectDrainsBeforePixels(t *testing.T) {
	h := newHarness(t, Config{})
	srv := h.mainLoop(t)

	msg := append(updateHeader(1), rectHeader(235, 0, 10, 2, EncodingRaw)...)
	msg = append(msg, make([]byte, 10*2*2)...)
	done := serve(func() error {
		_, err := srv.Write(msg)
		return err
	})
	h.steps(t, 1)
	wait(t, done)

	if n := len(h.surface.calls()); n != 0 {
		t.Fatalf("blits = %d, want 0", n)
	}
	if st := h.client.Stats(); st.Drains != 1 || st.DrainedBytes != 40 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestLastRectSentinelEndsUpdate(t *testing.T) {
	for _, sentinel := range [][]byte{
		rectHeader(0, 0, 0, 0, encodingLastRect),
		rectHeader(coordSentinel, 0, 1, 1, EncodingRaw),
		rectHeader(0, coordSentinel, 1, 1, EncodingRaw),
		rectHeader(0, 0, 1, coordSentinel, EncodingRaw),
	} {
		h := newHarness(t, Config{})
		srv := h.mainLoop(t)
		msg := append(updateHeader(2), sentinel...)
		done := serve(func() error {
			if _, err := srv.Write(msg); err != nil {
				return err
			}
			_, err := srv.Write([]byte{msgBell})
			return err
		})
		h.steps(t, 2)
		wait(t, done)

		if st := h.client.Stats(); st.Rects != 0 || st.Drains != 0 {
			t.Fatalf("sentinel % x: stats = %+v", sentinel, st)
		}
		if !h.log.contains("bell") {
			t.Fatalf("sentinel % x: message after update not read", sentinel)
		}
	}
}

func TestAuxiliaryMessagesAreConsumed(t *testing.T) {
	colorMap := []byte{msgSetColorMapEntries, 0, 0, 0, 0, 2}
	colorMap = append(colorMap, make([]byte, 12)...)
	cutText := binary.BigEndian.AppendUint32([]byte{msgServerCutText, 0, 0, 0}, 5)
	cutText = append(cutText, "hello"...)

	for name, msg := range map[string][]byte{"colour map": colorMap, "cut text": cutText} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, Config{})
			srv := h.mainLoop(t)
			done := serve(func() error {
				_, err := srv.Write(append(msg, msgBell))
				return err
			})
			h.steps(t, 2)
			wait(t, done)

			if !h.log.contains("bell") {
				t.Fatal("following message not read")
			}
			if st := h.client.Stats(); st.Drains != 0 {
				t.Fatalf("drains = %d, want 0", st.Drains)
			}
			if s := h.client.State(); s != StateMainLoop {
				t.Fatalf("state = %s", s)
			}
		})
	}
}

func TestUnknownMessageDrains(t *testing.T) {
	h := newHarness(t, Config{})
	srv := h.mainLoop(t)
	done := serve(func() error {
		_, err := srv.Write([]byte{200, 1, 2, 3, 4})
		return err
	})
	h.steps(t, 1)
	wait(t, done)

	if st := h.client.Stats(); st.Drains != 1 || st.DrainedBytes != 4 {
		t.Fatalf("stats = %+v", st)
	}
	if s := h.client.State(); s != StateMainLoop {
		t.Fatalf("state = %s", s)
	}
}

func TestNonRawEncodingPolicy(t *testing.T) {
	t.Run("shutdown", func(t *testing.T) {
		h := newHarness(t, Config{})
		srv := h.mainLoop(t)
		done := serve(func() error {
			_, err := srv.Write(append(updateHeader(1), rectHeader(0, 0, 4, 4, 5)...))
			return err
		})
		h.steps(t, 1)
		wait(t, done)

		if s := h.client.State(); s != StateNotConnected {
			t.Fatalf("state = %s, want %s", s, StateNotConnected)
		}
		calls := h.console.enableCalls()
		if last := calls[len(calls)-1]; last != (enableCall{true, false}) {
			t.Fatalf("last console enable = %v, want re-enable without clear", last)
		}
	})

	t.Run("skip", func(t *testing.T) {
		h := newHarness(t, Config{SkipUnknownEncodings: true})
		srv := h.mainLoop(t)
		done := serve(func() error {
			msg := append(updateHeader(1), rectHeader(0, 0, 4, 4, 5)...)
			_, err := srv.Write(append(msg, msgBell))
			return err
		})
		h.steps(t, 2)
		wait(t, done)

		if s := h.client.State(); s != StateMainLoop {
			t.Fatalf("state = %s, want %s", s, StateMainLoop)
		}
		if !h.log.contains("encoding 5") || !h.log.contains("bell") {
			t.Fatal("skipped rectangle not logged or stream not continued")
		}
	})
}

func TestInactiveClientConsumesWithoutDrawing(t *testing.T) {
	h := newHarness(t, Config{})
	srv := h.mainLoop(t)
	h.client.Deactivate()

	msg := append(updateHeader(1), rectHeader(0, 0, 2, 2, EncodingRaw)...)
	msg = append(msg, make([]byte, 8)...)
	done := serve(func() error {
		if _, err := srv.Write(msg); err != nil {
			return err
		}
		_, err := srv.Write([]byte{msgBell})
		return err
	})
	h.steps(t, 2)
	wait(t, done)

	if n := len(h.surface.calls()); n != 0 {
		t.Fatalf("blits = %d, want 0", n)
	}
	if !h.log.contains("bell") {
		t.Fatal("stream out of step after inactive update")
	}
}

func TestBlitErrorDropsLine(t *testing.T) {
	h := newHarness(t, Config{})
	srv := h.mainLoop(t)
	h.surface.err = errors.New("lock timeout")

	msg := append(updateHeader(1), rectHeader(0, 0, 2, 2, EncodingRaw)...)
	msg = append(msg, make([]byte, 8)...)
	done := serve(func() error {
		_, err := srv.Write(msg)
		return err
	})
	h.steps(t, 1)
	wait(t, done)

	if s := h.client.State(); s != StateMainLoop {
		t.Fatalf("state = %s, want %s", s, StateMainLoop)
	}
	if h.client.didDraw.Load() {
		t.Fatal("didDraw set although no blit succeeded")
	}
}

// loopClient is a client already in the main loop over a recordingConn.
func loopClient(touch hal.Touch) (*Client, *recordingConn, *fakeConsole) {
	con := &fakeConsole{}
	c := New(Config{}, &fakeSurface{w: 240, h: 320}, con, newPipeDialer(), touch, &testLogger{})
	conn := &recordingConn{}
	c.conn = conn
	c.server = ServerInit{Width: 240, Height: 320}
	c.active.Store(true)
	c.setState(StateMainLoop)
	return c, conn, con
}

func TestRequestStepSendsIncrementalAndClick(t *testing.T) {
	touch := &scriptedTouch{points: []hal.TouchPoint{
		{X: 10, Y: 20, Event: hal.TouchPress},
		{X: 11, Y: 21, Event: hal.TouchPress},
		{X: 11, Y: 21, Event: hal.TouchRelease},
		{X: 30, Y: 40, Event: hal.TouchPress},
	}}
	c, conn, _ := loopClient(touch)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := c.RequestStep(ctx); err != nil {
			t.Fatalf("RequestStep %d: %v", i, err)
		}
	}

	fbur := []byte{3, 1, 0, 0, 0, 0, 0, 0xF0, 0x01, 0x40}
	want := [][]byte{
		fbur, {5, 1, 0, 10, 0, 20}, {5, 0, 0, 10, 0, 20},
		fbur,
		fbur,
		fbur, {5, 1, 0, 30, 0, 40}, {5, 0, 0, 30, 0, 40},
	}
	got := conn.messages()
	if len(got) != len(want) {
		t.Fatalf("messages = %d, want %d: % x", len(got), len(want), got)
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Fatalf("message %d = % x, want % x", i, got[i], want[i])
		}
	}
	if st := c.Stats(); st.PointerEvents != 4 || st.Requests != 4 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestRequestStepSkipsWhileBusy(t *testing.T) {
	c, conn, _ := loopClient(nil)
	c.busy.Store(true)
	if err := c.RequestStep(context.Background()); err != nil {
		t.Fatalf("RequestStep: %v", err)
	}
	if n := len(conn.messages()); n != 0 {
		t.Fatalf("messages = %d, want 0", n)
	}
}

func TestRequestStepIdleWhenInactive(t *testing.T) {
	c, conn, _ := loopClient(&scriptedTouch{points: []hal.TouchPoint{{Event: hal.TouchPress}}})
	c.Deactivate()
	if err := c.RequestStep(context.Background()); err != nil {
		t.Fatalf("RequestStep: %v", err)
	}
	if n := len(conn.messages()); n != 0 {
		t.Fatalf("messages = %d, want 0", n)
	}
}

func TestActivateRequestsFullFrame(t *testing.T) {
	c, conn, con := loopClient(nil)
	c.Deactivate()
	c.busy.Store(true)
	c.Activate()

	if got := con.enableCalls(); len(got) != 1 || got[0] != (enableCall{false, false}) {
		t.Fatalf("console enables = %v, want suspend", got)
	}
	if err := c.RequestStep(context.Background()); err != nil {
		t.Fatalf("RequestStep: %v", err)
	}
	msgs := conn.messages()
	if len(msgs) != 1 || msgs[0][1] != 0 {
		t.Fatalf("messages = % x, want one full request", msgs)
	}
}

func TestActivateOutsideSessionShowsConsole(t *testing.T) {
	h := newHarness(t, Config{})
	h.client.Activate()
	if got := h.console.enableCalls(); len(got) != 1 || got[0] != (enableCall{true, true}) {
		t.Fatalf("console enables = %v", got)
	}
}

func TestShutdownClosesOnce(t *testing.T) {
	c, conn, con := loopClient(nil)
	c.didDraw.Store(true)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Shutdown()
		}()
	}
	wg.Wait()

	if n := conn.closes.Load(); n != 1 {
		t.Fatalf("closes = %d, want 1", n)
	}
	if s := c.State(); s != StateNotConnected {
		t.Fatalf("state = %s", s)
	}
	if got := con.enableCalls(); len(got) != 1 || got[0] != (enableCall{true, true}) {
		t.Fatalf("console enables = %v, want one clearing re-enable", got)
	}
	if c.Busy() {
		t.Fatal("busy after shutdown")
	}
}

func TestRunShutsDownLeftoverSession(t *testing.T) {
	c, conn, _ := loopClient(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
	if n := conn.closes.Load(); n != 1 {
		t.Fatalf("closes = %d, want 1", n)
	}
	if s := c.State(); s != StateNotConnected {
		t.Fatalf("state = %s, want %s", s, StateNotConnected)
	}
}

// gatedDialer holds every dial until release is closed.
type gatedDialer struct {
	entered chan string
	release chan struct{}
	servers chan net.Conn
}

func (d *gatedDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.entered <- address
	<-d.release
	client, server := net.Pipe()
	d.servers <- server
	return client, nil
}

func TestConnectDuringDialDiscardsOldSocket(t *testing.T) {
	d := &gatedDialer{
		entered: make(chan string, 2),
		release: make(chan struct{}),
		servers: make(chan net.Conn, 2),
	}
	c := New(Config{}, &fakeSurface{w: 240, h: 320}, &fakeConsole{}, d, nil, &testLogger{})
	c.sleep = (&sleepRecorder{}).sleep
	c.Connect("old.test", 0)

	done := make(chan error, 1)
	go func() { done <- c.Step(context.Background()) }()
	if addr := <-d.entered; addr != "old.test:5900" {
		t.Fatalf("first dial = %q", addr)
	}
	c.Connect("new.test", 1)
	close(d.release)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Step did not return")
	}
	if s := c.State(); s != StateNotConnected {
		t.Fatalf("state = %s, want %s", s, StateNotConnected)
	}
	old := <-d.servers
	defer old.Close()
	if _, err := old.Read(make([]byte, 1)); err == nil {
		t.Fatal("socket to the old target still open")
	}

	if err := c.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if addr := <-d.entered; addr != "new.test:5901" {
		t.Fatalf("second dial = %q", addr)
	}
	if s := c.State(); s != StateExpectingGreeting {
		t.Fatalf("state = %s, want %s", s, StateExpectingGreeting)
	}
	(<-d.servers).Close()
}

func TestDialFailureRetriesAfterDelay(t *testing.T) {
	h := newHarness(t, Config{})
	h.dialer.err = errors.New("no route to host")
	h.client.Connect("10.0.0.9", 0)
	h.steps(t, 1)

	if s := h.client.State(); s != StateNotConnected {
		t.Fatalf("state = %s", s)
	}
	if d := h.sleeps.durations(); len(d) != 1 || d[0] != DefaultReconnectDelay {
		t.Fatalf("sleeps = %v", d)
	}
	out := h.console.String()
	if !strings.Contains(out, "Connecting to 10.0.0.9:5900") || !strings.Contains(out, "unable to connect") {
		t.Fatalf("console = %q", out)
	}
}

func TestStepWaitsForTarget(t *testing.T) {
	h := newHarness(t, Config{})
	done := make(chan error, 1)
	go func() { done <- h.client.Step(context.Background()) }()

	select {
	case <-done:
		t.Fatal("Step returned without a target")
	case <-time.After(20 * time.Millisecond):
	}
	h.client.Connect("vnc.test", 0)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Step did not wake on Connect")
	}
	if a := h.client.Address(); a != "vnc.test:5900" {
		t.Fatalf("address = %q", a)
	}
}

func TestRunStopsOnCancelDuringRead(t *testing.T) {
	h := newHarness(t, Config{})
	h.client.Connect("vnc.test", 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.client.Run(ctx) }()

	select {
	case srv := <-h.dialer.servers:
		defer srv.Close()
	case <-time.After(time.Second):
		t.Fatal("no dial")
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestStateString(t *testing.T) {
	if s := StateMainLoop.String(); s != "main-loop" {
		t.Fatalf("String = %q", s)
	}
	if s := State(42).String(); s != "state(42)" {
		t.Fatalf("String = %q", s)
	}
}
