package rfb

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"lcdvnc/hal"
	"lcdvnc/vncos/kernel"
)

const (
	DefaultPort             = 5900
	DefaultRequestPeriod    = 40 * time.Millisecond
	DefaultReconnectDelay   = 3 * time.Second
	DefaultMismatchCooldown = 30 * time.Second

	rxBufferSize = 4096
)

var ErrNotConnected = errors.New("rfb: not connected")

// State is the session state of a Client.
type State int32

const (
	StateNotConnected State = iota
	StateExpectingGreeting
	StateExpectingSecurityTypes
	StateExpectingSecurityResult
	StateExpectingServerInit
	StateMismatch
	StateMainLoop
)

func (s State) String() string {
	switch s {
	case StateNotConnected:
		return "not-connected"
	case StateExpectingGreeting:
		return "expecting-greeting"
	case StateExpectingSecurityTypes:
		return "expecting-security-types"
	case StateExpectingSecurityResult:
		return "expecting-security-result"
	case StateExpectingServerInit:
		return "expecting-server-init"
	case StateMismatch:
		return "mismatch"
	case StateMainLoop:
		return "main-loop"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Surface receives decoded scanlines.
type Surface interface {
	Size() (int, int)
	Blit(x, y, w, h int, pixels []uint16) error
}

// Console is where user-visible session messages go. The client suspends
// it while remote pixels own the screen.
type Console interface {
	PrintString(text string)
	Enable(draw, clearFirst bool)
}

type Config struct {
	// Port is the base port; the screen number is added to it.
	Port             int
	RequestPeriod    time.Duration
	ReconnectDelay   time.Duration
	MismatchCooldown time.Duration
	DrainWindow      time.Duration
	ReadChunk        int

	// SkipUnknownEncodings logs non-raw rectangles and carries on instead
	// of dropping the session. Their payload is not consumed.
	SkipUnknownEncodings bool
}

func (c Config) withDefaults() Config {
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if c.RequestPeriod <= 0 {
		c.RequestPeriod = DefaultRequestPeriod
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.MismatchCooldown <= 0 {
		c.MismatchCooldown = DefaultMismatchCooldown
	}
	if c.DrainWindow <= 0 {
		c.DrainWindow = DefaultDrainWindow
	}
	if c.ReadChunk <= 0 {
		c.ReadChunk = DefaultReadChunk
	}
	return c
}

// Stats counts session activity since start.
type Stats struct {
	Connects      uint64
	Updates       uint64
	Rects         uint64
	Scanlines     uint64
	Drains        uint64
	DrainedBytes  uint64
	Requests      uint64
	PointerEvents uint64
}

// Client is an RFB 3.8 viewer session for one local surface.
//
// Step and Run belong to the receive task; RequestStep and RunRequests to
// the request task. Both only ever write whole messages with a single
// Write, and the connection pointer is guarded by connMu.
type Client struct {
	cfg     Config
	surface Surface
	console Console
	dialer  hal.Dialer
	touch   hal.Touch
	log     hal.Logger
	sleep   func(context.Context, time.Duration) error

	connMu sync.Mutex
	conn   net.Conn
	host   string
	port   int
	server ServerInit

	targetSet chan struct{}

	state    atomic.Int32
	busy     atomic.Bool
	active   atomic.Bool
	didDraw  atomic.Bool
	closing  atomic.Bool
	wantFull atomic.Bool

	// Receive task scratch.
	rx   []byte
	line []uint16

	// Request task state.
	touchDown bool

	connects      atomic.Uint64
	updates       atomic.Uint64
	rects         atomic.Uint64
	scanlines     atomic.Uint64
	drains        atomic.Uint64
	drainedBytes  atomic.Uint64
	requests      atomic.Uint64
	pointerEvents atomic.Uint64
}

// New returns an idle client. touch may be nil.
func New(cfg Config, surface Surface, console Console, dialer hal.Dialer, touch hal.Touch, log hal.Logger) *Client {
	cfg = cfg.withDefaults()
	w, _ := surface.Size()
	return &Client{
		cfg:       cfg,
		surface:   surface,
		console:   console,
		dialer:    dialer,
		touch:     touch,
		log:       log,
		sleep:     kernel.Sleep,
		targetSet: make(chan struct{}, 1),
		rx:        make([]byte, max(rxBufferSize, 2*w)),
		line:      make([]uint16, w),
	}
}

// Connect sets the server to connect to. The receive task dials it; a
// session to a previous target is shut down first, and a dial to it still
// in flight is discarded.
func (c *Client) Connect(host string, screen int) {
	c.connMu.Lock()
	c.host = host
	c.port = c.cfg.Port + screen
	c.connMu.Unlock()

	if c.State() != StateNotConnected {
		c.Shutdown()
	}
	select {
	case c.targetSet <- struct{}{}:
	default:
	}
}

// Address returns the target as host:port, or "" when none is set.
func (c *Client) Address() string {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.host == "" {
		return ""
	}
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

func (c *Client) State() State { return State(c.state.Load()) }

func (c *Client) setState(s State) { c.state.Store(int32(s)) }

// Server returns the ServerInit of the current session.
func (c *Client) Server() ServerInit {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.server
}

// Busy reports whether the receive task is processing an update or
// resynchronizing.
func (c *Client) Busy() bool { return c.busy.Load() }

func (c *Client) Stats() Stats {
	return Stats{
		Connects:      c.connects.Load(),
		Updates:       c.updates.Load(),
		Rects:         c.rects.Load(),
		Scanlines:     c.scanlines.Load(),
		Drains:        c.drains.Load(),
		DrainedBytes:  c.drainedBytes.Load(),
		Requests:      c.requests.Load(),
		PointerEvents: c.pointerEvents.Load(),
	}
}

func (c *Client) currentConn() net.Conn {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn
}

// closeConn detaches and closes the socket.
func (c *Client) closeConn() {
	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil {
		c.logf("close: %v", err)
	}
}

// Shutdown ends the session and returns to StateNotConnected. It is safe
// to call from any task and more than once; concurrent callers close the
// socket once.
func (c *Client) Shutdown() {
	if !c.closing.CompareAndSwap(false, true) {
		return
	}
	defer c.closing.Store(false)

	// Detach and reset together so a concurrent dial either sees the
	// reset or has its socket closed here.
	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.busy.Store(false)
	c.wantFull.Store(false)
	c.setState(StateNotConnected)
	c.connMu.Unlock()

	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil {
		c.logf("close: %v", err)
	}
	if c.active.Load() {
		c.console.Enable(true, c.didDraw.Swap(false))
	}
}

// abort shuts the session down if conn is still the current socket.
func (c *Client) abort(conn net.Conn) {
	if c.currentConn() != conn {
		return
	}
	c.Shutdown()
}

// Activate hands the screen to the remote framebuffer. Outside a session
// the console keeps the screen so connection progress stays visible.
func (c *Client) Activate() {
	c.active.Store(true)
	if c.State() == StateMainLoop {
		c.console.Enable(false, false)
		c.wantFull.Store(true)
		return
	}
	c.console.Enable(true, true)
}

// Deactivate stops the client drawing. The session stays up.
func (c *Client) Deactivate() {
	c.active.Store(false)
}

func (c *Client) Active() bool { return c.active.Load() }

func (c *Client) write(conn net.Conn, msg []byte) error {
	if conn == nil {
		return ErrNotConnected
	}
	if _, err := conn.Write(msg); err != nil {
		return fmt.Errorf("rfb: write: %w", err)
	}
	return nil
}

// SendPointerEvent sends one PointerEvent on the current session.
func (c *Client) SendPointerEvent(mask ButtonMask, x, y int) error {
	if c.State() != StateMainLoop {
		return ErrNotConnected
	}
	conn := c.currentConn()
	var buf [6]byte
	if err := c.write(conn, appendPointerEvent(buf[:0], mask, uint16(x), uint16(y))); err != nil {
		c.abort(conn)
		return err
	}
	c.pointerEvents.Add(1)
	return nil
}

func (c *Client) logf(format string, args ...any) {
	if c.log == nil {
		return
	}
	c.log.WriteLineString("rfb: " + fmt.Sprintf(format, args...))
}

// say puts a line on the console and in the log.
func (c *Client) say(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.console.PrintString(msg + "\n")
	c.logf("%s", msg)
}
