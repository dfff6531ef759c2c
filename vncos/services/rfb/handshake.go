package rfb

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strconv"
)

var (
	errBadGreeting = errors.New("bad greeting")
	errOldVersion  = errors.New("server version below 3.8")
	errNoNone      = errors.New("security type None not offered")
	errRefused     = errors.New("connection refused by server")
	errSecurity    = errors.New("security handshake failed")
	errBadLength   = errors.New("string length out of range")
)

// Step runs one iteration of the receive task for the current state. It
// returns an error only when ctx is done; session failures shut the
// session down and are reported through the log and console.
func (c *Client) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	state := c.State()
	switch state {
	case StateNotConnected:
		return c.dial(ctx)
	case StateMismatch:
		if err := c.sleep(ctx, c.cfg.MismatchCooldown); err != nil {
			return err
		}
		if c.State() == StateMismatch {
			c.setState(StateNotConnected)
		}
		return nil
	}

	conn := c.currentConn()
	if conn == nil {
		c.setState(StateNotConnected)
		return nil
	}

	var err error
	switch state {
	case StateExpectingGreeting:
		err = c.readGreeting(conn)
	case StateExpectingSecurityTypes:
		err = c.readSecurityTypes(conn)
	case StateExpectingSecurityResult:
		err = c.readSecurityResult(conn)
	case StateExpectingServerInit:
		err = c.readServerInit(conn)
	case StateMainLoop:
		err = c.readMessage(conn)
	}
	if err != nil {
		if ctx.Err() != nil {
			c.Shutdown()
			return ctx.Err()
		}
		c.logf("%s: %v", state, err)
		c.abort(conn)
	}
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	c.connMu.Lock()
	host, port := c.host, c.port
	c.connMu.Unlock()

	if host == "" {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.targetSet:
		}
		return nil
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	c.say("Connecting to %s", addr)
	conn, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.say("unable to connect: %v", err)
		return c.sleep(ctx, c.cfg.ReconnectDelay)
	}

	c.connMu.Lock()
	if ctx.Err() != nil || c.host != host || c.port != port {
		// Cancelled or retargeted while dialing.
		c.connMu.Unlock()
		if err := conn.Close(); err != nil {
			c.logf("close: %v", err)
		}
		return ctx.Err()
	}
	c.conn = conn
	c.server = ServerInit{}
	c.didDraw.Store(false)
	c.busy.Store(false)
	c.wantFull.Store(false)
	c.connects.Add(1)
	c.setState(StateExpectingGreeting)
	c.connMu.Unlock()
	return nil
}

func (c *Client) read(conn net.Conn, buf []byte) error {
	return readFull(conn, buf, c.cfg.ReadChunk)
}

func (c *Client) readU32(conn net.Conn) (uint32, error) {
	var b [4]byte
	if err := c.read(conn, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// readReason reads a u32-prefixed reason string, keeping at most
// maxReasonLen bytes of it.
func (c *Client) readReason(conn net.Conn) (string, error) {
	n, err := c.readU32(conn)
	if err != nil {
		return "", err
	}
	return c.readString(conn, n, maxReasonLen)
}

// readString reads an n-byte string and keeps at most limit bytes of it.
// Lengths above maxStringLen are rejected without reading.
func (c *Client) readString(conn net.Conn, n, limit uint32) (string, error) {
	if n > maxStringLen {
		return "", fmt.Errorf("%w: %d", errBadLength, n)
	}
	keep := min(n, limit)
	buf := make([]byte, keep)
	if err := c.read(conn, buf); err != nil {
		return "", err
	}
	if rest := n - keep; rest > 0 {
		if err := discard(conn, c.rx, int(rest), c.cfg.ReadChunk); err != nil {
			return "", err
		}
	}
	return string(buf), nil
}

func (c *Client) readGreeting(conn net.Conn) error {
	var b [versionLen]byte
	if err := c.read(conn, b[:]); err != nil {
		return err
	}
	major, minor, err := parseVersion(b[:])
	if err != nil {
		return fmt.Errorf("%w: %v", errBadGreeting, err)
	}
	if major < 3 || (major == 3 && minor < 8) {
		return fmt.Errorf("%w: %d.%d", errOldVersion, major, minor)
	}
	c.logf("server speaks %d.%d", major, minor)
	if err := c.write(conn, []byte(ProtocolVersion)); err != nil {
		return err
	}
	c.setState(StateExpectingSecurityTypes)
	return nil
}

func (c *Client) readSecurityTypes(conn net.Conn) error {
	var n [1]byte
	if err := c.read(conn, n[:]); err != nil {
		return err
	}
	if n[0] == 0 {
		reason, err := c.readReason(conn)
		if err != nil {
			return err
		}
		c.say("server refused connection: %s", reason)
		return errRefused
	}

	types := make([]byte, n[0])
	if err := c.read(conn, types); err != nil {
		return err
	}
	offered := false
	for _, t := range types {
		if t == securityNone {
			offered = true
			break
		}
	}
	if !offered {
		c.say("server requires authentication (types %v)", types)
		return fmt.Errorf("%w: %v", errNoNone, types)
	}
	if err := c.write(conn, []byte{securityNone}); err != nil {
		return err
	}
	c.setState(StateExpectingSecurityResult)
	return nil
}

func (c *Client) readSecurityResult(conn net.Conn) error {
	result, err := c.readU32(conn)
	if err != nil {
		return err
	}
	if result != 0 {
		reason, err := c.readReason(conn)
		if err != nil {
			return err
		}
		c.say("security handshake failed: %s", reason)
		return fmt.Errorf("%w: %d", errSecurity, result)
	}
	// ClientInit, shared.
	if err := c.write(conn, []byte{1}); err != nil {
		return err
	}
	c.setState(StateExpectingServerInit)
	return nil
}

func (c *Client) readServerInit(conn net.Conn) error {
	var hdr [serverInitHeaderLen]byte
	if err := c.read(conn, hdr[:]); err != nil {
		return err
	}
	si, nameLen := parseServerInitHeader(hdr[:])
	name, err := c.readString(conn, nameLen, maxNameLen)
	if err != nil {
		return fmt.Errorf("desktop name: %w", err)
	}
	si.Name = name

	c.connMu.Lock()
	c.server = si
	c.connMu.Unlock()

	w, h := c.surface.Size()
	if int(si.Width) != w || int(si.Height) != h || si.Format.BitsPerPixel != 16 {
		c.say("VNC server is %dx%d %dbpp, display is %dx%d 16bpp",
			si.Width, si.Height, si.Format.BitsPerPixel, w, h)
		c.closeConn()
		c.setState(StateMismatch)
		return nil
	}
	c.say("Connected to %q %dx%d", si.Name, si.Width, si.Height)

	var msg [8]byte
	if err := c.write(conn, appendSetEncodings(msg[:0], EncodingRaw)); err != nil {
		return err
	}
	if c.active.Load() {
		c.console.Enable(false, false)
	}
	if err := c.requestUpdate(conn, false); err != nil {
		return err
	}
	c.setState(StateMainLoop)
	return nil
}

// requestUpdate asks for the whole framebuffer.
func (c *Client) requestUpdate(conn net.Conn, incremental bool) error {
	si := c.Server()
	var msg [10]byte
	if err := c.write(conn, appendFramebufferUpdateRequest(msg[:0], incremental, 0, 0, si.Width, si.Height)); err != nil {
		return err
	}
	c.requests.Add(1)
	return nil
}
