package rfb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
)

var errUnsupportedEncoding = errors.New("unsupported encoding")

// readMessage reads one server message and handles it.
func (c *Client) readMessage(conn net.Conn) error {
	var t [1]byte
	if err := c.read(conn, t[:]); err != nil {
		return err
	}
	switch t[0] {
	case msgFramebufferUpdate:
		c.busy.Store(true)
		defer c.busy.Store(false)
		return c.readFramebufferUpdate(conn)
	case msgSetColorMapEntries:
		return c.readColorMapEntries(conn)
	case msgBell:
		c.logf("bell")
		return nil
	case msgServerCutText:
		return c.readServerCutText(conn)
	default:
		c.logf("unknown message type %d", t[0])
		return c.resync(conn, "message type")
	}
}

func (c *Client) readFramebufferUpdate(conn net.Conn) error {
	var hdr [3]byte
	if err := c.read(conn, hdr[:]); err != nil {
		return err
	}
	count := int(binary.BigEndian.Uint16(hdr[1:3]))
	if count == 0 {
		return nil
	}
	c.updates.Add(1)
	if count > MaxRectsPerUpdate {
		c.logf("update with %d rectangles", count)
		return c.resync(conn, "rectangle count")
	}

	w, h := c.surface.Size()
	var rh [rectHeaderLen]byte
	for i := 0; i < count; i++ {
		if err := c.read(conn, rh[:]); err != nil {
			return err
		}
		r := parseRect(rh[:])
		if r.last() {
			return nil
		}
		c.rects.Add(1)

		if r.Encoding != EncodingRaw {
			if !c.cfg.SkipUnknownEncodings {
				return fmt.Errorf("%w %d", errUnsupportedEncoding, r.Encoding)
			}
			c.logf("rect %d: encoding %d not implemented", i+1, r.Encoding)
			continue
		}
		if int(r.X)+int(r.W) > w || int(r.Y)+int(r.H) > h {
			c.logf("rect %d: %d,%d %dx%d out of range", i+1, r.X, r.Y, r.W, r.H)
			return c.resync(conn, "rectangle bounds")
		}
		if err := c.readRaw(conn, r); err != nil {
			return err
		}
	}
	return nil
}

// readRaw consumes a raw rectangle one scanline at a time, blitting each
// line while the client owns the screen.
func (c *Client) readRaw(conn net.Conn, r Rect) error {
	n := int(r.W)
	if n == 0 {
		return nil
	}
	pf := c.Server().Format
	src := c.rx[:2*n]
	dst := c.line[:n]
	for row := 0; row < int(r.H); row++ {
		if err := c.read(conn, src); err != nil {
			return err
		}
		if !c.active.Load() {
			continue
		}
		decodeLine(dst, src, pf)
		if err := c.surface.Blit(int(r.X), int(r.Y)+row, n, 1, dst); err != nil {
			// Frame dropped; the next update repaints it.
			c.logf("blit: %v", err)
			continue
		}
		c.didDraw.Store(true)
		c.scanlines.Add(1)
	}
	return nil
}

func (c *Client) readColorMapEntries(conn net.Conn) error {
	var hdr [5]byte
	if err := c.read(conn, hdr[:]); err != nil {
		return err
	}
	n := int(binary.BigEndian.Uint16(hdr[3:5]))
	c.logf("colour map: %d entries ignored", n)
	return discard(conn, c.rx, 6*n, c.cfg.ReadChunk)
}

func (c *Client) readServerCutText(conn net.Conn) error {
	var hdr [7]byte
	if err := c.read(conn, hdr[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(hdr[3:7])
	if n > maxCutText {
		c.logf("cut text of %d bytes", n)
		return c.resync(conn, "cut text")
	}
	return discard(conn, c.rx, int(n), c.cfg.ReadChunk)
}

// resync throws away whatever the server has queued to get back to a
// message boundary.
func (c *Client) resync(conn net.Conn, from string) error {
	c.busy.Store(true)
	defer c.busy.Store(false)
	n, err := drain(conn, c.rx, c.cfg.DrainWindow)
	c.drains.Add(1)
	c.drainedBytes.Add(uint64(n))
	c.logf("from [%s] throwing away %d bytes", from, n)
	return err
}
