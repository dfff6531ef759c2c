//go:build !tinygo

package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	serverVersion = "RFB 003.008\n"

	// Client to server.
	setPixelFormatReq    = 0
	setEncodingsReq      = 2
	framebufferUpdateReq = 3
	keyEventReq          = 4
	pointerEventReq      = 5
	clientCutTextReq     = 6

	framebufferUpdateMsg = 0
	encodingRaw          = 0

	maxClientCutText = 1 << 20
)

var errUnknownMessage = errors.New("unknown client message")

// server serves one animated RGB565 framebuffer to any number of viewers.
// Pointer presses paint dots that stay on top of the animation.
type server struct {
	name string
	w, h int
	logf func(format string, args ...any)

	mu    sync.Mutex
	frame *image.RGBA
	dots  *image.RGBA
	gen   uint64
	tick  int
}

func newServer(w, h int, name string, logf func(string, ...any)) *server {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	s := &server{
		name:  name,
		w:     w,
		h:     h,
		logf:  logf,
		frame: image.NewRGBA(image.Rect(0, 0, w, h)),
		dots:  image.NewRGBA(image.Rect(0, 0, w, h)),
	}
	s.step()
	return s
}

var barColors = []color.RGBA{
	{R: 0xE0, G: 0x30, B: 0x30, A: 0xFF},
	{R: 0x30, G: 0xC0, B: 0x50, A: 0xFF},
	{R: 0x30, G: 0x60, B: 0xE0, A: 0xFF},
	{R: 0xE0, G: 0xC0, B: 0x30, A: 0xFF},
}

// step advances the animation by one frame.
func (s *server) step() {
	s.mu.Lock()
	defer s.mu.Unlock()

	bg := color.RGBA{R: 0x10, G: 0x10, B: 0x18, A: 0xFF}
	draw.Draw(s.frame, s.frame.Bounds(), &image.Uniform{C: bg}, image.Point{}, draw.Src)

	barH := max(s.h/10, 1)
	for i, c := range barColors {
		y := (s.tick*2 + i*s.h/len(barColors)) % s.h
		r := image.Rect(0, y, s.w, y+barH).Intersect(s.frame.Bounds())
		draw.Draw(s.frame, r, &image.Uniform{C: c}, image.Point{}, draw.Src)
	}
	draw.Draw(s.frame, s.frame.Bounds(), s.dots, image.Point{}, draw.Over)
	s.tick++
	s.gen++
}

// paint marks a 5x5 dot at p.
func (s *server) paint(p image.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := image.Rect(p.X-2, p.Y-2, p.X+3, p.Y+3).Intersect(s.dots.Bounds())
	dot := color.RGBA{R: 50, G: 200, B: 150, A: 255}
	draw.Draw(s.dots, r, &image.Uniform{C: dot}, image.Point{}, draw.Src)
	draw.Draw(s.frame, r, &image.Uniform{C: dot}, image.Point{}, draw.Src)
	s.gen++
}

func rgb565(c color.RGBA) uint16 {
	return uint16(c.R>>3)<<11 | uint16(c.G>>2)<<5 | uint16(c.B>>3)
}

// encodeUpdate returns a one-rectangle raw FramebufferUpdate of the whole
// frame and the generation it shows.
func (s *server) encodeUpdate() ([]byte, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := make([]byte, 0, 4+12+2*s.w*s.h)
	b = append(b, framebufferUpdateMsg, 0)
	b = binary.BigEndian.AppendUint16(b, 1)
	b = binary.BigEndian.AppendUint16(b, 0)
	b = binary.BigEndian.AppendUint16(b, 0)
	b = binary.BigEndian.AppendUint16(b, uint16(s.w))
	b = binary.BigEndian.AppendUint16(b, uint16(s.h))
	b = binary.BigEndian.AppendUint32(b, encodingRaw)
	for y := 0; y < s.h; y++ {
		for x := 0; x < s.w; x++ {
			b = binary.BigEndian.AppendUint16(b, rgb565(s.frame.RGBAAt(x, y)))
		}
	}
	return b, s.gen
}

func (s *server) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// serverInit describes a big-endian RGB565 framebuffer.
func (s *server) serverInit() []byte {
	b := make([]byte, 24, 24+len(s.name))
	binary.BigEndian.PutUint16(b[0:], uint16(s.w))
	binary.BigEndian.PutUint16(b[2:], uint16(s.h))
	b[4], b[5], b[6], b[7] = 16, 16, 1, 1
	binary.BigEndian.PutUint16(b[8:], 31)
	binary.BigEndian.PutUint16(b[10:], 63)
	binary.BigEndian.PutUint16(b[12:], 31)
	b[14], b[15], b[16] = 11, 5, 0
	binary.BigEndian.PutUint32(b[20:], uint32(len(s.name)))
	return append(b, s.name...)
}

func reason(msg string) []byte {
	b := binary.BigEndian.AppendUint32(nil, uint32(len(msg)))
	return append(b, msg...)
}

func (s *server) handshake(conn io.ReadWriter) error {
	if _, err := io.WriteString(conn, serverVersion); err != nil {
		return err
	}
	var v [12]byte
	if _, err := io.ReadFull(conn, v[:]); err != nil {
		return fmt.Errorf("client version: %w", err)
	}
	if string(v[:]) != serverVersion {
		conn.Write(append([]byte{0}, reason("unsupported version")...))
		return fmt.Errorf("client version %q", v[:])
	}

	if _, err := conn.Write([]byte{1, 1}); err != nil {
		return err
	}
	var b [1]byte
	if _, err := io.ReadFull(conn, b[:]); err != nil {
		return fmt.Errorf("security type: %w", err)
	}
	if b[0] != 1 {
		conn.Write(append([]byte{0, 0, 0, 1}, reason(fmt.Sprintf("unsupported security type %d", b[0]))...))
		return fmt.Errorf("security type %d", b[0])
	}
	if _, err := conn.Write([]byte{0, 0, 0, 0}); err != nil {
		return err
	}

	if _, err := io.ReadFull(conn, b[:]); err != nil {
		return fmt.Errorf("client init: %w", err)
	}
	_, err := conn.Write(s.serverInit())
	return err
}

// serveConn runs one viewer session until the client goes away.
func (s *server) serveConn(conn net.Conn) error {
	defer conn.Close()
	if err := s.handshake(conn); err != nil {
		return err
	}

	var sent uint64
	for {
		var t [1]byte
		if _, err := io.ReadFull(conn, t[:]); err != nil {
			return err
		}
		switch t[0] {
		case setPixelFormatReq:
			if _, err := io.CopyN(io.Discard, conn, 19); err != nil {
				return err
			}
		case setEncodingsReq:
			var hdr [3]byte
			if _, err := io.ReadFull(conn, hdr[:]); err != nil {
				return err
			}
			n := int64(binary.BigEndian.Uint16(hdr[1:3]))
			if _, err := io.CopyN(io.Discard, conn, 4*n); err != nil {
				return err
			}
		case framebufferUpdateReq:
			var req [9]byte
			if _, err := io.ReadFull(conn, req[:]); err != nil {
				return err
			}
			incremental := req[0] != 0
			if incremental && s.generation() == sent {
				continue
			}
			msg, gen := s.encodeUpdate()
			if _, err := conn.Write(msg); err != nil {
				return err
			}
			sent = gen
		case keyEventReq:
			if _, err := io.CopyN(io.Discard, conn, 7); err != nil {
				return err
			}
		case pointerEventReq:
			var ev [5]byte
			if _, err := io.ReadFull(conn, ev[:]); err != nil {
				return err
			}
			if ev[0] != 0 {
				p := image.Pt(int(binary.BigEndian.Uint16(ev[1:3])), int(binary.BigEndian.Uint16(ev[3:5])))
				s.logf("press at %d,%d", p.X, p.Y)
				s.paint(p)
			}
		case clientCutTextReq:
			var hdr [7]byte
			if _, err := io.ReadFull(conn, hdr[:]); err != nil {
				return err
			}
			n := binary.BigEndian.Uint32(hdr[3:7])
			if n > maxClientCutText {
				return fmt.Errorf("cut text of %d bytes", n)
			}
			if _, err := io.CopyN(io.Discard, conn, int64(n)); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w %d", errUnknownMessage, t[0])
		}
	}
}

// serve accepts viewers on ln and animates at the given period until ctx
// is done.
func (s *server) serve(ctx context.Context, ln net.Listener, period time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		ln.Close()
		return ctx.Err()
	})
	g.Go(func() error {
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				s.step()
			}
		}
	})
	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return err
			}
			s.logf("viewer %s connected", conn.RemoteAddr())
			go func() {
				err := s.serveConn(conn)
				s.logf("viewer %s gone: %v", conn.RemoteAddr(), err)
			}()
		}
	})
	return g.Wait()
}
