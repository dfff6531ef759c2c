package rfb

import (
	"encoding/binary"
	"fmt"
	"strconv"
)

// ProtocolVersion is the version string this client speaks.
const ProtocolVersion = "RFB 003.008\n"

const (
	versionLen          = 12
	serverInitHeaderLen = 24
	rectHeaderLen       = 12

	securityNone uint8 = 1

	// Client to server.
	msgSetEncodings             uint8 = 2
	msgFramebufferUpdateRequest uint8 = 3
	msgPointerEvent             uint8 = 5

	// Server to client.
	msgFramebufferUpdate  uint8 = 0
	msgSetColorMapEntries uint8 = 1
	msgBell               uint8 = 2
	msgServerCutText      uint8 = 3
)

// EncodingRaw is the only rectangle encoding this client decodes.
const EncodingRaw int32 = 0

const encodingLastRect int32 = -1

// MaxRectsPerUpdate caps the rectangle count of one FramebufferUpdate;
// larger counts are treated as a corrupt stream.
const MaxRectsPerUpdate = 2048

const (
	maxCutText    = 1 << 20
	maxStringLen  = 1 << 20
	maxReasonLen  = 1024
	maxNameLen    = 256
	coordSentinel = 0xFFFF
)

// ButtonMask is the button state of a PointerEvent.
type ButtonMask uint8

const (
	ButtonLeft ButtonMask = 1 << iota
	ButtonMiddle
	ButtonRight
)

// PixelFormat is the ServerInit pixel format.
type PixelFormat struct {
	BitsPerPixel uint8
	Depth        uint8
	BigEndian    bool
	TrueColor    bool
	RedMax       uint16
	GreenMax     uint16
	BlueMax      uint16
	RedShift     uint8
	GreenShift   uint8
	BlueShift    uint8
}

// ServerInit is the server's framebuffer description.
type ServerInit struct {
	Width  uint16
	Height uint16
	Format PixelFormat
	Name   string
}

func parseServerInitHeader(b []byte) (ServerInit, uint32) {
	si := ServerInit{
		Width:  binary.BigEndian.Uint16(b[0:2]),
		Height: binary.BigEndian.Uint16(b[2:4]),
		Format: PixelFormat{
			BitsPerPixel: b[4],
			Depth:        b[5],
			BigEndian:    b[6] != 0,
			TrueColor:    b[7] != 0,
			RedMax:       binary.BigEndian.Uint16(b[8:10]),
			GreenMax:     binary.BigEndian.Uint16(b[10:12]),
			BlueMax:      binary.BigEndian.Uint16(b[12:14]),
			RedShift:     b[14],
			GreenShift:   b[15],
			BlueShift:    b[16],
		},
	}
	return si, binary.BigEndian.Uint32(b[20:24])
}

// Rect is a FramebufferUpdate rectangle header.
type Rect struct {
	X, Y, W, H uint16
	Encoding   int32
}

func parseRect(b []byte) Rect {
	return Rect{
		X:        binary.BigEndian.Uint16(b[0:2]),
		Y:        binary.BigEndian.Uint16(b[2:4]),
		W:        binary.BigEndian.Uint16(b[4:6]),
		H:        binary.BigEndian.Uint16(b[6:8]),
		Encoding: int32(binary.BigEndian.Uint32(b[8:12])),
	}
}

// last reports whether r ends the update without being a rectangle.
func (r Rect) last() bool {
	return r.Encoding == encodingLastRect || r.X == coordSentinel || r.Y == coordSentinel || r.H == coordSentinel
}

func parseVersion(b []byte) (major, minor int, err error) {
	if len(b) != versionLen || string(b[:4]) != "RFB " || b[7] != '.' || b[11] != '\n' {
		return 0, 0, fmt.Errorf("malformed version %q", b)
	}
	if major, err = strconv.Atoi(string(b[4:7])); err != nil {
		return 0, 0, fmt.Errorf("malformed version %q", b)
	}
	if minor, err = strconv.Atoi(string(b[8:11])); err != nil {
		return 0, 0, fmt.Errorf("malformed version %q", b)
	}
	return major, minor, nil
}

func appendSetEncodings(dst []byte, encodings ...int32) []byte {
	dst = append(dst, msgSetEncodings, 0)
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(encodings)))
	for _, e := range encodings {
		dst = binary.BigEndian.AppendUint32(dst, uint32(e))
	}
	return dst
}

func appendFramebufferUpdateRequest(dst []byte, incremental bool, x, y, w, h uint16) []byte {
	inc := byte(0)
	if incremental {
		inc = 1
	}
	dst = append(dst, msgFramebufferUpdateRequest, inc)
	dst = binary.BigEndian.AppendUint16(dst, x)
	dst = binary.BigEndian.AppendUint16(dst, y)
	dst = binary.BigEndian.AppendUint16(dst, w)
	dst = binary.BigEndian.AppendUint16(dst, h)
	return dst
}

func appendPointerEvent(dst []byte, mask ButtonMask, x, y uint16) []byte {
	dst = append(dst, msgPointerEvent, byte(mask))
	dst = binary.BigEndian.AppendUint16(dst, x)
	dst = binary.BigEndian.AppendUint16(dst, y)
	return dst
}

func (pf PixelFormat) isRGB565() bool {
	return pf.RedMax == 31 && pf.GreenMax == 63 && pf.BlueMax == 31 &&
		pf.RedShift == 11 && pf.GreenShift == 5 && pf.BlueShift == 0
}

// decodeLine converts one scanline of 16-bit server pixels to RGB565.
func decodeLine(dst []uint16, src []byte, pf PixelFormat) {
	order := binary.ByteOrder(binary.LittleEndian)
	if pf.BigEndian {
		order = binary.BigEndian
	}
	direct := !pf.TrueColor || pf.isRGB565()
	for i := range dst {
		v := order.Uint16(src[2*i:])
		if direct {
			dst[i] = v
			continue
		}
		r := scaleChannel(v>>pf.RedShift, pf.RedMax, 31)
		g := scaleChannel(v>>pf.GreenShift, pf.GreenMax, 63)
		b := scaleChannel(v>>pf.BlueShift, pf.BlueMax, 31)
		dst[i] = r<<11 | g<<5 | b
	}
}

func scaleChannel(v, max, to uint16) uint16 {
	if max == 0 {
		return 0
	}
	return uint16(uint32(v&max) * uint32(to) / uint32(max))
}
