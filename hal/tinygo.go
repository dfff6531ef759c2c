//go:build tinygo && baremetal

package hal

import (
	"context"
	"machine"
	"net"
	"sync"

	"tinygo.org/x/drivers/ili9341"
	"tinygo.org/x/drivers/touch"
	"tinygo.org/x/drivers/xpt2046"
)

// Wiring: ILI9341 and XPT2046 share one SPI bus.
const (
	pinSCK       = machine.GPIO15
	pinSDO       = machine.GPIO14
	pinSDI       = machine.GPIO34
	pinLCDCS     = machine.GPIO32
	pinLCDDC     = machine.GPIO5
	pinLCDReset  = machine.GPIO2
	pinBacklight = machine.GPIO4
	pinTouchCS   = machine.GPIO3

	lcdFrequency = 32_000_000

	// maxTransferPixels keeps one DrawBitmap under the SPI DMA limit.
	maxTransferPixels = 2048
)

type tinyGoHAL struct {
	logger *uartLogger
	panel  *ili9341Panel
	touch  Touch
	dialer Dialer
}

// New returns the ESP32 + ILI9341 + XPT2046 HAL implementation.
//
// UART: UART0, 115200 8N1.
func New() HAL {
	uart := machine.UART0
	uart.Configure(machine.UARTConfig{BaudRate: 115200})

	pinBacklight.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pinBacklight.High()

	bus := &sharedBus{
		spi: machine.SPI2,
		cfg: machine.SPIConfig{
			SCK:       pinSCK,
			SDO:       pinSDO,
			SDI:       pinSDI,
			Frequency: lcdFrequency,
		},
	}
	bus.spi.Configure(bus.cfg)

	lcd := ili9341.NewSPI(bus.spi, pinLCDDC, pinLCDCS, pinLCDReset)
	lcd.Configure(ili9341.Config{})
	w, h := lcd.Size()

	ts := xpt2046.New(pinSCK, pinTouchCS, pinSDO, pinSDI, machine.NoPin)
	ts.Configure(&xpt2046.Config{Precision: 10})

	return &tinyGoHAL{
		logger: &uartLogger{uart: uart},
		panel:  &ili9341Panel{bus: bus, lcd: lcd, width: int(w), height: int(h)},
		touch: NewPointerTouch(&busTouch{bus: bus, ts: &ts}, TouchCalibration{
			RawMinX: 6000, RawMaxX: 60000,
			RawMinY: 6000, RawMaxY: 60000,
			Width: int(w), Height: int(h),
		}),
		dialer: tinyGoDialer{},
	}
}

func (h *tinyGoHAL) Logger() Logger { return h.logger }
func (h *tinyGoHAL) Panel() Panel   { return h.panel }
func (h *tinyGoHAL) Touch() Touch   { return h.touch }
func (h *tinyGoHAL) Dialer() Dialer { return h.dialer }

// sharedBus serializes the panel and the bit-banged touch controller, and
// restores the hardware SPI pins after every touch read.
type sharedBus struct {
	mu  sync.Mutex
	spi *machine.SPI
	cfg machine.SPIConfig
}

type ili9341Panel struct {
	bus    *sharedBus
	lcd    *ili9341.Device
	width  int
	height int
}

func (p *ili9341Panel) Info() PanelInfo {
	return PanelInfo{
		Name:              "ili9341",
		Width:             p.width,
		Height:            p.height,
		MaxTransferPixels: maxTransferPixels,
	}
}

func (p *ili9341Panel) DrawBitmap(x, y, w, h int16, pixels []uint16) error {
	if int(w)*int(h) > maxTransferPixels {
		return ErrTransferTooLarge
	}
	if x < 0 || y < 0 || int(x)+int(w) > p.width || int(y)+int(h) > p.height {
		return ErrOutOfBounds
	}
	p.bus.mu.Lock()
	defer p.bus.mu.Unlock()
	return p.lcd.DrawRGBBitmap(x, y, pixels[:int(w)*int(h)], w, h)
}

type busTouch struct {
	bus *sharedBus
	ts  *xpt2046.Device
}

func (t *busTouch) ReadTouchPoint() (pt touch.Point) {
	t.bus.mu.Lock()
	defer t.bus.mu.Unlock()
	pt = t.ts.ReadTouchPoint()
	t.bus.spi.Configure(t.bus.cfg)
	return pt
}

type tinyGoDialer struct{}

func (tinyGoDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return net.Dial(network, address)
}

type uartLogger struct {
	mu   sync.Mutex
	uart *machine.UART
}

func (l *uartLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := 0; i < len(s); i++ {
		l.uart.WriteByte(s[i])
	}
	l.uart.WriteByte('\r')
	l.uart.WriteByte('\n')
}

func (l *uartLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := 0; i < len(b); i++ {
		l.uart.WriteByte(b[i])
	}
	l.uart.WriteByte('\r')
	l.uart.WriteByte('\n')
}
