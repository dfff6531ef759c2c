//go:build !tinygo && cgo

package hal

import (
	"context"
	"errors"

	"lcdvnc/internal/buildinfo"

	"github.com/hajimehoshi/ebiten/v2"
)

// RunWindow starts a desktop window that shows the panel and turns the
// left mouse button into touch input. It blocks until the window closes.
func RunWindow(run func(context.Context, HAL) error, cfg HostConfig) error {
	cfg = cfg.withDefaults()
	h := newHostHAL(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx, h) }()

	g := &hostGame{h: h, done: done}
	ebiten.SetWindowTitle("lcdvnc (" + buildinfo.Short() + ")")
	ebiten.SetWindowSize(cfg.Width*cfg.Scale, cfg.Height*cfg.Scale)
	ebiten.SetTPS(60)
	err := ebiten.RunGame(g)
	cancel()
	if errors.Is(err, ebiten.Termination) {
		return nil
	}
	return err
}

type hostGame struct {
	h       *hostHAL
	done    <-chan error
	pix     []byte
	scratch []uint16
	fbImg   *ebiten.Image
}

func (g *hostGame) Update() error {
	select {
	case err := <-g.done:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return ebiten.Termination
	default:
	}

	x, y := ebiten.CursorPosition()
	g.h.mouse.set(x, y, ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft))
	return nil
}

func (g *hostGame) Draw(screen *ebiten.Image) {
	p := g.h.panel
	if g.fbImg == nil {
		g.pix = make([]byte, p.width*p.height*4)
		g.scratch = make([]uint16, p.width*p.height)
		g.fbImg = ebiten.NewImage(p.width, p.height)
	}
	p.fillRGBA(g.pix, g.scratch)
	g.fbImg.WritePixels(g.pix)
	screen.DrawImage(g.fbImg, nil)
}

func (g *hostGame) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.h.panel.width, g.h.panel.height
}
