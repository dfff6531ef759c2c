//go:build !tinygo

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"lcdvnc/app"
	"lcdvnc/hal"
	"lcdvnc/vncos/services/gui"
)

func main() {
	var hcfg hal.HeadlessConfig
	cfg := app.DefaultConfig()
	var mode string

	flag.BoolVar(&hcfg.Enabled, "headless", false, "Run without a window.")
	flag.DurationVar(&hcfg.Duration, "duration", 0, "Stop after this long in headless mode (0 = run until interrupted).")
	flag.StringVar(&hcfg.Snapshot, "snapshot", "", "Write the panel to this PNG file when headless mode ends.")
	flag.IntVar(&hcfg.Host.Width, "width", 240, "Panel width in pixels.")
	flag.IntVar(&hcfg.Host.Height, "height", 320, "Panel height in pixels.")
	flag.IntVar(&hcfg.Host.Scale, "scale", 2, "Window scale factor.")
	flag.StringVar(&cfg.Host, "host", cfg.Host, "VNC server host (empty = stay idle).")
	flag.IntVar(&cfg.Screen, "screen", cfg.Screen, "VNC screen number; the port is 5900+screen.")
	flag.DurationVar(&cfg.RequestPeriod, "rate", 0, "Update request interval (0 = 40ms).")
	flag.BoolVar(&cfg.SkipUnknownEncodings, "skip-unknown", false, "Log and skip non-raw rectangles instead of reconnecting.")
	flag.StringVar(&mode, "mode", cfg.InitialMode.String(), "Initial mode: console, rfb or display-test.")
	flag.Parse()

	m, err := gui.ParseMode(mode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	cfg.InitialMode = m

	run := func(ctx context.Context, h hal.HAL) error {
		return app.Run(ctx, h, cfg)
	}

	if hcfg.Enabled {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if err := hal.RunHeadless(ctx, run, hcfg); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := hal.RunWindow(run, hcfg.Host); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
