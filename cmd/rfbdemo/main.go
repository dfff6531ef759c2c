//go:build !tinygo

// Command rfbdemo is a small RFB 3.8 server for trying the terminal in the
// simulator. It serves an animated raw RGB565 framebuffer; clicks paint
// dots.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"time"
)

func main() {
	addr := flag.String("listen", ":5901", "Address to listen on (5900+screen).")
	width := flag.Int("width", 240, "Framebuffer width.")
	height := flag.Int("height", 320, "Framebuffer height.")
	period := flag.Duration("period", 100*time.Millisecond, "Animation frame period.")
	name := flag.String("name", "rfbdemo", "Desktop name.")
	flag.Parse()

	logf := func(format string, args ...any) {
		_, _ = fmt.Fprintf(os.Stderr, "rfbdemo: "+format+"\n", args...)
	}

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		logf("%v", err)
		os.Exit(1)
	}
	logf("serving %dx%d on %s", *width, *height, ln.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s := newServer(*width, *height, *name, logf)
	if err := s.serve(ctx, ln, *period); err != nil && !errors.Is(err, context.Canceled) {
		logf("%v", err)
		os.Exit(1)
	}
}
