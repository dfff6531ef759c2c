//go:build !tinygo

package hal

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"os"
	"time"
)

// HeadlessConfig controls the no-window host runner.
type HeadlessConfig struct {
	Enabled  bool
	Duration time.Duration
	Snapshot string
	Host     HostConfig
}

// RunHeadless runs the system without opening a window. It stops when ctx
// is cancelled or, if set, after cfg.Duration; the panel contents are then
// written to cfg.Snapshot as a PNG.
func RunHeadless(ctx context.Context, run func(context.Context, HAL) error, cfg HeadlessConfig) error {
	h := newHostHAL(cfg.Host)

	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	err := run(ctx, h)
	if errors.Is(err, context.DeadlineExceeded) && cfg.Duration > 0 {
		err = nil
	}

	if cfg.Snapshot != "" {
		if serr := writeSnapshot(h.panel, cfg.Snapshot); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}

func writeSnapshot(p *hostPanel, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := png.Encode(f, p.image()); err != nil {
		f.Close()
		return fmt.Errorf("snapshot: encode: %w", err)
	}
	return f.Close()
}
