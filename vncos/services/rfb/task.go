package rfb

import (
	"context"

	"lcdvnc/hal"
	"lcdvnc/vncos/kernel"
)

// Run is the receive task. It steps the session until ctx is done and
// waits ReconnectDelay after a session ends before dialing again. A
// session left over from an earlier Run is shut down first, since its
// stream position is unknown.
func (c *Client) Run(ctx context.Context) error {
	if c.State() != StateNotConnected {
		c.Shutdown()
	}
	stop := context.AfterFunc(ctx, c.Shutdown)
	defer stop()

	for {
		prev := c.State()
		if err := c.Step(ctx); err != nil {
			return err
		}
		if prev != StateNotConnected && prev != StateMismatch && c.State() == StateNotConnected {
			if err := c.sleep(ctx, c.cfg.ReconnectDelay); err != nil {
				return err
			}
		}
	}
}

// RequestStep runs one iteration of the request task: an update request
// and a touch poll. It does nothing unless a session is up and the client
// owns the screen.
func (c *Client) RequestStep(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.State() != StateMainLoop || !c.active.Load() {
		c.touchDown = false
		return nil
	}

	conn := c.currentConn()
	switch {
	case c.wantFull.Swap(false):
		if err := c.requestUpdate(conn, false); err != nil {
			c.abort(conn)
			return err
		}
	case !c.busy.Load():
		if err := c.requestUpdate(conn, true); err != nil {
			c.abort(conn)
			return err
		}
	}
	return c.pollTouch()
}

// pollTouch sends a click at the touched point on each new press.
func (c *Client) pollTouch() error {
	if c.touch == nil {
		return nil
	}
	p := c.touch.ReadPoint()
	pressed := p.Event == hal.TouchPress
	edge := pressed && !c.touchDown
	c.touchDown = pressed
	if !edge {
		return nil
	}
	if err := c.SendPointerEvent(ButtonLeft, p.X, p.Y); err != nil {
		return err
	}
	return c.SendPointerEvent(0, p.X, p.Y)
}

// RunRequests is the request task, running RequestStep every
// RequestPeriod.
func (c *Client) RunRequests(ctx context.Context) error {
	return kernel.Every(ctx, c.cfg.RequestPeriod, func(ctx context.Context) error {
		if err := c.RequestStep(ctx); err != nil && ctx.Err() == nil {
			c.logf("request: %v", err)
		}
		return nil
	})
}
