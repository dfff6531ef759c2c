//go:build !tinygo

package hal

import (
	"context"
	"net"
	"time"
)

type netDialer struct {
	d net.Dialer
}

func newNetDialer() *netDialer {
	return &netDialer{d: net.Dialer{Timeout: 5 * time.Second}}
}

func (n *netDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return n.d.DialContext(ctx, network, address)
}
