// Package connectivity turns periodic reachability probes into debounced
// online/offline transitions.
package connectivity

import (
	"context"
	"net"
	"time"
)

// Prober reports whether the remote side is reachable right now.
type Prober interface {
	Probe(ctx context.Context) bool
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) bool

// Probe implements Prober.
func (f ProberFunc) Probe(ctx context.Context) bool { return f(ctx) }

// TCPProber dials Address and reports success when the handshake completes.
type TCPProber struct {
	Address string
	Timeout time.Duration
}

// Probe implements Prober.
func (p TCPProber) Probe(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
