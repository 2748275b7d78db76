// Package realsshdialer dials training hosts over TCP.
package realsshdialer

import (
	"context"
	"net"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/acolita/train-wizard/internal/ports"
)

// Dialer implements ports.SSHDialer.
type Dialer struct {
	// KeepAlive is the TCP keepalive period; zero uses the net default.
	KeepAlive time.Duration
}

// New returns a Dialer with default TCP settings.
func New() *Dialer {
	return &Dialer{}
}

// Dial connects and authenticates. config.Timeout bounds the TCP connect and
// the handshake together, and ctx can abort either.
func (d *Dialer) Dial(ctx context.Context, network, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
	}

	nd := net.Dialer{KeepAlive: d.KeepAlive}
	conn, err := nd.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	// The handshake has no context of its own; closing the socket unblocks it.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if !stop() {
		if err == nil {
			c.Close()
		}
		return nil, ctx.Err()
	}
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ssh.NewClient(c, chans, reqs), nil
}

var _ ports.SSHDialer = (*Dialer)(nil)
