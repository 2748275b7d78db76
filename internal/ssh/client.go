// Package ssh owns the remote shell session used by the training wizard.
package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/acolita/train-wizard/internal/adapters/realsshdialer"
	"github.com/acolita/train-wizard/internal/ports"
	"github.com/acolita/train-wizard/internal/sftp"
)

// maxMissedKeepalives is how many unanswered keepalives close the link.
const maxMissedKeepalives = 3

// ExecResult is the outcome of a command that ran to completion.
type ExecResult struct {
	Stdout     string
	Stderr     string
	ExitStatus int
}

type dialOptions struct {
	addr      string
	config    *ssh.ClientConfig
	keepalive time.Duration
	dialer    ports.SSHDialer
}

// Client is one authenticated link to a training host. It is only ever
// handed out connected; once the server goes away it reports not alive and
// every call fails with ErrNotConnected.
type Client struct {
	addr string
	conn *ssh.Client

	closing atomic.Bool
	dropped atomic.Bool
	stop    chan struct{}
	once    sync.Once

	fsMu sync.Mutex
	fs   *sftp.Client
}

func dial(ctx context.Context, o dialOptions) (*Client, error) {
	if o.dialer == nil {
		o.dialer = realsshdialer.New()
	}
	conn, err := o.dialer.Dial(ctx, "tcp", o.addr, o.config)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", o.addr, err)
	}

	c := &Client{addr: o.addr, conn: conn, stop: make(chan struct{})}
	go c.watch()
	if o.keepalive > 0 {
		go c.keepalive(o.keepalive)
	}
	return c, nil
}

// watch marks the link dropped when the transport ends for any reason.
func (c *Client) watch() {
	err := c.conn.Wait()
	c.dropped.Store(true)
	if !c.closing.Load() {
		msg := "connection lost"
		if err != nil {
			msg = err.Error()
		}
		slog.Warn("ssh link dropped", slog.String("addr", c.addr), slog.String("reason", msg))
	}
}

// keepalive pings the server while the user works locally between steps.
// SendRequest blocks until the server replies, so a ping still unanswered
// at the next tick counts as missed. maxMissedKeepalives misses in a row
// close the link so the next remote step fails fast instead of hanging.
func (c *Client) keepalive(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	replies := make(chan error, 1)
	pending := false
	missed := 0
	for {
		select {
		case <-c.stop:
			return
		case err := <-replies:
			pending = false
			if err != nil {
				// transport is gone; watch reports it
				return
			}
			missed = 0
			continue
		case <-ticker.C:
		}

		if pending {
			missed++
			slog.Debug("keepalive unanswered", slog.String("addr", c.addr), slog.Int("missed", missed))
			if missed >= maxMissedKeepalives {
				slog.Warn("ssh link not answering, closing", slog.String("addr", c.addr))
				c.conn.Close()
				return
			}
			continue
		}
		pending = true
		go func() {
			_, _, err := c.conn.SendRequest("keepalive@openssh.com", true, nil)
			replies <- err
		}()
	}
}

// Addr returns host:port of the training host.
func (c *Client) Addr() string {
	return c.addr
}

// Alive reports whether the link is still up.
func (c *Client) Alive() bool {
	return !c.dropped.Load() && !c.closing.Load()
}

// ServerVersion returns the server's identification string.
func (c *Client) ServerVersion() string {
	return string(c.conn.ServerVersion())
}

// NewSession opens a channel for one command.
func (c *Client) NewSession() (*ssh.Session, error) {
	if !c.Alive() {
		return nil, ErrNotConnected
	}
	s, err := c.conn.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	return s, nil
}

// Run executes cmd and collects its output. A non-zero exit is reported in
// ExecResult.ExitStatus, not as an error. Cancelling ctx kills the command.
func (c *Client) Run(ctx context.Context, cmd string) (ExecResult, error) {
	s, err := c.NewSession()
	if err != nil {
		return ExecResult{}, err
	}
	defer s.Close()

	var stdout, stderr bytes.Buffer
	s.Stdout, s.Stderr = &stdout, &stderr

	done := make(chan error, 1)
	go func() { done <- s.Run(cmd) }()

	select {
	case <-ctx.Done():
		_ = s.Signal(ssh.SIGKILL)
		return ExecResult{}, ctx.Err()
	case err = <-done:
	}

	res := ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *ssh.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitStatus = exitErr.ExitStatus()
	default:
		return res, fmt.Errorf("run %q: %w", cmd, err)
	}
	return res, nil
}

// RemoteFS returns the SFTP channel, creating it on first use.
func (c *Client) RemoteFS() (*sftp.Client, error) {
	if !c.Alive() {
		return nil, ErrNotConnected
	}
	c.fsMu.Lock()
	defer c.fsMu.Unlock()
	if c.fs == nil {
		c.fs = sftp.NewClient(c.conn)
	}
	return c.fs, nil
}

// Close tears down the SFTP channel and the link. Later calls are no-ops.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		c.closing.Store(true)
		close(c.stop)

		c.fsMu.Lock()
		if c.fs != nil {
			c.fs.Close()
			c.fs = nil
		}
		c.fsMu.Unlock()

		err = c.conn.Close()
	})
	return err
}
