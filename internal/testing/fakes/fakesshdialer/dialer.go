// Package fakesshdialer records SSH dials and lets tests decide their outcome.
package fakesshdialer

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/crypto/ssh"

	"github.com/acolita/train-wizard/internal/ports"
)

// ErrNotConfigured is returned by a Dialer without a DialFunc.
var ErrNotConfigured = errors.New("fakesshdialer: not configured")

// DialFunc decides what a Dial returns.
type DialFunc func(ctx context.Context, network, addr string, config *ssh.ClientConfig) (*ssh.Client, error)

// Attempt is one recorded Dial.
type Attempt struct {
	Addr   string
	User   string
	Config *ssh.ClientConfig
}

// Dialer is a scriptable ports.SSHDialer.
type Dialer struct {
	mu       sync.Mutex
	fn       DialFunc
	attempts []Attempt
}

// New returns a Dialer that fails every dial with ErrNotConfigured.
func New() *Dialer {
	return &Dialer{}
}

// Passthrough records attempts and forwards them to next, typically a real
// dialer pointed at an in-process server.
func Passthrough(next ports.SSHDialer) *Dialer {
	return &Dialer{fn: next.Dial}
}

// Failing returns a Dialer whose every dial fails with err.
func Failing(err error) *Dialer {
	return &Dialer{fn: func(context.Context, string, string, *ssh.ClientConfig) (*ssh.Client, error) {
		return nil, err
	}}
}

// Blocking returns a Dialer that waits until ctx is done or release is
// closed, the way a dial to an unresponsive host does.
func Blocking(release <-chan struct{}) *Dialer {
	return &Dialer{fn: func(ctx context.Context, _, _ string, _ *ssh.ClientConfig) (*ssh.Client, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
			return nil, errors.New("fakesshdialer: released")
		}
	}}
}

// Dial records the attempt and then defers to the configured behaviour.
func (d *Dialer) Dial(ctx context.Context, network, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	d.mu.Lock()
	a := Attempt{Addr: addr, Config: config}
	if config != nil {
		a.User = config.User
	}
	d.attempts = append(d.attempts, a)
	fn := d.fn
	d.mu.Unlock()

	if fn == nil {
		return nil, ErrNotConfigured
	}
	return fn(ctx, network, addr, config)
}

// Attempts returns a copy of the recorded dials.
func (d *Dialer) Attempts() []Attempt {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Attempt(nil), d.attempts...)
}

var _ ports.SSHDialer = (*Dialer)(nil)
