package ports

import (
	"context"

	"golang.org/x/crypto/ssh"
)

// SSHDialer opens an authenticated SSH connection to a training host.
// Cancelling ctx aborts the dial at any stage, handshake included.
type SSHDialer interface {
	Dial(ctx context.Context, network, addr string, config *ssh.ClientConfig) (*ssh.Client, error)
}
