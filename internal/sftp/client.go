// Package sftp is the file transfer channel of the remote session. Datasets
// are written to the training host through it.
package sftp

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/acolita/train-wizard/internal/ports"
)

// ErrClosed is returned after the channel has been closed.
var ErrClosed = errors.New("sftp channel closed")

// Client implements ports.RemoteFS over an SSH connection. The SFTP
// subsystem is requested on first use, so connecting stays cheap for users
// who only train locally.
type Client struct {
	conn *ssh.Client

	mu     sync.Mutex
	sc     *sftp.Client
	closed bool
}

// NewClient binds a channel to conn without starting the subsystem.
func NewClient(conn *ssh.Client) *Client {
	return &Client{conn: conn}
}

func (c *Client) subsystem() (*sftp.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.closed:
		return nil, ErrClosed
	case c.sc != nil:
		return c.sc, nil
	case c.conn == nil:
		return nil, errors.New("no ssh connection for sftp")
	}

	// Datasets are written sequentially, so concurrent writes only help.
	sc, err := sftp.NewClient(c.conn, sftp.UseConcurrentWrites(true))
	if err != nil {
		return nil, fmt.Errorf("start sftp subsystem: %w", err)
	}
	c.sc = sc
	return sc, nil
}

// Close ends the subsystem. The SSH connection is left to its owner.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.sc == nil {
		return nil
	}
	err := c.sc.Close()
	c.sc = nil
	return err
}

// Stat describes path on the remote host.
func (c *Client) Stat(path string) (fs.FileInfo, error) {
	sc, err := c.subsystem()
	if err != nil {
		return nil, err
	}
	return sc.Stat(path)
}

// ReadDir lists path on the remote host.
func (c *Client) ReadDir(path string) ([]fs.FileInfo, error) {
	sc, err := c.subsystem()
	if err != nil {
		return nil, err
	}
	return sc.ReadDir(path)
}

// Mkdir creates one directory level. Missing parents are the caller's job so
// that upload can report which level failed.
func (c *Client) Mkdir(path string) error {
	sc, err := c.subsystem()
	if err != nil {
		return err
	}
	return sc.Mkdir(path)
}

// Create opens path for writing, truncating an earlier upload of the same
// dataset.
func (c *Client) Create(path string) (io.WriteCloser, error) {
	sc, err := c.subsystem()
	if err != nil {
		return nil, err
	}
	f, err := sc.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return nil, fmt.Errorf("open %s for writing: %w", path, err)
	}
	return f, nil
}

var _ ports.RemoteFS = (*Client)(nil)
