package ssh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/acolita/train-wizard/internal/ports"
	"golang.org/x/crypto/ssh"
)

// VerifyCommand is run right after login. The session only counts as
// connected when it exits 0 and prints VerifySentinel.
const (
	VerifyCommand  = "whoami && pwd && id && echo " + VerifySentinel
	VerifySentinel = "SSH_TEST_SUCCESS"
)

// DefaultConnectTimeout bounds dialing plus the SSH handshake.
const DefaultConnectTimeout = 15 * time.Second

// Credentials are the values collected by the connect form.
type Credentials struct {
	Host     string
	Port     int
	User     string
	Password string
	Timeout  time.Duration
}

func (c Credentials) validate() error {
	switch {
	case strings.TrimSpace(c.Host) == "":
		return &FieldError{Field: "host", Reason: "is empty"}
	case c.Port <= 0 || c.Port > 65535:
		return &FieldError{Field: "port", Reason: fmt.Sprintf("%d is outside 1-65535", c.Port)}
	case strings.TrimSpace(c.User) == "":
		return &FieldError{Field: "user", Reason: "is empty"}
	case c.Password == "":
		return &FieldError{Field: "password", Reason: "is empty"}
	}
	return nil
}

// ConnectionInfo describes a verified session.
type ConnectionInfo struct {
	Host          string
	Port          int
	User          string
	ServerVersion string
	// Identity is the verification output without the sentinel line.
	Identity string
}

// StatusFunc receives progress messages while connecting.
type StatusFunc func(msg string)

// Manager holds at most one live connection.
type Manager struct {
	mu     sync.Mutex
	client *Client
	info   *ConnectionInfo

	dialer            ports.SSHDialer
	hostKeyCallback   ssh.HostKeyCallback
	keepaliveInterval time.Duration
	status            StatusFunc
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDialer sets the dialer (for testing).
func WithDialer(d ports.SSHDialer) ManagerOption {
	return func(m *Manager) { m.dialer = d }
}

// WithHostKeyCallback sets the host key policy.
func WithHostKeyCallback(cb ssh.HostKeyCallback) ManagerOption {
	return func(m *Manager) { m.hostKeyCallback = cb }
}

// WithKeepalive sets the keepalive interval. Zero disables keepalives.
func WithKeepalive(d time.Duration) ManagerOption {
	return func(m *Manager) { m.keepaliveInterval = d }
}

// WithStatus registers a callback for connection progress messages.
func WithStatus(fn StatusFunc) ManagerOption {
	return func(m *Manager) { m.status = fn }
}

// NewManager creates a Manager with no connection.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{keepaliveInterval: 30 * time.Second}
	for _, opt := range opts {
		opt(m)
	}
	if m.hostKeyCallback == nil {
		m.hostKeyCallback = (&pinner{seen: make(map[string][]byte)}).check
	}
	return m
}

// SetHostKeyCallback replaces the host key policy for future connects.
func (m *Manager) SetHostKeyCallback(cb ssh.HostKeyCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hostKeyCallback = cb
}

func (m *Manager) notify(msg string) {
	if m.status != nil {
		m.status(msg)
	}
}

// Connect closes any existing connection, dials, logs in and verifies the
// session. On failure no connection is retained and the error is a
// *ConnectError.
func (m *Manager) Connect(ctx context.Context, creds Credentials) (*ConnectionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeLocked()

	fail := func(err error) (*ConnectionInfo, error) {
		kind := classifyConnectError(err)
		slog.Warn("ssh connect failed",
			slog.String("host", creds.Host),
			slog.String("user", creds.User),
			slog.String("kind", kind.String()),
			slog.String("error", err.Error()))
		return nil, &ConnectError{Kind: kind, Host: creds.Host, Port: creds.Port, User: creds.User, Err: err}
	}

	if err := creds.validate(); err != nil {
		return fail(err)
	}
	if creds.Timeout <= 0 {
		creds.Timeout = DefaultConnectTimeout
	}

	addr := net.JoinHostPort(creds.Host, strconv.Itoa(creds.Port))
	m.notify(fmt.Sprintf("Connecting to %s as %s...", addr, creds.User))
	client, err := dial(ctx, dialOptions{
		addr: addr,
		config: &ssh.ClientConfig{
			User:            creds.User,
			Auth:            PasswordAuthMethods(creds.Password),
			HostKeyCallback: m.hostKeyCallback,
			Timeout:         creds.Timeout,
		},
		keepalive: m.keepaliveInterval,
		dialer:    m.dialer,
	})
	if err != nil {
		return fail(err)
	}

	m.notify("Verifying session...")
	// A login shell that never answers must not hold the connect open.
	vctx, cancel := context.WithTimeout(ctx, creds.Timeout)
	res, err := client.Run(vctx, VerifyCommand)
	cancel()
	if err == nil && (res.ExitStatus != 0 || !strings.Contains(res.Stdout, VerifySentinel)) {
		err = verifyFailure(res)
	}
	if err != nil {
		client.Close()
		return fail(err)
	}

	info := &ConnectionInfo{
		Host:          creds.Host,
		Port:          creds.Port,
		User:          creds.User,
		ServerVersion: client.ServerVersion(),
		Identity:      stripSentinel(res.Stdout),
	}
	m.client = client
	m.info = info

	m.notify(fmt.Sprintf("Connected to %s", client.Addr()))
	slog.Info("ssh connected",
		slog.String("host", creds.Host),
		slog.Int("port", creds.Port),
		slog.String("user", creds.User),
		slog.String("server_version", info.ServerVersion))
	return info, nil
}

func verifyFailure(res ExecResult) error {
	detail := strings.TrimSpace(res.Stderr)
	if detail == "" {
		detail = strings.TrimSpace(res.Stdout)
	}
	if detail == "" {
		detail = "no output"
	}
	if res.ExitStatus != 0 {
		return fmt.Errorf("verification exited with status %d: %s", res.ExitStatus, detail)
	}
	return fmt.Errorf("verification output missing %s: %s", VerifySentinel, detail)
}

func stripSentinel(out string) string {
	var kept []string
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == VerifySentinel {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// Exec runs cmd on the live connection.
func (m *Manager) Exec(ctx context.Context, cmd string) (ExecResult, error) {
	client := m.current()
	if client == nil {
		return ExecResult{}, notConnected(cmd)
	}

	res, err := client.Run(ctx, cmd)
	if err != nil {
		if errors.Is(err, ErrNotConnected) {
			return res, notConnected(cmd)
		}
		return res, &ExecError{Kind: ExecRemoteFailure, Command: cmd, Err: err}
	}
	return res, nil
}

// NewSession opens a raw session for streaming commands.
func (m *Manager) NewSession() (*ssh.Session, error) {
	client := m.current()
	if client == nil {
		return nil, notConnected("")
	}
	session, err := client.NewSession()
	if errors.Is(err, ErrNotConnected) {
		return nil, notConnected("")
	}
	if err != nil {
		return nil, &ExecError{Kind: ExecRemoteFailure, Err: err}
	}
	return session, nil
}

// RemoteFS returns the file transfer channel of the live connection.
func (m *Manager) RemoteFS() (ports.RemoteFS, error) {
	client := m.current()
	if client == nil {
		return nil, notConnected("")
	}
	fs, err := client.RemoteFS()
	if errors.Is(err, ErrNotConnected) {
		return nil, notConnected("")
	}
	if err != nil {
		return nil, &ExecError{Kind: ExecRemoteFailure, Err: err}
	}
	return fs, nil
}

// Info returns the verified session details, or nil.
func (m *Manager) Info() *ConnectionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.info == nil {
		return nil
	}
	info := *m.info
	return &info
}

// IsConnected reports whether a verified connection is held and still up.
func (m *Manager) IsConnected() bool {
	c := m.current()
	return c != nil && c.Alive()
}

// Close releases the connection. Safe to call when not connected.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLocked()
}

func (m *Manager) closeLocked() error {
	if m.client == nil {
		return nil
	}
	slog.Debug("closing ssh connection", slog.String("addr", m.client.Addr()))
	err := m.client.Close()
	m.client = nil
	m.info = nil
	return err
}

func (m *Manager) current() *Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client
}
