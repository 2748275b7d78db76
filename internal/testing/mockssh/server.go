// Package mockssh provides an in-process SSH server with exec and SFTP
// support for tests.
package mockssh

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Response is a scripted reply to an exec request.
type Response struct {
	Stdout     string
	Stderr     string
	ExitStatus int
}

// ExecHandler answers an exec request. Returning false runs the command
// through the server shell instead.
type ExecHandler func(command string) (Response, bool)

// Server is a mock SSH server for testing.
type Server struct {
	listener net.Listener
	config   *ssh.ServerConfig
	addr     string
	shell    string
	users    map[string]string // username -> password
	handler  ExecHandler
	noSFTP   bool
	mu       sync.RWMutex
	done     chan struct{}
	wg       sync.WaitGroup

	connsMu  sync.Mutex
	conns    map[net.Conn]struct{}
	commands []string
}

// Option configures the mock SSH server.
type Option func(*Server)

// WithShell sets the shell used for unscripted exec requests.
func WithShell(shell string) Option {
	return func(s *Server) {
		s.shell = shell
	}
}

// WithUser adds a user/password pair for authentication.
func WithUser(username, password string) Option {
	return func(s *Server) {
		s.users[username] = password
	}
}

// WithExecHandler scripts exec replies.
func WithExecHandler(h ExecHandler) Option {
	return func(s *Server) {
		s.handler = h
	}
}

// WithoutSFTP makes the server reject the sftp subsystem.
func WithoutSFTP() Option {
	return func(s *Server) {
		s.noSFTP = true
	}
}

// New creates and starts a mock SSH server on a random local port.
func New(opts ...Option) (*Server, error) {
	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate host key: %w", err)
	}

	signer, err := ssh.NewSignerFromKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}

	s := &Server{
		shell: "/bin/sh",
		users: map[string]string{
			"test": "test",
		},
		done:  make(chan struct{}),
		conns: make(map[net.Conn]struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			s.mu.RLock()
			expectedPass, ok := s.users[c.User()]
			s.mu.RUnlock()

			if ok && string(password) == expectedPass {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %q", c.User())
		},
	}
	config.AddHostKey(signer)
	s.config = config

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener
	s.addr = listener.Addr().String()

	s.wg.Add(1)
	go s.acceptLoop()

	slog.Debug("mock SSH server started", slog.String("addr", s.addr))
	return s, nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	return s.addr
}

// Host returns the host part of the address.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.addr)
	return host
}

// Port returns the port the server is listening on.
func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.addr)
	n, _ := strconv.Atoi(port)
	return n
}

// Commands returns every exec command received, in order.
func (s *Server) Commands() []string {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	out := make([]string, len(s.commands))
	copy(out, s.commands)
	return out
}

// Close shuts down the server and drops every open connection.
func (s *Server) Close() error {
	close(s.done)
	err := s.listener.Close()

	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				slog.Debug("accept error", slog.String("error", err.Error()))
				continue
			}
		}

		s.connsMu.Lock()
		s.conns[conn] = struct{}{}
		s.connsMu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(netConn net.Conn) {
	defer s.wg.Done()
	defer func() {
		netConn.Close()
		s.connsMu.Lock()
		delete(s.conns, netConn)
		s.connsMu.Unlock()
	}()

	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, s.config)
	if err != nil {
		slog.Debug("SSH handshake failed", slog.String("error", err.Error()))
		return
	}
	defer sshConn.Close()

	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}

		channel, requests, err := newChannel.Accept()
		if err != nil {
			slog.Debug("channel accept failed", slog.String("error", err.Error()))
			continue
		}

		s.wg.Add(1)
		go s.handleChannel(channel, requests)
	}
}

func (s *Server) handleChannel(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer s.wg.Done()
	defer channel.Close()

	// signal requests arriving while a command runs kill it
	var (
		procMu sync.Mutex
		proc   *os.Process
	)
	started := false

	for req := range requests {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil || started {
				req.Reply(false, nil)
				continue
			}
			started = true
			req.Reply(true, nil)

			s.connsMu.Lock()
			s.commands = append(s.commands, payload.Command)
			s.connsMu.Unlock()

			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				code := s.runExec(channel, payload.Command, func(p *os.Process) {
					procMu.Lock()
					proc = p
					procMu.Unlock()
				})
				sendExitStatus(channel, code)
			}()

		case "subsystem":
			var payload struct{ Name string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil || payload.Name != "sftp" || s.noSFTP || started {
				req.Reply(false, nil)
				continue
			}
			started = true
			req.Reply(true, nil)

			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				server, err := sftp.NewServer(channel)
				if err != nil {
					channel.Close()
					return
				}
				if err := server.Serve(); err != nil && !errors.Is(err, io.EOF) {
					slog.Debug("sftp serve ended", slog.String("error", err.Error()))
				}
				server.Close()
				channel.Close()
			}()

		case "signal":
			procMu.Lock()
			if proc != nil {
				proc.Kill()
			}
			procMu.Unlock()
			if req.WantReply {
				req.Reply(true, nil)
			}

		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
}

// runExec answers from the handler when it claims the command, otherwise runs
// it through the shell with stdout and stderr kept apart.
func (s *Server) runExec(channel ssh.Channel, command string, track func(*os.Process)) int {
	if s.handler != nil {
		if resp, ok := s.handler(command); ok {
			io.WriteString(channel, resp.Stdout)
			io.WriteString(channel.Stderr(), resp.Stderr)
			return resp.ExitStatus
		}
	}

	cmd := exec.Command(s.shell, "-c", command)
	cmd.Env = os.Environ()
	cmd.Stdout = channel
	cmd.Stderr = channel.Stderr()
	if err := cmd.Start(); err != nil {
		io.WriteString(channel.Stderr(), err.Error()+"\n")
		return 127
	}
	track(cmd.Process)

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
			return exitErr.ExitCode()
		}
		return 1
	}
	return 0
}

func sendExitStatus(channel ssh.Channel, code int) {
	channel.CloseWrite()
	channel.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{uint32(code)}))
	channel.Close()
}
