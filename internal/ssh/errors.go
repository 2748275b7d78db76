package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"

	"golang.org/x/crypto/ssh/knownhosts"
)

// ConnectErrorKind categorizes a failed connection attempt.
type ConnectErrorKind int

const (
	ConnectOther ConnectErrorKind = iota
	ConnectAuthFailed
	ConnectTimeout
	ConnectRefused
	ConnectHostPath
	ConnectPermissionDenied
	ConnectHostKey
	ConnectInvalidInput
)

var connectKindNames = map[ConnectErrorKind]string{
	ConnectOther:            "other",
	ConnectAuthFailed:       "authentication failed",
	ConnectTimeout:          "timeout",
	ConnectRefused:          "connection refused",
	ConnectHostPath:         "host or path error",
	ConnectPermissionDenied: "permission denied",
	ConnectHostKey:          "host key issue",
	ConnectInvalidInput:     "invalid input",
}

func (k ConnectErrorKind) String() string {
	if name, ok := connectKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// ErrInvalidCredentials is wrapped when the connect form is incomplete.
var ErrInvalidCredentials = errors.New("host, port, user and password are required")

// FieldError names the connect form field that failed validation.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error {
	return ErrInvalidCredentials
}

// ConnectError is returned by Manager.Connect. The transport is always closed
// by the time it is returned.
type ConnectError struct {
	Kind ConnectErrorKind
	Host string
	Port int
	User string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s@%s:%d: %s: %v", e.User, e.Host, e.Port, e.Kind, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Hint returns a remediation text for the failure category.
func (e *ConnectError) Hint() string {
	switch e.Kind {
	case ConnectAuthFailed:
		return fmt.Sprintf("Wrong user name or password for %q.\n"+
			"Check that:\n"+
			"  1. the user name is correct\n"+
			"  2. the password is correct\n"+
			"  3. the user is allowed to log in over SSH and is not locked", e.User)
	case ConnectTimeout:
		return "The connection timed out.\n" +
			"Check that:\n" +
			"  1. the IP address is correct\n" +
			"  2. the port is correct\n" +
			"  3. the network is reachable\n" +
			"  4. no firewall drops the traffic"
	case ConnectRefused:
		return "The connection was refused.\n" +
			"Check that:\n" +
			"  1. the SSH service is running on the host\n" +
			"  2. it listens on the given port\n" +
			"  3. no firewall rejects the connection"
	case ConnectHostPath:
		return "The host or the user's environment could not be found.\n" +
			"Check that:\n" +
			"  1. the host name resolves\n" +
			"  2. the user exists and has a home directory\n" +
			"  3. the user's login shell is set correctly"
	case ConnectPermissionDenied:
		return "Permission was denied after login.\n" +
			"Check that:\n" +
			"  1. the user may log in over SSH\n" +
			"  2. the account is not disabled\n" +
			"  3. sshd_config allows this user\n" +
			"  4. the user's login shell is valid"
	case ConnectHostKey:
		return "The host key does not match the one recorded in known_hosts.\n" +
			"If the host was reinstalled, remove its old entry from known_hosts and retry;\n" +
			"otherwise treat this as a possible man-in-the-middle."
	case ConnectInvalidInput:
		var fe *FieldError
		if errors.As(e.Err, &fe) {
			return fmt.Sprintf("The %s %s.\nCorrect it in the connection form and retry.", fe.Field, fe.Reason)
		}
		return "The connection form is incomplete.\nFill in host, port, user and password, then retry."
	default:
		return fmt.Sprintf("Connection to %s:%d failed.\n"+
			"Check the SSH server configuration and the user's permissions, then retry.", e.Host, e.Port)
	}
}

// classifyConnectError maps a dial, handshake or verification failure to a kind.
func classifyConnectError(err error) ConnectErrorKind {
	if err == nil {
		return ConnectOther
	}
	if errors.Is(err, ErrInvalidCredentials) {
		return ConnectInvalidInput
	}

	var keyErr *knownhosts.KeyError
	var revoked *knownhosts.RevokedError
	if errors.As(err, &keyErr) || errors.As(err, &revoked) {
		return ConnectHostKey
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "knownhosts:") || strings.Contains(msg, "host key") {
		return ConnectHostKey
	}
	if strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "authentication failed") ||
		strings.Contains(msg, "no supported methods remain") {
		return ConnectAuthFailed
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) || strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "timed out") {
		return ConnectTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) || strings.Contains(msg, "connection refused") {
		return ConnectRefused
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) || strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "no such file or directory") ||
		strings.Contains(msg, "no route to host") {
		return ConnectHostPath
	}

	if strings.Contains(msg, "permission denied") {
		return ConnectPermissionDenied
	}

	return ConnectOther
}

// ExecErrorKind categorizes a failed remote command.
type ExecErrorKind int

const (
	ExecNotConnected ExecErrorKind = iota
	ExecRemoteFailure
)

func (k ExecErrorKind) String() string {
	switch k {
	case ExecNotConnected:
		return "not connected"
	case ExecRemoteFailure:
		return "remote failure"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ErrNotConnected is wrapped by ExecError when no connection is open.
var ErrNotConnected = errors.New("ssh connection not established")

// ExecError is returned when a command could not be run at all. A command that
// ran and exited non-zero is not an ExecError.
type ExecError struct {
	Kind    ExecErrorKind
	Command string
	Err     error
}

func (e *ExecError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("exec: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("exec %q: %s: %v", e.Command, e.Kind, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Hint returns a remediation text for the failure category.
func (e *ExecError) Hint() string {
	if e.Kind == ExecNotConnected {
		return "No open connection to the training host. Run step 1 (configure connection) again."
	}
	return "The connection may have dropped. Reconnect in step 1 and retry."
}

func notConnected(command string) *ExecError {
	return &ExecError{Kind: ExecNotConnected, Command: command, Err: ErrNotConnected}
}
