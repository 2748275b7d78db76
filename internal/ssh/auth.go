package ssh

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// DefaultKnownHosts is used when the config leaves known_hosts empty.
const DefaultKnownHosts = "~/.ssh/known_hosts"

// PasswordAuthMethods returns the methods tried for a password login: plain
// password first, then keyboard-interactive with the password as the answer
// to every question, for servers that only enable the latter.
func PasswordAuthMethods(password string) []ssh.AuthMethod {
	answer := func(_, _ string, questions []string, _ []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range answers {
			answers[i] = password
		}
		return answers, nil
	}
	return []ssh.AuthMethod{
		ssh.Password(password),
		ssh.KeyboardInteractive(answer),
	}
}

// BuildHostKeyCallback verifies training hosts against known_hosts. Keys the
// file records must match. A host the file does not know is trusted on first
// use and pinned for the rest of the process, so a key that changes between
// two connects of the same run is still rejected. A missing file pins every
// host that way.
func BuildHostKeyCallback(knownHostsPath string) (ssh.HostKeyCallback, error) {
	if knownHostsPath == "" {
		knownHostsPath = DefaultKnownHosts
	}
	path := expandHome(knownHostsPath)

	p := &pinner{seen: make(map[string][]byte)}
	switch _, err := os.Stat(path); {
	case errors.Is(err, os.ErrNotExist):
		slog.Debug("known_hosts missing, pinning keys on first use", slog.String("path", path))
	case err != nil:
		return nil, fmt.Errorf("stat known_hosts: %w", err)
	default:
		file, err := knownhosts.New(path)
		if err != nil {
			return nil, fmt.Errorf("parse known_hosts: %w", err)
		}
		p.file = file
	}
	return p.check, nil
}

type pinner struct {
	file ssh.HostKeyCallback

	mu   sync.Mutex
	seen map[string][]byte
}

func (p *pinner) check(hostname string, remote net.Addr, key ssh.PublicKey) error {
	if p.file != nil {
		err := p.file(hostname, remote, key)
		var keyErr *knownhosts.KeyError
		if err == nil || !errors.As(err, &keyErr) || len(keyErr.Want) > 0 {
			return err
		}
	}

	host := knownhosts.Normalize(hostname)
	wire := key.Marshal()

	p.mu.Lock()
	defer p.mu.Unlock()
	if pinned, ok := p.seen[host]; ok {
		if !bytes.Equal(pinned, wire) {
			return fmt.Errorf("host key for %s changed since it was first accepted in this session", host)
		}
		return nil
	}
	p.seen[host] = wire
	slog.Info("trusting new host key",
		slog.String("host", host),
		slog.String("fingerprint", ssh.FingerprintSHA256(key)))
	return nil
}

func expandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}
