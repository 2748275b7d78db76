package sftp

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/ssh"

	"github.com/acolita/train-wizard/internal/testing/mockssh"
)

func dial(t *testing.T, opts ...mockssh.Option) *ssh.Client {
	t.Helper()
	opts = append([]mockssh.Option{mockssh.WithUser("train", "secret")}, opts...)
	server, err := mockssh.New(opts...)
	if err != nil {
		t.Fatalf("mockssh.New() error = %v", err)
	}
	t.Cleanup(func() { server.Close() })

	conn, err := ssh.Dial("tcp", server.Addr(), &ssh.ClientConfig{
		User:            "train",
		Auth:            []ssh.AuthMethod{ssh.Password("secret")},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestClient_CreateTruncates(t *testing.T) {
	c := NewClient(dial(t))
	defer c.Close()

	dir := filepath.Join(t.TempDir(), "regression")
	if err := c.Mkdir(dir); err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}
	dest := filepath.Join(dir, "houses.csv")

	for _, body := range []string{"price,rooms\n100,3\n200,4\n", "price\n1\n"} {
		w, err := c.Create(dest)
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	}

	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "price\n1\n" {
		t.Errorf("remote file = %q, %v", data, err)
	}
	infos, err := c.ReadDir(dir)
	if err != nil || len(infos) != 1 || infos[0].Name() != "houses.csv" {
		t.Errorf("ReadDir() = %v, %v", infos, err)
	}
}

func TestClient_MkdirNeedsParent(t *testing.T) {
	c := NewClient(dial(t))
	defer c.Close()

	if err := c.Mkdir(filepath.Join(t.TempDir(), "a", "b")); err == nil {
		t.Error("Mkdir() with a missing parent succeeded")
	}
}

func TestClient_SubsystemRefused(t *testing.T) {
	c := NewClient(dial(t, mockssh.WithoutSFTP()))
	defer c.Close()

	if _, err := c.Stat("/"); err == nil {
		t.Error("Stat() succeeded without an sftp subsystem")
	}
}

func TestClient_UseAfterClose(t *testing.T) {
	c := NewClient(nil)
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := c.Stat("/"); !errors.Is(err, ErrClosed) {
		t.Errorf("Stat() after Close error = %v, want ErrClosed", err)
	}
}
