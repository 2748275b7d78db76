package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/acolita/train-wizard/internal/results"
	"github.com/acolita/train-wizard/internal/session"
	"github.com/acolita/train-wizard/internal/ssh"
	"github.com/acolita/train-wizard/internal/testing/mockssh"
	gossh "golang.org/x/crypto/ssh"
)

const trainScript = `echo "loading data"
echo "cwd $(basename "$PWD")"
echo "unbuffered $PYTHONUNBUFFERED"
echo "deprecated option" >&2
echo "评估指标"
echo "准确率: 0.88"
`

func writeScript(t *testing.T, body string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "job dir")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(dir, "train.sh")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestLocalRunner_Transcript(t *testing.T) {
	cache := results.NewCache(t.TempDir())
	e := New(NewLocalRunner(), cache, session.NewState(), WithInterpreter("sh"))

	h, err := e.Start(context.Background(), writeScript(t, trainScript))
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	events, res := collect(t, h)

	var stdout []string
	var stderr string
	for _, ev := range events {
		switch ev.Kind {
		case EventStdout:
			stdout = append(stdout, ev.Text)
		case EventStderr:
			stderr = ev.Text
		}
	}
	want := []string{"loading data", "cwd job dir", "unbuffered 1", "评估指标", "准确率: 0.88"}
	if strings.Join(stdout, "|") != strings.Join(want, "|") {
		t.Errorf("stdout = %q, want %q", stdout, want)
	}
	if stderr != "deprecated option" {
		t.Errorf("stderr = %q", stderr)
	}
	if !res.Success || res.Entry == nil {
		t.Fatalf("result = %+v", res)
	}
	// stderr is emitted after stdout, so it is part of the cached text
	if !strings.HasPrefix(res.Entry.Text, "评估指标\n准确率: 0.88") {
		t.Errorf("entry = %q", res.Entry.Text)
	}
}

func TestLocalRunner_ExitStatus(t *testing.T) {
	r := NewLocalRunner()
	code, err := r.Run(context.Background(), "sh", writeScript(t, "echo 评估指标\nexit 1\n"), os.Stdout, os.Stderr)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if code != 1 {
		t.Errorf("code = %d, want 1", code)
	}
}

func TestLocalRunner_SpawnFailure(t *testing.T) {
	r := NewLocalRunner()
	_, err := r.Run(context.Background(), "/nonexistent/python", writeScript(t, ""), os.Stdout, os.Stderr)
	var fault *ExecutionFault
	if !errors.As(err, &fault) || fault.Kind != SpawnFailure {
		t.Errorf("Run() error = %v, want SpawnFailure", err)
	}
}

func TestLocalRunner_Cancel(t *testing.T) {
	e := New(NewLocalRunner(), nil, nil, WithInterpreter("sh"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h, err := e.Start(ctx, writeScript(t, "echo started\nsleep 30\n"))
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	for ev := range h.Events() {
		if ev.Kind == EventStdout && ev.Text == "started" {
			cancel()
			break
		}
	}

	done := make(chan Result, 1)
	go func() { done <- h.Wait() }()
	select {
	case res := <-done:
		if res.Success {
			t.Error("cancelled run reported success")
		}
		if !errors.Is(res.Err, context.Canceled) {
			t.Errorf("Err = %v, want context.Canceled", res.Err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("cancelled run did not finish")
	}
}

func TestRemoteRunner_CommandLine(t *testing.T) {
	r := NewRemoteRunner(nil)
	got := r.CommandLine("python3", "/home/HwHiAiUser/Desktop/2t/binary/my run/train.py")
	want := "cd '/home/HwHiAiUser/Desktop/2t/binary/my run' && PYTHONUNBUFFERED=1 python3 train.py"
	if got != want {
		t.Errorf("CommandLine() = %q, want %q", got, want)
	}
}

func TestRemoteRunner_OverSSH(t *testing.T) {
	server, err := mockssh.New(
		mockssh.WithUser("train", "secret"),
		mockssh.WithExecHandler(func(cmd string) (mockssh.Response, bool) {
			if cmd == ssh.VerifyCommand {
				return mockssh.Response{Stdout: "train\n" + ssh.VerifySentinel + "\n"}, true
			}
			return mockssh.Response{}, false
		}),
	)
	if err != nil {
		t.Fatalf("mockssh.New() error = %v", err)
	}
	defer server.Close()

	m := ssh.NewManager(ssh.WithHostKeyCallback(gossh.InsecureIgnoreHostKey()), ssh.WithKeepalive(0))
	defer m.Close()
	if _, err := m.Connect(context.Background(), ssh.Credentials{
		Host: server.Host(), Port: server.Port(), User: "train", Password: "secret", Timeout: 5 * time.Second,
	}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	e := New(NewRemoteRunner(m), results.NewCache(t.TempDir()), session.NewState(), WithInterpreter("sh"))
	h, err := e.Start(context.Background(), writeScript(t, trainScript))
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	events, res := collect(t, h)

	if !res.Success || res.Entry == nil {
		t.Fatalf("result = %+v", res)
	}
	var sawCwd, sawStderr bool
	for _, ev := range events {
		sawCwd = sawCwd || (ev.Kind == EventStdout && ev.Text == "cwd job dir")
		sawStderr = sawStderr || (ev.Kind == EventStderr && ev.Text == "deprecated option")
	}
	if !sawCwd || !sawStderr {
		t.Errorf("events = %+v", events)
	}

	h, _ = e.Start(context.Background(), writeScript(t, "exit 4\n"))
	if res := h.Wait(); res.Success || res.ExitCode != 4 {
		t.Errorf("exit 4 result = %+v", res)
	}
}

func TestRemoteRunner_NotConnected(t *testing.T) {
	e := New(NewRemoteRunner(ssh.NewManager()), nil, nil)
	h, _ := e.Start(context.Background(), "/remote/train.py")
	res := h.Wait()
	var fault *ExecutionFault
	if !errors.As(res.Err, &fault) || fault.Kind != SpawnFailure {
		t.Errorf("Err = %v, want SpawnFailure", res.Err)
	}
	if !errors.Is(res.Err, ssh.ErrNotConnected) {
		t.Errorf("Err = %v, want ErrNotConnected in chain", res.Err)
	}
}

func TestLocalRunner_StreamsLinesBeforeExit(t *testing.T) {
	e := New(NewLocalRunner(), nil, session.NewState(), WithInterpreter("sh"))
	h, err := e.Start(context.Background(), writeScript(t, "echo first\nsleep 1\necho second\n"))
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	start := time.Now()
	var firstAt, finishedAt time.Duration
	timeout := time.After(10 * time.Second)
	for done := false; !done; {
		select {
		case ev, ok := <-h.Events():
			if !ok {
				done = true
				break
			}
			switch {
			case ev.Kind == EventStdout && ev.Text == "first":
				firstAt = time.Since(start)
			case ev.Kind == EventFinished:
				finishedAt = time.Since(start)
			}
		case <-timeout:
			t.Fatal("run did not finish")
		}
	}

	if firstAt == 0 || finishedAt == 0 {
		t.Fatalf("first at %v, finished at %v", firstAt, finishedAt)
	}
	if finishedAt-firstAt < 500*time.Millisecond {
		t.Errorf("first line arrived at %v, only %v before the finish", firstAt, finishedAt-firstAt)
	}
}
