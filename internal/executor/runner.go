package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"time"

	"al.essio.dev/pkg/shellescape"
	"golang.org/x/crypto/ssh"
)

// Runner starts a training script somewhere and reports its exit status.
type Runner interface {
	// Run executes script with interpreter. Stdout is written as produced;
	// stderr may be buffered. A script that cannot be started yields a
	// *ExecutionFault of kind SpawnFailure.
	Run(ctx context.Context, interpreter, script string, stdout, stderr io.Writer) (exitCode int, err error)

	// Dir returns the working directory used for script.
	Dir(script string) string

	// CommandLine describes the command that Run executes.
	CommandLine(interpreter, script string) string
}

// LocalRunner runs the script as a child process on this machine.
type LocalRunner struct {
	// Env is appended to the inherited environment.
	Env []string
}

// NewLocalRunner returns a runner with unbuffered Python output.
func NewLocalRunner() *LocalRunner {
	return &LocalRunner{Env: []string{"PYTHONUNBUFFERED=1"}}
}

// Dir is the directory holding script; the script runs from there.
func (r *LocalRunner) Dir(script string) string {
	return filepath.Dir(script)
}

// CommandLine is the command shown in the preamble.
func (r *LocalRunner) CommandLine(interpreter, script string) string {
	return interpreter + " " + filepath.Base(script)
}

// Run starts interpreter on script and streams its output until it exits.
// A non-zero exit is reported through the status, not the error. A cancelled
// ctx kills the process and returns ctx.Err().
func (r *LocalRunner) Run(ctx context.Context, interpreter, script string, stdout, stderr io.Writer) (int, error) {
	cmd := exec.CommandContext(ctx, interpreter, filepath.Base(script))
	cmd.Dir = r.Dir(script)
	cmd.Env = append(os.Environ(), r.Env...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// grandchildren holding the pipes must not block Wait forever
	cmd.WaitDelay = 2 * time.Second

	if err := cmd.Start(); err != nil {
		return -1, &ExecutionFault{Kind: SpawnFailure, ExitCode: -1, Err: err}
	}

	err := cmd.Wait()
	if ctx.Err() != nil {
		return exitCode(cmd), ctx.Err()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return exitCode(cmd), err
	}
	return 0, nil
}

func exitCode(cmd *exec.Cmd) int {
	if cmd.ProcessState == nil {
		return -1
	}
	return cmd.ProcessState.ExitCode()
}

// SessionOpener opens a channel on the live SSH connection.
type SessionOpener interface {
	NewSession() (*ssh.Session, error)
}

// RemoteRunner runs the script on the remote host over SSH.
type RemoteRunner struct {
	opener SessionOpener
}

// NewRemoteRunner returns a runner using sessions from opener.
func NewRemoteRunner(opener SessionOpener) *RemoteRunner {
	return &RemoteRunner{opener: opener}
}

// Dir uses slash paths, since the host is Unix.
func (r *RemoteRunner) Dir(script string) string {
	return path.Dir(script)
}

// CommandLine is the shell command sent over the session, with every path
// quoted.
func (r *RemoteRunner) CommandLine(interpreter, script string) string {
	return "cd " + shellescape.Quote(r.Dir(script)) +
		" && PYTHONUNBUFFERED=1 " + shellescape.QuoteCommand([]string{interpreter, path.Base(script)})
}

// Run executes CommandLine in a new session. On cancellation the session is
// signalled and closed.
func (r *RemoteRunner) Run(ctx context.Context, interpreter, script string, stdout, stderr io.Writer) (int, error) {
	session, err := r.opener.NewSession()
	if err != nil {
		return -1, &ExecutionFault{Kind: SpawnFailure, ExitCode: -1, Err: err}
	}
	defer session.Close()

	session.Stdout = stdout
	session.Stderr = stderr
	if err := session.Start(r.CommandLine(interpreter, script)); err != nil {
		return -1, &ExecutionFault{Kind: SpawnFailure, ExitCode: -1, Err: err}
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		session.Close()
		<-done
		return -1, ctx.Err()
	case err = <-done:
	}

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitStatus(), nil
		}
		return -1, fmt.Errorf("remote session: %w", err)
	}
	return 0, nil
}
