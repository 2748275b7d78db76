// Package executor runs a training script and streams its transcript.
package executor

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/acolita/train-wizard/internal/results"
	"github.com/acolita/train-wizard/internal/session"
)

// DefaultInterpreter runs the training scripts.
const DefaultInterpreter = "python3"

// FaultKind categorizes a failed run.
type FaultKind int

const (
	NonZeroExit FaultKind = iota
	SpawnFailure
)

func (k FaultKind) String() string {
	switch k {
	case NonZeroExit:
		return "non-zero exit"
	case SpawnFailure:
		return "spawn failure"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ExecutionFault explains why a run did not succeed.
type ExecutionFault struct {
	Kind     FaultKind
	ExitCode int
	Err      error
}

func (e *ExecutionFault) Error() string {
	if e.Kind == NonZeroExit {
		if e.Err != nil {
			return fmt.Sprintf("script exited with status %d: %v", e.ExitCode, e.Err)
		}
		return fmt.Sprintf("script exited with status %d", e.ExitCode)
	}
	return fmt.Sprintf("script could not be started: %v", e.Err)
}

func (e *ExecutionFault) Unwrap() error {
	return e.Err
}

// EventKind tags an Event.
type EventKind int

const (
	EventPreamble EventKind = iota
	EventStdout
	EventStderr
	EventFinished
)

// Event is one item of the transcript stream. Result is set only on
// EventFinished.
type Event struct {
	Kind   EventKind
	Text   string
	Result *Result
}

// Result is the outcome of a run.
type Result struct {
	Success  bool
	ExitCode int
	// Output is every emitted line joined by "\n".
	Output string
	// Err is an *ExecutionFault when Success is false.
	Err error
	// Entry is the cache entry written for this run, if any.
	Entry *results.Entry
	// CacheErr is set when the evaluation could not be cached.
	CacheErr error
}

// Executor runs scripts through a Runner and caches their evaluation.
type Executor struct {
	runner      Runner
	cache       *results.Cache
	state       *session.State
	interpreter string
	marker      string
}

// Option configures an Executor.
type Option func(*Executor)

// WithInterpreter overrides the interpreter.
func WithInterpreter(name string) Option {
	return func(e *Executor) {
		if name != "" {
			e.interpreter = name
		}
	}
}

// WithMarker overrides the evaluation marker.
func WithMarker(marker string) Option {
	return func(e *Executor) {
		if marker != "" {
			e.marker = marker
		}
	}
}

// New creates an Executor. cache may be nil to disable caching.
func New(runner Runner, cache *results.Cache, state *session.State, opts ...Option) *Executor {
	e := &Executor{
		runner:      runner,
		cache:       cache,
		state:       state,
		interpreter: DefaultInterpreter,
		marker:      "评估指标",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Handle tracks a started run.
type Handle struct {
	id     string
	events chan Event
	done   chan struct{}
	result Result
}

// ID identifies the run in logs.
func (h *Handle) ID() string {
	return h.id
}

// Events yields the transcript in order and is closed after EventFinished.
func (h *Handle) Events() <-chan Event {
	return h.events
}

// Wait blocks until the run is over. Events not yet received are discarded.
func (h *Handle) Wait() Result {
	for range h.events {
	}
	<-h.done
	return h.result
}

// Start launches scriptPath and returns immediately.
func (e *Executor) Start(ctx context.Context, scriptPath string) (*Handle, error) {
	if strings.TrimSpace(scriptPath) == "" {
		return nil, errors.New("no script selected")
	}

	h := &Handle{
		id:     uuid.NewString(),
		events: make(chan Event, 256),
		done:   make(chan struct{}),
	}
	go e.run(ctx, scriptPath, h)
	return h, nil
}

func (e *Executor) run(ctx context.Context, script string, h *Handle) {
	defer close(h.done)
	defer close(h.events)

	var lines []string
	emit := func(kind EventKind, text string) {
		lines = append(lines, text)
		h.events <- Event{Kind: kind, Text: text}
	}

	cmdline := e.runner.CommandLine(e.interpreter, script)
	emit(EventPreamble, "Executing script: "+script)
	emit(EventPreamble, "Working directory: "+e.runner.Dir(script))
	emit(EventPreamble, "Command: "+cmdline)

	slog.Info("training started",
		slog.String("run_id", h.id),
		slog.String("script", script),
		slog.String("command", cmdline))

	pr, pw := io.Pipe()
	var stderr bytes.Buffer

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		br := bufio.NewReader(pr)
		for {
			line, err := br.ReadString('\n')
			if line != "" {
				emit(EventStdout, strings.TrimRight(line, "\r\n"))
			}
			if err != nil {
				// keep draining so the writer never blocks
				io.Copy(io.Discard, pr)
				return
			}
		}
	}()

	code, runErr := e.runner.Run(ctx, e.interpreter, script, pw, &stderr)
	pw.Close()
	<-readerDone

	if s := strings.TrimRight(stderr.String(), "\r\n"); s != "" {
		emit(EventStderr, s)
	}

	res := Result{ExitCode: code, Output: strings.Join(lines, "\n")}
	switch {
	case runErr != nil:
		var fault *ExecutionFault
		if !errors.As(runErr, &fault) {
			fault = &ExecutionFault{Kind: NonZeroExit, ExitCode: code, Err: runErr}
		}
		res.Err = fault
	case code != 0:
		res.Err = &ExecutionFault{Kind: NonZeroExit, ExitCode: code}
	default:
		res.Success = true
	}

	if res.Success {
		res.Entry, res.CacheErr = e.cacheEvaluation(res.Output)
	}

	slog.Info("training finished",
		slog.String("run_id", h.id),
		slog.String("script", script),
		slog.Bool("success", res.Success),
		slog.Int("exit_code", code))

	h.result = res
	final := res
	h.events <- Event{Kind: EventFinished, Result: &final}
}

// cacheEvaluation stores the evaluation part of output under the next
// unused id. It returns nil when the marker is absent.
func (e *Executor) cacheEvaluation(output string) (*results.Entry, error) {
	if e.cache == nil {
		return nil, nil
	}
	text, ok := results.ExtractEvaluation(output, e.marker)
	if !ok {
		slog.Info("evaluation marker not found, nothing cached", slog.String("marker", e.marker))
		return nil, nil
	}

	id := e.cache.NextID(0)
	if e.state != nil {
		// skip ids already on disk, then reserve one
		e.state.ObserveResultID(id - 1)
		id = e.state.NextResultID()
	}
	entry, err := e.cache.Write(id, text)
	if err != nil {
		slog.Warn("caching evaluation failed", slog.Int("id", id), slog.String("error", err.Error()))
		return nil, err
	}
	return entry, nil
}
