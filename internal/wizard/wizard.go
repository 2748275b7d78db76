// Package wizard drives the five training steps: it owns the step loop, wires
// the connection, upload, executor and result cache together, and talks to the
// user through a ports.Prompter.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"sync"

	gossh "golang.org/x/crypto/ssh"

	"github.com/acolita/train-wizard/internal/adapters/realfs"
	"github.com/acolita/train-wizard/internal/config"
	"github.com/acolita/train-wizard/internal/dataset"
	"github.com/acolita/train-wizard/internal/executor"
	"github.com/acolita/train-wizard/internal/ports"
	"github.com/acolita/train-wizard/internal/recovery"
	"github.com/acolita/train-wizard/internal/results"
	"github.com/acolita/train-wizard/internal/session"
	"github.com/acolita/train-wizard/internal/ssh"
	"github.com/acolita/train-wizard/internal/upload"
	"github.com/acolita/train-wizard/internal/workflow"
)

// Connector is the remote session used by the wizard. *ssh.Manager
// implements it.
type Connector interface {
	Connect(ctx context.Context, creds ssh.Credentials) (*ssh.ConnectionInfo, error)
	RemoteFS() (ports.RemoteFS, error)
	NewSession() (*gossh.Session, error)
	IsConnected() bool
	Info() *ssh.ConnectionInfo
	Close() error
}

// CredentialStore remembers passwords between runs. *security.KeyringStore
// implements it.
type CredentialStore interface {
	Password(host string, port int, user string) (string, error)
	StorePassword(host string, port int, user, password string) error
	ForgetPassword(host string, port int, user string) error
}

// Deps are the collaborators of a Wizard. Config, State, Gate and Conn are
// required.
type Deps struct {
	Config *config.Config
	State  *session.State
	Gate   *workflow.Gate
	Conn   Connector

	// Credentials is optional; nil disables password recall.
	Credentials CredentialStore
	// LocalFS replaces the real local file system.
	LocalFS ports.FileSystem
	// Runner replaces the runner picked from training.mode.
	Runner executor.Runner
}

// ErrDatasetNotReady is returned by remote training when the last upload did
// not leave a validated dataset on the host.
var ErrDatasetNotReady = errors.New("no validated dataset on the training host")

// Wizard is the step controller.
type Wizard struct {
	mu       sync.Mutex
	cfg      *config.Config
	cache    *results.Cache
	prompter ports.Prompter

	// set by a successful upload, cleared by a failed validation
	datasetReady  bool
	remoteDataset string

	state    *session.State
	gate     *workflow.Gate
	conn     Connector
	creds    CredentialStore
	local    ports.FileSystem
	runner   executor.Runner
	analyzer *recovery.Analyzer
}

// New creates a wizard and moves the result id counter past the newest
// cached result.
func New(d Deps) *Wizard {
	cfg := d.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	local := d.LocalFS
	if local == nil {
		local = realfs.New()
	}
	w := &Wizard{
		cfg:      cfg,
		state:    d.State,
		gate:     d.Gate,
		conn:     d.Conn,
		creds:    d.Credentials,
		local:    local,
		runner:   d.Runner,
		analyzer: recovery.NewAnalyzer(),
	}
	w.cache = results.NewCache(cfg.Results.CacheDir, local)
	w.observeCache(w.cache)
	return w
}

func (w *Wizard) observeCache(c *results.Cache) {
	ids, err := c.IDs()
	if err != nil {
		slog.Warn("reading result cache failed", slog.String("dir", c.Dir()), slog.String("error", err.Error()))
		return
	}
	if len(ids) > 0 {
		w.state.ObserveResultID(ids[len(ids)-1])
		slog.Debug("result cache loaded", slog.String("dir", c.Dir()), slog.Int("latest_id", ids[len(ids)-1]))
	}
}

// UpdateConfig swaps the configuration used by subsequent steps. A changed
// cache directory is rescanned.
func (w *Wizard) UpdateConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	w.mu.Lock()
	old := w.cfg
	w.cfg = cfg
	var rescan *results.Cache
	if cfg.Results.CacheDir != old.Results.CacheDir {
		w.cache = results.NewCache(cfg.Results.CacheDir, w.local)
		rescan = w.cache
	}
	w.mu.Unlock()

	if rescan != nil {
		w.observeCache(rescan)
	}
	slog.Info("configuration reloaded", slog.String("mode", cfg.Training.Mode))
}

// Notify forwards a status message to the active prompter. It is safe to call
// from the connection manager's status callback.
func (w *Wizard) Notify(msg string) {
	w.mu.Lock()
	p := w.prompter
	w.mu.Unlock()
	if p != nil {
		p.Status(msg)
	}
}

// StepOptions returns the step menu with locked and completed steps flagged.
func (w *Wizard) StepOptions() []ports.StepOption {
	done := w.gate.Snapshot()
	var unlocked [workflow.NumSteps]bool
	for _, s := range w.gate.Unlocked() {
		unlocked[s] = true
	}
	opts := make([]ports.StepOption, 0, workflow.NumSteps)
	for _, s := range workflow.Steps() {
		opts = append(opts, ports.StepOption{
			Key:     s.String(),
			Title:   s.Title(),
			Enabled: unlocked[s],
			Done:    done[s],
		})
	}
	return opts
}

// DatasetReady reports whether a dataset has been uploaded and validated.
func (w *Wizard) DatasetReady() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.datasetReady
}

func (w *Wizard) config() *config.Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cfg
}

func (w *Wizard) resultCache() *results.Cache {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cache
}

func (w *Wizard) setPrompter(p ports.Prompter) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prompter = p
}

func (w *Wizard) setDataset(remote string, ready bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.remoteDataset = remote
	w.datasetReady = ready
}

// Run shows the step menu until the user quits or ctx is done. The remote
// session is closed on return.
func (w *Wizard) Run(ctx context.Context, p ports.Prompter) error {
	w.setPrompter(p)
	defer w.setPrompter(nil)
	defer w.shutdown()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		key, err := p.ChooseStep(w.StepOptions())
		if errors.Is(err, ports.ErrCancelled) {
			key = ports.QuitKey
		} else if err != nil {
			return fmt.Errorf("step menu: %w", err)
		}
		if key == ports.QuitKey {
			slog.Info("wizard finished")
			return nil
		}

		step, err := workflow.ParseStep(key)
		if err != nil {
			p.Failure(err, "")
			continue
		}
		if err := w.gate.Select(step); err != nil {
			p.Failure(err, lockedHint(step))
			continue
		}
		w.dispatch(ctx, p, step)
	}
}

func (w *Wizard) shutdown() {
	if err := w.conn.Close(); err != nil {
		slog.Warn("closing remote session failed", slog.String("error", err.Error()))
	}
}

func (w *Wizard) dispatch(ctx context.Context, p ports.Prompter, step workflow.Step) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("step panicked", slog.String("step", step.String()), slog.Any("panic", r))
			p.Failure(fmt.Errorf("internal error in %s: %v", step, r), "")
		}
	}()

	slog.Debug("entering step", slog.String("step", step.String()))

	var err error
	switch step {
	case workflow.Configure:
		err = w.configure(ctx, p)
	case workflow.SelectTask:
		err = w.selectTask(p)
	case workflow.Upload:
		err = w.upload(ctx, p)
	case workflow.Train:
		err = w.train(ctx, p)
	case workflow.ViewResults:
		err = w.viewResults(p)
	}

	if err == nil || errors.Is(err, ports.ErrCancelled) {
		return
	}
	slog.Warn("step failed", slog.String("step", step.String()), slog.String("error", err.Error()))
	p.Failure(err, hintFor(err))
}

type hinter interface {
	Hint() string
}

func hintFor(err error) string {
	var h hinter
	if errors.As(err, &h) {
		return h.Hint()
	}
	if errors.Is(err, results.ErrNotFound) {
		return fmt.Sprintf("No cached result yet. Finish %q first.", workflow.Train.Title())
	}
	if errors.Is(err, ErrDatasetNotReady) {
		return fmt.Sprintf("Upload a valid dataset in %q again.", workflow.Upload.Title())
	}
	return ""
}

func lockedHint(step workflow.Step) string {
	prev, ok := step.Prev()
	if !ok {
		return ""
	}
	return fmt.Sprintf("Complete %q first.", prev.Title())
}

func (w *Wizard) configure(ctx context.Context, p ports.Prompter) error {
	cfg := w.config()
	prefill := ports.ConnectForm{
		Host:     cfg.Connection.Host,
		Port:     cfg.Connection.Port,
		User:     cfg.Connection.User,
		Password: cfg.Password(w.local),
	}
	// reconnecting starts from the live session
	if info := w.conn.Info(); info != nil && w.conn.IsConnected() {
		prefill.Host, prefill.Port, prefill.User = info.Host, info.Port, info.User
	}
	if prefill.Password == "" && w.creds != nil && prefill.Host != "" && prefill.User != "" {
		if pw, err := w.creds.Password(prefill.Host, prefill.Port, prefill.User); err == nil && pw != "" {
			prefill.Password = pw
			prefill.Remember = true
		}
	}

	form, err := p.Connect(prefill)
	if err != nil {
		return err
	}

	info, err := w.conn.Connect(ctx, ssh.Credentials{
		Host:     strings.TrimSpace(form.Host),
		Port:     form.Port,
		User:     strings.TrimSpace(form.User),
		Password: form.Password,
		Timeout:  cfg.Connection.Timeout,
	})
	if err != nil {
		return err
	}
	if err := w.gate.MarkComplete(workflow.Configure); err != nil {
		return err
	}

	if w.creds == nil {
		return nil
	}
	switch {
	case form.Remember:
		if err := w.creds.StorePassword(info.Host, info.Port, info.User, form.Password); err != nil {
			slog.Warn("storing password failed", slog.String("error", err.Error()))
		}
	case prefill.Remember:
		// Unticked after a recall: the user no longer wants it kept.
		if err := w.creds.ForgetPassword(info.Host, info.Port, info.User); err != nil {
			slog.Warn("forgetting password failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

func (w *Wizard) selectTask(p ports.Prompter) error {
	var opts []ports.Choice
	for _, t := range session.TaskTypes() {
		opts = append(opts, ports.Choice{Key: t.String(), Label: t.Label()})
	}

	current := ""
	if t := w.state.TaskType(); t.IsSet() {
		current = t.String()
	}
	key, err := p.ChooseTask(opts, current)
	if err != nil {
		return err
	}
	t, err := session.ParseTaskType(key)
	if err != nil {
		return err
	}

	w.state.SetTaskType(t)
	if err := w.gate.MarkComplete(workflow.SelectTask); err != nil {
		return err
	}
	slog.Info("task selected", slog.String("task", t.String()))
	p.Status(fmt.Sprintf("Selected %s. Continue with %q.", t.Label(), workflow.Upload.Title()))
	return nil
}

func uploadTitle(t session.TaskType) string {
	if !t.IsSet() {
		return "Upload data"
	}
	return "Upload " + strings.ToLower(t.Label()) + " data"
}

func (w *Wizard) upload(ctx context.Context, p ports.Prompter) error {
	cfg := w.config()
	t := w.state.TaskType()

	localPath, err := p.DatasetPath(uploadTitle(t))
	if err != nil {
		return err
	}

	schema, err := dataset.Validate(localPath, w.local)
	if err != nil {
		w.setDataset("", false)
		return err
	}
	p.Status(fmt.Sprintf("%s: %d columns, %d rows", schema.Name, len(schema.Columns), schema.Rows))

	up := upload.New(w.conn, w.local)
	size, err := up.LocalSize(localPath)
	if err != nil {
		size = -1
	}
	sink := p.Progress("Uploading "+filepath.Base(localPath), size)
	remote, err := up.Upload(ctx, upload.Request{
		LocalPath: localPath,
		BaseDir:   cfg.Remote.BaseDir,
		TaskType:  t,
		Progress:  sink,
	})
	sink.Close()
	if err != nil {
		return err
	}

	w.setDataset(remote, true)
	if err := w.gate.MarkComplete(workflow.Upload); err != nil {
		return err
	}
	p.Status("Uploaded to " + remote)
	return nil
}

func (w *Wizard) runnerFor(cfg *config.Config) executor.Runner {
	if w.runner != nil {
		return w.runner
	}
	if cfg.Training.Mode == config.ModeRemote {
		return executor.NewRemoteRunner(w.conn)
	}
	return executor.NewLocalRunner()
}

// scriptDir is where the script picker starts. In remote mode the directory
// of the uploaded dataset wins over the configured one.
func (w *Wizard) scriptDir(cfg *config.Config) string {
	if cfg.Training.Mode == config.ModeRemote {
		w.mu.Lock()
		remote := w.remoteDataset
		w.mu.Unlock()
		if remote != "" {
			return path.Dir(remote)
		}
	}
	return cfg.Training.ScriptDir
}

// trainingError is a failed run together with the suggestions derived from
// its transcript.
type trainingError struct {
	err         error
	suggestions []*recovery.Suggestion
}

func (e *trainingError) Error() string { return e.err.Error() }

func (e *trainingError) Unwrap() error { return e.err }

func (e *trainingError) Hint() string {
	if len(e.suggestions) == 0 {
		return "Check the script output above."
	}
	var b strings.Builder
	for i, s := range e.suggestions {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(s.Error)
		if s.Explanation != "" {
			b.WriteString(": " + s.Explanation)
		}
		for _, c := range s.Commands {
			b.WriteString("\n  " + c)
		}
	}
	return b.String()
}

func (w *Wizard) train(ctx context.Context, p ports.Prompter) error {
	cfg := w.config()
	remote := cfg.Training.Mode == config.ModeRemote
	if remote && !w.DatasetReady() {
		return ErrDatasetNotReady
	}

	script, err := p.ScriptPath(w.scriptDir(cfg), !remote)
	if err != nil {
		return err
	}

	ex := executor.New(w.runnerFor(cfg), w.resultCache(), w.state,
		executor.WithInterpreter(cfg.Training.Interpreter),
		executor.WithMarker(cfg.Training.Marker),
	)
	h, err := ex.Start(ctx, script)
	if err != nil {
		return err
	}

	var res executor.Result
	for ev := range h.Events() {
		if ev.Kind == executor.EventFinished {
			res = *ev.Result
			continue
		}
		p.Line(ev.Text)
	}

	if !res.Success {
		p.Line(fmt.Sprintf("Script failed, exit status %d", res.ExitCode))
		return &trainingError{err: res.Err, suggestions: w.analyzer.Analyze(res.Output, res.ExitCode)}
	}
	p.Line("Script finished successfully")

	if res.CacheErr != nil {
		return fmt.Errorf("caching evaluation: %w", res.CacheErr)
	}
	if res.Entry == nil {
		p.Status(fmt.Sprintf("No %q section in the output, nothing to show.", cfg.Training.Marker))
		return nil
	}
	if err := w.gate.MarkComplete(workflow.Train); err != nil {
		return err
	}
	p.Status("Results saved to " + res.Entry.Path)
	return nil
}

func (w *Wizard) viewResults(p ports.Prompter) error {
	entry, err := w.resultCache().Latest()
	if err != nil {
		return err
	}
	w.state.ObserveResultID(entry.ID)

	anchors := results.AnchorsFor(w.state.TaskType())
	split := results.SplitSections(entry.Text, anchors.Patterns)
	if len(split) == 0 {
		p.Status(fmt.Sprintf("Result %d is empty.", entry.ID))
		return nil
	}

	sections := make([]ports.Section, 0, len(split))
	for _, i := range split.Indexes() {
		title := anchors.Title(i)
		if title == "" {
			title = "Full output"
		}
		sections = append(sections, ports.Section{Title: title, Body: split[i]})
	}
	if err := p.Sections(sections); err != nil {
		return err
	}
	return w.gate.MarkComplete(workflow.ViewResults)
}
