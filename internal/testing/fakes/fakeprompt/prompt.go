// Package fakeprompt provides a scripted test fake for ports.Prompter.
package fakeprompt

import (
	"bytes"
	"io"
	"sync"

	"github.com/acolita/train-wizard/internal/ports"
)

// Failure is one error shown through Failure.
type Failure struct {
	Err  error
	Hint string
}

// Sink records the bytes written to a progress sink.
type Sink struct {
	Description string
	Total       int64
	Closed      bool
	bytes.Buffer
}

// Close marks the sink closed.
func (s *Sink) Close() error {
	s.Closed = true
	return nil
}

// Prompter answers prompts from queues and records everything it is shown.
// An exhausted step queue answers ports.QuitKey; other exhausted queues
// answer ports.ErrCancelled.
type Prompter struct {
	mu sync.Mutex

	// Steps are the keys returned by ChooseStep, in order.
	Steps []string
	// Forms are returned by Connect, in order.
	Forms []ports.ConnectForm
	// Tasks are the keys returned by ChooseTask, in order.
	Tasks []string
	// Datasets are returned by DatasetPath, in order.
	Datasets []string
	// Scripts are returned by ScriptPath, in order.
	Scripts []string
	// SectionsErr is returned by Sections.
	SectionsErr error

	Menus         [][]ports.StepOption
	Prefills      []ports.ConnectForm
	DatasetTitles []string
	ScriptDirs    []string
	ScriptLocal   []bool
	Statuses      []string
	Failures      []Failure
	Lines         []string
	Shown         [][]ports.Section
	Sinks         []*Sink
}

// New returns an empty scripted prompter.
func New() *Prompter {
	return &Prompter{}
}

// ChooseStep records the menu and returns the next queued step. An empty
// queue quits.
func (p *Prompter) ChooseStep(options []ports.StepOption) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Menus = append(p.Menus, append([]ports.StepOption(nil), options...))
	if len(p.Steps) == 0 {
		return ports.QuitKey, nil
	}
	key := p.Steps[0]
	p.Steps = p.Steps[1:]
	return key, nil
}

// Connect returns ErrCancelled once Forms runs out.
func (p *Prompter) Connect(prefill ports.ConnectForm) (ports.ConnectForm, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Prefills = append(p.Prefills, prefill)
	if len(p.Forms) == 0 {
		return prefill, ports.ErrCancelled
	}
	form := p.Forms[0]
	p.Forms = p.Forms[1:]
	return form, nil
}

func (p *Prompter) ChooseTask(options []ports.Choice, current string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return pop(&p.Tasks)
}

func (p *Prompter) DatasetPath(title string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.DatasetTitles = append(p.DatasetTitles, title)
	return pop(&p.Datasets)
}

// ScriptPath records where and how the script was asked for.
func (p *Prompter) ScriptPath(dir string, local bool) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ScriptDirs = append(p.ScriptDirs, dir)
	p.ScriptLocal = append(p.ScriptLocal, local)
	return pop(&p.Scripts)
}

func (p *Prompter) Status(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Statuses = append(p.Statuses, msg)
}

func (p *Prompter) Failure(err error, hint string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Failures = append(p.Failures, Failure{Err: err, Hint: hint})
}

func (p *Prompter) Line(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Lines = append(p.Lines, text)
}

func (p *Prompter) Sections(sections []ports.Section) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Shown = append(p.Shown, append([]ports.Section(nil), sections...))
	return p.SectionsErr
}

func (p *Prompter) Progress(description string, total int64) io.WriteCloser {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := &Sink{Description: description, Total: total}
	p.Sinks = append(p.Sinks, s)
	return s
}

// LastFailure returns the most recent failure, or a zero Failure.
func (p *Prompter) LastFailure() Failure {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Failures) == 0 {
		return Failure{}
	}
	return p.Failures[len(p.Failures)-1]
}

func pop(queue *[]string) (string, error) {
	if len(*queue) == 0 {
		return "", ports.ErrCancelled
	}
	v := (*queue)[0]
	*queue = (*queue)[1:]
	return v, nil
}
