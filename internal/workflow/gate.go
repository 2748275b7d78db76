// Package workflow defines the wizard step sequence and the gate that controls
// which step may be entered.
package workflow

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Step is one of the five wizard steps.
type Step int

const (
	Configure Step = iota
	SelectTask
	Upload
	Train
	ViewResults
)

// NumSteps is the number of gated steps. Quit is an action, not a step.
const NumSteps = 5

var stepNames = []string{
	"configure",
	"select-task",
	"upload",
	"train",
	"view-results",
}

var stepTitles = []string{
	"1. Configure connection",
	"2. Select task",
	"3. Upload data",
	"4. Start training",
	"5. View results",
}

// ErrStepLocked is returned when a step's prerequisite has not been completed.
var ErrStepLocked = errors.New("step is locked")

// Steps returns all steps in workflow order.
func Steps() []Step {
	return []Step{Configure, SelectTask, Upload, Train, ViewResults}
}

// String returns the machine name of the step.
func (s Step) String() string {
	if !s.valid() {
		return fmt.Sprintf("unknown(%d)", int(s))
	}
	return stepNames[s]
}

// Title returns the menu label of the step.
func (s Step) Title() string {
	if !s.valid() {
		return s.String()
	}
	return stepTitles[s]
}

// Prev returns the step that gates s. Configure has no predecessor.
func (s Step) Prev() (Step, bool) {
	if s <= Configure || !s.valid() {
		return Configure, false
	}
	return s - 1, true
}

func (s Step) valid() bool {
	return s >= Configure && s < NumSteps
}

// ParseStep resolves a step from its machine name.
func ParseStep(name string) (Step, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return Configure, fmt.Errorf("step name is required")
	}
	for i, n := range stepNames {
		if n == trimmed {
			return Step(i), nil
		}
	}
	return Configure, fmt.Errorf("unknown step %q", trimmed)
}

// Gate tracks completion of each step. Flags are set once and never cleared, so
// revisiting an earlier step keeps later steps reachable.
type Gate struct {
	mu        sync.Mutex
	completed [NumSteps]bool
	current   Step
}

// NewGate returns a gate with no step completed and Configure selected.
func NewGate() *Gate {
	return &Gate{current: Configure}
}

// CanEnter reports whether step may be entered.
func (g *Gate) CanEnter(step Step) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.canEnterLocked(step)
}

func (g *Gate) canEnterLocked(step Step) bool {
	if !step.valid() {
		return false
	}
	prev, ok := step.Prev()
	if !ok {
		return true
	}
	return g.completed[prev]
}

// MarkComplete records that step finished successfully. A step that cannot be
// entered cannot be completed.
func (g *Gate) MarkComplete(step Step) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !step.valid() {
		return fmt.Errorf("mark complete: unknown step %d", int(step))
	}
	if !g.canEnterLocked(step) {
		return fmt.Errorf("mark %s complete: %w", step, ErrStepLocked)
	}
	g.completed[step] = true
	return nil
}

// Completed reports whether step has been completed.
func (g *Gate) Completed(step Step) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !step.valid() {
		return false
	}
	return g.completed[step]
}

// Select makes step the current selection. Locked steps are rejected and the
// current selection is left unchanged.
func (g *Gate) Select(step Step) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.canEnterLocked(step) {
		return fmt.Errorf("select %s: %w", step, ErrStepLocked)
	}
	g.current = step
	return nil
}

// Current returns the currently selected step.
func (g *Gate) Current() Step {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// Snapshot returns a copy of the completion flags.
func (g *Gate) Snapshot() [NumSteps]bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.completed
}

// Unlocked returns the steps that may currently be entered, in order.
func (g *Gate) Unlocked() []Step {
	g.mu.Lock()
	defer g.mu.Unlock()

	var steps []Step
	for _, s := range Steps() {
		if g.canEnterLocked(s) {
			steps = append(steps, s)
		}
	}
	return steps
}
