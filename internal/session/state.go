// Package session holds the per-run workflow state shared by the wizard steps.
package session

import (
	"fmt"
	"strings"
	"sync"
)

// TaskType is the kind of training task selected in the second step.
type TaskType int

const (
	TaskUnset TaskType = iota
	TaskBinaryClassification
	TaskMultiClass
	TaskRegression
)

var taskNames = []string{
	"unset",
	"binary",
	"multiclass",
	"regression",
}

var taskLabels = []string{
	"Unset",
	"Binary classification",
	"Multi-class classification",
	"Regression",
}

var taskByName = map[string]TaskType{
	"binary":                TaskBinaryClassification,
	"binary-classification": TaskBinaryClassification,
	"二分类":                   TaskBinaryClassification,
	"multiclass":            TaskMultiClass,
	"multi-class":           TaskMultiClass,
	"多分类":                   TaskMultiClass,
	"regression":            TaskRegression,
	"回归":                    TaskRegression,
}

// TaskTypes lists the selectable task types in menu order.
func TaskTypes() []TaskType {
	return []TaskType{TaskBinaryClassification, TaskMultiClass, TaskRegression}
}

// String returns the short machine name of the task type.
func (t TaskType) String() string {
	if int(t) < 0 || int(t) >= len(taskNames) {
		return fmt.Sprintf("unknown(%d)", int(t))
	}
	return taskNames[t]
}

// Label returns a human-friendly name for menus and titles.
func (t TaskType) Label() string {
	if int(t) < 0 || int(t) >= len(taskLabels) {
		return t.String()
	}
	return taskLabels[t]
}

// IsSet reports whether t is one of the selectable task types.
func (t TaskType) IsSet() bool {
	return t >= TaskBinaryClassification && t <= TaskRegression
}

// ParseTaskType resolves a task type from its name. Both the short names and the
// labels used by the original training scripts are accepted.
func ParseTaskType(name string) (TaskType, error) {
	trimmed := strings.ToLower(strings.TrimSpace(name))
	if trimmed == "" {
		return TaskUnset, fmt.Errorf("task type is required")
	}
	if t, ok := taskByName[trimmed]; ok {
		return t, nil
	}
	return TaskUnset, fmt.Errorf("unknown task type %q", name)
}

// State is the single-session store for the chosen task type and the result id
// counter. It is created once per wizard run and passed to every step.
type State struct {
	mu       sync.Mutex
	taskType TaskType
	resultID int
}

// NewState returns an empty state: no task type, result id 0.
func NewState() *State {
	return &State{}
}

// TaskType returns the currently selected task type.
func (s *State) TaskType() TaskType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.taskType
}

// SetTaskType records the task type chosen in the select-task step.
func (s *State) SetTaskType(t TaskType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taskType = t
}

// ResultID returns the next result id that will be handed out.
func (s *State) ResultID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resultID
}

// NextResultID returns the current counter value and advances it.
func (s *State) NextResultID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.resultID
	s.resultID++
	return id
}

// ObserveResultID moves the counter past id. The counter never goes backwards.
func (s *State) ObserveResultID(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id >= s.resultID {
		s.resultID = id + 1
	}
}
