package ports

import (
	"errors"
	"io"
)

// StepOption is one entry of the step menu.
type StepOption struct {
	Key     string
	Title   string
	Enabled bool
	Done    bool
}

// Choice is a selectable option with a stable key.
type Choice struct {
	Key   string
	Label string
}

// ConnectForm carries the values of the connection form.
type ConnectForm struct {
	Host     string
	Port     int
	User     string
	Password string
	Remember bool
}

// Section is one titled block of a parsed result transcript.
type Section struct {
	Title string
	Body  string
}

// Prompter is the presentation boundary of the wizard. Implementations may use
// terminal forms or scripted answers in tests.
type Prompter interface {
	// ChooseStep shows the step menu and returns the chosen key. QuitKey quits.
	ChooseStep(options []StepOption) (string, error)

	// Connect shows the connection form pre-filled with prefill.
	Connect(prefill ConnectForm) (ConnectForm, error)

	// ChooseTask asks for the task type; current is the preselected key.
	ChooseTask(options []Choice, current string) (string, error)

	// DatasetPath asks for the local dataset file.
	DatasetPath(title string) (string, error)

	// ScriptPath asks for the training script, starting from dir. A local
	// script is browsed for; a remote one is typed in.
	ScriptPath(dir string, local bool) (string, error)

	// Status shows a one-line status message.
	Status(msg string)

	// Failure shows an error together with a remediation hint.
	Failure(err error, hint string)

	// Line appends one line of streamed script output.
	Line(text string)

	// Sections shows the parsed result sections.
	Sections(sections []Section) error

	// Progress returns a sink for transfer progress of total bytes. Close ends it.
	Progress(description string, total int64) io.WriteCloser
}

// QuitKey is the ChooseStep key that ends the wizard.
const QuitKey = "quit"

// ErrCancelled is returned by a Prompter when the user aborts a form.
var ErrCancelled = errors.New("cancelled by user")
