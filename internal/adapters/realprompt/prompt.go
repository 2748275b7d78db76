// Package realprompt provides the terminal ports.Prompter built on
// charmbracelet/huh forms and lipgloss styles.
package realprompt

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/acolita/train-wizard/internal/ports"
)

// datasetTypes are the extensions offered by the dataset picker.
var datasetTypes = []string{".csv", ".txt", ".xlsx", ".xls"}

var scriptTypes = []string{".py"}

const backKey = "back"

// Prompter implements ports.Prompter on the controlling terminal.
type Prompter struct {
	out        io.Writer
	progress   io.Writer
	accessible bool
	isTTY      func() bool
}

// Option configures a Prompter.
type Option func(*Prompter)

// WithOutput sets where status lines, script output and sections go.
func WithOutput(w io.Writer) Option {
	return func(p *Prompter) { p.out = w }
}

// WithAccessible switches huh to its line-based accessible mode.
func WithAccessible(on bool) Option {
	return func(p *Prompter) { p.accessible = on }
}

// New returns a terminal prompter writing to stdout with progress bars on
// stderr.
func New(opts ...Option) *Prompter {
	p := &Prompter{
		out:      os.Stdout,
		progress: os.Stderr,
		isTTY:    func() bool { return term.IsTerminal(int(os.Stderr.Fd())) },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Prompter) run(groups ...*huh.Group) error {
	form := huh.NewForm(groups...).WithAccessible(p.accessible)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return ports.ErrCancelled
		}
		return err
	}
	return nil
}

// stepLabel renders a menu entry. Done steps get a check mark and locked
// steps a "(locked)" suffix.
func stepLabel(opt ports.StepOption) string {
	switch {
	case opt.Done:
		return opt.Title + "  ✓"
	case !opt.Enabled:
		return opt.Title + "  (locked)"
	default:
		return opt.Title
	}
}

func firstOpen(options []ports.StepOption) string {
	for _, o := range options {
		if o.Enabled && !o.Done {
			return o.Key
		}
	}
	return ports.QuitKey
}

// ChooseStep shows the step menu with locked steps marked and a quit
// entry last.
func (p *Prompter) ChooseStep(options []ports.StepOption) (string, error) {
	opts := make([]huh.Option[string], 0, len(options)+1)
	for _, o := range options {
		opts = append(opts, huh.NewOption(stepLabel(o), o.Key))
	}
	opts = append(opts, huh.NewOption("Quit", ports.QuitKey))

	choice := firstOpen(options)
	err := p.run(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Training wizard").
			Description("Steps unlock in order.").
			Options(opts...).
			Value(&choice),
	))
	if err != nil {
		return "", err
	}
	return choice, nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("port must be a number between 1 and 65535")
	}
	return port, nil
}

func required(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}

// Connect shows the connection form. The port defaults to 22.
func (p *Prompter) Connect(prefill ports.ConnectForm) (ports.ConnectForm, error) {
	result := prefill
	portStr := strconv.Itoa(prefill.Port)
	if prefill.Port == 0 {
		portStr = "22"
	}

	err := p.run(
		huh.NewGroup(
			huh.NewInput().
				Title("Host").
				Description("Hostname or IP address of the training server").
				Validate(required("host")).
				Value(&result.Host),

			huh.NewInput().
				Title("Port").
				Description("SSH port").
				Validate(func(s string) error { _, err := parsePort(s); return err }).
				Value(&portStr),

			huh.NewInput().
				Title("User").
				Description("SSH username").
				Validate(required("user")).
				Value(&result.User),

			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Validate(required("password")).
				Value(&result.Password),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Remember the password in the system keyring?").
				Value(&result.Remember),
		),
	)
	if err != nil {
		return prefill, err
	}

	result.Port, err = parsePort(portStr)
	if err != nil {
		return prefill, err
	}
	return result, nil
}

// ChooseTask preselects current, or the first option when unset.
func (p *Prompter) ChooseTask(options []ports.Choice, current string) (string, error) {
	opts := make([]huh.Option[string], 0, len(options))
	for _, c := range options {
		opts = append(opts, huh.NewOption(c.Label, c.Key))
	}
	choice := current
	if choice == "" && len(options) > 0 {
		choice = options[0].Key
	}

	err := p.run(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Select task").
			Options(opts...).
			Value(&choice),
	))
	if err != nil {
		return "", err
	}
	return choice, nil
}

// DatasetPath browses from the working directory for a supported dataset
// file.
func (p *Prompter) DatasetPath(title string) (string, error) {
	start, err := os.Getwd()
	if err != nil {
		start = "."
	}
	var picked string
	err = p.run(huh.NewGroup(
		huh.NewFilePicker().
			Title(title).
			Description("CSV, tab separated .txt or Excel workbook").
			CurrentDirectory(start).
			AllowedTypes(datasetTypes).
			Value(&picked),
	))
	if err != nil {
		return "", err
	}
	return picked, nil
}

// ScriptPath browses for a local .py file. A remote script lives on the
// training host, so its path is typed in.
func (p *Prompter) ScriptPath(dir string, local bool) (string, error) {
	if local {
		return p.pickScript(dir)
	}
	script := ""
	if dir != "" {
		script = strings.TrimSuffix(dir, "/") + "/"
	}
	err := p.run(huh.NewGroup(
		huh.NewInput().
			Title("Training script").
			Description("Path of the Python script to run").
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" || strings.HasSuffix(s, "/") {
					return errors.New("enter the path of a script file")
				}
				return nil
			}).
			Value(&script),
	))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(script), nil
}

func (p *Prompter) pickScript(dir string) (string, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			wd = "."
		}
		dir = wd
	}
	var picked string
	err := p.run(huh.NewGroup(
		huh.NewFilePicker().
			Title("Training script").
			Description("Python script to run").
			CurrentDirectory(dir).
			AllowedTypes(scriptTypes).
			Value(&picked),
	))
	if err != nil {
		return "", err
	}
	return picked, nil
}

func (p *Prompter) Status(msg string) {
	fmt.Fprintln(p.out, statusStyle.Render("› "+msg))
}

// Failure prints err and, when given, the hint below it.
func (p *Prompter) Failure(err error, hint string) {
	fmt.Fprintln(p.out, errorStyle.Render("✗ "+err.Error()))
	if hint != "" {
		fmt.Fprintln(p.out, hintStyle.Render(hint))
	}
}

func (p *Prompter) Line(text string) {
	fmt.Fprintln(p.out, text)
}

// renderSection formats one section as a titled box.
func renderSection(s ports.Section) string {
	return headerStyle.Render(s.Title) + "\n" + sectionStyle.Render(s.Body)
}

// Sections lets the user flip between sections until they choose back. The
// first section is shown right away.
func (p *Prompter) Sections(sections []ports.Section) error {
	if len(sections) == 0 {
		fmt.Fprintln(p.out, mutedStyle.Render("No sections to show."))
		return nil
	}
	fmt.Fprintln(p.out, renderSection(sections[0]))
	if len(sections) == 1 {
		return nil
	}

	opts := make([]huh.Option[string], 0, len(sections)+1)
	for i, s := range sections {
		opts = append(opts, huh.NewOption(s.Title, strconv.Itoa(i)))
	}
	opts = append(opts, huh.NewOption("Back", backKey))

	for {
		choice := backKey
		err := p.run(huh.NewGroup(
			huh.NewSelect[string]().
				Title("Result sections").
				Options(opts...).
				Value(&choice),
		))
		if errors.Is(err, ports.ErrCancelled) || (err == nil && choice == backKey) {
			return nil
		}
		if err != nil {
			return err
		}
		i, _ := strconv.Atoi(choice)
		fmt.Fprintln(p.out, renderSection(sections[i]))
	}
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// Progress draws a byte progress bar on stderr when it is a terminal.
func (p *Prompter) Progress(description string, total int64) io.WriteCloser {
	if !p.isTTY() {
		return nopCloser{io.Discard}
	}
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(p.progress),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(p.progress, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
}
