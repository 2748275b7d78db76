package realprompt

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/acolita/train-wizard/internal/ports"
)

func TestStepLabel(t *testing.T) {
	tests := []struct {
		opt  ports.StepOption
		want string
	}{
		{ports.StepOption{Title: "1. Configure connection", Enabled: true}, "1. Configure connection"},
		{ports.StepOption{Title: "1. Configure connection", Enabled: true, Done: true}, "1. Configure connection  ✓"},
		{ports.StepOption{Title: "4. Start training"}, "4. Start training  (locked)"},
	}
	for _, tt := range tests {
		if got := stepLabel(tt.opt); got != tt.want {
			t.Errorf("stepLabel(%+v) = %q, want %q", tt.opt, got, tt.want)
		}
	}
}

func TestFirstOpen(t *testing.T) {
	opts := []ports.StepOption{
		{Key: "configure", Enabled: true, Done: true},
		{Key: "select-task", Enabled: true},
		{Key: "upload"},
	}
	if got := firstOpen(opts); got != "select-task" {
		t.Errorf("firstOpen() = %q", got)
	}
	opts[1].Done = true
	if got := firstOpen(opts); got != ports.QuitKey {
		t.Errorf("firstOpen() = %q, want quit", got)
	}
}

func TestParsePort(t *testing.T) {
	tests := map[string]int{"22": 22, " 2222 ": 2222, "65535": 65535}
	for in, want := range tests {
		got, err := parsePort(in)
		if err != nil || got != want {
			t.Errorf("parsePort(%q) = %d, %v", in, got, err)
		}
	}
	for _, in := range []string{"", "0", "65536", "ssh", "-1"} {
		if _, err := parsePort(in); err == nil {
			t.Errorf("parsePort(%q) accepted", in)
		}
	}
}

func TestRequired(t *testing.T) {
	check := required("host")
	if err := check("  "); err == nil || !strings.Contains(err.Error(), "host") {
		t.Errorf("required() = %v", err)
	}
	if err := check("npu01"); err != nil {
		t.Errorf("required() = %v", err)
	}
}

func TestStatusAndFailure(t *testing.T) {
	var buf bytes.Buffer
	p := New(WithOutput(&buf))

	p.Status("Connected to npu01:22")
	p.Failure(errors.New("authentication failed"), "Check the username and password.")
	p.Line("AUC: 0.78")

	out := buf.String()
	for _, want := range []string{"Connected to npu01:22", "authentication failed", "Check the username and password.", "AUC: 0.78"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFailureWithoutHint(t *testing.T) {
	var buf bytes.Buffer
	p := New(WithOutput(&buf))
	p.Failure(errors.New("boom"), "")
	if lines := strings.Count(strings.TrimSpace(buf.String()), "\n"); lines != 0 {
		t.Errorf("output has %d extra lines: %q", lines, buf.String())
	}
}

func TestSingleSectionShownWithoutMenu(t *testing.T) {
	var buf bytes.Buffer
	p := New(WithOutput(&buf))

	err := p.Sections([]ports.Section{{Title: "Full output", Body: "AUC: 0.78"}})
	if err != nil {
		t.Fatalf("Sections() error = %v", err)
	}
	if !strings.Contains(buf.String(), "Full output") || !strings.Contains(buf.String(), "AUC: 0.78") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestNoSections(t *testing.T) {
	var buf bytes.Buffer
	p := New(WithOutput(&buf))
	if err := p.Sections(nil); err != nil {
		t.Fatalf("Sections() error = %v", err)
	}
	if !strings.Contains(buf.String(), "No sections") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestProgress(t *testing.T) {
	var bar bytes.Buffer
	p := New()
	p.progress = &bar

	p.isTTY = func() bool { return false }
	sink := p.Progress("Uploading credit.csv", 4)
	if _, err := sink.Write([]byte("data")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	sink.Close()
	if bar.Len() != 0 {
		t.Errorf("progress drawn without a terminal: %q", bar.String())
	}

	p.isTTY = func() bool { return true }
	sink = p.Progress("Uploading credit.csv", 4)
	sink.Write([]byte("data"))
	sink.Close()
	if !strings.Contains(bar.String(), "Uploading credit.csv") {
		t.Errorf("progress output = %q", bar.String())
	}
}
