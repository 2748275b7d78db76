package recovery

import (
	"strings"
	"testing"
)

func TestNewAnalyzer(t *testing.T) {
	a := NewAnalyzer()
	if a == nil {
		t.Fatal("NewAnalyzer returned nil")
	}
	if len(a.rules) == 0 {
		t.Error("Analyzer should have default rules")
	}
}

func TestAnalyzer_ModuleNotFound(t *testing.T) {
	a := NewAnalyzer()
	output := "Traceback (most recent call last):\n  File \"train.py\", line 3\nModuleNotFoundError: No module named 'sklearn.ensemble'"

	suggestions := a.Analyze(output, 1)
	if len(suggestions) == 0 {
		t.Fatal("Expected suggestions for missing module")
	}
	s := suggestions[0]
	if s.Category != "package" || s.Error != "Python module not found: sklearn" {
		t.Errorf("suggestion = %+v", s)
	}
	if len(s.Commands) == 0 || s.Commands[0] != "pip3 install scikit-learn" {
		t.Errorf("Commands = %v", s.Commands)
	}
}

func TestAnalyzer_DatasetMissing(t *testing.T) {
	a := NewAnalyzer()
	output := "FileNotFoundError: [Errno 2] No such file or directory: '/home/HwHiAiUser/Desktop/2t/binary/credit/credit.csv'"

	suggestions := a.Analyze(output, 1)
	if len(suggestions) == 0 {
		t.Fatal("Expected suggestions")
	}
	if suggestions[0].Category != "dataset" {
		t.Errorf("Category = %q, want dataset", suggestions[0].Category)
	}
	if !strings.Contains(suggestions[0].Commands[0], "/home/HwHiAiUser/Desktop/2t/binary/credit") {
		t.Errorf("Commands = %v", suggestions[0].Commands)
	}
}

func TestAnalyzer_OutOfMemoryRanksFirst(t *testing.T) {
	a := NewAnalyzer()
	output := "RuntimeError: NPU out of memory. Tried to allocate 2.00 GiB\npermission denied while writing log"

	suggestions := a.Analyze(output, 1)
	if len(suggestions) < 2 {
		t.Fatalf("got %d suggestions, want at least 2", len(suggestions))
	}
	if suggestions[0].Category != "resource" {
		t.Errorf("first category = %q, want resource", suggestions[0].Category)
	}
	for i := 1; i < len(suggestions); i++ {
		if suggestions[i].Confidence > suggestions[i-1].Confidence {
			t.Error("suggestions not sorted by confidence")
		}
	}
}

func TestAnalyzer_InterpreterMissing(t *testing.T) {
	a := NewAnalyzer()
	suggestions := a.Analyze("sh: 1: python3: not found", 127)
	if len(suggestions) == 0 || suggestions[0].Category != "environment" {
		t.Fatalf("suggestions = %+v", suggestions)
	}
	if suggestions[0].Error != "Command not found: python3" {
		t.Errorf("Error = %q", suggestions[0].Error)
	}
}

func TestAnalyzer_ColumnMissing(t *testing.T) {
	a := NewAnalyzer()
	suggestions := a.Analyze("KeyError: 'default.payment.next.month'", 1)
	if len(suggestions) == 0 || suggestions[0].Error != "Column missing from dataset: default.payment.next.month" {
		t.Fatalf("suggestions = %+v", suggestions)
	}
}

func TestAnalyzer_CleanRun(t *testing.T) {
	a := NewAnalyzer()
	if got := a.Analyze("epoch 1\n评估指标\nacc 0.9", 0); got != nil {
		t.Errorf("expected no suggestions, got %+v", got)
	}
}

func TestAnalyzer_UnknownFailure(t *testing.T) {
	a := NewAnalyzer()
	if got := a.Analyze("segfault somewhere", 139); len(got) != 0 {
		t.Errorf("expected no suggestions, got %+v", got)
	}
}
