package results

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/acolita/train-wizard/internal/testing/fakes/fakefs"
)

func TestCache_LatestPicksHighestID(t *testing.T) {
	fs := fakefs.New()
	c := NewCache("/cache", fs)
	for _, id := range []int{3, 7, 1} {
		if _, err := c.Write(id, "result "+string(rune('0'+id))); err != nil {
			t.Fatalf("Write(%d) error = %v", id, err)
		}
	}

	e, err := c.Latest()
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if e.ID != 7 || e.Text != "result 7" {
		t.Errorf("Latest() = %+v, want id 7", e)
	}
	if e.Path != "/cache/classification_result_cache_7.txt" {
		t.Errorf("Path = %q", e.Path)
	}
}

func TestCache_WriteLatestRoundTrip(t *testing.T) {
	c := NewCache(t.TempDir())
	text := "评估指标\n准确率: 0.91\n"

	written, err := c.Write(0, text)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got, err := c.Latest()
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if got.Text != text || got.ID != 0 || got.Path != written.Path {
		t.Errorf("Latest() = %+v, want %+v", got, written)
	}
}

func TestCache_LatestMissingDir(t *testing.T) {
	c := NewCache(filepath.Join(t.TempDir(), "absent"))
	if _, err := c.Latest(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Latest() error = %v, want ErrNotFound", err)
	}
}

func TestCache_LatestSkipsForeignFiles(t *testing.T) {
	fs := fakefs.New()
	fs.WriteFile("/cache/classification_result_cache_abc.txt", []byte("x"), 0644)
	fs.WriteFile("/cache/classification_result_cache_-1.txt", []byte("x"), 0644)
	fs.WriteFile("/cache/classification_result_cache_2.log", []byte("x"), 0644)
	fs.WriteFile("/cache/notes.txt", []byte("x"), 0644)
	c := NewCache("/cache", fs)

	if _, err := c.Latest(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Latest() error = %v, want ErrNotFound", err)
	}

	fs.WriteFile("/cache/classification_result_cache_12.txt", []byte("twelve"), 0644)
	e, err := c.Latest()
	if err != nil || e.ID != 12 {
		t.Errorf("Latest() = %+v, %v; want id 12", e, err)
	}
}

func TestCache_LatestReadsZeroPaddedName(t *testing.T) {
	fs := fakefs.New()
	fs.WriteFile("/cache/classification_result_cache_3.txt", []byte("three"), 0644)
	fs.WriteFile("/cache/classification_result_cache_007.txt", []byte("seven"), 0644)
	c := NewCache("/cache", fs)

	e, err := c.Latest()
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if e.ID != 7 || e.Text != "seven" || e.Path != "/cache/classification_result_cache_007.txt" {
		t.Errorf("Latest() = %+v, want the padded entry 7", e)
	}
	if got := c.NextID(0); got != 8 {
		t.Errorf("NextID(0) = %d, want 8", got)
	}
}

func TestCache_NextID(t *testing.T) {
	fs := fakefs.New()
	c := NewCache("/cache", fs)

	if got := c.NextID(0); got != 0 {
		t.Errorf("NextID(0) on empty cache = %d, want 0", got)
	}
	c.Write(4, "x")
	if got := c.NextID(0); got != 5 {
		t.Errorf("NextID(0) = %d, want 5", got)
	}
	if got := c.NextID(9); got != 9 {
		t.Errorf("NextID(9) = %d, want 9", got)
	}
}

func TestCache_WriteError(t *testing.T) {
	fs := fakefs.New()
	fs.SetWriteError(os.ErrPermission)
	c := NewCache("/cache", fs)

	if _, err := c.Write(1, "x"); !errors.Is(err, os.ErrPermission) {
		t.Errorf("Write() error = %v, want permission error", err)
	}
	if _, err := c.Write(-1, "x"); err == nil {
		t.Error("expected error for negative id")
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		name string
		id   int
		ok   bool
	}{
		{"classification_result_cache_0.txt", 0, true},
		{"classification_result_cache_42.txt", 42, true},
		{"classification_result_cache_007.txt", 7, true},
		{"classification_result_cache_+7.txt", 0, false},
		{"classification_result_cache_.txt", 0, false},
		{"classification_result_cache_1.txt.bak", 0, false},
		{"other_1.txt", 0, false},
	}
	for _, tt := range tests {
		id, ok := parseID(tt.name)
		if ok != tt.ok || id != tt.id {
			t.Errorf("parseID(%q) = %d, %v; want %d, %v", tt.name, id, ok, tt.id, tt.ok)
		}
	}
}

func TestExtractEvaluation(t *testing.T) {
	out := "epoch 1\nepoch 2\n评估指标\nacc 0.9\n"
	got, ok := ExtractEvaluation(out, "评估指标")
	if !ok || got != "评估指标\nacc 0.9\n" {
		t.Errorf("ExtractEvaluation() = %q, %v", got, ok)
	}
	if _, ok := ExtractEvaluation("epoch 1\n", "评估指标"); ok {
		t.Error("expected no evaluation without marker")
	}
	if _, ok := ExtractEvaluation(out, ""); ok {
		t.Error("empty marker must not match")
	}
}
