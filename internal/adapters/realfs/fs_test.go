package realfs

import (
	"path/filepath"
	"testing"
)

func TestWriteFile_ReplacesContent(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "classification_result_cache_0.txt")
	f := New()

	if err := f.WriteFile(name, []byte("first"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := f.WriteFile(name, []byte("second"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	data, err := f.ReadFile(name)
	if err != nil || string(data) != "second" {
		t.Errorf("ReadFile() = %q, %v", data, err)
	}
	info, err := f.Stat(name)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0644 {
		t.Errorf("mode = %v", info.Mode().Perm())
	}

	entries, _ := f.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %v", entries)
	}
}

func TestWriteFile_MissingDir(t *testing.T) {
	f := New()
	if err := f.WriteFile(filepath.Join(t.TempDir(), "missing", "x.txt"), []byte("x"), 0644); err == nil {
		t.Error("WriteFile() into a missing directory succeeded")
	}
}

func TestGetenv(t *testing.T) {
	t.Setenv("TRAIN_WIZARD_TEST_PASSWORD", "s3cret")
	if got := New().Getenv("TRAIN_WIZARD_TEST_PASSWORD"); got != "s3cret" {
		t.Errorf("Getenv() = %q", got)
	}
}
