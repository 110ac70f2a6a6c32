package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteAtomic_ReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "policy_prompt.txt")

	for _, content := range []string{"first prompt", "second"} {
		if err := WriteAtomic(path, []byte(content)); err != nil {
			t.Fatalf("WriteAtomic(%q): %v", content, err)
		}
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second" {
		t.Errorf("content = %q, want %q", got, "second")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o644 {
		t.Errorf("mode = %v, want 0644", info.Mode().Perm())
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("staging files left behind: %v", entries)
	}
}

func TestWriteAtomic_DirectoryTarget(t *testing.T) {
	dir := t.TempDir()
	if err := WriteAtomic(dir, []byte("x")); err == nil {
		t.Fatal("expected error when the target is a directory")
	}
	entries, err := os.ReadDir(filepath.Dir(dir))
	if err != nil {
		t.Fatal(err)
	}
	prefix := "." + filepath.Base(dir) + "."
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) {
			t.Errorf("staging file left behind: %s", e.Name())
		}
	}
}
