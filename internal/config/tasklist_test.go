package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadTaskList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.txt")
	content := "change_address\n\n# maintenance tasks below\n  enroll_course  \nbrowse_items\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	names, err := LoadTaskList(path)
	if err != nil {
		t.Fatalf("LoadTaskList failed: %v", err)
	}
	want := []string{"change_address", "enroll_course", "browse_items"}
	if len(names) != len(want) {
		t.Fatalf("Expected %d names, got %d: %v", len(want), len(names), names)
	}
	for i, name := range want {
		if names[i] != name {
			t.Errorf("names[%d] = %q, want %q", i, names[i], name)
		}
	}
}

func TestLoadTaskList_Missing(t *testing.T) {
	if _, err := LoadTaskList(filepath.Join(t.TempDir(), "nothere.txt")); err == nil {
		t.Error("Expected error for missing task list; an explicit filter must exist")
	}
}
