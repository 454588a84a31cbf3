package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present")
	if err := os.WriteFile(present, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	exists, err := FileExists(present)
	if err != nil {
		t.Fatalf("FileExists failed: %v", err)
	}
	if !exists {
		t.Error("expected true for an existing file")
	}

	exists, err = FileExists(filepath.Join(dir, "absent"))
	if err != nil {
		t.Fatalf("FileExists failed: %v", err)
	}
	if exists {
		t.Error("expected false for a missing file")
	}
}

func TestRemoveIfExists(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present")
	if err := os.WriteFile(present, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := RemoveIfExists(present); err != nil {
		t.Fatalf("RemoveIfExists failed: %v", err)
	}
	if _, err := os.Stat(present); !os.IsNotExist(err) {
		t.Error("expected the file to be removed")
	}

	// Absent paths are not an error.
	if err := RemoveIfExists(filepath.Join(dir, "absent")); err != nil {
		t.Errorf("RemoveIfExists on a missing file: %v", err)
	}
}
