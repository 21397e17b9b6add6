package models

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestLocateReportsAllMissing(t *testing.T) {
	dir := t.TempDir()
	status := Locate(dir)
	if status.Complete() {
		t.Fatal("expected incomplete status for empty directory")
	}
	if len(status.Missing) != len(RequiredFiles) {
		t.Fatalf("expected %d missing files, got %d", len(RequiredFiles), len(status.Missing))
	}
}

func TestLocateCompleteWhenAllPresent(t *testing.T) {
	dir := t.TempDir()
	for _, name := range RequiredFiles {
		touch(t, dir, name)
	}
	status := Locate(dir)
	if !status.Complete() {
		t.Fatalf("expected complete status, missing: %v", status.Missing)
	}
}

func TestStatusErrorListsMissingFiles(t *testing.T) {
	status := Status{Dir: "/opt/models", Missing: []string{"a.dat", "b.dat"}}
	msg := status.Error()
	if !strings.Contains(msg, "a.dat") || !strings.Contains(msg, "b.dat") || !strings.Contains(msg, "/opt/models") {
		t.Fatalf("expected error message to mention dir and missing files, got: %s", msg)
	}
}

func TestFindFallsBackToSystemDefault(t *testing.T) {
	dir, status := Find("")
	if dir != DefaultDir {
		t.Fatalf("expected fallback to %s, got %s", DefaultDir, dir)
	}
	if status.Complete() {
		t.Fatal("expected incomplete status in a test sandbox with no installed models")
	}
}

func TestSearchPathsPrefersUserDirWhenHomeGiven(t *testing.T) {
	paths := SearchPaths("/home/alice")
	if len(paths) != 2 {
		t.Fatalf("expected 2 search paths, got %d", len(paths))
	}
	if paths[0] != filepath.Join("/home/alice", ".local", "share", "glance", "models") {
		t.Fatalf("expected user dir first, got %s", paths[0])
	}
}
