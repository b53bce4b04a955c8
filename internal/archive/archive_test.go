package archive

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// TestNameCollisions tests the same-second suffix rule
func TestNameCollisions(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 10, 15, 9, 30, 5, 0, time.UTC)

	first := Name(dir, "audit_archive", now)
	if filepath.Base(first) != "audit_archive_20261015_093005.tar.gz" {
		t.Fatalf("Unexpected name: %s", first)
	}
	if err := os.WriteFile(first, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	second := Name(dir, "audit_archive", now)
	if filepath.Base(second) != "audit_archive_20261015_093005_1.tar.gz" {
		t.Errorf("Unexpected collision name: %s", second)
	}
}

// TestCreateAndList tests archiving with relative entry names
func TestCreateAndList(t *testing.T) {
	root := t.TempDir()
	files := []string{
		filepath.Join(root, "stage", "stage.csv"),
		filepath.Join(root, "generation", "generation.csv"),
	}
	for _, f := range files {
		if err := os.MkdirAll(filepath.Dir(f), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(f, []byte("a,b\n1,2\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	dest := filepath.Join(root, "archives", "audit_archive_20261015_093005.tar.gz")
	if err := Create(dest, root, files); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	names, err := List(dest)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if diff := cmp.Diff([]string{"stage/stage.csv", "generation/generation.csv"}, names); diff != "" {
		t.Errorf("Entries mismatch (-want +got):\n%s", diff)
	}

	leftovers, _ := filepath.Glob(filepath.Join(root, "archives", ".archive-*"))
	if len(leftovers) != 0 {
		t.Errorf("Expected temp files removed, found %v", leftovers)
	}
}

// TestPrune tests retention of the newest archives
func TestPrune(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		"audit_archive_20261013_100000.tar.gz",
		"audit_archive_20261014_100000.tar.gz",
		"audit_archive_20261014_100000_1.tar.gz",
		"audit_archive_20261015_080000.tar.gz",
	}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if removed, err := Prune(dir, "audit_archive", 0); err != nil || len(removed) != 0 {
		t.Fatalf("Expected unbounded retention, removed %v (%v)", removed, err)
	}

	removed, err := Prune(dir, "audit_archive", 2)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if len(removed) != 2 {
		t.Fatalf("Expected 2 removed, got %v", removed)
	}

	left, _ := filepath.Glob(filepath.Join(dir, "*.tar.gz"))
	var base []string
	for _, p := range left {
		base = append(base, filepath.Base(p))
	}
	want := []string{"audit_archive_20261014_100000_1.tar.gz", "audit_archive_20261015_080000.tar.gz"}
	if diff := cmp.Diff(want, base); diff != "" {
		t.Errorf("Retained archives mismatch (-want +got):\n%s", diff)
	}
}
