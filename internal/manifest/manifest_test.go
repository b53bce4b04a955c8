package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	apperrors "github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/errors"
)

// TestWriteLoad tests the manifest survives a write and load
func TestWriteLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	now := time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)

	m := New("cl100k_base", map[string][]string{
		"regions":  {"Aurora Bushes", "Goldseeker's Cliffs"},
		"factions": {"The Red Snakes"},
	}, now)
	m.SetLevel(0, LevelEntry{
		RegionsPath:   "regions/a.json",
		UIConfigPath:  "ui/b.json",
		DialoguePaths: []string{"dialogue/dread_0/z.yarn", "dialogue/dread_0/a.yarn"},
		Artifacts:     map[string][]string{"ui": {"ui/b.json"}},
		GeneratedAt:   now,
	})
	m.SetLevel(4, LevelEntry{GeneratedAt: now})

	if err := Write(path, m); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if diff := cmp.Diff(m, loaded); diff != "" {
		t.Errorf("Manifest mismatch (-want +got):\n%s", diff)
	}

	entry, ok := loaded.Level(0)
	if !ok {
		t.Fatal("Expected level 0 entry")
	}
	if entry.DialoguePaths[0] != "dialogue/dread_0/a.yarn" {
		t.Errorf("Expected sorted dialogue paths, got %v", entry.DialoguePaths)
	}
	if _, ok := loaded.Level(2); ok {
		t.Error("Expected no level 2 entry")
	}
}

// TestWriteDeterministic tests identical manifests encode identically
func TestWriteDeterministic(t *testing.T) {
	dir := t.TempDir()
	now := time.Unix(0, 0)
	build := func() *Manifest {
		m := New("whitespace", map[string][]string{"dungeons": {"Tomb of the Grey Ogre"}, "regions": {"Vicious Crag"}}, now)
		for level := 0; level <= 4; level++ {
			m.SetLevel(level, LevelEntry{DecayConfigPath: "decay/x.json", GeneratedAt: now})
		}
		return m
	}

	a, b := filepath.Join(dir, "a.toml"), filepath.Join(dir, "b.toml")
	if err := Write(a, build()); err != nil {
		t.Fatal(err)
	}
	if err := Write(b, build()); err != nil {
		t.Fatal(err)
	}
	da, _ := os.ReadFile(a)
	db, _ := os.ReadFile(b)
	if string(da) != string(db) {
		t.Errorf("Expected byte-identical manifests:\n%s\n---\n%s", da, db)
	}
}

// TestLoadMissing tests error codes on load
func TestLoadMissing(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "nope.toml")); !errors.Is(err, apperrors.ErrIO) {
		t.Errorf("Expected IO error, got %v", err)
	}

	bad := filepath.Join(dir, "bad.toml")
	os.WriteFile(bad, []byte("levels = ["), 0o644)
	if _, err := Load(bad); !errors.Is(err, apperrors.ErrParse) {
		t.Errorf("Expected parse error, got %v", err)
	}
}

// TestWriteErrors tests grouping of failures
func TestWriteErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), ErrorsFileName)
	failures := []Failure{
		{Agent: "quest-writer", DreadLevel: 2, Code: "TIMEOUT", Error: "deadline exceeded"},
		{Agent: "ui-generation", DreadLevel: 1, Code: "PARSE_ERROR", Error: "bad json", Critical: true},
		{Agent: "audio", DreadLevel: 0, Code: "DOWNLOAD_FAILED", Error: "404"},
	}
	if err := WriteErrors(path, failures); err != nil {
		t.Fatalf("WriteErrors failed: %v", err)
	}

	report, err := LoadErrors(path)
	if err != nil {
		t.Fatalf("LoadErrors failed: %v", err)
	}
	if len(report.Critical) != 1 || report.Critical[0].Agent != "ui-generation" {
		t.Errorf("Unexpected critical failures: %+v", report.Critical)
	}
	if len(report.NonCritical) != 2 || report.NonCritical[0].Agent != "audio" {
		t.Errorf("Expected non-critical failures ordered by level, got %+v", report.NonCritical)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "[[critical]]") {
		t.Errorf("Expected critical table array:\n%s", data)
	}
}

// TestWriteErrorsEmpty tests an empty report still loads
func TestWriteErrorsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), ErrorsFileName)
	if err := WriteErrors(path, nil); err != nil {
		t.Fatal(err)
	}
	report, err := LoadErrors(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Critical)+len(report.NonCritical) != 0 {
		t.Errorf("Expected no failures, got %+v", report)
	}
}
