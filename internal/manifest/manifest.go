// Package manifest writes the run manifest consumed by the game runtime and
// the grouped failure report.
package manifest

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	apperrors "github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/errors"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/fsutil"
)

// FileName is the manifest's name inside the output directory.
const FileName = "manifest.toml"

// ErrorsFileName is the failure report's name inside the output directory.
const ErrorsFileName = "errors.toml"

// LevelEntry lists the artifacts produced for one dread level. Paths are
// relative to the output directory.
type LevelEntry struct {
	RegionsPath     string              `toml:"regions_path,omitempty" json:"regions_path,omitempty"`
	SettlementsPath string              `toml:"settlements_path,omitempty" json:"settlements_path,omitempty"`
	FactionsPath    string              `toml:"factions_path,omitempty" json:"factions_path,omitempty"`
	DungeonsPath    string              `toml:"dungeons_path,omitempty" json:"dungeons_path,omitempty"`
	DialoguePaths   []string            `toml:"dialogue_paths" json:"dialogue_paths"`
	AudioConfigPath string              `toml:"audio_config_path,omitempty" json:"audio_config_path,omitempty"`
	UIConfigPath    string              `toml:"ui_config_path,omitempty" json:"ui_config_path,omitempty"`
	DecayConfigPath string              `toml:"decay_config_path,omitempty" json:"decay_config_path,omitempty"`
	Artifacts       map[string][]string `toml:"artifacts,omitempty" json:"artifacts,omitempty"`
	GeneratedAt     time.Time           `toml:"generated_at" json:"generated_at"`
}

// Manifest is the index of one generation run.
type Manifest struct {
	GeneratedAt     time.Time             `toml:"generated_at" json:"generated_at"`
	Tokenizer       string                `toml:"tokenizer" json:"tokenizer"`
	CanonicalTables map[string][]string   `toml:"canonical_tables" json:"canonical_tables"`
	Levels          map[string]LevelEntry `toml:"levels" json:"levels"`
}

// New returns an empty manifest.
func New(tokenizer string, tables map[string][]string, now time.Time) *Manifest {
	return &Manifest{
		GeneratedAt:     now.UTC(),
		Tokenizer:       tokenizer,
		CanonicalTables: tables,
		Levels:          make(map[string]LevelEntry),
	}
}

// SetLevel stores the entry for a dread level.
func (m *Manifest) SetLevel(level int, entry LevelEntry) {
	if entry.DialoguePaths == nil {
		entry.DialoguePaths = []string{}
	}
	sort.Strings(entry.DialoguePaths)
	m.Levels[strconv.Itoa(level)] = entry
}

// Level returns the entry for a dread level.
func (m *Manifest) Level(level int) (LevelEntry, bool) {
	e, ok := m.Levels[strconv.Itoa(level)]
	return e, ok
}

// Write stores m at path as TOML, replacing any previous manifest atomically.
func Write(path string, m *Manifest) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(m); err != nil {
		return apperrors.Wrap(apperrors.CodeIO, "encoding manifest", err)
	}
	if err := fsutil.WriteFileAtomic(path, buf.Bytes()); err != nil {
		return apperrors.Wrap(apperrors.CodeIO, fmt.Sprintf("writing %s", path), err)
	}
	return nil
}

// Load reads a manifest written by Write.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIO, fmt.Sprintf("reading %s", path), err)
	}
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeParse, fmt.Sprintf("decoding %s", path), err)
	}
	if m.Levels == nil {
		m.Levels = make(map[string]LevelEntry)
	}
	return &m, nil
}

// Failure is one failed generation request.
type Failure struct {
	Agent      string `toml:"agent" json:"agent"`
	DreadLevel int    `toml:"dread_level" json:"dread_level"`
	Code       string `toml:"code" json:"code"`
	Error      string `toml:"error" json:"error"`
	Critical   bool   `toml:"critical" json:"critical"`
}

// ErrorReport groups failures by criticality.
type ErrorReport struct {
	Critical    []Failure `toml:"critical" json:"critical"`
	NonCritical []Failure `toml:"non_critical" json:"non_critical"`
}

// GroupFailures splits failures into critical and non-critical lists ordered
// by dread level then agent.
func GroupFailures(failures []Failure) ErrorReport {
	sorted := append([]Failure(nil), failures...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].DreadLevel != sorted[j].DreadLevel {
			return sorted[i].DreadLevel < sorted[j].DreadLevel
		}
		return sorted[i].Agent < sorted[j].Agent
	})

	report := ErrorReport{Critical: []Failure{}, NonCritical: []Failure{}}
	for _, f := range sorted {
		if f.Critical {
			report.Critical = append(report.Critical, f)
		} else {
			report.NonCritical = append(report.NonCritical, f)
		}
	}
	return report
}

// WriteErrors stores the grouped failure report at path.
func WriteErrors(path string, failures []Failure) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(GroupFailures(failures)); err != nil {
		return apperrors.Wrap(apperrors.CodeIO, "encoding error report", err)
	}
	if err := fsutil.WriteFileAtomic(path, buf.Bytes()); err != nil {
		return apperrors.Wrap(apperrors.CodeIO, fmt.Sprintf("writing %s", path), err)
	}
	return nil
}

// LoadErrors reads a failure report written by WriteErrors.
func LoadErrors(path string) (ErrorReport, error) {
	var report ErrorReport
	data, err := os.ReadFile(path)
	if err != nil {
		return report, apperrors.Wrap(apperrors.CodeIO, fmt.Sprintf("reading %s", path), err)
	}
	if err := toml.Unmarshal(data, &report); err != nil {
		return report, apperrors.Wrap(apperrors.CodeParse, fmt.Sprintf("decoding %s", path), err)
	}
	return report, nil
}
