package agents

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	apperrors "github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/errors"
)

const worldSpec = `
capabilities = ["world", "hex"]

[metadata]
name = "level-design"
version = "1.0.0"
description = "Hex world regions"
domain = "levels"
tags = ["world"]

[interface]
required_context = ["region"]

[[interface.inputs]]
name = "description"
type = "string"
required = true

[[interface.outputs]]
name = "regions"
type = "json_array"
required_fields = ["name", "biome"]

[prompts.main]
template = "Dread {dread_level}: {description}"
variables = ["dread_level", "description"]
temperature = 0.4
max_tokens = 1024

[prompts.alt]
template = "Alternate {description}"
variables = ["description"]

[config]
token_budget = 5000
style = "grim"
weights = [1, 2.5]
flags = { strict = true }
`

func writeSpec(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write spec: %v", err)
	}
}

func specWithName(name, capability string) string {
	return "capabilities = [\"" + capability + "\"]\n[metadata]\nname = \"" + name + "\"\ndomain = \"" + capability + "\"\n"
}

// TestLoadAll tests loading and decoding a complete spec
func TestLoadAll(t *testing.T) {
	dir := t.TempDir()
	writeSpec(t, dir, "level.toml", worldSpec)
	writeSpec(t, dir, "README.md", "not a spec")

	registry, err := LoadAll([]string{dir}, nil)
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}

	spec, ok := registry.Get("level-design")
	if !ok {
		t.Fatal("Expected level-design to be registered")
	}
	if diff := cmp.Diff([]string{"world", "hex"}, spec.Capabilities); diff != "" {
		t.Errorf("Capabilities mismatch (-want +got):\n%s", diff)
	}

	name, tpl, ok := spec.PrimaryTemplate()
	if !ok || name != "main" || *tpl.Temperature != 0.4 || *tpl.MaxTokens != 1024 {
		t.Errorf("Unexpected primary template %s: %+v", name, tpl)
	}

	out := spec.PrimaryOutput()
	if out.Type != OutputJSONArray || out.Ext != "json" || len(out.RequiredFields) != 2 {
		t.Errorf("Unexpected primary output: %+v", out)
	}

	if budget, ok := spec.ConfigInt("token_budget"); !ok || budget != 5000 {
		t.Errorf("Expected token_budget 5000, got %d (%v)", budget, ok)
	}
	if style, ok := spec.ConfigString("style"); !ok || style != "grim" {
		t.Errorf("Expected style grim, got %q", style)
	}
	weights, ok := spec.Config["weights"].AsList()
	if !ok || len(weights) != 2 || weights[1].Kind() != KindFloat {
		t.Errorf("Unexpected weights: %+v", weights)
	}
	flags, ok := spec.Config["flags"].AsMap()
	if !ok {
		t.Fatalf("Expected flags map, got kind %s", spec.Config["flags"].Kind())
	}
	if strict, _ := flags["strict"].AsBool(); !strict {
		t.Error("Expected flags.strict = true")
	}
}

// TestPrimaryTemplateFallback tests the lexicographic fallback
func TestPrimaryTemplateFallback(t *testing.T) {
	spec := &Spec{Prompts: map[string]PromptTemplate{
		"zeta":  {Template: "z"},
		"alpha": {Template: "a"},
	}}
	name, _, ok := spec.PrimaryTemplate()
	if !ok || name != "alpha" {
		t.Errorf("Expected alpha, got %q", name)
	}
}

// TestLoadAllDuplicates tests last-wins with a recorded warning
func TestLoadAllDuplicates(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	writeSpec(t, first, "a.toml", specWithName("mount-system", "mounts"))
	writeSpec(t, second, "b.toml", specWithName("mount-system", "travel"))

	registry, err := LoadAll([]string{first, second}, nil)
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}

	spec, _ := registry.Get("mount-system")
	if !spec.HasCapability("travel") {
		t.Errorf("Expected the later definition to win, got %v", spec.Capabilities)
	}
	if len(registry.Warnings()) != 1 {
		t.Errorf("Expected 1 warning, got %v", registry.Warnings())
	}
}

// TestLoadAllRejectsMalformed tests loader validation
func TestLoadAllRejectsMalformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
		detail  string
	}{
		{
			name:    "undeclared variable",
			content: "[metadata]\nname = \"x\"\n[prompts.main]\ntemplate = \"{description} {secret}\"\nvariables = [\"description\"]\n",
			detail:  "undeclared variable",
		},
		{
			name:    "input without type",
			content: "[metadata]\nname = \"x\"\n[[interface.inputs]]\nname = \"seed\"\n",
			detail:  "has no type",
		},
		{
			name:    "temperature out of range",
			content: "[metadata]\nname = \"x\"\n[prompts.main]\ntemplate = \"hi\"\ntemperature = 2.5\n",
			detail:  "temperature",
		},
		{
			name:    "negative max tokens",
			content: "[metadata]\nname = \"x\"\n[prompts.main]\ntemplate = \"hi\"\nmax_tokens = -1\n",
			detail:  "max_tokens",
		},
		{
			name:    "missing name",
			content: "capabilities = [\"a\"]\n",
			detail:  "metadata.name",
		},
		{
			name:    "domain escaping the output dir",
			content: "[metadata]\nname = \"x\"\ndomain = \"../x\"\n",
			detail:  "metadata.domain",
		},
		{
			name:    "nested domain",
			content: "[metadata]\nname = \"x\"\ndomain = \"a/b\"\n",
			detail:  "metadata.domain",
		},
		{
			name:    "not toml",
			content: "[metadata\nname=",
			detail:  "decoding",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeSpec(t, dir, "bad.toml", tt.content)

			_, err := LoadAll([]string{dir}, nil)
			if !errors.Is(err, apperrors.ErrSpecMalformed) {
				t.Fatalf("Expected SpecMalformed, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.detail) {
				t.Errorf("Expected error mentioning %q, got %v", tt.detail, err)
			}
			if apperrors.ExitCode(err) != apperrors.ExitConfig {
				t.Errorf("Expected config exit code, got %d", apperrors.ExitCode(err))
			}
		})
	}
}

// TestRegistryQueries tests capability, domain and required lookups
func TestRegistryQueries(t *testing.T) {
	registry, err := NewRegistry(
		&Spec{Capabilities: []string{"ui"}, Metadata: Metadata{Name: "ui-generation", Domain: "ui"}},
		&Spec{Capabilities: []string{"audio", "ambience"}, Metadata: Metadata{Name: "audio-generation", Domain: "audio"}},
		&Spec{Capabilities: []string{"decay"}, Metadata: Metadata{Name: "decay-modeling", Domain: "decay"}},
	)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	if diff := cmp.Diff([]string{"audio-generation", "decay-modeling", "ui-generation"}, registry.Names()); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}

	if got := registry.ByCapability("ambience"); len(got) != 1 || got[0].Name() != "audio-generation" {
		t.Errorf("Unexpected ByCapability result: %v", got)
	}
	if got := registry.ByDomain("decay"); len(got) != 1 || got[0].Name() != "decay-modeling" {
		t.Errorf("Unexpected ByDomain result: %v", got)
	}
	if got := registry.Targeted([]string{"ui", "decay"}); len(got) != 2 {
		t.Errorf("Expected 2 targeted specs, got %d", len(got))
	}
	if got := registry.Targeted(nil); len(got) != 3 {
		t.Errorf("Expected every spec when no targets, got %d", len(got))
	}

	if err := registry.ValidateRequired([]string{"ui-generation", "decay-modeling"}); err != nil {
		t.Errorf("Expected required specs present, got %v", err)
	}
	err = registry.ValidateRequired([]string{"ui-generation", "mount-system"})
	if !errors.Is(err, apperrors.ErrMissingSpec) {
		t.Fatalf("Expected MissingSpec, got %v", err)
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) && appErr.Metadata["agent"] != "mount-system" {
		t.Errorf("Expected missing agent mount-system, got %q", appErr.Metadata["agent"])
	}
}

// TestLoadAllMissingDirectory tests that an unreadable directory is a config error
func TestLoadAllMissingDirectory(t *testing.T) {
	_, err := LoadAll([]string{filepath.Join(t.TempDir(), "nope")}, nil)
	if apperrors.ExitCode(err) != apperrors.ExitConfig {
		t.Fatalf("Expected config error, got %v", err)
	}
}
