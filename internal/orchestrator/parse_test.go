package orchestrator

import (
	"testing"

	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/agents"
	apperrors "github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/errors"
)

// TestStripFences tests code fence removal
func TestStripFences(t *testing.T) {
	tests := map[string]string{
		"```json\n{\"a\": 1}\n```": `{"a": 1}`,
		"```\n[1]\n```":            "[1]",
		"  {\"a\": 1}  ":           `{"a": 1}`,
		"```{\"a\": 1}```":         `{"a": 1}`,
	}
	for in, want := range tests {
		if got := StripFences(in); got != want {
			t.Errorf("StripFences(%q) = %q, want %q", in, got, want)
		}
	}
}

// TestParseOutput tests shape and field validation
func TestParseOutput(t *testing.T) {
	object := agents.OutputSpec{Name: "o", Type: agents.OutputJSONObject, RequiredFields: []string{"name", "biome"}}
	array := agents.OutputSpec{Name: "a", Type: agents.OutputJSONArray, RequiredFields: []string{"id"}}
	tree := agents.OutputSpec{Name: "t", Type: agents.OutputNarrativeTree}

	tests := []struct {
		name    string
		content string
		out     agents.OutputSpec
		code    apperrors.Code
	}{
		{"object ok", `{"name": "x", "biome": "swamp"}`, object, ""},
		{"object missing field", `{"name": "x"}`, object, apperrors.CodeValidation},
		{"object wrong shape", `[{"name": "x"}]`, object, apperrors.CodeValidation},
		{"invalid json", `{"name": `, object, apperrors.CodeParse},
		{"trailing data", `{"name": "x", "biome": "y"} extra`, object, apperrors.CodeParse},
		{"array ok", "```json\n[{\"id\": 1}, {\"id\": 2}]\n```", array, ""},
		{"array item missing", `[{"id": 1}, {}]`, array, apperrors.CodeValidation},
		{"array of scalars", `[1, 2]`, array, apperrors.CodeValidation},
		{"tree ok", greetingJSON, tree, ""},
		{"tree unreachable", `{"root_id": "a", "nodes": [{"id": "a", "kind": "dialogue", "speaker": "x", "text": "y"}, {"id": "b", "kind": "dialogue", "speaker": "x", "text": "z"}]}`, tree, apperrors.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := ParseOutput(tt.content, tt.out)
			if tt.code == "" {
				if err != nil {
					t.Fatalf("Expected success, got %v", err)
				}
				if len(data) == 0 {
					t.Fatal("Expected canonical output")
				}
				return
			}
			if got := apperrors.CodeOf(err); got != tt.code {
				t.Errorf("Expected %s, got %s (%v)", tt.code, got, err)
			}
		})
	}
}

// TestParseOutputCanonical tests that equal documents encode equally
func TestParseOutputCanonical(t *testing.T) {
	out := agents.OutputSpec{Type: agents.OutputJSONObject}
	a, err := ParseOutput(`{"b": 1.50, "a": [true, null]}`, out)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := ParseOutput("```\n{\"a\":[true,null],\"b\":1.50}\n```", out)
	if string(a) != string(b) {
		t.Errorf("Expected identical encodings:\n%s\n%s", a, b)
	}
}
