package prompt

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	apperrors "github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/errors"
)

func wordOptimizer(t *testing.T, budget int) *Optimizer {
	t.Helper()
	tok, err := NewTokenizer(Whitespace)
	if err != nil {
		t.Fatalf("NewTokenizer failed: %v", err)
	}
	return NewOptimizer(tok, budget)
}

// TestRender tests placeholder substitution
func TestRender(t *testing.T) {
	out, err := Render("Hello {name}, {unknown} {name}", []string{"name"}, map[string]string{"name": "Mira"})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if out != "Hello Mira, {unknown} Mira" {
		t.Errorf("Unexpected render: %q", out)
	}

	out, err = Render("{a}{b}", []string{"a", "b"}, map[string]string{"a": "{b}", "b": "x"})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if out != "{b}x" {
		t.Errorf("Expected values not to be re-expanded, got %q", out)
	}
}

// TestRenderUnbound tests that declared variables must be bound
func TestRenderUnbound(t *testing.T) {
	_, err := Render("Dread {dread_level}", []string{"dread_level"}, map[string]string{})
	if !errors.Is(err, apperrors.ErrTemplateUnboundVar) {
		t.Fatalf("Expected TemplateUnboundVar, got %v", err)
	}

	// Declared but unused variables are fine.
	if _, err := Render("static", []string{"dread_level"}, nil); err != nil {
		t.Errorf("Expected no error for unused variable, got %v", err)
	}
}

// TestPlaceholders tests placeholder extraction
func TestPlaceholders(t *testing.T) {
	got := Placeholders(`{a} {context.region} {"json": 1} {a} {b_2}`)
	if diff := cmp.Diff([]string{"a", "context.region", "b_2"}, got); diff != "" {
		t.Errorf("Placeholders mismatch (-want +got):\n%s", diff)
	}
}

// TestNewTokenizer tests tokenizer lookup
func TestNewTokenizer(t *testing.T) {
	tok, err := NewTokenizer(DefaultTokenizer)
	if err != nil {
		t.Fatalf("NewTokenizer(%s) failed: %v", DefaultTokenizer, err)
	}
	if tok.Name() != "cl100k_base" {
		t.Errorf("Expected cl100k_base, got %s", tok.Name())
	}
	if n := tok.Count("hello world"); n != 2 {
		t.Errorf("Expected 2 tokens, got %d", n)
	}
	if got := tok.Truncate("hello world", 1); got != "hello" {
		t.Errorf("Expected 'hello', got %q", got)
	}

	_, err = NewTokenizer("gpt-9000")
	if !errors.Is(err, apperrors.ErrUnknownTokenizer) {
		t.Fatalf("Expected UnknownTokenizer, got %v", err)
	}
	if apperrors.ExitCode(err) != apperrors.ExitConfig {
		t.Errorf("Expected config exit code")
	}
}

// TestWordTruncate tests that truncation keeps original spacing
func TestWordTruncate(t *testing.T) {
	tok := wordTokenizer{}
	if got := tok.Truncate("a  b\nc d", 3); got != "a  b\nc" {
		t.Errorf("Unexpected truncation: %q", got)
	}
	if got := tok.Truncate("a b", 5); got != "a b" {
		t.Errorf("Expected text unchanged, got %q", got)
	}
}

// TestOptimizeExactBudget tests that a prompt exactly at budget is untouched
func TestOptimizeExactBudget(t *testing.T) {
	o := wordOptimizer(t, 5)
	res := o.Optimize("a b c", "d e")
	if res.Text != "d e\n\na b c" {
		t.Errorf("Unexpected text: %q", res.Text)
	}
	if res.Compressed() || res.Truncated {
		t.Errorf("Expected no compression, got steps %v", res.Steps)
	}
}

// TestOptimizeReferences tests reference substitution
func TestOptimizeReferences(t *testing.T) {
	o := wordOptimizer(t, 5)
	res := o.Optimize("describe the horror progression for Dragon's Labyrinth", "")
	if res.Text != "describe the HP for DL" {
		t.Errorf("Unexpected text: %q", res.Text)
	}
	if diff := cmp.Diff([]string{"references"}, res.Steps); diff != "" {
		t.Errorf("Steps mismatch (-want +got):\n%s", diff)
	}
}

// TestOptimizeContextTruncation tests head-truncation of the context
func TestOptimizeContextTruncation(t *testing.T) {
	var lines []string
	for i := 1; i <= 15; i++ {
		lines = append(lines, fmt.Sprintf("line%d", i))
	}
	o := wordOptimizer(t, 12)
	res := o.Optimize("go", strings.Join(lines, "\n"))

	if res.Tokens != 11 {
		t.Errorf("Expected 11 tokens, got %d", res.Tokens)
	}
	if strings.Contains(res.Text, "line11") {
		t.Error("Expected context lines beyond 10 to be dropped")
	}
	if !strings.HasSuffix(res.Text, "line10\n\ngo") {
		t.Errorf("Unexpected text: %q", res.Text)
	}
}

// TestOptimizeTruncatesWhenNothingHelps tests the never-fail policy
func TestOptimizeTruncatesWhenNothingHelps(t *testing.T) {
	o := wordOptimizer(t, 4)
	res := o.Optimize("one two three four five six", "")
	if !res.Truncated {
		t.Fatal("Expected truncated result")
	}
	if res.Text != "[GEN:general] one two three" {
		t.Errorf("Unexpected text: %q", res.Text)
	}
	if res.Tokens > o.Budget() {
		t.Errorf("Expected at most %d tokens, got %d", o.Budget(), res.Tokens)
	}
}

// TestDetectKind tests generation kind detection
func TestDetectKind(t *testing.T) {
	tests := map[string]string{
		"Write a dialogue for Mira":      "dialogue",
		"Generate a hex world":           "world",
		"Name the village elders":        "settlement",
		"Describe the Crypt of the Ogre": "dungeon",
		"something else":                 "general",
	}
	for in, want := range tests {
		if got := DetectKind(in); got != want {
			t.Errorf("DetectKind(%q) = %q, want %q", in, got, want)
		}
	}
}

// TestBatch tests greedy packing and demultiplexing
func TestBatch(t *testing.T) {
	prompts := []string{"a b", "c d", "e f"}

	o := wordOptimizer(t, 8)
	batches := o.Batch(prompts, 100)
	if len(batches) != 2 {
		t.Fatalf("Expected 2 batches, got %d: %q", len(batches), batches)
	}

	merged := make(map[int]string)
	for _, b := range batches {
		if o.Tokenizer().Count(b) > o.Budget() {
			t.Errorf("Batch exceeds budget: %q", b)
		}
		for i, p := range Demux(b) {
			merged[i] = p
		}
	}
	if diff := cmp.Diff(map[int]string{0: "a b", 1: "c d", 2: "e f"}, merged); diff != "" {
		t.Errorf("Demux mismatch (-want +got):\n%s", diff)
	}

	if got := o.Batch(prompts, 1); len(got) != 3 {
		t.Errorf("Expected item cap to give 3 batches, got %d", len(got))
	}
}

// TestBatchOversized tests that an oversized prompt gets its own batch
func TestBatchOversized(t *testing.T) {
	big := strings.Repeat("w ", 20)
	o := wordOptimizer(t, 8)
	batches := o.Batch([]string{"a", big, "b"}, 10)
	if len(batches) != 3 {
		t.Fatalf("Expected 3 batches, got %d", len(batches))
	}
	if Demux(batches[1])[1] != big {
		t.Error("Expected oversized prompt intact in its own batch")
	}
}

// TestDemuxMarkerText tests bodies that contain marker text
func TestDemuxMarkerText(t *testing.T) {
	tricky := map[int]string{
		0: "quote the tag [/PROMPT_0] inline\nthen stop",
		1: "[/PROMPT_1]\n[PROMPT_7]\nsplit here\n\\[PROMPT_2]",
		2: "",
	}
	var parts []string
	for i := 0; i < len(tricky); i++ {
		parts = append(parts, Wrap(i, tricky[i]))
	}

	if diff := cmp.Diff(tricky, Demux(strings.Join(parts, "\n"))); diff != "" {
		t.Errorf("Demux mismatch (-want +got):\n%s", diff)
	}
}

// TestDemuxUnclosed tests that a section missing its closing marker is dropped
func TestDemuxUnclosed(t *testing.T) {
	reply := "[PROMPT_0]\n{\"a\": 1}\n[PROMPT_1]\n{\"b\": 2}\n[/PROMPT_1]\n[/PROMPT_3]"
	want := map[int]string{1: `{"b": 2}`}
	if diff := cmp.Diff(want, Demux(reply)); diff != "" {
		t.Errorf("Demux mismatch (-want +got):\n%s", diff)
	}
}
