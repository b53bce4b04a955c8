package story

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	apperrors "github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/errors"
)

func greetingTree(t *testing.T) *Tree {
	t.Helper()
	tree := NewTree("A")
	nodes := []*Node{
		Dialogue("A", "Mira", "Hello", "warm"),
		Choice("B", "Respond?", Option{
			Text:         "Smile",
			Consequences: []Consequence{{Kind: "SetVariable", Value: "warm"}},
			NextNode:     "C",
		}),
		Dialogue("C", "You", "...", "calm"),
	}
	for _, n := range nodes {
		if err := tree.AddNode(n); err != nil {
			t.Fatalf("AddNode failed: %v", err)
		}
	}
	if err := tree.AddEdge(Edge{From: "A", To: "B", Weight: 1}); err != nil {
		t.Fatalf("AddEdge failed: %v", err)
	}
	return tree
}

func trimmedLines(data []byte) []string {
	var lines []string
	for _, l := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		lines = append(lines, strings.TrimSpace(l))
	}
	return lines
}

// TestEmitGreeting tests the converter emission scenario
func TestEmitGreeting(t *testing.T) {
	out, err := Emit(greetingTree(t))
	if err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	want := []string{
		"title: A",
		"tags:",
		"colorID: 0",
		"position: 0,0",
		"---",
		"Mira: Hello [warm]",
		"Respond?",
		"-> Smile",
		"<<set $warm>>",
		"You: ... [calm]",
		"===",
	}
	if diff := cmp.Diff(want, trimmedLines(out)); diff != "" {
		t.Errorf("Emission mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(string(out), "\n    <<set $warm>>\n") {
		t.Errorf("Expected option body indented:\n%s", out)
	}
}

// TestEmitDeterministic tests repeated emission is byte-identical
func TestEmitDeterministic(t *testing.T) {
	tree := greetingTree(t)
	first, err := Emit(tree)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, _ := Emit(tree)
		if string(again) != string(first) {
			t.Fatalf("Emission %d differs", i)
		}
	}
}

// TestEmitCycle tests that each node is emitted at most once
func TestEmitCycle(t *testing.T) {
	tree := NewTree("start")
	tree.AddNode(Dialogue("start", "Sorin", "Again?", ""))
	tree.AddNode(Action("shake", "The ground trembles", "shake_camera", "play_sound rumble"))
	tree.AddNode(Condition("check", "trust > 5", "start", "end"))
	tree.AddNode(Dialogue("end", "Sorin", "Farewell", "cold"))
	tree.AddEdge(Edge{From: "start", To: "shake"})
	tree.AddEdge(Edge{From: "shake", To: "check"})

	out, err := Emit(tree)
	if err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	if n := strings.Count(string(out), "Sorin: Again?"); n != 1 {
		t.Errorf("Expected root emitted once, got %d", n)
	}
	want := []string{
		"Sorin: Again?",
		"// The ground trembles",
		"<<shake_camera>>",
		"<<play_sound rumble>>",
		"<<if trust > 5>>",
		"<<else>>",
		"Sorin: Farewell [cold]",
		"<<endif>>",
		"===",
	}
	lines := trimmedLines(out)
	if diff := cmp.Diff(want, lines[5:]); diff != "" {
		t.Errorf("Body mismatch (-want +got):\n%s", diff)
	}
}

// TestEmitConditionalEdge tests edges carrying conditions
func TestEmitConditionalEdge(t *testing.T) {
	tree := NewTree("a")
	tree.Tags = []string{"dread_2", "mira"}
	tree.AddNode(Dialogue("a", "Mira", "Listen.", ""))
	tree.AddNode(Dialogue("b", "Mira", "I trust you.", "soft"))
	tree.AddEdge(Edge{From: "a", To: "b", Condition: "loyalty >= 60", Weight: 0.5})

	out, err := Emit(tree)
	if err != nil {
		t.Fatal(err)
	}
	text := string(out)
	if !strings.Contains(text, "tags: dread_2 mira\n") {
		t.Errorf("Expected tags header:\n%s", text)
	}
	if !strings.Contains(text, "<<if loyalty >= 60>>\n    Mira: I trust you. [soft]\n<<endif>>\n") {
		t.Errorf("Expected wrapped conditional edge:\n%s", text)
	}
}

// TestSetter tests consequence rendering
func TestSetter(t *testing.T) {
	tests := map[Consequence]string{
		{Kind: "SetVariable", Value: "warm"}:  "<<set $warm>>",
		{Kind: "set_variable", Value: "cold"}: "<<set $cold>>",
		{Kind: "AdjustLoyalty", Value: "-10"}: "<<set $adjust_loyalty to -10>>",
		{Kind: "trauma-gain", Value: "0.1"}:   "<<set $trauma_gain to 0.1>>",
	}
	for c, want := range tests {
		if got := setter(c); got != want {
			t.Errorf("setter(%+v) = %q, want %q", c, got, want)
		}
	}
}

// TestValidate tests structural validation failures
func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		build func() *Tree
	}{
		{"missing root", func() *Tree { return NewTree("nope") }},
		{"dangling edge", func() *Tree {
			tr := NewTree("a")
			tr.AddNode(Dialogue("a", "X", "y", ""))
			tr.Edges = append(tr.Edges, Edge{From: "a", To: "ghost"})
			return tr
		}},
		{"unreachable", func() *Tree {
			tr := NewTree("a")
			tr.AddNode(Dialogue("a", "X", "y", ""))
			tr.AddNode(Dialogue("b", "X", "z", ""))
			return tr
		}},
		{"mixed fields", func() *Tree {
			tr := NewTree("a")
			n := Dialogue("a", "X", "y", "")
			n.Prompt = "also a choice?"
			tr.AddNode(n)
			return tr
		}},
		{"bad condition", func() *Tree {
			tr := NewTree("a")
			tr.AddNode(Condition("a", "trust >", "b", ""))
			tr.AddNode(Dialogue("b", "X", "y", ""))
			return tr
		}},
		{"unknown kind", func() *Tree {
			tr := NewTree("a")
			tr.AddNode(&Node{ID: "a", Kind: "cutscene"})
			return tr
		}},
		{"dangling option", func() *Tree {
			tr := NewTree("a")
			tr.AddNode(Choice("a", "?", Option{Text: "go", NextNode: "ghost"}))
			return tr
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build().Validate()
			if !errors.Is(err, apperrors.ErrValidation) {
				t.Fatalf("Expected validation error, got %v", err)
			}
		})
	}
}

// TestJSONRoundTrip tests parse-emit-parse structural identity
func TestJSONRoundTrip(t *testing.T) {
	tree := greetingTree(t)

	data, err := json.Marshal(tree)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	again, err := json.Marshal(tree)
	if err != nil || string(again) != string(data) {
		t.Fatal("Expected deterministic encoding")
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if diff := cmp.Diff(tree, decoded, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Round trip mismatch (-want +got):\n%s", diff)
	}

	a, _ := Emit(tree)
	b, _ := Emit(decoded)
	if string(a) != string(b) {
		t.Error("Expected identical emission after round trip")
	}
}

// TestEmitStableAcrossJSON tests that emitted scripts survive a JSON round trip
func TestEmitStableAcrossJSON(t *testing.T) {
	branching := func() *Tree {
		tree := NewTree("start")
		tree.Tags = []string{"dread_3", "sorin"}
		tree.AddNode(Dialogue("start", "Sorin", "Again?", ""))
		tree.AddNode(Action("shake", "The ground trembles", "shake_camera", "play_sound rumble"))
		tree.AddNode(Condition("check", "trust > 5", "start", "end"))
		tree.AddNode(Choice("ask", "Stay?",
			Option{Text: "Stay", Requirements: []string{"trust > 2"}, NextNode: "end",
				Consequences: []Consequence{{Kind: "SetVariable", Value: "stayed"}}},
			Option{Text: "Leave", NextNode: "start"},
		))
		tree.AddNode(Dialogue("end", "Sorin", "Farewell", "cold"))
		tree.AddEdge(Edge{From: "start", To: "shake"})
		tree.AddEdge(Edge{From: "shake", To: "check"})
		tree.AddEdge(Edge{From: "start", To: "ask", Condition: "loyalty >= 60", Weight: 0.5})
		return tree
	}

	trees := map[string]*Tree{
		"greeting":  greetingTree(t),
		"branching": branching(),
	}
	for name, tree := range trees {
		t.Run(name, func(t *testing.T) {
			want, err := Emit(tree)
			if err != nil {
				t.Fatalf("Emit failed: %v", err)
			}
			data, err := json.Marshal(tree)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			decoded, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			got, err := Emit(decoded)
			if err != nil {
				t.Fatalf("Emit after round trip failed: %v", err)
			}
			if diff := cmp.Diff(string(want), string(got)); diff != "" {
				t.Errorf("Script changed after round trip (-want +got):\n%s", diff)
			}
		})
	}
}

// TestDecodeNodeArray tests the array form agents may return
func TestDecodeNodeArray(t *testing.T) {
	data := []byte(`{
		"root_id": "a",
		"nodes": [
			{"id": "a", "kind": "dialogue", "speaker": "Einar", "text": "Hold the line", "emotion": "grim"},
			{"id": "b", "kind": "action", "description": "Einar raises his shield", "effects": ["block"]}
		],
		"edges": [{"from": "a", "to": "b", "weight": 1}]
	}`)
	tree, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(tree.Nodes) != 2 || tree.Nodes["b"].Kind != KindAction {
		t.Errorf("Unexpected nodes: %+v", tree.Nodes)
	}

	if _, err := Decode([]byte(`{"root_id": "a", "nodes": [`)); !errors.Is(err, apperrors.ErrParse) {
		t.Errorf("Expected parse error, got %v", err)
	}
}

// TestMeasure tests the complexity metrics
func TestMeasure(t *testing.T) {
	m := Measure(greetingTree(t))
	want := Metrics{Nodes: 3, Edges: 1, MaxDepth: 3, BranchingFactor: 1, Choices: 1, Options: 1}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("Metrics mismatch (-want +got):\n%s", diff)
	}
}
