// Package story models narrative graphs emitted by dialogue agents and
// converts them to Yarn scripts.
package story

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/expr-lang/expr"

	apperrors "github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/errors"
)

// Kind discriminates narrative nodes
type Kind string

const (
	KindDialogue  Kind = "dialogue"
	KindChoice    Kind = "choice"
	KindAction    Kind = "action"
	KindCondition Kind = "condition"
)

// Consequence is a state change applied when an option is taken
type Consequence struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// Option is one answer of a choice node
type Option struct {
	Text         string        `json:"text"`
	Requirements []string      `json:"requirements,omitempty"`
	Consequences []Consequence `json:"consequences,omitempty"`
	NextNode     string        `json:"next_node,omitempty"`
}

// Node is a narrative beat. Only the fields of its Kind may be set.
type Node struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`

	// Dialogue
	Speaker string `json:"speaker,omitempty"`
	Text    string `json:"text,omitempty"`
	Emotion string `json:"emotion,omitempty"`

	// Choice
	Prompt  string   `json:"prompt,omitempty"`
	Options []Option `json:"options,omitempty"`

	// Action
	Description string   `json:"description,omitempty"`
	Effects     []string `json:"effects,omitempty"`

	// Condition
	Check       string `json:"check,omitempty"`
	TrueBranch  string `json:"true_branch,omitempty"`
	FalseBranch string `json:"false_branch,omitempty"`
}

// Dialogue builds a dialogue node
func Dialogue(id, speaker, text, emotion string) *Node {
	return &Node{ID: id, Kind: KindDialogue, Speaker: speaker, Text: text, Emotion: emotion}
}

// Choice builds a choice node
func Choice(id, prompt string, options ...Option) *Node {
	return &Node{ID: id, Kind: KindChoice, Prompt: prompt, Options: options}
}

// Action builds an action node
func Action(id, description string, effects ...string) *Node {
	return &Node{ID: id, Kind: KindAction, Description: description, Effects: effects}
}

// Condition builds a condition node
func Condition(id, check, trueBranch, falseBranch string) *Node {
	return &Node{ID: id, Kind: KindCondition, Check: check, TrueBranch: trueBranch, FalseBranch: falseBranch}
}

// Edge is a directed link between nodes
type Edge struct {
	From      string  `json:"from"`
	To        string  `json:"to"`
	Condition string  `json:"condition,omitempty"`
	Weight    float64 `json:"weight"`
}

// Tree is a narrative graph rooted at RootID. Cycles are allowed.
type Tree struct {
	RootID string           `json:"root_id"`
	Title  string           `json:"title,omitempty"`
	Tags   []string         `json:"tags,omitempty"`
	Nodes  map[string]*Node `json:"nodes"`
	Edges  []Edge           `json:"edges"`
}

// NewTree creates an empty tree
func NewTree(rootID string) *Tree {
	return &Tree{RootID: rootID, Nodes: make(map[string]*Node)}
}

// AddNode adds a node to the tree
func (t *Tree) AddNode(node *Node) error {
	if _, exists := t.Nodes[node.ID]; exists {
		return fmt.Errorf("node %s already exists", node.ID)
	}
	t.Nodes[node.ID] = node
	return nil
}

// AddEdge adds a directed edge between existing nodes
func (t *Tree) AddEdge(edge Edge) error {
	if _, ok := t.Nodes[edge.From]; !ok {
		return fmt.Errorf("source node %s not found", edge.From)
	}
	if _, ok := t.Nodes[edge.To]; !ok {
		return fmt.Errorf("target node %s not found", edge.To)
	}
	t.Edges = append(t.Edges, edge)
	return nil
}

// Outgoing returns the edges leaving id in declaration order
func (t *Tree) Outgoing(id string) []Edge {
	var out []Edge
	for _, e := range t.Edges {
		if e.From == id {
			out = append(out, e)
		}
	}
	return out
}

// links returns every node reachable from id in one step: edges, option
// targets and condition branches.
func (t *Tree) links(id string) []string {
	node := t.Nodes[id]
	var out []string
	if node != nil {
		for _, opt := range node.Options {
			if opt.NextNode != "" {
				out = append(out, opt.NextNode)
			}
		}
		if node.TrueBranch != "" {
			out = append(out, node.TrueBranch)
		}
		if node.FalseBranch != "" {
			out = append(out, node.FalseBranch)
		}
	}
	for _, e := range t.Outgoing(id) {
		out = append(out, e.To)
	}
	return out
}

func invalid(format string, args ...any) error {
	return apperrors.Newf(apperrors.CodeValidation, format, args...)
}

// Validate checks that every reference resolves, every node is reachable
// from the root, node fields match their kind and conditions compile.
func (t *Tree) Validate() error {
	if _, ok := t.Nodes[t.RootID]; !ok {
		return invalid("root node %q not found", t.RootID)
	}

	for _, id := range t.sortedIDs() {
		node := t.Nodes[id]
		if node.ID != id {
			return invalid("node keyed %q has id %q", id, node.ID)
		}
		if err := node.validate(); err != nil {
			return err
		}
		resolve := func(ref, what string) error {
			if _, ok := t.Nodes[ref]; !ok {
				return invalid("node %s: %s %q not found", id, what, ref)
			}
			return nil
		}
		for _, opt := range node.Options {
			if opt.NextNode != "" {
				if err := resolve(opt.NextNode, "option next_node"); err != nil {
					return err
				}
			}
		}
		if node.Kind == KindCondition {
			if err := resolve(node.TrueBranch, "true_branch"); err != nil {
				return err
			}
			if node.FalseBranch != "" {
				if err := resolve(node.FalseBranch, "false_branch"); err != nil {
					return err
				}
			}
		}
	}

	for i, e := range t.Edges {
		if _, ok := t.Nodes[e.From]; !ok {
			return invalid("edge %d: source node %q not found", i, e.From)
		}
		if _, ok := t.Nodes[e.To]; !ok {
			return invalid("edge %d: target node %q not found", i, e.To)
		}
		if e.Condition != "" {
			if err := compileCheck(e.Condition); err != nil {
				return invalid("edge %d: invalid condition: %v", i, err)
			}
		}
	}

	reached := map[string]bool{t.RootID: true}
	queue := []string{t.RootID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range t.links(id) {
			if !reached[next] {
				reached[next] = true
				queue = append(queue, next)
			}
		}
	}
	for _, id := range t.sortedIDs() {
		if !reached[id] {
			return invalid("node %s is unreachable from root %s", id, t.RootID)
		}
	}
	return nil
}

func (n *Node) validate() error {
	dialogue := n.Speaker != "" || n.Text != "" || n.Emotion != ""
	choice := n.Prompt != "" || len(n.Options) > 0
	action := n.Description != "" || len(n.Effects) > 0
	condition := n.Check != "" || n.TrueBranch != "" || n.FalseBranch != ""

	var own bool
	var others []bool
	switch n.Kind {
	case KindDialogue:
		own, others = n.Speaker != "", []bool{choice, action, condition}
	case KindChoice:
		own, others = len(n.Options) > 0, []bool{dialogue, action, condition}
	case KindAction:
		own, others = n.Description != "", []bool{dialogue, choice, condition}
	case KindCondition:
		own, others = n.Check != "" && n.TrueBranch != "", []bool{dialogue, choice, action}
	default:
		return invalid("node %s has unknown kind %q", n.ID, n.Kind)
	}

	if !own {
		return invalid("node %s is missing required %s fields", n.ID, n.Kind)
	}
	for _, set := range others {
		if set {
			return invalid("node %s mixes fields of another kind into a %s node", n.ID, n.Kind)
		}
	}

	if n.Kind == KindCondition {
		if err := compileCheck(n.Check); err != nil {
			return invalid("node %s: invalid condition %q: %v", n.ID, n.Check, err)
		}
	}
	return nil
}

func compileCheck(check string) error {
	_, err := expr.Compile(check, expr.AllowUndefinedVariables())
	return err
}

func (t *Tree) sortedIDs() []string {
	ids := make([]string, 0, len(t.Nodes))
	for id := range t.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type treeJSON struct {
	RootID string          `json:"root_id"`
	Title  string          `json:"title,omitempty"`
	Tags   []string        `json:"tags,omitempty"`
	Nodes  json.RawMessage `json:"nodes"`
	Edges  []Edge          `json:"edges"`
}

// MarshalJSON implements json.Marshaler. Nodes are written as an object
// keyed by id, which encoding/json orders by key.
func (t *Tree) MarshalJSON() ([]byte, error) {
	nodes, err := json.Marshal(t.Nodes)
	if err != nil {
		return nil, err
	}
	edges := t.Edges
	if edges == nil {
		edges = []Edge{}
	}
	return json.Marshal(treeJSON{RootID: t.RootID, Title: t.Title, Tags: t.Tags, Nodes: nodes, Edges: edges})
}

// UnmarshalJSON implements json.Unmarshaler. Nodes may be an object keyed
// by id or an array of nodes carrying their ids.
func (t *Tree) UnmarshalJSON(data []byte) error {
	var raw treeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	nodes := make(map[string]*Node)
	trimmed := bytes.TrimSpace(raw.Nodes)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
	case trimmed[0] == '[':
		var list []*Node
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return err
		}
		for _, n := range list {
			if _, dup := nodes[n.ID]; dup {
				return fmt.Errorf("duplicate node id %q", n.ID)
			}
			nodes[n.ID] = n
		}
	default:
		if err := json.Unmarshal(trimmed, &nodes); err != nil {
			return err
		}
		for id, n := range nodes {
			if n.ID == "" {
				n.ID = id
			}
		}
	}

	t.RootID = raw.RootID
	t.Title = raw.Title
	t.Tags = raw.Tags
	t.Nodes = nodes
	t.Edges = raw.Edges
	return nil
}

// Decode parses and validates a tree.
func Decode(data []byte) (*Tree, error) {
	var t Tree
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeParse, "decoding narrative tree", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}
