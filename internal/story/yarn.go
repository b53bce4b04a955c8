package story

import (
	"bytes"
	"fmt"
	"strings"
)

const yarnIndent = "    "

// Emit converts a validated tree to a Yarn script. Traversal is depth-first
// from the root in declaration order; a node already emitted is skipped,
// which breaks cycles.
func Emit(t *Tree) ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	e := &emitter{tree: t, visited: make(map[string]bool)}

	title := t.Title
	if title == "" {
		title = t.RootID
	}
	e.line(0, "title: "+yarnTitle(title))
	e.line(0, strings.TrimSpace("tags: "+strings.Join(t.Tags, " ")))
	e.line(0, "colorID: 0")
	e.line(0, "position: 0,0")
	e.line(0, "---")
	e.node(t.RootID, 0)
	e.line(0, "===")
	return e.buf.Bytes(), nil
}

// yarnTitle makes a node title a single Yarn identifier.
func yarnTitle(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '.', ':':
			return '_'
		}
		return r
	}, s)
}

type emitter struct {
	tree    *Tree
	visited map[string]bool
	buf     bytes.Buffer
}

func (e *emitter) line(depth int, s string) {
	e.buf.WriteString(strings.Repeat(yarnIndent, depth))
	e.buf.WriteString(s)
	e.buf.WriteByte('\n')
}

func (e *emitter) node(id string, depth int) {
	if id == "" || e.visited[id] {
		return
	}
	e.visited[id] = true
	n := e.tree.Nodes[id]

	switch n.Kind {
	case KindDialogue:
		s := fmt.Sprintf("%s: %s", n.Speaker, n.Text)
		if n.Emotion != "" {
			s += " [" + n.Emotion + "]"
		}
		e.line(depth, s)

	case KindChoice:
		e.line(depth, n.Prompt)
		for _, opt := range n.Options {
			s := "-> " + opt.Text
			if len(opt.Requirements) > 0 {
				s += " <<if " + strings.Join(opt.Requirements, " and ") + ">>"
			}
			e.line(depth, s)
			for _, c := range opt.Consequences {
				e.line(depth+1, setter(c))
			}
			e.node(opt.NextNode, depth+1)
		}

	case KindAction:
		e.line(depth, "// "+n.Description)
		for _, effect := range n.Effects {
			e.line(depth, "<<"+effect+">>")
		}

	case KindCondition:
		e.line(depth, "<<if "+n.Check+">>")
		e.node(n.TrueBranch, depth+1)
		if n.FalseBranch != "" {
			e.line(depth, "<<else>>")
			e.node(n.FalseBranch, depth+1)
		}
		e.line(depth, "<<endif>>")
	}

	for _, edge := range e.tree.Outgoing(id) {
		if edge.Condition == "" {
			e.node(edge.To, depth)
			continue
		}
		if e.visited[edge.To] {
			continue
		}
		e.line(depth, "<<if "+edge.Condition+">>")
		e.node(edge.To, depth+1)
		e.line(depth, "<<endif>>")
	}
}

// setter renders a consequence. SetVariable sets its value as a flag; any
// other kind assigns the value to a variable named after the kind.
func setter(c Consequence) string {
	kind := normalizeKind(c.Kind)
	if kind == "setvariable" || kind == "set" {
		return "<<set $" + c.Value + ">>"
	}
	return fmt.Sprintf("<<set $%s to %s>>", snake(c.Kind), c.Value)
}

func normalizeKind(k string) string {
	return strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(k))
}

// snake converts CamelCase or kebab-case to snake_case.
func snake(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r == '-' || r == ' ':
			b.WriteByte('_')
		case r >= 'A' && r <= 'Z':
			if i > 0 && s[i-1] != '_' && s[i-1] != '-' && s[i-1] != ' ' {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
