package prompt

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultBudget is the token budget used when none is configured.
const DefaultBudget = 100000

// ContextLineLimit is the number of context lines kept by head-truncation.
const ContextLineLimit = 10

// Long, frequent phrases and their short references. Applied in order.
var referenceTable = []string{
	"Dragon's Labyrinth", "DL",
	"horror progression", "HP",
	"dread level", "dread",
	"world corruption", "corruption",
	"companion trauma", "trauma",
	"companion loyalty", "loyalty",
	"dragon proximity", "proximity",
	"Return only valid structured data", "JSON only",
	"requirements", "reqs",
	"description", "desc",
	"environmental", "env",
	"settlement", "stlmt",
}

var referenceReplacer = strings.NewReplacer(referenceTable...)

// Generation kinds detected from a prompt, checked in this order.
var kindKeywords = []struct {
	kind     string
	keywords []string
}{
	{"dialogue", []string{"dialogue", "conversation", "narrative"}},
	{"ui", []string{"interface", "menu", "hud", "ui "}},
	{"decay", []string{"decay", "corrupt"}},
	{"audio", []string{"audio", "sound", "music"}},
	{"world", []string{"hex", "region", "world", "map"}},
	{"settlement", []string{"settlement", "village", "town", "city"}},
	{"faction", []string{"faction"}},
	{"dungeon", []string{"dungeon", "crypt", "lair"}},
}

// DetectKind returns the generation kind tag for a prompt.
func DetectKind(prompt string) string {
	lower := strings.ToLower(prompt)
	for _, k := range kindKeywords {
		for _, kw := range k.keywords {
			if strings.Contains(lower, kw) {
				return k.kind
			}
		}
	}
	return "general"
}

// Optimizer fits prompts into a token budget.
type Optimizer struct {
	tokenizer Tokenizer
	budget    int
}

// NewOptimizer creates an optimizer. A non-positive budget selects DefaultBudget.
func NewOptimizer(tokenizer Tokenizer, budget int) *Optimizer {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Optimizer{tokenizer: tokenizer, budget: budget}
}

// WithBudget returns a copy of o using budget.
func (o *Optimizer) WithBudget(budget int) *Optimizer {
	return NewOptimizer(o.tokenizer, budget)
}

// Budget returns the token budget
func (o *Optimizer) Budget() int { return o.budget }

// Tokenizer returns the tokenizer in use
func (o *Optimizer) Tokenizer() Tokenizer { return o.tokenizer }

// Result is an optimized prompt.
type Result struct {
	Text      string
	Tokens    int
	Steps     []string
	Truncated bool
}

// Compressed reports whether any compression step ran.
func (r Result) Compressed() bool {
	return len(r.Steps) > 0
}

func join(context, prompt string) string {
	if context == "" {
		return prompt
	}
	return context + "\n\n" + prompt
}

// Optimize combines context and prompt within the budget. When the separate
// token counts sum to at most the budget the pair is joined unchanged.
// Otherwise reference substitution, context head-truncation and the kind tag
// are applied in that order until the combined text fits; anything still over
// budget is truncated. Optimize never fails.
func (o *Optimizer) Optimize(prompt, context string) Result {
	if o.tokenizer.Count(prompt)+o.tokenizer.Count(context) <= o.budget {
		text := join(context, prompt)
		return Result{Text: text, Tokens: o.tokenizer.Count(text)}
	}

	var res Result
	fits := func(text string) bool {
		res.Text = text
		res.Tokens = o.tokenizer.Count(text)
		return res.Tokens <= o.budget
	}

	prompt = referenceReplacer.Replace(prompt)
	context = referenceReplacer.Replace(context)
	res.Steps = append(res.Steps, "references")
	if fits(join(context, prompt)) {
		return res
	}

	if lines := strings.Split(context, "\n"); len(lines) > ContextLineLimit {
		context = strings.Join(lines[:ContextLineLimit], "\n")
	}
	res.Steps = append(res.Steps, "context")
	if fits(join(context, prompt)) {
		return res
	}

	tagged := fmt.Sprintf("[GEN:%s] %s", DetectKind(prompt), join(context, prompt))
	res.Steps = append(res.Steps, "tag")
	if fits(tagged) {
		return res
	}

	res.Text = o.tokenizer.Truncate(tagged, o.budget)
	res.Tokens = o.tokenizer.Count(res.Text)
	res.Truncated = true
	return res
}

// Batch packs prompts greedily and in order into batches of at most the
// token budget and maxItems prompts each. Each prompt is wrapped in
// [PROMPT_i]...[/PROMPT_i] markers carrying its index in prompts. A prompt
// larger than the budget gets a batch of its own; prompts are never split.
func (o *Optimizer) Batch(prompts []string, maxItems int) []string {
	var (
		batches []string
		current []string
		tokens  int
	)
	flush := func() {
		if len(current) > 0 {
			batches = append(batches, strings.Join(current, "\n"))
			current, tokens = nil, 0
		}
	}

	for i, p := range prompts {
		wrapped := Wrap(i, p)
		n := o.tokenizer.Count(wrapped)
		if len(current) > 0 && (tokens+n > o.budget || (maxItems > 0 && len(current) >= maxItems)) {
			flush()
		}
		current = append(current, wrapped)
		tokens += n
	}
	flush()
	return batches
}

// Wrap encloses a prompt in its batch markers. Body lines that would read
// as a marker are escaped with a leading backslash, which Demux removes.
func Wrap(index int, prompt string) string {
	lines := strings.Split(prompt, "\n")
	for i, line := range lines {
		if markerLine.MatchString(strings.TrimRight(line, "\r")) {
			lines[i] = `\` + line
		}
	}
	return fmt.Sprintf("[PROMPT_%d]\n%s\n[/PROMPT_%d]", index, strings.Join(lines, "\n"), index)
}

// markerLine matches a whole marker line, optionally escaped.
var markerLine = regexp.MustCompile(`^(\\*)\[(/?)PROMPT_(\d+)\]$`)

// Demux splits a batch back into its prompts keyed by index. Markers only
// count on lines of their own. A section is kept when it is closed by the
// marker carrying its own index; an opening marker inside an unclosed
// section drops that section.
func Demux(batch string) map[int]string {
	out := make(map[int]string)
	open := -1
	var body []string
	for _, line := range strings.Split(batch, "\n") {
		m := markerLine.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil || m[1] != "" {
			if open >= 0 {
				if m != nil {
					line = line[1:]
				}
				body = append(body, line)
			}
			continue
		}
		i, err := strconv.Atoi(m[3])
		if err != nil {
			continue
		}
		switch {
		case m[2] == "":
			open, body = i, nil
		case i == open:
			out[i] = strings.Join(body, "\n")
			open, body = -1, nil
		}
	}
	return out
}
