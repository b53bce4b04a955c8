package agents

import (
	"fmt"
	"sort"
	"strings"
)

// OutputType is the declared structure of an agent's completion.
type OutputType string

const (
	OutputJSONObject    OutputType = "json_object"
	OutputJSONArray     OutputType = "json_array"
	OutputNarrativeTree OutputType = "narrative_tree"
)

// Metadata identifies an agent
type Metadata struct {
	Name        string   `toml:"name"`
	Version     string   `toml:"version"`
	Description string   `toml:"description"`
	Domain      string   `toml:"domain"`
	Tags        []string `toml:"tags"`
	DependsOn   []string `toml:"depends_on"`
}

// InputSpec declares one agent input
type InputSpec struct {
	Name        string `toml:"name"`
	Type        string `toml:"type"`
	Required    bool   `toml:"required"`
	Description string `toml:"description"`
}

// OutputSpec declares one agent output and how it is validated
type OutputSpec struct {
	Name           string     `toml:"name"`
	Type           OutputType `toml:"type"`
	RequiredFields []string   `toml:"required_fields"`
	Ext            string     `toml:"ext"`
}

// Interface is the agent's I/O contract
type Interface struct {
	Inputs          []InputSpec  `toml:"inputs"`
	Outputs         []OutputSpec `toml:"outputs"`
	RequiredContext []string     `toml:"required_context"`
	OptionalContext []string     `toml:"optional_context"`
}

// PromptTemplate is a named prompt body with {var} placeholders
type PromptTemplate struct {
	Template     string   `toml:"template"`
	Variables    []string `toml:"variables"`
	SystemPrompt string   `toml:"system_prompt"`
	Temperature  *float64 `toml:"temperature"`
	MaxTokens    *int     `toml:"max_tokens"`
}

// Spec is a loaded agent specification. Specs are immutable after load.
type Spec struct {
	Capabilities []string                  `toml:"capabilities"`
	Metadata     Metadata                  `toml:"metadata"`
	Interface    Interface                 `toml:"interface"`
	Prompts      map[string]PromptTemplate `toml:"prompts"`
	Config       map[string]ConfigValue    `toml:"config"`

	// Path is the file the spec was loaded from.
	Path string `toml:"-"`
}

// Name returns the agent name
func (s *Spec) Name() string {
	return s.Metadata.Name
}

// HasCapability reports whether the spec declares capability
func (s *Spec) HasCapability(capability string) bool {
	for _, c := range s.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// PrimaryTemplate returns the "main" template, or the lexicographically first
// one when there is no main.
func (s *Spec) PrimaryTemplate() (string, PromptTemplate, bool) {
	if tpl, ok := s.Prompts["main"]; ok {
		return "main", tpl, true
	}
	if len(s.Prompts) == 0 {
		return "", PromptTemplate{}, false
	}
	names := make([]string, 0, len(s.Prompts))
	for name := range s.Prompts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names[0], s.Prompts[names[0]], true
}

// PrimaryOutput returns the first declared output. Agents without outputs
// produce a JSON object with no required fields.
func (s *Spec) PrimaryOutput() OutputSpec {
	out := OutputSpec{Name: "result", Type: OutputJSONObject}
	if len(s.Interface.Outputs) > 0 {
		out = s.Interface.Outputs[0]
	}
	if out.Type == "" {
		out.Type = OutputJSONObject
	}
	if out.Ext == "" {
		out.Ext = "json"
	}
	out.Ext = strings.TrimPrefix(out.Ext, ".")
	return out
}

// ConfigInt returns an integer config entry
func (s *Spec) ConfigInt(key string) (int, bool) {
	v, ok := s.Config[key]
	if !ok {
		return 0, false
	}
	n, ok := v.AsInt()
	return int(n), ok
}

// ConfigString returns a string config entry
func (s *Spec) ConfigString(key string) (string, bool) {
	v, ok := s.Config[key]
	if !ok {
		return "", false
	}
	return v.AsString()
}

// ValueKind discriminates ConfigValue variants
type ValueKind int

const (
	KindString ValueKind = iota
	KindInt
	KindFloat
	KindBool
	KindList
	KindMap
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	}
	return "unknown"
}

// ConfigValue is a tagged variant holding one agent config entry
type ConfigValue struct {
	kind ValueKind
	s    string
	i    int64
	f    float64
	b    bool
	list []ConfigValue
	m    map[string]ConfigValue
}

func StringValue(s string) ConfigValue { return ConfigValue{kind: KindString, s: s} }
func IntValue(i int64) ConfigValue     { return ConfigValue{kind: KindInt, i: i} }
func FloatValue(f float64) ConfigValue { return ConfigValue{kind: KindFloat, f: f} }
func BoolValue(b bool) ConfigValue     { return ConfigValue{kind: KindBool, b: b} }
func ListValue(l ...ConfigValue) ConfigValue {
	return ConfigValue{kind: KindList, list: l}
}
func MapValue(m map[string]ConfigValue) ConfigValue {
	return ConfigValue{kind: KindMap, m: m}
}

// Kind returns the variant tag
func (v ConfigValue) Kind() ValueKind { return v.kind }

func (v ConfigValue) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsInt also accepts integral floats.
func (v ConfigValue) AsInt() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.i, true
	case KindFloat:
		if v.f == float64(int64(v.f)) {
			return int64(v.f), true
		}
	}
	return 0, false
}

// AsFloat also accepts ints.
func (v ConfigValue) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	}
	return 0, false
}

func (v ConfigValue) AsBool() (bool, bool)                  { return v.b, v.kind == KindBool }
func (v ConfigValue) AsList() ([]ConfigValue, bool)         { return v.list, v.kind == KindList }
func (v ConfigValue) AsMap() (map[string]ConfigValue, bool) { return v.m, v.kind == KindMap }

// Interface converts the value back to plain Go data.
func (v ConfigValue) Interface() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, item := range v.m {
			out[k] = item.Interface()
		}
		return out
	}
	return nil
}

// UnmarshalTOML implements toml.Unmarshaler
func (v *ConfigValue) UnmarshalTOML(data any) error {
	value, err := configValueOf(data)
	if err != nil {
		return err
	}
	*v = value
	return nil
}

func configValueOf(data any) (ConfigValue, error) {
	switch d := data.(type) {
	case string:
		return StringValue(d), nil
	case int64:
		return IntValue(d), nil
	case int:
		return IntValue(int64(d)), nil
	case float64:
		return FloatValue(d), nil
	case bool:
		return BoolValue(d), nil
	case []any:
		list := make([]ConfigValue, 0, len(d))
		for _, item := range d {
			cv, err := configValueOf(item)
			if err != nil {
				return ConfigValue{}, err
			}
			list = append(list, cv)
		}
		return ListValue(list...), nil
	case []map[string]any:
		list := make([]ConfigValue, 0, len(d))
		for _, item := range d {
			cv, err := configValueOf(item)
			if err != nil {
				return ConfigValue{}, err
			}
			list = append(list, cv)
		}
		return ListValue(list...), nil
	case map[string]any:
		m := make(map[string]ConfigValue, len(d))
		for k, item := range d {
			cv, err := configValueOf(item)
			if err != nil {
				return ConfigValue{}, fmt.Errorf("%s: %w", k, err)
			}
			m[k] = cv
		}
		return MapValue(m), nil
	}
	return ConfigValue{}, fmt.Errorf("unsupported config value of type %T", data)
}
