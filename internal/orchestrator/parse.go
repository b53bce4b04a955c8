package orchestrator

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/agents"
	apperrors "github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/errors"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/story"
)

// ReaskPreamble opens the single follow-up sent after an unparseable reply.
const ReaskPreamble = "Return only valid structured data. Your previous reply could not be parsed as JSON. " +
	"Reply with the JSON document alone, without prose or code fences."

// StripFences removes a surrounding Markdown code fence.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ParseOutput decodes a completion against the declared output and returns
// the canonical indented JSON stored as the artifact. Undecodable replies are
// parse errors; shape or field mismatches are validation errors.
func ParseOutput(content string, out agents.OutputSpec) ([]byte, error) {
	text := StripFences(content)

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeParse, "completion is not valid JSON", err)
	}
	if dec.More() {
		return nil, apperrors.New(apperrors.CodeParse, "trailing data after JSON document")
	}

	switch out.Type {
	case agents.OutputJSONArray:
		items, ok := v.([]any)
		if !ok {
			return nil, apperrors.Newf(apperrors.CodeValidation, "output %s: expected a JSON array", out.Name)
		}
		for i, item := range items {
			if len(out.RequiredFields) == 0 {
				break
			}
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, apperrors.Newf(apperrors.CodeValidation, "output %s: item %d is not an object", out.Name, i)
			}
			if err := requireFields(obj, out, fmt.Sprintf("item %d", i)); err != nil {
				return nil, err
			}
		}

	case agents.OutputNarrativeTree:
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, apperrors.Newf(apperrors.CodeValidation, "output %s: expected a narrative tree object", out.Name)
		}
		if err := requireFields(obj, out, "tree"); err != nil {
			return nil, err
		}
		tree, err := story.Decode([]byte(text))
		if err != nil {
			return nil, err
		}
		data, err := json.MarshalIndent(tree, "", "  ")
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeValidation, "encoding narrative tree", err)
		}
		return data, nil

	default:
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, apperrors.Newf(apperrors.CodeValidation, "output %s: expected a JSON object", out.Name)
		}
		if err := requireFields(obj, out, "object"); err != nil {
			return nil, err
		}
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeValidation, "encoding output", err)
	}
	return data, nil
}

func requireFields(obj map[string]any, out agents.OutputSpec, where string) error {
	var missing []string
	for _, f := range out.RequiredFields {
		if _, ok := obj[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return apperrors.WithMetadata(apperrors.CodeValidation,
		fmt.Sprintf("output %s: %s missing required fields %s", out.Name, where, strings.Join(missing, ", ")),
		map[string]string{"missing": strings.Join(missing, ",")})
}
