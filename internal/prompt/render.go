package prompt

import (
	"fmt"
	"regexp"
	"strings"

	apperrors "github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/errors"
)

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_.]*)\}`)

// Placeholders returns the distinct placeholder names in body, in order of
// first appearance.
func Placeholders(body string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(body, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Render substitutes every declared {name} placeholder in body with its
// value. Placeholders that are not declared are left as written. A declared
// variable that body uses but vars does not bind is a TemplateUnboundVar error.
func Render(body string, declared []string, vars map[string]string) (string, error) {
	isDeclared := make(map[string]bool, len(declared))
	for _, name := range declared {
		isDeclared[name] = true
	}

	for _, name := range Placeholders(body) {
		if !isDeclared[name] {
			continue
		}
		if _, ok := vars[name]; !ok {
			return "", apperrors.WithMetadata(apperrors.CodeTemplateUnboundVar,
				fmt.Sprintf("template variable %q has no value", name),
				map[string]string{"variable": name})
		}
	}

	var b strings.Builder
	last := 0
	for _, loc := range placeholderPattern.FindAllStringSubmatchIndex(body, -1) {
		name := body[loc[2]:loc[3]]
		if !isDeclared[name] {
			continue
		}
		b.WriteString(body[last:loc[0]])
		b.WriteString(vars[name])
		last = loc[1]
	}
	b.WriteString(body[last:])
	return b.String(), nil
}
