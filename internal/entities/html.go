package entities

import (
	"strings"

	"golang.org/x/net/html"
)

// VisibleText returns the whitespace-collapsed text content of an HTML
// fragment, skipping script and style elements. Plain text passes through.
func VisibleText(fragment string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(fragment))

	var (
		parts []string
		skip  int
	)
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if isHiddenTag(string(name)) {
				skip++
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if isHiddenTag(string(name)) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				parts = append(parts, string(tokenizer.Text()))
			}
		}
	}
}

func isHiddenTag(name string) bool {
	return name == "script" || name == "style"
}
