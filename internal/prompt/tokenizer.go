// Package prompt renders agent templates and keeps prompts within a token budget.
package prompt

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	apperrors "github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/errors"
)

// DefaultTokenizer is the encoding used when none is configured.
const DefaultTokenizer = "cl100k_base"

// Whitespace names the whitespace-delimited word tokenizer.
const Whitespace = "whitespace"

// Tokenizer counts and truncates text in tokens.
type Tokenizer interface {
	Name() string
	Count(text string) int
	Truncate(text string, max int) string
}

var bpeLoaderOnce sync.Once

// NewTokenizer returns the tokenizer registered under name. BPE encodings
// are loaded from the embedded offline ranks, never from the network.
func NewTokenizer(name string) (Tokenizer, error) {
	switch name {
	case Whitespace:
		return wordTokenizer{}, nil
	case "cl100k_base", "p50k_base", "r50k_base":
		bpeLoaderOnce.Do(func() {
			tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
		})
		enc, err := tiktoken.GetEncoding(name)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeUnknownTokenizer, fmt.Sprintf("loading tokenizer %s", name), err)
		}
		return &bpeTokenizer{name: name, enc: enc}, nil
	}
	return nil, apperrors.WithMetadata(apperrors.CodeUnknownTokenizer,
		fmt.Sprintf("unknown tokenizer %q", name),
		map[string]string{"tokenizer": name})
}

type bpeTokenizer struct {
	name string
	enc  *tiktoken.Tiktoken
}

func (t *bpeTokenizer) Name() string { return t.name }

func (t *bpeTokenizer) encode(text string) []int {
	// Special-token text is encoded as such rather than rejected.
	return t.enc.Encode(text, []string{"all"}, nil)
}

func (t *bpeTokenizer) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.encode(text))
}

func (t *bpeTokenizer) Truncate(text string, max int) string {
	if max <= 0 {
		return ""
	}
	tokens := t.encode(text)
	if len(tokens) <= max {
		return text
	}
	return strings.ToValidUTF8(t.enc.Decode(tokens[:max]), "")
}

// wordTokenizer counts whitespace-separated words.
type wordTokenizer struct{}

func (wordTokenizer) Name() string { return Whitespace }

func (wordTokenizer) Count(text string) int {
	return len(strings.Fields(text))
}

// Truncate cuts text right after its max-th word, keeping the original spacing.
func (wordTokenizer) Truncate(text string, max int) string {
	if max <= 0 {
		return ""
	}
	words := 0
	inWord := false
	for i, r := range text {
		if unicode.IsSpace(r) {
			if inWord && words == max {
				return text[:i]
			}
			inWord = false
			continue
		}
		if !inWord {
			inWord = true
			words++
		}
	}
	return text
}
