package poller

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"text/template"
)

// DefaultIndexRange is the number of stream sample indices, [0, 10).
const DefaultIndexRange = 10

// Rand is the randomness source for stream sample indices.
// *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// DefaultRand draws from the math/rand/v2 global generator.
var DefaultRand Rand = globalRand{}

// URLParams are the values available to a source URL template.
type URLParams struct {
	// Index is a fresh random sample index for the current cycle.
	Index int
}

// ParseURLTemplate parses a source URL template such as
// "http://vm/analyzer/stream/chats?index={{.Index}}". Unknown fields fail at
// parse-check time rather than at poll time.
func ParseURLTemplate(raw string) (*template.Template, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("url template cannot be empty")
	}
	tmpl, err := template.New("url").Option("missingkey=error").Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url template: %w", err)
	}
	if _, err := RenderURL(tmpl, URLParams{}); err != nil {
		return nil, fmt.Errorf("invalid url template: %w", err)
	}
	return tmpl, nil
}

// RenderURL executes a parsed URL template.
func RenderURL(tmpl *template.Template, p URLParams) (string, error) {
	var buf strings.Builder
	if err := tmpl.Execute(&buf, p); err != nil {
		return "", err
	}
	return buf.String(), nil
}
