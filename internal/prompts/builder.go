package prompts

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{([a-z_]+)\}\}`)

// Builder composes a prompt from a template, extra fragments and variables.
type Builder struct {
	base      *Prompt
	fragments []string
	variables map[string]string
}

// NewBuilder creates a builder for p.
func NewBuilder(p *Prompt) *Builder {
	return &Builder{
		base:      p,
		fragments: []string{p.Content},
		variables: make(map[string]string),
	}
}

// AddFragment appends a fragment to the prompt.
func (b *Builder) AddFragment(text string) *Builder {
	b.fragments = append(b.fragments, text)
	return b
}

// SetVariable sets a variable for {{key}} substitution.
func (b *Builder) SetVariable(key, value string) *Builder {
	b.variables[key] = value
	return b
}

// Build substitutes all variables in one pass, so values containing
// "{{...}}" are left alone. Placeholders without a value are an error.
func (b *Builder) Build() (string, error) {
	tmpl := strings.Join(b.fragments, "\n\n")

	var missing []string
	seen := make(map[string]bool)
	for _, m := range placeholderRe.FindAllStringSubmatch(tmpl, -1) {
		name := m[1]
		if _, ok := b.variables[name]; !ok && !seen[name] {
			missing = append(missing, name)
		}
		seen[name] = true
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("prompt %s: missing variables %s", b.base.ID, strings.Join(missing, ", "))
	}

	pairs := make([]string, 0, len(b.variables)*2)
	for k, v := range b.variables {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl), nil
}
