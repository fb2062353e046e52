// Package prompt holds the templates sent to the model.
//
// Templates use text/template syntax with the sprig text functions, so a
// configured override can do things like {{.text | trim}} or
// {{.language | title}}.
package prompt

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

const (
	SummarizeName = "summarize"
	TranslateName = "translate"

	summarizeText = "Summarize the following text:\n\n{{.text}}"
	translateText = "Translate the following text to {{.language}}:\n\n{{.text}}"
)

var ErrUnknownPrompt = errors.New("unknown prompt")

// Template is a named prompt with declared placeholders.
type Template struct {
	Name string
	Text string
	Vars []string

	tmpl *template.Template
}

func New(name, text string, vars ...string) (*Template, error) {
	tmpl, err := template.New(name).
		Option("missingkey=error").
		Funcs(sprig.TxtFuncMap()).
		Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parsing prompt %q: %w", name, err)
	}
	return &Template{Name: name, Text: text, Vars: vars, tmpl: tmpl}, nil
}

func MustNew(name, text string, vars ...string) *Template {
	t, err := New(name, text, vars...)
	if err != nil {
		panic(err)
	}
	return t
}

// Format renders the template. Every declared var must be present in values.
func (t *Template) Format(values map[string]any) (string, error) {
	for _, v := range t.Vars {
		if _, ok := values[v]; !ok {
			return "", fmt.Errorf("prompt %q: missing variable %q", t.Name, v)
		}
	}

	var b strings.Builder
	if err := t.tmpl.Execute(&b, values); err != nil {
		return "", fmt.Errorf("rendering prompt %q: %w", t.Name, err)
	}
	return strings.TrimSpace(b.String()), nil
}

// Set is the pair of prompts the chain needs.
type Set struct {
	Summarize *Template
	Translate *Template
}

func DefaultSet() *Set {
	return &Set{
		Summarize: MustNew(SummarizeName, summarizeText, "text"),
		Translate: MustNew(TranslateName, translateText, "text", "language"),
	}
}

// LoadSet returns the default set with the named templates replaced.
func LoadSet(overrides map[string]string) (*Set, error) {
	set := DefaultSet()

	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		text := overrides[name]
		if strings.TrimSpace(text) == "" {
			continue
		}
		switch name {
		case SummarizeName:
			t, err := New(name, text, set.Summarize.Vars...)
			if err != nil {
				return nil, err
			}
			set.Summarize = t
		case TranslateName:
			t, err := New(name, text, set.Translate.Vars...)
			if err != nil {
				return nil, err
			}
			set.Translate = t
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownPrompt, name)
		}
	}

	return set, nil
}
