package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"
)

//go:embed templates/*.txt
var Templates embed.FS

var questionTagRegex = regexp.MustCompile(`(?i)</?\s*question\b[^>]*>`)

const maxTextRunes = 4000

// Variant is an explanation prompt variant.
type Variant string

const (
	// VariantBrief asks for a two-sentence explanation.
	VariantBrief Variant = "brief"
	// VariantDetailed asks for a step-by-step walkthrough.
	VariantDetailed Variant = "detailed"
)

var validVariants = map[Variant]bool{
	VariantBrief:    true,
	VariantDetailed: true,
}

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[Variant]*template.Template
)

// IsValidVariant checks if a variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[Variant(v)]
}

// ExplainData holds template data for explanation prompts.
type ExplainData struct {
	Subject       string
	QuestionText  string
	Options       []string
	CorrectAnswer string
	Chosen        string
	Language      string
}

// Load parses the templates/explain_<variant>.txt files from fsys.
// Only the first call has an effect.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		templates = make(map[Variant]*template.Template)
		for v := range validVariants {
			name := "templates/explain_" + string(v) + ".txt"
			content, err := fs.ReadFile(fsys, name)
			if err != nil {
				loadErr = fmt.Errorf("read prompt file %s: %w", name, err)
				return
			}
			tmpl, err := template.New(string(v)).Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", name, err)
				return
			}
			templates[v] = tmpl
		}
	})
	return loadErr
}

// BuildExplainPrompt renders the explanation prompt for variant.
func BuildExplainPrompt(variant Variant, data ExplainData) (string, error) {
	if templates == nil {
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := templates[variant]
	if !ok {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("invalid prompt variant: " + string(variant))
	}

	data.Subject = sanitize(data.Subject)
	data.QuestionText = sanitize(data.QuestionText)
	data.Chosen = sanitize(data.Chosen)
	if data.Language == "" {
		data.Language = "English"
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// sanitize strips tags that could close the question block and caps length.
func sanitize(s string) string {
	s = questionTagRegex.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > maxTextRunes {
		s = string([]rune(s)[:maxTextRunes]) + " [truncated]"
	}
	return s
}
