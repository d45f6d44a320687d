// Package i18n translates portal text. Locale files are embedded; the
// request language comes from the "lang" cookie, then Accept-Language,
// then the configured default.
package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

type ctxKey struct{}

type state struct {
	bundle   *i18n.Bundle
	tags     []language.Tag
	matcher  language.Matcher
	fallback language.Tag
}

var current *state

// Init loads every embedded locale with defaultLang as the fallback.
func Init(defaultLang string) error {
	def, err := language.Parse(defaultLang)
	if err != nil {
		return fmt.Errorf("parse language %q: %w", defaultLang, err)
	}

	bundle := i18n.NewBundle(def)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return fmt.Errorf("read locales dir: %w", err)
	}
	// the default goes first so the matcher falls back to it
	tags := []language.Tag{def}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile(path.Join("locales", e.Name()))
		if err != nil {
			return fmt.Errorf("read locale file %s: %w", e.Name(), err)
		}
		mf, err := bundle.ParseMessageFileBytes(data, e.Name())
		if err != nil {
			return fmt.Errorf("parse locale file %s: %w", e.Name(), err)
		}
		if mf.Tag != def {
			tags = append(tags, mf.Tag)
		}
		slog.Debug("loaded locale file", "file", e.Name(), "messages", len(mf.Messages))
	}

	current = &state{
		bundle:   bundle,
		tags:     tags,
		matcher:  language.NewMatcher(tags),
		fallback: def,
	}
	return nil
}

// Languages returns the supported language tags, default first.
func Languages() []string {
	if current == nil {
		return nil
	}
	out := make([]string, 0, len(current.tags))
	for _, t := range current.tags {
		out = append(out, t.String())
	}
	return out
}

// Match picks the best supported language for the given preferences
// (cookie values or Accept-Language headers, most preferred first).
func Match(prefs ...string) string {
	if current == nil {
		return "en"
	}
	var desired []language.Tag
	for _, p := range prefs {
		if p == "" {
			continue
		}
		tags, _, err := language.ParseAcceptLanguage(p)
		if err != nil {
			continue
		}
		desired = append(desired, tags...)
	}
	if len(desired) == 0 {
		return current.fallback.String()
	}
	_, idx, _ := current.matcher.Match(desired...)
	return current.tags[idx].String()
}

type localized struct {
	lang string
	loc  *i18n.Localizer
}

// WithLanguage stores a localizer for lang in the context.
func WithLanguage(ctx context.Context, lang string) context.Context {
	return context.WithValue(ctx, ctxKey{}, localized{lang: lang, loc: i18n.NewLocalizer(current.bundle, lang)})
}

// Lang returns the context's language.
func Lang(ctx context.Context) string {
	if l, ok := ctx.Value(ctxKey{}).(localized); ok {
		return l.lang
	}
	if current != nil {
		return current.fallback.String()
	}
	return "en"
}

func localizer(ctx context.Context) *i18n.Localizer {
	if l, ok := ctx.Value(ctxKey{}).(localized); ok {
		return l.loc
	}
	return i18n.NewLocalizer(current.bundle, current.fallback.String())
}

func localize(ctx context.Context, cfg *i18n.LocalizeConfig) string {
	if current == nil {
		return cfg.MessageID
	}
	s, err := localizer(ctx).Localize(cfg)
	if err != nil {
		slog.Warn("missing translation", "id", cfg.MessageID, "lang", Lang(ctx), "error", err)
		return cfg.MessageID
	}
	return s
}

// T translates a message by ID.
func T(ctx context.Context, msgID string) string {
	return localize(ctx, &i18n.LocalizeConfig{MessageID: msgID})
}

// Td translates a message by ID with template data.
func Td(ctx context.Context, msgID string, data map[string]any) string {
	return localize(ctx, &i18n.LocalizeConfig{MessageID: msgID, TemplateData: data})
}

// Tp translates a pluralized message by ID.
func Tp(ctx context.Context, msgID string, count int) string {
	return localize(ctx, &i18n.LocalizeConfig{
		MessageID:    msgID,
		PluralCount:  count,
		TemplateData: map[string]any{"Count": count},
	})
}
