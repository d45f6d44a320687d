package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return WithLanguage(context.Background(), lang)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "AppTitle"); got != "School Portal" {
		t.Errorf("T(AppTitle) = %q, want 'School Portal'", got)
	}
	if got := T(ctx, "SubmitTest"); got != "Submit test" {
		t.Errorf("T(SubmitTest) = %q, want 'Submit test'", got)
	}
}

func TestTranslateHindi(t *testing.T) {
	ctx := initLang(t, "hi")

	if got := T(ctx, "AppTitle"); got != "स्कूल पोर्टल" {
		t.Errorf("T(AppTitle) = %q, want 'स्कूल पोर्टल'", got)
	}
	if got := Lang(ctx); got != "hi" {
		t.Errorf("Lang = %q, want hi", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "DurationMinutes", 1); got != "1 minute" {
		t.Errorf("Tp(DurationMinutes, 1) = %q, want '1 minute'", got)
	}
	if got := Tp(ctx, "DurationMinutes", 45); got != "45 minutes" {
		t.Errorf("Tp(DurationMinutes, 45) = %q, want '45 minutes'", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "QuestionOf", map[string]any{"Current": 2, "Total": 5})
	if got != "Question 2 of 5" {
		t.Errorf("Td(QuestionOf) = %q, want 'Question 2 of 5'", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestLanguagesDefaultFirst(t *testing.T) {
	if err := Init("hi"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	langs := Languages()
	if len(langs) != 2 || langs[0] != "hi" || langs[1] != "en" {
		t.Errorf("Languages() = %v, want [hi en]", langs)
	}
}

func TestMatch(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	tests := []struct {
		name  string
		prefs []string
		want  string
	}{
		{"none", nil, "en"},
		{"cookie", []string{"hi"}, "hi"},
		{"regional", []string{"hi-IN"}, "hi"},
		{"accept language", []string{"", "fr-FR, hi;q=0.8"}, "hi"},
		{"unsupported", []string{"fr"}, "en"},
		{"garbage", []string{"%%%"}, "en"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Match(tt.prefs...); got != tt.want {
				t.Errorf("Match(%v) = %q, want %q", tt.prefs, got, tt.want)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	var seen string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = T(r.Context(), "Logout")
	}))

	tests := []struct {
		name   string
		cookie string
		accept string
		want   string
	}{
		{"default", "", "", "Sign out"},
		{"header", "", "hi-IN,hi;q=0.9", "साइन आउट"},
		{"cookie wins", "en", "hi", "Sign out"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: CookieName, Value: tt.cookie})
			}
			if tt.accept != "" {
				req.Header.Set("Accept-Language", tt.accept)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if seen != tt.want {
				t.Errorf("translated %q, want %q", seen, tt.want)
			}
		})
	}
}
