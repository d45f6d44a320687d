package views

import (
	"context"
	"strings"
	"testing"

	"github.com/a-h/templ"

	"github.com/pavelanni/schoolportal/internal/exam"
	appI18n "github.com/pavelanni/schoolportal/internal/i18n"
	"github.com/pavelanni/schoolportal/internal/model"
)

func renderContext(t *testing.T) context.Context {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n init: %v", err)
	}
	ctx := appI18n.WithLanguage(context.Background(), "en")
	ctx = model.ContextWithBasePath(ctx, "/portal")
	return model.ContextWithCSRFToken(ctx, "tok")
}

func render(t *testing.T, ctx context.Context, c templ.Component) string {
	t.Helper()
	var sb strings.Builder
	if err := c.Render(ctx, &sb); err != nil {
		t.Fatalf("render: %v", err)
	}
	return sb.String()
}

func TestAlert(t *testing.T) {
	ctx := renderContext(t)

	if got := render(t, ctx, Alert("")); got != "" {
		t.Errorf("empty alert rendered %q", got)
	}

	got := render(t, ctx, Alert(`<b>"late"</b>`))
	if !strings.Contains(got, "&lt;b&gt;&#34;late&#34;&lt;/b&gt;") {
		t.Errorf("alert not escaped: %s", got)
	}
	if !strings.Contains(got, `aria-label="Dismiss"`) {
		t.Errorf("alert missing dismiss label: %s", got)
	}
}

func TestAttemptPageActions(t *testing.T) {
	ctx := renderContext(t)
	v := AttemptView{
		Test: model.Test{ID: "t1", Subject: "Math", Duration: 5},
		Snap: exam.Snapshot{
			TestID:   "t1",
			Total:    2,
			Question: model.Question{Text: "What is 2+2?", Options: []string{"3", "4"}},
			Answers:  map[int]string{},
		},
		State:     exam.StateRunning,
		Remaining: 75,
	}

	got := render(t, ctx, AttemptPage(v))
	for _, want := range []string{
		`<html lang="en">`,
		`action="/portal/tests/t1/answer"`,
		`action="/portal/tests/t1/next"`,
		`action="/portal/tests/t1/submit"`,
		`action="/portal/tests/t1/exit"`,
		`data-ws="/portal/tests/t1/countdown"`,
		`name="csrf_token" value="tok"`,
		">1:15</span>",
		"Leave test",
		"What is 2+2?",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("attempt page missing %q", want)
		}
	}
	if strings.Contains(got, "/tests/t1/prev") {
		t.Error("first question should not offer previous")
	}
}

func TestAttemptPageExpiredShowsSavedAnswer(t *testing.T) {
	ctx := renderContext(t)
	v := AttemptView{
		Test: model.Test{ID: "t1", Subject: "Math"},
		Snap: exam.Snapshot{
			Total:    1,
			Question: model.Question{Text: "Q", Options: []string{"A", "B"}},
			Answers:  map[int]string{0: "B"},
		},
		Remaining: -1,
		Expired:   true,
	}

	got := render(t, ctx, AttemptPage(v))
	if strings.Contains(got, `type="radio"`) {
		t.Error("expired attempt still renders the answer form")
	}
	if strings.Contains(got, `id="countdown"`) {
		t.Error("untimed attempt renders a countdown")
	}
	if !strings.Contains(got, "<strong>B</strong>") {
		t.Errorf("saved answer not highlighted: %s", got)
	}
}

func TestNavigationByRole(t *testing.T) {
	tests := []struct {
		role model.Role
		want []string
		deny []string
	}{
		{model.RoleStudent, []string{"/tests", "/complaints", "/fees"}, []string{"/tests/new", "/admissions"}},
		{model.RoleTeacher, []string{"/tests", "/tests/new"}, []string{"/complaints", "/fees"}},
		{model.RolePrincipal, []string{"/admissions"}, []string{"/tests", "/attendance"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			paths := map[string]bool{}
			for _, l := range linksFor(tt.role, navigation) {
				paths[l.path] = true
			}
			for _, p := range tt.want {
				if !paths[p] {
					t.Errorf("missing %s", p)
				}
			}
			for _, p := range tt.deny {
				if paths[p] {
					t.Errorf("unexpected %s", p)
				}
			}
		})
	}
}

func TestSummarizeAttendance(t *testing.T) {
	got := summarizeAttendance([]model.AttendanceRecord{
		{Status: model.AttendancePresent},
		{Status: model.AttendancePresent},
		{Status: model.AttendanceAbsent},
		{Status: model.AttendanceLeave},
	})
	want := attendanceSummary{Rate: 50, Present: 2, Absent: 1, Leave: 1}
	if got != want {
		t.Errorf("summary = %+v, want %+v", got, want)
	}
}
