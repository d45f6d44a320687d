// Package views renders the portal's HTML pages as templ components.
package views

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/schoolportal/internal/i18n"
	"github.com/pavelanni/schoolportal/internal/model"
)

// Notices shown on the attempt page after navigation.
const (
	NoticeBlocked = "blocked"
	NoticeConfirm = "confirm"
)

// link prefixes path with the deployment base path.
func link(ctx context.Context, path string) templ.SafeURL {
	return templ.URL(model.BasePathFromContext(ctx) + path)
}

// linkString is link for attributes templ does not treat as URLs (hx-post,
// data-*).
func linkString(ctx context.Context, path string) string {
	return string(link(ctx, path))
}

func t(ctx context.Context, id string) string { return appI18n.T(ctx, id) }

func td(ctx context.Context, id string, data map[string]any) string {
	return appI18n.Td(ctx, id, data)
}

func formatDate(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Format("02 Jan 2006")
}

func formatDateTime(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Format("02 Jan 2006 15:04")
}

// formatClock renders seconds as m:ss.
func formatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func durationLabel(ctx context.Context, test model.Test) string {
	if test.Duration <= 0 {
		return t(ctx, "Untimed")
	}
	return appI18n.Tp(ctx, "DurationMinutes", test.Duration)
}

type navLink struct {
	path  string
	msgID string
	roles []model.Role
}

var navigation = []navLink{
	{"/", "NavDashboard", nil},
	{"/tests", "NavTests", []model.Role{model.RoleStudent, model.RoleTeacher}},
	{"/tests/new", "NavNewTest", []model.Role{model.RoleTeacher}},
	{"/complaints", "NavComplaints", []model.Role{model.RoleStudent}},
	{"/attendance", "NavAttendance", []model.Role{model.RoleStudent, model.RoleParent}},
	{"/fees", "NavFees", []model.Role{model.RoleStudent, model.RoleParent}},
	{"/admissions", "NavAdmissions", []model.Role{model.RolePrincipal}},
	{"/notifications", "NavNotifications", nil},
	{"/id-card", "NavIDCard", nil},
}

// navFor returns the navigation of the signed-in role, or nothing for
// anonymous visitors.
func navFor(ctx context.Context) []navLink {
	id := model.IdentityFromContext(ctx)
	if id == nil {
		return nil
	}
	return linksFor(id.Role(), navigation)
}

func linksFor(role model.Role, links []navLink) []navLink {
	var out []navLink
	for _, l := range links {
		if allowed(role, l.roles) {
			out = append(out, l)
		}
	}
	return out
}

func allowed(role model.Role, roles []model.Role) bool {
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func resultTitle(ctx context.Context, subject string) string {
	title := t(ctx, "ResultTitle")
	if subject != "" {
		title += ": " + subject
	}
	return title
}

func scoreText(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}

type attendanceSummary struct {
	Rate    int
	Present int
	Absent  int
	Leave   int
}

func summarizeAttendance(records []model.AttendanceRecord) attendanceSummary {
	var s attendanceSummary
	for _, r := range records {
		switch r.Status {
		case model.AttendancePresent:
			s.Present++
		case model.AttendanceAbsent:
			s.Absent++
		case model.AttendanceLeave:
			s.Leave++
		}
	}
	if len(records) > 0 {
		s.Rate = s.Present * 100 / len(records)
	}
	return s
}

func feeStatus(ctx context.Context, paid bool) string {
	if paid {
		return t(ctx, "FeePaid")
	}
	return t(ctx, "FeeUnpaid")
}

type cardRow struct {
	label string
	value string
}

// idCardRows lists the populated fields of an identity card.
func idCardRows(ctx context.Context, id *model.Identity) []cardRow {
	rows := []cardRow{
		{t(ctx, "FieldName"), id.Profile.DisplayName()},
		{t(ctx, "FieldRole"), t(ctx, "Role_"+string(id.Role()))},
	}
	add := func(msgID, value string) {
		if value != "" {
			rows = append(rows, cardRow{t(ctx, msgID), value})
		}
	}
	switch p := id.Profile.(type) {
	case model.StudentProfile:
		add("FieldStudentID", p.StudentID)
		add("FieldClass", p.ClassID)
	case model.TeacherProfile:
		for _, c := range p.ClassIDs {
			add("FieldClass", c)
		}
	case model.ParentProfile:
		for _, c := range p.ChildIDs {
			add("FieldChild", c)
		}
	}
	if school, err := id.SchoolID(); err == nil {
		add("FieldSchool", school)
	}
	if !id.ExpiresAt.IsZero() {
		add("FieldValidUntil", formatDateTime(id.ExpiresAt))
	}
	if rows[0].value == "" {
		rows = rows[1:]
	}
	return rows
}
