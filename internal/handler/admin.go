package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pavelanni/schoolportal/internal/handler/views"
	"github.com/pavelanni/schoolportal/internal/model"
	"github.com/pavelanni/schoolportal/internal/validator"
)

func teacherClasses(id *model.Identity) []string {
	if p, ok := id.Profile.(model.TeacherProfile); ok {
		return p.ClassIDs
	}
	return nil
}

func (h *Handler) handleNewTestPage(w http.ResponseWriter, r *http.Request) {
	id := model.IdentityFromContext(r.Context())
	form := model.NewTest{
		ClassID:      r.URL.Query().Get("class"),
		QuestionType: "mcq",
		Duration:     30,
	}
	render(w, r, http.StatusOK, views.NewTestPage(form, teacherClasses(id), nil, ""))
}

// handleCreateTest publishes a test to one of the teacher's classes.
func (h *Handler) handleCreateTest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := model.IdentityFromContext(ctx)
	classes := teacherClasses(id)

	form := model.NewTest{
		ClassID:       r.FormValue("classId"),
		Subject:       strings.TrimSpace(r.FormValue("subject")),
		ChapterPrompt: strings.TrimSpace(r.FormValue("chapterPrompt")),
		QuestionType:  r.FormValue("questionType"),
	}
	duration, err := strconv.Atoi(r.FormValue("duration"))
	if err != nil {
		render(w, r, http.StatusUnprocessableEntity, views.NewTestPage(form, classes,
			map[string]string{"duration": "duration must be a whole number of minutes"}, ""))
		return
	}
	form.Duration = duration

	if err := validator.Struct(form); err != nil {
		render(w, r, http.StatusUnprocessableEntity, views.NewTestPage(form, classes, validator.TranslateErrors(err), ""))
		return
	}
	if !allowedClass(form.ClassID, classes) {
		render(w, r, http.StatusForbidden, views.NewTestPage(form, classes,
			map[string]string{"classId": "you do not teach this class"}, ""))
		return
	}

	test, err := h.api.CreateTest(ctx, id, form)
	if err != nil {
		slog.Error("failed to create test", "class_id", form.ClassID, "error", err)
		render(w, r, http.StatusOK, views.NewTestPage(form, classes, nil, alertFor(ctx, err)))
		return
	}
	slog.Info("created test", "test_id", test.ID, "class_id", form.ClassID, "questions", len(test.Questions))
	http.Redirect(w, r, h.path("/tests?class="+url.QueryEscape(form.ClassID)), http.StatusSeeOther)
}

func allowedClass(classID string, classes []string) bool {
	for _, c := range classes {
		if c == classID {
			return true
		}
	}
	return false
}

func (h *Handler) handleAdmissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := model.IdentityFromContext(ctx)
	schoolID, err := id.SchoolID()
	if err != nil {
		render(w, r, http.StatusOK, views.AdmissionsPage(nil, alertFor(ctx, err)))
		return
	}
	items, err := h.api.ListAdmissions(ctx, id, schoolID)
	if err != nil {
		slog.Error("failed to list admissions", "school_id", schoolID, "error", err)
	}
	render(w, r, http.StatusOK, views.AdmissionsPage(items, alertFor(ctx, err)))
}
