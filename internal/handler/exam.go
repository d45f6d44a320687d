package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/schoolportal/internal/api"
	"github.com/pavelanni/schoolportal/internal/exam"
	"github.com/pavelanni/schoolportal/internal/handler/views"
	appI18n "github.com/pavelanni/schoolportal/internal/i18n"
	"github.com/pavelanni/schoolportal/internal/model"
)

const submitTimeout = 30 * time.Second

// classFor returns the class whose tests are shown and, for teachers, every
// class they teach. A teacher picks a class with the "class" query value.
func classFor(r *http.Request, id *model.Identity) (string, []string, error) {
	if p, ok := id.Profile.(model.TeacherProfile); ok {
		if len(p.ClassIDs) == 0 {
			return "", nil, &model.MissingIdentityError{Field: "class_id"}
		}
		want := r.URL.Query().Get("class")
		for _, c := range p.ClassIDs {
			if c == want {
				return c, p.ClassIDs, nil
			}
		}
		return p.ClassIDs[0], p.ClassIDs, nil
	}
	classID, err := id.ClassID()
	return classID, nil, err
}

func (h *Handler) handleTestList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := model.IdentityFromContext(ctx)

	classID, classes, err := classFor(r, id)
	if err != nil {
		render(w, r, http.StatusOK, views.TestsPage(nil, id.Role(), "", nil, alertFor(ctx, err)))
		return
	}
	tests, err := h.api.ListClassTests(ctx, id, classID)
	if err != nil {
		slog.Error("failed to list tests", "class_id", classID, "error", err)
		render(w, r, http.StatusOK, views.TestsPage(nil, id.Role(), classID, classes, alertFor(ctx, err)))
		return
	}
	render(w, r, http.StatusOK, views.TestsPage(tests, id.Role(), classID, classes, ""))
}

func (h *Handler) runner(r *http.Request) (*exam.Runner, bool) {
	return h.attempts.Get(model.SessionIDFromContext(r.Context()), chi.URLParam(r, "testID"))
}

func (h *Handler) attemptPath(testID string) string {
	return h.path("/tests/" + testID)
}

// handleStartTest begins an attempt, or resumes the one in progress.
func (h *Handler) handleStartTest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := model.IdentityFromContext(ctx)
	sid := model.SessionIDFromContext(ctx)
	testID := chi.URLParam(r, "testID")

	if existing, ok := h.attempts.Get(sid, testID); ok {
		switch existing.State() {
		case exam.StateRunning, exam.StateSubmitting:
			http.Redirect(w, r, h.attemptPath(testID), http.StatusSeeOther)
			return
		}
	}

	classID, err := id.ClassID()
	if err != nil {
		render(w, r, http.StatusOK, views.ErrorPage(alertFor(ctx, err)))
		return
	}
	test, err := h.api.FindClassTest(ctx, id, classID, testID)
	if err != nil {
		slog.Error("failed to load test", "test_id", testID, "error", err)
		status := http.StatusOK
		if errors.Is(err, api.ErrTestNotFound) {
			status = http.StatusNotFound
		}
		render(w, r, status, views.ErrorPage(alertFor(ctx, err)))
		return
	}

	runner := exam.NewRunner(*test, id, h.submitter, h.runnerOpts...)
	runner.Begin()
	h.attempts.Put(sid, testID, runner)
	http.Redirect(w, r, h.attemptPath(testID), http.StatusSeeOther)
}

func (h *Handler) handleAttemptPage(w http.ResponseWriter, r *http.Request) {
	runner, ok := h.runner(r)
	if !ok {
		http.Redirect(w, r, h.path("/tests"), http.StatusSeeOther)
		return
	}
	if runner.State() == exam.StateSubmitted {
		http.Redirect(w, r, h.attemptPath(runner.Test().ID)+"/result", http.StatusSeeOther)
		return
	}
	alert := ""
	if err := runner.LastError(); err != nil {
		alert = alertFor(r.Context(), err)
	}
	h.renderAttempt(w, r, runner, r.URL.Query().Get("notice"), alert)
}

func (h *Handler) renderAttempt(w http.ResponseWriter, r *http.Request, runner *exam.Runner, notice, alert string) {
	render(w, r, http.StatusOK, views.AttemptPage(views.AttemptView{
		Test:      runner.Test(),
		Snap:      runner.Snapshot(),
		State:     runner.State(),
		Remaining: runner.Remaining(),
		Expired:   runner.Expired(),
		Notice:    notice,
		Alert:     alert,
	}))
}

// attemptAction wraps the navigation handlers: it resolves the runner and
// redirects back to the question page with the returned notice.
func (h *Handler) attemptAction(act func(r *http.Request, runner *exam.Runner) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runner, ok := h.runner(r)
		if !ok {
			http.Redirect(w, r, h.path("/tests"), http.StatusSeeOther)
			return
		}
		target := h.attemptPath(runner.Test().ID)
		if notice := act(r, runner); notice != "" {
			target += "?notice=" + notice
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
	}
}

func answerAction(r *http.Request, runner *exam.Runner) string {
	index, ok := intParam(r, "index")
	if !ok {
		return ""
	}
	if !runner.Answer(index, r.FormValue("option")) {
		slog.Debug("answer ignored", "attempt_id", runner.AttemptID(), "index", index)
	}
	return ""
}

func nextAction(_ *http.Request, runner *exam.Runner) string {
	switch runner.Next() {
	case exam.NavBlocked:
		return views.NoticeBlocked
	case exam.NavReadyToSubmit:
		return views.NoticeConfirm
	}
	return ""
}

func previousAction(_ *http.Request, runner *exam.Runner) string {
	runner.Previous()
	return ""
}

func resetAction(_ *http.Request, runner *exam.Runner) string {
	runner.Reset()
	return ""
}

// handleExitTest abandons the attempt: its countdown stops and nothing is
// submitted.
func (h *Handler) handleExitTest(w http.ResponseWriter, r *http.Request) {
	runner, ok := h.runner(r)
	if !ok {
		http.Redirect(w, r, h.path("/tests"), http.StatusSeeOther)
		return
	}
	testID := runner.Test().ID
	if runner.State() == exam.StateSubmitting {
		http.Redirect(w, r, h.attemptPath(testID), http.StatusSeeOther)
		return
	}
	h.attempts.Remove(model.SessionIDFromContext(r.Context()), testID)
	slog.Info("attempt abandoned", "attempt_id", runner.AttemptID(), "test_id", testID)
	http.Redirect(w, r, h.path("/tests"), http.StatusSeeOther)
}

// handleSubmit posts the attempt. A failed submission keeps the student on
// the question page with the alert; the attempt and its countdown go on.
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	runner, ok := h.runner(r)
	if !ok {
		http.Redirect(w, r, h.path("/tests"), http.StatusSeeOther)
		return
	}
	resultPath := h.attemptPath(runner.Test().ID) + "/result"

	// the submission outlives a dropped connection
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), submitTimeout)
	defer cancel()

	if _, err := runner.Submit(ctx); err != nil {
		if errors.Is(err, exam.ErrAlreadySubmitted) {
			http.Redirect(w, r, resultPath, http.StatusSeeOther)
			return
		}
		slog.Warn("submission failed", "attempt_id", runner.AttemptID(), "test_id", runner.Test().ID, "error", err)
		h.renderAttempt(w, r, runner, "", alertFor(r.Context(), err))
		return
	}
	http.Redirect(w, r, resultPath, http.StatusSeeOther)
}

// loadResult returns the graded result of testID, from the attempt's
// receipt when this session submitted it, otherwise from the API.
func (h *Handler) loadResult(r *http.Request) (*model.Result, error) {
	if runner, ok := h.runner(r); ok {
		if rc := runner.Receipt(); rc != nil && rc.Result != nil {
			return rc.Result, nil
		}
	}
	ctx := r.Context()
	id := model.IdentityFromContext(ctx)
	studentID, err := id.StudentID()
	if err != nil {
		return nil, err
	}
	return h.api.FetchResult(ctx, id, chi.URLParam(r, "testID"), studentID)
}

// subjectFor returns the subject of testID, or "" when it cannot be found.
func (h *Handler) subjectFor(r *http.Request) string {
	if runner, ok := h.runner(r); ok {
		return runner.Test().Subject
	}
	ctx := r.Context()
	id := model.IdentityFromContext(ctx)
	classID, err := id.ClassID()
	if err != nil {
		return ""
	}
	test, err := h.api.FindClassTest(ctx, id, classID, chi.URLParam(r, "testID"))
	if err != nil {
		slog.Debug("subject lookup failed", "error", err)
		return ""
	}
	return test.Subject
}

// resultAlert is empty for a missing or unreadable result; the page then
// just says there is no result.
func resultAlert(ctx context.Context, err error) string {
	if api.IsMalformed(err) || errors.Is(err, exam.ErrNoResult) {
		return ""
	}
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return ""
	}
	return alertFor(ctx, err)
}

func (h *Handler) handleResult(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := h.loadResult(r)
	if err != nil {
		slog.Warn("failed to load result", "test_id", chi.URLParam(r, "testID"), "error", err)
		render(w, r, http.StatusOK, views.NoResultPage(resultAlert(ctx, err)))
		return
	}
	view, err := exam.BuildResultView(res)
	if err != nil {
		render(w, r, http.StatusOK, views.NoResultPage(""))
		return
	}
	subject := ""
	if runner, ok := h.runner(r); ok {
		subject = runner.Test().Subject
	}
	render(w, r, http.StatusOK, views.ResultPage(view, subject, h.explainer != nil))
}

// handleExplain returns an explanation fragment for one graded question.
func (h *Handler) handleExplain(w http.ResponseWriter, r *http.Request) {
	if h.explainer == nil {
		http.NotFound(w, r)
		return
	}
	ctx := r.Context()
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		http.Error(w, "invalid question index", http.StatusBadRequest)
		return
	}
	res, err := h.loadResult(r)
	if err != nil {
		render(w, r, http.StatusOK, views.Alert(resultAlertOrDefault(ctx, err)))
		return
	}
	if index < 0 || index >= len(res.Questions) {
		http.NotFound(w, r)
		return
	}
	var chosen string
	if index < len(res.Answers) {
		chosen = res.Answers[index]
	}

	ex, err := h.explainer.Explain(ctx, h.subjectFor(r), res.Questions[index], chosen, appI18n.Lang(ctx))
	if err != nil {
		slog.Error("explanation failed", "test_id", res.TestID, "index", index, "error", err)
		render(w, r, http.StatusOK, views.Alert(appI18n.T(ctx, "AlertExplainFailed")))
		return
	}
	render(w, r, http.StatusOK, views.Explanation(ex.Text))
}

func resultAlertOrDefault(ctx context.Context, err error) string {
	if msg := resultAlert(ctx, err); msg != "" {
		return msg
	}
	return appI18n.T(ctx, "NoResult")
}
