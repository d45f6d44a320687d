package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/schoolportal/internal/handler/views"
	"github.com/pavelanni/schoolportal/internal/model"
	"github.com/pavelanni/schoolportal/internal/validator"
)

// studentFor returns the student whose records are shown. Parents pick one
// of their children with the "student" query value.
func studentFor(r *http.Request, id *model.Identity) (string, []string, error) {
	if p, ok := id.Profile.(model.ParentProfile); ok {
		if len(p.ChildIDs) == 0 {
			return "", nil, &model.MissingIdentityError{Field: "student_id"}
		}
		want := r.URL.Query().Get("student")
		for _, c := range p.ChildIDs {
			if c == want {
				return c, p.ChildIDs, nil
			}
		}
		return p.ChildIDs[0], p.ChildIDs, nil
	}
	studentID, err := id.StudentID()
	return studentID, nil, err
}

func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	items, err := h.api.ListNotifications(ctx, model.IdentityFromContext(ctx))
	if err != nil {
		slog.Error("failed to list notifications", "error", err)
	}
	render(w, r, http.StatusOK, views.NotificationsPage(items, alertFor(ctx, err)))
}

func (h *Handler) handleComplaints(w http.ResponseWriter, r *http.Request) {
	h.renderComplaints(w, r, http.StatusOK, model.NewComplaint{}, nil, "")
}

func (h *Handler) renderComplaints(w http.ResponseWriter, r *http.Request, status int, form model.NewComplaint, errs map[string]string, alert string) {
	ctx := r.Context()
	id := model.IdentityFromContext(ctx)
	studentID, err := id.StudentID()
	if err != nil {
		render(w, r, http.StatusOK, views.ComplaintsPage(nil, form, errs, alertFor(ctx, err)))
		return
	}
	items, err := h.api.ListComplaints(ctx, id, studentID)
	if err != nil {
		slog.Error("failed to list complaints", "error", err)
		if alert == "" {
			alert = alertFor(ctx, err)
		}
	}
	render(w, r, status, views.ComplaintsPage(items, form, errs, alert))
}

func (h *Handler) handleCreateComplaint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := model.IdentityFromContext(ctx)
	studentID, err := id.StudentID()
	if err != nil {
		h.renderComplaints(w, r, http.StatusOK, model.NewComplaint{}, nil, alertFor(ctx, err))
		return
	}

	form := model.NewComplaint{
		StudentID:   studentID,
		Subject:     strings.TrimSpace(r.FormValue("subject")),
		Description: strings.TrimSpace(r.FormValue("description")),
	}
	if err := validator.Struct(form); err != nil {
		h.renderComplaints(w, r, http.StatusUnprocessableEntity, form, validator.TranslateErrors(err), "")
		return
	}
	if err := h.api.CreateComplaint(ctx, id, form); err != nil {
		slog.Error("failed to create complaint", "error", err)
		h.renderComplaints(w, r, http.StatusOK, form, nil, alertFor(ctx, err))
		return
	}
	http.Redirect(w, r, h.path("/complaints"), http.StatusSeeOther)
}

func (h *Handler) handleReplyComplaint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := model.IdentityFromContext(ctx)
	studentID, err := id.StudentID()
	if err != nil {
		h.renderComplaints(w, r, http.StatusOK, model.NewComplaint{}, nil, alertFor(ctx, err))
		return
	}
	message := strings.TrimSpace(r.FormValue("message"))
	if message == "" {
		http.Redirect(w, r, h.path("/complaints"), http.StatusSeeOther)
		return
	}
	complaintID := chi.URLParam(r, "complaintID")
	if err := h.api.ReplyComplaint(ctx, id, complaintID, studentID, message); err != nil {
		slog.Error("failed to reply to complaint", "complaint_id", complaintID, "error", err)
		h.renderComplaints(w, r, http.StatusOK, model.NewComplaint{}, nil, alertFor(ctx, err))
		return
	}
	http.Redirect(w, r, h.path("/complaints"), http.StatusSeeOther)
}

func (h *Handler) handleAttendance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := model.IdentityFromContext(ctx)
	studentID, children, err := studentFor(r, id)
	if err != nil {
		render(w, r, http.StatusOK, views.AttendancePage(nil, nil, "", alertFor(ctx, err)))
		return
	}
	records, err := h.api.StudentAttendance(ctx, id, studentID)
	if err != nil {
		slog.Error("failed to load attendance", "student_id", studentID, "error", err)
	}
	render(w, r, http.StatusOK, views.AttendancePage(records, children, studentID, alertFor(ctx, err)))
}

func (h *Handler) handleFees(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := model.IdentityFromContext(ctx)
	studentID, children, err := studentFor(r, id)
	if err != nil {
		render(w, r, http.StatusOK, views.FeesPage(nil, nil, "", alertFor(ctx, err)))
		return
	}
	fees, err := h.api.StudentFees(ctx, id, studentID)
	if err != nil {
		slog.Error("failed to load fees", "student_id", studentID, "error", err)
	}
	render(w, r, http.StatusOK, views.FeesPage(fees, children, studentID, alertFor(ctx, err)))
}
