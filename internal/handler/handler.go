package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/pavelanni/schoolportal/internal/api"
	"github.com/pavelanni/schoolportal/internal/exam"
	"github.com/pavelanni/schoolportal/internal/handler/views"
	appI18n "github.com/pavelanni/schoolportal/internal/i18n"
	"github.com/pavelanni/schoolportal/internal/llm"
	"github.com/pavelanni/schoolportal/internal/model"
	"github.com/pavelanni/schoolportal/internal/store"
)

// Explainer explains a graded question. *llm.Client implements it.
type Explainer interface {
	Explain(ctx context.Context, subject string, q model.Question, chosen, lang string) (*llm.Explanation, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	api        *api.Client
	sessions   *store.Sessions
	attempts   *exam.Registry
	submitter  *exam.Submitter
	explainer  Explainer
	config     model.PortalConfig
	upgrader   websocket.Upgrader
	runnerOpts []exam.RunnerOption
}

// Option configures a Handler.
type Option func(*Handler)

// WithExplainer enables per-question explanations on the result page.
func WithExplainer(e Explainer) Option {
	return func(h *Handler) { h.explainer = e }
}

// WithRunnerOptions passes options to every attempt runner.
func WithRunnerOptions(opts ...exam.RunnerOption) Option {
	return func(h *Handler) { h.runnerOpts = append(h.runnerOpts, opts...) }
}

// New creates a new Handler.
func New(client *api.Client, sessions *store.Sessions, cfg model.PortalConfig, opts ...Option) *Handler {
	h := &Handler{
		api:       client,
		sessions:  sessions,
		attempts:  exam.NewRegistry(),
		submitter: exam.NewSubmitter(client),
		config:    cfg,
	}
	h.upgrader = buildUpgrader()
	for _, o := range opts {
		o(h)
	}
	return h
}

// Close stops every running attempt.
func (h *Handler) Close() {
	h.attempts.Close()
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Use(appI18n.Middleware)
	r.Use(h.csrfMiddleware)

	r.Get("/login", h.handleLoginPage)
	r.Post("/login", h.handleLogin)
	r.Post("/lang", h.handleLanguage)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Get("/", h.handleDashboard)
		r.Post("/logout", h.handleLogout)
		r.Get("/notifications", h.handleNotifications)
		r.Get("/id-card", h.handleIDCard)

		r.Group(func(r chi.Router) {
			r.Use(requireRole(model.RoleStudent, model.RoleTeacher))
			r.Get("/tests", h.handleTestList)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireRole(model.RoleTeacher))
			r.Get("/tests/new", h.handleNewTestPage)
			r.Post("/tests/new", h.handleCreateTest)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireRole(model.RoleStudent))
			r.Route("/tests/{testID}", func(r chi.Router) {
				r.Post("/start", h.handleStartTest)
				r.Get("/", h.handleAttemptPage)
				r.Post("/answer", h.attemptAction(answerAction))
				r.Post("/next", h.attemptAction(nextAction))
				r.Post("/prev", h.attemptAction(previousAction))
				r.Post("/reset", h.attemptAction(resetAction))
				r.Post("/submit", h.handleSubmit)
				r.Post("/exit", h.handleExitTest)
				r.Get("/countdown", h.handleCountdown)
				r.Get("/result", h.handleResult)
				r.Post("/result/explain/{index}", h.handleExplain)
			})
			r.Get("/complaints", h.handleComplaints)
			r.Post("/complaints", h.handleCreateComplaint)
			r.Post("/complaints/{complaintID}/reply", h.handleReplyComplaint)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireRole(model.RoleStudent, model.RoleParent))
			r.Get("/attendance", h.handleAttendance)
			r.Get("/fees", h.handleFees)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireRole(model.RolePrincipal))
			r.Get("/admissions", h.handleAdmissions)
		})
	})
}

// BasePathMiddleware stores the configured base path in the request context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

func render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

// alertFor converts an operation error into the localized alert text.
func alertFor(ctx context.Context, err error) string {
	var missing *model.MissingIdentityError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &missing):
		return appI18n.T(ctx, "AlertMissingIdentity")
	case errors.Is(err, exam.ErrSubmitInFlight):
		return appI18n.T(ctx, "AlertSubmitting")
	case errors.Is(err, exam.ErrAlreadySubmitted):
		return appI18n.T(ctx, "AlertAlreadySubmitted")
	case errors.Is(err, exam.ErrNoAttempt):
		return appI18n.T(ctx, "AlertNoAttempt")
	case errors.Is(err, api.ErrTestNotFound):
		return appI18n.T(ctx, "AlertTestNotFound")
	}
	if msg := exam.AlertText(err); msg != "" {
		return msg
	}
	var apiErr *api.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	switch {
	case api.IsMalformed(err):
		return appI18n.T(ctx, "AlertMalformed")
	case api.IsNetwork(err):
		return appI18n.T(ctx, "AlertNetwork")
	}
	return appI18n.T(ctx, "AlertGeneric")
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	id := model.IdentityFromContext(r.Context())
	render(w, r, http.StatusOK, views.DashboardPage(id))
}

func (h *Handler) handleIDCard(w http.ResponseWriter, r *http.Request) {
	id := model.IdentityFromContext(r.Context())
	render(w, r, http.StatusOK, views.IDCardPage(id))
}

// handleLanguage stores the chosen language in a cookie and returns to the
// referring page.
func (h *Handler) handleLanguage(w http.ResponseWriter, r *http.Request) {
	lang := appI18n.Match(r.FormValue("lang"))
	http.SetCookie(w, &http.Cookie{
		Name:     appI18n.CookieName,
		Value:    lang,
		Path:     h.cookiePath(),
		MaxAge:   365 * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

func intParam(r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(r.FormValue(name))
	return v, err == nil
}
