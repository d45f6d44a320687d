package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/schoolportal/internal/api"
	"github.com/pavelanni/schoolportal/internal/exam"
	appI18n "github.com/pavelanni/schoolportal/internal/i18n"
	"github.com/pavelanni/schoolportal/internal/llm"
	"github.com/pavelanni/schoolportal/internal/model"
	"github.com/pavelanni/schoolportal/internal/store"
)

var schoolUsers = map[string]map[string]any{
	"student@school.test":   {"id": "u1", "name": "Meera", "role": "student", "schoolId": "s1", "classId": "c1", "studentId": "st1"},
	"teacher@school.test":   {"id": "u2", "name": "Ravi", "role": "teacher", "schoolId": "s1", "classes": []any{"c1", "c2"}},
	"parent@school.test":    {"id": "u3", "name": "Anil", "role": "parent", "schoolId": "s1", "children": []any{"st1", "st2"}},
	"principal@school.test": {"id": "u4", "name": "Asha", "role": "principal", "schoolId": "s1"},
}

var mathTest = map[string]any{
	"_id":           "t1",
	"subject":       "Math",
	"chapterPrompt": "Addition",
	"questionType":  "mcq",
	"duration":      1,
	"createdAt":     "2026-10-18T09:00:00Z",
	"questions": []any{
		map[string]any{"question": "What is 2+2?", "options": []string{"3", "4"}},
		map[string]any{"question": "Capital of India?", "options": []string{"Delhi", "Mumbai"}},
	},
}

var gradedMathTest = map[string]any{
	"success":    true,
	"submission": map[string]any{"score": 1, "submittedAt": "2026-10-19T09:01:00Z"},
	"questions": []any{
		map[string]any{"question": "What is 2+2?", "options": []string{"3", "4"}, "correctAnswer": "4"},
		map[string]any{"question": "Capital of India?", "options": []string{"Delhi", "Mumbai"}, "correctAnswer": "Delhi"},
	},
	"answers": []any{"4", nil},
}

type submitBody struct {
	Answers          map[string]string `json:"answers"`
	StudentID        string            `json:"studentId"`
	PerQuestionTimes map[string]int    `json:"perQuestionTimes"`
}

// fakeSchool is an in-process stand-in for the school REST API.
type fakeSchool struct {
	t *testing.T

	mu                  sync.Mutex
	submitMessage       string
	result              map[string]any
	notificationsStatus int
	submissions         []submitBody
	complaints          []map[string]string
	replies             []string
	createdTests        []map[string]any
	paths               []string
}

func newFakeSchool(t *testing.T) *fakeSchool {
	return &fakeSchool{t: t, result: gradedMathTest}
}

func (f *fakeSchool) reply(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		f.t.Errorf("encode response: %v", err)
	}
}

func (f *fakeSchool) decode(r *http.Request, v any) {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		f.t.Errorf("decode %s: %v", r.URL.Path, err)
	}
}

func (f *fakeSchool) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, r.Method+" "+r.URL.Path)

	if r.URL.Path != "/auth/login" && r.Header.Get("Authorization") != "Bearer tok" {
		f.reply(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "no token"})
		return
	}

	switch {
	case r.URL.Path == "/auth/login":
		var body map[string]string
		f.decode(r, &body)
		user, ok := schoolUsers[body["email"]]
		if !ok || body["password"] != "secret" {
			f.reply(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "invalid credentials"})
			return
		}
		f.reply(w, http.StatusOK, map[string]any{"success": true, "token": "tok", "user": user})

	case strings.HasPrefix(r.URL.Path, "/online-test/class/"):
		f.reply(w, http.StatusOK, map[string]any{"success": true, "tests": []any{mathTest}})

	case r.Method == http.MethodPost && r.URL.Path == "/online-test":
		var body map[string]any
		f.decode(r, &body)
		f.createdTests = append(f.createdTests, body)
		created := map[string]any{"_id": "t2", "subject": body["subject"], "duration": body["duration"], "questions": []any{}}
		f.reply(w, http.StatusOK, map[string]any{"success": true, "test": created})

	case r.URL.Path == "/online-test/t1/submit":
		var body submitBody
		f.decode(r, &body)
		f.submissions = append(f.submissions, body)
		if f.submitMessage != "" {
			f.reply(w, http.StatusOK, map[string]any{"success": false, "message": f.submitMessage})
			return
		}
		f.reply(w, http.StatusOK, map[string]any{"success": true})

	case r.URL.Path == "/online-test/t1/my-result/st1":
		f.reply(w, http.StatusOK, f.result)

	case r.URL.Path == "/notifications":
		if f.notificationsStatus != 0 {
			f.reply(w, f.notificationsStatus, map[string]any{"success": false, "message": "db down"})
			return
		}
		f.reply(w, http.StatusOK, map[string]any{"success": true, "notifications": []any{
			map[string]any{"id": "n1", "title": "Sports day", "message": "Friday", "createdAt": "2026-10-18T09:00:00Z"},
		}})

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/complaints/student/"):
		f.reply(w, http.StatusOK, map[string]any{"success": true, "complaints": []any{
			map[string]any{"id": "cp1", "subject": "Broken bench", "description": "Row three", "status": "open"},
		}})

	case r.Method == http.MethodPost && r.URL.Path == "/complaints":
		var body map[string]string
		f.decode(r, &body)
		f.complaints = append(f.complaints, body)
		f.reply(w, http.StatusOK, map[string]any{"success": true})

	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/complaints/"):
		var body map[string]string
		f.decode(r, &body)
		f.replies = append(f.replies, r.URL.Path+" "+body["message"])
		f.reply(w, http.StatusOK, map[string]any{"success": true})

	case strings.HasPrefix(r.URL.Path, "/attendance/student/"):
		f.reply(w, http.StatusOK, map[string]any{"success": true, "attendance": []any{
			map[string]any{"date": "2026-10-16T00:00:00Z", "status": "present"},
			map[string]any{"date": "2026-10-17T00:00:00Z", "status": "absent"},
			map[string]any{"date": "2026-10-18T00:00:00Z", "status": "present"},
			map[string]any{"date": "2026-10-19T00:00:00Z", "status": "present"},
		}})

	case strings.HasPrefix(r.URL.Path, "/fees/student/"):
		f.reply(w, http.StatusOK, map[string]any{"success": true, "fees": map[string]any{
			"total": 1200, "paid": 800, "due": 400,
			"installments": []any{map[string]any{"title": "Term 2", "amount": 400, "paid": false}},
		}})

	case r.URL.Path == "/schools/s1/admissions":
		f.reply(w, http.StatusOK, map[string]any{"success": true, "admissions": []any{
			map[string]any{"id": "a1", "studentName": "Kabir", "className": "5B", "status": "pending"},
		}})

	default:
		f.reply(w, http.StatusNotFound, map[string]any{"success": false, "message": "not found"})
	}
}

func (f *fakeSchool) set(fn func(f *fakeSchool)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeSchool) submitted() []submitBody {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submitBody(nil), f.submissions...)
}

func (f *fakeSchool) requested(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.paths {
		if p == path {
			return true
		}
	}
	return false
}

// manualTicker ticks only when the test says so.
type manualTicker struct{ c chan time.Time }

func (m *manualTicker) C() <-chan time.Time { return m.c }
func (m *manualTicker) Stop()               {}

func (m *manualTicker) tick(t *testing.T) {
	t.Helper()
	select {
	case m.c <- time.Now():
	case <-time.After(2 * time.Second):
		t.Fatal("tick not consumed")
	}
}

// offer sends a tick if the countdown is still listening.
func (m *manualTicker) offer() bool {
	select {
	case m.c <- time.Now():
		return true
	case <-time.After(20 * time.Millisecond):
		return false
	}
}

type fakeExplainer struct {
	mu      sync.Mutex
	subject string
	chosen  string
	lang    string
	err     error
}

func (e *fakeExplainer) Explain(_ context.Context, subject string, q model.Question, chosen, lang string) (*llm.Explanation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subject, e.chosen, e.lang = subject, chosen, lang
	if e.err != nil {
		return nil, e.err
	}
	return &llm.Explanation{Text: "Because " + q.CorrectAnswer + " is right."}, nil
}

type portal struct {
	h       *Handler
	srv     *httptest.Server
	school  *fakeSchool
	tickers chan *manualTicker
}

func newPortal(t *testing.T, opts ...Option) *portal {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("init i18n: %v", err)
	}

	school := newFakeSchool(t)
	apiSrv := httptest.NewServer(school)
	t.Cleanup(apiSrv.Close)

	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	sessions, err := store.NewSessions(context.Background(), st, "test-secret")
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}

	tickers := make(chan *manualTicker, 8)
	opts = append(opts, WithRunnerOptions(exam.WithTicker(func(time.Duration) exam.Ticker {
		tk := &manualTicker{c: make(chan time.Time)}
		tickers <- tk
		return tk
	})))
	h := New(api.New(apiSrv.URL, 5*time.Second), sessions, model.PortalConfig{Lang: "en"}, opts...)
	t.Cleanup(h.Close)

	r := chi.NewRouter()
	r.Use(h.BasePathMiddleware)
	h.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &portal{h: h, srv: srv, school: school, tickers: tickers}
}

func (p *portal) nextTicker(t *testing.T) *manualTicker {
	t.Helper()
	select {
	case tk := <-p.tickers:
		return tk
	case <-time.After(2 * time.Second):
		t.Fatal("no countdown started")
		return nil
	}
}

// browser is a cookie-keeping client that does not follow redirects.
type browser struct {
	t      *testing.T
	base   string
	client *http.Client
}

type response struct {
	status   int
	location string
	body     string
}

func newBrowser(t *testing.T, p *portal) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &browser{
		t:    t,
		base: p.srv.URL,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (b *browser) do(req *http.Request) response {
	b.t.Helper()
	resp, err := b.client.Do(req)
	if err != nil {
		b.t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return response{status: resp.StatusCode, location: resp.Header.Get("Location"), body: string(body)}
}

func (b *browser) get(path string) response {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodGet, b.base+path, nil)
	if err != nil {
		b.t.Fatal(err)
	}
	return b.do(req)
}

// post submits form with the current CSRF token.
func (b *browser) post(path string, form url.Values) response {
	b.t.Helper()
	if b.cookie(csrfCookieName) == "" {
		b.get("/login")
	}
	if form == nil {
		form = url.Values{}
	}
	form.Set("csrf_token", b.cookie(csrfCookieName))
	req, err := http.NewRequest(http.MethodPost, b.base+path, strings.NewReader(form.Encode()))
	if err != nil {
		b.t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

func (b *browser) cookie(name string) string {
	u, _ := url.Parse(b.base)
	for _, c := range b.client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func (b *browser) login(email string) {
	b.t.Helper()
	resp := b.post("/login", url.Values{"email": {email}, "password": {"secret"}})
	if resp.status != http.StatusSeeOther || resp.location != "/" {
		b.t.Fatalf("login %s: status %d location %q body %s", email, resp.status, resp.location, resp.body)
	}
}

func expectRedirect(t *testing.T, resp response, want string) {
	t.Helper()
	if resp.status != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303 (body %s)", resp.status, resp.body)
	}
	if resp.location != want {
		t.Fatalf("location = %q, want %q", resp.location, want)
	}
}

func expectBody(t *testing.T, resp response, wants ...string) {
	t.Helper()
	for _, w := range wants {
		if !strings.Contains(resp.body, w) {
			t.Errorf("body missing %q", w)
		}
	}
}
