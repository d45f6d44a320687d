package handler

import (
	"errors"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pavelanni/schoolportal/internal/exam"
)

func TestLoginAndDashboard(t *testing.T) {
	p := newPortal(t)
	b := newBrowser(t, p)

	expectRedirect(t, b.get("/"), "/login")

	b.login("student@school.test")
	if b.cookie(sessionCookieName) == "" {
		t.Fatal("no session cookie after login")
	}
	resp := b.get("/")
	if resp.status != http.StatusOK {
		t.Fatalf("dashboard status = %d", resp.status)
	}
	expectBody(t, resp, "Welcome, Meera!")
}

func TestLoginRejected(t *testing.T) {
	p := newPortal(t)

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"wrong password", "student@school.test", "nope"},
		{"unknown user", "ghost@school.test", "secret"},
		{"empty fields", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBrowser(t, p)
			resp := b.post("/login", url.Values{"email": {tt.email}, "password": {tt.password}})
			if resp.status != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", resp.status)
			}
			expectBody(t, resp, "Invalid email or password.")
			if b.cookie(sessionCookieName) != "" {
				t.Error("session cookie set after failed login")
			}
		})
	}
}

func TestCSRFRequired(t *testing.T) {
	p := newPortal(t)
	b := newBrowser(t, p)
	b.get("/login")

	form := url.Values{"email": {"student@school.test"}, "password": {"secret"}, "csrf_token": {"forged"}}
	req, err := http.NewRequest(http.MethodPost, p.srv.URL+"/login", strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp := b.do(req)
	if resp.status != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.status)
	}
	if p.school.requested("POST /auth/login") {
		t.Error("login reached the API without a valid token")
	}
}

func TestRoleGates(t *testing.T) {
	p := newPortal(t)

	tests := []struct {
		email string
		path  string
		want  int
	}{
		{"student@school.test", "/admissions", http.StatusForbidden},
		{"student@school.test", "/tests/new", http.StatusForbidden},
		{"parent@school.test", "/tests", http.StatusForbidden},
		{"teacher@school.test", "/fees", http.StatusForbidden},
		{"principal@school.test", "/admissions", http.StatusOK},
		{"teacher@school.test", "/tests", http.StatusOK},
		{"parent@school.test", "/attendance", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.email+tt.path, func(t *testing.T) {
			b := newBrowser(t, p)
			b.login(tt.email)
			if resp := b.get(tt.path); resp.status != tt.want {
				t.Errorf("GET %s = %d, want %d", tt.path, resp.status, tt.want)
			}
		})
	}
}

func TestAttemptFlow(t *testing.T) {
	p := newPortal(t)
	b := newBrowser(t, p)
	b.login("student@school.test")

	expectBody(t, b.get("/tests"), "Math", "1 minute")

	expectRedirect(t, b.post("/tests/t1/start", nil), "/tests/t1")
	p.nextTicker(t)

	resp := b.get("/tests/t1")
	expectBody(t, resp, "What is 2+2?", "Question 1 of 2")

	expectRedirect(t, b.post("/tests/t1/next", nil), "/tests/t1?notice=blocked")
	expectBody(t, b.get("/tests/t1?notice=blocked"), "Answer this question before moving on.")

	expectRedirect(t, b.post("/tests/t1/answer", url.Values{"index": {"0"}, "option": {"4"}}), "/tests/t1")
	expectRedirect(t, b.post("/tests/t1/next", nil), "/tests/t1")
	expectBody(t, b.get("/tests/t1"), "Capital of India?", "Question 2 of 2")

	expectRedirect(t, b.post("/tests/t1/prev", nil), "/tests/t1")
	expectBody(t, b.get("/tests/t1"), "What is 2+2?")
	b.post("/tests/t1/next", nil)

	// Options outside the question are ignored.
	b.post("/tests/t1/answer", url.Values{"index": {"1"}, "option": {"Paris"}})
	expectRedirect(t, b.post("/tests/t1/next", nil), "/tests/t1?notice=blocked")

	b.post("/tests/t1/answer", url.Values{"index": {"1"}, "option": {"Delhi"}})
	expectRedirect(t, b.post("/tests/t1/next", nil), "/tests/t1?notice=confirm")
	expectBody(t, b.get("/tests/t1?notice=confirm"), "You answered 2 of 2 questions.")

	expectRedirect(t, b.post("/tests/t1/submit", nil), "/tests/t1/result")

	subs := p.school.submitted()
	if len(subs) != 1 {
		t.Fatalf("submissions = %d, want 1", len(subs))
	}
	if want := map[string]string{"0": "4", "1": "Delhi"}; !reflect.DeepEqual(subs[0].Answers, want) {
		t.Errorf("answers = %v, want %v", subs[0].Answers, want)
	}
	if subs[0].StudentID != "st1" {
		t.Errorf("studentId = %q, want st1", subs[0].StudentID)
	}

	expectBody(t, b.get("/tests/t1/result"), "Score: 1", "1 of 2 correct", "Not answered.")
	expectRedirect(t, b.get("/tests/t1"), "/tests/t1/result")

	// A second submit goes straight to the result.
	expectRedirect(t, b.post("/tests/t1/submit", nil), "/tests/t1/result")
	if n := len(p.school.submitted()); n != 1 {
		t.Errorf("submissions after resubmit = %d, want 1", n)
	}
}

func TestStartResumesRunningAttempt(t *testing.T) {
	p := newPortal(t)
	b := newBrowser(t, p)
	b.login("student@school.test")

	b.post("/tests/t1/start", nil)
	p.nextTicker(t)
	b.post("/tests/t1/answer", url.Values{"index": {"0"}, "option": {"4"}})
	b.post("/tests/t1/next", nil)

	expectRedirect(t, b.post("/tests/t1/start", nil), "/tests/t1")
	expectBody(t, b.get("/tests/t1"), "Capital of India?")

	select {
	case <-p.tickers:
		t.Error("resuming started a second countdown")
	default:
	}
}

func TestStartUnknownTest(t *testing.T) {
	p := newPortal(t)
	b := newBrowser(t, p)
	b.login("student@school.test")

	resp := b.post("/tests/t9/start", nil)
	if resp.status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.status)
	}
	expectBody(t, resp, "This test could not be found.")
}

func TestSubmitFailureKeepsAttempt(t *testing.T) {
	p := newPortal(t)
	p.school.set(func(f *fakeSchool) { f.submitMessage = "closed" })
	b := newBrowser(t, p)
	b.login("student@school.test")

	b.post("/tests/t1/start", nil)
	p.nextTicker(t)
	b.post("/tests/t1/answer", url.Values{"index": {"0"}, "option": {"3"}})

	resp := b.post("/tests/t1/submit", nil)
	if resp.status != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.status)
	}
	expectBody(t, resp, "closed", "What is 2+2?")

	runner, ok := p.h.attempts.Get(b.cookie(sessionCookieName), "t1")
	if !ok {
		t.Fatal("attempt dropped after failed submit")
	}
	if runner.State() != exam.StateRunning {
		t.Errorf("state = %v, want running", runner.State())
	}

	p.school.set(func(f *fakeSchool) { f.submitMessage = "" })
	expectRedirect(t, b.post("/tests/t1/submit", nil), "/tests/t1/result")
	if n := len(p.school.submitted()); n != 2 {
		t.Errorf("submissions = %d, want 2", n)
	}
}

func TestMalformedResultShowsNoResult(t *testing.T) {
	p := newPortal(t)
	p.school.set(func(f *fakeSchool) {
		f.result = map[string]any{"success": true, "submission": map[string]any{"score": 2}}
	})
	b := newBrowser(t, p)
	b.login("student@school.test")

	resp := b.get("/tests/t1/result")
	if resp.status != http.StatusOK {
		t.Fatalf("status = %d", resp.status)
	}
	expectBody(t, resp, "No result found for this test.")
	if strings.Contains(resp.body, "unexpected response") {
		t.Error("malformed result raised an alert")
	}
}

func TestExpiryAutoSubmits(t *testing.T) {
	p := newPortal(t)
	b := newBrowser(t, p)
	b.login("student@school.test")

	b.post("/tests/t1/start", nil)
	tk := p.nextTicker(t)
	b.post("/tests/t1/answer", url.Values{"index": {"0"}, "option": {"4"}})

	runner, ok := p.h.attempts.Get(b.cookie(sessionCookieName), "t1")
	if !ok {
		t.Fatal("no attempt")
	}
	events, unsubscribe := runner.Subscribe()
	defer unsubscribe()
	submitted := make(chan struct{})
	go func() {
		for ev := range events {
			if ev.Kind == exam.EventSubmitted {
				close(submitted)
				return
			}
		}
	}()

	for i := 0; i < 60; i++ {
		tk.tick(t)
	}
	select {
	case <-submitted:
	case <-time.After(5 * time.Second):
		t.Fatal("attempt was not submitted on expiry")
	}

	subs := p.school.submitted()
	if len(subs) != 1 {
		t.Fatalf("submissions = %d, want 1", len(subs))
	}
	if want := map[string]string{"0": "4"}; !reflect.DeepEqual(subs[0].Answers, want) {
		t.Errorf("answers = %v, want %v", subs[0].Answers, want)
	}
	expectRedirect(t, b.get("/tests/t1"), "/tests/t1/result")
}

func TestExitStopsCountdown(t *testing.T) {
	p := newPortal(t)
	b := newBrowser(t, p)
	b.login("student@school.test")

	b.post("/tests/t1/start", nil)
	tk := p.nextTicker(t)
	b.post("/tests/t1/answer", url.Values{"index": {"0"}, "option": {"4"}})
	expectBody(t, b.get("/tests/t1"), `action="/tests/t1/exit"`, "Leave test")

	runner, ok := p.h.attempts.Get(b.cookie(sessionCookieName), "t1")
	if !ok {
		t.Fatal("no attempt")
	}
	expectRedirect(t, b.post("/tests/t1/exit", nil), "/tests")

	if _, ok := p.h.attempts.Get(b.cookie(sessionCookieName), "t1"); ok {
		t.Error("attempt still registered after exit")
	}
	select {
	case <-runner.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("countdown still running after exit")
	}
	for i := 0; i < 60; i++ {
		if tk.offer() {
			t.Fatalf("tick %d consumed after exit", i+1)
		}
	}
	if n := len(p.school.submitted()); n != 0 {
		t.Errorf("submissions = %d, want 0", n)
	}
	expectRedirect(t, b.get("/tests/t1"), "/tests")
}

func TestCountdownStream(t *testing.T) {
	p := newPortal(t)
	b := newBrowser(t, p)
	b.login("student@school.test")

	b.post("/tests/t1/start", nil)
	tk := p.nextTicker(t)

	wsURL := "ws" + strings.TrimPrefix(p.srv.URL, "http") + "/tests/t1/countdown"
	header := http.Header{}
	header.Set("Cookie", sessionCookieName+"="+b.cookie(sessionCookieName))
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer resp.Body.Close()
	defer conn.Close()
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatal(err)
	}

	var ev exam.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read first event: %v", err)
	}
	if ev.Kind != exam.EventTick || ev.Remaining != 60 {
		t.Errorf("first event = %+v, want tick 60", ev)
	}

	tk.tick(t)
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read tick: %v", err)
	}
	if ev.Kind != exam.EventTick || ev.Remaining != 59 {
		t.Errorf("event = %+v, want tick 59", ev)
	}
}

func TestCountdownRejectsForeignOrigin(t *testing.T) {
	p := newPortal(t)
	b := newBrowser(t, p)
	b.login("student@school.test")
	b.post("/tests/t1/start", nil)
	p.nextTicker(t)

	wsURL := "ws" + strings.TrimPrefix(p.srv.URL, "http") + "/tests/t1/countdown"
	header := http.Header{}
	header.Set("Cookie", sessionCookieName+"="+b.cookie(sessionCookieName))
	header.Set("Origin", "https://evil.example")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		conn.Close()
		t.Fatal("dial succeeded from a foreign origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v, want 403", resp)
	}
}

func TestExplain(t *testing.T) {
	ex := &fakeExplainer{}
	p := newPortal(t, WithExplainer(ex))
	b := newBrowser(t, p)
	b.login("student@school.test")

	expectBody(t, b.get("/tests/t1/result"), "Explain")

	resp := b.post("/tests/t1/result/explain/1", nil)
	if resp.status != http.StatusOK {
		t.Fatalf("status = %d", resp.status)
	}
	expectBody(t, resp, "Because Delhi is right.")
	ex.mu.Lock()
	if ex.subject != "Math" || ex.chosen != "" || ex.lang != "en" {
		t.Errorf("explainer got subject=%q chosen=%q lang=%q", ex.subject, ex.chosen, ex.lang)
	}
	ex.mu.Unlock()

	if resp := b.post("/tests/t1/result/explain/7", nil); resp.status != http.StatusNotFound {
		t.Errorf("out of range index status = %d, want 404", resp.status)
	}

	ex.mu.Lock()
	ex.err = errors.New("model offline")
	ex.mu.Unlock()
	expectBody(t, b.post("/tests/t1/result/explain/0", nil), "The explanation is not available right now.")
}

func TestExplainDisabled(t *testing.T) {
	p := newPortal(t)
	b := newBrowser(t, p)
	b.login("student@school.test")

	if resp := b.post("/tests/t1/result/explain/0", nil); resp.status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.status)
	}
}

func TestComplaints(t *testing.T) {
	p := newPortal(t)
	b := newBrowser(t, p)
	b.login("student@school.test")

	expectBody(t, b.get("/complaints"), "Broken bench")

	resp := b.post("/complaints", url.Values{"subject": {"Hi"}, "description": {"short"}})
	if resp.status != http.StatusUnprocessableEntity {
		t.Fatalf("invalid complaint status = %d, want 422", resp.status)
	}

	expectRedirect(t, b.post("/complaints", url.Values{
		"subject":     {"Water cooler"},
		"description": {"The cooler on floor two is broken."},
	}), "/complaints")
	expectRedirect(t, b.post("/complaints/cp1/reply", url.Values{"message": {"Still broken"}}), "/complaints")

	p.school.mu.Lock()
	defer p.school.mu.Unlock()
	if len(p.school.complaints) != 1 || p.school.complaints[0]["studentId"] != "st1" {
		t.Errorf("complaints = %v", p.school.complaints)
	}
	if want := []string{"/complaints/cp1/student-reply/st1 Still broken"}; !reflect.DeepEqual(p.school.replies, want) {
		t.Errorf("replies = %v, want %v", p.school.replies, want)
	}
}

func TestParentRecords(t *testing.T) {
	p := newPortal(t)
	b := newBrowser(t, p)
	b.login("parent@school.test")

	expectBody(t, b.get("/attendance?student=st2"), "Attendance: 75%")
	if !p.school.requested("GET /attendance/student/st2") {
		t.Error("attendance not requested for the chosen child")
	}

	b.get("/fees?student=unknown")
	if !p.school.requested("GET /fees/student/st1") {
		t.Error("unknown child did not fall back to the first one")
	}
}

func TestTeacherCreateTest(t *testing.T) {
	p := newPortal(t)
	b := newBrowser(t, p)
	b.login("teacher@school.test")

	form := func(class, duration string) url.Values {
		return url.Values{
			"classId":       {class},
			"subject":       {"Science"},
			"chapterPrompt": {"Plants and photosynthesis"},
			"questionType":  {"mcq"},
			"duration":      {duration},
		}
	}

	if resp := b.post("/tests/new", form("c9", "20")); resp.status != http.StatusForbidden {
		t.Errorf("foreign class status = %d, want 403", resp.status)
	}
	if resp := b.post("/tests/new", form("c2", "soon")); resp.status != http.StatusUnprocessableEntity {
		t.Errorf("bad duration status = %d, want 422", resp.status)
	}
	expectRedirect(t, b.post("/tests/new", form("c2", "20")), "/tests?class=c2")

	p.school.mu.Lock()
	defer p.school.mu.Unlock()
	if len(p.school.createdTests) != 1 || p.school.createdTests[0]["classId"] != "c2" {
		t.Errorf("created tests = %v", p.school.createdTests)
	}
}

func TestLanguageSwitch(t *testing.T) {
	p := newPortal(t)
	b := newBrowser(t, p)
	b.login("student@school.test")

	expectRedirect(t, b.post("/lang", url.Values{"lang": {"hi"}}), "/")
	expectBody(t, b.get("/"), "स्वागत है, Meera!")
}

func TestNetworkErrorAlert(t *testing.T) {
	p := newPortal(t)
	p.school.set(func(f *fakeSchool) { f.notificationsStatus = http.StatusInternalServerError })
	b := newBrowser(t, p)
	b.login("student@school.test")

	resp := b.get("/notifications")
	if resp.status != http.StatusOK {
		t.Fatalf("status = %d", resp.status)
	}
	expectBody(t, resp, "Could not reach the school server.")
}

func TestLogout(t *testing.T) {
	p := newPortal(t)
	b := newBrowser(t, p)
	b.login("student@school.test")
	b.post("/tests/t1/start", nil)
	p.nextTicker(t)
	sid := b.cookie(sessionCookieName)

	expectRedirect(t, b.post("/logout", nil), "/login")
	if _, ok := p.h.attempts.Get(sid, "t1"); ok {
		t.Error("attempt survived logout")
	}
	expectRedirect(t, b.get("/"), "/login")
}
