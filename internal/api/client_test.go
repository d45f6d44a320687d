package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pavelanni/schoolportal/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL, 5*time.Second)
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

var student = &model.Identity{
	Token:   "tok-123",
	Profile: model.StudentProfile{UserID: "u1", StudentID: "st1", ClassID: "c1"},
}

func TestLoginNormalizesRoles(t *testing.T) {
	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "from-token",
		"exp": exp.Unix(),
	}).SignedString([]byte("irrelevant"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	tests := []struct {
		name    string
		user    map[string]any
		want    model.Profile
		wantErr bool
	}{
		{
			name: "student with mongo ids",
			user: map[string]any{"_id": "u1", "name": "Meera", "role": "Student",
				"schools": []any{map[string]any{"_id": "s1"}}, "classId": "c1"},
			want: model.StudentProfile{UserID: "u1", Name: "Meera", StudentID: "u1", SchoolID: "s1", ClassID: "c1"},
		},
		{
			name: "teacher with bare class ids",
			user: map[string]any{"id": "u2", "name": "Ravi", "role": "teacher",
				"schoolId": "s1", "classes": []any{"c1", map[string]any{"id": "c2"}}},
			want: model.TeacherProfile{UserID: "u2", Name: "Ravi", SchoolID: "s1", ClassIDs: []string{"c1", "c2"}},
		},
		{
			name: "principal id from token subject",
			user: map[string]any{"name": "Asha", "role": "principal", "schools": []any{"s7"}},
			want: model.PrincipalProfile{UserID: "from-token", Name: "Asha", SchoolID: "s7"},
		},
		{
			name: "parent children",
			user: map[string]any{"id": "u4", "role": "parent", "children": []any{"st1", "st2"}},
			want: model.ParentProfile{UserID: "u4", ChildIDs: []string{"st1", "st2"}},
		},
		{
			name:    "unknown role",
			user:    map[string]any{"id": "u5", "role": "janitor"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/auth/login" {
					t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
				}
				if r.Header.Get("Authorization") != "" {
					t.Error("login must not send a bearer token")
				}
				writeJSON(t, w, http.StatusOK, map[string]any{"success": true, "token": signed, "user": tt.user})
			})

			id, err := c.Login(context.Background(), "a@b.c", "pw")
			if tt.wantErr {
				if !IsMalformed(err) {
					t.Fatalf("expected MalformedResponseError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Login: %v", err)
			}
			if !reflect.DeepEqual(id.Profile, tt.want) {
				t.Errorf("profile = %#v, want %#v", id.Profile, tt.want)
			}
			if !id.ExpiresAt.Equal(exp) {
				t.Errorf("expiry = %v, want %v", id.ExpiresAt, exp)
			}
		})
	}
}

func TestLoginMissingToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"success": true})
	})
	_, err := c.Login(context.Background(), "a@b.c", "pw")
	if !IsMalformed(err) {
		t.Fatalf("expected MalformedResponseError, got %v", err)
	}
}

func TestRequestHeaders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("Authorization = %q", got)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("missing X-Request-ID")
		}
		writeJSON(t, w, http.StatusOK, map[string]any{"success": true, "notifications": []any{}})
	})
	if _, err := c.ListNotifications(context.Background(), student); err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
}

func TestMissingTokenAbortsBeforeNetwork(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	_, err := c.ListNotifications(context.Background(), &model.Identity{Profile: model.StudentProfile{}})
	var mie *model.MissingIdentityError
	if !errors.As(err, &mie) {
		t.Fatalf("expected MissingIdentityError, got %v", err)
	}
	if called {
		t.Error("request must not be sent without a token")
	}
}

func TestListClassTestsSortsAndSkipsMalformed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/online-test/class/c1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		writeJSON(t, w, http.StatusOK, map[string]any{
			"success": true,
			"tests": []any{
				map[string]any{"_id": "old", "subject": "Math", "duration": "30", "createdAt": "2026-01-01T00:00:00Z",
					"questions": []any{map[string]any{"question": "2+2?", "options": []string{"3", "4"}}}},
				map[string]any{"_id": "new", "subject": "Science", "duration": 0, "createdAt": "2026-03-01T00:00:00Z"},
				map[string]any{"subject": "NoID", "createdAt": "2026-04-01T00:00:00Z"},
				map[string]any{"id": "mid", "subject": "History", "duration": nil, "createdAt": "2026-02-01T00:00:00Z"},
			},
		})
	})

	tests, err := c.ListClassTests(context.Background(), student, "c1")
	if err != nil {
		t.Fatalf("ListClassTests: %v", err)
	}
	var ids []string
	for _, tt := range tests {
		ids = append(ids, tt.ID)
	}
	if want := []string{"new", "mid", "old"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("order = %v, want %v", ids, want)
	}
	if tests[2].Duration != 30 {
		t.Errorf("string duration not normalized: %d", tests[2].Duration)
	}
	if tests[2].Questions[0].Text != "2+2?" {
		t.Errorf("question text = %q", tests[2].Questions[0].Text)
	}
}

func TestListClassTestsMissingField(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"success": true})
	})
	_, err := c.ListClassTests(context.Background(), student, "c1")
	if !IsMalformed(err) {
		t.Fatalf("expected MalformedResponseError, got %v", err)
	}
}

func TestSubmitTestPayloadRoundTrip(t *testing.T) {
	started := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	ended := started.Add(20 * time.Second)
	sub := model.TestSubmission{
		Answers:          map[int]string{0: "B", 1: "A"},
		StudentID:        "st1",
		PerQuestionTimes: map[int]int{0: 12, 1: 8},
		StartedAt:        started,
		EndedAt:          ended,
	}

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/online-test/t1/submit" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var got model.TestSubmission
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if !reflect.DeepEqual(got.Answers, sub.Answers) {
			t.Errorf("answers = %v, want %v", got.Answers, sub.Answers)
		}
		if !reflect.DeepEqual(got.PerQuestionTimes, sub.PerQuestionTimes) {
			t.Errorf("times = %v, want %v", got.PerQuestionTimes, sub.PerQuestionTimes)
		}
		if got.StudentID != "st1" || !got.StartedAt.Equal(started) || !got.EndedAt.Equal(ended) {
			t.Errorf("body = %+v", got)
		}
		writeJSON(t, w, http.StatusOK, map[string]any{"success": true})
	})

	if err := c.SubmitTest(context.Background(), student, "t1", sub); err != nil {
		t.Fatalf("SubmitTest: %v", err)
	}
}

func TestSubmitTestErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   map[string]any
		check  func(t *testing.T, err error)
	}{
		{
			name:   "server rejects",
			status: http.StatusOK,
			body:   map[string]any{"success": false, "message": "closed"},
			check: func(t *testing.T, err error) {
				var ae *APIError
				if !errors.As(err, &ae) || ae.Message != "closed" {
					t.Errorf("expected APIError closed, got %v", err)
				}
			},
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   map[string]any{"message": "db down"},
			check: func(t *testing.T, err error) {
				var ne *NetworkError
				if !errors.As(err, &ne) || ne.StatusCode != 500 || ne.Message != "db down" {
					t.Errorf("expected NetworkError 500, got %v", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(t, w, tt.status, tt.body)
			})
			err := c.SubmitTest(context.Background(), student, "t1", model.TestSubmission{})
			tt.check(t, err)
		})
	}
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := New(url, time.Second)
	err := c.SubmitTest(context.Background(), student, "t1", model.TestSubmission{})
	if !IsNetwork(err) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
}

func TestFetchResult(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/online-test/t1/my-result/st1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		writeJSON(t, w, http.StatusOK, map[string]any{
			"success":    true,
			"submission": map[string]any{"score": 1, "submittedAt": "2026-10-19T09:01:00Z"},
			"questions": []any{
				map[string]any{"question": "Q1", "options": []string{"A", "B"}, "correctAnswer": "B"},
				map[string]any{"question": "Q2", "options": []string{"A", "B"}, "correctAnswer": "A"},
			},
			"answers": []any{"B", nil},
		})
	})

	res, err := c.FetchResult(context.Background(), student, "t1", "st1")
	if err != nil {
		t.Fatalf("FetchResult: %v", err)
	}
	if res.Score != 1 || len(res.Questions) != 2 {
		t.Errorf("result = %+v", res)
	}
	if !reflect.DeepEqual(res.Answers, []string{"B", ""}) {
		t.Errorf("answers = %q", res.Answers)
	}
}

func TestFetchResultMissingQuestions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"success": true, "submission": map[string]any{"score": 0}})
	})
	_, err := c.FetchResult(context.Background(), student, "t1", "st1")
	if !IsMalformed(err) {
		t.Fatalf("expected MalformedResponseError, got %v", err)
	}
}

func TestParseAnswers(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		n       int
		want    []string
		wantErr bool
	}{
		{"absent", ``, 2, []string{"", ""}, false},
		{"null", `null`, 2, []string{"", ""}, false},
		{"array of strings", `["A","B"]`, 2, []string{"A", "B"}, false},
		{"array longer than questions", `["A","B","C"]`, 2, []string{"A", "B"}, false},
		{"array of objects", `[{"answer":"A"},{"selectedOption":"C"}]`, 2, []string{"A", "C"}, false},
		{"object by index", `{"1":"D"}`, 2, []string{"", "D"}, false},
		{"bad index", `{"x":"D"}`, 2, nil, true},
		{"wrong type", `42`, 2, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAnswers(json.RawMessage(tt.raw), tt.n)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStudentRecords(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/attendance/student/st1":
			writeJSON(t, w, http.StatusOK, map[string]any{"success": true, "attendance": []any{
				map[string]any{"date": "2026-10-01T00:00:00Z", "status": "present"},
				map[string]any{"date": "2026-10-02T00:00:00Z", "status": "absent"},
			}})
		case "/fees/student/st1":
			writeJSON(t, w, http.StatusOK, map[string]any{"success": true, "fees": map[string]any{
				"total": 1000, "paid": 400, "due": 600,
			}})
		case "/complaints/c9/student-reply/st1":
			if r.Method != http.MethodPost {
				t.Errorf("reply method = %s", r.Method)
			}
			writeJSON(t, w, http.StatusOK, map[string]any{"success": true})
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ctx := context.Background()
	att, err := c.StudentAttendance(ctx, student, "st1")
	if err != nil {
		t.Fatalf("StudentAttendance: %v", err)
	}
	if len(att) != 2 || att[0].Status != model.AttendanceAbsent {
		t.Errorf("attendance not sorted newest first: %+v", att)
	}

	fees, err := c.StudentFees(ctx, student, "st1")
	if err != nil {
		t.Fatalf("StudentFees: %v", err)
	}
	if fees.Due != 600 {
		t.Errorf("due = %v", fees.Due)
	}

	if err := c.ReplyComplaint(ctx, student, "c9", "st1", "thanks"); err != nil {
		t.Fatalf("ReplyComplaint: %v", err)
	}
}
