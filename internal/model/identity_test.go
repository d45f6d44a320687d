package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestIdentityJSONVariants(t *testing.T) {
	exp := time.Date(2026, 10, 20, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		profile Profile
	}{
		{"principal", PrincipalProfile{UserID: "u1", Name: "Asha", SchoolID: "s1"}},
		{"teacher", TeacherProfile{UserID: "u2", Name: "Ravi", SchoolID: "s1", ClassIDs: []string{"c1", "c2"}}},
		{"student", StudentProfile{UserID: "u3", Name: "Meera", StudentID: "st3", SchoolID: "s1", ClassID: "c1"}},
		{"parent", ParentProfile{UserID: "u4", Name: "Kiran", SchoolID: "s1", ChildIDs: []string{"st3"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := Identity{Token: "tok", ExpiresAt: exp, Profile: tt.profile}
			data, err := json.Marshal(in)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			var out Identity
			if err := json.Unmarshal(data, &out); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if out.Role() != tt.profile.Role() {
				t.Errorf("role = %q, want %q", out.Role(), tt.profile.Role())
			}
			if out.Profile.DisplayName() != tt.profile.DisplayName() {
				t.Errorf("name = %q, want %q", out.Profile.DisplayName(), tt.profile.DisplayName())
			}
			if !out.ExpiresAt.Equal(exp) || out.Token != "tok" {
				t.Errorf("token/expiry not preserved: %+v", out)
			}
		})
	}
}

func TestIdentityUnknownRole(t *testing.T) {
	var id Identity
	err := json.Unmarshal([]byte(`{"token":"x","role":"janitor","profile":{}}`), &id)
	if err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestStudentIDAccessor(t *testing.T) {
	student := &Identity{Token: "t", Profile: StudentProfile{StudentID: "st1", ClassID: "c1"}}
	if got, err := student.StudentID(); err != nil || got != "st1" {
		t.Errorf("StudentID() = %q, %v", got, err)
	}

	cases := map[string]*Identity{
		"nil identity":  nil,
		"teacher":       {Token: "t", Profile: TeacherProfile{UserID: "u"}},
		"blank student": {Token: "t", Profile: StudentProfile{}},
	}
	for name, id := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := id.StudentID()
			var mie *MissingIdentityError
			if !errors.As(err, &mie) {
				t.Fatalf("expected MissingIdentityError, got %v", err)
			}
			if mie.Field != "student_id" {
				t.Errorf("field = %q", mie.Field)
			}
		})
	}
}

func TestBearerTokenAndSchool(t *testing.T) {
	id := &Identity{Profile: ParentProfile{SchoolID: "s9"}}
	if _, err := id.BearerToken(); err == nil {
		t.Error("expected error for empty token")
	}
	if got, err := id.SchoolID(); err != nil || got != "s9" {
		t.Errorf("SchoolID() = %q, %v", got, err)
	}
}

func TestExpired(t *testing.T) {
	now := time.Now()
	if (&Identity{}).Expired(now) {
		t.Error("zero expiry must never be expired")
	}
	if !(&Identity{ExpiresAt: now.Add(-time.Minute)}).Expired(now) {
		t.Error("past expiry must be expired")
	}
}

func TestQuestionHasOption(t *testing.T) {
	q := Question{Text: "2+2?", Options: []string{"3", "4"}}
	if !q.HasOption("4") || q.HasOption("5") {
		t.Error("HasOption mismatch")
	}
}
