package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pavelanni/schoolportal/internal/exam"
	"github.com/pavelanni/schoolportal/internal/model"
	"github.com/pavelanni/schoolportal/internal/store"
)

func TestOpenSessionsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing secret", nil, "session secret is required"},
		{"unknown backend", []string{"--session-secret=s", "--session-backend=memcached"}, "unknown session backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SCHOOLPORTAL_SESSION_SECRET", "")
			cmd := logoutCmd()
			if err := cmd.ParseFlags(tt.args); err != nil {
				t.Fatal(err)
			}
			_, _, err := openSessions(context.Background(), viperForCmd(cmd))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestDeviceIdentity(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "portal.db")
	cmd := logoutCmd()
	if err := cmd.ParseFlags([]string{"--session-secret=s", "--db=" + dbPath}); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	sessions, blobs, err := openSessions(ctx, viperForCmd(cmd))
	if err != nil {
		t.Fatalf("openSessions: %v", err)
	}
	t.Cleanup(func() { blobs.Close() })

	if _, err := deviceIdentity(ctx, sessions); err != errNotSignedIn {
		t.Fatalf("err = %v, want errNotSignedIn", err)
	}

	id := &model.Identity{Token: "tok", Profile: model.StudentProfile{UserID: "u1", Name: "Meera", StudentID: "st1"}}
	if err := sessions.Save(ctx, store.DeviceSessionID, id); err != nil {
		t.Fatal(err)
	}
	got, err := deviceIdentity(ctx, sessions)
	if err != nil {
		t.Fatalf("deviceIdentity: %v", err)
	}
	if got.Profile.DisplayName() != "Meera" {
		t.Errorf("name = %q, want Meera", got.Profile.DisplayName())
	}
}

func TestPrintResult(t *testing.T) {
	view, err := exam.BuildResultView(&model.Result{
		Score: 1,
		Questions: []model.Question{
			{Text: "What is 2+2?", Options: []string{"3", "4"}, CorrectAnswer: "4"},
			{Text: "Capital of India?", Options: []string{"Delhi", "Mumbai"}, CorrectAnswer: "Delhi"},
		},
		Answers: []string{"4", ""},
	})
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	printResult(&buf, view)
	out := buf.String()
	for _, want := range []string{"Score: 1 (1 of 2 correct)", "[+] 1. What is 2+2?", "[x] 2. Capital of India?", "not answered"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
