package validator

import (
	"errors"
	"testing"

	"github.com/pavelanni/schoolportal/internal/model"
)

func TestStructUsesJSONNames(t *testing.T) {
	err := Struct(model.NewComplaint{StudentID: "st1", Subject: "Bus", Description: "short"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	fields := TranslateErrors(err)
	msg, ok := fields["description"]
	if !ok {
		t.Fatalf("expected description field error, got %v", fields)
	}
	if msg == "" {
		t.Error("expected translated message")
	}
	if _, ok := fields["subject"]; ok {
		t.Error("subject is valid and should not be reported")
	}
}

func TestTestValidation(t *testing.T) {
	tests := []struct {
		name    string
		test    model.Test
		wantErr bool
	}{
		{"valid", model.Test{ID: "t1", Subject: "Math", Questions: []model.Question{
			{Text: "2+2?", Options: []string{"3", "4"}},
		}}, false},
		{"no questions is allowed", model.Test{ID: "t1", Subject: "Math"}, false},
		{"missing id", model.Test{Subject: "Math"}, true},
		{"one option", model.Test{ID: "t1", Subject: "Math", Questions: []model.Question{
			{Text: "2+2?", Options: []string{"4"}},
		}}, true},
		{"blank option", model.Test{ID: "t1", Subject: "Math", Questions: []model.Question{
			{Text: "2+2?", Options: []string{"4", ""}},
		}}, true},
		{"negative duration", model.Test{ID: "t1", Subject: "Math", Duration: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.test)
			if (err != nil) != tt.wantErr {
				t.Errorf("Struct() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTranslateNonValidationError(t *testing.T) {
	fields := TranslateErrors(errors.New("boom"))
	if fields["detail"] != "boom" {
		t.Errorf("fields = %v", fields)
	}
}
