package exam

import (
	"errors"
	"testing"

	"github.com/pavelanni/schoolportal/internal/model"
)

func TestBuildResultView(t *testing.T) {
	res := &model.Result{
		TestID: "t1",
		Score:  1,
		Questions: []model.Question{
			{Text: "Q1", Options: []string{"A", "B"}, CorrectAnswer: "B"},
			{Text: "Q2", Options: []string{"A", "B"}, CorrectAnswer: "A"},
			{Text: "Q3", Options: []string{"A", "B"}, CorrectAnswer: "A"},
		},
		Answers: []string{"B", "B"},
	}

	v, err := BuildResultView(res)
	if err != nil {
		t.Fatalf("BuildResultView: %v", err)
	}
	if v.Total != 3 || v.CorrectCount != 1 || v.Score != 1 {
		t.Errorf("view = %+v", v)
	}

	tests := []struct {
		row       int
		chosen    string
		answered  bool
		isCorrect bool
		correctOK int // index of the option marked correct
		chosenAt  int // index of the option marked chosen, -1 for none
	}{
		{0, "B", true, true, 1, 1},
		{1, "B", true, false, 0, 1},
		{2, "", false, false, 0, -1},
	}
	for _, tt := range tests {
		r := v.Rows[tt.row]
		if r.Chosen != tt.chosen || r.Answered != tt.answered || r.IsCorrect != tt.isCorrect {
			t.Errorf("row %d = %+v", tt.row, r)
		}
		for i, o := range r.Options {
			if o.Correct != (i == tt.correctOK) {
				t.Errorf("row %d option %d correct = %v", tt.row, i, o.Correct)
			}
			if o.Chosen != (i == tt.chosenAt) {
				t.Errorf("row %d option %d chosen = %v", tt.row, i, o.Chosen)
			}
		}
	}

	if wrong := v.Wrong(); len(wrong) != 2 || wrong[0].Index != 1 || wrong[1].Index != 2 {
		t.Errorf("wrong rows = %+v", wrong)
	}
}

func TestBuildResultViewNoResult(t *testing.T) {
	for _, res := range []*model.Result{nil, {TestID: "t1"}} {
		if _, err := BuildResultView(res); !errors.Is(err, ErrNoResult) {
			t.Errorf("BuildResultView(%v) err = %v", res, err)
		}
	}
}
