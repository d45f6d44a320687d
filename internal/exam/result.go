package exam

import (
	"time"

	"github.com/pavelanni/schoolportal/internal/model"
)

// OptionView is one option of a graded question.
type OptionView struct {
	Text    string
	Correct bool
	Chosen  bool
}

// ResultRow is one graded question.
type ResultRow struct {
	Index    int
	Text     string
	Options  []OptionView
	Correct  string
	Chosen   string
	Answered bool
	// IsCorrect is true when the chosen option matches the answer key.
	IsCorrect bool
}

// ResultView is the render model of a graded attempt.
type ResultView struct {
	TestID       string
	Score        float64
	SubmittedAt  time.Time
	Total        int
	CorrectCount int
	Rows         []ResultRow
}

// BuildResultView compares the answer key with the student's answers.
// It returns ErrNoResult when res is nil or has no questions.
func BuildResultView(res *model.Result) (*ResultView, error) {
	if res == nil || len(res.Questions) == 0 {
		return nil, ErrNoResult
	}

	v := &ResultView{
		TestID:      res.TestID,
		Score:       res.Score,
		SubmittedAt: res.SubmittedAt,
		Total:       len(res.Questions),
		Rows:        make([]ResultRow, 0, len(res.Questions)),
	}
	for i, q := range res.Questions {
		var chosen string
		if i < len(res.Answers) {
			chosen = res.Answers[i]
		}
		row := ResultRow{
			Index:     i,
			Text:      q.Text,
			Correct:   q.CorrectAnswer,
			Chosen:    chosen,
			Answered:  chosen != "",
			IsCorrect: chosen != "" && chosen == q.CorrectAnswer,
			Options:   make([]OptionView, 0, len(q.Options)),
		}
		for _, opt := range q.Options {
			row.Options = append(row.Options, OptionView{
				Text:    opt,
				Correct: opt == q.CorrectAnswer,
				Chosen:  opt == chosen,
			})
		}
		if row.IsCorrect {
			v.CorrectCount++
		}
		v.Rows = append(v.Rows, row)
	}
	return v, nil
}

// Wrong returns the rows whose answer was missing or incorrect.
func (v *ResultView) Wrong() []ResultRow {
	var out []ResultRow
	for _, r := range v.Rows {
		if !r.IsCorrect {
			out = append(out, r)
		}
	}
	return out
}
