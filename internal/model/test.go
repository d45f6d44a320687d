package model

import "time"

// Question is one multiple-choice question of an online test.
// CorrectAnswer is only populated once the attempt has been graded.
type Question struct {
	Text          string   `json:"question" validate:"required"`
	Options       []string `json:"options" validate:"min=2,dive,required"`
	CorrectAnswer string   `json:"correctAnswer,omitempty"`
}

// HasOption reports whether opt is one of the question's options.
func (q Question) HasOption(opt string) bool {
	for _, o := range q.Options {
		if o == opt {
			return true
		}
	}
	return false
}

// Test is an online test published to a class. Immutable once fetched.
type Test struct {
	ID            string     `json:"id" validate:"required"`
	Subject       string     `json:"subject" validate:"required"`
	ChapterPrompt string     `json:"chapterPrompt"`
	QuestionType  string     `json:"questionType"`
	Duration      int        `json:"duration" validate:"gte=0"` // minutes, 0 = untimed
	Questions     []Question `json:"questions" validate:"dive"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// TimeLimit returns the test duration, or zero for untimed tests.
func (t Test) TimeLimit() time.Duration {
	return time.Duration(t.Duration) * time.Minute
}

// NewTest is the teacher's request to publish a test to a class.
type NewTest struct {
	ClassID       string `json:"classId" validate:"required"`
	Subject       string `json:"subject" validate:"required,min=2,max=80"`
	ChapterPrompt string `json:"chapterPrompt" validate:"required,min=3,max=500"`
	QuestionType  string `json:"questionType" validate:"required,oneof=mcq truefalse"`
	Duration      int    `json:"duration" validate:"gte=0,lte=240"`
}

// TestSubmission is the body posted when an attempt is submitted.
// Map keys are question indexes.
type TestSubmission struct {
	Answers          map[int]string `json:"answers"`
	StudentID        string         `json:"studentId"`
	PerQuestionTimes map[int]int    `json:"perQuestionTimes"`
	StartedAt        time.Time      `json:"startedAt"`
	EndedAt          time.Time      `json:"endedAt"`
}

// Result is the server-graded outcome of a submitted attempt.
// Answers is aligned with Questions; an empty string means unanswered.
type Result struct {
	TestID      string     `json:"testId"`
	Score       float64    `json:"score"`
	SubmittedAt time.Time  `json:"submittedAt"`
	Questions   []Question `json:"questions"`
	Answers     []string   `json:"answers"`
}
