package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/pavelanni/schoolportal/internal/model"
	"github.com/pavelanni/schoolportal/internal/validator"
)

// ErrTestNotFound is returned when a test is not in the class listing.
var ErrTestNotFound = errors.New("test not found")

// flexNumber accepts a JSON number, a numeric string, or null.
type flexNumber float64

func (f *flexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) || bytes.Equal(data, []byte(`""`)) {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("not a number: %q", s)
		}
		*f = flexNumber(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexNumber(v)
	return nil
}

type rawQuestion struct {
	Question      string   `json:"question"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
}

func (q rawQuestion) normalize() model.Question {
	return model.Question{
		Text:          firstNonEmpty(q.Question, q.Text),
		Options:       q.Options,
		CorrectAnswer: q.CorrectAnswer,
	}
}

func normalizeQuestions(raw []rawQuestion) []model.Question {
	qs := make([]model.Question, 0, len(raw))
	for _, q := range raw {
		qs = append(qs, q.normalize())
	}
	return qs
}

type rawTest struct {
	ID            string        `json:"id"`
	OID           string        `json:"_id"`
	Subject       string        `json:"subject"`
	ChapterPrompt string        `json:"chapterPrompt"`
	QuestionType  string        `json:"questionType"`
	Duration      flexNumber    `json:"duration"`
	Questions     []rawQuestion `json:"questions"`
	CreatedAt     time.Time     `json:"createdAt"`
}

func (t rawTest) normalize() model.Test {
	return model.Test{
		ID:            firstNonEmpty(t.ID, t.OID),
		Subject:       t.Subject,
		ChapterPrompt: t.ChapterPrompt,
		QuestionType:  t.QuestionType,
		Duration:      int(t.Duration),
		Questions:     normalizeQuestions(t.Questions),
		CreatedAt:     t.CreatedAt,
	}
}

// ListClassTests returns the class's online tests, newest first.
// Entries that fail validation are skipped.
func (c *Client) ListClassTests(ctx context.Context, id *model.Identity, classID string) ([]model.Test, error) {
	const op = "list class tests"
	var resp struct {
		Tests *[]rawTest `json:"tests"`
	}
	path := "/online-test/class/" + url.PathEscape(classID)
	if err := c.do(ctx, op, http.MethodGet, path, id, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Tests == nil {
		return nil, &MalformedResponseError{Op: op, Reason: "missing tests"}
	}

	tests := make([]model.Test, 0, len(*resp.Tests))
	for _, rt := range *resp.Tests {
		t := rt.normalize()
		if err := validator.Struct(t); err != nil {
			slog.Warn("skipping malformed test", "test_id", t.ID, "error", err)
			continue
		}
		tests = append(tests, t)
	}
	SortNewestFirst(tests)
	return tests, nil
}

// SortNewestFirst orders tests by creation time, newest first.
func SortNewestFirst(tests []model.Test) {
	sort.SliceStable(tests, func(i, j int) bool {
		return tests[i].CreatedAt.After(tests[j].CreatedAt)
	})
}

// FindClassTest returns one test from the class listing.
func (c *Client) FindClassTest(ctx context.Context, id *model.Identity, classID, testID string) (*model.Test, error) {
	tests, err := c.ListClassTests(ctx, id, classID)
	if err != nil {
		return nil, err
	}
	for i := range tests {
		if tests[i].ID == testID {
			return &tests[i], nil
		}
	}
	return nil, ErrTestNotFound
}

// CreateTest publishes a new test to a class.
func (c *Client) CreateTest(ctx context.Context, id *model.Identity, req model.NewTest) (*model.Test, error) {
	const op = "create test"
	var resp struct {
		Test *rawTest `json:"test"`
	}
	if err := c.do(ctx, op, http.MethodPost, "/online-test", id, req, &resp); err != nil {
		return nil, err
	}
	if resp.Test == nil {
		return nil, &MalformedResponseError{Op: op, Reason: "missing test"}
	}
	t := resp.Test.normalize()
	if err := validator.Struct(t); err != nil {
		return nil, &MalformedResponseError{Op: op, Reason: "invalid test", Err: err}
	}
	return &t, nil
}

// SubmitTest posts a finished attempt.
func (c *Client) SubmitTest(ctx context.Context, id *model.Identity, testID string, sub model.TestSubmission) error {
	path := "/online-test/" + url.PathEscape(testID) + "/submit"
	return c.do(ctx, "submit test", http.MethodPost, path, id, sub, nil)
}

type rawResult struct {
	Submission *struct {
		Score       flexNumber `json:"score"`
		SubmittedAt time.Time  `json:"submittedAt"`
	} `json:"submission"`
	Questions *[]rawQuestion  `json:"questions"`
	Answers   json.RawMessage `json:"answers"`
}

// FetchResult returns the graded result of the student's submission.
func (c *Client) FetchResult(ctx context.Context, id *model.Identity, testID, studentID string) (*model.Result, error) {
	const op = "fetch result"
	var resp rawResult
	path := "/online-test/" + url.PathEscape(testID) + "/my-result/" + url.PathEscape(studentID)
	if err := c.do(ctx, op, http.MethodGet, path, id, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Submission == nil {
		return nil, &MalformedResponseError{Op: op, Reason: "missing submission"}
	}
	if resp.Questions == nil || len(*resp.Questions) == 0 {
		return nil, &MalformedResponseError{Op: op, Reason: "missing questions"}
	}
	questions := normalizeQuestions(*resp.Questions)
	answers, err := parseAnswers(resp.Answers, len(questions))
	if err != nil {
		return nil, &MalformedResponseError{Op: op, Reason: "answers", Err: err}
	}
	return &model.Result{
		TestID:      testID,
		Score:       float64(resp.Submission.Score),
		SubmittedAt: resp.Submission.SubmittedAt,
		Questions:   questions,
		Answers:     answers,
	}, nil
}

// parseAnswers aligns the student's answers with n questions. The API sends
// either an array (strings, nulls or {"answer": ...} objects, by position)
// or an object keyed by question index.
func parseAnswers(raw json.RawMessage, n int) ([]string, error) {
	answers := make([]string, n)
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return answers, nil
	}

	switch raw[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		for i, item := range items {
			if i >= n {
				break
			}
			a, err := parseAnswerItem(item)
			if err != nil {
				return nil, fmt.Errorf("answer %d: %w", i, err)
			}
			answers[i] = a
		}
	case '{':
		var byIndex map[string]string
		if err := json.Unmarshal(raw, &byIndex); err != nil {
			return nil, err
		}
		for k, v := range byIndex {
			i, err := strconv.Atoi(k)
			if err != nil {
				return nil, fmt.Errorf("answer key %q: %w", k, err)
			}
			if i >= 0 && i < n {
				answers[i] = v
			}
		}
	default:
		return nil, fmt.Errorf("unexpected answers type")
	}
	return answers, nil
}

func parseAnswerItem(item json.RawMessage) (string, error) {
	item = bytes.TrimSpace(item)
	if bytes.Equal(item, []byte("null")) {
		return "", nil
	}
	if len(item) > 0 && item[0] == '{' {
		var obj struct {
			Answer         string `json:"answer"`
			SelectedOption string `json:"selectedOption"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			return "", err
		}
		return firstNonEmpty(obj.Answer, obj.SelectedOption), nil
	}
	var s string
	if err := json.Unmarshal(item, &s); err != nil {
		return "", err
	}
	return s, nil
}
