package exam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/schoolportal/internal/api"
	"github.com/pavelanni/schoolportal/internal/model"
)

var (
	// ErrSubmitInFlight is returned when a submission is already pending.
	ErrSubmitInFlight = errors.New("submission already in progress")
	// ErrAlreadySubmitted is returned after the attempt was submitted.
	ErrAlreadySubmitted = errors.New("attempt already submitted")
	// ErrNoAttempt is returned when no attempt is running.
	ErrNoAttempt = errors.New("no attempt in progress")
	// ErrNoResult means the graded result is missing or unusable.
	ErrNoResult = errors.New("no result found")
)

// Backend is the part of the remote API the submitter needs.
// *api.Client implements it.
type Backend interface {
	SubmitTest(ctx context.Context, id *model.Identity, testID string, sub model.TestSubmission) error
	FetchResult(ctx context.Context, id *model.Identity, testID, studentID string) (*model.Result, error)
}

// SubmissionError reports a failed submission. Message is the text shown
// to the student; it is the server's message when there is one.
type SubmissionError struct {
	TestID  string
	Message string
	Err     error
}

func (e *SubmissionError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("submit test %s: %s", e.TestID, e.Message)
	}
	return fmt.Sprintf("submit test %s: %v", e.TestID, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// Receipt is the outcome of a successful submission. Result is nil when the
// follow-up fetch failed; ResultErr says why.
type Receipt struct {
	SubmittedAt time.Time
	Result      *model.Result
	ResultErr   error
}

// Submitter posts finished attempts and fetches their graded result.
type Submitter struct {
	backend Backend
}

// NewSubmitter creates a Submitter.
func NewSubmitter(backend Backend) *Submitter {
	return &Submitter{backend: backend}
}

// Submit posts the attempt in snap. The student ID and token are resolved
// before any request is made. After a successful post the graded result is
// fetched right away; a failed fetch does not fail the submission.
func (s *Submitter) Submit(ctx context.Context, snap Snapshot, id *model.Identity) (*Receipt, error) {
	studentID, err := id.StudentID()
	if err != nil {
		return nil, err
	}
	if _, err := id.BearerToken(); err != nil {
		return nil, err
	}

	sub := snap.Submission(studentID)
	if err := s.backend.SubmitTest(ctx, id, snap.TestID, sub); err != nil {
		return nil, &SubmissionError{TestID: snap.TestID, Message: serverMessage(err), Err: err}
	}

	receipt := &Receipt{SubmittedAt: sub.EndedAt}
	res, err := s.backend.FetchResult(ctx, id, snap.TestID, studentID)
	if err != nil {
		slog.Warn("fetch result after submit", "test_id", snap.TestID, "error", err)
		receipt.ResultErr = err
		return receipt, nil
	}
	receipt.Result = res
	return receipt, nil
}

func serverMessage(err error) string {
	var ae *api.APIError
	if errors.As(err, &ae) {
		return ae.Message
	}
	var ne *api.NetworkError
	if errors.As(err, &ne) {
		return ne.Message
	}
	return ""
}
