// Package exam holds the state of an online-test attempt: answers and
// per-question timing, navigation, the countdown, submission and the
// graded result view.
package exam

import (
	"sync"
	"time"

	"github.com/pavelanni/schoolportal/internal/model"
)

// Session tracks one in-progress attempt of exactly one test.
// It is safe for concurrent use.
type Session struct {
	mu  sync.Mutex
	now func() time.Time

	test        model.Test
	active      bool
	index       int
	answers     map[int]string
	elapsed     map[int]int
	activeSince time.Time
	startedAt   time.Time
	endedAt     time.Time
}

// NewSession creates an idle session. A nil clock means time.Now.
func NewSession(now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	return &Session{now: now}
}

// Start begins a fresh attempt of test. Calling Start again discards the
// previous attempt.
func (s *Session) Start(test model.Test) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.test = test
	s.active = true
	s.index = 0
	s.answers = make(map[int]string)
	s.elapsed = make(map[int]int)
	s.activeSince = now
	s.startedAt = now
	s.endedAt = time.Time{}
}

// RecordAnswer stores option as the answer to question i. It is a no-op
// (and returns false) unless i is the current question, the question has no
// answer yet and option is one of its options.
func (s *Session) RecordAnswer(i int, option string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active || i != s.index || i < 0 || i >= len(s.test.Questions) {
		return false
	}
	if _, ok := s.answers[i]; ok {
		return false
	}
	if !s.test.Questions[i].HasOption(option) {
		return false
	}
	s.answers[i] = option
	s.elapsed[i] = int(s.now().Sub(s.activeSince) / time.Second)
	return true
}

// Reset clears all answers and timings and returns to the first question.
// The attempt stays active and keeps its start time.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return
	}
	s.index = 0
	s.answers = make(map[int]string)
	s.elapsed = make(map[int]int)
	s.activeSince = s.now()
	s.endedAt = time.Time{}
}

// Finish stamps the end time and returns the resulting snapshot.
func (s *Session) Finish() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.endedAt = s.now()
	return s.snapshotLocked()
}

// Snapshot returns a copy of the attempt state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		TestID:    s.test.ID,
		Index:     s.index,
		Total:     len(s.test.Questions),
		Answers:   make(map[int]string, len(s.answers)),
		Elapsed:   make(map[int]int, len(s.elapsed)),
		StartedAt: s.startedAt,
		EndedAt:   s.endedAt,
		Active:    s.active,
	}
	if s.index < len(s.test.Questions) {
		snap.Question = s.test.Questions[s.index]
	}
	for k, v := range s.answers {
		snap.Answers[k] = v
	}
	for k, v := range s.elapsed {
		snap.Elapsed[k] = v
	}
	return snap
}

// Snapshot is an immutable view of an attempt.
type Snapshot struct {
	TestID    string
	Index     int
	Total     int
	Question  model.Question
	Answers   map[int]string
	Elapsed   map[int]int
	StartedAt time.Time
	EndedAt   time.Time
	Active    bool
}

// Answer returns the recorded answer for question i.
func (s Snapshot) Answer(i int) (string, bool) {
	a, ok := s.Answers[i]
	return a, ok
}

// AnsweredCount returns how many questions have an answer.
func (s Snapshot) AnsweredCount() int {
	return len(s.Answers)
}

// IsLast reports whether the current question is the last one.
func (s Snapshot) IsLast() bool {
	return s.Index == s.Total-1
}

// Submission builds the request body for the attempt.
func (s Snapshot) Submission(studentID string) model.TestSubmission {
	return model.TestSubmission{
		Answers:          s.Answers,
		StudentID:        studentID,
		PerQuestionTimes: s.Elapsed,
		StartedAt:        s.StartedAt,
		EndedAt:          s.EndedAt,
	}
}
