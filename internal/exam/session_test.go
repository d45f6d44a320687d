package exam

import (
	"reflect"
	"testing"
	"time"
)

func TestRecordAnswerOncePerQuestion(t *testing.T) {
	clock := newFakeClock()
	s := NewSession(clock.Now)
	s.Start(twoQuestions())

	clock.Advance(7 * time.Second)
	if !s.RecordAnswer(0, "A") {
		t.Fatal("first answer rejected")
	}
	clock.Advance(3 * time.Second)
	if s.RecordAnswer(0, "B") {
		t.Error("second answer accepted")
	}

	snap := s.Snapshot()
	if got, _ := snap.Answer(0); got != "A" {
		t.Errorf("answer = %q, want A", got)
	}
	if snap.Elapsed[0] != 7 {
		t.Errorf("elapsed = %d, want 7", snap.Elapsed[0])
	}
}

func TestRecordAnswerRejects(t *testing.T) {
	tests := []struct {
		name   string
		index  int
		option string
	}{
		{"not the current question", 1, "A"},
		{"negative index", -1, "A"},
		{"unknown option", 0, "Z"},
		{"empty option", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession(nil)
			s.Start(twoQuestions())
			if s.RecordAnswer(tt.index, tt.option) {
				t.Error("answer accepted")
			}
			if n := s.Snapshot().AnsweredCount(); n != 0 {
				t.Errorf("answered = %d", n)
			}
		})
	}
}

func TestRecordAnswerBeforeStart(t *testing.T) {
	s := NewSession(nil)
	if s.RecordAnswer(0, "A") {
		t.Error("answer accepted without an attempt")
	}
}

func TestNavigatorGatesForward(t *testing.T) {
	s := NewSession(nil)
	s.Start(twoQuestions())

	if got := s.Next(); got != NavBlocked {
		t.Fatalf("Next on unanswered = %v", got)
	}
	s.RecordAnswer(0, "A")
	if got := s.Next(); got != NavMoved {
		t.Fatalf("Next after answer = %v", got)
	}
	if idx := s.Snapshot().Index; idx != 1 {
		t.Fatalf("index = %d, want 1", idx)
	}
	if got := s.Next(); got != NavBlocked {
		t.Errorf("Next on unanswered second = %v", got)
	}
	if idx := s.Snapshot().Index; idx != 1 {
		t.Errorf("index moved to %d", idx)
	}

	s.RecordAnswer(1, "C")
	if got := s.Next(); got != NavReadyToSubmit {
		t.Errorf("Next on last answered = %v", got)
	}
	if idx := s.Snapshot().Index; idx != 1 {
		t.Errorf("index moved past last question: %d", idx)
	}
}

func TestNavigatorPrevious(t *testing.T) {
	s := NewSession(nil)
	s.Start(twoQuestions())

	if s.Previous() {
		t.Error("Previous succeeded on first question")
	}
	s.RecordAnswer(0, "A")
	s.Next()
	if !s.Previous() {
		t.Fatal("Previous failed on second question")
	}
	if idx := s.Snapshot().Index; idx != 0 {
		t.Errorf("index = %d", idx)
	}
	// answered questions can be passed again without re-answering
	if got := s.Next(); got != NavMoved {
		t.Errorf("Next over answered question = %v", got)
	}
}

func TestReturningRearmsTiming(t *testing.T) {
	clock := newFakeClock()
	s := NewSession(clock.Now)
	s.Start(twoQuestions())

	s.RecordAnswer(0, "A")
	s.Next()
	clock.Advance(30 * time.Second)
	s.Previous()
	clock.Advance(2 * time.Second)
	s.Next()
	clock.Advance(4 * time.Second)
	s.RecordAnswer(1, "B")

	if got := s.Snapshot().Elapsed[1]; got != 4 {
		t.Errorf("elapsed = %d, want 4", got)
	}
}

func TestResetKeepsSessionActive(t *testing.T) {
	clock := newFakeClock()
	s := NewSession(clock.Now)
	s.Start(twoQuestions())
	s.RecordAnswer(0, "A")
	s.Next()

	clock.Advance(time.Minute)
	s.Reset()

	snap := s.Snapshot()
	if !snap.Active || snap.Index != 0 || snap.AnsweredCount() != 0 || len(snap.Elapsed) != 0 {
		t.Errorf("after reset: %+v", snap)
	}
	if !snap.StartedAt.Equal(t0) {
		t.Errorf("start time changed: %v", snap.StartedAt)
	}
	if !s.RecordAnswer(0, "C") {
		t.Error("cannot answer after reset")
	}
}

func TestStartIsIdempotentReset(t *testing.T) {
	clock := newFakeClock()
	s := NewSession(clock.Now)
	s.Start(twoQuestions())
	s.RecordAnswer(0, "A")

	clock.Advance(time.Minute)
	s.Start(twoQuestions())
	snap := s.Snapshot()
	if snap.AnsweredCount() != 0 || !snap.StartedAt.Equal(t0.Add(time.Minute)) {
		t.Errorf("restart: %+v", snap)
	}
}

func TestFinishBuildsSubmission(t *testing.T) {
	clock := newFakeClock()
	s := NewSession(clock.Now)
	s.Start(twoQuestions())
	clock.Advance(12 * time.Second)
	s.RecordAnswer(0, "B")
	s.Next()
	clock.Advance(8 * time.Second)
	s.RecordAnswer(1, "A")

	snap := s.Finish()
	sub := snap.Submission("st1")

	if !reflect.DeepEqual(sub.Answers, map[int]string{0: "B", 1: "A"}) {
		t.Errorf("answers = %v", sub.Answers)
	}
	if !reflect.DeepEqual(sub.PerQuestionTimes, map[int]int{0: 12, 1: 8}) {
		t.Errorf("times = %v", sub.PerQuestionTimes)
	}
	if !sub.StartedAt.Equal(t0) || !sub.EndedAt.Equal(t0.Add(20*time.Second)) {
		t.Errorf("times: start %v end %v", sub.StartedAt, sub.EndedAt)
	}
	if sub.StudentID != "st1" {
		t.Errorf("student = %q", sub.StudentID)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewSession(nil)
	s.Start(twoQuestions())
	snap := s.Snapshot()
	snap.Answers[0] = "A"
	if s.Snapshot().AnsweredCount() != 0 {
		t.Error("snapshot shares state with the session")
	}
}
