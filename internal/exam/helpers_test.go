package exam

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/schoolportal/internal/model"
)

var t0 = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{t: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeTicker struct {
	ch      chan time.Time
	once    sync.Once
	stopped chan struct{}
}

func newFakeTicker() *fakeTicker {
	return &fakeTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               { f.once.Do(func() { close(f.stopped) }) }

func (f *fakeTicker) factory() TickerFunc {
	return func(time.Duration) Ticker { return f }
}

// tick delivers one tick and returns once the countdown received it.
func (f *fakeTicker) tick(t *testing.T) {
	t.Helper()
	select {
	case f.ch <- time.Time{}:
	case <-time.After(2 * time.Second):
		t.Fatal("tick not consumed")
	}
}

type fakeBackend struct {
	mu          sync.Mutex
	submitErr   error
	result      *model.Result
	resultErr   error
	block       chan struct{}
	entered     chan struct{}
	submissions chan model.TestSubmission
	submitCalls int
	fetchCalls  int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		submissions: make(chan model.TestSubmission, 8),
		result: &model.Result{
			TestID:    "t1",
			Score:     1,
			Questions: twoQuestions().Questions,
			Answers:   []string{"B", ""},
		},
	}
}

func (b *fakeBackend) SubmitTest(ctx context.Context, id *model.Identity, testID string, sub model.TestSubmission) error {
	b.mu.Lock()
	b.submitCalls++
	block, entered, err := b.block, b.entered, b.submitErr
	b.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
	b.submissions <- sub
	return err
}

func (b *fakeBackend) FetchResult(ctx context.Context, id *model.Identity, testID, studentID string) (*model.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fetchCalls++
	return b.result, b.resultErr
}

func (b *fakeBackend) setSubmitErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitErr = err
}

func (b *fakeBackend) calls() (submit, fetch int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.submitCalls, b.fetchCalls
}

func twoQuestions() model.Test {
	return model.Test{
		ID:       "t1",
		Subject:  "Math",
		Duration: 1,
		Questions: []model.Question{
			{Text: "2+2?", Options: []string{"A", "B", "C"}, CorrectAnswer: "B"},
			{Text: "3+3?", Options: []string{"A", "B", "C"}, CorrectAnswer: "A"},
		},
	}
}

func studentIdentity() *model.Identity {
	return &model.Identity{
		Token:   "tok",
		Profile: model.StudentProfile{UserID: "u1", StudentID: "st1", ClassID: "c1"},
	}
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for countdown to exit")
	}
}
