package exam

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/schoolportal/internal/model"
)

// State is the lifecycle stage of an attempt.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateSubmitting
	StateSubmitted
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateSubmitting:
		return "submitting"
	case StateSubmitted:
		return "submitted"
	case StateClosed:
		return "closed"
	default:
		return "idle"
	}
}

// EventKind identifies a runner event.
type EventKind string

const (
	EventTick      EventKind = "tick"
	EventExpired   EventKind = "expired"
	EventSubmitted EventKind = "submitted"
	EventFailed    EventKind = "failed"
)

// Event is published to subscribers as the attempt progresses.
type Event struct {
	Kind      EventKind `json:"kind"`
	Remaining int       `json:"remaining"`
	Message   string    `json:"message,omitempty"`
}

const autoSubmitTimeout = 30 * time.Second

// Runner drives one attempt of one test for one identity.
type Runner struct {
	id        string
	test      model.Test
	identity  *model.Identity
	session   *Session
	submitter *Submitter
	now       func() time.Time
	newTicker TickerFunc

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	countdown *Countdown
	expired   bool
	// retryAuto is set when the expiry submit found a manual submit in
	// flight; a failure of that submit runs the expiry submit again.
	retryAuto bool
	receipt   *Receipt
	lastErr   error
	subs      map[int]chan Event
	nextSub   int
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// WithTicker replaces the countdown ticker.
func WithTicker(f TickerFunc) RunnerOption {
	return func(r *Runner) { r.newTicker = f }
}

// NewRunner creates an idle runner. Call Begin to start the attempt.
func NewRunner(test model.Test, identity *model.Identity, submitter *Submitter, opts ...RunnerOption) *Runner {
	r := &Runner{
		id:        uuid.NewString(),
		test:      test,
		identity:  identity,
		submitter: submitter,
		now:       time.Now,
		newTicker: NewTimeTicker,
		subs:      make(map[int]chan Event),
	}
	for _, o := range opts {
		o(r)
	}
	r.session = NewSession(r.now)
	r.ctx, r.cancel = context.WithCancel(context.Background())
	return r
}

// AttemptID returns the attempt's random identifier.
func (r *Runner) AttemptID() string { return r.id }

// Test returns the test being attempted.
func (r *Runner) Test() model.Test { return r.test }

// Begin starts the session and, for timed tests, the countdown.
func (r *Runner) Begin() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateClosed {
		return
	}
	if r.countdown != nil {
		r.countdown.Stop()
		r.countdown = nil
	}
	r.session.Start(r.test)
	r.state = StateRunning
	r.expired = false
	r.retryAuto = false
	r.receipt = nil
	r.lastErr = nil

	if seconds := int(r.test.TimeLimit() / time.Second); seconds > 0 {
		r.countdown = StartCountdown(r.ctx, seconds, r.newTicker, r.onTick, r.onExpire)
	}
	slog.Info("attempt started",
		"attempt_id", r.id,
		"test_id", r.test.ID,
		"questions", len(r.test.Questions),
		"duration_min", r.test.Duration,
	)
}

// Answer records option for question i while the attempt is running. An
// answer either makes it into a submission that starts later or is rejected.
func (r *Runner) Answer(i int, option string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.acceptingLocked() {
		return false
	}
	return r.session.RecordAnswer(i, option)
}

// Next moves forward; see Session.Next.
func (r *Runner) Next() NavResult {
	if !r.accepting() {
		return NavBlocked
	}
	return r.session.Next()
}

// Previous moves back; see Session.Previous.
func (r *Runner) Previous() bool {
	if !r.accepting() {
		return false
	}
	return r.session.Previous()
}

// Reset clears the attempt's answers without restarting the countdown.
func (r *Runner) Reset() {
	if !r.accepting() {
		return
	}
	r.session.Reset()
}

func (r *Runner) accepting() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.acceptingLocked()
}

func (r *Runner) acceptingLocked() bool {
	return r.state == StateRunning && !r.expired
}

// Snapshot returns the current attempt state.
func (r *Runner) Snapshot() Snapshot { return r.session.Snapshot() }

// State returns the lifecycle stage.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Expired reports whether the time limit ran out.
func (r *Runner) Expired() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.expired
}

// Remaining returns the seconds left, or -1 for untimed tests.
func (r *Runner) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.countdown == nil {
		if r.expired {
			return 0
		}
		return -1
	}
	return r.countdown.Remaining()
}

// Receipt returns the successful submission, if any.
func (r *Runner) Receipt() *Receipt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.receipt
}

// LastError returns the error of the latest failed submission.
func (r *Runner) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Submit posts the attempt. Only one submission runs at a time and a
// submitted attempt cannot be submitted again. On failure the attempt
// state and the countdown are left as they were.
func (r *Runner) Submit(ctx context.Context) (*Receipt, error) {
	return r.submit(ctx, false)
}

func (r *Runner) submit(ctx context.Context, auto bool) (*Receipt, error) {
	r.mu.Lock()
	switch r.state {
	case StateSubmitting:
		if auto {
			r.retryAuto = true
		}
		r.mu.Unlock()
		return nil, ErrSubmitInFlight
	case StateSubmitted:
		r.mu.Unlock()
		return nil, ErrAlreadySubmitted
	case StateIdle, StateClosed:
		r.mu.Unlock()
		return nil, ErrNoAttempt
	}
	r.state = StateSubmitting
	snap := r.session.Finish()
	r.mu.Unlock()

	receipt, err := r.submitter.Submit(ctx, snap, r.identity)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateClosed {
		return receipt, err
	}
	if err != nil {
		r.state = StateRunning
		r.lastErr = err
		slog.Warn("submit failed", "attempt_id", r.id, "test_id", r.test.ID, "error", err)
		r.publishLocked(Event{Kind: EventFailed, Remaining: r.remainingLocked(), Message: AlertText(err)})
		if r.expired && r.retryAuto && !auto {
			r.retryAuto = false
			go r.autoSubmit()
		}
		return nil, err
	}
	r.state = StateSubmitted
	r.receipt = receipt
	r.lastErr = nil
	r.retryAuto = false
	if r.countdown != nil {
		r.countdown.Stop()
	}
	slog.Info("attempt submitted",
		"attempt_id", r.id,
		"test_id", r.test.ID,
		"answered", snap.AnsweredCount(),
		"of", snap.Total,
		"auto", auto,
	)
	r.publishLocked(Event{Kind: EventSubmitted})
	return receipt, nil
}

func (r *Runner) remainingLocked() int {
	if r.countdown == nil {
		return -1
	}
	return r.countdown.Remaining()
}

func (r *Runner) onTick(remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishLocked(Event{Kind: EventTick, Remaining: remaining})
}

// onExpire runs on the countdown goroutine.
func (r *Runner) onExpire() {
	r.mu.Lock()
	r.expired = true
	r.publishLocked(Event{Kind: EventExpired})
	r.mu.Unlock()

	slog.Info("time limit reached, submitting", "attempt_id", r.id, "test_id", r.test.ID)
	r.autoSubmit()
}

// autoSubmit posts an expired attempt. A manual submit already in flight
// wins; if that one fails the expiry submit runs once more.
func (r *Runner) autoSubmit() {
	ctx, cancel := context.WithTimeout(r.ctx, autoSubmitTimeout)
	defer cancel()
	_, err := r.submit(ctx, true)
	switch {
	case err == nil:
	case errors.Is(err, ErrSubmitInFlight):
		slog.Debug("auto-submit deferred to submission in flight", "attempt_id", r.id)
	default:
		slog.Warn("auto-submit failed", "attempt_id", r.id, "error", err)
	}
}

// Subscribe returns a channel of events and a function that ends the
// subscription. Slow subscribers miss events rather than block the runner.
// The channel is closed when the runner is closed.
func (r *Runner) Subscribe() (<-chan Event, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan Event, 16)
	if r.state == StateClosed {
		close(ch)
		return ch, func() {}
	}
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if c, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(c)
		}
	}
}

func (r *Runner) publishLocked(ev Event) {
	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close stops the countdown and ends all subscriptions. It is safe to call
// more than once.
func (r *Runner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateClosed {
		return
	}
	r.state = StateClosed
	if r.countdown != nil {
		r.countdown.Stop()
	}
	r.cancel()
	for id, ch := range r.subs {
		delete(r.subs, id)
		close(ch)
	}
	slog.Debug("attempt closed", "attempt_id", r.id, "test_id", r.test.ID)
}

// Done is closed when the countdown goroutine has exited. It is already
// closed for untimed attempts.
func (r *Runner) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.countdown == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return r.countdown.Done()
}

// AlertText returns the server's message for a failed submission, or ""
// when there is none.
func AlertText(err error) string {
	var se *SubmissionError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return ""
}
