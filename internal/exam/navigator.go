package exam

// NavResult is the outcome of a forward navigation request.
type NavResult int

const (
	// NavBlocked means the current question has no answer; nothing moved.
	NavBlocked NavResult = iota
	// NavMoved means the next question is now current.
	NavMoved
	// NavReadyToSubmit means the last question is answered.
	NavReadyToSubmit
)

func (r NavResult) String() string {
	switch r {
	case NavMoved:
		return "moved"
	case NavReadyToSubmit:
		return "ready_to_submit"
	default:
		return "blocked"
	}
}

// Next advances to the following question if the current one is answered.
// On the last answered question it reports NavReadyToSubmit instead.
func (s *Session) Next() NavResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return NavBlocked
	}
	if _, ok := s.answers[s.index]; !ok {
		return NavBlocked
	}
	if s.index >= len(s.test.Questions)-1 {
		return NavReadyToSubmit
	}
	s.index++
	s.activeSince = s.now()
	return NavMoved
}

// Previous moves back one question. It returns false on the first question.
func (s *Session) Previous() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active || s.index == 0 {
		return false
	}
	s.index--
	s.activeSince = s.now()
	return true
}
