package app

import (
	"sort"

	"interactive-video-service/internal/domain"
)

// DefaultTriggerWindow is how close (in seconds) the playback position must be
// to a trigger timestamp for the question to fire.
const DefaultTriggerWindow = 1.0

// Scheduler decides which question fires at a playback position.
// Each question fires at most once per session; fired marks live in the
// scheduler, the question list itself is never modified.
type Scheduler struct {
	questions []domain.Question
	fired     map[string]bool
	window    float64
}

// NewScheduler copies questions and orders them by trigger timestamp.
func NewScheduler(questions []domain.Question, window float64) *Scheduler {
	if window <= 0 {
		window = DefaultTriggerWindow
	}
	sorted := make([]domain.Question, len(questions))
	copy(sorted, questions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})
	return &Scheduler{
		questions: sorted,
		fired:     make(map[string]bool, len(sorted)),
		window:    window,
	}
}

// Due returns the first unfired question whose trigger is within the window
// of current and marks it fired. Nothing fires while another question is active.
func (s *Scheduler) Due(current float64, active bool) (domain.Question, bool) {
	if active {
		return domain.Question{}, false
	}
	lo := current - s.window
	hi := current + s.window
	start := sort.Search(len(s.questions), func(i int) bool {
		return s.questions[i].Timestamp > lo
	})
	for i := start; i < len(s.questions); i++ {
		q := s.questions[i]
		if q.Timestamp >= hi {
			break
		}
		if s.fired[q.ID] {
			continue
		}
		s.fired[q.ID] = true
		return q, true
	}
	return domain.Question{}, false
}

// hasFired reports whether the question already fired this session.
func (s *Scheduler) hasFired(questionID string) bool {
	return s.fired[questionID]
}

// Reset clears fired marks so a replay asks every question again.
func (s *Scheduler) Reset() {
	s.fired = make(map[string]bool, len(s.questions))
}

func (s *Scheduler) Len() int {
	return len(s.questions)
}
