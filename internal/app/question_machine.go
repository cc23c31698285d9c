package app

import (
	"context"
	"time"

	"interactive-video-service/internal/domain"
	"interactive-video-service/internal/player"
)

// QuestionMachine owns the lifecycle of the question on screen:
// idle -> asked -> feedbackShown -> idle. It pauses the player when a
// question is asked and is the only thing that resumes it afterwards.
type QuestionMachine struct {
	player   player.Player
	recorder ResultRecorder
	active   *domain.ActiveQuestion
	closed   bool
}

func NewQuestionMachine(p player.Player, recorder ResultRecorder) *QuestionMachine {
	return &QuestionMachine{player: p, recorder: recorder}
}

func (m *QuestionMachine) Phase() domain.Phase {
	if m.active == nil {
		return domain.PhaseIdle
	}
	return m.active.Phase
}

// Active returns a copy of the active question state, or nil when idle.
func (m *QuestionMachine) Active() *domain.ActiveQuestion {
	if m.active == nil {
		return nil
	}
	cp := *m.active
	if m.active.Selected != nil {
		selected := *m.active.Selected
		cp.Selected = &selected
	}
	return &cp
}

// Ask presents q and pauses playback.
func (m *QuestionMachine) Ask(q domain.Question, now time.Time) error {
	if m.closed {
		return domain.ErrSessionClosed
	}
	if m.active != nil {
		return domain.ErrQuestionActive
	}
	m.player.Pause()
	m.active = &domain.ActiveQuestion{
		Question: q,
		Phase:    domain.PhaseAsked,
		FiredAt:  now,
	}
	return nil
}

// Select answers the active question with option i. Exactly one result is
// recorded per question; later selections are rejected.
func (m *QuestionMachine) Select(ctx context.Context, i int, now time.Time) (domain.Feedback, error) {
	if m.closed {
		return domain.Feedback{}, domain.ErrSessionClosed
	}
	if m.active == nil {
		return domain.Feedback{}, domain.ErrNoActiveQuestion
	}
	if m.active.Phase != domain.PhaseAsked {
		return domain.Feedback{}, domain.ErrAlreadyAnswered
	}
	q := m.active.Question
	if i < 0 || i >= len(q.Options) {
		return domain.Feedback{}, domain.ErrInvalidOption
	}

	selected := i
	m.active.Selected = &selected
	m.active.Phase = domain.PhaseFeedback

	correct := q.IsCorrect(i)
	result := m.recorder.Record(ctx, q.ID, correct, now)
	return domain.Feedback{
		QuestionID:    q.ID,
		Selected:      i,
		CorrectOption: q.CorrectIndex,
		Correct:       correct,
		Score:         result.Score,
	}, nil
}

// Resolve ends the feedback phase of questionID and resumes playback.
// It reports false for stale or out-of-phase calls.
func (m *QuestionMachine) Resolve(questionID string) bool {
	if m.closed || m.active == nil {
		return false
	}
	if m.active.Phase != domain.PhaseFeedback || m.active.Question.ID != questionID {
		return false
	}
	m.active = nil
	m.player.Play()
	return true
}

// Close abandons any question in flight. No transition completes afterwards.
func (m *QuestionMachine) Close() {
	m.closed = true
	m.active = nil
}
