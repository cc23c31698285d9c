package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"interactive-video-service/internal/domain"
	"interactive-video-service/internal/player"
)

// EngineConfig wires one playback session.
type EngineConfig struct {
	SessionID     string
	ViewerID      string
	Data          domain.SessionData
	Player        player.Player
	TriggerWindow float64
	Progress      ProgressRepository
	Results       QuizResultRepository
	Publisher     ResultPublisher
	Tasks         TaskRunner
	Logger        *zap.Logger
}

// Engine ties the playback clock, scheduler, question machine and progress
// tracker together. It is owned by a single goroutine and is not safe for
// concurrent use; Session serializes access to it.
type Engine struct {
	sessionID string
	viewerID  string
	video     domain.VideoRef
	player    player.Player
	scheduler *Scheduler
	machine   *QuestionMachine
	progress  *ProgressTracker
	logger    *zap.Logger
	closed    bool
}

// NewEngine builds the session and seeks to the viewer's resume point.
func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(
		zap.String("sessionId", cfg.SessionID),
		zap.String("videoId", cfg.Data.Video.ID),
		zap.String("viewerId", cfg.ViewerID),
	)
	p := cfg.Player
	if p == nil {
		p = player.NewVirtual(cfg.Data.Video.Duration)
	}
	recorder := NewQuizRecorder(cfg.ViewerID, cfg.Data.Video.ID, cfg.Results, cfg.Publisher, cfg.Tasks, logger)
	e := &Engine{
		sessionID: cfg.SessionID,
		viewerID:  cfg.ViewerID,
		video:     cfg.Data.Video,
		player:    p,
		scheduler: NewScheduler(cfg.Data.Questions, cfg.TriggerWindow),
		machine:   NewQuestionMachine(p, recorder),
		progress:  NewProgressTracker(cfg.ViewerID, cfg.Data.Video.ID, p, cfg.Progress, cfg.Tasks, logger),
		logger:    logger,
	}
	e.progress.Restore(cfg.Data.Progress)
	return e
}

// Tick samples progress and fires at most one due question. Nothing happens
// while a question is on screen.
func (e *Engine) Tick(ctx context.Context, now time.Time) []domain.Event {
	if e.closed || e.machine.Phase() != domain.PhaseIdle {
		return nil
	}
	e.progress.Sample(ctx, now)
	events := []domain.Event{e.event(domain.EventTick)}

	q, ok := e.scheduler.Due(e.player.CurrentTime(), false)
	if !ok {
		return events
	}
	if err := e.machine.Ask(q, now); err != nil {
		e.logger.Error("ask question", zap.String("questionId", q.ID), zap.Error(err))
		return events
	}
	e.logger.Debug("question asked", zap.String("questionId", q.ID))
	ev := e.event(domain.EventQuestionAsked)
	ev.Question = &q
	return append(events, ev)
}

// Play resumes playback unless a question is on screen.
func (e *Engine) Play() ([]domain.Event, error) {
	if e.closed {
		return nil, domain.ErrSessionClosed
	}
	if e.machine.Phase() != domain.PhaseIdle {
		return nil, domain.ErrQuestionActive
	}
	e.player.Play()
	return e.stateEvents(), nil
}

func (e *Engine) Pause() ([]domain.Event, error) {
	if e.closed {
		return nil, domain.ErrSessionClosed
	}
	e.player.Pause()
	return e.stateEvents(), nil
}

func (e *Engine) Seek(seconds float64) ([]domain.Event, error) {
	if e.closed {
		return nil, domain.ErrSessionClosed
	}
	e.player.Seek(seconds)
	return e.stateEvents(), nil
}

func (e *Engine) SetVolume(v float64) ([]domain.Event, error) {
	if e.closed {
		return nil, domain.ErrSessionClosed
	}
	e.player.SetVolume(v)
	return e.stateEvents(), nil
}

func (e *Engine) SetMuted(muted bool) ([]domain.Event, error) {
	if e.closed {
		return nil, domain.ErrSessionClosed
	}
	e.player.SetMuted(muted)
	return e.stateEvents(), nil
}

// Replay rewinds to the start and re-arms every question.
func (e *Engine) Replay() ([]domain.Event, error) {
	if e.closed {
		return nil, domain.ErrSessionClosed
	}
	if e.machine.Phase() != domain.PhaseIdle {
		return nil, domain.ErrQuestionActive
	}
	e.player.Seek(0)
	e.scheduler.Reset()
	e.player.Play()
	return e.stateEvents(), nil
}

// Select answers the active question. On success it returns the ID of the
// question whose feedback must be resolved after the display delay.
func (e *Engine) Select(ctx context.Context, option int, now time.Time) ([]domain.Event, string, error) {
	if e.closed {
		return nil, "", domain.ErrSessionClosed
	}
	feedback, err := e.machine.Select(ctx, option, now)
	if err != nil {
		return nil, "", err
	}
	ev := e.event(domain.EventFeedback)
	ev.Feedback = &feedback
	return []domain.Event{ev}, feedback.QuestionID, nil
}

// Resolve ends the feedback phase and resumes playback.
func (e *Engine) Resolve(questionID string) []domain.Event {
	if e.closed || !e.machine.Resolve(questionID) {
		return nil
	}
	return []domain.Event{e.event(domain.EventResumed)}
}

// Close tears the session down. Pending feedback is abandoned.
func (e *Engine) Close() {
	e.closed = true
	e.machine.Close()
	e.player.Pause()
}

func (e *Engine) Closed() bool {
	return e.closed
}

func (e *Engine) Snapshot() domain.SessionSnapshot {
	return domain.SessionSnapshot{
		SessionID: e.sessionID,
		ViewerID:  e.viewerID,
		Video:     e.video,
		Player:    player.StateOf(e.player),
		Progress:  e.progress.Fraction(),
		Active:    e.machine.Active(),
		Questions: e.scheduler.Len(),
	}
}

func (e *Engine) stateEvents() []domain.Event {
	return []domain.Event{e.event(domain.EventState)}
}

func (e *Engine) event(t domain.EventType) domain.Event {
	return domain.Event{
		Type:     t,
		Player:   player.StateOf(e.player),
		Progress: e.progress.Fraction(),
	}
}
