package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"interactive-video-service/internal/domain"
)

// Session runs one playback engine on its own goroutine. Ticks, the feedback
// delay and viewer commands are all handled on that goroutine, so the engine
// never needs a lock.
type Session struct {
	id            string
	engine        *Engine
	tickEvery     time.Duration
	feedbackDelay time.Duration
	now           func() time.Time
	logger        *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	cmds   chan command
	done   chan struct{}

	mu          sync.Mutex
	closed      bool
	subscribers map[chan domain.Event]struct{}
}

type command struct {
	apply func(ctx context.Context, e *Engine, now time.Time) ([]domain.Event, string, error)
	reply chan error
}

// SessionTiming controls the session clock.
type SessionTiming struct {
	TickInterval  time.Duration
	FeedbackDelay time.Duration
}

const (
	DefaultTickInterval  = time.Second
	DefaultFeedbackDelay = 3 * time.Second
)

// StartSession launches the session loop for engine.
func StartSession(id string, engine *Engine, timing SessionTiming, logger *zap.Logger) *Session {
	return startSessionWithClock(id, engine, timing, logger, time.Now)
}

func startSessionWithClock(id string, engine *Engine, timing SessionTiming, logger *zap.Logger, now func() time.Time) *Session {
	if timing.TickInterval <= 0 {
		timing.TickInterval = DefaultTickInterval
	}
	if timing.FeedbackDelay <= 0 {
		timing.FeedbackDelay = DefaultFeedbackDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:            id,
		engine:        engine,
		tickEvery:     timing.TickInterval,
		feedbackDelay: timing.FeedbackDelay,
		now:           now,
		logger:        logger.With(zap.String("sessionId", id)),
		ctx:           ctx,
		cancel:        cancel,
		cmds:          make(chan command),
		done:          make(chan struct{}),
		subscribers:   make(map[chan domain.Event]struct{}),
	}
	go s.run()
	return s
}

func (s *Session) ID() string {
	return s.id
}

// Done is closed once the session loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.tickEvery)
	defer ticker.Stop()

	var (
		feedback  *time.Timer
		feedbackC <-chan time.Time
		pending   string
	)
	stopFeedback := func() {
		if feedback != nil {
			feedback.Stop()
		}
		feedback, feedbackC, pending = nil, nil, ""
	}
	defer stopFeedback()

	for {
		select {
		case <-s.ctx.Done():
			s.engine.Close()
			s.logger.Debug("session loop stopped")
			return
		case <-ticker.C:
			if s.ctx.Err() != nil {
				continue
			}
			s.publish(s.engine.Tick(s.ctx, s.now()))
		case <-feedbackC:
			questionID := pending
			feedback, feedbackC, pending = nil, nil, ""
			if s.ctx.Err() != nil {
				continue
			}
			s.publish(s.engine.Resolve(questionID))
		case cmd := <-s.cmds:
			if s.ctx.Err() != nil {
				cmd.reply <- domain.ErrSessionClosed
				continue
			}
			events, resolveID, err := cmd.apply(s.ctx, s.engine, s.now())
			if resolveID != "" {
				stopFeedback()
				pending = resolveID
				feedback = time.NewTimer(s.feedbackDelay)
				feedbackC = feedback.C
			}
			s.publish(events)
			cmd.reply <- err
		}
	}
}

func (s *Session) do(ctx context.Context, apply func(ctx context.Context, e *Engine, now time.Time) ([]domain.Event, string, error)) error {
	cmd := command{apply: apply, reply: make(chan error, 1)}
	select {
	case s.cmds <- cmd:
	case <-s.done:
		return domain.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-s.done:
		return domain.ErrSessionClosed
	}
}

func (s *Session) Play(ctx context.Context) error {
	return s.do(ctx, func(_ context.Context, e *Engine, _ time.Time) ([]domain.Event, string, error) {
		events, err := e.Play()
		return events, "", err
	})
}

func (s *Session) Pause(ctx context.Context) error {
	return s.do(ctx, func(_ context.Context, e *Engine, _ time.Time) ([]domain.Event, string, error) {
		events, err := e.Pause()
		return events, "", err
	})
}

func (s *Session) Seek(ctx context.Context, seconds float64) error {
	return s.do(ctx, func(_ context.Context, e *Engine, _ time.Time) ([]domain.Event, string, error) {
		events, err := e.Seek(seconds)
		return events, "", err
	})
}

func (s *Session) SetVolume(ctx context.Context, volume float64) error {
	return s.do(ctx, func(_ context.Context, e *Engine, _ time.Time) ([]domain.Event, string, error) {
		events, err := e.SetVolume(volume)
		return events, "", err
	})
}

func (s *Session) SetMuted(ctx context.Context, muted bool) error {
	return s.do(ctx, func(_ context.Context, e *Engine, _ time.Time) ([]domain.Event, string, error) {
		events, err := e.SetMuted(muted)
		return events, "", err
	})
}

func (s *Session) Replay(ctx context.Context) error {
	return s.do(ctx, func(_ context.Context, e *Engine, _ time.Time) ([]domain.Event, string, error) {
		events, err := e.Replay()
		return events, "", err
	})
}

// Answer selects an option for the active question. Playback resumes on its
// own after the feedback delay.
func (s *Session) Answer(ctx context.Context, option int) error {
	return s.do(ctx, func(ctx context.Context, e *Engine, now time.Time) ([]domain.Event, string, error) {
		return e.Select(ctx, option, now)
	})
}

func (s *Session) Snapshot(ctx context.Context) (domain.SessionSnapshot, error) {
	var snap domain.SessionSnapshot
	err := s.do(ctx, func(_ context.Context, e *Engine, _ time.Time) ([]domain.Event, string, error) {
		snap = e.Snapshot()
		return nil, "", nil
	})
	return snap, err
}

// Subscribe returns a channel of session events. Slow subscribers lose the
// oldest pending event. The caller must invoke cancel to avoid leaks.
func (s *Session) Subscribe() (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, 16)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) publish(events []domain.Event) {
	if len(events) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for _, ev := range events {
		for ch := range s.subscribers {
			select {
			case ch <- ev:
			default:
				select {
				case <-ch:
				default:
				}
				ch <- ev
			}
		}
	}
}

// Close stops the loop, abandons any pending feedback and closes every
// subscription. Nothing is played, published or persisted after it returns.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
	s.mu.Unlock()

	s.cancel()
	<-s.done
}
