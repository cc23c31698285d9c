package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"interactive-video-service/internal/domain"
	"interactive-video-service/internal/player"
)

// VideoRepository loads video metadata and questions (from cache/backing store).
type VideoRepository interface {
	FetchVideo(ctx context.Context, videoID string) (domain.VideoRef, error)
	// FetchQuestions returns the questions of a video, possibly none.
	FetchQuestions(ctx context.Context, videoID string) ([]domain.Question, error)
}

// ProgressRepository stores one resume point per (viewer, video).
type ProgressRepository interface {
	// FetchProgress returns nil, nil when the viewer has no progress yet.
	FetchProgress(ctx context.Context, viewerID, videoID string) (*domain.ProgressRecord, error)
	UpsertProgress(ctx context.Context, record domain.ProgressRecord) error
	ListProgress(ctx context.Context, viewerID string) ([]domain.ProgressRecord, error)
}

// QuizResultRepository is an append-only log of answered questions.
type QuizResultRepository interface {
	InsertQuizResult(ctx context.Context, record domain.QuizResultRecord) error
	ListQuizResults(ctx context.Context, viewerID string) ([]domain.QuizResultRecord, error)
}

// ResultPublisher fans stored quiz results out to other services.
type ResultPublisher interface {
	PublishResult(ctx context.Context, record domain.QuizResultRecord) error
}

// SessionRepository abstracts how live playback sessions are registered (in-memory, Redis, etc).
type SessionRepository interface {
	Add(session *Session)
	Get(sessionID string) (*Session, bool)
	Delete(sessionID string)
}

// PlaybackOptions configures a PlaybackService.
type PlaybackOptions struct {
	Videos        VideoRepository
	Progress      ProgressRepository
	Results       QuizResultRepository
	Publisher     ResultPublisher
	Sessions      SessionRepository
	Tasks         TaskRunner
	Timing        SessionTiming
	TriggerWindow float64
	Logger        *zap.Logger
}

// PlaybackService contains the playback use cases.
type PlaybackService struct {
	loader   *Loader
	progress ProgressRepository
	results  QuizResultRepository
	opts     PlaybackOptions
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

func NewPlaybackService(opts PlaybackOptions) *PlaybackService {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlaybackService{
		loader:   NewLoader(opts.Videos, opts.Progress, logger),
		progress: opts.Progress,
		results:  opts.Results,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Open loads the video for viewerID and starts a playback session, resumed
// at the viewer's last position. An unknown video fails with ErrVideoNotFound.
func (s *PlaybackService) Open(ctx context.Context, videoID, viewerID string) (*Session, error) {
	if viewerID == "" {
		viewerID = domain.AnonymousViewer
	}
	data, err := s.loader.LoadSession(ctx, videoID, viewerID)
	if err != nil {
		return nil, err
	}

	id := s.newID()
	engine := NewEngine(EngineConfig{
		SessionID:     id,
		ViewerID:      viewerID,
		Data:          data,
		Player:        player.NewVirtualWithClock(data.Video.Duration, s.now),
		TriggerWindow: s.opts.TriggerWindow,
		Progress:      s.opts.Progress,
		Results:       s.opts.Results,
		Publisher:     s.opts.Publisher,
		Tasks:         s.opts.Tasks,
		Logger:        s.logger,
	})
	session := startSessionWithClock(id, engine, s.opts.Timing, s.logger, s.now)
	s.opts.Sessions.Add(session)
	s.logger.Info("playback session opened",
		zap.String("sessionId", id),
		zap.String("videoId", videoID),
		zap.String("viewerId", viewerID),
		zap.Int("questions", len(data.Questions)),
		zap.Bool("resumed", data.Progress != nil),
	)
	return session, nil
}

// Get returns a live session.
func (s *PlaybackService) Get(sessionID string) (*Session, error) {
	session, ok := s.opts.Sessions.Get(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Close tears a session down and unregisters it.
func (s *PlaybackService) Close(sessionID string) {
	session, ok := s.opts.Sessions.Get(sessionID)
	if !ok {
		return
	}
	session.Close()
	s.opts.Sessions.Delete(sessionID)
	s.logger.Info("playback session closed", zap.String("sessionId", sessionID))
}

// Summary aggregates a viewer's stored progress and quiz results.
func (s *PlaybackService) Summary(ctx context.Context, viewerID string) (domain.ViewerSummary, error) {
	summary := domain.ViewerSummary{ViewerID: viewerID}
	if viewerID == "" || viewerID == domain.AnonymousViewer {
		return summary, nil
	}
	progress, err := s.progress.ListProgress(ctx, viewerID)
	if err != nil {
		return summary, err
	}
	results, err := s.results.ListQuizResults(ctx, viewerID)
	if err != nil {
		return summary, err
	}
	return Summarize(viewerID, progress, results), nil
}
