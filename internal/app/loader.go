package app

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"interactive-video-service/internal/domain"
)

// Loader gathers the video, its questions and the viewer's prior progress.
// Only a missing video is fatal; questions and progress degrade to defaults.
type Loader struct {
	videos   VideoRepository
	progress ProgressRepository
	logger   *zap.Logger
}

func NewLoader(videos VideoRepository, progress ProgressRepository, logger *zap.Logger) *Loader {
	return &Loader{videos: videos, progress: progress, logger: logger}
}

func (l *Loader) LoadSession(ctx context.Context, videoID, viewerID string) (domain.SessionData, error) {
	video, err := l.videos.FetchVideo(ctx, videoID)
	if err != nil {
		if errors.Is(err, domain.ErrVideoNotFound) {
			return domain.SessionData{}, err
		}
		return domain.SessionData{}, fmt.Errorf("%w: %v", domain.ErrVideoNotFound, err)
	}
	if err := domain.ValidateVideo(video); err != nil {
		return domain.SessionData{}, fmt.Errorf("%w: %v", domain.ErrVideoNotFound, err)
	}

	log := l.logger.With(zap.String("videoId", videoID), zap.String("viewerId", viewerID))
	return domain.SessionData{
		Video:     video,
		Questions: l.loadQuestions(ctx, video, log),
		Progress:  l.loadProgress(ctx, videoID, viewerID, log),
	}, nil
}

func (l *Loader) loadQuestions(ctx context.Context, video domain.VideoRef, log *zap.Logger) []domain.Question {
	fetched, err := l.videos.FetchQuestions(ctx, video.ID)
	if err != nil {
		log.Warn("questions unavailable, playing without them", zap.Error(err))
		return nil
	}
	questions := make([]domain.Question, 0, len(fetched))
	for _, q := range fetched {
		if err := domain.ValidateQuestion(q, video.Duration); err != nil {
			log.Warn("skipping question", zap.Error(err))
			continue
		}
		questions = append(questions, q)
	}
	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].Timestamp < questions[j].Timestamp
	})
	return questions
}

func (l *Loader) loadProgress(ctx context.Context, videoID, viewerID string, log *zap.Logger) *domain.ProgressRecord {
	if viewerID == domain.AnonymousViewer || l.progress == nil {
		return nil
	}
	record, err := l.progress.FetchProgress(ctx, viewerID, videoID)
	if err != nil {
		log.Warn("progress unavailable, starting from 0", zap.Error(err))
		return nil
	}
	return record
}
