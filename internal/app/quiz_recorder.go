package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"interactive-video-service/internal/domain"
)

const (
	// CorrectScore is awarded for a correct answer, 0 otherwise.
	CorrectScore = 100
	// questionsPerResult is fixed: every answer is recorded on its own.
	questionsPerResult = 1
)

// ResultRecorder scores an answer and stores the outcome.
type ResultRecorder interface {
	Record(ctx context.Context, questionID string, correct bool, now time.Time) domain.QuizResultRecord
}

// QuizRecorder appends one QuizResultRecord per answered question. Appends
// are fire-and-forget; failures are logged and not retried.
type QuizRecorder struct {
	viewerID  string
	videoID   string
	results   QuizResultRepository
	publisher ResultPublisher
	tasks     TaskRunner
	logger    *zap.Logger
	newID     func() string
}

var _ ResultRecorder = (*QuizRecorder)(nil)

func NewQuizRecorder(viewerID, videoID string, results QuizResultRepository, publisher ResultPublisher, tasks TaskRunner, logger *zap.Logger) *QuizRecorder {
	return &QuizRecorder{
		viewerID:  viewerID,
		videoID:   videoID,
		results:   results,
		publisher: publisher,
		tasks:     tasks,
		logger:    logger,
		newID:     uuid.NewString,
	}
}

func (r *QuizRecorder) Record(ctx context.Context, questionID string, correct bool, now time.Time) domain.QuizResultRecord {
	record := domain.QuizResultRecord{
		ID:             r.newID(),
		ViewerID:       r.viewerID,
		VideoID:        r.videoID,
		QuestionID:     questionID,
		Score:          Score(correct),
		TotalQuestions: questionsPerResult,
		CreatedAt:      now,
	}
	if r.viewerID == domain.AnonymousViewer || r.results == nil || r.tasks == nil {
		return record
	}
	// The answer is final once selected; closing the session must not drop it.
	r.tasks.Submit(context.WithoutCancel(ctx), "insert quiz result", func(ctx context.Context) error {
		if err := r.results.InsertQuizResult(ctx, record); err != nil {
			return err
		}
		if r.publisher == nil {
			return nil
		}
		if err := r.publisher.PublishResult(ctx, record); err != nil {
			// best-effort, the result is already stored
			r.logger.Warn("publish quiz result", zap.String("resultId", record.ID), zap.Error(err))
		}
		return nil
	})
	return record
}

// Score maps correctness to the binary 0/100 scale.
func Score(correct bool) int {
	if correct {
		return CorrectScore
	}
	return 0
}
