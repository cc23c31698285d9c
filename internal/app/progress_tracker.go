package app

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"interactive-video-service/internal/domain"
	"interactive-video-service/internal/player"
)

// ProgressTracker samples the playback position and persists the viewer's
// resume point. Writes are upserts keyed on (viewer, video); a failed write
// is retried by the next sample.
type ProgressTracker struct {
	viewerID  string
	videoID   string
	player    player.Player
	store     ProgressRepository
	tasks     TaskRunner
	logger    *zap.Logger
	fraction  float64
	watchTime int
}

func NewProgressTracker(viewerID, videoID string, p player.Player, store ProgressRepository, tasks TaskRunner, logger *zap.Logger) *ProgressTracker {
	return &ProgressTracker{
		viewerID: viewerID,
		videoID:  videoID,
		player:   p,
		store:    store,
		tasks:    tasks,
		logger:   logger,
	}
}

// Restore seeks to the stored resume point. A nil record starts at 0.
func (t *ProgressTracker) Restore(record *domain.ProgressRecord) {
	if record == nil {
		return
	}
	fraction := clampFraction(record.Fraction)
	position := fraction * t.player.Duration()
	t.player.Seek(position)
	t.fraction = fraction
	t.watchTime = int(math.Floor(t.player.CurrentTime()))
}

// Sample computes the current progress and queues its upsert.
func (t *ProgressTracker) Sample(ctx context.Context, now time.Time) domain.ProgressRecord {
	current := t.player.CurrentTime()
	duration := t.player.Duration()
	if duration > 0 {
		t.fraction = clampFraction(current / duration)
	}
	if watched := int(math.Floor(current)); watched > t.watchTime {
		t.watchTime = watched
	}
	record := domain.ProgressRecord{
		ViewerID:      t.viewerID,
		VideoID:       t.videoID,
		Fraction:      t.fraction,
		WatchTime:     t.watchTime,
		LastWatchedAt: now,
	}
	if t.viewerID == domain.AnonymousViewer || t.store == nil || t.tasks == nil {
		return record
	}
	t.tasks.Submit(ctx, "upsert progress", func(ctx context.Context) error {
		return t.store.UpsertProgress(ctx, record)
	})
	return record
}

// Fraction is the last computed progress in [0,1].
func (t *ProgressTracker) Fraction() float64 {
	return t.fraction
}

func clampFraction(f float64) float64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
