package app

import (
	"math"

	"interactive-video-service/internal/domain"
)

// CompletionThreshold is the progress at which a video counts as completed.
const CompletionThreshold = 0.9

// Summarize folds progress rows and quiz results into a viewer summary.
func Summarize(viewerID string, progress []domain.ProgressRecord, results []domain.QuizResultRecord) domain.ViewerSummary {
	summary := domain.ViewerSummary{ViewerID: viewerID}

	videos := make(map[string]struct{}, len(progress))
	completed := 0
	for _, p := range progress {
		summary.TotalWatchTime += p.WatchTime
		videos[p.VideoID] = struct{}{}
		if p.Fraction >= CompletionThreshold {
			completed++
		}
	}
	summary.VideosWatched = len(videos)
	if len(progress) > 0 {
		summary.CompletionRate = round2(float64(completed) / float64(len(progress)) * 100)
	}

	if len(results) > 0 {
		total := 0
		for _, r := range results {
			total += r.Score
		}
		summary.AverageScore = round2(float64(total) / float64(len(results)))
	}
	return summary
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
