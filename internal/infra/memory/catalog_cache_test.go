package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"interactive-video-service/internal/app"
	"interactive-video-service/internal/domain"
)

func TestCatalogCacheCaches(t *testing.T) {
	loader := &countingLoader{VideoRepository: sampleStore()}
	cache := NewCatalogCache(loader, time.Minute)

	if _, err := cache.FetchVideo(context.Background(), "video-1"); err != nil {
		t.Fatalf("fetch video: %v", err)
	}
	if _, err := cache.FetchQuestions(context.Background(), "video-1"); err != nil {
		t.Fatalf("fetch questions: %v", err)
	}
	if loader.videoCalls != 1 || loader.questionCalls != 1 {
		t.Fatalf("expected one load each, got video=%d questions=%d", loader.videoCalls, loader.questionCalls)
	}

	if _, err := cache.FetchVideo(context.Background(), "video-1"); err != nil {
		t.Fatalf("fetch video 2: %v", err)
	}
	questions, err := cache.FetchQuestions(context.Background(), "video-1")
	if err != nil {
		t.Fatalf("fetch questions 2: %v", err)
	}
	if loader.videoCalls != 1 || loader.questionCalls != 1 {
		t.Fatalf("expected cache hits, got video=%d questions=%d", loader.videoCalls, loader.questionCalls)
	}
	if len(questions) != 2 || questions[0].ID != "q1" {
		t.Fatalf("expected sorted questions, got %+v", questions)
	}
}

func TestCatalogCacheExpires(t *testing.T) {
	loader := &countingLoader{VideoRepository: sampleStore()}
	cache := NewCatalogCache(loader, time.Minute)
	now := time.Unix(0, 0)
	cache.clock = func() time.Time { return now }

	_, _ = cache.FetchVideo(context.Background(), "video-1")
	now = now.Add(2 * time.Minute)
	_, _ = cache.FetchVideo(context.Background(), "video-1")

	if loader.videoCalls != 2 {
		t.Fatalf("expected reload after expiry, got %d loads", loader.videoCalls)
	}
}

func TestCatalogCacheDoesNotCacheMisses(t *testing.T) {
	loader := &countingLoader{VideoRepository: sampleStore()}
	cache := NewCatalogCache(loader, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := cache.FetchVideo(context.Background(), "missing"); !errors.Is(err, domain.ErrVideoNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	}
	if loader.videoCalls != 2 {
		t.Fatalf("expected misses to reach the loader, got %d", loader.videoCalls)
	}
}

type countingLoader struct {
	app.VideoRepository
	videoCalls    int
	questionCalls int
}

func (l *countingLoader) FetchVideo(ctx context.Context, videoID string) (domain.VideoRef, error) {
	l.videoCalls++
	return l.VideoRepository.FetchVideo(ctx, videoID)
}

func (l *countingLoader) FetchQuestions(ctx context.Context, videoID string) ([]domain.Question, error) {
	l.questionCalls++
	return l.VideoRepository.FetchQuestions(ctx, videoID)
}

func sampleStore() *Store {
	store := NewStore()
	store.PutVideo(domain.VideoRef{
		ID:       "video-1",
		Title:    "Intro",
		URL:      "https://cdn.example.com/video-1.mp4",
		Duration: 120,
	}, []domain.Question{
		{ID: "q2", VideoID: "video-1", Timestamp: 90, Prompt: "Second?", Options: []string{"A", "B"}, CorrectIndex: 0},
		{ID: "q1", VideoID: "video-1", Timestamp: 30, Prompt: "First?", Options: []string{"A", "B", "C"}, CorrectIndex: 1},
	})
	return store
}
