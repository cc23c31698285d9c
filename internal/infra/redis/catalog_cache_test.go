package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"interactive-video-service/internal/app"
	"interactive-video-service/internal/domain"
	"interactive-video-service/internal/infra/memory"
)

func TestCatalogCacheCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)
	loader := &countingLoader{VideoRepository: sampleStore()}
	cache := NewCatalogCache(client, loader, time.Minute)

	video, err := cache.FetchVideo(context.Background(), "video-1")
	if err != nil {
		t.Fatalf("fetch video: %v", err)
	}
	if video.Duration != 120 {
		t.Fatalf("expected duration 120, got %v", video.Duration)
	}
	questions, err := cache.FetchQuestions(context.Background(), "video-1")
	if err != nil {
		t.Fatalf("fetch questions: %v", err)
	}
	if len(questions) != 1 || questions[0].Options[1] != "4" {
		t.Fatalf("unexpected questions %+v", questions)
	}
	if !mr.Exists("video:video-1") || !mr.Exists("video:video-1:questions") {
		t.Fatalf("expected both keys cached")
	}

	// Second round should hit cache, loader not incremented.
	_, _ = cache.FetchVideo(context.Background(), "video-1")
	cached, _ := cache.FetchQuestions(context.Background(), "video-1")
	if loader.calls != 2 {
		t.Fatalf("expected cache hits, loader calls=%d", loader.calls)
	}
	if cached[0].CorrectIndex != 1 || cached[0].Timestamp != 30 {
		t.Fatalf("expected question to survive the round trip, got %+v", cached[0])
	}

	if err := cache.Invalidate(context.Background(), "video-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	_, _ = cache.FetchVideo(context.Background(), "video-1")
	if loader.calls != 3 {
		t.Fatalf("expected reload after invalidation, loader calls=%d", loader.calls)
	}
}

func TestCatalogCacheMissIsNotCached(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	cache := NewCatalogCache(newClient(mr), sampleStore(), time.Minute)
	if _, err := cache.FetchVideo(context.Background(), "missing"); !errors.Is(err, domain.ErrVideoNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if mr.Exists("video:missing") {
		t.Fatalf("expected miss not to be cached")
	}
}

func TestCatalogCacheFallsBackWhenRedisIsDown(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := newClient(mr)
	mr.Close()

	cache := NewCatalogCache(client, sampleStore(), time.Minute)
	if _, err := cache.FetchVideo(context.Background(), "video-1"); err != nil {
		t.Fatalf("expected loader fallback, got %v", err)
	}
}

type countingLoader struct {
	app.VideoRepository
	calls int
}

func (l *countingLoader) FetchVideo(ctx context.Context, videoID string) (domain.VideoRef, error) {
	l.calls++
	return l.VideoRepository.FetchVideo(ctx, videoID)
}

func (l *countingLoader) FetchQuestions(ctx context.Context, videoID string) ([]domain.Question, error) {
	l.calls++
	return l.VideoRepository.FetchQuestions(ctx, videoID)
}

func sampleVideo() domain.VideoRef {
	return domain.VideoRef{
		ID:       "video-1",
		Title:    "Arithmetic",
		URL:      "https://cdn.example.com/video-1.mp4",
		Duration: 120,
	}
}

func sampleStore() *memory.Store {
	store := memory.NewStore()
	store.PutVideo(sampleVideo(), []domain.Question{
		{
			ID:           "q1",
			VideoID:      "video-1",
			Timestamp:    30,
			Prompt:       "What is 2 + 2?",
			Options:      []string{"3", "4", "5"},
			CorrectIndex: 1,
		},
	})
	return store
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
