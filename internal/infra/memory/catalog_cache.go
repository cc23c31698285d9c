package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"interactive-video-service/internal/app"
	"interactive-video-service/internal/domain"
)

// CatalogCache caches videos and their questions with a TTL to avoid
// repeated backing store hits.
type CatalogCache struct {
	loader app.VideoRepository
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu        sync.RWMutex
	videos    map[string]cached[domain.VideoRef]
	questions map[string]cached[[]domain.Question]
}

type cached[T any] struct {
	value     T
	expiresAt time.Time
}

var _ app.VideoRepository = (*CatalogCache)(nil)

func NewCatalogCache(loader app.VideoRepository, ttl time.Duration) *CatalogCache {
	return &CatalogCache{
		loader:    loader,
		ttl:       ttl,
		clock:     time.Now,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		videos:    make(map[string]cached[domain.VideoRef]),
		questions: make(map[string]cached[[]domain.Question]),
	}
}

func (c *CatalogCache) FetchVideo(ctx context.Context, videoID string) (domain.VideoRef, error) {
	if v, ok := lookup(c, c.videos, videoID); ok {
		return v, nil
	}
	result, err, _ := c.sf.Do("video:"+videoID, func() (interface{}, error) {
		if v, ok := lookup(c, c.videos, videoID); ok {
			return v, nil
		}
		video, err := c.loader.FetchVideo(ctx, videoID)
		if err != nil {
			return domain.VideoRef{}, err
		}
		store(c, c.videos, videoID, video)
		return video, nil
	})
	if err != nil {
		return domain.VideoRef{}, err
	}
	return result.(domain.VideoRef), nil
}

func (c *CatalogCache) FetchQuestions(ctx context.Context, videoID string) ([]domain.Question, error) {
	if qs, ok := lookup(c, c.questions, videoID); ok {
		return qs, nil
	}
	result, err, _ := c.sf.Do("questions:"+videoID, func() (interface{}, error) {
		if qs, ok := lookup(c, c.questions, videoID); ok {
			return qs, nil
		}
		questions, err := c.loader.FetchQuestions(ctx, videoID)
		if err != nil {
			return nil, err
		}
		store(c, c.questions, videoID, questions)
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func lookup[T any](c *CatalogCache, m map[string]cached[T], key string) (T, bool) {
	now := c.clock()
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := m[key]
	if !ok || !entry.expiresAt.After(now) {
		var zero T
		return zero, false
	}
	return entry.value, true
}

func store[T any](c *CatalogCache, m map[string]cached[T], key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m[key] = cached[T]{value: value, expiresAt: c.clock().Add(c.ttlWithJitter())}
}

func (c *CatalogCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
