package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"interactive-video-service/internal/app"
	"interactive-video-service/internal/domain"
)

// CatalogCache caches video metadata and question lists in Redis and falls
// back to a loader on cache miss.
// Videos are stored as:    SET video:{videoID}           {json}
// Questions are stored as: SET video:{videoID}:questions {json array}
type CatalogCache struct {
	client *redis.Client
	loader app.VideoRepository
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

var _ app.VideoRepository = (*CatalogCache)(nil)

func NewCatalogCache(client *redis.Client, loader app.VideoRepository, ttl time.Duration) *CatalogCache {
	return &CatalogCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *CatalogCache) FetchVideo(ctx context.Context, videoID string) (domain.VideoRef, error) {
	var video domain.VideoRef
	err := c.readThrough(ctx, c.videoKey(videoID), &video, func() (interface{}, error) {
		return c.loader.FetchVideo(ctx, videoID)
	})
	return video, err
}

func (c *CatalogCache) FetchQuestions(ctx context.Context, videoID string) ([]domain.Question, error) {
	var questions []domain.Question
	err := c.readThrough(ctx, c.questionsKey(videoID), &questions, func() (interface{}, error) {
		return c.loader.FetchQuestions(ctx, videoID)
	})
	return questions, err
}

// Invalidate drops the cached entries of a video, e.g. after re-seeding it.
func (c *CatalogCache) Invalidate(ctx context.Context, videoID string) error {
	return c.client.Del(ctx, c.videoKey(videoID), c.questionsKey(videoID)).Err()
}

func (c *CatalogCache) readThrough(ctx context.Context, key string, dst interface{}, load func() (interface{}, error)) error {
	if c.get(ctx, key, dst) {
		return nil
	}
	raw, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if data, err := c.client.Get(ctx, key).Bytes(); err == nil {
			return data, nil
		}
		value, err := load()
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		// best-effort: a failed cache write only costs a reload
		_ = c.client.Set(ctx, key, data, c.ttlWithJitter()).Err()
		return data, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(raw.([]byte), dst)
}

func (c *CatalogCache) get(ctx context.Context, key string, dst interface{}) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		// miss, or Redis is down: either way the loader answers
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (c *CatalogCache) videoKey(videoID string) string {
	return "video:" + videoID
}

func (c *CatalogCache) questionsKey(videoID string) string {
	return "video:" + videoID + ":questions"
}

func (c *CatalogCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
