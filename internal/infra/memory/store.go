package memory

import (
	"context"
	"sort"
	"sync"

	"interactive-video-service/internal/app"
	"interactive-video-service/internal/domain"
)

// Store is an in-process video, progress and quiz result store (useful for
// tests/demos and for running without Postgres).
type Store struct {
	mu        sync.RWMutex
	videos    map[string]domain.VideoRef
	questions map[string][]domain.Question
	progress  map[progressKey]domain.ProgressRecord
	results   []domain.QuizResultRecord
}

type progressKey struct {
	viewerID string
	videoID  string
}

var (
	_ app.VideoRepository      = (*Store)(nil)
	_ app.ProgressRepository   = (*Store)(nil)
	_ app.QuizResultRepository = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{
		videos:    make(map[string]domain.VideoRef),
		questions: make(map[string][]domain.Question),
		progress:  make(map[progressKey]domain.ProgressRecord),
	}
}

// PutVideo seeds a video and its questions.
func (s *Store) PutVideo(video domain.VideoRef, questions []domain.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videos[video.ID] = video
	cp := make([]domain.Question, len(questions))
	copy(cp, questions)
	s.questions[video.ID] = cp
}

func (s *Store) FetchVideo(_ context.Context, videoID string) (domain.VideoRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	video, ok := s.videos[videoID]
	if !ok {
		return domain.VideoRef{}, domain.ErrVideoNotFound
	}
	return video, nil
}

func (s *Store) FetchQuestions(_ context.Context, videoID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	questions := make([]domain.Question, len(s.questions[videoID]))
	copy(questions, s.questions[videoID])
	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].Timestamp < questions[j].Timestamp
	})
	return questions, nil
}

func (s *Store) FetchProgress(_ context.Context, viewerID, videoID string) (*domain.ProgressRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.progress[progressKey{viewerID, videoID}]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

// UpsertProgress keeps the record with the latest LastWatchedAt.
func (s *Store) UpsertProgress(_ context.Context, record domain.ProgressRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := progressKey{record.ViewerID, record.VideoID}
	if existing, ok := s.progress[key]; ok && existing.LastWatchedAt.After(record.LastWatchedAt) {
		return nil
	}
	s.progress[key] = record
	return nil
}

func (s *Store) ListProgress(_ context.Context, viewerID string) ([]domain.ProgressRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var records []domain.ProgressRecord
	for key, record := range s.progress {
		if key.viewerID == viewerID {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].LastWatchedAt.After(records[j].LastWatchedAt)
	})
	return records, nil
}

func (s *Store) InsertQuizResult(_ context.Context, record domain.QuizResultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, record)
	return nil
}

func (s *Store) ListQuizResults(_ context.Context, viewerID string) ([]domain.QuizResultRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var records []domain.QuizResultRecord
	for _, r := range s.results {
		if r.ViewerID == viewerID {
			records = append(records, r)
		}
	}
	return records, nil
}
