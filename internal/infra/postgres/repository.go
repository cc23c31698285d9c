package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"interactive-video-service/internal/app"
	"interactive-video-service/internal/domain"
)

// Repository stores videos, questions, progress and quiz results in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

var (
	_ app.VideoRepository      = (*Repository)(nil)
	_ app.ProgressRepository   = (*Repository)(nil)
	_ app.QuizResultRepository = (*Repository)(nil)
)

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) FetchVideo(ctx context.Context, videoID string) (domain.VideoRef, error) {
	var v domain.VideoRef
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, description, url, thumbnail_url, duration FROM videos WHERE id=$1`,
		videoID,
	).Scan(&v.ID, &v.Title, &v.Description, &v.URL, &v.ThumbnailURL, &v.Duration)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.VideoRef{}, domain.ErrVideoNotFound
	}
	if err != nil {
		return domain.VideoRef{}, fmt.Errorf("load video: %w", err)
	}
	return v, nil
}

func (r *Repository) FetchQuestions(ctx context.Context, videoID string) ([]domain.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, video_id, trigger_seconds, question, options, correct_answer
		 FROM video_questions WHERE video_id=$1 ORDER BY trigger_seconds, created_at`,
		videoID,
	)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.ID, &q.VideoID, &q.Timestamp, &q.Prompt, &q.Options, &q.CorrectIndex); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (r *Repository) FetchProgress(ctx context.Context, viewerID, videoID string) (*domain.ProgressRecord, error) {
	rec := domain.ProgressRecord{ViewerID: viewerID, VideoID: videoID}
	err := r.pool.QueryRow(ctx,
		`SELECT progress, watch_time, last_watched_at FROM video_progress WHERE user_id=$1 AND video_id=$2`,
		viewerID, videoID,
	).Scan(&rec.Fraction, &rec.WatchTime, &rec.LastWatchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	return &rec, nil
}

// UpsertProgress writes the (viewer, video) row; an older sample never
// overwrites a newer one.
func (r *Repository) UpsertProgress(ctx context.Context, rec domain.ProgressRecord) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO video_progress (user_id, video_id, progress, watch_time, last_watched_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, video_id) DO UPDATE
		 SET progress = EXCLUDED.progress,
		     watch_time = EXCLUDED.watch_time,
		     last_watched_at = EXCLUDED.last_watched_at
		 WHERE video_progress.last_watched_at <= EXCLUDED.last_watched_at`,
		rec.ViewerID, rec.VideoID, rec.Fraction, rec.WatchTime, rec.LastWatchedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

func (r *Repository) ListProgress(ctx context.Context, viewerID string) ([]domain.ProgressRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT video_id, progress, watch_time, last_watched_at
		 FROM video_progress WHERE user_id=$1 ORDER BY last_watched_at DESC`,
		viewerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	var records []domain.ProgressRecord
	for rows.Next() {
		rec := domain.ProgressRecord{ViewerID: viewerID}
		if err := rows.Scan(&rec.VideoID, &rec.Fraction, &rec.WatchTime, &rec.LastWatchedAt); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *Repository) InsertQuizResult(ctx context.Context, rec domain.QuizResultRecord) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO quiz_results (id, user_id, video_id, question_id, score, total_questions, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.ViewerID, rec.VideoID, rec.QuestionID, rec.Score, rec.TotalQuestions, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert quiz result: %w", err)
	}
	return nil
}

func (r *Repository) ListQuizResults(ctx context.Context, viewerID string) ([]domain.QuizResultRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id::text, video_id, question_id, score, total_questions, created_at
		 FROM quiz_results WHERE user_id=$1 ORDER BY created_at`,
		viewerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list quiz results: %w", err)
	}
	defer rows.Close()

	var records []domain.QuizResultRecord
	for rows.Next() {
		rec := domain.QuizResultRecord{ViewerID: viewerID}
		if err := rows.Scan(&rec.ID, &rec.VideoID, &rec.QuestionID, &rec.Score, &rec.TotalQuestions, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan quiz result: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SaveVideo inserts or replaces a video and its full question set.
func (r *Repository) SaveVideo(ctx context.Context, video domain.VideoRef, questions []domain.Question) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO videos (id, title, description, url, thumbnail_url, duration)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE
		 SET title = EXCLUDED.title, description = EXCLUDED.description, url = EXCLUDED.url,
		     thumbnail_url = EXCLUDED.thumbnail_url, duration = EXCLUDED.duration, updated_at = now()`,
		video.ID, video.Title, video.Description, video.URL, video.ThumbnailURL, video.Duration,
	)
	if err != nil {
		return fmt.Errorf("save video: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM video_questions WHERE video_id=$1`, video.ID); err != nil {
		return fmt.Errorf("clear questions: %w", err)
	}
	for _, q := range questions {
		_, err := tx.Exec(ctx,
			`INSERT INTO video_questions (id, video_id, trigger_seconds, question, options, correct_answer)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			q.ID, video.ID, q.Timestamp, q.Prompt, q.Options, q.CorrectIndex,
		)
		if err != nil {
			return fmt.Errorf("save question %s: %w", q.ID, err)
		}
	}
	return tx.Commit(ctx)
}
