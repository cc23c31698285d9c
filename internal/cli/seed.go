package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"interactive-video-service/internal/config"
	"interactive-video-service/internal/domain"
	pgstore "interactive-video-service/internal/infra/postgres"
	rediscache "interactive-video-service/internal/infra/redis"
)

// seedFile is the YAML layout accepted by the seed command.
type seedFile struct {
	Videos []seedVideo `yaml:"videos"`
}

type seedVideo struct {
	ID           string         `yaml:"id"`
	Title        string         `yaml:"title"`
	Description  string         `yaml:"description"`
	URL          string         `yaml:"url"`
	ThumbnailURL string         `yaml:"thumbnail_url"`
	Duration     float64        `yaml:"duration"`
	Questions    []seedQuestion `yaml:"questions"`
}

type seedQuestion struct {
	ID            string   `yaml:"id"`
	Timestamp     float64  `yaml:"timestamp"`
	Question      string   `yaml:"question"`
	Options       []string `yaml:"options"`
	CorrectAnswer int      `yaml:"correct_answer"`
}

// NewSeedCmd loads videos and their questions from a YAML file into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load videos and questions from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath, file)
		},
	}
	cmd.Flags().StringVar(&file, "file", "config/seed.yaml", "path to the seed YAML")
	return cmd
}

func runSeed(ctx context.Context, configPath, file string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	catalog, err := loadSeedFile(file)
	if err != nil {
		return err
	}
	if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
		return err
	}

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()
	repo := pgstore.NewRepository(pool)

	var cache *rediscache.CatalogCache
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		cache = rediscache.NewCatalogCache(client, repo, 0)
	}

	for _, entry := range catalog {
		if err := repo.SaveVideo(ctx, entry.video, entry.questions); err != nil {
			return err
		}
		if cache != nil {
			if err := cache.Invalidate(ctx, entry.video.ID); err != nil {
				logger.Warn("cache invalidation failed", zap.String("videoId", entry.video.ID), zap.Error(err))
			}
		}
		logger.Info("video seeded", zap.String("videoId", entry.video.ID), zap.Int("questions", len(entry.questions)))
	}
	return nil
}

type seedEntry struct {
	video     domain.VideoRef
	questions []domain.Question
}

// loadSeedFile parses and validates the whole file before anything is written.
func loadSeedFile(path string) ([]seedEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	entries := make([]seedEntry, 0, len(file.Videos))
	for _, v := range file.Videos {
		video := domain.VideoRef{
			ID:           v.ID,
			Title:        v.Title,
			Description:  v.Description,
			URL:          v.URL,
			ThumbnailURL: v.ThumbnailURL,
			Duration:     v.Duration,
		}
		if err := domain.ValidateVideo(video); err != nil {
			return nil, fmt.Errorf("video %q: %w", v.ID, err)
		}
		questions := make([]domain.Question, 0, len(v.Questions))
		for i, q := range v.Questions {
			id := q.ID
			if id == "" {
				id = fmt.Sprintf("%s-q%d", v.ID, i+1)
			}
			question := domain.Question{
				ID:           id,
				VideoID:      v.ID,
				Timestamp:    q.Timestamp,
				Prompt:       q.Question,
				Options:      q.Options,
				CorrectIndex: q.CorrectAnswer,
			}
			if err := domain.ValidateQuestion(question, video.Duration); err != nil {
				return nil, fmt.Errorf("video %q question %q: %w", v.ID, id, err)
			}
			questions = append(questions, question)
		}
		entries = append(entries, seedEntry{video: video, questions: questions})
	}
	return entries, nil
}
