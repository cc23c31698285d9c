package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"interactive-video-service/internal/app"
	"interactive-video-service/internal/config"
	"interactive-video-service/internal/domain"
	"interactive-video-service/internal/identity"
	"interactive-video-service/internal/infra/memory"
	pgstore "interactive-video-service/internal/infra/postgres"
	"interactive-video-service/internal/infra/rabbit"
	rediscache "interactive-video-service/internal/infra/redis"
	transport "interactive-video-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the playback server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// storage groups the repositories backing the playback service.
type storage struct {
	videos   app.VideoRepository
	progress app.ProgressRepository
	results  app.QuizResultRepository
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.Duration(cfg.Redis.TTL, 10*time.Minute)

	var store storage
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		repo := pgstore.NewRepository(pool)
		store = storage{videos: repo, progress: repo, results: repo}
	} else {
		logger.Warn("postgres not configured, using in-memory store with demo video")
		mem := memory.NewStore()
		mem.PutVideo(sampleVideo(), sampleQuestions())
		store = storage{videos: mem, progress: mem, results: mem}
	}

	catalogTTL := config.Duration(cfg.Catalog.TTL, 10*time.Minute)
	var videos app.VideoRepository
	if redisClient != nil {
		videos = rediscache.NewCatalogCache(redisClient, store.videos, catalogTTL)
	} else {
		videos = memory.NewCatalogCache(store.videos, catalogTTL)
	}

	var sessions app.SessionRepository
	if redisClient != nil {
		instance, _ := os.Hostname()
		redisSessions := rediscache.NewSessionStore(redisClient, redisTTL, instance)
		go refreshSessions(ctx, redisSessions, redisTTL/2, logger)
		sessions = redisSessions
	} else {
		sessions = memory.NewSessionStore()
	}

	var publisher app.ResultPublisher
	if cfg.RabbitMQ.URL != "" {
		p, err := rabbit.Dial(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			return err
		}
		defer p.Close()
		publisher = p
	}

	tasks := app.NewDispatcher(
		cfg.Persistence.Workers,
		cfg.Persistence.QueueSize,
		config.Duration(cfg.Persistence.WriteTimeout, 5*time.Second),
		logger.Named("persistence"),
	)
	defer tasks.Close()

	service := app.NewPlaybackService(app.PlaybackOptions{
		Videos:    videos,
		Progress:  store.progress,
		Results:   store.results,
		Publisher: publisher,
		Sessions:  sessions,
		Tasks:     tasks,
		Timing: app.SessionTiming{
			TickInterval:  config.Duration(cfg.Playback.TickInterval, app.DefaultTickInterval),
			FeedbackDelay: config.Duration(cfg.Playback.FeedbackDelay, app.DefaultFeedbackDelay),
		},
		TriggerWindow: cfg.Playback.TriggerWindow,
		Logger:        logger.Named("playback"),
	})

	var ids identity.Provider = identity.QueryProvider{AllowAnonymous: cfg.AnonymousAllowed()}
	if cfg.Auth.JWTSecret != "" {
		ids = identity.NewJWTProvider(cfg.Auth.JWTSecret, cfg.AnonymousAllowed())
	}

	router := transport.NewRouter(
		transport.NewWSHandler(service, ids, logger.Named("ws")),
		transport.NewAPIHandler(service, ids, logger.Named("api")),
	)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting playback service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func refreshSessions(ctx context.Context, sessions *rediscache.SessionStore, every time.Duration, logger *zap.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sessions.Refresh(ctx); err != nil {
				logger.Warn("refresh session markers failed", zap.Error(err))
			}
		}
	}
}

// sampleVideo is served when no database is configured.
func sampleVideo() domain.VideoRef {
	return domain.VideoRef{
		ID:           "demo",
		Title:        "Big Buck Bunny",
		Description:  "Demo video with two checkpoint questions",
		URL:          "https://commondatastorage.googleapis.com/gtv-videos-bucket/sample/BigBuckBunny.mp4",
		ThumbnailURL: "https://commondatastorage.googleapis.com/gtv-videos-bucket/sample/images/BigBuckBunny.jpg",
		Duration:     596,
	}
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:           "demo-q1",
			VideoID:      "demo",
			Timestamp:    30,
			Prompt:       "What animal is the main character?",
			Options:      []string{"A bird", "A rabbit", "A squirrel"},
			CorrectIndex: 1,
		},
		{
			ID:           "demo-q2",
			VideoID:      "demo",
			Timestamp:    120,
			Prompt:       "Who is bothering the main character?",
			Options:      []string{"Three rodents", "A fox", "Nobody"},
			CorrectIndex: 0,
		},
	}
}
