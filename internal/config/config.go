package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Catalog struct {
		TTL string `yaml:"ttl"`
	} `yaml:"catalog"`
	Playback struct {
		TickInterval  string  `yaml:"tick_interval"`
		FeedbackDelay string  `yaml:"feedback_delay"`
		TriggerWindow float64 `yaml:"trigger_window"`
	} `yaml:"playback"`
	Persistence struct {
		Workers      int    `yaml:"workers"`
		QueueSize    int    `yaml:"queue_size"`
		WriteTimeout string `yaml:"write_timeout"`
	} `yaml:"persistence"`
	Auth struct {
		JWTSecret      string `yaml:"jwt_secret"`
		AllowAnonymous *bool  `yaml:"allow_anonymous"`
	} `yaml:"auth"`
	RabbitMQ struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"rabbitmq"`
	Logging struct {
		Level string `yaml:"level"`
		Env   string `yaml:"env"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
}

// Load reads YAML config from path. Secrets may be overridden through the
// environment (JWT_SECRET, POSTGRES_URL, REDIS_ADDR, RABBITMQ_URL).
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("POSTGRES_URL"); v != "" {
		cfg.Postgres.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		cfg.RabbitMQ.URL = v
	}
}

// AnonymousAllowed defaults to true when unset.
func (c Config) AnonymousAllowed() bool {
	if c.Auth.AllowAnonymous == nil {
		return true
	}
	return *c.Auth.AllowAnonymous
}

// Duration parses a duration string or returns the fallback if empty.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	return fallback
}
