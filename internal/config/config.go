package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath   string     `env:"DB_PATH" envDefault:"data/knockout.db"`
	RedisURL string     `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`

	// Game pacing.
	StartDelay    time.Duration `env:"START_DELAY" envDefault:"5s"`
	QuestionTimer time.Duration `env:"QUESTION_TIMER" envDefault:"10s"`
	QuestionGap   time.Duration `env:"QUESTION_GAP" envDefault:"3s"`

	// Shared state and locking.
	StateTTL      time.Duration `env:"STATE_TTL" envDefault:"2h"`
	LockTTL       time.Duration `env:"LOCK_TTL" envDefault:"10s"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"60s"`

	// Outbound dispatch.
	BatchSize   int           `env:"DISPATCH_BATCH_SIZE" envDefault:"4"`
	BatchWindow time.Duration `env:"DISPATCH_BATCH_WINDOW" envDefault:"500ms"`
	DedupTTL    time.Duration `env:"DISPATCH_DEDUP_TTL" envDefault:"30s"`
	MaxRetries  uint          `env:"DISPATCH_MAX_RETRIES" envDefault:"4"`

	// Circuit breaker.
	BreakerThreshold  float64       `env:"BREAKER_THRESHOLD" envDefault:"0.5"`
	BreakerMinSamples int           `env:"BREAKER_MIN_SAMPLES" envDefault:"5"`
	BreakerWindow     time.Duration `env:"BREAKER_WINDOW" envDefault:"60s"`
	BreakerCooldown   time.Duration `env:"BREAKER_COOLDOWN" envDefault:"30s"`

	// Worker pool.
	WorkerCount   int64         `env:"WORKER_COUNT" envDefault:"4"`
	WorkerTimeout time.Duration `env:"WORKER_TIMEOUT" envDefault:"5s"`
	BulkThreshold int           `env:"BULK_THRESHOLD" envDefault:"50"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &cfg, nil
}
