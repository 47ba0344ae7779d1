package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	API       APIConfig
	Database  DatabaseConfig
	Sync      SyncConfig
	Scheduler SchedulerConfig
	S3        S3Config
	DBPath    string
	LogLevel  string
	Sources   map[string]*SourceConfig
}

type APIConfig struct {
	BaseURL string
	Key     string
}

type DatabaseConfig struct {
	URL string
}

// SyncConfig tunes the pipeline. Defaults are deliberately conservative:
// the sync often runs in memory-constrained environments.
type SyncConfig struct {
	Concurrency   int
	RPS           float64
	PageSize      int
	BatchSize     int
	MaxPages      int
	MaxEmptyPages int
	MaxAPIErrors  int
	PriceMarkup   int
}

type SchedulerConfig struct {
	Interval time.Duration
	Cron     string
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// SourceConfig describes one upstream auction source domain. Loaded from
// config/sources/*.yaml; absent files just mean the API default source.
type SourceConfig struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Domain      string `yaml:"domain"`
	BaseURL     string `yaml:"base_url"`
	RateLimitMS int    `yaml:"rate_limit_ms"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		API: APIConfig{
			BaseURL: os.Getenv("AUCTION_API_URL"),
			Key:     os.Getenv("AUCTION_API_KEY"),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Sync: SyncConfig{
			Concurrency:   getEnvInt("SYNC_CONCURRENCY", 4),
			RPS:           getEnvFloat("SYNC_RPS", 10),
			PageSize:      getEnvInt("SYNC_PAGE_SIZE", 30),
			BatchSize:     getEnvInt("SYNC_BATCH_SIZE", 50),
			MaxPages:      getEnvInt("SYNC_MAX_PAGES", 20000),
			MaxEmptyPages: getEnvInt("SYNC_MAX_EMPTY_PAGES", 3),
			MaxAPIErrors:  getEnvInt("SYNC_MAX_API_ERRORS", 20),
			PriceMarkup:   getEnvInt("SYNC_PRICE_MARKUP", 200),
		},
		Scheduler: SchedulerConfig{
			Cron: os.Getenv("SYNC_CRON"),
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY"),
			SecretAccessKey: os.Getenv("S3_SECRET_KEY"),
		},
		DBPath:   getEnv("CHECKPOINT_DB", "carsync.db"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Sources:  make(map[string]*SourceConfig),
	}

	if interval := os.Getenv("SYNC_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err == nil {
			cfg.Scheduler.Interval = d
		}
	}

	if err := cfg.loadSourceConfigs(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate fails fast on missing required settings so a misconfigured
// deployment dies at startup instead of mid-run.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("AUCTION_API_URL is required")
	}
	if c.API.Key == "" {
		return fmt.Errorf("AUCTION_API_KEY is required")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Sync.Concurrency < 1 {
		return fmt.Errorf("SYNC_CONCURRENCY must be >= 1, got %d", c.Sync.Concurrency)
	}
	if c.Sync.RPS <= 0 {
		return fmt.Errorf("SYNC_RPS must be > 0, got %v", c.Sync.RPS)
	}
	if c.Sync.PageSize < 1 || c.Sync.BatchSize < 1 {
		return fmt.Errorf("SYNC_PAGE_SIZE and SYNC_BATCH_SIZE must be >= 1")
	}
	return nil
}

// S3Enabled reports whether image archival is configured.
func (c *Config) S3Enabled() bool {
	return c.S3.Bucket != "" && c.S3.AccessKeyID != ""
}

func (c *Config) loadSourceConfigs() error {
	configDir := "config/sources"
	entries, err := os.ReadDir(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(configDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		var src SourceConfig
		if err := yaml.Unmarshal(data, &src); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		c.Sources[src.ID] = &src
	}

	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
