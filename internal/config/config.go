package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the research server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Scheduler SchedulerConfig
	Research  ResearchConfig
	Patents   PatentsConfig
	Search    SearchConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// SchedulerConfig controls the admission controller and reconciler tick.
type SchedulerConfig struct {
	CronSecret        string
	MaxConcurrentJobs int
	DefaultMaxRetries int
}

type ResearchConfig struct {
	Provider      string
	WebhookSecret string
	OpenAI        OpenAIConfig
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type PatentsConfig struct {
	Provider string
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
}

type SearchConfig struct {
	TavilyAPIKey  string
	TavilyBaseURL string
	Timeout       time.Duration
}

var validResearchProviders = map[string]bool{
	"openai": true,
	"mock":   true,
}

var validPatentProviders = map[string]bool{
	"patentsview": true,
	"mock":        true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("PATENTHOUND_PORT", 8080),
			Env:  envString("PATENTHOUND_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Scheduler: SchedulerConfig{
			CronSecret:        os.Getenv("CRON_SECRET_KEY"),
			MaxConcurrentJobs: envInt("MAX_CONCURRENT_JOBS", 3),
			DefaultMaxRetries: envInt("DEFAULT_MAX_RETRIES", 3),
		},
		Research: ResearchConfig{
			Provider:      os.Getenv("RESEARCH_PROVIDER"),
			WebhookSecret: os.Getenv("OPENAI_WEBHOOK_SECRET"),
			OpenAI: OpenAIConfig{
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				BaseURL: envString("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				Model:   envString("OPENAI_DEEP_RESEARCH_MODEL", "o4-mini-deep-research-2025-06-26"),
				Timeout: envDurationSecs("OPENAI_TIMEOUT_SECS", 60*time.Second),
			},
		},
		Patents: PatentsConfig{
			Provider: envString("PATENT_PROVIDER", "patentsview"),
			BaseURL:  envString("PATENTSVIEW_BASE_URL", "https://search.patentsview.org/api/v1"),
			APIKey:   os.Getenv("PATENTSVIEW_API_KEY"),
			Timeout:  envDurationSecs("PATENTSVIEW_TIMEOUT_SECS", 30*time.Second),
		},
		Search: SearchConfig{
			TavilyAPIKey:  os.Getenv("TAVILY_API_KEY"),
			TavilyBaseURL: envString("TAVILY_BASE_URL", "https://api.tavily.com"),
			Timeout:       envDuration("TAVILY_TIMEOUT", 15*time.Minute),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Scheduler.CronSecret == "" {
		return fmt.Errorf("CRON_SECRET_KEY is required")
	}
	if c.Scheduler.MaxConcurrentJobs < 1 {
		return fmt.Errorf("MAX_CONCURRENT_JOBS must be at least 1, got %d", c.Scheduler.MaxConcurrentJobs)
	}

	if c.Research.Provider == "" {
		return fmt.Errorf("RESEARCH_PROVIDER is required")
	}
	if !validResearchProviders[c.Research.Provider] {
		return fmt.Errorf("RESEARCH_PROVIDER must be one of openai, mock; got %q", c.Research.Provider)
	}
	if c.Research.Provider == "openai" && c.Research.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when RESEARCH_PROVIDER is openai")
	}
	if !strings.HasPrefix(c.Research.OpenAI.BaseURL, "http://") && !strings.HasPrefix(c.Research.OpenAI.BaseURL, "https://") {
		return fmt.Errorf("OPENAI_BASE_URL must start with http:// or https://, got %q", c.Research.OpenAI.BaseURL)
	}

	if !validPatentProviders[c.Patents.Provider] {
		return fmt.Errorf("PATENT_PROVIDER must be one of patentsview, mock; got %q", c.Patents.Provider)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
