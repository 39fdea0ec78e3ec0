// Package config loads and validates server configuration from environment
// variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the orchestrator server.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Pipeline      PipelineConfig
	Validation    ValidationConfig
	Collaborators CollaboratorConfig
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

// PipelineConfig tunes the orchestration core. Retry parameters apply to
// every stage unless a stage definition overrides them.
type PipelineConfig struct {
	MaxRetries          int
	RetryBackoff        time.Duration
	JobRegistryCapacity int
	RateLimitPerMinute  int
}

type ValidationConfig struct {
	MinInputLength int
	MaxInputLength int
	BlockedTerms   []string
}

// CollaboratorConfig holds the invoke endpoint of each external generation
// service. Validation runs in-process and has no endpoint.
type CollaboratorConfig struct {
	LanguageDetectionURL   string
	TranslationURL         string
	SceneAnalysisURL       string
	StoryboardURL          string
	CharacterGenerationURL string
	KeyframeGenerationURL  string
	VideoGenerationURL     string
	VoiceoverGenerationURL string
	CompositionURL         string
}

// Load reads configuration from environment variables and returns a validated
// Config. Returns an error with a descriptive message if any required value
// is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("VIDEOGEN_PORT", 8080),
			Env:  envString("VIDEOGEN_ENV", "development"),
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
		Pipeline: PipelineConfig{
			MaxRetries:          envInt("PIPELINE_MAX_RETRIES", 3),
			RetryBackoff:        envDuration("PIPELINE_RETRY_BACKOFF", 500*time.Millisecond),
			JobRegistryCapacity: envInt("PIPELINE_JOB_REGISTRY_CAPACITY", 1024),
			RateLimitPerMinute:  envInt("RATE_LIMIT_PER_MINUTE", 100),
		},
		Validation: ValidationConfig{
			MinInputLength: envInt("VALIDATION_MIN_INPUT_LENGTH", 10),
			MaxInputLength: envInt("VALIDATION_MAX_INPUT_LENGTH", 2000),
			BlockedTerms:   envList("VALIDATION_BLOCKED_TERMS"),
		},
		Collaborators: CollaboratorConfig{
			LanguageDetectionURL:   envString("COLLAB_LANGUAGE_DETECTION_URL", "http://localhost:8101/invoke"),
			TranslationURL:         envString("COLLAB_TRANSLATION_URL", "http://localhost:8102/invoke"),
			SceneAnalysisURL:       envString("COLLAB_SCENE_ANALYSIS_URL", "http://localhost:8103/invoke"),
			StoryboardURL:          envString("COLLAB_STORYBOARD_URL", "http://localhost:8104/invoke"),
			CharacterGenerationURL: envString("COLLAB_CHARACTER_GENERATION_URL", "http://localhost:8105/invoke"),
			KeyframeGenerationURL:  envString("COLLAB_KEYFRAME_GENERATION_URL", "http://localhost:8106/invoke"),
			VideoGenerationURL:     envString("COLLAB_VIDEO_GENERATION_URL", "http://localhost:8107/invoke"),
			VoiceoverGenerationURL: envString("COLLAB_VOICEOVER_GENERATION_URL", "http://localhost:8108/invoke"),
			CompositionURL:         envString("COLLAB_COMPOSITION_URL", "http://localhost:8109/invoke"),
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

	if c.Pipeline.MaxRetries < 0 {
		return fmt.Errorf("PIPELINE_MAX_RETRIES must not be negative")
	}
	if c.Pipeline.JobRegistryCapacity <= 0 {
		return fmt.Errorf("PIPELINE_JOB_REGISTRY_CAPACITY must be positive")
	}

	if c.Validation.MinInputLength < 1 {
		return fmt.Errorf("VALIDATION_MIN_INPUT_LENGTH must be at least 1")
	}
	if c.Validation.MaxInputLength <= c.Validation.MinInputLength {
		return fmt.Errorf("VALIDATION_MAX_INPUT_LENGTH must exceed VALIDATION_MIN_INPUT_LENGTH")
	}

	for name, u := range map[string]string{
		"COLLAB_LANGUAGE_DETECTION_URL":   c.Collaborators.LanguageDetectionURL,
		"COLLAB_TRANSLATION_URL":          c.Collaborators.TranslationURL,
		"COLLAB_SCENE_ANALYSIS_URL":       c.Collaborators.SceneAnalysisURL,
		"COLLAB_STORYBOARD_URL":           c.Collaborators.StoryboardURL,
		"COLLAB_CHARACTER_GENERATION_URL": c.Collaborators.CharacterGenerationURL,
		"COLLAB_KEYFRAME_GENERATION_URL":  c.Collaborators.KeyframeGenerationURL,
		"COLLAB_VIDEO_GENERATION_URL":     c.Collaborators.VideoGenerationURL,
		"COLLAB_VOICEOVER_GENERATION_URL": c.Collaborators.VoiceoverGenerationURL,
		"COLLAB_COMPOSITION_URL":          c.Collaborators.CompositionURL,
	} {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("%s must start with http:// or https://, got %q", name, u)
		}
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

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
