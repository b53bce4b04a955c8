// Package config loads the pipeline project file and applies environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	apperrors "github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/errors"
)

// DefaultPath is the project file looked up when no --config flag is given.
const DefaultPath = "labyrinth.yaml"

// ProjectConfig is the complete pipeline configuration.
type ProjectConfig struct {
	CampaignDB         string   `yaml:"campaign_db" env:"LABYRINTH_CAMPAIGN_DB"`
	OutputDir          string   `yaml:"output_dir" env:"LABYRINTH_OUTPUT_DIR"`
	BuildDir           string   `yaml:"build_dir" env:"LABYRINTH_BUILD_DIR"`
	SpecDirs           []string `yaml:"spec_dirs" env:"LABYRINTH_SPEC_DIRS" envSeparator:","`
	RequiredAgents     []string `yaml:"required_agents" env:"LABYRINTH_REQUIRED_AGENTS" envSeparator:","`
	TargetCapabilities []string `yaml:"target_capabilities" env:"LABYRINTH_TARGET_CAPABILITIES" envSeparator:","`
	AuditReportsDir    string   `yaml:"audit_reports_dir" env:"LABYRINTH_AUDIT_REPORTS_DIR"`
	ArchiveRetention   int      `yaml:"archive_retention" env:"LABYRINTH_ARCHIVE_RETENTION"`
	CheckpointDir      string   `yaml:"checkpoint_dir" env:"LABYRINTH_CHECKPOINT_DIR"`

	ParallelAgents     int    `yaml:"parallel_agents" env:"LABYRINTH_PARALLEL_AGENTS"`
	ItemsPerBatch      int    `yaml:"items_per_batch" env:"LABYRINTH_ITEMS_PER_BATCH"`
	MaxRetries         int    `yaml:"max_retries" env:"LABYRINTH_MAX_RETRIES"`
	CheckpointInterval int    `yaml:"checkpoint_interval" env:"LABYRINTH_CHECKPOINT_INTERVAL"`
	TokenBudget        int    `yaml:"token_budget" env:"LABYRINTH_TOKEN_BUDGET"`
	Tokenizer          string `yaml:"tokenizer" env:"LABYRINTH_TOKENIZER"`
	CacheCapacity      int    `yaml:"cache_capacity" env:"LABYRINTH_CACHE_CAPACITY"`

	SampleThresholds SampleThresholds `yaml:"sample_thresholds" envPrefix:"LABYRINTH_SAMPLES_"`
	Completion       CompletionConfig `yaml:"completion"`
	Sound            SoundConfig      `yaml:"sound"`
	Server           ServerConfig     `yaml:"server"`
}

// SampleThresholds caps per-category sample exports by bundle shape.
type SampleThresholds struct {
	HTML int `yaml:"html" env:"HTML"`
	JSON int `yaml:"json" env:"JSON"`
}

// CompletionConfig points at an OpenRouter-compatible chat completion API.
type CompletionConfig struct {
	BaseURL        string        `yaml:"base_url" env:"LABYRINTH_COMPLETION_BASE_URL"`
	Model          string        `yaml:"model" env:"LABYRINTH_COMPLETION_MODEL"`
	APIKey         string        `yaml:"-" env:"OPENROUTER_API_KEY"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" env:"LABYRINTH_RETRY_BASE_DELAY"`
}

// SoundConfig points at a Freesound-compatible search API.
type SoundConfig struct {
	Enabled  bool          `yaml:"enabled" env:"LABYRINTH_SOUND_ENABLED"`
	BaseURL  string        `yaml:"base_url" env:"LABYRINTH_SOUND_BASE_URL"`
	APIKey   string        `yaml:"-" env:"FREESOUND_API_KEY"`
	Interval time.Duration `yaml:"interval" env:"LABYRINTH_SOUND_INTERVAL"`
}

// ServerConfig controls the read-only report server.
type ServerConfig struct {
	Addr           string   `yaml:"addr" env:"LABYRINTH_SERVER_ADDR"`
	JWTSecret      string   `yaml:"-" env:"LABYRINTH_JWT_SECRET"`
	TrustedProxies []string `yaml:"trusted_proxies" env:"LABYRINTH_TRUSTED_PROXIES" envSeparator:","`
}

// Default returns the configuration used when the project file omits a key.
func Default() *ProjectConfig {
	return &ProjectConfig{
		CampaignDB:         "game.hbf",
		OutputDir:          "generated",
		BuildDir:           "build/samples",
		SpecDirs:           []string{"agents"},
		CheckpointDir:      "generated/.checkpoints",
		ParallelAgents:     4,
		ItemsPerBatch:      100,
		MaxRetries:         3,
		CheckpointInterval: 10,
		TokenBudget:        100000,
		Tokenizer:          "cl100k_base",
		CacheCapacity:      100,
		SampleThresholds:   SampleThresholds{HTML: 10, JSON: 5},
		Completion: CompletionConfig{
			BaseURL:        "https://openrouter.ai/api/v1",
			Model:          "anthropic/claude-3.5-sonnet",
			RetryBaseDelay: time.Second,
		},
		Sound: SoundConfig{
			BaseURL:  "https://freesound.org/apiv2",
			Interval: 3 * time.Second,
		},
		Server: ServerConfig{Addr: ":8080"},
	}
}

// LoadProjectConfig reads path over the defaults and applies environment overrides.
// A missing file at the default path is not an error.
func LoadProjectConfig(path string) (*ProjectConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeConfigInvalid, "loading project config", err)
		}
	case os.IsNotExist(err) && path == DefaultPath:
	default:
		return nil, apperrors.Wrap(apperrors.CodeConfigInvalid, "loading project config", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigInvalid, "parse env", err)
	}

	if err := validateProjectConfig(cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigInvalid, "loading project config", err)
	}

	return cfg, nil
}

func validateProjectConfig(cfg *ProjectConfig) error {
	if strings.TrimSpace(cfg.OutputDir) == "" {
		return fmt.Errorf("output_dir is required")
	}
	if len(cfg.SpecDirs) == 0 {
		return fmt.Errorf("at least one spec dir is required")
	}
	if cfg.ParallelAgents < 1 {
		return fmt.Errorf("parallel_agents must be positive, got %d", cfg.ParallelAgents)
	}
	if cfg.ItemsPerBatch < 1 {
		return fmt.Errorf("items_per_batch must be positive, got %d", cfg.ItemsPerBatch)
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", cfg.MaxRetries)
	}
	if cfg.CheckpointInterval < 1 {
		return fmt.Errorf("checkpoint_interval must be positive, got %d", cfg.CheckpointInterval)
	}
	if cfg.TokenBudget < 1 {
		return fmt.Errorf("token_budget must be positive, got %d", cfg.TokenBudget)
	}
	if cfg.CacheCapacity < 1 {
		return fmt.Errorf("cache_capacity must be positive, got %d", cfg.CacheCapacity)
	}
	if cfg.SampleThresholds.HTML < 1 || cfg.SampleThresholds.JSON < 1 {
		return fmt.Errorf("sample thresholds must be positive")
	}
	if cfg.ArchiveRetention < 0 {
		return fmt.Errorf("archive_retention must not be negative")
	}

	seen := make(map[string]struct{})
	for i, dir := range cfg.SpecDirs {
		if strings.TrimSpace(dir) == "" {
			return fmt.Errorf("spec dir %d is empty", i)
		}
		if _, exists := seen[dir]; exists {
			return fmt.Errorf("duplicate spec dir: %s", dir)
		}
		seen[dir] = struct{}{}
	}

	return nil
}
