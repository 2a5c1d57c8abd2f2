package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type WebConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type SpeechConfig struct {
	Engine    string `yaml:"engine"` // local | openai
	Model     string `yaml:"model"`
	Device    string `yaml:"device"` // cuda | cpu
	PythonBin string `yaml:"python_bin"`
	OpenAIKey string `yaml:"openai_key"`
}

type PipelineConfig struct {
	WorkDir           string        `yaml:"work_dir"`
	AcceleratorSlots  int           `yaml:"accelerator_slots"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	HardTimeout       time.Duration `yaml:"hard_timeout"`
	SoftTimeout       time.Duration `yaml:"soft_timeout"`
	NoiseReduction    bool          `yaml:"noise_reduction"`
	LoudnessNormalize bool          `yaml:"loudness_normalize"`
	MaxUploadBytes    int64         `yaml:"max_upload_bytes"`
}

type RetentionConfig struct {
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	CompletedWindow time.Duration `yaml:"completed_window"`
	FailedWindow    time.Duration `yaml:"failed_window"`
	BatchLimit      int           `yaml:"batch_limit"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Web       WebConfig       `yaml:"web"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Speech    SpeechConfig    `yaml:"speech"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Retention RetentionConfig `yaml:"retention"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file, then applies environment overrides for
// secrets. A .env file next to the binary is honored when present.
func LoadConfig(configPath string, dev bool) (*Config, error) {
	// missing .env is fine
	_ = godotenv.Load()

	b, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// env overrides for secrets
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Speech.OpenAIKey = v
	}
	if v := os.Getenv("WEB_API_KEY"); v != "" {
		cfg.Web.APIKey = v
	}

	applyDefaults(&cfg)

	// minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Speech.Engine == "openai" && cfg.Speech.OpenAIKey == "" {
		return nil, errors.New("speech.openai_key is required for the openai engine")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Web.Port <= 0 {
		cfg.Web.Port = 8080
	}
	if cfg.Speech.Engine == "" {
		cfg.Speech.Engine = "local"
	}
	if cfg.Speech.Model == "" {
		cfg.Speech.Model = "large-v3-turbo"
	}
	if cfg.Pipeline.WorkDir == "" {
		cfg.Pipeline.WorkDir = os.TempDir()
	}
	if cfg.Pipeline.AcceleratorSlots <= 0 {
		cfg.Pipeline.AcceleratorSlots = 1
	}
	if cfg.Pipeline.PollInterval <= 0 {
		cfg.Pipeline.PollInterval = 500 * time.Millisecond
	}
	if cfg.Pipeline.HardTimeout <= 0 {
		cfg.Pipeline.HardTimeout = 4 * time.Hour
	}
	if cfg.Pipeline.SoftTimeout <= 0 || cfg.Pipeline.SoftTimeout >= cfg.Pipeline.HardTimeout {
		cfg.Pipeline.SoftTimeout = cfg.Pipeline.HardTimeout - 30*time.Minute
	}
	if cfg.Pipeline.MaxUploadBytes <= 0 {
		cfg.Pipeline.MaxUploadBytes = 500 * 1024 * 1024
	}
	if cfg.Retention.SweepInterval <= 0 {
		cfg.Retention.SweepInterval = 15 * time.Minute
	}
	if cfg.Retention.CompletedWindow <= 0 {
		cfg.Retention.CompletedWindow = 8 * time.Hour
	}
	if cfg.Retention.FailedWindow <= 0 {
		cfg.Retention.FailedWindow = 24 * time.Hour
	}
	if cfg.Retention.BatchLimit <= 0 {
		cfg.Retention.BatchLimit = 100
	}
}
