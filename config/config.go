// Package config loads and validates the application configuration.
package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Scraper  ScraperConfig  `yaml:"scraper" mapstructure:"scraper"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	History  HistoryConfig  `yaml:"history" mapstructure:"history"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// PipelineConfig is the only configuration surface the transformation core
// accepts: artifact paths, the default category, and the category values
// treated as scraping placeholders.
type PipelineConfig struct {
	InputFile             string   `yaml:"input_file" mapstructure:"input_file"`
	ProcessedOutput       string   `yaml:"processed_output" mapstructure:"processed_output"`
	FeaturesOutput        string   `yaml:"features_output" mapstructure:"features_output"`
	DefaultCategory       string   `yaml:"default_category" mapstructure:"default_category"`
	ProblematicCategories []string `yaml:"problematic_categories" mapstructure:"problematic_categories"`
}

// ScraperConfig configures the catalog scraper.
type ScraperConfig struct {
	BaseURL          string        `yaml:"base_url" mapstructure:"base_url"`
	MaxPages         int           `yaml:"max_pages" mapstructure:"max_pages"`
	Parallelism      int           `yaml:"parallelism" mapstructure:"parallelism"`
	Delay            time.Duration `yaml:"delay" mapstructure:"delay"`
	RandomDelay      time.Duration `yaml:"random_delay" mapstructure:"random_delay"`
	Timeout          time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxRetries       int           `yaml:"max_retries" mapstructure:"max_retries"`
	RetryBackoff     time.Duration `yaml:"retry_backoff" mapstructure:"retry_backoff"`
	RetryBackoffMax  time.Duration `yaml:"retry_backoff_max" mapstructure:"retry_backoff_max"`
	UserAgent        string        `yaml:"user_agent" mapstructure:"user_agent"`
	RespectRobotsTxt bool          `yaml:"respect_robots_txt" mapstructure:"respect_robots_txt"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// HistoryConfig configures the run-history store.
type HistoryConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml and the environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BOOKS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("pipeline.input_file", "data/raw/books_raw.csv")
	v.SetDefault("pipeline.processed_output", "data/processed/books_processed.csv")
	v.SetDefault("pipeline.features_output", "data/features/books_features.csv")
	v.SetDefault("pipeline.default_category", "Uncategorized")
	v.SetDefault("pipeline.problematic_categories", []string{"Default", "Add a comment"})
	v.SetDefault("scraper.base_url", "https://books.toscrape.com")
	v.SetDefault("scraper.max_pages", 50)
	v.SetDefault("scraper.parallelism", 16)
	v.SetDefault("scraper.timeout", 10*time.Second)
	v.SetDefault("scraper.max_retries", 2)
	v.SetDefault("scraper.retry_backoff", 200*time.Millisecond)
	v.SetDefault("scraper.retry_backoff_max", 2*time.Second)
	v.SetDefault("scraper.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("history.path", "data/history.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if err := c.Pipeline.Validate(); err != nil {
		return err
	}

	s := c.Scraper
	if s.BaseURL == "" {
		return eris.New("config: base URL cannot be empty")
	}
	parsed, err := url.Parse(s.BaseURL)
	if err != nil {
		return eris.Wrap(err, "config: invalid base URL")
	}
	if parsed.Host == "" {
		return eris.New("config: base URL must include a host")
	}
	if s.MaxPages <= 0 {
		return eris.New("config: max pages must be positive")
	}
	if s.Parallelism <= 0 {
		return eris.New("config: parallelism must be positive")
	}
	if s.Delay < 0 || s.RandomDelay < 0 {
		return eris.New("config: delays cannot be negative")
	}
	if s.Timeout <= 0 {
		return eris.New("config: timeout must be positive")
	}
	if s.MaxRetries < 0 {
		return eris.New("config: max retries cannot be negative")
	}
	if s.RetryBackoff < 0 || s.RetryBackoffMax < 0 {
		return eris.New("config: retry backoff cannot be negative")
	}
	if s.RetryBackoffMax > 0 && s.RetryBackoff > s.RetryBackoffMax {
		return eris.New("config: retry backoff cannot exceed retry backoff max")
	}
	if s.UserAgent == "" {
		return eris.New("config: user agent cannot be empty")
	}
	if c.Server.Addr == "" {
		return eris.New("config: server addr cannot be empty")
	}
	return nil
}

// Validate checks the pipeline section on its own so the orchestrator can be
// driven with a hand-built PipelineConfig in tests.
func (p *PipelineConfig) Validate() error {
	if p.InputFile == "" {
		return eris.New("config: pipeline input file cannot be empty")
	}
	if p.ProcessedOutput == "" {
		return eris.New("config: processed output path cannot be empty")
	}
	if p.FeaturesOutput == "" {
		return eris.New("config: features output path cannot be empty")
	}
	if p.DefaultCategory == "" {
		return eris.New("config: default category cannot be empty")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return nil
}
