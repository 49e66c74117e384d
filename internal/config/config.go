package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "UTC"
	configPathEnv   = "RECIPE_COLLECTOR_CONFIG"

	discordTokenEnv      = "DISCORD_TOKEN"
	discordChannelEnv    = "DISCORD_CHANNEL_ID"
	discordReportEnv     = "DISCORD_REPORT_CHANNEL_ID"
	databaseDSNEnv       = "DATABASE_DSN"
	redisAddrEnv         = "REDIS_ADDR"
	redisPasswordEnv     = "REDIS_PASSWORD"
	openAIAPIKeyEnv      = "OPENAI_API_KEY"
	openAIModelEnv       = "OPENAI_MODEL"
	logLevelEnv          = "LOG_LEVEL"
	serverAddrEnv        = "SERVER_ADDR"
	pushgatewayURLEnv    = "PUSHGATEWAY_URL"
	classifierBackendEnv = "CLASSIFIER_BACKEND"
	runStateBackendEnv   = "RUN_STATE_BACKEND"
	databaseMigrateEnv   = "DATABASE_MIGRATE"
)

// Backends accepted by the runState and classifier sections.
const (
	RunStateFile     = "file"
	RunStateRedis    = "redis"
	ClassifierCLI    = "command"
	ClassifierOpenAI = "openai"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Discord    DiscordConfig    `yaml:"discord"`
	Database   DatabaseConfig   `yaml:"database"`
	RunState   RunStateConfig   `yaml:"runState"`
	Scraper    ScraperConfig    `yaml:"scraper"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Timeouts   TimeoutsConfig   `yaml:"timeouts"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Server     ServerConfig     `yaml:"server"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// LoggingConfig selects level and handler format (text or json).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DiscordConfig points at the recipe channel and, optionally, a channel for run summaries.
type DiscordConfig struct {
	Token           string `yaml:"token"`
	ChannelID       string `yaml:"channelId"`
	ReportChannelID string `yaml:"reportChannelId"`
	PageSize        int    `yaml:"pageSize"`
}

// DatabaseConfig describes Postgres connection details.
type DatabaseConfig struct {
	DSN     string `yaml:"dsn"`
	Migrate bool   `yaml:"migrate"`
}

// RunStateConfig chooses where the incremental-run marker lives.
type RunStateConfig struct {
	Backend string      `yaml:"backend"`
	Path    string      `yaml:"path"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig locates the redis run-state key. An empty Key uses the store's default.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// ScraperConfig tunes page fetching.
type ScraperConfig struct {
	UserAgent            string        `yaml:"userAgent"`
	Timeout              time.Duration `yaml:"timeout"`
	MaxBodyBytes         int64         `yaml:"maxBodyBytes"`
	RatePerSecond        float64       `yaml:"ratePerSecond"`
	BlockPrivateNetworks bool          `yaml:"blockPrivateNetworks"`
}

// ClassifierConfig selects the language-model backend.
type ClassifierConfig struct {
	Backend       string        `yaml:"backend"`
	Command       []string      `yaml:"command"`
	Timeout       time.Duration `yaml:"timeout"`
	RatePerSecond float64       `yaml:"ratePerSecond"`
	OpenAI        OpenAIConfig  `yaml:"openai"`
}

// OpenAIConfig defines how to contact an OpenAI-compatible chat API.
type OpenAIConfig struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"apiKey"`
}

// TimeoutsConfig bounds each pipeline stage; zero disables the bound.
type TimeoutsConfig struct {
	Source   time.Duration `yaml:"source"`
	Extract  time.Duration `yaml:"extract"`
	Classify time.Duration `yaml:"classify"`
	Persist  time.Duration `yaml:"persist"`
}

// SchedulerConfig defines when the collector should run in serve mode.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// MetricsConfig enables pushing run metrics when PushgatewayURL is set.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgatewayUrl"`
	Job            string `yaml:"job"`
}

// Load reads .env and the YAML file (if present) over defaults, then applies environment overrides.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.bindTimezone(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate reports every missing or inconsistent setting at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Discord.Token) == "" {
		errs = append(errs, fmt.Errorf("%s is required", discordTokenEnv))
	}
	if strings.TrimSpace(c.Discord.ChannelID) == "" {
		errs = append(errs, fmt.Errorf("%s is required", discordChannelEnv))
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		errs = append(errs, fmt.Errorf("%s is required", databaseDSNEnv))
	}

	switch c.RunState.Backend {
	case RunStateFile:
		if c.RunState.Path == "" {
			errs = append(errs, errors.New("runState.path is required for the file backend"))
		}
	case RunStateRedis:
		if c.RunState.Redis.Addr == "" {
			errs = append(errs, fmt.Errorf("%s is required for the redis backend", redisAddrEnv))
		}
	default:
		errs = append(errs, fmt.Errorf("runState.backend %q is not one of file, redis", c.RunState.Backend))
	}

	switch c.Classifier.Backend {
	case ClassifierCLI:
	case ClassifierOpenAI:
		if c.Classifier.OpenAI.APIKey == "" {
			errs = append(errs, fmt.Errorf("%s is required for the openai classifier", openAIAPIKeyEnv))
		}
	default:
		errs = append(errs, fmt.Errorf("classifier.backend %q is not one of command, openai", c.Classifier.Backend))
	}

	return errors.Join(errs...)
}

func (c *Config) applyEnvOverrides() {
	setString(&c.Discord.Token, discordTokenEnv)
	setString(&c.Discord.ChannelID, discordChannelEnv)
	setString(&c.Discord.ReportChannelID, discordReportEnv)
	setString(&c.Database.DSN, databaseDSNEnv)
	setString(&c.Classifier.Backend, classifierBackendEnv)
	setString(&c.Classifier.OpenAI.APIKey, openAIAPIKeyEnv)
	setString(&c.Classifier.OpenAI.Model, openAIModelEnv)
	setString(&c.Logging.Level, logLevelEnv)
	setString(&c.Server.Addr, serverAddrEnv)
	setString(&c.Metrics.PushgatewayURL, pushgatewayURLEnv)
	setString(&c.RunState.Redis.Password, redisPasswordEnv)

	if v := os.Getenv(redisAddrEnv); v != "" {
		c.RunState.Redis.Addr = v
		if os.Getenv(runStateBackendEnv) == "" {
			c.RunState.Backend = RunStateRedis
		}
	}
	setString(&c.RunState.Backend, runStateBackendEnv)

	if v := os.Getenv(databaseMigrateEnv); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Database.Migrate = b
		}
	}
}

func setString(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}

func (c *Config) bindTimezone() error {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("scheduler timezone %q: %w", tz, err)
	}
	c.Scheduler.location = loc
	return nil
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Discord: DiscordConfig{PageSize: 100},
		RunState: RunStateConfig{
			Backend: RunStateFile,
			Path:    "data/last_run.json",
		},
		Scraper: ScraperConfig{
			UserAgent:            "Mozilla/5.0 (compatible; RecipeCollector/1.0)",
			Timeout:              10 * time.Second,
			MaxBodyBytes:         2 << 20,
			RatePerSecond:        2,
			BlockPrivateNetworks: true,
		},
		Classifier: ClassifierConfig{
			Backend:       ClassifierCLI,
			Command:       []string{"claude", "-p"},
			Timeout:       60 * time.Second,
			RatePerSecond: 1,
			OpenAI: OpenAIConfig{
				Endpoint: "https://api.openai.com/v1/chat/completions",
				Model:    "gpt-4o-mini",
			},
		},
		Timeouts: TimeoutsConfig{
			Source:   2 * time.Minute,
			Extract:  15 * time.Second,
			Classify: 90 * time.Second,
			Persist:  10 * time.Second,
		},
		Scheduler: SchedulerConfig{CronExpression: "0 9 * * *", Timezone: "Asia/Tokyo", location: tz},
		Server:    ServerConfig{Addr: ":8080"},
		Metrics:   MetricsConfig{Job: "recipe_collector"},
	}
}
