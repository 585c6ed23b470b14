package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Prompt policies for repeated offline ticks.
const (
	PromptOnce      = "once"
	PromptEveryTick = "every_tick"
)

// Sink backends understood by the agent.
const (
	SinkHTTP  = "http"
	SinkRedis = "redis"
	SinkMongo = "mongo"
	SinkLog   = "log"
)

// Config represents configuration data for both binaries.
type Config struct {
	Agent          Agent          `yaml:"agent" toml:"agent"`
	HTTPSink       HTTPSink       `yaml:"http_sink" toml:"http_sink"`
	Redis          Redis          `yaml:"redis" toml:"redis"`
	Mongo          Mongo          `yaml:"mongo" toml:"mongo"`
	ProfileService ProfileService `yaml:"profile_service" toml:"profile_service"`
}

// Agent configures the presence monitor process.
type Agent struct {
	IntervalMS          int    `yaml:"interval_ms" toml:"interval_ms" validate:"gte=100"`
	Token               string `yaml:"token" toml:"token"`
	PromptPolicy        string `yaml:"prompt_policy" toml:"prompt_policy" validate:"oneof=once every_tick"`
	Sink                string `yaml:"sink" toml:"sink" validate:"oneof=http redis mongo log"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds" toml:"write_timeout_seconds" validate:"gte=1"`
	Workers             int    `yaml:"workers" toml:"workers" validate:"gte=1"`
	Interactive         bool   `yaml:"interactive" toml:"interactive"`
	LogLevel            string `yaml:"log_level" toml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat           string `yaml:"log_format" toml:"log_format" validate:"oneof=console json"`
}

// HTTPSink points the agent at a profile service.
type HTTPSink struct {
	BaseURL string `yaml:"base_url" toml:"base_url"`
}

// Redis holds connection settings for the redis sink.
type Redis struct {
	Addr     string `yaml:"addr" toml:"addr"`
	Password string `yaml:"password" toml:"password"`
	DB       int    `yaml:"db" toml:"db" validate:"gte=0"`
}

// Mongo holds connection settings for the mongo sink.
type Mongo struct {
	URI        string `yaml:"uri" toml:"uri"`
	Database   string `yaml:"database" toml:"database"`
	Collection string `yaml:"collection" toml:"collection"`
}

// ProfileService configures the profile store process.
type ProfileService struct {
	Addr                 string `yaml:"addr" toml:"addr"`
	DataDirectory        string `yaml:"data_directory" toml:"data_directory" validate:"required"`
	StaleAfterSeconds    int    `yaml:"stale_after_seconds" toml:"stale_after_seconds" validate:"gte=1"`
	SweepIntervalSeconds int    `yaml:"sweep_interval_seconds" toml:"sweep_interval_seconds" validate:"gte=1"`
	MaxHistory           int    `yaml:"max_history" toml:"max_history" validate:"gte=1"`
	PushIntervalSeconds  int    `yaml:"push_interval_seconds" toml:"push_interval_seconds" validate:"gte=1"`
}

// DefaultConfig returns sensible defaults in case no configuration file is provided.
func DefaultConfig() Config {
	return Config{
		Agent: Agent{
			IntervalMS:          3000,
			PromptPolicy:        PromptOnce,
			Sink:                SinkHTTP,
			WriteTimeoutSeconds: 10,
			Workers:             16,
			LogLevel:            "info",
			LogFormat:           "console",
		},
		HTTPSink: HTTPSink{BaseURL: "http://127.0.0.1:8080"},
		Redis:    Redis{Addr: "127.0.0.1:6379"},
		Mongo: Mongo{
			URI:        "mongodb://127.0.0.1:27017",
			Database:   "notes_app",
			Collection: "users",
		},
		ProfileService: ProfileService{
			Addr:                 ":8080",
			DataDirectory:        filepath.Join(".dist", "data"),
			StaleAfterSeconds:    60,
			SweepIntervalSeconds: 30,
			MaxHistory:           20000,
			PushIntervalSeconds:  15,
		},
	}
}

// Load reads configuration from a yaml (or toml) file. Missing files fall back to defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(content), &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	} else if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and cross-field requirements.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.Agent.Sink {
	case SinkHTTP:
		if c.HTTPSink.BaseURL == "" {
			return errors.New("http_sink.base_url is required for the http sink")
		}
	case SinkRedis:
		if c.Redis.Addr == "" {
			return errors.New("redis.addr is required for the redis sink")
		}
	case SinkMongo:
		if c.Mongo.URI == "" || c.Mongo.Database == "" || c.Mongo.Collection == "" {
			return errors.New("mongo.uri, mongo.database and mongo.collection are required for the mongo sink")
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Agent.IntervalMS <= 0 {
		c.Agent.IntervalMS = def.Agent.IntervalMS
	}
	if c.Agent.PromptPolicy == "" {
		c.Agent.PromptPolicy = def.Agent.PromptPolicy
	}
	if c.Agent.Sink == "" {
		c.Agent.Sink = def.Agent.Sink
	}
	if c.Agent.WriteTimeoutSeconds <= 0 {
		c.Agent.WriteTimeoutSeconds = def.Agent.WriteTimeoutSeconds
	}
	if c.Agent.Workers <= 0 {
		c.Agent.Workers = def.Agent.Workers
	}
	c.Agent.LogLevel = strings.ToLower(strings.TrimSpace(c.Agent.LogLevel))
	if c.Agent.LogLevel == "" {
		c.Agent.LogLevel = def.Agent.LogLevel
	}
	if c.Agent.LogFormat == "" {
		c.Agent.LogFormat = def.Agent.LogFormat
	}
	c.HTTPSink.BaseURL = strings.TrimSuffix(strings.TrimSpace(c.HTTPSink.BaseURL), "/")
	if c.ProfileService.DataDirectory == "" {
		c.ProfileService.DataDirectory = def.ProfileService.DataDirectory
	}
	if c.ProfileService.StaleAfterSeconds <= 0 {
		c.ProfileService.StaleAfterSeconds = def.ProfileService.StaleAfterSeconds
	}
	if c.ProfileService.SweepIntervalSeconds <= 0 {
		c.ProfileService.SweepIntervalSeconds = def.ProfileService.SweepIntervalSeconds
	}
	if c.ProfileService.MaxHistory <= 0 {
		c.ProfileService.MaxHistory = def.ProfileService.MaxHistory
	}
	if c.ProfileService.PushIntervalSeconds <= 0 {
		c.ProfileService.PushIntervalSeconds = def.ProfileService.PushIntervalSeconds
	}
}
