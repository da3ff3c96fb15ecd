// Package config loads and validates runtime settings. Values come from, in
// increasing precedence: defaults, the config file, AKT_* environment
// variables and command-line flags bound by cmd.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/appknox/ak-translator/internal/language"
)

const EnvPrefix = "AKT"

type Config struct {
	Server    ServerConfig   `mapstructure:"server"`
	Model     ModelConfig    `mapstructure:"model"`
	Pipeline  PipelineConfig `mapstructure:"pipeline"`
	Languages []string       `mapstructure:"languages" validate:"required,min=1,dive,required"`
	Glossary  GlossaryConfig `mapstructure:"glossary"`
	Log       LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Addr        string   `mapstructure:"addr" validate:"required"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type ModelConfig struct {
	Backend           string        `mapstructure:"backend" validate:"required,oneof=ollama openai openrouter gemini"`
	Name              string        `mapstructure:"name"`
	BaseURL           string        `mapstructure:"base_url" validate:"omitempty,url"`
	APIKey            string        `mapstructure:"api_key"`
	Temperature       float32       `mapstructure:"temperature" validate:"gte=0,lte=2"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxAttempts       int           `mapstructure:"max_attempts" validate:"min=1,max=10"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int           `mapstructure:"burst" validate:"min=1"`
}

type PipelineConfig struct {
	MaxIterations    int  `mapstructure:"max_iterations" validate:"min=1,max=10"`
	ChunkSize        int  `mapstructure:"chunk_size" validate:"min=1"`
	ChunkConcurrency int  `mapstructure:"chunk_concurrency" validate:"min=1,max=64"`
	ReasoningLimit   int  `mapstructure:"reasoning_limit" validate:"min=1"`
	Cache            bool `mapstructure:"cache"`
	LanguageCheck    bool `mapstructure:"language_check"`
}

type GlossaryConfig struct {
	DB string `mapstructure:"db"`
}

type LogConfig struct {
	Level       string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Development bool   `mapstructure:"development"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("model.backend", "ollama")
	v.SetDefault("model.temperature", 0)
	v.SetDefault("model.timeout", 120*time.Second)
	v.SetDefault("model.max_attempts", 3)
	v.SetDefault("model.requests_per_second", 0)
	v.SetDefault("model.burst", 1)

	v.SetDefault("pipeline.max_iterations", 2)
	v.SetDefault("pipeline.chunk_size", 40)
	v.SetDefault("pipeline.chunk_concurrency", 4)
	v.SetDefault("pipeline.reasoning_limit", 100)
	v.SetDefault("pipeline.cache", true)
	v.SetDefault("pipeline.language_check", false)

	v.SetDefault("languages", language.DefaultCodes)
	v.SetDefault("glossary.db", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// BindEnv makes every key readable from AKT_SECTION_KEY variables.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the validated defaults, mostly for tests.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := Load(v)
	if err != nil {
		panic(err)
	}
	return cfg
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s fails %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Model.Backend != "ollama" && c.Model.APIKey == "" {
		return fmt.Errorf("invalid config: model.api_key is required for backend %s", c.Model.Backend)
	}
	if _, err := language.NewSet(c.Languages); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
