// Package config loads server settings from flags, the environment and an
// optional config file. Precedence, highest first: flags, environment,
// config file, defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"storyweaver/pkg/inference"
	"storyweaver/pkg/store"
)

const (
	NERHeuristic = "heuristic"
	NERModel     = "model"
)

type Config struct {
	Port        string        `mapstructure:"port"`
	LogLevel    string        `mapstructure:"log_level"`
	CORSOrigins []string      `mapstructure:"cors_origins"`
	Seed        bool          `mapstructure:"seed"`
	ShutdownTTL time.Duration `mapstructure:"shutdown_timeout"`

	Provider       string `mapstructure:"llm_provider"`
	APIKey         string `mapstructure:"llm_api_key"`
	Model          string `mapstructure:"llm_model"`
	BaseURL        string `mapstructure:"llm_base_url"`
	EmbeddingModel string `mapstructure:"embedding_model"`
	EmbeddingDims  int    `mapstructure:"embedding_dims"`

	StoreDriver string `mapstructure:"store_driver"`
	StorePath   string `mapstructure:"store_path"`

	NERMode        string        `mapstructure:"ner_mode"`
	SearchCacheTTL time.Duration `mapstructure:"search_cache_ttl"`
	ContextTokens  int           `mapstructure:"context_tokens"`
}

// SetDefaults registers every key so that AutomaticEnv and Unmarshal see it.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("cors_origins", []string{"*"})
	v.SetDefault("seed", true)
	v.SetDefault("shutdown_timeout", 10*time.Second)

	v.SetDefault("llm_provider", "")
	v.SetDefault("llm_api_key", "")
	v.SetDefault("llm_model", "")
	v.SetDefault("llm_base_url", "")
	v.SetDefault("embedding_model", "")
	v.SetDefault("embedding_dims", 384)

	v.SetDefault("store_driver", store.DriverMemory)
	v.SetDefault("store_path", "")

	v.SetDefault("ner_mode", NERHeuristic)
	v.SetDefault("search_cache_ttl", time.Minute)
	v.SetDefault("context_tokens", 3000)
}

// New returns a viper instance reading STORYWEAVER_* variables and, when
// file is set, that config file.
func New(file string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("STORYWEAVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Conventional unprefixed names used by hosting platforms and SDKs.
	_ = v.BindEnv("port", "STORYWEAVER_PORT", "PORT")
	_ = v.BindEnv("llm_api_key", "STORYWEAVER_LLM_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("llm_model", "STORYWEAVER_LLM_MODEL", "OPENAI_MODEL")
	_ = v.BindEnv("llm_base_url", "STORYWEAVER_LLM_BASE_URL", "OPENAI_BASE_URL")

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	return v, nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" && c.APIKey != "" {
		c.Provider = string(inference.ProviderOpenAI)
	}
	if c.Provider != "" && !inference.Provider(c.Provider).Known() {
		return fmt.Errorf("llm_provider: unknown provider %q", c.Provider)
	}

	switch c.NERMode = strings.ToLower(c.NERMode); c.NERMode {
	case NERHeuristic, NERModel:
	default:
		return fmt.Errorf("ner_mode: must be %q or %q", NERHeuristic, NERModel)
	}
	if c.NERMode == NERModel && c.Provider == "" {
		return fmt.Errorf("ner_mode: %q needs llm_provider or an api key", NERModel)
	}

	switch c.StoreDriver = strings.ToLower(c.StoreDriver); c.StoreDriver {
	case store.DriverMemory, store.DriverFile, store.DriverSQLite:
	default:
		return fmt.Errorf("store_driver: unknown driver %q", c.StoreDriver)
	}

	if c.SearchCacheTTL < 0 {
		return errors.New("search_cache_ttl: must not be negative")
	}
	if c.EmbeddingDims <= 0 {
		return errors.New("embedding_dims: must be positive")
	}
	return nil
}

func (c Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}
