package config

import (
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AI       AIConfig       `yaml:"ai"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql, postgres
	DSN    string `yaml:"dsn"`
}

// RedisConfig enables the optional async generation queue.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// BackendConfig holds the credentials and model selection for one
// generation backend. A backend is configured but unusable until a
// credential is present (Ollama and the fake backend need none).
type BackendConfig struct {
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Disabled bool   `yaml:"disabled"`
}

// AIConfig holds every dispatch, cache and quota option.
// MaxRetries is recognized but currently inert: fallback across backends
// substitutes for per-backend retry.
type AIConfig struct {
	PreferredService string                   `yaml:"preferred_service"`
	AutoFallback     bool                     `yaml:"auto_fallback"`
	FallbackOrder    []string                 `yaml:"fallback_order"`
	Temperature      float64                  `yaml:"temperature"`
	MaxTokens        int                      `yaml:"max_tokens"`
	Timeout          int                      `yaml:"timeout"` // seconds, per backend call
	MaxRetries       int                      `yaml:"max_retries"`
	EnableCache      bool                     `yaml:"enable_cache"`
	CacheExpireHours int                      `yaml:"cache_expire_hours"`
	CacheSizeMB      int                      `yaml:"cache_size_mb"`
	DailyLimit       int64                    `yaml:"daily_limit"`
	MonthlyLimit     int64                    `yaml:"monthly_limit"`
	CostLimit        float64                  `yaml:"cost_limit"`
	LogRetentionDays int                      `yaml:"log_retention_days"`
	Backends         map[string]BackendConfig `yaml:"backends"`
}

var GlobalConfig *Config

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	var cfg *Config

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg = DefaultConfig()
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}

		fileCfg := DefaultConfig()
		if err := yaml.Unmarshal(data, fileCfg); err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	cfg.overrideFromEnv()
	GlobalConfig = cfg
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: "8080",
			Mode: "debug",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "aihub.db",
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
		},
		AI: AIConfig{
			PreferredService: "gemini",
			AutoFallback:     true,
			FallbackOrder:    []string{"claude", "openai", "gemini"},
			Temperature:      0.7,
			MaxTokens:        2000,
			Timeout:          30,
			MaxRetries:       3,
			EnableCache:      true,
			CacheExpireHours: 24,
			CacheSizeMB:      100,
			DailyLimit:       100,
			MonthlyLimit:     1000,
			CostLimit:        50.0,
			LogRetentionDays: 30,
			Backends: map[string]BackendConfig{
				"openai": {Model: "gpt-4"},
				"claude": {Model: "claude-3-5-sonnet-20241022"},
				"gemini": {Model: "gemini-2.0-flash-exp"},
				"ollama": {Model: "llama3", BaseURL: "http://localhost:11434"},
			},
		},
	}
}

func (c *Config) overrideFromEnv() {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		c.Server.Mode = mode
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Redis.Enabled = true
		c.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		c.Redis.Password = password
	}
	if db := os.Getenv("REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			c.Redis.DB = n
		}
	}

	c.overrideBackendEnv("openai", "OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_BASE_URL")
	c.overrideBackendEnv("claude", "ANTHROPIC_API_KEY", "ANTHROPIC_MODEL", "")
	c.overrideBackendEnv("gemini", "GEMINI_API_KEY", "GEMINI_MODEL", "")
	c.overrideBackendEnv("ollama", "", "OLLAMA_MODEL", "OLLAMA_BASE_URL")

	if preferred := os.Getenv("AI_PREFERRED_SERVICE"); preferred != "" {
		c.AI.PreferredService = preferred
	}
}

func (c *Config) overrideBackendEnv(name, keyEnv, modelEnv, urlEnv string) {
	if c.AI.Backends == nil {
		c.AI.Backends = make(map[string]BackendConfig)
	}
	backend := c.AI.Backends[name]
	if keyEnv != "" {
		if key := os.Getenv(keyEnv); key != "" {
			backend.APIKey = key
		}
	}
	if modelEnv != "" {
		if model := os.Getenv(modelEnv); model != "" {
			backend.Model = model
		}
	}
	if urlEnv != "" {
		if url := os.Getenv(urlEnv); url != "" {
			backend.BaseURL = url
		}
	}
	c.AI.Backends[name] = backend
}

func (c *Config) Save(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}
