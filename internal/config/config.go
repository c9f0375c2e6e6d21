package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Prefix is the environment variable prefix of every setting.
const Prefix = "BUDDY"

// Config holds all application configuration. Environment variables win over
// the optional YAML file, which wins over defaults.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	ConfigFile  string `envconfig:"CONFIG_FILE"`

	// HTTP
	ListenAddr  string `envconfig:"LISTEN_ADDR" default:":8080"`
	CORSOrigins string `envconfig:"CORS_ORIGINS"`

	// Per-client limit on the generation endpoints; 0 disables it.
	RateLimitRPS   int `envconfig:"RATE_LIMIT_RPS" default:"2"`
	RateLimitBurst int `envconfig:"RATE_LIMIT_BURST" default:"10"`

	// Storage
	DBPath    string `envconfig:"DB_PATH" default:"buddy.db"`
	Namespace string `envconfig:"NAMESPACE" default:"buddy"`
	CacheSize int    `envconfig:"CACHE_SIZE" default:"1048576"`

	// Translations: LocalesURL, when set, is fetched instead of LocalesDir.
	LocalesDir string `envconfig:"LOCALES_DIR" default:"./locales"`
	LocalesURL string `envconfig:"LOCALES_URL"`

	// Text generation (offline when LLMAPIKey is empty)
	LLMAPIKey  string        `envconfig:"LLM_API_KEY"`
	LLMModel   string        `envconfig:"LLM_MODEL"`
	LLMBaseURL string        `envconfig:"LLM_BASE_URL"`
	LLMTimeout time.Duration `envconfig:"LLM_TIMEOUT" default:"60s"`

	// Activities
	PointsPerActivity int           `envconfig:"POINTS_PER_ACTIVITY" default:"10"`
	ToastDuration     time.Duration `envconfig:"TOAST_DURATION" default:"3s"`
	StoryMinTurns     int           `envconfig:"STORY_MIN_TURNS" default:"3"`
}

// Offline returns true when no text-generation key is configured.
func (c *Config) Offline() bool {
	return c.LLMAPIKey == ""
}

// IsDevelopment returns true for the development environment.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// CORSOriginList returns the parsed list of allowed origins, nil when unset.
func (c *Config) CORSOriginList() []string {
	if c.CORSOrigins == "" {
		return nil
	}
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Validate checks values envconfig cannot check on its own.
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address is empty")
	}
	if c.Namespace == "" {
		return fmt.Errorf("storage namespace is empty")
	}
	if c.RateLimitRPS < 0 || (c.RateLimitRPS > 0 && c.RateLimitBurst < 1) {
		return fmt.Errorf("rate limit needs rps >= 0 and a positive burst, got %d/%d", c.RateLimitRPS, c.RateLimitBurst)
	}
	if c.PointsPerActivity < 0 {
		return fmt.Errorf("points per activity must not be negative, got %d", c.PointsPerActivity)
	}
	if c.ToastDuration <= 0 {
		return fmt.Errorf("toast duration must be positive, got %s", c.ToastDuration)
	}
	if c.StoryMinTurns < 1 {
		return fmt.Errorf("story min turns must be at least 1, got %d", c.StoryMinTurns)
	}
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("llm timeout must be positive, got %s", c.LLMTimeout)
	}
	return nil
}

// Load reads configuration from BUDDY_* environment variables, overlays the
// YAML file named by BUDDY_CONFIG_FILE when set, and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if cfg.ConfigFile != "" {
		raw, err := os.ReadFile(cfg.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", cfg.ConfigFile, err)
		}
		if err := cfg.overlay(raw); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", cfg.ConfigFile, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// fileConfig is the YAML shape of the config file.
type fileConfig struct {
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`
	HTTP        struct {
		ListenAddr  string   `yaml:"listen_addr"`
		CORSOrigins []string `yaml:"cors_origins"`
		RateLimit   struct {
			RPS   int `yaml:"rps"`
			Burst int `yaml:"burst"`
		} `yaml:"rate_limit"`
	} `yaml:"http"`
	Storage struct {
		DBPath    string `yaml:"db_path"`
		Namespace string `yaml:"namespace"`
		CacheSize int    `yaml:"cache_size"`
	} `yaml:"storage"`
	Locales struct {
		Dir string `yaml:"dir"`
		URL string `yaml:"url"`
	} `yaml:"locales"`
	LLM struct {
		// APIKey. Prefer ${ANTHROPIC_API_KEY} syntax over a literal key.
		APIKey  string        `yaml:"api_key"`
		Model   string        `yaml:"model"`
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"llm"`
	Activities struct {
		PointsPerActivity int           `yaml:"points_per_activity"`
		ToastDuration     time.Duration `yaml:"toast_duration"`
		StoryMinTurns     int           `yaml:"story_min_turns"`
	} `yaml:"activities"`
}

// overlay applies the YAML document to every field whose environment
// variable is not set.
func (c *Config) overlay(raw []byte) error {
	var fc fileConfig
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(raw))), &fc); err != nil {
		return err
	}

	set(&c.Environment, fc.Environment, "ENVIRONMENT")
	set(&c.LogLevel, fc.LogLevel, "LOG_LEVEL")
	set(&c.ListenAddr, fc.HTTP.ListenAddr, "LISTEN_ADDR")
	set(&c.CORSOrigins, strings.Join(fc.HTTP.CORSOrigins, ","), "CORS_ORIGINS")
	set(&c.RateLimitRPS, fc.HTTP.RateLimit.RPS, "RATE_LIMIT_RPS")
	set(&c.RateLimitBurst, fc.HTTP.RateLimit.Burst, "RATE_LIMIT_BURST")
	set(&c.DBPath, fc.Storage.DBPath, "DB_PATH")
	set(&c.Namespace, fc.Storage.Namespace, "NAMESPACE")
	set(&c.CacheSize, fc.Storage.CacheSize, "CACHE_SIZE")
	set(&c.LocalesDir, fc.Locales.Dir, "LOCALES_DIR")
	set(&c.LocalesURL, fc.Locales.URL, "LOCALES_URL")
	set(&c.LLMAPIKey, fc.LLM.APIKey, "LLM_API_KEY")
	set(&c.LLMModel, fc.LLM.Model, "LLM_MODEL")
	set(&c.LLMBaseURL, fc.LLM.BaseURL, "LLM_BASE_URL")
	set(&c.LLMTimeout, fc.LLM.Timeout, "LLM_TIMEOUT")
	set(&c.PointsPerActivity, fc.Activities.PointsPerActivity, "POINTS_PER_ACTIVITY")
	set(&c.ToastDuration, fc.Activities.ToastDuration, "TOAST_DURATION")
	set(&c.StoryMinTurns, fc.Activities.StoryMinTurns, "STORY_MIN_TURNS")
	return nil
}

// set assigns v to dst when v is non-zero and BUDDY_<env> is unset.
func set[T comparable](dst *T, v T, env string) {
	var zero T
	if v == zero {
		return
	}
	if _, ok := os.LookupEnv(Prefix + "_" + env); ok {
		return
	}
	*dst = v
}

// envVarPattern matches ${VAR_NAME} and $VAR_NAME.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces ${VAR} and $VAR with the corresponding environment
// variable value. Missing vars are replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimPrefix(match, "${")
		name = strings.TrimSuffix(name, "}")
		name = strings.TrimPrefix(name, "$")
		return os.Getenv(name)
	})
}
