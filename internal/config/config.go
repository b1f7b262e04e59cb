package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	API     APIConfig     `mapstructure:"api"`
	Session SessionConfig `mapstructure:"session"`
	Booking BookingConfig `mapstructure:"booking"`
	Worker  WorkerConfig  `mapstructure:"worker"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Log     LogConfig     `mapstructure:"log"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	TimeoutSeconds int      `mapstructure:"timeoutSeconds"`
	RateLimit      float64  `mapstructure:"rateLimit"`
	RateBurst      int      `mapstructure:"rateBurst"`
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

type APIConfig struct {
	BaseURL         string        `mapstructure:"baseUrl"`
	Timeout         time.Duration `mapstructure:"timeout"`
	GenerateTimeout time.Duration `mapstructure:"generateTimeout"`
	DownloadTimeout time.Duration `mapstructure:"downloadTimeout"`
	CircuitBreaker  bool          `mapstructure:"circuitBreaker"`
}

type SessionConfig struct {
	// Store is one of memory, file or redis.
	Store string        `mapstructure:"store"`
	File  string        `mapstructure:"file"`
	TTL   time.Duration `mapstructure:"ttl"`
}

type BookingConfig struct {
	// DateSource is schedule or placeholder.
	DateSource string        `mapstructure:"dateSource"`
	WindowDays int           `mapstructure:"windowDays"`
	WizardTTL  time.Duration `mapstructure:"wizardTtl"`
}

type WorkerConfig struct {
	ReconcileInterval time.Duration `mapstructure:"reconcileInterval"`
	MaxRetries        int           `mapstructure:"maxRetries"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// Env is the environment contract. VITE_API_URL keeps the name the web
// build used so the same deployment env works for the portal.
type Env struct {
	APIURL       string `envconfig:"VITE_API_URL"`
	Port         int    `envconfig:"PORTAL_PORT"`
	SessionStore string `envconfig:"PORTAL_SESSION_STORE"`
	SessionFile  string `envconfig:"PORTAL_SESSION_FILE"`
	RedisURL     string `envconfig:"PORTAL_REDIS_URL"`
	LogLevel     string `envconfig:"PORTAL_LOG_LEVEL"`
	DateSource   string `envconfig:"PORTAL_DATE_SOURCE"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeoutSeconds", 150)
	v.SetDefault("server.rateLimit", 20)
	v.SetDefault("server.rateBurst", 40)
	v.SetDefault("server.allowedOrigins", []string{"http://localhost:5173"})

	v.SetDefault("api.baseUrl", "http://localhost:3000/api")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.generateTimeout", 2*time.Minute)
	v.SetDefault("api.downloadTimeout", time.Minute)
	v.SetDefault("api.circuitBreaker", false)

	v.SetDefault("session.store", "memory")
	v.SetDefault("session.file", "")
	v.SetDefault("session.ttl", 12*time.Hour)

	v.SetDefault("booking.dateSource", "schedule")
	v.SetDefault("booking.windowDays", 30)
	v.SetDefault("booking.wizardTtl", 30*time.Minute)

	v.SetDefault("worker.reconcileInterval", time.Minute)
	v.SetDefault("worker.maxRetries", 5)

	v.SetDefault("redis.url", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

// LoadConfig reads config.yml from the usual search paths, then applies the
// environment contract on top. A missing config file is not an error.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	setDefaults(v)
	v.SetEnvPrefix("portal")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var env Env
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	config.applyEnv(env)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyEnv(env Env) {
	if env.APIURL != "" {
		c.API.BaseURL = env.APIURL
	}
	if env.Port != 0 {
		c.Server.Port = env.Port
	}
	if env.SessionStore != "" {
		c.Session.Store = env.SessionStore
	}
	if env.SessionFile != "" {
		c.Session.File = env.SessionFile
	}
	if env.RedisURL != "" {
		c.Redis.URL = env.RedisURL
	}
	if env.LogLevel != "" {
		c.Log.Level = env.LogLevel
	}
	if env.DateSource != "" {
		c.Booking.DateSource = env.DateSource
	}
}

func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api base url is required (VITE_API_URL)")
	}
	switch c.Session.Store {
	case "memory", "file":
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("session store redis requires redis.url")
		}
	default:
		return fmt.Errorf("unknown session store %q", c.Session.Store)
	}
	switch c.Booking.DateSource {
	case "schedule", "placeholder":
	default:
		return fmt.Errorf("unknown booking date source %q", c.Booking.DateSource)
	}
	if c.Booking.WindowDays <= 0 {
		return fmt.Errorf("booking.windowDays must be positive")
	}
	return nil
}
