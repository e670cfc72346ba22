package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix             = "SCOUT"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultDatabasePath   = "scout.db"
	defaultLogLevel       = "info"
	defaultGroqBaseURL    = "https://api.groq.com/openai/v1"
	defaultGroqModel      = "openai/gpt-oss-120b"
	defaultTimeoutSeconds = 60
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress  string
	DatabasePath string
	LogLevel     string
	GroqAPIKey   string
	GroqBaseURL  string
	GroqModel    string
	GroqTimeout  time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper
// instance. The bare GROQ_API_KEY variable is honored alongside the prefixed
// form because deployments ship it in .env under that name.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("groq.base_url", defaultGroqBaseURL)
	configViper.SetDefault("groq.model", defaultGroqModel)
	configViper.SetDefault("groq.timeout_seconds", defaultTimeoutSeconds)

	_ = configViper.BindEnv("groq.api_key", "SCOUT_GROQ_API_KEY", "GROQ_API_KEY")
}

// LoadEnvFile reads a .env file from the working directory into the process
// environment when one exists. Missing files are not an error.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:  configViper.GetString("http.address"),
		DatabasePath: configViper.GetString("database.path"),
		LogLevel:     configViper.GetString("log.level"),
		GroqAPIKey:   configViper.GetString("groq.api_key"),
		GroqBaseURL:  configViper.GetString("groq.base_url"),
		GroqModel:    configViper.GetString("groq.model"),
		GroqTimeout:  time.Duration(configViper.GetInt("groq.timeout_seconds")) * time.Second,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.GroqAPIKey) == "" {
		return fmt.Errorf("groq.api_key is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.GroqTimeout <= 0 {
		return fmt.Errorf("groq.timeout_seconds must be positive")
	}
	return nil
}
