package config

import (
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Addr           string   `envconfig:"ADDR" default:":5000"`
	GinMode        string   `envconfig:"GIN_MODE" default:"release"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" required:"true"`
	LogPretty      bool     `envconfig:"LOG_PRETTY"`

	// chat-completions endpoint the question oracle talks to
	LLMBaseURL string `envconfig:"LLM_BASE_URL" required:"true"`
	LLMAPIKey  string `envconfig:"LLM_API_KEY" required:"true"`
	LLMModel   string `envconfig:"LLM_MODEL" required:"true"`
}

// Load reads .env when present, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
