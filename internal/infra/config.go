package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv                string
	Port                  string
	ProfileStore          string
	DatabaseURL           string
	AuthJWTSecret         string
	AuthIssuer            string
	CredentialStore       string
	StateDir              string
	ImageProvider         string
	GeminiModel           string
	GeminiBaseURL         string
	OpenAIModel           string
	OpenAIBaseURL         string
	BackendRatePerMinute  int
	FallbackRetryInterval time.Duration
	AllowedOrigins        []string
	HTTPReadTimeout       time.Duration
	HTTPWriteTimeout      time.Duration
	HTTPIdleTimeout       time.Duration
	RateLimitPerMin       int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	// Missing env files are fine.
	_ = godotenv.Load(".env", ".env.local")

	cfg := &Config{
		AppEnv:                getEnv("APP_ENV", "development"),
		Port:                  getEnv("PORT", "8787"),
		ProfileStore:          strings.ToLower(getEnv("PROFILE_STORE", "postgres")),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		AuthJWTSecret:         os.Getenv("AUTH_JWT_SECRET"),
		AuthIssuer:            os.Getenv("AUTH_ISSUER"),
		CredentialStore:       strings.ToLower(getEnv("CREDENTIAL_STORE", "file")),
		StateDir:              getEnv("STATE_DIR", defaultStateDir()),
		ImageProvider:         strings.ToLower(getEnv("IMAGE_PROVIDER", "gemini")),
		GeminiModel:           getEnv("GEMINI_MODEL", "gemini-2.0-flash-preview-image-generation"),
		GeminiBaseURL:         getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		OpenAIModel:           getEnv("OPENAI_IMAGE_MODEL", "dall-e-3"),
		OpenAIBaseURL:         os.Getenv("OPENAI_BASE_URL"),
		BackendRatePerMinute:  getEnvInt("BACKEND_RATE_PER_MINUTE", 10),
		FallbackRetryInterval: getEnvDuration("PROFILE_FALLBACK_RETRY", 30*time.Second),
		AllowedOrigins:        splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),
		HTTPReadTimeout:       time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:      time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:       time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:       getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
	}

	switch cfg.ProfileStore {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when PROFILE_STORE=postgres")
		}
	case "memory":
	default:
		return nil, fmt.Errorf("unsupported PROFILE_STORE %q", cfg.ProfileStore)
	}

	switch cfg.CredentialStore {
	case "file":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when CREDENTIAL_STORE=postgres")
		}
	default:
		return nil, fmt.Errorf("unsupported CREDENTIAL_STORE %q", cfg.CredentialStore)
	}

	switch cfg.ImageProvider {
	case "gemini", "openai", "synthetic":
	default:
		return nil, fmt.Errorf("unsupported IMAGE_PROVIDER %q", cfg.ImageProvider)
	}

	if cfg.AuthJWTSecret == "" {
		return nil, fmt.Errorf("AUTH_JWT_SECRET is required")
	}

	return cfg, nil
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "boongle")
	}
	return ".boongle"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
