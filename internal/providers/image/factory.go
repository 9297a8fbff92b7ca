package image

import (
	"fmt"
	"net/http"
	"strings"

	"boongle/internal/infra"
	"boongle/internal/providers/genai"
)

// Config selects and configures the generation backend.
type Config struct {
	Provider      string
	GeminiModel   string
	GeminiBaseURL string
	OpenAIModel   string
	OpenAIBaseURL string
	RatePerMinute int
	HTTPClient    *http.Client
	Logger        *infra.Logger
}

// New builds the configured provider wrapped in a rate limiter.
func New(cfg Config) (Generator, error) {
	var gen Generator
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderGemini, "":
		gen = NewGeminiGenerator(genai.NewClient(genai.Options{
			BaseURL:    cfg.GeminiBaseURL,
			Model:      cfg.GeminiModel,
			HTTPClient: cfg.HTTPClient,
			Logger:     cfg.Logger,
		}))
	case ProviderOpenAI:
		gen = NewOpenAIGenerator(OpenAIOptions{
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.OpenAIModel,
			HTTPClient: cfg.HTTPClient,
		})
	case ProviderSynthetic:
		gen = NewSyntheticGenerator()
	default:
		return nil, fmt.Errorf("image: unsupported provider %q", cfg.Provider)
	}
	return NewThrottled(gen, cfg.RatePerMinute), nil
}
