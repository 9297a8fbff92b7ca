package image

import (
	"context"
	"strings"

	"boongle/internal/domain"
)

// Provider names accepted by New.
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderSynthetic = "synthetic"
)

// Generator is the contract implemented by all image providers.
type Generator = domain.ImageBackend

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string, count int, credential string) ([]domain.ImagePayload, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string, count int, credential string) ([]domain.ImagePayload, error) {
	return f(ctx, prompt, count, credential)
}

func normalizeCount(count int) int {
	if count <= 0 {
		return 1
	}
	return count
}

func normalizeMediaType(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if mime == "" {
		return "image/png"
	}
	return mime
}
