package image

import (
	"context"

	"boongle/internal/domain"
	"boongle/internal/ids"
	"boongle/internal/providers/genai"
)

// GeminiGenerator produces images through the Gemini REST API.
type GeminiGenerator struct {
	client *genai.Client
}

func NewGeminiGenerator(client *genai.Client) *GeminiGenerator {
	return &GeminiGenerator{client: client}
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, count int, credential string) ([]domain.ImagePayload, error) {
	images, err := g.client.GenerateImages(ctx, genai.ImageRequest{
		APIKey:    credential,
		Prompt:    prompt,
		Quantity:  normalizeCount(count),
		RequestID: ids.RequestIDFrom(ctx),
	})
	if err != nil {
		return nil, err
	}
	for i := range images {
		images[i].MediaType = normalizeMediaType(images[i].MediaType)
	}
	return images, nil
}

var _ Generator = (*GeminiGenerator)(nil)
