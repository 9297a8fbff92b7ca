package image

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"boongle/internal/domain"
)

// OpenAIOptions configures the OpenAI images generator.
type OpenAIOptions struct {
	BaseURL    string
	Model      string
	Size       string
	HTTPClient *http.Client
}

// OpenAIGenerator produces images through the OpenAI images API. A client is
// built per call because the key belongs to the caller.
type OpenAIGenerator struct {
	baseURL    string
	model      string
	size       string
	httpClient *http.Client
}

func NewOpenAIGenerator(opts OpenAIOptions) *OpenAIGenerator {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = openai.CreateImageModelDallE3
	}
	size := strings.TrimSpace(opts.Size)
	if size == "" {
		size = openai.CreateImageSize1024x1024
	}
	return &OpenAIGenerator{
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		model:      model,
		size:       size,
		httpClient: opts.HTTPClient,
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string, count int, credential string) ([]domain.ImagePayload, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, domain.ErrMissingCredential
	}
	client := g.client(credential)
	count = normalizeCount(count)

	// dall-e-3 only accepts n=1.
	calls, perCall := 1, count
	if g.model == openai.CreateImageModelDallE3 {
		calls, perCall = count, 1
	}

	var images []domain.ImagePayload
	for i := 0; i < calls; i++ {
		resp, err := client.CreateImage(ctx, openai.ImageRequest{
			Prompt:         strings.TrimSpace(prompt),
			Model:          g.model,
			N:              perCall,
			Size:           g.size,
			ResponseFormat: openai.CreateImageResponseFormatB64JSON,
		})
		if err != nil {
			return nil, err
		}
		for _, item := range resp.Data {
			if item.B64JSON == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(item.B64JSON)
			if err != nil {
				return nil, fmt.Errorf("openai: decode image: %w", err)
			}
			images = append(images, domain.ImagePayload{Data: data, MediaType: "image/png"})
		}
	}
	return images, nil
}

func (g *OpenAIGenerator) client(apiKey string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if g.baseURL != "" {
		cfg.BaseURL = g.baseURL
	}
	if g.httpClient != nil {
		cfg.HTTPClient = g.httpClient
	}
	return openai.NewClientWithConfig(cfg)
}

var _ Generator = (*OpenAIGenerator)(nil)
