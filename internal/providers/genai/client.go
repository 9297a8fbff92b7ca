package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"boongle/internal/domain"
	"boongle/internal/infra"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-2.0-flash-preview-image-generation"

	maxImagesPerCall = 4
)

// ErrMissingAPIKey is returned when a call is attempted without a key.
var ErrMissingAPIKey = errors.New("genai: api key is required")

// Options controls how the Gemini client is configured.
type Options struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client calls the Gemini generateContent endpoint. The API key travels with
// each call because the user can replace it at any time.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

// APIError is a non-2xx answer from the Gemini API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gemini status %d", e.Status)
	}
	return fmt.Sprintf("gemini status %d: %s", e.Status, e.Message)
}

// ImageRequest represents the information required to generate images.
type ImageRequest struct {
	APIKey    string
	Prompt    string
	Quantity  int
	RequestID string
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiGenerationConfig struct {
	CandidateCount     int      `json:"candidateCount,omitempty"`
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
		Status  string `json:"status,omitempty"`
		Details []struct {
			Reason string `json:"reason,omitempty"`
		} `json:"details,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Gemini client with sane defaults. Callers may provide
// a nil HTTP client; one with a generous timeout is created.
func NewClient(opts Options) *Client {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 90 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}

	return &Client{
		baseURL:    baseURL,
		model:      model,
		httpClient: client,
		logger:     logger,
	}
}

// Model returns the configured Gemini model identifier.
func (c *Client) Model() string {
	return c.model
}

// GenerateImages asks Gemini for up to req.Quantity images and returns the
// inline payloads it answered with. Fewer payloads than requested is not an
// error; callers decide what an empty answer means.
func (c *Client) GenerateImages(ctx context.Context, req ImageRequest) ([]domain.ImagePayload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(req.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	quantity := clampQuantity(req.Quantity)
	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: strings.TrimSpace(req.Prompt)}},
		}},
		GenerationConfig: &geminiGenerationConfig{
			CandidateCount:     quantity,
			ResponseModalities: []string{"TEXT", "IMAGE"},
		},
	}

	var response geminiGenerateContentResponse
	path := fmt.Sprintf("/models/%s:generateContent", url.PathEscape(c.model))
	if err := c.invokeGemini(ctx, apiKey, path, payload, &response); err != nil {
		return nil, err
	}

	var images []domain.ImagePayload
	for _, candidate := range response.Candidates {
		for _, part := range candidate.Content.Parts {
			image, ok := decodeInlineImage(part)
			if !ok {
				continue
			}
			images = append(images, image)
			if len(images) >= quantity {
				break
			}
		}
		if len(images) >= quantity {
			break
		}
	}

	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("model", c.model).
		Int("requested", quantity).
		Int("returned", len(images)).
		Msg("genai: generated images")

	return images, nil
}

func (c *Client) invokeGemini(ctx context.Context, apiKey, path string, payload any, out any) error {
	endpoint := c.baseURL + path
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gemini response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Status: resp.StatusCode}

	var parsed geminiErrorResponse
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Error.Message != "" {
		apiErr.Message = parsed.Error.Message
		apiErr.Code = parsed.Error.Status
		for _, detail := range parsed.Error.Details {
			if detail.Reason != "" {
				apiErr.Code = detail.Reason
				break
			}
		}
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(data))
	return apiErr
}

func decodeInlineImage(part geminiPart) (domain.ImagePayload, bool) {
	if part.InlineData == nil || part.InlineData.Data == "" {
		return domain.ImagePayload{}, false
	}
	mime := strings.TrimSpace(part.InlineData.MimeType)
	if mime != "" && !strings.HasPrefix(mime, "image/") {
		return domain.ImagePayload{}, false
	}
	data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
	if err != nil || len(data) == 0 {
		return domain.ImagePayload{}, false
	}
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	return domain.ImagePayload{Data: data, MediaType: mime}, true
}

func clampQuantity(quantity int) int {
	if quantity <= 0 {
		return 1
	}
	if quantity > maxImagesPerCall {
		return maxImagesPerCall
	}
	return quantity
}
