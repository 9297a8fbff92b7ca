package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	stdimage "image"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"boongle/internal/domain"
	"boongle/internal/providers/genai"
)

func TestSyntheticGeneratorIsDeterministic(t *testing.T) {
	gen := &SyntheticGenerator{Width: 64, Height: 64}
	first, err := gen.Generate(context.Background(), "a red fox", 2, "")
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	second, err := gen.Generate(context.Background(), "a red fox", 2, "")
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("expected 2 images, got %d and %d", len(first), len(second))
	}
	if !bytes.Equal(first[0].Data, second[0].Data) {
		t.Fatal("expected identical output for identical input")
	}
	if bytes.Equal(first[0].Data, first[1].Data) {
		t.Fatal("expected variants to differ")
	}
	cfg, format, err := stdimage.DecodeConfig(bytes.NewReader(first[0].Data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if format != "png" || cfg.Width != 64 || cfg.Height != 64 {
		t.Fatalf("unexpected image %s %dx%d", format, cfg.Width, cfg.Height)
	}
	if first[0].MediaType != "image/png" {
		t.Fatalf("unexpected media type %q", first[0].MediaType)
	}
}

func TestSyntheticGeneratorHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewSyntheticGenerator().Generate(ctx, "p", 1, ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestOpenAIGeneratorDecodesB64(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/v1/images/generations" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected authorization %q", got)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["response_format"] != "b64_json" {
			t.Errorf("expected b64_json response format, got %v", body["response_format"])
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"created":1,"data":[{"b64_json":%q}]}`, base64.StdEncoding.EncodeToString([]byte("img")))
	}))
	defer srv.Close()

	gen := NewOpenAIGenerator(OpenAIOptions{BaseURL: srv.URL + "/v1"})
	images, err := gen.Generate(context.Background(), "a boat", 2, " sk-test ")
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("expected 2 images, got %d", len(images))
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected one call per image for dall-e-3, got %d", calls)
	}
	if string(images[0].Data) != "img" || images[0].MediaType != "image/png" {
		t.Fatalf("unexpected payload %+v", images[0])
	}
}

func TestOpenAIGeneratorRequiresCredential(t *testing.T) {
	_, err := NewOpenAIGenerator(OpenAIOptions{}).Generate(context.Background(), "p", 1, " ")
	if !errors.Is(err, domain.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
}

func TestOpenAIGeneratorRejectedKeyClassifiesAsCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIGenerator(OpenAIOptions{BaseURL: srv.URL + "/v1"}).Generate(context.Background(), "p", 1, "sk-bad")
	if err == nil {
		t.Fatal("expected error")
	}
	var backendErr *domain.BackendError
	if !errors.As(Classify(err), &backendErr) {
		t.Fatalf("expected BackendError, got %T", Classify(err))
	}
	if !backendErr.Credential || backendErr.Status != http.StatusUnauthorized {
		t.Fatalf("unexpected classification %+v", backendErr)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		credential bool
		status     int
	}{
		{"gemini invalid key", &genai.APIError{Status: 400, Code: "API_KEY_INVALID", Message: "API key not valid"}, true, 400},
		{"gemini forbidden", &genai.APIError{Status: 403, Message: "denied"}, true, 403},
		{"gemini overloaded", &genai.APIError{Status: 503, Message: "model overloaded"}, false, 503},
		{"missing key", genai.ErrMissingAPIKey, true, 0},
		{"message mentions key", errors.New("Your API key has expired"), true, 0},
		{"network", errors.New("connection reset"), false, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var backendErr *domain.BackendError
			if !errors.As(Classify(tc.err), &backendErr) {
				t.Fatalf("expected BackendError")
			}
			if backendErr.Credential != tc.credential {
				t.Fatalf("Credential = %v, want %v", backendErr.Credential, tc.credential)
			}
			if backendErr.Status != tc.status {
				t.Fatalf("Status = %d, want %d", backendErr.Status, tc.status)
			}
			if !errors.Is(backendErr, tc.err) {
				t.Fatal("expected original error to be wrapped")
			}
		})
	}
}

func TestClassifyPassesThrough(t *testing.T) {
	if Classify(nil) != nil {
		t.Fatal("expected nil for nil error")
	}
	if err := Classify(context.Canceled); err != context.Canceled {
		t.Fatalf("expected context.Canceled untouched, got %v", err)
	}
	existing := &domain.BackendError{Status: 500}
	if err := Classify(fmt.Errorf("wrapped: %w", existing)); err != existing {
		t.Fatalf("expected existing BackendError, got %v", err)
	}
}

func TestThrottledDelegatesAndLimits(t *testing.T) {
	var calls int32
	next := GeneratorFunc(func(ctx context.Context, prompt string, count int, credential string) ([]domain.ImagePayload, error) {
		atomic.AddInt32(&calls, 1)
		return []domain.ImagePayload{{Data: []byte(prompt)}}, nil
	})
	throttled := NewThrottled(next, 1)

	images, err := throttled.Generate(context.Background(), "first", 1, "k")
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if len(images) != 1 || string(images[0].Data) != "first" {
		t.Fatalf("unexpected images %+v", images)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := throttled.Generate(ctx, "second", 1, "k"); err == nil {
		t.Fatal("expected throttled call to fail before its slot")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected backend called once, got %d", got)
	}
}

func TestThrottledUnlimited(t *testing.T) {
	var calls int32
	next := GeneratorFunc(func(ctx context.Context, prompt string, count int, credential string) ([]domain.ImagePayload, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	})
	throttled := NewThrottled(next, 0)
	for i := 0; i < 5; i++ {
		if _, err := throttled.Generate(context.Background(), "p", 1, ""); err != nil {
			t.Fatalf("Generate error: %v", err)
		}
	}
	if calls != 5 {
		t.Fatalf("expected 5 calls, got %d", calls)
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	if _, err := New(Config{Provider: "midjourney"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
	gen, err := New(Config{Provider: ProviderSynthetic})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if _, ok := gen.(*Throttled); !ok {
		t.Fatalf("expected throttled generator, got %T", gen)
	}
}
