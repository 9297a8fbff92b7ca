package genai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerateImagesDecodesInlineData(t *testing.T) {
	var gotKey, gotPath string
	var gotBody geminiGenerateContentRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-goog-api-key")
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		img := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[
			{"content":{"parts":[{"text":"here you go"},{"inlineData":{"mimeType":"image/png","data":"` + img + `"}}]}},
			{"content":{"parts":[{"inlineData":{"mimeType":"image/jpeg","data":"` + img + `"}}]}}
		]}`))
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL, Model: "test-model"})
	images, err := client.GenerateImages(context.Background(), ImageRequest{APIKey: " key ", Prompt: " a cat ", Quantity: 2})
	if err != nil {
		t.Fatalf("GenerateImages error: %v", err)
	}
	if gotKey != "key" {
		t.Fatalf("expected trimmed api key header, got %q", gotKey)
	}
	if gotPath != "/models/test-model:generateContent" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotBody.GenerationConfig == nil || gotBody.GenerationConfig.CandidateCount != 2 {
		t.Fatalf("expected candidate count 2, got %+v", gotBody.GenerationConfig)
	}
	if text := gotBody.Contents[0].Parts[0].Text; text != "a cat" {
		t.Fatalf("expected trimmed prompt, got %q", text)
	}
	if len(images) != 2 {
		t.Fatalf("expected 2 images, got %d", len(images))
	}
	if images[0].MediaType != "image/png" || images[1].MediaType != "image/jpeg" {
		t.Fatalf("unexpected media types %q %q", images[0].MediaType, images[1].MediaType)
	}
	if string(images[0].Data) != "png-bytes" {
		t.Fatalf("unexpected data %q", images[0].Data)
	}
}

func TestGenerateImagesEmptyAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"no"}]}}]}`))
	}))
	defer srv.Close()

	images, err := NewClient(Options{BaseURL: srv.URL}).GenerateImages(context.Background(), ImageRequest{APIKey: "k", Prompt: "p", Quantity: 1})
	if err != nil {
		t.Fatalf("GenerateImages error: %v", err)
	}
	if len(images) != 0 {
		t.Fatalf("expected no images, got %d", len(images))
	}
}

func TestGenerateImagesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT","details":[{"reason":"API_KEY_INVALID"}]}}`))
	}))
	defer srv.Close()

	_, err := NewClient(Options{BaseURL: srv.URL}).GenerateImages(context.Background(), ImageRequest{APIKey: "bad", Prompt: "p"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Code != "API_KEY_INVALID" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
	if !strings.Contains(apiErr.Error(), "API key not valid") {
		t.Fatalf("unexpected message %q", apiErr.Error())
	}
}

func TestGenerateImagesPlainTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(Options{BaseURL: srv.URL}).GenerateImages(context.Background(), ImageRequest{APIKey: "k", Prompt: "p"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadGateway || apiErr.Message != "upstream down" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

func TestGenerateImagesRequiresKey(t *testing.T) {
	_, err := NewClient(Options{}).GenerateImages(context.Background(), ImageRequest{Prompt: "p"})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestClampQuantity(t *testing.T) {
	cases := map[int]int{-1: 1, 0: 1, 2: 2, 9: maxImagesPerCall}
	for in, want := range cases {
		if got := clampQuantity(in); got != want {
			t.Fatalf("clampQuantity(%d) = %d, want %d", in, got, want)
		}
	}
}
