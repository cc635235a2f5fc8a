package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestComplete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("expected x-api-key test-key, got %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Errorf("expected anthropic-version 2023-06-01, got %q", r.Header.Get("anthropic-version"))
		}

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("expected model test-model, got %q", req.Model)
		}
		if req.Temperature != 0.3 {
			t.Errorf("expected temperature 0.3, got %f", req.Temperature)
		}
		if req.System != "you are a test" {
			t.Errorf("expected system prompt, got %q", req.System)
		}
		if len(req.Messages) != 1 || req.Messages[0].Content != "hello" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"content":     []map[string]string{{"type": "text", "text": "world"}},
			"stop_reason": "end_turn",
			"usage":       map[string]int{"input_tokens": 12, "output_tokens": 7},
		})
	}))
	defer server.Close()

	c := NewClient("test-key")
	c.SetBaseURL(server.URL)

	result, err := c.Complete(context.Background(), Request{
		System:      "you are a test",
		User:        "hello",
		Model:       "test-model",
		Temperature: 0.3,
		MaxTokens:   100,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "world" {
		t.Errorf("expected 'world', got %q", result.Text)
	}
	if result.Usage.PromptTokens != 12 || result.Usage.CompletionTokens != 7 {
		t.Errorf("unexpected usage: %+v", result.Usage)
	}
	if result.Usage.TotalTokens != 19 {
		t.Errorf("expected total 19, got %d", result.Usage.TotalTokens)
	}
}

func TestComplete_MissingUsageDefaultsToZero(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": "ok"}},
		})
	}))
	defer server.Close()

	c := NewClient("test-key")
	c.SetBaseURL(server.URL)

	result, err := c.Complete(context.Background(), Request{User: "hi", Model: "m", MaxTokens: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Usage != (Usage{}) {
		t.Errorf("expected zero usage, got %+v", result.Usage)
	}
}

func TestComplete_APIErrorCarriesStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"type":    "rate_limit_error",
				"message": "slow down",
			},
		})
	}))
	defer server.Close()

	c := NewClient("test-key")
	c.SetBaseURL(server.URL)

	_, err := c.Complete(context.Background(), Request{User: "hi", Model: "m", MaxTokens: 10})
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Status != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", apiErr.Status)
	}
	if !apiErr.Transient() {
		t.Error("429 should be transient")
	}
}

func TestComplete_AuthErrorNotTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"type": "authentication_error", "message": "bad key"},
		})
	}))
	defer server.Close()

	c := NewClient("bad-key")
	c.SetBaseURL(server.URL)

	_, err := c.Complete(context.Background(), Request{User: "hi", Model: "m", MaxTokens: 10})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Transient() {
		t.Error("401 should not be transient")
	}
}

func TestComplete_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{"stop_reason": "end_turn"})
	}))
	defer server.Close()

	c := NewClient("test-key")
	c.SetBaseURL(server.URL)

	_, err := c.Complete(context.Background(), Request{User: "hi", Model: "m", MaxTokens: 10})
	if err == nil {
		t.Fatal("expected error for empty content response")
	}
}
