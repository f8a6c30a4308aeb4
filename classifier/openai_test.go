package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAIClientComplete(t *testing.T) {
	var gotAuth string
	var gotReq openAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]interface{}{"content": "hello"}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewOpenAIClient("test-api-key", "gpt-4o", WithOpenAIBaseURL(server.URL))
	text, err := client.Complete(context.Background(), "be brief", "say hello")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if text != "hello" {
		t.Errorf("got %q, want hello", text)
	}
	if gotAuth != "Bearer test-api-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotReq.Temperature != 0.3 {
		t.Errorf("Temperature = %v, want 0.3", gotReq.Temperature)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Content != "be brief" || gotReq.Messages[1].Content != "say hello" {
		t.Errorf("Messages = %+v", gotReq.Messages)
	}
}

func TestOpenAIClientNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"choices": []map[string]interface{}{}})
	}))
	defer server.Close()

	client := NewOpenAIClient("test-api-key", "", WithOpenAIBaseURL(server.URL))
	_, err := client.Complete(context.Background(), "system", "user")
	if err == nil {
		t.Fatal("expected error for empty choices")
	}
	if !strings.Contains(err.Error(), "no choices") {
		t.Errorf("error = %v", err)
	}
}

func TestOpenAIClientAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"message": "Incorrect API key provided"},
		})
	}))
	defer server.Close()

	client := NewOpenAIClient("bad-key", "", WithOpenAIBaseURL(server.URL))
	_, err := client.Complete(context.Background(), "system", "user")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Incorrect API key provided") {
		t.Errorf("error = %v, want the API error message", err)
	}
}

func TestNewOpenAIClientDefaultModel(t *testing.T) {
	client := NewOpenAIClient("key", "")
	if client.Model() != "o4-mini-2025-04-16" {
		t.Errorf("Model() = %q, want o4-mini-2025-04-16", client.Model())
	}

	custom := NewOpenAIClient("key", "gpt-4o")
	if custom.Model() != "gpt-4o" {
		t.Errorf("Model() = %q, want gpt-4o", custom.Model())
	}
}
