package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func completionBody(content string) string {
	reply := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	}
	encoded, _ := json.Marshal(reply)
	return string(encoded)
}

func newTestGateway(t *testing.T, baseURL string) *Gateway {
	t.Helper()
	gateway, err := NewGateway(GatewayConfig{BaseURL: baseURL, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create gateway: %v", err)
	}
	return gateway
}

func TestCompleteReturnsParsedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization header %q", got)
		}
		var request map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			t.Errorf("request body is not JSON: %v", err)
		}
		if request["model"] == "" {
			t.Errorf("expected a model in the request")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completionBody(`{"question":"Next?","options":["a","b","c","d"],"status":"CONTINUE"}`)))
	}))
	defer server.Close()

	raw, err := newTestGateway(t, server.URL).Complete(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	var parsed struct {
		Question string   `json:"question"`
		Options  []string `json:"options"`
		Status   string   `json:"status"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("reply is not usable JSON: %v", err)
	}
	if parsed.Status != "CONTINUE" || len(parsed.Options) != 4 {
		t.Fatalf("unexpected parsed reply: %+v", parsed)
	}
}

func TestCompleteMalformedReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completionBody("Sure! Here is your roadmap: ...")))
	}))
	defer server.Close()

	_, err := newTestGateway(t, server.URL).Complete(context.Background(), "prompt")
	if !errors.Is(err, ErrMalformedModelOutput) {
		t.Fatalf("expected ErrMalformedModelOutput, got %v", err)
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	_, err := newTestGateway(t, server.URL).Complete(context.Background(), "prompt")
	if !errors.Is(err, ErrMalformedModelOutput) {
		t.Fatalf("expected ErrMalformedModelOutput, got %v", err)
	}
}

func TestCompleteUpstreamFailureStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestGateway(t, server.URL).Complete(context.Background(), "prompt")
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestCompleteUpstreamUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	_, err := newTestGateway(t, server.URL).Complete(context.Background(), "prompt")
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestNewGatewayRequiresAPIKey(t *testing.T) {
	if _, err := NewGateway(GatewayConfig{}); err == nil {
		t.Fatalf("expected missing api key to be rejected")
	}
}
