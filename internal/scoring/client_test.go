package scoring_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"podsift/internal/catalog"
	"podsift/internal/config"
	"podsift/internal/retry"
	"podsift/internal/scoring"
)

func testTopics() []catalog.Topic {
	return []catalog.Topic{
		{Name: "ai", Title: "Artificial Intelligence", Threshold: 0.65, Active: true},
		{Name: "space", Title: "Space Exploration", Threshold: 0.65, Active: true},
	}
}

func newTestClient(t *testing.T, serverURL string) *scoring.Client {
	t.Helper()
	cfg := config.Scoring{
		APIKey:      "test-key",
		BaseURL:     serverURL,
		Model:       "test-model",
		MaxAttempts: 3,
	}
	return scoring.NewClient(cfg, scoring.WithRetryPolicy(retry.Policy{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
	}))
}

func completionBody(t *testing.T, content string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	if err != nil {
		t.Fatalf("marshal completion: %v", err)
	}
	return body
}

func TestScoreTranscriptParsesAndClampsScores(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization header = %q", got)
		}
		w.Write(completionBody(t, `{"ai": 1.4, "space": -0.2, "unknown": 0.9}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	scores, err := client.ScoreTranscript(context.Background(), "a long talk about machine learning", testTopics())
	if err != nil {
		t.Fatalf("ScoreTranscript: %v", err)
	}

	if scores["ai"] != 1.0 {
		t.Errorf("ai score = %v, want clamped 1.0", scores["ai"])
	}
	if scores["space"] != 0.0 {
		t.Errorf("space score = %v, want clamped 0.0", scores["space"])
	}
	if _, ok := scores["unknown"]; ok {
		t.Error("score vector kept a topic that was never requested")
	}
	if len(scores) != 2 {
		t.Errorf("score vector size = %d, want 2", len(scores))
	}
}

func TestScoreTranscriptDefaultsMissingTopicToZero(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(completionBody(t, `{"ai": 0.8}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	scores, err := client.ScoreTranscript(context.Background(), "transcript text", testTopics())
	if err != nil {
		t.Fatalf("ScoreTranscript: %v", err)
	}
	if scores["space"] != 0 {
		t.Errorf("missing topic score = %v, want 0", scores["space"])
	}
}

func TestScoreTranscriptToleratesFencedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(completionBody(t, "```json\n{\"ai\": 0.7, \"space\": 0.1}\n```"))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	scores, err := client.ScoreTranscript(context.Background(), "transcript text", testTopics())
	if err != nil {
		t.Fatalf("ScoreTranscript: %v", err)
	}
	if scores["ai"] != 0.7 {
		t.Errorf("ai score = %v, want 0.7", scores["ai"])
	}
}

func TestScoreTranscriptRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
			return
		}
		w.Write(completionBody(t, `{"ai": 0.5, "space": 0.5}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	if _, err := client.ScoreTranscript(context.Background(), "transcript text", testTopics()); err != nil {
		t.Fatalf("ScoreTranscript after retries: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("request count = %d, want 3", got)
	}
}

func TestScoreTranscriptFailsFastOnAuthError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.ScoreTranscript(context.Background(), "transcript text", testTopics())
	if err == nil {
		t.Fatal("ScoreTranscript succeeded, want auth error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("request count = %d, want 1 (no retry on 401)", got)
	}
}

func TestScoreTranscriptRejectsEmptyInputs(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:0")
	if _, err := client.ScoreTranscript(context.Background(), "", testTopics()); err == nil {
		t.Error("empty transcript accepted")
	}
	if _, err := client.ScoreTranscript(context.Background(), "text", nil); err == nil {
		t.Error("empty topic set accepted")
	}
}

func TestScoreTranscriptReportsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error": {"message": "model not found"}}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	if _, err := client.ScoreTranscript(context.Background(), "transcript text", testTopics()); err == nil {
		t.Fatal("ScoreTranscript succeeded, want api error")
	}
}
