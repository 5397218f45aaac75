// Package scoring rates transcripts against the subscribed topics with a
// chat-completions language model and records the resulting score vector.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"podsift/internal/catalog"
	"podsift/internal/config"
	"podsift/internal/retry"
)

const defaultHTTPTimeout = 60 * time.Second

// Client talks to an OpenRouter-compatible chat completions endpoint.
type Client struct {
	cfg        config.Scoring
	httpClient *http.Client
	policy     retry.Policy
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryPolicy overrides the default backoff policy.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(c *Client) {
		policy.Retryable = retryableRequestError
		c.policy = policy
	}
}

// NewClient constructs a scoring client from application config.
func NewClient(cfg config.Scoring, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	policy := retry.DefaultPolicy(cfg.MaxAttempts)
	policy.Retryable = retryableRequestError

	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		policy:     policy,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// ScoreTranscript asks the model to rate one transcript against every topic
// and returns the parsed score vector. Values outside [0,1] are clamped and
// topics the model omitted come back as zero.
func (c *Client) ScoreTranscript(ctx context.Context, transcript string, topics []catalog.Topic) (catalog.ScoreVector, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, errors.New("scoring: api key required")
	}
	if strings.TrimSpace(transcript) == "" {
		return nil, errors.New("scoring: transcript is empty")
	}
	if len(topics) == 0 {
		return nil, errors.New("scoring: no topics to score")
	}

	payload := chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: buildSystemPrompt(topics)},
			{Role: "user", Content: buildUserPrompt(transcript)},
		},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": "json_object"},
	}

	var content string
	err := c.policy.Do(ctx, func() error {
		var sendErr error
		content, sendErr = c.sendOnce(ctx, payload)
		return sendErr
	})
	if err != nil {
		return nil, err
	}

	raw := map[string]float64{}
	if err := decodeModelJSON(content, &raw); err != nil {
		return nil, fmt.Errorf("scoring: parse response: %w", err)
	}

	scores := make(catalog.ScoreVector, len(topics))
	for _, topic := range topics {
		value, ok := raw[topic.Name]
		if !ok {
			value = 0
		}
		if value < 0 {
			value = 0
		}
		if value > 1 {
			value = 1
		}
		scores[topic.Name] = value
	}
	return scores, nil
}

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("scoring request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

func (c *Client) sendOnce(ctx context.Context, payload chatCompletionRequest) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("scoring request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("scoring request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("scoring request: http error: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("scoring request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", &httpStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", fmt.Errorf("scoring request: decode response: %w", err)
	}
	if completion.Error != nil {
		return "", fmt.Errorf("scoring request: api error: %s", strings.TrimSpace(completion.Error.Message))
	}
	for _, choice := range completion.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content, nil
		}
	}
	return "", errors.New("scoring request: empty completion content")
}

// retryableRequestError limits retries to transient transport failures,
// rate limits, and server-side errors. Client errors such as a rejected API
// key fail fast.
func retryableRequestError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	return false
}

// decodeModelJSON decodes a model response, tolerating code fences and prose
// wrapped around the JSON object.
func decodeModelJSON(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return errors.New("empty payload")
	}

	directErr := json.Unmarshal([]byte(trimmed), target)
	if directErr == nil {
		return nil
	}

	sanitized := extractJSONObject(stripCodeFence(trimmed))
	if sanitized == "" || sanitized == trimmed {
		return directErr
	}
	if err := json.Unmarshal([]byte(sanitized), target); err != nil {
		return err
	}
	return nil
}

func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := strings.TrimLeft(trimmed[3:], " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = strings.TrimLeft(body[4:], " \t\r\n")
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

func extractJSONObject(content string) string {
	if content == "" {
		return ""
	}
	if content[0] == '{' {
		return content
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return strings.TrimSpace(content[start : end+1])
	}
	return content
}
