package rating

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zulandar/linegrade/internal/metrics"
)

const (
	defaultBaseURL        = "https://api.openai.com/v1/chat/completions"
	defaultModel          = "gpt-4o-mini"
	defaultTimeout        = 30 * time.Second
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 500 * time.Millisecond
	defaultRetryMaxDelay  = 8 * time.Second
)

const systemPrompt = `You coach sales representatives. Rate the representative's utterance as one of:
excellent, good, poor, missed-opportunity.
Suggest up to three better phrasings when the utterance could be improved.
Respond with JSON only: {"rating": "<label>", "alternatives": ["..."]}`

// Config holds the service endpoint and credentials.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client rates utterances through an OpenAI-compatible chat completions
// endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(context.Context, time.Duration) error
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRetryMaxAttempts sets how many times one line is tried.
func WithRetryMaxAttempts(n int) Option {
	return func(c *Client) { c.retryMaxAttempts = n }
}

// WithRetryBackoff sets the exponential backoff bounds.
func WithRetryBackoff(base, max time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = base
		c.retryMaxDelay = max
	}
}

// WithSleeper replaces the backoff sleep (tests).
func WithSleeper(fn func(context.Context, time.Duration) error) Option {
	return func(c *Client) { c.sleeper = fn }
}

// NewClient returns a Client for cfg.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := &Client{
		cfg:              cfg,
		httpClient:       &http.Client{Timeout: cfg.Timeout},
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
		sleeper:          sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retryMaxAttempts <= 0 {
		c.retryMaxAttempts = 1
	}
	return c
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
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

// statusError is a non-2xx answer from the service.
type statusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("rating: http %d: %s", e.StatusCode, e.Body)
}

func (e *statusError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode >= http.StatusInternalServerError
}

// Rate asks the service to rate text. Rate-limit, server and transport
// failures are retried with exponential backoff; other failures return
// immediately.
func (c *Client) Rate(ctx context.Context, text string, rc Context) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, errors.New("rating: text is required")
	}
	if c.cfg.APIKey == "" {
		return Result{}, errors.New("rating: api key is required")
	}

	user, err := json.Marshal(map[string]string{
		"text":          text,
		"rep_name":      rc.RepName,
		"customer_name": rc.CustomerName,
	})
	if err != nil {
		return Result{}, fmt.Errorf("rating: encode prompt: %w", err)
	}
	req := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(user)},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
	}

	start := time.Now()
	defer func() { metrics.RatingLatency.Observe(time.Since(start).Seconds()) }()

	var lastErr error
	for attempt := 1; attempt <= c.retryMaxAttempts; attempt++ {
		content, err := c.send(ctx, req)
		if err == nil {
			return parseResult(content)
		}
		lastErr = err

		delay, retry := c.retryDelay(ctx, err, attempt)
		if !retry {
			return Result{}, err
		}
		if err := c.sleeper(ctx, delay); err != nil {
			return Result{}, fmt.Errorf("rating: %w", err)
		}
	}
	return Result{}, fmt.Errorf("rating: failed after %d attempts: %w", c.retryMaxAttempts, lastErr)
}

func (c *Client) send(ctx context.Context, payload chatRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("rating: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("rating: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("rating: request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("rating: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &statusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var completion chatResponse
	if err := json.Unmarshal(raw, &completion); err != nil {
		return "", fmt.Errorf("%w: decode completion: %v", ErrMalformed, err)
	}
	if completion.Error != nil {
		return "", fmt.Errorf("rating: api error: %s", strings.TrimSpace(completion.Error.Message))
	}
	for _, choice := range completion.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content, nil
		}
	}
	return "", fmt.Errorf("%w: empty completion", ErrMalformed)
}

// parseResult decodes and validates the model's JSON answer.
func parseResult(content string) (Result, error) {
	content = stripCodeFence(content)
	var raw struct {
		Rating       string   `json:"rating"`
		Alternatives []string `json:"alternatives"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	label, ok := NormalizeLabel(raw.Rating)
	if !ok {
		return Result{}, fmt.Errorf("%w: unknown rating %q", ErrMalformed, raw.Rating)
	}
	return Result{Rating: label, Alternatives: cleanAlternatives(raw.Alternatives)}, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func (c *Client) retryDelay(ctx context.Context, err error, attempt int) (time.Duration, bool) {
	if attempt >= c.retryMaxAttempts || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}
	if errors.Is(err, ErrMalformed) {
		return 0, false
	}

	var se *statusError
	if errors.As(err, &se) {
		if !se.retryable() {
			return 0, false
		}
		if se.RetryAfter > 0 {
			return min(se.RetryAfter, c.retryMaxDelay), true
		}
		return c.backoff(attempt), true
	}
	// Transport failure.
	return c.backoff(attempt), true
}

// backoff returns base * 2^(attempt-1), capped at the max delay.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.retryBaseDelay
	if d <= 0 {
		return 0
	}
	for i := 1; i < attempt; i++ {
		if d >= c.retryMaxDelay/2 {
			return c.retryMaxDelay
		}
		d *= 2
	}
	return min(d, c.retryMaxDelay)
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
