// Package chat proxies the site's chat widget to an OpenAI-compatible
// completion API.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/jmcleod/leaddesk/metrics"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrUnavailable is returned while the circuit breaker is open.
	ErrUnavailable = errors.New("chat provider temporarily unavailable")
	// ErrUpstream wraps any failed exchange with the provider.
	ErrUpstream = errors.New("chat provider request failed")
)

// Config configures the provider connection.
type Config struct {
	Enabled     bool          `yaml:"enabled"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`

	// UpstreamRPS bounds requests to the provider across all callers.
	UpstreamRPS   float64 `yaml:"upstream_rps"`
	UpstreamBurst int     `yaml:"upstream_burst"`

	SystemPrompt       string `yaml:"system_prompt"`
	PromptFile         string `yaml:"prompt_file"`
	MaxHistoryMessages int    `yaml:"max_history_messages"`
	MaxHistoryChars    int    `yaml:"max_history_chars"`
}

// Validate checks the settings needed to reach the provider.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("chat: invalid base_url %q", c.BaseURL)
	}
	if c.Model == "" {
		return errors.New("chat: model is required")
	}
	if c.UpstreamRPS < 0 {
		return errors.New("chat: upstream_rps must not be negative")
	}
	return nil
}

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer produces the assistant's reply to a conversation.
type Completer interface {
	Complete(ctx context.Context, system string, history []Message) (string, error)
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Client calls the provider through a circuit breaker and an outbound
// rate limiter.
type Client struct {
	http        *resty.Client
	model       string
	maxTokens   int
	temperature float64
	breaker     *gobreaker.CircuitBreaker
	limiter     *rate.Limiter
	logger      *slog.Logger
}

var _ Completer = (*Client)(nil)

// NewClient returns a Client for cfg.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "chat")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		httpClient.SetAuthToken(cfg.APIKey)
	}

	limit := rate.Inf
	burst := cfg.UpstreamBurst
	if cfg.UpstreamRPS > 0 {
		limit = rate.Limit(cfg.UpstreamRPS)
		if burst <= 0 {
			burst = 1
		}
	}

	return &Client{
		http:        httpClient,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		breaker:     newBreaker("chat-upstream", logger),
		limiter:     rate.NewLimiter(limit, burst),
		logger:      logger,
	}, nil
}

func newBreaker(name string, logger *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up says nothing about provider health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// Complete sends the system prompt and history to the provider and returns
// the assistant's reply.
func (c *Client) Complete(ctx context.Context, system string, history []Message) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	messages := make([]Message, 0, len(history)+1)
	if system != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: system})
	}
	messages = append(messages, history...)

	start := time.Now()
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, messages)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.ChatUpstreamRequests.WithLabelValues("breaker_open").Inc()
		return "", ErrUnavailable
	case err != nil:
		metrics.ChatUpstreamRequests.WithLabelValues("error").Inc()
		c.logger.Error("chat completion failed", "error", err)
		return "", err
	}
	metrics.ChatUpstreamRequests.WithLabelValues("ok").Inc()
	metrics.ChatUpstreamLatency.Observe(time.Since(start).Seconds())
	return out.(string), nil
}

func (c *Client) do(ctx context.Context, messages []Message) (string, error) {
	var (
		result  completionResponse
		failure errorResponse
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(completionRequest{
			Model:       c.model,
			Messages:    messages,
			MaxTokens:   c.maxTokens,
			Temperature: c.temperature,
		}).
		SetResult(&result).
		SetError(&failure).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	if resp.IsError() {
		msg := failure.Error.Message
		if msg == "" {
			msg = resp.Status()
		}
		return "", fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode(), msg)
	}
	if len(result.Choices) == 0 || strings.TrimSpace(result.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: empty completion", ErrUpstream)
	}
	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}
