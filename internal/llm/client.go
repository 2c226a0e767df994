package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/zoontopia/superdaddy/internal/config"
	"github.com/zoontopia/superdaddy/internal/logging"
)

const (
	defaultTimeout     = 60 * time.Second
	defaultMaxRetries  = 3
	defaultBaseBackoff = 1 * time.Second
	defaultRateLimit   = 50.0 / 60.0 // requests per second
	defaultBurst       = 5
)

// Client implements Completer on top of a langchaingo model with rate
// limiting and bounded retries for transient failures.
type Client struct {
	model       llms.Model
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
	limiter     *rate.Limiter
	logger      *logging.Logger
}

// New creates a Client from configuration. Provider "googleai" targets the
// Gemini API; "openai" targets any OpenAI-compatible endpoint.
func New(ctx context.Context, cfg config.LLMConfig, logger *logging.Logger) (*Client, error) {
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("%w: llm api key required", ErrInvalidConfig)
	}

	var model llms.Model
	var err error
	switch cfg.Provider {
	case "googleai":
		model, err = googleai.New(ctx,
			googleai.WithAPIKey(cfg.APIKey.Value()),
			googleai.WithDefaultModel(cfg.Model),
		)
	case "openai":
		opts := []openai.Option{
			openai.WithModel(cfg.Model),
			openai.WithToken(cfg.APIKey.Value()),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s client: %w", cfg.Provider, err)
	}

	return NewFromModel(model, cfg, logger), nil
}

// NewFromModel wraps an existing langchaingo model. Used by New and by tests
// that inject a fake model.
func NewFromModel(model llms.Model, cfg config.LLMConfig, logger *logging.Logger) *Client {
	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	perSecond := cfg.RequestsPerMinute / 60.0
	if perSecond <= 0 {
		perSecond = defaultRateLimit
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Client{
		model:       model,
		timeout:     timeout,
		maxRetries:  maxRetries,
		baseBackoff: defaultBaseBackoff,
		limiter:     rate.NewLimiter(rate.Limit(perSecond), defaultBurst),
		logger:      logger.Named("llm"),
	}
}

// Complete sends one completion request, retrying transient failures with
// exponential backoff. Non-transient failures return immediately.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(schema.ChatMessageTypeHuman, userPrompt),
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.baseBackoff * time.Duration(1<<(attempt-1))
			c.logger.Debug(ctx, "retrying completion after transient error",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", c.maxRetries),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		text, err := c.generate(ctx, messages)
		if err == nil {
			return text, nil
		}

		lastErr = err
		if !IsRetryable(err) {
			return "", err
		}
	}

	c.logger.Warn(ctx, "completion failed after all retries",
		zap.Int("attempts", c.maxRetries+1),
		zap.Error(lastErr),
	)
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) generate(ctx context.Context, messages []llms.MessageContent) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.model.GenerateContent(ctx, messages)
	if err != nil {
		return "", classifyError(err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Content, nil
}

// classifyError wraps provider errors that are worth retrying.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "resource exhausted"),
		strings.Contains(msg, "unavailable"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline exceeded"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "500"),
		strings.Contains(msg, "502"),
		strings.Contains(msg, "503"):
		return &retryableError{err: err}
	default:
		return err
	}
}

// Ensure Client implements Completer.
var _ Completer = (*Client)(nil)
