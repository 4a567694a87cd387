package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
)

const temperature = 0.4

// ErrUnavailable is returned while the circuit breaker refuses calls.
var ErrUnavailable = errors.New("llm unavailable")

// Completer sends a single prompt to a language model and returns its reply.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Claude completes prompts with the Anthropic Messages API.
type Claude struct {
	client anthropic.Client
	model  string
}

// NewClaude creates a Claude completer. Extra options are passed to the SDK
// client (base URL, HTTP client, retries).
func NewClaude(apiKey, model string, httpClient *http.Client, opts ...option.RequestOption) *Claude {
	base := []option.RequestOption{option.WithAPIKey(apiKey)}
	if httpClient != nil {
		base = append(base, option.WithHTTPClient(httpClient))
	}
	opts = append(base, opts...)
	return &Claude{client: anthropic.NewClient(opts...), model: model}
}

func (c *Claude) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude api: %w", err)
	}
	if len(msg.Content) == 0 {
		return "", errors.New("claude api: empty response")
	}
	block, ok := msg.Content[0].AsAny().(anthropic.TextBlock)
	if !ok {
		return "", errors.New("claude api: unexpected content type")
	}
	return strings.TrimSpace(block.Text), nil
}

// OpenAI completes prompts with any OpenAI-compatible chat completions API.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates an OpenAI completer. An empty baseURL uses the public API.
func NewOpenAI(apiKey, model, baseURL string, httpClient *http.Client) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model}
}

func (o *OpenAI) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Messages: []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleUser,
			Content: prompt,
		}},
	})
	if err != nil {
		return "", fmt.Errorf("openai api: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai api: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// BreakerSettings controls when the breaker opens.
type BreakerSettings struct {
	Name             string
	MinRequests      uint32
	FailureThreshold float64
	Interval         time.Duration
	Timeout          time.Duration
}

// DefaultBreakerSettings suits a model API called a few times per poll.
func DefaultBreakerSettings(name string) BreakerSettings {
	return BreakerSettings{
		Name:             name,
		MinRequests:      5,
		FailureThreshold: 0.6,
		Interval:         30 * time.Minute,
		Timeout:          5 * time.Minute,
	}
}

// Breaker wraps a Completer with a circuit breaker so a failing provider is
// not called for every story of every cycle.
type Breaker struct {
	next    Completer
	breaker *gobreaker.CircuitBreaker
}

// NewBreaker wraps next.
func NewBreaker(next Completer, s BreakerSettings, logger *slog.Logger) *Breaker {
	return &Breaker{
		next: next,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        s.Name,
			MaxRequests: 1,
			Interval:    s.Interval,
			Timeout:     s.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < s.MinRequests {
					return false
				}
				return float64(counts.TotalFailures)/float64(counts.Requests) >= s.FailureThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("llm circuit breaker state changed",
					"circuit", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

func (b *Breaker) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	out, err := b.breaker.Execute(func() (interface{}, error) {
		return b.next.Complete(ctx, prompt, maxTokens)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

// State reports the breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.breaker.State()
}
