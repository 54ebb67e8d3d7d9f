package translator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"texguard/internal/logger"
	"texguard/internal/types"
)

const (
	// DefaultMaxRetries is the maximum number of attempts per paragraph
	DefaultMaxRetries = 2
	// BaseRetryDelay is the base delay between retries
	BaseRetryDelay = 2 * time.Second
	// DefaultTimeout bounds a single backend request
	DefaultTimeout = 120 * time.Second
)

// Backend translates one paragraph of tokenized text. Placeholders of the
// form #N# must come back unchanged.
type Backend interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// IdentityBackend returns its input. It stands in for a real backend in dry
// runs.
type IdentityBackend struct{}

// Translate implements Backend.
func (IdentityBackend) Translate(_ context.Context, text, _, _ string) (string, error) {
	return text, nil
}

// chatGenerator is the part of an eino chat model the backend needs.
type chatGenerator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// OpenAIConfig configures NewOpenAIBackend.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// OpenAIBackend translates through an OpenAI compatible chat completion API.
type OpenAIBackend struct {
	chat       chatGenerator
	model      string
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
}

// NewOpenAIBackend creates the eino chat model described by cfg.
func NewOpenAIBackend(ctx context.Context, cfg OpenAIConfig) (*OpenAIBackend, error) {
	if cfg.APIKey == "" {
		return nil, types.NewAppErrorWithDetails(types.ErrConfig, "missing API key",
			"set openai_api_key in the config file or OPENAI_API_KEY", nil)
	}

	temperature := float32(0)
	chatModelConfig := &openai.ChatModelConfig{
		Model:       cfg.Model,
		APIKey:      cfg.APIKey,
		Timeout:     cfg.Timeout,
		Temperature: &temperature,
	}
	if cfg.BaseURL != "" {
		chatModelConfig.BaseURL = cfg.BaseURL
	}

	chatModel, err := openai.NewChatModel(ctx, chatModelConfig)
	if err != nil {
		return nil, types.NewAppError(types.ErrConfig, "failed to create chat model", err)
	}

	logger.Info("translation backend ready",
		logger.String("model", cfg.Model),
		logger.String("baseURL", cfg.BaseURL))
	return newOpenAIBackend(chatModel, cfg), nil
}

func newOpenAIBackend(chat chatGenerator, cfg OpenAIConfig) *OpenAIBackend {
	b := &OpenAIBackend{
		chat:       chat,
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		retryDelay: BaseRetryDelay,
	}
	if b.timeout <= 0 {
		b.timeout = DefaultTimeout
	}
	if b.maxRetries <= 0 {
		b.maxRetries = DefaultMaxRetries
	}
	return b
}

// Translate implements Backend with retry logic for transient errors.
func (b *OpenAIBackend) Translate(ctx context.Context, text, source, target string) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= b.maxRetries; attempt++ {
		logger.Debug("translation attempt", logger.Int("attempt", attempt))
		translated, err := b.generate(ctx, text, source, target)
		if err == nil {
			return translated, nil
		}

		lastErr = err
		logger.Warn("translation attempt failed", logger.Int("attempt", attempt), logger.Err(err))

		if !isRetryableAPIError(err) {
			return "", err
		}

		if attempt < b.maxRetries {
			delay := b.retryDelay * time.Duration(attempt)
			logger.Debug("retrying after delay", logger.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return "", types.NewAppErrorWithDetails(
		types.ErrAPICall,
		"translation failed after multiple retries",
		fmt.Sprintf("attempted %d times", b.maxRetries),
		lastErr,
	)
}

func (b *OpenAIBackend) generate(ctx context.Context, text, source, target string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	resp, err := b.chat.Generate(reqCtx, []*schema.Message{
		schema.SystemMessage(buildSystemPrompt(source, target)),
		schema.UserMessage(text),
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", classifyError(err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", types.NewAppErrorWithDetails(types.ErrAPICall, "empty response from model", b.model, nil)
	}
	return restoreEdges(text, stripCodeFence(resp.Content)), nil
}

var statusCodePattern = regexp.MustCompile(`status code: (\d{3})`)

// classifyError maps a chat model error onto an AppError code.
func classifyError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return types.NewAppError(types.ErrNetwork, "request to translation API failed", err)
	}

	msg := err.Error()
	if m := statusCodePattern.FindStringSubmatch(msg); m != nil {
		status, _ := strconv.Atoi(m[1])
		switch {
		case status == 429:
			return types.NewAppErrorWithDetails(types.ErrAPIRateLimit, "API rate limit exceeded", m[0], err)
		case status == 401 || status == 403:
			return types.NewAppErrorWithDetails(types.ErrAPICall, "API authentication failed", m[0], err)
		case status >= 500:
			return types.NewAppErrorWithDetails(types.ErrAPICall, "API server error",
				fmt.Sprintf("status %d", status), err)
		default:
			return types.NewAppErrorWithDetails(types.ErrAPICall, "API request failed",
				fmt.Sprintf("status %d", status), err)
		}
	}
	return types.NewAppError(types.ErrAPICall, "API request failed", err)
}

// isRetryableAPIError determines if an error should trigger a retry.
func isRetryableAPIError(err error) bool {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case types.ErrNetwork, types.ErrAPIRateLimit:
		return true
	case types.ErrAPICall:
		// server errors only
		return strings.HasPrefix(appErr.Details, "status 5")
	default:
		return false
	}
}

// stripCodeFence removes a markdown fence some models wrap their answer in.
func stripCodeFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") || !strings.HasSuffix(t, "```") || len(t) < 6 {
		return s
	}
	t = strings.TrimSuffix(t, "```")
	if i := strings.IndexByte(t, '\n'); i >= 0 {
		t = t[i+1:]
	} else {
		t = strings.TrimPrefix(t, "```")
	}
	return t
}

// restoreEdges gives out the leading and trailing whitespace of in.
func restoreEdges(in, out string) string {
	lead := in[:len(in)-len(strings.TrimLeft(in, " \t\n"))]
	trail := in[len(strings.TrimRight(in, " \t\n")):]
	return lead + strings.Trim(out, " \t\n") + trail
}

func buildSystemPrompt(source, target string) string {
	return fmt.Sprintf(`You are a translator for LaTeX documents. Translate the user's text from %s to %s.

The text contains placeholders of the form #N#, where N is a number (for example #0#, #17#).
Each placeholder stands for LaTeX markup that has been removed from the text.

Rules:
- Copy every placeholder exactly, character by character. Never translate, renumber, merge, split or drop one.
- Keep each placeholder at the position where the surrounding sentence needs it.
- Keep line breaks where they are.
- Output only the translated text, with no explanations, labels or markdown.

Example:
Input: The value #3# is shown in #4#.
Output (Spanish): El valor #3# se muestra en #4#.`, source, target)
}
