package llm

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/roasbeef/learnhub/internal/apperr"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is Gemini's OpenAI-compatible endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"

	// DefaultModel is the Gemini model used for summaries.
	DefaultModel = "gemini-2.0-flash"

	// DefaultTimeout bounds a single generation request.
	DefaultTimeout = 60 * time.Second

	// DefaultRequestsPerMinute paces outbound calls from this process.
	DefaultRequestsPerMinute = 60
)

// Request is a single-turn generation request.
type Request struct {
	// System is the system instruction.
	System string

	// User is the user turn.
	User string

	// Temperature controls sampling randomness.
	Temperature float32

	// MaxTokens bounds the response length.
	MaxTokens int

	// JSON asks the model for a JSON object response.
	JSON bool
}

// Config configures the Gemini client.
type Config struct {
	// APIKey is the Gemini API key. An empty key makes every call fail
	// with a configuration error.
	APIKey string `mapstructure:"api_key"`

	// BaseURL overrides the OpenAI-compatible endpoint.
	BaseURL string `mapstructure:"base_url"`

	// Model is the model identifier.
	Model string `mapstructure:"model"`

	// Timeout bounds each request.
	Timeout time.Duration `mapstructure:"timeout"`

	// RequestsPerMinute paces outbound calls. Zero disables pacing.
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
}

// DefaultConfig returns the default Gemini configuration without a key.
func DefaultConfig() Config {
	return Config{
		BaseURL:           DefaultBaseURL,
		Model:             DefaultModel,
		Timeout:           DefaultTimeout,
		RequestsPerMinute: DefaultRequestsPerMinute,
	}
}

// Gemini generates text with Google Gemini through its OpenAI-compatible
// chat completions API. Errors are classified into apperr kinds so callers
// can decide what to retry.
type Gemini struct {
	cfg     Config
	client  *openai.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewGemini creates a Gemini client. A missing key is not an error here; it
// surfaces on the first call so the daemon can still serve other routes.
func NewGemini(cfg Config, log *slog.Logger) *Gemini {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	g := &Gemini{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientCfg),
		log:    log.With("component", "llm", "model", cfg.Model),
	}

	if cfg.RequestsPerMinute > 0 {
		g.limiter = rate.NewLimiter(
			rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)),
			1,
		)
	}

	return g
}

// Model returns the configured model identifier.
func (g *Gemini) Model() string {
	return g.cfg.Model
}

// Generate sends req and returns the text of the first choice.
func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	if g.cfg.APIKey == "" {
		return "", apperr.Configuration("gemini api key is not set").
			WithDetail("set llm.api_key or LEARNHUB_LLM_API_KEY")
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", apperr.Wrap(apperr.KindUnreachable,
				"gave up waiting for llm pacing", err)
		}
	}

	chatReq := openai.ChatCompletionRequest{
		Model: g.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		classified := Classify(err)
		g.log.DebugContext(ctx, "Generation failed",
			"kind", apperr.KindOf(classified),
			"elapsed", time.Since(start), "err", err)

		return "", classified
	}

	if len(resp.Choices) == 0 {
		return "", apperr.New(apperr.KindParse,
			"model returned no choices")
	}

	g.log.DebugContext(ctx, "Generation complete",
		"elapsed", time.Since(start),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	return resp.Choices[0].Message.Content, nil
}

// Classify maps a transport or API error onto an apperr kind: 429 is rate
// limiting, 401 is auth, 403 is quota, and timeouts, network failures and
// 5xx responses are unreachable.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}

	status, msg := statusOf(err)

	switch {
	case status == http.StatusTooManyRequests:
		return apperr.Wrap(apperr.KindRateLimited,
			"gemini rate limited the request", err)

	case status == http.StatusUnauthorized:
		return apperr.Wrap(apperr.KindAuth,
			"gemini rejected the api key", err)

	// Gemini reports a malformed key as a 400.
	case status == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(msg), "api key"):

		return apperr.Wrap(apperr.KindAuth,
			"gemini rejected the api key", err)

	case status == http.StatusForbidden:
		return apperr.Wrap(apperr.KindQuota,
			"gemini quota exceeded", err)

	case status >= http.StatusInternalServerError:
		return apperr.Wrap(apperr.KindUnreachable,
			"gemini is unavailable", err)

	case status != 0:
		return apperr.Wrap(apperr.KindInternal,
			"gemini rejected the request", err)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.As(err, &netErr) {

		return apperr.Wrap(apperr.KindUnreachable,
			"gemini request timed out", err)
	}

	return apperr.Wrap(apperr.KindUnreachable, "gemini request failed",
		err)
}

// statusOf extracts the HTTP status and message from a go-openai error.
func statusOf(err error) (int, string) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, apiErr.Message
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode, string(reqErr.Body)
	}

	return 0, ""
}
