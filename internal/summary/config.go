package summary

import "time"

const (
	// DefaultMaxTranscriptChars is the transcript length, in characters,
	// beyond which the transcript is truncated before prompting.
	DefaultMaxTranscriptChars = 30000

	// DefaultCacheTTL is how long a generated summary stays cached.
	DefaultCacheTTL = time.Hour

	// DefaultTemperature keeps generations close to deterministic.
	DefaultTemperature = 0.2

	// MaxTemperature is the highest temperature ever sent upstream.
	MaxTemperature = 0.5

	// DefaultMaxOutputTokens bounds the model's reply.
	DefaultMaxOutputTokens = 1024

	// DefaultMaxAttempts is the total number of generation attempts made
	// when the upstream keeps rate limiting.
	DefaultMaxAttempts = 3

	// DefaultBaseRetryDelay is the first backoff delay. It doubles on
	// every further attempt.
	DefaultBaseRetryDelay = time.Second

	// DefaultMaxConcurrent is the max simultaneous upstream calls.
	DefaultMaxConcurrent = 4

	// MaxTakeaways is the most takeaways kept from a model reply.
	MaxTakeaways = 5

	// MaxActions is the most action items kept from a model reply.
	MaxActions = 3

	// FallbackSummary replaces a missing summary in the model reply.
	FallbackSummary = "Summary not available for this video."
)

// Config holds configuration for the summary service.
type Config struct {
	// MaxTranscriptChars is the truncation threshold for transcripts.
	MaxTranscriptChars int `mapstructure:"max_transcript_chars"`

	// CacheTTL is how long summaries remain cached.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`

	// Temperature is the sampling temperature sent upstream. It must lie
	// in [0, MaxTemperature].
	Temperature float32 `mapstructure:"temperature"`

	// MaxOutputTokens bounds the generated reply.
	MaxOutputTokens int `mapstructure:"max_output_tokens"`

	// MaxAttempts bounds generation attempts on rate limiting.
	MaxAttempts int `mapstructure:"max_attempts"`

	// BaseRetryDelay is the first backoff delay.
	BaseRetryDelay time.Duration `mapstructure:"base_retry_delay"`

	// MaxConcurrent is the max simultaneous upstream calls.
	MaxConcurrent int `mapstructure:"max_concurrent"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxTranscriptChars: DefaultMaxTranscriptChars,
		CacheTTL:           DefaultCacheTTL,
		Temperature:        DefaultTemperature,
		MaxOutputTokens:    DefaultMaxOutputTokens,
		MaxAttempts:        DefaultMaxAttempts,
		BaseRetryDelay:     DefaultBaseRetryDelay,
		MaxConcurrent:      DefaultMaxConcurrent,
	}
}
