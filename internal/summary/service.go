package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/roasbeef/learnhub/internal/apperr"
	"github.com/roasbeef/learnhub/internal/cache"
	"github.com/roasbeef/learnhub/internal/llm"
	"github.com/roasbeef/learnhub/internal/transcript"
)

// Generator produces raw model output for a prompt. Implementations must
// classify failures with apperr kinds; only apperr.KindRateLimited is
// retried.
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (string, error)
}

// ResultCache stores summaries by key.
type ResultCache interface {
	Get(ctx context.Context, key string) (Result, bool)
	Set(ctx context.Context, key string, r Result, ttl time.Duration)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Stats is a snapshot of service counters.
type Stats struct {
	Requests      int64 `json:"requests"`
	CacheHits     int64 `json:"cache_hits"`
	UpstreamCalls int64 `json:"upstream_calls"`
	Retries       int64 `json:"retries"`
	Failures      int64 `json:"failures"`
}

// Service turns video transcripts or metadata into structured summaries.
// Two concurrent misses for the same video may both call upstream; both
// results are equivalent and the later one simply overwrites the cache.
type Service struct {
	cfg      Config
	gen      Generator
	cache    ResultCache
	provider transcript.Provider
	sleep    SleepFunc
	log      *slog.Logger

	// sem limits concurrent upstream calls.
	sem chan struct{}

	requests      atomic.Int64
	cacheHits     atomic.Int64
	upstreamCalls atomic.Int64
	retries       atomic.Int64
	failures      atomic.Int64
}

// Option customizes a Service.
type Option func(*Service)

// WithSleep replaces the backoff wait, e.g. with a no-op in tests.
func WithSleep(sleep SleepFunc) Option {
	return func(s *Service) {
		s.sleep = sleep
	}
}

// WithProvider sets the transcript provider consulted when a request has
// neither a transcript nor metadata.
func WithProvider(p transcript.Provider) Option {
	return func(s *Service) {
		s.provider = p
	}
}

// NewService creates a new summary service.
func NewService(cfg Config, gen Generator, resultCache ResultCache,
	log *slog.Logger, opts ...Option) *Service {

	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	cfg.Temperature = min(max(cfg.Temperature, 0), MaxTemperature)

	s := &Service{
		cfg:   cfg,
		gen:   gen,
		cache: resultCache,
		sleep: sleepContext,
		log:   log.With("component", "summary"),
		sem:   make(chan struct{}, cfg.MaxConcurrent),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// NewMemoryCache returns an in-process ResultCache.
func NewMemoryCache(log *slog.Logger) *cache.Tiered[Result] {
	return cache.NewTiered(
		cache.New[Result](), nil, "", DefaultCacheTTL, log,
	)
}

// Summarize returns the summary for req, from the cache when possible.
func (s *Service) Summarize(ctx context.Context, req Request) (*Response,
	error) {

	s.requests.Add(1)

	if err := validateRequest(&req); err != nil {
		return nil, err
	}

	// A bare title and URL for a known video is served from the cache
	// before the provider is consulted.
	if !hasContent(&req) && req.VideoID != "" {
		if resp, ok := s.cached(ctx, cacheKey(req)); ok {
			return resp, nil
		}
	}

	if err := s.resolveContent(ctx, &req); err != nil {
		return nil, err
	}

	key := cacheKey(req)
	if resp, ok := s.cached(ctx, key); ok {
		return resp, nil
	}

	kind, input := s.buildInput(req)
	genReq := buildRequest(kind, input, s.cfg)

	raw, err := s.generate(ctx, genReq)
	if err != nil {
		s.failures.Add(1)
		return nil, err
	}

	result, err := ParseResponse(raw)
	if err != nil {
		s.failures.Add(1)
		s.log.WarnContext(ctx, "Unparseable model reply", "key", key,
			"err", err)

		return nil, err
	}
	result.IsTruncated = input.truncated
	result.ContentType = kind

	s.cache.Set(ctx, key, result, s.cfg.CacheTTL)

	s.log.InfoContext(ctx, "Summary generated", "key", key,
		"content_type", kind, "truncated", input.truncated,
		"takeaways", len(result.Takeaways))

	return &Response{Result: result}, nil
}

// Stats returns a snapshot of the service counters.
func (s *Service) Stats() Stats {
	return Stats{
		Requests:      s.requests.Load(),
		CacheHits:     s.cacheHits.Load(),
		UpstreamCalls: s.upstreamCalls.Load(),
		Retries:       s.retries.Load(),
		Failures:      s.failures.Load(),
	}
}

// validateRequest trims the required fields and derives the video id from
// the URL when the caller did not pass one.
func validateRequest(req *Request) error {
	req.Title = strings.TrimSpace(req.Title)
	req.VideoURL = strings.TrimSpace(req.VideoURL)

	if req.Title == "" || req.VideoURL == "" {
		return apperr.Validation("title and videoUrl are required")
	}

	if req.VideoID == "" {
		if id, err := transcript.ParseVideoID(req.VideoURL); err == nil {
			req.VideoID = id
		}
	}

	return nil
}

// cached returns the stored summary under key, if any.
func (s *Service) cached(ctx context.Context, key string) (*Response, bool) {
	result, ok := s.cache.Get(ctx, key)
	if !ok {
		return nil, false
	}

	s.cacheHits.Add(1)
	s.log.DebugContext(ctx, "Summary cache hit", "key", key)

	return &Response{Result: result, Cached: true}, true
}

// resolveContent fills in a missing transcript or metadata from the
// provider.
func (s *Service) resolveContent(ctx context.Context, req *Request) error {
	if hasContent(req) {
		return nil
	}

	if s.provider != nil && req.VideoID != "" {
		res, err := s.provider.Fetch(ctx, req.VideoID)
		switch {
		case err != nil:
			s.log.WarnContext(ctx, "Transcript lookup failed",
				"video_id", req.VideoID, "err", err)

		case res.Available:
			req.Transcript = res.Transcript

		case res.Metadata != nil:
			req.Metadata = res.Metadata
		}
	}

	if !hasContent(req) {
		return apperr.Validation("either transcript or metadata is " +
			"required")
	}

	return nil
}

// hasContent reports whether req carries a transcript or metadata.
func hasContent(req *Request) bool {
	return hasTranscript(req) || req.Metadata != nil
}

// hasTranscript reports whether req carries a non-blank transcript.
func hasTranscript(req *Request) bool {
	return strings.TrimSpace(req.Transcript) != ""
}

// buildInput picks the content type and renders the template input.
func (s *Service) buildInput(req Request) (ContentType, promptInput) {
	in := promptInput{title: req.Title, url: req.VideoURL}

	if hasTranscript(&req) {
		in.transcript, in.truncated = Truncate(
			strings.TrimSpace(req.Transcript), s.cfg.MaxTranscriptChars,
		)

		return ContentTranscript, in
	}

	if t := strings.TrimSpace(req.Metadata.Title); t != "" {
		in.title = t
	}
	if u := strings.TrimSpace(req.Metadata.URL); u != "" {
		in.url = u
	}
	in.description = req.Metadata.Description

	return ContentMetadata, in
}

// cacheKey keys by video id when known and by a content fingerprint
// otherwise.
func cacheKey(req Request) string {
	if req.VideoID != "" {
		return "video:" + req.VideoID
	}

	if hasTranscript(&req) {
		return "content:" + cache.Fingerprint(
			string(ContentTranscript), req.Title, req.Transcript,
		)
	}

	return "content:" + cache.Fingerprint(
		string(ContentMetadata), req.Title, req.VideoURL,
		req.Metadata.Title, req.Metadata.Description,
	)
}

// generate calls the generator, backing off exponentially while the
// upstream rate limits. Other failures return immediately.
func (s *Service) generate(ctx context.Context, req llm.Request) (string,
	error) {

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()

	case <-ctx.Done():
		return "", apperr.Wrap(apperr.KindUnreachable,
			"request cancelled while queued", ctx.Err())
	}

	for attempt := 0; ; attempt++ {
		s.upstreamCalls.Add(1)

		raw, err := s.gen.Generate(ctx, req)
		if err == nil {
			return raw, nil
		}

		lastAttempt := attempt+1 >= s.cfg.MaxAttempts
		if !apperr.Is(err, apperr.KindRateLimited) || lastAttempt {
			return "", err
		}

		delay := s.cfg.BaseRetryDelay << attempt
		s.retries.Add(1)
		s.log.InfoContext(ctx, "Upstream rate limited, backing off",
			"attempt", attempt+1, "delay", delay)

		if sleepErr := s.sleep(ctx, delay); sleepErr != nil {
			return "", fmt.Errorf("%w (backoff aborted: %v)", err,
				sleepErr)
		}
	}
}

// sleepContext waits for d without blocking past ctx cancellation.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil

	case <-ctx.Done():
		return ctx.Err()
	}
}

// errNoGenerator guards against a nil generator in misconfigured wiring.
var errNoGenerator = errors.New("no generator configured")

// Validate reports wiring mistakes that would otherwise panic on the first
// request.
func (s *Service) Validate() error {
	if s.gen == nil {
		return apperr.Wrap(apperr.KindConfiguration,
			"summary service misconfigured", errNoGenerator)
	}
	if s.cache == nil {
		return apperr.Configuration("summary service has no cache")
	}

	return nil
}
