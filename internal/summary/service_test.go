package summary

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/roasbeef/learnhub/internal/apperr"
	"github.com/roasbeef/learnhub/internal/llm"
	"github.com/roasbeef/learnhub/internal/transcript"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const validReply = `{"summary":"Covers goroutines.","takeaways":["a","b"],` +
	`"actions":["practice"]}`

// fakeGenerator replays scripted replies and records every request.
type fakeGenerator struct {
	mu      sync.Mutex
	replies []reply
	calls   []llm.Request
}

type reply struct {
	text string
	err  error
}

func (f *fakeGenerator) Generate(_ context.Context,
	req llm.Request) (string, error) {

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, req)
	if len(f.replies) == 0 {
		return validReply, nil
	}

	r := f.replies[0]
	f.replies = f.replies[1:]

	return r.text, r.err
}

func (f *fakeGenerator) numCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.calls)
}

// recordingSleep records backoff delays without waiting.
type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.delays = append(r.delays, d)

	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, gen Generator,
	opts ...Option) (*Service, *recordingSleep) {

	t.Helper()

	cfg := DefaultConfig()
	cfg.MaxTranscriptChars = 100
	cfg.BaseRetryDelay = 100 * time.Millisecond

	rec := &recordingSleep{}
	opts = append([]Option{WithSleep(rec.sleep)}, opts...)

	svc := NewService(cfg, gen, NewMemoryCache(testLogger()), testLogger(),
		opts...)
	require.NoError(t, svc.Validate())

	return svc, rec
}

func rateLimited() error {
	return apperr.Wrap(apperr.KindRateLimited, "429", errors.New("slow"))
}

func TestTruncate(t *testing.T) {
	t.Run("period near 95 percent", func(t *testing.T) {
		// 94 chars, a period at index 94, then filler past the limit.
		text := strings.Repeat("a", 94) + "." + strings.Repeat("b", 50)

		got, truncated := Truncate(text, 100)
		require.True(t, truncated)
		require.Len(t, got, 95)
		require.True(t, strings.HasSuffix(got, "."))
	})

	t.Run("short text unchanged", func(t *testing.T) {
		got, truncated := Truncate("Short. Text.", 100)
		require.False(t, truncated)
		require.Equal(t, "Short. Text.", got)
	})

	t.Run("period before 90 percent ignored", func(t *testing.T) {
		text := strings.Repeat("a", 50) + "." + strings.Repeat("b", 100)

		got, truncated := Truncate(text, 100)
		require.True(t, truncated)
		require.Len(t, got, 100)
	})

	t.Run("question mark counts", func(t *testing.T) {
		text := strings.Repeat("a", 92) + "?" + strings.Repeat("b", 20)

		got, truncated := Truncate(text, 100)
		require.True(t, truncated)
		require.Equal(t, strings.Repeat("a", 92)+"?", got)
	})

	t.Run("multibyte runes", func(t *testing.T) {
		text := strings.Repeat("é", 120)

		got, truncated := Truncate(text, 100)
		require.True(t, truncated)
		require.Equal(t, 100, len([]rune(got)))
	})
}

// TestTruncateProperty checks that truncation always yields a prefix no
// longer than the limit, and only reports truncation when text was long.
func TestTruncateProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.StringMatching(`[a-z .!?]{0,300}`).Draw(t, "text")
		limit := rapid.IntRange(1, 200).Draw(t, "limit")

		got, truncated := Truncate(text, limit)

		if !strings.HasPrefix(text, got) {
			t.Fatalf("result is not a prefix")
		}
		if len([]rune(got)) > limit {
			t.Fatalf("result longer than limit")
		}
		if truncated != (len([]rune(text)) > limit) {
			t.Fatalf("truncated flag wrong")
		}
		if truncated && len([]rune(got)) < limit*9/10 {
			t.Fatalf("cut too early: %d of %d", len(got), limit)
		}
	})
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Result
		wantErr bool
	}{
		{
			name: "prose wrapped object",
			raw: "Here is the result: {\"summary\":\"x\"," +
				"\"takeaways\":[\"a\"],\"actions\":[]}",
			want: Result{
				Summary:   "x",
				Takeaways: []string{"a"},
				Actions:   []string{},
			},
		},
		{
			name: "fenced",
			raw:  "```json\n" + validReply + "\n```",
			want: Result{
				Summary:   "Covers goroutines.",
				Takeaways: []string{"a", "b"},
				Actions:   []string{"practice"},
			},
		},
		{
			name: "missing summary and non-array lists",
			raw:  `{"takeaways":"not a list","actions":null}`,
			want: Result{
				Summary:   FallbackSummary,
				Takeaways: []string{},
				Actions:   []string{},
			},
		},
		{
			name: "caps and drops non-strings",
			raw: `{"summary":" s ","takeaways":["1",2,"3","4","5","6",
"7"],"actions":["a"," ","b","c","d"]}`,
			want: Result{
				Summary:   "s",
				Takeaways: []string{"1", "3", "4", "5", "6"},
				Actions:   []string{"a", "b", "c"},
			},
		},
		{name: "garbage", raw: "I cannot help with that.", wantErr: true},
		{name: "broken json", raw: `note {"summary": }`, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseResponse(tc.raw)
			if tc.wantErr {
				require.True(t, apperr.Is(err, apperr.KindParse))
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestSummarizeRetriesRateLimitThenSucceeds(t *testing.T) {
	gen := &fakeGenerator{replies: []reply{
		{err: rateLimited()},
		{text: validReply},
	}}
	svc, rec := newTestService(t, gen)

	longTranscript := strings.Repeat("word ", 40) + "end."
	resp, err := svc.Summarize(context.Background(), Request{
		Title:      "Go concurrency",
		VideoURL:   "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		Transcript: longTranscript,
	})
	require.NoError(t, err)
	require.True(t, resp.IsTruncated)
	require.False(t, resp.Cached)
	require.Equal(t, ContentTranscript, resp.ContentType)
	require.Equal(t, "Covers goroutines.", resp.Summary)

	require.Equal(t, 2, gen.numCalls())
	require.Equal(t, []time.Duration{100 * time.Millisecond}, rec.delays)

	stats := svc.Stats()
	require.EqualValues(t, 1, stats.Retries)
	require.EqualValues(t, 2, stats.UpstreamCalls)

	// The request sent upstream is low temperature and JSON mode.
	call := gen.calls[0]
	require.InDelta(t, DefaultTemperature, call.Temperature, 1e-6)
	require.Equal(t, DefaultMaxOutputTokens, call.MaxTokens)
	require.True(t, call.JSON)
	require.Equal(t, transcriptSystemPrompt, call.System)
	require.Contains(t, call.User, "shortened")
}

func TestSummarizeBackoffDoublesAndGivesUp(t *testing.T) {
	gen := &fakeGenerator{replies: []reply{
		{err: rateLimited()},
		{err: rateLimited()},
		{err: rateLimited()},
		{text: validReply},
	}}
	svc, rec := newTestService(t, gen)

	_, err := svc.Summarize(context.Background(), Request{
		Title:      "t",
		VideoURL:   "https://example.com/v",
		Transcript: "short.",
	})
	require.True(t, apperr.Is(err, apperr.KindRateLimited))
	require.Equal(t, DefaultMaxAttempts, gen.numCalls())
	require.Equal(t, []time.Duration{
		100 * time.Millisecond, 200 * time.Millisecond,
	}, rec.delays)
}

func TestSummarizeDoesNotRetryAuthOrQuota(t *testing.T) {
	for _, kind := range []apperr.Kind{
		apperr.KindAuth, apperr.KindQuota, apperr.KindConfiguration,
	} {
		t.Run(string(kind), func(t *testing.T) {
			gen := &fakeGenerator{replies: []reply{
				{err: apperr.New(kind, "nope")},
			}}
			svc, rec := newTestService(t, gen)

			_, err := svc.Summarize(context.Background(), Request{
				Title:      "t",
				VideoURL:   "https://example.com/v",
				Transcript: "short.",
			})
			require.Equal(t, kind, apperr.KindOf(err))
			require.Equal(t, 1, gen.numCalls())
			require.Empty(t, rec.delays)
		})
	}
}

func TestSummarizeParseError(t *testing.T) {
	gen := &fakeGenerator{replies: []reply{{text: "no json at all"}}}
	svc, _ := newTestService(t, gen)

	_, err := svc.Summarize(context.Background(), Request{
		Title:      "t",
		VideoURL:   "https://example.com/v",
		Transcript: "short.",
	})
	require.True(t, apperr.Is(err, apperr.KindParse))
	require.EqualValues(t, 1, svc.Stats().Failures)
}

func TestSummarizeCachesByVideoID(t *testing.T) {
	gen := &fakeGenerator{}
	svc, _ := newTestService(t, gen)

	req := Request{
		Title:      "t",
		VideoURL:   "https://youtu.be/dQw4w9WgXcQ",
		Transcript: "short.",
	}

	first, err := svc.Summarize(context.Background(), req)
	require.NoError(t, err)
	require.False(t, first.Cached)

	// Same video, different transcript: still a cache hit.
	req.Transcript = "different."
	second, err := svc.Summarize(context.Background(), req)
	require.NoError(t, err)
	require.True(t, second.Cached)
	require.Equal(t, first.Result, second.Result)
	require.Equal(t, 1, gen.numCalls())
	require.EqualValues(t, 1, svc.Stats().CacheHits)
}

func TestSummarizeFingerprintWithoutVideoID(t *testing.T) {
	gen := &fakeGenerator{}
	svc, _ := newTestService(t, gen)

	req := Request{
		Title:      "t",
		VideoURL:   "https://example.com/lecture",
		Transcript: "one.",
	}
	_, err := svc.Summarize(context.Background(), req)
	require.NoError(t, err)

	req.Transcript = "two."
	resp, err := svc.Summarize(context.Background(), req)
	require.NoError(t, err)
	require.False(t, resp.Cached)
	require.Equal(t, 2, gen.numCalls())

	req.Transcript = "one."
	resp, err = svc.Summarize(context.Background(), req)
	require.NoError(t, err)
	require.True(t, resp.Cached)
}

func TestSummarizeMetadata(t *testing.T) {
	gen := &fakeGenerator{}
	svc, _ := newTestService(t, gen)

	resp, err := svc.Summarize(context.Background(), Request{
		Title:    "Intro to Rust",
		VideoURL: "https://example.com/rust",
		Metadata: &transcript.Metadata{
			Description: "Ownership and borrowing explained.",
		},
	})
	require.NoError(t, err)
	require.Equal(t, ContentMetadata, resp.ContentType)
	require.False(t, resp.IsTruncated)

	call := gen.calls[0]
	require.Equal(t, metadataSystemPrompt, call.System)
	require.Contains(t, call.User, "Ownership and borrowing")
	require.Contains(t, call.User, "Intro to Rust")
}

func TestSummarizeValidation(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"missing title", Request{VideoURL: "u", Transcript: "x"}},
		{"missing url", Request{Title: "t", Transcript: "x"}},
		{"blank transcript no metadata", Request{
			Title: "t", VideoURL: "u", Transcript: "   ",
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gen := &fakeGenerator{}
			svc, _ := newTestService(t, gen)

			_, err := svc.Summarize(context.Background(), tc.req)
			require.True(t, apperr.Is(err, apperr.KindValidation))
			require.Zero(t, gen.numCalls())
		})
	}
}

// fakeProvider serves a canned transcript lookup.
type fakeProvider struct {
	res   *transcript.Result
	err   error
	calls int
}

func (f *fakeProvider) Fetch(_ context.Context,
	id string) (*transcript.Result, error) {

	f.calls++
	if f.err != nil {
		return nil, f.err
	}

	res := *f.res
	res.VideoID = id

	return &res, nil
}

func TestSummarizeFetchesTranscript(t *testing.T) {
	tests := []struct {
		name     string
		provider *fakeProvider
		want     ContentType
		wantErr  bool
	}{
		{
			name: "captions",
			provider: &fakeProvider{res: &transcript.Result{
				Available: true, Transcript: "Fetched words.",
			}},
			want: ContentTranscript,
		},
		{
			name: "no captions",
			provider: &fakeProvider{res: &transcript.Result{
				Metadata: &transcript.Metadata{Title: "Meta"},
			}},
			want: ContentMetadata,
		},
		{
			name:     "provider down",
			provider: &fakeProvider{err: errors.New("boom")},
			wantErr:  true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gen := &fakeGenerator{}
			svc, _ := newTestService(t, gen, WithProvider(tc.provider))

			resp, err := svc.Summarize(context.Background(), Request{
				Title:    "t",
				VideoURL: "https://youtu.be/dQw4w9WgXcQ",
			})
			if tc.wantErr {
				require.True(t, apperr.Is(err, apperr.KindValidation))
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.want, resp.ContentType)
		})
	}
}

// TestSummarizeCachedVideoSkipsProvider checks that a repeat request for a
// cached video neither calls the provider nor fails when it is down.
func TestSummarizeCachedVideoSkipsProvider(t *testing.T) {
	prov := &fakeProvider{res: &transcript.Result{
		Available: true, Transcript: "Fetched words.",
	}}
	gen := &fakeGenerator{}
	svc, _ := newTestService(t, gen, WithProvider(prov))

	req := Request{Title: "t", VideoURL: "https://youtu.be/dQw4w9WgXcQ"}

	first, err := svc.Summarize(context.Background(), req)
	require.NoError(t, err)
	require.False(t, first.Cached)
	require.Equal(t, 1, prov.calls)

	prov.err = errors.New("boom")

	second, err := svc.Summarize(context.Background(), req)
	require.NoError(t, err)
	require.True(t, second.Cached)
	require.Equal(t, first.Summary, second.Summary)
	require.Equal(t, 1, prov.calls)
	require.Equal(t, 1, gen.numCalls())
	require.EqualValues(t, 1, svc.Stats().CacheHits)
}

func TestTemperatureIsClamped(t *testing.T) {
	for _, temp := range []float32{-1, 0.1, 0.9, 2} {
		cfg := DefaultConfig()
		cfg.Temperature = temp

		gen := &fakeGenerator{}
		svc := NewService(cfg, gen, NewMemoryCache(testLogger()),
			testLogger())

		_, err := svc.Summarize(context.Background(), Request{
			Title:      "t",
			VideoURL:   "https://example.com/v",
			Transcript: "Words.",
		})
		require.NoError(t, err)
		require.Equal(t, 1, gen.numCalls())

		got := gen.calls[0].Temperature
		require.GreaterOrEqual(t, got, float32(0))
		require.LessOrEqual(t, got, float32(MaxTemperature))
	}
}

func TestSleepContextHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sleepContext(ctx, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))
}
