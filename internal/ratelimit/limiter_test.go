package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.now = f.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func TestAllowExactlyLimit(t *testing.T) {
	clock := newClock()
	l := NewLimiterWithClock(clock.Now)

	const (
		limit  = 5
		window = time.Minute
	)

	for i := 0; i < limit; i++ {
		require.True(t, l.Allow("10.0.0.1", limit, window), "call %d", i)
		clock.Advance(time.Second)
	}

	require.False(t, l.Allow("10.0.0.1", limit, window))

	// Other clients are unaffected.
	require.True(t, l.Allow("10.0.0.2", limit, window))

	// Once the whole window has passed since the last allowed call, the
	// client may proceed again.
	clock.Advance(window)
	require.True(t, l.Allow("10.0.0.1", limit, window))
}

func TestRejectedCallsAreNotRecorded(t *testing.T) {
	clock := newClock()
	l := NewLimiterWithClock(clock.Now)

	require.True(t, l.Allow("id", 1, 10*time.Second))

	// Keep hammering while limited.
	for i := 0; i < 9; i++ {
		clock.Advance(time.Second)
		require.False(t, l.Allow("id", 1, 10*time.Second))
	}

	// Ten seconds after the single recorded request, the bucket is free
	// even though rejected calls kept arriving.
	clock.Advance(time.Second)
	require.True(t, l.Allow("id", 1, 10*time.Second))
}

func TestSlidingWindowFreesOldestFirst(t *testing.T) {
	clock := newClock()
	l := NewLimiterWithClock(clock.Now)

	require.True(t, l.Allow("id", 2, 10*time.Second))
	clock.Advance(5 * time.Second)
	require.True(t, l.Allow("id", 2, 10*time.Second))
	require.False(t, l.Allow("id", 2, 10*time.Second))

	left, resetAt := l.Remaining("id", 2, 10*time.Second)
	require.Zero(t, left)
	require.Equal(t, clock.Now().Add(5*time.Second), resetAt)

	// The first request ages out, making room for exactly one more.
	clock.Advance(5 * time.Second)
	require.True(t, l.Allow("id", 2, 10*time.Second))
	require.False(t, l.Allow("id", 2, 10*time.Second))
}

func TestZeroLimitAlwaysRejects(t *testing.T) {
	l := NewLimiter()
	require.False(t, l.Allow("id", 0, time.Minute))
}

func TestSweep(t *testing.T) {
	clock := newClock()
	l := NewLimiterWithClock(clock.Now)

	l.Allow("old", 10, time.Minute)
	clock.Advance(10 * time.Minute)
	l.Allow("fresh", 10, time.Minute)

	require.Equal(t, 2, l.Len())
	require.Equal(t, 1, l.Sweep(5*time.Minute))
	require.Equal(t, 1, l.Len())
}

// TestAllowProperty checks that within one window no more than limit calls
// ever succeed, regardless of how calls are spaced.
func TestAllowProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		clock := newClock()
		l := NewLimiterWithClock(clock.Now)

		limit := rapid.IntRange(1, 10).Draw(t, "limit")
		window := time.Duration(
			rapid.IntRange(1, 100).Draw(t, "window"),
		) * time.Second
		gaps := rapid.SliceOfN(
			rapid.IntRange(0, 30), 1, 60,
		).Draw(t, "gaps")

		var allowed []time.Time
		for _, gap := range gaps {
			clock.Advance(time.Duration(gap) * time.Second)
			if l.Allow("id", limit, window) {
				allowed = append(allowed, clock.Now())
			}
		}

		// Any window-length span holds at most limit allowed calls.
		for i := range allowed {
			var inWindow int
			for j := i; j < len(allowed); j++ {
				if allowed[j].Sub(allowed[i]) < window {
					inWindow++
				}
			}
			if inWindow > limit {
				t.Fatalf("%d calls allowed within %v (limit %d)",
					inWindow, window, limit)
			}
		}
	})
}

func TestClientID(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{
			name: "forwarded first entry",
			header: map[string]string{
				"X-Forwarded-For": "203.0.113.7, 10.0.0.1",
				"X-Real-IP":       "198.51.100.2",
			},
			remote: "10.0.0.9:5555",
			want:   "203.0.113.7",
		},
		{
			name:   "real ip",
			header: map[string]string{"X-Real-IP": "198.51.100.2"},
			remote: "10.0.0.9:5555",
			want:   "198.51.100.2",
		},
		{
			name:   "socket address",
			remote: "10.0.0.9:5555",
			want:   "10.0.0.9",
		},
		{
			name: "unknown",
			want: UnknownClient,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tc.remote
			for k, v := range tc.header {
				r.Header.Set(k, v)
			}

			require.Equal(t, tc.want, ClientID(r))
		})
	}
}

func TestMiddleware(t *testing.T) {
	clock := newClock()
	l := NewLimiterWithClock(clock.Now)

	var rejected int
	handler := l.Middleware(2, time.Minute, func(w http.ResponseWriter,
		_ *http.Request, _ time.Duration) {

		rejected++
		w.WriteHeader(http.StatusTooManyRequests)
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		r := httptest.NewRequest(http.MethodPost, "/api/v1/summarize", nil)
		r.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)
		codes = append(codes, rec.Code)

		if rec.Code == http.StatusTooManyRequests {
			require.Equal(t, "60", rec.Header().Get("Retry-After"))
		}
	}

	require.Equal(t, []int{200, 200, 429}, codes)
	require.Equal(t, 1, rejected)
}
