package plan

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/roasbeef/learnhub/internal/apperr"
	"github.com/roasbeef/learnhub/internal/store"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testClock is a settable time source.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// recordingNotifier captures secondary deliveries.
type recordingNotifier struct {
	mu       sync.Mutex
	payloads [][]byte
	ctxErrs  []error
	err      error
}

func (r *recordingNotifier) Notify(ctx context.Context, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.payloads = append(r.payloads, payload)
	r.ctxErrs = append(r.ctxErrs, ctx.Err())

	return r.err
}

func newTestExchange(t *testing.T, cfg Config,
	opts ...Option) (*Exchange, *testClock) {

	t.Helper()

	clock := newTestClock()
	opts = append([]Option{WithClock(clock.Now)}, opts...)

	return NewExchange(cfg, store.NewMemoryStore(), testLogger(),
		opts...), clock
}

func callback(t *testing.T, e *Exchange, payload any) (*CallbackResult,
	error) {

	t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	return e.HandleCallback(context.Background(), raw)
}

func TestCompositeDataIDIsStripped(t *testing.T) {
	e, _ := newTestExchange(t, DefaultConfig())
	ctx := context.Background()

	res, err := callback(t, e, map[string]any{
		"dataId": "alice@example.com_1700000000000",
		"learningData": map[string]any{
			"learning_path": []any{map[string]any{"title": "Go"}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", res.DataID)
	require.Equal(t, 1, res.ModulesCount)

	// Both the bare email and the composite id reach the record.
	for _, id := range []string{
		"alice@example.com", "alice@example.com_1700000000000",
	} {
		rec, err := e.Poll(ctx, id)
		require.NoError(t, err)
		require.Equal(t, "alice@example.com", rec.Email)
		require.Equal(t, "alice@example.com_1700000000000",
			rec.RequestID)
	}
}

func TestCallbackOverwrites(t *testing.T) {
	e, _ := newTestExchange(t, DefaultConfig())

	for _, title := range []string{"First", "Second"} {
		_, err := callback(t, e, map[string]any{
			"learningData": map[string]any{
				"email": "bob@example.com",
				"learning_path": []any{
					map[string]any{"title": title},
				},
			},
		})
		require.NoError(t, err)
	}

	rec, err := e.Poll(context.Background(), "bob@example.com")
	require.NoError(t, err)
	require.Len(t, rec.LearningPath, 1)
	require.Equal(t, "Second", rec.LearningPath[0].Title)
}

func TestSubmitWebhookPollScenario(t *testing.T) {
	var engineGot map[string]any
	engine := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t,
				json.NewDecoder(r.Body).Decode(&engineGot))

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"queued":true}`))
		},
	))
	defer engine.Close()

	cfg := DefaultConfig()
	cfg.WorkflowURL = engine.URL
	e, clock := newTestExchange(t, cfg)
	ctx := context.Background()

	sub, err := e.Submit(ctx, map[string]any{
		"email":         "jane@x.com",
		"learningGoals": "learn design",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, sub.StatusCode)
	require.Equal(t, "application/json", sub.ContentType)
	require.JSONEq(t, `{"queued":true}`, string(sub.Body))

	wantID := "jane@x.com_" + jsonNumber(clock.Now().UnixMilli())
	require.Equal(t, wantID, sub.RequestID)
	require.Equal(t, wantID, engineGot["requestId"])
	require.Equal(t, "learn design", engineGot["learningGoals"])

	// Nothing has arrived yet.
	_, err = e.Poll(ctx, "jane@x.com_123")
	require.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = callback(t, e, map[string]any{
		"dataId": "jane@x.com_123",
		"learningData": map[string]any{
			"learning_path": []any{
				map[string]any{"title": "M1", "resources": []any{}},
			},
		},
	})
	require.NoError(t, err)

	rec, err := e.Poll(ctx, "jane@x.com_123")
	require.NoError(t, err)

	encoded, err := json.Marshal(rec)
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(encoded, &generic))
	path := generic["learning_path"].([]any)
	require.Equal(t, "M1", path[0].(map[string]any)["module_title"])
	require.Equal(t, "jane@x.com", generic["email"])
}

func jsonNumber(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestPollAfterExpiry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PlanTTL = time.Hour
	e, clock := newTestExchange(t, cfg)
	ctx := context.Background()

	_, err := callback(t, e, map[string]any{
		"learningData": map[string]any{
			"email":         "carol@example.com",
			"learning_path": []any{map[string]any{"title": "A"}},
		},
	})
	require.NoError(t, err)

	_, err = e.Poll(ctx, "carol@example.com")
	require.NoError(t, err)

	clock.Advance(time.Hour)

	_, err = e.Poll(ctx, "carol@example.com")
	require.True(t, apperr.Is(err, apperr.KindNotFound))
	require.Equal(t, 404, apperr.HTTPStatus(apperr.KindOf(err)))

	// A later callback for the same key stores it again.
	_, err = callback(t, e, map[string]any{
		"learningData": map[string]any{
			"email":         "carol@example.com",
			"learning_path": []any{map[string]any{"title": "B"}},
		},
	})
	require.NoError(t, err)

	rec, err := e.Poll(ctx, "carol@example.com")
	require.NoError(t, err)
	require.Equal(t, "B", rec.LearningPath[0].Title)
}

func TestEnvelopeShapes(t *testing.T) {
	inner := map[string]any{
		"requestId": "dave@example.com_42",
		"learningData": map[string]any{
			"learning_path": []any{map[string]any{"name": "M"}},
		},
	}
	innerJSON, err := json.Marshal(inner)
	require.NoError(t, err)

	tests := []struct {
		name    string
		payload any
		wantErr string
	}{
		{name: "plain object", payload: inner},
		{name: "single element array", payload: []any{inner}},
		{name: "body wrapper", payload: map[string]any{"body": inner}},
		{
			name:    "array with body wrapper",
			payload: []any{map[string]any{"body": inner}},
		},
		{
			name:    "body as array",
			payload: map[string]any{"body": []any{inner}},
		},
		{
			name:    "body as json string",
			payload: map[string]any{"body": string(innerJSON)},
		},
		{
			name:    "two element array",
			payload: []any{inner, inner},
			wantErr: "exactly one plan",
		},
		{
			name:    "missing learningData",
			payload: map[string]any{"dataId": "x@example.com"},
			wantErr: "learningData is required",
		},
		{
			name:    "scalar",
			payload: 42,
			wantErr: "must be a JSON object",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e, _ := newTestExchange(t, DefaultConfig())

			res, err := callback(t, e, tc.payload)
			if tc.wantErr != "" {
				require.True(t,
					apperr.Is(err, apperr.KindValidation))
				require.ErrorContains(t, err, tc.wantErr)
				return
			}

			require.NoError(t, err)
			require.Equal(t, "dave@example.com", res.DataID)
		})
	}
}

func TestCallbackRejections(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		wantErr string
	}{
		{
			name: "no modules",
			payload: map[string]any{
				"learningData": map[string]any{
					"email":         "e@example.com",
					"learning_path": []any{},
				},
			},
			wantErr: "no modules",
		},
		{
			name: "no email anywhere",
			payload: map[string]any{
				"dataId": "order-77",
				"learningData": map[string]any{
					"learning_path": []any{
						map[string]any{"title": "x"},
					},
				},
			},
			wantErr: "no valid email",
		},
		{
			name: "no identifier at all",
			payload: map[string]any{
				"learningData": map[string]any{
					"learning_path": []any{
						map[string]any{"title": "x"},
					},
				},
			},
			wantErr: "no valid email",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e, _ := newTestExchange(t, DefaultConfig())

			_, err := callback(t, e, tc.payload)
			require.True(t, apperr.Is(err, apperr.KindValidation))
			require.ErrorContains(t, err, tc.wantErr)
			require.EqualValues(t, 1, e.Stats().RejectedCallbacks)
		})
	}
}

// TestCallbackWithoutUsableKeyGetsSyntheticKey checks that a plan whose
// email is valid but unusable as a key is stored under a minted key that
// only the returned dataId reaches.
func TestCallbackWithoutUsableKeyGetsSyntheticKey(t *testing.T) {
	e, _ := newTestExchange(t, DefaultConfig())
	ctx := context.Background()

	const email = "a#b@x.com"
	require.True(t, PlausibleEmail(email))

	res, err := callback(t, e, map[string]any{
		"learningData": map[string]any{
			"email": email,
			"learning_path": []any{
				map[string]any{"title": "Go"},
			},
		},
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(res.DataID, SyntheticKeyPrefix))
	require.Equal(t, 1, res.ModulesCount)

	rec, err := e.Poll(ctx, res.DataID)
	require.NoError(t, err)
	require.Equal(t, email, rec.Email)

	_, err = e.Poll(ctx, email)
	require.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestKeyResolutionOrder(t *testing.T) {
	full := func() (map[string]any, map[string]any) {
		data := map[string]any{
			"requestId": "ld-request@example.com_1",
			"email":     "ld-email@example.com",
			"profile": map[string]any{
				"email": "ld-profile@example.com",
			},
		}
		payload := map[string]any{
			"dataId":       "data-id@example.com_2",
			"requestId":    "top-request@example.com_3",
			"email":        "payload@example.com",
			"learningData": data,
			"profile": map[string]any{
				"email": "profile@example.com",
			},
			"userProfile": map[string]any{
				"email": "user-profile@example.com",
			},
		}

		return payload, data
	}

	// Each step removes the winning source so the next one wins.
	steps := []struct {
		want   string
		remove func(p, d map[string]any)
	}{
		{"ld-request@example.com", func(p, d map[string]any) {}},
		{"data-id@example.com", func(p, d map[string]any) {
			delete(d, "requestId")
		}},
		{"top-request@example.com", func(p, d map[string]any) {
			delete(p, "dataId")
		}},
		{"ld-email@example.com", func(p, d map[string]any) {
			delete(p, "requestId")
		}},
		{"ld-profile@example.com", func(p, d map[string]any) {
			delete(d, "email")
			delete(p, "email")
		}},
		{"profile@example.com", func(p, d map[string]any) {
			delete(d, "profile")
		}},
		{"user-profile@example.com", func(p, d map[string]any) {
			delete(p, "profile")
		}},
	}

	payload, data := full()
	for _, step := range steps {
		step.remove(payload, data)

		rec := transform(data)
		got := resolveKey(payload, data, rec)
		require.Equal(t, step.want, got.key)
	}

	delete(payload, "userProfile")
	got := resolveKey(payload, data, transform(data))
	require.Equal(t, "synthetic", got.source)
	require.Regexp(t, `^plan_[0-9a-f-]{36}$`, got.key)
}

func TestRawEmailPrecedesNestedEmail(t *testing.T) {
	payload := map[string]any{"email": "raw@example.com"}
	data := map[string]any{}

	got := resolveKey(payload, data, transform(data))
	require.Equal(t, "raw@example.com", got.key)
	require.Equal(t, "email", got.source)
}

func TestTransformFallbacks(t *testing.T) {
	rec := transform(map[string]any{
		"learningPath": []any{
			map[string]any{
				"module_title": "Basics",
				"resources": []any{
					map[string]any{"type": "VIDEO", "url": "u"},
					map[string]any{"type": "workshop"},
					"not a resource",
				},
			},
			"not a module",
			map[string]any{"number": "7"},
		},
		"action_plan": "Start today",
		"pro_tips":    []any{"tip", "", 3.0, nil},
	})

	require.Equal(t, FallbackProfileSummary, rec.ProfileSummary)
	require.Len(t, rec.LearningPath, 2)

	m := rec.LearningPath[0]
	require.Equal(t, 1, m.Number)
	require.Equal(t, "Basics", m.Title)
	require.Equal(t, FallbackDuration, m.Duration)
	require.Equal(t, FallbackObjective, m.Objective)
	require.Equal(t, []Resource{
		{
			Type: ResourceYouTube, Name: FallbackResourceName,
			Link: "u", DurationEstimate: FallbackEstimate,
			Rationale: FallbackRationale,
		},
		{
			Type: ResourceArticle, Name: FallbackResourceName,
			Link: FallbackLink, DurationEstimate: FallbackEstimate,
			Rationale: FallbackRationale,
		},
	}, m.Resources)

	require.Equal(t, 7, rec.LearningPath[1].Number)
	require.Equal(t, FallbackModuleTitle, rec.LearningPath[1].Title)
	require.NotNil(t, rec.LearningPath[1].Resources)

	require.Equal(t, []ActionStep{
		{Step: 1, Action: "Start today", Timeline: FallbackTimeline},
	}, rec.ActionPlan)
	require.Equal(t, []string{"tip", "3"}, rec.ProTips)
}

func TestTransformActionShapes(t *testing.T) {
	require.Equal(t, []ActionStep{
		{Step: 1, Action: "a", Timeline: FallbackTimeline},
		{Step: 2, Action: "b", Timeline: FallbackTimeline},
	}, transformActions([]any{"a", " ", "b"}))

	require.Equal(t, []ActionStep{
		{Step: 4, Action: "do", Timeline: "week 1"},
		{Step: 2, Action: FallbackAction, Timeline: FallbackTimeline},
	}, transformActions([]any{
		map[string]any{"step": 4.0, "task": "do", "when": "week 1"},
		map[string]any{},
	}))

	require.Empty(t, transformActions(12.0))
}

func TestNormalizeResourceType(t *testing.T) {
	tests := map[string]ResourceType{
		"YouTube":   ResourceYouTube,
		" youtube ": ResourceYouTube,
		"COURSE":    ResourceCourse,
		"Practice":  ResourcePractice,
		"article":   ResourceArticle,
		"podcast":   ResourceArticle,
		"":          ResourceArticle,
	}
	for in, want := range tests {
		require.Equal(t, want, NormalizeResourceType(in), in)
	}
}

func TestSubmitValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WorkflowURL = "http://127.0.0.1:1"

	tests := []struct {
		name    string
		profile map[string]any
		kind    apperr.Kind
	}{
		{
			name:    "missing email",
			profile: map[string]any{"learningGoals": "go"},
			kind:    apperr.KindValidation,
		},
		{
			name: "bad email",
			profile: map[string]any{
				"email": "nope", "learningGoals": "go",
			},
			kind: apperr.KindValidation,
		},
		{
			name: "blank goals",
			profile: map[string]any{
				"email": "a@b.co", "learningGoals": "  ",
			},
			kind: apperr.KindValidation,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e, _ := newTestExchange(t, cfg)

			_, err := e.Submit(context.Background(), tc.profile)
			require.Equal(t, tc.kind, apperr.KindOf(err))
		})
	}

	e, _ := newTestExchange(t, DefaultConfig())
	_, err := e.Submit(context.Background(), map[string]any{
		"email": "a@b.co", "learningGoals": []any{"go"},
	})
	require.True(t, apperr.Is(err, apperr.KindConfiguration))
}

func TestSubmitEngineUnreachable(t *testing.T) {
	engine := httptest.NewServer(http.NotFoundHandler())
	engine.Close()

	cfg := DefaultConfig()
	cfg.WorkflowURL = engine.URL
	e, _ := newTestExchange(t, cfg)

	_, err := e.Submit(context.Background(), map[string]any{
		"email": "a@b.co", "learningGoals": "go",
	})
	require.True(t, apperr.Is(err, apperr.KindUnreachable))
}

func TestSecondaryNotifierIsDetached(t *testing.T) {
	engine := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
	))
	defer engine.Close()

	cfg := DefaultConfig()
	cfg.WorkflowURL = engine.URL

	notifier := &recordingNotifier{err: errors.New("secondary down")}
	e, _ := newTestExchange(t, cfg, WithNotifier(notifier))

	// The caller's context is already cancelled by the time the
	// notification runs; it must still go out with a live context.
	ctx, cancel := context.WithCancel(context.Background())
	res, err := e.Submit(ctx, map[string]any{
		"email": "a@b.co", "learningGoals": "go",
	})
	cancel()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)

	e.WaitNotifications()

	notifier.mu.Lock()
	defer notifier.mu.Unlock()

	require.Len(t, notifier.payloads, 1)
	require.NoError(t, notifier.ctxErrs[0])

	var sent map[string]any
	require.NoError(t, json.Unmarshal(notifier.payloads[0], &sent))
	require.Equal(t, res.RequestID, sent["requestId"])
	require.EqualValues(t, 1, e.Stats().NotifyFailures)
}

func TestWebhookNotifier(t *testing.T) {
	var got []byte
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			got, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusNoContent)
		},
	))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second)
	require.NoError(t, n.Notify(context.Background(), []byte(`{"a":1}`)))
	require.JSONEq(t, `{"a":1}`, string(got))

	failing := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
	))
	defer failing.Close()

	n = NewWebhookNotifier(failing.URL, time.Second)
	require.ErrorContains(t,
		n.Notify(context.Background(), []byte(`{}`)), "502")
}

func TestDeleteIsIdempotent(t *testing.T) {
	e, _ := newTestExchange(t, DefaultConfig())
	ctx := context.Background()

	_, err := callback(t, e, map[string]any{
		"learningData": map[string]any{
			"email":         "f@example.com",
			"learning_path": []any{map[string]any{"title": "x"}},
		},
	})
	require.NoError(t, err)

	require.NoError(t, e.Delete(ctx, "f@example.com_99"))
	require.NoError(t, e.Delete(ctx, "f@example.com"))

	_, err = e.Poll(ctx, "f@example.com")
	require.True(t, apperr.Is(err, apperr.KindNotFound))

	require.True(t, apperr.Is(e.Delete(ctx, " "), apperr.KindValidation))
	_, err = e.Poll(ctx, "")
	require.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestSweep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PlanTTL = time.Minute
	e, clock := newTestExchange(t, cfg)

	_, err := callback(t, e, map[string]any{
		"learningData": map[string]any{
			"email":         "g@example.com",
			"learning_path": []any{map[string]any{"title": "x"}},
		},
	})
	require.NoError(t, err)

	n, err := e.Sweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)

	clock.Advance(2 * time.Minute)

	n, err = e.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
