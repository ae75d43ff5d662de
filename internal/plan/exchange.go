package plan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roasbeef/learnhub/internal/apperr"
	"github.com/roasbeef/learnhub/internal/store"
)

const (
	// DefaultPlanTTL is how long a delivered plan can be polled.
	DefaultPlanTTL = 24 * time.Hour

	// DefaultWorkflowTimeout bounds the synchronous engine call.
	DefaultWorkflowTimeout = 30 * time.Second

	// DefaultNotifyTimeout bounds the secondary webhook call.
	DefaultNotifyTimeout = 10 * time.Second

	// maxEngineReply caps how much of the engine's reply is relayed.
	maxEngineReply = 4 << 20
)

// Config configures the exchange.
type Config struct {
	// WorkflowURL is the engine endpoint submissions are forwarded to.
	WorkflowURL string `mapstructure:"workflow_url"`

	// SecondaryURL optionally receives a fire-and-forget copy of every
	// submission.
	SecondaryURL string `mapstructure:"secondary_url"`

	// WorkflowTimeout bounds the engine call.
	WorkflowTimeout time.Duration `mapstructure:"workflow_timeout"`

	// NotifyTimeout bounds the secondary call.
	NotifyTimeout time.Duration `mapstructure:"notify_timeout"`

	// PlanTTL is how long stored plans live.
	PlanTTL time.Duration `mapstructure:"plan_ttl"`
}

// DefaultConfig returns a Config with default timeouts and no URLs.
func DefaultConfig() Config {
	return Config{
		WorkflowTimeout: DefaultWorkflowTimeout,
		NotifyTimeout:   DefaultNotifyTimeout,
		PlanTTL:         DefaultPlanTTL,
	}
}

// Stats is a snapshot of exchange counters.
type Stats struct {
	Submissions       int64 `json:"submissions"`
	Callbacks         int64 `json:"callbacks"`
	RejectedCallbacks int64 `json:"rejected_callbacks"`
	Polls             int64 `json:"polls"`
	PollHits          int64 `json:"poll_hits"`
	NotifyFailures    int64 `json:"notify_failures"`
}

// Exchange forwards plan requests to the workflow engine and stores the
// plans the engine calls back with until a client polls for them. It keeps
// no pending state; a plan is either stored or absent.
type Exchange struct {
	cfg      Config
	store    store.PlanStore
	client   *http.Client
	notifier Notifier
	now      func() time.Time
	log      *slog.Logger

	// notifications tracks detached secondary deliveries.
	notifications sync.WaitGroup

	submissions       atomic.Int64
	callbacks         atomic.Int64
	rejectedCallbacks atomic.Int64
	polls             atomic.Int64
	pollHits          atomic.Int64
	notifyFailures    atomic.Int64
}

// Option customizes an Exchange.
type Option func(*Exchange)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Exchange) {
		e.now = now
	}
}

// WithHTTPClient overrides the client used for the engine call.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Exchange) {
		e.client = c
	}
}

// WithNotifier overrides the secondary notifier.
func WithNotifier(n Notifier) Option {
	return func(e *Exchange) {
		e.notifier = n
	}
}

// NewExchange creates an exchange on top of planStore.
func NewExchange(cfg Config, planStore store.PlanStore, log *slog.Logger,
	opts ...Option) *Exchange {

	if cfg.PlanTTL <= 0 {
		cfg.PlanTTL = DefaultPlanTTL
	}
	if cfg.WorkflowTimeout <= 0 {
		cfg.WorkflowTimeout = DefaultWorkflowTimeout
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = DefaultNotifyTimeout
	}

	e := &Exchange{
		cfg:    cfg,
		store:  planStore,
		client: &http.Client{Timeout: cfg.WorkflowTimeout},
		now:    time.Now,
		log:    log.With("component", "plan"),
	}
	if cfg.SecondaryURL != "" {
		e.notifier = NewWebhookNotifier(
			cfg.SecondaryURL, cfg.NotifyTimeout,
		)
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Submit validates a profile, stamps it with a request id and forwards it to
// the workflow engine. The engine's reply is returned as is. A configured
// secondary endpoint gets a detached copy.
func (e *Exchange) Submit(ctx context.Context,
	profile map[string]any) (*SubmitResult, error) {

	email := text(profile["email"])
	if !PlausibleEmail(email) {
		return nil, apperr.Validation("a valid email is required")
	}
	if !hasGoals(profile["learningGoals"]) {
		return nil, apperr.Validation("learningGoals is required")
	}
	if e.cfg.WorkflowURL == "" {
		return nil, apperr.Configuration("learning plan workflow URL " +
			"is not configured")
	}

	requestID := fmt.Sprintf("%s_%d", email, e.now().UnixMilli())

	forward := make(map[string]any, len(profile)+1)
	for k, v := range profile {
		forward[k] = v
	}
	forward["requestId"] = requestID

	payload, err := json.Marshal(forward)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal,
			"failed to encode submission", err)
	}

	e.submissions.Add(1)
	e.notify(ctx, requestID, payload)

	res, err := e.forward(ctx, payload)
	if err != nil {
		return nil, err
	}
	res.RequestID = requestID

	e.log.InfoContext(ctx, "Plan request forwarded",
		"request_id", requestID, "engine_status", res.StatusCode)

	return res, nil
}

// hasGoals accepts a non-blank string or a non-empty list.
func hasGoals(v any) bool {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t) != ""

	case []any:
		return len(stringItems(t)) > 0

	default:
		return false
	}
}

// forward posts payload to the engine.
func (e *Exchange) forward(ctx context.Context,
	payload []byte) (*SubmitResult, error) {

	ctx, cancel := context.WithTimeout(ctx, e.cfg.WorkflowTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, e.cfg.WorkflowURL, bytes.NewReader(payload),
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfiguration,
			"invalid workflow URL", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnreachable,
			"workflow engine unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEngineReply))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnreachable,
			"failed to read workflow engine reply", err)
	}

	return &SubmitResult{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// notify hands payload to the notifier on a detached goroutine. The
// caller's cancellation does not reach it; its own timeout does.
func (e *Exchange) notify(ctx context.Context, requestID string,
	payload []byte) {

	if e.notifier == nil {
		return
	}

	detached := context.WithoutCancel(ctx)

	e.notifications.Add(1)
	go func() {
		defer e.notifications.Done()

		ctx, cancel := context.WithTimeout(detached, e.cfg.NotifyTimeout)
		defer cancel()

		if err := e.notifier.Notify(ctx, payload); err != nil {
			e.notifyFailures.Add(1)
			e.log.WarnContext(ctx, "Secondary webhook failed",
				"request_id", requestID, "err", err)

			return
		}

		e.log.DebugContext(ctx, "Secondary webhook delivered",
			"request_id", requestID)
	}()
}

// WaitNotifications blocks until detached notifications have finished.
func (e *Exchange) WaitNotifications() {
	e.notifications.Wait()
}

// HandleCallback stores the plan carried by an engine callback, replacing
// any plan already stored under the same key.
func (e *Exchange) HandleCallback(ctx context.Context,
	raw []byte) (*CallbackResult, error) {

	e.callbacks.Add(1)

	res, err := e.handleCallback(ctx, raw)
	if err != nil {
		e.rejectedCallbacks.Add(1)
		e.log.WarnContext(ctx, "Plan callback rejected", "err", err)

		return nil, err
	}

	return res, nil
}

func (e *Exchange) handleCallback(ctx context.Context,
	raw []byte) (*CallbackResult, error) {

	payload, err := decodeEnvelope(raw)
	if err != nil {
		return nil, err
	}

	data, err := learningData(payload)
	if err != nil {
		return nil, err
	}

	rec := transform(data)
	key := resolveKey(payload, data, rec)

	if rec.Email == "" && PlausibleEmail(key.key) {
		rec.Email = key.key
	}
	if len(rec.LearningPath) == 0 {
		return nil, apperr.Validation("learning plan has no modules")
	}
	if !PlausibleEmail(rec.Email) {
		return nil, apperr.Validation("learning plan has no valid " +
			"email")
	}

	rec.RequestID = firstText(data, "", "requestId")
	if rec.RequestID == "" {
		rec.RequestID = firstText(payload, "", "dataId", "requestId")
	}

	now := e.now()
	rec.CreatedAt = now
	rec.ExpiresAt = now.Add(e.cfg.PlanTTL)

	encoded, err := json.Marshal(rec)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal,
			"failed to encode learning plan", err)
	}

	err = e.store.PutPlan(ctx, store.Plan{
		Key:       key.key,
		Email:     rec.Email,
		Record:    encoded,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal,
			"failed to store learning plan", err)
	}

	e.log.InfoContext(ctx, "Learning plan stored", "key", key.key,
		"key_source", key.source, "modules", len(rec.LearningPath),
		"expires_at", rec.ExpiresAt)

	return &CallbackResult{
		Success:      true,
		DataID:       key.key,
		ModulesCount: len(rec.LearningPath),
	}, nil
}

// Poll returns the plan stored under id, which may be a composite request
// id. A plan that has not arrived yet, or has expired, is KindNotFound.
func (e *Exchange) Poll(ctx context.Context, id string) (*Record, error) {
	key := NormalizeID(id)
	if key == "" {
		return nil, apperr.Validation("id is required")
	}

	e.polls.Add(1)

	found, err := e.store.GetPlan(ctx, key, e.now())
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal,
			"failed to load learning plan", err)
	}

	stored, err := found.UnwrapOrErr(
		apperr.NotFound("learning plan not ready"),
	)
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(stored.Record, &rec); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal,
			"stored learning plan is corrupt", err)
	}

	e.pollHits.Add(1)

	return &rec, nil
}

// Delete removes the plan under id. Deleting an absent plan succeeds.
func (e *Exchange) Delete(ctx context.Context, id string) error {
	key := NormalizeID(id)
	if key == "" {
		return apperr.Validation("id is required")
	}

	if err := e.store.DeletePlan(ctx, key); err != nil {
		return apperr.Wrap(apperr.KindInternal,
			"failed to delete learning plan", err)
	}

	e.log.DebugContext(ctx, "Learning plan deleted", "key", key)

	return nil
}

// Sweep drops expired plans from the store.
func (e *Exchange) Sweep(ctx context.Context) (int, error) {
	return e.store.SweepPlans(ctx, e.now())
}

// RunSweeper calls Sweep every interval until ctx is done.
func (e *Exchange) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := e.Sweep(ctx)
			if err != nil {
				e.log.WarnContext(ctx, "Plan sweep failed",
					"err", err)
				continue
			}
			if n > 0 {
				e.log.DebugContext(ctx, "Swept expired plans",
					"count", n)
			}

		case <-ctx.Done():
			return
		}
	}
}

// Stats returns a snapshot of the exchange counters.
func (e *Exchange) Stats() Stats {
	return Stats{
		Submissions:       e.submissions.Load(),
		Callbacks:         e.callbacks.Load(),
		RejectedCallbacks: e.rejectedCallbacks.Load(),
		Polls:             e.polls.Load(),
		PollHits:          e.pollHits.Load(),
		NotifyFailures:    e.notifyFailures.Load(),
	}
}
