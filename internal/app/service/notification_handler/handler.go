package notification_handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/fatflowers/billsync/internal/app/service/event_dedupe"
	notificationlog "github.com/fatflowers/billsync/internal/app/service/notification_log"
	"github.com/fatflowers/billsync/internal/app/service/subscription"
	"github.com/fatflowers/billsync/internal/models"
	"github.com/fatflowers/billsync/internal/platform/stripe/stripe_api"
	"github.com/fatflowers/billsync/internal/platform/stripe/stripe_signature"
	"github.com/fatflowers/billsync/pkg/config"
	"github.com/fatflowers/billsync/pkg/logctx"
	"github.com/fatflowers/billsync/pkg/metrics"
	"github.com/fatflowers/billsync/pkg/types"
)

var (
	ErrMissingSignature = stripe_signature.ErrMissingSignature
	ErrInvalidSignature = stripe_signature.ErrInvalidSignature
	ErrInvalidPayload   = errors.New("invalid payload")
)

// WebhookRequest is one raw delivery as received over HTTP.
type WebhookRequest struct {
	Body        []byte
	Signature   string
	ContentType string
}

type Params struct {
	fx.In

	Cfg           *config.Config
	Verifier      *stripe_signature.Verifier
	Fetcher       stripe_api.SubscriptionFetcher
	Subscriptions *subscription.Service
	Log           *zap.SugaredLogger

	EventLog *notificationlog.Service `optional:"true"`
	Dedupe   *event_dedupe.Service    `optional:"true"`
	Recorder metrics.WebhookRecorder  `optional:"true"`
}

// NotificationHandler verifies, classifies and reconciles provider webhooks.
type NotificationHandler struct {
	cfg      *config.Config
	verifier *stripe_signature.Verifier
	fetcher  stripe_api.SubscriptionFetcher
	subs     *subscription.Service
	eventLog *notificationlog.Service
	dedupe   *event_dedupe.Service
	recorder metrics.WebhookRecorder
	log      *zap.SugaredLogger
}

func NewNotificationHandler(p Params) *NotificationHandler {
	h := &NotificationHandler{
		cfg:      p.Cfg,
		verifier: p.Verifier,
		fetcher:  p.Fetcher,
		subs:     p.Subscriptions,
		eventLog: p.EventLog,
		dedupe:   p.Dedupe,
		recorder: p.Recorder,
		log:      p.Log,
	}
	if h.recorder == nil {
		h.recorder = metrics.NoopWebhookRecorder{}
	}
	return h
}

// HandleWebhook verifies req and processes the event it carries. The returned
// error is non-nil only when the delivery must be rejected: missing or invalid
// signature, or an undecodable verified payload. Handler failures are reported
// through the Outcome.
func (h *NotificationHandler) HandleWebhook(ctx context.Context, req *WebhookRequest) (*Outcome, error) {
	ev, err := h.Verify(req)
	if err != nil {
		reason := "invalid_signature"
		switch {
		case errors.Is(err, ErrMissingSignature):
			reason = "missing_signature"
		case errors.Is(err, ErrInvalidPayload):
			reason = "invalid_payload"
		}
		h.recorder.RecordRejected(reason)
		logctx.FromCtx(ctx, h.log).Warnw("webhook_rejected", "reason", reason, "err", err)
		return nil, err
	}
	return h.Dispatch(ctx, ev, req.Body), nil
}

// Verify detects the payload shape, picks that shape's secret and checks the
// signature, returning the decoded event.
func (h *NotificationHandler) Verify(req *WebhookRequest) (Event, error) {
	if req == nil || req.Signature == "" {
		return nil, ErrMissingSignature
	}
	shape := DetectPayloadShape(req.ContentType, req.Body)
	secret := h.cfg.Stripe.SecretForShape(shape)

	if shape == types.PayloadShapeThin {
		if err := h.verifier.VerifyThin(req.Body, req.Signature, secret); err != nil {
			return nil, err
		}
		ev, err := ParseThinEvent(req.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return ev, nil
	}

	se, err := h.verifier.VerifySnapshot(req.Body, req.Signature, secret)
	if err != nil {
		return nil, err
	}
	return &SnapshotEvent{Stripe: se}, nil
}

// Dispatch runs the handler for ev exactly once per event id (when dedupe is
// enabled) and records the outcome. It never panics.
func (h *NotificationHandler) Dispatch(ctx context.Context, ev Event, payload []byte) *Outcome {
	start := time.Now()
	ctx = subscription.WithEventID(ctx, ev.EventID())
	lg := logctx.FromCtx(ctx, h.log).With(
		"event_id", ev.EventID(),
		"event_type", ev.EventType(),
		"shape", ev.Shape(),
	)
	ctx = logctx.WithLogger(ctx, lg)

	var out *Outcome
	token, claimed := h.dedupe.Claim(ctx, ev.EventID())
	if !claimed {
		out = duplicate()
	} else {
		out = h.run(ctx, ev)
		if out.Kind == models.WebhookEventOutcomeFailed {
			h.dedupe.Release(ctx, ev.EventID(), token)
		}
	}

	fields := []any{"outcome", out.Kind, "reason", out.Reason, "user_id", out.UserID, "elapsed_ms", time.Since(start).Milliseconds()}
	switch out.Kind {
	case models.WebhookEventOutcomeFailed:
		lg.Errorw("webhook_event_failed", append(fields, "err", out.Err)...)
	case models.WebhookEventOutcomeSkipped:
		lg.Warnw("webhook_event_skipped", fields...)
	default:
		lg.Infow("webhook_event_handled", fields...)
	}

	h.recorder.RecordEvent(string(ev.Shape()), ev.EventType(), string(out.Kind))
	h.recorder.RecordDuration(string(ev.Shape()), time.Since(start))
	h.saveEventLog(ctx, ev, payload, out)
	return out
}

// run contains handler errors and panics in a failed Outcome.
func (h *NotificationHandler) run(ctx context.Context, ev Event) (out *Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = failed(fmt.Errorf("handler panic: %v", r))
		}
	}()
	switch e := ev.(type) {
	case *SnapshotEvent:
		out = h.handleSnapshot(ctx, e)
	case *ThinEvent:
		out = h.handleThin(ctx, e)
	}
	if out == nil {
		out = ignored()
	}
	return out
}

func (h *NotificationHandler) saveEventLog(ctx context.Context, ev Event, payload []byte, out *Outcome) {
	if h.eventLog == nil {
		return
	}
	entry := &models.WebhookEventLog{
		Provider:     types.PaymentProviderStripe,
		EventID:      ev.EventID(),
		EventType:    ev.EventType(),
		PayloadShape: ev.Shape(),
		TraceID:      logctx.TraceID(ctx),
		Outcome:      out.Kind,
		Reason:       out.Reason,
		EventCreated: ev.CreatedAt(),
	}
	if out.UserID != "" {
		entry.UserID = lo.ToPtr(out.UserID)
	}
	if len(payload) > 0 {
		entry.Payload = datatypes.JSON(payload)
	}
	h.eventLog.Save(ctx, entry)
}
