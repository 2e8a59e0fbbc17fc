package notification_handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/stripe/stripe-go/v83"

	"github.com/fatflowers/billsync/internal/app/service/subscription"
	"github.com/fatflowers/billsync/internal/models"
	"github.com/fatflowers/billsync/pkg/logctx"
	"github.com/fatflowers/billsync/pkg/types"
)

// metadataUserID is the checkout and subscription metadata key holding our user id.
const metadataUserID = "user_id"

func (h *NotificationHandler) handleSnapshot(ctx context.Context, e *SnapshotEvent) *Outcome {
	switch e.Stripe.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		return h.handleCheckoutCompleted(ctx, e)
	case stripe.EventTypeCustomerSubscriptionCreated, stripe.EventTypeCustomerSubscriptionUpdated:
		return h.handleSubscriptionUpdated(ctx, e)
	case stripe.EventTypeCustomerSubscriptionDeleted:
		return h.handleSubscriptionDeleted(ctx, e)
	case stripe.EventTypePaymentIntentSucceeded, stripe.EventTypePaymentIntentPaymentFailed, stripe.EventTypePaymentIntentProcessing:
		return h.handlePaymentIntent(ctx, e)
	case stripe.EventTypeInvoicePaymentSucceeded, stripe.EventTypeInvoicePaymentFailed:
		return h.handleInvoice(ctx, e)
	}
	return ignored()
}

func (h *NotificationHandler) handleCheckoutCompleted(ctx context.Context, e *SnapshotEvent) *Outcome {
	var sess stripe.CheckoutSession
	if err := e.decodeObject(&sess); err != nil {
		return failed(fmt.Errorf("decode checkout session: %w", err))
	}
	userID := sess.Metadata[metadataUserID]
	if userID == "" {
		return skipped("checkout session has no user_id metadata")
	}
	if sess.Subscription == nil || sess.Subscription.ID == "" {
		return skipped("checkout session has no subscription")
	}

	// The session lacks period boundaries; fetch the subscription itself.
	sub, err := h.fetcher.GetSubscription(ctx, sess.Subscription.ID)
	if err != nil {
		return failed(fmt.Errorf("fetch subscription: %w", err))
	}
	rec := subscriptionRecord(userID, sub, e.Stripe.Created)
	if rec.ProviderCustomerID == "" && sess.Customer != nil {
		rec.ProviderCustomerID = sess.Customer.ID
	}
	return h.upsert(ctx, rec, types.SubscriptionChangeReasonCheckoutCompleted)
}

func (h *NotificationHandler) handleSubscriptionUpdated(ctx context.Context, e *SnapshotEvent) *Outcome {
	var sub stripe.Subscription
	if err := e.decodeObject(&sub); err != nil {
		return failed(fmt.Errorf("decode subscription: %w", err))
	}
	if sub.ID == "" {
		return failed(errors.New("subscription object has no id"))
	}

	if userID := sub.Metadata[metadataUserID]; userID != "" {
		return h.upsert(ctx, subscriptionRecord(userID, &sub, e.Stripe.Created), types.SubscriptionChangeReasonProviderUpdated)
	}

	// No user id on the event: the local row (created by checkout) is the only link.
	rec := subscriptionRecord("", &sub, e.Stripe.Created)
	patch := &subscription.SubscriptionPatch{
		ProviderCustomerID: lo.EmptyableToPtr(rec.ProviderCustomerID),
		PriceID:            lo.EmptyableToPtr(rec.PriceID),
		Status:             lo.ToPtr(rec.Status),
		CurrentPeriodStart: rec.CurrentPeriodStart,
		CurrentPeriodEnd:   rec.CurrentPeriodEnd,
		CancelAtPeriodEnd:  lo.ToPtr(rec.CancelAtPeriodEnd),
		EventCreated:       e.Stripe.Created,
	}
	stored, err := h.subs.UpdateByProviderSubscriptionID(ctx, sub.ID, patch, types.SubscriptionChangeReasonProviderUpdated)
	return h.writeOutcome(stored, err, "no local subscription for "+sub.ID)
}

func (h *NotificationHandler) handleSubscriptionDeleted(ctx context.Context, e *SnapshotEvent) *Outcome {
	var sub stripe.Subscription
	if err := e.decodeObject(&sub); err != nil {
		return failed(fmt.Errorf("decode subscription: %w", err))
	}
	if sub.ID == "" {
		return failed(errors.New("subscription object has no id"))
	}
	stored, err := h.subs.CancelByProviderSubscriptionID(ctx, sub.ID, e.Stripe.Created)
	return h.writeOutcome(stored, err, "no local subscription for "+sub.ID)
}

func (h *NotificationHandler) handlePaymentIntent(ctx context.Context, e *SnapshotEvent) *Outcome {
	var pi stripe.PaymentIntent
	if err := e.decodeObject(&pi); err != nil {
		return failed(fmt.Errorf("decode payment intent: %w", err))
	}
	fields := []any{
		"payment_intent_id", pi.ID,
		"status", pi.Status,
		"amount", pi.Amount,
		"currency", pi.Currency,
	}
	if pi.LastPaymentError != nil {
		fields = append(fields, "failure_code", pi.LastPaymentError.Code, "failure_message", pi.LastPaymentError.Msg)
	}
	logctx.FromCtx(ctx, h.log).Infow("payment_intent_event", fields...)
	return acknowledged(pi.Metadata[metadataUserID], "payment intent logged")
}

// invoiceRefs holds the invoice fields read for logging. The subscription id
// moved under parent.subscription_details in newer API versions.
type invoiceRefs struct {
	ID           string          `json:"id"`
	AmountPaid   int64           `json:"amount_paid"`
	AmountDue    int64           `json:"amount_due"`
	Currency     string          `json:"currency"`
	Subscription json.RawMessage `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription json.RawMessage `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (r *invoiceRefs) subscriptionID() string {
	if id := expandableID(r.Subscription); id != "" {
		return id
	}
	if r.Parent != nil && r.Parent.SubscriptionDetails != nil {
		return expandableID(r.Parent.SubscriptionDetails.Subscription)
	}
	return ""
}

// expandableID reads an id that is either a bare string or an expanded object.
func expandableID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID
	}
	return ""
}

func (h *NotificationHandler) handleInvoice(ctx context.Context, e *SnapshotEvent) *Outcome {
	var inv invoiceRefs
	if err := e.decodeObject(&inv); err != nil {
		return failed(fmt.Errorf("decode invoice: %w", err))
	}
	subID := inv.subscriptionID()
	var userID string
	if subID != "" {
		if sub, err := h.subs.GetByProviderSubscriptionID(ctx, subID); err == nil {
			userID = sub.UserID
		}
	}
	logctx.FromCtx(ctx, h.log).Infow("invoice_event",
		"invoice_id", inv.ID,
		"provider_subscription_id", subID,
		"user_id", userID,
		"amount_paid", inv.AmountPaid,
		"amount_due", inv.AmountDue,
		"currency", inv.Currency,
	)
	return acknowledged(userID, "invoice logged")
}

func (h *NotificationHandler) upsert(ctx context.Context, rec *models.Subscription, reason types.SubscriptionChangeReason) *Outcome {
	stored, err := h.subs.UpsertSubscription(ctx, rec, reason)
	return h.writeOutcome(stored, err, "")
}

// writeOutcome maps a reconciler result. A nil row without error means the
// row to update does not exist yet.
func (h *NotificationHandler) writeOutcome(stored *models.Subscription, err error, missingReason string) *Outcome {
	switch {
	case errors.Is(err, subscription.ErrStaleEvent):
		return skipped("stale event: newer state already stored")
	case err != nil:
		return failed(err)
	case stored == nil:
		return skipped(missingReason)
	}
	return applied(stored.UserID)
}

// subscriptionRecord maps a provider subscription onto a local row.
func subscriptionRecord(userID string, sub *stripe.Subscription, eventCreated int64) *models.Subscription {
	rec := &models.Subscription{
		UserID:            userID,
		Status:            types.SubscriptionStatus(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		LastEventCreated:  eventCreated,
	}
	if sub.ID != "" {
		rec.ProviderSubscriptionID = lo.ToPtr(sub.ID)
	}
	if sub.Customer != nil {
		rec.ProviderCustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			rec.PriceID = item.Price.ID
		}
		rec.CurrentPeriodStart = unixPtr(item.CurrentPeriodStart)
		rec.CurrentPeriodEnd = unixPtr(item.CurrentPeriodEnd)
	}
	return rec
}

func unixPtr(sec int64) *time.Time {
	if sec == 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
