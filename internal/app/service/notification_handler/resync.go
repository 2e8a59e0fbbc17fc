package notification_handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatflowers/billsync/internal/app/service/subscription"
	"github.com/fatflowers/billsync/internal/models"
	"github.com/fatflowers/billsync/pkg/types"
)

var ErrUserUnresolved = errors.New("cannot resolve user for subscription")

// Resync pulls the current state of providerID from the provider and stores
// it. The user comes from the subscription metadata, else the local row.
func (h *NotificationHandler) Resync(ctx context.Context, providerID string) (*models.Subscription, error) {
	if providerID == "" {
		return nil, errors.New("provider subscription id is required")
	}
	sub, err := h.fetcher.GetSubscription(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("fetch subscription: %w", err)
	}

	userID := sub.Metadata[metadataUserID]
	if userID == "" {
		local, err := h.subs.GetByProviderSubscriptionID(ctx, providerID)
		if errors.Is(err, subscription.ErrSubscriptionNotFound) {
			return nil, ErrUserUnresolved
		}
		if err != nil {
			return nil, err
		}
		userID = local.UserID
	}

	// Fetched state is current, so it outranks every event sent so far.
	rec := subscriptionRecord(userID, sub, time.Now().Unix())
	return h.subs.UpsertSubscription(ctx, rec, types.SubscriptionChangeReasonManualResync)
}
