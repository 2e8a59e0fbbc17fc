package notification_handler

import (
	"github.com/fatflowers/billsync/internal/models"
)

// Outcome is the result of handling one event. Only signature problems are
// reported to the provider; every Outcome is acknowledged with 200.
type Outcome struct {
	Kind   models.WebhookEventOutcome
	Reason string
	// UserID is the local user the event resolved to, if any.
	UserID string
	Err    error
}

func applied(userID string) *Outcome {
	return &Outcome{Kind: models.WebhookEventOutcomeApplied, UserID: userID}
}

func acknowledged(userID, reason string) *Outcome {
	return &Outcome{Kind: models.WebhookEventOutcomeAcknowledged, UserID: userID, Reason: reason}
}

func skipped(reason string) *Outcome {
	return &Outcome{Kind: models.WebhookEventOutcomeSkipped, Reason: reason}
}

func ignored() *Outcome {
	return &Outcome{Kind: models.WebhookEventOutcomeIgnored, Reason: "unhandled event type"}
}

func duplicate() *Outcome {
	return &Outcome{Kind: models.WebhookEventOutcomeDuplicate, Reason: "event already claimed"}
}

func failed(err error) *Outcome {
	return &Outcome{Kind: models.WebhookEventOutcomeFailed, Reason: err.Error(), Err: err}
}
