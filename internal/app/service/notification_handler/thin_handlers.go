package notification_handler

import (
	"context"
	"strings"

	"github.com/fatflowers/billsync/pkg/logctx"
)

// thinTypePrefixes are the money-management lifecycle families that are
// acknowledged and logged. None of them changes subscription state.
var thinTypePrefixes = []string{
	"v2.money_management.financial_account.",
	"v2.money_management.outbound_payment.",
	"v2.money_management.received_credit.",
	"v2.money_management.received_debit.",
}

func (h *NotificationHandler) handleThin(ctx context.Context, e *ThinEvent) *Outcome {
	for _, prefix := range thinTypePrefixes {
		if !strings.HasPrefix(e.Type, prefix) {
			continue
		}
		fields := []any{"thin_type", e.Type, "context", e.Context, "livemode", e.Livemode}
		if e.RelatedObject != nil {
			fields = append(fields,
				"related_object_id", e.RelatedObject.ID,
				"related_object_type", e.RelatedObject.Type,
				"related_object_url", e.RelatedObject.URL,
			)
		}
		logctx.FromCtx(ctx, h.log).Infow("thin_event", fields...)
		return acknowledged("", "thin event logged")
	}
	return ignored()
}
