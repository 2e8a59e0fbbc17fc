package types

type PaymentProvider string

const (
	PaymentProviderStripe PaymentProvider = "stripe"
)

// SubscriptionStatus mirrors the provider's subscription status values.
type SubscriptionStatus string

const (
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionStatusPaused            SubscriptionStatus = "paused"
)

// Entitled reports whether the status grants the subscribed plan.
func (s SubscriptionStatus) Entitled() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusTrialing
}

type SubscriptionChangeReason string

const (
	SubscriptionChangeReasonCheckoutCompleted SubscriptionChangeReason = "checkout_completed"
	SubscriptionChangeReasonProviderUpdated   SubscriptionChangeReason = "provider_updated"
	SubscriptionChangeReasonProviderDeleted   SubscriptionChangeReason = "provider_deleted"
	SubscriptionChangeReasonManualResync      SubscriptionChangeReason = "manual_resync"
)

// Plan is the coarse tier cached on a profile.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanBasic      Plan = "basic"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanBasic, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

// PayloadShape discriminates the two webhook payload schemas.
type PayloadShape string

const (
	// PayloadShapeSnapshot carries the full resource under data.object.
	PayloadShapeSnapshot PayloadShape = "snapshot"
	// PayloadShapeThin carries only a related_object reference.
	PayloadShapeThin PayloadShape = "thin"
)
