package models

import (
	"time"

	"github.com/fatflowers/billsync/pkg/types"
)

// Subscription is the local mirror of one user's provider subscription.
// At most one row exists per user; rows are never hard-deleted.
type Subscription struct {
	ID                 string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID             string `gorm:"column:user_id;type:varchar(64);not null;uniqueIndex" json:"user_id"`
	ProviderCustomerID string `gorm:"column:provider_customer_id;type:varchar(128)" json:"provider_customer_id"`
	// ProviderSubscriptionID is nil until the provider assigns one. Unique when present.
	ProviderSubscriptionID *string                  `gorm:"column:provider_subscription_id;type:varchar(128);uniqueIndex" json:"provider_subscription_id"`
	PriceID                string                   `gorm:"column:price_id;type:varchar(128)" json:"price_id"`
	Status                 types.SubscriptionStatus `gorm:"column:status;type:varchar(64);not null" json:"status"`
	CurrentPeriodStart     *time.Time               `gorm:"column:current_period_start" json:"current_period_start"`
	CurrentPeriodEnd       *time.Time               `gorm:"column:current_period_end" json:"current_period_end"`
	CancelAtPeriodEnd      bool                     `gorm:"column:cancel_at_period_end;not null" json:"cancel_at_period_end"`
	// LastEventCreated is the unix time of the provider event that last wrote the row.
	// Writes carrying an older event are rejected.
	LastEventCreated int64     `gorm:"column:last_event_created;not null" json:"last_event_created"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// Entitled reports whether the subscription currently grants its price's plan.
func (s *Subscription) Entitled() bool {
	return s != nil && s.Status.Entitled()
}
