package models

import (
	"time"

	"github.com/fatflowers/billsync/pkg/types"

	"gorm.io/datatypes"
)

// SubscriptionLog records every write to a subscription row.
// Use case: troubleshooting reconciliation.
type SubscriptionLog struct {
	ID     string                         `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID string                         `gorm:"column:user_id;type:varchar(64);index:idx_subscription_log_user_id;not null" json:"user_id"`
	Reason types.SubscriptionChangeReason `gorm:"column:reason;type:varchar(64);not null" json:"reason"`
	// EventID is the provider event that caused the change, empty for manual changes.
	EventID string                            `gorm:"column:event_id;type:varchar(128)" json:"event_id"`
	Before  datatypes.JSONType[*Subscription] `gorm:"column:before;type:jsonb" json:"before"`
	After   datatypes.JSONType[*Subscription] `gorm:"column:after;type:jsonb" json:"after"`
	// Plan is the profile plan written alongside the change.
	Plan      types.Plan `gorm:"column:plan;type:varchar(32)" json:"plan"`
	CreatedAt time.Time  `json:"created_at"`
}

func (SubscriptionLog) TableName() string {
	return "subscription_log"
}
