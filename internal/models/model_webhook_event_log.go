package models

import (
	"time"

	"github.com/fatflowers/billsync/pkg/types"

	"gorm.io/datatypes"
)

// WebhookEventOutcome is the handler result recorded for a delivery.
type WebhookEventOutcome string

const (
	WebhookEventOutcomeApplied      WebhookEventOutcome = "applied"
	WebhookEventOutcomeAcknowledged WebhookEventOutcome = "acknowledged"
	WebhookEventOutcomeSkipped      WebhookEventOutcome = "skipped"
	WebhookEventOutcomeIgnored      WebhookEventOutcome = "ignored"
	WebhookEventOutcomeDuplicate    WebhookEventOutcome = "duplicate"
	WebhookEventOutcomeFailed       WebhookEventOutcome = "failed"
)

// WebhookEventLog is one verified webhook delivery and what was done with it.
type WebhookEventLog struct {
	ID           string                `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Provider     types.PaymentProvider `gorm:"column:provider;type:varchar(32);not null" json:"provider"`
	EventID      string                `gorm:"column:event_id;type:varchar(128);not null;index" json:"event_id"`
	EventType    string                `gorm:"column:event_type;type:varchar(128);not null;index" json:"event_type"`
	PayloadShape types.PayloadShape    `gorm:"column:payload_shape;type:varchar(16);not null" json:"payload_shape"`
	UserID       *string               `gorm:"column:user_id;type:varchar(64);index" json:"user_id"`
	TraceID      string                `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	Outcome      WebhookEventOutcome   `gorm:"column:outcome;type:varchar(32);not null" json:"outcome"`
	Reason       string                `gorm:"column:reason;type:text" json:"reason"`
	EventCreated time.Time             `gorm:"column:event_created" json:"event_created"`
	Payload      datatypes.JSON        `gorm:"column:payload;type:jsonb" json:"payload"`
	CreatedAt    time.Time             `json:"created_at"`
}

func (WebhookEventLog) TableName() string { return "webhook_event_log" }
