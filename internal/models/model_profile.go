package models

import (
	"time"

	"github.com/fatflowers/billsync/pkg/types"
)

// Profile is owned by account provisioning. This service only writes SubscriptionPlan.
type Profile struct {
	ID               string     `gorm:"column:id;type:varchar(64);primary_key" json:"id"`
	SubscriptionPlan types.Plan `gorm:"column:subscription_plan;type:varchar(32);not null;default:'free'" json:"subscription_plan"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (Profile) TableName() string { return "profiles" }
