package handlers

import (
	notificationlog "github.com/fatflowers/billsync/internal/app/service/notification_log"
	"github.com/fatflowers/billsync/internal/app/service/statistics"
	"github.com/fatflowers/billsync/internal/models"
	"github.com/fatflowers/billsync/pkg/response"
)

// RespSubscriptionDetail wraps SubscriptionDetail in the standard envelope.
type RespSubscriptionDetail struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    SubscriptionDetail       `json:"data"`
}

// RespSubscription wraps a stored subscription in the standard envelope.
type RespSubscription struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.Subscription      `json:"data"`
}

// RespListWebhookEvents wraps notificationlog.ListResponse in the standard envelope.
type RespListWebhookEvents struct {
	Code    response.APIResponseCode     `json:"code"`
	Message string                       `json:"message"`
	Data    notificationlog.ListResponse `json:"data"`
}

// RespSubscriptionStatistic wraps SubscriptionStatisticResponse in the standard envelope.
type RespSubscriptionStatistic struct {
	Code    response.APIResponseCode                 `json:"code"`
	Message string                                   `json:"message"`
	Data    statistics.SubscriptionStatisticResponse `json:"data"`
}
