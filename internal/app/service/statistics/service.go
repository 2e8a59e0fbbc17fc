package statistics

import (
	"context"
	"fmt"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/billsync/internal/models"
	"github.com/fatflowers/billsync/pkg/types"
)

type StatisticType string

const (
	StatisticTypeSubscriptionCountByStatus  StatisticType = "subscription_count_by_status"
	StatisticTypeProfileCountByPlan         StatisticType = "profile_count_by_plan"
	StatisticTypeWebhookEventCountByOutcome StatisticType = "webhook_event_count_by_outcome"
	StatisticTypeWebhookEventCountByType    StatisticType = "webhook_event_count_by_type"
)

// Filters apply to webhook event statistics only.
var webhookFilterFields = map[string]bool{
	"created_at":    true,
	"event_created": true,
	"event_type":    true,
	"payload_shape": true,
	"outcome":       true,
}

type SubscriptionStatisticDataItem struct {
	ID StatisticType `json:"id"`
}

type SubscriptionStatisticRequest struct {
	Filters   []*types.CommonFilter            `json:"filters"`
	DataItems []*SubscriptionStatisticDataItem `json:"data_items"`
}

type StatisticResponseDataItem struct {
	Label string `json:"label"`
	Value int64  `json:"value"`
}

type SubscriptionStatisticResponse struct {
	DataItems map[StatisticType][]StatisticResponseDataItem `json:"data_items"`
}

// Service provides read-only aggregates for the admin API.
type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service { return &Service{db: db} }

func (s *Service) countGroupedBy(ctx context.Context, table, column string, where clause.Expression) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	q := s.db.WithContext(ctx).Table(table).
		Select(fmt.Sprintf("%s as label, count(*) as value", column))
	if where != nil {
		q = q.Where(clause.Where{Exprs: []clause.Expression{where}})
	}
	if err := q.Group(column).Order("label").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getStatistic(ctx context.Context, request *SubscriptionStatisticRequest, dataItem *SubscriptionStatisticDataItem) ([]StatisticResponseDataItem, error) {
	switch dataItem.ID {
	case StatisticTypeSubscriptionCountByStatus:
		return s.countGroupedBy(ctx, models.Subscription{}.TableName(), "status", nil)
	case StatisticTypeProfileCountByPlan:
		return s.countGroupedBy(ctx, models.Profile{}.TableName(), "subscription_plan", nil)
	case StatisticTypeWebhookEventCountByOutcome:
		return s.countGroupedBy(ctx, models.WebhookEventLog{}.TableName(), "outcome", types.FiltersWhere(request.Filters))
	case StatisticTypeWebhookEventCountByType:
		return s.countGroupedBy(ctx, models.WebhookEventLog{}.TableName(), "event_type", types.FiltersWhere(request.Filters))
	default:
		return nil, fmt.Errorf("invalid data item id: %s", dataItem.ID)
	}
}

// GetSubscriptionStatistic computes the requested data items concurrently.
func (s *Service) GetSubscriptionStatistic(ctx context.Context, request *SubscriptionStatisticRequest) (*SubscriptionStatisticResponse, error) {
	if request == nil {
		return nil, fmt.Errorf("nil request")
	}
	for _, f := range request.Filters {
		if err := f.Validate(webhookFilterFields); err != nil {
			return nil, err
		}
	}
	for i, item := range request.DataItems {
		if item == nil || item.ID == "" {
			return nil, fmt.Errorf("data item %d: id is required", i)
		}
	}

	var wg sync.WaitGroup
	errChan := make(chan error, len(request.DataItems))
	resChan := make(chan *lo.Entry[StatisticType, []StatisticResponseDataItem], len(request.DataItems))

	for _, item := range request.DataItems {
		wg.Add(1)
		go func(di *SubscriptionStatisticDataItem) {
			defer wg.Done()
			res, err := s.getStatistic(ctx, request, di)
			if err != nil {
				errChan <- err
				return
			}
			resChan <- &lo.Entry[StatisticType, []StatisticResponseDataItem]{Key: di.ID, Value: res}
		}(item)
	}

	// Both channels are buffered for every item, so no worker blocks.
	wg.Wait()
	close(errChan)
	close(resChan)
	if err := <-errChan; err != nil {
		return nil, err
	}

	results := make(map[StatisticType][]StatisticResponseDataItem, len(request.DataItems))
	for entry := range resChan {
		results[entry.Key] = entry.Value
	}
	return &SubscriptionStatisticResponse{DataItems: results}, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
