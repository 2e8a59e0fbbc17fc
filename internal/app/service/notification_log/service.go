package notification_log

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/billsync/internal/models"
	"github.com/fatflowers/billsync/pkg/logctx"
	"github.com/fatflowers/billsync/pkg/tool"
	"github.com/fatflowers/billsync/pkg/types"
)

// filterFields are the webhook_event_log columns admins may filter and sort on.
var filterFields = map[string]bool{
	"provider":      true,
	"event_id":      true,
	"event_type":    true,
	"payload_shape": true,
	"user_id":       true,
	"trace_id":      true,
	"outcome":       true,
	"event_created": true,
	"created_at":    true,
}

type Service struct {
	db      *gorm.DB
	log     *zap.SugaredLogger
	async   bool
	pending sync.WaitGroup
}

// New returns a Service that writes in the background.
func New(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log, async: true}
}

// NewSync returns a Service that writes before Save returns.
func NewSync(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

// Save persists a webhook event log. Nil input is ignored and write errors are
// only logged: the audit trail never fails a delivery.
func (s *Service) Save(ctx context.Context, entry *models.WebhookEventLog) {
	if s == nil || entry == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = tool.GenerateUUIDV7()
	}
	if !s.async {
		s.save(ctx, entry)
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		s.save(context.WithoutCancel(ctx), entry)
	}()
}

func (s *Service) save(ctx context.Context, entry *models.WebhookEventLog) {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("failed to save webhook event log", "event_id", entry.EventID, "err", err)
	}
}

// Wait blocks until background writes have finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

type ListRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type ListResponse struct {
	Items []*models.WebhookEventLog `json:"items"`
	Total int64                     `json:"total"`
}

// List returns a filtered page of webhook event logs, newest first by default.
func (s *Service) List(ctx context.Context, req *ListRequest) (*ListResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	for _, f := range req.Filters {
		if err := f.Validate(filterFields); err != nil {
			return nil, err
		}
	}
	if req.SortBy != "" && !filterFields[req.SortBy] {
		return nil, fmt.Errorf("sort field not allowed: %s", req.SortBy)
	}
	if req.Size <= 0 || req.Size > 200 {
		req.Size = 20
	}
	if req.From < 0 {
		req.From = 0
	}

	q := s.db.WithContext(ctx).Model(&models.WebhookEventLog{})
	if len(req.Filters) > 0 {
		q = q.Where(clause.Where{Exprs: []clause.Expression{types.FiltersWhere(req.Filters)}})
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count webhook events: %w", err)
	}

	sortBy := req.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	var rows []*models.WebhookEventLog
	err := q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Name: sortBy}, Desc: req.SortOrder != "asc"},
		{Column: clause.Column{Name: "id"}, Desc: true},
	}}).Limit(req.Size).Offset(req.From).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook events: %w", err)
	}
	return &ListResponse{Items: rows, Total: total}, nil
}

func registerFlush(lc fx.Lifecycle, s *Service) {
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error {
		s.Wait()
		return nil
	}})
}

var Module = fx.Options(
	fx.Provide(New),
	fx.Invoke(registerFlush),
)
