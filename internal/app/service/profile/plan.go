package profile

import (
	"strings"

	"github.com/fatflowers/billsync/internal/models"
	"github.com/fatflowers/billsync/pkg/config"
	"github.com/fatflowers/billsync/pkg/types"
)

// PriceIDToPlan classifies a price id by substring, case-insensitively.
// Checked in order basic, pro, enterprise; anything else is free.
func PriceIDToPlan(priceID string) types.Plan {
	id := strings.ToLower(priceID)
	switch {
	case strings.Contains(id, "basic"):
		return types.PlanBasic
	case strings.Contains(id, "pro"):
		return types.PlanPro
	case strings.Contains(id, "enterprise"):
		return types.PlanEnterprise
	}
	return types.PlanFree
}

// PlanResolver maps prices to plans using the configured price table,
// falling back to PriceIDToPlan for prices not listed there.
type PlanResolver struct {
	table map[string]types.Plan
}

func NewPlanResolver(cfg *config.Config) *PlanResolver {
	table := make(map[string]types.Plan, len(cfg.Stripe.PricePlans))
	for priceID, plan := range cfg.Stripe.PricePlans {
		if plan.Valid() {
			table[strings.ToLower(priceID)] = plan
		}
	}
	return &PlanResolver{table: table}
}

func (r *PlanResolver) PlanForPrice(priceID string) types.Plan {
	if r != nil {
		// viper lowercases map keys, so the table is keyed in lower case.
		if plan, ok := r.table[strings.ToLower(priceID)]; ok {
			return plan
		}
	}
	return PriceIDToPlan(priceID)
}

// PlanFor returns the plan a subscription grants: its price's plan while
// entitled, free otherwise or when there is no subscription.
func (r *PlanResolver) PlanFor(sub *models.Subscription) types.Plan {
	if !sub.Entitled() {
		return types.PlanFree
	}
	return r.PlanForPrice(sub.PriceID)
}
