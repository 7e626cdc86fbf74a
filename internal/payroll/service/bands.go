package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/staffline/backoffice/internal/payroll/domain"
	"github.com/staffline/backoffice/internal/payroll/rates"
)

// BandResolver loads the tier schedule and overtime policy of a pay configuration
type BandResolver struct {
	configs PayConfigProvider
}

func NewBandResolver(configs PayConfigProvider) *BandResolver {
	return &BandResolver{configs: configs}
}

// Resolve returns the schedule sorted by lower bound. A configuration
// without tiers or without an overtime policy yields ErrConfigurationMissing.
func (r *BandResolver) Resolve(ctx context.Context, payConfigID uuid.UUID) (rates.Schedule, error) {
	tiers, err := r.configs.Tiers(ctx, payConfigID)
	if err != nil {
		return rates.Schedule{}, fmt.Errorf("load pay tiers: %w", err)
	}
	if len(tiers) == 0 {
		return rates.Schedule{}, fmt.Errorf("pay config %s has no tiers: %w", payConfigID, domain.ErrConfigurationMissing)
	}

	policy, err := r.configs.OvertimePolicy(ctx, payConfigID)
	if errors.Is(err, domain.ErrNotFound) {
		return rates.Schedule{}, fmt.Errorf("pay config %s has no overtime policy: %w", payConfigID, domain.ErrConfigurationMissing)
	}
	if err != nil {
		return rates.Schedule{}, fmt.Errorf("load overtime policy: %w", err)
	}
	if err := policy.Validate(); err != nil {
		return rates.Schedule{}, fmt.Errorf("pay config %s: %v: %w", payConfigID, err, domain.ErrConfigurationMissing)
	}

	return rates.NewSchedule(tiers, policy), nil
}
