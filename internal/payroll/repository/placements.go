package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/staffline/backoffice/internal/payroll/domain"
	"github.com/staffline/backoffice/pkg/database"
)

// PlacementRepository reads placements and their bill rates
type PlacementRepository struct {
	db *database.DB
}

// NewPlacementRepository creates a new placement repository
func NewPlacementRepository(db *database.DB) *PlacementRepository {
	return &PlacementRepository{db: db}
}

// ActivePlacements lists the employee's placements overlapping the period
func (r *PlacementRepository) ActivePlacements(ctx context.Context, employeeID uuid.UUID, periodStart, periodEnd time.Time) ([]domain.Placement, error) {
	var placements []domain.Placement
	query := `
		SELECT id, employee_id, pay_type, pay_config_id, payroll_config_type, start_date, end_date, payroll_pay
		FROM placements
		WHERE employee_id = $1 AND start_date <= $3 AND (end_date IS NULL OR end_date >= $2)
		ORDER BY start_date, id
	`
	if err := sqlx.SelectContext(ctx, r.db.Querier(ctx), &placements, query, employeeID, periodStart, periodEnd); err != nil {
		return nil, err
	}
	return placements, nil
}

// billRateRow carries the optional overtime override columns
type billRateRow struct {
	domain.BillRate
	OTType  sql.NullString      `db:"ot_type"`
	OTValue decimal.NullDecimal `db:"ot_value"`
}

func (r billRateRow) toDomain() *domain.BillRate {
	b := r.BillRate
	if r.OTType.Valid {
		b.OTOverride = &domain.OvertimePolicy{
			Kind:  domain.OvertimeKind(r.OTType.String),
			Value: r.OTValue.Decimal,
		}
	}
	return &b
}

// BillRateOn returns the bill rate in effect on date. The latest
// effective_from wins when ranges overlap.
func (r *PlacementRepository) BillRateOn(ctx context.Context, placementID uuid.UUID, date time.Time) (*domain.BillRate, error) {
	var row billRateRow
	query := `
		SELECT id, placement_id, rate, discount, discount_type, effective_from, effective_to, ot_type, ot_value
		FROM bill_rates
		WHERE placement_id = $1 AND effective_from <= $2 AND (effective_to IS NULL OR effective_to >= $2)
		ORDER BY effective_from DESC
		LIMIT 1
	`
	if err := sqlx.GetContext(ctx, r.db.Querier(ctx), &row, query, placementID, date); err != nil {
		return nil, notFound(err, "bill rate of placement", placementID)
	}
	return row.toDomain(), nil
}

// PayConfigRepository reads pay configurations
type PayConfigRepository struct {
	db *database.DB
}

// NewPayConfigRepository creates a new pay configuration repository
func NewPayConfigRepository(db *database.DB) *PayConfigRepository {
	return &PayConfigRepository{db: db}
}

// Tiers lists the configuration's tiers by lower bound
func (r *PayConfigRepository) Tiers(ctx context.Context, payConfigID uuid.UUID) ([]domain.PayBandTier, error) {
	var tiers []domain.PayBandTier
	query := `
		SELECT id, pay_config_id, from_hour, to_hour, rate, rate_basis
		FROM pay_band_tiers
		WHERE pay_config_id = $1
		ORDER BY from_hour
	`
	if err := sqlx.SelectContext(ctx, r.db.Querier(ctx), &tiers, query, payConfigID); err != nil {
		return nil, err
	}
	return tiers, nil
}

// OvertimePolicy returns the configuration's overtime policy, or
// domain.ErrNotFound when the configuration is missing or has none
func (r *PayConfigRepository) OvertimePolicy(ctx context.Context, payConfigID uuid.UUID) (domain.OvertimePolicy, error) {
	var row struct {
		OTType  sql.NullString      `db:"ot_type"`
		OTValue decimal.NullDecimal `db:"ot_value"`
	}
	query := `SELECT ot_type, ot_value FROM pay_configs WHERE id = $1`
	if err := sqlx.GetContext(ctx, r.db.Querier(ctx), &row, query, payConfigID); err != nil {
		return domain.OvertimePolicy{}, notFound(err, "pay config", payConfigID)
	}
	if !row.OTType.Valid {
		return domain.OvertimePolicy{}, notFound(sql.ErrNoRows, "overtime policy of pay config", payConfigID)
	}
	return domain.OvertimePolicy{
		Kind:  domain.OvertimeKind(row.OTType.String),
		Value: row.OTValue.Decimal,
	}, nil
}
