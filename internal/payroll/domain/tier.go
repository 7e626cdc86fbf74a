package domain

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RateBasis tells whether a tier rate is a currency amount or a percentage
// of the bill rate
type RateBasis string

const (
	BasisFixed      RateBasis = "fixed"
	BasisPercentage RateBasis = "percentage"
)

// PayBandTier is one cumulative-hours band of a pay configuration.
// The band covers [From, To); a nil To is unbounded.
type PayBandTier struct {
	ID          uuid.UUID        `db:"id" json:"id"`
	PayConfigID uuid.UUID        `db:"pay_config_id" json:"pay_config_id"`
	From        decimal.Decimal  `db:"from_hour" json:"from_hour"`
	To          *decimal.Decimal `db:"to_hour" json:"to_hour,omitempty"`
	Rate        decimal.Decimal  `db:"rate" json:"rate"`
	Basis       RateBasis        `db:"rate_basis" json:"rate_basis"`
}

// Contains reports whether cumulative hour h falls inside the band
func (t *PayBandTier) Contains(h decimal.Decimal) bool {
	if h.LessThan(t.From) {
		return false
	}
	return t.To == nil || h.LessThan(*t.To)
}

// OvertimeKind enumerates the overtime pricing strategies
type OvertimeKind string

const (
	OvertimeSameAsBase OvertimeKind = "same_as_base"
	OvertimeFixedRate  OvertimeKind = "fixed_rate"
	OvertimeMultiplier OvertimeKind = "multiplier"
)

// OvertimePolicy prices overtime hours. Value is the fixed rate for
// OvertimeFixedRate, the factor for OvertimeMultiplier and unused otherwise.
type OvertimePolicy struct {
	Kind  OvertimeKind    `db:"ot_type" json:"type"`
	Value decimal.Decimal `db:"ot_value" json:"value"`
}

func SameAsBase() OvertimePolicy {
	return OvertimePolicy{Kind: OvertimeSameAsBase}
}

func FixedRate(rate decimal.Decimal) OvertimePolicy {
	return OvertimePolicy{Kind: OvertimeFixedRate, Value: rate}
}

func Multiplier(factor decimal.Decimal) OvertimePolicy {
	return OvertimePolicy{Kind: OvertimeMultiplier, Value: factor}
}

// Validate rejects unknown kinds and negative values
func (p OvertimePolicy) Validate() error {
	switch p.Kind {
	case OvertimeSameAsBase:
		return nil
	case OvertimeFixedRate, OvertimeMultiplier:
		if p.Value.IsNegative() {
			return fmt.Errorf("overtime %s value must not be negative", p.Kind)
		}
		return nil
	default:
		return fmt.Errorf("unknown overtime policy %q: %w", p.Kind, ErrConfigurationMissing)
	}
}

// Rate prices one overtime hour given the effective rate of the first tier
// touched that day. The result is before discount.
func (p OvertimePolicy) Rate(tierRate decimal.Decimal) decimal.Decimal {
	switch p.Kind {
	case OvertimeFixedRate:
		return p.Value
	case OvertimeMultiplier:
		return tierRate.Mul(p.Value)
	default:
		return tierRate
	}
}
