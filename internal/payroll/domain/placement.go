package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PayType decides how a placement's pay is derived
type PayType string

const (
	PayTypeHourly PayType = "hourly"
	PayTypeSalary PayType = "salary"
)

// PayrollConfigType selects where the cumulative-hours baseline comes from
type PayrollConfigType string

const (
	// PayrollConfigGlobal uses the employee's lifetime hours counter
	PayrollConfigGlobal PayrollConfigType = "global"
	// PayrollConfigCustom recomputes the baseline from the placement's raised hours
	PayrollConfigCustom PayrollConfigType = "custom"
)

// DiscountType describes how a bill-rate discount is applied
type DiscountType string

const (
	DiscountNone       DiscountType = "none"
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Placement links an employee to one client engagement
type Placement struct {
	ID                uuid.UUID         `db:"id" json:"id"`
	EmployeeID        uuid.UUID         `db:"employee_id" json:"employee_id"`
	PayType           PayType           `db:"pay_type" json:"pay_type"`
	PayConfigID       uuid.UUID         `db:"pay_config_id" json:"pay_config_id"`
	PayrollConfigType PayrollConfigType `db:"payroll_config_type" json:"payroll_config_type"`
	StartDate         time.Time         `db:"start_date" json:"start_date"`
	EndDate           *time.Time        `db:"end_date" json:"end_date,omitempty"`
	PayrollPay        decimal.Decimal   `db:"payroll_pay" json:"payroll_pay"`
}

// ActiveDuring reports whether the placement overlaps [start, end]
func (p *Placement) ActiveDuring(start, end time.Time) bool {
	if DateOf(p.StartDate).After(DateOf(end)) {
		return false
	}
	return p.EndDate == nil || !DateOf(*p.EndDate).Before(DateOf(start))
}

// BillRate is the client rate of a placement over an effective date range
type BillRate struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	PlacementID   uuid.UUID       `db:"placement_id" json:"placement_id"`
	Rate          decimal.Decimal `db:"rate" json:"rate"`
	Discount      decimal.Decimal `db:"discount" json:"discount"`
	DiscountType  DiscountType    `db:"discount_type" json:"discount_type"`
	EffectiveFrom time.Time       `db:"effective_from" json:"effective_from"`
	EffectiveTo   *time.Time      `db:"effective_to" json:"effective_to,omitempty"`

	// OTOverride replaces the pay configuration's overtime policy for days
	// billed at this rate.
	OTOverride *OvertimePolicy `db:"-" json:"ot_override,omitempty"`
}

// EffectiveOn reports whether the rate applies on d
func (b *BillRate) EffectiveOn(d time.Time) bool {
	d = DateOf(d)
	if d.Before(DateOf(b.EffectiveFrom)) {
		return false
	}
	return b.EffectiveTo == nil || !d.After(DateOf(*b.EffectiveTo))
}

// ApplyDiscount applies this bill rate's discount rule to r.
func (b *BillRate) ApplyDiscount(r decimal.Decimal) decimal.Decimal {
	switch b.DiscountType {
	case DiscountPercentage:
		return r.Mul(decimal.NewFromInt(1).Sub(b.Discount.Div(decimal.NewFromInt(100))))
	case DiscountFixed:
		return r.Sub(b.Discount)
	default:
		return r
	}
}

// Discounted is the bill rate after its own discount
func (b *BillRate) Discounted() decimal.Decimal {
	return b.ApplyDiscount(b.Rate)
}
