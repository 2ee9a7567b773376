package subscription

import (
	"errors"
	"time"
)

type Plan string
type Cycle string
type Status string

const (
	PlanStarter      Plan = "starter"
	PlanProfessional Plan = "professional"
	PlanEnterprise   Plan = "enterprise"

	CycleMonthly Cycle = "monthly"
	CycleYearly  Cycle = "yearly"

	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

var ErrUnknownPlan = errors.New("unknown plan")
var ErrUnknownCycle = errors.New("unknown billing cycle")

type Subscription struct {
	ID               int       `db:"id" json:"id"`
	UserID           int       `db:"user_id" json:"user_id"`
	Plan             Plan      `db:"plan" json:"plan"`
	Status           Status    `db:"status" json:"status"`
	StartedAt        time.Time `db:"started_at" json:"started_at"`
	CurrentPeriodEnd time.Time `db:"current_period_end" json:"current_period_end"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

type PlanInfo struct {
	Plan              Plan   `json:"plan"`
	Name              string `json:"name"`
	MonthlyPriceCents int64  `json:"monthly_price_cents"`
	YearlyPriceCents  int64  `json:"yearly_price_cents"`
}

func Plans() []PlanInfo {
	return []PlanInfo{
		{Plan: PlanStarter, Name: "Starter", MonthlyPriceCents: 9900, YearlyPriceCents: 99000},
		{Plan: PlanProfessional, Name: "Professional", MonthlyPriceCents: 29900, YearlyPriceCents: 299000},
		{Plan: PlanEnterprise, Name: "Enterprise", MonthlyPriceCents: 99900, YearlyPriceCents: 999000},
	}
}

func PriceCents(plan Plan, cycle Cycle) (int64, error) {
	for _, p := range Plans() {
		if p.Plan != plan {
			continue
		}
		switch cycle {
		case CycleMonthly:
			return p.MonthlyPriceCents, nil
		case CycleYearly:
			return p.YearlyPriceCents, nil
		default:
			return 0, ErrUnknownCycle
		}
	}
	return 0, ErrUnknownPlan
}

// CycleDuration: fixed offsets, calendar rules are out of scope.
func CycleDuration(cycle Cycle) (time.Duration, error) {
	switch cycle {
	case CycleMonthly:
		return 30 * 24 * time.Hour, nil
	case CycleYearly:
		return 365 * 24 * time.Hour, nil
	default:
		return 0, ErrUnknownCycle
	}
}
