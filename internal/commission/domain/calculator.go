package domain

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/nodeboss/internal/config"
)

var hundred = decimal.NewFromInt(100)

// Earner is one candidate beneficiary of a sale.
type Earner struct {
	UserID    snowflake.ID
	IsBigBoss bool
	// Percentage is the link rate for the owner and the override rate for
	// ancestors.
	Percentage decimal.Decimal
}

type CalculationInput struct {
	Amount int64
	Owner  Earner
	// Ancestors are ordered nearest first, starting at the owner's referrer.
	Ancestors []Earner
}

type PlanLine struct {
	UserID      snowflake.ID
	Source      Source
	Level       int
	RatePercent decimal.Decimal
	Amount      int64
}

type Plan struct {
	Lines []PlanLine
	Total int64
	// Cap is the most the sale may pay out in total.
	Cap int64
	// Uncapped is what the lines would have summed to without the cap.
	Uncapped int64
	Capped   bool
}

// Calculate computes the commission lines for a sale. It has no side
// effects. When the cap truncates the plan it returns the capped plan along
// with ErrPayoutLimitExceeded.
func Calculate(in CalculationInput, policy config.Policy) (Plan, error) {
	if in.Amount < 0 {
		return Plan{}, ErrInvalidAmount
	}
	amount := decimal.NewFromInt(in.Amount)
	plan := Plan{Cap: amount.Mul(policy.MaxPayoutRatio).Floor().IntPart()}
	if in.Amount == 0 {
		return plan, nil
	}
	if in.Owner.Percentage.IsNegative() || in.Owner.Percentage.GreaterThan(hundred) {
		return Plan{}, ErrInvalidRate
	}

	direct := percentOf(amount, in.Owner.Percentage)
	candidates := []PlanLine{{
		UserID:      in.Owner.UserID,
		Source:      SourceReferralSale,
		Level:       0,
		RatePercent: in.Owner.Percentage,
		Amount:      direct,
	}}

	base := amount
	if policy.OverrideBase == config.OverrideBaseDirectCommission {
		base = decimal.NewFromInt(direct)
	}
	for i, ancestor := range in.Ancestors {
		if i >= policy.MaxOverrideDepth || !ancestor.IsBigBoss {
			break
		}
		if ancestor.Percentage.IsNegative() || ancestor.Percentage.GreaterThan(hundred) {
			return Plan{}, ErrInvalidRate
		}
		candidates = append(candidates, PlanLine{
			UserID:      ancestor.UserID,
			Source:      SourceOverride,
			Level:       i + 1,
			RatePercent: ancestor.Percentage,
			Amount:      percentOf(base, ancestor.Percentage),
		})
	}

	minimum := policy.MinimumCommission
	if minimum < 1 {
		minimum = 1
	}

	remaining := plan.Cap
	for _, line := range candidates {
		if line.Amount < minimum {
			continue
		}
		plan.Uncapped += line.Amount
		if plan.Capped {
			continue
		}
		if line.Amount > remaining {
			plan.Capped = true
			line.Amount = remaining
			if line.Amount < minimum {
				continue
			}
		}
		remaining -= line.Amount
		plan.Total += line.Amount
		plan.Lines = append(plan.Lines, line)
	}

	if plan.Capped {
		return plan, ErrPayoutLimitExceeded
	}
	return plan, nil
}

// percentOf rounds down so an earner is never paid more than the rate allows.
func percentOf(base, pct decimal.Decimal) int64 {
	return base.Mul(pct).Div(hundred).Floor().IntPart()
}
