// Package insights holds the presentational aggregates shown on the dashboard
// screens. Everything here is a pure function of its arguments.
package insights

import "math"

type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

type tierRule struct {
	tier      Tier
	minOrders int
	minSpent  float64
}

// ordered from highest to lowest; first match wins
var tierRules = []tierRule{
	{TierPlatinum, 20, 50000},
	{TierGold, 10, 20000},
	{TierSilver, 3, 5000},
}

// LoyaltyTier ranks a customer by completed rentals or lifetime spend,
// whichever earns the higher tier.
func LoyaltyTier(completedOrders int, totalSpent float64) Tier {
	for _, r := range tierRules {
		if completedOrders >= r.minOrders || totalSpent >= r.minSpent {
			return r.tier
		}
	}
	return TierBronze
}

// AvailabilityPercent returns available/total as a percentage rounded to one
// decimal and clamped to [0, 100].
func AvailabilityPercent(available, total int) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(available) / float64(total) * 100
	return math.Round(clamp(p, 0, 100)*10) / 10
}

// PaymentProgress returns paid/total in [0, 1]. An order with nothing to pay
// counts as fully paid.
func PaymentProgress(paid, total float64) float64 {
	if total <= 0 {
		return 1
	}
	return clamp(paid/total, 0, 1)
}

type PaymentState string

const (
	Unpaid  PaymentState = "unpaid"
	Partial PaymentState = "partial"
	Paid    PaymentState = "paid"
)

func PaymentStatus(paid, total float64) PaymentState {
	switch p := PaymentProgress(paid, total); {
	case p >= 1:
		return Paid
	case p <= 0:
		return Unpaid
	default:
		return Partial
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
