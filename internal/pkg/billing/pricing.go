package billing

import "github.com/shopspring/decimal"

type Overage struct {
	Shops         int `json:"shops"`
	Professionals int `json:"professionals"`
}

// Pricing is the result of tier selection. Total is nil when over limit.
type Pricing struct {
	Tier        *Tier            `json:"tier"`
	Total       *decimal.Decimal `json:"total"`
	IsOverLimit bool             `json:"is_over_limit"`
	Overage     *Overage         `json:"overage,omitempty"`
}

// SelectTier returns the smallest tier whose limits hold both usage counts,
// or an over-limit result with the clamped overage against the largest tier.
func SelectTier(u UsageSnapshot) Pricing {
	for _, t := range tiers {
		if t.Accommodates(u) {
			tier := t
			total := t.Price
			return Pricing{Tier: &tier, Total: &total}
		}
	}

	top := maxTier()
	return Pricing{
		IsOverLimit: true,
		Overage: &Overage{
			Shops:         max(0, u.ShopCount-top.Limits.Shops),
			Professionals: max(0, u.ProfessionalCount-top.Limits.Professionals),
		},
	}
}
