package billing

import (
	"strings"

	"github.com/shopspring/decimal"
)

type Limits struct {
	Shops         int `json:"shops"`
	Professionals int `json:"professionals"`
}

// Tier is a priced usage bracket. Price is in the base currency.
type Tier struct {
	Code   string          `json:"code"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
	Limits Limits          `json:"limits"`
}

// tiers is ordered by ascending limits.
var tiers = []Tier{
	{Code: "basic_1", Name: "Básico 1", Price: decimal.NewFromInt(1000), Limits: Limits{Shops: 1, Professionals: 2}},
	{Code: "basic_2", Name: "Básico 2", Price: decimal.NewFromInt(1500), Limits: Limits{Shops: 1, Professionals: 4}},
	{Code: "pro", Name: "Pro", Price: decimal.NewFromInt(2000), Limits: Limits{Shops: 2, Professionals: 8}},
	{Code: "premium", Name: "Premium", Price: decimal.NewFromInt(3000), Limits: Limits{Shops: 3, Professionals: 12}},
}

// Tiers returns a copy of the tier table in ascending order.
func Tiers() []Tier {
	out := make([]Tier, len(tiers))
	copy(out, tiers)
	return out
}

func TierByCode(code string) (Tier, bool) {
	code = normalizePlanCode(code)
	for _, t := range tiers {
		if t.Code == code {
			return t, true
		}
	}
	return Tier{}, false
}

func maxTier() Tier {
	return tiers[len(tiers)-1]
}

func normalizePlanCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// Accommodates reports whether both usage dimensions fit the tier's limits.
func (t Tier) Accommodates(u UsageSnapshot) bool {
	return u.ShopCount <= t.Limits.Shops && u.ProfessionalCount <= t.Limits.Professionals
}
