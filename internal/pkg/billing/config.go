package billing

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/BarberFox/internal/pkg/env"
)

const (
	defaultBaseCurrency       = "DOP"
	defaultSettlementCurrency = "USD"
	defaultBrandName          = "BarberFox"
)

// Config holds billing settings. PayPal credentials live in the paypal client.
type Config struct {
	// BaseCurrency is the currency tier prices are defined in.
	BaseCurrency string
	// SettlementCurrency is the currency PayPal charges in.
	SettlementCurrency string
	// ExchangeRate is the number of base units per one settlement unit.
	// Zero means unset.
	ExchangeRate decimal.Decimal
	// PlanIDs maps tier codes to PayPal billing plan ids.
	PlanIDs map[string]string

	PublicDomain      string
	BrandName         string
	AdminEmail        string
	TokenCacheEnabled bool
}

func LoadConfig() Config {
	rate := decimal.Zero
	if raw := strings.TrimSpace(env.GetEnv("PAYPAL_EXCHANGE_RATE", "")); raw != "" {
		if parsed, err := decimal.NewFromString(raw); err == nil && parsed.IsPositive() {
			rate = parsed
		}
	}

	planIDs := map[string]string{}
	for _, t := range tiers {
		key := "PAYPAL_PLAN_" + strings.ToUpper(t.Code)
		if id := strings.TrimSpace(env.GetEnv(key, "")); id != "" {
			planIDs[t.Code] = id
		}
	}

	return Config{
		BaseCurrency:       strings.ToUpper(strings.TrimSpace(env.GetEnv("BILLING_CURRENCY", defaultBaseCurrency))),
		SettlementCurrency: strings.ToUpper(strings.TrimSpace(env.GetEnv("PAYPAL_CURRENCY", defaultSettlementCurrency))),
		ExchangeRate:       rate,
		PlanIDs:            planIDs,
		PublicDomain:       strings.TrimRight(strings.TrimSpace(env.GetEnv("PUBLIC_DOMAIN", "")), "/"),
		BrandName:          strings.TrimSpace(env.GetEnv("BILLING_BRAND_NAME", defaultBrandName)),
		AdminEmail:         strings.TrimSpace(env.GetEnv("BILLING_ADMIN_EMAIL", "")),
		TokenCacheEnabled:  env.GetEnvBool("PAYPAL_TOKEN_CACHE", false),
	}
}

func (c Config) withDefaults() Config {
	if c.BaseCurrency == "" {
		c.BaseCurrency = defaultBaseCurrency
	}
	if c.SettlementCurrency == "" {
		c.SettlementCurrency = defaultSettlementCurrency
	}
	if c.BrandName == "" {
		c.BrandName = defaultBrandName
	}
	if c.PlanIDs == nil {
		c.PlanIDs = map[string]string{}
	}
	return c
}

// PlanIDFor returns the PayPal plan id configured for a tier code.
func (c Config) PlanIDFor(code string) (string, bool) {
	id, ok := c.PlanIDs[normalizePlanCode(code)]
	return id, ok && id != ""
}

// PlanCodeFor maps a PayPal plan id back to a tier code.
func (c Config) PlanCodeFor(planID string) (string, bool) {
	planID = strings.TrimSpace(planID)
	if planID == "" {
		return "", false
	}
	for code, id := range c.PlanIDs {
		if id == planID {
			return code, true
		}
	}
	return "", false
}

func (c Config) returnURL(path string) string {
	if c.PublicDomain == "" {
		return ""
	}
	return c.PublicDomain + path
}
