package billing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// toSettlement converts a base-currency amount with the configured static
// rate. It fails closed when the currencies differ and no rate is set.
func (s *Service) toSettlement(amount decimal.Decimal) (decimal.Decimal, string, error) {
	base := strings.ToUpper(s.cfg.BaseCurrency)
	settlement := strings.ToUpper(s.cfg.SettlementCurrency)
	if base == settlement {
		return amount.Round(2), settlement, nil
	}
	if !s.cfg.ExchangeRate.IsPositive() {
		return decimal.Zero, "", configurationError("PAYPAL_EXCHANGE_RATE is required to convert %s to %s", base, settlement)
	}
	return amount.Div(s.cfg.ExchangeRate).Round(2), settlement, nil
}
