package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	PaymentProviderPayPal             = "paypal"
	PaymentProviderPayPalSubscription = "paypal_subscription"
	PaymentProviderManual             = "manual"
)

// Payment is an append-only ledger row. (Provider, ProviderPaymentID) is the
// idempotency key of the external transaction.
type Payment struct {
	ID                uint              `gorm:"primaryKey" json:"id"`
	OwnerID           uint              `gorm:"not null;index" json:"owner_id"`
	Provider          string            `gorm:"type:varchar(32);not null;index:ux_payments_provider_payment,unique,priority:1" json:"provider"`
	ProviderPaymentID string            `gorm:"type:varchar(128);not null;index:ux_payments_provider_payment,unique,priority:2" json:"provider_payment_id"`
	ProviderReference string            `gorm:"type:varchar(128);not null;default:'';index" json:"provider_reference,omitempty"`
	Status            string            `gorm:"type:varchar(32);not null" json:"status"`
	Amount            decimal.Decimal   `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency          string            `gorm:"type:varchar(8);not null" json:"currency"`
	Metadata          datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`
	PaidAt            time.Time         `gorm:"type:timestamp;not null" json:"paid_at"`
	CreatedAt         time.Time         `gorm:"autoCreateTime" json:"created_at"`
}
