package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ManualReportStatusPending  = "pending"
	ManualReportStatusApproved = "approved"
	ManualReportStatusRejected = "rejected"
)

// ManualPaymentReport is a bank-transfer claim that an admin decides exactly once.
type ManualPaymentReport struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	OwnerID       uint            `gorm:"not null;index" json:"owner_id"`
	SubmittedBy   uint            `gorm:"not null" json:"submitted_by"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency      string          `gorm:"type:varchar(8);not null" json:"currency"`
	ReferenceText string          `gorm:"type:varchar(255);not null;default:''" json:"reference_text"`
	ProofURL      string          `gorm:"type:varchar(512);not null;default:''" json:"proof_url"`
	Status        string          `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	ApprovedBy    *uint           `json:"approved_by,omitempty"`
	RejectedBy    *uint           `json:"rejected_by,omitempty"`
	DecisionNote  string          `gorm:"type:text" json:"decision_note,omitempty"`
	DecidedAt     *time.Time      `gorm:"type:timestamp;default:null" json:"decided_at,omitempty"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsDecided reports whether an admin already approved or rejected the report.
func (r *ManualPaymentReport) IsDecided() bool {
	return r.Status != ManualReportStatusPending
}
