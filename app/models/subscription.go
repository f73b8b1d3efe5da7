package models

import "time"

const (
	SubscriptionStatusActive              = "active"
	SubscriptionStatusPendingVerification = "pending_verification"
)

const (
	BillingProviderNone   = "none"
	BillingProviderPayPal = "paypal"
)

// Subscription is the single billing row of an owner. Liveness is derived from
// the period boundaries, Status only records the last lifecycle event.
type Subscription struct {
	ID                       uint       `gorm:"primaryKey" json:"id"`
	OwnerID                  uint       `gorm:"not null;uniqueIndex" json:"owner_id"`
	Status                   string     `gorm:"type:varchar(32);not null;default:'active'" json:"status"`
	CurrentPeriodStart       *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start"`
	CurrentPeriodEnd         *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end"`
	GracePeriodEnd           *time.Time `gorm:"type:timestamp;default:null" json:"grace_period_end"`
	LastAlertSentAt          *time.Time `gorm:"type:timestamp;default:null" json:"last_alert_sent_at,omitempty"`
	BillingProvider          string     `gorm:"type:varchar(20);not null;default:'none'" json:"billing_provider"`
	PlanCode                 *string    `gorm:"type:varchar(32);default:null" json:"plan_code"`
	PayPalSubscriptionID     *string    `gorm:"column:paypal_subscription_id;type:varchar(64);default:null;index" json:"paypal_subscription_id,omitempty"`
	PayPalSubscriptionStatus *string    `gorm:"column:paypal_subscription_status;type:varchar(32);default:null" json:"paypal_subscription_status,omitempty"`
	PendingPlanCode          *string    `gorm:"type:varchar(32);default:null" json:"pending_plan_code,omitempty"`
	PendingPlanEffectiveAt   *time.Time `gorm:"type:timestamp;default:null" json:"pending_plan_effective_at,omitempty"`
	CreatedAt                time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// HasPayPalSubscription reports whether the row is linked to a provider subscription.
func (s *Subscription) HasPayPalSubscription() bool {
	return s.PayPalSubscriptionID != nil && *s.PayPalSubscriptionID != ""
}

// PlanCodeValue returns the plan code or an empty string.
func (s *Subscription) PlanCodeValue() string {
	if s.PlanCode == nil {
		return ""
	}
	return *s.PlanCode
}

// PendingPlanCodeValue returns the pending plan code or an empty string.
func (s *Subscription) PendingPlanCodeValue() string {
	if s.PendingPlanCode == nil {
		return ""
	}
	return *s.PendingPlanCode
}

func (s *Subscription) PayPalSubscriptionStatusValue() string {
	if s.PayPalSubscriptionStatus == nil {
		return ""
	}
	return *s.PayPalSubscriptionStatus
}

// Clone returns a copy that does not share pointer fields with s.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	c.CurrentPeriodStart = cloneTime(s.CurrentPeriodStart)
	c.CurrentPeriodEnd = cloneTime(s.CurrentPeriodEnd)
	c.GracePeriodEnd = cloneTime(s.GracePeriodEnd)
	c.LastAlertSentAt = cloneTime(s.LastAlertSentAt)
	c.PendingPlanEffectiveAt = cloneTime(s.PendingPlanEffectiveAt)
	c.PlanCode = cloneString(s.PlanCode)
	c.PayPalSubscriptionID = cloneString(s.PayPalSubscriptionID)
	c.PayPalSubscriptionStatus = cloneString(s.PayPalSubscriptionStatus)
	c.PendingPlanCode = cloneString(s.PendingPlanCode)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
