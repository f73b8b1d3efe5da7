package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/ManuelReschke/BarberFox/app/models"
	"github.com/ManuelReschke/BarberFox/app/repository"
	"github.com/ManuelReschke/BarberFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/BarberFox/internal/pkg/paypal"
)

const (
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusActivated = "ACTIVATED"
	PaymentStatusApproved  = "APPROVED"
)

// OrderCheckout is a created one-off order awaiting payer approval.
type OrderCheckout struct {
	OrderID      string          `json:"order_id"`
	Status       string          `json:"status"`
	ApproveURL   string          `json:"approve_url"`
	PlanCode     string          `json:"plan_code"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	BaseAmount   decimal.Decimal `json:"base_amount"`
	BaseCurrency string          `json:"base_currency"`
}

// PaymentResult is returned by every rail that renews.
type PaymentResult struct {
	Subscription *models.Subscription `json:"subscription"`
	State        entitlements.State   `json:"state"`
	Payment      *models.Payment      `json:"payment,omitempty"`
	Duplicate    bool                 `json:"duplicate"`
}

func orderCustomID(ownerID uint, planCode string) string {
	return fmt.Sprintf("%d|%s", ownerID, planCode)
}

func parseOrderCustomID(customID string) (uint, string, bool) {
	owner, plan, _ := strings.Cut(strings.TrimSpace(customID), "|")
	id, err := strconv.ParseUint(owner, 10, 64)
	if err != nil || id == 0 {
		return 0, "", false
	}
	return uint(id), normalizePlanCode(plan), true
}

func parseProviderTime(raw string, fallback time.Time) time.Time {
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw)); err == nil {
		return t.UTC()
	}
	return fallback
}

func parseAmount(raw string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// CreateOrder prices the owner's current usage tier, converts it to the
// settlement currency and creates a PayPal order for it.
func (s *Service) CreateOrder(ctx context.Context, ownerID uint) (*OrderCheckout, error) {
	if ownerID == 0 {
		return nil, validationError("owner id is required")
	}

	var pricing Pricing
	err := s.store.Transaction(ctx, func(repos *repository.Repositories) error {
		usage, err := CountUsage(repos, ownerID)
		if err != nil {
			return err
		}
		pricing = SelectTier(usage)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if pricing.IsOverLimit || pricing.Tier == nil {
		return nil, validationError("current usage exceeds the largest plan")
	}

	amount, currency, err := s.toSettlement(*pricing.Total)
	if err != nil {
		return nil, err
	}

	order, err := s.provider.CreateOrder(ctx, paypal.CreateOrderRequest{
		Amount:      paypal.NewMoney(currency, amount),
		CustomID:    orderCustomID(ownerID, pricing.Tier.Code),
		Description: fmt.Sprintf("%s plan - 30 days", pricing.Tier.Name),
		ReturnURL:   s.cfg.returnURL("/billing/paypal/return"),
		CancelURL:   s.cfg.returnURL("/billing/paypal/cancel"),
		BrandName:   s.cfg.BrandName,
	})
	if err != nil {
		return nil, providerError("create order", err)
	}
	log.Infof("[Billing] Created PayPal order %s for owner %d (%s %s)", order.ID, ownerID, amount.StringFixed(2), currency)

	return &OrderCheckout{
		OrderID:      order.ID,
		Status:       order.Status,
		ApproveURL:   order.ApproveURL(),
		PlanCode:     pricing.Tier.Code,
		Amount:       amount,
		Currency:     currency,
		BaseAmount:   *pricing.Total,
		BaseCurrency: s.cfg.BaseCurrency,
	}, nil
}

// CaptureOrder captures an approved order and, once PayPal reports it
// COMPLETED, renews the owner and writes one ledger row keyed by the capture
// id. Re-capturing an already recorded order is a no-op.
func (s *Service) CaptureOrder(ctx context.Context, ownerID uint, orderID string) (*PaymentResult, error) {
	orderID = strings.TrimSpace(orderID)
	if ownerID == 0 || orderID == "" {
		return nil, validationError("owner id and order id are required")
	}

	var out *PaymentResult
	err := s.store.Transaction(ctx, func(repos *repository.Repositories) error {
		recorded, err := repos.Payment.CountByProviderReference(models.PaymentProviderPayPal, orderID)
		if err != nil || recorded == 0 {
			return err
		}
		out, err = s.duplicateResult(repos, ownerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out != nil {
		return out, nil
	}

	order, err := s.provider.CaptureOrder(ctx, orderID)
	if err != nil {
		return nil, providerError("capture order", err)
	}
	if order.Status != paypal.OrderStatusCompleted {
		return nil, validationError("order %s is not completed (status %s)", orderID, order.Status)
	}
	capture := order.FirstCapture()
	if capture == nil || capture.ID == "" {
		return nil, &Error{Kind: KindUpstream, Message: "paypal capture response has no capture"}
	}

	customID := capture.CustomID
	if customID == "" {
		customID = order.CustomID()
	}
	orderOwner, planCode, ok := parseOrderCustomID(customID)
	if !ok || orderOwner != ownerID {
		return nil, forbiddenError("order %s does not belong to this owner", orderID)
	}

	// The webhook for this capture may have been applied while PayPal answered.
	err = s.store.Transaction(ctx, func(repos *repository.Repositories) error {
		var err error
		out, err = s.recordPayment(repos, ownerID, renewal{planCode: planCode}, &models.Payment{
			Provider:          models.PaymentProviderPayPal,
			ProviderPaymentID: capture.ID,
			ProviderReference: orderID,
			Status:            PaymentStatusCompleted,
			Amount:            parseAmount(capture.Amount.Value),
			Currency:          strings.ToUpper(capture.Amount.CurrencyCode),
			Metadata: datatypes.JSONMap{
				"order_id":  orderID,
				"plan_code": planCode,
				"source":    "capture",
			},
			PaidAt: parseProviderTime(capture.CreateTime, s.now().UTC()),
		})
		return err
	})
	if errors.Is(err, errPaymentRecorded) {
		err = s.store.Transaction(ctx, func(repos *repository.Repositories) error {
			var err error
			out, err = s.duplicateResult(repos, ownerID)
			return err
		})
	}
	if err != nil {
		return nil, err
	}
	if !out.Duplicate {
		s.incr(ctx, CounterPaymentsPayPal)
	}
	return out, nil
}

// errPaymentRecorded means a concurrent transaction inserted the same ledger
// row first. The caller's transaction must roll back.
var errPaymentRecorded = &Error{Kind: KindConflict, Message: "payment already recorded"}

// recordPayment renews and inserts the ledger row unless the idempotency key
// (provider, provider_payment_id) is already present. The subscription row is
// locked before the key is read so concurrent rails serialize on it.
func (s *Service) recordPayment(repos *repository.Repositories, ownerID uint, r renewal, payment *models.Payment) (*PaymentResult, error) {
	sub, err := s.loadSubscription(repos, ownerID, true)
	if err != nil {
		return nil, err
	}

	existing, err := repos.Payment.GetByProviderPaymentID(payment.Provider, payment.ProviderPaymentID)
	if err == nil && existing != nil {
		return &PaymentResult{
			Subscription: sub,
			State:        entitlements.DeriveState(s.now(), sub.CurrentPeriodEnd, sub.GracePeriodEnd),
			Payment:      existing,
			Duplicate:    true,
		}, nil
	}
	if err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("check payment idempotency: %w", err)
	}

	sub, err = s.renewLocked(repos, sub, r)
	if err != nil {
		return nil, err
	}
	payment.OwnerID = ownerID
	if err := repos.Payment.Create(payment); err != nil {
		if isDuplicateKey(err) {
			log.Warnf("[Billing] Payment %s %s was recorded concurrently", payment.Provider, payment.ProviderPaymentID)
			return nil, errPaymentRecorded
		}
		return nil, fmt.Errorf("insert payment: %w", err)
	}
	log.Infof("[Billing] Renewed owner %d until %s via %s %s", ownerID, formatTime(sub.CurrentPeriodEnd), payment.Provider, payment.ProviderPaymentID)

	return &PaymentResult{
		Subscription: sub,
		State:        entitlements.DeriveState(s.now(), sub.CurrentPeriodEnd, sub.GracePeriodEnd),
		Payment:      payment,
	}, nil
}

func (s *Service) duplicateResult(repos *repository.Repositories, ownerID uint) (*PaymentResult, error) {
	sub, err := s.loadSubscription(repos, ownerID, false)
	if err != nil {
		return nil, err
	}
	return &PaymentResult{
		Subscription: sub,
		State:        entitlements.DeriveState(s.now(), sub.CurrentPeriodEnd, sub.GracePeriodEnd),
		Duplicate:    true,
	}, nil
}
