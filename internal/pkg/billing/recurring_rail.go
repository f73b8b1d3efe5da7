package billing

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/ManuelReschke/BarberFox/app/models"
	"github.com/ManuelReschke/BarberFox/app/repository"
	"github.com/ManuelReschke/BarberFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/BarberFox/internal/pkg/paypal"
)

const activationKeyPrefix = "activation:"

type RecurringCheckout struct {
	SubscriptionID string `json:"subscription_id"`
	Status         string `json:"status"`
	ApproveURL     string `json:"approve_url"`
	PlanCode       string `json:"plan_code"`
}

type RecurringConfirmation struct {
	Subscription   *models.Subscription `json:"subscription"`
	State          entitlements.State   `json:"state"`
	ProviderStatus string               `json:"provider_status"`
	Activated      bool                 `json:"activated"`
	Renewed        bool                 `json:"renewed"`
	Payment        *models.Payment      `json:"payment,omitempty"`
}

type PlanChange struct {
	Subscription *models.Subscription `json:"subscription"`
	PlanCode     string               `json:"pending_plan_code"`
	ApproveURL   string               `json:"approve_url,omitempty"`
}

func activationKey(subscriptionID string) string {
	return activationKeyPrefix + subscriptionID
}

func (s *Service) planForCode(planCode string) (Tier, string, error) {
	tier, ok := TierByCode(planCode)
	if !ok {
		return Tier{}, "", validationError("invalid plan code %q", planCode)
	}
	planID, ok := s.cfg.PlanIDFor(tier.Code)
	if !ok {
		return Tier{}, "", configurationError("PAYPAL_PLAN_%s is not configured", strings.ToUpper(tier.Code))
	}
	return tier, planID, nil
}

// checkPlanFitsUsage rejects plans the owner has already outgrown, and any
// plan at all when usage exceeds the largest tier.
func checkPlanFitsUsage(repos *repository.Repositories, ownerID uint, tier Tier) error {
	usage, err := CountUsage(repos, ownerID)
	if err != nil {
		return err
	}
	if p := SelectTier(usage); p.IsOverLimit {
		return validationError("usage exceeds the largest plan by %d shops and %d professionals",
			p.Overage.Shops, p.Overage.Professionals)
	}
	if !tier.Accommodates(usage) {
		return validationError("usage of %d shops and %d professionals exceeds plan %s (%d shops, %d professionals)",
			usage.ShopCount, usage.ProfessionalCount, tier.Code, tier.Limits.Shops, tier.Limits.Professionals)
	}
	return nil
}

func isStatus(value *string, status string) bool {
	return value != nil && strings.EqualFold(*value, status)
}

// CreateRecurringSubscription creates a PayPal subscription for planCode and
// stores it as pending until PayPal confirms activation.
func (s *Service) CreateRecurringSubscription(ctx context.Context, ownerID uint, planCode string) (*RecurringCheckout, error) {
	if ownerID == 0 {
		return nil, validationError("owner id is required")
	}
	tier, planID, err := s.planForCode(planCode)
	if err != nil {
		return nil, err
	}

	var out *RecurringCheckout
	err = s.store.Transaction(ctx, func(repos *repository.Repositories) error {
		sub, err := s.loadSubscription(repos, ownerID, true)
		if err != nil {
			return err
		}
		if sub.HasPayPalSubscription() && isStatus(sub.PayPalSubscriptionStatus, paypal.SubscriptionStatusActive) {
			return conflictError("owner already has an active recurring subscription; change its plan instead")
		}
		if err := checkPlanFitsUsage(repos, ownerID, tier); err != nil {
			return err
		}

		remote, err := s.provider.CreateSubscription(ctx, paypal.CreateSubscriptionRequest{
			PlanID:    planID,
			CustomID:  strconv.FormatUint(uint64(ownerID), 10),
			ReturnURL: s.cfg.returnURL("/billing/paypal/subscriptions/return"),
			CancelURL: s.cfg.returnURL("/billing/paypal/subscriptions/cancel"),
			BrandName: s.cfg.BrandName,
		})
		if err != nil {
			return providerError("create subscription", err)
		}
		if strings.TrimSpace(remote.ID) == "" {
			return &Error{Kind: KindUpstream, Message: "paypal returned a subscription without id"}
		}

		now := s.now()
		code := tier.Code
		remoteID := remote.ID
		remoteStatus := remote.Status
		sub.PendingPlanCode = &code
		sub.PendingPlanEffectiveAt = &now
		sub.PayPalSubscriptionID = &remoteID
		sub.PayPalSubscriptionStatus = &remoteStatus
		sub.BillingProvider = models.BillingProviderPayPal
		if err := repos.Subscription.Save(sub); err != nil {
			return fmt.Errorf("save pending subscription: %w", err)
		}

		out = &RecurringCheckout{
			SubscriptionID: remote.ID,
			Status:         remote.Status,
			ApproveURL:     remote.ApproveURL(),
			PlanCode:       code,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Infof("[Billing] Created PayPal subscription %s (%s) for owner %d", out.SubscriptionID, out.PlanCode, ownerID)
	return out, nil
}

// ConfirmRecurringSubscription re-reads the provider subscription after payer
// approval. Only an ACTIVE provider status touches the plan or the period;
// any other status is stored as-is.
func (s *Service) ConfirmRecurringSubscription(ctx context.Context, ownerID uint, subscriptionID string) (*RecurringConfirmation, error) {
	if ownerID == 0 {
		return nil, validationError("owner id is required")
	}

	var out *RecurringConfirmation
	err := s.store.Transaction(ctx, func(repos *repository.Repositories) error {
		sub, err := s.loadSubscription(repos, ownerID, true)
		if err != nil {
			return err
		}
		stored := ""
		if sub.PayPalSubscriptionID != nil {
			stored = *sub.PayPalSubscriptionID
		}
		storedStatus := sub.PayPalSubscriptionStatusValue()
		id := strings.TrimSpace(subscriptionID)
		if id == "" {
			id = stored
		}
		if id == "" {
			return validationError("no recurring subscription to confirm")
		}

		remote, err := s.provider.GetSubscription(ctx, id)
		if err != nil {
			return providerError("get subscription", err)
		}
		if id != stored && strings.TrimSpace(remote.CustomID) != strconv.FormatUint(uint64(ownerID), 10) {
			return forbiddenError("subscription %s does not belong to this owner", id)
		}
		if id != stored && stored != "" && strings.EqualFold(storedStatus, paypal.SubscriptionStatusActive) {
			return conflictError("subscription %s is still active; cancel it before confirming %s", stored, id)
		}

		remoteStatus := remote.Status
		sub.PayPalSubscriptionStatus = &remoteStatus
		out = &RecurringConfirmation{ProviderStatus: remote.Status}

		if !strings.EqualFold(remote.Status, paypal.SubscriptionStatusActive) {
			if err := repos.Subscription.Save(sub); err != nil {
				return fmt.Errorf("save subscription status: %w", err)
			}
			out.Subscription = sub
			out.State = entitlements.DeriveState(s.now(), sub.CurrentPeriodEnd, sub.GracePeriodEnd)
			return nil
		}

		if id != stored && stored != "" {
			log.Warnf("[Billing] Owner %d relinked from PayPal subscription %s (%s) to %s", ownerID, stored, storedStatus, id)
		}
		linkedID := id
		sub.PayPalSubscriptionID = &linkedID
		sub.BillingProvider = models.BillingProviderPayPal
		out.Activated = true
		providerPlan, _ := s.cfg.PlanCodeFor(remote.PlanID)

		renewed, payment, err := s.activate(repos, sub, remote, providerPlan)
		if err != nil {
			return err
		}
		out.Subscription = sub
		out.Renewed = renewed
		out.Payment = payment
		out.State = entitlements.DeriveState(s.now(), sub.CurrentPeriodEnd, sub.GracePeriodEnd)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.Renewed {
		s.incr(ctx, CounterPaymentsSubscription)
	}
	return out, nil
}

// activate renews for an ACTIVE provider subscription unless this activation
// or a sale of the same subscription already paid for a period.
func (s *Service) activate(repos *repository.Repositories, sub *models.Subscription, remote *paypal.Subscription, providerPlan string) (bool, *models.Payment, error) {
	key := activationKey(remote.ID)
	if _, err := repos.Payment.GetByProviderPaymentID(models.PaymentProviderPayPalSubscription, key); err == nil {
		return false, nil, s.settleConfirmedPlan(repos, sub, providerPlan)
	} else if !isNotFound(err) {
		return false, nil, fmt.Errorf("check activation: %w", err)
	}

	sales, err := repos.Payment.CountByProviderReference(models.PaymentProviderPayPalSubscription, remote.ID)
	if err != nil {
		return false, nil, fmt.Errorf("count subscription payments: %w", err)
	}
	if sales > 0 {
		return false, nil, s.settleConfirmedPlan(repos, sub, providerPlan)
	}

	if _, err := s.renewLocked(repos, sub, renewal{planCode: confirmedPlanCode(sub, providerPlan), recurring: true}); err != nil {
		return false, nil, err
	}

	amount, currency := s.activationAmount(sub, remote)
	payment := &models.Payment{
		OwnerID:           sub.OwnerID,
		Provider:          models.PaymentProviderPayPalSubscription,
		ProviderPaymentID: key,
		ProviderReference: remote.ID,
		Status:            PaymentStatusActivated,
		Amount:            amount,
		Currency:          currency,
		Metadata: datatypes.JSONMap{
			"subscription_id": remote.ID,
			"plan_id":         remote.PlanID,
			"plan_code":       sub.PlanCodeValue(),
			"source":          "activation",
		},
		PaidAt: s.now().UTC(),
	}
	if remote.BillingInfo != nil && remote.BillingInfo.LastPayment != nil {
		payment.PaidAt = parseProviderTime(remote.BillingInfo.LastPayment.Time, payment.PaidAt)
	}
	if err := repos.Payment.Create(payment); err != nil {
		return false, nil, fmt.Errorf("insert activation payment: %w", err)
	}
	log.Infof("[Billing] Activated PayPal subscription %s for owner %d until %s", remote.ID, sub.OwnerID, formatTime(sub.CurrentPeriodEnd))
	return true, payment, nil
}

// confirmedPlanCode picks the plan an ACTIVE confirmation paid for: the
// provider plan, then the pending plan, then the current plan.
func confirmedPlanCode(sub *models.Subscription, providerPlan string) string {
	if code := normalizePlanCode(providerPlan); code != "" {
		return code
	}
	if code := normalizePlanCode(sub.PendingPlanCodeValue()); code != "" {
		return code
	}
	return sub.PlanCodeValue()
}

// settleConfirmedPlan applies the confirmed plan without renewing.
func (s *Service) settleConfirmedPlan(repos *repository.Repositories, sub *models.Subscription, providerPlan string) error {
	if code := confirmedPlanCode(sub, providerPlan); code != "" {
		sub.PlanCode = &code
	}
	sub.PendingPlanCode = nil
	sub.PendingPlanEffectiveAt = nil
	if err := repos.Subscription.Save(sub); err != nil {
		return fmt.Errorf("save confirmed plan: %w", err)
	}
	return nil
}

func (s *Service) activationAmount(sub *models.Subscription, remote *paypal.Subscription) (decimal.Decimal, string) {
	if remote.BillingInfo != nil && remote.BillingInfo.LastPayment != nil && remote.BillingInfo.LastPayment.Amount.Value != "" {
		lp := remote.BillingInfo.LastPayment.Amount
		return parseAmount(lp.Value), strings.ToUpper(lp.CurrencyCode)
	}
	if tier, ok := TierByCode(sub.PlanCodeValue()); ok {
		if converted, cur, err := s.toSettlement(tier.Price); err == nil {
			return converted, cur
		}
		return tier.Price, s.cfg.BaseCurrency
	}
	return decimal.Zero, s.cfg.SettlementCurrency
}

// CancelRecurringSubscription cancels at PayPal and marks the local status
// CANCELLED. The paid period is kept and runs out naturally.
func (s *Service) CancelRecurringSubscription(ctx context.Context, ownerID uint, reason string) (*models.Subscription, error) {
	if ownerID == 0 {
		return nil, validationError("owner id is required")
	}

	var out *models.Subscription
	err := s.store.Transaction(ctx, func(repos *repository.Repositories) error {
		sub, err := s.loadSubscription(repos, ownerID, true)
		if err != nil {
			return err
		}
		if !sub.HasPayPalSubscription() {
			return validationError("owner has no recurring subscription")
		}
		out = sub
		if isStatus(sub.PayPalSubscriptionStatus, paypal.SubscriptionStatusCancelled) {
			return nil
		}

		if err := s.provider.CancelSubscription(ctx, *sub.PayPalSubscriptionID, reason); err != nil {
			return providerError("cancel subscription", err)
		}
		status := paypal.SubscriptionStatusCancelled
		sub.PayPalSubscriptionStatus = &status
		sub.PendingPlanCode = nil
		sub.PendingPlanEffectiveAt = nil
		if err := repos.Subscription.Save(sub); err != nil {
			return fmt.Errorf("save cancelled subscription: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Infof("[Billing] Cancelled PayPal subscription for owner %d", ownerID)
	return out, nil
}

// ChangeRecurringPlan revises the PayPal subscription to another plan. The new
// plan stays pending until PayPal confirms it; nothing is renewed here.
func (s *Service) ChangeRecurringPlan(ctx context.Context, ownerID uint, planCode string) (*PlanChange, error) {
	if ownerID == 0 {
		return nil, validationError("owner id is required")
	}
	tier, planID, err := s.planForCode(planCode)
	if err != nil {
		return nil, err
	}

	var out *PlanChange
	err = s.store.Transaction(ctx, func(repos *repository.Repositories) error {
		sub, err := s.loadSubscription(repos, ownerID, true)
		if err != nil {
			return err
		}
		if !sub.HasPayPalSubscription() {
			return validationError("owner has no recurring subscription")
		}
		if isStatus(sub.PayPalSubscriptionStatus, paypal.SubscriptionStatusCancelled) ||
			isStatus(sub.PayPalSubscriptionStatus, paypal.SubscriptionStatusExpired) {
			return conflictError("recurring subscription is %s", *sub.PayPalSubscriptionStatus)
		}
		if sub.PlanCodeValue() == tier.Code && sub.PendingPlanCode == nil {
			return validationError("subscription is already on plan %s", tier.Code)
		}
		if err := checkPlanFitsUsage(repos, ownerID, tier); err != nil {
			return err
		}

		res, err := s.provider.ReviseSubscription(ctx, *sub.PayPalSubscriptionID, planID)
		if err != nil {
			return providerError("revise subscription", err)
		}

		code := tier.Code
		effective := s.now()
		if sub.CurrentPeriodEnd != nil && sub.CurrentPeriodEnd.After(effective) {
			effective = *sub.CurrentPeriodEnd
		}
		sub.PendingPlanCode = &code
		sub.PendingPlanEffectiveAt = &effective
		if err := repos.Subscription.Save(sub); err != nil {
			return fmt.Errorf("save pending plan: %w", err)
		}
		out = &PlanChange{Subscription: sub, PlanCode: code, ApproveURL: res.ApproveURL()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
