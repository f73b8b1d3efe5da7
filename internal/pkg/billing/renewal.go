package billing

import (
	"fmt"

	"github.com/ManuelReschke/BarberFox/app/models"
	"github.com/ManuelReschke/BarberFox/app/repository"
	"github.com/ManuelReschke/BarberFox/internal/pkg/entitlements"
)

type renewal struct {
	// planCode, when set, becomes the subscription's plan.
	planCode string
	// recurring resolves the plan as pending, then usage tier, then current,
	// and clears the pending change.
	recurring bool
}

// renew extends the owner's period by one month from the later of now and
// the current period end. It locks the row and must run in the same
// transaction as the ledger insert that paid for it.
func (s *Service) renew(repos *repository.Repositories, ownerID uint, r renewal) (*models.Subscription, error) {
	sub, err := s.loadSubscription(repos, ownerID, true)
	if err != nil {
		return nil, err
	}
	return s.renewLocked(repos, sub, r)
}

// renewLocked renews a row the caller already holds a lock on.
func (s *Service) renewLocked(repos *repository.Repositories, sub *models.Subscription, r renewal) (*models.Subscription, error) {
	var err error
	start, end, grace := entitlements.NextPeriod(s.now(), sub.CurrentPeriodEnd)
	sub.CurrentPeriodStart = &start
	sub.CurrentPeriodEnd = &end
	sub.GracePeriodEnd = &grace
	sub.Status = models.SubscriptionStatusActive

	code := normalizePlanCode(r.planCode)
	if r.recurring {
		if code == "" {
			code, err = s.resolveRecurringPlan(repos, sub)
			if err != nil {
				return nil, err
			}
		}
		sub.BillingProvider = models.BillingProviderPayPal
		sub.PendingPlanCode = nil
		sub.PendingPlanEffectiveAt = nil
	}
	if code != "" {
		sub.PlanCode = &code
	}

	if err := repos.Subscription.Save(sub); err != nil {
		return nil, fmt.Errorf("save renewed subscription: %w", err)
	}
	return sub, nil
}

func (s *Service) resolveRecurringPlan(repos *repository.Repositories, sub *models.Subscription) (string, error) {
	if pending := normalizePlanCode(sub.PendingPlanCodeValue()); pending != "" {
		return pending, nil
	}
	usage, err := CountUsage(repos, sub.OwnerID)
	if err != nil {
		return "", err
	}
	if p := SelectTier(usage); p.Tier != nil {
		return p.Tier.Code, nil
	}
	return sub.PlanCodeValue(), nil
}
