package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/BarberFox/app/repository"
	"github.com/ManuelReschke/BarberFox/internal/pkg/paypal"
)

const planSyncTimeout = 30 * time.Second

// PlanSyncScheduler queues a background plan sync. The job queue implements it.
type PlanSyncScheduler interface {
	SchedulePlanSync(ctx context.Context, ownerID uint, subscriptionID string) error
}

type planSyncTarget struct {
	ownerID        uint
	subscriptionID string
}

// schedulePlanSync never fails the caller. Without a scheduler, or when
// enqueueing fails, the sync runs in a goroutine.
func (s *Service) schedulePlanSync(ctx context.Context, t planSyncTarget) {
	if s.planSync != nil {
		err := s.planSync.SchedulePlanSync(ctx, t.ownerID, t.subscriptionID)
		if err == nil {
			return
		}
		log.Warnf("[Billing] Failed to enqueue plan sync for %s: %v", t.subscriptionID, err)
	}
	go func() {
		bg, cancel := context.WithTimeout(context.Background(), planSyncTimeout)
		defer cancel()
		if err := s.SyncPlanFromProvider(bg, t.ownerID, t.subscriptionID); err != nil {
			log.Warnf("[Billing] Plan sync for %s failed: %v", t.subscriptionID, err)
		}
	}()
}

// SyncPlanFromProvider refreshes the stored provider status and, only when
// PayPal reports ACTIVE, the plan code mapped from PayPal's plan id.
func (s *Service) SyncPlanFromProvider(ctx context.Context, ownerID uint, subscriptionID string) error {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if ownerID == 0 || subscriptionID == "" {
		return validationError("owner id and subscription id are required")
	}

	remote, err := s.provider.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return providerError("get subscription", err)
	}

	return s.store.Transaction(ctx, func(repos *repository.Repositories) error {
		sub, err := s.loadSubscription(repos, ownerID, true)
		if err != nil {
			return err
		}
		if sub.PayPalSubscriptionID == nil || *sub.PayPalSubscriptionID != subscriptionID {
			log.Infof("[Billing] Skipping plan sync: owner %d is no longer linked to %s", ownerID, subscriptionID)
			return nil
		}

		status := remote.Status
		sub.PayPalSubscriptionStatus = &status
		if strings.EqualFold(remote.Status, paypal.SubscriptionStatusActive) {
			if code, ok := s.cfg.PlanCodeFor(remote.PlanID); ok {
				sub.PlanCode = &code
				if sub.PendingPlanCodeValue() == code {
					sub.PendingPlanCode = nil
					sub.PendingPlanEffectiveAt = nil
				}
			}
		}
		if err := repos.Subscription.Save(sub); err != nil {
			return fmt.Errorf("save synced plan: %w", err)
		}
		return nil
	})
}
