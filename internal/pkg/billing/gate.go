package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/BarberFox/app/models"
	"github.com/ManuelReschke/BarberFox/app/repository"
	"github.com/ManuelReschke/BarberFox/internal/pkg/entitlements"
)

// Entitlement is what the gate hands back to an allowed caller.
type Entitlement struct {
	OwnerID      uint
	Subscription *models.Subscription
	State        entitlements.State
}

// EnforceOwner must be called inside the caller's transaction before any
// mutating write on the owner's resources. A blocked subscription yields a
// *PaymentRequiredError. A cancelled ctx fails before the row is read.
func (s *Service) EnforceOwner(ctx context.Context, repos *repository.Repositories, ownerID uint) (*Entitlement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ownerID == 0 {
		return nil, validationError("owner id is required")
	}
	sub, err := s.loadSubscription(repos, ownerID, false)
	if err != nil {
		return nil, err
	}
	state, err := s.evaluate(repos, sub)
	if err != nil {
		return nil, err
	}
	if !state.Allowed() {
		return nil, &PaymentRequiredError{
			OwnerID:          ownerID,
			CurrentPeriodEnd: sub.CurrentPeriodEnd,
			GracePeriodEnd:   sub.GracePeriodEnd,
		}
	}
	return &Entitlement{OwnerID: ownerID, Subscription: sub, State: state}, nil
}

// EnforceShop resolves the shop's owner and gates on the owner's subscription.
func (s *Service) EnforceShop(ctx context.Context, repos *repository.Repositories, shopID uint) (*Entitlement, error) {
	if shopID == 0 {
		return nil, validationError("shop id is required")
	}
	shop, err := repos.Shop.GetByID(shopID)
	if err != nil {
		if isNotFound(err) {
			return nil, notFoundError("shop %d not found", shopID)
		}
		return nil, fmt.Errorf("load shop: %w", err)
	}
	return s.EnforceOwner(ctx, repos, shop.OwnerID)
}

// WithEntitlement opens a transaction, gates on the shop and runs fn inside
// the same transaction, so the check and the write commit together.
func (s *Service) WithEntitlement(ctx context.Context, shopID uint, fn func(repos *repository.Repositories, ent *Entitlement) error) error {
	err := s.store.Transaction(ctx, func(repos *repository.Repositories) error {
		ent, err := s.EnforceShop(ctx, repos, shopID)
		if err != nil {
			return err
		}
		return fn(repos, ent)
	})

	// The blocked outcome rolled back the expiry notification with the rest
	// of the transaction; record it on its own.
	var pr *PaymentRequiredError
	if errors.As(err, &pr) {
		if alertErr := s.recordExpiryAlert(ctx, pr.OwnerID); alertErr != nil {
			log.Warnf("[Billing] Failed to record expiry notification for owner %d: %v", pr.OwnerID, alertErr)
		}
	}
	return err
}

func (s *Service) recordExpiryAlert(ctx context.Context, ownerID uint) error {
	return s.store.Transaction(ctx, func(repos *repository.Repositories) error {
		sub, err := s.loadSubscription(repos, ownerID, false)
		if err != nil {
			return err
		}
		_, err = s.evaluate(repos, sub)
		return err
	})
}
