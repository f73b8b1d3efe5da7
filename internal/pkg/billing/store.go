package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/BarberFox/app/models"
	"github.com/ManuelReschke/BarberFox/app/repository"
	"github.com/ManuelReschke/BarberFox/internal/pkg/entitlements"
)

// Store opens transactions. Every repository handed to fn is bound to the
// same transaction; a non-nil error from fn rolls everything back.
type Store interface {
	Transaction(ctx context.Context, fn func(repos *repository.Repositories) error) error
}

type gormStore struct {
	db *gorm.DB
}

// NewStore creates a Store backed by GORM.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Transaction(ctx context.Context, fn func(repos *repository.Repositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(repository.NewRepositories(tx))
	})
}

// GormTx binds the engine's repositories to a transaction the caller already
// opened, for use with EnforceShop/EnforceOwner inside that transaction.
func GormTx(tx *gorm.DB) *repository.Repositories {
	return repository.NewRepositories(tx)
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// isDuplicateKey needs TranslateError on the gorm config.
func isDuplicateKey(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func newSubscription(ownerID uint, now time.Time) *models.Subscription {
	start, end, grace := entitlements.NextPeriod(now, nil)
	return &models.Subscription{
		OwnerID:            ownerID,
		Status:             models.SubscriptionStatusActive,
		CurrentPeriodStart: &start,
		CurrentPeriodEnd:   &end,
		GracePeriodEnd:     &grace,
		BillingProvider:    models.BillingProviderNone,
	}
}

// loadSubscription returns the owner's row, creating it with a fresh period
// on first access. Concurrent first reads converge on a single row.
func (s *Service) loadSubscription(repos *repository.Repositories, ownerID uint, forUpdate bool) (*models.Subscription, error) {
	sub, err := repos.Subscription.GetByOwnerID(ownerID, forUpdate)
	if err == nil {
		return sub, nil
	}
	if !isNotFound(err) {
		return nil, fmt.Errorf("load subscription: %w", err)
	}

	if _, err := repos.Subscription.CreateIfNotExists(newSubscription(ownerID, s.now())); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	sub, err = repos.Subscription.GetByOwnerID(ownerID, forUpdate)
	if err != nil {
		return nil, fmt.Errorf("reload subscription: %w", err)
	}
	return sub, nil
}
