package repository

import (
	"time"

	"github.com/ManuelReschke/BarberFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository instance
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) query(forUpdate bool) *gorm.DB {
	if forUpdate {
		return r.db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.db
}

// GetByOwnerID retrieves the owner's subscription, optionally locking the row
func (r *subscriptionRepository) GetByOwnerID(ownerID uint, forUpdate bool) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.query(forUpdate).Where("owner_id = ?", ownerID).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetByPayPalSubscriptionID retrieves the subscription linked to a provider subscription id
func (r *subscriptionRepository) GetByPayPalSubscriptionID(paypalSubscriptionID string, forUpdate bool) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.query(forUpdate).Where("paypal_subscription_id = ?", paypalSubscriptionID).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

// CreateIfNotExists inserts the row unless the owner already has one.
// It reports whether a row was inserted.
func (r *subscriptionRepository) CreateIfNotExists(sub *models.Subscription) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}},
		DoNothing: true,
	}).Create(sub)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// Save persists all fields of the subscription
func (r *subscriptionRepository) Save(sub *models.Subscription) error {
	return r.db.Save(sub).Error
}

// UpdateLastAlertSentAt stamps only the alert column so a concurrent renewal
// of the same row is never overwritten.
func (r *subscriptionRepository) UpdateLastAlertSentAt(id uint, at time.Time) error {
	return r.db.Model(&models.Subscription{}).Where("id = ?", id).Update("last_alert_sent_at", at).Error
}
