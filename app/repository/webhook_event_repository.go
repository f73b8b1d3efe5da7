package repository

import (
	"time"

	"github.com/ManuelReschke/BarberFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type webhookEventRepository struct {
	db *gorm.DB
}

// NewWebhookEventRepository creates a new webhook event log repository instance
func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

// CreateIfNotExists records a delivery unless its event id is already known.
// It returns whether the row was created together with the stored row.
func (r *webhookEventRepository) CreateIfNotExists(event *models.PayPalWebhookEvent) (bool, *models.PayPalWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_event_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.PayPalWebhookEvent
	if err := r.db.Where("provider_event_id = ?", event.ProviderEventID).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

// MarkProcessed stamps processed_at and stores the processing error, if any
func (r *webhookEventRepository) MarkProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.PayPalWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
