package repository

import (
	"github.com/ManuelReschke/BarberFox/app/models"
	"gorm.io/gorm"
)

type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment ledger repository instance
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

// Create appends a ledger row
func (r *paymentRepository) Create(payment *models.Payment) error {
	return r.db.Create(payment).Error
}

// GetByProviderPaymentID looks a ledger row up by its idempotency key
func (r *paymentRepository) GetByProviderPaymentID(provider, providerPaymentID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.Where("provider = ? AND provider_payment_id = ?", provider, providerPaymentID).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// CountByProviderReference counts ledger rows tied to one provider order or subscription
func (r *paymentRepository) CountByProviderReference(provider, reference string) (int64, error) {
	var count int64
	err := r.db.Model(&models.Payment{}).
		Where("provider = ? AND provider_reference = ?", provider, reference).
		Count(&count).Error
	return count, err
}

// ListByOwnerID returns the owner's ledger, newest first
func (r *paymentRepository) ListByOwnerID(ownerID uint, offset, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.Where("owner_id = ?", ownerID).
		Order("paid_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&payments).Error
	return payments, err
}

// CountByOwnerID counts the owner's ledger rows
func (r *paymentRepository) CountByOwnerID(ownerID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Payment{}).Where("owner_id = ?", ownerID).Count(&count).Error
	return count, err
}
