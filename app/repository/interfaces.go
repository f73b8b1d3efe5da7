package repository

import (
	"time"

	"github.com/ManuelReschke/BarberFox/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user lookups
type UserRepository interface {
	GetByID(id uint) (*models.User, error)
	ListByRole(role string) ([]models.User, error)
}

// ShopRepository defines the read-only shop/staff queries the billing engine needs
type ShopRepository interface {
	GetByID(id uint) (*models.Shop, error)
	ListActiveShopIDs(ownerID uint) ([]uint, error)
	CountStaffAtShops(shopIDs []uint, ownerID uint) (int64, error)
	IsOwnerAlsoStaff(ownerID uint) (bool, error)
}

// SubscriptionRepository defines the interface for per-owner subscription rows
type SubscriptionRepository interface {
	GetByOwnerID(ownerID uint, forUpdate bool) (*models.Subscription, error)
	GetByPayPalSubscriptionID(paypalSubscriptionID string, forUpdate bool) (*models.Subscription, error)
	CreateIfNotExists(sub *models.Subscription) (bool, error)
	Save(sub *models.Subscription) error
	UpdateLastAlertSentAt(id uint, at time.Time) error
}

// PaymentRepository defines the interface for the append-only payment ledger
type PaymentRepository interface {
	Create(payment *models.Payment) error
	GetByProviderPaymentID(provider, providerPaymentID string) (*models.Payment, error)
	CountByProviderReference(provider, reference string) (int64, error)
	ListByOwnerID(ownerID uint, offset, limit int) ([]models.Payment, error)
	CountByOwnerID(ownerID uint) (int64, error)
}

// ManualReportRepository defines the interface for bank-transfer reports
type ManualReportRepository interface {
	Create(report *models.ManualPaymentReport) error
	GetByID(id uint, forUpdate bool) (*models.ManualPaymentReport, error)
	Save(report *models.ManualPaymentReport) error
	List(status string, offset, limit int) ([]models.ManualPaymentReport, error)
	Count(status string) (int64, error)
}

// WebhookEventRepository defines the interface for the provider webhook log
type WebhookEventRepository interface {
	CreateIfNotExists(event *models.PayPalWebhookEvent) (bool, *models.PayPalWebhookEvent, error)
	MarkProcessed(id uint, processingError string) error
}

// NotificationRepository defines the interface for in-app notifications
type NotificationRepository interface {
	Insert(userID uint, notificationType, title, message string, payload map[string]interface{}) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	User         UserRepository
	Shop         ShopRepository
	Subscription SubscriptionRepository
	Payment      PaymentRepository
	ManualReport ManualReportRepository
	WebhookEvent WebhookEventRepository
	Notification NotificationRepository
}

// NewRepositories creates a new instance of all repositories. Passing a
// transaction handle binds every repository to that transaction.
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		Shop:         NewShopRepository(db),
		Subscription: NewSubscriptionRepository(db),
		Payment:      NewPaymentRepository(db),
		ManualReport: NewManualReportRepository(db),
		WebhookEvent: NewWebhookEventRepository(db),
		Notification: NewNotificationRepository(db),
	}
}
