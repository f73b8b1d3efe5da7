package repository

import (
	"github.com/ManuelReschke/BarberFox/app/models"
	"gorm.io/gorm"
)

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new notification repository instance
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

// Insert stores an unread notification for the user
func (r *notificationRepository) Insert(userID uint, notificationType, title, message string, payload map[string]interface{}) error {
	return models.CreateNotification(r.db, userID, notificationType, title, message, payload)
}
