package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	NotificationTypeSubscriptionGrace   = "subscription_grace"
	NotificationTypeSubscriptionBlocked = "subscription_blocked"
)

type Notification struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	UserID    uint              `gorm:"index" json:"user_id"`
	Type      string            `gorm:"type:varchar(50);index" json:"type"`
	Title     string            `gorm:"type:varchar(200)" json:"title"`
	Message   string            `gorm:"type:text" json:"message"`
	Payload   datatypes.JSONMap `gorm:"type:json" json:"payload,omitempty"`
	IsRead    bool              `gorm:"default:false" json:"is_read"`
	CreatedAt time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// CreateNotification inserts an unread notification for a user.
func CreateNotification(db *gorm.DB, userID uint, notificationType, title, message string, payload map[string]interface{}) error {
	notification := Notification{
		UserID:  userID,
		Type:    notificationType,
		Title:   title,
		Message: message,
		Payload: datatypes.JSONMap(payload),
		IsRead:  false,
	}

	return db.Create(&notification).Error
}
