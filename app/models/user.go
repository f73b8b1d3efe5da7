package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	ROLE_CLIENT = "client"
	ROLE_OWNER  = "owner"
	ROLE_STAFF  = "staff"
	ROLE_ADMIN  = "admin"
)

// User is owned by the account service; the billing engine only reads role
// and identity.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"type:varchar(150)" json:"name"`
	Email     string         `gorm:"uniqueIndex;type:varchar(200)" json:"email"`
	Role      string         `gorm:"type:varchar(20);default:'client';index" json:"role"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
