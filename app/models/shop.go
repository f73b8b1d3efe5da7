package models

import (
	"time"

	"gorm.io/gorm"
)

// Shop is a barbershop location belonging to an owner.
type Shop struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	OwnerID   uint           `gorm:"not null;index" json:"owner_id"`
	Name      string         `gorm:"type:varchar(150)" json:"name"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// ShopStaff assigns a user to a shop as a working professional.
type ShopStaff struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ShopID    uint      `gorm:"not null;index:ux_shop_staff_shop_user,unique,priority:1" json:"shop_id"`
	UserID    uint      `gorm:"not null;index:ux_shop_staff_shop_user,unique,priority:2;index" json:"user_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (ShopStaff) TableName() string {
	return "shop_staff"
}
