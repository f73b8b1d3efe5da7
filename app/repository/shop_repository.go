package repository

import (
	"github.com/ManuelReschke/BarberFox/app/models"
	"gorm.io/gorm"
)

type shopRepository struct {
	db *gorm.DB
}

// NewShopRepository creates a new shop repository instance
func NewShopRepository(db *gorm.DB) ShopRepository {
	return &shopRepository{db: db}
}

// GetByID retrieves a non-deleted shop
func (r *shopRepository) GetByID(id uint) (*models.Shop, error) {
	var shop models.Shop
	if err := r.db.First(&shop, id).Error; err != nil {
		return nil, err
	}
	return &shop, nil
}

// ListActiveShopIDs returns the ids of the owner's non-deleted shops
func (r *shopRepository) ListActiveShopIDs(ownerID uint) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.Shop{}).
		Where("owner_id = ?", ownerID).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// CountStaffAtShops counts distinct staff-role users assigned to any of the
// given shops. The owner is never counted here.
func (r *shopRepository) CountStaffAtShops(shopIDs []uint, ownerID uint) (int64, error) {
	if len(shopIDs) == 0 {
		return 0, nil
	}
	var count int64
	err := r.db.Table("shop_staff").
		Joins("JOIN users ON users.id = shop_staff.user_id AND users.deleted_at IS NULL").
		Where("shop_staff.shop_id IN ? AND users.role = ? AND users.id <> ?", shopIDs, models.ROLE_STAFF, ownerID).
		Distinct("shop_staff.user_id").
		Count(&count).Error
	return count, err
}

// IsOwnerAlsoStaff reports whether the owner works as a professional at one
// of their own non-deleted shops.
func (r *shopRepository) IsOwnerAlsoStaff(ownerID uint) (bool, error) {
	var count int64
	err := r.db.Table("shop_staff").
		Joins("JOIN shops ON shops.id = shop_staff.shop_id AND shops.deleted_at IS NULL").
		Where("shops.owner_id = ? AND shop_staff.user_id = ?", ownerID, ownerID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
