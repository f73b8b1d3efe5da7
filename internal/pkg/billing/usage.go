package billing

import (
	"fmt"

	"github.com/ManuelReschke/BarberFox/app/repository"
)

// UsageSnapshot is computed live and never persisted.
type UsageSnapshot struct {
	ShopCount         int `json:"shop_count"`
	ProfessionalCount int `json:"professional_count"`
}

// CountUsage counts the owner's non-deleted shops and the distinct staff
// working at them, plus one when the owner works at one of their own shops.
func CountUsage(repos *repository.Repositories, ownerID uint) (UsageSnapshot, error) {
	shopIDs, err := repos.Shop.ListActiveShopIDs(ownerID)
	if err != nil {
		return UsageSnapshot{}, fmt.Errorf("list active shops: %w", err)
	}
	if len(shopIDs) == 0 {
		return UsageSnapshot{}, nil
	}

	staff, err := repos.Shop.CountStaffAtShops(shopIDs, ownerID)
	if err != nil {
		return UsageSnapshot{}, fmt.Errorf("count staff: %w", err)
	}
	ownerWorks, err := repos.Shop.IsOwnerAlsoStaff(ownerID)
	if err != nil {
		return UsageSnapshot{}, fmt.Errorf("check owner staff assignment: %w", err)
	}

	pros := int(staff)
	if ownerWorks {
		pros++
	}
	return UsageSnapshot{ShopCount: len(shopIDs), ProfessionalCount: pros}, nil
}
