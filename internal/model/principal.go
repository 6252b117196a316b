package model

// Role is the role claim of an authenticated user.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleShopOwner Role = "shop_owner"
)

// Principal is the authenticated caller of a protected operation.
type Principal struct {
	UserID string
	Role   Role
}

// CanManage reports whether p may change data belonging to shop.
func (p Principal) CanManage(shop *Shop) bool {
	switch p.Role {
	case RoleAdmin:
		return true
	case RoleShopOwner:
		return shop != nil && shop.OwnerID != "" && shop.OwnerID == p.UserID
	default:
		return false
	}
}
