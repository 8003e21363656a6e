package models

import "github.com/google/uuid"

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

// Principal is the authenticated caller handed to the billing core.
type Principal struct {
	ID   uuid.UUID
	Role Role
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// CanAccessBill reports whether p may read or pay b.
func (p Principal) CanAccessBill(b *Bill) bool {
	if p.IsAdmin() {
		return true
	}
	return b.CustomerID == p.ID || b.CreatedBy == p.ID
}
