package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Address struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	ZipCode string `json:"zipCode,omitempty"`
	Country string `json:"country,omitempty"`
}

// Lines returns the non-empty address lines for display.
func (a Address) Lines() []string {
	var lines []string
	if a.Street != "" {
		lines = append(lines, a.Street)
	}
	cityLine := strings.TrimSpace(strings.Join(nonEmpty(a.City, a.State, a.ZipCode), ", "))
	if cityLine != "" {
		lines = append(lines, cityLine)
	}
	if a.Country != "" {
		lines = append(lines, a.Country)
	}
	return lines
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

type Customer struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	Email     string     `json:"email" db:"email"`
	Phone     string     `json:"phone,omitempty" db:"phone"`
	Address   Address    `json:"address" db:"address"`
	Role      Role       `json:"role" db:"role"`
	CreatedBy *uuid.UUID `json:"createdBy,omitempty" db:"created_by"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time  `json:"updatedAt" db:"updated_at"`
}

// CustomerInfo is ad hoc contact data supplied with a bill request.
type CustomerInfo struct {
	Name    string  `json:"name" validate:"required,max=100"`
	Email   string  `json:"email" validate:"required,email"`
	Phone   string  `json:"phone" validate:"omitempty,len=10,numeric"`
	Address Address `json:"address"`
}

// NormalizeEmail is the dedupe key for customers.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
