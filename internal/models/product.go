package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const DefaultLowStockThreshold = 10

type Product struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	Name              string          `json:"name" db:"name"`
	Description       string          `json:"description,omitempty" db:"description"`
	Price             decimal.Decimal `json:"price" db:"price"`
	Quantity          int             `json:"quantity" db:"quantity"`
	LowStockThreshold int             `json:"lowStockThreshold" db:"low_stock_threshold"`
	SKU               *string         `json:"sku,omitempty" db:"sku"`
	IsActive          bool            `json:"isActive" db:"is_active"`
	CreatedAt         time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time       `json:"updatedAt" db:"updated_at"`
}

func (p *Product) IsLowStock() bool {
	return p.Quantity <= p.LowStockThreshold
}
