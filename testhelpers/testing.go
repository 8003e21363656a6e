package testhelpers

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"billdesk/internal/models"
	"billdesk/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// TestDB holds the database connection for testing
type TestDB struct {
	Pool    *pgxpool.Pool
	Cleanup func()
}

// SetupTestDB connects to TEST_DATABASE_URL and applies the schema. The
// test is skipped when the variable is unset.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := database.NewPool(ctx, connString)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := database.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("Failed to apply schema: %v", err)
	}

	return &TestDB{
		Pool: pool,
		Cleanup: func() {
			pool.Close()
		},
	}
}

// InsertProduct stores p in the test database.
func InsertProduct(t *testing.T, db *TestDB, p *models.Product) {
	t.Helper()

	query := `
		INSERT INTO products (id, name, description, price, quantity, low_stock_threshold, sku, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := db.Pool.Exec(context.Background(), query, p.ID, p.Name, p.Description, p.Price, p.Quantity,
		p.LowStockThreshold, p.SKU, p.IsActive, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		t.Fatalf("Failed to create test product: %v", err)
	}
}

// InsertCustomer stores c in the test database.
func InsertCustomer(t *testing.T, db *TestDB, c *models.Customer) {
	t.Helper()

	query := `
		INSERT INTO customers (id, name, email, phone, address, role, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := db.Pool.Exec(context.Background(), query, c.ID, c.Name, c.Email, c.Phone, c.Address,
		string(c.Role), c.CreatedBy, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		t.Fatalf("Failed to create test customer: %v", err)
	}
}

// NewProduct returns an active product with the given price and stock.
func NewProduct(name, price string, quantity int) *models.Product {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.Product{
		ID:                uuid.New(),
		Name:              name,
		Description:       name + " description",
		Price:             decimal.RequireFromString(price),
		Quantity:          quantity,
		LowStockThreshold: models.DefaultLowStockThreshold,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// NewCustomer returns a customer record with a lowercase email.
func NewCustomer(name, email string) *models.Customer {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.Customer{
		ID:        uuid.New(),
		Name:      name,
		Email:     models.NormalizeEmail(email),
		Phone:     "9876543210",
		Address:   models.Address{Street: "12 Market Road", City: "Pune", State: "MH", ZipCode: "411001", Country: "India"},
		Role:      models.RoleCustomer,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func Admin() models.Principal {
	return models.Principal{ID: uuid.New(), Role: models.RoleAdmin}
}

func CustomerPrincipal(id uuid.UUID) models.Principal {
	return models.Principal{ID: id, Role: models.RoleCustomer}
}

// Clock is a settable time source for services that take a now func.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
