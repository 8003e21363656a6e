package repositories

import (
	"context"
	"testing"
	"time"

	"billdesk/internal/models"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomerRepo_GetByEmailIsCaseInsensitive(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	now := time.Now()
	mock.ExpectQuery(`WHERE LOWER\(email\) = \$1`).
		WithArgs("jane@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "email", "phone", "address", "role", "created_by", "created_at", "updated_at"}).
			AddRow(id, "Jane", "jane@example.com", "9876543210", models.Address{City: "Pune"}, "customer", (*uuid.UUID)(nil), now, now))

	repo := NewCustomerRepo(mock)
	customer, err := repo.GetByEmail(context.Background(), "  Jane@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, id, customer.ID)
	assert.Equal(t, models.RoleCustomer, customer.Role)
	assert.Equal(t, "Pune", customer.Address.City)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCustomerRepo_GetByEmailMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`WHERE LOWER\(email\) = \$1`).
		WithArgs("nobody@example.com").
		WillReturnError(pgx.ErrNoRows)

	_, err = NewCustomerRepo(mock).GetByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCustomerRepo_CreateDuplicateEmail(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	customer := &models.Customer{ID: uuid.New(), Name: "Jane", Email: "Jane@Example.com", Role: models.RoleCustomer}
	mock.ExpectQuery(`INSERT INTO customers`).
		WithArgs(customer.ID, "Jane", "jane@example.com", "", customer.Address, "customer", (*uuid.UUID)(nil)).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "customers_email_lower_key"})

	err = NewCustomerRepo(mock).Create(context.Background(), customer)
	assert.ErrorIs(t, err, ErrDuplicateEmail)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepo_GetByIDsSkipsMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	found := uuid.New()
	missing := uuid.New()
	now := time.Now()
	mock.ExpectQuery(`FROM products WHERE id = ANY\(\$1\)`).
		WithArgs([]uuid.UUID{found, missing}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "description", "price", "quantity", "low_stock_threshold", "sku", "is_active", "created_at", "updated_at"}).
			AddRow(found, "Widget", "Blue", decimal.NewFromInt(100), 5, 10, (*string)(nil), true, now, now))

	products, err := NewProductRepo(mock).GetByIDs(context.Background(), []uuid.UUID{found, missing})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, 5, products[found].Quantity)
	assert.True(t, products[found].IsLowStock())
	_, ok := products[missing]
	assert.False(t, ok)
}
