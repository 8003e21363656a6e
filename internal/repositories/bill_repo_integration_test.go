package repositories_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"billdesk/internal/models"
	"billdesk/internal/repositories"
	"billdesk/testhelpers"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPendingBill(customer *models.Customer, product *models.Product, quantity int, createdAt time.Time) *models.Bill {
	line := models.LineTotal(quantity, product.Price)
	return &models.Bill{
		ID:         uuid.New(),
		CustomerID: customer.ID,
		Items: []models.LineItem{{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    quantity,
			UnitPrice:   product.Price,
			LineTotal:   line,
		}},
		Subtotal:       line,
		TaxRate:        decimal.Zero,
		TaxAmount:      decimal.Zero,
		DiscountAmount: decimal.Zero,
		TotalAmount:    line,
		PaymentStatus:  models.PaymentStatusPending,
		PaymentMethod:  models.PaymentMethodCash,
		DueDate:        models.DueDateFrom(createdAt),
		CreatedBy:      customer.ID,
		CreatedAt:      createdAt,
	}
}

func TestBillRepo_Postgres(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	defer db.Cleanup()
	ctx := context.Background()

	customer := testhelpers.NewCustomer("Jane", uuid.NewString()+"@example.com")
	testhelpers.InsertCustomer(t, db, customer)
	product := testhelpers.NewProduct("Widget", "100", 3)
	testhelpers.InsertProduct(t, db, product)

	bills := repositories.NewBillRepo(db.Pool)
	products := repositories.NewProductRepo(db.Pool)
	createdAt := time.Now().UTC().Truncate(time.Second)

	first := newPendingBill(customer, product, 2, createdAt)
	require.NoError(t, bills.CreateWithStock(ctx, first))
	assert.True(t, models.ValidBillNumber(first.BillNumber), first.BillNumber)
	assert.True(t, strings.HasPrefix(first.BillNumber, "INV-"+createdAt.Format("20060102")))

	stored, err := products.GetByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Quantity)

	t.Run("shortage rolls back", func(t *testing.T) {
		err := bills.CreateWithStock(ctx, newPendingBill(customer, product, 2, createdAt))
		assert.ErrorIs(t, err, repositories.ErrInsufficientStock)

		stored, err := products.GetByID(ctx, product.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.Quantity)
	})

	t.Run("duplicate number rejected", func(t *testing.T) {
		dup := newPendingBill(customer, product, 1, createdAt)
		dup.BillNumber = first.BillNumber
		assert.ErrorIs(t, bills.CreateWithStock(ctx, dup), repositories.ErrDuplicateBillNumber)

		stored, err := products.GetByID(ctx, product.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.Quantity)
	})

	t.Run("generated numbers move past explicit ones", func(t *testing.T) {
		stock := testhelpers.NewProduct("Gadget", "10", 5)
		testhelpers.InsertProduct(t, db, stock)
		firstSeq, ok := models.BillNumberSequence(first.BillNumber)
		require.True(t, ok)

		explicit := newPendingBill(customer, stock, 1, createdAt)
		explicit.BillNumber = models.FormatBillNumber(createdAt, firstSeq+5)
		require.NoError(t, bills.CreateWithStock(ctx, explicit))

		generated := newPendingBill(customer, stock, 1, createdAt)
		require.NoError(t, bills.CreateWithStock(ctx, generated))
		assert.Equal(t, models.FormatBillNumber(createdAt, firstSeq+6), generated.BillNumber)
	})

	t.Run("paid bills cannot be reopened by a later payment", func(t *testing.T) {
		refunded := newPendingBill(customer, product, 1, createdAt)
		require.NoError(t, bills.CreateWithStock(ctx, refunded))
		require.NoError(t, bills.UpdatePayment(ctx, refunded.ID, models.PaymentStatusRefunded, models.PaymentMethodGateway, nil))

		won, err := bills.MarkPaid(ctx, refunded.ID, "pay_replayed", createdAt)
		require.NoError(t, err)
		assert.False(t, won)

		loaded, err := bills.GetByID(ctx, refunded.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusRefunded, loaded.PaymentStatus)
	})

	t.Run("mark paid once", func(t *testing.T) {
		won, err := bills.MarkPaid(ctx, first.ID, "pay_001", createdAt)
		require.NoError(t, err)
		assert.True(t, won)

		won, err = bills.MarkPaid(ctx, first.ID, "pay_002", createdAt)
		require.NoError(t, err)
		assert.False(t, won)

		loaded, err := bills.GetByID(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusPaid, loaded.PaymentStatus)
		require.NotNil(t, loaded.GatewayPaymentID)
		assert.Equal(t, "pay_001", *loaded.GatewayPaymentID)
		require.Len(t, loaded.Items, 1)
		assert.True(t, decimal.NewFromInt(200).Equal(loaded.TotalAmount))
	})
}
