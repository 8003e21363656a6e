package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputeTotals(t *testing.T) {
	tests := []struct {
		name     string
		items    []LineItem
		taxRate  string
		discount string
		subtotal string
		tax      string
		total    string
	}{
		{
			name:     "three units at 100 with 18% tax and 10 off",
			items:    []LineItem{{Quantity: 3, UnitPrice: dec("100")}},
			taxRate:  "18",
			discount: "10",
			subtotal: "300",
			tax:      "54",
			total:    "344",
		},
		{
			name:     "fractional prices round half away from zero",
			items:    []LineItem{{Quantity: 3, UnitPrice: dec("0.335")}, {Quantity: 1, UnitPrice: dec("10.005")}},
			taxRate:  "5",
			discount: "0",
			subtotal: "11.02",
			tax:      "0.55",
			total:    "11.57",
		},
		{
			name:     "no tax",
			items:    []LineItem{{Quantity: 2, UnitPrice: dec("49.99")}},
			taxRate:  "0",
			discount: "0.98",
			subtotal: "99.98",
			tax:      "0",
			total:    "99",
		},
		{
			name:     "discount larger than amount goes negative",
			items:    []LineItem{{Quantity: 1, UnitPrice: dec("10")}},
			taxRate:  "0",
			discount: "15",
			subtotal: "10",
			tax:      "0",
			total:    "-5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTotals(tt.items, dec(tt.taxRate), dec(tt.discount))
			assert.True(t, dec(tt.subtotal).Equal(got.Subtotal), "subtotal %s", got.Subtotal)
			assert.True(t, dec(tt.tax).Equal(got.TaxAmount), "tax %s", got.TaxAmount)
			assert.True(t, dec(tt.total).Equal(got.TotalAmount), "total %s", got.TotalAmount)
		})
	}
}

func TestApplyTotals_IgnoresSuppliedAmounts(t *testing.T) {
	bill := &Bill{
		Items: []LineItem{
			{Quantity: 2, UnitPrice: dec("12.50"), LineTotal: dec("999")},
			{Quantity: 1, UnitPrice: dec("5"), LineTotal: dec("0")},
		},
		TaxRate:        dec("10"),
		DiscountAmount: dec("1"),
		Subtotal:       dec("1"),
		TotalAmount:    dec("1000000"),
	}

	bill.ApplyTotals()

	assert.True(t, dec("25").Equal(bill.Items[0].LineTotal))
	assert.True(t, dec("5").Equal(bill.Items[1].LineTotal))
	assert.True(t, dec("30").Equal(bill.Subtotal))
	assert.True(t, dec("3").Equal(bill.TaxAmount))
	assert.True(t, dec("32").Equal(bill.TotalAmount))
}

func TestDerive(t *testing.T) {
	created := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	bill := &Bill{PaymentStatus: PaymentStatusPending, DueDate: DueDateFrom(created)}

	bill.Derive(created)
	assert.False(t, bill.IsOverdue)
	assert.Equal(t, 30, bill.DaysUntilDue)

	bill.Derive(created.Add(29*24*time.Hour + time.Hour))
	assert.False(t, bill.IsOverdue)
	assert.Equal(t, 1, bill.DaysUntilDue)

	bill.Derive(created.Add(31 * 24 * time.Hour))
	assert.True(t, bill.IsOverdue)
	assert.Equal(t, -1, bill.DaysUntilDue)

	bill.PaymentStatus = PaymentStatusPaid
	bill.Derive(created.Add(31 * 24 * time.Hour))
	assert.False(t, bill.IsOverdue)
}

func TestBillNumbers(t *testing.T) {
	day := time.Date(2026, 3, 9, 23, 59, 0, 0, time.UTC)

	assert.Equal(t, "INV-20260309-0001", FormatBillNumber(day, 1))
	assert.Equal(t, "INV-20260309-12345", FormatBillNumber(day, 12345))

	assert.True(t, ValidBillNumber("INV-20260309-0001"))
	assert.True(t, ValidBillNumber("INV-20260309-10000"))
	assert.False(t, ValidBillNumber("INV-2026039-0001"))
	assert.False(t, ValidBillNumber("inv-20260309-0001"))
	assert.False(t, ValidBillNumber("INV-20260309-01"))
	assert.False(t, ValidBillNumber(""))

	assert.Equal(t, "INV-20260309-", BillNumberDayPrefix(day))
	seq, ok := BillNumberSequence("INV-20260309-0042")
	assert.True(t, ok)
	assert.Equal(t, 42, seq)
	seq, ok = BillNumberSequence("INV-20260309-12345")
	assert.True(t, ok)
	assert.Equal(t, 12345, seq)
	_, ok = BillNumberSequence("INV-20260309-42")
	assert.False(t, ok)
}

func TestAcceptsPayment(t *testing.T) {
	tests := map[PaymentStatus]bool{
		PaymentStatusPending:   true,
		PaymentStatusFailed:    true,
		PaymentStatusPaid:      false,
		PaymentStatusCancelled: false,
		PaymentStatusRefunded:  false,
	}
	for status, want := range tests {
		bill := &Bill{PaymentStatus: status}
		assert.Equal(t, want, bill.AcceptsPayment(), string(status))
	}
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(34400), MinorUnits(dec("344")))
	assert.Equal(t, int64(1999), MinorUnits(dec("19.99")))
	assert.Equal(t, int64(101), MinorUnits(dec("1.005")))
	assert.Equal(t, int64(0), MinorUnits(decimal.Zero))
}

func TestPaymentEnums(t *testing.T) {
	assert.True(t, PaymentStatusRefunded.Valid())
	assert.False(t, PaymentStatus("settled").Valid())
	assert.True(t, PaymentMethodNetBanking.Valid())
	assert.False(t, PaymentMethod("cheque").Valid())
}

func TestPrincipalCanAccessBill(t *testing.T) {
	customer := uuid.New()
	creator := uuid.New()
	bill := &Bill{CustomerID: customer, CreatedBy: creator}

	assert.True(t, Principal{ID: uuid.New(), Role: RoleAdmin}.CanAccessBill(bill))
	assert.True(t, Principal{ID: customer, Role: RoleCustomer}.CanAccessBill(bill))
	assert.True(t, Principal{ID: creator, Role: RoleCustomer}.CanAccessBill(bill))
	assert.False(t, Principal{ID: uuid.New(), Role: RoleCustomer}.CanAccessBill(bill))
}

func TestAddressLines(t *testing.T) {
	a := Address{Street: "1 Main St", City: "Pune", ZipCode: "411001", Country: "India"}
	assert.Equal(t, []string{"1 Main St", "Pune, 411001", "India"}, a.Lines())
	assert.Empty(t, Address{}.Lines())
}

func TestProductIsLowStock(t *testing.T) {
	p := &Product{Quantity: 10, LowStockThreshold: 10}
	assert.True(t, p.IsLowStock())
	p.Quantity = 11
	assert.False(t, p.IsLowStock())
}
