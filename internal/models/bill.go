package models

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func init() {
	// Web clients read amounts as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusRefunded:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentMethodCash       PaymentMethod = "cash"
	PaymentMethodCard       PaymentMethod = "card"
	PaymentMethodUPI        PaymentMethod = "upi"
	PaymentMethodNetBanking PaymentMethod = "net_banking"
	PaymentMethodGateway    PaymentMethod = "gateway"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodUPI, PaymentMethodNetBanking, PaymentMethodGateway:
		return true
	}
	return false
}

const (
	BillNumberPrefix = "INV"
	// BillDueDays is the grace period between creation and due date.
	BillDueDays = 30
)

var billNumberPattern = regexp.MustCompile(`^INV-\d{8}-\d{4,}$`)

// LineItem is a product snapshot taken when the bill is created. Later
// product edits never change it.
type LineItem struct {
	ProductID          uuid.UUID       `json:"product"`
	ProductName        string          `json:"productName"`
	ProductDescription string          `json:"productDescription,omitempty"`
	Quantity           int             `json:"quantity"`
	UnitPrice          decimal.Decimal `json:"price"`
	LineTotal          decimal.Decimal `json:"total"`
}

type Bill struct {
	ID                  uuid.UUID       `json:"id"`
	BillNumber          string          `json:"billNumber"`
	CustomerID          uuid.UUID       `json:"customerId"`
	Customer            *Customer       `json:"customer,omitempty"`
	Items               []LineItem      `json:"products"`
	Subtotal            decimal.Decimal `json:"subtotal"`
	TaxRate             decimal.Decimal `json:"taxRate"`
	TaxAmount           decimal.Decimal `json:"taxAmount"`
	DiscountAmount      decimal.Decimal `json:"discount"`
	TotalAmount         decimal.Decimal `json:"totalAmount"`
	PaymentStatus       PaymentStatus   `json:"paymentStatus"`
	PaymentMethod       PaymentMethod   `json:"paymentMethod"`
	GatewayOrderID      *string         `json:"gatewayOrderId,omitempty"`
	GatewayPaymentID    *string         `json:"gatewayPaymentId,omitempty"`
	Notes               string          `json:"notes,omitempty"`
	DueDate             time.Time       `json:"dueDate"`
	PaidAt              *time.Time      `json:"paidAt,omitempty"`
	EmailSentAt         *time.Time      `json:"emailSentAt,omitempty"`
	EmailSentTo         *string         `json:"emailSentTo,omitempty"`
	RenderedDocumentRef *string         `json:"renderedDocumentRef,omitempty"`
	CreatedBy           uuid.UUID       `json:"createdBy"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`

	IsOverdue    bool `json:"isOverdue"`
	DaysUntilDue int  `json:"daysUntilDue"`
}

// Totals holds the derived money fields of a bill.
type Totals struct {
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalAmount    decimal.Decimal
}

// LineTotal returns quantity * unit price rounded to cents.
func LineTotal(quantity int, unitPrice decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}

// ComputeTotals derives subtotal, tax and total from the line items. Any
// totals already present on the items' parent are ignored.
func ComputeTotals(items []LineItem, taxRate, discount decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(LineTotal(item.Quantity, item.UnitPrice))
	}
	subtotal = subtotal.Round(2)
	tax := subtotal.Mul(taxRate).Div(decimal.NewFromInt(100)).Round(2)
	discount = discount.Round(2)
	return Totals{
		Subtotal:       subtotal,
		TaxAmount:      tax,
		DiscountAmount: discount,
		TotalAmount:    subtotal.Add(tax).Sub(discount).Round(2),
	}
}

// ApplyTotals recomputes line totals and bill totals in place.
func (b *Bill) ApplyTotals() Totals {
	for i := range b.Items {
		b.Items[i].LineTotal = LineTotal(b.Items[i].Quantity, b.Items[i].UnitPrice)
	}
	t := ComputeTotals(b.Items, b.TaxRate, b.DiscountAmount)
	b.Subtotal = t.Subtotal
	b.TaxAmount = t.TaxAmount
	b.DiscountAmount = t.DiscountAmount
	b.TotalAmount = t.TotalAmount
	return t
}

// Derive fills the computed overdue fields relative to now.
func (b *Bill) Derive(now time.Time) {
	b.IsOverdue = b.PaymentStatus == PaymentStatusPending && now.After(b.DueDate)
	b.DaysUntilDue = int(math.Ceil(b.DueDate.Sub(now).Hours() / 24))
}

func (b *Bill) IsPaid() bool {
	return b.PaymentStatus == PaymentStatusPaid
}

// AcceptsPayment reports whether a gateway payment may still settle the
// bill. Paid, cancelled and refunded bills never move back to paid.
func (b *Bill) AcceptsPayment() bool {
	return b.PaymentStatus == PaymentStatusPending || b.PaymentStatus == PaymentStatusFailed
}

// DueDateFrom returns the due date for a bill created at t.
func DueDateFrom(t time.Time) time.Time {
	return t.AddDate(0, 0, BillDueDays)
}

// FormatBillNumber renders INV-YYYYMMDD-NNNN for the given local day.
func FormatBillNumber(day time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%04d", BillNumberPrefix, day.Format("20060102"), seq)
}

func ValidBillNumber(s string) bool {
	return billNumberPattern.MatchString(s)
}

// BillNumberDayPrefix is the part of a bill number shared by every bill of
// that day, e.g. "INV-20260309-".
func BillNumberDayPrefix(day time.Time) string {
	return fmt.Sprintf("%s-%s-", BillNumberPrefix, day.Format("20060102"))
}

// BillNumberSequence returns the counter suffix of a well-formed number.
func BillNumberSequence(s string) (int, bool) {
	if !ValidBillNumber(s) {
		return 0, false
	}
	seq, err := strconv.Atoi(s[len(BillNumberPrefix)+10:])
	if err != nil {
		return 0, false
	}
	return seq, true
}

// MinorUnits converts an amount to the smallest currency unit (paise, cents).
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// BillFilter scopes bill listings.
type BillFilter struct {
	PaymentStatus *PaymentStatus
	// PrincipalID restricts results to bills where the principal is the
	// customer or the creator. Nil means unrestricted.
	PrincipalID *uuid.UUID
	CustomerID  *uuid.UUID
	Limit       int
	Offset      int
}

// BillStats aggregates bill amounts over a period.
type BillStats struct {
	Period        string                            `json:"period"`
	Since         time.Time                         `json:"since"`
	TotalBills    int                               `json:"totalBills"`
	TotalAmount   decimal.Decimal                   `json:"totalAmount"`
	PaidAmount    decimal.Decimal                   `json:"paidAmount"`
	PendingAmount decimal.Decimal                   `json:"pendingAmount"`
	StatusCounts  map[PaymentStatus]int             `json:"statusBreakdown"`
	StatusAmounts map[PaymentStatus]decimal.Decimal `json:"statusAmounts"`
}
