package repositories

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"billdesk/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type BillRepository interface {
	// CreateWithStock decrements stock for every line item, allocates a bill
	// number when none is set and inserts the bill, all in one transaction.
	CreateWithStock(ctx context.Context, bill *models.Bill) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Bill, error)
	GetByGatewayOrderID(ctx context.Context, orderID string) (*models.Bill, error)
	List(ctx context.Context, filter models.BillFilter) ([]*models.Bill, int, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]*models.Bill, error)
	SetGatewayOrder(ctx context.Context, id uuid.UUID, orderID string) error
	// MarkPaid settles the bill unless it is already paid. It reports
	// whether this call performed the transition.
	MarkPaid(ctx context.Context, id uuid.UUID, paymentID string, paidAt time.Time) (bool, error)
	UpdatePayment(ctx context.Context, id uuid.UUID, status models.PaymentStatus, method models.PaymentMethod, paidAt *time.Time) error
	SetDocumentRef(ctx context.Context, id uuid.UUID, ref string) error
	RecordEmail(ctx context.Context, id uuid.UUID, sentTo string, sentAt time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	Stats(ctx context.Context, since time.Time) (*models.BillStats, error)
}

type billRepo struct {
	db Database
}

func NewBillRepo(db Database) BillRepository {
	return &billRepo{db: db}
}

const billColumns = `id, bill_number, customer_id, subtotal, tax_rate, tax_amount, discount_amount, total_amount, payment_status, payment_method, gateway_order_id, gateway_payment_id, notes, due_date, paid_at, email_sent_at, email_sent_to, rendered_document_ref, created_by, created_at, updated_at`

const billItemColumns = `bill_id, product_id, product_name, product_description, quantity, unit_price, line_total`

const (
	decrementStockSQL = `
		UPDATE products
		SET quantity = quantity - $1, updated_at = NOW()
		WHERE id = $2 AND quantity >= $1
		RETURNING quantity
	`
	// The counter never hands out a suffix at or below one already used
	// that day.
	nextBillSequenceSQL = `
		WITH used AS (
			SELECT COALESCE(MAX(SUBSTRING(bill_number FROM '[0-9]+$')::INTEGER), 0) AS last_used
			FROM bills
			WHERE bill_number LIKE $2
		), upsert AS (
			INSERT INTO bill_sequences (day, last_number, updated_at)
			SELECT $1, last_used + 1, NOW() FROM used
			ON CONFLICT (day) DO UPDATE
			SET last_number = GREATEST(bill_sequences.last_number + 1, EXCLUDED.last_number), updated_at = NOW()
			RETURNING last_number
		)
		SELECT last_number FROM upsert
	`
	insertBillSQL = `
		INSERT INTO bills (id, bill_number, customer_id, subtotal, tax_rate, tax_amount, discount_amount, total_amount, payment_status, payment_method, notes, due_date, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
	`
	insertBillItemSQL = `
		INSERT INTO bill_items (bill_id, position, product_id, product_name, product_description, quantity, unit_price, line_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
)

func (r *billRepo) CreateWithStock(ctx context.Context, bill *models.Bill) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin bill transaction: %w", err)
	}
	assigned := false
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			if assigned {
				bill.BillNumber = ""
			}
		}
	}()

	// Lock product rows in a fixed order so concurrent bills cannot deadlock.
	items := make([]models.LineItem, len(bill.Items))
	copy(items, bill.Items)
	sort.Slice(items, func(i, j int) bool {
		return strings.Compare(items[i].ProductID.String(), items[j].ProductID.String()) < 0
	})
	for _, item := range items {
		var remaining int
		err = tx.QueryRow(ctx, decrementStockSQL, item.Quantity, item.ProductID).Scan(&remaining)
		if errors.Is(err, pgx.ErrNoRows) {
			err = &StockShortageError{ProductID: item.ProductID, Requested: item.Quantity}
			return err
		}
		if err != nil {
			return fmt.Errorf("decrement stock for %s: %w", item.ProductID, err)
		}
	}

	if bill.BillNumber == "" {
		var seq int
		day := time.Date(bill.CreatedAt.Year(), bill.CreatedAt.Month(), bill.CreatedAt.Day(), 0, 0, 0, 0, time.UTC)
		prefix := models.BillNumberDayPrefix(bill.CreatedAt) + "%"
		if err = tx.QueryRow(ctx, nextBillSequenceSQL, day, prefix).Scan(&seq); err != nil {
			return fmt.Errorf("allocate bill number: %w", err)
		}
		bill.BillNumber = models.FormatBillNumber(bill.CreatedAt, seq)
		assigned = true
	}

	_, err = tx.Exec(ctx, insertBillSQL,
		bill.ID, bill.BillNumber, bill.CustomerID, bill.Subtotal, bill.TaxRate, bill.TaxAmount,
		bill.DiscountAmount, bill.TotalAmount, string(bill.PaymentStatus), string(bill.PaymentMethod),
		bill.Notes, bill.DueDate, bill.CreatedBy, bill.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "bills_bill_number_key") {
			err = ErrDuplicateBillNumber
			return err
		}
		return fmt.Errorf("insert bill: %w", err)
	}

	for i, item := range bill.Items {
		_, err = tx.Exec(ctx, insertBillItemSQL, bill.ID, i, item.ProductID, item.ProductName,
			item.ProductDescription, item.Quantity, item.UnitPrice, item.LineTotal)
		if err != nil {
			return fmt.Errorf("insert bill item %d: %w", i, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit bill: %w", err)
	}
	bill.UpdatedAt = bill.CreatedAt
	return nil
}

func scanBill(row pgx.Row) (*models.Bill, error) {
	b := &models.Bill{}
	var status, method string
	err := row.Scan(&b.ID, &b.BillNumber, &b.CustomerID, &b.Subtotal, &b.TaxRate, &b.TaxAmount,
		&b.DiscountAmount, &b.TotalAmount, &status, &method, &b.GatewayOrderID, &b.GatewayPaymentID,
		&b.Notes, &b.DueDate, &b.PaidAt, &b.EmailSentAt, &b.EmailSentTo, &b.RenderedDocumentRef,
		&b.CreatedBy, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.PaymentStatus = models.PaymentStatus(status)
	b.PaymentMethod = models.PaymentMethod(method)
	return b, nil
}

func (r *billRepo) getOne(ctx context.Context, where string, arg interface{}) (*models.Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bills WHERE ` + where
	bill, err := scanBill(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, notFound(err)
	}
	if err := r.loadItems(ctx, []*models.Bill{bill}); err != nil {
		return nil, err
	}
	return bill, nil
}

func (r *billRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Bill, error) {
	return r.getOne(ctx, `id = $1`, id)
}

func (r *billRepo) GetByGatewayOrderID(ctx context.Context, orderID string) (*models.Bill, error) {
	return r.getOne(ctx, `gateway_order_id = $1`, orderID)
}

func (r *billRepo) loadItems(ctx context.Context, bills []*models.Bill) error {
	if len(bills) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(bills))
	byID := make(map[uuid.UUID]*models.Bill, len(bills))
	for i, b := range bills {
		ids[i] = b.ID
		byID[b.ID] = b
		b.Items = []models.LineItem{}
	}

	query := `SELECT ` + billItemColumns + ` FROM bill_items WHERE bill_id = ANY($1) ORDER BY bill_id, position`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("load bill items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var billID uuid.UUID
		var item models.LineItem
		if err := rows.Scan(&billID, &item.ProductID, &item.ProductName, &item.ProductDescription,
			&item.Quantity, &item.UnitPrice, &item.LineTotal); err != nil {
			return err
		}
		if b, ok := byID[billID]; ok {
			b.Items = append(b.Items, item)
		}
	}
	return rows.Err()
}

func (r *billRepo) List(ctx context.Context, filter models.BillFilter) ([]*models.Bill, int, error) {
	var conditions []string
	var args []interface{}
	if filter.PrincipalID != nil {
		args = append(args, *filter.PrincipalID)
		conditions = append(conditions, fmt.Sprintf("(customer_id = $%d OR created_by = $%d)", len(args), len(args)))
	}
	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if filter.PaymentStatus != nil {
		args = append(args, string(*filter.PaymentStatus))
		conditions = append(conditions, fmt.Sprintf("payment_status = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM bills`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count bills: %w", err)
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM bills%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		billColumns, where, len(args)-1, len(args))
	bills, err := r.queryBills(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return bills, total, nil
}

func (r *billRepo) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*models.Bill, error) {
	query := `
		SELECT ` + billColumns + `
		FROM bills
		WHERE payment_status = 'pending' AND due_date < $1
		ORDER BY due_date ASC
		LIMIT $2
	`
	return r.queryBills(ctx, query, now, limit)
}

func (r *billRepo) queryBills(ctx context.Context, query string, args ...interface{}) ([]*models.Bill, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bills: %w", err)
	}
	bills := []*models.Bill{}
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		bills = append(bills, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, bills); err != nil {
		return nil, err
	}
	return bills, nil
}

func (r *billRepo) SetGatewayOrder(ctx context.Context, id uuid.UUID, orderID string) error {
	query := `
		UPDATE bills
		SET gateway_order_id = $2, updated_at = NOW()
		WHERE id = $1 AND payment_status IN ('pending', 'failed')
	`
	tag, err := r.db.Exec(ctx, query, id, orderID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadySettled
	}
	return nil
}

func (r *billRepo) MarkPaid(ctx context.Context, id uuid.UUID, paymentID string, paidAt time.Time) (bool, error) {
	query := `
		UPDATE bills
		SET payment_status = 'paid', payment_method = 'gateway', gateway_payment_id = $2, paid_at = $3, updated_at = NOW()
		WHERE id = $1 AND payment_status IN ('pending', 'failed')
	`
	tag, err := r.db.Exec(ctx, query, id, paymentID, paidAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// UpdatePayment records a manual status change. The stored document no
// longer reflects the bill afterwards, so its reference is cleared.
func (r *billRepo) UpdatePayment(ctx context.Context, id uuid.UUID, status models.PaymentStatus, method models.PaymentMethod, paidAt *time.Time) error {
	query := `
		UPDATE bills
		SET payment_status = $2, payment_method = $3, paid_at = $4, rendered_document_ref = NULL, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, string(status), string(method), paidAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *billRepo) SetDocumentRef(ctx context.Context, id uuid.UUID, ref string) error {
	return r.execOne(ctx, `UPDATE bills SET rendered_document_ref = $2, updated_at = NOW() WHERE id = $1`, id, ref)
}

func (r *billRepo) RecordEmail(ctx context.Context, id uuid.UUID, sentTo string, sentAt time.Time) error {
	return r.execOne(ctx, `UPDATE bills SET email_sent_to = $2, email_sent_at = $3, updated_at = NOW() WHERE id = $1`, id, sentTo, sentAt)
}

// Delete removes the bill and its items. Stock is not restored.
func (r *billRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return r.execOne(ctx, `DELETE FROM bills WHERE id = $1`, id)
}

func (r *billRepo) execOne(ctx context.Context, query string, args ...interface{}) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *billRepo) Stats(ctx context.Context, since time.Time) (*models.BillStats, error) {
	query := `
		SELECT payment_status, COUNT(*), COALESCE(SUM(total_amount), 0)
		FROM bills
		WHERE created_at >= $1
		GROUP BY payment_status
	`
	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("bill stats: %w", err)
	}
	defer rows.Close()

	stats := &models.BillStats{
		Since:         since,
		TotalAmount:   decimal.Zero,
		PaidAmount:    decimal.Zero,
		PendingAmount: decimal.Zero,
		StatusCounts:  map[models.PaymentStatus]int{},
		StatusAmounts: map[models.PaymentStatus]decimal.Decimal{},
	}
	for rows.Next() {
		var status string
		var count int
		var amount decimal.Decimal
		if err := rows.Scan(&status, &count, &amount); err != nil {
			return nil, err
		}
		ps := models.PaymentStatus(status)
		stats.StatusCounts[ps] = count
		stats.StatusAmounts[ps] = amount
		stats.TotalBills += count
		stats.TotalAmount = stats.TotalAmount.Add(amount)
		switch ps {
		case models.PaymentStatusPaid:
			stats.PaidAmount = stats.PaidAmount.Add(amount)
		case models.PaymentStatusPending:
			stats.PendingAmount = stats.PendingAmount.Add(amount)
		}
	}
	return stats, rows.Err()
}
