package testhelpers

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"billdesk/internal/models"
	"billdesk/internal/repositories"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process ledger with the same atomicity as the
// Postgres repositories: every bill write happens under one lock.
type MemoryStore struct {
	mu        sync.Mutex
	products  map[uuid.UUID]*models.Product
	customers map[uuid.UUID]*models.Customer
	bills     map[uuid.UUID]*models.Bill
	sequences map[string]int

	// DuplicateNumberFailures makes the next N generated bill numbers
	// collide with a bill committed concurrently by another writer.
	DuplicateNumberFailures int
	// takenNumbers holds numbers claimed by those concurrent writers.
	takenNumbers []string
	// Err, when set, is returned by every repository call.
	Err error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:  map[uuid.UUID]*models.Product{},
		customers: map[uuid.UUID]*models.Customer{},
		bills:     map[uuid.UUID]*models.Bill{},
		sequences: map[string]int{},
	}
}

func (s *MemoryStore) Products() repositories.ProductRepository   { return &memoryProducts{s} }
func (s *MemoryStore) Customers() repositories.CustomerRepository { return &memoryCustomers{s} }
func (s *MemoryStore) Bills() repositories.BillRepository         { return &memoryBills{s} }

func (s *MemoryStore) AddProduct(p *models.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.products[p.ID] = &cp
}

func (s *MemoryStore) AddCustomer(c *models.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.customers[c.ID] = &cp
}

// AddBill stores b as is, bypassing stock checks.
func (s *MemoryStore) AddBill(b *models.Bill) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bills[b.ID] = cloneBill(b)
}

// Stock returns the current quantity of a product.
func (s *MemoryStore) Stock(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.products[id]; ok {
		return p.Quantity
	}
	return -1
}

func (s *MemoryStore) BillCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bills)
}

func (s *MemoryStore) CustomerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.customers)
}

// Bill returns a copy of the stored bill.
func (s *MemoryStore) Bill(id uuid.UUID) *models.Bill {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bills[id]; ok {
		return cloneBill(b)
	}
	return nil
}

func cloneBill(b *models.Bill) *models.Bill {
	cp := *b
	cp.Items = append([]models.LineItem(nil), b.Items...)
	cp.Customer = nil
	return &cp
}

type memoryProducts struct{ s *MemoryStore }

func (r *memoryProducts) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	p, ok := r.s.products[id]
	if !ok || !p.IsActive {
		return nil, repositories.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memoryProducts) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	out := make(map[uuid.UUID]*models.Product, len(ids))
	for _, id := range ids {
		if p, ok := r.s.products[id]; ok && p.IsActive {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

func (r *memoryProducts) ListLowStock(ctx context.Context, limit int) ([]*models.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	var out []*models.Product
	for _, p := range r.s.products {
		if p.IsActive && p.IsLowStock() {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Quantity < out[j].Quantity })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memoryCustomers struct{ s *MemoryStore }

func (r *memoryCustomers) Create(ctx context.Context, c *models.Customer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return r.s.Err
	}
	email := models.NormalizeEmail(c.Email)
	for _, existing := range r.s.customers {
		if existing.Email == email {
			return repositories.ErrDuplicateEmail
		}
	}
	c.Email = email
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
		c.UpdatedAt = c.CreatedAt
	}
	cp := *c
	r.s.customers[c.ID] = &cp
	return nil
}

func (r *memoryCustomers) GetByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	c, ok := r.s.customers[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memoryCustomers) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Customer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	out := make(map[uuid.UUID]*models.Customer, len(ids))
	for _, id := range ids {
		if c, ok := r.s.customers[id]; ok {
			cp := *c
			out[id] = &cp
		}
	}
	return out, nil
}

func (r *memoryCustomers) GetByEmail(ctx context.Context, email string) (*models.Customer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	email = models.NormalizeEmail(email)
	for _, c := range r.s.customers {
		if c.Email == email {
			cp := *c
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

type memoryBills struct{ s *MemoryStore }

func (r *memoryBills) CreateWithStock(ctx context.Context, bill *models.Bill) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return r.s.Err
	}

	for _, item := range bill.Items {
		p, ok := r.s.products[item.ProductID]
		if !ok || p.Quantity < item.Quantity {
			return &repositories.StockShortageError{ProductID: item.ProductID, Requested: item.Quantity}
		}
	}

	// The sequence only advances when the bill is stored, as the counter
	// row rolls back with a failed Postgres transaction.
	number := bill.BillNumber
	day := bill.CreatedAt.Format("20060102")
	seq := 0
	if number == "" {
		seq = r.s.nextSequence(bill.CreatedAt)
		number = models.FormatBillNumber(bill.CreatedAt, seq)
		if r.s.DuplicateNumberFailures > 0 {
			r.s.DuplicateNumberFailures--
			r.s.takenNumbers = append(r.s.takenNumbers, number)
			return repositories.ErrDuplicateBillNumber
		}
	}
	if r.s.numberTaken(number) {
		return repositories.ErrDuplicateBillNumber
	}

	if seq > 0 {
		r.s.sequences[day] = seq
	}
	for _, item := range bill.Items {
		r.s.products[item.ProductID].Quantity -= item.Quantity
	}
	bill.BillNumber = number
	bill.UpdatedAt = bill.CreatedAt
	r.s.bills[bill.ID] = cloneBill(bill)
	return nil
}

// nextSequence mirrors the Postgres allocator: one past the larger of the
// stored counter and the highest suffix already used that day.
func (s *MemoryStore) nextSequence(created time.Time) int {
	last := s.sequences[created.Format("20060102")]
	prefix := models.BillNumberDayPrefix(created)
	used := make([]string, 0, len(s.bills)+len(s.takenNumbers))
	for _, b := range s.bills {
		used = append(used, b.BillNumber)
	}
	used = append(used, s.takenNumbers...)
	for _, number := range used {
		if !strings.HasPrefix(number, prefix) {
			continue
		}
		if n, ok := models.BillNumberSequence(number); ok && n > last {
			last = n
		}
	}
	return last + 1
}

func (s *MemoryStore) numberTaken(number string) bool {
	for _, b := range s.bills {
		if b.BillNumber == number {
			return true
		}
	}
	for _, taken := range s.takenNumbers {
		if taken == number {
			return true
		}
	}
	return false
}

func (r *memoryBills) find(match func(*models.Bill) bool) (*models.Bill, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	for _, b := range r.s.bills {
		if match(b) {
			return cloneBill(b), nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *memoryBills) GetByID(ctx context.Context, id uuid.UUID) (*models.Bill, error) {
	return r.find(func(b *models.Bill) bool { return b.ID == id })
}

func (r *memoryBills) GetByGatewayOrderID(ctx context.Context, orderID string) (*models.Bill, error) {
	return r.find(func(b *models.Bill) bool { return b.GatewayOrderID != nil && *b.GatewayOrderID == orderID })
}

func (r *memoryBills) List(ctx context.Context, filter models.BillFilter) ([]*models.Bill, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return nil, 0, r.s.Err
	}
	var matched []*models.Bill
	for _, b := range r.s.bills {
		if filter.PrincipalID != nil && b.CustomerID != *filter.PrincipalID && b.CreatedBy != *filter.PrincipalID {
			continue
		}
		if filter.CustomerID != nil && b.CustomerID != *filter.CustomerID {
			continue
		}
		if filter.PaymentStatus != nil && b.PaymentStatus != *filter.PaymentStatus {
			continue
		}
		matched = append(matched, cloneBill(b))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	start := filter.Offset
	if start > total {
		start = total
	}
	end := total
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return matched[start:end], total, nil
}

func (r *memoryBills) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*models.Bill, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	var out []*models.Bill
	for _, b := range r.s.bills {
		if b.PaymentStatus == models.PaymentStatusPending && b.DueDate.Before(now) {
			out = append(out, cloneBill(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryBills) update(id uuid.UUID, fn func(*models.Bill) error) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return r.s.Err
	}
	b, ok := r.s.bills[id]
	if !ok {
		return repositories.ErrNotFound
	}
	if err := fn(b); err != nil {
		return err
	}
	b.UpdatedAt = time.Now()
	return nil
}

func (r *memoryBills) SetGatewayOrder(ctx context.Context, id uuid.UUID, orderID string) error {
	err := r.update(id, func(b *models.Bill) error {
		if !b.AcceptsPayment() {
			return repositories.ErrAlreadySettled
		}
		b.GatewayOrderID = &orderID
		return nil
	})
	if err == repositories.ErrNotFound {
		return repositories.ErrAlreadySettled
	}
	return err
}

func (r *memoryBills) MarkPaid(ctx context.Context, id uuid.UUID, paymentID string, paidAt time.Time) (bool, error) {
	won := false
	err := r.update(id, func(b *models.Bill) error {
		if !b.AcceptsPayment() {
			return nil
		}
		b.PaymentStatus = models.PaymentStatusPaid
		b.PaymentMethod = models.PaymentMethodGateway
		b.GatewayPaymentID = &paymentID
		b.PaidAt = &paidAt
		won = true
		return nil
	})
	if err == repositories.ErrNotFound {
		return false, nil
	}
	return won, err
}

func (r *memoryBills) UpdatePayment(ctx context.Context, id uuid.UUID, status models.PaymentStatus, method models.PaymentMethod, paidAt *time.Time) error {
	return r.update(id, func(b *models.Bill) error {
		b.PaymentStatus = status
		b.PaymentMethod = method
		b.PaidAt = paidAt
		b.RenderedDocumentRef = nil
		return nil
	})
}

func (r *memoryBills) SetDocumentRef(ctx context.Context, id uuid.UUID, ref string) error {
	return r.update(id, func(b *models.Bill) error {
		b.RenderedDocumentRef = &ref
		return nil
	})
}

func (r *memoryBills) RecordEmail(ctx context.Context, id uuid.UUID, sentTo string, sentAt time.Time) error {
	return r.update(id, func(b *models.Bill) error {
		b.EmailSentTo = &sentTo
		b.EmailSentAt = &sentAt
		return nil
	})
}

func (r *memoryBills) Delete(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return r.s.Err
	}
	if _, ok := r.s.bills[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(r.s.bills, id)
	return nil
}

func (r *memoryBills) Stats(ctx context.Context, since time.Time) (*models.BillStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return nil, r.s.Err
	}
	stats := &models.BillStats{
		Since:         since,
		TotalAmount:   decimal.Zero,
		PaidAmount:    decimal.Zero,
		PendingAmount: decimal.Zero,
		StatusCounts:  map[models.PaymentStatus]int{},
		StatusAmounts: map[models.PaymentStatus]decimal.Decimal{},
	}
	for _, b := range r.s.bills {
		if b.CreatedAt.Before(since) {
			continue
		}
		stats.TotalBills++
		stats.StatusCounts[b.PaymentStatus]++
		stats.StatusAmounts[b.PaymentStatus] = stats.StatusAmounts[b.PaymentStatus].Add(b.TotalAmount)
		stats.TotalAmount = stats.TotalAmount.Add(b.TotalAmount)
		switch b.PaymentStatus {
		case models.PaymentStatusPaid:
			stats.PaidAmount = stats.PaidAmount.Add(b.TotalAmount)
		case models.PaymentStatusPending:
			stats.PendingAmount = stats.PendingAmount.Add(b.TotalAmount)
		}
	}
	return stats, nil
}
