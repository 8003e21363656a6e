package services

import (
	"context"
	"errors"
	"math"
	"time"

	"billdesk/internal/caching"
	"billdesk/internal/common"
	"billdesk/internal/models"
	"billdesk/internal/repositories"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	maxBillNumberAttempts = 3
	billCacheTTL          = 5 * time.Minute
	maxOverdueResults     = 500
)

type BillItemRequest struct {
	ProductID uuid.UUID `json:"product"`
	Quantity  int       `json:"quantity" validate:"min=1,max=100000"`
}

type CreateBillRequest struct {
	Items         []BillItemRequest    `json:"products" validate:"required,min=1,dive"`
	CustomerID    *uuid.UUID           `json:"customer,omitempty"`
	CustomerInfo  *models.CustomerInfo `json:"customerInfo,omitempty"`
	TaxRate       *decimal.Decimal     `json:"taxRate,omitempty"`
	Discount      decimal.Decimal      `json:"discount"`
	Notes         string               `json:"notes" validate:"max=500"`
	BillNumber    string               `json:"billNumber,omitempty"`
	PaymentMethod models.PaymentMethod `json:"paymentMethod,omitempty"`
}

type UpdatePaymentRequest struct {
	PaymentStatus models.PaymentStatus `json:"paymentStatus" validate:"required,oneof=pending paid failed cancelled refunded"`
	PaymentMethod models.PaymentMethod `json:"paymentMethod" validate:"omitempty,oneof=cash card upi net_banking gateway"`
}

type BillListQuery struct {
	Page          int
	Limit         int
	PaymentStatus string
}

type BillPage struct {
	Bills      []*models.Bill
	Total      int
	Page       int
	TotalPages int
}

// BillService covers bill creation and the bill read/admin operations.
type BillService interface {
	CreateBill(ctx context.Context, req CreateBillRequest, actor models.Principal) (*models.Bill, error)
	GetBill(ctx context.Context, id uuid.UUID, actor models.Principal) (*models.Bill, error)
	ListBills(ctx context.Context, query BillListQuery, actor models.Principal) (*BillPage, error)
	ListCustomerBills(ctx context.Context, customerID uuid.UUID, query BillListQuery, actor models.Principal) (*BillPage, error)
	ListOverdue(ctx context.Context, actor models.Principal) ([]*models.Bill, error)
	UpdatePayment(ctx context.Context, id uuid.UUID, req UpdatePaymentRequest, actor models.Principal) (*models.Bill, error)
	DeleteBill(ctx context.Context, id uuid.UUID, actor models.Principal) error
}

type BillServiceConfig struct {
	DefaultTaxRate decimal.Decimal
	Location       *time.Location
	Now            func() time.Time
}

type billService struct {
	bills     repositories.BillRepository
	products  repositories.ProductRepository
	customers repositories.CustomerRepository
	cache     caching.CacheService
	taxRate   decimal.Decimal
	location  *time.Location
	now       func() time.Time
}

// NewBillService builds the bill service. cache may be nil.
func NewBillService(bills repositories.BillRepository, products repositories.ProductRepository,
	customers repositories.CustomerRepository, cache caching.CacheService, cfg BillServiceConfig) BillService {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &billService{
		bills:     bills,
		products:  products,
		customers: customers,
		cache:     cache,
		taxRate:   cfg.DefaultTaxRate,
		location:  cfg.Location,
		now:       cfg.Now,
	}
}

func (s *billService) CreateBill(ctx context.Context, req CreateBillRequest, actor models.Principal) (*models.Bill, error) {
	requested, err := mergeItemRequests(req.Items)
	if err != nil {
		return nil, err
	}
	if req.CustomerID == nil && req.CustomerInfo == nil {
		return nil, common.NewValidationError("customer or customerInfo is required")
	}
	taxRate := s.taxRate
	if req.TaxRate != nil {
		taxRate = *req.TaxRate
	}
	if taxRate.IsNegative() || taxRate.GreaterThan(decimal.NewFromInt(100)) {
		return nil, common.NewValidationError("taxRate must be between 0 and 100")
	}
	if req.Discount.IsNegative() {
		return nil, common.NewValidationError("discount cannot be negative")
	}
	if req.BillNumber != "" && !models.ValidBillNumber(req.BillNumber) {
		return nil, common.NewValidationError("billNumber must match INV-YYYYMMDD-NNNN")
	}
	method := req.PaymentMethod
	if method == "" {
		method = models.PaymentMethodCash
	}
	if !method.Valid() {
		return nil, common.NewValidationError("invalid payment method: %s", method)
	}

	ids := make([]uuid.UUID, len(requested))
	for i, r := range requested {
		ids[i] = r.ProductID
	}
	products, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, common.SecureErrorMessage("load products", err)
	}
	for _, r := range requested {
		if _, ok := products[r.ProductID]; !ok {
			return nil, common.NewNotFoundError("Product", r.ProductID.String())
		}
	}

	items := make([]models.LineItem, 0, len(requested))
	for _, r := range requested {
		p := products[r.ProductID]
		if p.Quantity < r.Quantity {
			return nil, common.NewInsufficientStockError(p.Name, p.Quantity, r.Quantity)
		}
		items = append(items, models.LineItem{
			ProductID:          p.ID,
			ProductName:        p.Name,
			ProductDescription: p.Description,
			Quantity:           r.Quantity,
			UnitPrice:          p.Price,
		})
	}

	now := s.now().In(s.location)
	bill := &models.Bill{
		ID:             uuid.New(),
		BillNumber:     req.BillNumber,
		Items:          items,
		TaxRate:        taxRate,
		DiscountAmount: req.Discount,
		PaymentStatus:  models.PaymentStatusPending,
		PaymentMethod:  method,
		Notes:          req.Notes,
		DueDate:        models.DueDateFrom(now),
		CreatedBy:      actor.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	totals := bill.ApplyTotals()
	if totals.TotalAmount.IsNegative() {
		return nil, common.NewValidationError("discount %s exceeds bill amount %s",
			totals.DiscountAmount.StringFixed(2), totals.Subtotal.Add(totals.TaxAmount).StringFixed(2))
	}

	customer, err := s.resolveCustomer(ctx, req, actor)
	if err != nil {
		return nil, err
	}
	bill.CustomerID = customer.ID

	if err := s.persist(ctx, bill, req.BillNumber != "", products); err != nil {
		return nil, err
	}

	bill.Customer = customer
	bill.Derive(now)
	if s.cache != nil {
		if err := s.cache.InvalidateBillStats(ctx); err != nil {
			logrus.WithError(err).Debug("could not invalidate bill stats cache")
		}
	}

	logrus.WithFields(logrus.Fields{
		"bill_id":     bill.ID,
		"bill_number": bill.BillNumber,
		"total":       bill.TotalAmount.StringFixed(2),
		"items":       len(bill.Items),
	}).Info("bill created")

	return bill, nil
}

// persist runs the stock-decrementing insert, retrying generated numbers
// that collide with an existing bill.
func (s *billService) persist(ctx context.Context, bill *models.Bill, explicitNumber bool, products map[uuid.UUID]*models.Product) error {
	for attempt := 1; ; attempt++ {
		err := s.bills.CreateWithStock(ctx, bill)
		if err == nil {
			return nil
		}

		var shortage *repositories.StockShortageError
		switch {
		case errors.As(err, &shortage):
			name := shortage.ProductID.String()
			available := 0
			if p, ok := products[shortage.ProductID]; ok {
				name = p.Name
			}
			if current, getErr := s.products.GetByID(ctx, shortage.ProductID); getErr == nil {
				available = current.Quantity
			}
			return common.NewInsufficientStockError(name, available, shortage.Requested)

		case errors.Is(err, repositories.ErrDuplicateBillNumber):
			if explicitNumber {
				return common.NewConflictError("bill number "+bill.BillNumber+" already exists", err)
			}
			if attempt >= maxBillNumberAttempts {
				return common.NewConflictError("could not allocate a unique bill number", err)
			}
			bill.BillNumber = ""
			logrus.WithField("attempt", attempt).Warn("bill number collision, retrying allocation")

		default:
			return common.SecureErrorMessage("create bill", err)
		}
	}
}

// mergeItemRequests validates the requested lines and folds repeated
// products into one line, keeping first-seen order.
func mergeItemRequests(items []BillItemRequest) ([]BillItemRequest, error) {
	if len(items) == 0 {
		return nil, common.NewValidationError("at least one product is required")
	}
	merged := make([]BillItemRequest, 0, len(items))
	index := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		if item.ProductID == uuid.Nil {
			return nil, common.NewValidationError("product id is required for every item")
		}
		if item.Quantity <= 0 {
			return nil, common.NewValidationError("quantity must be positive for product %s", item.ProductID)
		}
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged, nil
}

func (s *billService) resolveCustomer(ctx context.Context, req CreateBillRequest, actor models.Principal) (*models.Customer, error) {
	if req.CustomerID != nil {
		customer, err := s.customers.GetByID(ctx, *req.CustomerID)
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, common.NewNotFoundError("Customer", req.CustomerID.String())
		}
		if err != nil {
			return nil, common.SecureErrorMessage("load customer", err)
		}
		return customer, nil
	}

	info := req.CustomerInfo
	email := models.NormalizeEmail(info.Email)
	if email == "" || info.Name == "" {
		return nil, common.NewValidationError("customerInfo requires name and email")
	}

	existing, err := s.customers.GetByEmail(ctx, email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, common.SecureErrorMessage("look up customer", err)
	}

	createdBy := actor.ID
	customer := &models.Customer{
		ID:        uuid.New(),
		Name:      info.Name,
		Email:     email,
		Phone:     info.Phone,
		Address:   info.Address,
		Role:      models.RoleCustomer,
		CreatedBy: &createdBy,
	}
	err = s.customers.Create(ctx, customer)
	if errors.Is(err, repositories.ErrDuplicateEmail) {
		// Created concurrently by another request.
		existing, err = s.customers.GetByEmail(ctx, email)
		if err != nil {
			return nil, common.SecureErrorMessage("look up customer", err)
		}
		return existing, nil
	}
	if err != nil {
		return nil, common.SecureErrorMessage("create customer", err)
	}
	logrus.WithField("customer_id", customer.ID).Info("customer created from bill request")
	return customer, nil
}

func (s *billService) GetBill(ctx context.Context, id uuid.UUID, actor models.Principal) (*models.Bill, error) {
	bill, err := s.loadBill(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccessBill(bill) {
		return nil, common.NewAuthorizationError("Access denied")
	}
	bill.Derive(s.now())
	return bill, nil
}

// loadBill reads through the cache and attaches the customer.
func (s *billService) loadBill(ctx context.Context, id uuid.UUID) (*models.Bill, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetBill(ctx, id); err == nil && cached != nil {
			return cached, nil
		}
	}

	bill, err := s.bills.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, common.NewNotFoundError("Bill", id.String())
	}
	if err != nil {
		return nil, common.SecureErrorMessage("load bill", err)
	}
	if customer, err := s.customers.GetByID(ctx, bill.CustomerID); err == nil {
		bill.Customer = customer
	}

	if s.cache != nil {
		if err := s.cache.SetBill(ctx, bill, billCacheTTL); err != nil {
			logrus.WithError(err).Debug("could not cache bill")
		}
	}
	return bill, nil
}

func (s *billService) ListBills(ctx context.Context, query BillListQuery, actor models.Principal) (*BillPage, error) {
	filter := models.BillFilter{}
	if !actor.IsAdmin() {
		id := actor.ID
		filter.PrincipalID = &id
	}
	return s.list(ctx, filter, query)
}

func (s *billService) ListCustomerBills(ctx context.Context, customerID uuid.UUID, query BillListQuery, actor models.Principal) (*BillPage, error) {
	if !actor.IsAdmin() && actor.ID != customerID {
		return nil, common.NewAuthorizationError("Access denied")
	}
	return s.list(ctx, models.BillFilter{CustomerID: &customerID}, query)
}

func (s *billService) list(ctx context.Context, filter models.BillFilter, query BillListQuery) (*BillPage, error) {
	if query.PaymentStatus != "" {
		status := models.PaymentStatus(query.PaymentStatus)
		if !status.Valid() {
			return nil, common.NewValidationError("invalid paymentStatus: %s", query.PaymentStatus)
		}
		filter.PaymentStatus = &status
	}
	page, limit, offset := common.NormalizePage(query.Page, query.Limit)
	filter.Limit = limit
	filter.Offset = offset

	bills, total, err := s.bills.List(ctx, filter)
	if err != nil {
		return nil, common.SecureErrorMessage("list bills", err)
	}
	s.attachCustomers(ctx, bills)

	now := s.now()
	for _, b := range bills {
		b.Derive(now)
	}
	return &BillPage{
		Bills:      bills,
		Total:      total,
		Page:       page,
		TotalPages: int(math.Ceil(float64(total) / float64(limit))),
	}, nil
}

func (s *billService) attachCustomers(ctx context.Context, bills []*models.Bill) {
	if len(bills) == 0 {
		return
	}
	seen := make(map[uuid.UUID]bool, len(bills))
	ids := make([]uuid.UUID, 0, len(bills))
	for _, b := range bills {
		if !seen[b.CustomerID] {
			seen[b.CustomerID] = true
			ids = append(ids, b.CustomerID)
		}
	}
	customers, err := s.customers.GetByIDs(ctx, ids)
	if err != nil {
		logrus.WithError(err).Warn("could not load customers for bill list")
		return
	}
	for _, b := range bills {
		b.Customer = customers[b.CustomerID]
	}
}

func (s *billService) ListOverdue(ctx context.Context, actor models.Principal) ([]*models.Bill, error) {
	if !actor.IsAdmin() {
		return nil, common.NewAuthorizationError("Admin access required")
	}
	now := s.now()
	bills, err := s.bills.ListOverdue(ctx, now, maxOverdueResults)
	if err != nil {
		return nil, common.SecureErrorMessage("list overdue bills", err)
	}
	s.attachCustomers(ctx, bills)
	for _, b := range bills {
		b.Derive(now)
	}
	return bills, nil
}

func (s *billService) UpdatePayment(ctx context.Context, id uuid.UUID, req UpdatePaymentRequest, actor models.Principal) (*models.Bill, error) {
	if !actor.IsAdmin() {
		return nil, common.NewAuthorizationError("Admin access required")
	}
	if !req.PaymentStatus.Valid() {
		return nil, common.NewValidationError("invalid paymentStatus: %s", req.PaymentStatus)
	}
	if req.PaymentMethod != "" && !req.PaymentMethod.Valid() {
		return nil, common.NewValidationError("invalid paymentMethod: %s", req.PaymentMethod)
	}

	bill, err := s.bills.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, common.NewNotFoundError("Bill", id.String())
	}
	if err != nil {
		return nil, common.SecureErrorMessage("load bill", err)
	}

	method := bill.PaymentMethod
	if req.PaymentMethod != "" {
		method = req.PaymentMethod
	}
	var paidAt *time.Time
	switch req.PaymentStatus {
	case models.PaymentStatusPaid:
		paidAt = bill.PaidAt
		if paidAt == nil {
			now := s.now()
			paidAt = &now
		}
	case models.PaymentStatusRefunded:
		paidAt = bill.PaidAt
	}

	if err := s.bills.UpdatePayment(ctx, id, req.PaymentStatus, method, paidAt); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, common.NewNotFoundError("Bill", id.String())
		}
		return nil, common.SecureErrorMessage("update payment", err)
	}
	s.invalidate(ctx, id)

	logrus.WithFields(logrus.Fields{
		"bill_id": id,
		"from":    bill.PaymentStatus,
		"to":      req.PaymentStatus,
		"actor":   actor.ID,
	}).Info("bill payment status updated manually")

	return s.GetBill(ctx, id, actor)
}

// DeleteBill removes a bill. Reserved stock is not returned to products.
func (s *billService) DeleteBill(ctx context.Context, id uuid.UUID, actor models.Principal) error {
	if !actor.IsAdmin() {
		return common.NewAuthorizationError("Admin access required")
	}
	if err := s.bills.Delete(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return common.NewNotFoundError("Bill", id.String())
		}
		return common.SecureErrorMessage("delete bill", err)
	}
	s.invalidate(ctx, id)
	logrus.WithFields(logrus.Fields{"bill_id": id, "actor": actor.ID}).Info("bill deleted")
	return nil
}

func (s *billService) invalidate(ctx context.Context, id uuid.UUID) {
	invalidateBill(ctx, s.cache, id)
}

// invalidateBill drops cached copies of a bill and the derived stats.
func invalidateBill(ctx context.Context, cache caching.CacheService, id uuid.UUID) {
	if cache == nil {
		return
	}
	if err := cache.DeleteBill(ctx, id); err != nil {
		logrus.WithError(err).WithField("bill_id", id).Warn("could not invalidate cached bill")
	}
	if err := cache.InvalidateBillStats(ctx); err != nil {
		logrus.WithError(err).Debug("could not invalidate bill stats cache")
	}
}
