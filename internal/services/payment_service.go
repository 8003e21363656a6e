package services

import (
	"context"
	"errors"
	"time"

	"billdesk/internal/caching"
	"billdesk/internal/common"
	"billdesk/internal/models"
	"billdesk/internal/repositories"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type CreateOrderResult struct {
	GatewayOrderID string `json:"gatewayOrderId"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Key            string `json:"key"`
	BillNumber     string `json:"billNumber"`
	CustomerName   string `json:"customerName"`
	CustomerEmail  string `json:"customerEmail"`
	Description    string `json:"description"`
}

type VerifyPaymentRequest struct {
	GatewayPaymentID string `json:"gatewayPaymentId" validate:"required"`
	GatewayOrderID   string `json:"gatewayOrderId" validate:"required"`
	Signature        string `json:"signature" validate:"required"`
}

type WebhookResult struct {
	Event   string     `json:"event"`
	Handled bool       `json:"handled"`
	BillID  *uuid.UUID `json:"billId,omitempty"`
}

// InvoiceEmailEnqueuer schedules the invoice email that follows a payment.
type InvoiceEmailEnqueuer interface {
	EnqueueInvoiceEmail(ctx context.Context, billID uuid.UUID, paymentID string) error
}

// PaymentService bridges bills and the payment gateway.
type PaymentService interface {
	CreateOrder(ctx context.Context, billID uuid.UUID, actor models.Principal) (*CreateOrderResult, error)
	VerifyPayment(ctx context.Context, billID uuid.UUID, req VerifyPaymentRequest, actor models.Principal) (*models.Bill, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error)
}

type PaymentServiceConfig struct {
	KeySecret      string
	WebhookSecret  string
	Currency       string
	EmailOnPayment bool
	Now            func() time.Time
}

type paymentService struct {
	gateway   GatewayClient
	bills     repositories.BillRepository
	customers repositories.CustomerRepository
	invoices  InvoiceService
	cache     caching.CacheService
	emails    InvoiceEmailEnqueuer
	cfg       PaymentServiceConfig
}

// NewPaymentService wires the gateway bridge. gateway, cache and emails may be nil.
func NewPaymentService(gateway GatewayClient, bills repositories.BillRepository, customers repositories.CustomerRepository,
	invoices InvoiceService, cache caching.CacheService, emails InvoiceEmailEnqueuer, cfg PaymentServiceConfig) PaymentService {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	return &paymentService{
		gateway:   gateway,
		bills:     bills,
		customers: customers,
		invoices:  invoices,
		cache:     cache,
		emails:    emails,
		cfg:       cfg,
	}
}

func (s *paymentService) loadBill(ctx context.Context, id uuid.UUID) (*models.Bill, error) {
	bill, err := s.bills.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, common.NewNotFoundError("Bill", id.String())
	}
	if err != nil {
		return nil, common.SecureErrorMessage("load bill", err)
	}
	return bill, nil
}

func (s *paymentService) CreateOrder(ctx context.Context, billID uuid.UUID, actor models.Principal) (*CreateOrderResult, error) {
	bill, err := s.loadBill(ctx, billID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccessBill(bill) {
		return nil, common.NewAuthorizationError("Access denied")
	}
	if err := closedBillError(bill); err != nil {
		return nil, err
	}
	if s.gateway == nil {
		return nil, common.NewGatewayUnavailableError("Payment gateway is not configured", nil)
	}

	amount := models.MinorUnits(bill.TotalAmount)
	if amount <= 0 {
		return nil, common.NewValidationError("Bill %s has no outstanding amount", bill.BillNumber)
	}

	order, err := s.gateway.CreateOrder(ctx, GatewayOrderRequest{
		Amount:   amount,
		Currency: s.cfg.Currency,
		Receipt:  bill.BillNumber,
		Notes: map[string]string{
			"billId":     bill.ID.String(),
			"billNumber": bill.BillNumber,
		},
	})
	if err != nil {
		logrus.WithError(err).WithField("bill_id", bill.ID).Error("gateway order creation failed")
		return nil, err
	}

	if err := s.bills.SetGatewayOrder(ctx, bill.ID, order.ID); err != nil {
		switch {
		case errors.Is(err, repositories.ErrAlreadySettled):
			return nil, common.NewAlreadyPaidError(bill.BillNumber)
		case errors.Is(err, repositories.ErrNotFound):
			return nil, common.NewNotFoundError("Bill", bill.ID.String())
		}
		return nil, common.SecureErrorMessage("store gateway order", err)
	}
	invalidateBill(ctx, s.cache, bill.ID)

	result := &CreateOrderResult{
		GatewayOrderID: order.ID,
		Amount:         amount,
		Currency:       s.cfg.Currency,
		Key:            s.gateway.KeyID(),
		BillNumber:     bill.BillNumber,
		Description:    "Payment for Invoice " + bill.BillNumber,
	}
	if customer, err := s.customers.GetByID(ctx, bill.CustomerID); err == nil {
		result.CustomerName = customer.Name
		result.CustomerEmail = customer.Email
	}

	logrus.WithFields(logrus.Fields{
		"bill_id":  bill.ID,
		"order_id": order.ID,
		"amount":   amount,
	}).Info("gateway order created")

	return result, nil
}

func (s *paymentService) VerifyPayment(ctx context.Context, billID uuid.UUID, req VerifyPaymentRequest, actor models.Principal) (*models.Bill, error) {
	if req.GatewayOrderID == "" || req.GatewayPaymentID == "" || req.Signature == "" {
		return nil, common.NewValidationError("gatewayPaymentId, gatewayOrderId and signature are required")
	}
	bill, err := s.loadBill(ctx, billID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccessBill(bill) {
		return nil, common.NewAuthorizationError("Access denied")
	}
	if bill.GatewayOrderID == nil || *bill.GatewayOrderID != req.GatewayOrderID {
		return nil, common.NewValidationError("Payment order does not match bill %s", bill.BillNumber)
	}
	if !VerifyPaymentSignature(s.cfg.KeySecret, req.GatewayOrderID, req.GatewayPaymentID, req.Signature) {
		logrus.WithFields(logrus.Fields{
			"bill_id":  bill.ID,
			"order_id": req.GatewayOrderID,
		}).Warn("payment signature verification failed")
		return nil, common.NewSignatureVerificationError()
	}

	if bill.IsPaid() {
		return s.alreadySettled(ctx, bill, req.GatewayPaymentID)
	}
	if err := closedBillError(bill); err != nil {
		return nil, err
	}
	return s.settle(ctx, bill, req.GatewayPaymentID)
}

// closedBillError rejects bills that can no longer take a payment.
func closedBillError(bill *models.Bill) error {
	switch {
	case bill.IsPaid():
		return common.NewAlreadyPaidError(bill.BillNumber)
	case !bill.AcceptsPayment():
		return common.NewValidationError("Bill %s is %s and cannot be paid", bill.BillNumber, bill.PaymentStatus)
	}
	return nil
}

// alreadySettled answers a repeated confirmation. The same payment id gets
// the stored bill back; any other payment id is rejected.
func (s *paymentService) alreadySettled(ctx context.Context, bill *models.Bill, paymentID string) (*models.Bill, error) {
	if bill.GatewayPaymentID != nil && *bill.GatewayPaymentID == paymentID {
		s.attachCustomer(ctx, bill)
		bill.Derive(s.cfg.Now())
		return bill, nil
	}
	return nil, common.NewAlreadyPaidError(bill.BillNumber)
}

// settle moves the bill to paid. Only the caller whose update wins the
// check-and-set renders the invoice and schedules the email.
func (s *paymentService) settle(ctx context.Context, bill *models.Bill, paymentID string) (*models.Bill, error) {
	paidAt := s.cfg.Now()
	won, err := s.bills.MarkPaid(ctx, bill.ID, paymentID, paidAt)
	if err != nil {
		return nil, common.SecureErrorMessage("mark bill paid", err)
	}
	invalidateBill(ctx, s.cache, bill.ID)

	fresh, err := s.loadBill(ctx, bill.ID)
	if err != nil {
		return nil, err
	}
	if !won {
		if !fresh.IsPaid() {
			return nil, closedBillError(fresh)
		}
		return s.alreadySettled(ctx, fresh, paymentID)
	}

	logrus.WithFields(logrus.Fields{
		"bill_id":    fresh.ID,
		"payment_id": paymentID,
		"amount":     fresh.TotalAmount.StringFixed(2),
	}).Info("bill marked paid")

	s.attachCustomer(ctx, fresh)
	if _, err := s.invoices.Generate(ctx, fresh); err != nil {
		logrus.WithError(err).WithField("bill_id", fresh.ID).Error("invoice render failed after payment")
		if common.IsKind(err, common.KindStorage) {
			return nil, err
		}
		return nil, common.NewStorageError("Payment recorded but the invoice could not be generated", err)
	}
	invalidateBill(ctx, s.cache, fresh.ID)

	if s.cfg.EmailOnPayment && s.emails != nil {
		if err := s.emails.EnqueueInvoiceEmail(ctx, fresh.ID, paymentID); err != nil {
			logrus.WithError(err).WithField("bill_id", fresh.ID).Warn("could not enqueue invoice email")
		}
	}

	fresh.Derive(paidAt)
	return fresh, nil
}

func (s *paymentService) attachCustomer(ctx context.Context, bill *models.Bill) {
	if bill.Customer != nil {
		return
	}
	if customer, err := s.customers.GetByID(ctx, bill.CustomerID); err == nil {
		bill.Customer = customer
	}
}

// HandleWebhook applies payment.captured and order.paid events. Other
// events are acknowledged without effect.
func (s *paymentService) HandleWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error) {
	if !VerifyWebhookSignature(s.cfg.WebhookSecret, body, signature) {
		logrus.Warn("webhook signature verification failed")
		return nil, common.NewSignatureVerificationError()
	}
	event, err := ParseWebhookEvent(body)
	if err != nil {
		return nil, err
	}

	result := &WebhookResult{Event: event.Event}
	log := logrus.WithField("event", event.Event)

	switch event.Event {
	case "payment.captured", "order.paid":
	default:
		log.Debug("ignoring webhook event")
		return result, nil
	}

	paymentID := event.Payload.Payment.Entity.ID
	orderID := event.Payload.Payment.Entity.OrderID
	if orderID == "" {
		orderID = event.Payload.Order.Entity.ID
	}
	if orderID == "" || paymentID == "" {
		log.Warn("webhook event without order or payment id")
		return result, nil
	}

	bill, err := s.bills.GetByGatewayOrderID(ctx, orderID)
	if errors.Is(err, repositories.ErrNotFound) {
		log.WithField("order_id", orderID).Warn("webhook for unknown gateway order")
		return result, nil
	}
	if err != nil {
		return nil, common.SecureErrorMessage("load bill by order", err)
	}
	result.BillID = &bill.ID

	switch {
	case bill.IsPaid():
		_, err = s.alreadySettled(ctx, bill, paymentID)
	case !bill.AcceptsPayment():
		err = closedBillError(bill)
	default:
		_, err = s.settle(ctx, bill, paymentID)
	}
	switch {
	case common.IsKind(err, common.KindAlreadyPaid):
		log.WithField("bill_id", bill.ID).Warn("webhook payment differs from recorded payment")
		return result, nil
	case common.IsKind(err, common.KindValidation):
		log.WithFields(logrus.Fields{
			"bill_id": bill.ID,
			"status":  bill.PaymentStatus,
		}).Warn("webhook payment for a closed bill")
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	result.Handled = true
	return result, nil
}
