package services

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"billdesk/internal/caching"
	"billdesk/internal/common"
	"billdesk/internal/models"
	"billdesk/internal/repositories"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

//go:embed templates/invoice_email.html
var templateFS embed.FS

var invoiceEmailTemplate = template.Must(template.ParseFS(templateFS, "templates/invoice_email.html"))

const (
	emailRateLimit  = 5
	emailRateWindow = time.Hour
)

type SendInvoiceEmailRequest struct {
	Email   string `json:"email" validate:"omitempty,email"`
	Subject string `json:"subject" validate:"max=200"`
	Message string `json:"message" validate:"max=2000"`
}

type EmailResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Recipient string `json:"recipient"`
	Error     string `json:"error,omitempty"`
}

// NotificationService delivers invoices by email.
type NotificationService interface {
	// SendInvoiceEmail mails the bill's invoice. A nil actor is the system
	// itself (queued delivery) and skips the ownership check.
	SendInvoiceEmail(ctx context.Context, billID uuid.UUID, req SendInvoiceEmailRequest, actor *models.Principal) (*EmailResult, error)
}

type invoiceEmailData struct {
	CustomerName string
	BillNumber   string
	CompanyName  string
	CompanyEmail string
	Total        string
	DueDate      string
	Status       string
	Message      string
	Year         int
}

type notificationService struct {
	bills     repositories.BillRepository
	customers repositories.CustomerRepository
	invoices  InvoiceService
	mailer    Mailer
	cache     caching.CacheService
	company   models.CompanyInfo
	renderer  *InvoiceRenderer
	now       func() time.Time
}

// NewNotificationService creates the email dispatcher. cache may be nil,
// which disables the per-bill rate limit.
func NewNotificationService(bills repositories.BillRepository, customers repositories.CustomerRepository, invoices InvoiceService,
	mailer Mailer, cache caching.CacheService, company models.CompanyInfo, renderer *InvoiceRenderer, now func() time.Time) NotificationService {
	if now == nil {
		now = time.Now
	}
	return &notificationService{
		bills:     bills,
		customers: customers,
		invoices:  invoices,
		mailer:    mailer,
		cache:     cache,
		company:   company,
		renderer:  renderer,
		now:       now,
	}
}

func (s *notificationService) SendInvoiceEmail(ctx context.Context, billID uuid.UUID, req SendInvoiceEmailRequest, actor *models.Principal) (*EmailResult, error) {
	bill, err := s.bills.GetByID(ctx, billID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, common.NewNotFoundError("Bill", billID.String())
	}
	if err != nil {
		return nil, common.SecureErrorMessage("load bill", err)
	}
	if actor != nil && !actor.CanAccessBill(bill) {
		return nil, common.NewAuthorizationError("Access denied")
	}
	if s.mailer == nil {
		return nil, common.NewEmailError("Email delivery is not configured", nil)
	}

	customer, err := s.customers.GetByID(ctx, bill.CustomerID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, common.NewNotFoundError("Customer", bill.CustomerID.String())
	}
	if err != nil {
		return nil, common.SecureErrorMessage("load customer", err)
	}
	bill.Customer = customer

	recipient := models.NormalizeEmail(req.Email)
	if recipient == "" {
		recipient = customer.Email
	}
	if recipient == "" {
		return nil, common.NewValidationError("No email address available for this bill")
	}

	if s.cache != nil {
		limited, err := s.cache.IsRateLimited(ctx, "email:"+bill.ID.String(), emailRateLimit, emailRateWindow)
		if err != nil {
			logrus.WithError(err).Warn("email rate limit check failed, allowing send")
		} else if limited {
			return nil, common.NewRateLimitedError(fmt.Sprintf("Too many emails for bill %s, try again later", bill.BillNumber))
		}
	}

	document, fileName, err := s.document(ctx, bill)
	if err != nil {
		return nil, err
	}

	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		subject = fmt.Sprintf("Invoice %s from %s", bill.BillNumber, s.company.Name)
	}
	body, err := s.renderBody(bill, customer, req.Message)
	if err != nil {
		return nil, common.SecureErrorMessage("render email", err)
	}

	log := logrus.WithFields(logrus.Fields{
		"bill_id":   bill.ID,
		"recipient": recipient,
	})

	messageID, err := s.mailer.Send(ctx, OutgoingEmail{
		To:       recipient,
		Subject:  subject,
		HTMLBody: body,
		Attachments: []Attachment{{
			Name:        fileName,
			ContentType: pdfContentType,
			Content:     document,
		}},
	})
	if err != nil {
		log.WithError(err).Error("invoice email failed")
		result := &EmailResult{Success: false, Recipient: recipient, Error: err.Error()}
		return result, common.NewEmailError("Failed to send invoice email", err)
	}

	if err := s.bills.RecordEmail(ctx, bill.ID, recipient, s.now()); err != nil {
		log.WithError(err).Warn("email sent but delivery metadata was not recorded")
	}
	invalidateBill(ctx, s.cache, bill.ID)

	log.WithField("message_id", messageID).Info("invoice email sent")
	return &EmailResult{Success: true, MessageID: messageID, Recipient: recipient}, nil
}

// document reuses the stored invoice when it is still readable and
// renders a new one otherwise.
func (s *notificationService) document(ctx context.Context, bill *models.Bill) ([]byte, string, error) {
	if bill.RenderedDocumentRef != nil && *bill.RenderedDocumentRef != "" {
		ref := *bill.RenderedDocumentRef
		content, err := s.invoices.Fetch(ctx, ref)
		if err == nil && len(content) > 0 {
			return content, ref[strings.LastIndex(ref, "/")+1:], nil
		}
		logrus.WithError(err).WithField("document", ref).Warn("stored invoice unavailable, rendering again")
	}

	generated, err := s.invoices.Generate(ctx, bill)
	if err != nil {
		return nil, "", err
	}
	return generated.Content, generated.FileName, nil
}

func (s *notificationService) renderBody(bill *models.Bill, customer *models.Customer, message string) (string, error) {
	data := invoiceEmailData{
		CustomerName: customer.Name,
		BillNumber:   bill.BillNumber,
		CompanyName:  s.company.Name,
		CompanyEmail: s.company.Email,
		Total:        s.renderer.money(bill.TotalAmount),
		DueDate:      bill.DueDate.In(s.renderer.location).Format(displayDate),
		Status:       strings.ToUpper(string(bill.PaymentStatus)),
		Message:      strings.TrimSpace(message),
		Year:         s.now().Year(),
	}
	var buf bytes.Buffer
	if err := invoiceEmailTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
