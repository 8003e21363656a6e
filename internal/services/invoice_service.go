package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"billdesk/internal/caching"
	"billdesk/internal/common"
	"billdesk/internal/models"
	"billdesk/internal/repositories"

	"github.com/sirupsen/logrus"
)

const (
	invoiceNamespace = "invoices"
	downloadURLTTL   = 24 * time.Hour
)

// GeneratedInvoice describes a rendered and stored invoice document.
type GeneratedInvoice struct {
	FileName    string
	DocumentRef string
	Content     []byte
	Pages       int
}

// InvoiceService renders bills to PDF and keeps the documents in storage.
type InvoiceService interface {
	Generate(ctx context.Context, bill *models.Bill) (*GeneratedInvoice, error)
	Fetch(ctx context.Context, ref string) ([]byte, error)
	DownloadURL(ctx context.Context, ref string) (string, error)
}

type invoiceService struct {
	renderer  *InvoiceRenderer
	store     DocumentStore
	bills     repositories.BillRepository
	customers repositories.CustomerRepository
	cache     caching.CacheService
	company   models.CompanyInfo
	now       func() time.Time
}

func NewInvoiceService(renderer *InvoiceRenderer, store DocumentStore, bills repositories.BillRepository,
	customers repositories.CustomerRepository, cache caching.CacheService, company models.CompanyInfo, now func() time.Time) InvoiceService {
	if now == nil {
		now = time.Now
	}
	return &invoiceService{
		renderer:  renderer,
		store:     store,
		bills:     bills,
		customers: customers,
		cache:     cache,
		company:   company,
		now:       now,
	}
}

// InvoiceFileName returns invoice_{billNumber}_{epochMillis}.pdf, falling
// back to the bill id when no number is set.
func InvoiceFileName(bill *models.Bill, at time.Time) string {
	key := bill.BillNumber
	if key == "" {
		key = bill.ID.String()
	}
	return fmt.Sprintf("invoice_%s_%d.pdf", key, at.UnixMilli())
}

// Generate renders the bill, stores the document under a fresh name and
// records the reference on the bill.
func (s *invoiceService) Generate(ctx context.Context, bill *models.Bill) (*GeneratedInvoice, error) {
	customer := bill.Customer
	if customer == nil {
		c, err := s.customers.GetByID(ctx, bill.CustomerID)
		if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return nil, common.SecureErrorMessage("load customer", err)
		}
		customer = c
	}

	now := s.now()
	rendered, err := s.renderer.Render(RenderInput{
		Bill:        bill,
		Customer:    customer,
		Company:     s.company,
		GeneratedAt: now,
	})
	if err != nil {
		return nil, common.SecureErrorMessage("generate invoice PDF", err)
	}

	fileName := InvoiceFileName(bill, now)
	ref := invoiceNamespace + "/" + fileName
	if err := s.store.Put(ctx, ref, rendered.Content); err != nil {
		return nil, err
	}

	if err := s.bills.SetDocumentRef(ctx, bill.ID, ref); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, common.NewNotFoundError("Bill", bill.ID.String())
		}
		return nil, common.SecureErrorMessage("record invoice document", err)
	}
	bill.RenderedDocumentRef = &ref
	invalidateBill(ctx, s.cache, bill.ID)

	logrus.WithFields(logrus.Fields{
		"bill_id":  bill.ID,
		"document": ref,
		"pages":    rendered.Pages,
		"profile":  rendered.Profile,
		"bytes":    len(rendered.Content),
	}).Info("invoice rendered")

	return &GeneratedInvoice{
		FileName:    fileName,
		DocumentRef: ref,
		Content:     rendered.Content,
		Pages:       rendered.Pages,
	}, nil
}

func (s *invoiceService) Fetch(ctx context.Context, ref string) ([]byte, error) {
	return s.store.Get(ctx, ref)
}

func (s *invoiceService) DownloadURL(ctx context.Context, ref string) (string, error) {
	return s.store.PresignedURL(ctx, ref, downloadURLTTL)
}
