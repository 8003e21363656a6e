package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"billdesk/internal/common"
	"billdesk/internal/models"
	"billdesk/testhelpers"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type NotificationServiceTestSuite struct {
	suite.Suite
	store     *testhelpers.MemoryStore
	cache     *testhelpers.MemoryCache
	clock     *testhelpers.Clock
	documents *memoryDocumentStore
	mailer    *MockMailer
	invoices  InvoiceService
	renderer  *InvoiceRenderer
	service   NotificationService
	customer  *models.Customer
	bill      *models.Bill
	ctx       context.Context
}

func (suite *NotificationServiceTestSuite) SetupTest() {
	suite.store = testhelpers.NewMemoryStore()
	suite.cache = testhelpers.NewMemoryCache()
	suite.clock = testhelpers.NewClock(time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC))
	suite.documents = newMemoryDocumentStore()
	suite.mailer = new(MockMailer)
	suite.renderer = NewInvoiceRenderer("Rs. ", time.UTC)
	suite.invoices = NewInvoiceService(suite.renderer, suite.documents, suite.store.Bills(), suite.store.Customers(),
		suite.cache, models.DefaultCompanyInfo(), suite.clock.Now)
	suite.service = suite.newService(suite.mailer)
	suite.ctx = context.Background()

	suite.customer = testhelpers.NewCustomer("Asha Rao", "asha@example.com")
	suite.store.AddCustomer(suite.customer)
	p := testhelpers.NewProduct("Widget", "100", 5)
	suite.store.AddProduct(p)

	bills := NewBillService(suite.store.Bills(), suite.store.Products(), suite.store.Customers(), nil, BillServiceConfig{
		DefaultTaxRate: decimal.NewFromInt(18),
		Location:       time.UTC,
		Now:            suite.clock.Now,
	})
	id := suite.customer.ID
	bill, err := bills.CreateBill(suite.ctx, CreateBillRequest{
		Items:      []BillItemRequest{{ProductID: p.ID, Quantity: 3}},
		CustomerID: &id,
		Discount:   decimal.NewFromInt(10),
	}, testhelpers.Admin())
	require.NoError(suite.T(), err)
	suite.bill = bill
}

func (suite *NotificationServiceTestSuite) newService(mailer Mailer) NotificationService {
	return NewNotificationService(suite.store.Bills(), suite.store.Customers(), suite.invoices, mailer, suite.cache,
		models.DefaultCompanyInfo(), suite.renderer, suite.clock.Now)
}

func TestNotificationServiceTestSuite(t *testing.T) {
	suite.Run(t, new(NotificationServiceTestSuite))
}

func (suite *NotificationServiceTestSuite) owner() *models.Principal {
	p := testhelpers.CustomerPrincipal(suite.customer.ID)
	return &p
}

func (suite *NotificationServiceTestSuite) TestSendInvoiceEmail_Success() {
	var sent OutgoingEmail
	suite.mailer.On("Send", mock.Anything, mock.AnythingOfType("services.OutgoingEmail")).
		Run(func(args mock.Arguments) { sent = args.Get(1).(OutgoingEmail) }).
		Return("<msg-1@billdesk.example>", nil).Once()

	result, err := suite.service.SendInvoiceEmail(suite.ctx, suite.bill.ID, SendInvoiceEmailRequest{}, suite.owner())
	require.NoError(suite.T(), err)
	suite.mailer.AssertExpectations(suite.T())

	assert.True(suite.T(), result.Success)
	assert.Equal(suite.T(), "<msg-1@billdesk.example>", result.MessageID)
	assert.Equal(suite.T(), "asha@example.com", result.Recipient)

	assert.Equal(suite.T(), "asha@example.com", sent.To)
	assert.Equal(suite.T(), "Invoice "+suite.bill.BillNumber+" from BillDesk Traders", sent.Subject)
	assert.Contains(suite.T(), sent.HTMLBody, "Dear Asha Rao")
	assert.Contains(suite.T(), sent.HTMLBody, "Rs. 344.00")
	require.Len(suite.T(), sent.Attachments, 1)
	assert.Equal(suite.T(), "application/pdf", sent.Attachments[0].ContentType)
	assert.True(suite.T(), strings.HasPrefix(sent.Attachments[0].Name, "invoice_"+suite.bill.BillNumber+"_"))
	assert.True(suite.T(), bytes.HasPrefix(sent.Attachments[0].Content, []byte("%PDF-")))

	stored := suite.store.Bill(suite.bill.ID)
	require.NotNil(suite.T(), stored.EmailSentTo)
	assert.Equal(suite.T(), "asha@example.com", *stored.EmailSentTo)
	assert.Equal(suite.T(), suite.clock.Now(), *stored.EmailSentAt)
	assert.NotNil(suite.T(), stored.RenderedDocumentRef)
}

func (suite *NotificationServiceTestSuite) TestSendInvoiceEmail_OverridesAndMessage() {
	suite.mailer.On("Send", mock.Anything, mock.MatchedBy(func(e OutgoingEmail) bool {
		return e.To == "accounts@example.com" &&
			e.Subject == "Your March invoice" &&
			strings.Contains(e.HTMLBody, "Settling up for March.")
	})).Return("<msg-2@billdesk.example>", nil).Once()

	result, err := suite.service.SendInvoiceEmail(suite.ctx, suite.bill.ID, SendInvoiceEmailRequest{
		Email:   " Accounts@Example.com ",
		Subject: "Your March invoice",
		Message: "Settling up for March.",
	}, suite.owner())
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "accounts@example.com", result.Recipient)
	suite.mailer.AssertExpectations(suite.T())
}

func (suite *NotificationServiceTestSuite) TestSendInvoiceEmail_ReusesStoredDocument() {
	generated, err := suite.invoices.Generate(suite.ctx, suite.store.Bill(suite.bill.ID))
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), 1, suite.documents.putCount())

	suite.mailer.On("Send", mock.Anything, mock.MatchedBy(func(e OutgoingEmail) bool {
		return len(e.Attachments) == 1 &&
			e.Attachments[0].Name == generated.FileName &&
			bytes.Equal(e.Attachments[0].Content, generated.Content)
	})).Return("<msg-3@billdesk.example>", nil).Once()

	_, err = suite.service.SendInvoiceEmail(suite.ctx, suite.bill.ID, SendInvoiceEmailRequest{}, nil)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 1, suite.documents.putCount())
	suite.mailer.AssertExpectations(suite.T())
}

func (suite *NotificationServiceTestSuite) TestSendInvoiceEmail_RateLimited() {
	suite.mailer.On("Send", mock.Anything, mock.Anything).Return("<msg@billdesk.example>", nil)

	for i := 0; i < emailRateLimit; i++ {
		_, err := suite.service.SendInvoiceEmail(suite.ctx, suite.bill.ID, SendInvoiceEmailRequest{}, suite.owner())
		require.NoError(suite.T(), err, "send %d", i+1)
	}

	_, err := suite.service.SendInvoiceEmail(suite.ctx, suite.bill.ID, SendInvoiceEmailRequest{}, suite.owner())
	assert.True(suite.T(), common.IsKind(err, common.KindRateLimited))
	assert.Equal(suite.T(), 429, common.StatusForKind(common.KindOf(err)))
	suite.mailer.AssertNumberOfCalls(suite.T(), "Send", emailRateLimit)
}

func (suite *NotificationServiceTestSuite) TestSendInvoiceEmail_RateLimiterErrorAllowsSend() {
	suite.cache.RateLimitErr = errors.New("redis: connection refused")
	suite.mailer.On("Send", mock.Anything, mock.Anything).Return("<msg@billdesk.example>", nil).Once()

	result, err := suite.service.SendInvoiceEmail(suite.ctx, suite.bill.ID, SendInvoiceEmailRequest{}, suite.owner())
	require.NoError(suite.T(), err)
	assert.True(suite.T(), result.Success)
}

func (suite *NotificationServiceTestSuite) TestSendInvoiceEmail_MailerFailure() {
	suite.mailer.On("Send", mock.Anything, mock.Anything).Return("", errors.New("smtp: 554 rejected")).Once()

	result, err := suite.service.SendInvoiceEmail(suite.ctx, suite.bill.ID, SendInvoiceEmailRequest{}, suite.owner())
	assert.True(suite.T(), common.IsKind(err, common.KindEmail))
	require.NotNil(suite.T(), result)
	assert.False(suite.T(), result.Success)
	assert.Equal(suite.T(), "asha@example.com", result.Recipient)
	assert.Contains(suite.T(), result.Error, "554")
	assert.Nil(suite.T(), suite.store.Bill(suite.bill.ID).EmailSentTo)
}

func (suite *NotificationServiceTestSuite) TestSendInvoiceEmail_Rejections() {
	_, err := suite.service.SendInvoiceEmail(suite.ctx, uuid.New(), SendInvoiceEmailRequest{}, suite.owner())
	assert.True(suite.T(), common.IsKind(err, common.KindNotFound))

	stranger := testhelpers.CustomerPrincipal(uuid.New())
	_, err = suite.service.SendInvoiceEmail(suite.ctx, suite.bill.ID, SendInvoiceEmailRequest{}, &stranger)
	assert.True(suite.T(), common.IsKind(err, common.KindAuthorization))

	_, err = suite.newService(nil).SendInvoiceEmail(suite.ctx, suite.bill.ID, SendInvoiceEmailRequest{}, suite.owner())
	assert.True(suite.T(), common.IsKind(err, common.KindEmail))

	suite.mailer.AssertNotCalled(suite.T(), "Send", mock.Anything, mock.Anything)
}
