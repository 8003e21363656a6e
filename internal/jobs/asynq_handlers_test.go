package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"billdesk/internal/common"
	"billdesk/internal/models"
	"billdesk/internal/services"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockNotificationService struct {
	mock.Mock
}

func (m *MockNotificationService) SendInvoiceEmail(ctx context.Context, billID uuid.UUID, req services.SendInvoiceEmailRequest, actor *models.Principal) (*services.EmailResult, error) {
	args := m.Called(ctx, billID, req, actor)
	result, _ := args.Get(0).(*services.EmailResult)
	return result, args.Error(1)
}

func TestNewInvoiceEmailTask(t *testing.T) {
	billID := uuid.New()
	task, err := NewInvoiceEmailTask(billID, "pay_001")
	require.NoError(t, err)

	assert.Equal(t, TypeInvoiceEmail, task.Type())
	var payload InvoiceEmailPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, billID, payload.BillID)
	assert.Equal(t, "pay_001", payload.PaymentID)

	assert.Equal(t, "invoice-email:"+billID.String()+":pay_001", InvoiceEmailTaskID(billID, "pay_001"))
}

func TestHandleInvoiceEmailTask(t *testing.T) {
	billID := uuid.New()
	task, err := NewInvoiceEmailTask(billID, "pay_001")
	require.NoError(t, err)

	tests := []struct {
		name      string
		result    *services.EmailResult
		err       error
		wantErr   bool
		skipRetry bool
	}{
		{name: "sent", result: &services.EmailResult{Success: true, MessageID: "<m@x>", Recipient: "a@example.com"}},
		{name: "bill deleted", err: common.NewNotFoundError("Bill", billID.String()), wantErr: true, skipRetry: true},
		{name: "rate limited", err: common.NewRateLimitedError("Too many emails"), wantErr: true, skipRetry: true},
		{name: "smtp failure retries", result: &services.EmailResult{Success: false}, err: common.NewEmailError("Failed to send invoice email", errors.New("timeout")), wantErr: true},
		{name: "storage failure retries", err: common.NewStorageError("Failed to store invoice", nil), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifications := new(MockNotificationService)
			notifications.On("SendInvoiceEmail", mock.Anything, billID, services.SendInvoiceEmailRequest{}, (*models.Principal)(nil)).
				Return(tt.result, tt.err).Once()

			err := NewEmailTaskHandler(notifications).HandleInvoiceEmailTask(context.Background(), task)
			notifications.AssertExpectations(t)

			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.skipRetry, errors.Is(err, asynq.SkipRetry))
		})
	}
}

func TestHandleInvoiceEmailTask_BadPayload(t *testing.T) {
	notifications := new(MockNotificationService)
	handler := NewEmailTaskHandler(notifications)

	err := handler.HandleInvoiceEmailTask(context.Background(), asynq.NewTask(TypeInvoiceEmail, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	notifications.AssertNotCalled(t, "SendInvoiceEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEmailTaskHandler_Register(t *testing.T) {
	notifications := new(MockNotificationService)
	notifications.On("SendInvoiceEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&services.EmailResult{Success: true}, nil).Once()

	mux := asynq.NewServeMux()
	NewEmailTaskHandler(notifications).Register(mux)

	task, err := NewInvoiceEmailTask(uuid.New(), "pay_001")
	require.NoError(t, err)
	require.NoError(t, mux.ProcessTask(context.Background(), task))
	notifications.AssertExpectations(t)
}
