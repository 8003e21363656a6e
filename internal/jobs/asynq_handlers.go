package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"billdesk/internal/common"
	"billdesk/internal/services"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// Task type definitions
const (
	TypeInvoiceEmail = "invoice:email"
)

const defaultMaxRetry = 3

// InvoiceEmailPayload defines the payload for invoice email tasks
type InvoiceEmailPayload struct {
	BillID    uuid.UUID `json:"bill_id"`
	PaymentID string    `json:"payment_id"`
}

// NewInvoiceEmailTask creates a new invoice email task
func NewInvoiceEmailTask(billID uuid.UUID, paymentID string) (*asynq.Task, error) {
	data, err := json.Marshal(InvoiceEmailPayload{BillID: billID, PaymentID: paymentID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeInvoiceEmail, data), nil
}

// InvoiceEmailTaskID identifies the email for one payment so that repeated
// enqueues collapse into one task.
func InvoiceEmailTaskID(billID uuid.UUID, paymentID string) string {
	return fmt.Sprintf("invoice-email:%s:%s", billID, paymentID)
}

// TaskEnqueuer puts invoice emails on the asynq queue.
type TaskEnqueuer struct {
	client   *asynq.Client
	maxRetry int
}

func NewTaskEnqueuer(client *asynq.Client, maxRetry int) *TaskEnqueuer {
	if maxRetry <= 0 {
		maxRetry = defaultMaxRetry
	}
	return &TaskEnqueuer{client: client, maxRetry: maxRetry}
}

// EnqueueInvoiceEmail implements services.InvoiceEmailEnqueuer.
func (e *TaskEnqueuer) EnqueueInvoiceEmail(ctx context.Context, billID uuid.UUID, paymentID string) error {
	task, err := NewInvoiceEmailTask(billID, paymentID)
	if err != nil {
		return err
	}
	info, err := e.client.EnqueueContext(ctx, task,
		asynq.TaskID(InvoiceEmailTaskID(billID, paymentID)),
		asynq.MaxRetry(e.maxRetry),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		logrus.WithField("bill_id", billID).Debug("invoice email already queued")
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue invoice email: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"bill_id": billID,
		"task_id": info.ID,
		"queue":   info.Queue,
	}).Info("invoice email queued")
	return nil
}

// EmailTaskHandler processes queued invoice emails.
type EmailTaskHandler struct {
	notifications services.NotificationService
}

func NewEmailTaskHandler(notifications services.NotificationService) *EmailTaskHandler {
	return &EmailTaskHandler{notifications: notifications}
}

// HandleInvoiceEmailTask handles invoice email tasks
func (h *EmailTaskHandler) HandleInvoiceEmailTask(ctx context.Context, t *asynq.Task) error {
	var payload InvoiceEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal invoice email payload: %v: %w", err, asynq.SkipRetry)
	}

	log := logrus.WithFields(logrus.Fields{
		"bill_id":    payload.BillID,
		"payment_id": payload.PaymentID,
	})

	result, err := h.notifications.SendInvoiceEmail(ctx, payload.BillID, services.SendInvoiceEmailRequest{}, nil)
	if err != nil {
		switch common.KindOf(err) {
		case common.KindNotFound, common.KindValidation, common.KindRateLimited:
			log.WithError(err).Warn("invoice email dropped")
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		log.WithError(err).Error("invoice email failed")
		return err
	}

	log.WithField("message_id", result.MessageID).Info("invoice email task completed")
	return nil
}

// Register adds the task handlers to mux.
func (h *EmailTaskHandler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeInvoiceEmail, h.HandleInvoiceEmailTask)
}
