package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"billdesk/internal/common"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// memoryDocumentStore keeps documents in a map.
type memoryDocumentStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
	failPut error
}

func newMemoryDocumentStore() *memoryDocumentStore {
	return &memoryDocumentStore{objects: map[string][]byte{}}
}

func (m *memoryDocumentStore) Put(ctx context.Context, name string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut != nil {
		return common.NewStorageError("Failed to store invoice", m.failPut)
	}
	m.objects[name] = append([]byte(nil), content...)
	m.puts++
	return nil
}

func (m *memoryDocumentStore) Get(ctx context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.objects[name]
	if !ok {
		return nil, common.NewNotFoundError("Document", name)
	}
	return content, nil
}

func (m *memoryDocumentStore) PresignedURL(ctx context.Context, name string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("https://storage.test/%s?expires=%d", name, int(expiry.Seconds())), nil
}

func (m *memoryDocumentStore) EnsureBucket(ctx context.Context) error { return nil }
func (m *memoryDocumentStore) Ping(ctx context.Context) error         { return nil }

func (m *memoryDocumentStore) putCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

// fakeGateway hands out sequential order ids.
type fakeGateway struct {
	mu       sync.Mutex
	requests []GatewayOrderRequest
	err      error
}

func (g *fakeGateway) CreateOrder(ctx context.Context, req GatewayOrderRequest) (*GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.requests = append(g.requests, req)
	return &GatewayOrder{
		ID:       fmt.Sprintf("order_%d", len(g.requests)),
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
	}, nil
}

func (g *fakeGateway) KeyID() string { return "rzp_test_key" }

// MockMailer is a testify mock of Mailer.
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, email OutgoingEmail) (string, error) {
	args := m.Called(ctx, email)
	return args.String(0), args.Error(1)
}

// recordingEnqueuer collects invoice email requests.
type recordingEnqueuer struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingEnqueuer) EnqueueInvoiceEmail(ctx context.Context, billID uuid.UUID, paymentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, billID.String()+":"+paymentID)
	return nil
}

func (r *recordingEnqueuer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}
