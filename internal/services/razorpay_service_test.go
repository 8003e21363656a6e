package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"billdesk/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRazorpayClient_CreateOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "rzp_secret", pass)

		var req GatewayOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(34400), req.Amount)
		assert.Equal(t, "INV-20260309-0001", req.Receipt)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_Nx1","entity":"order","amount":34400,"currency":"INR","receipt":"INV-20260309-0001","status":"created"}`))
	}))
	defer server.Close()

	client := NewRazorpayClient("rzp_test_key", "rzp_secret", server.URL+"/v1/", time.Second)
	order, err := client.CreateOrder(context.Background(), GatewayOrderRequest{
		Amount:   34400,
		Currency: "INR",
		Receipt:  "INV-20260309-0001",
	})
	require.NoError(t, err)
	assert.Equal(t, "order_Nx1", order.ID)
	assert.Equal(t, "created", order.Status)
	assert.Equal(t, "rzp_test_key", client.KeyID())
}

func TestRazorpayClient_Failures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		contains string
	}{
		{"rejected request", http.StatusBadRequest, `{"error":{"code":"BAD_REQUEST_ERROR","description":"amount exceeds maximum"}}`, "amount exceeds maximum"},
		{"server error", http.StatusServiceUnavailable, `{"error":{"description":"internal"}}`, "status 503"},
		{"missing order id", http.StatusOK, `{"entity":"order"}`, "no order id"},
		{"invalid json", http.StatusOK, `not json`, "invalid response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewRazorpayClient("key", "secret", server.URL, time.Second)
			_, err := client.CreateOrder(context.Background(), GatewayOrderRequest{Amount: 100, Currency: "INR"})
			require.Error(t, err)
			assert.True(t, common.IsKind(err, common.KindGatewayUnavailable))
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestRazorpayClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewRazorpayClient("key", "secret", server.URL, 50*time.Millisecond)
	_, err := client.CreateOrder(context.Background(), GatewayOrderRequest{Amount: 100, Currency: "INR"})
	assert.True(t, common.IsKind(err, common.KindGatewayUnavailable))
}

func TestVerifyWebhookSignature(t *testing.T) {
	body := []byte(`{"event":"order.paid"}`)
	sig := webhookSignature(body)

	assert.True(t, VerifyWebhookSignature(testWebhookSecret, body, sig))
	assert.False(t, VerifyWebhookSignature(testWebhookSecret, []byte(`{"event":"order.paid" }`), sig))
	assert.False(t, VerifyWebhookSignature("", body, sig))
	assert.False(t, VerifyWebhookSignature(testWebhookSecret, body, ""))
}
