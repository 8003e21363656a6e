package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"billdesk/internal/common"

	"github.com/sirupsen/logrus"
)

// GatewayClient creates payment orders with the external gateway.
type GatewayClient interface {
	CreateOrder(ctx context.Context, req GatewayOrderRequest) (*GatewayOrder, error)
	KeyID() string
}

type GatewayOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type GatewayOrder struct {
	ID       string `json:"id"`
	Entity   string `json:"entity"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// WebhookEvent is the subset of a gateway webhook payload used to settle bills.
type WebhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Status  string `json:"status"`
			} `json:"entity"`
		} `json:"payment"`
		Order struct {
			Entity struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
	CreatedAt int64 `json:"created_at"`
}

type gatewayErrorBody struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

type razorpayClient struct {
	apiKey    string
	apiSecret string
	baseURL   string
	timeout   time.Duration
	http      *http.Client
}

// NewRazorpayClient creates a gateway client. Each request is bounded by timeout.
func NewRazorpayClient(apiKey, apiSecret, baseURL string, timeout time.Duration) GatewayClient {
	if baseURL == "" {
		baseURL = "https://api.razorpay.com/v1"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &razorpayClient{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   strings.TrimRight(baseURL, "/"),
		timeout:   timeout,
		http:      &http.Client{Timeout: timeout},
	}
}

func (s *razorpayClient) KeyID() string {
	return s.apiKey
}

// CreateOrder creates an order for amount minor units.
func (s *razorpayClient) CreateOrder(ctx context.Context, req GatewayOrderRequest) (*GatewayOrder, error) {
	body, err := s.makeRequest(ctx, http.MethodPost, "/orders", req)
	if err != nil {
		return nil, err
	}

	var order GatewayOrder
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, common.NewGatewayUnavailableError("Payment gateway returned an invalid response", err)
	}
	if order.ID == "" {
		return nil, common.NewGatewayUnavailableError("Payment gateway returned no order id", nil)
	}
	return &order, nil
}

func (s *razorpayClient) makeRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode gateway request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build gateway request: %w", err)
	}
	req.SetBasicAuth(s.apiKey, s.apiSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, common.NewGatewayUnavailableError("Payment gateway timed out", err)
		}
		return nil, common.NewGatewayUnavailableError("Payment gateway is unreachable", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, common.NewGatewayUnavailableError("Payment gateway response could not be read", err)
	}

	if resp.StatusCode >= 300 {
		logrus.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"path":   path,
		}).Warn("payment gateway rejected request")

		var gwErr gatewayErrorBody
		message := fmt.Sprintf("Payment gateway returned status %d", resp.StatusCode)
		if resp.StatusCode < 500 && json.Unmarshal(respBody, &gwErr) == nil && gwErr.Error.Description != "" {
			message = "Payment gateway rejected the request: " + gwErr.Error.Description
		}
		return nil, common.NewGatewayUnavailableError(message, fmt.Errorf("gateway status %d", resp.StatusCode))
	}

	return respBody, nil
}

// PaymentSignature returns the hex HMAC-SHA256 of "orderID|paymentID".
func PaymentSignature(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyPaymentSignature reports whether signature matches the checkout
// callback for orderID and paymentID.
func VerifyPaymentSignature(secret, orderID, paymentID, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := PaymentSignature(secret, orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyWebhookSignature checks the X-Razorpay-Signature header over the raw body.
func VerifyWebhookSignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ParseWebhookEvent decodes a webhook body.
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, common.NewValidationError("failed to parse webhook data: %v", err)
	}
	return &event, nil
}
