package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pinger struct{ err error }

func (p pinger) Ping(ctx context.Context) error { return p.err }

func healthRequest(t *testing.T, h *HealthHandlers, handler func(*HealthHandlers) echo.HandlerFunc) (int, map[string]interface{}) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), rec)
	require.NoError(t, handler(h)(c))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func healthCheck(h *HealthHandlers) echo.HandlerFunc    { return h.HealthCheck }
func readinessCheck(h *HealthHandlers) echo.HandlerFunc { return h.ReadinessCheck }

func TestHealthCheck(t *testing.T) {
	h := NewHealthHandlers(pinger{}, pinger{}, nil, "1.2.0")
	code, body := healthRequest(t, h, healthCheck)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "1.2.0", body["version"])
	services := body["services"].(map[string]interface{})
	assert.Equal(t, "healthy", services["database"])
	assert.Equal(t, "healthy", services["redis"])
	assert.Equal(t, "disabled", services["storage"])
}

func TestHealthCheck_Degraded(t *testing.T) {
	h := NewHealthHandlers(pinger{}, pinger{err: errors.New("dial tcp: refused")}, pinger{}, "1.2.0")
	code, body := healthRequest(t, h, healthCheck)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "unhealthy", body["services"].(map[string]interface{})["redis"])
}

func TestReadinessCheck(t *testing.T) {
	code, body := healthRequest(t, NewHealthHandlers(pinger{}, pinger{err: errors.New("down")}, nil, ""), readinessCheck)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", body["status"])

	code, body = healthRequest(t, NewHealthHandlers(pinger{err: errors.New("down")}, pinger{}, nil, ""), readinessCheck)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "not_ready", body["status"])
}
