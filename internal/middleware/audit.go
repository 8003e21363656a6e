package middleware

import (
	"net/http"
	"strings"
	"time"

	"billdesk/internal/common"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// AuditMiddleware writes an audit line for every state-changing request on
// the routes it wraps.
type AuditMiddleware struct {
	logger    logrus.FieldLogger
	skipPaths []string
}

// NewAuditMiddleware creates a new audit middleware instance. A nil logger
// uses the standard logrus logger.
func NewAuditMiddleware(logger logrus.FieldLogger, skipPaths ...string) *AuditMiddleware {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AuditMiddleware{logger: logger, skipPaths: skipPaths}
}

// AuditRequest records mutations and any request that failed with a client
// or server error. Reads that succeed are not logged.
func (m *AuditMiddleware) AuditRequest() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if !m.shouldLog(c.Request().Method, c.Path(), status) {
				return err
			}

			fields := logrus.Fields{
				"method":   c.Request().Method,
				"path":     c.Path(),
				"status":   status,
				"ip":       c.RealIP(),
				"duration": time.Since(start).String(),
			}
			if id := c.Param("id"); id != "" {
				fields["bill_id"] = id
			}
			if p, ok := common.PrincipalFromContext(c.Request().Context()); ok {
				fields["actor"] = p.ID.String()
				fields["role"] = string(p.Role)
			}
			entry := m.logger.WithFields(fields)
			if err != nil {
				entry = entry.WithError(err)
			}

			switch {
			case status >= http.StatusInternalServerError:
				entry.Error("audit")
			case status >= http.StatusBadRequest:
				entry.Warn("audit")
			default:
				entry.Info("audit")
			}
			return err
		}
	}
}

func (m *AuditMiddleware) shouldLog(method, path string, status int) bool {
	for _, skip := range m.skipPaths {
		if strings.HasPrefix(path, skip) {
			return false
		}
	}
	if status >= http.StatusBadRequest {
		return true
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
