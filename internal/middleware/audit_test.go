package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"billdesk/internal/common"
	"billdesk/internal/models"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func auditedServer(audit *AuditMiddleware, principal *models.Principal) *echo.Echo {
	e := echo.New()
	withPrincipal := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if principal != nil {
				c.SetRequest(c.Request().WithContext(common.WithPrincipal(c.Request().Context(), *principal)))
			}
			return next(c)
		}
	}
	g := e.Group("/api/bills", withPrincipal, audit.AuditRequest())
	g.GET("/:id", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	g.DELETE("/:id", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	g.POST("/:id/verify-payment", func(c echo.Context) error {
		return common.SendError(c, common.NewSignatureVerificationError())
	})
	g.GET("/:id/pdf", func(c echo.Context) error {
		return common.SendError(c, common.NewStorageError("Failed to store invoice", nil))
	})
	e.POST("/health", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, audit.AuditRequest())
	return e
}

func serve(e *echo.Echo, method, target string) {
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(method, target, nil))
}

func TestAuditRequest(t *testing.T) {
	logger, hook := test.NewNullLogger()
	admin := models.Principal{ID: uuid.New(), Role: models.RoleAdmin}
	e := auditedServer(NewAuditMiddleware(logger, "/health"), &admin)
	billID := uuid.NewString()

	serve(e, http.MethodGet, "/api/bills/"+billID)
	assert.Empty(t, hook.AllEntries(), "successful reads are not audited")

	serve(e, http.MethodDelete, "/api/bills/"+billID)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, http.MethodDelete, entry.Data["method"])
	assert.Equal(t, http.StatusNoContent, entry.Data["status"])
	assert.Equal(t, billID, entry.Data["bill_id"])
	assert.Equal(t, admin.ID.String(), entry.Data["actor"])
	assert.Equal(t, "admin", entry.Data["role"])

	serve(e, http.MethodPost, "/api/bills/"+billID+"/verify-payment")
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, http.StatusBadRequest, hook.LastEntry().Data["status"])

	serve(e, http.MethodGet, "/api/bills/"+billID+"/pdf")
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)

	hook.Reset()
	serve(e, http.MethodPost, "/health")
	assert.Empty(t, hook.AllEntries())
}

func TestAuditRequest_Anonymous(t *testing.T) {
	logger, hook := test.NewNullLogger()
	e := auditedServer(NewAuditMiddleware(logger), nil)

	serve(e, http.MethodDelete, "/api/bills/"+uuid.NewString())
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	_, hasActor := entry.Data["actor"]
	assert.False(t, hasActor)
}

func TestVersionHeader(t *testing.T) {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, VersionHeader("v1", "1.4.0"))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, "v1", rec.Header().Get("X-API-Version"))
	assert.Equal(t, "1.4.0", rec.Header().Get("X-Build-Version"))
}
