package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"billdesk/internal/analytics"
	"billdesk/internal/common"
	"billdesk/internal/middleware"
	"billdesk/internal/models"
	"billdesk/internal/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// BillHandlers handles HTTP requests for bills
type BillHandlers struct {
	billService         services.BillService
	paymentService      services.PaymentService
	invoiceService      services.InvoiceService
	notificationService services.NotificationService
	analyticsService    *analytics.AnalyticsService
}

// NewBillHandlers creates a new bill handlers instance
func NewBillHandlers(billService services.BillService, paymentService services.PaymentService, invoiceService services.InvoiceService,
	notificationService services.NotificationService, analyticsService *analytics.AnalyticsService) *BillHandlers {
	return &BillHandlers{
		billService:         billService,
		paymentService:      paymentService,
		invoiceService:      invoiceService,
		notificationService: notificationService,
		analyticsService:    analyticsService,
	}
}

// Register mounts the bill routes on g. g must already authenticate callers.
func (h *BillHandlers) Register(g *echo.Group) {
	admin := middleware.RequireAdmin()

	g.GET("", h.ListBills)
	g.POST("", h.CreateBill)
	g.GET("/customer/:customerId", h.ListCustomerBills)
	g.GET("/admin/overdue", h.ListOverdueBills, admin)
	g.GET("/admin/stats", h.GetBillStats, admin)
	g.GET("/:id", h.GetBill)
	g.PATCH("/:id/payment", h.UpdatePayment, admin)
	g.DELETE("/:id", h.DeleteBill, admin)
	g.GET("/:id/pdf", h.GeneratePDF)
	g.GET("/:id/download-pdf", h.DownloadPDF)
	g.POST("/:id/create-order", h.CreateOrder)
	g.POST("/:id/verify-payment", h.VerifyPayment)
	g.POST("/:id/send-email", h.SendEmail)
}

func currentPrincipal(c echo.Context) (models.Principal, error) {
	p, ok := common.PrincipalFromContext(c.Request().Context())
	if !ok {
		return models.Principal{}, common.NewUnauthenticatedError("User not authenticated")
	}
	return p, nil
}

func pathID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := common.ValidateUUID(c.Param(name), name)
	if err != nil {
		return uuid.Nil, common.NewValidationError("%s", err.Error())
	}
	return id, nil
}

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return common.NewValidationError("Invalid request format")
	}
	if err := c.Validate(req); err != nil {
		return err
	}
	return nil
}

func queryInt(c echo.Context, name string) int {
	n, err := strconv.Atoi(c.QueryParam(name))
	if err != nil {
		return 0
	}
	return n
}

func listQuery(c echo.Context) services.BillListQuery {
	return services.BillListQuery{
		Page:          queryInt(c, "page"),
		Limit:         queryInt(c, "limit"),
		PaymentStatus: c.QueryParam("paymentStatus"),
	}
}

func sendPage(c echo.Context, page *services.BillPage) error {
	return c.JSON(http.StatusOK, common.ListResponse{
		Success:     true,
		Count:       len(page.Bills),
		Total:       page.Total,
		TotalPages:  page.TotalPages,
		CurrentPage: page.Page,
		Data:        page.Bills,
	})
}

// ListBills handles GET /bills
//
//	@Summary	List bills visible to the caller
//	@Tags		bills
//	@Produce	json
//	@Param		page			query	int		false	"Page number"
//	@Param		limit			query	int		false	"Page size (max 100)"
//	@Param		paymentStatus	query	string	false	"Filter by payment status"
//	@Success	200	{object}	common.ListResponse
//	@Router		/api/bills [get]
func (h *BillHandlers) ListBills(c echo.Context) error {
	actor, err := currentPrincipal(c)
	if err != nil {
		return common.SendError(c, err)
	}
	page, err := h.billService.ListBills(c.Request().Context(), listQuery(c), actor)
	if err != nil {
		return common.SendError(c, err)
	}
	return sendPage(c, page)
}

// ListCustomerBills handles GET /bills/customer/:customerId
func (h *BillHandlers) ListCustomerBills(c echo.Context) error {
	actor, err := currentPrincipal(c)
	if err != nil {
		return common.SendError(c, err)
	}
	customerID, err := pathID(c, "customerId")
	if err != nil {
		return common.SendError(c, err)
	}
	page, err := h.billService.ListCustomerBills(c.Request().Context(), customerID, listQuery(c), actor)
	if err != nil {
		return common.SendError(c, err)
	}
	return sendPage(c, page)
}

// ListOverdueBills handles GET /bills/admin/overdue
func (h *BillHandlers) ListOverdueBills(c echo.Context) error {
	actor, err := currentPrincipal(c)
	if err != nil {
		return common.SendError(c, err)
	}
	bills, err := h.billService.ListOverdue(c.Request().Context(), actor)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, common.ListResponse{
		Success:     true,
		Count:       len(bills),
		Total:       len(bills),
		TotalPages:  1,
		CurrentPage: 1,
		Data:        bills,
	})
}

// GetBillStats handles GET /bills/admin/stats
//
//	@Summary	Bill totals for a period
//	@Tags		bills
//	@Produce	json
//	@Param		period	query	string	false	"week, month or year"
//	@Success	200	{object}	common.SuccessResponse
//	@Router		/api/bills/admin/stats [get]
func (h *BillHandlers) GetBillStats(c echo.Context) error {
	stats, err := h.analyticsService.GetBillStats(c.Request().Context(), c.QueryParam("period"))
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, common.SuccessResponse{Success: true, Data: stats})
}

// GetBill handles GET /bills/:id
//
//	@Summary	Get one bill
//	@Tags		bills
//	@Produce	json
//	@Param		id	path	string	true	"Bill ID"
//	@Success	200	{object}	common.SuccessResponse
//	@Failure	403	{object}	common.ErrorResponse
//	@Failure	404	{object}	common.ErrorResponse
//	@Router		/api/bills/{id} [get]
func (h *BillHandlers) GetBill(c echo.Context) error {
	actor, err := currentPrincipal(c)
	if err != nil {
		return common.SendError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return common.SendError(c, err)
	}
	bill, err := h.billService.GetBill(c.Request().Context(), id, actor)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, common.SuccessResponse{Success: true, Data: bill})
}

// CreateBill handles POST /bills
//
//	@Summary	Create a bill and reserve stock
//	@Tags		bills
//	@Accept		json
//	@Produce	json
//	@Param		bill	body	services.CreateBillRequest	true	"Bill request"
//	@Success	201	{object}	common.SuccessResponse
//	@Failure	400	{object}	common.ErrorResponse
//	@Failure	409	{object}	common.ErrorResponse
//	@Router		/api/bills [post]
func (h *BillHandlers) CreateBill(c echo.Context) error {
	actor, err := currentPrincipal(c)
	if err != nil {
		return common.SendError(c, err)
	}
	var req services.CreateBillRequest
	if err := bindAndValidate(c, &req); err != nil {
		return common.SendError(c, err)
	}
	bill, err := h.billService.CreateBill(c.Request().Context(), req, actor)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusCreated, common.SuccessResponse{
		Success: true,
		Message: "Bill created successfully",
		Data:    bill,
	})
}

// UpdatePayment handles PATCH /bills/:id/payment
func (h *BillHandlers) UpdatePayment(c echo.Context) error {
	actor, err := currentPrincipal(c)
	if err != nil {
		return common.SendError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return common.SendError(c, err)
	}
	var req services.UpdatePaymentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return common.SendError(c, err)
	}
	bill, err := h.billService.UpdatePayment(c.Request().Context(), id, req, actor)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, common.SuccessResponse{
		Success: true,
		Message: "Payment status updated successfully",
		Data:    bill,
	})
}

// DeleteBill handles DELETE /bills/:id
func (h *BillHandlers) DeleteBill(c echo.Context) error {
	actor, err := currentPrincipal(c)
	if err != nil {
		return common.SendError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return common.SendError(c, err)
	}
	if err := h.billService.DeleteBill(c.Request().Context(), id, actor); err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, common.SuccessResponse{Success: true, Message: "Bill deleted successfully"})
}

// generate renders and stores a fresh invoice for a bill the caller can see.
func (h *BillHandlers) generate(c echo.Context) (*services.GeneratedInvoice, error) {
	actor, err := currentPrincipal(c)
	if err != nil {
		return nil, err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return nil, err
	}
	bill, err := h.billService.GetBill(c.Request().Context(), id, actor)
	if err != nil {
		return nil, err
	}
	return h.invoiceService.Generate(c.Request().Context(), bill)
}

// GeneratePDF handles GET /bills/:id/pdf
//
//	@Summary	Render the invoice and return a download link
//	@Tags		bills
//	@Produce	json
//	@Param		id	path	string	true	"Bill ID"
//	@Success	200	{object}	common.SuccessResponse
//	@Failure	502	{object}	common.ErrorResponse
//	@Router		/api/bills/{id}/pdf [get]
func (h *BillHandlers) GeneratePDF(c echo.Context) error {
	generated, err := h.generate(c)
	if err != nil {
		return common.SendError(c, err)
	}
	url, err := h.invoiceService.DownloadURL(c.Request().Context(), generated.DocumentRef)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, common.SuccessResponse{
		Success: true,
		Message: "PDF generated successfully",
		Data: map[string]string{
			"downloadUrl": url,
			"fileName":    generated.FileName,
			"documentRef": generated.DocumentRef,
		},
	})
}

// DownloadPDF handles GET /bills/:id/download-pdf
//
//	@Summary	Render the invoice and stream it
//	@Tags		bills
//	@Produce	application/pdf
//	@Param		id	path	string	true	"Bill ID"
//	@Success	200	{file}	binary
//	@Router		/api/bills/{id}/download-pdf [get]
func (h *BillHandlers) DownloadPDF(c echo.Context) error {
	generated, err := h.generate(c)
	if err != nil {
		return common.SendError(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", generated.FileName))
	return c.Blob(http.StatusOK, "application/pdf", generated.Content)
}

// CreateOrder handles POST /bills/:id/create-order
//
//	@Summary	Create a payment gateway order for the bill
//	@Tags		payments
//	@Produce	json
//	@Param		id	path	string	true	"Bill ID"
//	@Success	200	{object}	common.SuccessResponse
//	@Failure	400	{object}	common.ErrorResponse
//	@Failure	502	{object}	common.ErrorResponse
//	@Router		/api/bills/{id}/create-order [post]
func (h *BillHandlers) CreateOrder(c echo.Context) error {
	actor, err := currentPrincipal(c)
	if err != nil {
		return common.SendError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return common.SendError(c, err)
	}
	order, err := h.paymentService.CreateOrder(c.Request().Context(), id, actor)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, common.SuccessResponse{Success: true, Data: order})
}

// VerifyPayment handles POST /bills/:id/verify-payment
//
//	@Summary	Verify a signed gateway payment and mark the bill paid
//	@Tags		payments
//	@Accept		json
//	@Produce	json
//	@Param		id		path	string							true	"Bill ID"
//	@Param		payment	body	services.VerifyPaymentRequest	true	"Gateway callback"
//	@Success	200	{object}	common.SuccessResponse
//	@Failure	400	{object}	common.ErrorResponse
//	@Router		/api/bills/{id}/verify-payment [post]
func (h *BillHandlers) VerifyPayment(c echo.Context) error {
	actor, err := currentPrincipal(c)
	if err != nil {
		return common.SendError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return common.SendError(c, err)
	}
	var req services.VerifyPaymentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return common.SendError(c, err)
	}
	bill, err := h.paymentService.VerifyPayment(c.Request().Context(), id, req, actor)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, common.SuccessResponse{
		Success: true,
		Message: "Payment verified successfully",
		Data:    bill,
	})
}

// SendEmail handles POST /bills/:id/send-email
//
//	@Summary	Email the invoice to the customer
//	@Tags		bills
//	@Accept		json
//	@Produce	json
//	@Param		id		path	string								true	"Bill ID"
//	@Param		email	body	services.SendInvoiceEmailRequest	false	"Overrides"
//	@Success	200	{object}	common.SuccessResponse
//	@Failure	429	{object}	common.ErrorResponse
//	@Failure	502	{object}	common.ErrorResponse
//	@Router		/api/bills/{id}/send-email [post]
func (h *BillHandlers) SendEmail(c echo.Context) error {
	actor, err := currentPrincipal(c)
	if err != nil {
		return common.SendError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return common.SendError(c, err)
	}
	var req services.SendInvoiceEmailRequest
	if c.Request().ContentLength != 0 {
		if err := bindAndValidate(c, &req); err != nil {
			return common.SendError(c, err)
		}
	}
	result, err := h.notificationService.SendInvoiceEmail(c.Request().Context(), id, req, &actor)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, common.SuccessResponse{
		Success: true,
		Message: "Invoice sent to " + result.Recipient,
		Data:    result,
	})
}
