// Billing HTTP handlers.
//
//   - GET  /invoices                (list, filter by student_id/status)
//   - POST /invoices                (issue, idempotent)
//   - GET  /invoices/export         (xlsx)
//   - GET  /invoices/{id}
//   - POST /invoices/{id}/cancel
//   - GET  /payments
//   - POST /payments                (idempotent; may settle an invoice)
package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/tbourn/go-tutor-backend/internal/services"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// CreateInvoiceRequest is the JSON payload for issuing an invoice.
type CreateInvoiceRequest struct {
	StudentID string          `json:"student_id" binding:"required"`
	Amount    decimal.Decimal `json:"amount" swaggertype:"string" example:"99.90"`
	DueDate   *time.Time      `json:"due_date" example:"2030-06-30T00:00:00Z"`
	Notes     string          `json:"notes"`
}

// CreatePaymentRequest is the JSON payload for recording a payment.
type CreatePaymentRequest struct {
	StudentID string          `json:"student_id" binding:"required"`
	Amount    decimal.Decimal `json:"amount" swaggertype:"string" example:"99.90"`
	// Method is cash, card, transfer or online.
	Method    string  `json:"method" binding:"required" example:"card"`
	InvoiceID *string `json:"invoice_id"`
}

func billingFilter(c *gin.Context) services.BillingFilter {
	return services.BillingFilter{StudentID: c.Query("student_id"), Status: c.Query("status")}
}

// CreateInvoice godoc
// @ID          createInvoice
// @Summary     Issue an invoice
// @Description With a due date, a reminder is scheduled three days ahead of it.
// @Tags        Billing
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string  false  "Idempotency key"
// @Param       body  body  handlers.CreateInvoiceRequest  true  "Invoice"
// @Success     201  {object}  domain.Invoice
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /invoices [post]
func (h *Handlers) CreateInvoice(c *gin.Context) {
	var req CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "student_id and a numeric amount required")
		return
	}
	inv, err := h.svc.Billing.CreateInvoice(c.Request.Context(), tutorID(c), services.InvoiceInput{
		StudentID: req.StudentID,
		Amount:    req.Amount,
		DueDate:   req.DueDate,
		Notes:     req.Notes,
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusCreated, inv)
}

// ListInvoices godoc
// @ID          listInvoices
// @Summary     List invoices (paginated)
// @Tags        Billing
// @Produce     json
// @Security    BearerAuth
// @Param       student_id  query  string  false  "Only this student's invoices"
// @Param       status      query  string  false  "issued, paid, overdue or cancelled"
// @Param       page        query  int     false  "Page number"
// @Param       page_size   query  int     false  "Items per page"
// @Success     200  {object}  handlers.Page[domain.Invoice]
// @Router      /invoices [get]
func (h *Handlers) ListInvoices(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.svc.Billing.ListInvoices(c.Request.Context(), tutorID(c), billingFilter(c), page, pageSize)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, newPage(items, page, pageSize, total))
}

// GetInvoice godoc
// @ID          getInvoice
// @Summary     Get an invoice
// @Tags        Billing
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Invoice ID"
// @Success     200  {object}  domain.Invoice
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /invoices/{id} [get]
func (h *Handlers) GetInvoice(c *gin.Context) {
	inv, err := h.svc.Billing.GetInvoice(c.Request.Context(), tutorID(c), c.Param("id"))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, inv)
}

// CancelInvoice godoc
// @ID          cancelInvoice
// @Summary     Cancel an issued or overdue invoice
// @Tags        Billing
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Invoice ID"
// @Success     200  {object}  domain.Invoice
// @Failure     409  {object}  handlers.ErrorResponse  "Not cancellable"
// @Router      /invoices/{id}/cancel [post]
func (h *Handlers) CancelInvoice(c *gin.Context) {
	inv, err := h.svc.Billing.CancelInvoice(c.Request.Context(), tutorID(c), c.Param("id"))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, inv)
}

// ExportInvoices godoc
// @ID          exportInvoices
// @Summary     Export invoices as an Excel workbook
// @Tags        Billing
// @Produce     application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security    BearerAuth
// @Param       student_id  query  string  false  "Only this student's invoices"
// @Param       status      query  string  false  "Status filter"
// @Success     200  {file}    file
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /invoices/export [get]
func (h *Handlers) ExportInvoices(c *gin.Context) {
	data, err := h.svc.Billing.ExportInvoices(c.Request.Context(), tutorID(c), billingFilter(c))
	if err != nil {
		serviceError(c, err)
		return
	}
	name := fmt.Sprintf("invoices-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, xlsxContentType, data)
}

// ListPayments godoc
// @ID          listPayments
// @Summary     List payments (paginated)
// @Tags        Billing
// @Produce     json
// @Security    BearerAuth
// @Param       student_id  query  string  false  "Only this student's payments"
// @Success     200  {object}  handlers.Page[domain.Payment]
// @Router      /payments [get]
func (h *Handlers) ListPayments(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.svc.Billing.ListPayments(c.Request.Context(), tutorID(c), c.Query("student_id"), page, pageSize)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, newPage(items, page, pageSize, total))
}

// CreatePayment godoc
// @ID          createPayment
// @Summary     Record a payment
// @Description When invoice_id is set, the invoice is marked paid in the same transaction.
// @Tags        Billing
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string  false  "Idempotency key"
// @Param       body  body  handlers.CreatePaymentRequest  true  "Payment"
// @Success     201  {object}  domain.Payment
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse  "Invoice not payable"
// @Router      /payments [post]
func (h *Handlers) CreatePayment(c *gin.Context) {
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "student_id, amount and method required")
		return
	}
	p, err := h.svc.Billing.CreatePayment(c.Request.Context(), tutorID(c), services.PaymentInput{
		StudentID: req.StudentID,
		Amount:    req.Amount,
		Method:    req.Method,
		InvoiceID: req.InvoiceID,
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusCreated, p)
}
