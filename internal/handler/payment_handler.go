package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mhasan-dev/course-market-api/internal/models"
	"github.com/mhasan-dev/course-market-api/internal/service"
	appErrors "github.com/mhasan-dev/course-market-api/pkg/errors"
	"github.com/mhasan-dev/course-market-api/pkg/response"
)

// PaymentHandler exposes the payment intent, confirmation and history
// endpoints.
type PaymentHandler struct {
	payments       *service.PaymentService
	reconciliation *service.ReconciliationService
	exports        *service.ExportService
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(payments *service.PaymentService, reconciliation *service.ReconciliationService, exports *service.ExportService) *PaymentHandler {
	return &PaymentHandler{payments: payments, reconciliation: reconciliation, exports: exports}
}

// CreateIntent godoc
// @Summary Create a payment intent for a selected class
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body service.CreateIntentRequest true "Intent payload"
// @Success 200 {object} response.Envelope
// @Router /create-payment-intent [post]
func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if req.StudentEmail == "" {
		req.StudentEmail = claims.Email
	}
	if req.StudentEmail != claims.Email {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "cannot create payment intents for another student"))
		return
	}
	intent, err := h.payments.CreateIntent(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, intent, nil)
}

// Confirm godoc
// @Summary Record a successful payment and finalize the enrollment
// @Tags Payments
// @Accept json
// @Produce json
// @Param className query string true "Class name"
// @Param selectedEmail query string true "Student email"
// @Param payload body models.PaymentConfirmation true "Confirmation payload"
// @Success 200 {object} response.Envelope
// @Router /enroll/payments [patch]
func (h *PaymentHandler) Confirm(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	className := c.Query("className")
	email := c.Query("selectedEmail")
	if className == "" || email == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "className and selectedEmail are required"))
		return
	}
	if email != claims.Email {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "cannot confirm payments for another student"))
		return
	}
	var req models.PaymentConfirmation
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.StudentEmail = email
	req.ClassName = className
	entry, err := h.payments.Confirm(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// History godoc
// @Summary Confirmed payments for a student, most recent first
// @Tags Payments
// @Produce json
// @Param email path string true "Student email"
// @Success 200 {object} response.Envelope
// @Router /classes/payments-history/{email} [get]
func (h *PaymentHandler) History(c *gin.Context) {
	records, err := h.reconciliation.PaymentHistory(c.Request.Context(), c.Param("email"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// ExportHistory godoc
// @Summary Download payment history as CSV or PDF
// @Tags Payments
// @Produce text/csv
// @Produce application/pdf
// @Param email path string true "Student email"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Router /classes/payments-history/{email}/export [get]
func (h *PaymentHandler) ExportHistory(c *gin.Context) {
	result, err := h.exports.PaymentHistory(c.Request.Context(), c.Param("email"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+result.Filename)
	c.Data(http.StatusOK, result.ContentType, result.Body)
}
