package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mhasan-dev/course-market-api/internal/service"
	appErrors "github.com/mhasan-dev/course-market-api/pkg/errors"
	"github.com/mhasan-dev/course-market-api/pkg/response"
)

// SelectionHandler exposes the selection ledger endpoints.
type SelectionHandler struct {
	selections     *service.SelectionService
	reconciliation *service.ReconciliationService
}

// NewSelectionHandler constructs SelectionHandler.
func NewSelectionHandler(selections *service.SelectionService, reconciliation *service.ReconciliationService) *SelectionHandler {
	return &SelectionHandler{selections: selections, reconciliation: reconciliation}
}

// Select godoc
// @Summary Select a class
// @Tags Selections
// @Accept json
// @Produce json
// @Param payload body service.SelectClassRequest true "Selection payload"
// @Success 201 {object} response.Envelope
// @Router /selectOrEnroll [post]
func (h *SelectionHandler) Select(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.SelectClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if req.StudentEmail != claims.Email {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "cannot select classes for another student"))
		return
	}
	entry, err := h.selections.Select(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// Get godoc
// @Summary Fetch the ledger entry for a (student, class name) pair
// @Tags Selections
// @Produce json
// @Param className query string true "Class name"
// @Param selectedEmail query string true "Student email"
// @Success 200 {object} response.Envelope
// @Router /selectOrEnroll [get]
func (h *SelectionHandler) Get(c *gin.Context) {
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
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "cannot read another student's selection"))
		return
	}
	entry, err := h.selections.Get(c.Request.Context(), email, className)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Unselect godoc
// @Summary Cancel a selection
// @Tags Selections
// @Produce json
// @Param id query string true "Class ID"
// @Param selectedEmail query string true "Student email"
// @Success 200 {object} response.Envelope
// @Router /selectedClass/delete [delete]
func (h *SelectionHandler) Unselect(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	classID := c.Query("id")
	email := c.Query("selectedEmail")
	if classID == "" || email == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "id and selectedEmail are required"))
		return
	}
	if email != claims.Email {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "cannot cancel another student's selection"))
		return
	}
	result, err := h.selections.Unselect(c.Request.Context(), email, classID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Selected godoc
// @Summary Enriched list of a student's selected classes
// @Tags Selections
// @Produce json
// @Param email path string true "Student email"
// @Success 200 {object} response.Envelope
// @Router /classes/selected/{email} [get]
func (h *SelectionHandler) Selected(c *gin.Context) {
	classes, err := h.reconciliation.SelectedClasses(c.Request.Context(), c.Param("email"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, nil)
}

// Enrolled godoc
// @Summary Enriched list of a student's enrolled classes
// @Tags Selections
// @Produce json
// @Param email path string true "Student email"
// @Success 200 {object} response.Envelope
// @Router /classes/enrolled/{email} [get]
func (h *SelectionHandler) Enrolled(c *gin.Context) {
	classes, err := h.reconciliation.EnrolledClasses(c.Request.Context(), c.Param("email"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, nil)
}
