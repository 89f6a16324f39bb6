package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mhasan-dev/course-market-api/internal/models"
	"github.com/mhasan-dev/course-market-api/internal/service"
	appErrors "github.com/mhasan-dev/course-market-api/pkg/errors"
	"github.com/mhasan-dev/course-market-api/pkg/response"
)

// ClassHandler exposes catalog endpoints.
type ClassHandler struct {
	catalog *service.CatalogService
	users   *service.UserService
}

// NewClassHandler constructs ClassHandler.
func NewClassHandler(catalog *service.CatalogService, users *service.UserService) *ClassHandler {
	return &ClassHandler{catalog: catalog, users: users}
}

// Create godoc
// @Summary Submit a class for moderation
// @Tags Classes
// @Accept json
// @Produce json
// @Param payload body service.CreateClassRequest true "Class descriptor"
// @Success 201 {object} response.Envelope
// @Router /classes [post]
func (h *ClassHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CreateClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	instructor, err := h.users.Get(c.Request.Context(), claims.Email)
	if err != nil {
		response.Error(c, err)
		return
	}
	class, err := h.catalog.Create(c.Request.Context(), instructor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, class)
}

// ListApproved godoc
// @Summary Public catalog of approved classes
// @Tags Classes
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /classes [get]
func (h *ClassHandler) ListApproved(c *gin.Context) {
	classes, err := h.catalog.ListApproved(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, nil)
}

// ListAll godoc
// @Summary List classes of any status
// @Tags Classes
// @Produce json
// @Param status query string false "Filter by status"
// @Param search query string false "Search by name"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /classes/all [get]
func (h *ClassHandler) ListAll(c *gin.Context) {
	var filter models.ClassFilter
	filter.Status = models.ClassStatus(c.Query("status"))
	filter.Search = c.Query("search")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	classes, pagination, err := h.catalog.ListAll(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, pagination)
}

// ListByInstructor godoc
// @Summary List an instructor's classes
// @Tags Classes
// @Produce json
// @Param email path string true "Instructor email"
// @Success 200 {object} response.Envelope
// @Router /classes/instructor/{email} [get]
func (h *ClassHandler) ListByInstructor(c *gin.Context) {
	classes, err := h.catalog.ListByInstructor(c.Request.Context(), c.Param("email"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, nil)
}

// UpdateDescriptor godoc
// @Summary Edit a class descriptor
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body models.ClassDescriptorPatch true "Descriptor patch"
// @Success 200 {object} response.Envelope
// @Router /classes/{id} [patch]
func (h *ClassHandler) UpdateDescriptor(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var patch models.ClassDescriptorPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	class, err := h.catalog.UpdateDescriptor(c.Request.Context(), c.Param("id"), claims.Email, patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// SetStatus godoc
// @Summary Approve or deny a class
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body service.SetStatusRequest true "Moderation decision"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/status [patch]
func (h *ClassHandler) SetStatus(c *gin.Context) {
	var req service.SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	class, err := h.catalog.SetStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// SetFeedback godoc
// @Summary Leave moderation feedback on a class
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body service.SetFeedbackRequest true "Feedback payload"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/feedback [patch]
func (h *ClassHandler) SetFeedback(c *gin.Context) {
	var req service.SetFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	class, err := h.catalog.SetFeedback(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}
