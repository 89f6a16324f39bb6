package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mhasan-dev/course-market-api/internal/models"
	appErrors "github.com/mhasan-dev/course-market-api/pkg/errors"
)

const approvedCatalogCacheKey = "catalog:approved"

type classRepository interface {
	Create(ctx context.Context, class *models.Class) error
	FindByID(ctx context.Context, id string) (*models.Class, error)
	ListByInstructor(ctx context.Context, email string) ([]models.Class, error)
	List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error)
	UpdateDescriptor(ctx context.Context, id string, patch models.ClassDescriptorPatch) error
	UpdateStatus(ctx context.Context, id string, status models.ClassStatus) error
	UpdateFeedback(ctx context.Context, id, feedback string) error
}

type catalogCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CreateClassRequest is the instructor-authored descriptor payload.
type CreateClassRequest struct {
	Name        string `json:"name" validate:"required"`
	Image       string `json:"image"`
	Description string `json:"description"`
	Price       int64  `json:"price" validate:"gte=0"`
	Seats       int    `json:"seats" validate:"gte=0"`
}

// SetStatusRequest carries the admin moderation decision.
type SetStatusRequest struct {
	Status models.ClassStatus `json:"status" validate:"required,oneof=approved deny"`
}

// SetFeedbackRequest carries admin feedback text.
type SetFeedbackRequest struct {
	Feedback string `json:"feedback" validate:"required"`
}

// CatalogService owns class records and their moderation lifecycle.
type CatalogService struct {
	repo      classRepository
	cache     catalogCache
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCatalogService constructs CatalogService. Cache may be nil.
func NewCatalogService(repo classRepository, cache catalogCache, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *CatalogService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{repo: repo, cache: cache, cacheTTL: cacheTTL, validator: validate, logger: logger}
}

// Create registers a new class for moderation, initial status pending.
func (s *CatalogService) Create(ctx context.Context, instructor *models.User, req CreateClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	class := &models.Class{
		Name:            req.Name,
		Image:           req.Image,
		Description:     req.Description,
		Price:           req.Price,
		Seats:           req.Seats,
		InstructorEmail: instructor.Email,
		InstructorName:  instructor.FullName,
	}
	if err := s.repo.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	return class, nil
}

// Get returns a class by ID.
func (s *CatalogService) Get(ctx context.Context, id string) (*models.Class, error) {
	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

// ListByInstructor returns every class authored by the instructor.
func (s *CatalogService) ListByInstructor(ctx context.Context, email string) ([]models.Class, error) {
	classes, err := s.repo.ListByInstructor(ctx, email)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list instructor classes")
	}
	return classes, nil
}

// ListAll returns classes of any status for admin moderation.
func (s *CatalogService) ListAll(ctx context.Context, filter models.ClassFilter) ([]models.Class, *models.Pagination, error) {
	classes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return classes, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ListApproved returns the public catalog, served from cache when warm.
func (s *CatalogService) ListApproved(ctx context.Context) ([]models.Class, error) {
	if s.cache != nil {
		var cached []models.Class
		if err := s.cache.Get(ctx, approvedCatalogCacheKey, &cached); err == nil {
			return cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("catalog cache read failed", zap.Error(err))
		}
	}

	classes, _, err := s.repo.List(ctx, models.ClassFilter{Status: models.ClassStatusApproved, PageSize: 100})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approved classes")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, approvedCatalogCacheKey, classes, s.cacheTTL); err != nil {
			s.logger.Warn("catalog cache write failed", zap.Error(err))
		}
	}
	return classes, nil
}

// UpdateDescriptor applies an instructor's partial edit to their own class.
func (s *CatalogService) UpdateDescriptor(ctx context.Context, id, instructorEmail string, patch models.ClassDescriptorPatch) (*models.Class, error) {
	class, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if class.InstructorEmail != instructorEmail {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "class belongs to another instructor")
	}
	if err := s.repo.UpdateDescriptor(ctx, id, patch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
	}
	s.invalidateCatalogCache(ctx)
	return s.Get(ctx, id)
}

// SetStatus applies the admin approve/deny decision.
func (s *CatalogService) SetStatus(ctx context.Context, id string, req SetStatusRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, id, req.Status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update status")
	}
	s.invalidateCatalogCache(ctx)
	return s.Get(ctx, id)
}

// SetFeedback records admin feedback, independent of the status decision.
func (s *CatalogService) SetFeedback(ctx context.Context, id string, req SetFeedbackRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid feedback payload")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateFeedback(ctx, id, req.Feedback); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update feedback")
	}
	s.invalidateCatalogCache(ctx)
	return s.Get(ctx, id)
}

func (s *CatalogService) invalidateCatalogCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, approvedCatalogCacheKey); err != nil {
		s.logger.Warn("catalog cache invalidation failed", zap.Error(err))
	}
}
