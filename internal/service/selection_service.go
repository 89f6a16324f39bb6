package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mhasan-dev/course-market-api/internal/models"
	appErrors "github.com/mhasan-dev/course-market-api/pkg/errors"
)

type selectionRepository interface {
	Select(ctx context.Context, entry *models.Selection) error
	FindByStudentAndClassID(ctx context.Context, email, classID string) (*models.Selection, error)
	FindByStudentAndClassName(ctx context.Context, email, className string) (*models.Selection, error)
	DeleteSelected(ctx context.Context, email, classID string) (int64, error)
	ListByStudent(ctx context.Context, email string, statuses ...models.SelectionStatus) ([]models.Selection, error)
}

type selectionClassReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

// SelectClassRequest records a student's intent to take a class.
type SelectClassRequest struct {
	StudentEmail string `json:"student_email" validate:"required,email"`
	ClassID      string `json:"class_id" validate:"required"`
}

// UnselectResult reports the outcome of a cancel request. Deleted is zero
// when the entry was absent or no longer cancellable.
type UnselectResult struct {
	Deleted int64 `json:"deleted"`
}

// SelectionService owns the selection side of the ledger: select, cancel,
// and raw state lookups. Payment transitions live in PaymentService.
type SelectionService struct {
	repo      selectionRepository
	classes   selectionClassReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSelectionService constructs SelectionService.
func NewSelectionService(repo selectionRepository, classes selectionClassReader, validate *validator.Validate, logger *zap.Logger) *SelectionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SelectionService{repo: repo, classes: classes, validator: validate, logger: logger}
}

// Select creates the ledger entry for (student, class). The write is an
// upsert on the natural key, so retries and races converge to one row.
func (s *SelectionService) Select(ctx context.Context, req SelectClassRequest) (*models.Selection, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid selection payload")
	}

	class, err := s.classes.FindByID(ctx, req.ClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if class.Status != models.ClassStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrClassNotApproved, "class is not open for selection")
	}

	entry := &models.Selection{
		StudentEmail: req.StudentEmail,
		ClassID:      class.ID,
		ClassName:    class.Name,
	}
	if err := s.repo.Select(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record selection")
	}

	// The upsert may have been a no-op against an existing row; re-read to
	// return the authoritative state.
	stored, err := s.repo.FindByStudentAndClassID(ctx, req.StudentEmail, class.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load selection")
	}
	if stored.Status == models.SelectionStatusEnrolled {
		return nil, appErrors.Clone(appErrors.ErrAlreadyEnrolled, "student already enrolled in class")
	}
	return stored, nil
}

// Unselect cancels a selection by class ID. Entries that moved past SELECTED
// are untouched; the result reports zero rows removed.
func (s *SelectionService) Unselect(ctx context.Context, email, classID string) (*UnselectResult, error) {
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	deleted, err := s.repo.DeleteSelected(ctx, email, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel selection")
	}
	return &UnselectResult{Deleted: deleted}, nil
}

// Get returns the single ledger entry for (student, class name).
func (s *SelectionService) Get(ctx context.Context, email, className string) (*models.Selection, error) {
	entry, err := s.repo.FindByStudentAndClassName(ctx, email, className)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no selection for class")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load selection")
	}
	return entry, nil
}

// ListByState returns raw ledger entries for a student. "selected" includes
// entries whose payment is still pending; "enrolled" is confirmed only.
func (s *SelectionService) ListByState(ctx context.Context, email string, enrolled bool) ([]models.Selection, error) {
	var statuses []models.SelectionStatus
	if enrolled {
		statuses = []models.SelectionStatus{models.SelectionStatusEnrolled}
	} else {
		statuses = []models.SelectionStatus{models.SelectionStatusSelected, models.SelectionStatusPendingPayment}
	}
	entries, err := s.repo.ListByStudent(ctx, email, statuses...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list selections")
	}
	return entries, nil
}
