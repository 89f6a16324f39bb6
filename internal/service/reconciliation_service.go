package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/mhasan-dev/course-market-api/internal/models"
	appErrors "github.com/mhasan-dev/course-market-api/pkg/errors"
)

type reconciliationLedger interface {
	ListByStudent(ctx context.Context, email string, statuses ...models.SelectionStatus) ([]models.Selection, error)
	ListEnrolledHistory(ctx context.Context, email string) ([]models.Selection, error)
}

type reconciliationCatalog interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.Class, error)
	FindByNames(ctx context.Context, names []string) ([]models.Class, error)
}

// ReconciliationService assembles student-facing views by joining ledger
// entries against the catalog at read time. The catalog and the ledger have
// independent lifecycles, so a missing counterpart is never an error.
type ReconciliationService struct {
	ledger  reconciliationLedger
	catalog reconciliationCatalog
	logger  *zap.Logger
}

// NewReconciliationService constructs ReconciliationService.
func NewReconciliationService(ledger reconciliationLedger, catalog reconciliationCatalog, logger *zap.Logger) *ReconciliationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationService{ledger: ledger, catalog: catalog, logger: logger}
}

// BuildEnrichedList joins ledger entries with catalog entries. The class ID
// is the primary join key; entries lacking a resolvable ID fall back to
// exact, case-sensitive name equality. Per entry:
//   - zero catalog matches: the entry contributes no output record;
//   - multiple name matches: the most recently created class wins and the
//     ambiguity is logged as a data-integrity warning.
//
// Output order follows the input entry order.
func (s *ReconciliationService) BuildEnrichedList(entries []models.Selection, classes []models.Class) []models.EnrichedClass {
	byID := make(map[string]models.Class, len(classes))
	byName := make(map[string][]models.Class)
	for _, class := range classes {
		byID[class.ID] = class
		byName[class.Name] = append(byName[class.Name], class)
	}

	result := make([]models.EnrichedClass, 0, len(entries))
	for _, entry := range entries {
		class, ok := byID[entry.ClassID]
		if !ok {
			candidates := byName[entry.ClassName]
			if len(candidates) == 0 {
				continue
			}
			if len(candidates) > 1 {
				s.logger.Warn("ambiguous class name in ledger join",
					zap.String("class_name", entry.ClassName),
					zap.String("student_email", entry.StudentEmail),
					zap.Int("candidates", len(candidates)),
				)
			}
			class = newestClass(candidates)
		}

		result = append(result, models.EnrichedClass{
			Class:         class,
			StudentEmail:  entry.StudentEmail,
			Selected:      entry.Selected(),
			Enrolled:      entry.Enrolled(),
			TransactionID: entry.TransactionID,
			EnrolledAt:    entry.EnrolledAt,
		})
	}
	return result
}

// SelectedClasses returns the enriched "my selected classes" view.
func (s *ReconciliationService) SelectedClasses(ctx context.Context, email string) ([]models.EnrichedClass, error) {
	entries, err := s.ledger.ListByStudent(ctx, email, models.SelectionStatusSelected, models.SelectionStatusPendingPayment)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list selections")
	}
	return s.enrich(ctx, entries)
}

// EnrolledClasses returns the enriched "my enrolled classes" view.
func (s *ReconciliationService) EnrolledClasses(ctx context.Context, email string) ([]models.EnrichedClass, error) {
	entries, err := s.ledger.ListByStudent(ctx, email, models.SelectionStatusEnrolled)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return s.enrich(ctx, entries)
}

// PaymentHistory returns confirmed payments newest first, each record
// carrying its transaction id and date.
func (s *ReconciliationService) PaymentHistory(ctx context.Context, email string) ([]models.EnrichedClass, error) {
	entries, err := s.ledger.ListEnrolledHistory(ctx, email)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payment history")
	}
	return s.enrich(ctx, entries)
}

func (s *ReconciliationService) enrich(ctx context.Context, entries []models.Selection) ([]models.EnrichedClass, error) {
	if len(entries) == 0 {
		return []models.EnrichedClass{}, nil
	}

	ids := make([]string, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if entry.ClassID == "" {
			continue
		}
		if _, dup := seen[entry.ClassID]; dup {
			continue
		}
		seen[entry.ClassID] = struct{}{}
		ids = append(ids, entry.ClassID)
	}

	classes, err := s.catalog.FindByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classes")
	}

	// Entries whose ID did not resolve (legacy rows, renamed classes) get one
	// more chance through the name join.
	resolved := make(map[string]struct{}, len(classes))
	for _, class := range classes {
		resolved[class.ID] = struct{}{}
	}
	var names []string
	nameSeen := make(map[string]struct{})
	for _, entry := range entries {
		if _, ok := resolved[entry.ClassID]; ok {
			continue
		}
		if _, dup := nameSeen[entry.ClassName]; dup || entry.ClassName == "" {
			continue
		}
		nameSeen[entry.ClassName] = struct{}{}
		names = append(names, entry.ClassName)
	}
	if len(names) > 0 {
		fallback, err := s.catalog.FindByNames(ctx, names)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classes by name")
		}
		classes = append(classes, fallback...)
	}

	return s.BuildEnrichedList(entries, classes), nil
}

func newestClass(candidates []models.Class) models.Class {
	newest := candidates[0]
	for _, c := range candidates[1:] {
		if c.CreatedAt.After(newest.CreatedAt) {
			newest = c
		}
	}
	return newest
}
