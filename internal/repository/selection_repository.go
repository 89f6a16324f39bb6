package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mhasan-dev/course-market-api/internal/models"
)

const selectionColumns = "id, student_email, class_id, class_name, status, payment_intent_id, transaction_id, enrolled_at, extra, created_at, updated_at"

// SelectionRepository persists the per-student-per-class ledger. The table
// carries a unique constraint on (student_email, class_id); every write that
// could race goes through a single-statement upsert against that key.
type SelectionRepository struct {
	db *sqlx.DB
}

// NewSelectionRepository constructs the repository.
func NewSelectionRepository(db *sqlx.DB) *SelectionRepository {
	return &SelectionRepository{db: db}
}

// Select records a student's intent to take a class. Concurrent or repeated
// selects for the same (student, class) pair converge to a single row.
func (r *SelectionRepository) Select(ctx context.Context, entry *models.Selection) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.Status = models.SelectionStatusSelected
	now := time.Now().UTC()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	const query = `INSERT INTO selections (id, student_email, class_id, class_name, status, created_at, updated_at)
        VALUES (:id, :student_email, :class_id, :class_name, :status, :created_at, :updated_at)
        ON CONFLICT (student_email, class_id) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("select class: %w", err)
	}
	return nil
}

// FindByStudentAndClassID returns the ledger entry for the natural key.
func (r *SelectionRepository) FindByStudentAndClassID(ctx context.Context, email, classID string) (*models.Selection, error) {
	query := fmt.Sprintf("SELECT %s FROM selections WHERE student_email = $1 AND class_id = $2", selectionColumns)
	var entry models.Selection
	if err := r.db.GetContext(ctx, &entry, query, email, classID); err != nil {
		return nil, err
	}
	return &entry, nil
}

// FindByStudentAndClassName is the legacy lookup by denormalized class name.
func (r *SelectionRepository) FindByStudentAndClassName(ctx context.Context, email, className string) (*models.Selection, error) {
	query := fmt.Sprintf("SELECT %s FROM selections WHERE student_email = $1 AND class_name = $2", selectionColumns)
	var entry models.Selection
	if err := r.db.GetContext(ctx, &entry, query, email, className); err != nil {
		return nil, err
	}
	return &entry, nil
}

// DeleteSelected removes the entry only while it is still SELECTED. Returns
// the number of rows removed; zero means the entry was absent, pending
// payment, or already enrolled.
func (r *SelectionRepository) DeleteSelected(ctx context.Context, email, classID string) (int64, error) {
	const query = `DELETE FROM selections WHERE student_email = $1 AND class_id = $2 AND status = $3`
	result, err := r.db.ExecContext(ctx, query, email, classID, models.SelectionStatusSelected)
	if err != nil {
		return 0, fmt.Errorf("delete selection: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete selection rows: %w", err)
	}
	return affected, nil
}

// MarkPendingPayment transitions SELECTED -> PENDING_PAYMENT and records the
// gateway intent id. The status guard keeps an already-enrolled row intact.
func (r *SelectionRepository) MarkPendingPayment(ctx context.Context, id, intentID string) error {
	const query = `UPDATE selections SET status = $2, payment_intent_id = $3, updated_at = $4 WHERE id = $1 AND status = $5`
	if _, err := r.db.ExecContext(ctx, query, id, models.SelectionStatusPendingPayment, intentID, time.Now().UTC(), models.SelectionStatusSelected); err != nil {
		return fmt.Errorf("mark pending payment: %w", err)
	}
	return nil
}

// RevertPending returns a PENDING_PAYMENT entry to SELECTED after the gateway
// reports the intent failed or was canceled.
func (r *SelectionRepository) RevertPending(ctx context.Context, id string) error {
	const query = `UPDATE selections SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`
	if _, err := r.db.ExecContext(ctx, query, id, models.SelectionStatusSelected, time.Now().UTC(), models.SelectionStatusPendingPayment); err != nil {
		return fmt.Errorf("revert pending payment: %w", err)
	}
	return nil
}

// ConfirmPayment atomically upserts the entry to ENROLLED. Calling it again
// with the same transaction id converges to the same single row; a different
// transaction id against an already-enrolled row is ignored (first charge
// wins). Billing metadata in entry.Extra is merged key-wise into the stored
// row.
func (r *SelectionRepository) ConfirmPayment(ctx context.Context, entry *models.Selection) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.Status = models.SelectionStatusEnrolled
	now := time.Now().UTC()
	if entry.EnrolledAt == nil {
		entry.EnrolledAt = &now
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	const query = `INSERT INTO selections (id, student_email, class_id, class_name, status, payment_intent_id, transaction_id, enrolled_at, extra, created_at, updated_at)
        VALUES (:id, :student_email, :class_id, :class_name, :status, :payment_intent_id, :transaction_id, :enrolled_at, :extra, :created_at, :updated_at)
        ON CONFLICT (student_email, class_id) DO UPDATE SET
            status = EXCLUDED.status,
            transaction_id = EXCLUDED.transaction_id,
            enrolled_at = EXCLUDED.enrolled_at,
            extra = COALESCE(selections.extra, '{}'::::jsonb) || EXCLUDED.extra,
            updated_at = EXCLUDED.updated_at
        WHERE selections.transaction_id IS NULL OR selections.transaction_id = EXCLUDED.transaction_id`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("confirm payment: %w", err)
	}
	return nil
}

// ListByStudent returns raw ledger entries for a student in any of the given
// states, insertion order.
func (r *SelectionRepository) ListByStudent(ctx context.Context, email string, statuses ...models.SelectionStatus) ([]models.Selection, error) {
	if len(statuses) == 0 {
		query := fmt.Sprintf("SELECT %s FROM selections WHERE student_email = $1 ORDER BY created_at", selectionColumns)
		var entries []models.Selection
		if err := r.db.SelectContext(ctx, &entries, query, email); err != nil {
			return nil, fmt.Errorf("list selections: %w", err)
		}
		return entries, nil
	}

	placeholders := make([]string, len(statuses))
	args := make([]interface{}, 0, len(statuses)+1)
	args = append(args, email)
	for i, status := range statuses {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, status)
	}
	query := fmt.Sprintf("SELECT %s FROM selections WHERE student_email = $1 AND status IN (%s) ORDER BY created_at", selectionColumns, strings.Join(placeholders, ","))
	var entries []models.Selection
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list selections: %w", err)
	}
	return entries, nil
}

// ListEnrolledHistory returns confirmed enrollments newest payment first.
func (r *SelectionRepository) ListEnrolledHistory(ctx context.Context, email string) ([]models.Selection, error) {
	query := fmt.Sprintf(`SELECT %s FROM selections WHERE student_email = $1 AND status = $2 AND transaction_id IS NOT NULL ORDER BY enrolled_at DESC`, selectionColumns)
	var entries []models.Selection
	if err := r.db.SelectContext(ctx, &entries, query, email, models.SelectionStatusEnrolled); err != nil {
		return nil, fmt.Errorf("list payment history: %w", err)
	}
	return entries, nil
}

// ListPendingOlderThan returns PENDING_PAYMENT entries last touched before the
// cutoff, for the reconciliation sweep.
func (r *SelectionRepository) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]models.Selection, error) {
	query := fmt.Sprintf("SELECT %s FROM selections WHERE status = $1 AND updated_at < $2 ORDER BY updated_at", selectionColumns)
	var entries []models.Selection
	if err := r.db.SelectContext(ctx, &entries, query, models.SelectionStatusPendingPayment, cutoff); err != nil {
		return nil, fmt.Errorf("list pending payments: %w", err)
	}
	return entries, nil
}
