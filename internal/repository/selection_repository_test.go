package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhasan-dev/course-market-api/internal/models"
)

func newSelectionRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestSelectionRepositorySelect(t *testing.T) {
	db, mock, cleanup := newSelectionRepoMock(t)
	defer cleanup()
	repo := NewSelectionRepository(db)

	mock.ExpectExec("INSERT INTO selections").
		WithArgs(sqlmock.AnyArg(), "student@example.com", "c1", "Algebra", string(models.SelectionStatusSelected), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	entry := &models.Selection{StudentEmail: "student@example.com", ClassID: "c1", ClassName: "Algebra"}
	require.NoError(t, repo.Select(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, models.SelectionStatusSelected, entry.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectionRepositorySelectIsIdempotent(t *testing.T) {
	db, mock, cleanup := newSelectionRepoMock(t)
	defer cleanup()
	repo := NewSelectionRepository(db)

	// The second insert hits the unique constraint and is swallowed by
	// ON CONFLICT DO NOTHING: zero rows affected, no error.
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (student_email, class_id) DO NOTHING")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (student_email, class_id) DO NOTHING")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	first := &models.Selection{StudentEmail: "student@example.com", ClassID: "c1", ClassName: "Algebra"}
	require.NoError(t, repo.Select(context.Background(), first))
	second := &models.Selection{StudentEmail: "student@example.com", ClassID: "c1", ClassName: "Algebra"}
	require.NoError(t, repo.Select(context.Background(), second))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectionRepositoryFindByStudentAndClassID(t *testing.T) {
	db, mock, cleanup := newSelectionRepoMock(t)
	defer cleanup()
	repo := NewSelectionRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "student_email", "class_id", "class_name", "status", "payment_intent_id", "transaction_id", "enrolled_at", "created_at", "updated_at"}).
		AddRow("s1", "student@example.com", "c1", "Algebra", "SELECTED", nil, nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM selections WHERE student_email = $1 AND class_id = $2")).
		WithArgs("student@example.com", "c1").
		WillReturnRows(rows)

	entry, err := repo.FindByStudentAndClassID(context.Background(), "student@example.com", "c1")
	require.NoError(t, err)
	assert.Equal(t, "s1", entry.ID)
	assert.Equal(t, models.SelectionStatusSelected, entry.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectionRepositoryDeleteSelectedGuard(t *testing.T) {
	db, mock, cleanup := newSelectionRepoMock(t)
	defer cleanup()
	repo := NewSelectionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM selections WHERE student_email = $1 AND class_id = $2 AND status = $3")).
		WithArgs("student@example.com", "c1", string(models.SelectionStatusSelected)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	affected, err := repo.DeleteSelected(context.Background(), "student@example.com", "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	// An enrolled row never matches the status guard.
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM selections WHERE student_email = $1 AND class_id = $2 AND status = $3")).
		WithArgs("student@example.com", "c2", string(models.SelectionStatusSelected)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	affected, err = repo.DeleteSelected(context.Background(), "student@example.com", "c2")
	require.NoError(t, err)
	assert.Zero(t, affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectionRepositoryConfirmPaymentUpsert(t *testing.T) {
	db, mock, cleanup := newSelectionRepoMock(t)
	defer cleanup()
	repo := NewSelectionRepository(db)

	tx := "tx-100"
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (student_email, class_id) DO UPDATE SET")).
		WithArgs(sqlmock.AnyArg(), "student@example.com", "c1", "Algebra", string(models.SelectionStatusEnrolled), nil, &tx, sqlmock.AnyArg(), []byte(`{"receipt_no":"R-7"}`), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &models.Selection{
		StudentEmail:  "student@example.com",
		ClassID:       "c1",
		ClassName:     "Algebra",
		TransactionID: &tx,
		Extra:         models.SelectionExtra{"receipt_no": "R-7"},
	}
	require.NoError(t, repo.ConfirmPayment(context.Background(), entry))
	assert.Equal(t, models.SelectionStatusEnrolled, entry.Status)
	assert.NotNil(t, entry.EnrolledAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectionRepositoryConfirmPaymentMergesExtraIntoRow(t *testing.T) {
	db, mock, cleanup := newSelectionRepoMock(t)
	defer cleanup()
	repo := NewSelectionRepository(db)

	tx := "tx-101"
	mock.ExpectExec(regexp.QuoteMeta("extra = COALESCE(selections.extra, '{}'::jsonb) || EXCLUDED.extra")).
		WithArgs(sqlmock.AnyArg(), "student@example.com", "c1", "Algebra", string(models.SelectionStatusEnrolled), nil, &tx, sqlmock.AnyArg(), []byte(`{"invoice":"INV-42"}`), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &models.Selection{
		StudentEmail:  "student@example.com",
		ClassID:       "c1",
		ClassName:     "Algebra",
		TransactionID: &tx,
		Extra:         models.SelectionExtra{"invoice": "INV-42"},
	}
	require.NoError(t, repo.ConfirmPayment(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectionRepositoryMarkPendingPayment(t *testing.T) {
	db, mock, cleanup := newSelectionRepoMock(t)
	defer cleanup()
	repo := NewSelectionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE selections SET status = $2, payment_intent_id = $3, updated_at = $4 WHERE id = $1 AND status = $5")).
		WithArgs("s1", string(models.SelectionStatusPendingPayment), "pi_1", sqlmock.AnyArg(), string(models.SelectionStatusSelected)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkPendingPayment(context.Background(), "s1", "pi_1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectionRepositoryListEnrolledHistory(t *testing.T) {
	db, mock, cleanup := newSelectionRepoMock(t)
	defer cleanup()
	repo := NewSelectionRepository(db)

	now := time.Now()
	earlier := now.Add(-time.Hour)
	tx1, tx2 := "tx-1", "tx-2"
	rows := sqlmock.NewRows([]string{"id", "student_email", "class_id", "class_name", "status", "payment_intent_id", "transaction_id", "enrolled_at", "created_at", "updated_at"}).
		AddRow("s2", "student@example.com", "c2", "Geometry", "ENROLLED", nil, &tx2, now, earlier, now).
		AddRow("s1", "student@example.com", "c1", "Algebra", "ENROLLED", nil, &tx1, earlier, earlier, earlier)
	mock.ExpectQuery(regexp.QuoteMeta("transaction_id IS NOT NULL ORDER BY enrolled_at DESC")).
		WithArgs("student@example.com", string(models.SelectionStatusEnrolled)).
		WillReturnRows(rows)

	entries, err := repo.ListEnrolledHistory(context.Background(), "student@example.com")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "s2", entries[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectionRepositoryListPendingOlderThan(t *testing.T) {
	db, mock, cleanup := newSelectionRepoMock(t)
	defer cleanup()
	repo := NewSelectionRepository(db)

	cutoff := time.Now().Add(-15 * time.Minute)
	intent := "pi_1"
	rows := sqlmock.NewRows([]string{"id", "student_email", "class_id", "class_name", "status", "payment_intent_id", "transaction_id", "enrolled_at", "created_at", "updated_at"}).
		AddRow("s1", "student@example.com", "c1", "Algebra", "PENDING_PAYMENT", &intent, nil, nil, cutoff.Add(-time.Hour), cutoff.Add(-time.Hour))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = $1 AND updated_at < $2 ORDER BY updated_at")).
		WithArgs(string(models.SelectionStatusPendingPayment), cutoff).
		WillReturnRows(rows)

	entries, err := repo.ListPendingOlderThan(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].PaymentIntentID)
	assert.Equal(t, "pi_1", *entries[0].PaymentIntentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
