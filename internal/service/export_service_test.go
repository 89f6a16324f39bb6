package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mhasan-dev/course-market-api/internal/models"
	appErrors "github.com/mhasan-dev/course-market-api/pkg/errors"
)

type stubHistoryReader struct {
	records []models.EnrichedClass
}

func (s *stubHistoryReader) PaymentHistory(ctx context.Context, email string) ([]models.EnrichedClass, error) {
	return s.records, nil
}

func historyRecord() models.EnrichedClass {
	tx := "tx-1"
	enrolledAt := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	return models.EnrichedClass{
		Class: models.Class{
			ID:             "c1",
			Name:           "Algebra",
			Price:          4900,
			InstructorName: "Teacher A",
		},
		StudentEmail:  "s@example.com",
		Enrolled:      true,
		TransactionID: &tx,
		EnrolledAt:    &enrolledAt,
	}
}

func TestExportServicePaymentHistoryCSV(t *testing.T) {
	svc := NewExportService(&stubHistoryReader{records: []models.EnrichedClass{historyRecord()}}, zap.NewNop())

	result, err := svc.PaymentHistory(context.Background(), "s@example.com", "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", result.ContentType)
	assert.Equal(t, "payment-history.csv", result.Filename)

	body := string(result.Body)
	lines := strings.Split(strings.TrimSpace(body), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Class")
	assert.Contains(t, lines[1], "Algebra")
	assert.Contains(t, lines[1], "49.00")
	assert.Contains(t, lines[1], "tx-1")
	assert.Contains(t, lines[1], "2026-03-14T10:00:00Z")
}

func TestExportServicePaymentHistoryDefaultsToCSV(t *testing.T) {
	svc := NewExportService(&stubHistoryReader{}, zap.NewNop())

	result, err := svc.PaymentHistory(context.Background(), "s@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", result.ContentType)
}

func TestExportServicePaymentHistoryPDF(t *testing.T) {
	svc := NewExportService(&stubHistoryReader{records: []models.EnrichedClass{historyRecord()}}, zap.NewNop())

	result, err := svc.PaymentHistory(context.Background(), "s@example.com", "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.Equal(t, "payment-history.pdf", result.Filename)
	assert.NotEmpty(t, result.Body)
}

func TestExportServicePaymentHistoryUnknownFormat(t *testing.T) {
	svc := NewExportService(&stubHistoryReader{}, zap.NewNop())

	_, err := svc.PaymentHistory(context.Background(), "s@example.com", "xml")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
