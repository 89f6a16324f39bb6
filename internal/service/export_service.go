package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mhasan-dev/course-market-api/internal/models"
	appErrors "github.com/mhasan-dev/course-market-api/pkg/errors"
	"github.com/mhasan-dev/course-market-api/pkg/export"
)

type paymentHistoryReader interface {
	PaymentHistory(ctx context.Context, email string) ([]models.EnrichedClass, error)
}

// ExportResult is a rendered document ready to stream to the client.
type ExportResult struct {
	ContentType string
	Filename    string
	Body        []byte
}

// ExportService renders a student's payment history as CSV or PDF receipts.
type ExportService struct {
	history paymentHistoryReader
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	logger  *zap.Logger
}

// NewExportService constructs ExportService.
func NewExportService(history paymentHistoryReader, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		history: history,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		logger:  logger,
	}
}

// PaymentHistory renders the student's confirmed payments in the requested
// format ("csv" or "pdf").
func (s *ExportService) PaymentHistory(ctx context.Context, email, format string) (*ExportResult, error) {
	records, err := s.history.PaymentHistory(ctx, email)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Headers: []string{"Class", "Instructor", "Amount", "Transaction", "Date"},
		Rows:    make([]map[string]string, 0, len(records)),
	}
	for _, record := range records {
		tx := ""
		if record.TransactionID != nil {
			tx = *record.TransactionID
		}
		date := ""
		if record.EnrolledAt != nil {
			date = record.EnrolledAt.UTC().Format(time.RFC3339)
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Class":       record.Name,
			"Instructor":  record.InstructorName,
			"Amount":      fmt.Sprintf("%.2f", float64(record.Price)/100),
			"Transaction": tx,
			"Date":        date,
		})
	}

	switch strings.ToLower(format) {
	case "", "csv":
		body, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportResult{ContentType: "text/csv", Filename: "payment-history.csv", Body: body}, nil
	case "pdf":
		body, err := s.pdf.Render(dataset, "Payment History")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportResult{ContentType: "application/pdf", Filename: "payment-history.pdf", Body: body}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}
