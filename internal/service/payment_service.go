package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mhasan-dev/course-market-api/internal/gateway"
	"github.com/mhasan-dev/course-market-api/internal/models"
	appErrors "github.com/mhasan-dev/course-market-api/pkg/errors"
)

type paymentLedger interface {
	FindByStudentAndClassID(ctx context.Context, email, classID string) (*models.Selection, error)
	FindByStudentAndClassName(ctx context.Context, email, className string) (*models.Selection, error)
	MarkPendingPayment(ctx context.Context, id, intentID string) error
	RevertPending(ctx context.Context, id string) error
	ConfirmPayment(ctx context.Context, entry *models.Selection) error
	ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]models.Selection, error)
}

type paymentCatalog interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
	FindByName(ctx context.Context, name string) ([]models.Class, error)
}

// CreateIntentRequest asks the gateway for a payment authorization. ClassID
// is optional; when present the ledger entry is parked in PENDING_PAYMENT so
// the sweep can recover an orphaned charge.
type CreateIntentRequest struct {
	StudentEmail string `json:"student_email" validate:"required,email"`
	ClassID      string `json:"class_id"`
	Price        int64  `json:"price" validate:"gt=0"`
}

// CreateIntentResponse carries the opaque client secret back to the caller.
type CreateIntentResponse struct {
	ClientSecret string `json:"client_secret"`
}

// PaymentConfig tunes the payment flow.
type PaymentConfig struct {
	Currency   string
	PendingAge time.Duration
}

// PaymentService drives the SELECTED -> PENDING_PAYMENT -> ENROLLED
// transitions, including the idempotent confirmation upsert and the sweep
// that reconciles charges whose confirmation callback never arrived.
type PaymentService struct {
	ledger    paymentLedger
	catalog   paymentCatalog
	gateway   gateway.PaymentGateway
	validator *validator.Validate
	logger    *zap.Logger
	config    PaymentConfig
}

// NewPaymentService constructs PaymentService.
func NewPaymentService(ledger paymentLedger, catalog paymentCatalog, gw gateway.PaymentGateway, validate *validator.Validate, logger *zap.Logger, config PaymentConfig) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Currency == "" {
		config.Currency = "usd"
	}
	if config.PendingAge <= 0 {
		config.PendingAge = 15 * time.Minute
	}
	return &PaymentService{ledger: ledger, catalog: catalog, gateway: gw, validator: validate, logger: logger, config: config}
}

// CreateIntent requests a client secret from the gateway. When the request
// names a class, the catalog price is authoritative over the client-supplied
// amount and the ledger entry is moved to PENDING_PAYMENT.
func (s *PaymentService) CreateIntent(ctx context.Context, req CreateIntentRequest) (*CreateIntentResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment intent payload")
	}

	amount := req.Price
	var entry *models.Selection
	if req.ClassID != "" {
		class, err := s.catalog.FindByID(ctx, req.ClassID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
		}
		amount = class.Price

		entry, err = s.ledger.FindByStudentAndClassID(ctx, req.StudentEmail, req.ClassID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "class not selected")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load selection")
		}
		if entry.Status == models.SelectionStatusEnrolled {
			return nil, appErrors.Clone(appErrors.ErrAlreadyEnrolled, "class already paid for")
		}
	}

	intent, err := s.gateway.CreateIntent(ctx, amount, s.config.Currency)
	if err != nil {
		return nil, err
	}

	if entry != nil {
		if err := s.ledger.MarkPendingPayment(ctx, entry.ID, intent.ID); err != nil {
			s.logger.Warn("failed to park selection as pending payment",
				zap.String("selection_id", entry.ID),
				zap.Error(err),
			)
		}
	}

	return &CreateIntentResponse{ClientSecret: intent.ClientSecret}, nil
}

// Confirm applies the client-reported payment success to the ledger. The
// underlying write is an upsert on (student_email, class_id): repeating the
// call with the same transaction id yields the same single ENROLLED row.
func (s *PaymentService) Confirm(ctx context.Context, req models.PaymentConfirmation) (*models.Selection, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment confirmation")
	}
	if req.Date.IsZero() {
		req.Date = time.Now().UTC()
	}

	entry, err := s.ledger.FindByStudentAndClassName(ctx, req.StudentEmail, req.ClassName)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load selection")
	}

	classID := ""
	if entry != nil {
		classID = entry.ClassID
	} else {
		// Confirmation without a prior selection: resolve the class by name.
		classes, err := s.catalog.FindByName(ctx, req.ClassName)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve class")
		}
		if len(classes) == 0 {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		if len(classes) > 1 {
			s.logger.Warn("ambiguous class name on payment confirmation",
				zap.String("class_name", req.ClassName),
				zap.Int("candidates", len(classes)),
			)
		}
		classID = classes[0].ID
	}

	tx := req.TransactionID
	confirmed := &models.Selection{
		StudentEmail:  req.StudentEmail,
		ClassID:       classID,
		ClassName:     req.ClassName,
		TransactionID: &tx,
		EnrolledAt:    &req.Date,
		Extra:         req.Extra,
	}
	if entry != nil {
		confirmed.ID = entry.ID
		confirmed.PaymentIntentID = entry.PaymentIntentID
		confirmed.CreatedAt = entry.CreatedAt
	}
	if err := s.ledger.ConfirmPayment(ctx, confirmed); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to confirm payment")
	}

	stored, err := s.ledger.FindByStudentAndClassID(ctx, req.StudentEmail, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return stored, nil
}

// Sweep reconciles PENDING_PAYMENT entries whose confirmation never arrived:
// succeeded charges become enrollments, dead intents revert to SELECTED.
// Returns the number of entries confirmed.
func (s *PaymentService) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.config.PendingAge)
	pending, err := s.ledger.ListPendingOlderThan(ctx, cutoff)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending payments")
	}

	confirmed := 0
	for _, entry := range pending {
		if entry.PaymentIntentID == nil || *entry.PaymentIntentID == "" {
			continue
		}
		intent, err := s.gateway.GetIntent(ctx, *entry.PaymentIntentID)
		if err != nil {
			s.logger.Warn("sweep could not query payment intent",
				zap.String("selection_id", entry.ID),
				zap.String("intent_id", *entry.PaymentIntentID),
				zap.Error(err),
			)
			continue
		}

		switch intent.Status {
		case gateway.IntentStatusSucceeded:
			tx := intent.ID
			now := time.Now().UTC()
			update := entry
			update.TransactionID = &tx
			update.EnrolledAt = &now
			if err := s.ledger.ConfirmPayment(ctx, &update); err != nil {
				s.logger.Error("sweep failed to confirm orphaned charge",
					zap.String("selection_id", entry.ID),
					zap.Error(err),
				)
				continue
			}
			confirmed++
			s.logger.Info("sweep confirmed orphaned charge",
				zap.String("selection_id", entry.ID),
				zap.String("intent_id", intent.ID),
			)
		case gateway.IntentStatusCanceled, gateway.IntentStatusRequiresPayment:
			if err := s.ledger.RevertPending(ctx, entry.ID); err != nil {
				s.logger.Warn("sweep failed to revert dead intent",
					zap.String("selection_id", entry.ID),
					zap.Error(err),
				)
			}
		default:
			// Still processing at the gateway; revisit on the next pass.
		}
	}
	return confirmed, nil
}
