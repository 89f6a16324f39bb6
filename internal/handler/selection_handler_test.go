package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mhasan-dev/course-market-api/internal/middleware"
	"github.com/mhasan-dev/course-market-api/internal/models"
	"github.com/mhasan-dev/course-market-api/internal/service"
)

// stubLedger implements the selection, reconciliation and payment ledger
// interfaces over an in-memory map keyed by email|classID.
type stubLedger struct {
	entries map[string]models.Selection
	pending []models.Selection
}

func ledgerKey(email, classID string) string { return email + "|" + classID }

func (s *stubLedger) Select(ctx context.Context, entry *models.Selection) error {
	if s.entries == nil {
		s.entries = make(map[string]models.Selection)
	}
	key := ledgerKey(entry.StudentEmail, entry.ClassID)
	if _, exists := s.entries[key]; exists {
		return nil
	}
	entry.ID = "sel-1"
	entry.Status = models.SelectionStatusSelected
	s.entries[key] = *entry
	return nil
}

func (s *stubLedger) FindByStudentAndClassID(ctx context.Context, email, classID string) (*models.Selection, error) {
	if e, ok := s.entries[ledgerKey(email, classID)]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubLedger) FindByStudentAndClassName(ctx context.Context, email, className string) (*models.Selection, error) {
	for _, e := range s.entries {
		if e.StudentEmail == email && e.ClassName == className {
			return &e, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubLedger) DeleteSelected(ctx context.Context, email, classID string) (int64, error) {
	key := ledgerKey(email, classID)
	if e, ok := s.entries[key]; ok && e.Status == models.SelectionStatusSelected {
		delete(s.entries, key)
		return 1, nil
	}
	return 0, nil
}

func (s *stubLedger) ListByStudent(ctx context.Context, email string, statuses ...models.SelectionStatus) ([]models.Selection, error) {
	allowed := make(map[models.SelectionStatus]bool, len(statuses))
	for _, st := range statuses {
		allowed[st] = true
	}
	var out []models.Selection
	for _, e := range s.entries {
		if e.StudentEmail != email {
			continue
		}
		if len(statuses) > 0 && !allowed[e.Status] {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *stubLedger) ListEnrolledHistory(ctx context.Context, email string) ([]models.Selection, error) {
	var out []models.Selection
	for _, e := range s.entries {
		if e.StudentEmail == email && e.Status == models.SelectionStatusEnrolled && e.TransactionID != nil {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *stubLedger) MarkPendingPayment(ctx context.Context, id, intentID string) error {
	for key, e := range s.entries {
		if e.ID == id && e.Status == models.SelectionStatusSelected {
			e.Status = models.SelectionStatusPendingPayment
			e.PaymentIntentID = &intentID
			s.entries[key] = e
		}
	}
	return nil
}

func (s *stubLedger) RevertPending(ctx context.Context, id string) error {
	for key, e := range s.entries {
		if e.ID == id && e.Status == models.SelectionStatusPendingPayment {
			e.Status = models.SelectionStatusSelected
			s.entries[key] = e
		}
	}
	return nil
}

func (s *stubLedger) ConfirmPayment(ctx context.Context, entry *models.Selection) error {
	if s.entries == nil {
		s.entries = make(map[string]models.Selection)
	}
	key := ledgerKey(entry.StudentEmail, entry.ClassID)
	if existing, ok := s.entries[key]; ok {
		if existing.TransactionID != nil && entry.TransactionID != nil && *existing.TransactionID != *entry.TransactionID {
			return nil
		}
		entry.ID = existing.ID
	} else if entry.ID == "" {
		entry.ID = "sel-new"
	}
	entry.Status = models.SelectionStatusEnrolled
	s.entries[key] = *entry
	return nil
}

func (s *stubLedger) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]models.Selection, error) {
	return s.pending, nil
}

// stubCatalog implements the class reader interfaces over a fixed class set.
type stubCatalog struct {
	classes map[string]models.Class
}

func (s *stubCatalog) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if c, ok := s.classes[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubCatalog) FindByName(ctx context.Context, name string) ([]models.Class, error) {
	var out []models.Class
	for _, c := range s.classes {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *stubCatalog) FindByIDs(ctx context.Context, ids []string) ([]models.Class, error) {
	var out []models.Class
	for _, id := range ids {
		if c, ok := s.classes[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *stubCatalog) FindByNames(ctx context.Context, names []string) ([]models.Class, error) {
	var out []models.Class
	for _, n := range names {
		matches, _ := s.FindByName(ctx, n)
		out = append(out, matches...)
	}
	return out, nil
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func studentClaims(email string) *models.JWTClaims {
	return &models.JWTClaims{UserID: "u-1", Email: email, Role: models.RoleStudent}
}

func openClass(id, name string) models.Class {
	return models.Class{
		ID:              id,
		Name:            name,
		Price:           4900,
		Seats:           30,
		InstructorEmail: "teacher@example.com",
		InstructorName:  "Teacher A",
		Status:          models.ClassStatusApproved,
		CreatedAt:       time.Now(),
	}
}

func newSelectionHandler(ledger *stubLedger, catalog *stubCatalog) *SelectionHandler {
	selections := service.NewSelectionService(ledger, catalog, nil, zap.NewNop())
	reconciliation := service.NewReconciliationService(ledger, catalog, zap.NewNop())
	return NewSelectionHandler(selections, reconciliation)
}

func TestSelectionHandlerSelect(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newSelectionHandler(&stubLedger{}, &stubCatalog{classes: map[string]models.Class{"c1": openClass("c1", "Algebra")}})

	payload, _ := json.Marshal(service.SelectClassRequest{StudentEmail: "s@example.com", ClassID: "c1"})
	c, w := newGinContext(http.MethodPost, "/selectOrEnroll", payload)
	c.Set(middleware.ContextUserKey, studentClaims("s@example.com"))

	handler.Select(c)
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestSelectionHandlerSelectForAnotherStudent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newSelectionHandler(&stubLedger{}, &stubCatalog{classes: map[string]models.Class{"c1": openClass("c1", "Algebra")}})

	payload, _ := json.Marshal(service.SelectClassRequest{StudentEmail: "victim@example.com", ClassID: "c1"})
	c, w := newGinContext(http.MethodPost, "/selectOrEnroll", payload)
	c.Set(middleware.ContextUserKey, studentClaims("attacker@example.com"))

	handler.Select(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestSelectionHandlerSelectWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newSelectionHandler(&stubLedger{}, &stubCatalog{})

	payload, _ := json.Marshal(service.SelectClassRequest{StudentEmail: "s@example.com", ClassID: "c1"})
	c, w := newGinContext(http.MethodPost, "/selectOrEnroll", payload)

	handler.Select(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSelectionHandlerGetRequiresQueryParams(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newSelectionHandler(&stubLedger{}, &stubCatalog{})

	c, w := newGinContext(http.MethodGet, "/selectOrEnroll?className=Algebra", nil)
	c.Set(middleware.ContextUserKey, studentClaims("s@example.com"))

	handler.Get(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSelectionHandlerGet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ledger := &stubLedger{entries: map[string]models.Selection{
		ledgerKey("s@example.com", "c1"): {ID: "sel-1", StudentEmail: "s@example.com", ClassID: "c1", ClassName: "Algebra", Status: models.SelectionStatusSelected},
	}}
	handler := newSelectionHandler(ledger, &stubCatalog{})

	c, w := newGinContext(http.MethodGet, "/selectOrEnroll?className=Algebra&selectedEmail=s@example.com", nil)
	c.Set(middleware.ContextUserKey, studentClaims("s@example.com"))

	handler.Get(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data models.Selection `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "sel-1", envelope.Data.ID)
}

func TestSelectionHandlerUnselect(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ledger := &stubLedger{entries: map[string]models.Selection{
		ledgerKey("s@example.com", "c1"): {ID: "sel-1", StudentEmail: "s@example.com", ClassID: "c1", Status: models.SelectionStatusSelected},
	}}
	handler := newSelectionHandler(ledger, &stubCatalog{classes: map[string]models.Class{"c1": openClass("c1", "Algebra")}})

	c, w := newGinContext(http.MethodDelete, "/selectedClass/delete?id=c1&selectedEmail=s@example.com", nil)
	c.Set(middleware.ContextUserKey, studentClaims("s@example.com"))

	handler.Unselect(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, ledger.entries)
}

func TestSelectionHandlerUnselectForAnotherStudent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newSelectionHandler(&stubLedger{}, &stubCatalog{})

	c, w := newGinContext(http.MethodDelete, "/selectedClass/delete?id=c1&selectedEmail=victim@example.com", nil)
	c.Set(middleware.ContextUserKey, studentClaims("attacker@example.com"))

	handler.Unselect(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestSelectionHandlerSelectedView(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ledger := &stubLedger{entries: map[string]models.Selection{
		ledgerKey("s@example.com", "c1"): {ID: "sel-1", StudentEmail: "s@example.com", ClassID: "c1", ClassName: "Algebra", Status: models.SelectionStatusSelected},
	}}
	handler := newSelectionHandler(ledger, &stubCatalog{classes: map[string]models.Class{"c1": openClass("c1", "Algebra")}})

	c, w := newGinContext(http.MethodGet, "/classes/selected/s@example.com", nil)
	c.Params = gin.Params{{Key: "email", Value: "s@example.com"}}
	c.Set(middleware.ContextUserKey, studentClaims("s@example.com"))

	handler.Selected(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data []models.EnrichedClass `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 1)
	assert.Equal(t, "c1", envelope.Data[0].ID)
	assert.True(t, envelope.Data[0].Selected)
}
