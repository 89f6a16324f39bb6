package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mhasan-dev/course-market-api/internal/models"
)

type mockReconLedger struct {
	entries []models.Selection
	history []models.Selection
}

func (m *mockReconLedger) ListByStudent(ctx context.Context, email string, statuses ...models.SelectionStatus) ([]models.Selection, error) {
	allowed := make(map[models.SelectionStatus]bool, len(statuses))
	for _, s := range statuses {
		allowed[s] = true
	}
	var out []models.Selection
	for _, e := range m.entries {
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

func (m *mockReconLedger) ListEnrolledHistory(ctx context.Context, email string) ([]models.Selection, error) {
	var out []models.Selection
	for _, e := range m.history {
		if e.StudentEmail == email {
			out = append(out, e)
		}
	}
	return out, nil
}

type mockReconCatalog struct {
	classes     []models.Class
	namesCalled [][]string
}

func (m *mockReconCatalog) FindByIDs(ctx context.Context, ids []string) ([]models.Class, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []models.Class
	for _, c := range m.classes {
		if want[c.ID] {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockReconCatalog) FindByNames(ctx context.Context, names []string) ([]models.Class, error) {
	m.namesCalled = append(m.namesCalled, names)
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []models.Class
	for _, c := range m.classes {
		if want[c.Name] {
			out = append(out, c)
		}
	}
	return out, nil
}

func testClass(id, name string, createdAt time.Time) models.Class {
	return models.Class{
		ID:              id,
		Name:            name,
		Price:           4900,
		Seats:           30,
		InstructorEmail: "teacher@example.com",
		InstructorName:  "Teacher A",
		Status:          models.ClassStatusApproved,
		CreatedAt:       createdAt,
	}
}

func TestBuildEnrichedListJoinsByID(t *testing.T) {
	svc := NewReconciliationService(nil, nil, zap.NewNop())

	now := time.Now()
	entries := []models.Selection{
		{StudentEmail: "s@example.com", ClassID: "c1", ClassName: "Algebra", Status: models.SelectionStatusSelected},
	}
	classes := []models.Class{testClass("c1", "Algebra", now)}

	out := svc.BuildEnrichedList(entries, classes)
	require.Len(t, out, 1)
	assert.Equal(t, "c1", out[0].ID)
	assert.Equal(t, "s@example.com", out[0].StudentEmail)
	assert.True(t, out[0].Selected)
	assert.False(t, out[0].Enrolled)
}

func TestBuildEnrichedListNameFallback(t *testing.T) {
	svc := NewReconciliationService(nil, nil, zap.NewNop())

	// Legacy row whose class id no longer resolves.
	entries := []models.Selection{
		{StudentEmail: "s@example.com", ClassID: "gone", ClassName: "Algebra", Status: models.SelectionStatusSelected},
	}
	classes := []models.Class{testClass("c9", "Algebra", time.Now())}

	out := svc.BuildEnrichedList(entries, classes)
	require.Len(t, out, 1)
	assert.Equal(t, "c9", out[0].ID)
}

func TestBuildEnrichedListSkipsUnmatched(t *testing.T) {
	svc := NewReconciliationService(nil, nil, zap.NewNop())

	entries := []models.Selection{
		{StudentEmail: "s@example.com", ClassID: "c1", ClassName: "Algebra", Status: models.SelectionStatusSelected},
		{StudentEmail: "s@example.com", ClassID: "gone", ClassName: "Deleted Class", Status: models.SelectionStatusSelected},
	}
	classes := []models.Class{testClass("c1", "Algebra", time.Now())}

	out := svc.BuildEnrichedList(entries, classes)
	require.Len(t, out, 1)
	assert.Equal(t, "c1", out[0].ID)
}

func TestBuildEnrichedListDuplicateNamesNewestWins(t *testing.T) {
	svc := NewReconciliationService(nil, nil, zap.NewNop())

	now := time.Now()
	entries := []models.Selection{
		{StudentEmail: "s@example.com", ClassID: "gone", ClassName: "Algebra", Status: models.SelectionStatusSelected},
	}
	classes := []models.Class{
		testClass("old", "Algebra", now.Add(-48*time.Hour)),
		testClass("new", "Algebra", now),
	}

	out := svc.BuildEnrichedList(entries, classes)
	require.Len(t, out, 1)
	assert.Equal(t, "new", out[0].ID)
}

func TestBuildEnrichedListPreservesEntryOrder(t *testing.T) {
	svc := NewReconciliationService(nil, nil, zap.NewNop())

	now := time.Now()
	entries := []models.Selection{
		{StudentEmail: "s@example.com", ClassID: "c2", ClassName: "Geometry", Status: models.SelectionStatusSelected},
		{StudentEmail: "s@example.com", ClassID: "c1", ClassName: "Algebra", Status: models.SelectionStatusSelected},
	}
	classes := []models.Class{
		testClass("c1", "Algebra", now),
		testClass("c2", "Geometry", now),
	}

	out := svc.BuildEnrichedList(entries, classes)
	require.Len(t, out, 2)
	assert.Equal(t, "c2", out[0].ID)
	assert.Equal(t, "c1", out[1].ID)
}

func TestSelectedClassesIncludesPendingPayment(t *testing.T) {
	now := time.Now()
	ledger := &mockReconLedger{entries: []models.Selection{
		{StudentEmail: "s@example.com", ClassID: "c1", ClassName: "Algebra", Status: models.SelectionStatusSelected},
		{StudentEmail: "s@example.com", ClassID: "c2", ClassName: "Geometry", Status: models.SelectionStatusPendingPayment},
		{StudentEmail: "s@example.com", ClassID: "c3", ClassName: "Calculus", Status: models.SelectionStatusEnrolled},
	}}
	catalog := &mockReconCatalog{classes: []models.Class{
		testClass("c1", "Algebra", now),
		testClass("c2", "Geometry", now),
		testClass("c3", "Calculus", now),
	}}
	svc := NewReconciliationService(ledger, catalog, zap.NewNop())

	out, err := svc.SelectedClasses(context.Background(), "s@example.com")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, out[0].Selected)
	assert.True(t, out[1].Selected)
	// No ID failed to resolve, so the name fallback is never queried.
	assert.Empty(t, catalog.namesCalled)
}

func TestEnrolledClassesUsesNameFallbackForStaleIDs(t *testing.T) {
	now := time.Now()
	tx := "tx-1"
	ledger := &mockReconLedger{entries: []models.Selection{
		{StudentEmail: "s@example.com", ClassID: "stale", ClassName: "Algebra", Status: models.SelectionStatusEnrolled, TransactionID: &tx, EnrolledAt: &now},
	}}
	catalog := &mockReconCatalog{classes: []models.Class{testClass("c1", "Algebra", now)}}
	svc := NewReconciliationService(ledger, catalog, zap.NewNop())

	out, err := svc.EnrolledClasses(context.Background(), "s@example.com")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "c1", out[0].ID)
	assert.True(t, out[0].Enrolled)
	require.Len(t, catalog.namesCalled, 1)
	assert.Equal(t, []string{"Algebra"}, catalog.namesCalled[0])
}

func TestPaymentHistoryCarriesTransactionDetails(t *testing.T) {
	now := time.Now()
	tx := "tx-42"
	ledger := &mockReconLedger{history: []models.Selection{
		{StudentEmail: "s@example.com", ClassID: "c1", ClassName: "Algebra", Status: models.SelectionStatusEnrolled, TransactionID: &tx, EnrolledAt: &now},
	}}
	catalog := &mockReconCatalog{classes: []models.Class{testClass("c1", "Algebra", now)}}
	svc := NewReconciliationService(ledger, catalog, zap.NewNop())

	out, err := svc.PaymentHistory(context.Background(), "s@example.com")
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].TransactionID)
	assert.Equal(t, "tx-42", *out[0].TransactionID)
	require.NotNil(t, out[0].EnrolledAt)
}

func TestPaymentHistoryEmpty(t *testing.T) {
	svc := NewReconciliationService(&mockReconLedger{}, &mockReconCatalog{}, zap.NewNop())

	out, err := svc.PaymentHistory(context.Background(), "s@example.com")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NotNil(t, out)
}
