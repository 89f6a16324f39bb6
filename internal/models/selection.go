package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SelectionStatus is the single logical state of a ledger entry. A status
// column replaces the selected/enrolled boolean pair so a row can never be in
// two states at once.
type SelectionStatus string

const (
	SelectionStatusSelected       SelectionStatus = "SELECTED"
	SelectionStatusPendingPayment SelectionStatus = "PENDING_PAYMENT"
	SelectionStatusEnrolled       SelectionStatus = "ENROLLED"
)

// Selection is a ledger entry expressing a student's relationship to a class.
// (student_email, class_id) is the natural key; ClassName is a denormalized
// copy kept for the legacy lookup surface.
type Selection struct {
	ID              string          `db:"id" json:"id"`
	StudentEmail    string          `db:"student_email" json:"student_email"`
	ClassID         string          `db:"class_id" json:"class_id"`
	ClassName       string          `db:"class_name" json:"class_name"`
	Status          SelectionStatus `db:"status" json:"status"`
	PaymentIntentID *string         `db:"payment_intent_id" json:"payment_intent_id,omitempty"`
	TransactionID   *string         `db:"transaction_id" json:"transaction_id,omitempty"`
	EnrolledAt      *time.Time      `db:"enrolled_at" json:"enrolled_at,omitempty"`
	Extra           SelectionExtra  `db:"extra" json:"extra,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// SelectionExtra holds billing metadata supplied alongside a payment
// confirmation, persisted as JSONB.
type SelectionExtra map[string]string

// Value marshals the metadata to JSON for persistence.
func (e SelectionExtra) Value() (driver.Value, error) {
	if e == nil {
		e = SelectionExtra{}
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal selection extra: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSON payload into the metadata map.
func (e *SelectionExtra) Scan(value interface{}) error {
	if value == nil {
		*e = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for SelectionExtra", value)
	}
	if len(data) == 0 {
		*e = nil
		return nil
	}
	if err := json.Unmarshal(data, e); err != nil {
		return fmt.Errorf("unmarshal selection extra: %w", err)
	}
	return nil
}

// Selected reports whether the entry is still a plain selection. Pending
// payments count as selected for view purposes: the charge has not landed.
func (s Selection) Selected() bool {
	return s.Status == SelectionStatusSelected || s.Status == SelectionStatusPendingPayment
}

// Enrolled reports whether the entry represents a confirmed paid enrollment.
func (s Selection) Enrolled() bool {
	return s.Status == SelectionStatusEnrolled
}

// EnrichedClass is a catalog entry annotated with the ledger entry that
// referenced it, as produced by the reconciliation join.
type EnrichedClass struct {
	Class
	StudentEmail  string     `json:"student_email"`
	Selected      bool       `json:"selected"`
	Enrolled      bool       `json:"enrolled"`
	TransactionID *string    `json:"transaction_id,omitempty"`
	EnrolledAt    *time.Time `json:"enrolled_at,omitempty"`
}

// PaymentConfirmation carries the fields merged into a ledger entry when a
// gateway charge is confirmed.
type PaymentConfirmation struct {
	StudentEmail  string         `json:"student_email" validate:"required,email"`
	ClassName     string         `json:"class_name" validate:"required"`
	TransactionID string         `json:"transaction_id" validate:"required"`
	Date          time.Time      `json:"date"`
	Extra         SelectionExtra `json:"extra,omitempty"`
}
