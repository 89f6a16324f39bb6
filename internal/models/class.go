package models

import "time"

// ClassStatus represents the moderation state of a class.
type ClassStatus string

const (
	ClassStatusPending  ClassStatus = "pending"
	ClassStatusApproved ClassStatus = "approved"
	ClassStatusDenied   ClassStatus = "deny"
)

// Class is an instructor-authored catalog entry. Only approved classes are
// visible in the public catalog. Classes are permanent once created; status
// and feedback are admin-owned, the descriptor is instructor-owned.
type Class struct {
	ID              string      `db:"id" json:"id"`
	Name            string      `db:"name" json:"name"`
	Image           string      `db:"image" json:"image,omitempty"`
	Description     string      `db:"description" json:"description,omitempty"`
	Price           int64       `db:"price" json:"price"`
	Seats           int         `db:"seats" json:"seats"`
	InstructorEmail string      `db:"instructor_email" json:"instructor_email"`
	InstructorName  string      `db:"instructor_name" json:"instructor_name,omitempty"`
	Status          ClassStatus `db:"status" json:"status"`
	Feedback        *string     `db:"feedback" json:"feedback,omitempty"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updated_at"`
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	Status    ClassStatus
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// ClassDescriptorPatch carries instructor-editable descriptor fields.
// Nil fields are left untouched.
type ClassDescriptorPatch struct {
	Name        *string `json:"name,omitempty"`
	Image       *string `json:"image,omitempty"`
	Description *string `json:"description,omitempty"`
	Price       *int64  `json:"price,omitempty"`
	Seats       *int    `json:"seats,omitempty"`
}
