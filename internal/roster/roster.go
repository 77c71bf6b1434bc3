package roster

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Account status values.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Registration status values. Transitions are pending -> approved or
// pending -> rejected only.
const (
	RegistrationPending  = "pending"
	RegistrationApproved = "approved"
	RegistrationRejected = "rejected"
)

// Department groups students for reporting.
type Department struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Student is a registered (or registering) student.
type Student struct {
	ID                 string     `json:"id"`
	StudentID          string     `json:"student_id"`
	FirstName          string     `json:"first_name"`
	LastName           string     `json:"last_name"`
	Email              string     `json:"email"`
	DepartmentID       *string    `json:"department_id,omitempty"`
	DepartmentName     *string    `json:"department_name,omitempty"`
	QRToken            string     `json:"qr_token,omitempty"`
	QRImagePath        string     `json:"qr_image_path,omitempty"`
	Status             string     `json:"status"`
	RegistrationStatus string     `json:"registration_status"`
	PhoneNumber        string     `json:"phone_number,omitempty"`
	Address            string     `json:"address,omitempty"`
	DateOfBirth        *time.Time `json:"date_of_birth,omitempty"`
	ApprovedBy         *string    `json:"approved_by,omitempty"`
	ApprovedAt         *time.Time `json:"approved_at,omitempty"`
	RejectionReason    string     `json:"rejection_reason,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// FullName returns the display name used in scan confirmations.
func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// Sentinel errors for the write paths.
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("already exists")
	ErrNotPending = errors.New("registration is not pending")
)

// ValidationError carries field-level problems for form rendering.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	return fmt.Sprintf("invalid fields: %s", strings.Join(names, ", "))
}

func newValidationError() *ValidationError {
	return &ValidationError{Fields: map[string]string{}}
}
