package roster

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"
)

// Store is the persistence surface the service needs.
type Store interface {
	InsertDepartment(ctx context.Context, d Department) (Department, error)
	UpdateDepartment(ctx context.Context, d Department) (Department, error)
	GetDepartment(ctx context.Context, id string) (Department, error)
	ListDepartments(ctx context.Context) ([]Department, error)
	ActiveDepartments(ctx context.Context) ([]Department, error)

	InsertStudent(ctx context.Context, s Student) (Student, error)
	GetStudent(ctx context.Context, id string) (Student, error)
	StudentIDTaken(ctx context.Context, studentID string) (bool, error)
	EmailTaken(ctx context.Context, email string) (bool, error)
	PendingStudents(ctx context.Context) ([]Student, error)
	ListStudents(ctx context.Context, limit, offset int) ([]Student, int, error)
	ActiveStudents(ctx context.Context, limit, offset int) ([]Student, int, error)
	ApproveStudent(ctx context.Context, id, approver string, at time.Time) (Student, error)
	RejectStudent(ctx context.Context, id, reason string) (Student, error)
	SetStudentStatus(ctx context.Context, id, status string) (Student, error)
	CountActiveStudents(ctx context.Context) (int, error)
}

// Service coordinates the registration workflow and department management.
type Service struct {
	store    Store
	pageSize int
	newToken func() string
	now      func() time.Time
}

// NewService creates a service backed by a store. newToken supplies the
// opaque scan token assigned at first persistence; it is never re-invoked
// for a student that already holds one.
func NewService(store Store, pageSize int, newToken func() string) *Service {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &Service{
		store:    store,
		pageSize: pageSize,
		newToken: newToken,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RegistrationInput carries the fields of a registration form.
type RegistrationInput struct {
	StudentID    string     `json:"student_id"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Email        string     `json:"email"`
	DepartmentID string     `json:"department_id"`
	PhoneNumber  string     `json:"phone_number"`
	Address      string     `json:"address"`
	DateOfBirth  *time.Time `json:"date_of_birth"`
}

func (s *Service) validateRegistration(ctx context.Context, in RegistrationInput) (*string, error) {
	verr := newValidationError()
	require := func(field, value string, max int) {
		switch {
		case strings.TrimSpace(value) == "":
			verr.Fields[field] = "required"
		case len(value) > max:
			verr.Fields[field] = "too long"
		}
	}
	require("student_id", in.StudentID, 20)
	require("first_name", in.FirstName, 50)
	require("last_name", in.LastName, 50)
	require("email", in.Email, 254)
	if len(in.PhoneNumber) > 15 {
		verr.Fields["phone_number"] = "too long"
	}
	if _, ok := verr.Fields["email"]; !ok {
		if _, err := mail.ParseAddress(in.Email); err != nil {
			verr.Fields["email"] = "invalid email address"
		}
	}

	if _, ok := verr.Fields["student_id"]; !ok {
		taken, err := s.store.StudentIDTaken(ctx, in.StudentID)
		if err != nil {
			return nil, err
		}
		if taken {
			verr.Fields["student_id"] = "already registered"
		}
	}
	if _, ok := verr.Fields["email"]; !ok {
		taken, err := s.store.EmailTaken(ctx, in.Email)
		if err != nil {
			return nil, err
		}
		if taken {
			verr.Fields["email"] = "already registered"
		}
	}

	var deptID *string
	if in.DepartmentID != "" {
		dep, err := s.store.GetDepartment(ctx, in.DepartmentID)
		switch {
		case errors.Is(err, ErrNotFound):
			verr.Fields["department_id"] = "unknown department"
		case err != nil:
			return nil, err
		case !dep.IsActive:
			verr.Fields["department_id"] = "department is not accepting registrations"
		default:
			deptID = &dep.ID
		}
	}

	if len(verr.Fields) > 0 {
		return nil, verr
	}
	return deptID, nil
}

// SubmitRegistration handles public self-registration. The student is created
// pending approval, with the QR token assigned up front.
func (s *Service) SubmitRegistration(ctx context.Context, in RegistrationInput) (Student, error) {
	deptID, err := s.validateRegistration(ctx, in)
	if err != nil {
		return Student{}, err
	}
	return s.store.InsertStudent(ctx, Student{
		StudentID:          strings.TrimSpace(in.StudentID),
		FirstName:          strings.TrimSpace(in.FirstName),
		LastName:           strings.TrimSpace(in.LastName),
		Email:              strings.TrimSpace(in.Email),
		DepartmentID:       deptID,
		QRToken:            s.newToken(),
		Status:             StatusActive,
		RegistrationStatus: RegistrationPending,
		PhoneNumber:        in.PhoneNumber,
		Address:            in.Address,
		DateOfBirth:        in.DateOfBirth,
	})
}

// RegisterByAdmin creates a student that is approved immediately.
func (s *Service) RegisterByAdmin(ctx context.Context, in RegistrationInput, approver string) (Student, error) {
	deptID, err := s.validateRegistration(ctx, in)
	if err != nil {
		return Student{}, err
	}
	now := s.now()
	return s.store.InsertStudent(ctx, Student{
		StudentID:          strings.TrimSpace(in.StudentID),
		FirstName:          strings.TrimSpace(in.FirstName),
		LastName:           strings.TrimSpace(in.LastName),
		Email:              strings.TrimSpace(in.Email),
		DepartmentID:       deptID,
		QRToken:            s.newToken(),
		Status:             StatusActive,
		RegistrationStatus: RegistrationApproved,
		PhoneNumber:        in.PhoneNumber,
		Address:            in.Address,
		DateOfBirth:        in.DateOfBirth,
		ApprovedBy:         &approver,
		ApprovedAt:         &now,
	})
}

// Approve decides a pending registration. decision must be "approved" or
// "rejected"; rejecting requires a reason. Non-pending students are refused.
func (s *Service) Approve(ctx context.Context, id, decision, reason, approver string) (Student, error) {
	switch decision {
	case RegistrationApproved:
		return s.store.ApproveStudent(ctx, id, approver, s.now())
	case RegistrationRejected:
		if strings.TrimSpace(reason) == "" {
			return Student{}, &ValidationError{Fields: map[string]string{"rejection_reason": "required when rejecting"}}
		}
		return s.store.RejectStudent(ctx, id, reason)
	default:
		return Student{}, &ValidationError{Fields: map[string]string{"registration_status": "must be approved or rejected"}}
	}
}

// PendingRegistrations lists students awaiting a decision.
func (s *Service) PendingRegistrations(ctx context.Context) ([]Student, error) {
	return s.store.PendingStudents(ctx)
}

// Students returns one page of the full roster.
func (s *Service) Students(ctx context.Context, page int) ([]Student, int, error) {
	return s.store.ListStudents(ctx, s.pageSize, pageOffset(page, s.pageSize))
}

// QRCodeRoster returns one page of active students for the QR code listing.
func (s *Service) QRCodeRoster(ctx context.Context, page int) ([]Student, int, error) {
	return s.store.ActiveStudents(ctx, s.pageSize, pageOffset(page, s.pageSize))
}

// SetStatus toggles a student's account between active and inactive.
func (s *Service) SetStatus(ctx context.Context, id, status string) (Student, error) {
	if status != StatusActive && status != StatusInactive {
		return Student{}, &ValidationError{Fields: map[string]string{"status": "must be active or inactive"}}
	}
	return s.store.SetStudentStatus(ctx, id, status)
}

// ActiveCount returns the number of active students.
func (s *Service) ActiveCount(ctx context.Context) (int, error) {
	return s.store.CountActiveStudents(ctx)
}

// Student returns one student by primary key.
func (s *Service) Student(ctx context.Context, id string) (Student, error) {
	return s.store.GetStudent(ctx, id)
}

// DepartmentInput carries the fields of the department form.
type DepartmentInput struct {
	Name        string `json:"name"`
	Code        string `json:"code"`
	Description string `json:"description"`
	IsActive    bool   `json:"is_active"`
}

func validateDepartment(in DepartmentInput) error {
	verr := newValidationError()
	if strings.TrimSpace(in.Name) == "" {
		verr.Fields["name"] = "required"
	} else if len(in.Name) > 100 {
		verr.Fields["name"] = "too long"
	}
	if strings.TrimSpace(in.Code) == "" {
		verr.Fields["code"] = "required"
	} else if len(in.Code) > 20 {
		verr.Fields["code"] = "too long"
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// CreateDepartment adds a department.
func (s *Service) CreateDepartment(ctx context.Context, in DepartmentInput) (Department, error) {
	if err := validateDepartment(in); err != nil {
		return Department{}, err
	}
	return s.store.InsertDepartment(ctx, Department{
		Name:        strings.TrimSpace(in.Name),
		Code:        strings.TrimSpace(in.Code),
		Description: in.Description,
		IsActive:    in.IsActive,
	})
}

// EditDepartment updates an existing department.
func (s *Service) EditDepartment(ctx context.Context, id string, in DepartmentInput) (Department, error) {
	if err := validateDepartment(in); err != nil {
		return Department{}, err
	}
	return s.store.UpdateDepartment(ctx, Department{
		ID:          id,
		Name:        strings.TrimSpace(in.Name),
		Code:        strings.TrimSpace(in.Code),
		Description: in.Description,
		IsActive:    in.IsActive,
	})
}

// Department returns one department by id.
func (s *Service) Department(ctx context.Context, id string) (Department, error) {
	return s.store.GetDepartment(ctx, id)
}

// Departments lists every department.
func (s *Service) Departments(ctx context.Context) ([]Department, error) {
	return s.store.ListDepartments(ctx)
}

// ActiveDepartments lists departments offered on registration forms.
func (s *Service) ActiveDepartments(ctx context.Context) ([]Department, error) {
	return s.store.ActiveDepartments(ctx)
}

func pageOffset(page, size int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * size
}
