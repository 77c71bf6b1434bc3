package roster

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository persists departments and students in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const departmentCols = `id, name, code, description, is_active, created_at`

func scanDepartment(row interface{ Scan(...any) error }) (Department, error) {
	var d Department
	err := row.Scan(&d.ID, &d.Name, &d.Code, &d.Description, &d.IsActive, &d.CreatedAt)
	return d, err
}

// InsertDepartment writes a new department.
func (r *Repository) InsertDepartment(ctx context.Context, d Department) (Department, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO departments (id, name, code, description, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+departmentCols,
		d.ID, d.Name, d.Code, d.Description, d.IsActive)
	dep, err := scanDepartment(row)
	if isUniqueViolation(err) {
		return Department{}, ErrConflict
	}
	return dep, err
}

// UpdateDepartment rewrites an existing department's editable fields.
func (r *Repository) UpdateDepartment(ctx context.Context, d Department) (Department, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE departments
		SET name = $2, code = $3, description = $4, is_active = $5
		WHERE id = $1
		RETURNING `+departmentCols,
		d.ID, d.Name, d.Code, d.Description, d.IsActive)
	dep, err := scanDepartment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Department{}, ErrNotFound
	}
	if isUniqueViolation(err) {
		return Department{}, ErrConflict
	}
	return dep, err
}

// GetDepartment returns a department by id.
func (r *Repository) GetDepartment(ctx context.Context, id string) (Department, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+departmentCols+` FROM departments WHERE id = $1`, id)
	dep, err := scanDepartment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Department{}, ErrNotFound
	}
	return dep, err
}

// ListDepartments returns all departments ordered by name.
func (r *Repository) ListDepartments(ctx context.Context) ([]Department, error) {
	return r.queryDepartments(ctx, `SELECT `+departmentCols+` FROM departments ORDER BY name`)
}

// ActiveDepartments returns departments selectable on registration forms.
func (r *Repository) ActiveDepartments(ctx context.Context) ([]Department, error) {
	return r.queryDepartments(ctx, `SELECT `+departmentCols+` FROM departments WHERE is_active ORDER BY name`)
}

func (r *Repository) queryDepartments(ctx context.Context, query string, args ...any) ([]Department, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Department
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

const studentCols = `s.id, s.student_id, s.first_name, s.last_name, s.email,
	s.department_id, d.name, s.qr_token, s.qr_image_path, s.status,
	s.registration_status, s.phone_number, s.address, s.date_of_birth,
	s.approved_by, s.approved_at, s.rejection_reason, s.created_at`

const studentFrom = ` FROM students s LEFT JOIN departments d ON d.id = s.department_id `

func scanStudent(row interface{ Scan(...any) error }) (Student, error) {
	var s Student
	var token sql.NullString
	err := row.Scan(&s.ID, &s.StudentID, &s.FirstName, &s.LastName, &s.Email,
		&s.DepartmentID, &s.DepartmentName, &token, &s.QRImagePath, &s.Status,
		&s.RegistrationStatus, &s.PhoneNumber, &s.Address, &s.DateOfBirth,
		&s.ApprovedBy, &s.ApprovedAt, &s.RejectionReason, &s.CreatedAt)
	s.QRToken = token.String
	return s, err
}

// InsertStudent writes a new student row.
func (r *Repository) InsertStudent(ctx context.Context, s Student) (Student, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO students (id, student_id, first_name, last_name, email, department_id,
			qr_token, status, registration_status, phone_number, address, date_of_birth,
			approved_by, approved_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, s.ID, s.StudentID, s.FirstName, s.LastName, s.Email, s.DepartmentID,
		s.QRToken, s.Status, s.RegistrationStatus, s.PhoneNumber, s.Address, s.DateOfBirth,
		s.ApprovedBy, s.ApprovedAt)
	if isUniqueViolation(err) {
		return Student{}, ErrConflict
	}
	if err != nil {
		return Student{}, err
	}
	return r.GetStudent(ctx, s.ID)
}

// GetStudent returns a student by primary key.
func (r *Repository) GetStudent(ctx context.Context, id string) (Student, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+studentCols+studentFrom+`WHERE s.id = $1`, id)
	s, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Student{}, ErrNotFound
	}
	return s, err
}

// StudentIDTaken reports whether a student_id is already registered.
func (r *Repository) StudentIDTaken(ctx context.Context, studentID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM students WHERE student_id = $1)`, studentID).Scan(&exists)
	return exists, err
}

// EmailTaken reports whether an email is already registered.
func (r *Repository) EmailTaken(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM students WHERE LOWER(email) = LOWER($1))`, email).Scan(&exists)
	return exists, err
}

// PendingStudents returns registrations awaiting a decision, newest first.
func (r *Repository) PendingStudents(ctx context.Context) ([]Student, error) {
	return r.queryStudents(ctx, `SELECT `+studentCols+studentFrom+`
		WHERE s.registration_status = 'pending' ORDER BY s.created_at DESC`)
}

// ListStudents returns one page of all students ordered by first name.
func (r *Repository) ListStudents(ctx context.Context, limit, offset int) ([]Student, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM students`).Scan(&total); err != nil {
		return nil, 0, err
	}
	students, err := r.queryStudents(ctx, `SELECT `+studentCols+studentFrom+`
		ORDER BY s.first_name, s.last_name LIMIT $1 OFFSET $2`, limit, offset)
	return students, total, err
}

// ActiveStudents returns one page of active students, used for the QR code listing.
func (r *Repository) ActiveStudents(ctx context.Context, limit, offset int) ([]Student, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM students WHERE status = 'active'`).Scan(&total); err != nil {
		return nil, 0, err
	}
	students, err := r.queryStudents(ctx, `SELECT `+studentCols+studentFrom+`
		WHERE s.status = 'active' ORDER BY s.first_name, s.last_name LIMIT $1 OFFSET $2`, limit, offset)
	return students, total, err
}

func (r *Repository) queryStudents(ctx context.Context, query string, args ...any) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// ApproveStudent flips a pending registration to approved. The status guard is
// part of the UPDATE so a second call cannot re-approve.
func (r *Repository) ApproveStudent(ctx context.Context, id, approver string, at time.Time) (Student, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE students
		SET registration_status = 'approved', approved_by = $2, approved_at = $3, rejection_reason = ''
		WHERE id = $1 AND registration_status = 'pending'
	`, id, approver, at)
	if err != nil {
		return Student{}, err
	}
	return r.afterDecision(ctx, id, res)
}

// RejectStudent flips a pending registration to rejected and records the reason.
func (r *Repository) RejectStudent(ctx context.Context, id, reason string) (Student, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE students
		SET registration_status = 'rejected', approved_by = NULL, approved_at = NULL, rejection_reason = $2
		WHERE id = $1 AND registration_status = 'pending'
	`, id, reason)
	if err != nil {
		return Student{}, err
	}
	return r.afterDecision(ctx, id, res)
}

func (r *Repository) afterDecision(ctx context.Context, id string, res sql.Result) (Student, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return Student{}, err
	}
	if n == 0 {
		if _, err := r.GetStudent(ctx, id); errors.Is(err, ErrNotFound) {
			return Student{}, ErrNotFound
		}
		return Student{}, ErrNotPending
	}
	return r.GetStudent(ctx, id)
}

// SetStudentStatus toggles the active/inactive account flag.
func (r *Repository) SetStudentStatus(ctx context.Context, id, status string) (Student, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE students SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return Student{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return Student{}, err
	} else if n == 0 {
		return Student{}, ErrNotFound
	}
	return r.GetStudent(ctx, id)
}

// SetQRImagePath records the rendered image location for a student.
func (r *Repository) SetQRImagePath(ctx context.Context, id, path string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE students SET qr_image_path = $2 WHERE id = $1`, id, path)
	return err
}

// StudentsMissingQRImages returns students holding a token but no rendered image.
func (r *Repository) StudentsMissingQRImages(ctx context.Context) ([]Student, error) {
	return r.queryStudents(ctx, `SELECT `+studentCols+studentFrom+`
		WHERE s.qr_token IS NOT NULL AND s.qr_token <> '' AND s.qr_image_path = ''
		ORDER BY s.created_at`)
}

// CountActiveStudents returns the number of active students.
func (r *Repository) CountActiveStudents(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM students WHERE status = 'active'`).Scan(&n)
	return n, err
}
