package attendance

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"quitescan/internal/roster"
)

// Repository persists and aggregates attendance logs in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// FindActiveByToken resolves a scan token to an active student.
func (r *Repository) FindActiveByToken(ctx context.Context, token string) (roster.Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT s.id, s.student_id, s.first_name, s.last_name, s.department_id, s.status
		FROM students s
		WHERE s.qr_token = $1 AND s.status = 'active'
	`, token)
	var s roster.Student
	if err := row.Scan(&s.ID, &s.StudentID, &s.FirstName, &s.LastName, &s.DepartmentID, &s.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return roster.Student{}, roster.ErrNotFound
		}
		return roster.Student{}, err
	}
	s.QRToken = token
	return s, nil
}

// LatestAction returns the student's most recent log action, or "" when the
// student has never scanned.
func (r *Repository) LatestAction(ctx context.Context, studentPK string) (string, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT action FROM attendance_logs
		WHERE student_pk = $1
		ORDER BY logged_at DESC, id DESC
		LIMIT 1
	`, studentPK)
	var action string
	if err := row.Scan(&action); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return action, nil
}

// AppendLog inserts a log row only while the student's latest action still
// differs from the new one. A false return means another scan won the race.
func (r *Repository) AppendLog(ctx context.Context, e Entry) (bool, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.LoggedAt.IsZero() {
		e.LoggedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_logs (id, student_pk, action, department_id, logged_at)
		SELECT $1, $2, $3, $4, $5
		WHERE COALESCE((
			SELECT action FROM attendance_logs
			WHERE student_pk = $2
			ORDER BY logged_at DESC, id DESC
			LIMIT 1
		), 'OUT') <> $3
	`, e.ID, e.StudentPK, e.Action, e.DepartmentID, e.LoggedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DailyAttendance groups one date's logs per student with earliest check-in
// and latest check-out, ordered by name.
func (r *Repository) DailyAttendance(ctx context.Context, date time.Time, limit, offset int) ([]DailyRow, int, error) {
	start, end := dayBounds(date)

	var total int
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT student_pk) FROM attendance_logs
		WHERE logged_at >= $1 AND logged_at < $2
	`, start, end).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.student_id, s.first_name, s.last_name,
			MIN(l.logged_at) FILTER (WHERE l.action = 'IN'),
			MAX(l.logged_at) FILTER (WHERE l.action = 'OUT')
		FROM attendance_logs l
		JOIN students s ON s.id = l.student_pk
		WHERE l.logged_at >= $1 AND l.logged_at < $2
		GROUP BY s.id, s.student_id, s.first_name, s.last_name
		ORDER BY s.first_name, s.last_name
		LIMIT $3 OFFSET $4
	`, start, end, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var res []DailyRow
	for rows.Next() {
		var d DailyRow
		if err := rows.Scan(&d.StudentPK, &d.StudentID, &d.FirstName, &d.LastName, &d.CheckIn, &d.CheckOut); err != nil {
			return nil, 0, err
		}
		res = append(res, d)
	}
	return res, total, rows.Err()
}

// PresentCount counts students with at least one check-in on the date.
func (r *Repository) PresentCount(ctx context.Context, date time.Time) (int, error) {
	start, end := dayBounds(date)
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT student_pk) FROM attendance_logs
		WHERE action = 'IN' AND logged_at >= $1 AND logged_at < $2
	`, start, end).Scan(&n)
	return n, err
}

// DayLogCount counts all log rows on the date.
func (r *Repository) DayLogCount(ctx context.Context, date time.Time) (int, error) {
	start, end := dayBounds(date)
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attendance_logs WHERE logged_at >= $1 AND logged_at < $2
	`, start, end).Scan(&n)
	return n, err
}

// DepartmentStats counts distinct checked-in students per department for one
// date, largest first.
func (r *Repository) DepartmentStats(ctx context.Context, date time.Time) ([]DeptStat, error) {
	start, end := dayBounds(date)
	rows, err := r.db.QueryContext(ctx, `
		SELECT d.name, d.code, COUNT(DISTINCT l.student_pk) AS check_ins
		FROM attendance_logs l
		LEFT JOIN departments d ON d.id = l.department_id
		WHERE l.action = 'IN' AND l.logged_at >= $1 AND l.logged_at < $2
		GROUP BY d.name, d.code
		ORDER BY check_ins DESC
	`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []DeptStat
	for rows.Next() {
		var st DeptStat
		if err := rows.Scan(&st.DepartmentName, &st.DepartmentCode, &st.CheckInCount); err != nil {
			return nil, err
		}
		res = append(res, st)
	}
	return res, rows.Err()
}

// MonthlyBuckets returns distinct-student check-in counts per month, newest
// first. departmentID narrows to one department when non-empty.
func (r *Repository) MonthlyBuckets(ctx context.Context, departmentID string, limit, offset int) ([]MonthBucket, int, error) {
	where := `WHERE action = 'IN'`
	args := []any{}
	if departmentID != "" {
		where += ` AND department_id = $1`
		args = append(args, departmentID)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM (SELECT date_trunc('month', logged_at) FROM attendance_logs ` +
		where + ` GROUP BY 1) b`
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT date_trunc('month', logged_at) AS month, COUNT(DISTINCT student_pk)
		FROM attendance_logs ` + where + `
		GROUP BY month
		ORDER BY month DESC
		LIMIT $` + itoa(len(args)+1) + ` OFFSET $` + itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var res []MonthBucket
	for rows.Next() {
		var b MonthBucket
		if err := rows.Scan(&b.Month, &b.UniqueStudents); err != nil {
			return nil, 0, err
		}
		res = append(res, b)
	}
	return res, total, rows.Err()
}

// MonthTotal counts distinct students with a check-in in one calendar month.
func (r *Repository) MonthTotal(ctx context.Context, year, month int, departmentID string) (int, error) {
	query := `
		SELECT COUNT(DISTINCT student_pk) FROM attendance_logs
		WHERE action = 'IN'
		AND EXTRACT(YEAR FROM logged_at) = $1
		AND EXTRACT(MONTH FROM logged_at) = $2`
	args := []any{year, month}
	if departmentID != "" {
		query += ` AND department_id = $3`
		args = append(args, departmentID)
	}
	var n int
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

// WeeklyBuckets returns distinct-student check-in counts per week, newest
// first. year/month of zero mean no month filter.
func (r *Repository) WeeklyBuckets(ctx context.Context, year, month, limit, offset int) ([]WeekBucket, int, error) {
	where := `WHERE action = 'IN'`
	args := []any{}
	if year != 0 && month != 0 {
		where += ` AND EXTRACT(YEAR FROM logged_at) = $1 AND EXTRACT(MONTH FROM logged_at) = $2`
		args = append(args, year, month)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM (SELECT date_trunc('week', logged_at) FROM attendance_logs ` +
		where + ` GROUP BY 1) b`
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT date_trunc('week', logged_at) AS week, COUNT(DISTINCT student_pk)
		FROM attendance_logs ` + where + `
		GROUP BY week
		ORDER BY week DESC
		LIMIT $` + itoa(len(args)+1) + ` OFFSET $` + itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var res []WeekBucket
	for rows.Next() {
		var b WeekBucket
		if err := rows.Scan(&b.WeekStart, &b.UniqueStudents); err != nil {
			return nil, 0, err
		}
		b.WeekEnd = b.WeekStart.AddDate(0, 0, 6)
		res = append(res, b)
	}
	return res, total, rows.Err()
}

// LatestMonthBucket returns the most recent monthly bucket, or nil when no
// check-ins exist yet.
func (r *Repository) LatestMonthBucket(ctx context.Context) (*MonthBucket, error) {
	buckets, _, err := r.MonthlyBuckets(ctx, "", 1, 0)
	if err != nil || len(buckets) == 0 {
		return nil, err
	}
	return &buckets[0], nil
}

// LatestWeekBucket returns the most recent weekly bucket, or nil when no
// check-ins exist yet.
func (r *Repository) LatestWeekBucket(ctx context.Context) (*WeekBucket, error) {
	buckets, _, err := r.WeeklyBuckets(ctx, 0, 0, 1, 0)
	if err != nil || len(buckets) == 0 {
		return nil, err
	}
	return &buckets[0], nil
}

// MonthOptions lists the months that hold at least one check-in, newest first.
func (r *Repository) MonthOptions(ctx context.Context) ([]MonthOption, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT date_trunc('month', logged_at) AS month
		FROM attendance_logs
		WHERE action = 'IN'
		ORDER BY month DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []MonthOption
	for rows.Next() {
		var m time.Time
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		res = append(res, MonthOption{Value: m.Format("2006-01"), Label: m.Format("January 2006")})
	}
	return res, rows.Err()
}

// YearlyDistinct counts distinct students with a check-in in the year.
func (r *Repository) YearlyDistinct(ctx context.Context, year int) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT student_pk) FROM attendance_logs
		WHERE action = 'IN' AND EXTRACT(YEAR FROM logged_at) = $1
	`, year).Scan(&n)
	return n, err
}

// CheckedInStudents pages through active students whose latest log is a
// check-in.
func (r *Repository) CheckedInStudents(ctx context.Context, limit, offset int) ([]LogRow, int, error) {
	const from = `
		FROM students s
		JOIN LATERAL (
			SELECT action, logged_at FROM attendance_logs
			WHERE student_pk = s.id
			ORDER BY logged_at DESC, id DESC
			LIMIT 1
		) last ON TRUE
		LEFT JOIN departments d ON d.id = s.department_id
		WHERE s.status = 'active' AND last.action = 'IN'`

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*)`+from).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.student_id, s.first_name, s.last_name, last.action, d.name, last.logged_at
	`+from+`
		ORDER BY s.first_name, s.last_name
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var res []LogRow
	for rows.Next() {
		var l LogRow
		if err := rows.Scan(&l.ID, &l.StudentID, &l.FirstName, &l.LastName, &l.Action, &l.DepartmentName, &l.LoggedAt); err != nil {
			return nil, 0, err
		}
		res = append(res, l)
	}
	return res, total, rows.Err()
}

// RecentLogs pages through log rows, newest first, filtered by calendar
// month and an optional case-insensitive search over student id and names.
func (r *Repository) RecentLogs(ctx context.Context, year, month int, search string, limit, offset int) ([]LogRow, int, error) {
	where, args := logFilters(year, month, search)

	var total int
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attendance_logs l JOIN students s ON s.id = l.student_pk `+where,
		args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT l.id, s.student_id, s.first_name, s.last_name, l.action, d.name, l.logged_at
		FROM attendance_logs l
		JOIN students s ON s.id = l.student_pk
		LEFT JOIN departments d ON d.id = l.department_id
	` + where + `
		ORDER BY l.logged_at DESC, l.id DESC
		LIMIT $` + itoa(len(args)+1) + ` OFFSET $` + itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var res []LogRow
	for rows.Next() {
		var l LogRow
		if err := rows.Scan(&l.ID, &l.StudentID, &l.FirstName, &l.LastName, &l.Action, &l.DepartmentName, &l.LoggedAt); err != nil {
			return nil, 0, err
		}
		res = append(res, l)
	}
	return res, total, rows.Err()
}

// ActivityCount counts the check-ins matching a student search, optionally
// narrowed to one calendar month.
func (r *Repository) ActivityCount(ctx context.Context, year, month int, search string) (int, error) {
	where, args := logFilters(year, month, search)
	if where == "" {
		where = `WHERE l.action = 'IN'`
	} else {
		where += ` AND l.action = 'IN'`
	}
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attendance_logs l JOIN students s ON s.id = l.student_pk `+where,
		args...).Scan(&n)
	return n, err
}

func logFilters(year, month int, search string) (string, []any) {
	clauses := []string{}
	args := []any{}
	if year != 0 && month != 0 {
		clauses = append(clauses,
			`EXTRACT(YEAR FROM l.logged_at) = $`+itoa(len(args)+1),
			`EXTRACT(MONTH FROM l.logged_at) = $`+itoa(len(args)+2))
		args = append(args, year, month)
	}
	if search != "" {
		p := len(args) + 1
		clauses = append(clauses, `(s.student_id ILIKE $`+itoa(p)+
			` OR s.first_name ILIKE $`+itoa(p)+` OR s.last_name ILIKE $`+itoa(p)+`)`)
		args = append(args, "%"+search+"%")
	}
	if len(clauses) == 0 {
		return "", args
	}
	where := "WHERE " + clauses[0]
	for _, c := range clauses[1:] {
		where += " AND " + c
	}
	return where, args
}

func dayBounds(date time.Time) (time.Time, time.Time) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return start, start.AddDate(0, 0, 1)
}

func itoa(i int) string { return strconv.Itoa(i) }
