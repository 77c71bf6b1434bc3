// Package attendance records scan events and aggregates them for reporting.
package attendance

import "time"

// Actions a scan can produce. The log for any student strictly alternates,
// starting with ActionIn.
const (
	ActionIn  = "IN"
	ActionOut = "OUT"
)

// Entry is one append-only attendance log row. DepartmentID is a snapshot of
// the student's department at scan time.
type Entry struct {
	ID           string    `json:"id"`
	StudentPK    string    `json:"-"`
	Action       string    `json:"action"`
	DepartmentID *string   `json:"department_id,omitempty"`
	LoggedAt     time.Time `json:"timestamp"`
}

// ScanResult is the confirmation returned to the scanner UI.
type ScanResult struct {
	Action      string    `json:"action"`
	StudentName string    `json:"student_name"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
}

// DailyRow is one student's earliest check-in and latest check-out on a date.
type DailyRow struct {
	StudentPK string     `json:"-"`
	StudentID string     `json:"student_id"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	CheckIn   *time.Time `json:"check_in,omitempty"`
	CheckOut  *time.Time `json:"check_out,omitempty"`
}

// DeptStat counts distinct checked-in students for one department.
type DeptStat struct {
	DepartmentName *string `json:"department_name"`
	DepartmentCode *string `json:"department_code"`
	CheckInCount   int     `json:"check_in_count"`
}

// MonthBucket counts distinct students with a check-in in one month.
type MonthBucket struct {
	Month          time.Time `json:"month"`
	UniqueStudents int       `json:"unique_students"`
}

// WeekBucket counts distinct students with a check-in in one week.
// WeekEnd is WeekStart plus six days.
type WeekBucket struct {
	WeekStart      time.Time `json:"week_start"`
	WeekEnd        time.Time `json:"week_end"`
	UniqueStudents int       `json:"unique_students"`
}

// MonthOption is a selectable month for report filters.
type MonthOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// LogRow is one attendance log row joined with student and department names.
type LogRow struct {
	ID             string    `json:"id"`
	StudentID      string    `json:"student_id"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Action         string    `json:"action"`
	DepartmentName *string   `json:"department_name,omitempty"`
	LoggedAt       time.Time `json:"timestamp"`
}
