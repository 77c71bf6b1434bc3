package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quitescan/internal/roster"
)

// Store is the persistence surface the scan processor needs.
type Store interface {
	FindActiveByToken(ctx context.Context, token string) (roster.Student, error)
	LatestAction(ctx context.Context, studentPK string) (string, error)
	AppendLog(ctx context.Context, e Entry) (bool, error)
}

// ErrInvalidCode is returned when a token matches no active student.
var ErrInvalidCode = errors.New("invalid QR code")

const appendAttempts = 3

// Service is the scan processor: it derives the student's next action from
// their latest log row and appends exactly one opposite-action row.
type Service struct {
	store  Store
	locker Locker
	now    func() time.Time
}

// NewService creates a scan processor. locker serializes scans per student;
// pass NewMemoryLocker() for a single-process deployment.
func NewService(store Store, locker Locker) *Service {
	if locker == nil {
		locker = NewMemoryLocker()
	}
	return &Service{
		store:  store,
		locker: locker,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ProcessScan toggles a student between checked-in and checked-out. The
// append is conditional on the latest action still being the one observed,
// and is retried when a concurrent scan gets there first.
func (s *Service) ProcessScan(ctx context.Context, token string) (ScanResult, error) {
	if token == "" {
		return ScanResult{}, ErrInvalidCode
	}
	student, err := s.store.FindActiveByToken(ctx, token)
	if errors.Is(err, roster.ErrNotFound) {
		return ScanResult{}, ErrInvalidCode
	}
	if err != nil {
		return ScanResult{}, err
	}

	unlock, err := s.locker.Lock(ctx, student.ID)
	if err != nil {
		return ScanResult{}, err
	}
	defer unlock()

	for attempt := 0; attempt < appendAttempts; attempt++ {
		latest, err := s.store.LatestAction(ctx, student.ID)
		if err != nil {
			return ScanResult{}, err
		}
		action := ActionIn
		if latest == ActionIn {
			action = ActionOut
		}

		when := s.now()
		ok, err := s.store.AppendLog(ctx, Entry{
			StudentPK:    student.ID,
			Action:       action,
			DepartmentID: student.DepartmentID,
			LoggedAt:     when,
		})
		if err != nil {
			return ScanResult{}, err
		}
		if !ok {
			// Another scan slipped in between the read and the append.
			continue
		}

		message := fmt.Sprintf("Checked in successfully, %s!", student.FirstName)
		if action == ActionOut {
			message = fmt.Sprintf("Checked out successfully, %s!", student.FirstName)
		}
		return ScanResult{
			Action:      action,
			StudentName: student.FullName(),
			Message:     message,
			Timestamp:   when,
		}, nil
	}
	return ScanResult{}, fmt.Errorf("scan for %s kept losing the append race", student.StudentID)
}
