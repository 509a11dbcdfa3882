package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/camden-git/faceattend/gallery"
	"github.com/camden-git/faceattend/models"
	"github.com/camden-git/faceattend/realtime"
	"github.com/camden-git/faceattend/repository"
	"github.com/camden-git/faceattend/utils"
)

// ErrServiceUnavailable is returned when the attendance store did not answer
// within the timeout and retry budget. callers may retry later.
var ErrServiceUnavailable = errors.New("attendance store unavailable")

type RecordOutcome string

const (
	OutcomeRecorded             RecordOutcome = "recorded"
	OutcomeNotFound             RecordOutcome = "not_found"
	OutcomeAlreadyRecordedToday RecordOutcome = "already_recorded_today"
)

const (
	DefaultStoreTimeout = 5 * time.Second
	DefaultStoreRetries = 3
	defaultBackoff      = 100 * time.Millisecond
	maxBackoff          = 2 * time.Second
)

// EventPublisher receives attendance events, typically the websocket hub.
type EventPublisher interface {
	Broadcast(event realtime.Event)
}

// AttendanceRecorder records at most one attendance row per employee per local day.
type AttendanceRecorder struct {
	directory repository.EmployeeDirectory
	publisher EventPublisher

	// Timeout bounds each individual store call; Retries is the number of attempts per call
	Timeout  time.Duration
	Retries  int
	Backoff  time.Duration
	Location *time.Location

	dayLocks utils.KeyedMutex
}

func NewAttendanceRecorder(directory repository.EmployeeDirectory, publisher EventPublisher, timeout time.Duration, retries int) *AttendanceRecorder {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	if retries <= 0 {
		retries = DefaultStoreRetries
	}
	return &AttendanceRecorder{
		directory: directory,
		publisher: publisher,
		Timeout:   timeout,
		Retries:   retries,
		Backoff:   defaultBackoff,
		Location:  time.Local,
	}
}

// Record resolves personName to an employee and appends today's attendance
// row unless one already exists. the local day of when decides "today".
func (r *AttendanceRecorder) Record(ctx context.Context, personName string, when time.Time) (RecordOutcome, error) {
	name := strings.TrimSpace(personName)
	if name == "" || name == gallery.UnknownName {
		return OutcomeNotFound, nil
	}

	var employee *models.Employee
	err := r.call(ctx, "find employee", func(ctx context.Context) error {
		var err error
		employee, err = r.directory.FindEmployeeByName(ctx, name)
		return err
	})
	if errors.Is(err, repository.ErrEmployeeNotFound) {
		log.Printf("attendance: employee %s not found in directory", name)
		return OutcomeNotFound, nil
	}
	if err != nil {
		return "", err
	}

	local := when.In(r.Location)
	date := local.Format(models.DateLayout)

	unlock, err := r.dayLocks.LockContext(ctx, fmt.Sprintf("%d|%s", employee.ID, date))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer unlock()

	var already bool
	err = r.call(ctx, "check attendance", func(ctx context.Context) error {
		var err error
		already, err = r.directory.HasAttendanceToday(ctx, employee.ID, date)
		return err
	})
	if err != nil {
		return "", err
	}
	if already {
		return OutcomeAlreadyRecordedToday, nil
	}

	record := &models.AttendanceRecord{
		EmployeeID:   employee.ID,
		EmployeeName: employee.Name,
		Date:         date,
		Time:         local.Format(models.TimeLayout),
		CreatedAt:    time.Now().Unix(),
	}
	attempts := 0
	err = r.call(ctx, "append attendance", func(ctx context.Context) error {
		attempts++
		return r.directory.AppendAttendance(ctx, record)
	})
	if errors.Is(err, repository.ErrDuplicateAttendance) {
		if attempts == 1 || !r.landedEarlier(ctx, record) {
			return OutcomeAlreadyRecordedToday, nil
		}
		log.Printf("attendance: row for %s on %s landed on a retried attempt", employee.Name, date)
	} else if err != nil {
		return "", err
	}

	err = r.call(ctx, "set present", func(ctx context.Context) error {
		return r.directory.SetPresent(ctx, employee.ID)
	})
	if err != nil {
		// the attendance row is authoritative; the status flag is a convenience view
		log.Printf("attendance: WARNING recorded %s but could not update status: %v", employee.Name, err)
	}

	log.Printf("attendance: recorded %s (ID: %d) at %s %s", employee.Name, employee.ID, record.Date, record.Time)
	if r.publisher != nil {
		r.publisher.Broadcast(realtime.Event{
			Type:       realtime.EventAttendanceRecorded,
			Person:     employee.Name,
			EmployeeID: employee.ID,
			Date:       record.Date,
			Time:       record.Time,
			Timestamp:  time.Now().Unix(),
		})
	}
	return OutcomeRecorded, nil
}

// landedEarlier reports whether the stored row for record's day is the one an
// earlier, timed-out attempt of this call wrote. a row it cannot load or that
// carries a different timestamp belongs to another writer.
func (r *AttendanceRecorder) landedEarlier(ctx context.Context, record *models.AttendanceRecord) bool {
	lookup, ok := r.directory.(repository.AttendanceLookup)
	if !ok {
		return false
	}
	var stored *models.AttendanceRecord
	err := r.call(ctx, "load attendance", func(ctx context.Context) error {
		var err error
		stored, err = lookup.GetAttendance(ctx, record.EmployeeID, record.Date)
		return err
	})
	if err != nil {
		log.Printf("attendance: could not load row for employee %d on %s: %v", record.EmployeeID, record.Date, err)
		return false
	}
	return stored.Time == record.Time && stored.CreatedAt == record.CreatedAt
}

// call runs fn with a per-attempt timeout, retrying with exponential backoff.
// directory answers (not found, duplicate) are returned as-is; exhausting the
// attempts yields ErrServiceUnavailable.
func (r *AttendanceRecorder) call(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := max(1, r.Retries)
	backoff := r.Backoff
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, r.Timeout)
		err := fn(attemptCtx)
		cancel()

		if err == nil ||
			errors.Is(err, repository.ErrEmployeeNotFound) ||
			errors.Is(err, repository.ErrDuplicateAttendance) {
			return err
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		log.Printf("attendance: %s attempt %d/%d failed: %v", op, attempt, attempts, err)

		if attempt < attempts {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return fmt.Errorf("%w: %s: %v", ErrServiceUnavailable, op, ctx.Err())
			}
			backoff = min(backoff*2, maxBackoff)
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrServiceUnavailable, op, lastErr)
}
