package repository

import (
	"context"

	"github.com/camden-git/faceattend/models"
)

// EmployeeDirectory is the attendance store as seen by the attendance recorder.
type EmployeeDirectory interface {
	FindEmployeeByName(ctx context.Context, name string) (*models.Employee, error)
	SetPresent(ctx context.Context, employeeID uint) error
	AppendAttendance(ctx context.Context, record *models.AttendanceRecord) error
	HasAttendanceToday(ctx context.Context, employeeID uint, date string) (bool, error)
}

// AttendanceLookup loads the stored row for (employee, date). the recorder uses it, when
// the directory provides it, to tell its own retried insert from a row written elsewhere.
type AttendanceLookup interface {
	GetAttendance(ctx context.Context, employeeID uint, date string) (*models.AttendanceRecord, error)
}

// EmployeeRepositoryInterface adds the directory management used by the API and CLI.
type EmployeeRepositoryInterface interface {
	EmployeeDirectory
	AttendanceLookup
	Create(ctx context.Context, employee *models.Employee) error
	Upsert(ctx context.Context, employee *models.Employee) (created bool, err error)
	GetByID(ctx context.Context, id uint) (*models.Employee, error)
	ListAll(ctx context.Context) ([]models.Employee, error)
	AddAlias(ctx context.Context, employeeID uint, alias string) error
	ListAttendanceByDate(ctx context.Context, date string) ([]models.AttendanceRecord, error)
	ResetStatuses(ctx context.Context) (int64, error)
}
